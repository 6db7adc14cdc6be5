package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sandai/arena/src/app/tournaments"
	"github.com/sandai/arena/src/domain/bracket"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
)

type participantView struct {
	UserID   string `json:"user_id"`
	Seed     int    `json:"seed,omitempty"`
	Rating   int    `json:"rating"`
	AmmoType string `json:"ammo_type,omitempty"`
	Funded   bool   `json:"funded"`
	Refunded bool   `json:"refunded"`
}

type TournamentResponse struct {
	ID                   string              `json:"id"`
	Title                string              `json:"title"`
	Description          string              `json:"description,omitempty"`
	GameType             string              `json:"game_type"`
	Format               string              `json:"format"`
	State                string              `json:"state"`
	MinParticipants      int                 `json:"min_participants"`
	MaxParticipants      int                 `json:"max_participants"`
	EntryFee             int64               `json:"entry_fee"`
	Prizes               []tournament.Prize  `json:"prizes"`
	RegistrationDeadline time.Time           `json:"registration_deadline"`
	Participants         []participantView   `json:"participants"`
	Ranking              []shared.UserID     `json:"ranking,omitempty"`
	Payouts              []tournament.Payout `json:"payouts,omitempty"`
	CancelReason         string              `json:"cancel_reason,omitempty"`
	Scoring              bracket.Scoring     `json:"scoring"`
	CreatedAt            time.Time           `json:"created_at"`
	StartedAt            *time.Time          `json:"started_at,omitempty"`
	FinishedAt           *time.Time          `json:"finished_at,omitempty"`
}

func toTournamentResponse(t *tournament.Tournament) TournamentResponse {
	out := TournamentResponse{
		ID:                   string(t.ID),
		Title:                t.Title,
		Description:          t.Description,
		GameType:             string(t.GameType),
		Format:               string(t.Format),
		State:                string(t.State),
		MinParticipants:      t.MinParticipants,
		MaxParticipants:      t.MaxParticipants,
		EntryFee:             int64(t.EntryFee),
		Prizes:               t.Prizes,
		RegistrationDeadline: t.RegistrationDeadline,
		Participants:         make([]participantView, 0, len(t.Participants)),
		Ranking:              t.Ranking,
		Payouts:              t.Payouts,
		CancelReason:         t.CancelReason,
		Scoring:              t.Scoring,
		CreatedAt:            t.CreatedAt,
	}
	for _, p := range t.Participants {
		out.Participants = append(out.Participants, participantView{
			UserID:   string(p.UserID),
			Seed:     p.Seed,
			Rating:   p.Rating,
			AmmoType: p.AmmoType,
			Funded:   p.Funded,
			Refunded: p.Refunded,
		})
	}
	if !t.StartedAt.IsZero() {
		v := t.StartedAt
		out.StartedAt = &v
	}
	if !t.FinishedAt.IsZero() {
		v := t.FinishedAt
		out.FinishedAt = &v
	}
	return out
}

func tournamentID(r *http.Request) shared.TournamentID {
	return shared.TournamentID(mux.Vars(r)["id"])
}

type CreateTournamentRequest struct {
	ID                   string             `json:"id"`
	Title                string             `json:"title"`
	Description          string             `json:"description"`
	GameType             string             `json:"game_type"`
	Format               string             `json:"format"`
	MinParticipants      int                `json:"min_participants"`
	MaxParticipants      int                `json:"max_participants"`
	EntryFee             int64              `json:"entry_fee"`
	Prizes               []tournament.Prize `json:"prizes"`
	RegistrationDeadline time.Time          `json:"registration_deadline"`
	GroupSize            int                `json:"group_size"`
	Advance              int                `json:"advance"`
	Scoring              *bracket.Scoring   `json:"scoring"`
}

func (s *Server) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	var req CreateTournamentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	settings := tournament.Settings{
		Title:                req.Title,
		Description:          req.Description,
		GameType:             shared.GameType(req.GameType),
		Format:               bracket.Format(req.Format),
		MinParticipants:      req.MinParticipants,
		MaxParticipants:      req.MaxParticipants,
		EntryFee:             shared.Amount(req.EntryFee),
		Prizes:               req.Prizes,
		RegistrationDeadline: req.RegistrationDeadline,
		GroupSize:            req.GroupSize,
		Advance:              req.Advance,
	}
	if req.Scoring != nil {
		settings.Scoring = *req.Scoring
	}
	t, err := s.cfg.Tournaments.CreateTournament(r.Context(), tournaments.CreateTournamentCommand{
		ID:       shared.TournamentID(req.ID),
		Settings: settings,
	})
	if err != nil {
		s.fail(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTournamentResponse(t))
}

func (s *Server) handleListTournaments(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	list, err := s.cfg.Tournaments.ListTournaments(r.Context(), tournaments.ListTournamentsQuery{Limit: limit, Offset: offset})
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	out := make([]TournamentResponse, len(list))
	for i, t := range list {
		out[i] = toTournamentResponse(t)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	s.respondTournament(w, r)(s.cfg.Tournaments.GetTournament(r.Context(), tournamentID(r)))
}

// RegisterTournamentRequest is optional; an empty body registers with the
// profile's declared ammunition.
type RegisterTournamentRequest struct {
	AmmoType string `json:"ammo_type"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterTournamentRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respondTournament(w, r)(s.cfg.Tournaments.Register(r.Context(), tournaments.RegisterCommand{
		TournamentID: tournamentID(r),
		UserID:       principalFrom(r.Context()).UserID,
		AmmoType:     req.AmmoType,
	}))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.respondTournament(w, r)(s.cfg.Tournaments.Withdraw(r.Context(), tournamentID(r), principalFrom(r.Context()).UserID))
}

func (s *Server) handleCloseRegistration(w http.ResponseWriter, r *http.Request) {
	s.respondTournament(w, r)(s.cfg.Tournaments.CloseRegistration(r.Context(), tournamentID(r)))
}

type CancelTournamentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelTournament(w http.ResponseWriter, r *http.Request) {
	var req CancelTournamentRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}
	s.respondTournament(w, r)(s.cfg.Tournaments.Cancel(r.Context(), tournamentID(r), req.Reason))
}

func (s *Server) handleBracket(w http.ResponseWriter, r *http.Request) {
	b, err := s.cfg.Tournaments.Bracket(r.Context(), tournamentID(r))
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	tables, err := s.cfg.Tournaments.Standings(r.Context(), tournamentID(r))
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, tables)
}

// slotRef reads /slots/{phase}/{round}/{slot}; group fixtures take ?group.
func slotRef(r *http.Request) bracket.Ref {
	vars := mux.Vars(r)
	round, _ := strconv.Atoi(vars["round"])
	slot, _ := strconv.Atoi(vars["slot"])
	group, _ := strconv.Atoi(r.URL.Query().Get("group"))
	return bracket.Ref{Phase: bracket.Phase(vars["phase"]), Group: group, Round: round, Index: slot}
}

func (s *Server) handleReplaySlot(w http.ResponseWriter, r *http.Request) {
	s.respondTournament(w, r)(s.cfg.Tournaments.ReplaySlot(r.Context(), tournamentID(r), slotRef(r)))
}

type AwardSlotRequest struct {
	Winner string `json:"winner"`
}

func (s *Server) handleAwardSlot(w http.ResponseWriter, r *http.Request) {
	var req AwardSlotRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respondTournament(w, r)(s.cfg.Tournaments.AwardSlot(r.Context(), tournamentID(r), slotRef(r), shared.UserID(req.Winner)))
}

func (s *Server) respondTournament(w http.ResponseWriter, r *http.Request) func(*tournament.Tournament, error) {
	return func(t *tournament.Tournament, err error) {
		if err != nil {
			s.fail(w, r, err, http.StatusUnprocessableEntity)
			return
		}
		s.writeJSON(w, http.StatusOK, toTournamentResponse(t))
	}
}
