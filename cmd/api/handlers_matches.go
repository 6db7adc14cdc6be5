package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sandai/arena/src/app/matches"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
)

const (
	defaultAwait = 30 * time.Second
	maxAwait     = 2 * time.Minute
)

type playerView struct {
	UserID       string `json:"user_id"`
	Rating       int    `json:"rating"`
	AmmoType     string `json:"ammo_type,omitempty"`
	Started      bool   `json:"started"`
	EndSignalled bool   `json:"end_signalled"`
}

type outcomeView struct {
	Kind   string       `json:"kind"`
	Winner string       `json:"winner,omitempty"`
	Score  *match.Score `json:"score,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

type linkView struct {
	TournamentID string `json:"tournament_id"`
	Phase        string `json:"phase"`
	Group        int    `json:"group"`
	Round        int    `json:"round"`
	Slot         int    `json:"slot"`
}

type MatchResponse struct {
	ID            string       `json:"id"`
	GameType      string       `json:"game_type"`
	Wager         int64        `json:"wager"`
	State         string       `json:"state"`
	Players       []playerView `json:"players"`
	Claims        int          `json:"claims"`
	Outcome       *outcomeView `json:"outcome,omitempty"`
	DisputeReason string       `json:"dispute_reason,omitempty"`
	Tournament    *linkView    `json:"tournament,omitempty"`
	Deadline      *time.Time   `json:"deadline,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func toMatchResponse(m *match.Match) MatchResponse {
	out := MatchResponse{
		ID:            string(m.ID),
		GameType:      string(m.GameType),
		Wager:         int64(m.Wager),
		State:         string(m.State),
		Claims:        len(m.Claims),
		DisputeReason: string(m.DisputeReason),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	for _, p := range []*match.Participant{&m.A, m.B} {
		if p == nil {
			continue
		}
		out.Players = append(out.Players, playerView{
			UserID:       string(p.UserID),
			Rating:       p.Rating,
			AmmoType:     p.AmmoType,
			Started:      p.Started,
			EndSignalled: p.EndSignalled,
		})
	}
	if o := m.Outcome; o != nil {
		out.Outcome = &outcomeView{Kind: string(o.Kind), Winner: string(o.Winner), Score: o.Score, Reason: string(o.Reason)}
	}
	if l := m.Link; l != nil {
		out.Tournament = &linkView{TournamentID: string(l.TournamentID), Phase: l.Phase, Group: l.Group, Round: l.Round, Slot: l.Slot}
	}
	if m.State.Open() && !m.Deadline.IsZero() {
		d := m.Deadline
		out.Deadline = &d
	}
	return out
}

func matchID(r *http.Request) shared.MatchID {
	return shared.MatchID(mux.Vars(r)["id"])
}

type RequestMatchRequest struct {
	GameType string `json:"game_type"`
	Wager    int64  `json:"wager"`
	AmmoType string `json:"ammo_type"`
}

func (s *Server) handleRequestMatch(w http.ResponseWriter, r *http.Request) {
	var req RequestMatchRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := s.cfg.Engine.RequestMatch(r.Context(), matches.RequestCommand{
		UserID:   principalFrom(r.Context()).UserID,
		GameType: shared.GameType(req.GameType),
		Wager:    shared.Amount(req.Wager),
		AmmoType: req.AmmoType,
	})
	if err != nil {
		s.fail(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	status := http.StatusAccepted
	if m.Full() {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, toMatchResponse(m))
}

func (s *Server) handleMatchHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	list, err := s.cfg.Engine.History(r.Context(), principalFrom(r.Context()).UserID, limit, offset)
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	out := make([]MatchResponse, len(list))
	for i, m := range list {
		out[i] = toMatchResponse(m)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.cfg.Engine.Get(r.Context(), matchID(r))
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, toMatchResponse(m))
}

// handleAwaitMatch long-polls until a searching match finds an opponent or
// closes. ?timeout takes a Go duration, capped at two minutes.
func (s *Server) handleAwaitMatch(w http.ResponseWriter, r *http.Request) {
	wait := defaultAwait
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("timeout must be a positive duration"))
			return
		}
		wait = min(d, maxAwait)
	}
	// The server write timeout is shorter than a long poll.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(wait + 5*time.Second))
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	m, err := s.cfg.Engine.AwaitMatch(ctx, matchID(r))
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, toMatchResponse(m))
}

func (s *Server) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	s.respondMatch(w, r)(s.cfg.Engine.StartMatch(r.Context(), matchID(r), principalFrom(r.Context()).UserID))
}

func (s *Server) handleSignalEnd(w http.ResponseWriter, r *http.Request) {
	s.respondMatch(w, r)(s.cfg.Engine.SignalEnd(r.Context(), matchID(r), principalFrom(r.Context()).UserID))
}

func (s *Server) handleForfeit(w http.ResponseWriter, r *http.Request) {
	s.respondMatch(w, r)(s.cfg.Engine.Forfeit(r.Context(), matchID(r), principalFrom(r.Context()).UserID))
}

func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	s.respondMatch(w, r)(s.cfg.Engine.CancelSearch(r.Context(), matchID(r), principalFrom(r.Context()).UserID))
}

type SubmitResultRequest struct {
	Winner      string      `json:"winner"`
	Score       match.Score `json:"score"`
	EvidenceRef string      `json:"evidence_ref"`
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req SubmitResultRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respondMatch(w, r)(s.cfg.Engine.SubmitResult(r.Context(), matches.SubmitCommand{
		MatchID:     matchID(r),
		UserID:      principalFrom(r.Context()).UserID,
		Winner:      shared.UserID(req.Winner),
		Score:       req.Score,
		EvidenceRef: req.EvidenceRef,
	}))
}

type AdjudicateRequest struct {
	Kind   string       `json:"kind"`
	Winner string       `json:"winner"`
	Score  *match.Score `json:"score"`
}

func (s *Server) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	var req AdjudicateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.respondMatch(w, r)(s.cfg.Engine.Adjudicate(r.Context(), matches.AdjudicateCommand{
		MatchID: matchID(r),
		Kind:    match.OutcomeKind(req.Kind),
		Winner:  shared.UserID(req.Winner),
		Score:   req.Score,
	}))
}

func (s *Server) respondMatch(w http.ResponseWriter, r *http.Request) func(*match.Match, error) {
	return func(m *match.Match, err error) {
		if err != nil {
			s.fail(w, r, err, http.StatusUnprocessableEntity)
			return
		}
		s.writeJSON(w, http.StatusOK, toMatchResponse(m))
	}
}

type holdView struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type settlementView struct {
	Kind      string    `json:"kind"`
	Winner    string    `json:"winner,omitempty"`
	Total     int64     `json:"total"`
	SettledAt time.Time `json:"settled_at"`
}

type EscrowResponse struct {
	MatchID    string          `json:"match_id"`
	Holds      []holdView      `json:"holds"`
	Held       int64           `json:"held"`
	Settlement *settlementView `json:"settlement,omitempty"`
}

// handleMatchEscrow shows a match's stakes to its stakeholders and operators.
func (s *Server) handleMatchEscrow(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Escrow.Record(r.Context(), matchID(r))
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	p := principalFrom(r.Context())
	if !p.Admin && !rec.Stakeholder(p.UserID) {
		s.fail(w, r, match.ErrNotParticipant, http.StatusForbidden)
		return
	}
	s.writeJSON(w, http.StatusOK, toEscrowResponse(rec))
}

func toEscrowResponse(rec *escrow.Record) EscrowResponse {
	out := EscrowResponse{MatchID: string(rec.MatchID), Held: int64(rec.HeldTotal())}
	for _, h := range rec.Holds {
		out.Holds = append(out.Holds, holdView{UserID: string(h.UserID), Amount: int64(h.Amount), Status: string(h.Status)})
	}
	if st := rec.Settlement; st != nil {
		out.Settlement = &settlementView{
			Kind:      string(st.Kind),
			Winner:    string(st.Winner),
			Total:     int64(st.Total),
			SettledAt: st.SettledAt,
		}
	}
	return out
}

type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	user := principalFrom(r.Context()).UserID
	b, err := s.cfg.Escrow.Ledger.Balance(r.Context(), user)
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{UserID: string(user), Balance: int64(b)})
}

type CreditRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.cfg.Ledger == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("ledger does not accept credits"))
		return
	}
	user := shared.UserID(req.UserID)
	if err := s.cfg.Ledger.Credit(r.Context(), user, shared.Amount(req.Amount)); err != nil {
		s.fail(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	b, err := s.cfg.Escrow.Ledger.Balance(r.Context(), user)
	if err != nil {
		s.fail(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{UserID: req.UserID, Balance: int64(b)})
}

type ProfileRequest struct {
	DisplayName string `json:"display_name"`
	Rating      int    `json:"rating"`
	AmmoType    string `json:"ammo_type"`
	Suspended   bool   `json:"suspended"`
}

type ProfileResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Rating      int    `json:"rating"`
	AmmoType    string `json:"ammo_type,omitempty"`
	Suspended   bool   `json:"suspended"`
}

// handlePutProfile replaces the profile the engine pairs and seeds the user on.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Profiles == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("profiles are managed by the identity service"))
		return
	}
	var req ProfileRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := player.NewProfile(shared.UserID(mux.Vars(r)["user"]), req.DisplayName, req.Rating, time.Now())
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if req.AmmoType != "" {
		p.Tags[player.TagAmmo] = req.AmmoType
	}
	p.Suspended = req.Suspended
	s.cfg.Profiles.Put(p)
	s.writeJSON(w, http.StatusOK, ProfileResponse{
		UserID:      string(p.ID),
		DisplayName: p.DisplayName,
		Rating:      p.Rating,
		AmmoType:    p.AmmoType(),
		Suspended:   p.Suspended,
	})
}

func page(r *http.Request) (int, int) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
