package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appescrow "github.com/sandai/arena/src/app/escrow"
	"github.com/sandai/arena/src/app/matches"
	"github.com/sandai/arena/src/app/tournaments"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
)

// Creditor funds accounts on operator request.
type Creditor interface {
	Credit(ctx context.Context, user shared.UserID, amount shared.Amount) error
}

// ProfileStore accepts operator edits to player profiles.
type ProfileStore interface {
	Put(p *player.Profile)
}

type ServerConfig struct {
	Logger         *zap.Logger
	Auth           *Authenticator
	Engine         *matches.Engine
	Escrow         *appescrow.Service
	Tournaments    *tournaments.Service
	Ledger         Creditor
	Profiles       ProfileStore
	Registry       *prometheus.Registry
	AllowedOrigins []string
}

// Server wires HTTP endpoints to application services with observability instrumentation.
type Server struct {
	cfg            ServerConfig
	router         *mux.Router
	handler        http.Handler
	httpMetrics    *prometheus.HistogramVec
	requestCounter *prometheus.CounterVec
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	srv := &Server{cfg: cfg}
	srv.initMetrics()
	srv.buildRouter()
	return srv
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) initMetrics() {
	s.httpMetrics = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sandai",
		Subsystem: "http",
		Name:      "request_latency_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
	s.requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sandai",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by route",
	}, []string{"route", "method", "code"})
	s.cfg.Registry.MustRegister(s.httpMetrics, s.requestCounter)
}

func (s *Server) buildRouter() {
	r := mux.NewRouter()
	r.Use(s.correlationMiddleware)
	r.Use(s.observeMiddleware)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/matches", s.handleRequestMatch).Methods(http.MethodPost)
	api.HandleFunc("/matches", s.handleMatchHistory).Methods(http.MethodGet)
	api.HandleFunc("/matches/{id}", s.handleGetMatch).Methods(http.MethodGet)
	api.HandleFunc("/matches/{id}/await", s.handleAwaitMatch).Methods(http.MethodGet)
	api.HandleFunc("/matches/{id}/start", s.handleStartMatch).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/end", s.handleSignalEnd).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/result", s.handleSubmitResult).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/forfeit", s.handleForfeit).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/cancel", s.handleCancelSearch).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/adjudicate", s.admin(s.handleAdjudicate)).Methods(http.MethodPost)
	api.HandleFunc("/matches/{id}/escrow", s.handleMatchEscrow).Methods(http.MethodGet)
	api.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	api.HandleFunc("/admin/credit", s.admin(s.handleCredit)).Methods(http.MethodPost)
	api.HandleFunc("/admin/profiles/{user}", s.admin(s.handlePutProfile)).Methods(http.MethodPut)

	api.HandleFunc("/tournaments", s.admin(s.handleCreateTournament)).Methods(http.MethodPost)
	api.HandleFunc("/tournaments", s.handleListTournaments).Methods(http.MethodGet)
	api.HandleFunc("/tournaments/{id}", s.handleGetTournament).Methods(http.MethodGet)
	api.HandleFunc("/tournaments/{id}/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/tournaments/{id}/register", s.handleWithdraw).Methods(http.MethodDelete)
	api.HandleFunc("/tournaments/{id}/close", s.admin(s.handleCloseRegistration)).Methods(http.MethodPost)
	api.HandleFunc("/tournaments/{id}/cancel", s.admin(s.handleCancelTournament)).Methods(http.MethodPost)
	api.HandleFunc("/tournaments/{id}/bracket", s.handleBracket).Methods(http.MethodGet)
	api.HandleFunc("/tournaments/{id}/standings", s.handleStandings).Methods(http.MethodGet)
	api.HandleFunc("/tournaments/{id}/slots/{phase}/{round:[0-9]+}/{slot:[0-9]+}/replay", s.admin(s.handleReplaySlot)).Methods(http.MethodPost)
	api.HandleFunc("/tournaments/{id}/slots/{phase}/{round:[0-9]+}/{slot:[0-9]+}/award", s.admin(s.handleAwardSlot)).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.router = r

	var h http.Handler = r
	if len(s.cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-Id"}),
		)(h)
	}
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.cfg.Logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
}

type recoveryLogger struct{ logger *zap.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("handler panic", zap.Any("panic", v))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// fail maps a service error to its status. Errors without a known kind
// answer with fallback.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	status, kind := statusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		s.cfg.Logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", correlationIDFromContext(r.Context())),
			zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
