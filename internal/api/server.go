// Package api serves the terminal server's HTTP surface: health, minigame
// metadata, board verification, attempt history, GM macros and the
// websocket sync endpoint.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/store"
	"github.com/MJE43/hack-terminal/internal/syncbus"
)

const (
	requestTimeout = 30 * time.Second
	gmTokenHeader  = "X-GM-Token"
)

// MacroExecutor runs a GM macro on behalf of a terminal.
type MacroExecutor interface {
	ExecuteFor(ctx context.Context, terminal, name string) error
}

// Options are the collaborators of a Server. Hub and Macros may be nil, in
// which case their endpoints answer 503.
type Options struct {
	DB       store.DB
	Registry *games.Registry
	Hub      *syncbus.Hub
	Macros   MacroExecutor
	GMToken  string
	Logger   *slog.Logger
}

// Server handles HTTP requests
type Server struct {
	db        store.DB
	reg       *games.Registry
	hub       *syncbus.Hub
	macros    MacroExecutor
	gmToken   string
	logger    *slog.Logger
	startTime time.Time
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = games.NewRegistry(games.WithLogger(opts.Logger))
	}
	return &Server{
		db:        opts.DB,
		reg:       opts.Registry,
		hub:       opts.Hub,
		macros:    opts.Macros,
		gmToken:   opts.GMToken,
		logger:    opts.Logger,
		startTime: time.Now(),
	}
}

// Routes sets up the HTTP routes with middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealth)

	// Websockets outlive the request timeout.
	r.Get("/ws/{terminalID}", s.handleWebsocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/games", s.handleListGames)
		r.Post("/verify", s.handleVerify)
		r.Get("/terminals/{terminalID}/snapshot", s.handleGetSnapshot)
		r.Get("/terminals/{terminalID}/attempts", s.handleListAttempts)
		r.Get("/attempts/{attemptID}", s.handleGetAttempt)
		r.Get("/attempts/{attemptID}/replay", s.handleReplayAttempt)
		r.With(s.RequireGM).Post("/macros/{name}/execute", s.handleExecuteMacro)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("response_encode_failed", "err", err)
	}
}
