package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/hack-terminal/internal/auth"
	"github.com/MJE43/hack-terminal/internal/engine"
	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/macro"
	"github.com/MJE43/hack-terminal/internal/store"
)

const maxPerPage = 500

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthCheck{}
	status := HealthStatusHealthy

	if s.db != nil {
		start := time.Now()
		check := HealthCheck{Status: HealthStatusHealthy}
		if err := s.db.Ping(r.Context()); err != nil {
			check.Status = HealthStatusUnhealthy
			check.Message = err.Error()
			status = HealthStatusUnhealthy
		}
		check.Duration = time.Since(start).String()
		checks["database"] = check
	}

	resp := HealthResponse{
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		Uptime:        time.Since(s.startTime).Truncate(time.Second).String(),
		Checks:        checks,
		RequestID:     middleware.GetReqID(r.Context()),
	}
	if s.hub != nil {
		resp.Peers = s.hub.Peers()
	}

	code := http.StatusOK
	if status != HealthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         s.reg.Specs(),
		EngineVersion: EngineVersion,
	})
}

// handleVerify regenerates the initial board a set of seeds produces, so a
// player can check an attempt against the revealed server seed.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid JSON format", map[string]any{
			"error": err.Error(),
		})
		return
	}

	kind, err := ValidateVerifyRequest(&req, s.reg)
	if err != nil {
		s.handleError(w, r, err, nil)
		return
	}

	state, err := s.reg.CreateSeeded(kind, req.Difficulty, nil, req.Seeds, req.Nonce).Snapshot()
	if err != nil {
		s.handleError(w, r, err, map[string]any{"game": req.Game})
		return
	}

	s.logger.Info("verify_completed",
		"game", req.Game,
		"difficulty", req.Difficulty,
		"server_hash", engine.HashSeed(req.Seeds.Server),
		"nonce", req.Nonce,
	)

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Game:           kind,
		ServerSeedHash: engine.HashSeed(req.Seeds.Server),
		State:          state,
		EngineVersion:  EngineVersion,
		Echo:           req,
	})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")
	snap, err := s.db.GetSnapshot(r.Context(), terminalID)
	if err != nil {
		s.handleError(w, r, err, map[string]any{"terminal": terminalID})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.AttemptsQuery{
		TerminalID: chi.URLParam(r, "terminalID"),
		Game:       q.Get("game"),
	}

	var err error
	if query.Page, err = intParam(q.Get("page")); err != nil {
		s.handleError(w, r, validationError("page", err), nil)
		return
	}
	if query.PerPage, err = intParam(q.Get("per_page")); err != nil {
		s.handleError(w, r, validationError("per_page", err), nil)
		return
	}
	if query.PerPage > maxPerPage {
		query.PerPage = maxPerPage
	}

	page, err := s.db.ListAttempts(r.Context(), query)
	if err != nil {
		s.handleError(w, r, err, map[string]any{"terminal": query.TerminalID})
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "attemptID")
	a, err := s.db.GetAttempt(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err, map[string]any{"attempt": id})
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

// handleReplayAttempt regenerates an attempt's initial board from the seeds
// stored with it.
func (s *Server) handleReplayAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "attemptID")
	a, err := s.db.GetAttempt(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err, map[string]any{"attempt": id})
		return
	}

	kind, ok := games.ParseKind(a.Game)
	if !ok {
		s.handleError(w, r, fmt.Errorf("%w: %q", games.ErrUnknownKind, a.Game), map[string]any{"attempt": id})
		return
	}

	seeds := engine.Seeds{Server: a.ServerSeed, Client: a.ClientSeed}
	state, err := s.reg.CreateSeeded(kind, a.Score, nil, seeds, a.Nonce).Snapshot()
	if err != nil {
		s.handleError(w, r, err, map[string]any{"attempt": id})
		return
	}

	s.writeJSON(w, http.StatusOK, ReplayResponse{
		Attempt:       *a,
		InitialState:  state,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleExecuteMacro(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.macros == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrTypeServiceUnavailable, "macros are not enabled", nil)
		return
	}

	var req MacroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "invalid JSON format", map[string]any{
			"error": err.Error(),
		})
		return
	}

	err := s.macros.ExecuteFor(r.Context(), req.Terminal, name)
	switch {
	case err == nil:
	case errors.Is(err, macro.ErrUnknownMacro), errors.Is(err, context.DeadlineExceeded):
		s.handleError(w, r, err, map[string]any{"macro": name})
		return
	default:
		s.writeError(w, r, http.StatusUnprocessableEntity, ErrTypeMacroFailed, err.Error(), map[string]any{"macro": name})
		return
	}

	s.writeJSON(w, http.StatusOK, MacroResponse{Macro: name, Terminal: req.Terminal, Status: "executed"})
}

// handleWebsocket joins the caller to a terminal's sync room. A caller that
// presents the GM token joins as a privileged participant.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "participant is required", nil)
		return
	}
	if s.hub == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrTypeServiceUnavailable, "sync hub is not running", nil)
		return
	}

	token := r.Header.Get(gmTokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	gm := false
	if token != "" {
		if !auth.Verify(s.gmToken, token) {
			s.writeError(w, r, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid GM token", nil)
			return
		}
		gm = true
	}

	if err := s.hub.Serve(w, r, terminalID, participant, gm); err != nil {
		s.logger.Warn("websocket_failed", "terminal_id", terminalID, "participant_id", participant, "err", err)
	}
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must be >= 0")
	}
	return n, nil
}
