package api

import (
	"encoding/json"

	"github.com/MJE43/hack-terminal/internal/engine"
	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types
const (
	ErrTypeValidation   = "validation_error"
	ErrTypeUnauthorized = "unauthorized"

	ErrTypeGameNotFound  = "game_not_found"
	ErrTypeNotFound      = "not_found"
	ErrTypeMacroNotFound = "macro_not_found"
	ErrTypeMacroFailed   = "macro_failed"

	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory groups error types for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeUnauthorized:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeNotFound, ErrTypeMacroNotFound, ErrTypeMacroFailed:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// GamesResponse lists the registered minigames
type GamesResponse struct {
	Games         []games.GameSpec `json:"games"`
	EngineVersion string           `json:"engine_version"`
}

// VerifyRequest regenerates an initial board from its seeds
type VerifyRequest struct {
	Game       string       `json:"game"`
	Difficulty int          `json:"difficulty"`
	Seeds      engine.Seeds `json:"seeds"`
	Nonce      uint64       `json:"nonce"`
}

// VerifyResponse carries the regenerated initial state
type VerifyResponse struct {
	Game           games.Kind      `json:"game"`
	ServerSeedHash string          `json:"server_seed_hash"`
	State          json.RawMessage `json:"state"`
	EngineVersion  string          `json:"engine_version"`
	Echo           VerifyRequest   `json:"echo"`
}

// ReplayResponse is an attempt with its initial state regenerated from the
// stored seeds
type ReplayResponse struct {
	Attempt       store.Attempt   `json:"attempt"`
	InitialState  json.RawMessage `json:"initial_state"`
	EngineVersion string          `json:"engine_version"`
}

// MacroRequest optionally names the terminal a macro runs for
type MacroRequest struct {
	Terminal string `json:"terminal,omitempty"`
}

// MacroResponse acknowledges a macro run
type MacroResponse struct {
	Macro    string `json:"macro"`
	Terminal string `json:"terminal,omitempty"`
	Status   string `json:"status"`
}

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	Peers         map[string]int         `json:"peers,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
}
