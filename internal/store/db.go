package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a snapshot or attempt does not exist.
var ErrNotFound = errors.New("store: not found")

// DB represents the database interface
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	// SaveSnapshot stores snap unless a snapshot with an equal or higher
	// sequence is already stored. It reports whether snap was written.
	SaveSnapshot(ctx context.Context, snap *TerminalSnapshot) (bool, error)
	GetSnapshot(ctx context.Context, terminalID string) (*TerminalSnapshot, error)
	StartAttempt(ctx context.Context, a *Attempt) error
	FinishAttempt(ctx context.Context, id string, res AttemptResult) error
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	ListAttempts(ctx context.Context, query AttemptsQuery) (*AttemptsPage, error)
}

// Attempt statuses.
const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// TerminalSnapshot is the last accepted state of a terminal.
type TerminalSnapshot struct {
	TerminalID   string          `json:"terminal_id" db:"terminal_id"`
	Sequence     uint64          `json:"sequence" db:"sequence"`
	ControllerID string          `json:"controller_id" db:"controller_id"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Attempt is one hacking attempt and the seeds its board came from.
type Attempt struct {
	ID             string          `json:"id" db:"id"`
	TerminalID     string          `json:"terminal_id" db:"terminal_id"`
	Game           string          `json:"game" db:"game"`
	Score          int             `json:"score" db:"score"`
	ParticipantID  string          `json:"participant_id" db:"participant_id"`
	ServerSeed     string          `json:"server_seed" db:"server_seed"`
	ServerSeedHash string          `json:"server_seed_hash" db:"server_seed_hash"`
	ClientSeed     string          `json:"client_seed" db:"client_seed"`
	Nonce          uint64          `json:"nonce" db:"nonce"`
	Status         string          `json:"status" db:"status"`
	Result         string          `json:"result,omitempty" db:"result"`
	Message        string          `json:"message,omitempty" db:"message"`
	StartedAt      time.Time       `json:"started_at" db:"started_at"`
	EndedAt        *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
	FinalState     json.RawMessage `json:"final_state,omitempty" db:"final_state"`
}

// AttemptResult closes an attempt.
type AttemptResult struct {
	Result     string
	Message    string
	FinalState json.RawMessage
	EndedAt    time.Time
}

// AttemptsQuery represents query parameters for listing attempts
type AttemptsQuery struct {
	TerminalID string `json:"terminal_id,omitempty"`
	Game       string `json:"game,omitempty"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
}

// AttemptsPage represents a paginated attempts response
type AttemptsPage struct {
	Attempts   []Attempt `json:"attempts"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}
