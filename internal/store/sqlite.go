package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultPerPage  = 50
	maxWriteRetries = 5
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// WAL lets the API read while the hub writes snapshots.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=2000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded migrations that have not run yet.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("store: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// isBusy reports whether err is SQLite refusing a write because another
// connection holds the lock.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// exec runs a write statement, retrying while the database is busy.
func (s *SQLiteDB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	backoff := retry.WithMaxRetries(maxWriteRetries, retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if isBusy(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		res = r
		return nil
	})
	return res, err
}

// SaveSnapshot upserts a terminal snapshot if its sequence is newer.
func (s *SQLiteDB) SaveSnapshot(ctx context.Context, snap *TerminalSnapshot) (bool, error) {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	query := `INSERT INTO terminal_snapshots (terminal_id, sequence, controller_id, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(terminal_id) DO UPDATE SET
			sequence = excluded.sequence,
			controller_id = excluded.controller_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at
		WHERE excluded.sequence > terminal_snapshots.sequence`

	res, err := s.exec(ctx, query,
		snap.TerminalID, int64(snap.Sequence), snap.ControllerID, string(snap.Payload), snap.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("store: save snapshot %s: %w", snap.TerminalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: save snapshot %s: %w", snap.TerminalID, err)
	}
	return n > 0, nil
}

// GetSnapshot returns the stored snapshot of a terminal.
func (s *SQLiteDB) GetSnapshot(ctx context.Context, terminalID string) (*TerminalSnapshot, error) {
	query := `SELECT terminal_id, sequence, controller_id, payload, updated_at
		FROM terminal_snapshots WHERE terminal_id = ?`

	var snap TerminalSnapshot
	var seq int64
	var payload string
	err := s.db.QueryRowContext(ctx, query, terminalID).Scan(
		&snap.TerminalID, &seq, &snap.ControllerID, &payload, &snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get snapshot %s: %w", terminalID, err)
	}

	snap.Sequence = uint64(seq)
	snap.Payload = []byte(payload)
	return &snap, nil
}

// StartAttempt records a new attempt. Recording the same ID twice is a no-op.
func (s *SQLiteDB) StartAttempt(ctx context.Context, a *Attempt) error {
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}

	query := `INSERT OR IGNORE INTO attempts (
		id, terminal_id, game, score, participant_id, server_seed, server_seed_hash,
		client_seed, nonce, status, started_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		a.ID, a.TerminalID, a.Game, a.Score, a.ParticipantID, a.ServerSeed, a.ServerSeedHash,
		a.ClientSeed, int64(a.Nonce), a.Status, a.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("store: start attempt %s: %w", a.ID, err)
	}
	return nil
}

// FinishAttempt closes an active attempt. Finishing an attempt twice keeps
// the first result.
func (s *SQLiteDB) FinishAttempt(ctx context.Context, id string, res AttemptResult) error {
	if res.EndedAt.IsZero() {
		res.EndedAt = time.Now().UTC()
	}

	var finalState sql.NullString
	if len(res.FinalState) > 0 {
		finalState = sql.NullString{String: string(res.FinalState), Valid: true}
	}

	query := `UPDATE attempts SET status = ?, result = ?, message = ?, ended_at = ?, final_state = ?
		WHERE id = ? AND status = ?`

	r, err := s.exec(ctx, query,
		StatusFinished, res.Result, res.Message, res.EndedAt, finalState, id, StatusActive,
	)
	if err != nil {
		return fmt.Errorf("store: finish attempt %s: %w", id, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: finish attempt %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: finish attempt %s: %w", id, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

const attemptColumns = `id, terminal_id, game, score, participant_id, server_seed, server_seed_hash,
	client_seed, nonce, status, result, message, started_at, ended_at, final_state`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	var nonce int64
	var endedAt sql.NullTime
	var finalState sql.NullString

	err := row.Scan(
		&a.ID, &a.TerminalID, &a.Game, &a.Score, &a.ParticipantID, &a.ServerSeed, &a.ServerSeedHash,
		&a.ClientSeed, &nonce, &a.Status, &a.Result, &a.Message, &a.StartedAt, &endedAt, &finalState,
	)
	if err != nil {
		return nil, err
	}

	a.Nonce = uint64(nonce)
	if endedAt.Valid {
		t := endedAt.Time
		a.EndedAt = &t
	}
	if finalState.Valid {
		a.FinalState = []byte(finalState.String)
	}
	return &a, nil
}

// GetAttempt retrieves an attempt by ID
func (s *SQLiteDB) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = ?`

	a, err := scanAttempt(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get attempt %s: %w", id, err)
	}
	return a, nil
}

// ListAttempts retrieves attempts newest first with pagination and filtering
func (s *SQLiteDB) ListAttempts(ctx context.Context, query AttemptsQuery) (*AttemptsPage, error) {
	whereClause := "WHERE 1 = 1"
	args := []any{}

	if query.TerminalID != "" {
		whereClause += " AND terminal_id = ?"
		args = append(args, query.TerminalID)
	}
	if query.Game != "" {
		whereClause += " AND game = ?"
		args = append(args, query.Game)
	}

	var totalCount int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts "+whereClause, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("store: count attempts: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = defaultPerPage
	}
	if query.Page <= 0 {
		query.Page = 1
	}

	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	mainQuery := `SELECT ` + attemptColumns + ` FROM attempts ` + whereClause + `
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, offset)

	rows, err := s.db.QueryContext(ctx, mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate attempts: %w", err)
	}

	return &AttemptsPage{
		Attempts:   attempts,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}
