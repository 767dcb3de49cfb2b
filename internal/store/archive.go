package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/MJE43/hack-terminal/internal/syncbus"
)

// Archive persists hub snapshots and derives the attempt history from them.
// It implements syncbus.SnapshotSink.
type Archive struct {
	db     DB
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]attemptMark // by terminal
}

type attemptMark struct {
	id       string
	finished bool
}

func NewArchive(db DB, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger, seen: make(map[string]attemptMark)}
}

// SaveSnapshot implements syncbus.SnapshotSink.
func (a *Archive) SaveSnapshot(ctx context.Context, s syncbus.Snapshot) error {
	saved, err := a.db.SaveSnapshot(ctx, &TerminalSnapshot{
		TerminalID:   s.Terminal,
		Sequence:     s.Sequence,
		ControllerID: s.Controller,
		Payload:      s.Payload,
		UpdatedAt:    s.UpdatedAt,
	})
	if err != nil {
		return err
	}
	if !saved {
		return nil
	}
	return a.record(ctx, s)
}

// LoadSnapshot implements syncbus.SnapshotSink.
func (a *Archive) LoadSnapshot(ctx context.Context, terminal string) (*syncbus.Snapshot, error) {
	snap, err := a.db.GetSnapshot(ctx, terminal)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &syncbus.Snapshot{
		Terminal:   snap.TerminalID,
		Sequence:   snap.Sequence,
		Controller: snap.ControllerID,
		Payload:    snap.Payload,
		UpdatedAt:  snap.UpdatedAt,
	}, nil
}

// record starts the attempt a snapshot carries the first time it is seen and
// finishes it once the snapshot shows a result.
func (a *Archive) record(ctx context.Context, s syncbus.Snapshot) error {
	state := gjson.ParseBytes(s.Payload)
	id := state.Get("attempt.id").String()
	game := state.Get("hackingType").String()
	if id == "" || game == "" {
		return nil
	}
	result := state.Get("hackingResult").String()

	a.mu.Lock()
	mark := a.seen[s.Terminal]
	a.mu.Unlock()
	if mark.id == id && (mark.finished || result == "") {
		return nil
	}

	if mark.id != id {
		err := a.db.StartAttempt(ctx, &Attempt{
			ID:             id,
			TerminalID:     s.Terminal,
			Game:           game,
			Score:          int(state.Get("hackingScore").Int()),
			ParticipantID:  state.Get("controllerId").String(),
			ServerSeed:     state.Get("attempt.seeds.server").String(),
			ServerSeedHash: state.Get("attempt.serverSeedHash").String(),
			ClientSeed:     state.Get("attempt.seeds.client").String(),
			Nonce:          state.Get("attempt.nonce").Uint(),
			StartedAt:      s.UpdatedAt,
		})
		if err != nil {
			return err
		}
		a.logger.Info("attempt_recorded", "terminal_id", s.Terminal, "attempt_id", id, "game", game)
	}

	finished := result != ""
	if finished {
		err := a.db.FinishAttempt(ctx, id, AttemptResult{
			Result:     result,
			Message:    state.Get("hackingMessage").String(),
			FinalState: []byte(state.Get("hackingState").Raw),
			EndedAt:    s.UpdatedAt,
		})
		if err != nil {
			return err
		}
		a.logger.Info("attempt_finished", "terminal_id", s.Terminal, "attempt_id", id, "result", result)
	}

	a.mu.Lock()
	a.seen[s.Terminal] = attemptMark{id: id, finished: finished}
	a.mu.Unlock()
	return nil
}
