package games

import (
	"encoding/json"
	"time"

	"github.com/MJE43/hack-terminal/internal/engine"
)

// Engine is the lifecycle every hacking minigame implements.
//
// Engines are single-threaded: callers serialize Update, HandleAction and
// Restore themselves.
type Engine interface {
	// Kind returns the registry identifier.
	Kind() Kind
	// Difficulty returns the score the engine was created with.
	Difficulty() int
	// Init generates a fresh, solvable state.
	Init()
	// Update advances time-based fields. It reports whether the change must
	// be broadcast; per-tick cosmetic changes return false.
	Update(dt time.Duration) bool
	// HandleAction consumes one player input.
	HandleAction(a Action) Result
	// Restore replaces the state wholesale from a snapshot.
	Restore(raw json.RawMessage) error
	// Snapshot serializes the current state.
	Snapshot() (json.RawMessage, error)
	// State returns the typed state value. Treat it as read-only.
	State() any
	// Status returns the current phase.
	Status() Status
	// IsWon reports whether the game ended in a win.
	IsWon() bool
	// IsLost reports whether the game ended in a loss.
	IsLost() bool
}

// Status is a game state's phase.
type Status string

const (
	StatusActive     Status = "active"
	StatusWaiting    Status = "waiting"
	StatusDisplaying Status = "displaying"
	StatusInput      Status = "input"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
)

// Terminal reports whether s is won or lost.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Result is returned by every state-changing action.
type Result struct {
	Success  bool   `json:"success"`
	Complete bool   `json:"complete"`
	Message  string `json:"message,omitempty"`
}

var (
	// resultFinished answers any action after the game ended.
	resultFinished = Result{Success: false, Complete: true}
	// resultIgnored answers unrecognized or invalid actions.
	resultIgnored  = Result{Success: false, Complete: false}
	resultProgress = Result{Success: true, Complete: false}
)

// Params carries everything a constructor needs.
type Params struct {
	Difficulty int
	Host       Host
	Rand       engine.Rand
	Now        func() time.Time
}

// base holds the fields shared by all minigames.
type base struct {
	difficulty int
	host       Host
	rnd        engine.Rand
	now        func() time.Time
}

func newBase(p Params) base {
	b := base{
		difficulty: p.Difficulty,
		host:       p.Host,
		rnd:        p.Rand,
		now:        p.Now,
	}
	if b.host == nil {
		b.host = DefaultCatalog
	}
	if b.rnd == nil {
		b.rnd = engine.NewSource(engine.NewSeeds(), 0)
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *base) Difficulty() int { return b.difficulty }

// Update is a no-op for engines without a time component.
func (b *base) Update(time.Duration) bool { return false }

func (b *base) localize(key string) string {
	return b.host.Localize(key)
}

func (b *base) won(key string) Result {
	return Result{Success: true, Complete: true, Message: b.localize(key)}
}

func (b *base) lost(key string) Result {
	return Result{Success: false, Complete: true, Message: b.localize(key)}
}

func (b *base) failed(key string) Result {
	return Result{Success: false, Complete: false, Message: b.localize(key)}
}

// millis converts a tick duration to the fractional milliseconds stored in state.
func millis(dt time.Duration) float64 {
	return float64(dt) / float64(time.Millisecond)
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// restoreInto decodes raw into a fresh value and only swaps it in on success.
func restoreInto[T any](dst *T, raw json.RawMessage) error {
	var next T
	if err := json.Unmarshal(raw, &next); err != nil {
		return err
	}
	*dst = next
	return nil
}
