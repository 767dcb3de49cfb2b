package games

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MJE43/hack-terminal/internal/engine"
)

// Kind identifies a minigame.
type Kind string

const (
	KindWordGuess       Kind = "word-guess"
	KindSignalInjection Kind = "signal-injection"
	KindDataStream      Kind = "data-stream"
	KindNodeOverload    Kind = "node-overload"
	KindBruteForce      Kind = "brute-force"
	KindPatternBuffer   Kind = "pattern-buffer"
)

// kinds is the stable enumeration order.
var kinds = []Kind{
	KindWordGuess,
	KindSignalInjection,
	KindDataStream,
	KindNodeOverload,
	KindBruteForce,
	KindPatternBuffer,
}

// ErrUnknownKind is returned by Restore for an unregistered kind.
var ErrUnknownKind = errors.New("games: unknown kind")

// ParseKind maps a wire identifier to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// GameSpec describes a registered minigame.
type GameSpec struct {
	ID      Kind         `json:"id"`
	Name    string       `json:"name"`
	Actions []ActionType `json:"actions"`
}

var specs = map[Kind]GameSpec{
	KindWordGuess:       {ID: KindWordGuess, Name: "Word Guess", Actions: []ActionType{ActionGuess}},
	KindSignalInjection: {ID: KindSignalInjection, Name: "Signal Injection", Actions: []ActionType{ActionInject}},
	KindDataStream:      {ID: KindDataStream, Name: "Data Stream", Actions: []ActionType{ActionRotate}},
	KindNodeOverload:    {ID: KindNodeOverload, Name: "Node Overload", Actions: []ActionType{ActionReveal}},
	KindBruteForce:      {ID: KindBruteForce, Name: "Brute Force", Actions: []ActionType{ActionText, ActionTimeout}},
	KindPatternBuffer:   {ID: KindPatternBuffer, Name: "Pattern Buffer", Actions: []ActionType{ActionReady, ActionPress}},
}

// newEngine is the per-kind factory.
func newEngine(k Kind, p Params) (Engine, bool) {
	switch k {
	case KindWordGuess:
		return newWordGuess(p), true
	case KindSignalInjection:
		return newSignalInjection(p), true
	case KindDataStream:
		return newDataStream(p), true
	case KindNodeOverload:
		return newNodeOverload(p), true
	case KindBruteForce:
		return newBruteForce(p), true
	case KindPatternBuffer:
		return newPatternBuffer(p), true
	default:
		return nil, false
	}
}

// Registry creates and restores engines.
type Registry struct {
	logger *slog.Logger
	rand   func() engine.Rand
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithRand sets the random source factory used by Create.
func WithRand(fn func() engine.Rand) Option {
	return func(r *Registry) { r.rand = fn }
}

// WithClock sets the clock handed to engines.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns a Registry. Without options it logs to slog.Default and
// draws each game from freshly generated seeds.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger: slog.Default(),
		rand: func() engine.Rand {
			return engine.NewSource(engine.NewSeeds(), 0)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Types returns every registered kind in a stable order.
func (r *Registry) Types() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Specs returns the metadata of every registered kind, in Types order.
func (r *Registry) Specs() []GameSpec {
	out := make([]GameSpec, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, specs[k])
	}
	return out
}

// Create builds and initializes a game. Unknown kinds fall back to WordGuess.
func (r *Registry) Create(k Kind, difficulty int, host Host) Engine {
	return r.create(k, Params{Difficulty: difficulty, Host: host, Rand: r.rand(), Now: r.now})
}

// CreateSeeded is Create with a reproducible random source, so the initial
// state can be regenerated from the same seeds and nonce.
func (r *Registry) CreateSeeded(k Kind, difficulty int, host Host, seeds engine.Seeds, nonce uint64) Engine {
	return r.create(k, Params{Difficulty: difficulty, Host: host, Rand: engine.NewSource(seeds, nonce), Now: r.now})
}

func (r *Registry) create(k Kind, p Params) Engine {
	g, ok := newEngine(k, p)
	if !ok {
		r.logger.Warn("unknown_game_kind", "game", string(k), "fallback", string(KindWordGuess))
		g, _ = newEngine(KindWordGuess, p)
	}
	g.Init()
	return g
}

// Restore rebuilds an engine from a snapshot without generating a new board.
func (r *Registry) Restore(k Kind, raw json.RawMessage, host Host) (Engine, error) {
	g, ok := newEngine(k, Params{Host: host, Rand: r.rand(), Now: r.now})
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	if err := g.Restore(raw); err != nil {
		return nil, fmt.Errorf("games: restore %s: %w", k, err)
	}
	return g, nil
}
