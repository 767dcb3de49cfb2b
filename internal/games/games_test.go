package games

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/hack-terminal/internal/engine"
)

// zeroRand always draws the first option.
type zeroRand struct{}

func (zeroRand) Float64() float64 { return 0 }
func (zeroRand) Intn(int) int     { return 0 }

var fixedClock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

func testRegistry() *Registry {
	return NewRegistry(WithClock(fixedClock))
}

func testSeeds(i int) engine.Seeds {
	return engine.Seeds{Server: "terminal-server-seed", Client: "client-" + string(rune('a'+i%26))}
}

func TestRestoreRoundTrip(t *testing.T) {
	reg := testRegistry()
	for _, k := range reg.Types() {
		t.Run(string(k), func(t *testing.T) {
			for d := 0; d <= 100; d += 25 {
				g := reg.CreateSeeded(k, d, nil, testSeeds(d), uint64(d))
				raw, err := g.Snapshot()
				require.NoError(t, err)

				restored, err := reg.Restore(k, raw, nil)
				require.NoError(t, err)
				assert.Equal(t, g.State(), restored.State())
				assert.Equal(t, k, restored.Kind())
				assert.Equal(t, 0, restored.Difficulty())
			}
		})
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	reg := testRegistry()
	g := reg.Create(KindWordGuess, 40, nil)
	before := g.State()

	require.Error(t, g.Restore(json.RawMessage(`{"words":`)))
	assert.Equal(t, before, g.State())
}

func TestIdempotentAfterCompletion(t *testing.T) {
	reg := testRegistry()
	actions := []Action{Guess("SYSTEM"), Inject(), Rotate(1, 1), Reveal(0, 0), Type("AAAA"), Timeout(), Ready(), Press(1)}

	for _, k := range reg.Types() {
		t.Run(string(k), func(t *testing.T) {
			g := reg.CreateSeeded(k, 30, nil, testSeeds(3), 7)
			forceTerminal(t, reg, g)
			require.True(t, g.Status().Terminal())

			before, err := g.Snapshot()
			require.NoError(t, err)
			for _, a := range actions {
				assert.Equal(t, Result{Success: false, Complete: true}, g.HandleAction(a))
			}
			after, err := g.Snapshot()
			require.NoError(t, err)
			assert.JSONEq(t, string(before), string(after))
		})
	}
}

// forceTerminal rewrites the status field of g's snapshot to lost.
func forceTerminal(t *testing.T, reg *Registry, g Engine) {
	t.Helper()
	raw, err := g.Snapshot()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	m["status"] = string(StatusLost)
	raw, err = json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, g.Restore(raw))
	assert.True(t, g.IsLost())
	assert.False(t, g.IsWon())
}

func TestUnknownActionIgnored(t *testing.T) {
	reg := testRegistry()
	for _, k := range reg.Types() {
		g := reg.Create(k, 30, nil)
		res := g.HandleAction(Action{Type: "dance"})
		assert.Equal(t, Result{}, res, string(k))
	}
}

func TestSeededCreateIsReproducible(t *testing.T) {
	reg := testRegistry()
	for _, k := range reg.Types() {
		a, err := reg.CreateSeeded(k, 45, nil, testSeeds(1), 3).Snapshot()
		require.NoError(t, err)
		b, err := reg.CreateSeeded(k, 45, nil, testSeeds(1), 3).Snapshot()
		require.NoError(t, err)
		assert.JSONEq(t, string(a), string(b), string(k))
	}
}

func TestRegistry(t *testing.T) {
	t.Run("types are stable", func(t *testing.T) {
		reg := testRegistry()
		want := []Kind{KindWordGuess, KindSignalInjection, KindDataStream, KindNodeOverload, KindBruteForce, KindPatternBuffer}
		assert.Equal(t, want, reg.Types())
		assert.Equal(t, want, reg.Types())

		specs := reg.Specs()
		require.Len(t, specs, len(want))
		for i, s := range specs {
			assert.Equal(t, want[i], s.ID)
			assert.NotEmpty(t, s.Name)
			assert.NotEmpty(t, s.Actions)
		}
	})

	t.Run("unknown kind falls back to word guess", func(t *testing.T) {
		var buf bytes.Buffer
		reg := NewRegistry(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

		g := reg.Create("tetris", 40, nil)
		assert.Equal(t, KindWordGuess, g.Kind())
		assert.Equal(t, StatusActive, g.Status())
		assert.Contains(t, buf.String(), "unknown_game_kind")
	})

	t.Run("restore of unknown kind fails", func(t *testing.T) {
		_, err := testRegistry().Restore("tetris", json.RawMessage(`{}`), nil)
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("create uses injected rand", func(t *testing.T) {
		reg := NewRegistry(WithRand(func() engine.Rand { return zeroRand{} }))
		g := reg.Create(KindPatternBuffer, 0, nil)
		assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 1, 1, 1}, g.State().(PatternBufferState).Sequence)
	})

	t.Run("parse kind", func(t *testing.T) {
		k, ok := ParseKind("data-stream")
		assert.True(t, ok)
		assert.Equal(t, KindDataStream, k)

		_, ok = ParseKind("DATA-STREAM")
		assert.False(t, ok)
	})
}

func TestHostLocalizesMessages(t *testing.T) {
	host := Catalog{MsgBruteForceLost: "zeit abgelaufen"}
	g := testRegistry().Create(KindBruteForce, 0, host)

	res := g.HandleAction(Timeout())
	assert.Equal(t, "zeit abgelaufen", res.Message)

	g = testRegistry().Create(KindBruteForce, 0, Catalog{})
	assert.Equal(t, MsgBruteForceLost, g.HandleAction(Timeout()).Message)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Action
		wantErr bool
	}{
		{name: "guess", input: `{"type":"guess","word":"KERNEL"}`, want: Guess("KERNEL")},
		{name: "rotate", input: `{"type":"rotate","x":3,"y":1}`, want: Rotate(3, 1)},
		{name: "numeric press", input: `{"type":"press","value":3}`, want: Press(3)},
		{name: "string press", input: `{"type":"press","value":"2"}`, want: Press(2)},
		{name: "typed value", input: `{"type":"type","value":"AB12"}`, want: Type("AB12")},
		{name: "bare type", input: `{"type":"inject"}`, want: Inject()},
		{name: "missing type", input: `{"word":"KERNEL"}`, wantErr: true},
		{name: "numeric type", input: `{"type":4}`, wantErr: true},
		{name: "array", input: `[1,2]`, wantErr: true},
		{name: "broken", input: `{"type":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
