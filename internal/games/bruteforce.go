package games

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	bruteForceAlphabet = "ABCDEF0123456789"
	bruteForceLength   = 8
)

// BruteForceState is the serializable state of a BruteForce game. Times are
// milliseconds; StartTime is unix milliseconds and purely informational.
type BruteForceState struct {
	Target    string  `json:"target"`
	Input     string  `json:"input"`
	TimeLeft  float64 `json:"timeLeft"`
	MaxTime   float64 `json:"maxTime"`
	StartTime int64   `json:"startTime"`
	Status    Status  `json:"status"`
}

// BruteForce is the timed exact-match minigame: type the code before the
// clock runs out.
type BruteForce struct {
	base
	state BruteForceState
}

func newBruteForce(p Params) *BruteForce {
	return &BruteForce{base: newBase(p)}
}

func (g *BruteForce) Kind() Kind { return KindBruteForce }

func (g *BruteForce) Init() {
	var b strings.Builder
	for i := 0; i < bruteForceLength; i++ {
		b.WriteByte(bruteForceAlphabet[g.rnd.Intn(len(bruteForceAlphabet))])
	}

	budget := float64(5000 + g.difficulty*150)
	g.state = BruteForceState{
		Target:    b.String(),
		TimeLeft:  budget,
		MaxTime:   budget,
		StartTime: g.now().UnixMilli(),
		Status:    StatusActive,
	}
}

// Update runs the countdown. Expiry is a real transition and reports true.
func (g *BruteForce) Update(dt time.Duration) bool {
	s := &g.state
	if s.Status != StatusActive {
		return false
	}
	s.TimeLeft -= millis(dt)
	if s.TimeLeft <= 0 {
		s.TimeLeft = 0
		s.Status = StatusLost
		return true
	}
	return false
}

func (g *BruteForce) HandleAction(a Action) Result {
	s := &g.state
	if s.Status != StatusActive {
		return resultFinished
	}

	switch a.Type {
	case ActionText:
		s.Input = a.Value
		if s.Input == s.Target {
			s.Status = StatusWon
			return g.won(MsgBruteForceWon)
		}
		if strings.HasPrefix(s.Target, s.Input) {
			return resultProgress
		}
		return resultIgnored
	case ActionTimeout:
		s.Status = StatusLost
		return g.lost(MsgBruteForceLost)
	default:
		return resultIgnored
	}
}

func (g *BruteForce) Restore(raw json.RawMessage) error { return restoreInto(&g.state, raw) }

func (g *BruteForce) Snapshot() (json.RawMessage, error) { return json.Marshal(g.state) }

func (g *BruteForce) State() any     { return g.state }
func (g *BruteForce) Status() Status { return g.state.Status }
func (g *BruteForce) IsWon() bool    { return g.state.Status == StatusWon }
func (g *BruteForce) IsLost() bool   { return g.state.Status == StatusLost }
