package games

import (
	"encoding/json"
	"time"
)

// PatternBufferState is the serializable state of a PatternBuffer game.
// Sequence is part of the state so observers can render the display phase.
type PatternBufferState struct {
	SequenceLength int     `json:"sequenceLength"`
	Sequence       []int   `json:"sequence"`
	CurrentStep    int     `json:"currentStep"`
	DisplayStep    int     `json:"displayStep"`
	Status         Status  `json:"status"`
	PlayerSequence []int   `json:"playerSequence"`
	TimeLeft       float64 `json:"timeLeft"`
	MaxTime        float64 `json:"maxTime"`
}

// PatternBuffer is the sequence-memory minigame: watch the pads light up,
// then press them back in order.
type PatternBuffer struct {
	base
	state PatternBufferState
}

func newPatternBuffer(p Params) *PatternBuffer {
	return &PatternBuffer{base: newBase(p)}
}

func (g *PatternBuffer) Kind() Kind { return KindPatternBuffer }

func sequenceLength(difficulty int) int {
	return max(4, 9-floorDiv(difficulty, 15))
}

func (g *PatternBuffer) Init() {
	n := sequenceLength(g.difficulty)
	seq := make([]int, n)
	for i := range seq {
		seq[i] = g.rnd.Intn(4) + 1
	}

	g.state = PatternBufferState{
		SequenceLength: n,
		Sequence:       seq,
		Status:         StatusWaiting,
		PlayerSequence: []int{},
	}
}

// Update counts down the display phase and flips to input when it ends.
func (g *PatternBuffer) Update(dt time.Duration) bool {
	s := &g.state
	if s.Status != StatusDisplaying {
		return false
	}
	s.TimeLeft -= millis(dt)
	if s.TimeLeft <= 0 {
		s.TimeLeft = 0
		s.Status = StatusInput
		return true
	}
	return false
}

func (g *PatternBuffer) HandleAction(a Action) Result {
	s := &g.state
	if s.Status.Terminal() {
		return resultFinished
	}

	switch a.Type {
	case ActionReady:
		if s.Status != StatusWaiting {
			return resultIgnored
		}
		s.Status = StatusDisplaying
		s.TimeLeft = float64(s.SequenceLength * 1000)
		s.MaxTime = s.TimeLeft
		return resultProgress

	case ActionPress:
		if s.Status != StatusInput {
			return resultIgnored
		}
		pad, ok := a.pad()
		if !ok || s.CurrentStep >= len(s.Sequence) {
			return resultIgnored
		}
		if pad != s.Sequence[s.CurrentStep] {
			s.Status = StatusLost
			return g.lost(MsgPatternBufferLost)
		}
		s.CurrentStep++
		s.PlayerSequence = append(s.PlayerSequence, pad)
		if s.CurrentStep >= len(s.Sequence) {
			s.Status = StatusWon
			return g.won(MsgPatternBufferWon)
		}
		return resultProgress

	default:
		return resultIgnored
	}
}

func (g *PatternBuffer) Restore(raw json.RawMessage) error { return restoreInto(&g.state, raw) }

func (g *PatternBuffer) Snapshot() (json.RawMessage, error) { return json.Marshal(g.state) }

func (g *PatternBuffer) State() any     { return g.state }
func (g *PatternBuffer) Status() Status { return g.state.Status }
func (g *PatternBuffer) IsWon() bool    { return g.state.Status == StatusWon }
func (g *PatternBuffer) IsLost() bool   { return g.state.Status == StatusLost }
