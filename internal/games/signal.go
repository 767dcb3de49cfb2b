package games

import (
	"encoding/json"
	"math"
	"time"
)

const (
	signalZoneWidth = 8.0
	signalTrack     = 100.0
	signalAttempts  = 3
	// signalUnitsPerSpeed is how many track units per second speed 1.0 covers.
	signalUnitsPerSpeed = 20.0
)

// Zone is the moving target window on the 0–100 track.
type Zone struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Width float64 `json:"width"`
}

// SignalInjectionState is the serializable state of a SignalInjection game.
type SignalInjectionState struct {
	TargetZone     Zone    `json:"targetZone"`
	InjectionPoint float64 `json:"injectionPoint"`
	Attempts       int     `json:"attempts"`
	Status         Status  `json:"status"`
	Speed          float64 `json:"speed"`
	Direction      int     `json:"direction"`
	ZonePos        float64 `json:"zonePos"`
}

// SignalInjection is the pulse-timing minigame: inject while the bouncing
// target zone covers the fixed injection point.
type SignalInjection struct {
	base
	state SignalInjectionState
}

func newSignalInjection(p Params) *SignalInjection {
	return &SignalInjection{base: newBase(p)}
}

func (g *SignalInjection) Kind() Kind { return KindSignalInjection }

// signalSpeed gets slower, and so easier to time, as the score rises.
func signalSpeed(difficulty int) float64 {
	return math.Max(0.5, 4.0-float64(difficulty)/20)
}

func (g *SignalInjection) Init() {
	start := math.Floor(g.rnd.Float64() * (signalTrack - signalZoneWidth))
	point := math.Floor(g.rnd.Float64() * signalTrack)

	g.state = SignalInjectionState{
		TargetZone:     Zone{Start: start, End: start + signalZoneWidth, Width: signalZoneWidth},
		InjectionPoint: point,
		Attempts:       signalAttempts,
		Status:         StatusActive,
		Speed:          signalSpeed(g.difficulty),
		Direction:      1,
		ZonePos:        start,
	}
}

// Update moves the zone and bounces it off either end of the track. The
// movement is cosmetic, so it never asks for a broadcast.
func (g *SignalInjection) Update(dt time.Duration) bool {
	s := &g.state
	if s.Status != StatusActive {
		return false
	}

	move := s.Speed * signalUnitsPerSpeed * millis(dt) / 1000
	s.ZonePos += move * float64(s.Direction)

	width := s.TargetZone.Width
	if s.ZonePos <= 0 {
		s.ZonePos = 0
		s.Direction = 1
	} else if s.ZonePos+width >= signalTrack {
		s.ZonePos = signalTrack - width
		s.Direction = -1
	}

	s.TargetZone.Start = s.ZonePos
	s.TargetZone.End = s.ZonePos + width
	return false
}

func (g *SignalInjection) HandleAction(a Action) Result {
	s := &g.state
	if s.Status != StatusActive {
		return resultFinished
	}
	if a.Type != ActionInject {
		return resultIgnored
	}

	if s.InjectionPoint >= s.TargetZone.Start && s.InjectionPoint <= s.TargetZone.End {
		s.Status = StatusWon
		return g.won(MsgSignalInjectionWon)
	}

	s.Attempts--
	if s.Attempts <= 0 {
		s.Status = StatusLost
		return g.lost(MsgSignalInjectionLost)
	}
	return g.failed(MsgSignalInjectionMissed)
}

func (g *SignalInjection) Restore(raw json.RawMessage) error { return restoreInto(&g.state, raw) }

func (g *SignalInjection) Snapshot() (json.RawMessage, error) { return json.Marshal(g.state) }

func (g *SignalInjection) State() any     { return g.state }
func (g *SignalInjection) Status() Status { return g.state.Status }
func (g *SignalInjection) IsWon() bool    { return g.state.Status == StatusWon }
func (g *SignalInjection) IsLost() bool   { return g.state.Status == StatusLost }
