// Package terminal holds the shared, synchronized view model of one hacking
// terminal. Every participant attached to a terminal renders from a State.
package terminal

import (
	"bytes"
	"encoding/json"

	"github.com/MJE43/hack-terminal/internal/engine"
	"github.com/MJE43/hack-terminal/internal/games"
)

// View is the screen a terminal is showing.
type View string

const (
	ViewLogin   View = "login"
	ViewHacking View = "hacking"
	ViewDesktop View = "desktop"
)

// Outcome is the result of a finished attempt, shown during the result delay.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// RootUser is the user a successful hack logs in as.
const RootUser = "ROOT_OVERRIDE"

// Attempt identifies one hacking attempt and the seeds its board came from.
type Attempt struct {
	ID             string       `json:"id"`
	Seeds          engine.Seeds `json:"seeds"`
	ServerSeedHash string       `json:"serverSeedHash"`
	Nonce          uint64       `json:"nonce"`
}

// State is the snapshot broadcast with every updateState message. The
// minigame's own state travels as raw JSON in HackingState.
type State struct {
	TerminalID      string          `json:"terminalId"`
	ControllerID    string          `json:"controllerId,omitempty"`
	View            View            `json:"view"`
	CurrentUser     string          `json:"currentUser,omitempty"`
	LoginError      bool            `json:"loginError"`
	CanHack         bool            `json:"canHack"`
	HackTargetID    string          `json:"hackTargetId,omitempty"`
	CrackedPassword string          `json:"crackedPassword,omitempty"`
	HackingType     games.Kind      `json:"hackingType,omitempty"`
	HackingState    json.RawMessage `json:"hackingState,omitempty"`
	HackingScore    int             `json:"hackingScore"`
	HackingMessage  string          `json:"hackingMessage,omitempty"`
	HackingResult   Outcome         `json:"hackingResult,omitempty"`
	Attempt         *Attempt        `json:"attempt,omitempty"`
}

// NewState returns a terminal sitting at its login screen.
func NewState(terminalID string) State {
	return State{TerminalID: terminalID, View: ViewLogin}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s State) Clone() State {
	out := s
	if s.HackingState != nil {
		out.HackingState = bytes.Clone(s.HackingState)
	}
	if s.Attempt != nil {
		a := *s.Attempt
		out.Attempt = &a
	}
	return out
}

// Hacking reports whether a minigame is in progress or showing its result.
func (s State) Hacking() bool {
	return s.View == ViewHacking
}

// Resolved reports whether the running attempt already has an outcome.
func (s State) Resolved() bool {
	return s.HackingResult != ""
}

// SetTarget points the terminal at a hackable target, or clears it.
func (s *State) SetTarget(t *Target) {
	if t == nil {
		s.HackTargetID = ""
		s.CanHack = false
		return
	}
	s.HackTargetID = t.ID
	s.CanHack = true
}

// Begin switches to the hacking view with participant as controller.
func (s *State) Begin(participant string, kind games.Kind, score int, snapshot json.RawMessage, attempt *Attempt) {
	s.View = ViewHacking
	s.ControllerID = participant
	s.HackingType = kind
	s.HackingState = snapshot
	s.HackingScore = score
	s.HackingMessage = ""
	s.HackingResult = ""
	s.Attempt = attempt
}

// Resolve records the result shown during the post-result delay.
func (s *State) Resolve(res games.Result) {
	s.HackingMessage = res.Message
	if res.Success {
		s.HackingResult = OutcomeSuccess
	} else {
		s.HackingResult = OutcomeFailure
	}
}

// Grant moves to the desktop as root, keeping the controller seat. The
// target's password is revealed when it has one.
func (s *State) Grant(t *Target) {
	s.clearHack()
	s.View = ViewDesktop
	s.CurrentUser = RootUser
	s.LoginError = false
	if t != nil && t.Password != "" {
		s.CrackedPassword = t.Password
	}
}

// Deny returns to the login screen with an error and releases the seat.
func (s *State) Deny() {
	s.clearHack()
	s.View = ViewLogin
	s.ControllerID = ""
	s.LoginError = true
}

// Logout returns to the login screen and forgets the cracked password.
func (s *State) Logout() {
	s.clearHack()
	s.View = ViewLogin
	s.ControllerID = ""
	s.CurrentUser = ""
	s.CrackedPassword = ""
	s.LoginError = false
}

func (s *State) clearHack() {
	s.HackingType = ""
	s.HackingState = nil
	s.HackingMessage = ""
	s.HackingResult = ""
}
