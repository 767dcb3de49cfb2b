package games

import (
	"errors"
	"strconv"

	"github.com/tidwall/gjson"
)

// ActionType tags an Action.
type ActionType string

const (
	ActionGuess   ActionType = "guess"
	ActionInject  ActionType = "inject"
	ActionRotate  ActionType = "rotate"
	ActionReveal  ActionType = "reveal"
	ActionText    ActionType = "type"
	ActionTimeout ActionType = "timeout"
	ActionReady   ActionType = "ready"
	ActionPress   ActionType = "press"
)

// Action is one discrete player input. Only the fields relevant to Type are
// read; Value holds the typed text for "type" and the pressed pad for "press".
type Action struct {
	Type  ActionType `json:"type"`
	Word  string     `json:"word,omitempty"`
	X     int        `json:"x"`
	Y     int        `json:"y"`
	Value string     `json:"value,omitempty"`
}

// Guess submits a word to WordGuess.
func Guess(word string) Action { return Action{Type: ActionGuess, Word: word} }

// Inject fires SignalInjection at the zone's current position.
func Inject() Action { return Action{Type: ActionInject} }

// Rotate turns the DataStream tile at (x, y) a quarter turn clockwise.
func Rotate(x, y int) Action { return Action{Type: ActionRotate, X: x, Y: y} }

// Reveal opens the NodeOverload cell at (x, y).
func Reveal(x, y int) Action { return Action{Type: ActionReveal, X: x, Y: y} }

// Type replaces the BruteForce input with value.
func Type(value string) Action { return Action{Type: ActionText, Value: value} }

// Timeout ends BruteForce for a caller that detected expiry itself.
func Timeout() Action { return Action{Type: ActionTimeout} }

// Ready starts the PatternBuffer display phase.
func Ready() Action { return Action{Type: ActionReady} }

// Press enters one PatternBuffer pad, numbered 1 to 4.
func Press(pad int) Action { return Action{Type: ActionPress, Value: strconv.Itoa(pad)} }

// ErrInvalidAction is returned by ParseAction for malformed records.
var ErrInvalidAction = errors.New("games: invalid action")

// ParseAction decodes the wire form of an action. "value" may be a JSON
// string or number.
func ParseAction(data []byte) (Action, error) {
	if !gjson.ValidBytes(data) {
		return Action{}, ErrInvalidAction
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Action{}, ErrInvalidAction
	}
	typ := root.Get("type")
	if typ.Type != gjson.String || typ.String() == "" {
		return Action{}, ErrInvalidAction
	}

	a := Action{
		Type: ActionType(typ.String()),
		Word: root.Get("word").String(),
		X:    int(root.Get("x").Int()),
		Y:    int(root.Get("y").Int()),
	}
	if v := root.Get("value"); v.Exists() {
		a.Value = v.String()
	}
	return a, nil
}

// pad parses a press value.
func (a Action) pad() (int, bool) {
	n, err := strconv.Atoi(a.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}
