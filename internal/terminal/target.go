package terminal

import (
	"strings"
	"unicode"

	"github.com/MJE43/hack-terminal/internal/games"
)

// Target is a hackable data source on a terminal.
type Target struct {
	ID           string `json:"id"`
	Instructions string `json:"instructions,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// NewTarget builds a Target from its "user:password" label. Labels without a
// colon carry no credentials.
func NewTarget(id, label, instructions string) Target {
	t := Target{ID: id, Instructions: instructions}
	if parts := strings.Split(label, ":"); len(parts) >= 2 {
		t.Username = parts[0]
		t.Password = parts[1]
	}
	return t
}

// EnabledKinds returns the minigames a target allows. The instructions are a
// free-form list of kind identifiers separated by spaces or commas; "all"
// enables everything. When nothing is recognized every kind is enabled.
func (t Target) EnabledKinds(all []games.Kind) []games.Kind {
	return EnabledKinds(t.Instructions, all)
}

// EnabledKinds is Target.EnabledKinds for bare instruction text.
func EnabledKinds(text string, all []games.Kind) []games.Kind {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	listed := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if tok == "all" {
			return all
		}
		listed[tok] = true
	}

	var enabled []games.Kind
	for _, k := range all {
		if listed[string(k)] {
			enabled = append(enabled, k)
		}
	}
	if len(enabled) == 0 {
		return all
	}
	return enabled
}

// TargetResolver looks up a hack target by ID.
type TargetResolver interface {
	Target(id string) (Target, bool)
}

// Directory is an in-memory TargetResolver.
type Directory map[string]Target

// Target implements TargetResolver.
func (d Directory) Target(id string) (Target, bool) {
	t, ok := d[id]
	return t, ok
}
