package games

import (
	"encoding/json"
	"sort"
)

const (
	wordGuessAttempts = 4
)

// hackingWords is the candidate dictionary. Every entry is exactly six letters.
var hackingWords = []string{
	"SYSTEM", "ACCESS", "BUFFER", "CODING", "DAEMON", "ENCODE",
	"FILTER", "GOPHER", "HACKER", "INPUTS", "JARGON", "KERNEL",
	"LOGINS", "MATRIX", "NETWRK", "OUTPUT", "PARSER", "QUBITS",
	"ROUTER", "SERVER", "TELNET", "UPLOAD", "VECTOR", "WIDGET",
	"SYNTAX", "MEMORY", "BACKUP", "CONFIG", "DEVICE", "ERRORS",
	"FORMAT", "GLOBAL", "HEADER", "INLINE", "JUMPER", "KEYPAD",
	"LINKER", "MODULE", "NATIVE", "OBJECT", "PACKET", "QUEUES",
	"REBOOT", "SCRIPT", "TARGET", "UPDATE", "VERIFY", "WINDOW",
}

// GuessRecord is one entry of the guess history.
type GuessRecord struct {
	Word     string `json:"word"`
	Likeness int    `json:"likeness"`
}

// WordGuessState is the serializable state of a WordGuess game.
type WordGuessState struct {
	Words    []string      `json:"words"`
	Target   string        `json:"target"`
	Attempts int           `json:"attempts"`
	History  []GuessRecord `json:"history"`
	Bonus    int           `json:"bonus"`
	Status   Status        `json:"status"`
}

// WordGuess is the password-likeness minigame: pick the target out of a list
// of same-length words using positional match feedback.
type WordGuess struct {
	base
	state WordGuessState
}

func newWordGuess(p Params) *WordGuess {
	return &WordGuess{base: newBase(p)}
}

func (g *WordGuess) Kind() Kind { return KindWordGuess }

// wordCount returns how many candidates to show; higher scores see fewer.
func wordCount(difficulty int) int {
	switch {
	case difficulty >= 55:
		return 6
	case difficulty >= 45:
		return 8
	case difficulty >= 35:
		return 10
	default:
		return 12
	}
}

func (g *WordGuess) Init() {
	count := wordCount(g.difficulty)

	// Partial Fisher-Yates: the first count entries become a uniform sample.
	pool := make([]string, len(hackingWords))
	copy(pool, hackingWords)
	for i := 0; i < count; i++ {
		j := i + g.rnd.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	words := pool[:count:count]
	target := words[g.rnd.Intn(len(words))]
	sort.Strings(words)

	g.state = WordGuessState{
		Words:    words,
		Target:   target,
		Attempts: wordGuessAttempts,
		History:  []GuessRecord{},
		Bonus:    g.difficulty,
		Status:   StatusActive,
	}
}

// Likeness counts positions where guess and target hold the same byte.
func Likeness(guess, target string) int {
	n := 0
	for i := 0; i < len(guess) && i < len(target); i++ {
		if guess[i] == target[i] {
			n++
		}
	}
	return n
}

func (g *WordGuess) HandleAction(a Action) Result {
	if g.state.Status != StatusActive {
		return resultFinished
	}
	if a.Type != ActionGuess || a.Word == "" {
		return resultIgnored
	}

	g.state.History = append(g.state.History, GuessRecord{
		Word:     a.Word,
		Likeness: Likeness(a.Word, g.state.Target),
	})

	if a.Word == g.state.Target {
		g.state.Status = StatusWon
		return g.won(MsgWordGuessWon)
	}

	g.state.Attempts--
	if g.state.Attempts <= 0 {
		g.state.Status = StatusLost
		return g.lost(MsgWordGuessLost)
	}
	return g.failed(MsgWordGuessDenied)
}

func (g *WordGuess) Restore(raw json.RawMessage) error { return restoreInto(&g.state, raw) }

func (g *WordGuess) Snapshot() (json.RawMessage, error) { return json.Marshal(g.state) }

func (g *WordGuess) State() any     { return g.state }
func (g *WordGuess) Status() Status { return g.state.Status }
func (g *WordGuess) IsWon() bool    { return g.state.Status == StatusWon }
func (g *WordGuess) IsLost() bool   { return g.state.Status == StatusLost }
