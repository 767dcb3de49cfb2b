package games

// Host is the capability hook back into the embedding application. Engines
// only use it to localize result messages.
type Host interface {
	Localize(key string) string
}

// Catalog is a Host backed by a static key → text map. Unknown keys are
// returned unchanged.
type Catalog map[string]string

// Localize implements Host.
func (c Catalog) Localize(key string) string {
	if s, ok := c[key]; ok {
		return s
	}
	return key
}

// Message keys emitted by the engines.
const (
	MsgWordGuessWon          = "Hacking.WordGuess.Won"
	MsgWordGuessLost         = "Hacking.WordGuess.Lost"
	MsgWordGuessDenied       = "Hacking.WordGuess.Denied"
	MsgSignalInjectionWon    = "Hacking.SignalInjection.Won"
	MsgSignalInjectionLost   = "Hacking.SignalInjection.Lost"
	MsgSignalInjectionMissed = "Hacking.SignalInjection.Missed"
	MsgDataStreamWon         = "Hacking.DataStream.Won"
	MsgDataStreamLost        = "Hacking.DataStream.Lost"
	MsgNodeOverloadWon       = "Hacking.NodeOverload.Won"
	MsgNodeOverloadLost      = "Hacking.NodeOverload.Lost"
	MsgBruteForceWon         = "Hacking.BruteForce.Won"
	MsgBruteForceLost        = "Hacking.BruteForce.Lost"
	MsgPatternBufferWon      = "Hacking.PatternBuffer.Won"
	MsgPatternBufferLost     = "Hacking.PatternBuffer.Lost"
)

// DefaultCatalog is the English message set.
var DefaultCatalog = Catalog{
	MsgWordGuessWon:          "PASSWORD ACCEPTED. ACCESS GRANTED.",
	MsgWordGuessLost:         "TERMINAL LOCKED. TOO MANY FAILED ATTEMPTS.",
	MsgWordGuessDenied:       "ENTRY DENIED.",
	MsgSignalInjectionWon:    "SIGNAL INJECTED. ACCESS GRANTED.",
	MsgSignalInjectionLost:   "SIGNAL REJECTED. CONNECTION TERMINATED.",
	MsgSignalInjectionMissed: "SIGNAL MISSED. RECALIBRATE.",
	MsgDataStreamWon:         "DATA STREAM ESTABLISHED. ACCESS GRANTED.",
	MsgDataStreamLost:        "ROUTING BUDGET EXHAUSTED. CONNECTION LOST.",
	MsgNodeOverloadWon:       "ALL NODES CLEARED. ACCESS GRANTED.",
	MsgNodeOverloadLost:      "NODE OVERLOAD. SYSTEM LOCKDOWN.",
	MsgBruteForceWon:         "CODE ACCEPTED. ACCESS GRANTED.",
	MsgBruteForceLost:        "TIMEOUT. INTRUSION DETECTED.",
	MsgPatternBufferWon:      "BUFFER MATCHED. ACCESS GRANTED.",
	MsgPatternBufferLost:     "BUFFER MISMATCH. ACCESS DENIED.",
}
