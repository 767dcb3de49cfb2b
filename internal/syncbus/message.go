// Package syncbus carries terminal state between participants. A Channel
// delivers every published Message to all subscribers except its sender.
package syncbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags a Message.
type MessageType string

const (
	// TypeRequestState is sent by a newly attached observer.
	TypeRequestState MessageType = "requestState"
	// TypeUpdateState carries a full terminal snapshot.
	TypeUpdateState MessageType = "updateState"
	// TypeExecuteMacro asks a privileged participant to run a macro.
	TypeExecuteMacro MessageType = "executeMacro"
)

// Message is the envelope exchanged on a Channel. Sequence is only meaningful
// for updateState and increases monotonically per terminal.
type Message struct {
	Type     MessageType     `json:"type"`
	Terminal string          `json:"terminal"`
	Sender   string          `json:"sender"`
	Sequence uint64          `json:"sequence,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MacroRequest is the payload of an executeMacro message.
type MacroRequest struct {
	MacroName string `json:"macroName"`
}

var ErrInvalidMessage = errors.New("syncbus: invalid message")

// Validate checks the envelope fields every message needs.
func (m Message) Validate() error {
	switch m.Type {
	case TypeRequestState, TypeUpdateState, TypeExecuteMacro:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if m.Terminal == "" {
		return fmt.Errorf("%w: missing terminal", ErrInvalidMessage)
	}
	if m.Type == TypeUpdateState && len(m.Payload) == 0 {
		return fmt.Errorf("%w: updateState without payload", ErrInvalidMessage)
	}
	return nil
}

// RequestState builds a requestState message.
func RequestState(terminal, sender string) Message {
	return Message{Type: TypeRequestState, Terminal: terminal, Sender: sender}
}

// UpdateState builds an updateState message around an encoded snapshot.
func UpdateState(terminal, sender string, seq uint64, state any) (Message, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return Message{}, fmt.Errorf("syncbus: encode state: %w", err)
	}
	return Message{Type: TypeUpdateState, Terminal: terminal, Sender: sender, Sequence: seq, Payload: raw}, nil
}

// ExecuteMacro builds an executeMacro message.
func ExecuteMacro(terminal, sender, name string) Message {
	raw, _ := json.Marshal(MacroRequest{MacroName: name})
	return Message{Type: TypeExecuteMacro, Terminal: terminal, Sender: sender, Payload: raw}
}

// Macro decodes an executeMacro payload.
func (m Message) Macro() (MacroRequest, error) {
	var req MacroRequest
	if err := json.Unmarshal(m.Payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if req.MacroName == "" {
		return req, fmt.Errorf("%w: missing macroName", ErrInvalidMessage)
	}
	return req, nil
}

// Handler receives delivered messages. Handlers must not block for long; the
// in-process Broker calls them on the publisher's goroutine.
type Handler func(Message)

// Channel is the publish/subscribe primitive participants share.
type Channel interface {
	Publish(ctx context.Context, m Message) error
	Subscribe(participantID string, h Handler) (unsubscribe func())
}
