package syncbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// HubSender is the sender of messages the hub originates itself.
	HubSender = "hub"
)

// Snapshot is the last accepted updateState of a terminal.
type Snapshot struct {
	Terminal   string          `json:"terminal"`
	Sequence   uint64          `json:"sequence"`
	Controller string          `json:"controller,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SnapshotSink persists accepted snapshots. LoadSnapshot returns nil, nil
// when the terminal has none.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
	LoadSnapshot(ctx context.Context, terminal string) (*Snapshot, error)
}

// MacroFunc runs a macro on the server when no privileged participant is
// connected to take it.
type MacroFunc func(ctx context.Context, terminal, name string) error

// HubOption configures a Hub.
type HubOption func(*Hub)

func WithSnapshotSink(s SnapshotSink) HubOption { return func(h *Hub) { h.sink = s } }
func WithMacroFunc(fn MacroFunc) HubOption      { return func(h *Hub) { h.macros = fn } }
func WithLogger(l *slog.Logger) HubOption       { return func(h *Hub) { h.logger = l } }

// Hub relays messages between websocket connections grouped into one room per
// terminal. It enforces monotonic updateState sequences per room.
type Hub struct {
	upgrader websocket.Upgrader
	sink     SnapshotSink
	macros   MacroFunc
	logger   *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

type room struct {
	lastSeq uint64
	peers   map[*peer]struct{}
}

type peer struct {
	conn        *websocket.Conn
	participant string
	gm          bool
	mu          sync.Mutex
}

// send writes a message guarded by the peer's mutex and write deadline.
func (p *peer) send(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: slog.Default(),
		rooms:  make(map[string]*room),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetCheckOrigin overrides the upgrader's origin check.
func (h *Hub) SetCheckOrigin(fn func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = fn
}

var ErrHubClosed = errors.New("syncbus: hub closed")

// Serve upgrades the request and relays the connection's messages until it
// closes. The sender and terminal of every inbound message are taken from
// the connection, never from the client.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, terminal, participant string, gm bool) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("syncbus: upgrade: %w", err)
	}
	p := &peer{conn: conn, participant: participant, gm: gm}

	ctx := r.Context()
	rm, err := h.join(ctx, terminal, p)
	if err != nil {
		conn.Close()
		return err
	}
	defer h.leave(terminal, p)

	log := h.logger.With("terminal_id", terminal, "participant_id", participant)
	log.Info("peer_joined", "gm", gm)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.ping(); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("peer_read_failed", "err", err)
			}
			log.Info("peer_left")
			return nil
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("message_rejected", "err", err)
			continue
		}
		m.Terminal = terminal
		m.Sender = participant
		if err := m.Validate(); err != nil {
			log.Warn("message_rejected", "err", err)
			continue
		}
		h.dispatch(ctx, terminal, rm, p, m)
	}
}

func (h *Hub) join(ctx context.Context, terminal string, p *peer) (*room, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	rm, ok := h.rooms[terminal]
	if !ok {
		rm = &room{peers: make(map[*peer]struct{})}
		h.rooms[terminal] = rm
	}
	rm.peers[p] = struct{}{}
	h.mu.Unlock()

	if !ok && h.sink != nil {
		snap, err := h.sink.LoadSnapshot(ctx, terminal)
		if err != nil {
			h.logger.Error("snapshot_load_failed", "terminal_id", terminal, "err", err)
		} else if snap != nil {
			h.mu.Lock()
			rm.lastSeq = max(rm.lastSeq, snap.Sequence)
			h.mu.Unlock()
		}
	}
	return rm, nil
}

func (h *Hub) leave(terminal string, p *peer) {
	h.mu.Lock()
	if rm, ok := h.rooms[terminal]; ok {
		delete(rm.peers, p)
		if len(rm.peers) == 0 {
			delete(h.rooms, terminal)
		}
	}
	h.mu.Unlock()
	p.conn.Close()
}

// othersLocked returns the room's peers except p, optionally only GMs.
func (rm *room) othersLocked(p *peer, gmOnly bool) []*peer {
	out := make([]*peer, 0, len(rm.peers))
	for o := range rm.peers {
		if o == p || (gmOnly && !o.gm) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (h *Hub) dispatch(ctx context.Context, terminal string, rm *room, p *peer, m Message) {
	switch m.Type {
	case TypeUpdateState:
		h.mu.Lock()
		if m.Sequence <= rm.lastSeq {
			last := rm.lastSeq
			h.mu.Unlock()
			h.logger.Debug("snapshot_dropped", "terminal_id", terminal, "sequence", m.Sequence, "last_sequence", last)
			return
		}
		rm.lastSeq = m.Sequence
		targets := rm.othersLocked(p, false)
		h.mu.Unlock()

		h.persist(ctx, m)
		h.relay(targets, m)

	case TypeRequestState:
		if snap := h.snapshot(ctx, terminal); snap != nil {
			reply := Message{
				Type:     TypeUpdateState,
				Terminal: terminal,
				Sender:   HubSender,
				Sequence: snap.Sequence,
				Payload:  snap.Payload,
			}
			if err := p.send(reply); err != nil {
				h.logger.Debug("send_failed", "terminal_id", terminal, "err", err)
			}
		}
		h.mu.Lock()
		targets := rm.othersLocked(p, false)
		h.mu.Unlock()
		h.relay(targets, m)

	case TypeExecuteMacro:
		h.mu.Lock()
		targets := rm.othersLocked(p, true)
		h.mu.Unlock()
		if len(targets) > 0 {
			h.relay(targets, m)
			return
		}
		h.runMacro(ctx, terminal, m)
	}
}

func (h *Hub) persist(ctx context.Context, m Message) {
	if h.sink == nil {
		return
	}
	snap := Snapshot{
		Terminal:   m.Terminal,
		Sequence:   m.Sequence,
		Controller: gjson.GetBytes(m.Payload, "controllerId").String(),
		Payload:    m.Payload,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := h.sink.SaveSnapshot(ctx, snap); err != nil {
		h.logger.Error("snapshot_save_failed", "terminal_id", m.Terminal, "sequence", m.Sequence, "err", err)
	}
}

func (h *Hub) snapshot(ctx context.Context, terminal string) *Snapshot {
	if h.sink == nil {
		return nil
	}
	snap, err := h.sink.LoadSnapshot(ctx, terminal)
	if err != nil {
		h.logger.Error("snapshot_load_failed", "terminal_id", terminal, "err", err)
		return nil
	}
	return snap
}

func (h *Hub) runMacro(ctx context.Context, terminal string, m Message) {
	req, err := m.Macro()
	if err != nil {
		h.logger.Warn("message_rejected", "terminal_id", terminal, "err", err)
		return
	}
	if h.macros == nil {
		h.logger.Warn("macro_unhandled", "terminal_id", terminal, "macro", req.MacroName)
		return
	}
	if err := h.macros(ctx, terminal, req.MacroName); err != nil {
		h.logger.Error("macro_failed", "terminal_id", terminal, "macro", req.MacroName, "err", err)
		return
	}
	h.logger.Info("macro_executed", "terminal_id", terminal, "macro", req.MacroName, "requested_by", m.Sender)
}

func (h *Hub) relay(targets []*peer, m Message) {
	for _, t := range targets {
		if err := t.send(m); err != nil {
			h.logger.Debug("send_failed", "terminal_id", m.Terminal, "participant_id", t.participant, "err", err)
		}
	}
}

// Peers returns the number of connections per terminal.
func (h *Hub) Peers() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.rooms))
	for id, rm := range h.rooms {
		out[id] = len(rm.peers)
	}
	return out
}

// Close disconnects every peer and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	var peers []*peer
	for _, rm := range h.rooms {
		for p := range rm.peers {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.mu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		p.mu.Unlock()
		p.conn.Close()
	}
	return nil
}
