package syncbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a Channel backed by a websocket connection to a Hub.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription

	done chan struct{}
}

// TerminalURL builds the hub endpoint for a terminal and participant from an
// http(s) or ws(s) base URL.
func TerminalURL(base, terminal, participant string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("syncbus: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u = u.JoinPath("ws", terminal)
	q := u.Query()
	q.Set("participant", participant)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to a hub endpoint. header may carry the GM token.
func Dial(ctx context.Context, rawURL string, header http.Header, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("syncbus: dial: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:   conn,
		logger: logger,
		subs:   make(map[uint64]subscription),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("hub_read_failed", "err", err)
			}
			return
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.logger.Warn("message_rejected", "err", err)
			continue
		}
		c.deliver(m)
	}
}

func (c *Client) deliver(m Message) {
	c.mu.RLock()
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	targets := make([]Handler, 0, len(ids))
	for _, id := range ids {
		if s := c.subs[id]; s.participant != m.Sender {
			targets = append(targets, s.handler)
		}
	}
	c.mu.RUnlock()

	for _, h := range targets {
		h(m)
	}
}

func (c *Client) Subscribe(participantID string, h Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = subscription{participant: participantID, handler: h}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) Publish(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("syncbus: encode message: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("syncbus: publish: %w", err)
	}
	return nil
}

// Done is closed once the connection to the hub is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close says goodbye to the hub and waits for the read loop to exit.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	return c.conn.Close()
}
