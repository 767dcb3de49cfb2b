package syncbus

import (
	"context"
	"slices"
	"sync"
)

// Broker is an in-process Channel. Delivery is synchronous and skips
// subscribers registered under the sender's participant ID.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription
}

type subscription struct {
	participant string
	handler     Handler
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]subscription)}
}

func (b *Broker) Subscribe(participantID string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = subscription{participant: participantID, handler: h}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers m in subscription order. Handlers run without the broker
// lock held, so they may publish in turn.
func (b *Broker) Publish(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	targets := make([]subscription, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		if s := b.subs[id]; s.participant != m.Sender {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.handler(m)
	}
	return nil
}
