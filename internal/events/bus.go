package events

import (
	"context"
	"sync"

	"studio/internal/infra"
)

const subscriberBuffer = 64

// Publisher delivers request events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus fans events out to in-process subscribers keyed by user.
type Bus struct {
	logger infra.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
}

func NewBus(logger infra.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving every event for userID and a func
// that unsubscribes and closes the channel.
func (b *Bus) Subscribe(userID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subs[userID] = append(b.subs[userID], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[userID]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[userID] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
		})
	}
	return ch, unsub
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (b *Bus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().Str("user_id", ev.UserID).Str("request_id", ev.RequestID).Msg("event subscriber full, dropping event")
		}
	}
	return nil
}

// Subscribers reports how many channels listen for userID.
func (b *Bus) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// Multi publishes to each publisher in order and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
