package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus publishes events to registered subscribers in a fan-out pattern.
	// The bus is safe for concurrent Publish, Register, and Close.
	Bus interface {
		// Publish delivers event to every currently registered subscriber,
		// in FIFO registration order. Iteration stops at the first error
		// returned by any subscriber (fail-fast), and that error is
		// returned to the caller.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber and returns a Subscription that can
		// be closed to unregister it. Returns an error if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published events.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a plain function to Subscriber.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration on a Bus. Close is
	// idempotent and safe to call multiple times.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu   sync.RWMutex
		subs []*subscription
	}

	subscription struct {
		bus  *bus
		sub  Subscriber
		once sync.Once
	}
)

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// NewBus constructs an in-memory event bus ready for immediate use.
func NewBus() Bus {
	return &bus{}
}

// Publish delivers event to every currently registered subscriber in FIFO
// registration order. A snapshot of subscribers is taken before iteration
// begins so registrations/unregistrations during Publish do not affect the
// current delivery.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds sub to the bus and returns a Subscription handle.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &subscription{bus: b, sub: sub}
	b.subs = append(b.subs, s)
	return s, nil
}

// Close removes the subscriber from its bus. Idempotent and thread-safe.
func (s *subscription) Close() error {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, other := range b.subs {
			if other == s {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	})
	return nil
}
