// In-memory implementation of the pub/sub transport for tests and single
// process setups. Messages are not persisted.

package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/RidgeA/pubsub-rpc/transport"
)

var ErrNotInitialized = errors.New("inmemory transport is not initialized")

type (
	// InMemory fans published messages out to matching subscriptions.
	// Publish never waits for a subscriber: every subscription queues
	// messages without bound and forwards them on its own goroutine.
	InMemory struct {
		mu            sync.RWMutex
		subscriptions map[*subscription]struct{}
		initialized   bool
	}

	subscription struct {
		t        *InMemory
		patterns []string
		ch       chan transport.Message
		closed   chan struct{}
		once     sync.Once

		mu      sync.Mutex
		pending []transport.Message
		wake    chan struct{}
	}
)

func New() *InMemory {
	return &InMemory{}
}

func (t *InMemory) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		t.subscriptions = make(map[*subscription]struct{})
		t.initialized = true
	}
	return nil
}

// Shutdown closes every subscription.
func (t *InMemory) Shutdown() error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return nil
	}
	t.initialized = false
	subs := make([]*subscription, 0, len(t.subscriptions))
	for s := range t.subscriptions {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

// Publish queues one message per matching pattern on every subscription,
// like redis pmessage. Messages from one publisher keep their order.
func (t *InMemory) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.initialized {
		return ErrNotInitialized
	}

	payload = append([]byte(nil), payload...)
	for s := range t.subscriptions {
		for _, pattern := range transport.MatchAny(s.patterns, channel) {
			s.push(transport.Message{
				Pattern: pattern,
				Channel: channel,
				Payload: payload,
			})
		}
	}
	return nil
}

func (t *InMemory) Subscribe(ctx context.Context, patterns ...string) (transport.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return nil, ErrNotInitialized
	}

	sub := &subscription{
		t:        t,
		patterns: append([]string(nil), patterns...),
		ch:       make(chan transport.Message),
		closed:   make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
	t.subscriptions[sub] = struct{}{}
	go sub.forward()
	return sub, nil
}

func (s *subscription) push(msg transport.Message) {
	s.mu.Lock()
	s.pending = append(s.pending, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) forward() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, msg := range batch {
			select {
			case s.ch <- msg:
			case <-s.closed:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-s.wake:
		case <-s.closed:
			return
		}
	}
}

func (s *subscription) Messages() <-chan transport.Message {
	return s.ch
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.t.mu.Lock()
		delete(s.t.subscriptions, s)
		s.t.mu.Unlock()
	})
	return nil
}
