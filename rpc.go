// Package rpc dispatches requests published on a pub/sub bus to registered
// handlers and publishes their results back on the bus.
//
// A handler registered under subject "pkg.Multiply" receives every message
// published on "pkg.Multiply:on_next:<id>". The JSON object payload is bound
// to the handler arguments, and the outcome is published on
// "pkg.Multiply:on_completed:<id>" or "pkg.Multiply:on_error:<id>".
package rpc

//go:generate mockgen -destination=internal/mocks/transport.go -package=mocks -mock_names=Transport=MockTransport github.com/RidgeA/pubsub-rpc Transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/RidgeA/pubsub-rpc/internal/logger"
	"github.com/RidgeA/pubsub-rpc/transport"
)

const (
	StateUninitialized State = iota
	StateConfigured
	StateAccepting
	StateStopped
)

type (
	// Publisher publishes a payload on a channel.
	Publisher interface {
		Publish(ctx context.Context, channel string, payload []byte) error
	}

	// Transport is the pub/sub bus the broker and caller run on.
	Transport interface {
		Publisher
		Initialize(ctx context.Context) error
		Shutdown() error
		Subscribe(ctx context.Context, patterns ...string) (transport.Subscription, error)
	}

	State int

	OptionsFunc func(*Broker)

	// Broker owns the transport and the registered listeners and drives the
	// delivery loop.
	Broker struct {
		t           Transport
		logger      *slog.Logger
		concurrency int

		mu        sync.Mutex
		state     State
		listeners []*Listener
		task      *Task
	}
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateAccepting:
		return "accepting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// NewBroker creates a broker on top of t. The transport is initialized by
// Connect or on the first Run.
func NewBroker(t Transport, opts ...OptionsFunc) *Broker {
	b := &Broker{
		t:           t,
		logger:      logger.Discard(),
		concurrency: 1,
	}
	for _, setter := range opts {
		setter(b)
	}
	return b
}

func SetLogger(l *slog.Logger) OptionsFunc {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// SetConcurrency lets up to n deliveries run at once. With n > 1 the order of
// completion events across request ids no longer follows delivery order.
func SetConcurrency(n int) OptionsFunc {
	return func(b *Broker) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// Register binds h to a new listener and adds it to the broker. Listeners
// registered after Run take effect on the next Run.
func (b *Broker) Register(h Handler, opts ...HandlerOptionsFunc) (*Listener, error) {
	opts = append([]HandlerOptionsFunc{SetListenerLogger(b.logger)}, opts...)
	l, err := Bind(h, b.t, opts...)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.listeners {
		if existing.subject == l.subject {
			b.logger.Warn("duplicate subject registered, both listeners receive its requests",
				logger.Subject(l.subject))
			break
		}
	}
	b.listeners = append(b.listeners, l)
	b.logger.Debug("listener registered", logger.Subject(l.subject))
	return l, nil
}

// Subscribe registers h and returns a function that invokes it directly
// while still publishing completion and error events.
func (b *Broker) Subscribe(h Handler, opts ...HandlerOptionsFunc) (HandlerFunc, error) {
	l, err := b.Register(h, opts...)
	if err != nil {
		return nil, err
	}
	return l.Invoke, nil
}

// Listeners returns the registered listeners in registration order.
func (b *Broker) Listeners() []*Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Listener(nil), b.listeners...)
}

func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connect initializes the transport.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connect(ctx)
}

func (b *Broker) connect(ctx context.Context) error {
	switch b.state {
	case StateStopped:
		return ErrBrokerStopped
	case StateUninitialized:
		if err := b.t.Initialize(ctx); err != nil {
			return err
		}
		b.state = StateConfigured
		b.logger.InfoContext(ctx, "broker connected")
	}
	return nil
}

// Run subscribes every listener pattern in one transport call and starts the
// delivery loop in the background. Running an accepting broker again
// replaces the previous delivery task with one covering all listeners.
func (b *Broker) Run(ctx context.Context) (*Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	if len(b.listeners) == 0 {
		return nil, ErrNoListeners
	}

	if b.task != nil {
		b.logger.InfoContext(ctx, "restarting delivery task")
		_ = b.task.Stop()
		b.task = nil
	}

	routes := make(map[string][]*Listener, len(b.listeners))
	patterns := make([]string, 0, len(b.listeners))
	for _, l := range b.listeners {
		for pattern, pl := range l.SubscriptionPatterns() {
			if _, ok := routes[pattern]; !ok {
				patterns = append(patterns, pattern)
			}
			routes[pattern] = append(routes[pattern], pl)
			b.logger.InfoContext(ctx, "subscribing", logger.Subject(l.subject), logger.Pattern(pattern))
		}
	}

	sub, err := b.t.Subscribe(ctx, patterns...)
	if err != nil {
		return nil, err
	}

	b.task = b.startTask(ctx, sub, routes)
	b.state = StateAccepting
	b.logger.InfoContext(ctx, "broker accepting",
		slog.Int("listeners", len(b.listeners)),
		slog.Int("concurrency", b.concurrency))
	return b.task, nil
}

// Serve is the blocking form of Run. It returns nil once ctx is cancelled and
// the delivery error otherwise.
func (b *Broker) Serve(ctx context.Context) error {
	task, err := b.Run(ctx)
	if err != nil {
		return err
	}
	return task.Wait()
}

// Shutdown stops the delivery task and the transport. A stopped broker
// cannot be run again.
func (b *Broker) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateStopped {
		return nil
	}
	if b.task != nil {
		_ = b.task.Stop()
		b.task = nil
	}

	var err error
	if b.state != StateUninitialized {
		err = b.t.Shutdown()
	}
	b.state = StateStopped
	b.logger.Info("broker stopped")
	return err
}
