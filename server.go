package rpc

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/RidgeA/pubsub-rpc/internal/logger"
	"github.com/RidgeA/pubsub-rpc/transport"
)

// Task is a running delivery loop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Stop cancels the delivery loop and waits for the in-flight handler to return.
func (t *Task) Stop() error {
	t.cancel()
	return t.Wait()
}

// Wait blocks until the loop exits. Cancellation is not reported as an error.
func (t *Task) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	if errors.Is(t.err, context.Canceled) {
		return nil
	}
	return t.err
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (b *Broker) startTask(ctx context.Context, sub transport.Subscription, routes map[string][]*Listener) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()
		err := b.deliver(ctx, sub, routes)
		if cerr := sub.Close(); cerr != nil {
			b.logger.Warn("failed to close subscription", logger.Error(cerr))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("delivery loop stopped", logger.Error(err))
		}
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}()

	return t
}

func (b *Broker) deliver(ctx context.Context, sub transport.Subscription, routes map[string][]*Listener) error {
	if b.concurrency <= 1 {
		return b.deliverSerial(ctx, sub, routes)
	}
	return b.deliverConcurrent(ctx, sub, routes)
}

func (b *Broker) deliverSerial(ctx context.Context, sub transport.Subscription, routes map[string][]*Listener) error {
	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ErrSubscriptionClosed
			}
			if err := b.route(ctx, msg, routes); err != nil {
				return err
			}
		}
	}
}

func (b *Broker) deliverConcurrent(ctx context.Context, sub transport.Subscription, routes map[string][]*Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	messages := sub.Messages()
	loop := func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case msg, ok := <-messages:
				if !ok {
					return ErrSubscriptionClosed
				}
				g.Go(func() error {
					return b.route(gctx, msg, routes)
				})
			}
		}
	}

	err := loop()
	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return err
}

// route hands msg to every listener subscribed with the pattern that matched
// it. Only transport failures are returned.
func (b *Broker) route(ctx context.Context, msg transport.Message, routes map[string][]*Listener) error {
	listeners := routes[msg.Pattern]
	if len(listeners) == 0 {
		b.logger.WarnContext(ctx, "no listener for delivered pattern",
			logger.Pattern(msg.Pattern),
			logger.Channel(msg.Channel))
		return nil
	}

	for _, l := range listeners {
		err := l.HandleInbound(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, ErrPublish):
			return err
		case errors.Is(err, ErrMalformedChannel):
			b.logger.ErrorContext(ctx, "malformed channel delivered",
				logger.Subject(l.subject),
				logger.Pattern(msg.Pattern),
				logger.Channel(msg.Channel),
				logger.Error(err))
		default:
			b.logger.DebugContext(ctx, "request failed",
				logger.Subject(l.subject),
				logger.Channel(msg.Channel),
				logger.Error(err))
		}
	}
	return nil
}
