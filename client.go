package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/RidgeA/pubsub-rpc/internal/logger"
	"github.com/RidgeA/pubsub-rpc/transport"
)

var replyPatterns = []string{
	"*" + separator + OpCompleted + separator + "*",
	"*" + separator + OpError + separator + "*",
}

type (
	// Caller publishes requests on the bus and waits for their replies.
	Caller struct {
		t      Transport
		logger *slog.Logger

		mu        sync.Mutex
		listeners map[string]chan Reply
		sub       transport.Subscription
		done      chan struct{}
	}

	// Reply is a completion or error event received for a request.
	Reply struct {
		Subject   string
		Operation string
		ID        string
		Body      map[string]any
	}

	CallerOptionsFunc func(*Caller)
)

func SetCallerLogger(l *slog.Logger) CallerOptionsFunc {
	return func(c *Caller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCaller creates a caller on t. The transport must be initialized, either
// directly or by a broker sharing it.
func NewCaller(t Transport, opts ...CallerOptionsFunc) *Caller {
	c := &Caller{
		t:         t,
		logger:    logger.Discard(),
		listeners: make(map[string]chan Reply),
	}
	for _, setter := range opts {
		setter(c)
	}
	return c
}

// Data returns the "data" field of a wrapped result.
func (r Reply) Data() any {
	return r.Body["data"]
}

// Start subscribes to every completion and error channel.
func (c *Caller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}

	c.logger.InfoContext(ctx, "starting caller")
	sub, err := c.t.Subscribe(ctx, replyPatterns...)
	if err != nil {
		return err
	}
	c.sub = sub
	c.done = make(chan struct{})
	go c.dispatchReplies(sub, c.done)
	return nil
}

// Shutdown ends the reply subscription. Pending calls return with ctx errors.
func (c *Caller) Shutdown() error {
	c.mu.Lock()
	sub, done := c.sub, c.done
	c.sub, c.done = nil, nil
	c.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}

// Call publishes args to subject under a new request id. With wait it blocks
// until the listener replies or ctx ends; on_error replies are returned as
// *RemoteError.
func (c *Caller) Call(ctx context.Context, subject string, args map[string]any, wait bool) (*Reply, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	payload := make(map[string]any, len(args)+1)
	for k, v := range args {
		payload[k] = v
	}
	payload["id"] = id

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var response <-chan Reply
	if wait {
		response, err = c.addListener(id)
		if err != nil {
			return nil, err
		}
		defer c.removeListener(id)
	}

	c.logger.DebugContext(ctx, "calling", logger.Subject(subject), logger.RequestID(id))
	if err := c.t.Publish(ctx, NextChannel(subject, id), body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	if !wait {
		return &Reply{Subject: subject, Operation: OpNext, ID: id}, nil
	}

	select {
	case reply := <-response:
		if reply.Operation == OpError {
			msg, _ := reply.Body["error"].(string)
			return &reply, &RemoteError{Subject: subject, ID: id, Message: msg}
		}
		return &reply, nil
	case <-ctx.Done():
		c.logger.InfoContext(ctx, "call abandoned", logger.Subject(subject), logger.RequestID(id))
		return nil, ctx.Err()
	}
}

func (c *Caller) dispatchReplies(sub transport.Subscription, done chan struct{}) {
	defer close(done)
	for msg := range sub.Messages() {
		subject, op, id, err := ParseChannel(msg.Channel)
		if err != nil {
			c.logger.Error("malformed reply channel", logger.Channel(msg.Channel), logger.Error(err))
			continue
		}

		c.mu.Lock()
		listener, exists := c.listeners[id]
		c.mu.Unlock()
		if !exists {
			continue
		}

		reply := Reply{Subject: subject, Operation: op, ID: id}
		if v, err := Decode(msg.Payload); err != nil {
			reply.Operation = OpError
			reply.Body = map[string]any{"error": err.Error()}
		} else if m, ok := v.(map[string]any); ok {
			reply.Body = m
		} else {
			reply.Body = map[string]any{"data": v}
		}

		select {
		case listener <- reply:
		default:
			c.logger.Warn("duplicate reply dropped", logger.RequestID(id))
		}
	}
}

func (c *Caller) addListener(id string) (<-chan Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil, ErrCallerNotStarted
	}
	listener := make(chan Reply, 1)
	c.listeners[id] = listener
	return listener, nil
}

func (c *Caller) removeListener(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// IsRemoteError reports whether err came from a listener's on_error event.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
