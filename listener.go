package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RidgeA/pubsub-rpc/internal/logger"
	"github.com/RidgeA/pubsub-rpc/transport"
)

type (
	// Listener binds one handler to a subject and implements the
	// on_next / on_completed / on_error protocol for it.
	Listener struct {
		subject            string
		handler            Handler
		pub                Publisher
		params             map[string]struct{}
		acceptsAny         bool
		suppressCompletion bool
		logger             *slog.Logger
	}

	// Envelope is a delivered request split into its channel parts and decoded payload.
	Envelope struct {
		Subject   string
		Operation string
		ID        string
		Payload   any
	}

	HandlerOptionsFunc func(*listenerOptions)

	listenerOptions struct {
		subject            string
		params             []string
		paramsSet          bool
		acceptsAny         bool
		suppressCompletion bool
		logger             *slog.Logger
	}
)

// SetSubject overrides the derived subject.
func SetSubject(subject string) HandlerOptionsFunc {
	return func(o *listenerOptions) {
		o.subject = subject
	}
}

// SetParams declares the argument names the handler accepts.
// Payload keys outside this set are dropped.
func SetParams(names ...string) HandlerOptionsFunc {
	return func(o *listenerOptions) {
		o.params = append(o.params, names...)
		o.paramsSet = true
	}
}

// SetAcceptAnyArgs passes every payload key to the handler.
func SetAcceptAnyArgs() HandlerOptionsFunc {
	return func(o *listenerOptions) {
		o.acceptsAny = true
	}
}

// DisableCompletion stops successful calls from publishing on_completed.
// Failures are still published on on_error.
func DisableCompletion() HandlerOptionsFunc {
	return func(o *listenerOptions) {
		o.suppressCompletion = true
	}
}

func SetListenerLogger(l *slog.Logger) HandlerOptionsFunc {
	return func(o *listenerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Bind creates a listener for h that publishes its events through pub.
//
// Accepted argument names come from SetParams, then from a handler
// implementing ParamsDeclarer. When neither declares them the listener
// passes every payload key through.
func Bind(h Handler, pub Publisher, opts ...HandlerOptionsFunc) (*Listener, error) {
	if h == nil {
		return nil, errors.New("handler is nil")
	}
	if pub == nil {
		return nil, errors.New("publisher is nil")
	}

	o := &listenerOptions{
		logger: logger.Discard(),
	}
	for _, setter := range opts {
		setter(o)
	}

	subject := DeriveSubject(h, o.subject)
	if err := validateSubject(subject); err != nil {
		return nil, err
	}

	l := &Listener{
		subject:            subject,
		handler:            h,
		pub:                pub,
		acceptsAny:         o.acceptsAny,
		suppressCompletion: o.suppressCompletion,
		logger:             o.logger,
	}

	names := o.params
	if !o.paramsSet {
		if d, ok := h.(ParamsDeclarer); ok {
			var all bool
			names, all = d.Params()
			l.acceptsAny = l.acceptsAny || all
		} else {
			l.acceptsAny = true
		}
	}
	l.params = make(map[string]struct{}, len(names))
	for _, n := range names {
		l.params[n] = struct{}{}
	}

	return l, nil
}

func (l *Listener) Subject() string {
	return l.subject
}

// AcceptsAnyArgs reports whether every payload key is passed to the handler.
func (l *Listener) AcceptsAnyArgs() bool {
	return l.acceptsAny
}

// Params returns the declared argument names.
func (l *Listener) Params() []string {
	names := make([]string, 0, len(l.params))
	for n := range l.params {
		names = append(names, n)
	}
	return names
}

// SubscriptionPatterns is the pattern to listener mapping registered with the transport.
func (l *Listener) SubscriptionPatterns() map[string]*Listener {
	return map[string]*Listener{
		InboundPattern(l.subject): l,
	}
}

// Invoke calls the handler directly, outside the bus, and still publishes
// on_completed or on_error under a freshly generated request id.
// Handler errors are returned wrapped in ErrCallbackInvocation after the
// on_error event has been published.
func (l *Listener) Invoke(ctx context.Context, args Args) (any, error) {
	id := uuid.New().String()
	if args == nil {
		args = Args{}
	}
	return l.call(ctx, id, args)
}

// HandleInbound processes one delivery from the bus.
//
// A malformed channel is returned as ErrMalformedChannel and nothing is
// published. Decode and handler failures are published on on_error under
// the channel id and returned. Publish failures are wrapped in ErrPublish.
func (l *Listener) HandleInbound(ctx context.Context, msg transport.Message) error {
	env, err := l.normalize(msg)
	if err != nil {
		if errors.Is(err, ErrMalformedChannel) {
			return err
		}
		return errors.Join(err, l.onError(ctx, env.ID, err))
	}

	args := filterArgs(env.Payload, l.params, l.acceptsAny)
	_, err = l.call(ctx, env.ID, args)
	return err
}

func (l *Listener) normalize(msg transport.Message) (Envelope, error) {
	subject, op, id, err := ParseChannel(msg.Channel)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{Subject: subject, Operation: op, ID: id}

	env.Payload, err = Decode(msg.Payload)
	if err != nil {
		return env, err
	}
	return env, nil
}

func (l *Listener) call(ctx context.Context, id string, args Args) (any, error) {
	start := time.Now()
	result, err := l.safeCall(ctx, args)
	if err != nil {
		l.logger.WarnContext(ctx, "listener call failed",
			logger.Subject(l.subject),
			logger.RequestID(id),
			logger.Duration(time.Since(start)),
			logger.Error(err))
		invErr := fmt.Errorf("%w: %s: %w", ErrCallbackInvocation, l.subject, err)
		return nil, errors.Join(invErr, l.onError(ctx, id, err))
	}

	l.logger.DebugContext(ctx, "listener call completed",
		logger.Subject(l.subject),
		logger.RequestID(id),
		logger.Duration(time.Since(start)))

	if l.suppressCompletion {
		return result, nil
	}
	if err := l.onCompleted(ctx, id, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Listener) safeCall(ctx context.Context, args Args) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.handler.Call(ctx, args)
}

func (l *Listener) onCompleted(ctx context.Context, id string, result any) error {
	body, err := Encode(result)
	if err != nil {
		encErr := fmt.Errorf("encode result: %w", err)
		return errors.Join(
			fmt.Errorf("%w: %s: %w", ErrCallbackInvocation, l.subject, encErr),
			l.onError(ctx, id, encErr),
		)
	}
	return l.publish(ctx, CompletedChannel(l.subject, id), body)
}

func (l *Listener) onError(ctx context.Context, id string, cause error) error {
	body, err := Encode(map[string]any{"error": cause.Error()})
	if err != nil {
		return err
	}
	return l.publish(ctx, ErrorChannel(l.subject, id), body)
}

func (l *Listener) publish(ctx context.Context, channel string, body []byte) error {
	if err := l.pub.Publish(ctx, channel, body); err != nil {
		l.logger.ErrorContext(ctx, "failed to publish event",
			logger.Channel(channel),
			logger.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrPublish, channel, err)
	}
	return nil
}
