package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisNotReady      = errors.New("redis did not become ready within the given retry budget")
	ErrInvalidRedisURL    = errors.New("failed to parse redis connection string")
	ErrRedisNotConnected  = errors.New("redis transport is not initialized")
	ErrRedisEmptyPatterns = errors.New("at least one pattern is required")
)

type (
	// RedisOptions configures a RedisTransport. URL takes precedence over
	// the discrete connection fields.
	RedisOptions struct {
		URL      string
		Host     string
		Port     int
		Username string
		Password string
		DB       int

		RetryAttempts int
		RetryInterval time.Duration
	}

	// RedisTransport publishes with PUBLISH and subscribes with PSUBSCRIBE.
	RedisTransport struct {
		opts RedisOptions

		mu     sync.RWMutex
		client *redis.Client
		extCli bool
	}

	RedisOptionsFunc func(*RedisTransport)

	redisSubscription struct {
		ps   *redis.PubSub
		ch   chan Message
		done chan struct{}
		once sync.Once
	}
)

// SetRedisClient makes the transport use an existing client. The client is
// not closed on Shutdown.
func SetRedisClient(client *redis.Client) RedisOptionsFunc {
	return func(t *RedisTransport) {
		t.client = client
		t.extCli = true
	}
}

func NewRedisTransport(opts RedisOptions, options ...RedisOptionsFunc) *RedisTransport {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	t := &RedisTransport{opts: opts}
	for _, f := range options {
		f(t)
	}
	return t
}

func (o RedisOptions) clientOptions() (*redis.Options, error) {
	if o.URL != "" {
		if !strings.HasPrefix(o.URL, "redis://") && !strings.HasPrefix(o.URL, "rediss://") {
			return nil, fmt.Errorf("%w: unsupported scheme", ErrInvalidRedisURL)
		}
		ro, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRedisURL, err)
		}
		return ro, nil
	}

	host := o.Host
	if host == "" {
		host = "localhost"
	}
	port := o.Port
	if port == 0 {
		port = 6379
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Username: o.Username,
		Password: o.Password,
		DB:       o.DB,
	}, nil
}

// Initialize connects and verifies the server with PING, retrying with
// exponential backoff.
func (t *RedisTransport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		ro, err := t.opts.clientOptions()
		if err != nil {
			return err
		}
		t.client = redis.NewClient(ro)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = t.opts.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(t.opts.RetryAttempts)), ctx)

	err := backoff.Retry(func() error {
		return t.client.Ping(ctx).Err()
	}, policy)
	if err != nil {
		if !t.extCli {
			_ = t.client.Close()
			t.client = nil
		}
		return fmt.Errorf("%w: %w", ErrRedisNotReady, err)
	}
	return nil
}

func (t *RedisTransport) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || t.extCli {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	client, err := t.getClient()
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, payload).Err()
}

// Subscribe issues one PSUBSCRIBE for all patterns and waits for the server
// to confirm it before returning.
func (t *RedisTransport) Subscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	if len(patterns) == 0 {
		return nil, ErrRedisEmptyPatterns
	}
	client, err := t.getClient()
	if err != nil {
		return nil, err
	}

	ps := client.PSubscribe(ctx, patterns...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &redisSubscription{
		ps:   ps,
		ch:   make(chan Message),
		done: make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

// Ping reports whether the server answers.
func (t *RedisTransport) Ping(ctx context.Context) error {
	client, err := t.getClient()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

func (t *RedisTransport) getClient() (*redis.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.client == nil {
		return nil, ErrRedisNotConnected
	}
	return t.client, nil
}

func (s *redisSubscription) forward() {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case m, ok := <-in:
			if !ok {
				return
			}
			msg := Message{
				Pattern: m.Pattern,
				Channel: m.Channel,
				Payload: []byte(m.Payload),
			}
			select {
			case s.ch <- msg:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
