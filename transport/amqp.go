package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/streadway/amqp"
)

const (
	DefaultExchange = "busrpc.events"

	// bindAll routes every message on the exchange to a subscriber queue;
	// channel patterns are matched after delivery.
	bindAll = "#"
)

var ErrAMQPNotConnected = errors.New("amqp transport is not initialized")

type (
	// AMQPTransport carries channels as routing keys on a topic exchange.
	AMQPTransport struct {
		url          string
		exchangeName string
		tag          string
		extConn      bool

		mu   sync.Mutex
		conn *amqp.Connection
		out  *amqp.Channel
	}

	OptionsFunc func(transport *AMQPTransport)

	amqpSubscription struct {
		in       *amqp.Channel
		patterns []string
		ch       chan Message
		done     chan struct{}
		once     sync.Once
	}
)

func NewAMQPTransport(url string, options ...OptionsFunc) *AMQPTransport {
	t := &AMQPTransport{
		url:          url,
		exchangeName: DefaultExchange,
	}

	for _, f := range options {
		f(t)
	}
	return t
}

// SetConnection makes the transport use an existing connection. The
// connection is not closed on Shutdown.
func SetConnection(conn *amqp.Connection) OptionsFunc {
	return func(t *AMQPTransport) {
		t.extConn = true
		t.conn = conn
	}
}

func SetExchange(name string) OptionsFunc {
	return func(t *AMQPTransport) {
		if name != "" {
			t.exchangeName = name
		}
	}
}

// SetConsumerTag names the consumers created by Subscribe.
func SetConsumerTag(tag string) OptionsFunc {
	return func(t *AMQPTransport) {
		t.tag = tag
	}
}

func (t *AMQPTransport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.conn == nil {
		t.conn, err = amqp.Dial(t.url)
		if err != nil {
			return err
		}
	}

	t.out, err = t.conn.Channel()
	if err != nil {
		return err
	}

	return t.out.ExchangeDeclare(t.exchangeName, amqp.ExchangeTopic, false, true, false, false, nil)
}

func (t *AMQPTransport) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.out != nil {
		errs = append(errs, t.out.Close())
		t.out = nil
	}

	if !t.extConn && t.conn != nil {
		errs = append(errs, t.conn.Close())
		t.conn = nil
	}
	return errors.Join(errs...)
}

func (t *AMQPTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.out == nil {
		return ErrAMQPNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         payload,
	}
	return t.out.Publish(t.exchangeName, channel, false, false, publishing)
}

// Subscribe declares an exclusive queue bound to every routing key and
// forwards deliveries whose routing key matches one of patterns.
func (t *AMQPTransport) Subscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, ErrAMQPNotConnected
	}

	in, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	q, err := in.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = in.Close()
		return nil, err
	}

	if err = in.QueueBind(q.Name, bindAll, t.exchangeName, false, nil); err != nil {
		_ = in.Close()
		return nil, err
	}

	delivery, err := in.Consume(q.Name, t.tag, true, true, false, false, nil)
	if err != nil {
		_ = in.Close()
		return nil, err
	}

	s := &amqpSubscription{
		in:       in,
		patterns: append([]string(nil), patterns...),
		ch:       make(chan Message),
		done:     make(chan struct{}),
	}
	go s.handle(delivery)
	return s, nil
}

func (s *amqpSubscription) handle(in <-chan amqp.Delivery) {
	defer close(s.ch)
	for {
		select {
		case d, ok := <-in:
			if !ok {
				return
			}
			for _, pattern := range MatchAny(s.patterns, d.RoutingKey) {
				msg := Message{
					Pattern: pattern,
					Channel: d.RoutingKey,
					Payload: d.Body,
				}
				select {
				case s.ch <- msg:
				case <-s.done:
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *amqpSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *amqpSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.in.Close()
	})
	return err
}
