package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RidgeA/pubsub-rpc/internal/mocks"
	"github.com/RidgeA/pubsub-rpc/transport"
)

type fakeSubscription struct {
	ch     chan transport.Message
	once   sync.Once
	closed chan struct{}
}

func newFakeSubscription(buffer int) *fakeSubscription {
	return &fakeSubscription{
		ch:     make(chan transport.Message, buffer),
		closed: make(chan struct{}),
	}
}

func (s *fakeSubscription) Messages() <-chan transport.Message {
	return s.ch
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func echo(_ context.Context, args Args) (any, error) {
	return args.String("v"), nil
}

func TestBroker_DeliveryLoop(t *testing.T) {
	t.Parallel()

	t.Run("malformed channel does not stop delivery", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tr := mocks.NewMockTransport(ctrl)
		sub := newFakeSubscription(2)

		tr.EXPECT().Initialize(gomock.Any()).Return(nil)
		tr.EXPECT().Subscribe(gomock.Any(), "echo:on_next:*").Return(sub, nil)
		tr.EXPECT().Shutdown().Return(nil)

		handled := make(chan struct{})
		tr.EXPECT().
			Publish(gomock.Any(), "echo:on_completed:2", []byte(`{"data":"ok"}`)).
			DoAndReturn(func(context.Context, string, []byte) error {
				close(handled)
				return nil
			})

		b := NewBroker(tr)
		_, err := b.Register(HandlerFunc(echo), SetSubject("echo"))
		require.NoError(t, err)

		task, err := b.Run(context.Background())
		require.NoError(t, err)

		sub.ch <- transport.Message{Pattern: "echo:on_next:*", Channel: "echo", Payload: []byte(`{}`)}
		sub.ch <- transport.Message{Pattern: "echo:on_next:*", Channel: "echo:on_next:2", Payload: []byte(`{"v":"ok"}`)}

		select {
		case <-handled:
		case <-time.After(time.Second):
			t.Fatal("second message was not handled")
		}

		require.NoError(t, b.Shutdown())
		assert.NoError(t, task.Wait())
		<-sub.closed
	})

	t.Run("publish failure ends the task", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tr := mocks.NewMockTransport(ctrl)
		sub := newFakeSubscription(1)
		boom := errors.New("connection reset")

		tr.EXPECT().Initialize(gomock.Any()).Return(nil)
		tr.EXPECT().Subscribe(gomock.Any(), "echo:on_next:*").Return(sub, nil)
		tr.EXPECT().Publish(gomock.Any(), "echo:on_completed:1", gomock.Any()).Return(boom)
		tr.EXPECT().Shutdown().Return(nil)

		b := NewBroker(tr)
		_, err := b.Register(HandlerFunc(echo), SetSubject("echo"))
		require.NoError(t, err)

		task, err := b.Run(context.Background())
		require.NoError(t, err)

		sub.ch <- transport.Message{Pattern: "echo:on_next:*", Channel: "echo:on_next:1", Payload: []byte(`{}`)}

		err = task.Wait()
		assert.ErrorIs(t, err, ErrPublish)
		assert.ErrorIs(t, err, boom)
		<-sub.closed

		require.NoError(t, b.Shutdown())
	})

	t.Run("closed subscription is reported", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tr := mocks.NewMockTransport(ctrl)
		sub := newFakeSubscription(0)

		tr.EXPECT().Initialize(gomock.Any()).Return(nil)
		tr.EXPECT().Subscribe(gomock.Any(), "echo:on_next:*").Return(sub, nil)

		b := NewBroker(tr)
		_, err := b.Register(HandlerFunc(echo), SetSubject("echo"))
		require.NoError(t, err)

		task, err := b.Run(context.Background())
		require.NoError(t, err)

		close(sub.ch)
		assert.ErrorIs(t, task.Wait(), ErrSubscriptionClosed)
	})

	t.Run("unknown pattern is skipped", func(t *testing.T) {
		b := NewBroker(nil)
		err := b.route(context.Background(), transport.Message{Pattern: "other:on_next:*"}, map[string][]*Listener{})
		assert.NoError(t, err)
	})
}

func TestBroker_InitializeFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	boom := errors.New("dial tcp: connection refused")
	tr.EXPECT().Initialize(gomock.Any()).Return(boom)

	b := NewBroker(tr)
	_, err := b.Register(HandlerFunc(echo), SetSubject("echo"))
	require.NoError(t, err)

	_, err = b.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateUninitialized, b.State())

	// nothing to release, Shutdown must not reach the transport
	require.NoError(t, b.Shutdown())
	assert.Equal(t, StateStopped, b.State())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "configured", StateConfigured.String())
	assert.Equal(t, "accepting", StateAccepting.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
