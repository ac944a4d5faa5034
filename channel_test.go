package rpc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rpc "github.com/RidgeA/pubsub-rpc"
)

const testPkg = "github.com/RidgeA/pubsub-rpc_test"

func multiply(_ context.Context, args rpc.Args) (any, error) {
	return args.Int("x") * args.Int("y"), nil
}

type calc struct{ factor int }

func (c *calc) Scale(_ context.Context, args rpc.Args) (any, error) {
	return c.factor * args.Int("x"), nil
}

type mulArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func typedMultiply(_ context.Context, a mulArgs) (int, error) {
	return a.X * a.Y, nil
}

func TestInboundPattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pkg.fn:on_next:*", rpc.InboundPattern("pkg.fn"))
	assert.Equal(t, "pkg.fn:on_next:1", rpc.NextChannel("pkg.fn", "1"))
	assert.Equal(t, "pkg.fn:on_completed:1", rpc.CompletedChannel("pkg.fn", "1"))
	assert.Equal(t, "pkg.fn:on_error:1", rpc.ErrorChannel("pkg.fn", "1"))
}

func TestParseChannel(t *testing.T) {
	t.Parallel()

	t.Run("three parts", func(t *testing.T) {
		t.Parallel()
		subject, op, id, err := rpc.ParseChannel("pkg.fn:on_next:42")
		require.NoError(t, err)
		assert.Equal(t, "pkg.fn", subject)
		assert.Equal(t, "on_next", op)
		assert.Equal(t, "42", id)
	})

	t.Run("id keeps extra separators", func(t *testing.T) {
		t.Parallel()
		_, _, id, err := rpc.ParseChannel("pkg.fn:on_next:a:b")
		require.NoError(t, err)
		assert.Equal(t, "a:b", id)
	})

	t.Run("empty id", func(t *testing.T) {
		t.Parallel()
		_, _, id, err := rpc.ParseChannel("pkg.fn:on_error:")
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	for _, channel := range []string{"not-three-parts", "pkg.fn:on_next", ""} {
		channel := channel
		t.Run("malformed "+channel, func(t *testing.T) {
			t.Parallel()
			_, _, _, err := rpc.ParseChannel(channel)
			assert.ErrorIs(t, err, rpc.ErrMalformedChannel)
		})
	}
}

func TestDeriveSubject(t *testing.T) {
	t.Parallel()

	t.Run("explicit override wins", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "TEST", rpc.DeriveSubject(rpc.HandlerFunc(multiply), "TEST"))
	})

	t.Run("package function", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, testPkg+".multiply", rpc.DeriveSubject(rpc.HandlerFunc(multiply), ""))
	})

	t.Run("method value", func(t *testing.T) {
		t.Parallel()
		c := &calc{factor: 2}
		assert.Equal(t, testPkg+".calc.Scale", rpc.DeriveSubject(rpc.HandlerFunc(c.Scale), ""))
	})

	t.Run("typed handler keeps wrapped name", func(t *testing.T) {
		t.Parallel()
		h := rpc.NewTypedHandler(typedMultiply)
		assert.Equal(t, testPkg+".typedMultiply", rpc.DeriveSubject(h, ""))
	})

	t.Run("stable across calls", func(t *testing.T) {
		t.Parallel()
		a := rpc.DeriveSubject(rpc.HandlerFunc(multiply), "")
		b := rpc.DeriveSubject(rpc.HandlerFunc(multiply), "")
		assert.Equal(t, a, b)
	})
}
