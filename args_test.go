package rpc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rpc "github.com/RidgeA/pubsub-rpc"
)

func TestArgs(t *testing.T) {
	t.Parallel()

	args := rpc.Args{
		"n":    float64(3),
		"s":    "42",
		"b":    "true",
		"text": "hi",
		"bad":  "x",
	}

	assert.True(t, args.Has("n"))
	assert.False(t, args.Has("missing"))
	assert.Equal(t, 3, args.Int("n"))
	assert.Equal(t, int64(42), args.Int64("s"))
	assert.Equal(t, 42.0, args.Float64("s"))
	assert.True(t, args.Bool("b"))
	assert.Equal(t, "hi", args.String("text"))
	assert.Equal(t, "", args.String("missing"))

	n, err := args.IntE("s")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = args.IntE("missing")
	assert.Error(t, err)
	_, err = args.Float64E("bad")
	assert.Error(t, err)
}

func TestArgs_Decode(t *testing.T) {
	t.Parallel()

	var in mulArgs
	require.NoError(t, rpc.Args{"x": 2, "y": 3}.Decode(&in))
	assert.Equal(t, mulArgs{X: 2, Y: 3}, in)

	assert.Error(t, rpc.Args{"x": "two"}.Decode(&in))
}
