package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	rpc "github.com/RidgeA/pubsub-rpc"
	"github.com/RidgeA/pubsub-rpc/internal/functions/arith"
	"github.com/RidgeA/pubsub-rpc/transport"
)

func main() {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://127.0.0.1:6379/0"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	t := transport.NewRedisTransport(transport.RedisOptions{URL: url})
	broker := rpc.NewBroker(t, rpc.SetLogger(logger))

	multiply, err := broker.Register(rpc.NewTypedHandler(arith.Multiply))
	if err != nil {
		log.Fatal(err.Error())
	}
	divide, err := broker.Register(rpc.NewTypedHandler(arith.Divide))
	if err != nil {
		log.Fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := broker.Run(ctx); err != nil {
		log.Fatal(err.Error())
	}
	defer broker.Shutdown()

	caller := rpc.NewCaller(t, rpc.SetCallerLogger(logger))
	if err := caller.Start(ctx); err != nil {
		log.Fatal(err.Error())
	}
	defer caller.Shutdown()

	reply, err := caller.Call(ctx, multiply.Subject(), map[string]any{"x": 6, "y": 7}, true)
	if err != nil {
		log.Fatal(err.Error())
	}
	logger.Info("multiplied", slog.Any("result", reply.Data()))

	_, err = caller.Call(ctx, divide.Subject(), map[string]any{"x": 1, "y": 0}, true)
	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		logger.Info("remote failure", slog.String("subject", remote.Subject), slog.String("error", remote.Message))
	} else if err != nil {
		log.Fatal(err.Error())
	}
}
