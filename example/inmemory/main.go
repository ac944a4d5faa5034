package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	rpc "github.com/RidgeA/pubsub-rpc"
	"github.com/RidgeA/pubsub-rpc/transport/inmemory"
)

func main() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	t := inmemory.New()
	broker := rpc.NewBroker(t)
	caller := rpc.NewCaller(t)

	register(broker, "upper", func(_ context.Context, args rpc.Args) (any, error) {
		return strings.ToUpper(args.String("text")), nil
	})
	register(broker, "lower", func(_ context.Context, args rpc.Args) (any, error) {
		return strings.ToLower(args.String("text")), nil
	})
	register(broker, "write", func(_ context.Context, args rpc.Args) (any, error) {
		fmt.Printf("Server log: %s\n", args.String("text"))
		return nil, nil
	})

	if _, err := broker.Run(context.Background()); err != nil {
		log.Fatal(err.Error())
	}
	defer broker.Shutdown()

	if err := caller.Start(context.Background()); err != nil {
		log.Fatal(err.Error())
	}
	defer caller.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	response, err := caller.Call(ctx, "upper", map[string]any{"text": "hello!"}, true)
	if err != nil {
		log.Fatal(err.Error())
	}
	if _, err = caller.Call(ctx, "write", map[string]any{"text": response.Data()}, false); err != nil {
		log.Fatal(err.Error())
	}

	response, err = caller.Call(ctx, "lower", map[string]any{"text": "BYE!"}, true)
	if err != nil {
		log.Fatal(err.Error())
	}
	if _, err = caller.Call(ctx, "write", map[string]any{"text": response.Data()}, false); err != nil {
		log.Fatal(err.Error())
	}

	time.Sleep(100 * time.Millisecond)
}

func register(b *rpc.Broker, subject string, fn rpc.HandlerFunc) {
	if _, err := b.Register(fn, rpc.SetSubject(subject), rpc.SetParams("text")); err != nil {
		log.Fatal(err.Error())
	}
}
