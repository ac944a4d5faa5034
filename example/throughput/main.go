package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	rpc "github.com/RidgeA/pubsub-rpc"
	"github.com/RidgeA/pubsub-rpc/transport/inmemory"
)

func main() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	t := inmemory.New()
	broker := rpc.NewBroker(t, rpc.SetConcurrency(2))
	caller := rpc.NewCaller(t)

	_, err := broker.Register(rpc.HandlerFunc(func(_ context.Context, args rpc.Args) (any, error) {
		time.Sleep(500 * time.Millisecond)
		fmt.Printf("%s: server log: %s\n", time.Now().Format("15:04:05.999999"), args.String("text"))
		return nil, nil
	}), rpc.SetSubject("write"), rpc.DisableCompletion())
	if err != nil {
		log.Fatal(err.Error())
	}

	if _, err := broker.Run(context.Background()); err != nil {
		log.Fatal(err.Error())
	}
	defer broker.Shutdown()

	for i := 0; i < 10; i++ {
		_, err := caller.Call(context.Background(), "write", map[string]any{"text": strconv.Itoa(i) + ":hello!"}, false)
		if err != nil {
			log.Fatal(err.Error())
		}
	}

	time.Sleep(3000 * time.Millisecond)
}
