package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	rpc "github.com/RidgeA/pubsub-rpc"
	"github.com/RidgeA/pubsub-rpc/internal/catalog"
	"github.com/RidgeA/pubsub-rpc/internal/logger"
)

var errNothingToServe = errors.New("nothing to serve, pass --module or --path")

func runCmd(configPath *string) *cobra.Command {
	var (
		modules     []string
		paths       []string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Register functions and serve requests until interrupted",
		Example: `  busrpc run --module arith
  busrpc run --path text:Upper --path text:Lower --concurrency 4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := catalog.New(cmd.OutOrStdout()).Resolve(modules, paths)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errNothingToServe
			}

			rt, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			broker := rpc.NewBroker(rt.transport,
				rpc.SetLogger(rt.log),
				rpc.SetConcurrency(concurrency))
			for _, e := range entries {
				if _, err := broker.Register(e.Handler); err != nil {
					return err
				}
				rt.log.Info("serving", logger.Subject(e.Subject()))
			}

			return serve(ctx, broker)
		},
	}

	cmd.Flags().StringSliceVarP(&modules, "module", "m", nil, "module whose functions are served (repeatable)")
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "single function as module:function (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "requests handled at once")
	return cmd
}

// serve runs the broker until ctx ends or delivery fails, then shuts it down.
func serve(ctx context.Context, broker *rpc.Broker) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return broker.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return broker.Shutdown()
	})
	return g.Wait()
}
