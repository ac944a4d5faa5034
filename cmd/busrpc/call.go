package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	rpc "github.com/RidgeA/pubsub-rpc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func callCmd(configPath *string) *cobra.Command {
	var (
		noWait  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <subject> [key=value...]",
		Short: "Publish a request and print the reply",
		Example: `  busrpc call github.com/RidgeA/pubsub-rpc/internal/functions/arith.Multiply x=2 y=3
  busrpc call github.com/RidgeA/pubsub-rpc/internal/functions/text.Printer.Write text='"hi"' --no-wait`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			rt, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := rt.transport.Initialize(ctx); err != nil {
				return err
			}
			defer rt.transport.Shutdown()

			caller := rpc.NewCaller(rt.transport, rpc.SetCallerLogger(rt.log))
			if !noWait {
				if err := caller.Start(ctx); err != nil {
					return err
				}
				defer caller.Shutdown()
			}

			reply, err := caller.Call(ctx, args[0], params, !noWait)
			if err != nil && !rpc.IsRemoteError(err) {
				return err
			}
			if noWait {
				fmt.Fprintln(cmd.OutOrStdout(), reply.ID)
				return nil
			}

			out, merr := json.MarshalIndent(reply.Body, "", "  ")
			if merr != nil {
				return merr
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "publish without waiting for the reply")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the reply")
	return cmd
}

// parseParams turns key=value pairs into request arguments. Values are read
// as JSON when they parse, as plain strings otherwise.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		var v any
		if err := json.UnmarshalFromString(raw, &v); err != nil {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}
