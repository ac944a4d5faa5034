package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	rpc "github.com/RidgeA/pubsub-rpc"
	"github.com/RidgeA/pubsub-rpc/internal/config"
	"github.com/RidgeA/pubsub-rpc/internal/logger"
	"github.com/RidgeA/pubsub-rpc/transport"
	"github.com/RidgeA/pubsub-rpc/transport/inmemory"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "busrpc",
		Short:        "Serve and call functions over a pub/sub bus",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "transport config file (overrides BUSRPC_CONFIG)")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(callCmd(&configPath))
	root.AddCommand(listCmd())
	return root
}

// runtime is what every bus command needs: settings, a logger and a
// transport that is not initialized yet.
type runtime struct {
	cfg       config.Config
	log       *slog.Logger
	logCloser io.Closer
	transport rpc.Transport
}

func setup(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, closer, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return nil, err
	}

	t, err := newTransport(cfg.File)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	log.Debug("configuration loaded", logger.Transport(cfg.Driver), slog.String("file", cfg.ConfigFile))
	return &runtime{
		cfg:       cfg,
		log:       log,
		logCloser: closer,
		transport: t,
	}, nil
}

func (r *runtime) Close() error {
	return r.logCloser.Close()
}

func newTransport(f config.File) (rpc.Transport, error) {
	switch f.Driver {
	case config.DriverRedis, "":
		return transport.NewRedisTransport(f.RedisOptions()), nil
	case config.DriverAMQP:
		return transport.NewAMQPTransport(f.URL, transport.SetExchange(f.Exchange)), nil
	case config.DriverMemory:
		return inmemory.New(), nil
	default:
		return nil, errors.Join(config.ErrInvalidConfig, fmt.Errorf("unknown driver %q", f.Driver))
	}
}
