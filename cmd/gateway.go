package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ocppgate/pkg/bus"
	"ocppgate/pkg/channel"
	"ocppgate/pkg/channel/console"
	"ocppgate/pkg/config"
	"ocppgate/pkg/gateway"
	"ocppgate/pkg/logger"

	"github.com/spf13/cobra"
)

const consoleChannelName = "console"

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the central system gateway",
	Long:  "Serves the SOAP router and version endpoints over HTTP, runs the enabled JSON channels, and exposes health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		mb := bus.NewMessageBus()
		adapters, err := enabledAdapters(cfg, os.Stdin, os.Stdout, mb, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, adapters, log, gateway.WithBus(mb))
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "router_path", cfg.SOAP.RouterPath, "soap_endpoints", len(cfg.SOAP.Endpoints))
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

// enabledAdapters builds the configured JSON channels. SOAP needs no channel,
// so an empty list is valid.
func enabledAdapters(cfg *config.Config, in io.Reader, out io.Writer, mb *bus.MessageBus, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Console.Enabled {
		adapter, err := console.NewAdapter(cfg.Channels.Console, in, out, mb, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", consoleChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
