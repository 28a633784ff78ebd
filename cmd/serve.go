package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
	"chatbridge/pkg/channel/telegram"
	"chatbridge/pkg/channel/vk"
	"chatbridge/pkg/config"
	"chatbridge/pkg/gateway"
	"chatbridge/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway",
	Long:  "Serves the per-platform webhook routes plus health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		// .env is optional; real deployments set env vars directly.
		_ = godotenv.Load()

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
		log := slog.Default().With("component", "cmd.serve")

		pairs, err := resolvePairs(cfg, appLogger)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		svc, err := gateway.NewService(cfg, pairs, echoDispatcher(pairs, log), appLogger)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newRegistry binds every supported platform.
func newRegistry() *channel.Registry {
	registry := channel.NewRegistry()
	registry.Register("telegram", telegram.FromCredentials)
	registry.Register("vk", vk.FromCredentials)
	return registry
}

// resolvePairs constructs the channel pair for every enabled platform.
// Missing credentials are fatal: the platform is misconfigured, not absent.
func resolvePairs(cfg *config.Config, log *slog.Logger) ([]gateway.Pair, error) {
	registry := newRegistry()
	opts := channel.Options{Logger: log, Debug: cfg.Debug}

	enabled := make(map[string]channel.Credentials)
	if cfg.Channels.Telegram.Enabled {
		enabled["telegram"] = cfg.Channels.Telegram.Credentials()
	}
	if cfg.Channels.VK.Enabled {
		enabled["vk"] = cfg.Channels.VK.Credentials()
	}

	pairs := make([]gateway.Pair, 0, len(enabled))
	for _, name := range registry.Platforms() {
		creds, ok := enabled[name]
		if !ok {
			continue
		}

		inbound, outbound, err := registry.Resolve(name, creds, opts)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, gateway.Pair{Name: name, Inbound: inbound, Outbound: outbound})
	}

	if len(pairs) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return pairs, nil
}

// echoDispatcher is the built-in stand-in for an external dialogue engine:
// it answers every canonical message on the sender's own channel.
func echoDispatcher(pairs []gateway.Pair, log *slog.Logger) channel.Dispatcher {
	outbounds := make(map[string]channel.Outbound, len(pairs))
	for _, pair := range pairs {
		outbounds[pair.Name] = pair.Outbound
	}

	return func(ctx context.Context, msg bus.CanonicalMessage) error {
		outbound, ok := outbounds[msg.InputChannel]
		if !ok {
			return fmt.Errorf("no outbound channel for %q", msg.InputChannel)
		}

		log.Info("Echoing message", "channel", msg.InputChannel, "sender_id", msg.SenderID)
		return outbound.Send(ctx, msg.SenderID, bus.Text("You said: "+msg.Text))
	}
}
