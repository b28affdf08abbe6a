package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/secrets"
	"mercator-hq/courier/pkg/server"
	"mercator-hq/courier/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the proxy server",
	Long: `Start the proxy server with the specified configuration.

The server listens on the configured address and translates Anthropic
Messages API requests into chat-completions calls against the backend.
When watch.enabled is set, edits to the configuration file are applied to
new requests without a restart.

Examples:
  # Start with config.yaml or environment variables
  courier run

  # Start with custom config
  courier run --config /etc/courier/config.yaml

  # Override listen address
  courier run --listen 127.0.0.1:9000

  # Validate config without starting server
  courier run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Logger)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	printBanner(cmd, cfg, path)

	srv, err := server.New(cfg, Version)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if cfg.Watch.Enabled && path != "" {
		startConfigWatcher(ctx, path, cfg.Watch, logger, srv)
	}

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
	return nil
}

// startConfigWatcher applies configuration edits to the running server.
// The command-line overrides are re-applied on top of every reload.
func startConfigWatcher(ctx context.Context, path string, watch config.WatchConfig, logger *logging.Logger, srv *server.Server) {
	watcher, err := config.NewWatcher(path, watch.Debounce, func(next *config.Config) {
		if runFlags.listenAddress != "" {
			next.Proxy.ListenAddress = runFlags.listenAddress
		}
		if runFlags.logLevel != "" {
			next.Telemetry.Logging.Level = runFlags.logLevel
		}
		if err := secrets.FromConfig(&next.Secrets).ResolveConfig(ctx, next); err != nil {
			slog.Error("reloaded config has unresolved secrets, keeping current config", "error", err)
			return
		}
		if err := logger.SetLevel(next.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring invalid log level from reloaded config", "error", err)
		}
		srv.UpdateConfig(next)
	})
	if err != nil {
		slog.Warn("config watching disabled", "error", err)
		return
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()
}

func printBanner(cmd *cobra.Command, cfg *config.Config, path string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Courier v%s\n", Version)
	if path != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", path)
	} else {
		fmt.Fprintln(out, "Loading configuration from environment")
	}
	fmt.Fprintln(out, "✓ Configuration loaded")
	fmt.Fprintf(out, "  Backend:   %s\n", cfg.Backend.BaseURL)
	fmt.Fprintf(out, "  Models:    big=%s middle=%s small=%s\n", cfg.Models.Big, cfg.Models.Middle, cfg.Models.Small)
	fmt.Fprintf(out, "  Listening: %s\n", cfg.Proxy.ListenAddress)
	if cfg.Auth.ClientAPIKey != "" && !cfg.Auth.IgnoreClientAPIKey {
		fmt.Fprintln(out, "  Client API key validation: enabled")
	}
	if cfg.EventLog.Enabled {
		slog.Debug("event log enabled", "backend", cfg.EventLog.Backend)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
