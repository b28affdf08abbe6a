package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/providers/openai"
	"mercator-hq/courier/pkg/proxy/handlers"
)

var checkFlags struct {
	model   string
	timeout time.Duration
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Send a test request to the backend",
	Long: `Send a minimal chat-completions request to the configured backend and
report whether the credentials and model work. The proxy does not need to be
running.

Examples:
  # Check with the configured small model
  courier check

  # Check a specific backend model, JSON output
  courier check --model gpt-4o -o json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.model, "model", "", "backend model to use (default: models.small)")
	checkCmd.Flags().DurationVar(&checkFlags.timeout, "timeout", 30*time.Second, "overall timeout")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	f, err := formatter()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkFlags.timeout)
	defer cancel()

	result, err := checkBackend(ctx, cfg, checkFlags.model)
	if fmtErr := f.FormatTo(cmd.OutOrStdout(), result); fmtErr != nil {
		return fmtErr
	}
	if err != nil {
		return cli.NewCommandError("check", err)
	}
	return nil
}

// checkBackend runs the test request and describes the outcome.
func checkBackend(ctx context.Context, cfg *config.Config, model string) (cli.Fields, error) {
	if model == "" {
		model = cfg.Models.Small
	}

	client := openai.NewClient(openai.ProviderConfig(&cfg.Backend), nil)
	defer client.Close()

	started := time.Now()
	resp, err := handlers.TestConnection(ctx, client, model)
	if err != nil {
		return cli.Fields{
			{Key: "status", Value: "failed"},
			{Key: "backend", Value: cfg.Backend.BaseURL},
			{Key: "model", Value: model},
			{Key: "error", Value: err.Error()},
		}, err
	}

	return cli.Fields{
		{Key: "status", Value: "success"},
		{Key: "backend", Value: cfg.Backend.BaseURL},
		{Key: "model", Value: model},
		{Key: "response_id", Value: resp.ID},
		{Key: "latency", Value: time.Since(started).Round(time.Millisecond).String()},
	}, nil
}
