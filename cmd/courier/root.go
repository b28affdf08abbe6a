package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/secrets"
)

const defaultConfigFile = "config.yaml"

var (
	// Global flags
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier - Anthropic Messages API to OpenAI chat-completions proxy",
	Long: `Courier lets Claude clients use any OpenAI-compatible backend.

It accepts Anthropic Messages API requests, maps Claude model names onto the
configured backend models, translates requests, responses and SSE streams
between the two wire formats, and supports cancelling in-flight requests.

Configuration comes from a YAML file, a .env file and environment variables
(OPENAI_API_KEY, OPENAI_BASE_URL, BIG_MODEL, ... or COURIER_*), in that
order of increasing precedence.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json")
}

// configPath resolves the --config flag. Without the flag, config.yaml in
// the working directory is used when it exists; otherwise configuration
// comes from defaults and the environment alone.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	if _, err := os.Stat(defaultConfigFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return defaultConfigFile, nil
}

// loadConfig initializes the global configuration and resolves its secret
// references.
func loadConfig(ctx context.Context) (*config.Config, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", cli.NewConfigError("", err.Error())
	}
	if err := config.Initialize(path); err != nil {
		return nil, "", cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	cfg := config.GetConfig()
	if err := secrets.FromConfig(&cfg.Secrets).ResolveConfig(ctx, cfg); err != nil {
		return nil, "", cli.NewConfigError("secrets", err.Error())
	}
	return cfg, path, nil
}

// formatter returns the formatter selected by --output.
func formatter() (cli.Formatter, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}
