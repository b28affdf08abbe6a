package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print detailed version information including Git commit and build date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := formatter()
		if err != nil {
			return err
		}
		return f.FormatTo(cmd.OutOrStdout(), versionInfo())
	},
}

func versionInfo() cli.Fields {
	return cli.Fields{
		{Key: "version", Value: Version},
		{Key: "git_commit", Value: GitCommit},
		{Key: "build_date", Value: BuildDate},
		{Key: "go_version", Value: runtime.Version()},
		{Key: "os_arch", Value: runtime.GOOS + "/" + runtime.GOARCH},
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
