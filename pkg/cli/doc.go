/*
Package cli provides helpers shared by the courier commands: error types
with exit codes, result formatting, a progress reporter for request loops and
signal handling.

Output Formatting:

Commands collect their result as ordered Fields and let the --output flag
pick the rendering:

	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	result := cli.Fields{
		{Key: "status", Value: "success"},
		{Key: "model", Value: model},
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	for i := 0; i < total; i++ {
		progress.Record(send())
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	// ctx is cancelled on SIGINT or SIGTERM
*/
package cli
