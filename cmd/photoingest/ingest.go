package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/datahunters/photoingest/internal/runner"
)

var ingestCommand = &cli.Command{
	Name:  "ingest",
	Usage: "Run an ingestion job over a batch of archives",
	Flags: []cli.Flag{allowedEnvFlag},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "job",
			UsageText: "The job file to run, or - for stdin",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		job, err := loadJob(command.StringArg("job"), command.StringSlice("allowed-env"))
		if err != nil {
			return err
		}

		r, err := runner.New(ctx, logger.Named("runner"), job)
		if err != nil {
			return fmt.Errorf("failed to create runner: %w", err)
		}

		report, runErr := r.Run(ctx)
		if report != nil && isInteractive(ctx) {
			printReport(report)
		}
		if runErr != nil {
			return fmt.Errorf("failed to run job: %w", runErr)
		}

		return nil
	},
}

// printReport writes a summary to stderr so a manifest on stdout stays parseable.
func printReport(report *runner.Report) {
	for _, s := range report.Sources {
		mark := "✓"
		if s.Status != runner.StatusOK {
			mark = "✗"
		}
		fmt.Fprintf(os.Stderr, "%s %-20s %-18s %d file(s)", mark, s.ID, s.Status, len(s.Files))
		if s.Error != "" {
			fmt.Fprintf(os.Stderr, "  %s", s.Error)
		}
		fmt.Fprintln(os.Stderr)
	}
	fmt.Fprintf(os.Stderr, "%d ok, %d without media, %d rejected, %d failed\n",
		report.Count(runner.StatusOK),
		report.Count(runner.StatusNoMedia),
		report.Count(runner.StatusUnsupportedFormat)+report.Count(runner.StatusCorruptedArchive),
		report.Count(runner.StatusError),
	)
}
