package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Validate a job file",
	Flags: []cli.Flag{allowedEnvFlag},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "job",
			UsageText: "The job file to validate, or - for stdin",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		jobFilename := command.StringArg("job")
		logger := getLogger(ctx).With(zap.String("job_filename", jobFilename))
		logger.Debug("validating job file")

		job, err := loadJob(jobFilename, command.StringSlice("allowed-env"))
		if err != nil {
			return err
		}

		fmt.Printf("✓ Job file '%s' is valid (%d source(s))\n", jobFilename, len(job.Spec.Sources))
		return nil
	},
}
