package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"

	v1 "github.com/datahunters/photoingest/apis/v1"
	"github.com/datahunters/photoingest/internal/runner"
)

var allowedEnvFlag = &cli.StringSliceFlag{
	Name:  "allowed-env",
	Usage: "Environment variables allowed in job configuration (can be repeated)",
}

// readJobFile reads the job from filename, or from stdin when it is "-".
func readJobFile(filename string) ([]byte, error) {
	if filename != "-" {
		return os.ReadFile(filename)
	}
	if isTerminalStdin() {
		return nil, errors.New("refusing to read a job from an interactive terminal")
	}
	return io.ReadAll(os.Stdin)
}

// loadJob reads, validates and expands a job file.
func loadJob(filename string, allowedEnv []string) (v1.IngestJob, error) {
	if filename == "" {
		return v1.IngestJob{}, errors.New("no job file provided")
	}

	data, err := readJobFile(filename)
	if err != nil {
		return v1.IngestJob{}, fmt.Errorf("failed to read job file '%s': %w", filename, err)
	}

	job, err := runner.ParseIngestJob(data)
	if err != nil {
		return v1.IngestJob{}, formatValidationError(err)
	}

	variables, err := runner.BuildVariables(job, allowedEnv)
	if err != nil {
		return v1.IngestJob{}, fmt.Errorf("failed to build variables: %w", err)
	}

	if err := runner.ExpandTemplates(&job, variables); err != nil {
		return v1.IngestJob{}, fmt.Errorf("failed to expand templates: %w", err)
	}

	return job, nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msg := fmt.Sprintf("job file has %d validation error(s):", len(validationErrs))
	for _, fe := range validationErrs {
		msg += fmt.Sprintf("\n  • %s: failed '%s' validation", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (param: %s)", fe.Param())
		}
	}
	return errors.New(msg)
}
