package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/datahunters/photoingest/internal/encoders"
	"github.com/datahunters/photoingest/internal/ingest"
	"github.com/datahunters/photoingest/internal/sources"
)

// Exit codes of the extract command.
const (
	exitInternal          = 1
	exitUnsupportedFormat = 3
	exitCorruptedArchive  = 4
)

type extractOutput struct {
	Status string        `json:"status"`
	Format string        `json:"format"`
	Dir    string        `json:"dir,omitempty"`
	Files  []ingest.File `json:"files"`
}

var extractCommand = &cli.Command{
	Name:  "extract",
	Usage: "Extract media from a single archive file or URL",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Root under which the staging directory is created",
			Value: filepath.Join(os.TempDir(), "photoingest"),
		},
		&cli.StringSliceFlag{
			Name:  "ext",
			Usage: "Accepted media extensions, replacing the defaults (can be repeated)",
		},
		&cli.StringFlag{
			Name:  "expr",
			Usage: "CEL expression over name, path and size that entries must satisfy",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "archive",
			UsageText: "Path or http(s) URL of the archive",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		location := command.StringArg("archive")
		if location == "" {
			return fmt.Errorf("no archive provided")
		}

		source, err := openSource(location)
		if err != nil {
			return err
		}

		filter, err := extractFilter(command.StringSlice("ext"), command.String("expr"))
		if err != nil {
			return err
		}

		provider := ingest.NewOsStagingProvider(logger.Named("staging"), command.String("dir"))
		handler := ingest.NewHandler(logger.Named("handler"), provider, ingest.WithFilter(filter))

		rc, err := source.Open(ctx)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer rc.Close()

		result, err := handler.Handle(ctx, rc, source.Hint())
		if err != nil {
			return extractExitError(err)
		}

		out := extractOutput{
			Status: "ok",
			Format: result.Format.String(),
			Files:  result.Files,
		}
		if result.NoMedia() {
			out.Status = "no_media"
		} else {
			out.Dir = result.Dir.Path()
		}

		if isInteractive(ctx) {
			printExtraction(out)
			return nil
		}

		reader, err := encoders.NewJSONEncoder("").Encode(ctx, out)
		if err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, reader)
		return err
	},
}

func openSource(location string) (sources.Source, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return sources.NewHTTPSource(sources.HTTPConfig{URL: location})
	}
	return sources.NewOsFileSource(location)
}

func extractFilter(extensions []string, expression string) (ingest.Filter, error) {
	filter := ingest.Filter(ingest.NewExtensionFilter(extensions...))
	if expression == "" {
		return filter, nil
	}
	expr, err := ingest.NewExprFilter(expression)
	if err != nil {
		return nil, err
	}
	return ingest.AllOf(filter, expr), nil
}

// extractExitError prefixes the classification code and picks an exit code
// per failure class.
func extractExitError(err error) error {
	code := ingest.Classify(err)
	switch code {
	case ingest.CodeUnsupportedFormat:
		return cli.Exit(fmt.Sprintf("%s: %v", code, err), exitUnsupportedFormat)
	case ingest.CodeCorruptedArchive:
		return cli.Exit(fmt.Sprintf("%s: %v", code, err), exitCorruptedArchive)
	default:
		return cli.Exit(fmt.Sprintf("%s: %v", code, err), exitInternal)
	}
}

func printExtraction(out extractOutput) {
	if out.Status == "no_media" {
		fmt.Printf("∅ %s archive holds no media\n", out.Format)
		return
	}
	fmt.Printf("✓ %d file(s) extracted from %s archive into %s\n", len(out.Files), out.Format, out.Dir)
	for _, f := range out.Files {
		fmt.Printf("  %-32s %8d  %s  %s\n", f.Name, f.Size, f.ContentType, f.Digest)
	}
}
