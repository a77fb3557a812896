package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/datahunters/photoingest/internal/archivers"
	"github.com/datahunters/photoingest/internal/encoders"
	"github.com/datahunters/photoingest/internal/ingest"
)

// version can be overridden at link time with -X main.version=...
var version = ""

type buildInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty"`

	// Formats the ingest core can read and the bundle codecs it can write.
	Compressions []string `json:"compressions"`
	Containers   []string `json:"containers"`
	Bundles      []string `json:"bundles"`
}

func newBuildInfo(info *debug.BuildInfo) buildInfo {
	bi := buildInfo{
		Version:      "devel",
		GoVersion:    "unknown",
		Compressions: supportedCompressions(),
		Containers:   []string{ingest.ContainerZip.String(), ingest.ContainerTar.String()},
		Bundles:      archivers.Compressions,
	}

	if info != nil {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			bi.Version = v
		}
		bi.GoVersion = info.GoVersion
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				bi.Commit = setting.Value
			case "vcs.time":
				bi.BuildTime = setting.Value
			case "vcs.modified":
				bi.Modified = setting.Value == "true"
			}
		}
	}

	if version != "" {
		bi.Version = version
	}
	return bi
}

func supportedCompressions() []string {
	kinds := []ingest.CompressionKind{
		ingest.CompressionGzip,
		ingest.CompressionBzip2,
		ingest.CompressionXz,
		ingest.CompressionZstd,
		ingest.CompressionLz4,
	}
	return lo.Map(kinds, func(k ingest.CompressionKind, _ int) string { return k.String() })
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print build information and supported archive formats",
	Action: func(ctx context.Context, command *cli.Command) error {
		info, _ := debug.ReadBuildInfo()
		bi := newBuildInfo(info)

		if isInteractive(ctx) {
			printBuildInfo(os.Stdout, bi)
			return nil
		}

		reader, err := encoders.NewJSONEncoder("").Encode(ctx, bi)
		if err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, reader)
		return err
	},
}

func printBuildInfo(w io.Writer, bi buildInfo) {
	fmt.Fprintf(w, "photoingest %s (%s)\n", bi.Version, bi.GoVersion)
	if bi.Commit != "" {
		commit := bi.Commit
		if bi.Modified {
			commit += " (dirty)"
		}
		fmt.Fprintf(w, "commit: %s\n", commit)
	}
	if bi.BuildTime != "" {
		fmt.Fprintf(w, "built: %s\n", bi.BuildTime)
	}
	fmt.Fprintf(w, "reads: %s, optionally compressed with %s\n",
		strings.Join(bi.Containers, ", "), strings.Join(bi.Compressions, ", "))
	fmt.Fprintf(w, "bundles: %s\n", strings.Join(bi.Bundles, ", "))
}
