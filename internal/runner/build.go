package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	v1 "github.com/datahunters/photoingest/apis/v1"
	"github.com/datahunters/photoingest/internal/archivers"
	"github.com/datahunters/photoingest/internal/encoders"
	"github.com/datahunters/photoingest/internal/ingest"
	"github.com/datahunters/photoingest/internal/sinks"
	"github.com/datahunters/photoingest/internal/sources"
)

const (
	// ISO8601Basic is a URL-safe timestamp format without colons, suitable
	// for object keys and file names.
	ISO8601Basic = "20060102T150405Z"

	DefaultWorkers = 4
)

// namedSource ties a source to its job id.
type namedSource struct {
	id     string
	source sources.Source
}

func buildSources(specs []v1.Source) ([]namedSource, error) {
	built := make([]namedSource, 0, len(specs))
	for _, spec := range specs {
		source, err := buildSource(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to build source %q: %w", spec.ID, err)
		}
		built = append(built, namedSource{id: spec.ID, source: source})
	}
	return built, nil
}

func buildSource(spec v1.Source) (sources.Source, error) {
	switch {
	case spec.Path != nil && spec.URL != nil:
		return nil, errors.New("path and url are mutually exclusive")
	case spec.Path != nil:
		return sources.NewOsFileSource(*spec.Path)
	case spec.URL != nil:
		cfg := sources.HTTPConfig{
			URL:      *spec.URL,
			Headers:  spec.Headers,
			Insecure: spec.Insecure,
		}
		if spec.Timeout != nil {
			cfg.Timeout = time.Duration(*spec.Timeout) * time.Second
		}
		return sources.NewHTTPSource(cfg)
	default:
		return nil, errors.New("no path or url specified")
	}
}

// buildFilter returns nil when the job keeps the default media policy.
func buildFilter(spec *v1.FilterSpec) (ingest.Filter, error) {
	if spec == nil {
		return nil, nil
	}

	var filter ingest.Filter = ingest.NewExtensionFilter(spec.Extensions...)
	if spec.Expression != nil && *spec.Expression != "" {
		expr, err := ingest.NewExprFilter(*spec.Expression)
		if err != nil {
			return nil, err
		}
		filter = ingest.AllOf(filter, expr)
	}
	return filter, nil
}

func stagingRoot(spec *v1.StagingSpec) string {
	if spec != nil && spec.Path != nil && *spec.Path != "" {
		return *spec.Path
	}
	return filepath.Join(os.TempDir(), "photoingest")
}

func buildHandler(logger *zap.Logger, job v1.IngestJob) (*ingest.Handler, error) {
	filter, err := buildFilter(job.Spec.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}

	var opts []ingest.HandlerOption
	if filter != nil {
		opts = append(opts, ingest.WithFilter(filter))
	}

	root := stagingRoot(job.Spec.Staging)
	provider := ingest.NewOsStagingProvider(logger.Named("staging"), root)
	return ingest.NewHandler(logger.Named("handler"), provider, opts...), nil
}

// buildEncoder creates an encoder from the output spec.
// Defaults to compact JSON if no encoding is specified.
func buildEncoder(output *v1.OutputSpec) (encoders.Encoder, error) {
	if output == nil || output.Encoding == nil {
		return encoders.NewJSONEncoder(""), nil
	}

	if output.Encoding.JSON != nil {
		return encoders.NewJSONEncoder(output.Encoding.JSON.Indent), nil
	}

	return nil, fmt.Errorf("unknown encoding type")
}

// buildSink creates a sink from the job spec.
//
// Default behavior:
//   - No output spec: stdout sink
//   - No sink specified: stdout sink
//   - Explicit stdout sink: stdout sink
//   - Explicit filesystem sink: filesystem sink
//   - Explicit s3 sink: s3 sink
//
// If archive is configured, the inner sink is wrapped with an ArchiveSink.
func buildSink(ctx context.Context, job v1.IngestJob) (sinks.Sink, error) {
	sink, err := buildInnerSink(ctx, job)
	if err != nil {
		return nil, err
	}

	if job.Spec.Output != nil && job.Spec.Output.Archive != nil {
		return wrapWithArchiveSink(job, sink)
	}

	return sink, nil
}

func buildInnerSink(ctx context.Context, job v1.IngestJob) (sinks.Sink, error) {
	output := job.Spec.Output
	if output == nil || output.Sink == nil || output.Sink.Stdout != nil {
		if output != nil && output.Archive != nil {
			return nil, fmt.Errorf("stdout sink cannot be used with archive configuration")
		}
		return sinks.NewStreamSink(os.Stdout), nil
	}

	if output.Sink.Filesystem != nil {
		return buildFilesystemSink(output.Sink.Filesystem)
	}

	if output.Sink.S3 != nil {
		return buildS3Sink(ctx, output.Sink.S3)
	}

	return nil, fmt.Errorf("invalid sink configuration: no sink type specified")
}

func wrapWithArchiveSink(job v1.IngestJob, inner sinks.Sink) (sinks.Sink, error) {
	archive := job.Spec.Output.Archive

	archiver, err := archivers.NewTarArchiver(archive.Compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create tar archiver: %w", err)
	}

	name := archive.Name
	if name == "" {
		name = job.Metadata.Name
	}

	return sinks.NewArchiveSink(inner, archiver, name), nil
}

func buildFilesystemSink(spec *v1.FilesystemSinkSpec) (sinks.Sink, error) {
	var path, prefix string
	if spec.Path != nil {
		path = *spec.Path
	}
	if spec.Prefix != nil {
		prefix = *spec.Prefix
	}

	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = wd
	}

	return sinks.NewFilesystemSinkFromPath(filepath.Join(path, prefix))
}

func buildS3Sink(ctx context.Context, spec *v1.S3SinkSpec) (sinks.Sink, error) {
	cfg := sinks.S3Config{
		Bucket:         spec.Bucket,
		ForcePathStyle: spec.ForcePathStyle,
	}

	if spec.Region != nil {
		cfg.Region = *spec.Region
	}
	if spec.Endpoint != nil {
		cfg.Endpoint = *spec.Endpoint
	}
	if spec.Prefix != nil {
		cfg.Prefix = *spec.Prefix
	}
	if spec.Credentials != nil {
		cfg.AccessKeyID = spec.Credentials.AccessKeyID
		cfg.SecretAccessKey = spec.Credentials.SecretAccessKey
	}

	return sinks.NewS3Sink(ctx, cfg)
}

// BuildVariables creates the variables map for template expansion from the
// built-in job variables and the allowed environment variables. Every allowed
// variable must be set.
func BuildVariables(job v1.IngestJob, allowedEnv []string) (map[string]string, error) {
	date := time.Now().UTC()
	variables := map[string]string{
		"JOB_NAME":         job.Metadata.Name,
		"JOB_DATE_ISO8601": date.Format(ISO8601Basic),
		"JOB_DATE_RFC3339": date.Format(time.RFC3339),
	}

	var errs error
	for _, envName := range allowedEnv {
		val, ok := os.LookupEnv(envName)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("environment variable %q is not set", envName))
			continue
		}
		variables[envName] = val
	}

	if errs != nil {
		return nil, errs
	}

	return variables, nil
}
