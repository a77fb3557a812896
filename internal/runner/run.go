package runner

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	v1 "github.com/datahunters/photoingest/apis/v1"
	"github.com/datahunters/photoingest/internal/encoders"
	"github.com/datahunters/photoingest/internal/ingest"
	"github.com/datahunters/photoingest/internal/sinks"
)

const manifestName = "manifest"

var (
	defaultValidator = validator.New(validator.WithRequiredStructEnabled())
)

// ParseIngestJob parses a YAML or JSON job file and validates it. Unknown
// fields are rejected.
func ParseIngestJob(data []byte) (v1.IngestJob, error) {
	var job v1.IngestJob
	if err := yaml.UnmarshalWithOptions(data, &job, yaml.DisallowUnknownField()); err != nil {
		return v1.IngestJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	if err := defaultValidator.Struct(job); err != nil {
		return v1.IngestJob{}, fmt.Errorf("failed to validate job: %w", err)
	}

	return job, nil
}

type Runner struct {
	logger      *zap.Logger
	job         v1.IngestJob
	sources     []namedSource
	handler     *ingest.Handler
	encoder     encoders.Encoder
	sink        sinks.Sink
	workers     int
	keepStaging bool
}

type Option func(*Runner)

// WithSink replaces the sink described by the job.
func WithSink(sink sinks.Sink) Option {
	return func(r *Runner) {
		r.sink = sink
	}
}

func New(ctx context.Context, logger *zap.Logger, job v1.IngestJob, opts ...Option) (*Runner, error) {
	logger.Info("creating runner", zap.String("job_name", job.Metadata.Name))

	r := &Runner{
		logger:  logger,
		job:     job,
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	if r.sources, err = buildSources(job.Spec.Sources); err != nil {
		return nil, err
	}

	if r.handler, err = buildHandler(logger, job); err != nil {
		return nil, fmt.Errorf("failed to build handler: %w", err)
	}

	if r.encoder, err = buildEncoder(job.Spec.Output); err != nil {
		return nil, fmt.Errorf("failed to build encoder: %w", err)
	}

	if r.sink == nil {
		if r.sink, err = buildSink(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to build sink: %w", err)
		}
	}

	if job.Spec.Workers != nil {
		r.workers = *job.Spec.Workers
	}
	if job.Spec.Staging != nil {
		r.keepStaging = job.Spec.Staging.Keep
	}
	if r.sink.Kind() == sinks.StreamSinkKind && !r.keepStaging {
		// The stream only carries the manifest, so media stays where it was
		// extracted.
		logger.Info("stdout sink only receives the manifest, keeping staging directories")
		r.keepStaging = true
	}

	return r, nil
}

// Run ingests every source on a bounded pool, then writes the manifest and
// closes the sink. Archive failures are reported per source; the returned
// error is non-nil only when a source failed for another reason or the
// manifest could not be written.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Job:       r.job.Metadata.Name,
		StartedAt: time.Now().UTC(),
		Sources:   make([]SourceReport, len(r.sources)),
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)
	for i, src := range r.sources {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			report.Sources[i] = r.ingestSource(egCtx, src)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion interrupted: %w", err)
	}
	report.FinishedAt = time.Now().UTC()

	if err := r.writeManifest(ctx, report); err != nil {
		return report, err
	}

	if failed := report.Failed(); len(failed) > 0 {
		var errs error
		for _, s := range failed {
			errs = errors.Join(errs, fmt.Errorf("source %q: %s", s.ID, s.Error))
		}
		return report, fmt.Errorf("%d of %d sources failed: %w", len(failed), len(report.Sources), errs)
	}

	return report, nil
}

func (r *Runner) ingestSource(ctx context.Context, src namedSource) SourceReport {
	logger := r.logger.With(zap.String("source_id", src.id), zap.String("source", src.source.Name()))
	rep := SourceReport{ID: src.id, Source: src.source.Name()}

	fail := func(err error) SourceReport {
		rep.Status = statusOf(err)
		rep.Error = err.Error()
		var archiveErr *ingest.Error
		if errors.As(err, &archiveErr) && archiveErr.Format.Recognized() {
			rep.Format = archiveErr.Format.String()
		}
		if rep.Status == StatusError {
			logger.Error("failed to ingest source", zap.Error(err))
		} else {
			logger.Warn("rejected source", zap.String("status", string(rep.Status)), zap.Error(err))
		}
		return rep
	}

	rc, err := src.source.Open(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to open source: %w", err))
	}
	defer rc.Close()

	result, err := r.handler.Handle(ctx, rc, src.source.Hint())
	if err != nil {
		return fail(err)
	}

	rep.Format = result.Format.String()
	rep.Files = result.Files
	if result.NoMedia() {
		rep.Status = StatusNoMedia
		logger.Info("source holds no media", zap.String("format", rep.Format))
		return rep
	}

	if r.keepStaging {
		rep.StagingDir = result.Dir.Path()
	} else {
		defer func() {
			if err := result.Dir.Remove(); err != nil {
				logger.Warn("failed to remove staging directory", zap.Error(err))
			}
		}()
	}

	if r.sink.Kind() != sinks.StreamSinkKind {
		for _, f := range result.Files {
			if err := r.publish(ctx, src.id, result.Dir, f); err != nil {
				return fail(err)
			}
		}
	}

	rep.Status = StatusOK
	logger.Info("ingested source", zap.String("format", rep.Format), zap.Int("files", len(rep.Files)))
	return rep
}

func (r *Runner) publish(ctx context.Context, id string, dir *ingest.StagingDir, f ingest.File) error {
	file, err := dir.Open(f.Name)
	if err != nil {
		return fmt.Errorf("failed to open staged file %s: %w", f.Name, err)
	}
	defer file.Close()

	key := path.Join(id, f.Name)
	if err := r.sink.Write(ctx, key, file); err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}

func (r *Runner) writeManifest(ctx context.Context, report *Report) error {
	reader, err := r.encoder.Encode(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	filename := fmt.Sprintf("%s.%s", manifestName, r.encoder.FileExtension())
	if err := r.sink.Write(ctx, filename, reader); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := r.sink.Close(ctx); err != nil {
		return fmt.Errorf("failed to close sink: %w", err)
	}

	return nil
}
