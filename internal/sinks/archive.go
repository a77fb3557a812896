package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/datahunters/photoingest/internal/archivers"
)

const ArchiveSinkKind = "archive"

// ArchiveSink bundles every write into one archive and hands it to the inner
// sink on Close.
type ArchiveSink struct {
	inner       Sink
	archiver    archivers.Archiver
	archiveName string
}

func NewArchiveSink(inner Sink, archiver archivers.Archiver, archiveName string) *ArchiveSink {
	return &ArchiveSink{
		inner:       inner,
		archiver:    archiver,
		archiveName: archiveName + archiver.Extension(),
	}
}

func (s *ArchiveSink) Name() string {
	return fmt.Sprintf("archive(%s)->%s", s.archiveName, s.inner.Name())
}

func (s *ArchiveSink) Kind() string {
	return ArchiveSinkKind
}

func (s *ArchiveSink) Write(ctx context.Context, key string, data io.Reader) error {
	if err := s.archiver.AddFile(ctx, key, data); err != nil {
		return fmt.Errorf("failed to add file to archive: %w", err)
	}
	return nil
}

// Close finalizes the archive and writes it to the inner sink.
func (s *ArchiveSink) Close(ctx context.Context) error {
	reader, err := s.archiver.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	if err := s.inner.Write(ctx, s.archiveName, reader); err != nil {
		return fmt.Errorf("failed to write archive to sink: %w", err)
	}

	if err := s.inner.Close(ctx); err != nil {
		return fmt.Errorf("failed to close inner sink: %w", err)
	}

	return nil
}
