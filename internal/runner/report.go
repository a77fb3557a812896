package runner

import (
	"time"

	"github.com/samber/lo"

	"github.com/datahunters/photoingest/internal/ingest"
)

type Status string

const (
	StatusOK                Status = "ok"
	StatusNoMedia           Status = "no_media"
	StatusUnsupportedFormat Status = ingest.CodeUnsupportedFormat
	StatusCorruptedArchive  Status = ingest.CodeCorruptedArchive
	StatusError             Status = "error"
)

// statusOf maps a handler or publishing error to a manifest status.
func statusOf(err error) Status {
	switch ingest.Classify(err) {
	case ingest.CodeUnsupportedFormat:
		return StatusUnsupportedFormat
	case ingest.CodeCorruptedArchive:
		return StatusCorruptedArchive
	default:
		return StatusError
	}
}

// Report is the manifest written at the end of a run.
type Report struct {
	Job        string         `json:"job"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
}

type SourceReport struct {
	ID     string        `json:"id"`
	Source string        `json:"source"`
	Status Status        `json:"status"`
	Format string        `json:"format,omitempty"`
	Files  []ingest.File `json:"files,omitempty"`

	// StagingDir is set when extracted files were left in place.
	StagingDir string `json:"staging_dir,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failed returns the sources that ended with an unclassified error.
func (r *Report) Failed() []SourceReport {
	return lo.Filter(r.Sources, func(s SourceReport, _ int) bool {
		return s.Status == StatusError
	})
}

// Count returns how many sources ended with the given status.
func (r *Report) Count(status Status) int {
	return lo.CountBy(r.Sources, func(s SourceReport) bool {
		return s.Status == status
	})
}
