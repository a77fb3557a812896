package ingest

import (
	"github.com/opencontainers/go-digest"
	"github.com/samber/lo"
)

// File is one accepted entry materialized in the staging directory.
type File struct {
	Name        string        `json:"name"`
	Size        int64         `json:"size"`
	Digest      digest.Digest `json:"digest"`
	ContentType string        `json:"content_type,omitempty"`
}

// Result is the outcome of a successful handler call. Files keep the order in
// which their names first appeared in the archive.
type Result struct {
	Format Format
	Dir    *StagingDir
	Files  []File
}

// Names returns the accepted base names in archive order.
func (r *Result) Names() []string {
	return lo.Map(r.Files, func(f File, _ int) string { return f.Name })
}

// NoMedia reports whether the archive was valid but held nothing accepted.
// Dir is nil in that case.
func (r *Result) NoMedia() bool {
	return len(r.Files) == 0
}
