package encoders

import (
	"context"
	"io"
)

// Encoder serializes a run report.
type Encoder interface {
	Encode(ctx context.Context, v any) (io.Reader, error)

	// FileExtension returns extension without dot (e.g., "json").
	FileExtension() string
}
