package sources

import (
	"context"
	"io"
)

// Source yields one uploaded payload per Open call.
type Source interface {
	Name() string
	Kind() string

	// Hint is a short label for the payload, usually its file name. It only
	// names the staging directory and never decides the format.
	Hint() string

	Open(ctx context.Context) (io.ReadCloser, error)
}
