package sinks

import (
	"context"
	"io"
)

// Sink publishes files under slash-separated keys such as "<source>/<name>".
type Sink interface {
	Name() string
	Kind() string
	Write(ctx context.Context, key string, data io.Reader) error
	Close(ctx context.Context) error
}
