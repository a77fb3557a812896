package sinks

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datahunters/photoingest/internal/ingest"
)

// pngHeader is enough for content detection.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// mockSink records all writes for verification.
type mockSink struct {
	mu     sync.Mutex
	writes map[string][]byte
	closed bool
}

func newMockSink() *mockSink {
	return &mockSink{writes: make(map[string][]byte)}
}

func (m *mockSink) Name() string { return "mock" }
func (m *mockSink) Kind() string { return "mock" }

func (m *mockSink) Write(_ context.Context, key string, data io.Reader) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[key] = content
	return nil
}

func (m *mockSink) Close(_ context.Context) error {
	m.closed = true
	return nil
}

// readTarToMap sniffs and decodes a bundle and returns filename -> content.
func readTarToMap(t *testing.T, data []byte) (map[string]string, ingest.Format) {
	t.Helper()
	br, format, err := ingest.Sniff(bytes.NewReader(data))
	require.NoError(t, err)

	var r io.Reader = br
	if format.Compression != ingest.CompressionNone {
		decoded, err := ingest.Decode(br, format.Compression)
		require.NoError(t, err)
		defer decoded.Close()

		inner, payload, err := ingest.Sniff(decoded)
		require.NoError(t, err)
		format.Container = payload.Container
		r = inner
	}

	tr := tar.NewReader(r)
	found := make(map[string]string)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		found[h.Name] = string(content)
	}
	return found, format
}
