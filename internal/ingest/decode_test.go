package ingest

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokenPipe = errors.New("broken pipe")

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) {
	return 0, errBrokenPipe
}

func TestDecode(t *testing.T) {
	tar := readFixture(t, "TAR.tar")

	tests := []struct {
		fixture string
		kind    CompressionKind
	}{
		{fixture: "TAR.tar", kind: CompressionNone},
		{fixture: "TAR_GZIP.tar.gz", kind: CompressionGzip},
		{fixture: "TAR_BZIP2.tar.bz2", kind: CompressionBzip2},
		{fixture: "TAR_XZ.tar.xz", kind: CompressionXz},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rc, err := Decode(openFixture(t, tt.fixture), tt.kind)
			require.NoError(t, err)
			defer rc.Close()

			decoded, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tar, decoded)
		})
	}
}

func TestDecode_HeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind CompressionKind
	}{
		{name: "gzip", data: []byte{0x1F, 0x8B, 0xFF, 0xFF, 0x00}, kind: CompressionGzip},
		{name: "xz", data: []byte{0xFD, '7', 'z', 'X', 'Z', 0x00, 0xFF, 0xFF}, kind: CompressionXz},
		{name: "unknown kind", data: []byte("anything"), kind: CompressionKind(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data), tt.kind)
			require.Error(t, err)
		})
	}
}

func TestDecode_CorruptionSurfacesOnRead(t *testing.T) {
	data := readFixture(t, "TAR_BZIP2.tar.bz2")
	truncated := data[:len(data)/2]

	rc, err := Decode(bytes.NewReader(truncated), CompressionBzip2)
	require.NoError(t, err, "bzip2 corruption must not be reported eagerly")
	defer rc.Close()

	_, err = io.ReadAll(rc)
	require.Error(t, err)
}

func TestCompressionKind_String(t *testing.T) {
	assert.Equal(t, "none", CompressionNone.String())
	assert.Equal(t, "bzip2", CompressionBzip2.String())
	assert.Equal(t, "lz4", CompressionLz4.String())
	assert.Equal(t, "compression(42)", CompressionKind(42).String())
}
