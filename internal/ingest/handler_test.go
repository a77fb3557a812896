package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datahunters/photoingest/internal/archivers"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestHandler_SingleMediaFile(t *testing.T) {
	// File names are deliberately misleading for some fixtures: only content
	// decides the format.
	tests := []struct {
		fixture string
		want    Format
	}{
		{fixture: "ZIP.zip", want: Format{Container: ContainerZip}},
		{fixture: "TAR.tar", want: Format{Container: ContainerTar}},
		{fixture: "TAR_BZIP2.tar.bz2", want: Format{Compression: CompressionBzip2, Container: ContainerTar}},
		{fixture: "TAR_XZ.tar.xz", want: Format{Compression: CompressionXz, Container: ContainerTar}},
		{fixture: "TAR_GZIP.tar.gz", want: Format{Compression: CompressionGzip, Container: ContainerTar}},
		{fixture: "TAR_GZIP.zip", want: Format{Compression: CompressionGzip, Container: ContainerTar}},
		{fixture: "TAR_BZIP2.zip", want: Format{Compression: CompressionBzip2, Container: ContainerTar}},
		{fixture: "ZIP.tar.gz", want: Format{Container: ContainerZip}},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			handler, _ := newMemHandler(t)

			result, err := handler.Handle(t.Context(), openFixture(t, tt.fixture), tt.fixture)
			require.NoError(t, err)
			assert.Equal(t, []string{"smile.png"}, result.Names())
			assert.Equal(t, tt.want, result.Format)
			assert.False(t, result.NoMedia())
			require.NotNil(t, result.Dir)
		})
	}
}

func TestHandler_RuntimeBuiltArchives(t *testing.T) {
	smile := string(readFixture(t, "smile.png"))
	happy := string(readFixture(t, "happy.png"))

	tests := []struct {
		compression string
		want        CompressionKind
	}{
		{compression: archivers.CompressionGzip, want: CompressionGzip},
		{compression: archivers.CompressionZstd, want: CompressionZstd},
		{compression: archivers.CompressionXz, want: CompressionXz},
		{compression: archivers.CompressionLz4, want: CompressionLz4},
		{compression: archivers.CompressionNone, want: CompressionNone},
	}

	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			handler, _ := newMemHandler(t)
			data := buildTar(t, tt.compression,
				[2]string{"album/smile.png", smile},
				[2]string{"album/happy.png", happy},
			)

			result, err := handler.Handle(t.Context(), bytes.NewReader(data), "album-"+tt.compression)
			require.NoError(t, err)
			assert.Equal(t, []string{"smile.png", "happy.png"}, result.Names())
			assert.Equal(t, Format{Compression: tt.want, Container: ContainerTar}, result.Format)
		})
	}
}

func TestHandler_CompressedZip(t *testing.T) {
	handler, _ := newMemHandler(t)

	data := gzipBytes(t, readFixture(t, "MZIP.zip"))
	result, err := handler.Handle(t.Context(), bytes.NewReader(data), "photos.zip.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{"smile.png", "happy.png"}, result.Names())
	assert.Equal(t, Format{Compression: CompressionGzip, Container: ContainerZip}, result.Format)
}

func TestHandler_MultipleFilesKeepArchiveOrder(t *testing.T) {
	for _, fixture := range []string{"MZIP.zip", "MTAR.tar.bz2"} {
		t.Run(fixture, func(t *testing.T) {
			handler, _ := newMemHandler(t)

			result, err := handler.Handle(t.Context(), openFixture(t, fixture), fixture)
			require.NoError(t, err)
			assert.Equal(t, []string{"smile.png", "happy.png"}, result.Names())
		})
	}
}

func TestHandler_FilesIntegrity(t *testing.T) {
	provider, dir := newOsFixedProvider(t)
	handler := NewHandler(zap.NewNop(), provider)

	result, err := handler.Handle(t.Context(), openFixture(t, "MTAR.tar.bz2"), "MTAR.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, dir, result.Dir.Path())

	sha256Hex := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}

	assert.Equal(t, digest.Digest(happyDigest).Encoded(), sha256Hex("happy.png"))
	assert.Equal(t, digest.Digest(smileDigest).Encoded(), sha256Hex("smile.png"))

	assert.Equal(t, digest.Digest(smileDigest), result.Files[0].Digest)
	assert.Equal(t, digest.Digest(happyDigest), result.Files[1].Digest)
	assert.Equal(t, "image/png", result.Files[1].ContentType)
}

func TestHandler_UnsupportedFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "zero bytes", data: nil},
		{name: "text named like a zip", data: readFixture(t, "test_file.zip")},
		{name: "gzip without an archive inside", data: readFixture(t, "TEXT.txt.gz")},
		{name: "png uploaded directly", data: readFixture(t, "smile.png")},
		{name: "nested compression", data: gzipBytes(t, readFixture(t, "TAR_GZIP.tar.gz"))},
		{name: "empty zip", data: []byte("PK\x05\x06" + string(make([]byte, 18)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, dir := newOsFixedProvider(t)
			handler := NewHandler(zap.NewNop(), provider)

			result, err := handler.Handle(t.Context(), bytes.NewReader(tt.data), tt.name)
			require.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.Nil(t, result)
			assert.Equal(t, CodeUnsupportedFormat, Classify(err))
			assert.Zero(t, provider.calls, "no staging directory is requested for unsupported uploads")
			assert.Zero(t, countFiles(t, afero.NewOsFs(), dir))
		})
	}
}

func TestHandler_CorruptedArchive(t *testing.T) {
	fixtures := []string{
		"CORRUPTED_ZIP.zip",
		"BADCRC.zip",
		"BADCHECKSUM.tar",
		"TRUNCATED.tar",
		"TRUNCATED.tar.gz",
	}

	for _, fixture := range fixtures {
		t.Run(fixture, func(t *testing.T) {
			handler, fs := newMemHandler(t)

			result, err := handler.Handle(t.Context(), openFixture(t, fixture), fixture)
			require.ErrorIs(t, err, ErrCorruptedArchive)
			assert.Nil(t, result)
			assert.Equal(t, CodeCorruptedArchive, Classify(err))
			assert.Zero(t, countFiles(t, fs, "/staging"), "a failed extraction must leave nothing behind")
		})
	}
}

func TestHandler_CorruptedCompressedStream(t *testing.T) {
	data := readFixture(t, "TAR_XZ.tar.xz")
	truncatedXz := data[:len(data)/2]

	handler, fs := newMemHandler(t)
	_, err := handler.Handle(t.Context(), bytes.NewReader(truncatedXz), "TAR_XZ.tar.xz")
	require.ErrorIs(t, err, ErrCorruptedArchive)

	var archiveErr *Error
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, CompressionXz, archiveErr.Format.Compression)
	assert.Zero(t, countFiles(t, fs, "/staging"))
}

func TestHandler_RollbackOfProvidedDirectory(t *testing.T) {
	for _, fixture := range []string{"BADCHECKSUM.tar", "TRUNCATED.tar"} {
		t.Run(fixture, func(t *testing.T) {
			provider, dir := newOsFixedProvider(t)
			handler := NewHandler(zap.NewNop(), provider)

			_, err := handler.Handle(t.Context(), openFixture(t, fixture), fixture)
			require.ErrorIs(t, err, ErrCorruptedArchive)
			assert.Equal(t, 1, provider.calls)

			_, statErr := os.Stat(dir)
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "staging directory should be removed, got %v", statErr)
		})
	}
}

func TestHandler_NoMedia(t *testing.T) {
	handler, fs := newMemHandler(t)

	result, err := handler.Handle(t.Context(), openFixture(t, "NOMEDIA.tar.gz"), "NOMEDIA.tar.gz")
	require.NoError(t, err)
	assert.True(t, result.NoMedia())
	assert.Empty(t, result.Names())
	assert.Nil(t, result.Dir)

	entries, err := afero.ReadDir(fs, "/staging")
	require.NoError(t, err)
	assert.Empty(t, entries, "empty staging directories are released")
}

func TestHandler_WithFilter(t *testing.T) {
	expr, err := NewExprFilter(`name.startsWith("happy")`)
	require.NoError(t, err)
	handler, _ := newMemHandler(t, WithFilter(AllOf(NewExtensionFilter(), expr)))

	result, err := handler.Handle(t.Context(), openFixture(t, "MZIP.zip"), "MZIP.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"happy.png"}, result.Names())
}

func TestHandler_StagingErrorPassesThrough(t *testing.T) {
	storageErr := errors.New("disk full")
	provider := &fixedProvider{err: storageErr}
	handler := NewHandler(zap.NewNop(), provider)

	_, err := handler.Handle(t.Context(), openFixture(t, "ZIP.zip"), "ZIP.zip")
	require.ErrorIs(t, err, storageErr)
	assert.Equal(t, CodeInternal, Classify(err))
}

func TestHandler_CancelledContext(t *testing.T) {
	handler, fs := newMemHandler(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := handler.Handle(ctx, openFixture(t, "MZIP.zip"), "MZIP.zip")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CodeInternal, Classify(err))
	assert.Zero(t, countFiles(t, fs, "/staging"))
}

func TestHandler_ConcurrentCallsUseDistinctDirs(t *testing.T) {
	handler, _ := newMemHandler(t)
	data := readFixture(t, "MTAR.tar.bz2")

	const n = 8
	results := make(chan *Result, n)
	errs := make(chan error, n)
	for range n {
		go func() {
			result, err := handler.Handle(context.Background(), bytes.NewReader(data), "MTAR.tar.bz2")
			results <- result
			errs <- err
		}()
	}

	seen := make(map[string]bool)
	for range n {
		require.NoError(t, <-errs)
		result := <-results
		assert.Equal(t, []string{"smile.png", "happy.png"}, result.Names())
		assert.False(t, seen[result.Dir.Path()], "staging directory reused")
		seen[result.Dir.Path()] = true
	}
}
