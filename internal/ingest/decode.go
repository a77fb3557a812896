package ingest

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Decode wraps src with a streaming decompressor for kind. The returned reader
// owns the decompressor but not src; closing it releases decoder state only.
//
// Corruption inside the compressed payload surfaces from Read, at the point
// it is reached. Errors returned here come from parsing the codec header.
func Decode(src io.Reader, kind CompressionKind) (io.ReadCloser, error) {
	switch kind {
	case CompressionNone:
		return io.NopCloser(src), nil
	case CompressionGzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read gzip header: %w", err)
		}
		return zr, nil
	case CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(src)), nil
	case CompressionXz:
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read xz header: %w", err)
		}
		return io.NopCloser(xr), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case CompressionLz4:
		return io.NopCloser(lz4.NewReader(src)), nil
	default:
		return nil, fmt.Errorf("unsupported compression kind: %s", kind)
	}
}
