package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// CompressionKind is the outer codec wrapping an archive stream.
type CompressionKind int

const (
	CompressionNone CompressionKind = iota
	CompressionGzip
	CompressionBzip2
	CompressionXz
	CompressionZstd
	CompressionLz4
)

func (k CompressionKind) String() string {
	switch k {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXz:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionLz4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", int(k))
	}
}

// ContainerKind is the entry framing of an archive.
type ContainerKind int

const (
	ContainerUnknown ContainerKind = iota
	ContainerZip
	ContainerTar
)

func (k ContainerKind) String() string {
	switch k {
	case ContainerZip:
		return "zip"
	case ContainerTar:
		return "tar"
	default:
		return "unknown"
	}
}

// Format is the outcome of one sniff pass.
type Format struct {
	Compression CompressionKind
	Container   ContainerKind
}

// Recognized reports whether any signature matched.
func (f Format) Recognized() bool {
	return f.Compression != CompressionNone || f.Container != ContainerUnknown
}

func (f Format) String() string {
	if f.Compression == CompressionNone {
		return f.Container.String()
	}
	if f.Container == ContainerUnknown {
		return f.Compression.String()
	}
	return f.Container.String() + "+" + f.Compression.String()
}

// tarBlockSize covers the ustar marker at offset 257 and the header checksum,
// which makes it the longest signature we look at.
const (
	tarBlockSize = 512
	sniffLen     = tarBlockSize
)

type signature struct {
	magic       []byte
	compression CompressionKind
	container   ContainerKind
}

// Compression magics come first so that a compressed stream is never mistaken
// for a container that happens to share leading bytes.
var signatures = []signature{
	{magic: []byte{0x1F, 0x8B}, compression: CompressionGzip},
	{magic: []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}, compression: CompressionXz},
	{magic: []byte{0x28, 0xB5, 0x2F, 0xFD}, compression: CompressionZstd},
	{magic: []byte{0x04, 0x22, 0x4D, 0x18}, compression: CompressionLz4},
	{magic: []byte{'P', 'K', 0x03, 0x04}, container: ContainerZip},
}

// DetectFormat classifies a stream prefix. It never fails: an unmatched prefix
// yields the zero Format.
func DetectFormat(header []byte) Format {
	for _, sig := range signatures {
		if bytes.HasPrefix(header, sig.magic) {
			return Format{Compression: sig.compression, Container: sig.container}
		}
	}

	if isBzip2(header) {
		return Format{Compression: CompressionBzip2}
	}

	if isTar(header) {
		return Format{Container: ContainerTar}
	}

	return Format{}
}

// Sniff peeks at the head of r without consuming it. The returned reader must
// be used for every later stage.
func Sniff(r io.Reader) (*bufio.Reader, Format, error) {
	br, ok := r.(*bufio.Reader)
	if !ok || br.Size() < sniffLen {
		br = bufio.NewReaderSize(r, sniffLen)
	}

	header, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return br, Format{}, err
	}

	return br, DetectFormat(header), nil
}

// isBzip2 matches "BZh" followed by the block size digit.
func isBzip2(header []byte) bool {
	return len(header) >= 4 &&
		header[0] == 'B' && header[1] == 'Z' && header[2] == 'h' &&
		header[3] >= '1' && header[3] <= '9'
}

// isTar accepts a ustar/gnu marker or, for pre-POSIX archives, a header block
// whose stored checksum matches its contents.
func isTar(header []byte) bool {
	if len(header) < tarBlockSize {
		return false
	}
	block := header[:tarBlockSize]

	if bytes.Equal(block[257:262], []byte("ustar")) {
		return true
	}

	if bytes.Count(block, []byte{0}) == tarBlockSize {
		return false
	}

	stored, ok := parseOctal(block[148:156])
	if !ok {
		return false
	}

	unsigned, signed := tarChecksum(block)
	return stored == unsigned || stored == signed
}

func tarChecksum(block []byte) (unsigned, signed int64) {
	for i, c := range block {
		if 148 <= i && i < 156 {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

func parseOctal(field []byte) (int64, bool) {
	field = bytes.Trim(field, " \x00")
	if len(field) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(field), 8, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
