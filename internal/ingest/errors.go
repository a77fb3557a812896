package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat means no known compression or container signature
	// matched, on either sniff pass.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrCorruptedArchive means the format was recognized but decoding or
	// walking the entries failed partway.
	ErrCorruptedArchive = errors.New("corrupted archive")
)

// ErrorKind is the terminal failure class of a handler call.
type ErrorKind int

const (
	KindUnsupportedFormat ErrorKind = iota + 1
	KindCorruptedArchive
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedFormat:
		return CodeUnsupportedFormat
	case KindCorruptedArchive:
		return CodeCorruptedArchive
	default:
		return CodeInternal
	}
}

// Stable codes for surfacing failures to clients.
const (
	CodeUnsupportedFormat = "unsupported_format"
	CodeCorruptedArchive  = "corrupted_archive"
	CodeInternal          = "internal"
)

// Stage names where a failure was detected.
const (
	StageSniff   = "sniff"
	StageDecode  = "decode"
	StageExtract = "extract"
)

// Error is a classified archive failure.
type Error struct {
	Kind   ErrorKind
	Stage  string
	Format Format
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s during %s", e.sentinel(), e.Stage)
	if e.Format.Recognized() {
		msg += fmt.Sprintf(" (%s)", e.Format)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	if e.Kind == KindCorruptedArchive {
		return ErrCorruptedArchive
	}
	return ErrUnsupportedFormat
}

func unsupported(stage string, format Format, err error) *Error {
	return &Error{Kind: KindUnsupportedFormat, Stage: stage, Format: format, Err: err}
}

func corrupted(stage string, format Format, err error) *Error {
	return &Error{Kind: KindCorruptedArchive, Stage: stage, Format: format, Err: err}
}

// Classify maps err to a stable code. Anything outside the archive taxonomy,
// such as staging I/O failures, is CodeInternal.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ErrCorruptedArchive):
		return CodeCorruptedArchive
	default:
		return CodeInternal
	}
}
