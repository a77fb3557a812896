package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Handler turns an uploaded payload into a directory of media files. It keeps
// no state between calls and may be shared by concurrent callers as long as
// its StagingProvider hands out distinct directories.
type Handler struct {
	logger    *zap.Logger
	staging   StagingProvider
	extractor *Extractor
}

type HandlerOption func(*Handler)

// WithFilter replaces the default extension filter.
func WithFilter(filter Filter) HandlerOption {
	return func(h *Handler) {
		h.extractor = NewExtractor(h.logger.Named("extractor"), filter)
	}
}

func NewHandler(logger *zap.Logger, staging StagingProvider, opts ...HandlerOption) *Handler {
	h := &Handler{
		logger:  logger,
		staging: staging,
	}
	h.extractor = NewExtractor(logger.Named("extractor"), nil)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle sniffs, decodes and extracts src. The container and compression are
// derived from content only; hint just names the staging directory.
//
// On failure nothing stays on disk. Archive problems come back as *Error
// matching ErrUnsupportedFormat or ErrCorruptedArchive; staging I/O and
// context errors are returned as they are. A valid archive without media
// yields a Result for which NoMedia reports true and whose Dir is nil.
func (h *Handler) Handle(ctx context.Context, src io.Reader, hint string) (*Result, error) {
	logger := h.logger.With(zap.String("upload", hint))

	br, outer, err := Sniff(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	logger.Debug("sniffed upload", zap.Stringer("format", outer))

	if !outer.Recognized() {
		return nil, unsupported(StageSniff, outer, errors.New("no known signature"))
	}

	format := outer
	var stream io.Reader = br
	if outer.Compression != CompressionNone {
		decoded, err := Decode(br, outer.Compression)
		if err != nil {
			return nil, corrupted(StageDecode, outer, err)
		}
		defer decoded.Close()

		inner, payload, err := Sniff(decoded)
		if err != nil {
			return nil, corrupted(StageDecode, outer, err)
		}
		logger.Debug("sniffed decoded payload", zap.Stringer("format", payload))

		if payload.Compression != CompressionNone || payload.Container == ContainerUnknown {
			return nil, unsupported(StageDecode, outer, fmt.Errorf("decoded payload is %s", payload))
		}

		format.Container = payload.Container
		stream = inner
	}

	dir, err := h.staging.CreateDirForExtraction(ctx, hint)
	if err != nil {
		return nil, err
	}

	extraction, err := h.extractor.Extract(ctx, stream, format.Container, dir)
	if err != nil {
		var archiveErr *Error
		if errors.As(err, &archiveErr) {
			archiveErr.Format = format
		}
		if rbErr := extraction.Rollback(); rbErr != nil {
			logger.Error("failed to roll back extraction", zap.String("dir", dir.Path()), zap.Error(rbErr))
			err = errors.Join(err, rbErr)
		}
		logger.Debug("extraction failed", zap.Stringer("format", format), zap.Error(err))
		return nil, err
	}

	result := &Result{Format: format, Files: extraction.Files()}
	if result.NoMedia() {
		if err := dir.Remove(); err != nil {
			return nil, err
		}
		logger.Info("archive contained no media", zap.Stringer("format", format))
		return result, nil
	}

	result.Dir = dir
	logger.Info("extracted archive",
		zap.Stringer("format", format),
		zap.Int("files", len(result.Files)),
		zap.String("dir", dir.Path()),
	)
	return result, nil
}
