package ingest

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// contentSniffLen is the prefix mimetype needs for its matchers.
const contentSniffLen = 3072

// Extractor walks the entries of a decompressed archive and writes accepted
// media into a staging directory.
type Extractor struct {
	logger *zap.Logger
	filter Filter
}

func NewExtractor(logger *zap.Logger, filter Filter) *Extractor {
	if filter == nil {
		filter = NewExtensionFilter()
	}
	return &Extractor{logger: logger, filter: filter}
}

// Extraction tracks what one Extract call put on disk.
type Extraction struct {
	dir     *StagingDir
	files   []File
	index   map[string]int
	written []string
}

func newExtraction(dir *StagingDir) *Extraction {
	return &Extraction{dir: dir, index: make(map[string]int)}
}

// Files returns the accepted files in order of first appearance.
func (x *Extraction) Files() []File {
	return x.files
}

// Rollback deletes every file this extraction created, then the directory.
func (x *Extraction) Rollback() error {
	var errs error
	for _, name := range x.written {
		if err := x.dir.Fs().Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = errors.Join(errs, fmt.Errorf("failed to remove %s: %w", name, err))
		}
	}
	x.files = nil
	x.index = make(map[string]int)
	x.written = nil
	return errors.Join(errs, x.dir.Remove())
}

// A duplicate base name overwrites the earlier file but keeps its position.
func (x *Extraction) record(f File) {
	if i, ok := x.index[f.Name]; ok {
		x.files[i] = f
		return
	}
	x.index[f.Name] = len(x.files)
	x.files = append(x.files, f)
}

func (x *Extraction) created(name string) {
	for _, w := range x.written {
		if w == name {
			return
		}
	}
	x.written = append(x.written, name)
}

// Extract reads entries of the given container from r into dir. Parse,
// checksum and truncation failures are returned as *Error of kind
// KindCorruptedArchive; failures writing to dir are returned as is. The
// returned Extraction is never nil so callers can roll back after an error.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, container ContainerKind, dir *StagingDir) (*Extraction, error) {
	x := newExtraction(dir)
	format := Format{Container: container}

	var err error
	switch container {
	case ContainerZip:
		err = e.extractZip(ctx, r, x)
	case ContainerTar:
		err = e.extractTar(ctx, r, x)
	default:
		return x, unsupported(StageExtract, format, fmt.Errorf("no extractor for container %s", container))
	}

	var archiveErr *Error
	if errors.As(err, &archiveErr) && !archiveErr.Format.Recognized() {
		archiveErr.Format = format
	}
	return x, err
}

func (e *Extractor) extractZip(ctx context.Context, r io.Reader, x *Extraction) error {
	// The central directory sits at the end, so the whole archive is needed
	// before the first entry can be located.
	data, err := io.ReadAll(r)
	if err != nil {
		return corrupted(StageExtract, Format{}, fmt.Errorf("failed to read zip data: %w", err))
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return corrupted(StageExtract, Format{}, fmt.Errorf("failed to open zip: %w", err))
	}

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		if !zf.Mode().IsRegular() {
			continue
		}

		entry := Entry{Path: zf.Name, Size: int64(zf.UncompressedSize64)}
		accepted, err := e.accept(entry)
		if err != nil {
			return err
		}
		if !accepted {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return corrupted(StageExtract, Format{}, fmt.Errorf("failed to open zip entry %s: %w", zf.Name, err))
		}
		err = e.write(x, entry, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *Extractor) extractTar(ctx context.Context, r io.Reader, x *Extraction) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return corrupted(StageExtract, Format{}, fmt.Errorf("failed to read tar header: %w", err))
		}

		// Hard links report a regular mode but carry no data.
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		entry := Entry{Path: hdr.Name, Size: hdr.Size}
		accepted, err := e.accept(entry)
		if err != nil {
			return err
		}
		if !accepted {
			continue
		}

		if err := e.write(x, entry, tr); err != nil {
			return err
		}
	}

	// Drain past the end-of-archive marker so that trailing codec checks
	// (gzip CRC, xz index) still run.
	if _, err := io.Copy(io.Discard, r); err != nil {
		return corrupted(StageExtract, Format{}, fmt.Errorf("failed to read archive trailer: %w", err))
	}

	return nil
}

func (e *Extractor) accept(entry Entry) (bool, error) {
	switch entry.Name() {
	case ".", "/", "..":
		return false, nil
	}

	accepted, err := e.filter.Accept(entry)
	if err != nil {
		return false, fmt.Errorf("failed to filter entry %s: %w", entry.Path, err)
	}
	if !accepted {
		e.logger.Debug("skipping entry", zap.String("entry", entry.Path))
	}
	return accepted, nil
}

func (e *Extractor) write(x *Extraction, entry Entry, src io.Reader) (err error) {
	name := entry.Name()

	f, err := x.dir.Fs().OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	x.created(name)
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close %s: %w", name, cerr))
		}
	}()

	digester := digest.Canonical.Digester()
	head := &headBuffer{limit: contentSniffLen}
	in := &sourceReader{r: src}

	n, err := io.Copy(io.MultiWriter(f, digester.Hash(), head), in)
	if err != nil {
		if in.err != nil {
			return corrupted(StageExtract, Format{}, fmt.Errorf("failed to read entry %s: %w", entry.Path, in.err))
		}
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	x.record(File{
		Name:        name,
		Size:        n,
		Digest:      digester.Digest(),
		ContentType: mimetype.Detect(head.buf).String(),
	})

	e.logger.Debug("extracted entry",
		zap.String("entry", entry.Path),
		zap.String("name", name),
		zap.Int64("size", n),
	)

	return nil
}

// sourceReader remembers the last read error so a failed copy can be blamed
// on the archive rather than the destination.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}

type headBuffer struct {
	buf   []byte
	limit int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - len(h.buf); room > 0 {
		h.buf = append(h.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}
