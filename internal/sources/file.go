package sources

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

const FileSourceKind = "file"

type FileSource struct {
	fs   afero.Fs
	path string
}

func NewFileSource(fs afero.Fs, path string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return &FileSource{fs: fs, path: filepath.Clean(path)}, nil
}

// NewOsFileSource reads path from the local disk.
func NewOsFileSource(path string) (*FileSource, error) {
	return NewFileSource(afero.NewOsFs(), path)
}

func (s *FileSource) Name() string {
	return fmt.Sprintf("%s(%s)", FileSourceKind, s.path)
}

func (s *FileSource) Kind() string {
	return FileSourceKind
}

func (s *FileSource) Hint() string {
	return filepath.Base(s.path)
}

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	info, err := s.fs.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", s.path)
	}

	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	return f, nil
}
