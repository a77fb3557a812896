package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// StagingProvider hands out a distinct, empty directory per extraction.
type StagingProvider interface {
	CreateDirForExtraction(ctx context.Context, hint string) (*StagingDir, error)
}

// StagingDir is a directory lent to one handler call. All access goes through
// a filesystem rooted at the directory, so names cannot escape it.
type StagingDir struct {
	root afero.Fs
	path string
	fs   afero.Fs
}

// NewStagingDir wraps an existing directory of fs.
func NewStagingDir(fs afero.Fs, path string) *StagingDir {
	return &StagingDir{
		root: fs,
		path: path,
		fs:   afero.NewBasePathFs(fs, path),
	}
}

func (d *StagingDir) Path() string {
	return d.path
}

// Fs returns a filesystem confined to the directory.
func (d *StagingDir) Fs() afero.Fs {
	return d.fs
}

func (d *StagingDir) Open(name string) (afero.File, error) {
	return d.fs.Open(name)
}

// Remove deletes the directory and everything in it.
func (d *StagingDir) Remove() error {
	if err := d.root.RemoveAll(d.path); err != nil {
		return fmt.Errorf("failed to remove staging directory %s: %w", d.path, err)
	}
	return nil
}

// FsStagingProvider creates staging directories under a root directory of an
// afero filesystem.
type FsStagingProvider struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

func NewFsStagingProvider(logger *zap.Logger, fs afero.Fs, root string) *FsStagingProvider {
	return &FsStagingProvider{
		fs:     fs,
		root:   filepath.Clean(root),
		logger: logger,
	}
}

// NewOsStagingProvider stages under root on the local disk.
func NewOsStagingProvider(logger *zap.Logger, root string) *FsStagingProvider {
	return NewFsStagingProvider(logger, afero.NewOsFs(), root)
}

func (p *FsStagingProvider) CreateDirForExtraction(ctx context.Context, hint string) (*StagingDir, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	if err := p.fs.MkdirAll(p.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging root %s: %w", p.root, err)
	}

	dir, err := afero.TempDir(p.fs, p.root, sanitizeHint(hint)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	p.logger.Debug("created staging directory", zap.String("path", dir))
	return NewStagingDir(p.fs, dir), nil
}

var unsafeHintChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeHint(hint string) string {
	hint = filepath.Base(strings.ReplaceAll(hint, "\\", "/"))
	hint = unsafeHintChars.ReplaceAllString(hint, "_")
	hint = strings.Trim(hint, "._-")
	if len(hint) > 64 {
		hint = hint[:64]
	}
	if hint == "" {
		return "upload"
	}
	return hint
}
