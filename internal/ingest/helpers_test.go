package ingest

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sha256 of testdata/smile.png and testdata/happy.png.
const (
	smileDigest = "sha256:dc49a760c3352bfc3ffa4779abd04ccde8d6dc47d7d0cbe615348779029e67a4"
	happyDigest = "sha256:e6bf84e39b9b75e44507e011012a167397f30e02daeb0bf65ca37419e565cb8d"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func openFixture(t *testing.T, name string) io.Reader {
	t.Helper()
	return bytes.NewReader(readFixture(t, name))
}

// newMemHandler returns a handler staging under /staging of an in-memory fs.
func newMemHandler(t *testing.T, opts ...HandlerOption) (*Handler, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	provider := NewFsStagingProvider(zap.NewNop(), fs, "/staging")
	return NewHandler(zap.NewNop(), provider, opts...), fs
}

// fixedProvider lends the same directory to every call, like a caller that
// pre-creates the upload directory.
type fixedProvider struct {
	dir   *StagingDir
	err   error
	calls int
}

func (p *fixedProvider) CreateDirForExtraction(_ context.Context, _ string) (*StagingDir, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.dir, nil
}

func newOsFixedProvider(t *testing.T) (*fixedProvider, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload")
	require.NoError(t, os.Mkdir(path, 0755))
	return &fixedProvider{dir: NewStagingDir(afero.NewOsFs(), path)}, path
}

// countFiles returns the number of regular files below root, or zero if root
// does not exist.
func countFiles(t *testing.T, fs afero.Fs, root string) int {
	t.Helper()
	exists, err := afero.Exists(fs, root)
	require.NoError(t, err)
	if !exists {
		return 0
	}

	count := 0
	err = afero.Walk(fs, root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}
