package ingest

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/samber/lo"
)

// DefaultMediaExtensions are the suffixes accepted when no list is configured.
var DefaultMediaExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".heic",
}

// Entry is a regular-file record read from an archive.
type Entry struct {
	// Path is the entry name as stored in the archive.
	Path string
	Size int64
}

// Name is the base file name used as the output key.
func (e Entry) Name() string {
	return path.Base(normalizeEntryPath(e.Path))
}

// Filter decides whether an entry is media worth extracting.
type Filter interface {
	Accept(e Entry) (bool, error)
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(e Entry) (bool, error)

func (f FilterFunc) Accept(e Entry) (bool, error) {
	return f(e)
}

// ExtensionFilter accepts entries whose base name ends in one of its
// extensions, compared case-insensitively. Resource-fork metadata written by
// macOS archivers is always rejected.
type ExtensionFilter struct {
	extensions []string
}

func NewExtensionFilter(extensions ...string) *ExtensionFilter {
	if len(extensions) == 0 {
		extensions = DefaultMediaExtensions
	}
	normalized := lo.Map(extensions, func(ext string, _ int) string {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return ext
	})
	return &ExtensionFilter{extensions: lo.Uniq(normalized)}
}

func (f *ExtensionFilter) Accept(e Entry) (bool, error) {
	if isResourceFork(e.Path) {
		return false, nil
	}
	name := strings.ToLower(e.Name())
	return lo.ContainsBy(f.extensions, func(ext string) bool {
		return strings.HasSuffix(name, ext) && len(name) > len(ext)
	}), nil
}

func isResourceFork(p string) bool {
	p = normalizeEntryPath(p)
	return strings.HasPrefix(path.Base(p), "._") ||
		p == "__MACOSX" || strings.HasPrefix(p, "__MACOSX/") || strings.Contains(p, "/__MACOSX/")
}

// ExprFilter evaluates a CEL expression against each entry. The expression
// sees name (base name), path (archive path) and size, and must yield a bool.
type ExprFilter struct {
	source  string
	program cel.Program
}

func NewExprFilter(expression string) (*ExprFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("size", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter expression %q: %w", expression, issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter program: %w", err)
	}

	return &ExprFilter{source: expression, program: program}, nil
}

func (f *ExprFilter) Accept(e Entry) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"name": e.Name(),
		"path": normalizeEntryPath(e.Path),
		"size": e.Size,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q on %s: %w", f.source, e.Path, err)
	}

	accepted, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, expected bool", f.source, out.Value())
	}
	return accepted, nil
}

// AllOf accepts an entry only when every filter does.
func AllOf(filters ...Filter) Filter {
	return FilterFunc(func(e Entry) (bool, error) {
		for _, f := range filters {
			ok, err := f.Accept(e)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

func normalizeEntryPath(p string) string {
	return strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
}
