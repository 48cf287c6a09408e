package watcher

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"stubindex/internal/shared/util"
)

// Matcher decides which directories are walked and which files are indexed.
// Directory patterns match a directory's base name. File patterns match the
// base name or the slash-separated path.
type Matcher struct {
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	extensions   []string
}

func NewMatcher(excludeDirs, excludeFiles, extensions []string) (*Matcher, error) {
	dirs, err := compileAll(excludeDirs)
	if err != nil {
		return nil, err
	}
	files, err := compileAll(excludeFiles)
	if err != nil {
		return nil, err
	}

	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	return &Matcher{excludeDirs: dirs, excludeFiles: files, extensions: exts}, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *Matcher) SkipDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range m.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Accept reports whether path has an indexed extension and is not excluded.
func (m *Matcher) Accept(path string) bool {
	base := filepath.Base(path)
	if len(m.extensions) > 0 {
		if _, ok := util.HasAnySuffix(base, m.extensions); !ok {
			return false
		}
	}

	normalized := util.NormalizePatternPath(filepath.ToSlash(path))
	for _, g := range m.excludeFiles {
		if g.Match(base) || g.Match(normalized) {
			return false
		}
	}
	return true
}

// Extension returns the configured extension path ends with.
func (m *Matcher) Extension(path string) (string, bool) {
	return util.HasAnySuffix(filepath.Base(path), m.extensions)
}
