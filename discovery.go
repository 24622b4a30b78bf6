package codescan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
)

// defaultExcludedDirs are directory names never descended into: virtual
// environments, dependency trees, build output, VCS metadata, coverage
// artifacts and bytecode caches.
var defaultExcludedDirs = map[string]struct{}{
	"venv":             {},
	".venv":            {},
	"env":              {},
	".env":             {},
	"virtualenv":       {},
	"node_modules":     {},
	"bower_components": {},
	"vendor":           {},
	"site-packages":    {},
	"build":            {},
	"dist":             {},
	"target":           {},
	"out":              {},
	".next":            {},
	".git":             {},
	".hg":              {},
	".svn":             {},
	"coverage":         {},
	"htmlcov":          {},
	".nyc_output":      {},
	"__pycache__":      {},
	".pytest_cache":    {},
	".mypy_cache":      {},
	".tox":             {},
}

// ErrInvalidPattern is returned for exclude patterns that do not compile.
var ErrInvalidPattern = errors.New("codescan: invalid glob pattern")

// excluder decides which paths discovery and watching ignore.
type excluder struct {
	dirs     map[string]struct{}
	matchers []glob.Glob
}

func newExcluder(extraDirs, patterns []string) (*excluder, error) {
	x := &excluder{dirs: make(map[string]struct{}, len(defaultExcludedDirs)+len(extraDirs))}
	for name := range defaultExcludedDirs {
		x.dirs[name] = struct{}{}
	}
	for _, name := range extraDirs {
		if name != "" {
			x.dirs[name] = struct{}{}
		}
	}
	for _, pattern := range patterns {
		m, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, fmt.Errorf("%q: %w", pattern, err))
		}
		x.matchers = append(x.matchers, m)
	}
	return x, nil
}

// skipDir reports whether a directory with the given base name and
// root-relative path is pruned.
func (x *excluder) skipDir(name, rel string) bool {
	if _, ok := x.dirs[name]; ok {
		return true
	}
	return x.match(rel)
}

// match reports whether rel matches an exclude pattern.
func (x *excluder) match(rel string) bool {
	for _, m := range x.matchers {
		if m.Match(rel) {
			return true
		}
	}
	return false
}

// discover walks the root and returns the absolute paths of every file an
// analyzer is registered for, sorted. Unreadable directories are skipped
// with a warning; only failure to read the root itself is an error.
func (e *Engine) discover(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == e.root {
				return walkErr
			}
			e.log.WithField("path", e.relPath(path)).WithError(walkErr).Warn("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel := e.relPath(path)
		if d.IsDir() {
			if path != e.root && e.exclude.skipDir(d.Name(), rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !e.registry.Supports(path) || e.exclude.match(rel) {
			return nil
		}
		if e.maxFileSize > 0 {
			info, err := d.Info()
			if err != nil {
				e.log.WithField("path", rel).WithError(err).Warn("skipping unreadable path")
				return nil
			}
			if info.Size() > e.maxFileSize {
				e.log.WithField("path", rel).WithField("size", info.Size()).Debug("skipping large file")
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("codescan: discover: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
