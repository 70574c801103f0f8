// Package globfiles collects source files by shell pattern for build
// descriptions that list their inputs explicitly.
package globfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/paulschiretz/pgl-buildaux/pkg/hints"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
)

// ErrSearchDirNotFound is wrapped in a hint when the search directory is missing.
var ErrSearchDirNotFound = errors.New("search directory not found")

// vcsDirs are never descended into.
var vcsDirs = map[string]struct{}{
	".git": {},
	".svn": {},
}

// Glob returns the files below search whose base name matches pattern.
// A relative search is resolved against baseDir and the returned paths keep
// that form, so they are relative to baseDir as well. pattern uses shell
// syntax: *, ?, [...] and {a,b}. Without recursive only the top level of
// search is considered.
func Glob(baseDir, search, pattern string, recursive bool) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	root := search
	if !filepath.IsAbs(root) {
		root = filepath.Join(baseDir, search)
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hints.Newf("%w: %s", ErrSearchDirNotFound, root)
		}
		return nil, fmt.Errorf("could not stat search directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("search path %s is not a directory", root)
	}

	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive {
				return filepath.SkipDir
			}
			if _, ok := vcsDirs[d.Name()]; ok {
				return filepath.SkipDir
			}
			return nil
		}
		if !g.Match(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		matches = append(matches, filepath.Join(search, rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	plog.Debug("Globbed files", "search", root, "pattern", pattern, "recursive", recursive, "matches", len(matches))
	return matches, nil
}
