package searcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/sourcegraph/zfind/ignore"
)

// WalkConfig controls which files a walk visits.
type WalkConfig struct {
	// SkipHidden skips files and directories whose name starts with a dot.
	SkipHidden bool

	// FollowSymlinks descends into symlinked directories and reads
	// symlinked files. Cycles are visited once.
	FollowSymlinks bool

	// MaxDepth limits the depth below the root. 0 means unlimited.
	MaxDepth int

	// Ignore are doublestar globs matched against slash separated paths
	// relative to the root.
	Ignore []string

	// GitIgnore also honors the .gitignore file of the root.
	GitIgnore bool
}

// DefaultWalkConfig skips hidden files and follows symlinks.
func DefaultWalkConfig() WalkConfig {
	return WalkConfig{SkipHidden: true, FollowSymlinks: true, GitIgnore: true}
}

// errStop ends a walk early.
var errStop = errors.New("walk stopped")

type walker struct {
	root    string
	cfg     WalkConfig
	ignores []*ignore.Matcher
	visited map[string]bool
	stopped func() bool
}

func newWalker(root string, cfg WalkConfig, stopped func() bool) (*walker, error) {
	w := &walker{
		root:    root,
		cfg:     cfg,
		visited: map[string]bool{},
		stopped: stopped,
	}

	m, err := ignore.Load(root)
	if err != nil {
		return nil, err
	}
	w.ignores = append(w.ignores, m)

	if cfg.GitIgnore {
		m, err := loadGitIgnore(root)
		if err != nil {
			return nil, err
		}
		w.ignores = append(w.ignores, m)
	}
	for _, p := range cfg.Ignore {
		if _, err := doublestar.Match(p, p); err != nil {
			return nil, fmt.Errorf("ignore glob %q: %w", p, err)
		}
	}
	return w, nil
}

func loadGitIgnore(root string) (*ignore.Matcher, error) {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return &ignore.Matcher{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	patterns, err := ignore.ParseIgnoreFile(f)
	if err != nil {
		return nil, err
	}
	// Negations are not supported.
	kept := patterns[:0]
	for _, p := range patterns {
		if !strings.HasPrefix(p, "!") {
			kept = append(kept, p)
		}
	}
	return ignore.New(kept)
}

// skip reports whether the entry at rel is excluded.
func (w *walker) skip(rel string, name string, isDir bool) bool {
	if name == ".git" {
		return true
	}
	if w.cfg.SkipHidden && strings.HasPrefix(name, ".") {
		return true
	}
	for _, m := range w.ignores {
		if m.Match(rel, isDir) {
			return true
		}
	}
	for _, p := range w.cfg.Ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// walk calls fn for every regular file below the root in lexical order.
// fn receives the absolute path and the slash separated relative path.
func (w *walker) walk(ctx context.Context, fn func(path, rel string) error) error {
	err := w.walkDir(ctx, w.root, "", 0, fn)
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func (w *walker) walkDir(ctx context.Context, dir, rel string, depth int, fn func(path, rel string) error) error {
	if w.cfg.FollowSymlinks {
		real, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if w.visited[real] {
				return nil
			}
			w.visited[real] = true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Unreadable directories are skipped, like grep -s.
		return nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.stopped() {
			return errStop
		}

		name := e.Name()
		path := filepath.Join(dir, name)
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}

		typ := e.Type()
		if typ&fs.ModeSymlink != 0 {
			if !w.cfg.FollowSymlinks {
				continue
			}
			fi, err := os.Stat(path)
			if err != nil {
				continue
			}
			typ = fi.Mode().Type()
		}

		isDir := typ.IsDir()
		if w.skip(childRel, name, isDir) {
			continue
		}
		switch {
		case isDir:
			if w.cfg.MaxDepth > 0 && depth+1 >= w.cfg.MaxDepth {
				continue
			}
			if err := w.walkDir(ctx, path, childRel, depth+1, fn); err != nil {
				return err
			}
		case typ.IsRegular():
			if err := fn(path, childRel); err != nil {
				return err
			}
		}
	}
	return nil
}
