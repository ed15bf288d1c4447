// package ignore provides helpers to support ignore-files similar to .gitignore
package ignore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

var (
	LineComment = "#"
	IgnoreFile  = ".zfindignore"
)

// ParseIgnoreFile parses an ignore-file according to the following rules
//
// - each line is a glob pattern
// - lines starting with # are ignored
// - empty lines are ignored
// - a leading / anchors the pattern at the directory of the ignore-file
// - a trailing / only matches directories
func ParseIgnoreFile(r io.Reader) (patterns []string, error error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// ignore empty lines
		if len(line) == 0 {
			continue
		}
		// ignore comments
		if strings.HasPrefix(line, LineComment) {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

type rule struct {
	g        glob.Glob
	anchored bool
	dirOnly  bool
}

// Matcher matches paths relative to the directory of an ignore-file.
type Matcher struct {
	rules []rule
}

// New compiles patterns in the syntax of ParseIgnoreFile.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		var r rule
		if strings.HasSuffix(p, "/") {
			r.dirOnly = true
			p = strings.TrimRight(p, "/")
		}
		if strings.HasPrefix(p, "/") {
			p = strings.TrimLeft(p, "/")
			r.anchored = true
		} else if strings.Contains(p, "/") {
			r.anchored = true
		}
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		r.g = g
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Load reads and compiles the ignore-file in dir. A missing file yields an
// empty matcher.
func Load(dir string) (*Matcher, error) {
	f, err := os.Open(path.Join(dir, IgnoreFile))
	if os.IsNotExist(err) {
		return &Matcher{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	patterns, err := ParseIgnoreFile(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	return New(patterns)
}

// Empty reports whether m has no rules.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.rules) == 0
}

// Match returns true if the slash separated relative path is ignored.
// Unanchored patterns match the last element of the path.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m.Empty() {
		return false
	}
	base := path.Base(rel)
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.anchored {
			if r.g.Match(rel) {
				return true
			}
		} else if r.g.Match(base) {
			return true
		}
	}
	return false
}
