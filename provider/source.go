package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/zfind/filter"
)

// Source is where the lines of a session come from. The set of variants
// is closed: Unactionable, Small, File, CachedFile and Command.
type Source interface {
	// Len returns the number of lines, if known.
	Len() (int, bool)

	isSource()
}

// Unactionable sources have nothing to filter yet.
type Unactionable struct{}

// Small holds every line in memory.
type Small struct {
	Items []string
}

// File reads its lines from a file on each query.
type File struct {
	Path  string
	Total int
}

// CachedFile is a file holding the output of a forerunner command.
type CachedFile struct {
	Path  string
	Total int

	// Refreshed is set once the cache was rebuilt during this session.
	Refreshed bool
}

// Command runs Cmd on each query and filters its output.
type Command struct {
	Cmd string
}

func (Unactionable) Len() (int, bool) { return 0, false }
func (s Small) Len() (int, bool)      { return len(s.Items), true }
func (s File) Len() (int, bool)       { return s.Total, true }
func (s CachedFile) Len() (int, bool) { return s.Total, true }
func (Command) Len() (int, bool)      { return 0, false }

func (Unactionable) isSource() {}
func (Small) isSource()        {}
func (File) isSource()         {}
func (CachedFile) isSource()   {}
func (Command) isSource()      {}

// ScaleOf decides how a source is filtered.
func ScaleOf(src Source) filter.Scale {
	switch s := src.(type) {
	case Small:
		return filter.ScaleFor(len(s.Items), true)
	case File:
		return filter.ScaleFor(s.Total, false)
	case CachedFile:
		return filter.ScaleFor(s.Total, false)
	}
	return filter.Large
}

// Lines returns the filter source of src. Small sources are listed, file
// sources are read. Other sources have no lines of their own.
func Lines(src Source) (filter.Source, error) {
	switch s := src.(type) {
	case Small:
		return filter.ListSource(s.Items), nil
	case File:
		return filter.FileSource{Path: s.Path}, nil
	case CachedFile:
		return filter.FileSource{Path: s.Path}, nil
	}
	return nil, fmt.Errorf("source %T has no lines", src)
}

var errHeadDone = errors.New("head done")

// Head returns up to n lines of src without filtering. Sources without
// lines of their own have no head.
func Head(ctx context.Context, src Source, n int) ([]string, error) {
	if s, ok := src.(Small); ok {
		return s.Items[:min(n, len(s.Items))], nil
	}
	ls, err := Lines(src)
	if err != nil || n <= 0 {
		return nil, nil
	}

	var head []string
	err = ls.Scan(ctx, n, func(_ int, lines []string) error {
		head = append(head, lines...)
		return errHeadDone
	})
	if err != nil && !errors.Is(err, errHeadDone) {
		return nil, err
	}
	return head[:min(n, len(head))], nil
}
