package provider

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/languages"
)

// TargetKind is what a preview shows.
type TargetKind uint8

const (
	// Directory lists the entries of a directory.
	Directory TargetKind = iota
	// StartOfFile shows the head of a file.
	StartOfFile
	// LineInFile shows the lines around Lnum.
	LineInFile
)

// Target identifies a preview. It is comparable and used as cache key.
type Target struct {
	Kind TargetKind
	Path string

	// Lnum is the 1-based line of a LineInFile target.
	Lnum int
}

// ParseTarget returns the preview target of a line displayed by the
// provider id. Relative paths are resolved against env.Cwd.
func ParseTarget(id, line string, env Env) (Target, error) {
	abs := func(p string) string {
		p = strings.TrimPrefix(p, "./")
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(env.Cwd, p)
	}
	bad := func() (Target, error) {
		return Target{}, fmt.Errorf("no preview target for %s line %q", id, line)
	}

	switch id {
	case "files", "git_files":
		return Target{Kind: StartOfFile, Path: abs(line)}, nil
	case "recent_files":
		return Target{Kind: StartOfFile, Path: line}, nil
	case "filer":
		if strings.HasSuffix(line, "/") {
			return Target{Kind: Directory, Path: abs(strings.TrimSuffix(line, "/"))}, nil
		}
		return Target{Kind: StartOfFile, Path: abs(line)}, nil
	case "grep", "live_grep":
		path, lnum, _, ok := item.GrepPosition(line)
		if !ok {
			return bad()
		}
		return Target{Kind: LineInFile, Path: abs(path), Lnum: lnum}, nil
	case "blines":
		lnum, ok := item.BlinesLnum(line)
		if !ok || env.StartBufferPath == "" {
			return bad()
		}
		return Target{Kind: LineInFile, Path: env.StartBufferPath, Lnum: lnum}, nil
	case "tags":
		lnum, ok := item.BufferTagLnum(line)
		if !ok || env.StartBufferPath == "" {
			return bad()
		}
		return Target{Kind: LineInFile, Path: env.StartBufferPath, Lnum: lnum}, nil
	case "proj_tags":
		lnum, _, path, ok := item.ProjTag(line)
		if !ok {
			return bad()
		}
		return Target{Kind: LineInFile, Path: abs(path), Lnum: lnum}, nil
	}
	return bad()
}

// Preview is the rendered content of a target. The first line is a header.
type Preview struct {
	Lines []string
	Fname string

	// HiLnum is the 1-based index into Lines of the line to highlight, or 0.
	HiLnum int
	IsDir  bool
	Syntax string
}

const (
	emptyFile = "<Empty file>"
	emptyDir  = "<Empty directory>"
	binFile   = "<Binary file>"

	// maxCachedPreviews bounds the cache of a Previewer.
	maxCachedPreviews = 256
)

type previewKey struct {
	Target
	offset int
}

// Previewer renders previews of a session. Previews are cached per target
// and scroll offset. It is safe for concurrent use.
type Previewer struct {
	cwd string

	// size is the number of context lines around a LineInFile target. A
	// StartOfFile preview shows 2*size lines.
	size int

	mu     sync.Mutex
	cache  map[previewKey]Preview
	last   Target
	offset int
}

func NewPreviewer(cwd string, size int) *Previewer {
	return &Previewer{
		cwd:   cwd,
		size:  max(size, 1),
		cache: map[previewKey]Preview{},
	}
}

// Preview renders t from its start and makes it the target of Scroll.
func (p *Previewer) Preview(t Target) (Preview, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last, p.offset = t, 0
	return p.render(previewKey{Target: t})
}

// Scroll moves the last previewed target by delta pages, negative towards
// the start of the file. Directories do not scroll.
func (p *Previewer) Scroll(delta int) (Preview, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last.Path == "" {
		return Preview{}, fmt.Errorf("preview: nothing to scroll")
	}
	if p.last.Kind != Directory {
		p.offset += delta * p.pageSize()
		p.offset = max(p.offset, p.minOffset())
	}
	return p.render(previewKey{Target: p.last, offset: p.offset})
}

func (p *Previewer) pageSize() int {
	if p.last.Kind == LineInFile {
		return p.size
	}
	return 2 * p.size
}

// minOffset keeps the preview window from starting before the first line.
func (p *Previewer) minOffset() int {
	if p.last.Kind == LineInFile {
		return min(0, 1+p.size-p.last.Lnum)
	}
	return 0
}

func (p *Previewer) render(k previewKey) (Preview, error) {
	if pv, ok := p.cache[k]; ok {
		return pv, nil
	}

	var pv Preview
	var err error
	switch k.Kind {
	case Directory:
		pv, err = p.directory(k.Path)
	case StartOfFile:
		pv, err = p.file(k.Path, k.offset)
	case LineInFile:
		pv, err = p.lineInFile(k.Path, k.Lnum, k.offset)
	}
	if err != nil {
		return Preview{}, fmt.Errorf("preview %s: %w", k.Path, err)
	}

	if len(p.cache) >= maxCachedPreviews {
		clear(p.cache)
	}
	p.cache[k] = pv
	return pv, nil
}

func (p *Previewer) directory(path string) (Preview, error) {
	entries, err := ReadDirEntries(path, 2*p.size)
	if err != nil {
		return Preview{}, err
	}
	if len(entries) == 0 {
		entries = []string{emptyDir}
	}
	title := strings.TrimSuffix(path, string(filepath.Separator)) + ":"
	return Preview{Lines: append([]string{title}, entries...), Fname: path, IsDir: true}, nil
}

func (p *Previewer) file(path string, offset int) (Preview, error) {
	lines, binary, err := readLines(path, offset+1, offset+2*p.size)
	if err != nil {
		return Preview{}, err
	}

	header := p.display(path)
	if offset > 0 {
		header += ":" + strconv.Itoa(offset+1)
	}
	switch {
	case binary:
		lines = []string{binFile}
	case len(lines) == 0 && offset == 0:
		lines = []string{emptyFile}
	}
	return Preview{
		Lines:  append([]string{header}, lines...),
		Fname:  path,
		Syntax: syntaxOf(path, binary),
	}, nil
}

func (p *Previewer) lineInFile(path string, lnum, offset int) (Preview, error) {
	center := lnum + offset
	start := max(1, center-p.size)
	end := center + p.size

	lines, binary, err := readLines(path, start, end)
	if err != nil {
		return Preview{}, err
	}

	pv := Preview{
		Fname:  path,
		Syntax: syntaxOf(path, binary),
	}
	header := p.display(path) + ":" + strconv.Itoa(lnum)
	if binary {
		pv.Lines = []string{header, binFile}
		return pv, nil
	}
	pv.Lines = append([]string{header}, lines...)
	// The header is line 1, start is line 2.
	if hi := lnum - start + 2; lnum >= start && hi <= len(pv.Lines) {
		pv.HiLnum = hi
	}
	return pv, nil
}

// display shows paths under the working directory relative to it.
func (p *Previewer) display(path string) string {
	if p.cwd == "" {
		return path
	}
	rel, err := filepath.Rel(p.cwd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "." + string(filepath.Separator) + rel
}

func syntaxOf(path string, binary bool) string {
	if binary {
		return ""
	}
	return languages.ForPath(path)
}

// readLines returns the lines [start, end] of a regular file, 1-based. A NUL
// byte in any line read marks the file binary.
func readLines(path string, start, end int) (lines []string, binary bool, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if !fi.Mode().IsRegular() {
		return nil, false, fmt.Errorf("not a regular file")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for lnum := 1; lnum <= end && sc.Scan(); lnum++ {
		b := sc.Bytes()
		if bytes.IndexByte(b, 0) >= 0 {
			return nil, true, nil
		}
		if lnum >= start {
			lines = append(lines, strings.TrimSuffix(string(b), "\r"))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, err
	}
	return lines, false, nil
}

// ReadDirEntries returns the sorted entry names of dir, directories suffixed
// with "/". limit <= 0 returns every entry.
func ReadDirEntries(dir string, limit int) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(des) > limit {
		des = des[:limit]
	}
	entries := make([]string, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if isDir(filepath.Join(dir, name), de) {
			name += "/"
		}
		entries = append(entries, name)
	}
	return entries, nil
}

func isDir(path string, de os.DirEntry) bool {
	if de.IsDir() {
		return true
	}
	if de.Type()&os.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
