package provider

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Filer is the directory browser of a filer session. Entries are listed
// relative to the current directory and cached per directory.
type Filer struct {
	mu      sync.Mutex
	dir     string
	entries map[string][]string
}

func NewFiler(dir string) *Filer {
	return &Filer{dir: filepath.Clean(dir), entries: map[string][]string{}}
}

// Dir returns the current directory.
func (f *Filer) Dir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dir
}

// Entries returns the entries of the current directory.
func (f *Filer) Entries() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(f.dir)
}

func (f *Filer) load(dir string) ([]string, error) {
	if es, ok := f.entries[dir]; ok {
		return es, nil
	}
	es, err := ReadDirEntries(dir, 0)
	if err != nil {
		return nil, err
	}
	f.entries[dir] = es
	return es, nil
}

// Target returns the preview target of an entry of the current directory.
func (f *Filer) Target(entry string) Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := filepath.Join(f.dir, strings.TrimSuffix(entry, "/"))
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return Target{Kind: Directory, Path: path}
	}
	return Target{Kind: StartOfFile, Path: path}
}

// Enter makes entry the current directory if it is one. It reports whether
// the directory changed.
func (f *Filer) Enter(entry string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := filepath.Join(f.dir, strings.TrimSuffix(entry, "/"))
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return false, nil
	}
	if _, err := f.load(path); err != nil {
		return false, err
	}
	f.dir = path
	return true, nil
}

// Parent moves to the parent of the current directory. It reports false at
// the root.
func (f *Filer) Parent() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent := filepath.Dir(f.dir)
	if parent == f.dir {
		return false, nil
	}
	if _, err := f.load(parent); err != nil {
		return false, err
	}
	f.dir = parent
	return true, nil
}
