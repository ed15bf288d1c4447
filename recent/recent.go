// Package recent keeps the files a user opened, ranked by frecency: how
// often and how recently each was opened.
package recent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a store created without an explicit limit.
const DefaultMaxEntries = 10_000

// Entry is one tracked file.
type Entry struct {
	Path       string    `json:"path"`
	LastAccess time.Time `json:"last_access"`
	Count      uint64    `json:"access_count"`
	Score      uint64    `json:"frecent_score"`
}

// rescore weighs the access count by the age of the last access.
func (e *Entry) rescore(now time.Time) {
	age := now.Sub(e.LastAccess)
	switch {
	case age < time.Hour:
		e.Score = e.Count * 4
	case age < 24*time.Hour:
		e.Score = e.Count * 2
	case age < 7*24*time.Hour:
		e.Score = e.Count * 3 / 2
	case age < 30*24*time.Hour:
		e.Score = e.Count / 2
	default:
		e.Score = e.Count / 4
	}
	if e.Score == 0 && e.Count > 0 {
		e.Score = 1
	}
}

// Store is safe for concurrent use. Changes stay in memory until Flush.
type Store struct {
	path       string
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries []Entry
	dirty   bool
}

type storeFile struct {
	MaxEntries int     `json:"max_entries"`
	Entries    []Entry `json:"entries"`
}

// New returns an empty store persisted at path. An empty path keeps the
// store in memory only.
func New(path string, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{path: path, maxEntries: maxEntries, now: time.Now}
}

// Load reads the store at path. A missing file gives an empty store.
// Entries whose file no longer exists are dropped, as are duplicates.
func Load(path string, maxEntries int) (*Store, error) {
	s := New(path, maxEntries)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("recent files %s: %w", path, err)
	}

	seen := map[string]bool{}
	for _, e := range f.Entries {
		abs, err := filepath.Abs(e.Path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if fi, err := os.Stat(abs); err != nil || !fi.Mode().IsRegular() {
			continue
		}
		e.Path = abs
		s.entries = append(s.entries, e)
	}
	s.dirty = len(s.entries) != len(f.Entries)
	s.refresh()
	return s, nil
}

// Upsert records an access of path.
func (s *Store) Upsert(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.dirty = true
	for i := range s.entries {
		if s.entries[i].Path == path {
			e := &s.entries[i]
			e.LastAccess = now
			e.Count++
			e.rescore(now)
			s.sortAndTruncate()
			return
		}
	}
	s.entries = append(s.entries, Entry{Path: path, LastAccess: now, Count: 1, Score: 1})
	s.sortAndTruncate()
}

// Remove forgets path and reports whether it was tracked.
func (s *Store) Remove(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Path == path {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.dirty = true
			return true
		}
	}
	return false
}

func (s *Store) refresh() {
	now := s.now()
	for i := range s.entries {
		s.entries[i].rescore(now)
	}
	s.sortAndTruncate()
}

// sortAndTruncate orders by score, then by recency.
func (s *Store) sortAndTruncate() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := &s.entries[i], &s.entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.LastAccess.After(b.LastAccess)
	})
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[:s.maxEntries]
	}
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of the entries in rank order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Top returns the paths of the n best ranked files. Files below cwd are
// ranked as if their score was doubled. An empty cwd ranks by score only.
func (s *Store) Top(n int, cwd string) []string {
	entries := s.Entries()
	if cwd != "" {
		prefix := strings.TrimSuffix(cwd, string(filepath.Separator)) + string(filepath.Separator)
		score := func(e *Entry) uint64 {
			if strings.HasPrefix(e.Path, prefix) {
				return e.Score * 2
			}
			return e.Score
		}
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := score(&entries[i]), score(&entries[j])
			if a != b {
				return a > b
			}
			return entries[i].LastAccess.After(entries[j].LastAccess)
		})
	}
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = entries[i].Path
	}
	return out
}

// Paths returns every tracked path in rank order.
func (s *Store) Paths() []string {
	return s.Top(0, "")
}

// Flush writes the store if it changed since it was loaded or last
// flushed. The file is replaced atomically.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" || !s.dirty {
		return nil
	}

	data, err := json.Marshal(storeFile{MaxEntries: s.maxEntries, Entries: s.entries})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("recent files %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}
