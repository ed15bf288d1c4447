package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	sglog "github.com/sourcegraph/log"
	"go.uber.org/atomic"
)

// Store holds the current configuration. It is safe for concurrent use.
type Store struct {
	path   string
	logger sglog.Logger
	cur    atomic.Pointer[Config]
}

// NewStore loads the file at path. path may be empty.
func NewStore(logger sglog.Logger, path string) (*Store, error) {
	if logger == nil {
		logger = sglog.NoOp()
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger.Scoped("config", "configuration file")}
	s.cur.Store(c)
	return s, nil
}

// Get returns the current configuration. Callers must not modify it.
func (s *Store) Get() *Config {
	return s.cur.Load()
}

// Reload reads the file again. On error the current configuration is kept.
func (s *Store) Reload() error {
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(c)
	return nil
}

// Watch reloads the configuration whenever the file changes until ctx is
// done. The directory is watched so that editors replacing the file are
// noticed. onReload, if not nil, is called after each successful reload.
func (s *Store) Watch(ctx context.Context, onReload func(*Config)) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	var last time.Time
	if fi, err := os.Stat(s.path); err == nil {
		last = fi.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			fi, err := os.Stat(s.path)
			if err != nil || fi.ModTime().Equal(last) {
				continue
			}
			last = fi.ModTime()
			if err := s.Reload(); err != nil {
				s.logger.Warn("keeping previous config", sglog.Error(err))
				continue
			}
			s.logger.Info("config reloaded", sglog.String("path", s.path))
			if onReload != nil {
				onReload(s.Get())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", sglog.Error(err))
		}
	}
}
