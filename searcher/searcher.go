// Package searcher matches a query against files on disk while walking
// them. A search runs in the background and can be stopped at any line.
package searcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	sglog "github.com/sourcegraph/log"
	"go.uber.org/atomic"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/matcher"
)

// Mode selects what a search reads.
type Mode uint8

const (
	// Grep matches every line of every file below the root.
	Grep Mode = iota
	// Blines matches the lines of a single file.
	Blines
	// Files matches the relative paths of the files below the root.
	Files
)

func (m Mode) String() string {
	switch m {
	case Grep:
		return "grep"
	case Blines:
		return "blines"
	case Files:
		return "files"
	}
	return "unknown"
}

// Config describes one search.
type Config struct {
	Mode Mode

	// Root is the directory walked by Grep and Files, or the file read by
	// Blines.
	Root string

	Walk WalkConfig

	Logger sglog.Logger
}

// EventKind tells the events of a search apart.
type EventKind uint8

const (
	// EventMatch carries one matched line.
	EventMatch EventKind = iota
	// EventProcessed reports lines that went through the matcher.
	EventProcessed
)

// Event is sent by a running search.
type Event struct {
	Kind EventKind

	// Match is set for EventMatch.
	Match zfind.Match

	// Processed is the number of lines since the previous EventProcessed.
	Processed int
}

// heartbeat is how many lines are counted before an EventProcessed is
// sent. The rest is sent when a file ends.
const heartbeat = 64

// maxLineLen bounds the lines read from files. Files with longer lines are
// skipped from that line on.
const maxLineLen = 1 << 20

// Control stops a running search.
type Control struct {
	stopped atomic.Bool
	quit    chan struct{}
	once    sync.Once
	done    chan struct{}
	err     error
}

func newControl() *Control {
	return &Control{quit: make(chan struct{}), done: make(chan struct{})}
}

// Stop asks the search to stop. The search notices before its next line.
// Stop may be called more than once and from any goroutine.
func (c *Control) Stop() {
	c.once.Do(func() {
		c.stopped.Store(true)
		close(c.quit)
	})
}

// Stopped reports whether Stop was called.
func (c *Control) Stopped() bool {
	return c.stopped.Load()
}

// Wait blocks until the search goroutine exited and returns its error.
// Stopping and cancellation are not errors.
func (c *Control) Wait() error {
	<-c.done
	return c.err
}

type search struct {
	ctx    context.Context
	m      *matcher.Matcher
	cfg    Config
	logger sglog.Logger
	ctl    *Control
	out    chan Event

	index   int
	pending int
}

// Search starts a search in the background. The channel is closed when the
// search finishes, is stopped or ctx is done. The caller must either drain
// the channel or stop the search.
func Search(ctx context.Context, m *matcher.Matcher, cfg Config) (<-chan Event, *Control) {
	logger := cfg.Logger
	if logger == nil {
		logger = sglog.NoOp()
	}
	s := &search{
		ctx:    ctx,
		m:      m,
		cfg:    cfg,
		logger: logger.Scoped("searcher", "stoppable file searcher"),
		ctl:    newControl(),
		out:    make(chan Event, heartbeat),
	}

	metricSearches.WithLabelValues(cfg.Mode.String()).Inc()
	metricRunning.Inc()
	go func() {
		defer metricRunning.Dec()
		defer close(s.ctl.done)
		defer close(s.out)

		err := s.run()
		if err != nil && ctx.Err() == nil && !s.ctl.Stopped() {
			s.logger.Warn("search failed", sglog.String("mode", cfg.Mode.String()), sglog.Error(err))
			s.ctl.err = err
		}
		if s.ctl.Stopped() {
			metricStopped.Inc()
		}
	}()
	return s.out, s.ctl
}

func (s *search) run() error {
	switch s.cfg.Mode {
	case Blines:
		return s.blines()
	case Files, Grep:
		w, err := newWalker(s.cfg.Root, s.cfg.Walk, s.ctl.Stopped)
		if err != nil {
			return err
		}
		if s.cfg.Mode == Files {
			return w.walk(s.ctx, s.file)
		}
		return w.walk(s.ctx, s.grepFile)
	}
	return fmt.Errorf("unknown search mode %d", s.cfg.Mode)
}

// send delivers ev unless the search is stopped or cancelled.
func (s *search) send(ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.ctl.quit:
		return false
	case <-s.ctx.Done():
		return false
	}
}

// alive reports whether the search should continue.
func (s *search) alive() error {
	if s.ctl.Stopped() {
		return errStop
	}
	return s.ctx.Err()
}

func (s *search) processed() error {
	s.pending++
	if s.pending >= heartbeat {
		return s.flushProcessed()
	}
	return nil
}

func (s *search) flushProcessed() error {
	if s.pending == 0 {
		return nil
	}
	n := s.pending
	s.pending = 0
	metricLines.Add(float64(n))
	if !s.send(Event{Kind: EventProcessed, Processed: n}) {
		return s.stopErr()
	}
	return nil
}

func (s *search) match(text string, score int, indices []int) error {
	ev := Event{Kind: EventMatch, Match: zfind.Match{
		Index:   s.index,
		Text:    text,
		Score:   score,
		Indices: indices,
	}}
	if !s.send(ev) {
		return s.stopErr()
	}
	return nil
}

func (s *search) stopErr() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return errStop
}

func (s *search) file(_, rel string) error {
	if err := s.alive(); err != nil {
		return err
	}
	defer func() { s.index++ }()

	r, ok := s.m.Match(item.New(item.FilePath, rel))
	if err := s.processed(); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.match(rel, r.Score, r.Indices)
}

// grepFile matches each trimmed line of the file. Binary files are
// abandoned at the first line holding a NUL byte.
func (s *search) grepFile(path, rel string) error {
	f, err := os.Open(path)
	if err != nil {
		// Files can vanish while walking.
		return nil
	}
	defer f.Close()
	metricFiles.Inc()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLen)
	lnum := 0
	for sc.Scan() {
		if err := s.alive(); err != nil {
			return err
		}
		lnum++
		raw := sc.Bytes()
		if bytes.IndexByte(raw, 0) >= 0 {
			break
		}

		line := strings.TrimSpace(string(raw))
		s.index++
		if err := s.processed(); err != nil {
			return err
		}
		if line == "" {
			continue
		}

		r, ok := s.m.MatchFileLine(rel, line)
		if !ok {
			continue
		}

		col := 1
		if len(r.LineIndices) > 0 {
			col = r.LineIndices[0] + 1
		}
		prefix := rel + ":" + strconv.Itoa(lnum) + ":" + strconv.Itoa(col) + ":"
		indices := make([]int, 0, len(r.PathIndices)+len(r.LineIndices))
		indices = append(indices, r.PathIndices...)
		for _, i := range r.LineIndices {
			indices = append(indices, i+len(prefix))
		}
		if err := s.match(prefix+line, r.Score, indices); err != nil {
			return err
		}
	}
	if err := s.flushProcessed(); err != nil {
		return err
	}
	// Overlong lines end the file like binary content does.
	if err := sc.Err(); err != nil && err != bufio.ErrTooLong {
		s.logger.Debug("read failed", sglog.String("path", rel), sglog.Error(err))
	}
	return nil
}

// blines matches the lines of a single file. Lines are displayed as
// "lnum line" with blank lines skipped.
func (s *search) blines() error {
	f, err := os.Open(s.cfg.Root)
	if err != nil {
		return fmt.Errorf("blines: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLen)
	lnum := 0
	for sc.Scan() {
		if err := s.alive(); err != nil {
			if err == errStop {
				return nil
			}
			return err
		}
		lnum++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.index = lnum - 1
		if err := s.processed(); err != nil {
			return err
		}

		r, ok := s.m.Match(item.New(item.Generic, line))
		if !ok {
			continue
		}
		prefix := strconv.Itoa(lnum) + " "
		indices := make([]int, len(r.Indices))
		for i, idx := range r.Indices {
			indices[i] = idx + len(prefix)
		}
		if err := s.match(prefix+line, r.Score, indices); err != nil {
			return err
		}
	}
	if err := s.flushProcessed(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("blines %s: %w", s.cfg.Root, err)
	}
	return nil
}
