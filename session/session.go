// Package session runs the finder sessions opened by an editor. A session
// owns one provider: it populates the lines, filters them on every query
// and previews the line under the cursor.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sglog "github.com/sourcegraph/log"
	"go.uber.org/atomic"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/config"
	"github.com/sourcegraph/zfind/filter"
	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/job"
	"github.com/sourcegraph/zfind/matcher"
	"github.com/sourcegraph/zfind/printer"
	"github.com/sourcegraph/zfind/process"
	"github.com/sourcegraph/zfind/provider"
	"github.com/sourcegraph/zfind/query"
	"github.com/sourcegraph/zfind/recent"
	"github.com/sourcegraph/zfind/rpc"
	"github.com/sourcegraph/zfind/searcher"
	"github.com/sourcegraph/zfind/stream"
)

// Responder writes responses to the editor. It must be safe for concurrent
// use.
type Responder interface {
	Write(*rpc.Response) error
}

// Deps are the collaborators shared by all sessions of a server.
type Deps struct {
	Logger    sglog.Logger
	Responder Responder

	Registry *provider.Registry
	Jobs     *job.Registry
	History  *provider.History
	Runner   process.Runner
	Sched    *filter.Scheduler

	// Recent, if not nil, ranks recent_files and records opened files.
	Recent *recent.Store

	// Config, if not nil, is read when a session starts.
	Config *config.Store

	// CacheDir keeps the output of large forerunners. Empty disables the
	// cache.
	CacheDir string
}

func (d *Deps) setDefaults() {
	if d.Logger == nil {
		d.Logger = sglog.NoOp()
	}
	if d.Registry == nil {
		d.Registry = provider.NewRegistry()
	}
	if d.Jobs == nil {
		d.Jobs = job.NewRegistry()
	}
	if d.History == nil {
		d.History = provider.NewHistory()
	}
	if d.Runner == nil {
		d.Runner = &process.Shell{Logger: d.Logger}
	}
	if d.Sched == nil {
		d.Sched = filter.NewScheduler(0)
	}
}

// event is an inbound message, or work posted by the session itself.
type event struct {
	msg   *rpc.Message
	reqID string
	fn    func(context.Context)
}

// Session is one open finder. All events are handled on a single
// goroutine, queries and forerunners run on their own and report back
// through the generation gate or by posting to the loop.
type Session struct {
	id       uint64
	sc       Context
	kind     provider.Kind
	itemKind item.Kind
	deps     Deps
	cfg      *config.Config
	logger   sglog.Logger
	started  time.Time

	builder   matcher.Builder
	previewer *provider.Previewer
	filer     *provider.Filer

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	gate     *stream.Gate
	streamer *filter.Streamer
	typedID  atomic.Uint64
	// streamGen is the gate generation of the query the streamer runs for.
	streamGen atomic.Uint64

	// Owned by the loop goroutine.
	cancelQuery context.CancelFunc
	control     *searcher.Control

	mu      sync.Mutex
	state   State
	source  provider.Source
	query   string
	pending bool
}

func newSession(id uint64, sc Context, deps Deps) *Session {
	cfg := config.Default()
	if deps.Config != nil {
		cfg = deps.Config.Get()
	}

	env := provider.Env{Cwd: sc.Cwd, StartBufferPath: sc.StartBufferPath}
	if deps.Recent != nil {
		env.Recent = deps.Recent.Paths()
	}
	defaults := provider.DefaultsFor(sc.ProviderID, env)
	backend, cm := cfg.MatcherFor(sc.ProviderID)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		sc:       sc,
		kind:     deps.Registry.Kind(sc.ProviderID),
		itemKind: defaults.ItemKind,
		deps:     deps,
		cfg:      cfg,
		logger: deps.Logger.Scoped("session", "finder session").With(
			sglog.Int("session", int(id)),
			sglog.String("provider", sc.ProviderID)),
		started:   time.Now(),
		builder:   matcher.Builder{Backend: backend, Case: cm, Bonuses: defaults.Bonuses},
		previewer: provider.NewPreviewer(sc.Cwd, sc.PreviewSize),
		events:    make(chan event, 64),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     Created,
		source:    provider.Unactionable{},
	}
	if s.kind == provider.FilerKind {
		s.filer = provider.NewFiler(sc.Cwd)
	}
	s.gate = stream.NewGate(stream.SenderFunc(s.deliver))
	s.streamer = filter.NewStreamer(s.logger, deps.Sched, stream.SenderFunc(func(sr *zfind.SearchResult) {
		s.gate.Send(s.streamGen.Load(), sr)
	}))
	return s
}

// ID returns the id the editor assigned to s.
func (s *Session) ID() uint64 { return s.id }

// State returns the lifecycle stage of s.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Source returns the current source of s.
func (s *Session) Source() provider.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) start() {
	metricSessions.Inc()
	metricSessionsStarted.WithLabelValues(s.kind.String()).Inc()
	go s.loop()
	s.post(s.initialize)
}

// send queues an inbound message. It reports false once s is terminated.
func (s *Session) send(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) post(fn func(context.Context)) {
	s.send(event{fn: fn})
}

// terminate stops all work of s and waits for it. The last query is kept in
// the input history of the provider.
func (s *Session) terminate() {
	s.mu.Lock()
	if s.state == Terminated {
		s.mu.Unlock()
		return
	}
	s.state = Terminated
	q := s.query
	s.mu.Unlock()

	s.cancel()
	<-s.done
	s.cancelInflight()
	s.gate.Cancel()
	s.wg.Wait()

	s.deps.History.Record(s.sc.ProviderID, q)
	metricSessions.Dec()
	s.logger.Debug("terminated", sglog.Duration("age", time.Since(s.started)))
}

func (s *Session) loop() {
	defer close(s.done)

	var typed, moved debouncer
	defer typed.stop()
	defer moved.stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			if ev.fn != nil {
				ev.fn(s.ctx)
				continue
			}
			s.handle(ev, &typed, &moved)
		case <-typed.C():
			s.onTyped(typed.take())
		case <-moved.C():
			s.onMove(moved.take())
		}
	}
}

func (s *Session) handle(ev event, typed, moved *debouncer) {
	metricRequests.WithLabelValues(methodLabel(ev.msg.Method)).Inc()
	switch ev.msg.Method {
	case rpc.MethodOnTyped:
		if !s.sc.Debounce {
			s.onTyped(ev)
			return
		}
		typed.push(ev, typedDelay(s.total()))
	case rpc.MethodOnMove:
		if !s.sc.Debounce {
			s.onMove(ev)
			return
		}
		moved.push(ev, moveDelay)
	case rpc.KeyCtrlN:
		s.recallInput(ev, true)
	case rpc.KeyCtrlP:
		s.recallInput(ev, false)
	case rpc.KeyShiftUp:
		s.scrollPreview(ev, -1)
	case rpc.KeyShiftDown:
		s.scrollPreview(ev, 1)
	case rpc.KeyCR, rpc.KeyTab, rpc.KeyBackspace:
		if s.filer != nil {
			s.onFilerKey(ev)
		}
	default:
		s.respondError(ev, fmt.Errorf("unknown method %q", ev.msg.Method), "request")
	}
}

func (s *Session) total() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.Len()
}

func (s *Session) setSource(src provider.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Terminated {
		s.state = st
	}
}

func (s *Session) initialize(ctx context.Context) {
	switch {
	case s.sc.SourceCmd != "":
		s.populate(ctx)
		return
	case s.sc.ProviderID == "git_files":
		// Outside of a repository the tree is walked like for files.
		if files, err := provider.GitFiles(s.sc.Cwd); err == nil {
			s.setSource(provider.Small{Items: files})
		} else {
			s.logger.Debug("no git index", sglog.Error(err))
		}
	case s.kind == provider.RecentFiles:
		var paths []string
		if s.deps.Recent != nil {
			paths = s.deps.Recent.Top(0, s.sc.Cwd)
		}
		s.setSource(provider.Small{Items: paths})
	case s.kind == provider.FilerKind:
		entries, err := s.filer.Entries()
		if err != nil {
			s.respondError(event{}, err, "io")
		}
		s.setSource(provider.Small{Items: entries})
	}
	s.setState(Interactive)
	s.pushInit(ctx)
}

// pushInit sends the first lines of the source.
func (s *Session) pushInit(ctx context.Context) {
	src := s.Source()
	head, err := provider.Head(ctx, src, s.sc.WinHeight)
	if err != nil && ctx.Err() == nil {
		s.respondError(event{}, err, "io")
	}
	if head == nil {
		head = []string{}
	}
	total, _ := src.Len()
	s.respond(&rpc.Response{Result: &rpc.OnInit{Event: "on_init", Total: total, Lines: head}})
}

// populate runs the forerunner command. A cache left by an earlier run of
// the same command in the same directory is served while it refreshes.
func (s *Session) populate(ctx context.Context) {
	s.setState(Populating)
	id := job.NewID(s.sc.Cwd, s.sc.SourceCmd)
	cachePath := s.cachePath(id)

	if src, ok := loadCache(cachePath); ok {
		s.setSource(src)
		s.setState(Interactive)
		s.pushInit(ctx)
	}

	s.wg.Add(1)
	started := s.deps.Jobs.Go(id, func() {
		defer s.wg.Done()
		s.runForerunner(ctx, cachePath)
	})
	if started {
		return
	}
	s.wg.Done()

	// The same command runs for another session. Run it per query instead
	// of waiting.
	metricForerunners.WithLabelValues("duplicate").Inc()
	if s.State() == Populating {
		s.setSource(provider.Command{Cmd: s.sc.SourceCmd})
		s.setState(Interactive)
		s.pushInit(ctx)
		s.flushPending()
	}
}

func (s *Session) runForerunner(ctx context.Context, cachePath string) {
	start := time.Now()
	out, err := s.deps.Runner.Output(ctx, s.sc.Cwd, s.sc.SourceCmd)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metricForerunners.WithLabelValues("failed").Inc()
		s.logger.Warn("forerunner failed", sglog.String("cmd", s.sc.SourceCmd), sglog.Error(err))
		s.post(func(ctx context.Context) {
			s.respondError(event{}, err, "io")
			if s.State() == Populating {
				s.populated(ctx, provider.Small{})
			}
		})
		return
	}

	lines := splitLines(out)
	var src provider.Source = provider.Small{Items: lines}
	result := "small"
	if len(lines) >= filter.LargeThreshold && cachePath != "" {
		if err := writeCache(cachePath, out); err != nil {
			s.logger.Warn("failed to cache forerunner output", sglog.String("path", cachePath), sglog.Error(err))
		} else {
			src = provider.CachedFile{Path: cachePath, Total: len(lines), Refreshed: true}
			result = "cached"
		}
	}
	metricForerunners.WithLabelValues(result).Inc()
	s.logger.Debug("forerunner done",
		sglog.Int("lines", len(lines)),
		sglog.String("result", result),
		sglog.Duration("duration", time.Since(start)))

	s.post(func(ctx context.Context) { s.populated(ctx, src) })
}

// populated replaces the source once the forerunner is done. A session that
// served a cache meanwhile is not pushed again.
func (s *Session) populated(ctx context.Context, src provider.Source) {
	s.mu.Lock()
	wasPopulating := s.state == Populating
	s.source = src
	if wasPopulating {
		s.state = Interactive
	}
	s.mu.Unlock()

	if wasPopulating {
		s.pushInit(ctx)
		s.flushPending()
	}
}

// flushPending runs the query typed while the session was populating.
func (s *Session) flushPending() {
	s.mu.Lock()
	pending, q := s.pending, s.query
	s.pending = false
	s.mu.Unlock()
	if pending {
		s.runQuery(s.typedID.Load(), "", q)
	}
}

func (s *Session) cachePath(id job.ID) string {
	if s.deps.CacheDir == "" {
		return ""
	}
	return filepath.Join(s.deps.CacheDir, id.String()+".lines")
}

func loadCache(path string) (provider.Source, bool) {
	if path == "" {
		return nil, false
	}
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}
	n, err := filter.CountLines(path)
	if err != nil {
		return nil, false
	}
	return provider.CachedFile{Path: path, Total: n}, true
}

func writeCache(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

func splitLines(out []byte) []string {
	out = bytes.TrimSuffix(out, []byte{'\n'})
	if len(out) == 0 {
		return nil
	}
	lines := strings.Split(string(out), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

type typedParams struct {
	Query string `json:"query"`
}

func (s *Session) onTyped(ev event) {
	var p typedParams
	if err := ev.msg.DecodeParams(&p); err != nil {
		s.respondError(ev, err, "request")
		return
	}
	s.runQuery(ev.msg.ID, ev.reqID, p.Query)
}

// cancelInflight stops the running query. Once it returns no result of that
// query is delivered.
func (s *Session) cancelInflight() {
	s.streamer.Cancel()
	if s.cancelQuery != nil {
		s.cancelQuery()
		s.cancelQuery = nil
	}
	if s.control != nil {
		s.control.Stop()
		s.control = nil
	}
}

func (s *Session) goQuery(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// runQuery filters the source with q. Results of older queries are dropped
// from here on.
func (s *Session) runQuery(id uint64, reqID, q string) {
	s.cancelInflight()
	gen := s.gate.Advance()
	s.streamGen.Store(gen)
	s.typedID.Store(id)

	s.mu.Lock()
	s.query = q
	st, src := s.state, s.source
	if st == Populating {
		s.pending = true
	}
	s.mu.Unlock()
	if st != Interactive {
		return
	}

	if strings.TrimSpace(q) == "" {
		s.pushHead(gen, src)
		return
	}

	m := s.builder.Build(query.Parse(q))
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelQuery = cancel
	number := s.sc.WinHeight
	opts := s.cfg.StreamOptions(number)
	opts.Kind = s.itemKind

	report := func(err error) {
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		s.logger.Warn("query failed", sglog.String("query", q), sglog.Error(err))
		s.respondError(event{msg: &rpc.Message{ID: id}, reqID: reqID}, err, "io")
	}

	switch src := src.(type) {
	case provider.Small:
		s.goQuery(func() {
			start := time.Now()
			ms, err := filter.SyncLines(ctx, m, s.itemKind, src.Items)
			if err != nil {
				return
			}
			sr := &zfind.SearchResult{
				Stats: zfind.Stats{
					Processed:   len(src.Items),
					Matched:     len(ms),
					Duration:    time.Since(start),
					FlushReason: zfind.FlushReasonFinalFlush,
				},
				Matches: ms,
				Done:    true,
			}
			sr.LimitMatches(number)
			s.gate.Send(gen, sr)
		})

	case provider.File, provider.CachedFile:
		lines, err := provider.Lines(src)
		if err != nil {
			report(err)
			return
		}
		run := s.streamer.Prepare(ctx)
		s.goQuery(func() {
			_, err := run.Run(m, lines, opts)
			report(err)
		})

	case provider.Command:
		run := s.streamer.Prepare(ctx)
		s.goQuery(func() {
			out, err := s.deps.Runner.Output(ctx, s.sc.Cwd, src.Cmd)
			if err != nil {
				run.Discard()
				report(err)
				return
			}
			_, err = run.Run(m, filter.ReaderSource{R: bytes.NewReader(out)}, opts)
			report(err)
		})

	default:
		cfg, ok := s.searchConfig()
		if !ok {
			s.gate.Send(gen, &zfind.SearchResult{Done: true})
			return
		}
		events, ctl := searcher.Search(ctx, m, cfg)
		s.control = ctl
		s.goQuery(func() {
			_, err := searcher.Collect(ctx, s.logger, events, searcher.CollectOptions{Number: number}, s.gate.Sender(gen))
			if werr := ctl.Wait(); werr != nil {
				err = werr
			}
			report(err)
		})
	}
}

// searchConfig returns how providers without a source of their own search
// the file system.
func (s *Session) searchConfig() (searcher.Config, bool) {
	cfg := searcher.Config{
		Root:   s.sc.Cwd,
		Walk:   s.cfg.WalkConfig(s.sc.ProviderID),
		Logger: s.logger,
	}
	switch s.kind {
	case provider.Grep:
		cfg.Mode = searcher.Grep
	case provider.Files:
		cfg.Mode = searcher.Files
	case provider.Blines:
		if s.sc.StartBufferPath == "" {
			return cfg, false
		}
		cfg.Mode = searcher.Blines
		cfg.Root = s.sc.StartBufferPath
	default:
		return cfg, false
	}
	return cfg, true
}

// pushHead shows the source unfiltered, as for an empty query.
func (s *Session) pushHead(gen uint64, src provider.Source) {
	head, err := provider.Head(s.ctx, src, s.sc.WinHeight)
	if err != nil {
		s.logger.Warn("failed to read source", sglog.Error(err))
	}
	total, ok := src.Len()
	if !ok {
		total = len(head)
	}
	ms := make([]zfind.Match, len(head))
	for i, l := range head {
		ms[i] = zfind.Match{Index: i, Text: l}
	}
	s.gate.Send(gen, &zfind.SearchResult{
		Stats:   zfind.Stats{Matched: total, FlushReason: zfind.FlushReasonFinalFlush},
		Matches: ms,
		Done:    true,
	})
}

// deliver turns a current result into an on_typed response.
func (s *Session) deliver(sr *zfind.SearchResult) {
	d := printer.Decorate(sr.Matches, s.sc.WinWidth)
	s.respond(&rpc.Response{ID: s.typedID.Load(), Result: rpc.NewOnTyped(sr.Matched, d, sr.Done)})
}

type moveParams struct {
	Curline string `json:"curline"`
}

func (s *Session) onMove(ev event) {
	var p moveParams
	if err := ev.msg.DecodeParams(&p); err != nil {
		s.respondError(ev, err, "request")
		return
	}
	if p.Curline == "" {
		return
	}

	var t provider.Target
	if s.filer != nil {
		t = s.filer.Target(p.Curline)
	} else {
		var err error
		t, err = provider.ParseTarget(s.sc.ProviderID, p.Curline, provider.Env{Cwd: s.sc.Cwd, StartBufferPath: s.sc.StartBufferPath})
		if err != nil {
			s.logger.Debug("no preview", sglog.Error(err))
			return
		}
	}
	s.preview(ev, func() (provider.Preview, error) { return s.previewer.Preview(t) })
}

func (s *Session) scrollPreview(ev event, delta int) {
	s.preview(ev, func() (provider.Preview, error) { return s.previewer.Scroll(delta) })
}

func (s *Session) preview(ev event, render func() (provider.Preview, error)) {
	pv, err := render()
	if err != nil {
		metricPreviewErrors.Inc()
		s.respondError(ev, err, "io")
		return
	}
	s.respond(&rpc.Response{ID: ev.msg.ID, Result: &rpc.OnMove{
		Event:  rpc.MethodOnMove,
		Lines:  pv.Lines,
		Fname:  pv.Fname,
		HiLnum: pv.HiLnum,
		IsDir:  pv.IsDir,
		Syntax: pv.Syntax,
	}})
}

func (s *Session) recallInput(ev event, next bool) {
	recall := s.deps.History.Prev
	if next {
		recall = s.deps.History.Next
	}
	q, ok := recall(s.sc.ProviderID)
	if !ok {
		return
	}
	s.respond(&rpc.Response{ID: ev.msg.ID, Result: &rpc.Query{Event: "query", Query: q}})
	s.runQuery(ev.msg.ID, ev.reqID, q)
}

type filerParams struct {
	Curline string `json:"curline"`

	// Query is the input before the backspace was applied.
	Query string `json:"query"`
}

func (s *Session) onFilerKey(ev event) {
	var p filerParams
	if err := ev.msg.DecodeParams(&p); err != nil {
		s.respondError(ev, err, "request")
		return
	}

	var changed bool
	var err error
	switch ev.msg.Method {
	case rpc.KeyBackspace:
		if p.Query != "" {
			return
		}
		changed, err = s.filer.Parent()
	case rpc.KeyCR, rpc.KeyTab:
		if p.Curline == "" {
			return
		}
		changed, err = s.filer.Enter(p.Curline)
	}
	if err != nil {
		s.respondError(ev, err, "io")
		return
	}
	if changed {
		s.enterDir(ev)
		return
	}

	t := s.filer.Target(p.Curline)
	if t.Kind != provider.StartOfFile {
		return
	}
	switch ev.msg.Method {
	case rpc.KeyTab:
		s.preview(ev, func() (provider.Preview, error) { return s.previewer.Preview(t) })
	case rpc.KeyCR:
		// The editor opens the file.
		if s.deps.Recent != nil {
			s.deps.Recent.Upsert(t.Path)
		}
	}
}

// enterDir lists the new current directory of the filer and clears the
// query.
func (s *Session) enterDir(ev event) {
	entries, err := s.filer.Entries()
	if err != nil {
		s.respondError(ev, err, "io")
		return
	}
	s.setSource(provider.Small{Items: entries})
	s.respond(&rpc.Response{ID: ev.msg.ID, Result: &rpc.Query{Event: "query", Query: ""}})
	s.runQuery(ev.msg.ID, ev.reqID, "")
}

func (s *Session) respond(r *rpc.Response) {
	r.SessionID = s.id
	r.ProviderID = s.sc.ProviderID
	if err := s.deps.Responder.Write(r); err != nil {
		s.logger.Warn("failed to write response", sglog.Error(err))
	}
}

func (s *Session) respondError(ev event, err error, kind string) {
	var id uint64
	if ev.msg != nil {
		id = ev.msg.ID
	}
	s.respond(&rpc.Response{ID: id, Error: &rpc.Error{Message: err.Error(), Kind: kind, RequestID: ev.reqID}})
}

// debouncer holds the latest of a burst of events until it was quiet for a
// while.
type debouncer struct {
	timer   *time.Timer
	pending *event
}

func (d *debouncer) push(ev event, delay time.Duration) {
	d.pending = &ev
	if d.timer == nil {
		d.timer = time.NewTimer(delay)
		return
	}
	if !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
	d.timer.Reset(delay)
}

// C fires when the pending event is due. It is nil without one.
func (d *debouncer) C() <-chan time.Time {
	if d.pending == nil {
		return nil
	}
	return d.timer.C
}

func (d *debouncer) take() event {
	ev := *d.pending
	d.pending = nil
	return ev
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
