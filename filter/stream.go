package filter

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	sglog "github.com/sourcegraph/log"
	"golang.org/x/net/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/matcher"
	"github.com/sourcegraph/zfind/stream"
)

// StreamOptions tune a streaming run.
type StreamOptions struct {
	// Kind is the item kind of every line of the source.
	Kind item.Kind

	// Number is how many of the best matches are kept and reported,
	// usually the display height.
	Number int

	// FlushInterval is the minimum time between two partial results.
	FlushInterval time.Duration

	// FlushSize is how many lines a worker matches between looking at the
	// clock.
	FlushSize int

	// BatchSize is how many lines are handed to a worker at once.
	BatchSize int

	// Parallelism is the number of matching workers.
	Parallelism int
}

// SetDefaults fills in zero fields.
func (o *StreamOptions) SetDefaults() {
	if o.Number <= 0 {
		o.Number = 30
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 300 * time.Millisecond
	}
	if o.FlushSize <= 0 {
		o.FlushSize = 16
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 256
	}
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.GOMAXPROCS(0)
	}
}

// Streamer runs one streaming filter at a time on behalf of a session.
// Starting a run supersedes the previous one: its context is cancelled and
// none of its results reach the sender afterwards.
type Streamer struct {
	logger sglog.Logger
	sched  *Scheduler
	gate   *stream.Gate

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewStreamer returns a streamer delivering to sender. sched may be shared
// between streamers.
func NewStreamer(logger sglog.Logger, sched *Scheduler, sender stream.Sender) *Streamer {
	if logger == nil {
		logger = sglog.NoOp()
	}
	if sched == nil {
		sched = NewScheduler(0)
	}
	return &Streamer{
		logger: logger.Scoped("filter", "streaming filter"),
		sched:  sched,
		gate:   stream.NewGate(sender),
	}
}

type batch struct {
	first int
	lines []string
}

// Run matches every line of src, sending ranked partial results while it
// runs and a final result with Done set. It returns the final result, or
// context.Canceled if the run was superseded.
func (s *Streamer) Run(ctx context.Context, m *matcher.Matcher, src Source, opts StreamOptions) (*zfind.SearchResult, error) {
	return s.Prepare(ctx).Run(m, src, opts)
}

// Pending is a run that superseded the previous one but has not started
// matching yet.
type Pending struct {
	s      *Streamer
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
}

// Prepare supersedes the running run and reserves the next generation.
// Runs supersede each other in the order Prepare is called, no matter when
// their Run starts. The returned run must be started with Run.
func (s *Streamer) Prepare(ctx context.Context) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	return &Pending{s: s, ctx: ctx, cancel: cancel, gen: s.supersede(cancel)}
}

// Generation returns the generation p's results carry.
func (p *Pending) Generation() uint64 { return p.gen }

// Discard releases a run that will never be started.
func (p *Pending) Discard() {
	p.cancel()
	p.s.finish(p.gen)
}

// Run is Streamer.Run for a prepared run. A run superseded before Run is
// called returns context.Canceled without reading src.
func (p *Pending) Run(m *matcher.Matcher, src Source, opts StreamOptions) (sr *zfind.SearchResult, err error) {
	s, ctx, gen := p.s, p.ctx, p.gen
	defer p.cancel()
	defer s.finish(gen)
	opts.SetDefaults()

	q := m.Query()
	tr := trace.New("filter.Stream", q.String())
	tr.LazyPrintf("generation: %d", gen)
	tr.LazyPrintf("opts: %+v", opts)
	defer func() {
		if sr != nil {
			tr.LazyPrintf("stats: %+v", sr.Stats)
		}
		if err != nil {
			tr.LazyPrintf("error: %v", err)
			tr.SetError()
		}
		tr.Finish()
	}()

	if err := ctx.Err(); err != nil {
		metricCancelled.Inc()
		return nil, err
	}

	metricRuns.WithLabelValues("stream").Inc()
	start := time.Now()

	proc, err := s.sched.acquire(ctx)
	if err != nil {
		metricCancelled.Inc()
		return nil, err
	}
	defer proc.Release()

	col := NewCollector(opts.Number)
	col.AddStats(zfind.Stats{Wait: time.Since(start)})
	tr.LazyPrintf("acquired scheduler")

	timer := newDeadlineTimer(opts.FlushInterval)
	var flushMu sync.Mutex
	defer func() {
		flushMu.Lock()
		timer.Stop()
		flushMu.Unlock()
	}()

	// flush sends a partial result. reason 0 flushes only if the interval
	// elapsed and the best matches changed.
	flush := func(reason zfind.FlushReason) {
		if reason == 0 {
			if !flushMu.TryLock() {
				return
			}
		} else {
			flushMu.Lock()
		}
		defer flushMu.Unlock()

		if reason == 0 {
			if !timer.Exceeded() {
				return
			}
			timer.Reset()
			if !col.Dirty() {
				return
			}
			reason = zfind.FlushReasonTimerExpired
		}
		if ctx.Err() != nil {
			return
		}
		partial := col.Snapshot(reason)
		partial.Duration = time.Since(start)
		if s.gate.Send(gen, partial) {
			metricFlushes.WithLabelValues(reason.String()).Inc()
		}
	}

	batches := make(chan batch)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return src.Scan(gctx, opts.BatchSize, func(first int, lines []string) error {
			select {
			case batches <- batch{first: first, lines: lines}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	for i := 0; i < opts.Parallelism; i++ {
		g.Go(func() error {
			for b := range batches {
				if err := s.matchBatch(gctx, m, opts, b, col, flush); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			metricCancelled.Inc()
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("filter %s: %w", q.Raw, err)
	}

	sr = col.Snapshot(zfind.FlushReasonFinalFlush)
	sr.Duration = time.Since(start)
	sr.Done = true
	metricProcessed.Add(float64(sr.Processed))
	metricRunDuration.WithLabelValues("stream").Observe(sr.Duration.Seconds())

	if !s.gate.Send(gen, sr) {
		metricCancelled.Inc()
		return nil, context.Canceled
	}
	metricFlushes.WithLabelValues(zfind.FlushReasonFinalFlush.String()).Inc()

	s.logger.Debug("stream done",
		sglog.Int("processed", sr.Processed),
		sglog.Int("matched", sr.Matched),
		sglog.Int("crashes", sr.Crashes),
		sglog.Duration("duration", sr.Duration),
		sglog.Duration("wait", sr.Wait))
	return sr, nil
}

func (s *Streamer) matchBatch(ctx context.Context, m *matcher.Matcher, opts StreamOptions, b batch, col *Collector, flush func(zfind.FlushReason)) error {
	for off := 0; off < len(b.lines); off += opts.FlushSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(off+opts.FlushSize, len(b.lines))
		var st zfind.Stats
		var ms []zfind.Match
		for i := off; i < end; i++ {
			line := b.lines[i]
			st.Processed++
			r, ok, crashed := matchSafe(s.logger, m, item.New(opts.Kind, line))
			if crashed {
				st.Crashes++
				continue
			}
			if !ok {
				continue
			}
			st.Matched++
			ms = append(ms, zfind.Match{Index: b.first + i, Text: line, Score: r.Score, Indices: r.Indices})
		}

		zfind.SortMatchesByScore(ms)
		if col.Add(ms, st) {
			flush(zfind.FlushReasonMaxSize)
		} else {
			flush(0)
		}
	}
	return nil
}

// supersede cancels the running run, if any, and starts a new generation.
func (s *Streamer) supersede(cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.gen = s.gate.Advance()
	return s.gen
}

func (s *Streamer) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.cancel = nil
	}
}

// Cancel stops the running run. Once Cancel returns no result of that run
// is delivered.
func (s *Streamer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gate.Cancel()
}

// Generation returns the generation of the latest run.
func (s *Streamer) Generation() uint64 {
	return s.gate.Current()
}
