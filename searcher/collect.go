package searcher

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	sglog "github.com/sourcegraph/log"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/filter"
	"github.com/sourcegraph/zfind/stream"
)

// UpdateInterval is the default time between two progress results.
const UpdateInterval = 200 * time.Millisecond

// CollectOptions tune Collect.
type CollectOptions struct {
	// Number is how many of the best matches are kept.
	Number int

	// Interval is the time between two progress results.
	Interval time.Duration
}

func (o *CollectOptions) setDefaults() {
	if o.Number <= 0 {
		o.Number = 30
	}
	if o.Interval <= 0 {
		o.Interval = UpdateInterval
	}
}

// Collect consumes the events of a search, sending the best matches to
// sender at a fixed interval while they change, and a final result with
// Done set once the events end. It returns the final result, or ctx.Err()
// if ctx is done first.
func Collect(ctx context.Context, logger sglog.Logger, events <-chan Event, opts CollectOptions, sender stream.Sender) (*zfind.SearchResult, error) {
	opts.setDefaults()
	if logger == nil {
		logger = sglog.NoOp()
	}
	logger = logger.Scoped("collect", "searcher result collector")

	start := time.Now()
	col := filter.NewCollector(opts.Number)
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	lastProcessed := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				sr := col.Snapshot(zfind.FlushReasonFinalFlush)
				sr.Duration = time.Since(start)
				sr.Done = true
				sender.Send(sr)
				logger.Debug("search done",
					sglog.String("processed", humanize.Comma(int64(sr.Processed))),
					sglog.String("matched", humanize.Comma(int64(sr.Matched))),
					sglog.Duration("duration", sr.Duration))
				return sr, nil
			}
			switch ev.Kind {
			case EventMatch:
				col.Add([]zfind.Match{ev.Match}, zfind.Stats{Matched: 1})
			case EventProcessed:
				col.AddStats(zfind.Stats{Processed: ev.Processed})
			}

		case <-ticker.C:
			st := col.Stats()
			if !col.Dirty() && st.Processed == lastProcessed {
				continue
			}
			lastProcessed = st.Processed
			sr := col.Snapshot(zfind.FlushReasonTimerExpired)
			sr.Duration = time.Since(start)
			sender.Send(sr)
			if !sr.Zero() {
				logger.Debug("search progress",
					sglog.String("processed", humanize.Comma(int64(sr.Processed))),
					sglog.String("matched", humanize.Comma(int64(sr.Matched))))
			}
		}
	}
}
