// Package filter applies a matcher to the lines of a source, either eagerly
// over a bounded list or as a cancellable, parallel stream that reports the
// best matches so far at a bounded cadence.
package filter

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	sglog "github.com/sourcegraph/log"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/matcher"
)

// Scale is a coarse estimate of a source's size.
type Scale uint8

const (
	// Small sources are filtered synchronously.
	Small Scale = iota
	// Large sources are streamed.
	Large
)

// LargeThreshold is the number of lines from which a source is Large.
const LargeThreshold = 100_000

func (s Scale) String() string {
	if s == Large {
		return "large"
	}
	return "small"
}

// ScaleFor returns the scale of a source with total lines. In-memory lists
// are always Small.
func ScaleFor(total int, inMemory bool) Scale {
	if inMemory || total < LargeThreshold {
		return Small
	}
	return Large
}

// checkEvery is how many items Sync matches between context checks.
const checkEvery = 1024

// Sync matches every item and returns all matches ranked by score. Equal
// scores keep their input order. The only error is a context error.
func Sync(ctx context.Context, m *matcher.Matcher, items []item.Item) ([]zfind.Match, error) {
	start := time.Now()
	metricRuns.WithLabelValues("sync").Inc()
	defer func() {
		metricRunDuration.WithLabelValues("sync").Observe(time.Since(start).Seconds())
	}()

	var ms []zfind.Match
	for i, it := range items {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				metricCancelled.Inc()
				return nil, err
			}
		}
		if r, ok := m.Match(it); ok {
			ms = append(ms, zfind.Match{Index: i, Text: it.Text, Score: r.Score, Indices: r.Indices})
		}
	}
	metricProcessed.Add(float64(len(items)))

	zfind.SortMatchesByScore(ms)
	return ms, nil
}

// SyncLines is Sync over plain lines of kind k.
func SyncLines(ctx context.Context, m *matcher.Matcher, k item.Kind, lines []string) ([]zfind.Match, error) {
	return Sync(ctx, m, item.FromLines(k, lines))
}

// matchSafe runs m on it and turns a panic into a crash.
func matchSafe(logger sglog.Logger, m *matcher.Matcher, it item.Item) (r zfind.MatchResult, ok bool, crashed bool) {
	defer func() {
		if e := recover(); e != nil {
			logger.Error("crashed matching line",
				sglog.String("line", truncate(it.Text, 256)),
				sglog.String("panic", fmt.Sprint(e)),
				sglog.String("stack", string(debug.Stack())))
			metricCrashes.Inc()
			r, ok, crashed = zfind.MatchResult{}, false, true
		}
	}()
	r, ok = m.Match(it)
	return r, ok, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
