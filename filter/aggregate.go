package filter

import (
	"sync"

	"github.com/sourcegraph/zfind"
)

// Collector aggregates partial results of concurrent workers into the best
// N matches. It is safe for concurrent use.
type Collector struct {
	number int

	mu      sync.Mutex
	best    []zfind.Match
	stats   zfind.Stats
	dirty   bool
	wasFull bool
}

// NewCollector returns a collector keeping the number best matches. A
// number <= 0 keeps everything.
func NewCollector(number int) *Collector {
	return &Collector{number: number}
}

// Add merges ms, which must be sorted with zfind.SortMatchesByScore, and
// the stats of the work that produced them. It reports whether the best
// matches just filled up for the first time.
func (c *Collector) Add(ms []zfind.Match, st zfind.Stats) (filled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Add(st)
	if len(ms) == 0 {
		return false
	}

	merged := zfind.MergeSorted(c.best, ms, c.number)
	if !c.dirty {
		c.dirty = !sameMatches(merged, c.best)
	}
	c.best = merged

	if !c.wasFull && c.number > 0 && len(c.best) == c.number {
		c.wasFull = true
		return true
	}
	return false
}

// AddStats merges stats without matches.
func (c *Collector) AddStats(st zfind.Stats) {
	c.mu.Lock()
	c.stats.Add(st)
	c.mu.Unlock()
}

// Dirty reports whether the best matches changed since the last snapshot.
func (c *Collector) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Snapshot returns the current aggregate. The matches are copied, so the
// result stays valid while more work is added.
func (c *Collector) Snapshot(reason zfind.FlushReason) *zfind.SearchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dirty = false

	sr := &zfind.SearchResult{
		Stats:   c.stats,
		Matches: append([]zfind.Match(nil), c.best...),
	}
	sr.Stats.FlushReason = reason
	return sr
}

// Stats returns the aggregated stats.
func (c *Collector) Stats() zfind.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func sameMatches(a, b []zfind.Match) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Index != b[i].Index || a[i].Score != b[i].Score {
			return false
		}
	}
	return true
}
