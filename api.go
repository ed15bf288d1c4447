// Copyright 2016 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zfind // import "github.com/sourcegraph/zfind"

import (
	"fmt"
	"time"
)

// Version is set at link time.
var Version = "dev"

// MatchResult is the outcome of matching a needle against a text, or of
// matching a whole query against an item.
type MatchResult struct {
	Score int

	// Indices are byte offsets into the matched text. They are strictly
	// increasing.
	Indices []int
}

// Match is a ranked candidate line.
type Match struct {
	// Index is the position of the line in its source. Ties in Score are
	// broken by Index, which keeps the ranking stable.
	Index int

	// Text is the full display text of the line.
	Text string

	Score   int
	Indices []int
}

func (m *Match) String() string {
	return fmt.Sprintf("%d:%q(%d)%v", m.Index, m.Text, m.Score, m.Indices)
}

type FlushReason uint8

const (
	FlushReasonTimerExpired FlushReason = 1 << iota
	FlushReasonFinalFlush
	FlushReasonMaxSize
)

var FlushReasonStrings = map[FlushReason]string{
	FlushReasonTimerExpired: "timer_expired",
	FlushReasonFinalFlush:   "final_flush",
	FlushReasonMaxSize:      "max_size_reached",
}

func (fr FlushReason) String() string {
	if v, ok := FlushReasonStrings[fr]; ok {
		return v
	}

	return "none"
}

// Stats contains interesting numbers on the search
type Stats struct {
	// Number of candidate lines that went through the matcher.
	Processed int

	// Number of candidate lines that matched.
	Matched int

	// Number of workers that crashed while matching.
	Crashes int

	// Wall clock time for this search
	Duration time.Duration

	// Wall clock time spent waiting for a scheduler slot.
	Wait time.Duration

	// FlushReason explains why results were flushed.
	FlushReason FlushReason
}

func (s *Stats) Add(o Stats) {
	s.Processed += o.Processed
	s.Matched += o.Matched
	s.Crashes += o.Crashes
	s.Wait += o.Wait

	// We want the first non-zero FlushReason to be sticky.
	if s.FlushReason == 0 {
		s.FlushReason = o.FlushReason
	}
}

// Zero returns true if stats is empty.
func (s *Stats) Zero() bool {
	if s == nil {
		return true
	}

	return !(s.Processed > 0 ||
		s.Matched > 0 ||
		s.Crashes > 0 ||
		s.Wait > 0)
}

// SearchResult contains the ranked matches of one query, or a partial
// snapshot of them while the query is still running.
type SearchResult struct {
	Stats

	// Generation identifies the query that produced this result within a
	// session. Results of older generations must not be rendered.
	Generation uint64

	// Matches are sorted by SortMatchesByScore.
	Matches []Match

	// Done is true for the last result of a query.
	Done bool
}
