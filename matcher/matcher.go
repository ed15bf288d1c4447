// Package matcher turns a parsed query into a per-item test: inverse terms
// reject, exact terms are required, fuzzy terms are scored and the bonuses
// adjust the result.
package matcher

import (
	"strings"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/algo"
	"github.com/sourcegraph/zfind/bonus"
	"github.com/sourcegraph/zfind/item"
	"github.com/sourcegraph/zfind/query"
)

// Builder holds the configuration shared by all matchers of a session.
type Builder struct {
	// Backend is the fuzzy algorithm. Nil means algo.DefaultBackend.
	Backend algo.Backend
	Case    algo.CaseMatching
	Bonuses []bonus.Bonus
}

// Build returns a matcher for q. Matchers are immutable and safe for
// concurrent use.
func (b Builder) Build(q query.Query) *Matcher {
	be := b.Backend
	if be == nil {
		be = algo.Lookup(algo.DefaultBackend)
	}
	return &Matcher{
		q:       q,
		backend: be,
		cm:      b.Case,
		bonuses: b.Bonuses,
	}
}

// Matcher matches items against one query.
type Matcher struct {
	q       query.Query
	backend algo.Backend
	cm      algo.CaseMatching
	bonuses []bonus.Bonus
}

// Query returns the query the matcher was built from.
func (m *Matcher) Query() query.Query { return m.q }

// Match tests it against the query. Indices are byte offsets into it.Text.
func (m *Matcher) Match(it item.Item) (zfind.MatchResult, bool) {
	line := it.Text
	if line == "" {
		return zfind.MatchResult{}, false
	}

	if m.inverseMatched(line) {
		return zfind.MatchResult{}, false
	}

	exactScore, exactIdx, ok := m.matchExact(line)
	if !ok {
		return zfind.MatchResult{}, false
	}

	fuzzyScore, fuzzyIdx, ok := m.matchFuzzy(it)
	if !ok {
		return zfind.MatchResult{}, false
	}

	bonusText := it.BonusText()
	if len(m.q.Fuzzy) == 0 {
		idx := algo.MergeIndices(exactIdx)
		delta := bonus.Compose(m.bonuses, bonusText, len(line), exactScore, idx)
		return zfind.MatchResult{Score: exactScore + delta, Indices: idx}, true
	}

	delta := bonus.Compose(m.bonuses, bonusText, len(line), fuzzyScore, fuzzyIdx)
	return zfind.MatchResult{
		Score:   exactScore + fuzzyScore + delta,
		Indices: algo.MergeIndices(exactIdx, fuzzyIdx),
	}, true
}

func (m *Matcher) inverseMatched(line string) bool {
	if len(m.q.Inverse) == 0 {
		return false
	}
	trimmed := strings.TrimSpace(line)
	for _, t := range m.q.Inverse {
		switch t.Kind {
		case query.PrefixExact:
			if strings.HasPrefix(trimmed, t.Text) {
				return true
			}
		case query.SuffixExact:
			if strings.HasSuffix(trimmed, t.Text) {
				return true
			}
		default:
			if _, ok := algo.Substring(t.Text, trimmed, m.cm); ok {
				return true
			}
		}
	}
	return false
}

// matchExact requires every exact term. Shorter lines score higher. Lines
// without exact terms score 0.
func (m *Matcher) matchExact(line string) (int, []int, bool) {
	if len(m.q.Exact) == 0 {
		return 0, nil, true
	}

	var score int
	var idx []int
	for _, t := range m.q.Exact {
		switch t.Kind {
		case query.PrefixExact:
			trimmed := strings.TrimLeft(line, " \t")
			if !strings.HasPrefix(trimmed, t.Text) {
				return 0, nil, false
			}
			idx = appendRange(idx, line, len(line)-len(trimmed), len(t.Text))
			score += len(t.Text)
		case query.SuffixExact:
			trimmed := strings.TrimRight(line, " \t")
			if !strings.HasSuffix(trimmed, t.Text) {
				return 0, nil, false
			}
			idx = appendRange(idx, line, len(trimmed)-len(t.Text), len(t.Text))
			score += len(t.Text)
		default:
			r, ok := algo.Substring(t.Text, line, m.cm)
			if !ok {
				return 0, nil, false
			}
			idx = append(idx, r.Indices...)
			score += max(r.Score, len(t.Text))
		}
	}
	score += 512 / len(line)
	return score, idx, true
}

// appendRange appends the offset of every rune starting in line[start:start+n].
func appendRange(idx []int, line string, start, n int) []int {
	for i := range line[start : start+n] {
		idx = append(idx, start+i)
	}
	return idx
}

// matchFuzzy ANDs the fuzzy terms over the item's fuzzy text.
func (m *Matcher) matchFuzzy(it item.Item) (int, []int, bool) {
	if len(m.q.Fuzzy) == 0 {
		return 0, nil, true
	}

	text, offset := it.FuzzyText()
	var score int
	lists := make([][]int, 0, len(m.q.Fuzzy))
	for _, t := range m.q.Fuzzy {
		r, ok := m.backend.Match(t.Text, text, m.cm)
		if !ok {
			return 0, nil, false
		}
		score += r.Score
		shifted := make([]int, len(r.Indices))
		for i, v := range r.Indices {
			shifted[i] = v + offset
		}
		lists = append(lists, shifted)
	}
	return score, algo.MergeIndices(lists...), true
}
