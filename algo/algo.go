// Package algo contains the fuzzy matching backends. Every backend honors
// the same contract, so callers select one by name from configuration.
package algo

import (
	"sort"
	"strings"

	"github.com/sourcegraph/zfind"
)

// Backend matches a single needle against a text.
//
// Match returns false if haystack does not contain the characters of needle
// as an ordered subsequence under the given case matching. On success the
// indices are strictly increasing byte offsets into haystack, one per
// needle character.
type Backend interface {
	Name() string
	Match(needle, haystack string, cm CaseMatching) (zfind.MatchResult, bool)
}

// DefaultBackend is used for empty or unknown names.
const DefaultBackend = "fzy"

var backends = map[string]Backend{
	"fzy":       fzy{},
	"fzf-v2":    newFzfV2(),
	"sahilm":    sahilm{},
	"substring": substring{},
}

// Names returns the names of the registered backends, sorted.
func Names() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the backend registered under name. Unknown names fall
// back to DefaultBackend.
func Lookup(name string) Backend {
	b, ok := backends[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		b = backends[DefaultBackend]
	}
	return contract{b}
}

// contract wraps a backend to handle the degenerate inputs uniformly and to
// normalize the indices it reports.
type contract struct {
	Backend
}

func (c contract) Match(needle, haystack string, cm CaseMatching) (zfind.MatchResult, bool) {
	if needle == "" {
		return zfind.MatchResult{}, true
	}
	if cm.equal(needle, haystack) {
		idx := make([]int, 0, len(needle))
		for i := range haystack {
			idx = append(idx, i)
		}
		return zfind.MatchResult{Score: 0, Indices: idx}, true
	}

	r, ok := c.Backend.Match(needle, haystack, cm)
	if !ok {
		return zfind.MatchResult{}, false
	}
	r.Indices = normalizeIndices(r.Indices, len(haystack))
	return r, true
}

// normalizeIndices sorts, dedups and bounds-checks indices in place.
func normalizeIndices(idx []int, n int) []int {
	if sort.IntsAreSorted(idx) {
		ok := true
		for i, v := range idx {
			if v < 0 || v >= n || (i > 0 && idx[i-1] == v) {
				ok = false
				break
			}
		}
		if ok {
			return idx
		}
	}

	sort.Ints(idx)
	out := make([]int, 0, len(idx))
	for _, v := range idx {
		if v < 0 || v >= n {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// MergeIndices merges sorted index lists into one sorted list without
// duplicates.
func MergeIndices(lists ...[]int) []int {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	if n == 0 {
		return nil
	}
	out := make([]int, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.Ints(out)
	j := 0
	for i := 1; i < len(out); i++ {
		if out[i] != out[j] {
			j++
			out[j] = out[i]
		}
	}
	return out[:j+1]
}
