package algo

import (
	"strings"

	"github.com/sourcegraph/zfind"
)

type substring struct{}

func (substring) Name() string { return "substring" }

// Match requires every whitespace separated part of needle to occur
// verbatim in haystack.
func (substring) Match(needle, haystack string, cm CaseMatching) (zfind.MatchResult, bool) {
	if len(haystack) > MaxHaystackLen {
		return zfind.MatchResult{}, false
	}

	var total int
	var lists [][]int
	for _, sub := range strings.Fields(needle) {
		r, ok := Substring(sub, haystack, cm)
		if !ok {
			return zfind.MatchResult{}, false
		}
		total += r.Score
		lists = append(lists, r.Indices)
	}
	return zfind.MatchResult{Score: total, Indices: MergeIndices(lists...)}, true
}

// Substring finds the first occurrence of needle in haystack. The score
// prefers early and short matches:
//
//	2/(first+1) + 1/(last+1) - len
func Substring(needle, haystack string, cm CaseMatching) (zfind.MatchResult, bool) {
	if needle == "" {
		return zfind.MatchResult{}, true
	}

	var start, end int
	if cm.Sensitive(needle) {
		i := strings.Index(haystack, needle)
		if i < 0 {
			return zfind.MatchResult{}, false
		}
		start, end = i, i+len(needle)
	} else {
		var ok bool
		start, end, ok = indexFold(haystack, needle)
		if !ok {
			return zfind.MatchResult{}, false
		}
	}

	var idx []int
	for i := range haystack[start:end] {
		idx = append(idx, start+i)
	}

	first, last := float64(idx[0]), float64(idx[len(idx)-1])
	score := 2/(first+1) + 1/(last+1) - float64(len(idx))
	return zfind.MatchResult{Score: int(score), Indices: idx}, true
}

// indexFold returns the byte range of the first case-insensitive occurrence
// of needle in haystack.
func indexFold(haystack, needle string) (start, end int, ok bool) {
	h, offsets := lowerRunes(haystack, true)
	n, _ := lowerRunes(needle, true)
	if len(n) > len(h) {
		return 0, 0, false
	}
outer:
	for i := 0; i+len(n) <= len(h); i++ {
		for k := range n {
			if h[i+k] != n[k] {
				continue outer
			}
		}
		start = offsets[i]
		end = len(haystack)
		if i+len(n) < len(offsets) {
			end = offsets[i+len(n)]
		}
		return start, end, true
	}
	return 0, 0, false
}
