package algo

import (
	"github.com/sahilm/fuzzy"

	"github.com/sourcegraph/zfind"
)

// sahilm adapts github.com/sahilm/fuzzy, which favours matches at word
// boundaries and after separators. The library always folds case, so a
// case-sensitive needle is checked against the raw text first.
type sahilm struct{}

func (sahilm) Name() string { return "sahilm" }

func (sahilm) Match(needle, haystack string, cm CaseMatching) (zfind.MatchResult, bool) {
	if cm.Sensitive(needle) && !isSubsequence([]rune(needle), []rune(haystack)) {
		return zfind.MatchResult{}, false
	}

	matches := fuzzy.Find(needle, []string{haystack})
	if len(matches) == 0 {
		return zfind.MatchResult{}, false
	}
	m := matches[0]
	return zfind.MatchResult{
		Score:   m.Score,
		Indices: append([]int(nil), m.MatchedIndexes...),
	}, true
}
