package algo

import (
	"sort"
	"sync"
	"unicode"

	fzfalgo "github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/sourcegraph/zfind"
)

// fzfV2 adapts fzf's optimal FuzzyMatchV2. A slab is scratch memory owned by
// one goroutine at a time, so they are pooled.
type fzfV2 struct {
	slabs *sync.Pool
}

func newFzfV2() fzfV2 {
	return fzfV2{slabs: &sync.Pool{
		New: func() any { return util.MakeSlab(100*1024, 2048) },
	}}
}

func (fzfV2) Name() string { return "fzf-v2" }

func (f fzfV2) Match(needle, haystack string, cm CaseMatching) (zfind.MatchResult, bool) {
	caseSensitive := cm.Sensitive(needle)
	pattern := []rune(needle)
	if !caseSensitive {
		for i, r := range pattern {
			pattern[i] = unicode.ToLower(r)
		}
	}

	chars := util.ToChars([]byte(haystack))
	slab := f.slabs.Get().(*util.Slab)
	res, pos := fzfalgo.FuzzyMatchV2(caseSensitive, false, true, &chars, pattern, true, slab)
	f.slabs.Put(slab)

	if res.Start < 0 || pos == nil {
		return zfind.MatchResult{}, false
	}

	// fzf reports rune positions, last one first.
	runePos := append([]int(nil), (*pos)...)
	sort.Ints(runePos)

	offsets := runeOffsets(haystack)
	idx := make([]int, 0, len(runePos))
	for _, p := range runePos {
		if p < len(offsets) {
			idx = append(idx, offsets[p])
		}
	}
	return zfind.MatchResult{Score: res.Score, Indices: idx}, true
}

func runeOffsets(s string) []int {
	offsets := make([]int, 0, len(s))
	for i := range s {
		offsets = append(offsets, i)
	}
	return offsets
}
