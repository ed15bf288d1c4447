package algo

import (
	"math"

	"github.com/sourcegraph/zfind"
)

// Weights of the fzy alignment.
const (
	scoreGapLeading       = -1
	scoreGapTrailing      = -1
	scoreGapInner         = -2
	scoreMatchConsecutive = 200
	scoreMatchSlash       = 180
	scoreMatchWord        = 160
	scoreMatchCapital     = 140
	scoreMatchDot         = 120
)

const (
	scoreMin = math.MinInt32
	scoreMax = math.MaxInt32
)

// MaxHaystackLen is the longest text, in characters, that is scored with the
// full alignment. Longer texts still match but get MinScore.
const MaxHaystackLen = 1024

// MinScore is the score of a match against an unreasonably long text.
const MinScore = scoreMin

type fzy struct{}

func (fzy) Name() string { return "fzy" }

func (fzy) Match(needle, haystack string, cm CaseMatching) (zfind.MatchResult, bool) {
	lower := !cm.Sensitive(needle)
	if isASCII(needle) && isASCII(haystack) {
		return fzyASCII(needle, haystack, lower)
	}
	return fzyUnicode(needle, haystack, lower)
}

// fzyASCII scores byte by byte. Offsets are the byte positions themselves.
func fzyASCII(needle, haystack string, lower bool) (zfind.MatchResult, bool) {
	n := []byte(needle)
	h := []byte(haystack)
	if lower {
		for i := range n {
			n[i] = lowerASCII(n[i])
		}
		for i := range h {
			h[i] = lowerASCII(h[i])
		}
	}
	if !isSubsequence(n, h) {
		return zfind.MatchResult{}, false
	}
	score, pos := fzyScore(n, h, []byte(haystack))
	return zfind.MatchResult{Score: score, Indices: pos}, true
}

func fzyUnicode(needle, haystack string, lower bool) (zfind.MatchResult, bool) {
	n, _ := lowerRunes(needle, lower)
	h, offsets := lowerRunes(haystack, lower)
	orig, _ := lowerRunes(haystack, false)
	if !isSubsequence(n, h) {
		return zfind.MatchResult{}, false
	}
	score, pos := fzyScore(n, h, orig)
	for i, p := range pos {
		pos[i] = offsets[p]
	}
	return zfind.MatchResult{Score: score, Indices: pos}, true
}

type char interface {
	~byte | ~rune
}

func isSubsequence[T char](needle, haystack []T) bool {
	j := 0
	for _, c := range needle {
		for j < len(haystack) && haystack[j] != c {
			j++
		}
		if j == len(haystack) {
			return false
		}
		j++
	}
	return true
}

// greedyPositions returns the leftmost position of every needle character.
// needle must be a subsequence of haystack.
func greedyPositions[T char](needle, haystack []T) []int {
	pos := make([]int, 0, len(needle))
	j := 0
	for _, c := range needle {
		for haystack[j] != c {
			j++
		}
		pos = append(pos, j)
		j++
	}
	return pos
}

// fzyScore aligns needle against haystack. needle must be a subsequence of
// haystack. orig is haystack before case folding; bonuses are computed on it
// so camel case boundaries survive a case-insensitive match.
func fzyScore[T char](needle, haystack, orig []T) (int, []int) {
	n, m := len(needle), len(haystack)

	if n == m {
		pos := make([]int, n)
		for i := range pos {
			pos[i] = i
		}
		return 0, pos
	}

	if m > MaxHaystackLen {
		return MinScore, greedyPositions(needle, haystack)
	}

	bonus := make([]int32, m)
	prev := T('/')
	for j, c := range orig {
		bonus[j] = bonusFor(prev, c)
		prev = c
	}

	// D[i*m+j] is the best score of an alignment of needle[:i+1] ending with a
	// match at haystack[j]. M[i*m+j] is the best score of any alignment of
	// needle[:i+1] within haystack[:j+1].
	D := make([]int32, n*m)
	M := make([]int32, n*m)

	for i := 0; i < n; i++ {
		prevScore := int32(scoreMin)
		gap := int32(scoreGapInner)
		if i == n-1 {
			gap = scoreGapTrailing
		}

		for j := 0; j < m; j++ {
			k := i*m + j
			if needle[i] != haystack[j] {
				prevScore = add(prevScore, gap)
				D[k] = scoreMin
				M[k] = prevScore
				continue
			}

			var score int32
			switch {
			case i == 0:
				score = add(bonus[j], int32(j)*scoreGapLeading)
			case j > 0:
				score = max(
					add(M[k-m-1], bonus[j]),
					add(D[k-m-1], scoreMatchConsecutive),
				)
			default:
				score = scoreMin
			}

			prevScore = max(score, add(prevScore, gap))
			D[k] = score
			M[k] = prevScore
		}
	}

	pos := make([]int, n)
	matchRequired := false
	j := m - 1
	for i := n - 1; i >= 0; i-- {
		for ; j >= 0; j-- {
			k := i*m + j
			if D[k] == scoreMin || !(matchRequired || D[k] == M[k]) {
				continue
			}
			var last int32
			if i > 0 && j > 0 {
				last = D[k-m-1]
			}
			matchRequired = i > 0 && j > 0 && M[k] == add(last, scoreMatchConsecutive)
			pos[i] = j
			j--
			break
		}
	}

	return int(M[n*m-1]), pos
}

func bonusFor[T char](prev, cur T) int32 {
	switch {
	case 'a' <= cur && cur <= 'z', '0' <= cur && cur <= '9':
		return bonusForPrev(prev)
	case 'A' <= cur && cur <= 'Z':
		if 'a' <= prev && prev <= 'z' {
			return scoreMatchCapital
		}
		return bonusForPrev(prev)
	}
	return 0
}

func bonusForPrev[T char](prev T) int32 {
	switch prev {
	case '/':
		return scoreMatchSlash
	case '-', '_', ' ':
		return scoreMatchWord
	case '.':
		return scoreMatchDot
	}
	return 0
}

// add is a saturating int32 addition.
func add(a, b int32) int32 {
	s := int64(a) + int64(b)
	if s > scoreMax {
		return scoreMax
	}
	if s < scoreMin {
		return scoreMin
	}
	return int32(s)
}
