package algo

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CaseMatching selects how letter case is compared.
type CaseMatching uint8

const (
	// Smart matches case-sensitively only if the needle has an uppercase
	// letter.
	Smart CaseMatching = iota
	Ignore
	Respect
)

// ParseCaseMatching parses "smart", "ignore" or "respect". Anything else is
// Smart.
func ParseCaseMatching(s string) CaseMatching {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore":
		return Ignore
	case "respect":
		return Respect
	default:
		return Smart
	}
}

func (cm CaseMatching) String() string {
	switch cm {
	case Ignore:
		return "ignore"
	case Respect:
		return "respect"
	default:
		return "smart"
	}
}

// Sensitive reports whether needle must be matched case-sensitively.
func (cm CaseMatching) Sensitive(needle string) bool {
	switch cm {
	case Ignore:
		return false
	case Respect:
		return true
	}
	for _, r := range needle {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func (cm CaseMatching) equal(needle, haystack string) bool {
	if cm.Sensitive(needle) {
		return needle == haystack
	}
	return strings.EqualFold(needle, haystack)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// lowerRunes lowercases s rune by rune and returns the byte offset of every
// rune in s. The rune count is preserved, so rune i of the result maps back
// to offsets[i] in s.
func lowerRunes(s string, lower bool) (runes []rune, offsets []int) {
	runes = make([]rune, 0, len(s))
	offsets = make([]int, 0, len(s))
	for i, r := range s {
		if lower {
			r = unicode.ToLower(r)
		}
		runes = append(runes, r)
		offsets = append(offsets, i)
	}
	return runes, offsets
}
