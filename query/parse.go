package query

import "strings"

// Parse splits a raw query into its terms. Tokens are separated by
// whitespace and classified by their sigils:
//
//	'foo   exact
//	^foo   prefix exact
//	foo$   suffix exact
//	!foo   inverse
//	!^foo  inverse prefix
//	!foo$  inverse suffix
//
// Anything else, including a token made of a sigil alone, is a fuzzy term.
// Parse never fails.
func Parse(raw string) Query {
	q := Query{Raw: raw}
	for _, tok := range strings.Fields(raw) {
		parseToken(&q, tok)
	}
	return q
}

func parseToken(q *Query, tok string) {
	if rest, ok := strings.CutPrefix(tok, "!"); ok {
		if kind, text, ok := exactKind(rest, false); ok {
			q.Inverse = append(q.Inverse, InverseTerm{Kind: kind, Text: text})
			return
		}
	} else if rest, ok := strings.CutPrefix(tok, "'"); ok && rest != "" {
		q.Exact = append(q.Exact, ExactTerm{Kind: Exact, Text: rest})
		return
	} else if kind, text, ok := exactKind(tok, true); ok {
		q.Exact = append(q.Exact, ExactTerm{Kind: kind, Text: text})
		return
	}

	q.Fuzzy = append(q.Fuzzy, FuzzyTerm{Text: tok})
}

// exactKind classifies tok by its anchors. If anchored is true, tok must
// carry a ^ or $ anchor to be accepted.
func exactKind(tok string, anchored bool) (ExactKind, string, bool) {
	if text, ok := strings.CutPrefix(tok, "^"); ok {
		if text == "" {
			return 0, "", false
		}
		return PrefixExact, text, true
	}
	if text, ok := strings.CutSuffix(tok, "$"); ok {
		if text == "" {
			return 0, "", false
		}
		return SuffixExact, text, true
	}
	if anchored || tok == "" {
		return 0, "", false
	}
	return Exact, tok, true
}
