// Package item describes the lines a finder ranks. Each kind knows which
// part of its line takes part in fuzzy matching and which part feeds the
// score bonuses.
package item

import "strings"

// Kind is the closed set of line shapes.
type Kind uint8

const (
	// Generic lines match as a whole.
	Generic Kind = iota
	// GrepLine is "path:lnum:col:content"; only the content is matched.
	GrepLine
	// FilePath lines match on their basename.
	FilePath
	// TagLine lines match on their "name:lnum" prefix.
	TagLine
)

func (k Kind) String() string {
	switch k {
	case GrepLine:
		return "grepline"
	case FilePath:
		return "filename"
	case TagLine:
		return "tagname"
	}
	return "full"
}

// KindFor maps a match scope name to a kind. Unknown scopes are Generic.
func KindFor(scope string) Kind {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "grepline":
		return GrepLine
	case "filename":
		return FilePath
	case "tagname":
		return TagLine
	}
	return Generic
}

// Item is one candidate line. Items are immutable and safe to share
// between goroutines.
type Item struct {
	Kind Kind
	Text string
}

// New returns an item of kind k.
func New(k Kind, text string) Item { return Item{Kind: k, Text: text} }

// FuzzyText returns the part of the line eligible for fuzzy matching and
// its byte offset in Text. Lines that do not have the shape of their kind
// fall back to the whole line.
func (it Item) FuzzyText() (text string, offset int) {
	switch it.Kind {
	case GrepLine:
		if content, off, ok := StripGrepPath(it.Text); ok {
			return content, off
		}
	case FilePath:
		off := strings.LastIndexByte(it.Text, '/') + 1
		if off < len(it.Text) {
			return it.Text[off:], off
		}
	case TagLine:
		if name, ok := TagName(it.Text); ok {
			return name, 0
		}
	}
	return it.Text, 0
}

// BonusText returns the part of the line the bonuses look at.
func (it Item) BonusText() string {
	if it.Kind == GrepLine {
		if p, ok := GrepPath(it.Text); ok {
			return p
		}
	}
	return it.Text
}

// FromLines wraps lines as items of kind k.
func FromLines(k Kind, lines []string) []Item {
	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = Item{Kind: k, Text: l}
	}
	return items
}
