// Package printer prepares ranked lines for display: lines wider than the
// window are trimmed around their matched span.
package printer

import (
	"github.com/rivo/uniseg"

	"github.com/sourcegraph/zfind"
)

// Ellipsis marks trimmed text.
const Ellipsis = ".."

// SignColumnWidth is reserved from the window width for the sign column.
const SignColumnWidth = 4

// TabStop is the display width of a tab stop.
const TabStop = 4

// TruncatedMap maps the 1-based line number of a trimmed line to the full
// line. Several displayed lines can look the same once trimmed, so the
// map is keyed by position.
type TruncatedMap map[int]string

// cluster is a grapheme cluster of a line.
type cluster struct {
	start, end int
	// acc is the display width of the line up to and including the cluster.
	acc int
}

func clusters(text string) []cluster {
	var cs []cluster
	w := 0
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		start, end := g.Positions()
		if text[start:end] == "\t" {
			w += TabStop - w%TabStop
		} else {
			w += g.Width()
		}
		cs = append(cs, cluster{start: start, end: end, acc: w})
	}
	return cs
}

// Width returns the display width of text.
func Width(text string) int {
	cs := clusters(text)
	if len(cs) == 0 {
		return 0
	}
	return cs[len(cs)-1].acc
}

// widthBefore returns the width of the text before byte offset off.
func widthBefore(cs []cluster, off int) int {
	w := 0
	for _, c := range cs {
		if c.start >= off {
			break
		}
		w = c.acc
	}
	return w
}

// Truncate trims text to width display cells keeping the matched span in
// view. indices are ascending byte offsets into text. It returns the
// trimmed text and indices, and false if text already fits or nothing
// matched.
func Truncate(text string, indices []int, width int) (string, []int, bool) {
	if text == "" || len(indices) == 0 || width <= 2*len(Ellipsis) {
		return text, indices, false
	}
	cs := clusters(text)
	full := cs[len(cs)-1].acc
	if full <= width {
		return text, indices, false
	}

	matchStart, matchEnd := indices[0], indices[len(indices)-1]
	w1 := widthBefore(cs, matchStart)
	w2 := full - w1
	for _, c := range cs {
		if c.start <= matchEnd && matchEnd < c.end {
			w2 = c.acc - w1
			break
		}
	}
	w3 := full - w1 - w2

	room := width - len(Ellipsis)
	switch {
	case (w1 > w3 && w2+w3 <= width) || w3 <= len(Ellipsis):
		// Keep the longest suffix that fits.
		cut := len(text)
		for i := len(cs) - 1; i >= 0; i-- {
			before := 0
			if i > 0 {
				before = cs[i-1].acc
			}
			if full-before > room {
				break
			}
			cut = cs[i].start
		}
		return Ellipsis + text[cut:], shift(indices, cut, len(text), len(Ellipsis)-cut), true

	case w1 <= w3 && w1+w2 <= width:
		end := prefixEnd(cs, 0, room)
		return text[:end] + Ellipsis, shift(indices, 0, end, 0), true

	default:
		start := 0
		for _, c := range cs {
			if c.start > matchStart {
				break
			}
			start = c.start
		}
		end := prefixEnd(cs, start, room-len(Ellipsis))
		return Ellipsis + text[start:end] + Ellipsis, shift(indices, start, end, len(Ellipsis)-start), true
	}
}

// prefixEnd returns the end offset of the longest run of clusters from
// byte offset start whose width fits in room.
func prefixEnd(cs []cluster, start, room int) int {
	base := widthBefore(cs, start)
	end := start
	for _, c := range cs {
		if c.start < start {
			continue
		}
		if c.acc-base > room {
			break
		}
		end = c.end
	}
	return end
}

// shift keeps the indices in [lo, hi) and adds delta to them.
func shift(indices []int, lo, hi, delta int) []int {
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if i >= lo && i < hi {
			out = append(out, i+delta)
		}
	}
	return out
}

// Lines is what a client displays for a set of ranked matches.
type Lines struct {
	Lines        []string
	Indices      [][]int
	TruncatedMap TruncatedMap
}

// Decorate trims the matches to a window of winwidth cells.
func Decorate(matches []zfind.Match, winwidth int) Lines {
	width := winwidth - SignColumnWidth
	out := Lines{
		Lines:        make([]string, len(matches)),
		Indices:      make([][]int, len(matches)),
		TruncatedMap: TruncatedMap{},
	}
	for i, m := range matches {
		text, idx, ok := Truncate(m.Text, m.Indices, width)
		if ok {
			out.TruncatedMap[i+1] = m.Text
		}
		out.Lines[i] = text
		out.Indices[i] = idx
		if out.Indices[i] == nil {
			out.Indices[i] = []int{}
		}
	}
	return out
}
