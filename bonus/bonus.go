// Package bonus adjusts a base match score with signals that do not depend
// on the alignment itself: where the match falls in a path, whether the
// line lives under the working directory, recently opened files and
// language keywords.
package bonus

import "strings"

// MaxLineLen is the longest line that receives a bonus.
const MaxLineLen = 1024

// Kind is the closed set of bonus variants.
type Kind uint8

const (
	None Kind = iota
	FileName
	Cwd
	RecentFiles
	Language
)

func (k Kind) String() string {
	switch k {
	case FileName:
		return "filename"
	case Cwd:
		return "cwd"
	case RecentFiles:
		return "recent_files"
	case Language:
		return "language"
	}
	return "none"
}

// Bonus is one contextual score adjustment. Only the field belonging to
// Kind is read.
type Bonus struct {
	Kind Kind

	// Path is the reference directory of a Cwd bonus.
	Path string

	// Recent lists the recently opened files of a RecentFiles bonus.
	Recent []string

	// Ext is the file extension of a Language bonus, without the dot.
	Ext string
}

// NewFileName returns a bonus rewarding matches in the basename.
func NewFileName() Bonus { return Bonus{Kind: FileName} }

// NewCwd returns a bonus rewarding lines under dir.
func NewCwd(dir string) Bonus { return Bonus{Kind: Cwd, Path: dir} }

// NewRecentFiles returns a bonus rewarding recently opened files.
func NewRecentFiles(files []string) Bonus { return Bonus{Kind: RecentFiles, Recent: files} }

// NewLanguage returns a bonus rewarding declaration lines of the language
// with the given extension.
func NewLanguage(ext string) Bonus {
	return Bonus{Kind: Language, Ext: strings.TrimPrefix(ext, ".")}
}

// Parse maps a configured bonus name to a bonus. Only the variants that
// need no argument can be named; everything else is None.
func Parse(name string) Bonus {
	if strings.EqualFold(strings.TrimSpace(name), "filename") {
		return NewFileName()
	}
	return Bonus{}
}

// Delta returns the score adjustment for a line. text is the line's bonus
// text, fullLen the length of the full line.
func (b Bonus) Delta(text string, fullLen, score int, indices []int) int {
	if fullLen > MaxLineLen {
		return 0
	}
	switch b.Kind {
	case FileName:
		return fileName(text, score, indices)
	case Cwd:
		if b.Path != "" && strings.HasPrefix(text, b.Path) {
			return score / 2
		}
	case RecentFiles:
		for _, f := range b.Recent {
			if strings.Contains(f, text) {
				return score / 3
			}
		}
	case Language:
		return language(b.Ext, text, score)
	}
	return 0
}

// fileName rewards the share of matched characters that fall inside the
// basename of text.
func fileName(text string, score int, indices []int) int {
	offset := strings.LastIndexByte(text, '/') + 1
	base := text[offset:]
	if base == "" {
		return 0
	}
	var hits int
	for _, i := range indices {
		if i >= offset {
			hits++
		}
	}
	return score * hits / len(base)
}

// Compose sums the deltas of all bonuses.
func Compose(bonuses []Bonus, text string, fullLen, score int, indices []int) int {
	var total int
	for _, b := range bonuses {
		total += b.Delta(text, fullLen, score, indices)
	}
	return total
}
