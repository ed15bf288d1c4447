package item

import (
	"strconv"
	"strings"

	"github.com/grafana/regexp"
)

var (
	grepPos       = regexp.MustCompile(`^(.*):(\d+):(\d+):`)
	grepStripPath = regexp.MustCompile(`^.*:\d+:\d+:`)
	tagName       = regexp.MustCompile(`^(.*:\d+)`)
	bufferTags    = regexp.MustCompile(`^.*:(\d+)`)
	projTags      = regexp.MustCompile(`^(.*):(\d+).*\[(.*)@(.*)\]`)
	commitRev     = regexp.MustCompile(`^.*\d{4}-\d{2}-\d{2}\s+([0-9a-z]+)\s+`)
)

// StripGrepPath returns the content part of a grep line and its offset in
// the line.
//
//	crates/printer/src/lib.rs:199:26:        let query = "srlisrlisrsr";
//	                                 ^ offset
func StripGrepPath(line string) (content string, offset int, ok bool) {
	loc := grepStripPath.FindStringIndex(line)
	if loc == nil {
		return "", 0, false
	}
	return line[loc[1]:], loc[1], true
}

// GrepPosition parses the path, line and column of a grep line.
func GrepPosition(line string) (path string, lnum, col int, ok bool) {
	m := grepPos.FindStringSubmatch(line)
	if m == nil {
		return "", 0, 0, false
	}
	lnum, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, 0, false
	}
	col, err = strconv.Atoi(m[3])
	if err != nil {
		return "", 0, 0, false
	}
	return m[1], lnum, col, true
}

// GrepPath returns the path part of a grep line.
func GrepPath(line string) (string, bool) {
	m := grepPos.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// TagName returns the "name:lnum" prefix of a tag line.
func TagName(line string) (string, bool) {
	loc := tagName.FindStringIndex(line)
	if loc == nil {
		return "", false
	}
	return line[:loc[1]], true
}

// ProjTag parses the line number, kind and path of a project tag line such
// as
//
//	<C-D>:42    [map@ftplugin/clap_input.vim]  inoremap ...
func ProjTag(line string) (lnum int, kind, path string, ok bool) {
	m := projTags.FindStringSubmatch(line)
	if m == nil {
		return 0, "", "", false
	}
	lnum, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, "", "", false
	}
	return lnum, m[3], m[4], true
}

// BufferTagLnum parses the line number of a buffer tag line.
func BufferTagLnum(line string) (int, bool) {
	m := bufferTags.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return atoi(m[1])
}

// BlinesLnum parses the leading line number of a blines line.
func BlinesLnum(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	return atoi(fields[0])
}

// CommitRev returns the abbreviated revision of a commit log line.
func CommitRev(line string) (string, bool) {
	m := commitRev.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
