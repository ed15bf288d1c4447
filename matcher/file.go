package matcher

import (
	"github.com/sourcegraph/zfind/algo"
	"github.com/sourcegraph/zfind/bonus"
)

// FileLineResult is the match of a line found while searching files.
type FileLineResult struct {
	Score int

	// PathIndices are offsets into the path, set when the exact terms
	// matched the path rather than the line.
	PathIndices []int

	// LineIndices are offsets into the line.
	LineIndices []int
}

// MatchFileLine matches a line of the file at path. Inverse terms reject if
// they occur in either. Exact terms are tried against the path first, then
// against the line. Fuzzy terms match the line, and the bonuses look at the
// path.
func (m *Matcher) MatchFileLine(path, line string) (FileLineResult, bool) {
	if line == "" {
		return FileLineResult{}, false
	}
	if m.inverseMatched(line) || m.inverseMatched(path) {
		return FileLineResult{}, false
	}

	var res FileLineResult
	exactScore, exactIdx, ok := m.matchExact(path)
	if ok && len(m.q.Exact) > 0 {
		res.PathIndices = algo.MergeIndices(exactIdx)
	} else {
		exactScore, exactIdx, ok = m.matchExact(line)
		if !ok {
			return FileLineResult{}, false
		}
	}

	var fuzzyScore int
	var fuzzyIdx []int
	if len(m.q.Fuzzy) > 0 {
		lists := make([][]int, 0, len(m.q.Fuzzy))
		for _, t := range m.q.Fuzzy {
			r, ok := m.backend.Match(t.Text, line, m.cm)
			if !ok {
				return FileLineResult{}, false
			}
			fuzzyScore += r.Score
			lists = append(lists, r.Indices)
		}
		fuzzyIdx = algo.MergeIndices(lists...)
	}

	if len(m.q.Fuzzy) == 0 {
		res.Score = exactScore + bonus.Compose(m.bonuses, path, len(line), exactScore, res.PathIndices)
	} else {
		res.Score = exactScore + fuzzyScore + bonus.Compose(m.bonuses, path, len(line), fuzzyScore, nil)
	}
	if res.PathIndices == nil {
		res.LineIndices = algo.MergeIndices(exactIdx, fuzzyIdx)
	} else {
		res.LineIndices = fuzzyIdx
	}
	return res, true
}
