package zfind

// LimitMatches truncates the matches of the result to the given positive
// limit, returning the number of matches that were dropped.
func (sr *SearchResult) LimitMatches(limit int) int {
	if limit <= 0 || len(sr.Matches) <= limit {
		return 0
	}
	dropped := len(sr.Matches) - limit
	sr.Matches = sr.Matches[:limit]
	return dropped
}
