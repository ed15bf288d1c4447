// Copyright 2016 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zfind

import "sort"

// Better reports whether a ranks before b: higher score first, then earlier
// source position.
func Better(a, b *Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

type matchSlice []Match

func (m matchSlice) Len() int           { return len(m) }
func (m matchSlice) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }
func (m matchSlice) Less(i, j int) bool { return Better(&m[i], &m[j]) }

// SortMatchesByScore sorts matches by descending score. Matches with equal
// scores keep their relative order.
func SortMatchesByScore(ms []Match) {
	sort.Stable(matchSlice(ms))
}

// MergeSorted merges two slices sorted by SortMatchesByScore into a new
// sorted slice holding at most max entries. max <= 0 means no limit.
func MergeSorted(a, b []Match, max int) []Match {
	n := len(a) + len(b)
	if max > 0 && n > max {
		n = max
	}
	out := make([]Match, 0, n)
	i, j := 0, 0
	for len(out) < n {
		switch {
		case i == len(a):
			out = append(out, b[j])
			j++
		case j == len(b):
			out = append(out, a[i])
			i++
		case Better(&b[j], &a[i]):
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
		}
	}
	return out
}
