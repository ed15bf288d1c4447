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

package query

import (
	"fmt"
	"strings"
)

// Q is a representation for a parsed query term.
type Q interface {
	String() string
}

// ExactKind says which part of a line an exact or inverse term must match.
type ExactKind uint8

const (
	// Exact requires the text anywhere in the line.
	Exact ExactKind = iota
	// PrefixExact requires the line to start with the text.
	PrefixExact
	// SuffixExact requires the line to end with the text.
	SuffixExact
)

func (k ExactKind) String() string {
	switch k {
	case PrefixExact:
		return "prefix"
	case SuffixExact:
		return "suffix"
	default:
		return "exact"
	}
}

// FuzzyTerm matches when its text is an ordered subsequence of the line.
type FuzzyTerm struct {
	Text string
}

func (q *FuzzyTerm) String() string {
	return fmt.Sprintf("fuzzy:%q", q.Text)
}

// ExactTerm matches when its text appears verbatim in the line.
type ExactTerm struct {
	Kind ExactKind
	Text string
}

func (q *ExactTerm) String() string {
	return fmt.Sprintf("%s:%q", q.Kind, q.Text)
}

// InverseTerm rejects every line its text appears in.
type InverseTerm struct {
	Kind ExactKind
	Text string
}

func (q *InverseTerm) String() string {
	return fmt.Sprintf("(not %s:%q)", q.Kind, q.Text)
}

// Query is the partition of a raw query into its terms. It is immutable once
// returned by Parse.
type Query struct {
	// Raw is the query as typed.
	Raw string

	Fuzzy   []FuzzyTerm
	Exact   []ExactTerm
	Inverse []InverseTerm
}

// Empty returns true if the query has no terms at all.
func (q *Query) Empty() bool {
	return len(q.Fuzzy) == 0 && len(q.Exact) == 0 && len(q.Inverse) == 0
}

// FuzzyText joins the fuzzy terms with a single space.
func (q *Query) FuzzyText() string {
	parts := make([]string, 0, len(q.Fuzzy))
	for _, t := range q.Fuzzy {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

func (q *Query) String() string {
	var sub []string
	for i := range q.Fuzzy {
		sub = append(sub, q.Fuzzy[i].String())
	}
	for i := range q.Exact {
		sub = append(sub, q.Exact[i].String())
	}
	for i := range q.Inverse {
		sub = append(sub, q.Inverse[i].String())
	}
	return fmt.Sprintf("(and %s)", strings.Join(sub, " "))
}
