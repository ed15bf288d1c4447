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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse(t *testing.T) {
	for _, c := range []struct {
		in   string
		want Query
	}{
		{in: "", want: Query{}},
		{in: "   ", want: Query{}},
		{in: "foo", want: Query{Fuzzy: []FuzzyTerm{{"foo"}}}},
		{in: "foo bar", want: Query{Fuzzy: []FuzzyTerm{{"foo"}, {"bar"}}}},
		{in: "'foo", want: Query{Exact: []ExactTerm{{Exact, "foo"}}}},
		{in: "^foo", want: Query{Exact: []ExactTerm{{PrefixExact, "foo"}}}},
		{in: "foo$", want: Query{Exact: []ExactTerm{{SuffixExact, "foo"}}}},
		{in: "!foo", want: Query{Inverse: []InverseTerm{{Exact, "foo"}}}},
		{in: "!^foo", want: Query{Inverse: []InverseTerm{{PrefixExact, "foo"}}}},
		{in: "!foo$", want: Query{Inverse: []InverseTerm{{SuffixExact, "foo"}}}},
		{
			in: "bar !foo 'baz ^src .go$",
			want: Query{
				Fuzzy:   []FuzzyTerm{{"bar"}},
				Exact:   []ExactTerm{{Exact, "baz"}, {PrefixExact, "src"}, {SuffixExact, ".go"}},
				Inverse: []InverseTerm{{Exact, "foo"}},
			},
		},

		// Lone sigils degrade to literal fuzzy terms.
		{in: "!", want: Query{Fuzzy: []FuzzyTerm{{"!"}}}},
		{in: "'", want: Query{Fuzzy: []FuzzyTerm{{"'"}}}},
		{in: "^", want: Query{Fuzzy: []FuzzyTerm{{"^"}}}},
		{in: "$", want: Query{Fuzzy: []FuzzyTerm{{"$"}}}},
		{in: "!^", want: Query{Fuzzy: []FuzzyTerm{{"!^"}}}},
		{in: "!$", want: Query{Fuzzy: []FuzzyTerm{{"!$"}}}},
	} {
		got := Parse(c.in)
		if d := cmp.Diff(c.want, got, cmpopts.IgnoreFields(Query{}, "Raw"), cmpopts.EquateEmpty()); d != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", c.in, d)
		}
		if got.Raw != c.in {
			t.Errorf("Parse(%q).Raw = %q", c.in, got.Raw)
		}
	}
}

func TestQueryString(t *testing.T) {
	q := Parse("foo !bar ^baz")
	want := `(and fuzzy:"foo" prefix:"baz" (not exact:"bar"))`
	if got := q.String(); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEmpty(t *testing.T) {
	if q := Parse(" \t"); !q.Empty() {
		t.Errorf("%v should be empty", q.String())
	}
	if q := Parse("!x"); q.Empty() {
		t.Errorf("%v should not be empty", q.String())
	}
}

func TestFuzzyText(t *testing.T) {
	q := Parse("a 'b c")
	if got := q.FuzzyText(); got != "a c" {
		t.Errorf("got %q, want %q", got, "a c")
	}
}
