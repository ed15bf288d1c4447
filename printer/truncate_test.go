package printer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sourcegraph/zfind"
)

func TestTruncate(t *testing.T) {
	const text = "0123456789abcdefghij"
	cases := []struct {
		name        string
		text        string
		indices     []int
		width       int
		wantText    string
		wantIndices []int
		wantOK      bool
	}{{
		name:        "fits",
		text:        text,
		indices:     []int{0},
		width:       20,
		wantText:    text,
		wantIndices: []int{0},
	}, {
		name:        "match at end trims left",
		text:        text,
		indices:     []int{18, 19},
		width:       10,
		wantText:    "..cdefghij",
		wantIndices: []int{8, 9},
		wantOK:      true,
	}, {
		name:        "match at start trims right",
		text:        text,
		indices:     []int{0, 1},
		width:       10,
		wantText:    "01234567..",
		wantIndices: []int{0, 1},
		wantOK:      true,
	}, {
		name:        "match in the middle trims both",
		text:        text,
		indices:     []int{8, 11},
		width:       10,
		wantText:    "..89abcd..",
		wantIndices: []int{2, 5},
		wantOK:      true,
	}, {
		name:        "wide runes",
		text:        "日本語日本語日本語",
		indices:     []int{24},
		width:       10,
		wantText:    "..語日本語",
		wantIndices: []int{11},
		wantOK:      true,
	}, {
		name:        "no indices",
		text:        text,
		width:       10,
		wantText:    text,
		wantIndices: nil,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, idx, ok := Truncate(tc.text, tc.indices, tc.width)
			if got != tc.wantText || ok != tc.wantOK {
				t.Fatalf("got %q (%v), want %q (%v)", got, ok, tc.wantText, tc.wantOK)
			}
			if diff := cmp.Diff(tc.wantIndices, idx); diff != "" {
				t.Fatalf("indices (-want +got):\n%s", diff)
			}
			if ok && Width(got) > tc.width {
				t.Fatalf("%q is wider than %d", got, tc.width)
			}
		})
	}
}

func TestWidth(t *testing.T) {
	cases := map[string]int{
		"":      0,
		"abc":   3,
		"日本":    4,
		"a\tb":  5,
		"\t":    4,
		"ab\tc": 5,
	}
	for in, want := range cases {
		if got := Width(in); got != want {
			t.Errorf("Width(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDecorate(t *testing.T) {
	long := "0123456789abcdefghij"
	got := Decorate([]zfind.Match{
		{Text: "short", Indices: []int{0}},
		{Text: long, Indices: []int{18, 19}},
		{Text: "plain"},
	}, 10+SignColumnWidth)

	want := Lines{
		Lines:        []string{"short", "..cdefghij", "plain"},
		Indices:      [][]int{{0}, {8, 9}, {}},
		TruncatedMap: TruncatedMap{2: long},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
