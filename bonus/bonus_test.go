package bonus

import (
	"strings"
	"testing"
)

func TestFileName(t *testing.T) {
	b := NewFileName()
	got := b.Delta("autoload/clap/action.vim", 24, 10, []int{1, 2, 3, 20, 25})
	if got != 2 {
		t.Fatalf("got %d, want 2", got)
	}

	if got := b.Delta("dir/", 4, 10, []int{0}); got != 0 {
		t.Errorf("trailing slash: got %d, want 0", got)
	}
	if got := b.Delta("main.go", 7, 70, []int{0, 1}); got != 20 {
		t.Errorf("no dir: got %d, want 20", got)
	}
}

func TestLongLine(t *testing.T) {
	long := strings.Repeat("a", MaxLineLen+1)
	for _, b := range []Bonus{NewFileName(), NewCwd("a"), NewRecentFiles([]string{long}), NewLanguage("vim")} {
		if got := b.Delta(long, len(long), 100, []int{0}); got != 0 {
			t.Errorf("%s: got %d, want 0", b.Kind, got)
		}
	}
}

func TestCwd(t *testing.T) {
	b := NewCwd("/home/u/src")
	if got := b.Delta("/home/u/src/main.go", 19, 10, nil); got != 5 {
		t.Errorf("under cwd: got %d, want 5", got)
	}
	if got := b.Delta("/etc/hosts", 10, 10, nil); got != 0 {
		t.Errorf("outside cwd: got %d, want 0", got)
	}
	if got := NewCwd("").Delta("/etc/hosts", 10, 10, nil); got != 0 {
		t.Errorf("empty cwd: got %d, want 0", got)
	}
}

func TestRecentFiles(t *testing.T) {
	b := NewRecentFiles([]string{"/home/u/src/main.go", "/tmp/x"})
	if got := b.Delta("src/main.go", 11, 9, nil); got != 3 {
		t.Errorf("recent: got %d, want 3", got)
	}
	if got := b.Delta("other.go", 8, 9, nil); got != 0 {
		t.Errorf("not recent: got %d, want 0", got)
	}
}

func TestLanguage(t *testing.T) {
	cases := []struct {
		ext  string
		line string
		want int
	}{
		{"vim", "function! clap#foo()", 20},
		{"vim", "  let s:x = 1", 10},
		{"vim", `" comment`, -12},
		{"vim", "12 function s:bar()", 20},
		{"vim", "call foo()", 0},
		{"vimrc", "function! s:foo()", 20},
		{"VIM", "let g:x = 1", 10},
		{"rs", "pub fn foo()", 10},
		{"rs", "impl Foo {", 12},
		{"rs", "fn foo()", 15},
		{"rs", "struct Foo;", 20},
		{"rs", "#[cfg(feature = \"x\")]", 0},
		{"rs", "[cfg(feature = \"x\")]", 8},
		{"rs", "// comment", -12},
		{"rs", "42 let x = 1;", 20},
		{"rs", "x.foo();", 0},
		{"py", "def foo():", 0},
		{"", "fn foo()", 0},
	}
	for _, tc := range cases {
		b := NewLanguage(tc.ext)
		if got := b.Delta(tc.line, len(tc.line), 60, nil); got != tc.want {
			t.Errorf("%s %q: got %d, want %d", tc.ext, tc.line, got, tc.want)
		}
	}
}

func TestCompose(t *testing.T) {
	bonuses := []Bonus{NewFileName(), NewCwd("autoload")}
	got := Compose(bonuses, "autoload/clap/action.vim", 24, 10, []int{1, 2, 3, 20, 25})
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if got := Compose(nil, "x", 1, 10, nil); got != 0 {
		t.Errorf("no bonuses: got %d", got)
	}
}

func TestParse(t *testing.T) {
	if Parse("FileName").Kind != FileName {
		t.Error("filename")
	}
	if Parse("bogus").Kind != None {
		t.Error("bogus")
	}
}
