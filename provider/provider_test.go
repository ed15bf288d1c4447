package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/zfind/filter"
	"github.com/sourcegraph/zfind/item"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for id, want := range map[string]Kind{
		"files":        Files,
		"git_files":    Files,
		"live_grep":    Grep,
		"blines":       Blines,
		"recent_files": RecentFiles,
		"filer":        FilerKind,
		"unknown":      Generic,
	} {
		if got := r.Kind(id); got != want {
			t.Errorf("Kind(%q) = %s, want %s", id, got, want)
		}
	}

	r.Register("maps", Generic)
	require.Panics(t, func() { r.Register("files", Files) })
}

func TestDefaultsFor(t *testing.T) {
	env := Env{Cwd: "/src", StartBufferPath: "/src/main.go"}

	require.Equal(t, item.GrepLine, DefaultsFor("grep", env).ItemKind)
	require.Equal(t, item.TagLine, DefaultsFor("proj_tags", env).ItemKind)
	require.Len(t, DefaultsFor("files", env).Bonuses, 1)
	require.Len(t, DefaultsFor("recent_files", env).Bonuses, 2)
	require.Len(t, DefaultsFor("blines", env).Bonuses, 1)
	require.Empty(t, DefaultsFor("blines", Env{StartBufferPath: "/src/Makefile"}).Bonuses)

	d := DefaultsFor("generic", env)
	require.Equal(t, item.Generic, d.ItemKind)
	require.Empty(t, d.Bonuses)
}

func TestSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0o644))

	cases := []struct {
		src      Source
		scale    filter.Scale
		head     []string
		hasLines bool
	}{
		{Small{Items: []string{"x", "y", "z"}}, filter.Small, []string{"x", "y"}, true},
		{File{Path: path, Total: 3}, filter.Small, []string{"a", "b"}, true},
		{CachedFile{Path: path, Total: 200_000}, filter.Large, []string{"a", "b"}, true},
		{Command{Cmd: "ls"}, filter.Large, nil, false},
		{Unactionable{}, filter.Large, nil, false},
	}
	for _, tc := range cases {
		if got := ScaleOf(tc.src); got != tc.scale {
			t.Errorf("ScaleOf(%T) = %v, want %v", tc.src, got, tc.scale)
		}
		head, err := Head(context.Background(), tc.src, 2)
		require.NoError(t, err)
		if diff := cmp.Diff(tc.head, head); diff != "" {
			t.Errorf("Head(%T) (-want +got):\n%s", tc.src, diff)
		}
		_, err = Lines(tc.src)
		require.Equal(t, tc.hasLines, err == nil, "%T", tc.src)
	}
}
