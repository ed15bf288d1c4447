package searcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sourcegraph/zfind"
	"github.com/sourcegraph/zfind/matcher"
	"github.com/sourcegraph/zfind/query"
	"github.com/sourcegraph/zfind/stream"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return dir
}

func testTree(t *testing.T) string {
	return writeFiles(t, map[string]string{
		"a.go":           "package main\n\nfunc hello() {}\n",
		"sub/b.txt":      "hello world\n  indented hello\n",
		".hidden/c.txt":  "hello\n",
		".git/config":    "hello\n",
		"bin.dat":        "hello\x00\n",
		"x.log":          "hello\n",
		".zfindignore":   "*.log\n",
		"deep/er/d.txt":  "nothing here\n",
		"deep/er/e.txt":  "say hello\n",
		"deep/empty.txt": "",
	})
}

func build(raw string) *matcher.Matcher {
	return matcher.Builder{}.Build(query.Parse(raw))
}

// drain collects every event of a search.
func drain(t *testing.T, events <-chan Event, ctl *Control) (ms []zfind.Match, processed int) {
	t.Helper()
	for ev := range events {
		switch ev.Kind {
		case EventMatch:
			ms = append(ms, ev.Match)
		case EventProcessed:
			processed += ev.Processed
		}
	}
	require.NoError(t, ctl.Wait())
	return ms, processed
}

func sortedTexts(ms []zfind.Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Text
	}
	sort.Strings(out)
	return out
}

func TestGrep(t *testing.T) {
	root := testTree(t)
	events, ctl := Search(context.Background(), build("hello"), Config{
		Mode:   Grep,
		Root:   root,
		Walk:   DefaultWalkConfig(),
		Logger: logtest.Scoped(t),
	})
	ms, processed := drain(t, events, ctl)

	want := []string{
		"a.go:3:6:func hello() {}",
		"deep/er/e.txt:1:5:say hello",
		"sub/b.txt:1:1:hello world",
		"sub/b.txt:2:10:indented hello",
	}
	if diff := cmp.Diff(want, sortedTexts(ms)); diff != "" {
		t.Fatalf("matches (-want +got):\n%s", diff)
	}
	// a.go 3, b.txt 2, d.txt 1, e.txt 1
	require.Equal(t, 7, processed)

	for _, m := range ms {
		if m.Text == "sub/b.txt:1:1:hello world" {
			require.Equal(t, []int{14, 15, 16, 17, 18}, m.Indices)
		}
	}
}

func TestGrepExactPath(t *testing.T) {
	root := testTree(t)
	events, ctl := Search(context.Background(), build("'sub hello"), Config{Mode: Grep, Root: root, Walk: DefaultWalkConfig()})
	ms, _ := drain(t, events, ctl)

	require.Equal(t, []string{"sub/b.txt:1:1:hello world", "sub/b.txt:2:10:indented hello"}, sortedTexts(ms))
	for _, m := range ms {
		if m.Text == "sub/b.txt:1:1:hello world" {
			require.Equal(t, []int{0, 1, 2, 14, 15, 16, 17, 18}, m.Indices)
		}
	}
}

func TestGrepMaxDepth(t *testing.T) {
	root := testTree(t)
	cfg := DefaultWalkConfig()
	cfg.MaxDepth = 1
	events, ctl := Search(context.Background(), build("hello"), Config{Mode: Grep, Root: root, Walk: cfg})
	ms, _ := drain(t, events, ctl)
	require.Equal(t, []string{"a.go:3:6:func hello() {}"}, sortedTexts(ms))
}

func TestGrepIgnoreGlobs(t *testing.T) {
	root := testTree(t)
	cfg := DefaultWalkConfig()
	cfg.Ignore = []string{"deep/**", "*.go"}
	events, ctl := Search(context.Background(), build("hello"), Config{Mode: Grep, Root: root, Walk: cfg})
	ms, _ := drain(t, events, ctl)
	require.Equal(t, []string{"sub/b.txt:1:1:hello world", "sub/b.txt:2:10:indented hello"}, sortedTexts(ms))
}

func TestGrepGitIgnore(t *testing.T) {
	root := testTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("sub/\n!keep\n"), 0o600))

	events, ctl := Search(context.Background(), build("hello"), Config{Mode: Grep, Root: root, Walk: DefaultWalkConfig()})
	ms, _ := drain(t, events, ctl)
	for _, m := range ms {
		require.False(t, strings.HasPrefix(m.Text, "sub/"), m.Text)
	}

	cfg := DefaultWalkConfig()
	cfg.GitIgnore = false
	events, ctl = Search(context.Background(), build("hello"), Config{Mode: Grep, Root: root, Walk: cfg})
	ms, _ = drain(t, events, ctl)
	require.Len(t, ms, 4)
}

func TestGrepHidden(t *testing.T) {
	root := testTree(t)
	cfg := DefaultWalkConfig()
	cfg.SkipHidden = false
	events, ctl := Search(context.Background(), build("hello"), Config{Mode: Grep, Root: root, Walk: cfg})
	ms, _ := drain(t, events, ctl)

	got := sortedTexts(ms)
	require.Contains(t, got, ".hidden/c.txt:1:1:hello")
	for _, s := range got {
		require.False(t, strings.HasPrefix(s, ".git/"), ".git is always skipped")
	}
}

func TestFiles(t *testing.T) {
	root := testTree(t)
	events, ctl := Search(context.Background(), build("btx"), Config{Mode: Files, Root: root, Walk: DefaultWalkConfig()})
	ms, processed := drain(t, events, ctl)
	require.Equal(t, []string{"sub/b.txt"}, sortedTexts(ms))
	// a.go bin.dat deep/empty.txt deep/er/d.txt deep/er/e.txt sub/b.txt
	require.Equal(t, 6, processed)
}

func TestBlines(t *testing.T) {
	root := writeFiles(t, map[string]string{"f.txt": "alpha\n\nbeta\ngamma alpha\n"})
	events, ctl := Search(context.Background(), build("alpha"), Config{Mode: Blines, Root: filepath.Join(root, "f.txt")})
	ms, processed := drain(t, events, ctl)

	require.Equal(t, 3, processed)
	require.Equal(t, []string{"1 alpha", "4 gamma alpha"}, sortedTexts(ms))
	for _, m := range ms {
		if m.Text == "1 alpha" {
			require.Equal(t, []int{2, 3, 4, 5, 6}, m.Indices)
			require.Equal(t, 0, m.Index)
		}
	}
}

func TestBlinesMissingFile(t *testing.T) {
	events, ctl := Search(context.Background(), build("a"), Config{Mode: Blines, Root: filepath.Join(t.TempDir(), "missing")})
	for range events {
	}
	require.ErrorIs(t, ctl.Wait(), os.ErrNotExist)
}

func bigTree(t *testing.T) string {
	var sb strings.Builder
	for i := 0; i < 50_000; i++ {
		sb.WriteString("hello line\n")
	}
	return writeFiles(t, map[string]string{"big.txt": sb.String()})
}

func TestStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	events, ctl := Search(context.Background(), build("hello"), Config{Mode: Grep, Root: bigTree(t), Walk: DefaultWalkConfig()})
	<-events
	ctl.Stop()
	ctl.Stop()
	require.True(t, ctl.Stopped())
	require.NoError(t, ctl.Wait())

	n := 0
	for range events {
		n++
	}
	require.Less(t, n, 50_000)
}

func TestCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	events, ctl := Search(ctx, build("hello"), Config{Mode: Grep, Root: bigTree(t), Walk: DefaultWalkConfig()})
	<-events
	cancel()
	require.NoError(t, ctl.Wait())
}

func TestCollect(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Kind: EventMatch, Match: zfind.Match{Index: 0, Text: "a", Score: 1}}
	events <- Event{Kind: EventMatch, Match: zfind.Match{Index: 1, Text: "b", Score: 3}}
	events <- Event{Kind: EventMatch, Match: zfind.Match{Index: 2, Text: "c", Score: 2}}
	events <- Event{Kind: EventProcessed, Processed: 10}
	close(events)

	var got []*zfind.SearchResult
	sr, err := Collect(context.Background(), logtest.Scoped(t), events, CollectOptions{Number: 2, Interval: time.Hour}, stream.SenderFunc(func(sr *zfind.SearchResult) {
		got = append(got, sr)
	}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Same(t, sr, got[0])
	require.True(t, sr.Done)
	require.Equal(t, zfind.FlushReasonFinalFlush, sr.FlushReason)
	require.Equal(t, 10, sr.Processed)
	require.Equal(t, 3, sr.Matched)
	require.Equal(t, []string{"b", "c"}, []string{sr.Matches[0].Text, sr.Matches[1].Text})
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, nil, make(chan Event), CollectOptions{}, stream.SenderFunc(func(*zfind.SearchResult) {
		t.Fatal("unexpected result")
	}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearchAndCollect(t *testing.T) {
	root := testTree(t)
	events, ctl := Search(context.Background(), build("hello"), Config{Mode: Grep, Root: root, Walk: DefaultWalkConfig()})
	sr, err := Collect(context.Background(), nil, events, CollectOptions{Interval: time.Millisecond}, stream.SenderFunc(func(*zfind.SearchResult) {}))
	require.NoError(t, err)
	require.NoError(t, ctl.Wait())
	require.Equal(t, 4, sr.Matched)
	require.Equal(t, 7, sr.Processed)
	require.Len(t, sr.Matches, 4)
}
