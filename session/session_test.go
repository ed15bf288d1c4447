package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sourcegraph/zfind/job"
	"github.com/sourcegraph/zfind/process"
	"github.com/sourcegraph/zfind/provider"
	"github.com/sourcegraph/zfind/rpc"
)

type recorder struct {
	ch chan *rpc.Response
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *rpc.Response, 4096)}
}

func (r *recorder) Write(resp *rpc.Response) error {
	r.ch <- resp
	return nil
}

// wait returns the first response matching pred, dropping the others.
func (r *recorder) wait(t *testing.T, pred func(*rpc.Response) bool) *rpc.Response {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case resp := <-r.ch:
			if pred(resp) {
				return resp
			}
		case <-timeout:
			t.Fatal("timed out waiting for a response")
			return nil
		}
	}
}

func (r *recorder) init(t *testing.T) *rpc.OnInit {
	t.Helper()
	return r.wait(t, func(resp *rpc.Response) bool {
		_, ok := resp.Result.(*rpc.OnInit)
		return ok
	}).Result.(*rpc.OnInit)
}

func (r *recorder) final(t *testing.T) *rpc.OnTyped {
	t.Helper()
	return r.wait(t, func(resp *rpc.Response) bool {
		ot, ok := resp.Result.(*rpc.OnTyped)
		return ok && ot.Done
	}).Result.(*rpc.OnTyped)
}

func (r *recorder) failure(t *testing.T) *rpc.Response {
	t.Helper()
	return r.wait(t, func(resp *rpc.Response) bool { return resp.Error != nil })
}

func message(t *testing.T, method string, id, session uint64, params any) *rpc.Message {
	t.Helper()
	b, err := json.Marshal(params)
	require.NoError(t, err)
	return &rpc.Message{ID: id, Method: method, Params: b, SessionID: session}
}

func newSessionMsg(t *testing.T, session uint64, params map[string]any) *rpc.Message {
	t.Helper()
	if _, ok := params["debounce"]; !ok {
		params["debounce"] = false
	}
	return message(t, rpc.MethodNewSession, 0, session, params)
}

func lines(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "line%d\n", i)
	}
	return sb.String()
}

func fixedRunner(out string) process.Runner {
	return process.RunnerFunc(func(ctx context.Context, dir, cmd string) ([]byte, error) {
		return []byte(out), nil
	})
}

func newTestManager(t *testing.T, deps Deps) (*Manager, *recorder) {
	t.Helper()
	rec := newRecorder()
	deps.Logger = logtest.Scoped(t)
	deps.Responder = rec
	mg := NewManager(deps, nil)
	t.Cleanup(mg.TerminateAll)
	return mg, rec
}

func TestParseContext(t *testing.T) {
	_, err := ParseContext(message(t, rpc.MethodNewSession, 1, 1, map[string]any{"provider_id": "files"}), 5)
	var se *SetupError
	require.True(t, errors.As(err, &se), "got %v", err)

	_, err = ParseContext(message(t, rpc.MethodNewSession, 1, 1, map[string]any{"cwd": "/src"}), 5)
	require.True(t, errors.As(err, &se), "got %v", err)

	_, err = ParseContext(&rpc.Message{Method: rpc.MethodNewSession, Params: json.RawMessage(`[1]`)}, 5)
	require.True(t, errors.As(err, &se), "got %v", err)

	got, err := ParseContext(message(t, rpc.MethodNewSession, 1, 1, map[string]any{
		"cwd":          "/src/",
		"provider_id":  "blines",
		"source_fpath": "main.go",
		"enable_icon":  true,
	}), 7)
	require.NoError(t, err)
	want := Context{
		Cwd:             "/src",
		ProviderID:      "blines",
		StartBufferPath: "/src/main.go",
		WinWidth:        100,
		WinHeight:       30,
		PreviewSize:     7,
		Debounce:        true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	got, err = ParseContext(message(t, rpc.MethodNewSession, 1, 1, map[string]any{
		"cwd":               "/src",
		"provider_id":       "files",
		"display_winwidth":  80,
		"display_winheight": 10,
		"debounce":          false,
	}), 5)
	require.NoError(t, err)
	require.Equal(t, 80, got.WinWidth)
	require.Equal(t, 10, got.WinHeight)
	require.False(t, got.Debounce)
}

func TestTypedDelay(t *testing.T) {
	cases := []struct {
		total int
		known bool
		want  time.Duration
	}{
		{0, true, 10 * time.Millisecond},
		{9_999, true, 10 * time.Millisecond},
		{10_000, true, 50 * time.Millisecond},
		{150_000, true, 100 * time.Millisecond},
		{200_000, true, 200 * time.Millisecond},
		{0, false, 200 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := typedDelay(tc.total, tc.known); got != tc.want {
			t.Errorf("typedDelay(%d, %v) = %v, want %v", tc.total, tc.known, got, tc.want)
		}
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "populating", Populating.String())
	require.Equal(t, "terminated", Terminated.String())
}

func TestForerunnerSmall(t *testing.T) {
	mg, rec := newTestManager(t, Deps{Runner: fixedRunner("alpha\nbeta\ngamma\n")})

	s, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{
		"cwd":         t.TempDir(),
		"provider_id": "generic",
		"source_cmd":  "list",
	}))
	require.NoError(t, err)

	init := rec.init(t)
	require.Equal(t, 3, init.Total)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, init.Lines)
	require.Equal(t, Interactive, s.State())
	require.Equal(t, provider.Small{Items: []string{"alpha", "beta", "gamma"}}, s.Source())

	require.True(t, mg.Send(1, message(t, rpc.MethodOnTyped, 0, 1, typedParams{Query: "bt"}), "req"))
	res := rec.final(t)
	require.Equal(t, []string{"beta"}, res.Lines)
	require.Equal(t, 1, res.Total)

	// An empty query shows the source again.
	require.True(t, mg.Send(1, message(t, rpc.MethodOnTyped, 0, 1, typedParams{}), "req"))
	res = rec.final(t)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, res.Lines)
	require.Equal(t, 3, res.Total)
}

func TestQueryWhilePopulating(t *testing.T) {
	release := make(chan struct{})
	runner := process.RunnerFunc(func(ctx context.Context, dir, cmd string) ([]byte, error) {
		select {
		case <-release:
			return []byte("alpha\nbeta\ngamma\n"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	mg, rec := newTestManager(t, Deps{Runner: runner})

	s, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{
		"cwd":         t.TempDir(),
		"provider_id": "generic",
		"source_cmd":  "list",
	}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.State() == Populating }, 5*time.Second, time.Millisecond)

	require.True(t, mg.Send(1, message(t, rpc.MethodOnTyped, 4, 1, typedParams{Query: "gm"}), "req"))
	close(release)

	rec.init(t)
	resp := rec.wait(t, func(resp *rpc.Response) bool {
		ot, ok := resp.Result.(*rpc.OnTyped)
		return ok && ot.Done
	})
	require.EqualValues(t, 4, resp.ID)
	require.Equal(t, []string{"gamma"}, resp.Result.(*rpc.OnTyped).Lines)
}

func TestForerunnerDuplicate(t *testing.T) {
	dir := t.TempDir()
	jobs := job.NewRegistry()
	require.True(t, jobs.Reserve(job.NewID(dir, "list")))

	mg, rec := newTestManager(t, Deps{Jobs: jobs, Runner: fixedRunner("alpha\nbeta\ngamma\n")})
	s, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{
		"cwd":         dir,
		"provider_id": "generic",
		"source_cmd":  "list",
	}))
	require.NoError(t, err)

	init := rec.init(t)
	require.Zero(t, init.Total)
	require.Empty(t, init.Lines)
	require.Equal(t, provider.Command{Cmd: "list"}, s.Source())

	require.True(t, mg.Send(1, message(t, rpc.MethodOnTyped, 0, 1, typedParams{Query: "bt"}), "req"))
	res := rec.final(t)
	require.Equal(t, []string{"beta"}, res.Lines)
}

func TestForerunnerCache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := t.TempDir()
	mg, rec := newTestManager(t, Deps{Runner: fixedRunner(lines(100_000)), CacheDir: cacheDir})

	params := func() map[string]any {
		return map[string]any{"cwd": dir, "provider_id": "generic", "source_cmd": "list"}
	}
	s, err := mg.NewSession(1, newSessionMsg(t, 1, params()))
	require.NoError(t, err)

	init := rec.init(t)
	require.Equal(t, 100_000, init.Total)
	require.Len(t, init.Lines, 30)
	require.Equal(t, "line0", init.Lines[0])

	src, ok := s.Source().(provider.CachedFile)
	require.True(t, ok, "got %T", s.Source())
	require.True(t, src.Refreshed)
	require.Equal(t, cacheDir, filepath.Dir(src.Path))

	// A later session serves the cache while the command runs again.
	blocked := process.RunnerFunc(func(ctx context.Context, dir, cmd string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	mg.deps.Runner = blocked
	s, err = mg.NewSession(2, newSessionMsg(t, 2, params()))
	require.NoError(t, err)

	init = rec.init(t)
	require.Equal(t, 100_000, init.Total)
	require.Equal(t, Interactive, s.State())

	require.True(t, mg.Send(2, message(t, rpc.MethodOnTyped, 0, 2, typedParams{Query: "99999"}), "req"))
	res := rec.final(t)
	require.Equal(t, 1, res.Total)
	require.Equal(t, []string{"line99999"}, res.Lines)
}

func TestQueriesHandledBackToBack(t *testing.T) {
	// One P makes the goroutine of the first query start after the second
	// query was handled.
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	mg, rec := newTestManager(t, Deps{Runner: fixedRunner(lines(100_000)), CacheDir: t.TempDir()})
	s, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{"cwd": t.TempDir(), "provider_id": "generic", "source_cmd": "list"}))
	require.NoError(t, err)
	rec.init(t)
	_, ok := s.Source().(provider.CachedFile)
	require.True(t, ok, "got %T", s.Source())

	s.post(func(context.Context) {
		s.runQuery(1, "req-1", "1")
		s.runQuery(2, "req-2", "99999")
	})

	resp := rec.wait(t, func(resp *rpc.Response) bool {
		ot, ok := resp.Result.(*rpc.OnTyped)
		return ok && ot.Done
	})
	require.EqualValues(t, 2, resp.ID)
	require.Equal(t, []string{"line99999"}, resp.Result.(*rpc.OnTyped).Lines)
}

func TestForerunnerFailure(t *testing.T) {
	runner := process.RunnerFunc(func(ctx context.Context, dir, cmd string) ([]byte, error) {
		return nil, &process.CommandError{Cmd: cmd, Err: errors.New("exit status 1")}
	})
	mg, rec := newTestManager(t, Deps{Runner: runner})
	_, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{
		"cwd":         t.TempDir(),
		"provider_id": "generic",
		"source_cmd":  "false",
	}))
	require.NoError(t, err)

	resp := rec.failure(t)
	require.Equal(t, "io", resp.Error.Kind)
	require.Zero(t, rec.init(t).Total)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestGrepAndPreview(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.txt": "first line\na needle here\n",
		"b.txt": "nothing\n",
	})
	mg, rec := newTestManager(t, Deps{})
	_, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{"cwd": dir, "provider_id": "grep", "preview_size": 2}))
	require.NoError(t, err)
	rec.init(t)

	require.True(t, mg.Send(1, message(t, rpc.MethodOnTyped, 0, 1, typedParams{Query: "needle"}), "req"))
	res := rec.final(t)
	require.Len(t, res.Lines, 1)
	require.True(t, strings.HasPrefix(res.Lines[0], "a.txt:2:"), res.Lines[0])

	require.True(t, mg.Send(1, message(t, rpc.MethodOnMove, 7, 1, moveParams{Curline: res.Lines[0]}), "req-7"))
	resp := rec.wait(t, func(resp *rpc.Response) bool { return resp.ID == 7 })
	mv, ok := resp.Result.(*rpc.OnMove)
	require.True(t, ok, "got %+v", resp)
	require.Equal(t, []string{"./a.txt:2", "first line", "a needle here"}, mv.Lines)
	require.Equal(t, 3, mv.HiLnum)
	require.Equal(t, filepath.Join(dir, "a.txt"), mv.Fname)

	require.True(t, mg.Send(1, message(t, rpc.MethodOnMove, 8, 1, moveParams{Curline: "gone.txt:1:1:x"}), "req-8"))
	resp = rec.failure(t)
	require.EqualValues(t, 8, resp.ID)
	require.Equal(t, "io", resp.Error.Kind)
	require.Equal(t, "req-8", resp.Error.RequestID)
	require.EqualValues(t, 1, resp.SessionID)
}

func TestBlines(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.go": "package a\n\nfunc needle() {}\n"})
	mg, rec := newTestManager(t, Deps{})
	_, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{"cwd": dir, "provider_id": "blines", "source_fpath": "a.go"}))
	require.NoError(t, err)
	rec.init(t)

	require.True(t, mg.Send(1, message(t, rpc.MethodOnTyped, 0, 1, typedParams{Query: "needle"}), "req"))
	require.Equal(t, []string{"3 func needle() {}"}, rec.final(t).Lines)
}

func TestFiler(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.txt":     "hello\n",
		"sub/b.txt": "b\n",
	})
	mg, rec := newTestManager(t, Deps{})
	_, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{"cwd": dir, "provider_id": "filer"}))
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "sub/"}, rec.init(t).Lines)

	require.True(t, mg.Send(1, message(t, rpc.KeyCR, 2, 1, filerParams{Curline: "sub/"}), "req"))
	resp := rec.wait(t, func(resp *rpc.Response) bool { _, ok := resp.Result.(*rpc.Query); return ok })
	require.Equal(t, "", resp.Result.(*rpc.Query).Query)
	require.Equal(t, []string{"b.txt"}, rec.final(t).Lines)

	require.True(t, mg.Send(1, message(t, rpc.KeyBackspace, 3, 1, filerParams{}), "req"))
	require.Equal(t, []string{"a.txt", "sub/"}, rec.final(t).Lines)

	require.True(t, mg.Send(1, message(t, rpc.KeyTab, 4, 1, filerParams{Curline: "a.txt"}), "req"))
	resp = rec.wait(t, func(resp *rpc.Response) bool { _, ok := resp.Result.(*rpc.OnMove); return ok })
	require.Equal(t, []string{"./a.txt", "hello"}, resp.Result.(*rpc.OnMove).Lines)
}

func TestInputHistory(t *testing.T) {
	history := provider.NewHistory()
	mg, rec := newTestManager(t, Deps{History: history, Runner: fixedRunner("alpha\nbeta\n")})
	params := func() map[string]any {
		return map[string]any{"cwd": t.TempDir(), "provider_id": "generic", "source_cmd": "list"}
	}

	_, err := mg.NewSession(1, newSessionMsg(t, 1, params()))
	require.NoError(t, err)
	rec.init(t)
	require.True(t, mg.Send(1, message(t, rpc.MethodOnTyped, 0, 1, typedParams{Query: "bt"}), "req"))
	rec.final(t)
	require.True(t, mg.Terminate(1))

	_, err = mg.NewSession(2, newSessionMsg(t, 2, params()))
	require.NoError(t, err)
	rec.init(t)
	require.True(t, mg.Send(2, message(t, rpc.KeyCtrlP, 5, 2, nil), "req"))
	resp := rec.wait(t, func(resp *rpc.Response) bool { _, ok := resp.Result.(*rpc.Query); return ok })
	require.Equal(t, "bt", resp.Result.(*rpc.Query).Query)
	require.Equal(t, []string{"beta"}, rec.final(t).Lines)
}

func TestManager(t *testing.T) {
	mg, rec := newTestManager(t, Deps{Runner: fixedRunner("x\n")})
	params := map[string]any{"cwd": t.TempDir(), "provider_id": "generic", "source_cmd": "list"}

	s1, err := mg.NewSession(1, newSessionMsg(t, 1, params))
	require.NoError(t, err)
	rec.init(t)
	s2, err := mg.NewSession(2, newSessionMsg(t, 2, params))
	require.NoError(t, err)
	rec.init(t)

	require.Equal(t, []uint64{2}, mg.Sessions())
	require.Equal(t, Terminated, s1.State())
	require.Equal(t, Interactive, s2.State())
	require.False(t, mg.Send(1, message(t, rpc.MethodOnTyped, 0, 1, nil), "req"))

	require.True(t, mg.Send(2, message(t, "ctrl-z", 9, 2, nil), "req-9"))
	resp := rec.failure(t)
	require.Equal(t, "request", resp.Error.Kind)

	_, err = mg.NewSession(3, newSessionMsg(t, 3, map[string]any{"provider_id": "files"}))
	var se *SetupError
	require.True(t, errors.As(err, &se))
	require.Equal(t, []uint64{2}, mg.Sessions())

	require.True(t, mg.Terminate(2))
	require.False(t, mg.Terminate(2))
	require.Empty(t, mg.Sessions())
}

func TestSessionLog(t *testing.T) {
	var sb syncBuilder
	mg := NewManager(Deps{Logger: logtest.Scoped(t), Responder: newRecorder(), Runner: fixedRunner("x\n")}, &sb)
	_, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{"cwd": "/tmp", "provider_id": "generic"}))
	require.NoError(t, err)
	mg.TerminateAll()

	rows := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, rows, 2)
	for i, action := range []string{"start", "terminate"} {
		cols := strings.Split(rows[i], "\t")
		require.Len(t, cols, 6)
		require.Equal(t, action, cols[1])
		require.Equal(t, "1", cols[2])
		require.Equal(t, "generic", cols[3])
	}
}

func TestTerminateStopsWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := writeTree(t, map[string]string{"a.txt": lines(10_000)})
	started := make(chan struct{})
	runner := process.RunnerFunc(func(ctx context.Context, dir, cmd string) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rec := newRecorder()
	mg := NewManager(Deps{Logger: logtest.Scoped(t), Responder: rec, Runner: runner}, nil)

	_, err := mg.NewSession(1, newSessionMsg(t, 1, map[string]any{"cwd": dir, "provider_id": "generic", "source_cmd": "slow"}))
	require.NoError(t, err)
	<-started
	mg.TerminateAll()

	_, err = mg.NewSession(2, newSessionMsg(t, 2, map[string]any{"cwd": dir, "provider_id": "grep"}))
	require.NoError(t, err)
	rec.init(t)
	require.True(t, mg.Send(2, message(t, rpc.MethodOnTyped, 0, 2, typedParams{Query: "line"}), "req"))
	mg.TerminateAll()
}
