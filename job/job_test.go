package job

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	require.Equal(t, NewID("/src", "rg --files"), NewID("/src", "rg --files"))
	require.NotEqual(t, NewID("/src", "rg --files"), NewID("/other", "rg --files"))
	// Parts are delimited, so moving a boundary changes the id.
	require.NotEqual(t, NewID("ab", "c"), NewID("a", "bc"))
}

func TestReserveRelease(t *testing.T) {
	r := NewRegistry()
	a, b := NewID("a"), NewID("b")

	require.True(t, r.Reserve(a))
	require.False(t, r.Reserve(a))
	require.True(t, r.Reserve(b))

	want := []ID{a, b}
	if b < a {
		want = []ID{b, a}
	}
	require.Equal(t, want, r.Running())

	_, ok := r.Since(a)
	require.True(t, ok)

	r.Release(a)
	r.Release(a)
	require.Equal(t, []ID{b}, r.Running())
	require.True(t, r.Reserve(a))
}

func TestGo(t *testing.T) {
	r := NewRegistry()
	id := NewID("/src", "sleep")

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.True(t, r.Go(id, func() {
		defer wg.Done()
		<-release
	}))
	require.False(t, r.Go(id, func() { t.Error("duplicate job ran") }))

	close(release)
	wg.Wait()
	require.Eventually(t, func() bool { return len(r.Running()) == 0 }, time.Second, time.Millisecond)
	require.True(t, r.Reserve(id))
}
