package recent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, nil, 0o600))
	return p
}

func TestRescore(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age   time.Duration
		count uint64
		want  uint64
	}{
		{time.Minute, 3, 12},
		{2 * time.Hour, 3, 6},
		{2 * 24 * time.Hour, 4, 6},
		{10 * 24 * time.Hour, 4, 2},
		{60 * 24 * time.Hour, 4, 1},
		{60 * 24 * time.Hour, 1, 1},
	}
	for _, tc := range cases {
		e := Entry{LastAccess: now.Add(-tc.age), Count: tc.count}
		e.rescore(now)
		if e.Score != tc.want {
			t.Errorf("age %v count %d: got %d, want %d", tc.age, tc.count, e.Score, tc.want)
		}
	}
}

func TestUpsertRanks(t *testing.T) {
	s := New("", 2)
	s.Upsert("/a")
	s.Upsert("/b")
	s.Upsert("/b")
	require.Equal(t, []string{"/b", "/a"}, s.Paths())

	s.Upsert("/c")
	s.Upsert("/c")
	s.Upsert("/c")
	// Truncated to two entries.
	require.Equal(t, []string{"/c", "/b"}, s.Paths())

	require.True(t, s.Remove("/b"))
	require.False(t, s.Remove("/b"))
	require.Equal(t, 1, s.Len())
}

func TestTopPrefersCwd(t *testing.T) {
	s := New("", 0)
	s.Upsert("/work/x.go")
	s.Upsert("/work/x.go")
	for i := 0; i < 3; i++ {
		s.Upsert("/other/y.go")
	}

	require.Equal(t, []string{"/other/y.go", "/work/x.go"}, s.Top(0, ""))
	require.Equal(t, []string{"/work/x.go"}, s.Top(1, "/work"))
	require.Equal(t, []string{"/work/x.go", "/other/y.go"}, s.Top(5, "/work/"))
}

func TestFlushLoad(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "src/a.go")
	b := touch(t, dir, "src/b.go")
	storePath := filepath.Join(dir, "state", "recent_files.json")

	s, err := Load(storePath, 0)
	require.NoError(t, err)
	require.Equal(t, 0, s.Len())

	s.Upsert(a)
	s.Upsert(b)
	s.Upsert(b)
	require.NoError(t, s.Flush())

	loaded, err := Load(storePath, 0)
	require.NoError(t, err)
	if diff := cmp.Diff(s.Paths(), loaded.Paths()); diff != "" {
		t.Fatalf("reloaded store differs (-want +got):\n%s", diff)
	}

	// Vanished files are dropped on load.
	require.NoError(t, os.Remove(a))
	loaded, err = Load(storePath, 0)
	require.NoError(t, err)
	require.Equal(t, []string{b}, loaded.Paths())
}

func TestLoadCorrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "recent.json")
	require.NoError(t, os.WriteFile(p, []byte("{"), 0o600))
	_, err := Load(p, 0)
	require.Error(t, err)
}

func TestFlushInMemory(t *testing.T) {
	s := New("", 0)
	s.Upsert("/a")
	require.NoError(t, s.Flush())
}
