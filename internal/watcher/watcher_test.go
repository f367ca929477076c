package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsChange(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 4)

	w := New(dir, func(root string) { changed <- root }, nil)
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("x"), 0644))

	select {
	case root := <-changed:
		assert.Equal(t, dir, root)
	case <-time.After(3 * time.Second):
		t.Fatal("expected change callback")
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32

	w := New(dir, func(string) { calls.Add(1) }, nil)
	w.SetDebounce(200 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	for i := 0; i < 5; i++ {
		os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))+".py"), nil, 0644)
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(t.TempDir(), nil, nil)
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	// WalkDir reports the missing root to the callback, which skips it, so
	// nothing is added and Start succeeds without watching anything.
	w := New(filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.NoError(t, w.Start())
	w.Stop()
}

func TestAddDirsRecursive_SkipsExcluded(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0755)
	os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0755)
	os.MkdirAll(filepath.Join(dir, "__pycache__"), 0755)
	os.MkdirAll(filepath.Join(dir, "build", "work"), 0755)

	fsW, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsW.Close()

	require.NoError(t, addDirsRecursive(fsW, dir))
	assert.ElementsMatch(t, []string{
		dir,
		filepath.Join(dir, "pkg"),
		filepath.Join(dir, "pkg", "sub"),
	}, fsW.WatchList())
}

func TestSkipDir(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".git", true},
		{".venv", true},
		{"__pycache__", true},
		{"build", true},
		{"outputs", false},
		{"pkg", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, skipDir(tt.name), tt.name)
	}
}
