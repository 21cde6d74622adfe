package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	layout := filepath.Join(dir, "board.otl")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(layout, []byte("(layout)"), 0o644))

	w, err := New(Config{Paths: []string{layout}, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(layout, []byte("(layout (layer 0 metal))"), 0o644))
	}

	abs, _ := filepath.Abs(layout)
	select {
	case ev := <-w.Events():
		assert.Equal(t, []string{abs}, ev.Paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}

	cancel()
	require.NoError(t, <-done)
	_, open := <-w.Events()
	assert.False(t, open, "events close when Run returns")
}

func TestNewRequiresPaths(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Paths: []string{filepath.Join(t.TempDir(), "missing", "x.otl")}})
	assert.Error(t, err, "the directory must exist")
}
