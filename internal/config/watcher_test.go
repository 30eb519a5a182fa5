package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const starterV1 = "default: https://search.example/?q=%q\ng: https://g.example/%q\n"

const starterV2 = "default: https://search.example/?q=%q\nd: https://d.example/%q\n"

func writeStarter(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
}

func TestStarterWatcher_StartLoadsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starter.yaml")
	writeStarter(t, path, starterV1)

	w, err := NewStarterWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	assert.Equal(t, starterV1, w.Text())
}

func TestStarterWatcher_StartRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starter.yaml")
	writeStarter(t, path, "g: {alias: x}\n")

	w, err := NewStarterWatcher(path)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	err = w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid starter file")
}

func TestStarterWatcher_StartMissingFile(t *testing.T) {
	w, err := NewStarterWatcher(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Error(t, w.Start(context.Background()))
}

func TestStarterWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starter.yaml")
	writeStarter(t, path, starterV1)

	reloaded := make(chan string, 4)
	var rejected atomic.Int32

	w, err := NewStarterWatcher(path,
		WithDebounceDelay(10*time.Millisecond),
		WithCallback(func(text string) { reloaded <- text }),
		WithErrorCallback(func(error) { rejected.Add(1) }),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeStarter(t, path, starterV2)

	select {
	case text := <-reloaded:
		assert.Equal(t, starterV2, text)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.Equal(t, starterV2, w.Text())

	// An invalid edit is rejected and the previous text stays.
	writeStarter(t, path, "broken: [\n")
	assert.Eventually(t, func() bool { return rejected.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, starterV2, w.Text())
}

func TestStarterWatcher_StopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starter.yaml")
	writeStarter(t, path, starterV1)

	w, err := NewStarterWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestStarterWatcher_ContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "starter.yaml")
	writeStarter(t, path, starterV1)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := NewStarterWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))

	cancel()
	assert.NoError(t, w.Stop())
}
