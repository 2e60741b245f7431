package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saianfordx/vellum/internal/config"
)

const watchInterval = 25 * time.Millisecond

const baseYAML = `
server:
  log_level: info
providers:
  embeddings:
    name: simulated
index:
  backend: memory
agent:
  max_iterations: 10
`

const editedYAML = `
server:
  log_level: debug
providers:
  embeddings:
    name: simulated
index:
  backend: memory
agent:
  max_iterations: 4
`

const brokenYAML = `
server:
  log_level: bananas
providers:
  embeddings:
    name: simulated
index:
  backend: memory
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// bumpMtime pushes the file's mtime well past the watcher's last sighting so
// the change is visible even on filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// startWatcher writes the initial file and runs a watcher over it with a
// tight polling interval.
func startWatcher(t *testing.T, initial string, onChange func(old, new *config.Config)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, initial)

	w, err := config.NewWatcher(path, onChange, config.WithInterval(watchInterval))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func TestWatcher_LoadsImmediately(t *testing.T) {
	t.Parallel()

	w, _ := startWatcher(t, baseYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after construction")
	}
	if got, want := cfg.Server.LogLevel, config.LogInfo; got != want {
		t.Errorf("LogLevel = %q, want %q", got, want)
	}
	if got, want := cfg.Agent.MaxIterations, 10; got != want {
		t.Errorf("MaxIterations = %d, want %d", got, want)
	}
}

func TestWatcher_ReloadsOnContentChange(t *testing.T) {
	t.Parallel()

	type swap struct {
		old, new *config.Config
	}
	swaps := make(chan swap, 1)

	w, path := startWatcher(t, baseYAML, func(old, new *config.Config) {
		swaps <- swap{old: old, new: new}
	})

	writeConfig(t, path, editedYAML)
	bumpMtime(t, path)

	var got swap
	select {
	case got = <-swaps:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reload callback")
	}

	if got.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old LogLevel = %q, want %q", got.old.Server.LogLevel, config.LogInfo)
	}
	if got.new.Server.LogLevel != config.LogDebug {
		t.Errorf("new LogLevel = %q, want %q", got.new.Server.LogLevel, config.LogDebug)
	}
	if got.new.Agent.MaxIterations != 4 {
		t.Errorf("new MaxIterations = %d, want 4", got.new.Agent.MaxIterations)
	}
	if w.Current() != got.new {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	t.Parallel()

	var reloads atomic.Int32
	w, path := startWatcher(t, baseYAML, func(old, new *config.Config) {
		reloads.Add(1)
	})

	writeConfig(t, path, brokenYAML)
	bumpMtime(t, path)
	time.Sleep(10 * watchInterval)

	if n := reloads.Load(); n != 0 {
		t.Errorf("reload callbacks = %d, want 0 for an invalid edit", n)
	}
	if got, want := w.Current().Server.LogLevel, config.LogInfo; got != want {
		t.Errorf("LogLevel = %q, want the pre-edit %q", got, want)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher() on a missing file: error = nil, want non-nil")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()

	w, _ := startWatcher(t, baseYAML, nil)
	w.Stop()
	w.Stop() // must not panic
}

func TestWatcher_IgnoresTouchWithoutEdit(t *testing.T) {
	t.Parallel()

	// Same bytes, newer mtime: the hash gate must swallow it.
	var reloads atomic.Int32
	_, path := startWatcher(t, baseYAML, func(old, new *config.Config) {
		reloads.Add(1)
	})

	bumpMtime(t, path)
	time.Sleep(10 * watchInterval)

	if n := reloads.Load(); n != 0 {
		t.Errorf("reload callbacks = %d, want 0 for a pure touch", n)
	}
}
