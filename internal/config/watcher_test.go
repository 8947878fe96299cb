package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherInitialYAML = `logging:
  level: info
`

const watcherUpdatedYAML = `logging:
  level: debug
`

const watcherInvalidYAML = `logging:
  level: loudest
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newWatchedConfig writes the initial config and starts a watcher whose
// callback feeds the returned channel.
func newWatchedConfig(t *testing.T) (string, chan *Config, *Watcher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherInitialYAML)

	changes := make(chan *Config, 8)
	w, err := NewWatcher(path, func(_, next *Config) { changes <- next })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, changes, w
}

func waitForChange(t *testing.T, changes chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-changes:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("no config change observed")
		return nil
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()

	_, _, w := newWatchedConfig(t)
	if got := w.Current().Logging.Level; got != LogInfo {
		t.Errorf("initial Logging.Level = %q, want info", got)
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()

	path, changes, w := newWatchedConfig(t)
	writeConfigFile(t, path, watcherUpdatedYAML)

	cfg := waitForChange(t, changes)
	if cfg.Logging.Level != LogDebug {
		t.Errorf("callback Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if got := w.Current().Logging.Level; got != LogDebug {
		t.Errorf("Current().Logging.Level = %q, want debug", got)
	}
}

func TestWatcherKeepsPreviousOnInvalidRewrite(t *testing.T) {
	t.Parallel()

	path, changes, w := newWatchedConfig(t)

	// The invalid rewrite must be rejected without a callback; the valid
	// write after it is the first change observed.
	writeConfigFile(t, path, watcherInvalidYAML)
	writeConfigFile(t, path, watcherUpdatedYAML)

	cfg := waitForChange(t, changes)
	if cfg.Logging.Level != LogDebug {
		t.Errorf("callback Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if got := w.Current().Logging.Level; got != LogDebug {
		t.Errorf("Current().Logging.Level = %q, want debug", got)
	}
	select {
	case extra := <-changes:
		t.Errorf("unexpected extra change: %+v", extra.Logging)
	default:
	}
}

func TestWatcherIgnoresTouchWithoutChange(t *testing.T) {
	t.Parallel()

	path, changes, _ := newWatchedConfig(t)

	// Rewriting identical bytes produces filesystem events but no content
	// change; the first callback must carry the later real change.
	writeConfigFile(t, path, watcherInitialYAML)
	writeConfigFile(t, path, watcherUpdatedYAML)

	cfg := waitForChange(t, changes)
	if cfg.Logging.Level != LogDebug {
		t.Errorf("callback Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestWatcherInitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("missing config file accepted")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	t.Parallel()

	_, _, w := newWatchedConfig(t)
	w.Stop()
	w.Stop()
	if got := w.Current().Logging.Level; got != LogInfo {
		t.Errorf("Current() after Stop = %q, want the last loaded config", got)
	}
}
