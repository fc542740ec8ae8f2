package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadOnWrite(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	w, err := NewWatcher(path, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	updates := make(chan AppConfig, 4)
	errs := make(chan error, 4)
	w.Start(context.Background(), func(cfg AppConfig) { updates <- cfg }, func(err error) { errs <- err })

	// 等待冷却窗口过去再写入
	time.Sleep(20 * time.Millisecond)
	changed := sampleYAML + "\n# touched\n"
	require.NoError(t, os.WriteFile(path, []byte(changed), 0644))

	select {
	case cfg := <-updates:
		assert.Equal(t, "dev", cfg.Env)
	case err := <-errs:
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
	assert.False(t, w.LastReload().IsZero())
}

func TestWatcher_InvalidReloadReportsError(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	w, err := NewWatcher(path, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	updates := make(chan AppConfig, 4)
	errs := make(chan error, 4)
	w.Start(context.Background(), func(cfg AppConfig) { updates <- cfg }, func(err error) { errs <- err })

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("env: [broken"), 0644))

	select {
	case <-errs:
	case cfg := <-updates:
		t.Fatalf("broken config delivered as update: %+v", cfg)
	case <-time.After(3 * time.Second):
		t.Fatal("no error observed")
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	_, err := NewWatcher("/nonexistent/config.yaml", 0)
	assert.Error(t, err)
}
