package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
adapter:
  cancel_all: false
center:
  workers: 3
  retry_max: 0
  retention: "off"
  sweep: "@every 30s"
storage:
  driver: sqlite
  path: /tmp/localnotify.db
presenters:
  desktop:
    enabled: true
    urgency: critical
  log:
    enabled: true
dbus:
  enabled: true
  name: io.localnotify
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)
	cfg, err := NewConfigManager(p).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Center.Workers)
	require.NotNil(t, cfg.Center.RetryMax)
	assert.Equal(t, 0, *cfg.Center.RetryMax)
	assert.Equal(t, "off", cfg.Center.Retention)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, cfg.Presenters.Desktop.Enabled)
	assert.Equal(t, "io.localnotify", cfg.DBus.Name)
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"logging":{"level":"info"},"storage":{"driver":"file","path":"state.json"}}`)
	m := NewConfigManager(p)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Same(t, cfg, m.Get())
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name, file, body string
	}{
		{"unknown json field", "a.json", `{"loging":{}}`},
		{"unknown yaml field", "b.yaml", "center:\n  wrokers: 2\n"},
		{"trailing data", "c.json", `{}{}`},
		{"bad yaml", "d.yml", "center: [\n"},
	}
	for _, tt := range tests {
		p := writeFile(t, dir, tt.file, tt.body)
		_, err := NewConfigManager(p).Parse()
		assert.Error(t, err, tt.name)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	neg := -1
	cfg := &Config{
		Logging: LoggingConfig{Level: "loud"},
		Center: CenterConfig{
			Workers:   -1,
			RetryMax:  &neg,
			RetryBase: "soon",
			Sweep:     "whenever",
		},
		Storage:    StorageConfig{Driver: "sqlite"},
		Presenters: PresentersConfig{Telegram: TelegramPresenterConfig{Enabled: true}},
	}
	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{
		"logging.level", "center.workers", "center.retry_max", "center.retry_base",
		"center.sweep", "storage.path", "presenters.telegram.chat_id",
	} {
		assert.Contains(t, err.Error(), want)
	}

	assert.NoError(t, Validate(&Config{}))
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(&Config{Storage: StorageConfig{Driver: "redis", Path: "x"}}))
}

func TestParseRetention(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Hour},
		{"off", -1},
		{"Never", -1},
		{"0", -1},
		{"90m", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseRetention("center.retention", tt.raw, time.Hour)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
	_, err := ParseRetention("center.retention", "-5m", time.Hour)
	assert.Error(t, err)
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{
		Presenters: PresentersConfig{Telegram: TelegramPresenterConfig{Token: "secret"}},
		Storage:    StorageConfig{Driver: "file", Path: "x"},
	}
	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"storage", "presenters"}, sections)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"storage", "presenters"}, RestartRequired(sections))

	sections, _ = SummarizeConfigChange(newCfg, newCfg)
	assert.Empty(t, sections)
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"logging":{"level":"info"}}`)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Let the watcher attach before writing.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "config.json", `{"logging":{"level":"nonsense"}}`)
	select {
	case <-sub:
		t.Fatal("invalid config was published")
	case <-time.After(600 * time.Millisecond):
	}

	writeFile(t, dir, "config.json", `{"logging":{"level":"debug"}}`)
	select {
	case cfg := <-sub:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("config change not published")
	}
	assert.Equal(t, "debug", m.Get().Logging.Level)
}
