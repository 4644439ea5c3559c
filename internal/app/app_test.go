package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/pkg/localnotify"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	content := `
logging:
  level: warn
center:
  retry_max: 0
  sweep: "@every 1h"
storage:
  driver: file
  path: ` + filepath.Join(dir, "state", "notifications") + `
presenters:
  log:
    enabled: true
`
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestMapCenterConfig(t *testing.T) {
	t.Parallel()
	zero := 0
	cfg := &Config{}
	cfg.Center.RetryMax = &zero
	cfg.Center.RetryBase = "250ms"
	cfg.Center.Retention = "off"
	cfg.Center.Sweep = " @every 10s "

	cc, err := mapCenterConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, cc.RetryMax)
	assert.Equal(t, 250*time.Millisecond, cc.RetryBase)
	assert.Equal(t, time.Duration(-1), cc.Retention)
	assert.Equal(t, "@every 10s", cc.SweepSpec)

	cc, err = mapCenterConfig(&Config{})
	require.NoError(t, err)
	assert.Equal(t, 2, cc.RetryMax)
	assert.Equal(t, 24*time.Hour, cc.Retention)

	bad := &Config{}
	bad.Center.PresentTimeout = "soon"
	_, err = mapCenterConfig(bad)
	assert.Error(t, err)
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "Memory"} {
		cfg := &Config{}
		cfg.Storage.Driver = driver
		_, enabled, err := mapStorageConfig(cfg)
		require.NoError(t, err)
		assert.False(t, enabled, driver)
	}

	cfg := &Config{}
	cfg.Storage.Driver = " SQLite "
	cfg.Storage.Path = "/tmp/n.db"
	sc, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, 5*time.Second, sc.BusyTimeout)

	cfg.Storage.BusyTimeout = "nope"
	_, _, err = mapStorageConfig(cfg)
	assert.Error(t, err)
}

func TestMapPresenterConfig(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Presenters.Desktop.Enabled = true
	cfg.Presenters.Desktop.Expire = "5s"
	cfg.Presenters.Desktop.Urgency = "Critical"
	cfg.Presenters.Telegram.Enabled = true
	cfg.Presenters.Telegram.ChatID = 42

	pc, err := mapPresenterConfig(cfg)
	require.NoError(t, err)
	assert.True(t, pc.Desktop.Enabled)
	assert.Equal(t, "localnotify", pc.Desktop.AppName)
	assert.Equal(t, 5*time.Second, pc.Desktop.Expire)
	assert.Equal(t, "critical", pc.Desktop.Urgency)
	assert.Equal(t, int64(42), pc.Telegram.ChatID)
	assert.False(t, pc.Log.Enabled)
}

func TestAppLifecycle(t *testing.T) {
	dir := t.TempDir()
	a, err := NewApp(writeConfig(t, dir))
	require.NoError(t, err)
	assert.Nil(t, a.dbus)

	var (
		mu     sync.Mutex
		states []string
	)
	a.notifySystemd = func(state string) (bool, error) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
		return true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	ad := a.Adapter()
	ad.ShowAt(ctx, "later", "body", 7, time.Now().Add(time.Hour))
	ad.ShowAt(ctx, "later again", "body", 7, time.Now().Add(2*time.Hour))
	pending, err := a.center.Scheduled(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ad.Cancel(ctx, 7)
	pending, err = a.center.Scheduled(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "later again", pending[0].Title)

	ad.Show(ctx, "now", "body", 3)
	delivered := func() []localnotify.Delivered {
		ch := make(chan []localnotify.Delivered, 1)
		a.center.Delivered(ctx, func(ds []localnotify.Delivered) { ch <- ds })
		select {
		case ds := <-ch:
			return ds
		case <-time.After(time.Second):
			return nil
		}
	}
	require.Eventually(t, func() bool { return len(delivered()) == 1 }, 2*time.Second, 10*time.Millisecond)

	ad.Clear(ctx, 3)
	require.Eventually(t, func() bool { return len(delivered()) == 0 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopAppStop))

	mu.Lock()
	assert.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, states)
	mu.Unlock()

	// The remaining scheduled notification survives a restart.
	b, err := NewApp(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	b.notifySystemd = nil
	require.NoError(t, b.Start(context.Background()))
	pending, err = b.center.Scheduled(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "later again", pending[0].Title)
	require.NoError(t, b.Stop(stopCtx, StopAppStop))
}

func TestApplyConfigUpdatesAdapter(t *testing.T) {
	a, err := NewApp(writeConfig(t, t.TempDir()))
	require.NoError(t, err)
	a.notifySystemd = nil
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer func() { _ = a.Stop(ctx, StopAppStop) }()

	next := *a.cfgm.Get()
	next.Adapter.CancelAll = true
	a.applyConfig(a.cfgm.Get(), &next)

	a.adapter.ShowAt(ctx, "a", "", 1, time.Now().Add(time.Hour))
	a.adapter.ShowAt(ctx, "b", "", 1, time.Now().Add(time.Hour))
	a.adapter.Cancel(ctx, 1)
	pending, err := a.center.Scheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

type failingServer struct{}

func (failingServer) Start(ctx context.Context) error { return errors.New("name taken") }
func (failingServer) Stop(ctx context.Context) error  { return nil }

func TestStartFailureReleasesCenter(t *testing.T) {
	a, err := NewApp(writeConfig(t, t.TempDir()))
	require.NoError(t, err)
	a.notifySystemd = nil
	a.dbus = failingServer{}

	err = a.Start(context.Background())
	require.ErrorContains(t, err, "name taken")
	assert.False(t, a.center.Running())

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("supervisor still running after failed start")
	}
	require.NoError(t, a.store.Close())
}
