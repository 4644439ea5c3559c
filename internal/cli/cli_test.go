package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/internal/dbusapi"
)

type fakeClient struct {
	name   string
	calls  []string
	at     time.Time
	items  []dbusapi.ScheduledItem
	closed bool
}

func (f *fakeClient) Show(ctx context.Context, title, body string, id int) error {
	f.calls = append(f.calls, "show:"+title)
	return nil
}

func (f *fakeClient) ShowAt(ctx context.Context, title, body string, id int, at time.Time) error {
	f.calls = append(f.calls, "showat:"+title)
	f.at = at
	return nil
}

func (f *fakeClient) Cancel(ctx context.Context, id int) error {
	f.calls = append(f.calls, "cancel")
	return nil
}

func (f *fakeClient) Clear(ctx context.Context, id int) error {
	f.calls = append(f.calls, "clear")
	return nil
}

func (f *fakeClient) Scheduled(ctx context.Context) ([]dbusapi.ScheduledItem, error) {
	return f.items, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func run(t *testing.T, fc *fakeClient, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(name string) (client, error) {
		fc.name = name
		return fc, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestShowCmd(t *testing.T) {
	fc := &fakeClient{}
	_, err := run(t, fc, "show", "--title", "hi", "--id", "4")
	require.NoError(t, err)
	assert.Equal(t, []string{"show:hi"}, fc.calls)
	assert.Equal(t, dbusapi.DefaultName, fc.name)
	assert.True(t, fc.closed)

	fc = &fakeClient{}
	_, err = run(t, fc, "show", "--title", "later", "--at", "2030-01-02T03:04:05Z", "--dbus-name", "x.y")
	require.NoError(t, err)
	assert.Equal(t, []string{"showat:later"}, fc.calls)
	assert.Equal(t, "x.y", fc.name)
	assert.True(t, fc.at.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestCancelAndClearRequireID(t *testing.T) {
	fc := &fakeClient{}
	_, err := run(t, fc, "cancel")
	assert.Error(t, err)
	assert.Empty(t, fc.calls)

	_, err = run(t, fc, "cancel", "--id", "1")
	require.NoError(t, err)
	_, err = run(t, fc, "clear", "--id", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cancel", "clear"}, fc.calls)
}

func TestListCmd(t *testing.T) {
	fc := &fakeClient{items: []dbusapi.ScheduledItem{{Identifier: "abc", Title: "t", ID: 9, FireAt: 0}}}
	out, err := run(t, fc, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "IDENTIFIER")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "9")
}

func TestDialFailure(t *testing.T) {
	root := newRootCmd(func(string) (client, error) { return nil, errors.New("no bus") })
	root.SetArgs([]string{"clear", "--id", "2"})
	assert.EqualError(t, root.Execute(), "no bus")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, &fakeClient{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "localnotify dev")
}

func TestResolveFireTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, scheduled, err := resolveFireTime("", 0, now)
	require.NoError(t, err)
	assert.False(t, scheduled)

	at, scheduled, err := resolveFireTime("", time.Minute, now)
	require.NoError(t, err)
	assert.True(t, scheduled)
	assert.Equal(t, now.Add(time.Minute), at)

	_, _, err = resolveFireTime("2026-01-01T00:00:00Z", time.Minute, now)
	assert.Error(t, err)
	_, _, err = resolveFireTime("tomorrow", 0, now)
	assert.Error(t, err)
	_, _, err = resolveFireTime("", -time.Second, now)
	assert.Error(t, err)
}
