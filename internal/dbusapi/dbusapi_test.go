package dbusapi

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

type call struct {
	op    string
	title string
	id    int
	at    time.Time
}

type fakeNotifier struct{ calls []call }

func (f *fakeNotifier) Show(ctx context.Context, title, body string, id int) {
	f.calls = append(f.calls, call{op: "show", title: title, id: id})
}

func (f *fakeNotifier) ShowAt(ctx context.Context, title, body string, id int, at time.Time) {
	f.calls = append(f.calls, call{op: "showat", title: title, id: id, at: at})
}

func (f *fakeNotifier) Cancel(ctx context.Context, id int) {
	f.calls = append(f.calls, call{op: "cancel", id: id})
}

func (f *fakeNotifier) Clear(ctx context.Context, id int) {
	f.calls = append(f.calls, call{op: "clear", id: id})
}

type fakeLister struct {
	reqs []localnotify.Request
	err  error
}

func (f fakeLister) Scheduled(ctx context.Context) ([]localnotify.Request, error) {
	return f.reqs, f.err
}

func TestObjectForwardsCalls(t *testing.T) {
	t.Parallel()
	n := &fakeNotifier{}
	s := NewServer("", n, nil, logx.Nop())
	assert.Equal(t, DefaultName, s.name)

	assert.Nil(t, s.obj.Show("T", "B", 5))
	assert.Nil(t, s.obj.ShowAt("T2", "B", 6, 1_700_000_000_000))
	assert.Nil(t, s.obj.Cancel(7))
	assert.Nil(t, s.obj.Clear(8))

	require.Len(t, n.calls, 4)
	assert.Equal(t, call{op: "show", title: "T", id: 5}, n.calls[0])
	assert.Equal(t, "showat", n.calls[1].op)
	assert.Equal(t, int64(1_700_000_000_000), n.calls[1].at.UnixMilli())
	assert.Equal(t, call{op: "cancel", id: 7}, n.calls[2])
	assert.Equal(t, call{op: "clear", id: 8}, n.calls[3])
}

func TestShowAtRejectsMissingTime(t *testing.T) {
	t.Parallel()
	n := &fakeNotifier{}
	s := NewServer("x.y", n, nil, logx.Nop())
	derr := s.obj.ShowAt("T", "B", 1, 0)
	require.NotNil(t, derr)
	assert.Empty(t, n.calls)
}

func TestScheduledListing(t *testing.T) {
	t.Parallel()
	at := time.UnixMilli(1_700_000_000_000)
	l := fakeLister{reqs: []localnotify.Request{
		{Identifier: "a", Title: "one", Category: "9", FireAt: at},
		{Identifier: "b", Title: "two", Category: "-3", FireAt: at},
	}}
	s := NewServer("", &fakeNotifier{}, l, logx.Nop())

	items, derr := s.obj.Scheduled()
	require.Nil(t, derr)
	assert.Equal(t, []ScheduledItem{
		{Identifier: "a", Title: "one", ID: 9, FireAt: at.UnixMilli()},
		{Identifier: "b", Title: "two", ID: -3, FireAt: at.UnixMilli()},
	}, items)

	s = NewServer("", &fakeNotifier{}, fakeLister{err: localnotify.ErrUnavailable}, logx.Nop())
	items, derr = s.obj.Scheduled()
	assert.Nil(t, derr)
	assert.Empty(t, items)
}

type fakeObject struct {
	dbus.BusObject
	methods []string
	args    [][]interface{}
	body    []interface{}
	err     error
}

func (f *fakeObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.methods = append(f.methods, method)
	f.args = append(f.args, args)
	return &dbus.Call{Method: method, Args: args, Body: f.body, Err: f.err}
}

func TestClientCalls(t *testing.T) {
	t.Parallel()
	obj := &fakeObject{}
	c := &Client{obj: obj}
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, c.Show(ctx, "T", "B", 1))
	require.NoError(t, c.ShowAt(ctx, "T", "B", 2, at))
	require.NoError(t, c.Cancel(ctx, 3))
	require.NoError(t, c.Clear(ctx, 4))

	assert.Equal(t, []string{
		Interface + ".Show", Interface + ".ShowAt", Interface + ".Cancel", Interface + ".Clear",
	}, obj.methods)
	assert.Equal(t, []interface{}{"T", "B", int32(2), at.UnixMilli()}, obj.args[1])
	assert.Equal(t, []interface{}{int32(3)}, obj.args[2])

	assert.Error(t, c.Cancel(ctx, math.MaxInt32+1))
	assert.Len(t, obj.methods, 4)
}

func TestClientPropagatesErrors(t *testing.T) {
	t.Parallel()
	c := &Client{obj: &fakeObject{err: errors.New("no such name")}}
	assert.EqualError(t, c.Clear(context.Background(), 1), "no such name")
	_, err := c.Scheduled(context.Background())
	assert.Error(t, err)
}
