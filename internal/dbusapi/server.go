// Package dbusapi exposes localnotify.Adapter on the D-Bus session bus and
// provides a client for it.
//
// Interface io.localnotify.Adapter1 at /io/localnotify/Adapter:
//
//	Show(s title, s body, i id)
//	ShowAt(s title, s body, i id, x unixMillis)
//	Cancel(i id)
//	Clear(i id)
//	Scheduled() -> a(ssix)
//
// Only malformed input produces D-Bus errors; the adapter itself never fails.
package dbusapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

const (
	DefaultName = "io.localnotify"
	ObjectPath  = dbus.ObjectPath("/io/localnotify/Adapter")
	Interface   = "io.localnotify.Adapter1"
)

// Notifier is the adapter surface the server forwards to.
type Notifier interface {
	Show(ctx context.Context, title, body string, id int)
	ShowAt(ctx context.Context, title, body string, id int, at time.Time)
	Cancel(ctx context.Context, id int)
	Clear(ctx context.Context, id int)
}

// Lister backs the Scheduled method.
type Lister interface {
	Scheduled(ctx context.Context) ([]localnotify.Request, error)
}

// ScheduledItem is the (ssix) element returned by Scheduled.
type ScheduledItem struct {
	Identifier string
	Title      string
	ID         int32
	FireAt     int64 // unix millis
}

type Server struct {
	name string
	log  logx.Logger
	obj  *object

	conn *dbus.Conn
}

func NewServer(name string, n Notifier, l Lister, log logx.Logger) *Server {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "dbusapi"))
	return &Server{name: name, log: log, obj: &object{n: n, l: l, log: log}}
}

// Start exports the adapter and claims the well-known name.
func (s *Server) Start(ctx context.Context) error {
	_ = ctx
	if s.conn != nil {
		return nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("session bus: %w", err)
	}
	if err := conn.Export(s.obj, ObjectPath, Interface); err != nil {
		_ = conn.Close()
		return fmt.Errorf("export: %w", err)
	}
	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: introspect.Methods(s.obj)},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		_ = conn.Close()
		return fmt.Errorf("export introspection: %w", err)
	}
	reply, err := conn.RequestName(s.name, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("request name %s: %w", s.name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return fmt.Errorf("bus name %s already taken", s.name)
	}
	s.conn = conn
	s.log.Info("dbus api exported", logx.String("name", s.name), logx.String("path", string(ObjectPath)))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	_ = ctx
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.ReleaseName(s.name)
	err := s.conn.Close()
	s.conn = nil
	return err
}

// object holds the exported methods. Calls run with a background context
// bounded by callTimeout.
type object struct {
	n   Notifier
	l   Lister
	log logx.Logger
}

const callTimeout = 10 * time.Second

var errNoMillis = errors.New("unixMillis must be > 0")

func (o *object) Show(title, body string, id int32) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	o.n.Show(ctx, title, body, int(id))
	return nil
}

func (o *object) ShowAt(title, body string, id int32, unixMillis int64) *dbus.Error {
	if unixMillis <= 0 {
		return dbus.MakeFailedError(errNoMillis)
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	o.n.ShowAt(ctx, title, body, int(id), time.UnixMilli(unixMillis))
	return nil
}

func (o *object) Cancel(id int32) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	o.n.Cancel(ctx, int(id))
	return nil
}

func (o *object) Clear(id int32) *dbus.Error {
	o.n.Clear(context.Background(), int(id))
	return nil
}

func (o *object) Scheduled() ([]ScheduledItem, *dbus.Error) {
	out := []ScheduledItem{}
	if o.l == nil {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	reqs, err := o.l.Scheduled(ctx)
	if err != nil {
		o.log.Debug("list scheduled failed", logx.Err(err))
		return out, nil
	}
	for _, r := range reqs {
		id, _ := strconv.ParseInt(r.Category, 10, 32)
		out = append(out, ScheduledItem{
			Identifier: r.Identifier,
			Title:      r.Title,
			ID:         int32(id),
			FireAt:     r.FireAt.UnixMilli(),
		})
	}
	return out, nil
}
