// Package desktop presents notifications through the freedesktop.org
// notification server (org.freedesktop.Notifications) on the session bus.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	iface      = "org.freedesktop.Notifications"
)

type Config struct {
	AppName string
	Icon    string
	// Expire is the server-side display timeout. 0 lets the server decide.
	Expire  time.Duration
	Urgency string // low | normal | critical
}

type Presenter struct {
	cfg  Config
	log  logx.Logger
	conn *dbus.Conn
	obj  dbus.BusObject
}

// New connects to the session bus. It fails when no notification server owns
// org.freedesktop.Notifications.
func New(cfg Config, log logx.Logger) (*Presenter, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	var has bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, busName).Store(&has); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("lookup %s: %w", busName, err)
	}
	if !has {
		_ = conn.Close()
		return nil, errors.New("no notification server on the session bus")
	}
	p := newWithObject(cfg, log, conn.Object(busName, objectPath))
	p.conn = conn
	return p, nil
}

func newWithObject(cfg Config, log logx.Logger, obj dbus.BusObject) *Presenter {
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "localnotify"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Presenter{cfg: cfg, log: log.With(logx.String("presenter", "desktop")), obj: obj}
}

func (p *Presenter) Name() string { return "desktop" }

func (p *Presenter) Present(ctx context.Context, n localnotify.Delivered) (string, error) {
	expire := int32(-1)
	if p.cfg.Expire > 0 {
		expire = int32(p.cfg.Expire.Milliseconds())
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgencyByte(p.cfg.Urgency)),
	}
	if n.Category != "" {
		hints["x-localnotify-category"] = dbus.MakeVariant(n.Category)
	}

	var id uint32
	call := p.obj.CallWithContext(ctx, iface+".Notify", 0,
		p.cfg.AppName, uint32(0), p.cfg.Icon, n.Title, n.Body, []string{}, hints, expire)
	if err := call.Store(&id); err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(id), 10), nil
}

func (p *Presenter) Withdraw(ctx context.Context, handle string) error {
	id, err := strconv.ParseUint(handle, 10, 32)
	if err != nil {
		return fmt.Errorf("bad desktop handle %q: %w", handle, err)
	}
	return p.obj.CallWithContext(ctx, iface+".CloseNotification", 0, uint32(id)).Err
}

func (p *Presenter) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

func urgencyByte(s string) byte {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return 0
	case "critical":
		return 2
	default:
		return 1
	}
}
