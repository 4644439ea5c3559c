package dbusapi

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Client calls a running Server.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func Dial(name string) (*Client, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(name, ObjectPath)}, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Show(ctx context.Context, title, body string, id int) error {
	i, err := toInt32(id)
	if err != nil {
		return err
	}
	return c.call(ctx, "Show", title, body, i)
}

func (c *Client) ShowAt(ctx context.Context, title, body string, id int, at time.Time) error {
	i, err := toInt32(id)
	if err != nil {
		return err
	}
	return c.call(ctx, "ShowAt", title, body, i, at.UnixMilli())
}

func (c *Client) Cancel(ctx context.Context, id int) error {
	i, err := toInt32(id)
	if err != nil {
		return err
	}
	return c.call(ctx, "Cancel", i)
}

func (c *Client) Clear(ctx context.Context, id int) error {
	i, err := toInt32(id)
	if err != nil {
		return err
	}
	return c.call(ctx, "Clear", i)
}

func (c *Client) Scheduled(ctx context.Context) ([]ScheduledItem, error) {
	var out []ScheduledItem
	if err := c.obj.CallWithContext(ctx, Interface+".Scheduled", 0).Store(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) error {
	return c.obj.CallWithContext(ctx, Interface+"."+method, 0, args...).Err
}

func toInt32(id int) (int32, error) {
	if id < math.MinInt32 || id > math.MaxInt32 {
		return 0, fmt.Errorf("id %d out of range", id)
	}
	return int32(id), nil
}
