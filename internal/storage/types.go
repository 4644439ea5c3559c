package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (journal + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty, "none" or "memory", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	CompactAt   int           // file only; journal records between compactions
}

// Record is the persisted form of a notification.
// Keep it compact and schema-stable.
type Record struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Category    string            `json:"category,omitempty"`
	UserInfo    map[string]any    `json:"user_info,omitempty"`
	FireAt      time.Time         `json:"fire_at"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	DeliveredAt time.Time         `json:"delivered_at,omitempty"`
	Handles     map[string]string `json:"handles,omitempty"`
}
