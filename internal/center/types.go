package center

import (
	"context"
	"errors"
	"time"

	"localnotify/internal/storage"
	"localnotify/pkg/localnotify"
)

var ErrQueueFull = errors.New("notification queue full")

// Presenter shows delivered notifications somewhere a user can see them.
type Presenter interface {
	Name() string
	// Present returns a handle that Withdraw understands. An empty handle
	// means there is nothing to withdraw.
	Present(ctx context.Context, n localnotify.Delivered) (handle string, err error)
	Withdraw(ctx context.Context, handle string) error
}

// Config controls the delivery pipeline and retention.
type Config struct {
	Workers        int
	QueueSize      int
	RatePerSec     int
	RetryMax       int
	RetryBase      time.Duration
	RetryMaxDelay  time.Duration
	PresentTimeout time.Duration

	// Retention < 0 keeps delivered notifications forever.
	Retention time.Duration
	// MaxDelivered < 0 disables the cap.
	MaxDelivered int
	SweepSpec    string
}

type entry struct {
	rec      storage.Record
	timer    *time.Timer
	queued   bool
	inflight bool
}

func toRequest(r storage.Record) localnotify.Request {
	return localnotify.Request{
		Identifier: r.ID,
		Title:      r.Title,
		Body:       r.Body,
		Category:   r.Category,
		UserInfo:   copyInfo(r.UserInfo),
		FireAt:     r.FireAt,
	}
}

func toDelivered(r storage.Record) localnotify.Delivered {
	return localnotify.Delivered{Request: toRequest(r), DeliveredAt: r.DeliveredAt}
}

func copyInfo(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
