package localnotify

import (
	"context"
	"errors"
	"time"
)

// NotificationKey is the UserInfo key holding the correlation id.
const NotificationKey = "LocalNotificationKey"

// ErrUnavailable is returned by a Center that is not running.
var ErrUnavailable = errors.New("notification center unavailable")

// Request is a notification handed to the center.
type Request struct {
	// Identifier is assigned by the center; empty on input.
	Identifier string
	Title      string
	Body       string
	Category   string
	UserInfo   map[string]any
	FireAt     time.Time
}

// Delivered is a request that has been presented.
type Delivered struct {
	Request
	DeliveredAt time.Time
}

// Center is the host notification center.
type Center interface {
	Schedule(ctx context.Context, req Request) error
	Scheduled(ctx context.Context) ([]Request, error)
	// Delivered enumerates the delivered set and calls fn on another goroutine.
	// fn is not called when the center is unavailable.
	Delivered(ctx context.Context, fn func([]Delivered))
	CancelScheduled(ctx context.Context, req Request) error
	RemoveDelivered(ctx context.Context, identifiers []string) error
}
