package eventbus

import "time"

// Notification lifecycle event types published by the notification center.
const (
	NotificationScheduled = "notification.scheduled"
	NotificationDelivered = "notification.delivered"
	NotificationFailed    = "notification.failed"
	NotificationCancelled = "notification.cancelled"
	NotificationRemoved   = "notification.removed"
	NotificationExpired   = "notification.expired"
)

// NotificationEvent is the Data payload of notification lifecycle events.
// Keep it small; subscribers may log or serialize it.
type NotificationEvent struct {
	Identifier string    `json:"identifier"`
	Category   string    `json:"category,omitempty"`
	FireAt     time.Time `json:"fire_at,omitempty"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}
