// Package storage persists the notification center's state across restarts.
//
// It keeps two sets:
//   - pending notifications (scheduled, not yet presented)
//   - delivered notifications (presented, still in the notification center)
//
// Drivers: "file" (JSON snapshot + journal) and "sqlite".
package storage
