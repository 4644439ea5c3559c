// Package localnotify is the public entry point for showing, scheduling,
// cancelling and clearing local notifications.
//
// An Adapter keeps no state. Every call is handed to a host notification
// Center, which owns the scheduled and delivered sets. Adapter methods never
// return errors: a missing or unavailable center turns them into no-ops.
//
// Correlation ids are carried twice on every request: as the Category string
// and under NotificationKey in UserInfo. Cancel looks at the scheduled set by
// UserInfo and removes the first match. Clear looks at the delivered set by
// Category and removes every match.
package localnotify
