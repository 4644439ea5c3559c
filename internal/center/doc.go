// Package center is the host notification center behind localnotify.Adapter.
//
// It owns two sets: pending notifications, each armed with a timer, and
// delivered notifications, which stay in the center until they are removed or
// expire. Due notifications go through a bounded queue and a worker pool, are
// rate limited, and are handed to every configured Presenter with jittered
// retry.
//
// # Persistence
//
// With a storage.Store both sets survive restarts. Without one the center
// keeps them in memory only.
//
// # Retention
//
// A cron sweep drops delivered notifications older than Config.Retention,
// caps the delivered set at Config.MaxDelivered, and re-enqueues pending
// notifications that are overdue (for example after a full queue).
package center
