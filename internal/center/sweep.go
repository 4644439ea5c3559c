package center

import (
	"context"
	"time"

	"localnotify/internal/eventbus"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

// sweep expires old delivered notifications and re-enqueues overdue pending ones.
func (c *Center) sweep() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	now := c.now()
	cfg := c.cfg

	recs := c.deliveredLocked()
	var expired []storage.Record
	kept := recs[:0]
	for _, r := range recs {
		if cfg.Retention > 0 && now.Sub(r.DeliveredAt) > cfg.Retention {
			expired = append(expired, r)
			continue
		}
		kept = append(kept, r)
	}
	if cfg.MaxDelivered > 0 && len(kept) > cfg.MaxDelivered {
		// Oldest first.
		over := len(kept) - cfg.MaxDelivered
		expired = append(expired, kept[:over]...)
	}
	for _, r := range expired {
		delete(c.delivered, r.ID)
	}

	redelivered := 0
	for _, e := range c.pendingLocked() {
		if e.queued || e.inflight || e.rec.FireAt.After(now) {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		c.enqueueLocked(e)
		if e.queued {
			redelivered++
		}
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.dropDelivered(ctx, expired, eventbus.NotificationExpired); err != nil {
		c.log.Warn("sweep failed", logx.Err(err))
	}
	if len(expired) > 0 || redelivered > 0 {
		c.log.Debug("sweep done", logx.Int("expired", len(expired)), logx.Int("redelivered", redelivered))
	}
}
