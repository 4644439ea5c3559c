package center

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"localnotify/internal/eventbus"
	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

var errNoPresenter = errors.New("no presenter accepted the notification")

func (c *Center) workerLoop(ctx context.Context, q <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-q:
			if !ok {
				return nil
			}
			c.deliver(ctx, id)
		}
	}
}

// deliver presents a pending notification and moves it to the delivered set.
// The notification counts as delivered even when every presenter failed.
func (c *Center) deliver(ctx context.Context, id string) {
	c.mu.Lock()
	e, ok := c.pending[id]
	if !ok || e.inflight {
		c.mu.Unlock()
		return
	}
	e.queued = false
	e.inflight = true
	rec := e.rec
	cfg := c.cfg
	lim := c.limiter
	c.mu.Unlock()

	handles, err := c.present(ctx, toDelivered(rec), cfg, lim)

	c.mu.Lock()
	cur, still := c.pending[id]
	if !still || cur != e {
		// Cancelled while presenting.
		c.mu.Unlock()
		c.withdraw(context.WithoutCancel(ctx), id, handles)
		return
	}
	if err != nil && len(handles) == 0 && ctx.Err() != nil {
		// Shutdown interrupted the attempt; keep it pending for the next start.
		e.inflight = false
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	rec.DeliveredAt = c.now()
	rec.Handles = handles
	c.delivered[id] = rec
	c.mu.Unlock()

	if c.store != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if serr := c.store.MarkDelivered(sctx, rec); serr != nil {
			c.log.Warn("persist delivered failed", logx.String("id", id), logx.Err(serr))
		}
		cancel()
	}

	if err != nil {
		c.log.Warn("notification not presented", logx.String("id", id), logx.Err(err))
		c.publish(eventbus.NotificationFailed, rec, err)
	}
	c.publish(eventbus.NotificationDelivered, rec, nil)
}

// present hands n to every presenter, retrying until at least one accepts it.
func (c *Center) present(ctx context.Context, n localnotify.Delivered, cfg Config, lim *rate.Limiter) (map[string]string, error) {
	if len(c.presenters) == 0 {
		return nil, nil
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, err
			}
		}

		handles := map[string]string{}
		accepted := false
		for _, p := range c.presenters {
			h, err := callPresent(ctx, p, n, cfg.PresentTimeout)
			if err != nil {
				lastErr = err
				c.log.Debug("present failed", logx.String("id", n.Identifier), logx.String("presenter", p.Name()), logx.Int("attempt", attempt), logx.Err(err))
				continue
			}
			accepted = true
			if h != "" {
				handles[p.Name()] = h
			}
		}
		if accepted {
			return handles, nil
		}

		if attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = errNoPresenter
	}
	return nil, lastErr
}

// callPresent runs one Present call. A panicking presenter counts as a failed attempt.
func callPresent(ctx context.Context, p Presenter, n localnotify.Delivered, timeout time.Duration) (h string, err error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			h, err = "", fmt.Errorf("presenter %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Present(callCtx, n)
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1, the delay is for the next attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
