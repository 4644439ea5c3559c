package center

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"localnotify/internal/eventbus"
	rtsup "localnotify/internal/runtime/supervisor"
	"localnotify/internal/storage"
	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Center implements localnotify.Center.
//
// It is safe for concurrent use.
type Center struct {
	mu sync.Mutex

	log        logx.Logger
	bus        eventbus.Bus
	store      storage.Store
	presenters []Presenter
	byName     map[string]Presenter
	now        func() time.Time

	cfg     Config
	limiter *rate.Limiter

	running   bool
	seq       int64
	pending   map[string]*entry
	delivered map[string]storage.Record

	queue chan string
	sup   *rtsup.Supervisor
	cron  *cron.Cron
}

var _ localnotify.Center = (*Center)(nil)

// New builds a stopped center. store and bus may be nil.
func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger, presenters ...Presenter) *Center {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Center{
		log:       log.With(logx.String("comp", "center")),
		bus:       bus,
		store:     store,
		byName:    map[string]Presenter{},
		now:       time.Now,
		pending:   map[string]*entry{},
		delivered: map[string]storage.Record{},
	}
	for _, p := range presenters {
		if p == nil {
			continue
		}
		c.presenters = append(c.presenters, p)
		c.byName[p.Name()] = p
	}
	c.applyLocked(cfg)
	return c
}

// Apply swaps rate, retry and retention settings. Workers and QueueSize take
// effect on the next Start.
func (c *Center) Apply(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	oldSpec := c.cfg.SweepSpec
	c.applyLocked(cfg)
	if c.running && c.cfg.SweepSpec != oldSpec {
		if err := c.restartCronLocked(); err != nil {
			c.log.Warn("sweep spec rejected; keeping previous schedule", logx.String("spec", c.cfg.SweepSpec), logx.Err(err))
		}
	}
}

func (c *Center) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.PresentTimeout <= 0 {
		cfg.PresentTimeout = 10 * time.Second
	}
	if cfg.Retention == 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.MaxDelivered == 0 {
		cfg.MaxDelivered = 500
	}
	if strings.TrimSpace(cfg.SweepSpec) == "" {
		cfg.SweepSpec = "@every 1m"
	}
	c.cfg = cfg
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Running reports whether the center accepts requests.
func (c *Center) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Supervisor returns the delivery supervisor (nil when stopped).
func (c *Center) Supervisor() *rtsup.Supervisor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sup
}

// Start restores persisted state, arms timers and starts delivery.
// Start is idempotent. Cancelling ctx does not stop delivery; call Stop.
func (c *Center) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.Running() {
		return nil
	}
	if err := c.restore(ctx); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	c.queue = make(chan string, c.cfg.QueueSize)
	// Workers outlive ctx so Stop can drain the queue.
	c.sup = rtsup.New(context.WithoutCancel(ctx),
		rtsup.WithLogger(c.log),
		// Delivery is best-effort; a broken worker must not stop the host.
		rtsup.WithCancelOnError(false),
	)
	if err := c.restartCronLocked(); err != nil {
		c.sup.Cancel()
		c.sup = nil
		c.queue = nil
		return fmt.Errorf("sweep spec %q: %w", c.cfg.SweepSpec, err)
	}

	q := c.queue
	for i := 0; i < c.cfg.Workers; i++ {
		c.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(ctx context.Context) error {
			return c.workerLoop(ctx, q)
		})
	}
	c.running = true

	for _, e := range c.pendingLocked() {
		c.armLocked(e)
	}
	c.log.Info("notification center started",
		logx.Int("pending", len(c.pending)),
		logx.Int("delivered", len(c.delivered)),
		logx.Int("workers", c.cfg.Workers),
	)
	return nil
}

// Stop stops intake and timers, then drains queued deliveries until ctx expires.
func (c *Center) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	for _, e := range c.pending {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.queued = false
	}
	close(c.queue)
	c.queue = nil
	sup, cr := c.sup, c.cron
	c.sup, c.cron = nil, nil
	c.mu.Unlock()

	if cr != nil {
		select {
		case <-cr.Stop().Done():
		case <-ctx.Done():
		}
	}
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		// Force-stop workers still presenting.
		sup.Cancel()
	}
	c.log.Info("notification center stopped")
	return nil
}

// Schedule assigns an identifier and arms req. Past fire times are delivered at once.
func (c *Center) Schedule(ctx context.Context, req localnotify.Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return localnotify.ErrUnavailable
	}
	c.seq++
	now := c.now()
	rec := storage.Record{
		ID:          uuid.NewString(),
		Seq:         c.seq,
		Title:       req.Title,
		Body:        req.Body,
		Category:    req.Category,
		UserInfo:    copyInfo(req.UserInfo),
		FireAt:      req.FireAt,
		ScheduledAt: now,
	}
	if rec.FireAt.IsZero() {
		rec.FireAt = now
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.PutPending(ctx, rec); err != nil {
			return fmt.Errorf("persist pending: %w", err)
		}
	}

	c.publish(eventbus.NotificationScheduled, rec, nil)

	c.mu.Lock()
	e := &entry{rec: rec}
	c.pending[rec.ID] = e
	if c.running {
		c.armLocked(e)
	}
	c.mu.Unlock()

	c.log.Debug("notification scheduled", logx.String("id", rec.ID), logx.String("category", rec.Category), logx.Time("fire_at", rec.FireAt))
	return nil
}

// Scheduled returns pending requests in scheduling order.
func (c *Center) Scheduled(ctx context.Context) ([]localnotify.Request, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, localnotify.ErrUnavailable
	}
	entries := c.pendingLocked()
	out := make([]localnotify.Request, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRequest(e.rec))
	}
	return out, nil
}

// Delivered snapshots the delivered set and passes it to fn on a supervised goroutine.
func (c *Center) Delivered(ctx context.Context, fn func([]localnotify.Delivered)) {
	_ = ctx
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.sup == nil {
		return
	}
	recs := c.deliveredLocked()
	snap := make([]localnotify.Delivered, 0, len(recs))
	for _, r := range recs {
		snap = append(snap, toDelivered(r))
	}
	c.sup.Go0("delivered.callback", func(context.Context) { fn(snap) })
}

// CancelScheduled withdraws a pending request. Unknown identifiers are ignored.
func (c *Center) CancelScheduled(ctx context.Context, req localnotify.Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return localnotify.ErrUnavailable
	}
	e, ok := c.pending[req.Identifier]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(c.pending, req.Identifier)
	rec := e.rec
	c.mu.Unlock()

	c.publish(eventbus.NotificationCancelled, rec, nil)
	if c.store != nil {
		if err := c.store.DeletePending(ctx, rec.ID); err != nil {
			return fmt.Errorf("delete pending: %w", err)
		}
	}
	return nil
}

// RemoveDelivered drops delivered notifications and withdraws them from presenters.
func (c *Center) RemoveDelivered(ctx context.Context, identifiers []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return localnotify.ErrUnavailable
	}
	removed := make([]storage.Record, 0, len(identifiers))
	for _, id := range identifiers {
		if r, ok := c.delivered[id]; ok {
			delete(c.delivered, id)
			removed = append(removed, r)
		}
	}
	c.mu.Unlock()

	return c.dropDelivered(ctx, removed, eventbus.NotificationRemoved)
}

func (c *Center) dropDelivered(ctx context.Context, recs []storage.Record, event string) error {
	if len(recs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
		c.withdraw(ctx, r.ID, r.Handles)
		c.publish(event, r, nil)
	}
	if c.store != nil {
		if err := c.store.DeleteDelivered(ctx, ids...); err != nil {
			return fmt.Errorf("delete delivered: %w", err)
		}
	}
	return nil
}

func (c *Center) withdraw(ctx context.Context, id string, handles map[string]string) {
	for name, h := range handles {
		p, ok := c.byName[name]
		if !ok || h == "" {
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Withdraw(wctx, h)
		cancel()
		if err != nil {
			c.log.Debug("withdraw failed", logx.String("id", id), logx.String("presenter", name), logx.Err(err))
		}
	}
}

// restore loads both sets from the store. Without a store the in-memory sets are kept.
func (c *Center) restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	pend, err := c.store.ListPending(ctx)
	if err != nil {
		return err
	}
	done, err := c.store.ListDelivered(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[string]*entry, len(pend))
	c.delivered = make(map[string]storage.Record, len(done))
	for _, r := range pend {
		c.pending[r.ID] = &entry{rec: r}
		if r.Seq > c.seq {
			c.seq = r.Seq
		}
	}
	for _, r := range done {
		c.delivered[r.ID] = r
		if r.Seq > c.seq {
			c.seq = r.Seq
		}
	}
	return nil
}

func (c *Center) armLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delay := e.rec.FireAt.Sub(c.now())
	if delay <= 0 {
		c.enqueueLocked(e)
		return
	}
	id := e.rec.ID
	e.timer = time.AfterFunc(delay, func() { c.fire(id) })
}

func (c *Center) fire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[id]
	if !ok {
		return
	}
	e.timer = nil
	c.enqueueLocked(e)
}

// enqueueLocked hands e to the workers. A full queue leaves e pending for the next sweep.
func (c *Center) enqueueLocked(e *entry) {
	if !c.running || e.queued || e.inflight {
		return
	}
	select {
	case c.queue <- e.rec.ID:
		e.queued = true
	default:
		c.log.Warn("delivery deferred", logx.String("id", e.rec.ID), logx.Err(ErrQueueFull))
	}
}

func (c *Center) restartCronLocked() error {
	cr := cron.New(cron.WithParser(cronParser))
	if _, err := cr.AddFunc(c.cfg.SweepSpec, c.sweep); err != nil {
		return err
	}
	if c.cron != nil {
		c.cron.Stop()
	}
	c.cron = cr
	cr.Start()
	return nil
}

func (c *Center) pendingLocked() []*entry {
	out := make([]*entry, 0, len(c.pending))
	for _, e := range c.pending {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rec.Seq < out[j].rec.Seq })
	return out
}

func (c *Center) deliveredLocked() []storage.Record {
	out := make([]storage.Record, 0, len(c.delivered))
	for _, r := range c.delivered {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeliveredAt.Equal(out[j].DeliveredAt) {
			return out[i].DeliveredAt.Before(out[j].DeliveredAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (c *Center) publish(typ string, r storage.Record, err error) {
	if c.bus == nil {
		return
	}
	now := c.now()
	ev := eventbus.NotificationEvent{Identifier: r.ID, Category: r.Category, FireAt: r.FireAt, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	c.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}
