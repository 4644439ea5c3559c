package localnotify

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	logx "localnotify/pkg/logx"
)

// Adapter forwards notification operations to a Center.
type Adapter struct {
	center    Center
	log       logx.Logger
	now       func() time.Time
	cancelAll atomic.Bool
}

type Option func(*Adapter)

func WithLogger(log logx.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// WithClock overrides the time source used by Show.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithCancelAll makes Cancel remove every scheduled match instead of the first.
func WithCancelAll(enabled bool) Option {
	return func(a *Adapter) { a.cancelAll.Store(enabled) }
}

// New returns an adapter over c. A nil c is allowed; every call is then a no-op.
func New(c Center, opts ...Option) *Adapter {
	a := &Adapter{center: c, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if a.log.IsZero() {
		a.log = logx.Nop()
	}
	a.log = a.log.With(logx.String("comp", "localnotify"))
	return a
}

// SetCancelAll switches Cancel between first-match and every-match removal.
func (a *Adapter) SetCancelAll(enabled bool) {
	if a != nil {
		a.cancelAll.Store(enabled)
	}
}

// Show presents a notification immediately.
func (a *Adapter) Show(ctx context.Context, title, body string, id int) {
	a.ShowAt(ctx, title, body, id, a.now())
}

// ShowAt schedules a notification for at.
func (a *Adapter) ShowAt(ctx context.Context, title, body string, id int, at time.Time) {
	if a == nil || a.center == nil {
		return
	}
	ctx = orBackground(ctx)
	req := Request{
		Title:    title,
		Body:     body,
		Category: strconv.Itoa(id),
		UserInfo: map[string]any{NotificationKey: id},
		FireAt:   at,
	}
	if err := a.center.Schedule(ctx, req); err != nil {
		a.logFailure("schedule", id, err)
	}
}

// Cancel withdraws the first scheduled notification carrying id.
func (a *Adapter) Cancel(ctx context.Context, id int) {
	if a == nil || a.center == nil {
		return
	}
	ctx = orBackground(ctx)
	pending, err := a.center.Scheduled(ctx)
	if err != nil {
		a.logFailure("list scheduled", id, err)
		return
	}
	for _, req := range pending {
		if !Correlates(req.UserInfo[NotificationKey], id) {
			continue
		}
		if err := a.center.CancelScheduled(ctx, req); err != nil {
			a.logFailure("cancel", id, err)
		}
		if !a.cancelAll.Load() {
			return
		}
	}
}

// Clear removes every delivered notification carrying id.
// It returns before the center has enumerated the delivered set.
func (a *Adapter) Clear(ctx context.Context, id int) {
	if a == nil || a.center == nil {
		return
	}
	// The enumeration outlives the caller's request scope.
	ctx = context.WithoutCancel(orBackground(ctx))
	category := strconv.Itoa(id)
	a.center.Delivered(ctx, func(ds []Delivered) {
		var ids []string
		for _, d := range ds {
			if d.Category == category && d.Identifier != "" {
				ids = append(ids, d.Identifier)
			}
		}
		if len(ids) == 0 {
			return
		}
		if err := a.center.RemoveDelivered(ctx, ids); err != nil {
			a.logFailure("remove delivered", id, err)
		}
	})
}

func (a *Adapter) logFailure(op string, id int, err error) {
	if errors.Is(err, ErrUnavailable) {
		a.log.Debug("notification center unavailable", logx.String("op", op), logx.Int("id", id))
		return
	}
	a.log.Warn("notification "+op+" failed", logx.Int("id", id), logx.Err(err))
}

// Correlates reports whether a UserInfo value holds the correlation id.
func Correlates(v any, id int) bool {
	switch n := v.(type) {
	case int:
		return n == id
	case int32:
		return int64(n) == int64(id)
	case int64:
		return n == int64(id)
	case float64:
		return n == math.Trunc(n) && n == float64(id)
	case json.Number:
		i, err := n.Int64()
		return err == nil && i == int64(id)
	default:
		return false
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
