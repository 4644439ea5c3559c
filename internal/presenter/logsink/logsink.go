// Package logsink presents notifications by writing them to the structured log.
package logsink

import (
	"context"

	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

type Presenter struct {
	log logx.Logger
}

func New(log logx.Logger) *Presenter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Presenter{log: log.With(logx.String("presenter", "log"))}
}

func (p *Presenter) Name() string { return "log" }

func (p *Presenter) Present(ctx context.Context, n localnotify.Delivered) (string, error) {
	p.log.Info("notification",
		logx.String("id", n.Identifier),
		logx.String("category", n.Category),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.Time("fire_at", n.FireAt),
	)
	return n.Identifier, nil
}

func (p *Presenter) Withdraw(ctx context.Context, handle string) error {
	p.log.Debug("notification withdrawn", logx.String("id", handle))
	return nil
}
