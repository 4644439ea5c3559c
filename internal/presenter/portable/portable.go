// Package portable presents notifications with gen2brain/beeep. It is the
// fallback for hosts without a freedesktop notification server.
package portable

import (
	"context"

	"github.com/gen2brain/beeep"

	"localnotify/pkg/localnotify"
)

type Config struct {
	Icon string
}

type Presenter struct {
	cfg    Config
	notify func(title, body, icon string) error
}

func New(cfg Config) *Presenter {
	return &Presenter{cfg: cfg, notify: func(title, body, icon string) error {
		return beeep.Notify(title, body, icon)
	}}
}

func (p *Presenter) Name() string { return "portable" }

// Present returns an empty handle; beeep cannot close what it showed.
func (p *Presenter) Present(ctx context.Context, n localnotify.Delivered) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", p.notify(n.Title, n.Body, p.cfg.Icon)
}

func (p *Presenter) Withdraw(ctx context.Context, handle string) error { return nil }
