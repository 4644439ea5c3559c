// Package presenter builds the set of presenters the notification center
// hands delivered notifications to.
package presenter

import (
	"errors"

	"localnotify/internal/center"
	"localnotify/internal/presenter/desktop"
	"localnotify/internal/presenter/logsink"
	"localnotify/internal/presenter/portable"
	"localnotify/internal/presenter/telegram"
	logx "localnotify/pkg/logx"
)

type Config struct {
	Desktop  DesktopConfig
	Portable PortableConfig
	Telegram TelegramConfig
	Log      LogConfig
}

type DesktopConfig struct {
	Enabled bool
	desktop.Config
}

type PortableConfig struct {
	Enabled bool
	portable.Config
}

type TelegramConfig struct {
	Enabled bool
	telegram.Config
}

type LogConfig struct {
	Enabled bool
}

// Set is an opened presenter set. Close releases bus connections.
type Set struct {
	list    []center.Presenter
	closers []func() error
}

func (s *Set) List() []center.Presenter {
	if s == nil {
		return nil
	}
	return append([]center.Presenter(nil), s.list...)
}

func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.list))
	for _, p := range s.list {
		out = append(out, p.Name())
	}
	return out
}

func (s *Set) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Open builds the enabled presenters. When the desktop presenter cannot reach
// a notification server the portable presenter is used instead.
func Open(cfg Config, log logx.Logger) (*Set, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "presenter"))
	s := &Set{}

	usePortable := cfg.Portable.Enabled
	if cfg.Desktop.Enabled {
		d, err := desktop.New(cfg.Desktop.Config, log)
		if err != nil {
			log.Warn("desktop notifications unavailable; falling back to portable", logx.Err(err))
			usePortable = true
		} else {
			s.list = append(s.list, d)
			s.closers = append(s.closers, d.Close)
		}
	}
	if usePortable {
		s.list = append(s.list, portable.New(cfg.Portable.Config))
	}
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram.Config, log)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.list = append(s.list, tg)
	}
	if cfg.Log.Enabled || len(s.list) == 0 {
		s.list = append(s.list, logsink.New(log))
	}
	log.Info("presenters ready", logx.Any("names", s.Names()))
	return s, nil
}
