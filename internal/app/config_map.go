package app

import (
	"strings"
	"time"

	"localnotify/internal/center"
	"localnotify/internal/config"
	"localnotify/internal/presenter"
	"localnotify/internal/presenter/desktop"
	"localnotify/internal/presenter/portable"
	"localnotify/internal/presenter/telegram"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

func mapLogConfig(cfg *Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig returns enabled=false for the in-memory drivers.
func mapStorageConfig(cfg *Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "none", "memory":
		return storage.Config{}, false, nil
	}
	busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		CompactAt:   sc.CompactAt,
	}, true, nil
}

func mapCenterConfig(cfg *Config) (center.Config, error) {
	if cfg == nil {
		return center.Config{}, nil
	}
	c := cfg.Center
	out := center.Config{
		Workers:      c.Workers,
		QueueSize:    c.QueueSize,
		RatePerSec:   c.RatePerSec,
		RetryMax:     2,
		MaxDelivered: c.MaxDelivered,
		SweepSpec:    strings.TrimSpace(c.Sweep),
	}
	if c.RetryMax != nil {
		out.RetryMax = *c.RetryMax
	}
	var err error
	if out.RetryBase, err = parseDurationField("center.retry_base", c.RetryBase); err != nil {
		return center.Config{}, err
	}
	if out.RetryMaxDelay, err = parseDurationField("center.retry_max_delay", c.RetryMaxDelay); err != nil {
		return center.Config{}, err
	}
	if out.PresentTimeout, err = parseDurationField("center.present_timeout", c.PresentTimeout); err != nil {
		return center.Config{}, err
	}
	if out.Retention, err = config.ParseRetention("center.retention", c.Retention, 24*time.Hour); err != nil {
		return center.Config{}, err
	}
	return out, nil
}

func mapPresenterConfig(cfg *Config) (presenter.Config, error) {
	if cfg == nil {
		return presenter.Config{Log: presenter.LogConfig{Enabled: true}}, nil
	}
	p := cfg.Presenters
	expire, err := parseDurationField("presenters.desktop.expire", p.Desktop.Expire)
	if err != nil {
		return presenter.Config{}, err
	}
	appName := strings.TrimSpace(p.Desktop.AppName)
	if appName == "" {
		appName = "localnotify"
	}
	return presenter.Config{
		Desktop: presenter.DesktopConfig{
			Enabled: p.Desktop.Enabled,
			Config: desktop.Config{
				AppName: appName,
				Icon:    p.Desktop.Icon,
				Expire:  expire,
				Urgency: strings.ToLower(strings.TrimSpace(p.Desktop.Urgency)),
			},
		},
		Portable: presenter.PortableConfig{
			Enabled: p.Portable.Enabled,
			Config:  portable.Config{Icon: p.Portable.Icon},
		},
		Telegram: presenter.TelegramConfig{
			Enabled: p.Telegram.Enabled,
			Config: telegram.Config{
				Token:    strings.TrimSpace(p.Telegram.Token),
				ChatID:   p.Telegram.ChatID,
				ThreadID: p.Telegram.ThreadID,
				Silent:   p.Telegram.Silent,
			},
		},
		Log: presenter.LogConfig{Enabled: p.Log.Enabled},
	}, nil
}
