package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	logx "localnotify/pkg/logx"
)

var sweepParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	c := cfg.Center
	if c.Workers < 0 {
		add(errors.New("center.workers must be >= 0"))
	}
	if c.QueueSize < 0 {
		add(errors.New("center.queue_size must be >= 0"))
	}
	if c.RatePerSec < 0 {
		add(errors.New("center.rate_per_sec must be >= 0"))
	}
	if c.RetryMax != nil && *c.RetryMax < 0 {
		add(errors.New("center.retry_max must be >= 0"))
	}
	if c.MaxDelivered < -1 {
		add(errors.New("center.max_delivered must be >= -1"))
	}
	_, err := ParseDurationField("center.retry_base", c.RetryBase)
	add(err)
	_, err = ParseDurationField("center.retry_max_delay", c.RetryMaxDelay)
	add(err)
	_, err = ParseDurationField("center.present_timeout", c.PresentTimeout)
	add(err)
	_, err = ParseRetention("center.retention", c.Retention, 0)
	add(err)
	if spec := strings.TrimSpace(c.Sweep); spec != "" {
		if _, err := sweepParser.Parse(spec); err != nil {
			add(fmt.Errorf("center.sweep: invalid schedule %q: %w", spec, err))
		}
	}

	s := cfg.Storage
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", "none", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(s.Path) == "" {
			add(fmt.Errorf("storage.path is required when storage.driver=%s", s.Driver))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	add(err)
	if s.CompactAt < 0 {
		add(errors.New("storage.compact_at must be >= 0"))
	}

	p := cfg.Presenters
	_, err = ParseDurationField("presenters.desktop.expire", p.Desktop.Expire)
	add(err)
	switch strings.ToLower(strings.TrimSpace(p.Desktop.Urgency)) {
	case "", "low", "normal", "critical":
	default:
		add(fmt.Errorf("presenters.desktop.urgency: unknown urgency %q", p.Desktop.Urgency))
	}
	if p.Telegram.Enabled && p.Telegram.ChatID == 0 {
		add(errors.New("presenters.telegram.chat_id is required when telegram is enabled"))
	}

	return errors.Join(errs...)
}
