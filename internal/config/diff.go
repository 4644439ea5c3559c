package config

import (
	"reflect"
	"strings"

	logx "localnotify/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Secrets (telegram token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Adapter != newCfg.Adapter {
		changed = append(changed, "adapter")
		attrs = append(attrs, logx.Bool("adapter.cancel_all", newCfg.Adapter.CancelAll))
	}

	if !reflect.DeepEqual(oldCfg.Center, newCfg.Center) {
		changed = append(changed, "center")
		retry := -1
		if newCfg.Center.RetryMax != nil {
			retry = *newCfg.Center.RetryMax
		}
		attrs = append(attrs,
			logx.Int("center.workers", newCfg.Center.Workers),
			logx.Int("center.rate_per_sec", newCfg.Center.RatePerSec),
			logx.Int("center.retry_max", retry),
			logx.String("center.retention", strings.TrimSpace(newCfg.Center.Retention)),
			logx.Int("center.max_delivered", newCfg.Center.MaxDelivered),
			logx.String("center.sweep", strings.TrimSpace(newCfg.Center.Sweep)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	op, np := oldCfg.Presenters, newCfg.Presenters
	tokenChanged := strings.TrimSpace(op.Telegram.Token) != strings.TrimSpace(np.Telegram.Token)
	op.Telegram.Token, np.Telegram.Token = "", ""
	if op != np || tokenChanged {
		changed = append(changed, "presenters")
		attrs = append(attrs,
			logx.Bool("presenters.desktop", np.Desktop.Enabled),
			logx.Bool("presenters.portable", np.Portable.Enabled),
			logx.Bool("presenters.telegram", np.Telegram.Enabled),
			logx.Bool("presenters.telegram.token_set", strings.TrimSpace(newCfg.Presenters.Telegram.Token) != ""),
			logx.Bool("presenters.log", np.Log.Enabled),
		)
	}

	if oldCfg.DBus != newCfg.DBus {
		changed = append(changed, "dbus")
		attrs = append(attrs,
			logx.Bool("dbus.enabled", newCfg.DBus.Enabled),
			logx.String("dbus.name", strings.TrimSpace(newCfg.DBus.Name)),
		)
	}

	return changed, attrs
}

// RestartRequired reports sections whose changes only apply after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "presenters", "dbus":
			out = append(out, s)
		}
	}
	return out
}
