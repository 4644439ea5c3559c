package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Adapter    AdapterConfig    `json:"adapter"`
	Center     CenterConfig     `json:"center"`
	Storage    StorageConfig    `json:"storage"`
	Presenters PresentersConfig `json:"presenters"`
	DBus       DBusConfig       `json:"dbus"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type AdapterConfig struct {
	// CancelAll makes Cancel withdraw every scheduled match instead of the first.
	CancelAll bool `json:"cancel_all,omitempty"`
}

// CenterConfig controls the delivery pipeline.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - rate_per_sec: 10
//   - retry_max: 2
//   - retry_base: "500ms", retry_max_delay: "10s"
//   - present_timeout: "10s"
//   - retention: "24h" ("off" keeps delivered notifications forever)
//   - max_delivered: 500 (-1 disables the cap)
//   - sweep: "@every 1m"
type CenterConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	RetryMax       *int   `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
	PresentTimeout string `json:"present_timeout,omitempty"`
	Retention      string `json:"retention,omitempty"`
	MaxDelivered   int    `json:"max_delivered,omitempty"`
	Sweep          string `json:"sweep,omitempty"`
}

// StorageConfig selects the persistence driver: "", "none", "memory", "file" or "sqlite".
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	CompactAt   int    `json:"compact_at,omitempty"`
}

type PresentersConfig struct {
	Desktop  DesktopPresenterConfig  `json:"desktop"`
	Portable PortablePresenterConfig `json:"portable"`
	Telegram TelegramPresenterConfig `json:"telegram"`
	Log      LogPresenterConfig      `json:"log"`
}

type DesktopPresenterConfig struct {
	Enabled bool   `json:"enabled"`
	AppName string `json:"app_name,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Expire  string `json:"expire,omitempty"`
	Urgency string `json:"urgency,omitempty"`
}

type PortablePresenterConfig struct {
	Enabled bool   `json:"enabled"`
	Icon    string `json:"icon,omitempty"`
}

// TelegramPresenterConfig: when Token is empty it is read from the OS keyring
// (service "localnotify", account "telegram").
type TelegramPresenterConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	Silent   bool   `json:"silent,omitempty"`
}

type LogPresenterConfig struct {
	Enabled bool `json:"enabled"`
}

type DBusConfig struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
}
