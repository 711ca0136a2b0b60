package config

// Config is the whole configuration file.
//
// The file may be YAML or JSON; YAML is coerced to JSON and decoded strictly,
// so unknown keys are rejected early. All durations are Go duration strings
// (e.g. "500ms", "30s", "2h").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Store      StoreConfig      `json:"store"`
	Scheduling SchedulingConfig `json:"scheduling"`
	Publisher  PublisherConfig  `json:"publisher"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig controls the persistence layer.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./postpilot.db" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulingConfig selects and parameterizes the slot allocation policy.
//
// policy values:
//   - "window": daily window + spacing + quota
//   - "fixed":  fixed times of day, one post per (day, slot)
type SchedulingConfig struct {
	Policy   string `json:"policy"`
	Timezone string `json:"timezone,omitempty"`

	// Horizon bounds the forward slot search. Empty means 90 days.
	Horizon string `json:"horizon,omitempty"`

	Window WindowConfig `json:"window,omitempty"`

	// Slots are "HH:MM" times of day for the fixed policy.
	Slots []string `json:"slots,omitempty"`
}

type WindowConfig struct {
	Start      string `json:"start"` // "HH:MM"
	End        string `json:"end"`   // "HH:MM", exclusive
	Spacing    string `json:"spacing"`
	DailyQuota int    `json:"daily_quota"`
}

// PublisherConfig controls the publish loop and the outbound client.
type PublisherConfig struct {
	// Interval is the daemon wake spec: a Go duration ("60s") or a cron
	// expression ("*/5 * * * *", "@hourly").
	Interval string `json:"interval"`

	MaxAttempts int           `json:"max_attempts"`
	Backoff     BackoffConfig `json:"backoff,omitempty"`

	// RatePerMin paces consecutive publish calls inside one drain pass.
	// 0 disables pacing.
	RatePerMin int `json:"rate_per_min,omitempty"`

	Client ClientConfig `json:"client"`
}

// BackoffConfig shapes the retry delay applied after a failed attempt.
//
// mode values: "exponential" (default) or "fixed".
type BackoffConfig struct {
	Mode string `json:"mode,omitempty"`
	Base string `json:"base,omitempty"` // default "30s"
	Max  string `json:"max,omitempty"`  // default "15m"
}

// ClientConfig selects the publish target.
//
// kind values: "telegram", "webhook", "dryrun".
type ClientConfig struct {
	Kind string `json:"kind"`

	// Timeout bounds a single publish attempt. Default "30s".
	Timeout string `json:"timeout,omitempty"`

	Telegram *TelegramClientConfig `json:"telegram,omitempty"`
	Webhook  *WebhookClientConfig  `json:"webhook,omitempty"`
}

type TelegramClientConfig struct {
	Token string `json:"token"`
	// Chat is the target channel/chat, "@channelname" or a numeric id.
	Chat string `json:"chat"`
}

type WebhookClientConfig struct {
	URL string `json:"url"`
	// AuthHeader is sent verbatim as the Authorization header (do not log).
	AuthHeader string `json:"auth_header,omitempty"`
}
