package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"postpilot/internal/slot"
)

// ParseDuration parses a non-negative Go duration from a config field. Empty
// means zero; path names the field in error messages.
func ParseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOrDefault is ParseDuration with def substituted for empty or zero.
func DurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDuration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks the whole config without side effects. It is used both at
// startup and as the Watch() validator so a broken edit never replaces a
// working config.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.Logging.Level))); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	switch c.Store.Driver {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if _, err := ParseDuration("store.busy_timeout", c.Store.BusyTimeout); err != nil {
		return err
	}
	if _, err := c.Scheduling.BuildPolicy(); err != nil {
		return err
	}
	if _, err := c.Scheduling.Location(); err != nil {
		return err
	}
	if c.Publisher.Interval != "" {
		if _, err := ParseSchedule(c.Publisher.Interval); err != nil {
			return fmt.Errorf("publisher.interval: %w", err)
		}
	}
	if c.Publisher.MaxAttempts < 0 {
		return fmt.Errorf("publisher.max_attempts: must be >= 0")
	}
	if c.Publisher.RatePerMin < 0 {
		return fmt.Errorf("publisher.rate_per_min: must be >= 0")
	}
	if _, err := c.Publisher.Backoff.Parse(); err != nil {
		return err
	}
	return c.Publisher.Client.validate()
}

// BuildPolicy turns the scheduling section into a slot allocation policy.
func (sc SchedulingConfig) BuildPolicy() (slot.Policy, error) {
	horizon, err := DurationOrDefault("scheduling.horizon", sc.Horizon, slot.DefaultHorizon)
	if err != nil {
		return nil, err
	}

	switch sc.Policy {
	case "", "window":
		start, err := slot.ParseHHMM(sc.Window.Start)
		if err != nil {
			return nil, fmt.Errorf("scheduling.window.start: %w", err)
		}
		end, err := slot.ParseHHMM(sc.Window.End)
		if err != nil {
			return nil, fmt.Errorf("scheduling.window.end: %w", err)
		}
		spacing, err := ParseDuration("scheduling.window.spacing", sc.Window.Spacing)
		if err != nil {
			return nil, err
		}
		return slot.NewWindowPolicy(start, end, spacing, sc.Window.DailyQuota, horizon)
	case "fixed":
		if len(sc.Slots) == 0 {
			return nil, fmt.Errorf("scheduling.slots: at least one slot required for the fixed policy")
		}
		slots := make([]slot.HHMM, 0, len(sc.Slots))
		for i, raw := range sc.Slots {
			h, err := slot.ParseHHMM(raw)
			if err != nil {
				return nil, fmt.Errorf("scheduling.slots[%d]: %w", i, err)
			}
			slots = append(slots, h)
		}
		return slot.NewFixedPolicy(slots, horizon)
	default:
		return nil, fmt.Errorf("scheduling.policy: unknown policy %q", sc.Policy)
	}
}

// Location resolves the scheduling timezone. Empty means the system local zone.
func (sc SchedulingConfig) Location() (*time.Location, error) {
	if sc.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduling.timezone: %w", err)
	}
	return loc, nil
}

// ParseSchedule accepts either a Go duration ("90s") or a standard 5-field
// cron expression (descriptors like "@hourly" included).
func ParseSchedule(spec string) (cron.Schedule, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("interval %q too small (min 1s)", spec)
		}
		return cron.Every(d), nil
	}
	p := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := p.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// BackoffSettings is the parsed form of BackoffConfig with defaults applied.
type BackoffSettings struct {
	Mode string
	Base time.Duration
	Max  time.Duration
}

func (b BackoffConfig) Parse() (BackoffSettings, error) {
	s := BackoffSettings{Mode: b.Mode}
	switch b.Mode {
	case "":
		s.Mode = "exponential"
	case "exponential", "fixed":
	default:
		return s, fmt.Errorf("publisher.backoff.mode: unknown mode %q", b.Mode)
	}
	var err error
	if s.Base, err = DurationOrDefault("publisher.backoff.base", b.Base, 30*time.Second); err != nil {
		return s, err
	}
	if s.Max, err = DurationOrDefault("publisher.backoff.max", b.Max, 15*time.Minute); err != nil {
		return s, err
	}
	if s.Max < s.Base {
		return s, fmt.Errorf("publisher.backoff.max: must be >= base")
	}
	return s, nil
}

func (cc ClientConfig) validate() error {
	if _, err := ParseDuration("publisher.client.timeout", cc.Timeout); err != nil {
		return err
	}
	switch cc.Kind {
	case "", "dryrun":
		return nil
	case "telegram":
		if cc.Telegram == nil || cc.Telegram.Token == "" || cc.Telegram.Chat == "" {
			return fmt.Errorf("publisher.client.telegram: token and chat are required")
		}
		return nil
	case "webhook":
		if cc.Webhook == nil || cc.Webhook.URL == "" {
			return fmt.Errorf("publisher.client.webhook: url is required")
		}
		return nil
	default:
		return fmt.Errorf("publisher.client.kind: unknown kind %q", cc.Kind)
	}
}
