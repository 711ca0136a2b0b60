// Package publisher drains due queue entries into an external publish client,
// applying retry accounting and backoff.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"postpilot/internal/config"
	logx "postpilot/pkg/logx"
)

// ErrUnavailable marks a client that is not configured or cannot reach its
// platform. The loop treats it like any other publish failure: the attempt
// counts, the entry backs off, the daemon keeps going.
var ErrUnavailable = errors.New("publish client unavailable")

// Post is one publish attempt's input.
type Post struct {
	EntryID     string
	Content     string
	ContentType string

	// IdempotencyKey is the candidate's content hash. Clients that support
	// dedup pass it along so a crash between "published" and "persisted"
	// cannot produce a second platform post.
	IdempotencyKey string
}

// Receipt is what a successful publish returns.
type Receipt struct {
	PlatformID string
	Response   string
}

// Client publishes a single post per call, synchronously.
type Client interface {
	Name() string
	Publish(ctx context.Context, p Post) (Receipt, error)
}

// NewClient builds the configured publish client.
func NewClient(cfg config.ClientConfig, log logx.Logger) (Client, error) {
	timeout, err := config.DurationOrDefault("publisher.client.timeout", cfg.Timeout, defaultClientTimeout)
	if err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case "", "dryrun":
		return NewDryRun(log), nil
	case "telegram":
		if cfg.Telegram == nil {
			return nil, fmt.Errorf("%w: telegram client not configured", ErrUnavailable)
		}
		return NewTelegram(*cfg.Telegram, timeout, log)
	case "webhook":
		if cfg.Webhook == nil {
			return nil, fmt.Errorf("%w: webhook client not configured", ErrUnavailable)
		}
		return NewWebhook(*cfg.Webhook, timeout, log)
	default:
		return nil, fmt.Errorf("unknown publish client kind %q", cfg.Kind)
	}
}
