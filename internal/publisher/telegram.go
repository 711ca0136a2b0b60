package publisher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"postpilot/internal/config"
	logx "postpilot/pkg/logx"
)

const defaultClientTimeout = 30 * time.Second

// Telegram posts to a channel or chat through the Bot API.
type Telegram struct {
	bot  *tele.Bot
	chat tele.Recipient
	log  logx.Logger
}

// chatTarget passes the configured chat through verbatim; the Bot API accepts
// both numeric ids and "@channelname".
type chatTarget string

func (c chatTarget) Recipient() string { return string(c) }

func NewTelegram(cfg config.TelegramClientConfig, timeout time.Duration, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: telegram token is empty", ErrUnavailable)
	}
	if strings.TrimSpace(cfg.Chat) == "" {
		return nil, fmt.Errorf("%w: telegram chat is empty", ErrUnavailable)
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Telegram{bot: b, chat: chatTarget(strings.TrimSpace(cfg.Chat)), log: log}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Publish sends the content as a single text message. The attempt is bounded
// by the HTTP client timeout; ctx cancellation between attempts is handled by
// the loop, not here.
func (t *Telegram) Publish(ctx context.Context, p Post) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	msg, err := t.bot.Send(t.chat, p.Content, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return Receipt{}, fmt.Errorf("telegram send: %w", err)
	}
	if !t.log.IsZero() {
		t.log.Debug("telegram message sent",
			logx.String("entry", p.EntryID),
			logx.Int("message_id", msg.ID),
		)
	}
	return Receipt{PlatformID: strconv.Itoa(msg.ID), Response: "ok"}, nil
}
