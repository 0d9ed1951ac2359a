// Package notify delivers accepted items to Telegram and records the dedupe
// and push outcomes.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

type TelegramConfig struct {
	Token         string
	ChatID        int64
	RatePerSecond float64
}

// Telegram sends formatted messages to one chat. Sends are rate limited so a
// large batch cannot trip the Bot API flood control.
type Telegram struct {
	bot     *tele.Bot
	chat    tele.Recipient
	limiter *rate.Limiter
	summ    Summarizer
	loc     *time.Location
	log     logx.Logger
}

func NewTelegram(cfg TelegramConfig, summ Summarizer, loc *time.Location, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}

	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}

	return &Telegram{
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		summ:    summ,
		loc:     loc,
		log:     log,
	}, nil
}

func (t *Telegram) sendText(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// Send delivers one item as its own message.
func (t *Telegram) Send(ctx context.Context, item domain.Item) error {
	return t.sendText(ctx, formatItem(ctx, t.summ, item, t.loc))
}

// SendBatch delivers the items as a digest. It returns an error if any chunk
// failed; chunks after a failure are still attempted.
func (t *Telegram) SendBatch(ctx context.Context, items []domain.Item) error {
	var firstErr error
	for _, chunk := range formatBatch(items, t.loc) {
		if err := t.sendText(ctx, chunk); err != nil {
			t.log.Warn("batch chunk send failed", logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
