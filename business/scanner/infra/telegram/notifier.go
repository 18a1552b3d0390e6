// Package telegram pushes emergency-stop transitions to a Telegram chat.
//
// Messages use MarkdownV2. Delivery is retried a few times with a linear
// backoff; a message that still fails is reported to the caller, which
// logs it and carries on.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

// Config configures the notifier. APIEndpoint defaults to the public Bot
// API and takes the same two %s verbs (token, method).
type Config struct {
	Token       string
	ChatID      int64
	APIEndpoint string
	MaxRetries  int
	RetryDelay  time.Duration
}

// Notifier implements the risk engine's Notifier.
type Notifier struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	maxRetries int
	retryDelay time.Duration
	logger     logger.LoggerInterface
	now        func() time.Time
}

// New authenticates against the Bot API.
func New(cfg Config, log logger.LoggerInterface) (*Notifier, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, apperror.New(apperror.CodeNotifyFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to create telegram bot"))
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Notifier{
		bot:        bot,
		chatID:     cfg.ChatID,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     log,
		now:        time.Now,
	}, nil
}

func (n *Notifier) NotifyEmergency(ctx context.Context, e risk.Emergency) error {
	return n.send(ctx, formatEmergency(e, n.now()))
}

func (n *Notifier) NotifyResumed(ctx context.Context) error {
	return n.send(ctx, formatResumed(n.now()))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for attempt := 1; attempt <= n.maxRetries; attempt++ {
		_, err := n.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		n.logger.Debug(ctx, "telegram send failed", "attempt", attempt, "error", err)

		if attempt == n.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return apperror.New(apperror.CodeNotifyFailed,
				apperror.WithCause(ctx.Err()),
				apperror.WithContext("telegram send cancelled"))
		case <-time.After(n.retryDelay * time.Duration(attempt)):
		}
	}

	return apperror.New(apperror.CodeNotifyFailed,
		apperror.WithCause(lastErr),
		apperror.WithContext(fmt.Sprintf("telegram send failed after %d attempts", n.maxRetries)))
}

func formatEmergency(e risk.Emergency, at time.Time) string {
	var b strings.Builder
	b.WriteString("🚨 *Emergency stop engaged*\n\n")
	fmt.Fprintf(&b, "Severity: *%s*\n", escape(string(e.Severity)))
	for _, r := range e.Reasons {
		fmt.Fprintf(&b, "• %s\n", escape(r))
	}
	fmt.Fprintf(&b, "\n🕒 %s", escape(at.UTC().Format(time.DateTime)))
	return b.String()
}

func formatResumed(at time.Time) string {
	return fmt.Sprintf("✅ *Emergency stop cleared*\n\nExecution re\\-enabled\n\n🕒 %s",
		escape(at.UTC().Format(time.DateTime)))
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}
