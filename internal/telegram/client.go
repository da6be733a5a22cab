// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/trendmonster/internal/models"
	"github.com/rewired-gh/trendmonster/internal/monitor"
	"github.com/rewired-gh/trendmonster/internal/report"
)

// Backend answers bot commands. *monitor.Monitor satisfies it.
type Backend interface {
	Latest() *monitor.Evaluation
	Holdings() models.Holdings
	SetHoldings(h models.Holdings) error
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	backend        Backend
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, backend Backend) {
	c.backend = backend

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	// Only the configured chat may read or change holdings.
	if msg.Chat.ID != c.chatID {
		return
	}
	text := c.reply(msg.Command(), msg.CommandArguments())
	if text == "" {
		return
	}
	c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)) //nolint:errcheck
}

const helpText = `/signal - latest evaluation
/holdings - current allocation
/holdings <spy> <tqqq> - record allocation, e.g. /holdings 0.6 0.4 or /holdings 60% 40%
/ping - liveness check`

// reply builds the plain-text answer to a command.
func (c *Client) reply(command, args string) string {
	switch command {
	case "ping":
		return "Pong"
	case "help", "start":
		return helpText
	case "signal":
		return report.Text(report.Rows(c.backend.Latest()))
	case "holdings":
		if strings.TrimSpace(args) == "" {
			return formatHoldings(c.backend.Holdings())
		}
		h, err := parseHoldings(args)
		if err != nil {
			return "Rejected: " + err.Error() + "\nUsage: /holdings <spy> <tqqq>"
		}
		if err := c.backend.SetHoldings(h); err != nil {
			return "Rejected: " + err.Error()
		}
		return "Recorded. " + formatHoldings(c.backend.Holdings())
	}
	return ""
}

func formatHoldings(h models.Holdings) string {
	return fmt.Sprintf("SPY: %.1f%% | TQQQ: %.1f%% | Cash: %.1f%%", h.SPY*100, h.TQQQ*100, h.Cash()*100)
}

func parseHoldings(args string) (models.Holdings, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return models.Holdings{}, fmt.Errorf("expected 2 values, got %d", len(fields))
	}
	return models.ParseHoldings(fields[0], fields[1])
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send delivers alerts as a single message.
func (c *Client) Send(alerts []models.Alert) error {
	return c.sendMarkdownV2(formatMessage(alerts))
}

var kindEmoji = map[models.AlertKind]string{
	models.AlertRebalance:      "🔄",
	models.AlertTrendChange:    "📈",
	models.AlertVIXLevelChange: "🌡",
}

// formatMessage formats alerts into a Telegram MarkdownV2 message.
func formatMessage(alerts []models.Alert) string {
	var b strings.Builder
	b.WriteString("🚨 *TrendMonster*\n\n")

	if len(alerts) > 0 {
		dateStr := escapeMarkdownV2(alerts[0].DetectedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "📅 Detected: %s\n\n", dateStr)
	}

	for _, a := range alerts {
		fmt.Fprintf(&b, "%s *%s*\n", kindEmoji[a.Kind], escapeMarkdownV2(a.Title))
		if a.Message != "" {
			fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(a.Message))
		}
		fmt.Fprintf(&b, "_bar %s_\n\n", escapeMarkdownV2(a.BarKey))
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
