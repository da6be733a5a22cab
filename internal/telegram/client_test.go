package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/trendmonster/internal/models"
	"github.com/rewired-gh/trendmonster/internal/monitor"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The chat ID is parsed before the bot token is checked against the API.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

type fakeBackend struct {
	latest   *monitor.Evaluation
	holdings models.Holdings
}

func (b *fakeBackend) Latest() *monitor.Evaluation { return b.latest }
func (b *fakeBackend) Holdings() models.Holdings   { return b.holdings }
func (b *fakeBackend) SetHoldings(h models.Holdings) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if h.SPY == 0.42 {
		return errors.New("disk full")
	}
	b.holdings = h
	return nil
}

func TestReply(t *testing.T) {
	backend := &fakeBackend{holdings: models.Holdings{SPY: 0.5, TQQQ: 0.5}}
	c := &Client{backend: backend}

	if got := c.reply("ping", ""); got != "Pong" {
		t.Errorf("ping = %q", got)
	}
	if got := c.reply("unknown", ""); got != "" {
		t.Errorf("unknown command should be ignored, got %q", got)
	}
	if got := c.reply("signal", ""); !strings.Contains(got, "No evaluation yet") {
		t.Errorf("signal before first cycle = %q", got)
	}
	if got := c.reply("holdings", ""); got != "SPY: 50.0% | TQQQ: 50.0% | Cash: 0.0%" {
		t.Errorf("holdings = %q", got)
	}
}

func TestReply_SetHoldings(t *testing.T) {
	tests := []struct {
		args     string
		wantSPY  float64
		wantTQQQ float64
		prefix   string
	}{
		{"0.6 0.4", 0.6, 0.4, "Recorded."},
		{"30% 70%", 0.3, 0.7, "Recorded."},
		{"0.6", 0.5, 0.5, "Rejected: expected 2 values"},
		{"abc 0.4", 0.5, 0.5, "Rejected: invalid weight"},
		{"0.8 0.8", 0.5, 0.5, "Rejected"},
		{"-0.1 0.4", 0.5, 0.5, "Rejected"},
		{"0.42 0.1", 0.5, 0.5, "Rejected: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			backend := &fakeBackend{holdings: models.Holdings{SPY: 0.5, TQQQ: 0.5}}
			c := &Client{backend: backend}

			got := c.reply("holdings", tt.args)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("reply(%q) = %q, want prefix %q", tt.args, got, tt.prefix)
			}
			if backend.holdings.SPY != tt.wantSPY || backend.holdings.TQQQ != tt.wantTQQQ {
				t.Errorf("holdings = %+v, want %v/%v", backend.holdings, tt.wantSPY, tt.wantTQQQ)
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	detected := time.Date(2025, 1, 10, 16, 20, 0, 0, time.UTC)
	msg := formatMessage([]models.Alert{
		{Kind: models.AlertRebalance, BarKey: "2025-01-10/2025-01-03", Title: "Rebalance to SPY: 30% | TQQQ: 70% | Cash: 0%",
			Message: "Execute at next market open: SELL 20.0% SPY | BUY 20.0% TQQQ", DetectedAt: detected},
		{Kind: models.AlertTrendChange, BarKey: "2025-01-03", Title: "Weekly trend turned UP", DetectedAt: detected},
	})

	for _, want := range []string{
		"📅 Detected: 2025\\-01\\-10 16:20:00",
		"🔄 *Rebalance to SPY: 30% \\| TQQQ: 70% \\| Cash: 0%*",
		"SELL 20\\.0% SPY",
		"📈 *Weekly trend turned UP*",
		"_bar 2025\\-01\\-03_",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
