// Package telegram provides a client for sending run reports via Telegram Bot API.
// It formats the pipeline summary and the largest odds movements into a
// MarkdownV2 message and handles delivery with retry logic.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polyscribe/internal/models"
)

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	return NewClientWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, maxRetries, retryDelayBase)
}

// NewClientWithEndpoint creates a client against a custom Bot API endpoint,
// formatted like tgbotapi.APIEndpoint.
func NewClientWithEndpoint(botToken, chatID, endpoint string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, endpoint)
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

// SendReport sends the run summary
func (c *Client) SendReport(report *models.Report) error {
	msg := tgbotapi.NewMessage(c.chatID, formatReport(report))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	// Send with retry
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatReport formats a run report into a Telegram message
func formatReport(r *models.Report) string {
	var b strings.Builder

	headline := "✅ *Polyscribe run completed*"
	if !r.Succeeded() {
		headline = "⚠️ *Polyscribe run finished with failures*"
	}
	b.WriteString(headline + "\n")
	fmt.Fprintf(&b, "📅 %s · ⏱ %s\n\n",
		escapeMarkdownV2(r.StartedAt.Format("2006-01-02 15:04:05")),
		escapeMarkdownV2(formatDuration(r.Duration)))

	for _, s := range r.Stages {
		mark := "✅"
		if !s.Success {
			mark = "❌"
		}
		line := fmt.Sprintf("Stage %d %s", s.Stage, s.Name)
		if s.Detail != "" {
			line += ": " + s.Detail
		}
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Fprintf(&b, "%s %s\n", mark, escapeMarkdownV2(line))
	}

	if r.Groups+r.Standalone > 0 {
		fmt.Fprintf(&b, "\n📊 Markets: %d groups, %d standalone\n", r.Groups, r.Standalone)
	}

	if len(r.Artifacts) > 0 {
		var total int64
		for _, a := range r.Artifacts {
			total += a.Bytes
		}
		fmt.Fprintf(&b, "💾 %s in %d files\n",
			escapeMarkdownV2(humanize.Bytes(uint64(total))), len(r.Artifacts))
	}

	if len(r.Changes) > 0 {
		header := "Top odds changes"
		if r.PreviousDate != "" {
			header += " since " + r.PreviousDate
		}
		fmt.Fprintf(&b, "\n🚨 *%s*\n\n", escapeMarkdownV2(header))
		for i, change := range r.Changes {
			b.WriteString(formatChange(i+1, change))
		}
	}

	return b.String()
}

// formatChange formats one odds change as a numbered entry
func formatChange(n int, change models.Change) string {
	// Add emoji for direction
	directionEmoji := "📈"
	if change.Direction == "decrease" {
		directionEmoji = "📉"
	}

	title := change.MarketTitle
	if change.GroupTitle != "" {
		title = change.GroupTitle + " / " + change.MarketTitle
	}

	// Format percentages with escaped periods
	magnitudeStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", change.Magnitude*100))
	oldPctStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", change.OldOdds*100))
	newPctStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", change.NewOdds*100))

	var b strings.Builder
	fmt.Fprintf(&b, "%d\\. %s\n", n, escapeMarkdownV2(title))
	fmt.Fprintf(&b, "   🎯 %s\n", escapeMarkdownV2(change.Option))
	fmt.Fprintf(&b, "   %s Change: *%s* \\(%s → %s\\)\n\n",
		directionEmoji, magnitudeStr, oldPctStr, newPctStr)
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! and the backslash itself
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if hours := int(d.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	if mins := int(d.Minutes()); mins >= 1 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
