// Package telegram delivers quote-jump alerts and settlement reports via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/quotejump/internal/models"
)

// StartupInfo is echoed in the startup banner.
type StartupInfo struct {
	BandMin        float64
	BandMax        float64
	MaxPrice       float64
	SettleDelay    time.Duration
	SampleInterval time.Duration
	Samples        int
	MaxOddsCalls   int
	Strategies     []string
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
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
		maxRetries = 2
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
func (c *Client) ListenForCommands(ctx context.Context, stats func() models.Summary) {
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
					c.handleCommand(update.Message, stats)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, stats func() models.Summary) {
	var reply tgbotapi.MessageConfig
	switch msg.Command() {
	case "ping":
		reply = tgbotapi.NewMessage(msg.Chat.ID, "Pong")
	case "stats":
		reply = tgbotapi.NewMessage(msg.Chat.ID, formatSummary(stats()))
		reply.ParseMode = "MarkdownV2"
	default:
		return
	}
	c.bot.Send(reply) //nolint:errcheck
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
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

// SendAlert delivers a fired signal.
func (c *Client) SendAlert(alert models.Alert) error {
	return c.sendMarkdownV2(formatAlert(alert))
}

// SendSettlement reports a signal's won/lost outcome.
func (c *Client) SendSettlement(signal models.Signal) error {
	return c.sendMarkdownV2(formatSettlement(signal))
}

// SendStartup announces the active thresholds.
func (c *Client) SendStartup(info StartupInfo) error {
	return c.sendMarkdownV2(formatStartup(info))
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

// SendCooldown reports that the feed rate limit was hit.
func (c *Client) SendCooldown(until time.Time) error {
	text := fmt.Sprintf("⏸ *Feed rate limit reached*\nPaused until %s",
		escapeMarkdownV2(until.Format("15:04:05")))
	return c.sendMarkdownV2(text)
}

func formatAlert(a models.Alert) string {
	var b strings.Builder

	title := "🚨 *Quote jump*"
	if a.FollowUp {
		title = "🔁 *Follow\\-up signal*"
	}
	b.WriteString(title + "\n\n")

	fmt.Fprintf(&b, "⚽ *%s \\- %s*\n", escapeMarkdownV2(a.HomeTeam), escapeMarkdownV2(a.AwayTeam))
	if a.League != "" {
		fmt.Fprintf(&b, "🏆 %s\n", escapeMarkdownV2(a.League))
	}
	fmt.Fprintf(&b, "📊 %s at %d' \\(goal %d', %s\\)\n",
		escapeMarkdownV2(a.Score.String()), a.Minute, a.GoalMinute, sideLabel(a.Side))

	if a.Baseline > 0 {
		fmt.Fprintf(&b, "📈 %s → *%s* \\(%s, %s\\)\n",
			escapeMarkdownV2(fmt.Sprintf("%.2f", a.Baseline)),
			escapeMarkdownV2(fmt.Sprintf("%.2f", a.Price)),
			escapeMarkdownV2(fmt.Sprintf("%+.2f", a.Delta)),
			escapeMarkdownV2(fmt.Sprintf("%+.1f%%", a.RisePct)))
	}

	fmt.Fprintf(&b, "🎯 *%s*", escapeMarkdownV2(a.Target.String()))
	if a.Stake > 0 {
		fmt.Fprintf(&b, " · stake %s", escapeMarkdownV2(fmt.Sprintf("%.0f", a.Stake)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "🏷 %s", escapeMarkdownV2(a.Strategy))

	return b.String()
}

func formatSettlement(s models.Signal) string {
	icon := "⏳"
	switch s.Outcome {
	case models.OutcomeWon:
		icon = "✅"
	case models.OutcomeLost:
		icon = "❌"
	}
	score := "?"
	if s.SettledScore != nil {
		score = s.SettledScore.String()
	}
	return fmt.Sprintf("%s *%s* %s \\- %s\n🎯 %s at %s \\(%s\\)",
		icon,
		escapeMarkdownV2(strings.ToUpper(string(s.Outcome))),
		escapeMarkdownV2(s.HomeTeam),
		escapeMarkdownV2(s.AwayTeam),
		escapeMarkdownV2(s.Target.String()),
		escapeMarkdownV2(score),
		escapeMarkdownV2(s.Strategy))
}

func formatSummary(s models.Summary) string {
	return fmt.Sprintf("📊 *Signals*\nFired: %d\nWon: %d\nLost: %d\nPending: %d\nHit rate: %s",
		s.Fired, s.Won, s.Lost, s.Pending,
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", s.HitRate()*100)))
}

func formatStartup(info StartupInfo) string {
	var b strings.Builder
	b.WriteString("🤖 *Quote jump monitor started*\n\n")
	b.WriteString("✅ 0\\-0 → 1\\-0 / 0\\-1\n")
	fmt.Fprintf(&b, "✅ Baseline band %s\n",
		escapeMarkdownV2(fmt.Sprintf("%.2f-%.2f", info.BandMin, info.BandMax)))
	fmt.Fprintf(&b, "✅ Price ceiling %s\n", escapeMarkdownV2(fmt.Sprintf("%.2f", info.MaxPrice)))
	fmt.Fprintf(&b, "⏱ Wait %s after goal, %d samples every %s\n",
		escapeMarkdownV2(info.SettleDelay.String()), info.Samples, escapeMarkdownV2(info.SampleInterval.String()))
	fmt.Fprintf(&b, "📡 Max %d odds calls per cycle\n", info.MaxOddsCalls)
	if len(info.Strategies) > 0 {
		fmt.Fprintf(&b, "🏷 %s\n", escapeMarkdownV2(strings.Join(info.Strategies, ", ")))
	}
	return b.String()
}

func sideLabel(s models.Side) string {
	if s == models.SideHome {
		return "home scored"
	}
	return "away scored"
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
