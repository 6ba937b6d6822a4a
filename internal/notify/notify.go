package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"smart-diet-planner/internal/shared"
)

// ContextBloatTokens is the prompt size above which an admin alert is raised.
const ContextBloatTokens = 4000

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Noop drops every alert.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, string) error { return nil }

// TelegramNotifier sends alerts to the admin chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authorizes the bot token against the Telegram API.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	return newTelegramNotifier(token, tgbotapi.APIEndpoint, chatID, &http.Client{})
}

func newTelegramNotifier(token, endpoint string, chatID int64, client *http.Client) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	slog.Info("telegram alerts enabled", slog.String("bot", api.Self.UserName))
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

// Notify sends text as a Markdown message to the admin chat.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send admin alert: %w", err)
	}
	return nil
}

// New returns a TelegramNotifier when both token and chat id are set and
// Noop otherwise. A bot that fails to authorize also falls back to Noop.
func New(token string, chatID int64) Notifier {
	if token == "" || chatID == 0 {
		return Noop{}
	}
	n, err := NewTelegramNotifier(token, chatID)
	if err != nil {
		slog.Error("admin alerts disabled", slog.String("error", err.Error()))
		return Noop{}
	}
	return n
}

// GenerationFailedAlert formats the alert for a plan request that ended in failure.
func GenerationFailedAlert(userID string, err error) string {
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	return fmt.Sprintf("❌ *Diet generation failed*\nUser: %s\n```\n%s\n```", escape(userID), safeErr)
}

// ContextBloatAlert formats the alert for an oversized prompt, or returns ""
// when meta is under ContextBloatTokens.
func ContextBloatAlert(meta shared.AgentMeta) string {
	if meta.Usage.PromptTokens <= ContextBloatTokens {
		return ""
	}
	return fmt.Sprintf("⚠️ *Context Bloat Alert*\nAgent: %s\nModel: %s\nPrompt Tokens: %d",
		escape(meta.AgentName), escape(meta.Usage.Model), meta.Usage.PromptTokens)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
