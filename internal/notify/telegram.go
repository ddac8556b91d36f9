package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig holds the bot token and the chats to notify.
type TelegramConfig struct {
	Token       string
	ChatIDs     []int64
	APIEndpoint string // defaults to tgbotapi.APIEndpoint
	HTTPClient  *http.Client
}

// Telegram posts notices as HTML messages.
type Telegram struct {
	bot   *tgbotapi.BotAPI
	chats []int64
}

// NewTelegram authorises the bot. It fails when the token is rejected.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, fmt.Errorf("telegram: at least one chat id is required")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	return &Telegram{bot: bot, chats: cfg.ChatIDs}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Username returns the authorised bot's username.
func (t *Telegram) Username() string { return t.bot.Self.UserName }

func (t *Telegram) Notify(_ context.Context, n Notice) error {
	text := FormatTelegramHTML(n)
	for _, chatID := range t.chats {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram: send to %d: %w", chatID, err)
		}
	}
	return nil
}

// FormatTelegramHTML renders n in Telegram's HTML subset.
func FormatTelegramHTML(n Notice) string {
	var sb strings.Builder
	sb.WriteString("<b>" + escapeHTML(n.Title()) + "</b>\n")
	for _, f := range n.fields() {
		fmt.Fprintf(&sb, "<b>%s:</b> %s\n", escapeHTML(f[0]), escapeHTML(f[1]))
	}
	if n.Text != "" {
		sb.WriteString("\n" + escapeHTML(n.Text))
	}
	return strings.TrimRight(sb.String(), "\n")
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
