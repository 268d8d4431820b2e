package notify

import (
	"context"
	"fmt"
	"html"
)

const (
	telegramAPI     = "https://api.telegram.org"
	telegramMaxText = 4096
)

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// TelegramSender posts alerts to a chat through the Telegram Bot API.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
}

// NewTelegramSender creates a TelegramSender for a bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{apiBase: telegramAPI, token: token, chatID: chatID}
}

// Send calls sendMessage in HTML mode. Title and message are escaped since
// error texts routinely contain angle brackets and underscores.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := "<b>" + html.EscapeString(title) + "</b>"
	if message != "" {
		text += "\n" + html.EscapeString(message)
	}
	msg := telegramMessage{
		ChatID:                t.chatID,
		Text:                  truncate(text, telegramMaxText),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	if err := postJSON(ctx, url, msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
