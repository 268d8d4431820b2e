package notify

import (
	"context"
	"fmt"
)

// Discord limits, see the webhook embed documentation.
const (
	discordMaxTitle       = 256
	discordMaxDescription = 4096
)

// Embed side bar colours.
const (
	discordColorAlert = 0xE74C3C
	discordColorOK    = 0x2ECC71
)

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts alerts as a single embed to a channel webhook.
type DiscordSender struct {
	webhookURL string
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL}
}

// Send posts the alert. Title and message are cut to the embed limits.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	color := discordColorAlert
	if title == TitleSyncRecovered {
		color = discordColorOK
	}
	payload := discordPayload{
		Username: "stx20sync",
		Embeds: []discordEmbed{{
			Title:       truncate(title, discordMaxTitle),
			Description: truncate(message, discordMaxDescription),
			Color:       color,
		}},
	}
	if err := postJSON(ctx, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
