package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	botgolang "github.com/mail-ru-im/bot-golang"
	log "github.com/sirupsen/logrus"
)

type Provider interface {
	Send(ctx context.Context, message, recipient string) error
}

type ProviderConfig struct {
	Kind         string
	Channel      string
	WebhookURL   string
	WebhookToken string
	BotToken     string
	BotAPIURL    string
	BotChatID    string
	BotDebug     bool
}

// NewProvider builds the delivery provider. Unknown kinds fall back to logging.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case "", "stub", "log":
		return logProvider{channel: cfg.Channel}, nil
	case "noop":
		return noopProvider{}, nil
	case "fail":
		return failProvider{}, nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return logProvider{channel: cfg.Channel}, nil
		}
		return webhookProvider{channel: cfg.Channel, url: cfg.WebhookURL, token: cfg.WebhookToken, client: &http.Client{Timeout: 5 * time.Second}}, nil
	case "bot":
		return newBotProvider(cfg)
	default:
		if strings.HasPrefix(cfg.Kind, "http://") || strings.HasPrefix(cfg.Kind, "https://") {
			return webhookProvider{channel: cfg.Channel, url: cfg.Kind, client: &http.Client{Timeout: 5 * time.Second}}, nil
		}
		return logProvider{channel: cfg.Channel}, nil
	}
}

type logProvider struct {
	channel string
}

func (p logProvider) Send(ctx context.Context, message, recipient string) error {
	log.WithFields(log.Fields{
		"channel":   p.channel,
		"recipient": recipient,
	}).Info(message)
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, message, recipient string) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, message, recipient string) error {
	return errors.New("provider failure")
}

type webhookProvider struct {
	channel string
	url     string
	token   string
	client  *http.Client
}

func (p webhookProvider) Send(ctx context.Context, message, recipient string) error {
	payload := map[string]string{
		"channel":   p.channel,
		"recipient": recipient,
		"message":   message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected request: %s", resp.Status)
	}
	return nil
}

// botProvider posts every notification to one team chat, addressed to the staff member by name.
type botProvider struct {
	bot    *botgolang.Bot
	chatID string
}

func newBotProvider(cfg ProviderConfig) (Provider, error) {
	opts := []botgolang.BotOption{botgolang.BotDebug(cfg.BotDebug)}
	if cfg.BotAPIURL != "" {
		opts = append(opts, botgolang.BotApiURL(cfg.BotAPIURL))
	}
	bot, err := botgolang.NewBot(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}
	return botProvider{bot: bot, chatID: cfg.BotChatID}, nil
}

func (p botProvider) Send(ctx context.Context, message, recipient string) error {
	text := message
	if recipient != "" {
		text = fmt.Sprintf("%s: %s", recipient, message)
	}
	return p.bot.NewTextMessage(p.chatID, text).Send()
}
