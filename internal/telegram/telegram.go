// Package telegram wraps the Telegram Bot API for FlowSync channel
// integrations.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotClient defines the Telegram operations used by the integration
// endpoints.
type BotClient interface {
	// GetMe verifies the bot token and returns the bot's username.
	GetMe(ctx context.Context) (string, error)
	// SendMessage sends text to a chat. The chat ID is the decimal string
	// form Telegram reports in its payloads.
	SendMessage(ctx context.Context, chatID string, text string) error
}

// Factory creates a BotClient for a bot token. Handlers hold a Factory so
// tests can substitute mocks.
type Factory func(token string) (BotClient, error)

// Client talks to the Telegram Bot API.
type Client struct {
	bot *tgbotapi.BotAPI
}

// NewClient creates a client. The token is validated against the API.
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		slog.Error("Telegram bot authentication failed", "error", err)
		return nil, fmt.Errorf("failed to authenticate telegram bot: %w", err)
	}
	slog.Debug("Telegram bot authenticated", "username", bot.Self.UserName)
	return &Client{bot: bot}, nil
}

// GetMe returns the authenticated bot's username.
func (c *Client) GetMe(ctx context.Context) (string, error) {
	me, err := c.bot.GetMe()
	if err != nil {
		slog.Error("Telegram GetMe failed", "error", err)
		return "", fmt.Errorf("failed to get bot info: %w", err)
	}
	return me.UserName, nil
}

// SendMessage sends text to the given chat.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", chatID, err)
	}
	msg := tgbotapi.NewMessage(id, text)
	if _, err := c.bot.Send(msg); err != nil {
		slog.Error("Telegram SendMessage failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	slog.Debug("Telegram message sent", "chatID", chatID)
	return nil
}

// MockClient records calls for tests.
type MockClient struct {
	Username     string
	GetMeErr     error
	SendErr      error
	SentMessages []SentMessage
}

// SentMessage is one recorded outbound Telegram message.
type SentMessage struct {
	ChatID string
	Text   string
}

// GetMe returns the configured username or error.
func (m *MockClient) GetMe(ctx context.Context) (string, error) {
	if m.GetMeErr != nil {
		return "", m.GetMeErr
	}
	return m.Username, nil
}

// SendMessage records the message instead of delivering it.
func (m *MockClient) SendMessage(ctx context.Context, chatID string, text string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentMessages = append(m.SentMessages, SentMessage{ChatID: chatID, Text: text})
	return nil
}
