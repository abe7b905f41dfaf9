// Package notify delivers trading events to Telegram. Delivery is best
// effort; a failure here never touches trading state.
package notify

import (
	"context"
	"fmt"
	"time"

	"bitget-trade-bot-go/internal/config"
	"bitget-trade-bot-go/internal/models"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram posts formatted event messages to a chat via the Bot API.
// Implements the engine's reporter sink contract.
type Telegram struct {
	client *resty.Client
	chatID string
	parse  string
	logger *zap.Logger
}

// NewTelegram creates a Telegram sink from configuration.
func NewTelegram(cfg config.Telegram, logger *zap.Logger) *Telegram {
	timeout := time.Duration(cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", telegramAPIBase, cfg.Token)).
		SetTimeout(timeout)
	return &Telegram{
		client: client,
		chatID: cfg.ChatID,
		parse:  cfg.Parse,
		logger: logger.Named("telegram"),
	}
}

// Deliver sends one event. Low-signal kinds (submit attempts, partial fills)
// are skipped to keep the chat readable.
func (t *Telegram) Deliver(ctx context.Context, e models.Event) error {
	text := formatEvent(e)
	if text == "" {
		return nil
	}

	req := t.client.R().
		SetContext(ctx).
		SetQueryParam("chat_id", t.chatID).
		SetQueryParam("text", text)
	if t.parse != "" {
		req.SetQueryParam("parse_mode", t.parse)
	}

	resp, err := req.Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram send failed with status %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func formatEvent(e models.Event) string {
	switch e.Kind {
	case models.EventOrderFilled:
		return fmt.Sprintf("✅ %s %s %s filled: %s @ %s",
			e.Symbol, e.Side, e.OrderID, e.Quantity.String(), e.Price.String())
	case models.EventOrderRejected:
		return fmt.Sprintf("⚠️ %s %s order rejected: %s", e.Symbol, e.Side, e.Message)
	case models.EventOrderCancelled:
		return fmt.Sprintf("ℹ️ %s %s order cancelled: %s", e.Symbol, e.Side, e.Message)
	case models.EventOrderExpired:
		return fmt.Sprintf("ℹ️ %s %s order expired", e.Symbol, e.Side)
	case models.EventRiskBreach:
		return fmt.Sprintf("🚨 %s risk breach: %s", e.Symbol, e.Message)
	case models.EventReconcileDrift:
		return fmt.Sprintf("🚨 %s reconciliation drift: %s", e.Symbol, e.Message)
	case models.EventStrategyError:
		return fmt.Sprintf("⚠️ %s strategy %s failed: %s", e.Symbol, e.Message, e.Err)
	case models.EventFeedInterrupted:
		return fmt.Sprintf("⚠️ %s market data interrupted", e.Symbol)
	}
	return ""
}
