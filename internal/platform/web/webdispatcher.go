// Package web delivers web_push variant pushes with VAPID-signed Web Push.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// Config carries the VAPID identity of the server.
type Config struct {
	SubscriberEmail string
	PublicKey       string
	PrivateKey      string
	TTL             int
}

type Dispatcher struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}
	return &Dispatcher{
		cfg:        cfg,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch sends msg to each subscription. Tokens are JSON-encoded browser
// PushSubscription objects; tokens that do not decode, or whose endpoint
// answers 404/410, are returned as invalid.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, msg *push.PushMessage) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	payloadBytes, err := json.Marshal(map[string]any{
		"notification": map[string]any{
			"body":  msg.Message.Alert,
			"sound": msg.Message.Sound,
			"badge": msg.Message.Badge,
		},
		"data": msg.Message.Data,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var invalidTokens []string
	successCount, failureCount := 0, 0
	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			return "", invalidTokens, err
		}

		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(token), &sub); err != nil || sub.Endpoint == "" {
			d.logger.Warn("Undecodable web push subscription", "err", err)
			invalidTokens = append(invalidTokens, token)
			failureCount++
			continue
		}

		status, err := d.send(ctx, payloadBytes, &sub)
		if err != nil {
			// transport errors keep the subscription
			d.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
			failureCount++
			continue
		}

		switch status {
		case http.StatusCreated, http.StatusOK, http.StatusAccepted:
			successCount++
		case http.StatusGone, http.StatusNotFound:
			invalidTokens = append(invalidTokens, token)
			failureCount++
		default:
			d.logger.Warn("WebPush rejected", "status", status, "endpoint", sub.Endpoint)
			failureCount++
		}
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidTokens), failureCount)
	return receipt, invalidTokens, nil
}

func (d *Dispatcher) send(ctx context.Context, payload []byte, sub *webpush.Subscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		Subscriber:      d.cfg.SubscriberEmail,
		VAPIDPublicKey:  d.cfg.PublicKey,
		VAPIDPrivateKey: d.cfg.PrivateKey,
		TTL:             d.cfg.TTL,
		HTTPClient:      d.httpClient,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
