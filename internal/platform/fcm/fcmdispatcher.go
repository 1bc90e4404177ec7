// Package fcm delivers android variant pushes through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// maxMulticastTokens is the FCM limit for one SendEachForMulticast call.
const maxMulticastTokens = 500

// MessagingClient is the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends msg to the tokens in batches of up to 500.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, msg *push.PushMessage) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	var invalidTokens []string
	success, retryable := 0, 0
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]

		br, err := d.client.SendEachForMulticast(ctx, buildMulticast(batch, msg))
		if err != nil {
			if messaging.IsInvalidArgument(err) {
				// retrying the same payload cannot succeed
				d.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "tokens", len(batch), "err", err)
				continue
			}
			return "", nil, fmt.Errorf("fcm transport failed: %w", err)
		}

		success += br.SuccessCount
		if br.FailureCount == 0 {
			continue
		}
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				invalidTokens = append(invalidTokens, batch[idx])
				continue
			}
			retryable++
		}
	}

	if retryable > 0 {
		return "", invalidTokens, fmt.Errorf("fcm batch had %d retryable errors", retryable)
	}
	return fmt.Sprintf("success:%d invalid:%d", success, len(invalidTokens)), invalidTokens, nil
}

func buildMulticast(tokens []string, msg *push.PushMessage) *messaging.MulticastMessage {
	data := make(map[string]string, len(msg.Message.Data)+2)
	for k, v := range msg.Message.Data {
		data[k] = v
	}
	data["alert"] = msg.Message.Alert
	if msg.Message.Badge > 0 {
		data["badge"] = strconv.Itoa(msg.Message.Badge)
	}

	m := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Body: msg.Message.Alert,
		},
	}
	if msg.Message.Sound != "" {
		m.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{Sound: msg.Message.Sound},
		}
	}
	return m
}
