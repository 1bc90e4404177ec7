package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-unifiedpush-service/internal/fanout"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/telemetry"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// NewDeliveryHandler returns the fan-out consumer for one variant type. For
// each variant in an event it loads the registered device tokens, hands them
// to the channel dispatcher and removes the tokens the channel reports dead.
func NewDeliveryHandler(
	variantType push.VariantType,
	dispatcher push.TokenDispatcher,
	installations push.InstallationStore,
	logger *slog.Logger,
) fanout.Handler {
	logger = logger.With("component", "DeliveryHandler", "variant_type", string(variantType))

	return fanout.HandlerFunc(func(ctx context.Context, event *push.MessageWithVariants) error {
		evLogger := logger
		if event.Info != nil {
			evLogger = logger.With("push_message_id", event.Info.ID)
		}

		var errs []error
		for _, variant := range event.Variants {
			if err := deliverToVariant(ctx, variant, event.Message, dispatcher, installations, evLogger); err != nil {
				telemetry.Delivery(string(variantType), telemetry.ResultError)
				errs = append(errs, err)
				continue
			}
			telemetry.Delivery(string(variantType), telemetry.ResultOK)
		}
		return errors.Join(errs...)
	})
}

func deliverToVariant(
	ctx context.Context,
	variant push.Variant,
	msg *push.PushMessage,
	dispatcher push.TokenDispatcher,
	installations push.InstallationStore,
	logger *slog.Logger,
) error {
	varLogger := logger.With("variant_id", variant.VariantID)

	tokens, err := installations.Tokens(ctx, variant.VariantID)
	if err != nil {
		varLogger.Error("Failed to fetch device tokens", "err", err)
		return fmt.Errorf("failed to fetch tokens for variant %s: %w", variant.VariantID, err)
	}
	if len(tokens) == 0 {
		varLogger.Debug("No installations registered for variant")
		return nil
	}

	receipt, invalidTokens, err := dispatcher.Dispatch(ctx, tokens, msg)

	// dead tokens are removed even when the batch failed
	if len(invalidTokens) > 0 {
		varLogger.Info("Cleaning up invalid device tokens", "count", len(invalidTokens))
		for _, t := range invalidTokens {
			if err := installations.Unregister(ctx, variant.VariantID, t); err != nil {
				varLogger.Warn("Failed to delete device token", "err", err)
			}
		}
	}

	if err != nil {
		varLogger.Error("Dispatch failed", "err", err)
		return fmt.Errorf("dispatch to variant %s failed: %w", variant.VariantID, err)
	}
	varLogger.Info("Dispatched", "receipt", receipt, "tokens", len(tokens))
	return nil
}
