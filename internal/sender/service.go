package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-unifiedpush-service/internal/telemetry"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// Service is the sender dispatch: record, resolve, classify, emit.
type Service struct {
	variants push.VariantFinder
	metrics  push.MetricsRecorder
	emitter  push.Emitter
	logger   *slog.Logger
}

func NewService(variants push.VariantFinder, metrics push.MetricsRecorder, emitter push.Emitter, logger *slog.Logger) *Service {
	return &Service{
		variants: variants,
		metrics:  metrics,
		emitter:  emitter,
		logger:   logger.With("component", "SenderService"),
	}
}

// Send records the submission and emits one MessageWithVariants per channel
// type present among the target variants.
//
// The metrics record is written once, before anything else. Any failure up to
// and including variant resolution aborts the call before the first emission.
// Emission failures are logged and never returned: delivery is owned by the
// consumers of each channel.
func (s *Service) Send(ctx context.Context, app *push.PushApplication, msg *push.PushMessage) (*push.PushMessageInformation, error) {
	if app == nil || msg == nil {
		telemetry.SendRequest(telemetry.ResultError)
		return nil, errors.New("send requires an application and a message")
	}
	sendLogger := s.logger.With("application_id", app.ApplicationID)
	stripped := msg.StrippedJSON()
	sendLogger.Info("Processing send request", "payload", stripped)

	// 1. Correlation record
	info, err := s.metrics.StoreNewRequest(ctx, app.ApplicationID, stripped, msg.IPAddress, msg.ClientIdentifier)
	if err != nil {
		sendLogger.Error("Failed to record push message", "err", err)
		telemetry.SendRequest(telemetry.ResultError)
		return nil, fmt.Errorf("failed to record push message for application %s: %w", app.ApplicationID, err)
	}
	sendLogger = sendLogger.With("push_message_id", info.ID)

	// 2. Target variants
	targets, err := s.resolveVariants(ctx, app, msg.Criteria, sendLogger)
	if err != nil {
		sendLogger.Error("Failed to resolve target variants", "err", err)
		telemetry.SendRequest(telemetry.ResultError)
		return nil, err
	}

	// 3. Classify
	groups := GroupByType(targets)
	if len(groups) == 0 {
		sendLogger.Info("No target variants resolved; nothing to fan out.")
		telemetry.SendRequest(telemetry.ResultOK)
		return info, nil
	}

	// 4. Fan-out
	for _, variantType := range groups.Types() {
		event := &push.MessageWithVariants{
			Info:     info,
			Message:  msg,
			Type:     variantType,
			Variants: groups[variantType],
		}
		if err := s.emitter.Emit(ctx, event); err != nil {
			sendLogger.Warn("Failed to emit fan-out event", "type", variantType, "variants", len(event.Variants), "err", err)
			telemetry.FanoutEvent(string(variantType), telemetry.ResultDropped)
			continue
		}
		telemetry.FanoutEvent(string(variantType), telemetry.ResultOK)
	}

	sendLogger.Debug("Fan-out complete", "types", len(groups))
	telemetry.SendRequest(telemetry.ResultOK)
	return info, nil
}

// resolveVariants looks up explicitly named variant IDs, silently skipping
// unknown ones, or falls back to every variant of the application.
func (s *Service) resolveVariants(ctx context.Context, app *push.PushApplication, criteria push.Criteria, logger *slog.Logger) ([]push.Variant, error) {
	if criteria.Variants == nil {
		return app.Variants, nil
	}

	resolved := make([]push.Variant, 0, len(criteria.Variants))
	seen := make(map[string]bool, len(criteria.Variants))
	for _, variantID := range criteria.Variants {
		if seen[variantID] {
			continue
		}
		seen[variantID] = true

		variant, err := s.variants.FindByVariantID(ctx, variantID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up variant %s: %w", variantID, err)
		}
		if variant == nil {
			logger.Debug("Skipping unknown variant", "variant_id", variantID)
			continue
		}
		if variant.ApplicationID != app.ApplicationID {
			logger.Warn("Skipping variant owned by another application", "variant_id", variantID)
			continue
		}
		resolved = append(resolved, *variant)
	}
	return resolved, nil
}
