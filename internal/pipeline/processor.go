package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// NewProcessor loads the application named by a queued request and hands the
// message to the sender. Unknown applications are acknowledged and dropped.
func NewProcessor(
	apps push.ApplicationFinder,
	sender push.Sender,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[PushRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *PushRequest) error {
		procLogger := logger.With(
			"application_id", request.ApplicationID,
			"pubsub_msg_id", original.ID,
		)

		app, err := apps.FindApplication(ctx, request.ApplicationID)
		if err != nil {
			procLogger.Error("Failed to load push application", "err", err)
			return err
		}
		if app == nil {
			procLogger.Warn("Unknown push application; dropping request")
			return nil
		}

		info, err := sender.Send(ctx, app, &request.Message)
		if err != nil {
			procLogger.Error("Send failed", "err", err)
			return err
		}
		procLogger.Info("Push request accepted", "push_message_id", info.ID)
		return nil
	}
}
