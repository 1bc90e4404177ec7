// Package pipeline ingests push requests from Pub/Sub and delivers fan-out
// events to the push channels.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// PushRequest is the queued form of a sender submission.
type PushRequest struct {
	ApplicationID    string           `json:"pushApplicationID"`
	ClientIdentifier string           `json:"clientIdentifier,omitempty"`
	Message          push.PushMessage `json:"message"`
}

var errMissingApplication = errors.New("push request has no application id")

// PushRequestTransformer decodes a raw message payload into a PushRequest.
// Undecodable payloads are skipped so the StreamingService can dead-letter them.
func PushRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*PushRequest, bool, error) {
	var req PushRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal push request from message %s: %w", msg.ID, err)
	}
	if req.ApplicationID == "" {
		return nil, true, fmt.Errorf("message %s: %w", msg.ID, errMissingApplication)
	}
	req.Message.ClientIdentifier = req.ClientIdentifier
	return &req, false, nil
}
