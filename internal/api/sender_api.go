package api

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// SenderClientHeader lets SDKs identify themselves; User-Agent is the fallback.
const SenderClientHeader = "unifiedpush-sender"

type SenderAPI struct {
	Sender push.Sender
	Logger *slog.Logger
}

func NewSenderAPI(sender push.Sender, logger *slog.Logger) *SenderAPI {
	return &SenderAPI{
		Sender: sender,
		Logger: logger.With("component", "SenderAPI"),
	}
}

type sendResponse struct {
	PushMessageID string `json:"push_message_id"`
}

// Send accepts a push message for the authenticated application and answers
// 202 once the fan-out events are queued.
func (api *SenderAPI) Send(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	var msg push.PushMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg.IPAddress = clientIP(r)
	msg.ClientIdentifier = clientIdentifier(r)

	info, err := api.Sender.Send(r.Context(), principal.Application, &msg)
	if err != nil {
		api.Logger.Error("Send failed", "application_id", principal.Application.ApplicationID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "send failed")
		return
	}
	writeJSON(w, http.StatusAccepted, sendResponse{PushMessageID: info.ID})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientIdentifier(r *http.Request) string {
	if id := r.Header.Get(SenderClientHeader); id != "" {
		return id
	}
	return r.UserAgent()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
