package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

type RegistrationAPI struct {
	Store  push.InstallationStore
	Logger *slog.Logger
}

func NewRegistrationAPI(store push.InstallationStore, logger *slog.Logger) *RegistrationAPI {
	return &RegistrationAPI{
		Store:  store,
		Logger: logger.With("component", "RegistrationAPI"),
	}
}

// Register records a device against the authenticated variant. For web_push
// variants the device token is the JSON-encoded browser subscription.
func (api *RegistrationAPI) Register(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || principal.Variant == nil {
		unauthorized(w)
		return
	}

	var installation push.Installation
	if err := json.NewDecoder(r.Body).Decode(&installation); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if installation.DeviceToken == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing deviceToken")
		return
	}

	if err := api.Store.Register(r.Context(), principal.Variant.VariantID, installation); err != nil {
		api.Logger.Error("Failed to register installation", "variant_id", principal.Variant.VariantID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Installation registered", "variant_id", principal.Variant.VariantID)
	w.WriteHeader(http.StatusNoContent)
}

// Unregister removes the device named in the path. Unknown tokens succeed.
func (api *RegistrationAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || principal.Variant == nil {
		unauthorized(w)
		return
	}

	token := r.PathValue("token")
	if token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}
	if err := api.Store.Unregister(r.Context(), principal.Variant.VariantID, token); err != nil {
		api.Logger.Warn("Failed to unregister installation", "variant_id", principal.Variant.VariantID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to unregister")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
