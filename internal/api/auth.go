// Package api exposes the sender, document and device registry endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

const (
	// DeviceTokenHeader names the installation a variant-authenticated request acts for.
	DeviceTokenHeader = "device-token"
	authRealm         = `Basic realm="UnifiedPush Server"`
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Application *push.PushApplication
	// Variant and DeviceToken are set for variant-authenticated requests only.
	Variant     *push.Variant
	DeviceToken string
}

type principalKey struct{}

func contextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by an Authenticator middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Authenticator checks HTTP Basic credentials. Applications authenticate
// with applicationID:masterSecret; devices with variantID:secret.
type Authenticator struct {
	apps          push.ApplicationFinder
	variants      push.VariantFinder
	installations push.InstallationStore
	logger        *slog.Logger
}

func NewAuthenticator(apps push.ApplicationFinder, variants push.VariantFinder, installations push.InstallationStore, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		apps:          apps,
		variants:      variants,
		installations: installations,
		logger:        logger.With("component", "Authenticator"),
	}
}

// RequireApplication admits requests carrying an application's master secret.
func (a *Authenticator) RequireApplication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok {
			unauthorized(w)
			return
		}
		app, err := a.apps.FindApplication(r.Context(), id)
		if err != nil {
			a.logger.Error("Failed to load application", "application_id", id, "err", err)
			response.WriteJSONError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		if app == nil || !secretsEqual(app.MasterSecret, secret) {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithPrincipal(r.Context(), &Principal{Application: app})))
	})
}

// RequireVariant admits requests carrying a variant's secret.
func (a *Authenticator) RequireVariant(next http.Handler) http.Handler {
	return a.variantAuth(false, next)
}

// RequireInstallation is RequireVariant plus a device-token header that must
// name a device installed on the variant.
func (a *Authenticator) RequireInstallation(next http.Handler) http.Handler {
	return a.variantAuth(true, next)
}

func (a *Authenticator) variantAuth(requireInstalled bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, secret, ok := r.BasicAuth()
		if !ok {
			unauthorized(w)
			return
		}
		variant, err := a.variants.FindByVariantID(ctx, id)
		if err != nil {
			a.logger.Error("Failed to load variant", "variant_id", id, "err", err)
			response.WriteJSONError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		if variant == nil || !secretsEqual(variant.Secret, secret) {
			unauthorized(w)
			return
		}

		deviceToken := r.Header.Get(DeviceTokenHeader)
		if requireInstalled {
			installed, err := a.installations.IsInstalled(ctx, variant.VariantID, deviceToken)
			if err != nil {
				a.logger.Error("Failed to check installation", "variant_id", variant.VariantID, "err", err)
				response.WriteJSONError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}
			if !installed {
				unauthorized(w)
				return
			}
		}

		app, err := a.apps.FindApplicationByVariantID(ctx, variant.VariantID)
		if err != nil {
			a.logger.Error("Failed to load application of variant", "variant_id", variant.VariantID, "err", err)
			response.WriteJSONError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		if app == nil {
			unauthorized(w)
			return
		}

		p := &Principal{Application: app, Variant: variant, DeviceToken: deviceToken}
		next.ServeHTTP(w, r.WithContext(contextWithPrincipal(ctx, p)))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", authRealm)
	response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func secretsEqual(expected, given string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
