package api

import (
	"net/http"
)

// Handlers groups the endpoint implementations mounted by RegisterRoutes.
type Handlers struct {
	Auth         *Authenticator
	Sender       *SenderAPI
	Documents    *DocumentAPI
	Registration *RegistrationAPI
	// Wrap is applied to every route, outermost; typically CORS.
	Wrap func(http.Handler) http.Handler
}

// RegisterRoutes mounts the REST surface under /rest.
func RegisterRoutes(mux *http.ServeMux, h Handlers) {
	wrap := h.Wrap
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	app := func(f http.HandlerFunc) http.Handler { return wrap(h.Auth.RequireApplication(f)) }
	variant := func(f http.HandlerFunc) http.Handler { return wrap(h.Auth.RequireVariant(f)) }
	installed := func(f http.HandlerFunc) http.Handler { return wrap(h.Auth.RequireInstallation(f)) }

	mux.Handle("POST /rest/sender", app(h.Sender.Send))

	for _, method := range []string{http.MethodPost, http.MethodPut} {
		mux.Handle(method+" /rest/document/{alias}/{qualifier}", installed(h.Documents.Save))
		mux.Handle(method+" /rest/document/{alias}/{qualifier}/{id}", installed(h.Documents.Save))
	}
	mux.Handle("GET /rest/document/{publisher}/{alias}/{qualifier}", installed(h.Documents.Latest))
	mux.Handle("GET /rest/document/{publisher}/{alias}/{qualifier}/{id}", installed(h.Documents.Latest))

	mux.Handle("POST /rest/registry/device", variant(h.Registration.Register))
	mux.Handle("DELETE /rest/registry/device/{token...}", variant(h.Registration.Unregister))

	// preflight for browser clients
	mux.Handle("OPTIONS /rest/", wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}
