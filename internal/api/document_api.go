package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

const (
	emptyJSON       = "{}"
	maxDocumentSize = 1 << 20
)

// DocumentService is the part of the document service the endpoints use.
type DocumentService interface {
	Save(ctx context.Context, meta document.DocumentMetadata, content string) error
	GetLatestFromAlias(ctx context.Context, app *push.PushApplication, alias, database, id string) (string, error)
}

type DocumentAPI struct {
	Documents DocumentService
	Logger    *slog.Logger
}

func NewDocumentAPI(documents DocumentService, logger *slog.Logger) *DocumentAPI {
	return &DocumentAPI{
		Documents: documents,
		Logger:    logger.With("component", "DocumentAPI"),
	}
}

// Save stores the body as a new snapshot of {alias}/{qualifier}[/{id}].
// POST and PUT behave the same: history is never overwritten.
func (api *DocumentAPI) Save(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize+1))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > maxDocumentSize {
		response.WriteJSONError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	meta := document.DocumentMetadata{
		ApplicationID: principal.Application.ApplicationID,
		Database:      document.ParseDatabase(r.PathValue("qualifier")),
		AliasName:     document.ParseAlias(r.PathValue("alias")),
		DeviceToken:   principal.DeviceToken,
		DocumentID:    document.ParseID(r.PathValue("id")),
		ContentType:   r.Header.Get("Content-Type"),
	}

	if err := api.Documents.Save(r.Context(), meta, string(body)); err != nil {
		switch {
		case errors.Is(err, document.ErrUnsupportedContentType):
			response.WriteJSONError(w, http.StatusUnsupportedMediaType, "only application/json documents are accepted")
		case errors.Is(err, document.ErrInvalidContent), errors.Is(err, document.ErrInvalidMetadata):
			response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		default:
			api.Logger.Error("Cannot store document", "application_id", meta.ApplicationID, "alias", meta.AliasName, "err", err)
			response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		}
		return
	}
	writeRawJSON(w, emptyJSON)
}

// Latest returns the newest snapshot of {alias}/{qualifier}[/{id}], or {}.
// The publisher segment is accepted for path compatibility and ignored.
func (api *DocumentAPI) Latest(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}

	alias := document.ParseAlias(r.PathValue("alias"))
	content, err := api.Documents.GetLatestFromAlias(
		r.Context(),
		principal.Application,
		alias,
		document.ParseDatabase(r.PathValue("qualifier")),
		document.ParseID(r.PathValue("id")),
	)
	if err != nil {
		api.Logger.Error("Cannot retrieve document", "application_id", principal.Application.ApplicationID, "alias", alias, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	if content == "" {
		content = emptyJSON
	}
	writeRawJSON(w, content)
}

func writeRawJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
