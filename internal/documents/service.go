package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/telemetry"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// Service orchestrates alias resolution with versioned save and latest-read.
type Service struct {
	aliases *AliasResolver
	store   document.DocumentStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(aliases *AliasResolver, store document.DocumentStore, logger *slog.Logger) *Service {
	return &Service{
		aliases: aliases,
		store:   store,
		logger:  logger.With("component", "DocumentService"),
		now:     time.Now,
	}
}

// Save stores content as a new snapshot of the document named by meta. The
// alias is resolved (and created if needed) first.
func (s *Service) Save(ctx context.Context, meta document.DocumentMetadata, content string) error {
	if err := meta.Validate(); err != nil {
		telemetry.DocumentOperation("save", telemetry.ResultError)
		return err
	}
	saveLogger := s.logger.With("application_id", meta.ApplicationID, "database", meta.Database, "alias", meta.AliasName)

	doc := document.NewJSONDocumentContent(document.DocumentKey{}, content)
	if meta.ContentType != "" {
		if err := doc.SetContentType(meta.ContentType); err != nil {
			saveLogger.Warn("Rejected document content type", "content_type", meta.ContentType)
			telemetry.DocumentOperation("save", telemetry.ResultError)
			return err
		}
	}
	if err := doc.Validate(); err != nil {
		saveLogger.Warn("Rejected malformed document content")
		telemetry.DocumentOperation("save", telemetry.ResultError)
		return err
	}

	alias := meta.Alias
	if alias == nil {
		resolved, err := s.aliases.Resolve(ctx, meta.ApplicationID, meta.AliasName)
		if err != nil {
			saveLogger.Error("Failed to resolve alias", "err", err)
			telemetry.DocumentOperation("save", telemetry.ResultError)
			return err
		}
		alias = resolved
	}

	snapshot := meta.Snapshot
	if snapshot == "" {
		id, err := uuid.NewV7()
		if err != nil {
			telemetry.DocumentOperation("save", telemetry.ResultError)
			return fmt.Errorf("failed to allocate snapshot id: %w", err)
		}
		snapshot = id.String()
	}

	key := document.DocumentKey{
		ApplicationID: meta.ApplicationID,
		Database:      meta.Database,
		AliasID:       alias.ID.String(),
		DocumentID:    meta.DocumentID,
	}
	doc.Key = key
	doc.Snapshot = snapshot
	doc.Created = s.now().UTC()

	if err := s.store.Put(ctx, doc); err != nil {
		saveLogger.Error("Failed to store document", "alias_id", alias.ID, "err", err)
		telemetry.DocumentOperation("save", telemetry.ResultError)
		return fmt.Errorf("failed to store document %s: %w", key, err)
	}
	saveLogger.Debug("Document stored", "alias_id", alias.ID, "snapshot", snapshot)
	telemetry.DocumentOperation("save", telemetry.ResultOK)
	return nil
}

// GetLatestFromAlias returns the newest snapshot for (database, alias, id),
// or "" when none exists. An empty id matches documents with any id.
func (s *Service) GetLatestFromAlias(ctx context.Context, app *push.PushApplication, alias, database, id string) (string, error) {
	if app == nil || app.ApplicationID == "" {
		telemetry.DocumentOperation("get", telemetry.ResultError)
		return "", fmt.Errorf("%w: application is required", document.ErrInvalidMetadata)
	}

	resolved, err := s.readAlias(ctx, app.ApplicationID, alias)
	if err != nil {
		s.logger.Error("Failed to resolve alias", "application_id", app.ApplicationID, "alias", alias, "err", err)
		telemetry.DocumentOperation("get", telemetry.ResultError)
		return "", err
	}
	if resolved == nil {
		// an alias that was never written to has no documents
		telemetry.DocumentOperation("get", telemetry.ResultOK)
		return "", nil
	}

	return s.latest(ctx, document.DocumentKey{
		ApplicationID: app.ApplicationID,
		Database:      database,
		AliasID:       resolved.ID.String(),
		DocumentID:    id,
	})
}

// GetLatestFromAliases returns the newest snapshot of (database, id) for every
// user-named alias of the application, skipping aliases without one.
func (s *Service) GetLatestFromAliases(ctx context.Context, app *push.PushApplication, database, id string) ([]string, error) {
	if app == nil || app.ApplicationID == "" {
		return nil, fmt.Errorf("%w: application is required", document.ErrInvalidMetadata)
	}
	aliases, err := s.aliases.store.List(ctx, app.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases of application %s: %w", app.ApplicationID, err)
	}

	var out []string
	for _, alias := range aliases {
		content, err := s.latest(ctx, document.DocumentKey{
			ApplicationID: app.ApplicationID,
			Database:      database,
			AliasID:       alias.ID.String(),
			DocumentID:    id,
		})
		if err != nil {
			return nil, err
		}
		if content != "" {
			out = append(out, content)
		}
	}
	return out, nil
}

// Delete removes every document and alias of an application.
func (s *Service) Delete(ctx context.Context, applicationID string) error {
	if applicationID == "" {
		return fmt.Errorf("%w: application id is required", document.ErrInvalidMetadata)
	}
	var errs []error
	if err := s.store.DeleteAll(ctx, applicationID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete documents: %w", err))
	}
	if err := s.aliases.store.DeleteAll(ctx, applicationID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete aliases: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Failed to delete application data", "application_id", applicationID, "err", err)
		return err
	}
	s.logger.Info("Application documents deleted", "application_id", applicationID)
	return nil
}

// readAlias resolves like Resolve but never creates: reading an alias that
// does not exist yet cannot match any document.
func (s *Service) readAlias(ctx context.Context, applicationID, alias string) (*document.Alias, error) {
	if document.IsNullAlias(alias) {
		return s.aliases.Resolve(ctx, applicationID, alias)
	}
	return s.aliases.Find(ctx, applicationID, alias)
}

func (s *Service) latest(ctx context.Context, key document.DocumentKey) (string, error) {
	doc, err := s.store.GetLatest(ctx, key)
	if err != nil {
		s.logger.Error("Failed to read latest document", "key", key.String(), "err", err)
		telemetry.DocumentOperation("get", telemetry.ResultError)
		return "", fmt.Errorf("failed to read document %s: %w", key, err)
	}
	telemetry.DocumentOperation("get", telemetry.ResultOK)
	if doc == nil {
		return "", nil
	}
	return doc.Content, nil
}
