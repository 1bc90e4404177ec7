// Package documents implements alias resolution and versioned document
// storage for device data synchronization.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
)

// AliasResolver maps caller-supplied alias strings onto application-scoped identities.
type AliasResolver struct {
	store  document.AliasStore
	logger *slog.Logger
}

func NewAliasResolver(store document.AliasStore, logger *slog.Logger) *AliasResolver {
	return &AliasResolver{
		store:  store,
		logger: logger.With("component", "AliasResolver"),
	}
}

// Find returns nil when the alias is not bound in the application.
func (r *AliasResolver) Find(ctx context.Context, applicationID, name string) (*document.Alias, error) {
	alias, err := r.store.Find(ctx, applicationID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find alias %q in application %s: %w", name, applicationID, err)
	}
	return alias, nil
}

// Create binds a new alias to the application. A concurrent create of the same
// name is detected through the store's uniqueness constraint and the winner
// is returned instead.
func (r *AliasResolver) Create(ctx context.Context, applicationID, name string) (*document.Alias, error) {
	alias := document.Alias{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		Name:          name,
	}

	err := r.store.Create(ctx, alias)
	if err == nil {
		r.logger.Debug("Alias created", "application_id", applicationID, "alias", name, "alias_id", alias.ID)
		return &alias, nil
	}
	if !errors.Is(err, document.ErrAliasExists) {
		return nil, fmt.Errorf("failed to create alias %q in application %s: %w", name, applicationID, err)
	}

	existing, err := r.Find(ctx, applicationID, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("alias %q in application %s reported as existing but not found", name, applicationID)
	}
	r.logger.Debug("Alias create lost race; using existing", "application_id", applicationID, "alias", name)
	return existing, nil
}

// Resolve returns the identity for an alias string. The null alias is computed
// from the application and never touches the store; any other alias is looked
// up and created on first reference.
func (r *AliasResolver) Resolve(ctx context.Context, applicationID, name string) (*document.Alias, error) {
	if document.IsNullAlias(name) {
		alias := document.NullAlias(applicationID)
		return &alias, nil
	}

	alias, err := r.Find(ctx, applicationID, name)
	if err != nil {
		return nil, err
	}
	if alias != nil {
		return alias, nil
	}
	return r.Create(ctx, applicationID, name)
}
