package document

import "context"

// AliasStore persists user-named aliases. (ApplicationID, Name) is unique.
type AliasStore interface {
	// Find returns nil and no error when the alias does not exist.
	Find(ctx context.Context, applicationID, name string) (*Alias, error)
	// Create fails with ErrAliasExists when the name is already bound.
	Create(ctx context.Context, alias Alias) error
	// List returns every alias of an application.
	List(ctx context.Context, applicationID string) ([]Alias, error)
	DeleteAll(ctx context.Context, applicationID string) error
}

// DocumentStore is the narrow CRUD surface over versioned document content.
type DocumentStore interface {
	// Put appends a new snapshot; history is never overwritten.
	Put(ctx context.Context, content *DocumentContent) error
	// GetLatest returns the newest snapshot for the key, or nil when none exists.
	GetLatest(ctx context.Context, key DocumentKey) (*DocumentContent, error)
	DeleteAll(ctx context.Context, applicationID string) error
}
