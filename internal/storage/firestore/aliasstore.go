package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
)

type aliasRecord struct {
	AliasID       string `firestore:"alias_id"`
	ApplicationID string `firestore:"application_id"`
	Name          string `firestore:"name"`
}

func (r aliasRecord) toAlias() (document.Alias, error) {
	id, err := uuid.Parse(r.AliasID)
	if err != nil {
		return document.Alias{}, fmt.Errorf("invalid alias id %q: %w", r.AliasID, err)
	}
	return document.Alias{ID: id, ApplicationID: r.ApplicationID, Name: r.Name}, nil
}

// AliasStore implements document.AliasStore. The document id is derived from
// the alias name so Firestore enforces (application, name) uniqueness.
type AliasStore struct {
	client *firestore.Client
}

func NewAliasStore(client *firestore.Client) *AliasStore {
	return &AliasStore{client: client}
}

func (s *AliasStore) Find(ctx context.Context, applicationID, name string) (*document.Alias, error) {
	doc, err := s.aliasRef(applicationID, name).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record aliasRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, err
	}
	alias, err := record.toAlias()
	if err != nil {
		return nil, err
	}
	return &alias, nil
}

// Create fails with document.ErrAliasExists when the name is already bound.
func (s *AliasStore) Create(ctx context.Context, alias document.Alias) error {
	record := aliasRecord{
		AliasID:       alias.ID.String(),
		ApplicationID: alias.ApplicationID,
		Name:          alias.Name,
	}
	_, err := s.aliasRef(alias.ApplicationID, alias.Name).Create(ctx, record)
	if status.Code(err) == codes.AlreadyExists {
		return document.ErrAliasExists
	}
	return err
}

func (s *AliasStore) List(ctx context.Context, applicationID string) ([]document.Alias, error) {
	iter := s.aliases(applicationID).Documents(ctx)
	defer iter.Stop()

	var out []document.Alias
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var record aliasRecord
		if err := doc.DataTo(&record); err != nil {
			continue
		}
		alias, err := record.toAlias()
		if err != nil {
			continue
		}
		out = append(out, alias)
	}
	return out, nil
}

func (s *AliasStore) DeleteAll(ctx context.Context, applicationID string) error {
	return deleteDocuments(ctx, s.aliases(applicationID).Documents(ctx))
}

// aliasRef: applications/{applicationID}/aliases/{nameHash}
func (s *AliasStore) aliasRef(applicationID, name string) *firestore.DocumentRef {
	return s.aliases(applicationID).Doc(hashKey(name))
}

func (s *AliasStore) aliases(applicationID string) *firestore.CollectionRef {
	return s.client.Collection(applicationsCollection).Doc(applicationID).Collection("aliases")
}

func deleteDocuments(ctx context.Context, iter *firestore.DocumentIterator) error {
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("firestore iteration failed: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete %s: %w", doc.Ref.Path, err)
		}
	}
}
