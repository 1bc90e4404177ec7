package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
)

const documentsCollection = "documents"

// documentRecord is one stored snapshot. An empty DocumentID means the
// document was saved without an id.
type documentRecord struct {
	ApplicationID string    `firestore:"application_id"`
	Database      string    `firestore:"database"`
	AliasID       string    `firestore:"alias_id"`
	DocumentID    string    `firestore:"document_id"`
	Content       string    `firestore:"content"`
	ContentType   string    `firestore:"content_type"`
	Snapshot      string    `firestore:"snapshot"`
	CreatedAt     time.Time `firestore:"created_at"`
}

// DocumentStore implements document.DocumentStore. Every Put adds a snapshot
// keyed by its snapshot id; GetLatest relies on snapshot ids sorting by time.
type DocumentStore struct {
	client *firestore.Client
}

func NewDocumentStore(client *firestore.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) Put(ctx context.Context, content *document.DocumentContent) error {
	if content.Snapshot == "" {
		return fmt.Errorf("snapshot id is required")
	}
	record := documentRecord{
		ApplicationID: content.Key.ApplicationID,
		Database:      content.Key.Database,
		AliasID:       content.Key.AliasID,
		DocumentID:    content.Key.DocumentID,
		Content:       content.Content,
		ContentType:   content.ContentType,
		Snapshot:      content.Snapshot,
		CreatedAt:     content.Created,
	}
	_, err := s.client.Collection(documentsCollection).Doc(content.Snapshot).Set(ctx, record)
	return err
}

func (s *DocumentStore) GetLatest(ctx context.Context, key document.DocumentKey) (*document.DocumentContent, error) {
	q := s.client.Collection(documentsCollection).
		Where("application_id", "==", key.ApplicationID).
		Where("database", "==", key.Database).
		Where("alias_id", "==", key.AliasID)
	if key.DocumentID != "" {
		q = q.Where("document_id", "==", key.DocumentID)
	}
	iter := q.OrderBy("snapshot", firestore.Desc).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("firestore query failed: %w", err)
	}
	var record documentRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", doc.Ref.ID, err)
	}
	return &document.DocumentContent{
		Key: document.DocumentKey{
			ApplicationID: record.ApplicationID,
			Database:      record.Database,
			AliasID:       record.AliasID,
			DocumentID:    record.DocumentID,
		},
		Content:     record.Content,
		ContentType: record.ContentType,
		Snapshot:    record.Snapshot,
		Created:     record.CreatedAt,
	}, nil
}

func (s *DocumentStore) DeleteAll(ctx context.Context, applicationID string) error {
	iter := s.client.Collection(documentsCollection).
		Where("application_id", "==", applicationID).
		Documents(ctx)
	return deleteDocuments(ctx, iter)
}
