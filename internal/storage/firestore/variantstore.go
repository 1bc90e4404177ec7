// Package firestore holds the Firestore-backed registry, alias and document stores.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

const (
	applicationsCollection = "applications"
	variantsCollection     = "variants"
)

// applicationRecord is the stored form of a PushApplication; variants live in
// their own collection so they can be looked up by id alone.
type applicationRecord struct {
	ApplicationID string `firestore:"application_id"`
	Name          string `firestore:"name"`
	MasterSecret  string `firestore:"master_secret"`
}

// VariantStore implements push.VariantFinder and push.ApplicationFinder.
type VariantStore struct {
	client *firestore.Client
}

func NewVariantStore(client *firestore.Client) *VariantStore {
	return &VariantStore{client: client}
}

// SaveApplication writes the application record and each of its variants.
func (s *VariantStore) SaveApplication(ctx context.Context, app *push.PushApplication) error {
	record := applicationRecord{
		ApplicationID: app.ApplicationID,
		Name:          app.Name,
		MasterSecret:  app.MasterSecret,
	}
	if _, err := s.client.Collection(applicationsCollection).Doc(app.ApplicationID).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to save application %s: %w", app.ApplicationID, err)
	}
	for _, v := range app.Variants {
		v.ApplicationID = app.ApplicationID
		if err := s.SaveVariant(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *VariantStore) SaveVariant(ctx context.Context, variant push.Variant) error {
	if variant.VariantID == "" || variant.ApplicationID == "" {
		return fmt.Errorf("variant and application ids are required")
	}
	if _, err := s.client.Collection(variantsCollection).Doc(variant.VariantID).Set(ctx, variant); err != nil {
		return fmt.Errorf("failed to save variant %s: %w", variant.VariantID, err)
	}
	return nil
}

// FindByVariantID returns nil when the variant does not exist.
func (s *VariantStore) FindByVariantID(ctx context.Context, variantID string) (*push.Variant, error) {
	if variantID == "" {
		return nil, nil
	}
	doc, err := s.client.Collection(variantsCollection).Doc(variantID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read variant %s: %w", variantID, err)
	}
	var variant push.Variant
	if err := doc.DataTo(&variant); err != nil {
		return nil, fmt.Errorf("failed to decode variant %s: %w", variantID, err)
	}
	return &variant, nil
}

// FindApplication returns the application with all of its variants, or nil
// when it does not exist.
func (s *VariantStore) FindApplication(ctx context.Context, applicationID string) (*push.PushApplication, error) {
	if applicationID == "" {
		return nil, nil
	}
	doc, err := s.client.Collection(applicationsCollection).Doc(applicationID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read application %s: %w", applicationID, err)
	}
	var record applicationRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to decode application %s: %w", applicationID, err)
	}

	variants, err := s.variantsOf(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return &push.PushApplication{
		ApplicationID: record.ApplicationID,
		Name:          record.Name,
		MasterSecret:  record.MasterSecret,
		Variants:      variants,
	}, nil
}

func (s *VariantStore) FindApplicationByVariantID(ctx context.Context, variantID string) (*push.PushApplication, error) {
	variant, err := s.FindByVariantID(ctx, variantID)
	if err != nil || variant == nil {
		return nil, err
	}
	return s.FindApplication(ctx, variant.ApplicationID)
}

func (s *VariantStore) variantsOf(ctx context.Context, applicationID string) ([]push.Variant, error) {
	iter := s.client.Collection(variantsCollection).
		Where("application_id", "==", applicationID).
		OrderBy("variant_id", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	variants := make([]push.Variant, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var v push.Variant
		if err := doc.DataTo(&v); err != nil {
			continue
		}
		variants = append(variants, v)
	}
	return variants, nil
}
