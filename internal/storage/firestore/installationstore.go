package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// InstallationStore implements push.InstallationStore using Google Cloud Firestore.
type InstallationStore struct {
	client *firestore.Client
}

func NewInstallationStore(client *firestore.Client) *InstallationStore {
	return &InstallationStore{client: client}
}

func (s *InstallationStore) Register(ctx context.Context, variantID string, installation push.Installation) error {
	if installation.DeviceToken == "" {
		return fmt.Errorf("device token is required")
	}
	installation.UpdatedAt = time.Now().UTC()

	// hash of the token keeps ids bounded and avoids hot-spotting
	_, err := s.installationRef(variantID, installation.DeviceToken).Set(ctx, installation)
	if err != nil {
		return fmt.Errorf("failed to register installation for variant %s: %w", variantID, err)
	}
	return nil
}

func (s *InstallationStore) Unregister(ctx context.Context, variantID, deviceToken string) error {
	_, err := s.installationRef(variantID, deviceToken).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to unregister installation for variant %s: %w", variantID, err)
	}
	return nil
}

// Tokens returns every device token registered against the variant.
func (s *InstallationStore) Tokens(ctx context.Context, variantID string) ([]string, error) {
	iter := s.installations(variantID).Documents(ctx)
	defer iter.Stop()

	tokens := make([]string, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record push.Installation
		if err := doc.DataTo(&record); err != nil {
			// corrupt rows are skipped
			continue
		}
		if record.DeviceToken != "" {
			tokens = append(tokens, record.DeviceToken)
		}
	}
	return tokens, nil
}

func (s *InstallationStore) IsInstalled(ctx context.Context, variantID, deviceToken string) (bool, error) {
	if deviceToken == "" {
		return false, nil
	}
	_, err := s.installationRef(variantID, deviceToken).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read installation for variant %s: %w", variantID, err)
	}
	return true, nil
}

// installationRef: variants/{variantID}/installations/{tokenHash}
func (s *InstallationStore) installationRef(variantID, deviceToken string) *firestore.DocumentRef {
	return s.installations(variantID).Doc(hashKey(deviceToken))
}

func (s *InstallationStore) installations(variantID string) *firestore.CollectionRef {
	return s.client.Collection(variantsCollection).Doc(variantID).Collection("installations")
}

func hashKey(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
