package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

// CachedInstallationStore caches the token list of each variant. Every write
// invalidates the variant's entry so an unregistered device stops receiving
// pushes immediately.
type CachedInstallationStore struct {
	realStore push.InstallationStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedInstallationStore(realStore push.InstallationStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedInstallationStore {
	return &CachedInstallationStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedInstallationStore"),
	}
}

func (s *CachedInstallationStore) Tokens(ctx context.Context, variantID string) ([]string, error) {
	key := s.cacheKey(variantID)
	var cached []string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Tokens(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Warn("Failed to populate token cache", "variant_id", variantID, "err", err)
	}
	return fresh, nil
}

func (s *CachedInstallationStore) IsInstalled(ctx context.Context, variantID, deviceToken string) (bool, error) {
	return s.realStore.IsInstalled(ctx, variantID, deviceToken)
}

func (s *CachedInstallationStore) Register(ctx context.Context, variantID string, installation push.Installation) error {
	if err := s.realStore.Register(ctx, variantID, installation); err != nil {
		return err
	}
	return s.invalidate(ctx, variantID)
}

func (s *CachedInstallationStore) Unregister(ctx context.Context, variantID, deviceToken string) error {
	if err := s.realStore.Unregister(ctx, variantID, deviceToken); err != nil {
		return err
	}
	return s.invalidate(ctx, variantID)
}

func (s *CachedInstallationStore) invalidate(ctx context.Context, variantID string) error {
	return s.cache.Del(ctx, s.cacheKey(variantID))
}

func (s *CachedInstallationStore) cacheKey(variantID string) string {
	return keyPrefix + "tokens:" + variantID
}
