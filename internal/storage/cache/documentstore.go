package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
)

// CachedDocumentStore decorates a DocumentStore with read-aside caching of
// GetLatest. Only hits are cached. Every cache write is ordered by snapshot,
// so a slow reader can never replace a newer entry with the one it read.
type CachedDocumentStore struct {
	realStore document.DocumentStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedDocumentStore(realStore document.DocumentStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedDocumentStore {
	return &CachedDocumentStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedDocumentStore"),
	}
}

func (s *CachedDocumentStore) GetLatest(ctx context.Context, key document.DocumentKey) (*document.DocumentContent, error) {
	cacheKey := s.cacheKey(key)
	var cached document.DocumentContent
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		// the wire form omits tenant and alias
		cached.Key.ApplicationID = key.ApplicationID
		cached.Key.AliasID = key.AliasID
		return &cached, nil
	}

	fresh, err := s.realStore.GetLatest(ctx, key)
	if err != nil || fresh == nil {
		return fresh, err
	}
	s.publish(ctx, cacheKey, fresh)
	return fresh, nil
}

// Put writes through and then publishes the new snapshot to both the exact-id
// entry and the any-id entry. The snapshot is already stored once the real
// store accepts it, so cache failures are logged and not returned.
func (s *CachedDocumentStore) Put(ctx context.Context, content *document.DocumentContent) error {
	if err := s.realStore.Put(ctx, content); err != nil {
		return err
	}
	anyID := content.Key
	anyID.DocumentID = ""
	s.publish(ctx, s.cacheKey(content.Key), content)
	if content.Key.DocumentID != "" {
		s.publish(ctx, s.cacheKey(anyID), content)
	}
	return nil
}

func (s *CachedDocumentStore) publish(ctx context.Context, cacheKey string, content *document.DocumentContent) {
	written, err := s.cache.SetIfNewer(ctx, cacheKey, content, content.Snapshot, s.ttl)
	if err != nil {
		s.logger.Warn("Failed to update document cache", "key", cacheKey, "snapshot", content.Snapshot, "err", err)
		// a stale entry must not outlive a failed update
		if delErr := s.cache.Del(ctx, cacheKey); delErr != nil {
			s.logger.Error("Failed to drop document cache entry", "key", cacheKey, "err", delErr)
		}
		return
	}
	if !written {
		s.logger.Debug("Document cache already holds a newer snapshot", "key", cacheKey, "snapshot", content.Snapshot)
	}
}

func (s *CachedDocumentStore) DeleteAll(ctx context.Context, applicationID string) error {
	if err := s.realStore.DeleteAll(ctx, applicationID); err != nil {
		return err
	}
	return s.cache.DelPrefix(ctx, s.applicationPrefix(applicationID))
}

func (s *CachedDocumentStore) cacheKey(key document.DocumentKey) string {
	return s.applicationPrefix(key.ApplicationID) + fmt.Sprintf("%s:%s:%s", key.Database, key.AliasID, idOrAny(key.DocumentID))
}

func (s *CachedDocumentStore) applicationPrefix(applicationID string) string {
	return keyPrefix + "doc:" + applicationID + ":"
}

func idOrAny(id string) string {
	if id == "" {
		return "*"
	}
	return id
}
