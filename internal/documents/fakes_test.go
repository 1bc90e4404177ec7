package documents_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memAliasStore enforces (application, name) uniqueness like the Firestore store.
type memAliasStore struct {
	mu      sync.Mutex
	aliases map[string]document.Alias
	creates int
	// beforeCreate runs outside the lock; used to widen race windows.
	beforeCreate func()
}

func newMemAliasStore() *memAliasStore {
	return &memAliasStore{aliases: map[string]document.Alias{}}
}

func aliasKey(appID, name string) string { return appID + "\x00" + name }

func (s *memAliasStore) Find(_ context.Context, appID, name string) (*document.Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aliases[aliasKey(appID, name)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memAliasStore) Create(_ context.Context, alias document.Alias) error {
	if s.beforeCreate != nil {
		s.beforeCreate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	k := aliasKey(alias.ApplicationID, alias.Name)
	if _, exists := s.aliases[k]; exists {
		return document.ErrAliasExists
	}
	s.aliases[k] = alias
	return nil
}

func (s *memAliasStore) List(_ context.Context, appID string) ([]document.Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []document.Alias
	for _, a := range s.aliases {
		if a.ApplicationID == appID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memAliasStore) DeleteAll(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.aliases {
		if a.ApplicationID == appID {
			delete(s.aliases, k)
		}
	}
	return nil
}

// memDocumentStore keeps every snapshot and answers GetLatest by snapshot order.
type memDocumentStore struct {
	mu   sync.Mutex
	docs []*document.DocumentContent
}

func (s *memDocumentStore) Put(_ context.Context, c *document.DocumentContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.docs = append(s.docs, &cp)
	return nil
}

func (s *memDocumentStore) GetLatest(_ context.Context, key document.DocumentKey) (*document.DocumentContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *document.DocumentContent
	for _, d := range s.docs {
		if d.Key.ApplicationID != key.ApplicationID || d.Key.Database != key.Database || d.Key.AliasID != key.AliasID {
			continue
		}
		if key.DocumentID != "" && d.Key.DocumentID != key.DocumentID {
			continue
		}
		if latest == nil || d.Snapshot > latest.Snapshot {
			latest = d
		}
	}
	return latest, nil
}

func (s *memDocumentStore) DeleteAll(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.docs[:0]
	for _, d := range s.docs {
		if d.Key.ApplicationID != appID {
			kept = append(kept, d)
		}
	}
	s.docs = kept
	return nil
}

func (s *memDocumentStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
