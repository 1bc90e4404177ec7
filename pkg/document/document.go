// Package document holds the model of the alias-scoped, snapshot-versioned
// document store.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// NullAliasToken is the reserved alias string for application-wide documents.
	NullAliasToken = "null"
	// DefaultDatabase is the qualifier used when a request names none.
	DefaultDatabase = "INSTALLATION"
	// JSONContentType is the only content type accepted for JSON documents.
	JSONContentType = "application/json"
)

var (
	// ErrUnsupportedContentType is returned when a typed document is given a foreign content type.
	ErrUnsupportedContentType = errors.New("unsupported content type")
	// ErrInvalidContent is returned when a JSON document does not hold valid JSON.
	ErrInvalidContent = errors.New("invalid document content")
	// ErrInvalidMetadata is returned when tenant or identity metadata is missing.
	ErrInvalidMetadata = errors.New("invalid document metadata")
	// ErrAliasExists is returned by AliasStore.Create when the alias is already taken.
	ErrAliasExists = errors.New("alias already exists")
)

// ParseAlias normalises an alias path parameter. Empty and "null" (any case)
// both map to NullAliasToken.
func ParseAlias(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, NullAliasToken) {
		return NullAliasToken
	}
	return trimmed
}

// IsNullAlias reports whether the alias string denotes the application-wide scope.
func IsNullAlias(raw string) bool {
	return ParseAlias(raw) == NullAliasToken
}

// ParseDatabase normalises a qualifier path parameter.
func ParseDatabase(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, NullAliasToken) {
		return DefaultDatabase
	}
	return trimmed
}

// ParseID normalises a document-id path parameter; "" means no id.
func ParseID(raw string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "/")
	if strings.EqualFold(trimmed, NullAliasToken) {
		return ""
	}
	return trimmed
}

// DocumentKey identifies a logical document. An empty DocumentID on a read
// matches documents with any id.
type DocumentKey struct {
	ApplicationID string
	Database      string
	AliasID       string
	DocumentID    string
}

func (k DocumentKey) String() string {
	id := k.DocumentID
	if id == "" {
		id = "*"
	}
	return fmt.Sprintf("%s/%s/%s/%s", k.ApplicationID, k.Database, k.AliasID, id)
}

// DocumentMetadata describes one save request. AliasName carries the raw alias
// string; the document service resolves it into Alias.
type DocumentMetadata struct {
	ApplicationID string
	Database      string
	AliasName     string
	Alias         *Alias
	DeviceToken   string
	DocumentID    string
	Snapshot      string
	// ContentType is the declared type of the content; empty means JSON.
	ContentType string
}

// Validate checks the tenant and identity fields required for a save.
func (m DocumentMetadata) Validate() error {
	if m.ApplicationID == "" {
		return fmt.Errorf("%w: application id is required", ErrInvalidMetadata)
	}
	if m.Database == "" {
		return fmt.Errorf("%w: database is required", ErrInvalidMetadata)
	}
	return nil
}

// DocumentContent is one persisted snapshot.
type DocumentContent struct {
	Key         DocumentKey
	Content     string
	ContentType string
	Snapshot    string
	Created     time.Time
}

// NewJSONDocumentContent wraps raw JSON content; the content type is pinned.
func NewJSONDocumentContent(key DocumentKey, content string) *DocumentContent {
	return &DocumentContent{
		Key:         key,
		Content:     content,
		ContentType: JSONContentType,
	}
}

// Validate checks that the content is well-formed JSON.
func (c *DocumentContent) Validate() error {
	if !json.Valid([]byte(c.Content)) {
		return fmt.Errorf("%w: content is not valid json", ErrInvalidContent)
	}
	return nil
}

// SetContentType rejects anything but JSON.
func (c *DocumentContent) SetContentType(contentType string) error {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if !strings.EqualFold(mediaType, JSONContentType) {
		return fmt.Errorf("%w: only %s is permitted, got %q", ErrUnsupportedContentType, JSONContentType, contentType)
	}
	c.ContentType = JSONContentType
	return nil
}

type documentContentJSON struct {
	Database    string          `json:"database"`
	DocumentID  string          `json:"documentId,omitempty"`
	ContentType string          `json:"contentType"`
	Snapshot    string          `json:"snapshot,omitempty"`
	Content     json.RawMessage `json:"content"`
}

// MarshalJSON embeds Content verbatim instead of re-escaping it as a string.
func (c *DocumentContent) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	raw := json.RawMessage(c.Content)
	return json.Marshal(documentContentJSON{
		Database:    c.Key.Database,
		DocumentID:  c.Key.DocumentID,
		ContentType: c.ContentType,
		Snapshot:    c.Snapshot,
		Content:     raw,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *DocumentContent) UnmarshalJSON(data []byte) error {
	var wire documentContentJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Key.Database = wire.Database
	c.Key.DocumentID = wire.DocumentID
	c.Snapshot = wire.Snapshot
	c.Content = string(wire.Content)
	if wire.ContentType == "" {
		c.ContentType = JSONContentType
		return nil
	}
	return c.SetContentType(wire.ContentType)
}
