package document_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/document"
)

func TestParsePathParameters(t *testing.T) {
	assert.Equal(t, document.NullAliasToken, document.ParseAlias(""))
	assert.Equal(t, document.NullAliasToken, document.ParseAlias("NULL"))
	assert.Equal(t, "alice@example.com", document.ParseAlias(" alice@example.com "))
	assert.True(t, document.IsNullAlias("null"))
	assert.False(t, document.IsNullAlias("bob"))

	assert.Equal(t, document.DefaultDatabase, document.ParseDatabase(""))
	assert.Equal(t, "settings", document.ParseDatabase("settings"))

	assert.Equal(t, "", document.ParseID(""))
	assert.Equal(t, "", document.ParseID("null"))
	assert.Equal(t, "42", document.ParseID("/42"))
}

func TestNullAlias(t *testing.T) {
	t.Run("Deterministic per application", func(t *testing.T) {
		a := document.NullAlias("app-1")
		b := document.NullAlias("app-1")
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, document.NullAliasToken, a.Name)
		assert.Equal(t, "app-1", a.ApplicationID)
	})

	t.Run("Scoped by application", func(t *testing.T) {
		base := document.NullAlias("app-1")
		assert.NotEqual(t, base.ID, document.NullAlias("app-2").ID)
	})
}

func TestDocumentContent_ContentType(t *testing.T) {
	content := document.NewJSONDocumentContent(document.DocumentKey{ApplicationID: "app", Database: "DEVICES"}, `{"a":1}`)
	assert.Equal(t, document.JSONContentType, content.ContentType)

	require.NoError(t, content.SetContentType("application/json; charset=utf-8"))
	assert.Equal(t, document.JSONContentType, content.ContentType)

	err := content.SetContentType("text/plain")
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrUnsupportedContentType)
	assert.Equal(t, document.JSONContentType, content.ContentType)
}

func TestDocumentContent_RawJSON(t *testing.T) {
	key := document.DocumentKey{ApplicationID: "app", Database: "DEVICES", DocumentID: "doc-1"}
	content := document.NewJSONDocumentContent(key, `{"deviceType":"iPhone","alias":"a@b.c"}`)

	encoded, err := json.Marshal(content)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"content":{`)

	var decoded document.DocumentContent
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.JSONEq(t, content.Content, decoded.Content)
	assert.Equal(t, "doc-1", decoded.Key.DocumentID)

	t.Run("Rejects invalid content", func(t *testing.T) {
		bad := document.NewJSONDocumentContent(key, `{"unterminated"`)
		_, err := json.Marshal(bad)
		assert.Error(t, err)
	})

	t.Run("Rejects foreign content type on decode", func(t *testing.T) {
		var d document.DocumentContent
		err := json.Unmarshal([]byte(`{"database":"DEVICES","contentType":"text/xml","content":{}}`), &d)
		assert.ErrorIs(t, err, document.ErrUnsupportedContentType)
	})
}

func TestDocumentMetadata_Validate(t *testing.T) {
	assert.NoError(t, document.DocumentMetadata{ApplicationID: "app", Database: "db"}.Validate())
	assert.ErrorIs(t, document.DocumentMetadata{Database: "db"}.Validate(), document.ErrInvalidMetadata)
	assert.ErrorIs(t, document.DocumentMetadata{ApplicationID: "app"}.Validate(), document.ErrInvalidMetadata)
}
