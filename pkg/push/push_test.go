package push_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

func TestParseVariantType(t *testing.T) {
	got, err := push.ParseVariantType(" IOS ")
	require.NoError(t, err)
	assert.Equal(t, push.VariantIOS, got)

	_, err = push.ParseVariantType("pager")
	assert.Error(t, err)
}

func TestAllVariantTypes_ReturnsCopy(t *testing.T) {
	types := push.AllVariantTypes()
	require.NotEmpty(t, types)
	types[0] = "mutated"
	assert.Equal(t, push.VariantAndroid, push.AllVariantTypes()[0])
}

func TestStrippedJSON(t *testing.T) {
	msg := &push.PushMessage{
		Message: push.Message{
			Alert: strings.Repeat("x", 40),
			Data:  map[string]string{"b": "secret-b", "a": "secret-a"},
		},
		Criteria: push.Criteria{Variants: []string{"v1"}},
	}

	stripped := msg.StrippedJSON()
	assert.NotContains(t, stripped, "secret-a")

	var decoded struct {
		Alert    string        `json:"alert"`
		DataKeys []string      `json:"user-data-keys"`
		Criteria push.Criteria `json:"criteria"`
	}
	require.NoError(t, json.Unmarshal([]byte(stripped), &decoded))
	assert.Equal(t, strings.Repeat("x", 25)+"...", decoded.Alert)
	assert.Equal(t, []string{"a", "b"}, decoded.DataKeys)
	assert.Equal(t, []string{"v1"}, decoded.Criteria.Variants)
}
