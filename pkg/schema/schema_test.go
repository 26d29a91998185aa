package schema_test

import (
	"reflect"
	"testing"

	"github.com/convoke-ai/convoke/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchRequest struct {
	Topic string `json:"topic,omitempty" jsonschema:"title=Topic,description=Topic of the search"`
	Query string `json:"query" jsonschema:"title=Query,description=Query to search for relevant content"`
}

func TestSchemaNew(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(searchRequest{}))
	require.NoError(t, err)
	require.NotNil(t, s.RawSchema)
	require.NotNil(t, s.Parameters)

	assert.Equal(t, "object", s.Parameters.Type)
	assert.Equal(t, []string{"query"}, s.Parameters.Required)

	query, ok := s.Parameters.Properties.Get("query")
	require.True(t, ok)
	assert.Equal(t, "string", query.Type)
	assert.Equal(t, "Query to search for relevant content", query.Description)

	_, ok = s.Parameters.Properties.Get("topic")
	require.True(t, ok)

	// Same type resolves to the cached schema.
	s2, err := schema.New(reflect.TypeOf(searchRequest{}))
	require.NoError(t, err)
	assert.Same(t, s, s2)
}

func TestSchemaString(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(searchRequest{}))
	require.NoError(t, err)

	out := s.String()
	assert.Contains(t, out, `"query"`)
	assert.Contains(t, out, `"topic"`)
}

func TestFromAny(t *testing.T) {
	js, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
		"required": []string{"city"},
	})
	require.NoError(t, err)
	assert.Equal(t, "object", js.Type)
	assert.Equal(t, []string{"city"}, js.Required)

	_, err = schema.FromAny(func() {})
	require.Error(t, err)
}
