package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSchema(t *testing.T) {
	type args struct {
		City    string  `json:"city" description:"City name"`
		Days    int     `json:"days,omitempty"`
		Verbose *bool   `json:"verbose"`
		Scale   float64 `json:"-"`
	}

	schema := CreateSchema(args{})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, props, 3)

	city, ok := props["city"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", city["type"])
	assert.Equal(t, "City name", city["description"])

	days, ok := props["days"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", days["type"])

	// omitempty and pointer fields are optional
	assert.Equal(t, []string{"city"}, schema["required"])
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
	assert.NotContains(t, schema, "required")
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
			"days": map[string]any{"type": "integer"},
		},
		"required": []string{"city"},
	}

	require.NoError(t, ValidateParameters(map[string]any{"city": "Oslo", "days": float64(3)}, schema))

	// missing required field
	err := ValidateParameters(map[string]any{"days": float64(3)}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)
	assert.Contains(t, err.Error(), `parameter "city"`)

	// type mismatch
	err = ValidateParameters(map[string]any{"city": "Oslo", "days": "three"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "days", vErr.Field)
	assert.Equal(t, "three", vErr.Value)

	// fractional value for an integer field
	err = ValidateParameters(map[string]any{"city": "Oslo", "days": 2.5}, schema)
	require.ErrorAs(t, err, &vErr)

	// fields absent from the schema pass through
	require.NoError(t, ValidateParameters(map[string]any{"city": "Oslo", "extra": true}, schema))
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, RequiredFields(map[string]any{"required": []string{"a", "b"}}))

	// schemas decoded from JSON carry []any
	assert.Equal(t, []string{"a"}, RequiredFields(map[string]any{"required": []any{"a", 7}}))

	assert.Nil(t, RequiredFields(map[string]any{}))
}
