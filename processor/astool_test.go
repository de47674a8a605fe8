package processor

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
)

type lookupQuery struct {
	City string `json:"city" description:"City to look up"`
}

func TestAsTool(t *testing.T) {
	p := NewBase("lookup", func(o *BaseOptions) {
		o.InType = reflect.TypeOf(lookupQuery{})
		o.Process = func(ctx context.Context, rc *core.RunContext, in Input) ([]any, error) {
			q := in.Args[0].(lookupQuery)
			return []any{"weather in " + q.City}, nil
		}
	})

	lookupTool, err := AsTool(p, "lookup_weather", "Look up the weather for a city")
	require.NoError(t, err)
	assert.Equal(t, "lookup_weather", lookupTool.Name())

	props, ok := lookupTool.Parameters()["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")

	rc := core.NewRunContext()
	out, err := lookupTool.Call(context.Background(), rc, map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "weather in Oslo", out)
}

func TestAsTool_RequiresStructInputType(t *testing.T) {
	_, err := AsTool(NewBase("untyped"), "t", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a declared input type")

	p := NewBase("stringy", func(o *BaseOptions) {
		o.InType = reflect.TypeOf("")
	})

	_, err = AsTool(p, "t", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-struct input type")
}
