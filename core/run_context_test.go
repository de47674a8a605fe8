package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickyPrinter struct{}

func (panickyPrinter) PrintMessages([]Message, []*Usage, string, string) {
	panic("boom")
}

type recordingPrinter struct {
	calls int
}

func (p *recordingPrinter) PrintMessages([]Message, []*Usage, string, string) { p.calls++ }

func TestRunContext_Defaults(t *testing.T) {
	rc := NewRunContext()

	assert.NotEmpty(t, rc.RunID())
	assert.NotNil(t, rc.Logger())
	assert.NotNil(t, rc.Usage())
	assert.Equal(t, rc.RunID(), rc.Usage().SourceID())

	_, ok := rc.RunArg("missing")
	assert.False(t, ok)
}

func TestRunContext_RunArgsAndState(t *testing.T) {
	type appState struct{ Counter int }

	rc := NewRunContext(func(o *RunContextOptions) {
		o.State = &appState{Counter: 1}
		o.RunArgs = map[string]any{"topic": "glaciers"}
	})

	topic, ok := rc.RunArg("topic")
	require.True(t, ok)
	assert.Equal(t, "glaciers", topic)

	state, ok := rc.State().(*appState)
	require.True(t, ok)
	assert.Equal(t, 1, state.Counter)
}

func TestRunContext_LogCompletion(t *testing.T) {
	rc := NewRunContext()

	rc.LogCompletion("writer", &Completion{ID: "c1", Usage: &Usage{InputTokens: 3, OutputTokens: 4}})
	rc.LogCompletion("writer", &Completion{ID: "c2"})
	rc.LogCompletion("writer", nil)

	completions := rc.Completions("writer")
	require.Len(t, completions, 2)
	assert.Equal(t, "c1", completions[0].ID)
	assert.Equal(t, "c2", completions[1].ID)

	usage := rc.Usage().Usage("writer")
	assert.Equal(t, 3, usage.InputTokens)
	assert.Equal(t, 4, usage.OutputTokens)

	assert.Empty(t, rc.Completions("critic"))
}

func TestRunContext_PrintMessagesRecoversPanic(t *testing.T) {
	rc := NewRunContext(func(o *RunContextOptions) {
		o.Printer = panickyPrinter{}
	})

	assert.NotPanics(t, func() {
		rc.PrintMessages([]Message{NewUserMessage("hi")}, nil, "writer", "call-1")
	})
}

func TestRunContext_PrintMessagesForwards(t *testing.T) {
	printer := &recordingPrinter{}
	rc := NewRunContext(func(o *RunContextOptions) {
		o.Printer = printer
	})

	rc.PrintMessages([]Message{NewUserMessage("hi")}, nil, "writer", "call-1")
	assert.Equal(t, 1, printer.calls)
}
