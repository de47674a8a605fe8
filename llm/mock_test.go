package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
)

var _ LLM = (*MockLLM)(nil)

func TestMockLLM_ScriptedQueue(t *testing.T) {
	m := NewMockLLM("test-model")
	m.Enqueue(
		&core.Completion{ID: "c1", Model: "test-model", Choices: []core.CompletionChoice{{Message: &core.AssistantMessage{Content: "one"}}}},
		&core.Completion{ID: "c2", Model: "test-model", Choices: []core.CompletionChoice{{Message: &core.AssistantMessage{Content: "two"}}}},
	)

	conversation := core.Conversation{core.NewUserMessage("hi")}

	first, err := m.GenerateCompletion(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "c1", first.ID)

	second, err := m.GenerateCompletion(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "c2", second.ID)

	_, err = m.GenerateCompletion(context.Background(), conversation)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scripted completion")
}

func TestMockLLM_RecordsRequests(t *testing.T) {
	m := NewMockLLM("test-model")
	m.Enqueue(&core.Completion{ID: "c1", Choices: []core.CompletionChoice{{Message: &core.AssistantMessage{}}}})

	_, err := m.GenerateCompletion(context.Background(), core.Conversation{core.NewUserMessage("hi")}, func(o *GenerateOptions) {
		o.ProcName = "writer"
		o.ToolChoice = &ToolChoice{Type: ToolChoiceRequired}
	})
	require.NoError(t, err)

	requests := m.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "writer", requests[0].Options.ProcName)
	require.NotNil(t, requests[0].Options.ToolChoice)
	assert.Equal(t, ToolChoiceRequired, requests[0].Options.ToolChoice.Type)
	assert.Len(t, requests[0].Conversation, 1)
}

func TestMockLLM_GenerateFnOverride(t *testing.T) {
	m := NewMockLLM("test-model")
	m.GenerateFn = func(ctx context.Context, conversation core.Conversation, opts GenerateOptions) (*core.Completion, error) {
		return &core.Completion{ID: "fn", Choices: []core.CompletionChoice{{Message: &core.AssistantMessage{Content: "dynamic"}}}}, nil
	}

	c, err := m.GenerateCompletion(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "fn", c.ID)
}

func TestChunksFromCompletion_RoundTrip(t *testing.T) {
	original := &core.Completion{
		ID:      "c1",
		Model:   "test-model",
		Name:    "writer",
		Created: 7,
		Choices: []core.CompletionChoice{{
			Message: &core.AssistantMessage{
				Name:    "writer",
				Content: "hello world",
				ToolCalls: []core.ToolCall{
					{ID: "call-1", ToolName: "search", ToolArguments: `{"q":"go"}`},
				},
			},
			FinishReason: core.FinishReasonToolCalls,
		}},
		Usage: &core.Usage{InputTokens: 3, OutputTokens: 4},
	}

	chunks := ChunksFromCompletion(original)
	require.GreaterOrEqual(t, len(chunks), 2)

	combined, err := core.CombineCompletionChunks(chunks)
	require.NoError(t, err)

	assert.Equal(t, original.ID, combined.ID)
	assert.Equal(t, original.Model, combined.Model)
	require.Len(t, combined.Choices, 1)
	assert.Equal(t, "hello world", combined.Choices[0].Message.Content)
	assert.Equal(t, original.Choices[0].Message.ToolCalls, combined.Choices[0].Message.ToolCalls)
	assert.Equal(t, core.FinishReasonToolCalls, combined.Choices[0].FinishReason)
	require.NotNil(t, combined.Usage)
	assert.Equal(t, 4, combined.Usage.OutputTokens)
}

func TestMockLLM_Stream(t *testing.T) {
	m := NewMockLLM("test-model")
	m.Enqueue(&core.Completion{
		ID:      "c1",
		Model:   "test-model",
		Choices: []core.CompletionChoice{{Message: &core.AssistantMessage{Content: "streamed"}, FinishReason: core.FinishReasonStop}},
	})

	chunkCh, errCh := m.GenerateCompletionStream(context.Background(), nil)

	var chunks []*core.CompletionChunk
	for chunk := range chunkCh {
		chunks = append(chunks, chunk)
	}
	require.NoError(t, <-errCh)

	combined, err := core.CombineCompletionChunks(chunks)
	require.NoError(t, err)
	assert.Equal(t, "streamed", combined.Choices[0].Message.Content)
}
