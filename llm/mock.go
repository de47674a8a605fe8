package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/tool"
)

// MockRequest records one generation request received by a MockLLM.
type MockRequest struct {
	Conversation core.Conversation
	Options      GenerateOptions
}

// MockLLM is a scripted in-memory LLM useful for tests and examples. Queue
// completions with Enqueue, or install a GenerateFn for input-dependent
// behavior; every request is recorded and can be inspected via Requests.
type MockLLM struct {
	modelName string

	// GenerateFn, when set, computes responses instead of the queue.
	GenerateFn func(ctx context.Context, conversation core.Conversation, opts GenerateOptions) (*core.Completion, error)

	mu             sync.Mutex
	tools          []tool.Tool
	responseFormat map[string]any
	queue          []*core.Completion
	requests       []MockRequest
}

// NewMockLLM creates a MockLLM reporting the given model name.
func NewMockLLM(modelName string) *MockLLM {
	return &MockLLM{modelName: modelName}
}

// Enqueue appends scripted completions consumed in FIFO order.
func (m *MockLLM) Enqueue(completions ...*core.Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, completions...)
}

// Requests returns a copy of all generation requests received so far.
func (m *MockLLM) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockRequest, len(m.requests))
	copy(out, m.requests)

	return out
}

// ModelName implements LLM.
func (m *MockLLM) ModelName() string { return m.modelName }

// Tools implements LLM.
func (m *MockLLM) Tools() []tool.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tools
}

// SetTools implements LLM.
func (m *MockLLM) SetTools(tools []tool.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tools = tools
}

// ResponseFormat implements LLM.
func (m *MockLLM) ResponseFormat() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.responseFormat
}

// SetResponseFormat implements LLM.
func (m *MockLLM) SetResponseFormat(format map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responseFormat = format
}

// GenerateCompletion implements LLM by replaying the scripted queue (or
// delegating to GenerateFn).
func (m *MockLLM) GenerateCompletion(ctx context.Context, conversation core.Conversation, optFns ...func(o *GenerateOptions)) (*core.Completion, error) {
	opts := GenerateOptions{NumChoices: 1}

	for _, fn := range optFns {
		fn(&opts)
	}

	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{Conversation: core.CloneConversation(conversation), Options: opts})
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, conversation, opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, fmt.Errorf("mock llm %q: no scripted completion left", m.modelName)
	}

	completion := m.queue[0]
	m.queue = m.queue[1:]

	return completion, nil
}

// GenerateCompletionStream implements LLM by splitting the next scripted
// completion into synthetic chunks.
func (m *MockLLM) GenerateCompletionStream(ctx context.Context, conversation core.Conversation, optFns ...func(o *GenerateOptions)) (<-chan *core.CompletionChunk, <-chan error) {
	chunkCh := make(chan *core.CompletionChunk, 8)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		completion, err := m.GenerateCompletion(ctx, conversation, optFns...)
		if err != nil {
			errCh <- err

			return
		}

		for _, chunk := range ChunksFromCompletion(completion) {
			select {
			case chunkCh <- chunk:
			case <-ctx.Done():
				errCh <- ctx.Err()

				return
			}
		}
	}()

	return chunkCh, errCh
}

// GenerateCompletionBatch implements LLM by generating one completion per
// conversation sequentially.
func (m *MockLLM) GenerateCompletionBatch(ctx context.Context, conversations []core.Conversation, optFns ...func(o *GenerateOptions)) ([]*core.Completion, error) {
	out := make([]*core.Completion, 0, len(conversations))

	for _, conversation := range conversations {
		completion, err := m.GenerateCompletion(ctx, conversation, optFns...)
		if err != nil {
			return nil, err
		}

		out = append(out, completion)
	}

	return out, nil
}

// ChunksFromCompletion splits a completion into a plausible chunk sequence:
// one chunk per content half, then a terminal chunk carrying tool calls,
// finish reason, and usage. Combining the result reproduces the completion's
// choices.
func ChunksFromCompletion(completion *core.Completion) []*core.CompletionChunk {
	var (
		opening  []core.ChunkChoice
		terminal []core.ChunkChoice
	)

	for _, choice := range completion.Choices {
		content := ""
		if choice.Message != nil {
			content = choice.Message.Content
		}

		half := len(content) / 2

		opening = append(opening, core.ChunkChoice{
			Index: choice.Index,
			Delta: core.ChunkChoiceDelta{
				Role:    core.RoleAssistant,
				Content: content[:half],
			},
		})

		var toolCalls []core.ChunkDeltaToolCall
		if choice.Message != nil {
			for i, call := range choice.Message.ToolCalls {
				call := call
				toolCalls = append(toolCalls, core.ChunkDeltaToolCall{
					ID:            &call.ID,
					Index:         i,
					ToolName:      &call.ToolName,
					ToolArguments: &call.ToolArguments,
				})
			}
		}

		terminal = append(terminal, core.ChunkChoice{
			Index: choice.Index,
			Delta: core.ChunkChoiceDelta{
				Content:   content[half:],
				ToolCalls: toolCalls,
			},
			FinishReason: choice.FinishReason,
		})
	}

	first := core.NewCompletionChunk(completion.Model, completion.Name, opening)
	first.ID = completion.ID
	first.SystemFingerprint = completion.SystemFingerprint
	first.Created = completion.Created

	last := core.NewCompletionChunk(completion.Model, completion.Name, terminal)
	last.ID = completion.ID
	last.SystemFingerprint = completion.SystemFingerprint
	last.Created = completion.Created
	last.Usage = completion.Usage

	return []*core.CompletionChunk{first, last}
}
