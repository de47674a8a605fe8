package testutil

import (
	"time"

	"github.com/hupe1980/agentswarm/core"
)

// CompletionBuilder provides a fluent helper for constructing completions in
// tests. Example:
//
//	c := NewCompletionBuilder().Text("hello").Build()
//	c := NewCompletionBuilder().ToolCall("call-1", "search", `{"q":"go"}`).Build()
//
// Chain only the parts you need; sensible defaults are applied. Each builder
// produces a single-choice completion; call Choice to start a further choice.
type CompletionBuilder struct {
	model   string
	name    string
	usage   *core.Usage
	choices []core.CompletionChoice
	current *core.AssistantMessage
	finish  core.FinishReason
}

// NewCompletionBuilder creates a builder with default model "test-model".
func NewCompletionBuilder() *CompletionBuilder {
	b := &CompletionBuilder{model: "test-model"}
	b.current = &core.AssistantMessage{}
	return b
}

// Model sets the model id recorded on the completion (chainable).
func (b *CompletionBuilder) Model(model string) *CompletionBuilder { b.model = model; return b }

// Name sets the producer name on the completion and its messages (chainable).
func (b *CompletionBuilder) Name(name string) *CompletionBuilder { b.name = name; return b }

// Text sets the assistant content of the current choice (chainable).
func (b *CompletionBuilder) Text(content string) *CompletionBuilder {
	b.current.Content = content
	b.finish = core.FinishReasonStop
	return b
}

// ToolCall appends a tool call to the current choice and marks the finish
// reason accordingly (chainable).
func (b *CompletionBuilder) ToolCall(id, name, arguments string) *CompletionBuilder {
	b.current.ToolCalls = append(b.current.ToolCalls, core.ToolCall{
		ID:            id,
		ToolName:      name,
		ToolArguments: arguments,
	})
	b.finish = core.FinishReasonToolCalls
	return b
}

// FinishReason overrides the inferred finish reason (chainable).
func (b *CompletionBuilder) FinishReason(reason core.FinishReason) *CompletionBuilder {
	b.finish = reason
	return b
}

// Usage attaches token usage to the completion (chainable).
func (b *CompletionBuilder) Usage(input, output int) *CompletionBuilder {
	b.usage = &core.Usage{InputTokens: input, OutputTokens: output}
	return b
}

// Choice finalizes the current choice and starts a new one (chainable).
func (b *CompletionBuilder) Choice() *CompletionBuilder {
	b.flush()
	b.current = &core.AssistantMessage{}
	b.finish = ""
	return b
}

func (b *CompletionBuilder) flush() {
	b.current.Name = b.name

	finish := b.finish
	if finish == "" {
		finish = core.FinishReasonStop
	}

	b.choices = append(b.choices, core.CompletionChoice{
		Index:        len(b.choices),
		Message:      b.current,
		FinishReason: finish,
	})
}

// Build assembles the completion.
func (b *CompletionBuilder) Build() *core.Completion {
	b.flush()

	completion := &core.Completion{
		ID:      core.NewShortID(),
		Model:   b.model,
		Name:    b.name,
		Created: time.Now().Unix(),
		Choices: b.choices,
		Usage:   b.usage,
	}

	b.choices = nil
	b.current = &core.AssistantMessage{}
	b.finish = ""

	return completion
}
