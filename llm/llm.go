// Package llm defines the language model client contract consumed by the
// policy executor, plus the tool choice vocabulary shared by all providers.
// Concrete bindings live in the llm/openai and llm/anthropic subpackages.
package llm

import (
	"context"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/tool"
)

// ToolChoiceType selects how the model may use tools on a generation.
type ToolChoiceType string

const (
	// ToolChoiceNone forbids tool calls for this generation.
	ToolChoiceNone ToolChoiceType = "none"
	// ToolChoiceAuto lets the model decide whether to call tools.
	ToolChoiceAuto ToolChoiceType = "auto"
	// ToolChoiceRequired forces the model to call at least one tool.
	ToolChoiceRequired ToolChoiceType = "required"
	// ToolChoiceNamed pins the generation to one specific tool.
	ToolChoiceNamed ToolChoiceType = "named"
)

// ToolChoice constrains tool usage for a single generation. Name is only
// meaningful for ToolChoiceNamed.
type ToolChoice struct {
	Type ToolChoiceType
	Name string
}

// NamedToolChoice pins generation to the given tool.
func NamedToolChoice(name string) *ToolChoice {
	return &ToolChoice{Type: ToolChoiceNamed, Name: name}
}

// GenerateOptions carries per-call generation parameters.
type GenerateOptions struct {
	// ToolChoice constrains tool usage; nil means provider default.
	ToolChoice *ToolChoice
	// NumChoices requests n alternatives (providers may ignore >1).
	NumChoices int
	// ProcName is stamped onto completions as the producer agent name.
	ProcName string
	// CallID correlates the generation with a processor call.
	CallID string
}

// LLM is the minimal client interface required to drive the turn loop.
// Implementations own provider marshaling, retries and timeouts; the policy
// executor never sees wire formats.
type LLM interface {
	// ModelName identifies the underlying model for logging and usage tracking.
	ModelName() string

	// Tools returns the tools currently exposed to the model.
	Tools() []tool.Tool

	// SetTools replaces the tool set exposed to the model.
	SetTools(tools []tool.Tool)

	// ResponseFormat returns the JSON schema constraining plain completions,
	// or nil when unconstrained.
	ResponseFormat() map[string]any

	// SetResponseFormat constrains plain completions to a JSON schema.
	SetResponseFormat(schema map[string]any)

	// GenerateCompletion runs one blocking generation over the conversation.
	GenerateCompletion(ctx context.Context, conv core.Conversation, optFns ...func(o *GenerateOptions)) (*core.Completion, error)

	// GenerateCompletionStream runs one streaming generation. The chunk
	// channel is closed when the stream ends; the error channel carries at
	// most one terminal error.
	GenerateCompletionStream(ctx context.Context, conv core.Conversation, optFns ...func(o *GenerateOptions)) (<-chan *core.CompletionChunk, <-chan error)

	// GenerateCompletionBatch runs one generation per conversation.
	GenerateCompletionBatch(ctx context.Context, convs []core.Conversation, optFns ...func(o *GenerateOptions)) ([]*core.Completion, error)
}
