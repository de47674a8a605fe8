// Package anthropic adapts the Anthropic Messages API to the llm.LLM
// interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/internal/util"
	"github.com/hupe1980/agentswarm/llm"
	"github.com/hupe1980/agentswarm/telemetry"
	"github.com/hupe1980/agentswarm/tool"
)

// Options configures the Anthropic adapter (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// LLM wraps the Anthropic Messages API behind the llm.LLM interface.
type LLM struct {
	client *anthropic.Client
	opts   Options

	mu             sync.RWMutex
	tools          []tool.Tool
	responseFormat map[string]any
}

// New creates an Anthropic LLM using the official client.
func New(optFns ...func(o *Options)) *LLM {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &LLM{
		client: &client,
		opts:   opts,
	}
}

// NewFromClient creates an Anthropic LLM from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *LLM {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &LLM{
		client: client,
		opts:   opts,
	}
}

// ModelName implements llm.LLM.
func (m *LLM) ModelName() string { return string(m.opts.Model) }

// Tools implements llm.LLM.
func (m *LLM) Tools() []tool.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tools
}

// SetTools implements llm.LLM.
func (m *LLM) SetTools(tools []tool.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
}

// ResponseFormat implements llm.LLM. The Messages API has no structured
// output mode; the stored format is surfaced for callers but not enforced.
func (m *LLM) ResponseFormat() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.responseFormat
}

// SetResponseFormat implements llm.LLM.
func (m *LLM) SetResponseFormat(format map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFormat = format
}

// buildParams converts the conversation and options into Messages API
// parameters. System messages become the system prompt; tool messages become
// tool-result blocks inside user messages.
func (m *LLM) buildParams(conversation core.Conversation, opts llm.GenerateOptions) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	var (
		messages     []anthropic.MessageParam
		systemBlocks []anthropic.TextBlockParam
	)

	for _, msg := range conversation {
		switch c := msg.(type) {
		case *core.SystemMessage:
			if c.Content != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: c.Content})
			}
		case *core.UserMessage:
			if c.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(c.Content)))
			}
		case *core.AssistantMessage:
			var content []anthropic.ContentBlockParamUnion

			if c.Content != "" {
				content = append(content, anthropic.NewTextBlock(c.Content))
			}

			for _, tc := range c.ToolCalls {
				var input any
				if tc.ToolArguments != "" {
					if err := json.Unmarshal([]byte(tc.ToolArguments), &input); err != nil {
						input = tc.ToolArguments
					}
				}

				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.ToolName))
			}

			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case *core.ToolMessage:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(c.ToolCallID, c.Content, false),
			))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: unsupported message type %T", msg)
		}
	}

	params.Messages = messages

	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	configured := m.Tools()
	if len(configured) > 0 {
		tools := make([]anthropic.ToolUnionParam, len(configured))
		for i, t := range configured {
			tools[i] = anthropic.ToolUnionParamOfTool(inputSchema(t.Parameters()), t.Name())
		}
		params.Tools = tools
	}

	if opts.ToolChoice != nil {
		switch opts.ToolChoice.Type {
		case llm.ToolChoiceAuto:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		case llm.ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		case llm.ToolChoiceNone:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		case llm.ToolChoiceNamed:
			params.ToolChoice = anthropic.ToolChoiceParamOfTool(opts.ToolChoice.Name)
		}
	}

	return params, nil
}

// inputSchema maps a JSON schema onto the Messages API tool input schema.
func inputSchema(parameters map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}

	if parameters == nil {
		return schema
	}

	if properties, exists := parameters["properties"]; exists {
		schema.Properties = properties
	}

	schema.Required = util.RequiredFields(parameters)

	return schema
}

func finishReason(stopReason anthropic.StopReason) core.FinishReason {
	switch stopReason {
	case anthropic.StopReasonToolUse:
		return core.FinishReasonToolCalls
	case anthropic.StopReasonMaxTokens:
		return core.FinishReasonLength
	default:
		return core.FinishReasonStop
	}
}

// GenerateCompletion implements llm.LLM.
func (m *LLM) GenerateCompletion(ctx context.Context, conversation core.Conversation, optFns ...func(o *llm.GenerateOptions)) (*core.Completion, error) {
	opts := llm.GenerateOptions{NumChoices: 1}
	for _, fn := range optFns {
		fn(&opts)
	}

	params, err := m.buildParams(conversation, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "anthropic.generate",
		attribute.String("agentswarm.model", string(m.opts.Model)),
		attribute.String("agentswarm.proc_name", opts.ProcName))

	resp, err := m.client.Messages.New(ctx, params)
	telemetry.EndSpan(span, err)

	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	message := &core.AssistantMessage{Name: opts.ProcName}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			message.Content += block.AsText().Text
		case "thinking":
			thinking := block.AsThinking()
			message.ThinkingBlocks = append(message.ThinkingBlocks, core.ThinkingBlock{
				Type:      "thinking",
				Thinking:  thinking.Thinking,
				Signature: thinking.Signature,
			})
		case "tool_use":
			toolUse := block.AsToolUse()

			args := ""
			if toolUse.Input != nil {
				if raw, err := json.Marshal(toolUse.Input); err == nil {
					args = string(raw)
				}
			}

			message.ToolCalls = append(message.ToolCalls, core.ToolCall{
				ID:            toolUse.ID,
				ToolName:      toolUse.Name,
				ToolArguments: args,
			})
		}
	}

	return &core.Completion{
		ID:      resp.ID,
		Model:   string(resp.Model),
		Name:    opts.ProcName,
		Created: time.Now().Unix(),
		Choices: []core.CompletionChoice{{
			Message:      message,
			FinishReason: finishReason(resp.StopReason),
		}},
		Usage: &core.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			CachedTokens: int(resp.Usage.CacheReadInputTokens),
		},
	}, nil
}

// GenerateCompletionStream implements llm.LLM by generating the full message
// and replaying it as a synthetic chunk sequence.
func (m *LLM) GenerateCompletionStream(ctx context.Context, conversation core.Conversation, optFns ...func(o *llm.GenerateOptions)) (<-chan *core.CompletionChunk, <-chan error) {
	out := make(chan *core.CompletionChunk, 8)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		completion, err := m.GenerateCompletion(ctx, conversation, optFns...)
		if err != nil {
			errCh <- err
			return
		}

		for _, chunk := range llm.ChunksFromCompletion(completion) {
			select {
			case out <- chunk:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

// GenerateCompletionBatch implements llm.LLM with one request per
// conversation.
func (m *LLM) GenerateCompletionBatch(ctx context.Context, conversations []core.Conversation, optFns ...func(o *llm.GenerateOptions)) ([]*core.Completion, error) {
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
