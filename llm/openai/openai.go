// Package openai adapts the OpenAI Chat Completions API (including streaming
// and function/tool calling) to the llm.LLM interface.
package openai

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/llm"
	"github.com/hupe1980/agentswarm/telemetry"
	"github.com/hupe1980/agentswarm/tool"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// so complete calls can be emitted once the stream settles.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI adapter. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// LLM wraps the OpenAI Chat Completions API behind the llm.LLM interface.
type LLM struct {
	client *openai.Client
	opts   Options

	mu             sync.RWMutex
	tools          []tool.Tool
	responseFormat map[string]any
}

// New creates an OpenAI LLM using the official client with ambient
// credentials.
func New(optFns ...func(o *Options)) *LLM {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an OpenAI LLM from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *LLM {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LLM{client: client, opts: opts}
}

// ModelName implements llm.LLM.
func (m *LLM) ModelName() string { return m.opts.Model }

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

// ResponseFormat implements llm.LLM.
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

// buildMessages converts the conversation into OpenAI chat messages.
func buildMessages(conversation core.Conversation) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, msg := range conversation {
		switch m := msg.(type) {
		case *core.SystemMessage:
			messages = append(messages, openai.SystemMessage(m.Content))
		case *core.UserMessage:
			messages = append(messages, openai.UserMessage(m.Content))
		case *core.AssistantMessage:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.ToolName,
						Arguments: tc.ToolArguments,
					},
				}
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				}},
			)
		case *core.ToolMessage:
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("openai: unsupported message type %T", msg)
		}
	}
	return messages, nil
}

// buildParams assembles the request parameters including tool definitions,
// tool choice, and the optional structured response format.
func (m *LLM) buildParams(
	messages []openai.ChatCompletionMessageParamUnion,
	opts llm.GenerateOptions,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if opts.NumChoices > 1 {
		params.N = openai.Int(int64(opts.NumChoices))
	}

	configured := m.Tools()
	if len(configured) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(configured))
		for i, t := range configured {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name(),
					Description: openai.String(t.Description()),
					Parameters:  t.Parameters(),
				},
			}
		}
		params.Tools = tools
	}

	if opts.ToolChoice != nil {
		switch opts.ToolChoice.Type {
		case llm.ToolChoiceNamed:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
					Type: "function",
					Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
						Name: opts.ToolChoice.Name,
					},
				},
			}
		default:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(string(opts.ToolChoice.Type)),
			}
		}
	}

	if format := m.ResponseFormat(); format != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				Type: "json_schema",
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: format,
				},
			},
		}
	}

	return params
}

// GenerateCompletion implements llm.LLM.
func (m *LLM) GenerateCompletion(ctx context.Context, conversation core.Conversation, optFns ...func(o *llm.GenerateOptions)) (*core.Completion, error) {
	opts := llm.GenerateOptions{NumChoices: 1}
	for _, fn := range optFns {
		fn(&opts)
	}

	messages, err := buildMessages(conversation)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "openai.generate",
		attribute.String("agentswarm.model", m.opts.Model),
		attribute.String("agentswarm.proc_name", opts.ProcName))

	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(messages, opts))
	telemetry.EndSpan(span, err)

	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices returned")
	}

	choices := make([]core.CompletionChoice, len(resp.Choices))
	for i, ch := range resp.Choices {
		message := &core.AssistantMessage{
			Name:    opts.ProcName,
			Content: ch.Message.Content,
		}
		for _, tc := range ch.Message.ToolCalls {
			message.ToolCalls = append(message.ToolCalls, core.ToolCall{
				ID:            tc.ID,
				ToolName:      tc.Function.Name,
				ToolArguments: tc.Function.Arguments,
			})
		}
		choices[i] = core.CompletionChoice{
			Index:        int(ch.Index),
			Message:      message,
			FinishReason: core.FinishReason(ch.FinishReason),
		}
	}

	return &core.Completion{
		ID:                resp.ID,
		Model:             resp.Model,
		Name:              opts.ProcName,
		SystemFingerprint: resp.SystemFingerprint,
		Created:           resp.Created,
		Choices:           choices,
		Usage: &core.Usage{
			InputTokens:     int(resp.Usage.PromptTokens),
			OutputTokens:    int(resp.Usage.CompletionTokens),
			ReasoningTokens: int(resp.Usage.CompletionTokensDetails.ReasoningTokens),
			CachedTokens:    int(resp.Usage.PromptTokensDetails.CachedTokens),
		},
	}, nil
}

// GenerateCompletionStream implements llm.LLM. Tool call argument fragments
// are aggregated per index so every emitted chunk carries the calls as
// assembled so far; the last chunk that sets them is complete.
func (m *LLM) GenerateCompletionStream(ctx context.Context, conversation core.Conversation, optFns ...func(o *llm.GenerateOptions)) (<-chan *core.CompletionChunk, <-chan error) {
	out := make(chan *core.CompletionChunk, 32)
	errCh := make(chan error, 1)

	opts := llm.GenerateOptions{NumChoices: 1}
	for _, fn := range optFns {
		fn(&opts)
	}

	go func() {
		defer close(out)
		defer close(errCh)

		messages, err := buildMessages(conversation)
		if err != nil {
			errCh <- err
			return
		}

		var streamErr error

		sctx, span := telemetry.StartSpan(ctx, "openai.generate_stream",
			attribute.String("agentswarm.model", m.opts.Model),
			attribute.String("agentswarm.proc_name", opts.ProcName))
		defer func() { telemetry.EndSpan(span, streamErr) }()

		stream := m.client.Chat.Completions.NewStreaming(sctx, m.buildParams(messages, opts))
		toolAgg := map[int64]*aggCall{}

		for stream.Next() {
			ck := stream.Current()

			chunk := &core.CompletionChunk{
				ID:                ck.ID,
				Created:           ck.Created,
				Model:             ck.Model,
				Name:              opts.ProcName,
				SystemFingerprint: ck.SystemFingerprint,
			}

			for _, ch := range ck.Choices {
				choice := core.ChunkChoice{
					Index: int(ch.Index),
					Delta: core.ChunkChoiceDelta{
						Role:    core.RoleAssistant,
						Content: ch.Delta.Content,
						Refusal: ch.Delta.Refusal,
					},
					FinishReason: core.FinishReason(ch.FinishReason),
				}

				for _, tc := range ch.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					if tc.Function.Arguments != "" {
						ac.args += tc.Function.Arguments
					}
				}

				if len(ch.Delta.ToolCalls) > 0 || ch.FinishReason == "tool_calls" {
					indexes := make([]int64, 0, len(toolAgg))
					for idx := range toolAgg {
						indexes = append(indexes, idx)
					}
					sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

					for _, idx := range indexes {
						// Snapshot the aggregate so later fragments don't
						// mutate already emitted chunks.
						id, name, args := toolAgg[idx].id, toolAgg[idx].name, toolAgg[idx].args
						choice.Delta.ToolCalls = append(choice.Delta.ToolCalls, core.ChunkDeltaToolCall{
							ID:            &id,
							Index:         int(idx),
							ToolName:      &name,
							ToolArguments: &args,
						})
					}
				}

				chunk.Choices = append(chunk.Choices, choice)
			}

			if ck.Usage.TotalTokens > 0 {
				chunk.Usage = &core.Usage{
					InputTokens:     int(ck.Usage.PromptTokens),
					OutputTokens:    int(ck.Usage.CompletionTokens),
					ReasoningTokens: int(ck.Usage.CompletionTokensDetails.ReasoningTokens),
					CachedTokens:    int(ck.Usage.PromptTokensDetails.CachedTokens),
				}
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				streamErr = ctx.Err()
				errCh <- streamErr
				return
			}
		}

		if err := stream.Err(); err != nil {
			streamErr = fmt.Errorf("openai streaming error: %w", err)
			errCh <- streamErr
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
