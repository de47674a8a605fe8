package core

import (
	"fmt"
	"sort"
)

// EmptyContentSentinel is substituted for a choice that streamed no content
// so downstream consumers always have a content field to display.
const EmptyContentSentinel = "<empty>"

// choiceAccumulator gathers the per-index state while folding chunks.
type choiceAccumulator struct {
	content          string
	reasoningContent string
	refusal          string
	logpContent      []TokenLogprob
	logpRefusal      []TokenLogprob
	thinkingBlocks   []ThinkingBlock
	annotations      []map[string]any
	finishReason     FinishReason
	toolCalls        []ChunkDeltaToolCall
}

// CombineCompletionChunks reduces an ordered, non-empty chunk sequence into
// one Completion. The reduction is deterministic and side-effect free:
// identical inputs always produce identical outputs.
//
// Model, Name and SystemFingerprint must be identical across all chunks.
// Created is the maximum timestamp observed; Usage is taken from the last
// chunk. Per choice index, content-like fields are concatenated in chunk
// order while FinishReason and ToolCalls are taken from the last chunk that
// set them. Tool calls missing an id, name or arguments are rejected.
func CombineCompletionChunks(chunks []*CompletionChunk) (*Completion, error) {
	if len(chunks) == 0 {
		return nil, &CombineCompletionChunksError{Reason: "cannot combine an empty sequence of completion chunks"}
	}

	model := chunks[0].Model
	name := chunks[0].Name
	fingerprint := chunks[0].SystemFingerprint
	created := chunks[0].Created

	for _, chunk := range chunks {
		if chunk.Model != model {
			return nil, &CombineCompletionChunksError{Reason: "all chunks must have the same model"}
		}
		if chunk.Name != name {
			return nil, &CombineCompletionChunksError{Reason: "all chunks must have the same name"}
		}
		if chunk.SystemFingerprint != fingerprint {
			return nil, &CombineCompletionChunksError{Reason: "all chunks must have the same system fingerprint"}
		}
		if chunk.Created > created {
			created = chunk.Created
		}
	}

	// Usage is emitted once, on the final chunk, if requested.
	usage := chunks[len(chunks)-1].Usage

	accs := make(map[int]*choiceAccumulator)
	for _, chunk := range chunks {
		for _, choice := range chunk.Choices {
			acc, ok := accs[choice.Index]
			if !ok {
				acc = &choiceAccumulator{}
				accs[choice.Index] = acc
			}

			acc.content += choice.Delta.Content
			acc.reasoningContent += choice.Delta.ReasoningContent
			acc.refusal += choice.Delta.Refusal

			if choice.Logprobs != nil {
				acc.logpContent = append(acc.logpContent, choice.Logprobs.Content...)
				acc.logpRefusal = append(acc.logpRefusal, choice.Logprobs.Refusal...)
			}
			acc.thinkingBlocks = append(acc.thinkingBlocks, choice.Delta.ThinkingBlocks...)
			acc.annotations = append(acc.annotations, choice.Delta.Annotations...)

			if choice.FinishReason != "" {
				acc.finishReason = choice.FinishReason
			}
			if choice.Delta.ToolCalls != nil {
				acc.toolCalls = choice.Delta.ToolCalls
			}
		}
	}

	indexes := make([]int, 0, len(accs))
	for index := range accs {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	choices := make([]CompletionChoice, 0, len(indexes))
	for _, index := range indexes {
		acc := accs[index]

		var toolCalls []ToolCall
		for _, tc := range acc.toolCalls {
			if tc.ID == nil || tc.ToolName == nil || tc.ToolArguments == nil {
				return nil, &CombineCompletionChunksError{
					Reason: fmt.Sprintf("tool call at choice index %d must have id, tool name and tool arguments set", index),
				}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:            *tc.ID,
				ToolName:      *tc.ToolName,
				ToolArguments: *tc.ToolArguments,
			})
		}

		content := acc.content
		if content == "" {
			content = EmptyContentSentinel
		}

		msg := &AssistantMessage{
			Name:             name,
			Content:          content,
			ReasoningContent: acc.reasoningContent,
			ThinkingBlocks:   acc.thinkingBlocks,
			Annotations:      acc.annotations,
			Refusal:          acc.refusal,
			ToolCalls:        toolCalls,
		}

		var logprobs *ChoiceLogprobs
		if len(acc.logpContent) > 0 || len(acc.logpRefusal) > 0 {
			logprobs = &ChoiceLogprobs{Content: acc.logpContent, Refusal: acc.logpRefusal}
		}

		choices = append(choices, CompletionChoice{
			Index:        index,
			Message:      msg,
			FinishReason: acc.finishReason,
			Logprobs:     logprobs,
		})
	}

	return &Completion{
		ID:                chunks[0].ID,
		Model:             model,
		Name:              name,
		SystemFingerprint: fingerprint,
		Created:           created,
		Choices:           choices,
		Usage:             usage,
	}, nil
}
