package core

import "time"

// ChunkDeltaToolCall is a tool call fragment inside a streamed delta. All
// fields are pointers because providers may omit any of them on a given
// chunk; the combiner validates completeness at the end of the stream.
type ChunkDeltaToolCall struct {
	ID            *string `json:"id"`
	Index         int     `json:"index"`
	ToolName      *string `json:"tool_name"`
	ToolArguments *string `json:"tool_arguments"`
}

// ChunkChoiceDelta is the incremental payload of one choice in one chunk.
type ChunkChoiceDelta struct {
	Content          string               `json:"content,omitempty"`
	Refusal          string               `json:"refusal,omitempty"`
	Role             Role                 `json:"role,omitempty"`
	ToolCalls        []ChunkDeltaToolCall `json:"tool_calls,omitempty"`
	ReasoningContent string               `json:"reasoning_content,omitempty"`
	ThinkingBlocks   []ThinkingBlock      `json:"thinking_blocks,omitempty"`
	Annotations      []map[string]any     `json:"annotations,omitempty"`
}

// ChunkChoice is one choice entry of a streamed chunk.
type ChunkChoice struct {
	Delta        ChunkChoiceDelta `json:"delta"`
	FinishReason FinishReason     `json:"finish_reason,omitempty"`
	Index        int              `json:"index"`
	Logprobs     *ChoiceLogprobs  `json:"logprobs,omitempty"`
}

// CompletionChunk is one incremental streaming update of a completion.
// Chunks belonging to the same logical completion share Model, Name and
// SystemFingerprint; Usage is populated on the final chunk only.
type CompletionChunk struct {
	ID                string        `json:"id"`
	Created           int64         `json:"created"`
	Model             string        `json:"model,omitempty"`
	Name              string        `json:"name,omitempty"` // producer agent
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *Usage        `json:"usage,omitempty"`
}

// NewCompletionChunk creates a chunk with a fresh id and current timestamp.
func NewCompletionChunk(model, name string, choices []ChunkChoice) *CompletionChunk {
	return &CompletionChunk{
		ID:      NewShortID(),
		Created: time.Now().Unix(),
		Model:   model,
		Name:    name,
		Choices: choices,
	}
}
