package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the conversational role of a message.
type Role string

const (
	// RoleSystem marks instructions injected ahead of the conversation.
	RoleSystem Role = "system"
	// RoleUser marks end-user (or upstream processor) input.
	RoleUser Role = "user"
	// RoleAssistant marks model-generated output.
	RoleAssistant Role = "assistant"
	// RoleTool marks the result of a tool invocation.
	RoleTool Role = "tool"
)

// Message is implemented by every conversation entry. The concrete set is
// closed: SystemMessage, UserMessage, AssistantMessage and ToolMessage.
type Message interface {
	MessageRole() Role
}

// Conversation is an ordered message transcript as sent to a model.
type Conversation []Message

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID            string `json:"id"`
	ToolName      string `json:"tool_name"`
	ToolArguments string `json:"tool_arguments"` // serialized JSON
}

// ThinkingBlock carries provider reasoning output attached to an assistant
// message. Redacted blocks keep only Data.
type ThinkingBlock struct {
	Type      string `json:"type"` // "thinking" or "redacted_thinking"
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`
}

// SystemMessage is a system instruction entry.
type SystemMessage struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// MessageRole implements Message.
func (*SystemMessage) MessageRole() Role { return RoleSystem }

// UserMessage is a user-authored entry.
type UserMessage struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// MessageRole implements Message.
func (*UserMessage) MessageRole() Role { return RoleUser }

// NewUserMessage creates a user message with plain text content.
func NewUserMessage(text string) *UserMessage { return &UserMessage{Content: text} }

// AssistantMessage is a model-generated entry. ToolCalls may be cleared in
// place once a final answer has been extracted from it, so assistant messages
// are always handled by pointer.
type AssistantMessage struct {
	Name             string              `json:"name,omitempty"` // producer agent
	Content          string              `json:"content"`
	ReasoningContent string              `json:"reasoning_content,omitempty"`
	ThinkingBlocks   []ThinkingBlock     `json:"thinking_blocks,omitempty"`
	Annotations      []map[string]any    `json:"annotations,omitempty"`
	Refusal          string              `json:"refusal,omitempty"`
	ToolCalls        []ToolCall          `json:"tool_calls,omitempty"`
	Usage            *Usage              `json:"usage,omitempty"`
}

// MessageRole implements Message.
func (*AssistantMessage) MessageRole() Role { return RoleAssistant }

// ToolMessage carries a tool's output back into the conversation, correlated
// to the originating call by ToolCallID.
type ToolMessage struct {
	Name       string `json:"name,omitempty"` // tool name
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id"`
}

// MessageRole implements Message.
func (*ToolMessage) MessageRole() Role { return RoleTool }

// NewToolMessage builds a ToolMessage from a tool output and the call that
// produced it. Non-string outputs are JSON encoded.
func NewToolMessage(out any, call ToolCall) (*ToolMessage, error) {
	content, ok := out.(string)
	if !ok {
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode result of tool %q: %w", call.ToolName, err)
		}
		content = string(b)
	}
	return &ToolMessage{
		Name:       call.ToolName,
		Content:    content,
		ToolCallID: call.ID,
	}, nil
}

// CloneConversation deep-copies a conversation. Assistant messages are copied
// by value (including tool call slices) so a mutation in the copy never leaks
// into the original transcript.
func CloneConversation(conv Conversation) Conversation {
	out := make(Conversation, 0, len(conv))
	for _, m := range conv {
		switch msg := m.(type) {
		case *SystemMessage:
			c := *msg
			out = append(out, &c)
		case *UserMessage:
			c := *msg
			out = append(out, &c)
		case *AssistantMessage:
			c := *msg
			if msg.ToolCalls != nil {
				c.ToolCalls = append([]ToolCall(nil), msg.ToolCalls...)
			}
			if msg.ThinkingBlocks != nil {
				c.ThinkingBlocks = append([]ThinkingBlock(nil), msg.ThinkingBlocks...)
			}
			out = append(out, &c)
		case *ToolMessage:
			c := *msg
			out = append(out, &c)
		default:
			out = append(out, m)
		}
	}
	return out
}
