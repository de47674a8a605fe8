// Package event defines the streaming event taxonomy emitted by the policy
// executor, processors, and the packet pool. Consumers receive events on a
// channel and switch on the concrete type.
package event

import (
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/packet"
)

// Event is implemented by every streamed event. Meta identifies the producing
// processor invocation.
type Event interface {
	EventMeta() Meta
}

// Meta carries the common event envelope fields.
type Meta struct {
	ProcName string
	CallID   string
}

func (m Meta) EventMeta() Meta { return m }

// CompletionChunkEvent wraps one raw streaming delta from the model.
type CompletionChunkEvent struct {
	Meta
	Chunk *core.CompletionChunk
}

// CompletionEvent wraps a fully combined completion, emitted once per model
// call after all chunks are in.
type CompletionEvent struct {
	Meta
	Completion *core.Completion
}

// GenMessageEvent announces an assistant message appended to memory.
type GenMessageEvent struct {
	Meta
	Message *core.AssistantMessage
}

// UserMessageEvent announces a user message appended to memory.
type UserMessageEvent struct {
	Meta
	Message core.UserMessage
}

// ToolCallEvent announces a tool invocation about to be dispatched.
type ToolCallEvent struct {
	Meta
	ToolCall core.ToolCall
}

// ToolMessageEvent carries a tool result appended to memory.
type ToolMessageEvent struct {
	Meta
	Message core.ToolMessage
}

// ErrorEvent reports a failure observed while streaming; the run is torn down
// after it is delivered.
type ErrorEvent struct {
	Meta
	Err error
}

// PacketOutputEvent announces an output packet posted by a processor.
type PacketOutputEvent struct {
	Meta
	Packet *packet.Packet
}

// RunResultEvent carries the terminal packet of a run, i.e. the packet
// addressed to the end sentinel.
type RunResultEvent struct {
	Meta
	Packet *packet.Packet
}
