package memory

import (
	"fmt"

	"github.com/hupe1980/agentswarm/core"
)

// Memory is the abstract conversational state an agent owns across turns.
//
// Implementations decide what "reset" and "update" mean for their backing
// store; the policy executor only ever appends through Update and checks
// IsEmpty before deciding whether to (re)seed the system prompt.
type Memory interface {
	// Reset discards all state and optionally seeds a fresh system message.
	// An empty instructions string resets to a truly empty transcript.
	Reset(instructions string)

	// Erase discards all state without reseeding.
	Erase()

	// Update appends messages to the transcript in the given order.
	Update(messages ...core.Message)

	// IsEmpty reports whether the transcript holds no messages.
	IsEmpty() bool
}

// NoOpMemory is a Memory that retains nothing. Useful for stateless tools-only
// agents and as a test double.
type NoOpMemory struct{}

func (NoOpMemory) Reset(string)            {}
func (NoOpMemory) Erase()                  {}
func (NoOpMemory) Update(...core.Message)  {}
func (NoOpMemory) IsEmpty() bool           { return true }

// AgentMemory is the default Memory used by LLM agents: an ordered, append-only
// conversation transcript. It is exclusively owned by its agent; when a run
// must not mutate the agent's persistent state, take a Clone first and swap it
// back (or discard it) when the run completes.
//
// AgentMemory is not safe for concurrent use. The runtime guarantees at most
// one in-flight run per agent name, which is the only writer.
type AgentMemory struct {
	conversation core.Conversation
}

// NewAgentMemory creates an empty AgentMemory. Pass instructions to seed the
// transcript with a system message.
func NewAgentMemory(instructions string) *AgentMemory {
	m := &AgentMemory{}
	m.Reset(instructions)

	return m
}

// Reset replaces the transcript with a single system message built from
// instructions, or with an empty transcript if instructions is empty.
func (m *AgentMemory) Reset(instructions string) {
	if instructions == "" {
		m.conversation = core.Conversation{}
		return
	}

	m.conversation = core.Conversation{&core.SystemMessage{Content: instructions}}
}

// Erase discards the transcript entirely, including any system message.
func (m *AgentMemory) Erase() {
	m.conversation = core.Conversation{}
}

// Update appends messages to the transcript in call order.
func (m *AgentMemory) Update(messages ...core.Message) {
	m.conversation = append(m.conversation, messages...)
}

// IsEmpty reports whether the transcript holds no messages.
func (m *AgentMemory) IsEmpty() bool {
	return len(m.conversation) == 0
}

// Conversation returns the live transcript. Callers must not mutate it while
// a run is in flight; use Clone for an isolated copy.
func (m *AgentMemory) Conversation() core.Conversation {
	return m.conversation
}

// SetConversation replaces the transcript wholesale. Used by agents that
// restore a cloned memory after a forgetful run.
func (m *AgentMemory) SetConversation(conversation core.Conversation) {
	m.conversation = conversation
}

// Clone returns a deep copy of the memory. Mutations of the clone (or of the
// original) are invisible to the other.
func (m *AgentMemory) Clone() *AgentMemory {
	return &AgentMemory{conversation: core.CloneConversation(m.conversation)}
}

// String renders a short summary, handy in log output.
func (m *AgentMemory) String() string {
	return fmt.Sprintf("AgentMemory(messages=%d)", len(m.conversation))
}
