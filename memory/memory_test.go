package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
)

var _ Memory = (*AgentMemory)(nil)
var _ Memory = NoOpMemory{}

func TestAgentMemory_SeedsInstructions(t *testing.T) {
	mem := NewAgentMemory("You are a poet.")

	require.False(t, mem.IsEmpty())
	conversation := mem.Conversation()
	require.Len(t, conversation, 1)

	sys, ok := conversation[0].(*core.SystemMessage)
	require.True(t, ok)
	assert.Equal(t, "You are a poet.", sys.Content)
}

func TestAgentMemory_EmptyInstructions(t *testing.T) {
	mem := NewAgentMemory("")
	assert.True(t, mem.IsEmpty())
	assert.Empty(t, mem.Conversation())
}

func TestAgentMemory_UpdateAndErase(t *testing.T) {
	mem := NewAgentMemory("sys")
	mem.Update(core.NewUserMessage("hello"), &core.AssistantMessage{Content: "hi"})

	require.Len(t, mem.Conversation(), 3)

	mem.Erase()
	assert.True(t, mem.IsEmpty())
}

func TestAgentMemory_ResetReplacesTranscript(t *testing.T) {
	mem := NewAgentMemory("old")
	mem.Update(core.NewUserMessage("hello"))

	mem.Reset("new instructions")

	conversation := mem.Conversation()
	require.Len(t, conversation, 1)

	sys, ok := conversation[0].(*core.SystemMessage)
	require.True(t, ok)
	assert.Equal(t, "new instructions", sys.Content)
}

func TestAgentMemory_CloneIsIndependent(t *testing.T) {
	mem := NewAgentMemory("sys")
	mem.Update(core.NewUserMessage("one"))

	clone := mem.Clone()
	clone.Update(core.NewUserMessage("two"))

	assert.Len(t, mem.Conversation(), 2)
	assert.Len(t, clone.Conversation(), 3)
}

func TestAgentMemory_String(t *testing.T) {
	mem := NewAgentMemory("sys")
	assert.Equal(t, "AgentMemory(messages=1)", mem.String())
}
