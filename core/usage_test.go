package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsageAdd(t *testing.T) {
	u := &Usage{InputTokens: 10, OutputTokens: 5}
	u.Add(&Usage{InputTokens: 2, OutputTokens: 3, ReasoningTokens: 1, CachedTokens: 4})

	assert.Equal(t, 12, u.InputTokens)
	assert.Equal(t, 8, u.OutputTokens)
	assert.Equal(t, 1, u.ReasoningTokens)
	assert.Equal(t, 4, u.CachedTokens)
	assert.Equal(t, 20, u.TotalTokens())

	// nil is a no-op
	u.Add(nil)
	assert.Equal(t, 12, u.InputTokens)
}

func TestUsageTracker(t *testing.T) {
	tracker := NewUsageTracker("run-1")
	assert.Equal(t, "run-1", tracker.SourceID())

	tracker.Update("writer",
		&Completion{Usage: &Usage{InputTokens: 10, OutputTokens: 1}},
		&Completion{Usage: &Usage{InputTokens: 20, OutputTokens: 2}},
		&Completion{}, // no usage, ignored
		nil,
	)
	tracker.Update("critic", &Completion{Usage: &Usage{InputTokens: 5, OutputTokens: 5}})

	writer := tracker.Usage("writer")
	assert.Equal(t, 30, writer.InputTokens)
	assert.Equal(t, 3, writer.OutputTokens)

	assert.Equal(t, Usage{}, tracker.Usage("unknown"))

	total := tracker.Total()
	assert.Equal(t, 35, total.InputTokens)
	assert.Equal(t, 8, total.OutputTokens)
}
