package core

import "sync"

// Usage captures token accounting for one or more completions. Cost is
// optional since most deployments do not configure pricing.
type Usage struct {
	InputTokens     int      `json:"input_tokens"`
	OutputTokens    int      `json:"output_tokens"`
	ReasoningTokens int      `json:"reasoning_tokens,omitempty"`
	CachedTokens    int      `json:"cached_tokens,omitempty"`
	Cost            *float64 `json:"cost,omitempty"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.CachedTokens += other.CachedTokens
	if other.Cost != nil {
		cost := *other.Cost
		if u.Cost != nil {
			cost += *u.Cost
		}
		u.Cost = &cost
	}
}

// TotalTokens returns input plus output tokens.
func (u *Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// UsageTracker accumulates per-processor token usage over a run. Safe for
// concurrent use by sibling processors.
type UsageTracker struct {
	mu       sync.Mutex
	sourceID string
	usages   map[string]*Usage
}

// NewUsageTracker creates a tracker scoped to a run id.
func NewUsageTracker(sourceID string) *UsageTracker {
	return &UsageTracker{sourceID: sourceID, usages: make(map[string]*Usage)}
}

// SourceID returns the run id this tracker is scoped to.
func (t *UsageTracker) SourceID() string { return t.sourceID }

// Update folds the usage of the given completions into procName's totals.
// Completions without usage are ignored.
func (t *UsageTracker) Update(procName string, completions ...*Completion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range completions {
		if c == nil || c.Usage == nil {
			continue
		}
		u, ok := t.usages[procName]
		if !ok {
			u = &Usage{}
			t.usages[procName] = u
		}
		u.Add(c.Usage)
	}
}

// Usage returns a copy of the accumulated usage for procName.
func (t *UsageTracker) Usage(procName string) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok := t.usages[procName]; ok {
		return *u
	}
	return Usage{}
}

// Total returns the usage summed across all processors.
func (t *UsageTracker) Total() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total Usage
	for _, u := range t.usages {
		total.Add(u)
	}
	return total
}
