package core

// FinishReason reports why a model stopped generating a choice.
type FinishReason string

const (
	// FinishReasonStop signals natural end of generation.
	FinishReasonStop FinishReason = "stop"
	// FinishReasonLength signals the token limit was hit.
	FinishReasonLength FinishReason = "length"
	// FinishReasonToolCalls signals the model requested tool execution.
	FinishReasonToolCalls FinishReason = "tool_calls"
	// FinishReasonContentFilter signals provider-side content filtering.
	FinishReasonContentFilter FinishReason = "content_filter"
	// FinishReasonFunctionCall is the legacy function-calling stop reason.
	FinishReasonFunctionCall FinishReason = "function_call"
)

// TokenLogprob is the log-probability record for a single generated token.
type TokenLogprob struct {
	Token       string        `json:"token"`
	Logprob     float64       `json:"logprob"`
	Bytes       []int64       `json:"bytes,omitempty"`
	TopLogprobs []TokenLogprob `json:"top_logprobs,omitempty"`
}

// ChoiceLogprobs aggregates token log-probabilities for one choice.
type ChoiceLogprobs struct {
	Content []TokenLogprob `json:"content,omitempty"`
	Refusal []TokenLogprob `json:"refusal,omitempty"`
}

// CompletionChoice is one alternative the model produced.
type CompletionChoice struct {
	Index        int               `json:"index"`
	Message      *AssistantMessage `json:"message"`
	FinishReason FinishReason      `json:"finish_reason,omitempty"`
	Logprobs     *ChoiceLogprobs   `json:"logprobs,omitempty"`
}

// CompletionError carries a provider error attached to a completion.
type CompletionError struct {
	Message  string            `json:"message"`
	Code     int               `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Completion is one full model response. Choices is non-empty unless Error is
// set.
type Completion struct {
	ID                string             `json:"id"`
	Model             string             `json:"model,omitempty"`
	Name              string             `json:"name,omitempty"` // producer agent
	SystemFingerprint string             `json:"system_fingerprint,omitempty"`
	Created           int64              `json:"created"`
	Choices           []CompletionChoice `json:"choices"`
	Usage             *Usage             `json:"usage,omitempty"`
	Error             *CompletionError   `json:"error,omitempty"`
}

// Messages returns one assistant message per choice, in choice order.
func (c *Completion) Messages() []*AssistantMessage {
	msgs := make([]*AssistantMessage, 0, len(c.Choices))
	for _, choice := range c.Choices {
		if choice.Message != nil {
			msgs = append(msgs, choice.Message)
		}
	}
	return msgs
}
