package core

import "fmt"

// CombineCompletionChunksError reports an invalid chunk sequence passed to
// CombineCompletionChunks. It is fatal: there is no partial-result fallback.
type CombineCompletionChunksError struct {
	Reason string
}

// Error implements the error interface.
func (e *CombineCompletionChunksError) Error() string {
	return fmt.Sprintf("combine completion chunks: %s", e.Reason)
}

// FinalAnswerError reports that an agent configured to deliver its final
// answer via a tool call finished without the model ever invoking the
// final-answer tool.
type FinalAnswerError struct {
	ProcName string
	CallID   string
}

// Error implements the error interface.
func (e *FinalAnswerError) Error() string {
	return fmt.Sprintf("processor %s (call %s): model did not provide a final answer via the final answer tool", e.ProcName, e.CallID)
}
