package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/llm"
	"github.com/hupe1980/agentswarm/memory"
	"github.com/hupe1980/agentswarm/telemetry"
	"github.com/hupe1980/agentswarm/tool"
)

// FinalAnswerToolName is the name of the synthetic tool appended to the tool
// set when final-answer-as-tool-call mode is enabled.
const FinalAnswerToolName = "final_answer"

// ToolCallLoopTerminator decides, between turns, whether the tool-call loop
// should end. It sees the full conversation and the number of completed
// turns. Only consulted when final-answer-as-tool-call mode is off.
type ToolCallLoopTerminator func(ctx context.Context, rc *core.RunContext, conversation core.Conversation, numTurns int) bool

// MemoryManager is invoked once per turn after tool results are appended,
// giving callers a chance to compact or prune memory in place.
type MemoryManager func(ctx context.Context, rc *core.RunContext, mem *memory.AgentMemory, numTurns int) error

// Options configures an Executor.
type Options struct {
	// Tools the model may call. With no tools, execution is a single
	// generation.
	Tools []tool.Tool

	// MaxTurns bounds the number of tool-call turns beyond the first
	// generation.
	MaxTurns int

	// ReactMode forces a tool-free planning message before every
	// tool-calling turn.
	ReactMode bool

	// FinalAnswerSchema is the JSON schema of the synthetic final-answer
	// tool's arguments. Defaults to an unconstrained object.
	FinalAnswerSchema map[string]any

	// FinalAnswerAsToolCall signals completion through the model invoking
	// the synthetic final-answer tool rather than by omitting tool calls.
	FinalAnswerAsToolCall bool
}

// Executor drives the turn-by-turn conversation loop of one agent: it
// generates assistant messages, dispatches tool calls concurrently, and
// terminates via the configured condition (terminator predicate, final-answer
// tool call, or max turns).
type Executor struct {
	agentName             string
	llm                   llm.LLM
	tools                 map[string]tool.Tool
	maxTurns              int
	reactMode             bool
	finalAnswerAsToolCall bool
	finalAnswerTool       tool.Tool

	// ToolCallLoopTerminator optionally ends the loop early. Nil means the
	// loop only ends at max turns (or via the final-answer tool).
	ToolCallLoopTerminator ToolCallLoopTerminator

	// MemoryManager optionally compacts memory between turns.
	MemoryManager MemoryManager
}

// New creates an Executor for agentName on top of client. The configured
// tools (plus the synthetic final-answer tool, when enabled) are installed on
// the client.
func New(agentName string, client llm.LLM, optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxTurns: 100,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	schema := opts.FinalAnswerSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	finalAnswerTool := tool.NewFunctionTool(
		FinalAnswerToolName,
		"You must call this tool to provide the final answer. DO NOT output your answer before calling the tool.",
		schema,
		func(_ context.Context, _ *core.RunContext, _ map[string]any) (any, error) {
			return nil, nil
		},
	)

	tools := make(map[string]tool.Tool, len(opts.Tools)+1)
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	installed := opts.Tools
	if len(opts.Tools) > 0 && opts.FinalAnswerAsToolCall {
		installed = append(append([]tool.Tool{}, opts.Tools...), finalAnswerTool)
		tools[FinalAnswerToolName] = finalAnswerTool
	}

	client.SetTools(installed)

	return &Executor{
		agentName:             agentName,
		llm:                   client,
		tools:                 tools,
		maxTurns:              opts.MaxTurns,
		reactMode:             opts.ReactMode,
		finalAnswerAsToolCall: opts.FinalAnswerAsToolCall,
		finalAnswerTool:       finalAnswerTool,
	}
}

// AgentName returns the name of the agent this executor drives.
func (e *Executor) AgentName() string { return e.agentName }

// LLM returns the underlying model client.
func (e *Executor) LLM() llm.LLM { return e.llm }

// MaxTurns returns the configured turn bound.
func (e *Executor) MaxTurns() int { return e.maxTurns }

func (e *Executor) hasTools() bool { return len(e.tools) > 0 }

func (e *Executor) terminateLoop(ctx context.Context, rc *core.RunContext, conversation core.Conversation, numTurns int) bool {
	if e.ToolCallLoopTerminator != nil {
		return e.ToolCallLoopTerminator(ctx, rc, conversation, numTurns)
	}

	return false
}

func (e *Executor) manageMemory(ctx context.Context, rc *core.RunContext, mem *memory.AgentMemory, numTurns int) error {
	if e.MemoryManager != nil {
		return e.MemoryManager(ctx, rc, mem, numTurns)
	}

	return nil
}

// GenerateMessage performs one LLM generation against the current memory,
// appends the resulting assistant message(s), and records usage.
func (e *Executor) GenerateMessage(
	ctx context.Context,
	rc *core.RunContext,
	mem *memory.AgentMemory,
	callID string,
	toolChoice *llm.ToolChoice,
) (*core.AssistantMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "executor.generate", telemetry.ProcAttrs(e.agentName, callID, rc.RunID())...)

	msg, err := e.generateSpanned(ctx, rc, mem, callID, toolChoice)
	telemetry.EndSpan(span, err)

	return msg, err
}

func (e *Executor) generateSpanned(
	ctx context.Context,
	rc *core.RunContext,
	mem *memory.AgentMemory,
	callID string,
	toolChoice *llm.ToolChoice,
) (*core.AssistantMessage, error) {
	completion, err := e.llm.GenerateCompletion(ctx, mem.Conversation(), func(o *llm.GenerateOptions) {
		o.ToolChoice = toolChoice
		o.NumChoices = 1
		o.ProcName = e.agentName
		o.CallID = callID
	})
	if err != nil {
		return nil, fmt.Errorf("generate message for %q: %w", e.agentName, err)
	}

	messages := completion.Messages()
	for _, m := range messages {
		mem.Update(m)
	}

	e.processCompletion(rc, completion, callID)

	return messages[0], nil
}

// generateMessageStream streams one generation chunk by chunk, reassembles
// the chunks into a completion, and appends the result to memory.
func (e *Executor) generateMessageStream(
	ctx context.Context,
	rc *core.RunContext,
	mem *memory.AgentMemory,
	callID string,
	toolChoice *llm.ToolChoice,
	emit func(event.Event),
) (*core.AssistantMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "executor.generate", telemetry.ProcAttrs(e.agentName, callID, rc.RunID())...)

	msg, err := e.generateStreamSpanned(ctx, rc, mem, callID, toolChoice, emit)
	telemetry.EndSpan(span, err)

	return msg, err
}

func (e *Executor) generateStreamSpanned(
	ctx context.Context,
	rc *core.RunContext,
	mem *memory.AgentMemory,
	callID string,
	toolChoice *llm.ToolChoice,
	emit func(event.Event),
) (*core.AssistantMessage, error) {
	chunkCh, errCh := e.llm.GenerateCompletionStream(ctx, mem.Conversation(), func(o *llm.GenerateOptions) {
		o.ToolChoice = toolChoice
		o.NumChoices = 1
		o.ProcName = e.agentName
		o.CallID = callID
	})

	var chunks []*core.CompletionChunk

	for chunk := range chunkCh {
		chunks = append(chunks, chunk)

		emit(event.CompletionChunkEvent{
			Meta:  event.Meta{ProcName: e.agentName, CallID: callID},
			Chunk: chunk,
		})
	}

	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("stream message for %q: %w", e.agentName, err)
	}

	completion, err := core.CombineCompletionChunks(chunks)
	if err != nil {
		return nil, err
	}

	emit(event.CompletionEvent{
		Meta:       event.Meta{ProcName: e.agentName, CallID: callID},
		Completion: completion,
	})

	messages := completion.Messages()

	emit(event.GenMessageEvent{
		Meta:    event.Meta{ProcName: e.agentName, CallID: callID},
		Message: messages[0],
	})

	for _, m := range messages {
		mem.Update(m)
	}

	e.processCompletion(rc, completion, callID)

	return messages[0], nil
}

// CallTools dispatches all calls concurrently and appends the resulting tool
// messages to memory in the original call order, regardless of completion
// order. A single failing tool aborts the whole batch.
func (e *Executor) CallTools(
	ctx context.Context,
	rc *core.RunContext,
	calls []core.ToolCall,
	mem *memory.AgentMemory,
	callID string,
) ([]*core.ToolMessage, error) {
	attrs := append(telemetry.ProcAttrs(e.agentName, callID, rc.RunID()),
		attribute.Int("agentswarm.num_calls", len(calls)))
	ctx, span := telemetry.StartSpan(ctx, "executor.tool_batch", attrs...)

	toolMessages, err := e.callToolsSpanned(ctx, rc, calls, mem, callID)
	telemetry.EndSpan(span, err)

	return toolMessages, err
}

func (e *Executor) callToolsSpanned(
	ctx context.Context,
	rc *core.RunContext,
	calls []core.ToolCall,
	mem *memory.AgentMemory,
	callID string,
) ([]*core.ToolMessage, error) {
	type invocation struct {
		t    tool.Tool
		args map[string]any
	}

	invocations := make([]invocation, len(calls))

	for i, call := range calls {
		t, ok := e.tools[call.ToolName]
		if !ok {
			return nil, fmt.Errorf("agent %q received a call to unknown tool %q", e.agentName, call.ToolName)
		}

		var args map[string]any
		if call.ToolArguments != "" {
			if err := json.Unmarshal([]byte(call.ToolArguments), &args); err != nil {
				return nil, fmt.Errorf("decode arguments for tool %q: %w", call.ToolName, err)
			}
		}

		invocations[i] = invocation{t: t, args: args}
	}

	results := make([]any, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup

	for i := range invocations {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = invocations[i].t.Call(ctx, rc, invocations[i].args)
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("tool %q (call %s): %w", calls[i].ToolName, calls[i].ID, err)
		}
	}

	toolMessages := make([]*core.ToolMessage, len(calls))
	for i, call := range calls {
		tm, err := core.NewToolMessage(results[i], call)
		if err != nil {
			return nil, fmt.Errorf("tool %q (call %s): %w", call.ToolName, call.ID, err)
		}

		toolMessages[i] = tm
		mem.Update(tm)
	}

	printable := make([]core.Message, len(toolMessages))
	for i, tm := range toolMessages {
		printable[i] = tm
	}

	rc.PrintMessages(printable, nil, e.agentName, callID)

	return toolMessages, nil
}

// extractFinalAnswer scans the last assistant message for a call to the
// final-answer tool; if found, the call's arguments become the final message
// and the tool call is cleared so it is never executed.
func (e *Executor) extractFinalAnswer(mem *memory.AgentMemory) *core.AssistantMessage {
	conversation := mem.Conversation()
	if len(conversation) == 0 {
		return nil
	}

	last, ok := conversation[len(conversation)-1].(*core.AssistantMessage)
	if !ok {
		return nil
	}

	for _, call := range last.ToolCalls {
		if call.ToolName == FinalAnswerToolName {
			finalAnswer := &core.AssistantMessage{
				Name:    e.agentName,
				Content: call.ToolArguments,
			}

			last.ToolCalls = nil
			mem.Update(finalAnswer)

			return finalAnswer
		}
	}

	return nil
}

// generateFinalAnswer forces one more generation with the tool choice pinned
// to the final-answer tool after the turn budget is exhausted.
func (e *Executor) generateFinalAnswer(
	ctx context.Context,
	rc *core.RunContext,
	mem *memory.AgentMemory,
	callID string,
	emit func(event.Event),
) (*core.AssistantMessage, error) {
	userMessage := core.NewUserMessage("Exceeded the maximum number of turns: provide a final answer now!")
	mem.Update(userMessage)

	if emit != nil {
		emit(event.UserMessageEvent{
			Meta:    event.Meta{ProcName: e.agentName, CallID: callID},
			Message: *userMessage,
		})
	}

	rc.PrintMessages([]core.Message{userMessage}, nil, e.agentName, callID)

	toolChoice := llm.NamedToolChoice(FinalAnswerToolName)

	var err error
	if emit != nil {
		_, err = e.generateMessageStream(ctx, rc, mem, callID, toolChoice, emit)
	} else {
		_, err = e.GenerateMessage(ctx, rc, mem, callID, toolChoice)
	}

	if err != nil {
		return nil, err
	}

	finalAnswer := e.extractFinalAnswer(mem)
	if finalAnswer == nil {
		return nil, &core.FinalAnswerError{ProcName: e.agentName, CallID: callID}
	}

	return finalAnswer, nil
}

// Execute runs the turn loop to completion and returns the final assistant
// message.
//
// The first generation uses tool choice "none" in react mode (forcing a
// planning message) and "auto" otherwise. With no tools configured, that
// first message is the result. Each subsequent turn consults the termination
// conditions, executes pending tool calls, applies the memory manager, and
// generates the next message.
func (e *Executor) Execute(ctx context.Context, rc *core.RunContext, mem *memory.AgentMemory, callID string) (*core.AssistantMessage, error) {
	var toolChoice *llm.ToolChoice

	if e.hasTools() {
		if e.reactMode {
			toolChoice = &llm.ToolChoice{Type: llm.ToolChoiceNone}
		} else {
			toolChoice = &llm.ToolChoice{Type: llm.ToolChoiceAuto}
		}
	}

	genMessage, err := e.GenerateMessage(ctx, rc, mem, callID, toolChoice)
	if err != nil {
		return nil, err
	}

	if !e.hasTools() {
		return genMessage, nil
	}

	turns := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !e.finalAnswerAsToolCall && e.terminateLoop(ctx, rc, mem.Conversation(), turns) {
			return genMessage, nil
		}

		if e.finalAnswerAsToolCall {
			if finalAnswer := e.extractFinalAnswer(mem); finalAnswer != nil {
				return finalAnswer, nil
			}
		}

		if turns >= e.maxTurns {
			finalAnswer := genMessage

			if e.finalAnswerAsToolCall {
				finalAnswer, err = e.generateFinalAnswer(ctx, rc, mem, callID, nil)
				if err != nil {
					return nil, err
				}
			}

			rc.Logger().Info("policy.max_turns_reached", "agent", e.agentName, "max_turns", e.maxTurns)

			return finalAnswer, nil
		}

		if len(genMessage.ToolCalls) > 0 {
			if _, err := e.CallTools(ctx, rc, genMessage.ToolCalls, mem, callID); err != nil {
				return nil, err
			}
		}

		if err := e.manageMemory(ctx, rc, mem, turns); err != nil {
			return nil, err
		}

		toolChoice = e.nextToolChoice(genMessage)

		genMessage, err = e.GenerateMessage(ctx, rc, mem, callID, toolChoice)
		if err != nil {
			return nil, err
		}

		turns++
	}
}

// nextToolChoice picks the tool choice for the next turn: "none" after tool
// calls in react mode (forces an observation message), "auto" after tool
// calls otherwise, "required" when the last message had none (forces the
// model to act rather than stall).
func (e *Executor) nextToolChoice(last *core.AssistantMessage) *llm.ToolChoice {
	switch {
	case e.reactMode && len(last.ToolCalls) > 0:
		return &llm.ToolChoice{Type: llm.ToolChoiceNone}
	case len(last.ToolCalls) > 0:
		return &llm.ToolChoice{Type: llm.ToolChoiceAuto}
	default:
		return &llm.ToolChoice{Type: llm.ToolChoiceRequired}
	}
}

// ExecuteStream runs the same state machine as Execute but emits it as an
// ordered event sequence. The event channel closes when the loop terminates;
// the error channel then carries at most one error.
//
// Dispatched tool calls always run to completion within their batch even if
// the consumer stops reading events.
func (e *Executor) ExecuteStream(ctx context.Context, rc *core.RunContext, mem *memory.AgentMemory, callID string) (<-chan event.Event, <-chan error) {
	eventCh := make(chan event.Event)
	errCh := make(chan error, 1)

	emit := func(ev event.Event) {
		select {
		case eventCh <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(eventCh)
		defer close(errCh)

		if err := e.executeStream(ctx, rc, mem, callID, emit); err != nil {
			emit(event.ErrorEvent{
				Meta: event.Meta{ProcName: e.agentName, CallID: callID},
				Err:  err,
			})
			errCh <- err
		}
	}()

	return eventCh, errCh
}

func (e *Executor) executeStream(
	ctx context.Context,
	rc *core.RunContext,
	mem *memory.AgentMemory,
	callID string,
	emit func(event.Event),
) error {
	var toolChoice *llm.ToolChoice

	if e.hasTools() {
		if e.reactMode {
			toolChoice = &llm.ToolChoice{Type: llm.ToolChoiceNone}
		} else {
			toolChoice = &llm.ToolChoice{Type: llm.ToolChoiceAuto}
		}
	}

	genMessage, err := e.generateMessageStream(ctx, rc, mem, callID, toolChoice, emit)
	if err != nil {
		return err
	}

	if !e.hasTools() {
		return nil
	}

	turns := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.finalAnswerAsToolCall && e.terminateLoop(ctx, rc, mem.Conversation(), turns) {
			return nil
		}

		if e.finalAnswerAsToolCall {
			if finalAnswer := e.extractFinalAnswer(mem); finalAnswer != nil {
				emit(event.GenMessageEvent{
					Meta:    event.Meta{ProcName: e.agentName, CallID: callID},
					Message: finalAnswer,
				})

				return nil
			}
		}

		if turns >= e.maxTurns {
			if e.finalAnswerAsToolCall {
				finalAnswer, err := e.generateFinalAnswer(ctx, rc, mem, callID, emit)
				if err != nil {
					return err
				}

				emit(event.GenMessageEvent{
					Meta:    event.Meta{ProcName: e.agentName, CallID: callID},
					Message: finalAnswer,
				})
			}

			rc.Logger().Info("policy.max_turns_reached", "agent", e.agentName, "max_turns", e.maxTurns)

			return nil
		}

		if len(genMessage.ToolCalls) > 0 {
			for _, call := range genMessage.ToolCalls {
				emit(event.ToolCallEvent{
					Meta:     event.Meta{ProcName: e.agentName, CallID: callID},
					ToolCall: call,
				})
			}

			toolMessages, err := e.CallTools(ctx, rc, genMessage.ToolCalls, mem, callID)
			if err != nil {
				return err
			}

			for i, tm := range toolMessages {
				emit(event.ToolMessageEvent{
					Meta:    event.Meta{ProcName: genMessage.ToolCalls[i].ToolName, CallID: callID},
					Message: *tm,
				})
			}
		}

		if err := e.manageMemory(ctx, rc, mem, turns); err != nil {
			return err
		}

		toolChoice = e.nextToolChoice(genMessage)

		genMessage, err = e.generateMessageStream(ctx, rc, mem, callID, toolChoice, emit)
		if err != nil {
			return err
		}

		turns++
	}
}

// processCompletion records the completion for usage tracking and prints its
// messages (usage attributed to the last message of the batch).
func (e *Executor) processCompletion(rc *core.RunContext, completion *core.Completion, callID string) {
	rc.LogCompletion(e.agentName, completion)

	messages := completion.Messages()

	printable := make([]core.Message, len(messages))
	usages := make([]*core.Usage, len(messages))

	for i, m := range messages {
		printable[i] = m
	}

	if len(usages) > 0 {
		usages[len(usages)-1] = completion.Usage
	}

	rc.PrintMessages(printable, usages, e.agentName, callID)
}
