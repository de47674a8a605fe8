// Package agent provides LLMAgent, the communicating processor that drives a
// model through the policy turn-loop: it owns a conversational memory, formats
// inbound payloads into user messages, executes the loop, and parses the final
// assistant message into a typed output payload.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/internal/util"
	"github.com/hupe1980/agentswarm/llm"
	"github.com/hupe1980/agentswarm/memory"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/policy"
	"github.com/hupe1980/agentswarm/processor"
	"github.com/hupe1980/agentswarm/tool"
)

// ParseOutputFunc turns the finished conversation into the agent's output
// payload. inArgs is the payload that triggered the run (nil for chat input).
type ParseOutputFunc func(rc *core.RunContext, conversation core.Conversation, inArgs any) (any, error)

// FormatInputFunc renders one inbound payload into user message text.
type FormatInputFunc func(rc *core.RunContext, inArgs any) (string, error)

// Options configures an LLMAgent.
type Options struct {
	// Tools the agent may call during the turn loop.
	Tools []tool.Tool

	// Instructions is the system prompt seeded on memory reset.
	Instructions string

	// MaxTurns bounds the tool-call loop.
	MaxTurns int

	// ReactMode forces a planning message before every tool-calling turn.
	ReactMode bool

	// FinalAnswerAsToolCall signals completion via the synthetic
	// final-answer tool.
	FinalAnswerAsToolCall bool

	// FinalAnswerSchema constrains the final-answer tool's arguments.
	FinalAnswerSchema map[string]any

	// ResetMemoryOnRun wipes the agent's memory at the start of every run.
	// Memory is always seeded when empty.
	ResetMemoryOnRun bool

	// Recipients is the static downstream routing of this agent.
	Recipients []string

	// InType and OutType declare the payload contract for workflow
	// validation and default output parsing.
	InType  reflect.Type
	OutType reflect.Type

	// ParseOutput overrides the default JSON-based output parsing.
	ParseOutput ParseOutputFunc

	// FormatInput overrides the default payload-to-user-message rendering.
	FormatInput FormatInputFunc

	// ExitCommunication optionally terminates the whole run after this
	// agent posts an output packet.
	ExitCommunication processor.ExitCommunicationFunc

	// ToolCallLoopTerminator optionally ends the turn loop early.
	ToolCallLoopTerminator policy.ToolCallLoopTerminator

	// MemoryManager optionally compacts memory between turns.
	MemoryManager policy.MemoryManager
}

// LLMAgent is a communicating processor whose compute step is the policy
// executor turn-loop. Its memory persists across runs unless the run is
// forgetful or ResetMemoryOnRun is set.
type LLMAgent struct {
	*processor.Comm

	executor         *policy.Executor
	memory           *memory.AgentMemory
	instructions     string
	resetMemoryOnRun bool
	outType          reflect.Type
	parseOutput      ParseOutputFunc
	formatInput      FormatInputFunc
}

// New creates an LLMAgent named name on top of client.
func New(name string, client llm.LLM, optFns ...func(o *Options)) *LLMAgent {
	opts := Options{
		MaxTurns: 100,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	// A tool-free agent with a declared struct output defaults the model's
	// response format to that output's schema.
	if len(opts.Tools) == 0 && client.ResponseFormat() == nil && opts.OutType != nil {
		structType := opts.OutType
		if structType.Kind() == reflect.Ptr {
			structType = structType.Elem()
		}

		if structType.Kind() == reflect.Struct {
			client.SetResponseFormat(util.CreateSchema(reflect.New(structType).Elem().Interface()))
		}
	}

	executor := policy.New(name, client, func(o *policy.Options) {
		o.Tools = opts.Tools
		o.MaxTurns = opts.MaxTurns
		o.ReactMode = opts.ReactMode
		o.FinalAnswerSchema = opts.FinalAnswerSchema
		o.FinalAnswerAsToolCall = opts.FinalAnswerAsToolCall
	})

	executor.ToolCallLoopTerminator = opts.ToolCallLoopTerminator
	executor.MemoryManager = opts.MemoryManager

	a := &LLMAgent{
		executor:         executor,
		memory:           memory.NewAgentMemory(""),
		instructions:     opts.Instructions,
		resetMemoryOnRun: opts.ResetMemoryOnRun,
		outType:          opts.OutType,
		parseOutput:      opts.ParseOutput,
		formatInput:      opts.FormatInput,
	}

	a.Comm = processor.NewComm(name, func(o *processor.CommOptions) {
		o.InType = opts.InType
		o.OutType = opts.OutType
		o.Recipients = opts.Recipients
		o.ExitCommunication = opts.ExitCommunication
		o.Process = a.process
	})

	return a
}

// LLM returns the agent's model client.
func (a *LLMAgent) LLM() llm.LLM { return a.executor.LLM() }

// Memory returns the agent's persistent memory.
func (a *LLMAgent) Memory() *memory.AgentMemory { return a.memory }

// Executor returns the underlying policy executor, e.g. to install hooks
// after construction.
func (a *LLMAgent) Executor() *policy.Executor { return a.executor }

// AsTool exposes the agent as a tool callable by another agent. Runs
// triggered through the tool are forgetful.
func (a *LLMAgent) AsTool(name, description string) (tool.Tool, error) {
	return processor.AsTool(a, name, description)
}

// process is the compute step installed on the Comm layer: it prepares a
// per-run memory, appends user messages, runs the turn loop, and parses one
// output per run.
func (a *LLMAgent) process(ctx context.Context, rc *core.RunContext, in processor.Input) ([]any, error) {
	return a.runOnce(ctx, rc, in, nil)
}

// runOnce executes the agent once. A non-nil emit switches the turn loop to
// its streaming variant.
func (a *LLMAgent) runOnce(ctx context.Context, rc *core.RunContext, in processor.Input, emit func(event.Event)) ([]any, error) {
	in, err := processor.ResolveInput(in)
	if err != nil {
		return nil, err
	}

	mem := a.memory.Clone()

	if a.resetMemoryOnRun || mem.IsEmpty() {
		mem.Reset(a.instructions)

		if !mem.IsEmpty() {
			rc.PrintMessages(mem.Conversation(), nil, a.Name(), "")
		}
	}

	userMessages, inArgs, err := a.makeUserMessages(rc, in)
	if err != nil {
		return nil, err
	}

	if len(userMessages) > 0 {
		mem.Update(userMessages...)
		rc.PrintMessages(userMessages, nil, a.Name(), "")

		if emit != nil {
			for _, m := range userMessages {
				if um, ok := m.(*core.UserMessage); ok {
					emit(event.UserMessageEvent{
						Meta:    event.Meta{ProcName: a.Name()},
						Message: *um,
					})
				}
			}
		}
	}

	callID := core.NewShortID()

	if emit != nil {
		eventCh, errCh := a.executor.ExecuteStream(ctx, rc, mem, callID)
		for ev := range eventCh {
			emit(ev)
		}

		if err := <-errCh; err != nil {
			return nil, err
		}
	} else {
		if _, err := a.executor.Execute(ctx, rc, mem, callID); err != nil {
			return nil, err
		}
	}

	if !in.Forgetful {
		a.memory = mem
	}

	output, err := a.parse(rc, mem.Conversation(), inArgs)
	if err != nil {
		return nil, err
	}

	return []any{output}, nil
}

// makeUserMessages renders the run input into user messages: chat inputs go
// through verbatim, payloads through the input formatter.
func (a *LLMAgent) makeUserMessages(rc *core.RunContext, in processor.Input) ([]core.Message, any, error) {
	if in.ChatInputs != nil {
		text, err := renderText(in.ChatInputs)
		if err != nil {
			return nil, nil, err
		}

		return []core.Message{core.NewUserMessage(text)}, nil, nil
	}

	var (
		messages []core.Message
		inArgs   any
	)

	for _, arg := range in.Args {
		inArgs = arg

		var (
			text string
			err  error
		)

		if a.formatInput != nil {
			text, err = a.formatInput(rc, arg)
		} else {
			text, err = renderText(arg)
		}

		if err != nil {
			return nil, nil, fmt.Errorf("agent %q: format input: %w", a.Name(), err)
		}

		messages = append(messages, core.NewUserMessage(text))
	}

	return messages, inArgs, nil
}

// parse turns the finished conversation into the output payload. The default
// decodes the last assistant message's content as JSON into the declared
// output type, or passes the raw text through when no type is declared.
func (a *LLMAgent) parse(rc *core.RunContext, conversation core.Conversation, inArgs any) (any, error) {
	if a.parseOutput != nil {
		return a.parseOutput(rc, conversation, inArgs)
	}

	content := lastAssistantContent(conversation)

	if a.outType == nil || a.outType.Kind() == reflect.String {
		return content, nil
	}

	structType := a.outType
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	outValue := reflect.New(structType)
	if err := json.Unmarshal([]byte(extractJSON(content)), outValue.Interface()); err != nil {
		return nil, fmt.Errorf("agent %q: parse output as %s: %w", a.Name(), a.outType, err)
	}

	if a.outType.Kind() == reflect.Ptr {
		return outValue.Interface(), nil
	}

	return outValue.Elem().Interface(), nil
}

func lastAssistantContent(conversation core.Conversation) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if am, ok := conversation[i].(*core.AssistantMessage); ok {
			return am.Content
		}
	}

	return ""
}

// extractJSON trims surrounding prose down to the outermost JSON value so
// models that wrap structured output in text still parse.
func extractJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}

	var closer byte = '}'
	if s[start] == '[' {
		closer = ']'
	}

	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}

	return s[start : end+1]
}

func renderText(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}

		return string(raw), nil
	}
}

// RunStream executes the agent once, streaming turn-loop events, and emits
// the routed output packet as the terminal PacketOutputEvent.
func (a *LLMAgent) RunStream(ctx context.Context, rc *core.RunContext, in processor.Input) (<-chan event.Event, <-chan error) {
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

		outputs, err := a.runOnce(ctx, rc, in, emit)
		if err != nil {
			errCh <- err

			return
		}

		recipients, err := a.ValidateRouting(outputs)
		if err != nil {
			errCh <- err

			return
		}

		emit(event.PacketOutputEvent{
			Meta:   event.Meta{ProcName: a.Name()},
			Packet: packet.New(a.Name(), outputs, recipients...),
		})
	}()

	return eventCh, errCh
}
