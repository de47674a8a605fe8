// Package processor defines the execution units routed by the packet pool.
// Base wraps a bare compute step with input and output validation; Comm adds
// the communication layer: routing validation, the listening lifecycle, and
// posting results back into the pool.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/internal/util"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/tool"
)

// Input carries the run input of a processor. Exactly one of ChatInputs,
// Packet, or Args may be set.
type Input struct {
	// ChatInputs is the raw chat input, only valid for the entry processor.
	ChatInputs any

	// Packet is an inbound packet from another processor.
	Packet *packet.Packet

	// Args are direct payload inputs, bypassing packet routing.
	Args []any

	// EntryPoint marks this run as the run seeding the whole pipeline.
	EntryPoint bool

	// Forgetful requests that the run leave no trace in persistent state.
	Forgetful bool
}

// Processor is an execution unit addressable by name. InType and OutType
// describe the payload contract used for construction-time workflow
// validation; either may be nil to opt out of checking.
type Processor interface {
	Name() string
	InType() reflect.Type
	OutType() reflect.Type
	Recipients() []string

	// Run executes the processor once and returns its output packet.
	Run(ctx context.Context, rc *core.RunContext, in Input) (*packet.Packet, error)

	// RunStream executes the processor once, emitting events as it goes. The
	// output packet is delivered as a PacketOutputEvent before the event
	// channel closes.
	RunStream(ctx context.Context, rc *core.RunContext, in Input) (<-chan event.Event, <-chan error)
}

// AsTool exposes a processor as a tool callable by an LLM: arguments are
// decoded into the processor's input type, and the first output payload of a
// forgetful run becomes the tool result. The processor's input type must be a
// struct (or pointer to struct) so a schema can be derived.
func AsTool(p Processor, name, description string) (tool.Tool, error) {
	inType := p.InType()
	if inType == nil {
		return nil, fmt.Errorf("cannot create a tool from processor %q without a declared input type", p.Name())
	}

	structType := inType
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	if structType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot create a tool from processor %q with non-struct input type %s", p.Name(), inType)
	}

	fn := func(ctx context.Context, rc *core.RunContext, args map[string]any) (any, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}

		inValue := reflect.New(structType)
		if err := json.Unmarshal(raw, inValue.Interface()); err != nil {
			return nil, fmt.Errorf("decode input for processor tool %q: %w", name, err)
		}

		arg := inValue.Elem().Interface()
		if inType.Kind() == reflect.Ptr {
			arg = inValue.Interface()
		}

		out, err := p.Run(ctx, rc, Input{Args: []any{arg}, Forgetful: true})
		if err != nil {
			return nil, err
		}

		if len(out.Payloads) == 0 {
			return nil, fmt.Errorf("processor tool %q produced no output", name)
		}

		return out.Payloads[0], nil
	}

	schema := util.CreateSchema(reflect.New(structType).Elem().Interface())

	return tool.NewFunctionTool(name, description, schema, fn), nil
}
