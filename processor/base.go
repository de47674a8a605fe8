package processor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/telemetry"
)

// ErrMultipleInputs is returned when more than one of chat inputs, packet, or
// args is provided to a single run.
var ErrMultipleInputs = errors.New("processor: only one of chat inputs, packet, or args may be provided")

// ProcessFunc is the bare compute step wrapped by a processor: it transforms
// input payloads into output payloads. The default passes args through
// unchanged.
type ProcessFunc func(ctx context.Context, rc *core.RunContext, in Input) ([]any, error)

// Base is a minimal Processor: it validates inputs, runs the compute step,
// and validates output payloads against the declared output type. It has no
// recipients; use Comm for anything that participates in routing.
type Base struct {
	name    string
	inType  reflect.Type
	outType reflect.Type
	process ProcessFunc
}

// BaseOptions configures a Base processor.
type BaseOptions struct {
	// InType and OutType declare the payload contract. Nil disables the
	// respective check.
	InType  reflect.Type
	OutType reflect.Type

	// Process overrides the pass-through compute step.
	Process ProcessFunc
}

// NewBase creates a named processor. Without a Process option, it passes its
// input args through as outputs.
func NewBase(name string, optFns ...func(o *BaseOptions)) *Base {
	opts := BaseOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Base{
		name:    name,
		inType:  opts.InType,
		outType: opts.OutType,
		process: opts.Process,
	}

	if b.process == nil {
		b.process = func(_ context.Context, _ *core.RunContext, in Input) ([]any, error) {
			if in.Args == nil {
				return nil, fmt.Errorf("processor %q has no compute step and requires args input", name)
			}

			return in.Args, nil
		}
	}

	return b
}

// Name returns the processor name used for packet addressing.
func (b *Base) Name() string { return b.name }

// InType returns the declared input payload type (nil if unchecked).
func (b *Base) InType() reflect.Type { return b.inType }

// OutType returns the declared output payload type (nil if unchecked).
func (b *Base) OutType() reflect.Type { return b.outType }

// Recipients returns nil; a bare processor does not route.
func (b *Base) Recipients() []string { return nil }

func validateInputs(in Input) error {
	set := 0

	if in.ChatInputs != nil {
		set++
	}

	if in.Packet != nil {
		set++
	}

	if in.Args != nil {
		set++
	}

	if set > 1 {
		return ErrMultipleInputs
	}

	if in.EntryPoint && in.Packet != nil {
		return errors.New("processor: an entry point cannot receive packets from other processors")
	}

	return nil
}

func (b *Base) validateOutputs(payloads []any) error {
	if b.outType == nil {
		return nil
	}

	for i, payload := range payloads {
		t := reflect.TypeOf(payload)
		if t == nil || !assignable(t, b.outType) {
			return fmt.Errorf("processor %q: output payload %d is %T, want %s", b.name, i, payload, b.outType)
		}
	}

	return nil
}

func assignable(t, want reflect.Type) bool {
	if want.Kind() == reflect.Interface {
		return t.Implements(want)
	}

	return t.AssignableTo(want)
}

// Run validates the input, executes the compute step, validates the output
// payloads, and wraps them into an unrouted packet.
func (b *Base) Run(ctx context.Context, rc *core.RunContext, in Input) (*packet.Packet, error) {
	return b.run(ctx, rc, in, b.process)
}

// run is shared with Comm so the routing layer can reuse validation around a
// different compute step.
func (b *Base) run(ctx context.Context, rc *core.RunContext, in Input, process ProcessFunc) (*packet.Packet, error) {
	ctx, span := telemetry.StartSpan(ctx, "processor.run", telemetry.ProcAttrs(b.name, "", rc.RunID())...)

	pk, err := b.runSpanned(ctx, rc, in, process)
	telemetry.EndSpan(span, err)

	return pk, err
}

// ResolveInput validates in and folds an inbound packet's payloads into the
// Args form consumed by compute steps.
func ResolveInput(in Input) (Input, error) {
	if err := validateInputs(in); err != nil {
		return Input{}, err
	}

	if in.Packet != nil {
		in.Args = in.Packet.Payloads
		in.Packet = nil
	}

	return in, nil
}

func (b *Base) runSpanned(ctx context.Context, rc *core.RunContext, in Input, process ProcessFunc) (*packet.Packet, error) {
	in, err := ResolveInput(in)
	if err != nil {
		return nil, err
	}

	outputs, err := process(ctx, rc, in)
	if err != nil {
		return nil, err
	}

	if err := b.validateOutputs(outputs); err != nil {
		return nil, err
	}

	return packet.New(b.name, outputs), nil
}

// RunStream executes Run and emits the resulting packet as a single
// PacketOutputEvent.
func (b *Base) RunStream(ctx context.Context, rc *core.RunContext, in Input) (<-chan event.Event, <-chan error) {
	eventCh := make(chan event.Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		pk, err := b.Run(ctx, rc, in)
		if err != nil {
			errCh <- err

			return
		}

		select {
		case eventCh <- event.PacketOutputEvent{
			Meta:   event.Meta{ProcName: b.name},
			Packet: pk,
		}:
		case <-ctx.Done():
		}
	}()

	return eventCh, errCh
}
