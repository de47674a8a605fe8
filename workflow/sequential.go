package workflow

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/processor"
)

// SequentialOptions configures a Sequential workflow.
type SequentialOptions struct {
	// Recipients is the static downstream routing of the workflow's output.
	Recipients []string
}

// Sequential is an ordered pipeline: the output packet of stage i becomes the
// input packet of stage i+1, with no concurrency between stages.
type Sequential struct {
	*base
}

// NewSequential composes subprocs into a pipeline. Construction fails when a
// stage's output type does not match its successor's input type.
func NewSequential(name string, subprocs []processor.Processor, optFns ...func(o *SequentialOptions)) (*Sequential, error) {
	opts := SequentialOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	b, err := newBase(name, subprocs, subprocs[0], subprocs[len(subprocs)-1], opts.Recipients)
	if err != nil {
		return nil, err
	}

	return &Sequential{base: b}, nil
}

// Run threads the input through every stage in order and returns the last
// stage's output re-addressed as the workflow's own packet.
func (w *Sequential) Run(ctx context.Context, rc *core.RunContext, in processor.Input) (*packet.Packet, error) {
	stageIn := in

	var out *packet.Packet

	for _, sub := range w.subprocs {
		var err error

		out, err = sub.Run(ctx, rc, stageIn)
		if err != nil {
			return nil, err
		}

		stageIn = processor.Input{Packet: out, Forgetful: in.Forgetful}
	}

	return packet.New(w.name, out.Payloads, w.recipients...), nil
}

// RunStream forwards every stage's events and finishes with a
// PacketOutputEvent carrying the workflow's output packet.
func (w *Sequential) RunStream(ctx context.Context, rc *core.RunContext, in processor.Input) (<-chan event.Event, <-chan error) {
	eventCh := make(chan event.Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		emit := func(ev event.Event) {
			select {
			case eventCh <- ev:
			case <-ctx.Done():
			}
		}

		stageIn := in

		var out *packet.Packet

		for _, sub := range w.subprocs {
			pk, err := forwardStage(ctx, rc, sub, stageIn, emit)
			if err != nil {
				errCh <- err

				return
			}

			out = pk
			stageIn = processor.Input{Packet: out, Forgetful: in.Forgetful}
		}

		emit(event.PacketOutputEvent{
			Meta:   event.Meta{ProcName: w.name},
			Packet: packet.New(w.name, out.Payloads, w.recipients...),
		})
	}()

	return eventCh, errCh
}

// forwardStage streams one stage's events to emit and returns the stage's
// output packet.
func forwardStage(
	ctx context.Context,
	rc *core.RunContext,
	sub processor.Processor,
	in processor.Input,
	emit func(event.Event),
) (*packet.Packet, error) {
	eventCh, errCh := sub.RunStream(ctx, rc, in)

	var out *packet.Packet

	for ev := range eventCh {
		if poe, ok := ev.(event.PacketOutputEvent); ok {
			out = poe.Packet
		}

		emit(ev)
	}

	if err := <-errCh; err != nil {
		return nil, err
	}

	if out == nil {
		return nil, fmt.Errorf("workflow: subprocessor %q produced no output packet", sub.Name())
	}

	return out, nil
}
