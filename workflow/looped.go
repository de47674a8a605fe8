package workflow

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/processor"
)

// LoopTerminator examines the exit stage's output packet after each full pass
// and reports whether the loop should end early.
type LoopTerminator func(rc *core.RunContext, out *packet.Packet) bool

// LoopedOptions configures a Looped workflow.
type LoopedOptions struct {
	// Recipients is the static downstream routing of the workflow's output.
	Recipients []string

	// MaxIterations bounds the number of full passes over the cycle.
	MaxIterations int

	// Terminator optionally ends the loop early.
	Terminator LoopTerminator
}

// Looped repeats a cycle of processors up to MaxIterations times. The cycle
// must close over its types: the last stage's output feeds the first stage's
// input. After each pass over exitProc, the terminator predicate may end the
// loop. Exhausting the iteration budget is not an error; the last output is
// returned with a logged notice.
type Looped struct {
	*base

	exitProc      processor.Processor
	maxIterations int

	// Terminator optionally ends the loop early after inspecting the exit
	// stage's output.
	Terminator LoopTerminator
}

// NewLooped composes subprocs into a feedback loop with exitProc as the stage
// whose output is both checked for termination and returned.
func NewLooped(name string, subprocs []processor.Processor, exitProc processor.Processor, optFns ...func(o *LoopedOptions)) (*Looped, error) {
	opts := LoopedOptions{
		MaxIterations: 10,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	b, err := newBase(name, subprocs, subprocs[0], exitProc, opts.Recipients)
	if err != nil {
		return nil, err
	}

	if err := checkLink(subprocs[len(subprocs)-1], subprocs[0]); err != nil {
		return nil, &ConstructionError{
			Reason: fmt.Sprintf("loop does not close: %v", err),
		}
	}

	if exitProc == nil {
		return nil, &ConstructionError{Reason: "an exit subprocessor is required"}
	}

	found := false
	for _, sub := range subprocs {
		if sub == exitProc {
			found = true
			break
		}
	}

	if !found {
		return nil, &ConstructionError{Reason: fmt.Sprintf("exit subprocessor %q must be in the subprocessors list", exitProc.Name())}
	}

	return &Looped{
		base:          b,
		exitProc:      exitProc,
		maxIterations: opts.MaxIterations,
		Terminator:    opts.Terminator,
	}, nil
}

// MaxIterations returns the configured pass budget.
func (w *Looped) MaxIterations() int { return w.maxIterations }

func (w *Looped) terminate(rc *core.RunContext, out *packet.Packet) bool {
	if w.Terminator != nil {
		return w.Terminator(rc, out)
	}

	return false
}

// Run executes the cycle until the terminator fires or the iteration budget
// is exhausted, returning the exit stage's last output re-addressed as the
// workflow's own packet.
func (w *Looped) Run(ctx context.Context, rc *core.RunContext, in processor.Input) (*packet.Packet, error) {
	return w.run(ctx, rc, in, nil)
}

func (w *Looped) run(ctx context.Context, rc *core.RunContext, in processor.Input, emit func(event.Event)) (*packet.Packet, error) {
	stageIn := in

	for iteration := 1; iteration <= w.maxIterations; iteration++ {
		for _, sub := range w.subprocs {
			var (
				out *packet.Packet
				err error
			)

			if emit != nil {
				out, err = forwardStage(ctx, rc, sub, stageIn, emit)
			} else {
				out, err = sub.Run(ctx, rc, stageIn)
			}

			if err != nil {
				return nil, err
			}

			if sub == w.exitProc {
				exitPacket := packet.New(w.name, out.Payloads, w.recipients...)

				if w.terminate(rc, exitPacket) {
					return exitPacket, nil
				}

				if iteration == w.maxIterations {
					rc.Logger().Info("workflow.max_iterations_reached", "workflow", w.name, "max_iterations", w.maxIterations)

					return exitPacket, nil
				}
			}

			stageIn = processor.Input{Packet: out, Forgetful: in.Forgetful}
		}
	}

	return nil, fmt.Errorf("workflow %q did not exit after %d iterations", w.name, w.maxIterations)
}

// RunStream forwards every stage's events across all passes and finishes with
// a PacketOutputEvent carrying the workflow's output packet.
func (w *Looped) RunStream(ctx context.Context, rc *core.RunContext, in processor.Input) (<-chan event.Event, <-chan error) {
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

		out, err := w.run(ctx, rc, in, emit)
		if err != nil {
			errCh <- err

			return
		}

		emit(event.PacketOutputEvent{
			Meta:   event.Meta{ProcName: w.name},
			Packet: out,
		})
	}()

	return eventCh, errCh
}
