// Package runner wires processors to a packet pool and drives one multi-agent
// run from the seed chat input to the terminal packet.
package runner

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/pool"
	"github.com/hupe1980/agentswarm/processor"
	"github.com/hupe1980/agentswarm/telemetry"
)

// Options configures a Runner.
type Options struct {
	// RunContext carries shared per-run state (printer, logger, usage). A
	// fresh one is created when nil.
	RunContext *core.RunContext

	// Pool options applied to the per-run packet pool.
	PoolOptions []func(o *pool.Options)
}

// Runner validates a processor topology and executes runs against it. Every
// run gets its own packet pool; the Runner itself is reusable.
type Runner struct {
	entryProc processor.Processor
	procs     []processor.Processor
	rc        *core.RunContext
	poolOpts  []func(o *pool.Options)
}

// New creates a Runner. entryProc must be one of procs, and exactly one
// processor must name the end sentinel in its recipients so that a run
// resolves to a single final result.
func New(entryProc processor.Processor, procs []processor.Processor, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	found := false
	for _, p := range procs {
		if p == entryProc {
			found = true
			break
		}
	}

	if !found {
		return nil, fmt.Errorf("runner: entry processor %q must be in the list of processors", entryProc.Name())
	}

	terminal := 0

	for _, p := range procs {
		for _, r := range p.Recipients() {
			if r == pool.EndProcName {
				terminal++
			}
		}
	}

	if terminal != 1 {
		return nil, fmt.Errorf("runner: there must be exactly one processor with recipient %q, got %d", pool.EndProcName, terminal)
	}

	rc := opts.RunContext
	if rc == nil {
		rc = core.NewRunContext()
	}

	return &Runner{
		entryProc: entryProc,
		procs:     procs,
		rc:        rc,
		poolOpts:  opts.PoolOptions,
	}, nil
}

// RunContext returns the shared run context.
func (r *Runner) RunContext() *core.RunContext { return r.rc }

func unpack(env packet.Envelope) processor.Input {
	switch pk := env.(type) {
	case *packet.StartPacket:
		return processor.Input{ChatInputs: pk.ChatInputs, EntryPoint: true}
	case *packet.Packet:
		return processor.Input{Packet: pk}
	default:
		return processor.Input{}
	}
}

// Run executes one run to completion and returns the terminal packet.
func (r *Runner) Run(ctx context.Context, chatInput any) (*packet.Packet, error) {
	ctx, span := telemetry.StartSpan(ctx, "runner.run", r.runAttrs()...)

	pk, err := r.runSpanned(ctx, chatInput)
	telemetry.EndSpan(span, err)

	return pk, err
}

func (r *Runner) runAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("agentswarm.run_id", r.rc.RunID()),
		attribute.String("agentswarm.entry_proc", r.entryProc.Name()),
	}
}

func (r *Runner) runSpanned(ctx context.Context, chatInput any) (*packet.Packet, error) {
	p := pool.New(ctx, r.poolOpts...)
	defer p.Close()

	for _, proc := range r.procs {
		proc := proc

		p.RegisterPacketHandler(proc.Name(), func(ctx context.Context, env packet.Envelope) error {
			r.rc.Logger().Info("runner.proc.start", "proc_name", proc.Name())

			out, err := proc.Run(ctx, r.rc, unpack(env))
			if err != nil {
				return err
			}

			r.rc.Logger().Info("runner.proc.done", "proc_name", proc.Name(), "recipients", out.Recipients)

			return p.Post(ctx, out)
		})
	}

	if err := p.Post(ctx, packet.NewStart(chatInput, r.entryProc.Name())); err != nil {
		return nil, err
	}

	return p.FinalResult(ctx)
}

// RunStream executes one run, exposing every event pushed by the processors.
// The terminal processor's output is delivered as a RunResultEvent; the event
// channel closes when the run ends, after which the error channel carries at
// most one error.
func (r *Runner) RunStream(ctx context.Context, chatInput any) (<-chan event.Event, <-chan error) {
	eventCh := make(chan event.Event)
	errCh := make(chan error, 1)

	ctx, span := telemetry.StartSpan(ctx, "runner.run", r.runAttrs()...)

	p := pool.New(ctx, r.poolOpts...)

	for _, proc := range r.procs {
		proc := proc

		p.RegisterPacketHandler(proc.Name(), func(ctx context.Context, env packet.Envelope) error {
			r.rc.Logger().Info("runner.proc.start", "proc_name", proc.Name())

			subCh, subErrCh := proc.RunStream(ctx, r.rc, unpack(env))

			var out *packet.Packet

			for ev := range subCh {
				if poe, ok := ev.(event.PacketOutputEvent); ok {
					out = poe.Packet
				}

				p.PushEvent(ev)
			}

			if err := <-subErrCh; err != nil {
				return err
			}

			if out == nil {
				return fmt.Errorf("runner: processor %q produced no output packet", proc.Name())
			}

			r.rc.Logger().Info("runner.proc.done", "proc_name", proc.Name(), "recipients", out.Recipients)

			return p.Post(ctx, out)
		})
	}

	go func() {
		var runErr error

		defer func() { telemetry.EndSpan(span, runErr) }()
		defer close(eventCh)
		defer close(errCh)
		defer p.Close()

		if runErr = p.Post(ctx, packet.NewStart(chatInput, r.entryProc.Name())); runErr != nil {
			errCh <- runErr

			return
		}

		for ev := range p.StreamEvents() {
			if poe, ok := ev.(event.PacketOutputEvent); ok && isTerminal(poe.Packet) {
				ev = event.RunResultEvent{
					Meta:   poe.Meta,
					Packet: poe.Packet,
				}
			}

			select {
			case eventCh <- ev:
			case <-ctx.Done():
				runErr = ctx.Err()
				errCh <- runErr

				return
			}
		}

		if _, err := p.FinalResult(ctx); err != nil {
			runErr = err
			errCh <- err
		}
	}()

	return eventCh, errCh
}

func isTerminal(pk *packet.Packet) bool {
	for _, r := range pk.Recipients {
		if r == pool.EndProcName {
			return true
		}
	}

	return false
}
