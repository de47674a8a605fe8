// Package agentswarm builds multi-agent LLM systems out of communicating
// processors. Agents, tools and workflows exchange immutable packets over a
// per-run packet pool; most applications interact with the library by:
//  1. Constructing one or more processors (agent.New, workflow.NewSequential,
//     workflow.NewLooped, or a custom processor.Base)
//  2. Wiring them into a runner.Runner with an entry processor
//  3. Calling Run for a final result or RunStream for live events
//
// The helpers in this package cover the common single-run case; anything more
// involved (reusable runners, custom pools, shared run contexts) uses the
// subpackages directly.
package agentswarm

import (
	"context"

	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/processor"
	"github.com/hupe1980/agentswarm/runner"
)

// Run executes a single run over the given processors, seeding the entry
// processor with chatInput and blocking until the terminal packet arrives.
func Run(ctx context.Context, entryProc processor.Processor, procs []processor.Processor, chatInput any, optFns ...func(o *runner.Options)) (*packet.Packet, error) {
	r, err := runner.New(entryProc, procs, optFns...)
	if err != nil {
		return nil, err
	}

	return r.Run(ctx, chatInput)
}

// RunStream executes a single run like Run but surfaces every event produced
// along the way. The event channel closes when the run finishes; the error
// channel carries at most one error.
func RunStream(ctx context.Context, entryProc processor.Processor, procs []processor.Processor, chatInput any, optFns ...func(o *runner.Options)) (<-chan event.Event, <-chan error) {
	r, err := runner.New(entryProc, procs, optFns...)
	if err != nil {
		errCh := make(chan error, 1)
		errCh <- err
		close(errCh)

		events := make(chan event.Event)
		close(events)

		return events, errCh
	}

	return r.RunStream(ctx, chatInput)
}
