package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/pool"
)

// ExitCommunicationFunc inspects an output packet and reports whether the
// whole run should terminate early. Returning true stops the packet pool.
type ExitCommunicationFunc func(rc *core.RunContext, out *packet.Packet) bool

// CommOptions configures a Comm processor.
type CommOptions struct {
	BaseOptions

	// Recipients is the static list of downstream processor names.
	Recipients []string

	// Pool is the packet pool this processor listens on. May also be bound
	// later via BindPool.
	Pool *pool.PacketPool

	// ExitCommunication optionally terminates the run after inspecting an
	// output packet.
	ExitCommunication ExitCommunicationFunc
}

// Comm wraps a compute step with the communication layer: output routing
// validation (static or payload-embedded dynamic recipients), a listening
// lifecycle on the packet pool, and posting of result packets.
type Comm struct {
	*Base

	recipients        []string
	exitCommunication ExitCommunicationFunc

	mu        sync.Mutex
	pool      *pool.PacketPool
	listening bool
}

// NewComm creates a communicating processor.
func NewComm(name string, optFns ...func(o *CommOptions)) *Comm {
	opts := CommOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	base := NewBase(name, func(o *BaseOptions) { *o = opts.BaseOptions })

	return &Comm{
		Base:              base,
		recipients:        opts.Recipients,
		exitCommunication: opts.ExitCommunication,
		pool:              opts.Pool,
	}
}

// Recipients returns the statically configured recipient names.
func (c *Comm) Recipients() []string { return c.recipients }

// BindPool attaches the processor to the pool it should listen on and post
// to. Rebinding while listening is not allowed.
func (c *Comm) BindPool(p *pool.PacketPool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listening {
		return fmt.Errorf("processor %q: cannot rebind pool while listening", c.Name())
	}

	c.pool = p

	return nil
}

// ValidateRouting resolves the recipients of an outgoing payload batch.
//
// When every payload implements packet.RoutedPayload, routing is dynamic: all
// payloads must agree on the same selection, and the selection must be a
// subset of the static recipients. When none do, the static recipient list is
// used verbatim. A mix of routed and unrouted payloads is a configuration
// error.
func (c *Comm) ValidateRouting(payloads []any) ([]string, error) {
	routed := 0
	for _, p := range payloads {
		if _, ok := p.(packet.RoutedPayload); ok {
			routed++
		}
	}

	if routed == 0 {
		return c.recipients, nil
	}

	if routed != len(payloads) {
		return nil, fmt.Errorf("processor %q: all payloads must be either dynamically routed or not", c.Name())
	}

	selected := payloads[0].(packet.RoutedPayload).SelectedRecipients()

	for _, p := range payloads[1:] {
		if !sameRecipientSet(selected, p.(packet.RoutedPayload).SelectedRecipients()) {
			return nil, fmt.Errorf("processor %q: all payloads must select the same recipients for dynamic routing", c.Name())
		}
	}

	allowed := make(map[string]bool, len(c.recipients))
	for _, r := range c.recipients {
		allowed[r] = true
	}

	for _, r := range selected {
		if !allowed[r] {
			return nil, fmt.Errorf("processor %q: selected recipient %q is not in the configured recipients", c.Name(), r)
		}
	}

	return selected, nil
}

func sameRecipientSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	set := make(map[string]bool, len(a))
	for _, r := range a {
		set[r] = true
	}

	for _, r := range b {
		if !set[r] {
			return false
		}
	}

	return true
}

// Run executes the compute step and resolves the output packet's recipients.
func (c *Comm) Run(ctx context.Context, rc *core.RunContext, in Input) (*packet.Packet, error) {
	out, err := c.Base.Run(ctx, rc, in)
	if err != nil {
		return nil, err
	}

	recipients, err := c.ValidateRouting(out.Payloads)
	if err != nil {
		return nil, err
	}

	return packet.New(c.Name(), out.Payloads, recipients...), nil
}

// RunStream executes Run and emits the routed packet as a PacketOutputEvent.
func (c *Comm) RunStream(ctx context.Context, rc *core.RunContext, in Input) (<-chan event.Event, <-chan error) {
	eventCh := make(chan event.Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		pk, err := c.Run(ctx, rc, in)
		if err != nil {
			errCh <- err

			return
		}

		select {
		case eventCh <- event.PacketOutputEvent{
			Meta:   event.Meta{ProcName: c.Name()},
			Packet: pk,
		}:
		case <-ctx.Done():
		}
	}()

	return eventCh, errCh
}

// PostPacket validates pk's routing and posts it into the bound pool.
func (c *Comm) PostPacket(ctx context.Context, pk *packet.Packet) error {
	if _, err := c.ValidateRouting(pk.Payloads); err != nil {
		return err
	}

	c.mu.Lock()
	p := c.pool
	c.mu.Unlock()

	if p == nil {
		return fmt.Errorf("processor %q: no pool bound", c.Name())
	}

	return p.Post(ctx, pk)
}

func (c *Comm) shouldExit(rc *core.RunContext, out *packet.Packet) bool {
	if c.exitCommunication != nil {
		return c.exitCommunication(rc, out)
	}

	return false
}

// IsListening reports whether the processor is registered with its pool.
func (c *Comm) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.listening
}

// StartListening registers the processor's packet handler with the bound
// pool. Calling it while already listening is a no-op.
func (c *Comm) StartListening(rc *core.RunContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listening {
		return nil
	}

	if c.pool == nil {
		return fmt.Errorf("processor %q: no pool bound", c.Name())
	}

	p := c.pool

	p.RegisterPacketHandler(c.Name(), func(ctx context.Context, env packet.Envelope) error {
		return c.handlePacket(ctx, rc, p, env)
	})

	c.listening = true

	return nil
}

// StopListening unregisters the processor from its pool.
func (c *Comm) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.listening {
		return
	}

	c.pool.UnregisterPacketHandler(c.Name())
	c.listening = false
}

// handlePacket runs the processor on an inbound packet, applies the exit
// predicate, and forwards the output to the configured recipients.
func (c *Comm) handlePacket(ctx context.Context, rc *core.RunContext, p *pool.PacketPool, env packet.Envelope) error {
	in := Input{}

	switch pk := env.(type) {
	case *packet.StartPacket:
		in.ChatInputs = pk.ChatInputs
		in.EntryPoint = true
	case *packet.Packet:
		in.Packet = pk
	default:
		return fmt.Errorf("processor %q: unexpected envelope type %T", c.Name(), env)
	}

	out, err := c.Run(ctx, rc, in)
	if err != nil {
		return err
	}

	if c.shouldExit(rc, out) {
		p.StopAll()

		return nil
	}

	if len(out.Recipients) > 0 {
		return p.Post(ctx, out)
	}

	return nil
}
