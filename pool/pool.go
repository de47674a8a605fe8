// Package pool implements the asynchronous, name-addressed mailbox runtime
// that coordinates one multi-agent run. Processors register packet handlers
// under their names; posting a packet schedules the handler of every
// recipient. A packet addressed to the end sentinel resolves the pool's final
// result and shuts the run down.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/logging"
	"github.com/hupe1980/agentswarm/packet"
)

// EndProcName is the sentinel recipient that terminates a run. A packet
// addressed to it is never dispatched to a handler; it becomes the run's
// final result.
const EndProcName = "END"

// ErrNoFinalResult is returned by FinalResult when the pool shuts down
// without a terminal packet ever being posted.
var ErrNoFinalResult = errors.New("pool: stopped before a terminal packet was posted")

// Handler consumes one inbound packet for a registered processor name. The
// pool guarantees at most one in-flight invocation per name.
type Handler func(ctx context.Context, env packet.Envelope) error

// Options configures a PacketPool.
type Options struct {
	// Logger receives pool lifecycle and dispatch logs.
	Logger logging.Logger

	// MailboxSize is the per-name inbound packet buffer.
	MailboxSize int

	// EventBufferSize bounds the internal event queue used by StreamEvents.
	EventBufferSize int
}

type mailbox struct {
	name string
	in   chan packet.Envelope
	quit chan struct{}

	mu      sync.Mutex
	handler Handler
}

func (mb *mailbox) currentHandler() Handler {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	return mb.handler
}

// PacketPool routes packets between registered handlers for the duration of
// one run. Create it with New, register handlers, post the start packet and
// await FinalResult (or consume StreamEvents); always Close it when done so
// every mailbox goroutine is torn down.
type PacketPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger

	mailboxSize int

	mu        sync.RWMutex
	mailboxes map[string]*mailbox

	events chan event.Event

	finalOnce sync.Once
	final     chan *packet.Packet

	errOnce  sync.Once
	firstErr error

	wg sync.WaitGroup
}

// New creates a pool scoped to ctx. Cancelling ctx (or calling StopAll/Close)
// cancels every outstanding handler invocation.
func New(ctx context.Context, optFns ...func(o *Options)) *PacketPool {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		MailboxSize:     16,
		EventBufferSize: 256,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &PacketPool{
		ctx:         poolCtx,
		cancel:      cancel,
		logger:      opts.Logger,
		mailboxSize: opts.MailboxSize,
		mailboxes:   make(map[string]*mailbox),
		events:      make(chan event.Event, opts.EventBufferSize),
		final:       make(chan *packet.Packet, 1),
	}
}

// RegisterPacketHandler binds handler to name. Re-registering an existing name
// replaces its handler in place; the mailbox and its pending packets survive.
func (p *PacketPool) RegisterPacketHandler(name string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if mb, ok := p.mailboxes[name]; ok {
		mb.mu.Lock()
		mb.handler = handler
		mb.mu.Unlock()

		return
	}

	mb := &mailbox{
		name:    name,
		in:      make(chan packet.Envelope, p.mailboxSize),
		quit:    make(chan struct{}),
		handler: handler,
	}

	p.mailboxes[name] = mb

	p.wg.Add(1)
	go p.runMailbox(mb)
}

// UnregisterPacketHandler removes the handler for name. Packets already queued
// in the mailbox are dropped. Safe to call while dispatch is in flight.
func (p *PacketPool) UnregisterPacketHandler(name string) {
	p.mu.Lock()
	mb, ok := p.mailboxes[name]
	if ok {
		delete(p.mailboxes, name)
	}
	p.mu.Unlock()

	if ok {
		close(mb.quit)
	}
}

func (p *PacketPool) runMailbox(mb *mailbox) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-mb.quit:
			return
		case env := <-mb.in:
			handler := mb.currentHandler()

			if err := handler(p.ctx, env); err != nil {
				p.fail(mb.name, err)

				return
			}
		}
	}
}

// fail records the first handler error, surfaces it as an event, and tears
// the pool down.
func (p *PacketPool) fail(name string, err error) {
	p.errOnce.Do(func() {
		p.firstErr = fmt.Errorf("pool: handler %q: %w", name, err)
	})

	p.logger.Error("pool.handler.error", "proc_name", name, "error", err.Error())

	p.PushEvent(event.ErrorEvent{
		Meta: event.Meta{ProcName: name},
		Err:  err,
	})

	p.StopAll()
}

// Post routes env to every recipient's mailbox. A recipient equal to
// EndProcName resolves the final result instead of dispatching and initiates
// shutdown. Posting to an unregistered name is an error.
func (p *PacketPool) Post(ctx context.Context, env packet.Envelope) error {
	for _, recipient := range env.RecipientNames() {
		if recipient == EndProcName {
			pk, ok := env.(*packet.Packet)
			if !ok {
				return fmt.Errorf("pool: terminal packet %s has unexpected type %T", env.ID(), env)
			}

			p.resolveFinal(pk)

			continue
		}

		p.mu.RLock()
		mb, ok := p.mailboxes[recipient]
		p.mu.RUnlock()

		if !ok {
			return fmt.Errorf("pool: no handler registered for recipient %q", recipient)
		}

		select {
		case mb.in <- env:
		case <-mb.quit:
			return fmt.Errorf("pool: handler for recipient %q was unregistered", recipient)
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}

		p.logger.Debug("pool.post", "message_id", env.ID(), "sender", env.SenderName(), "recipient", recipient)
	}

	return nil
}

func (p *PacketPool) resolveFinal(pk *packet.Packet) {
	p.finalOnce.Do(func() {
		p.final <- pk
	})

	p.logger.Info("pool.final_result", "message_id", pk.MessageID, "sender", pk.Sender)

	p.StopAll()
}

// PushEvent queues ev for StreamEvents consumers. Never blocks past pool
// shutdown; events pushed after shutdown are dropped.
func (p *PacketPool) PushEvent(ev event.Event) {
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
	}
}

// FinalResult blocks until the terminal packet is posted, the pool shuts
// down, or ctx is cancelled.
func (p *PacketPool) FinalResult(ctx context.Context) (*packet.Packet, error) {
	select {
	case pk := <-p.final:
		return pk, nil
	case <-p.ctx.Done():
		// A terminal packet may have raced with shutdown.
		select {
		case pk := <-p.final:
			return pk, nil
		default:
		}

		if err := p.err(); err != nil {
			return nil, err
		}

		return nil, ErrNoFinalResult
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PacketPool) err() error {
	p.errOnce.Do(func() {})

	return p.firstErr
}

// StreamEvents returns a single-pass ordered stream of all events pushed
// during the run. The channel closes once the pool shuts down, after all
// buffered events have been delivered.
func (p *PacketPool) StreamEvents() <-chan event.Event {
	out := make(chan event.Event)

	go func() {
		defer close(out)

		for {
			select {
			case ev := <-p.events:
				out <- ev
			case <-p.ctx.Done():
				// Deliver what is already buffered before closing.
				for {
					select {
					case ev := <-p.events:
						out <- ev
					default:
						return
					}
				}
			}
		}
	}()

	return out
}

// StopAll cancels every outstanding handler invocation and marks the pool
// closed. Safe to call multiple times and from inside a handler.
func (p *PacketPool) StopAll() {
	p.cancel()
}

// Close stops the pool and waits for all mailbox goroutines to exit.
func (p *PacketPool) Close() {
	p.StopAll()
	p.wg.Wait()
}
