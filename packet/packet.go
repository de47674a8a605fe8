// Package packet defines the immutable routing envelope exchanged between
// processors. A Packet carries a batch of payloads from one sender to a
// resolved list of recipients; a new Packet is built for every hop.
package packet

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentswarm/core"
)

// RoutedPayload is implemented by payloads that embed their own routing
// decision. When every payload of an outgoing packet implements it, the
// sending processor routes to the selected recipients instead of its static
// recipient list (all payloads must agree on the selection).
type RoutedPayload interface {
	SelectedRecipients() []string
}

// Packet is the immutable unit of inter-processor communication: an ordered
// batch of payloads plus sender and resolved recipient names. Treat a Packet
// as frozen once constructed; build a new one for each hop.
type Packet struct {
	Payloads   []any
	Sender     string
	Recipients []string
	MessageID  string
}

// New builds a packet with a fresh short message id.
func New(sender string, payloads []any, recipients ...string) *Packet {
	return &Packet{
		Payloads:   payloads,
		Sender:     sender,
		Recipients: recipients,
		MessageID:  core.NewShortID(),
	}
}

// Envelope is the routing view of a packet used by the pool. Both Packet and
// StartPacket satisfy it.
type Envelope interface {
	SenderName() string
	RecipientNames() []string
	ID() string
}

func (p *Packet) SenderName() string       { return p.Sender }
func (p *Packet) RecipientNames() []string { return p.Recipients }
func (p *Packet) ID() string               { return p.MessageID }

// String renders a compact routing summary for logs.
func (p *Packet) String() string {
	return fmt.Sprintf("From: %s, To: %s, Payloads: %d",
		p.Sender, strings.Join(p.Recipients, ", "), len(p.Payloads))
}

// StartPacket seeds a run: it carries raw chat inputs for the entry processor
// instead of typed payloads. Only the runner constructs these.
type StartPacket struct {
	Packet
	ChatInputs any
}

// NewStart builds the seed packet addressed to the entry processor.
func NewStart(chatInputs any, recipients ...string) *StartPacket {
	return &StartPacket{
		Packet: Packet{
			Sender:     "*START*",
			Recipients: recipients,
			MessageID:  core.NewShortID(),
		},
		ChatInputs: chatInputs,
	}
}

// PayloadsAs converts a packet's payload batch to a concrete type. It fails
// on the first payload that is not a T.
func PayloadsAs[T any](p *Packet) ([]T, error) {
	out := make([]T, 0, len(p.Payloads))

	for i, payload := range p.Payloads {
		v, ok := payload.(T)
		if !ok {
			return nil, fmt.Errorf("payload %d of packet %s from %q is %T, not %T",
				i, p.MessageID, p.Sender, payload, *new(T))
		}

		out = append(out, v)
	}

	return out, nil
}
