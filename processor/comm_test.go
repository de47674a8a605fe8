package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/pool"
)

// routedPayload selects its own recipients.
type routedPayload struct {
	Text string
	To   []string
}

func (p routedPayload) SelectedRecipients() []string { return p.To }

func newTestComm(recipients ...string) *Comm {
	return NewComm("sender", func(o *CommOptions) {
		o.Recipients = recipients
	})
}

func TestComm_StaticRouting(t *testing.T) {
	c := newTestComm("critic", "editor")

	recipients, err := c.ValidateRouting([]any{"plain", "payloads"})
	require.NoError(t, err)
	assert.Equal(t, []string{"critic", "editor"}, recipients)
}

func TestComm_DynamicRouting(t *testing.T) {
	c := newTestComm("critic", "editor")

	recipients, err := c.ValidateRouting([]any{
		routedPayload{Text: "a", To: []string{"critic"}},
		routedPayload{Text: "b", To: []string{"critic"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"critic"}, recipients)
}

func TestComm_MixedRoutingRejected(t *testing.T) {
	c := newTestComm("critic")

	_, err := c.ValidateRouting([]any{
		routedPayload{To: []string{"critic"}},
		"plain",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either dynamically routed or not")
}

func TestComm_DisagreeingSelectionsRejected(t *testing.T) {
	c := newTestComm("critic", "editor")

	_, err := c.ValidateRouting([]any{
		routedPayload{To: []string{"critic"}},
		routedPayload{To: []string{"editor"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same recipients")
}

func TestComm_SelectionOutsideStaticRecipientsRejected(t *testing.T) {
	c := newTestComm("critic")

	_, err := c.ValidateRouting([]any{
		routedPayload{To: []string{"stranger"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"stranger"`)
}

func TestComm_RunRoutesOutput(t *testing.T) {
	c := newTestComm("critic")
	rc := core.NewRunContext()

	out, err := c.Run(context.Background(), rc, Input{Args: []any{"draft"}})
	require.NoError(t, err)
	assert.Equal(t, "sender", out.Sender)
	assert.Equal(t, []string{"critic"}, out.Recipients)
	assert.Equal(t, []any{"draft"}, out.Payloads)
}

func TestComm_ListeningLifecycle(t *testing.T) {
	ctx := context.Background()
	p := pool.New(ctx)
	defer p.Close()

	c := NewComm("echo", func(o *CommOptions) {
		o.Recipients = []string{pool.EndProcName}
	})

	rc := core.NewRunContext()

	// no pool bound yet
	require.Error(t, c.StartListening(rc))

	require.NoError(t, c.BindPool(p))
	require.NoError(t, c.StartListening(rc))
	assert.True(t, c.IsListening())

	// idempotent
	require.NoError(t, c.StartListening(rc))

	// rebinding while listening is rejected
	require.Error(t, c.BindPool(pool.New(ctx)))

	require.NoError(t, p.Post(ctx, packet.New("test", []any{"hello"}, "echo")))

	final, err := p.FinalResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo", final.Sender)
	assert.Equal(t, []any{"hello"}, final.Payloads)

	c.StopListening()
	assert.False(t, c.IsListening())
}

func TestComm_ExitCommunicationStopsRun(t *testing.T) {
	ctx := context.Background()
	p := pool.New(ctx)
	defer p.Close()

	c := NewComm("quitter", func(o *CommOptions) {
		o.Recipients = []string{pool.EndProcName}
		o.ExitCommunication = func(rc *core.RunContext, out *packet.Packet) bool {
			return true
		}
	})

	rc := core.NewRunContext()
	require.NoError(t, c.BindPool(p))
	require.NoError(t, c.StartListening(rc))

	require.NoError(t, p.Post(ctx, packet.New("test", []any{"hello"}, "quitter")))

	// the exit predicate fires before the packet reaches END
	_, err := p.FinalResult(ctx)
	assert.ErrorIs(t, err, pool.ErrNoFinalResult)
}

func TestComm_PostPacketRequiresPool(t *testing.T) {
	c := newTestComm("critic")

	err := c.PostPacket(context.Background(), packet.New("sender", []any{"x"}, "critic"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pool bound")
}
