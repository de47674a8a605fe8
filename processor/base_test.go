package processor

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
)

var _ Processor = (*Base)(nil)
var _ Processor = (*Comm)(nil)

func TestBase_PassthroughProcess(t *testing.T) {
	b := NewBase("passthrough")
	rc := core.NewRunContext()

	out, err := b.Run(context.Background(), rc, Input{Args: []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out.Payloads)
	assert.Equal(t, "passthrough", out.Sender)
	assert.Empty(t, out.Recipients)
}

func TestBase_CustomProcess(t *testing.T) {
	b := NewBase("doubler", func(o *BaseOptions) {
		o.Process = func(ctx context.Context, rc *core.RunContext, in Input) ([]any, error) {
			n := in.Args[0].(int)
			return []any{n * 2}, nil
		}
	})

	rc := core.NewRunContext()
	out, err := b.Run(context.Background(), rc, Input{Args: []any{21}})
	require.NoError(t, err)
	assert.Equal(t, []any{42}, out.Payloads)
}

func TestResolveInput_RejectsMultipleInputs(t *testing.T) {
	_, err := ResolveInput(Input{
		ChatInputs: "hi",
		Args:       []any{"x"},
	})
	assert.ErrorIs(t, err, ErrMultipleInputs)

	_, err = ResolveInput(Input{
		Packet: packet.New("other", []any{"x"}),
		Args:   []any{"x"},
	})
	assert.ErrorIs(t, err, ErrMultipleInputs)
}

func TestResolveInput_RejectsPacketAtEntryPoint(t *testing.T) {
	_, err := ResolveInput(Input{
		EntryPoint: true,
		Packet:     packet.New("other", []any{"x"}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point")
}

func TestResolveInput_FoldsPacketIntoArgs(t *testing.T) {
	in, err := ResolveInput(Input{Packet: packet.New("other", []any{"x", "y"})})
	require.NoError(t, err)
	assert.Nil(t, in.Packet)
	assert.Equal(t, []any{"x", "y"}, in.Args)
}

func TestBase_ValidatesOutputType(t *testing.T) {
	b := NewBase("typed", func(o *BaseOptions) {
		o.OutType = reflect.TypeOf(0)
	})

	rc := core.NewRunContext()

	_, err := b.Run(context.Background(), rc, Input{Args: []any{1, 2}})
	require.NoError(t, err)

	_, err = b.Run(context.Background(), rc, Input{Args: []any{1, "nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output payload 1")
}

func TestBase_InterfaceOutType(t *testing.T) {
	b := NewBase("stringers", func(o *BaseOptions) {
		o.OutType = reflect.TypeOf((*error)(nil)).Elem()
	})

	rc := core.NewRunContext()

	_, err := b.Run(context.Background(), rc, Input{Args: []any{context.Canceled}})
	assert.NoError(t, err)

	_, err = b.Run(context.Background(), rc, Input{Args: []any{"not an error"}})
	assert.Error(t, err)
}

func TestBase_RunStream(t *testing.T) {
	b := NewBase("streamer")
	rc := core.NewRunContext()

	eventCh, errCh := b.RunStream(context.Background(), rc, Input{Args: []any{"payload"}})

	var packets []*packet.Packet
	for ev := range eventCh {
		if out, ok := ev.(event.PacketOutputEvent); ok {
			packets = append(packets, out.Packet)
		}
	}

	require.NoError(t, <-errCh)
	require.Len(t, packets, 1)
	assert.Equal(t, []any{"payload"}, packets[0].Payloads)
}
