package workflow

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/packet"
	"github.com/hupe1980/agentswarm/processor"
)

var _ processor.Processor = (*Sequential)(nil)
var _ processor.Processor = (*Looped)(nil)

func typedProc(name string, in, out reflect.Type, fn processor.ProcessFunc) *processor.Base {
	return processor.NewBase(name, func(o *processor.BaseOptions) {
		o.InType = in
		o.OutType = out
		o.Process = fn
	})
}

func addProc(name string, delta int) *processor.Base {
	intType := reflect.TypeOf(0)

	return typedProc(name, intType, intType,
		func(ctx context.Context, rc *core.RunContext, in processor.Input) ([]any, error) {
			out := make([]any, 0, len(in.Args))
			for _, a := range in.Args {
				out = append(out, a.(int)+delta)
			}
			return out, nil
		})
}

func TestNewSequential_RequiresTwoStages(t *testing.T) {
	_, err := NewSequential("wf", []processor.Processor{addProc("only", 1)})
	require.Error(t, err)

	var cErr *ConstructionError
	assert.ErrorAs(t, err, &cErr)
}

func TestNewSequential_TypeMismatch(t *testing.T) {
	intToString := typedProc("stringify", reflect.TypeOf(0), reflect.TypeOf(""), nil)

	_, err := NewSequential("wf", []processor.Processor{intToString, addProc("add", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output type string of subprocessor "stringify"`)
}

func TestSequential_Run(t *testing.T) {
	wf, err := NewSequential("pipeline", []processor.Processor{
		addProc("add1", 1),
		addProc("add10", 10),
	}, func(o *SequentialOptions) {
		o.Recipients = []string{"downstream"}
	})
	require.NoError(t, err)

	assert.Equal(t, reflect.TypeOf(0), wf.InType())
	assert.Equal(t, reflect.TypeOf(0), wf.OutType())
	assert.Equal(t, []string{"downstream"}, wf.Recipients())

	rc := core.NewRunContext()
	out, err := wf.Run(context.Background(), rc, processor.Input{Args: []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "pipeline", out.Sender)
	assert.Equal(t, []any{12, 13}, out.Payloads)
	assert.Equal(t, []string{"downstream"}, out.Recipients)
}

func TestSequential_RunStream(t *testing.T) {
	wf, err := NewSequential("pipeline", []processor.Processor{
		addProc("add1", 1),
		addProc("add10", 10),
	})
	require.NoError(t, err)

	rc := core.NewRunContext()
	eventCh, errCh := wf.RunStream(context.Background(), rc, processor.Input{Args: []any{5}})

	var outputs []event.PacketOutputEvent
	for ev := range eventCh {
		if poe, ok := ev.(event.PacketOutputEvent); ok {
			outputs = append(outputs, poe)
		}
	}

	require.NoError(t, <-errCh)

	// one output per stage plus the workflow's own
	require.Len(t, outputs, 3)
	last := outputs[len(outputs)-1]
	assert.Equal(t, "pipeline", last.EventMeta().ProcName)
	assert.Equal(t, []any{16}, last.Packet.Payloads)
}

func TestNewLooped_LoopMustClose(t *testing.T) {
	intToString := typedProc("stringify", reflect.TypeOf(0), reflect.TypeOf(""), nil)
	stringToString := typedProc("shout", reflect.TypeOf(""), reflect.TypeOf(""), nil)

	// string output of the last stage cannot feed the int input of the first
	_, err := NewLooped("loop", []processor.Processor{intToString, stringToString}, stringToString)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop does not close")
}

func TestNewLooped_ExitProcMustBeMember(t *testing.T) {
	outsider := addProc("outsider", 0)

	_, err := NewLooped("loop", []processor.Processor{addProc("a", 1), addProc("b", 2)}, outsider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `exit subprocessor "outsider"`)
}

func TestLooped_TerminatorEndsLoop(t *testing.T) {
	a := addProc("a", 1)
	b := addProc("b", 1)

	wf, err := NewLooped("loop", []processor.Processor{a, b}, b, func(o *LoopedOptions) {
		o.MaxIterations = 100
		o.Terminator = func(rc *core.RunContext, out *packet.Packet) bool {
			return out.Payloads[0].(int) >= 6
		}
	})
	require.NoError(t, err)

	rc := core.NewRunContext()
	out, err := wf.Run(context.Background(), rc, processor.Input{Args: []any{0}})
	require.NoError(t, err)

	// each pass adds 2; the terminator fires at 6
	assert.Equal(t, []any{6}, out.Payloads)
	assert.Equal(t, "loop", out.Sender)
}

func TestNewLooped_NilExitProc(t *testing.T) {
	_, err := NewLooped("loop", []processor.Processor{addProc("a", 1), addProc("b", 1)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit subprocessor is required")
}

func TestLooped_MaxIterations(t *testing.T) {
	a := addProc("a", 1)
	b := addProc("b", 1)

	wf, err := NewLooped("loop", []processor.Processor{a, b}, b, func(o *LoopedOptions) {
		o.MaxIterations = 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, wf.MaxIterations())

	rc := core.NewRunContext()
	out, err := wf.Run(context.Background(), rc, processor.Input{Args: []any{0}})
	require.NoError(t, err)

	// 3 full passes, each adding 2
	assert.Equal(t, []any{6}, out.Payloads)
}

func TestLooped_RunStream(t *testing.T) {
	a := addProc("a", 1)
	b := addProc("b", 1)

	wf, err := NewLooped("loop", []processor.Processor{a, b}, b, func(o *LoopedOptions) {
		o.MaxIterations = 2
	})
	require.NoError(t, err)

	rc := core.NewRunContext()
	eventCh, errCh := wf.RunStream(context.Background(), rc, processor.Input{Args: []any{0}})

	var final *event.PacketOutputEvent
	for ev := range eventCh {
		if poe, ok := ev.(event.PacketOutputEvent); ok {
			poe := poe
			final = &poe
		}
	}

	require.NoError(t, <-errCh)
	require.NotNil(t, final)
	assert.Equal(t, "loop", final.EventMeta().ProcName)
	assert.Equal(t, []any{4}, final.Packet.Payloads)
}
