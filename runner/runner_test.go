package runner

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hupe1980/agentswarm/agent"
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/event"
	"github.com/hupe1980/agentswarm/internal/testutil"
	"github.com/hupe1980/agentswarm/llm"
	"github.com/hupe1980/agentswarm/pool"
	"github.com/hupe1980/agentswarm/processor"
)

func twoAgentPipeline(t *testing.T) (*agent.LLMAgent, *agent.LLMAgent) {
	t.Helper()

	writerClient := llm.NewMockLLM("test-model")
	writerClient.Enqueue(testutil.NewCompletionBuilder().Text("draft text").Build())

	writer := agent.New("writer", writerClient, func(o *agent.Options) {
		o.Instructions = "You write drafts."
		o.Recipients = []string{"critic"}
	})

	criticClient := llm.NewMockLLM("test-model")
	criticClient.Enqueue(testutil.NewCompletionBuilder().Text("review of the draft").Build())

	critic := agent.New("critic", criticClient, func(o *agent.Options) {
		o.Instructions = "You critique drafts."
		o.Recipients = []string{pool.EndProcName}
	})

	return writer, critic
}

func TestNew_ValidatesTopology(t *testing.T) {
	writer, critic := twoAgentPipeline(t)

	// entry must be in the processor list
	_, err := New(writer, []processor.Processor{critic})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `entry processor "writer"`)

	// exactly one terminal processor
	_, err = New(writer, []processor.Processor{writer})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one processor")

	_, err = New(writer, []processor.Processor{writer, critic})
	require.NoError(t, err)
}

func TestRunner_Run(t *testing.T) {
	writer, critic := twoAgentPipeline(t)

	r, err := New(writer, []processor.Processor{writer, critic})
	require.NoError(t, err)

	final, err := r.Run(context.Background(), "write about rain")
	require.NoError(t, err)

	assert.Equal(t, "critic", final.Sender)
	assert.Equal(t, []any{"review of the draft"}, final.Payloads)

	// both agents ran exactly once
	assert.Len(t, r.RunContext().Completions("writer"), 1)
	assert.Len(t, r.RunContext().Completions("critic"), 1)

	// the draft reached the critic as a user message
	criticConv := critic.Memory().Conversation()
	require.GreaterOrEqual(t, len(criticConv), 3)
}

func TestRunner_TypedPayloadBetweenAgents(t *testing.T) {
	counterClient := llm.NewMockLLM("test-model")
	counterClient.Enqueue(testutil.NewCompletionBuilder().Text("42").Build())

	counter := agent.New("counter", counterClient, func(o *agent.Options) {
		o.Recipients = []string{"checker"}
		o.OutType = reflect.TypeOf(0)
	})

	var received any

	checkerClient := llm.NewMockLLM("test-model")
	checkerClient.Enqueue(testutil.NewCompletionBuilder().Text("count confirmed").Build())

	checker := agent.New("checker", checkerClient, func(o *agent.Options) {
		o.Recipients = []string{pool.EndProcName}
		o.FormatInput = func(rc *core.RunContext, inArgs any) (string, error) {
			received = inArgs
			return fmt.Sprintf("check the count %v", inArgs), nil
		}
	})

	r, err := New(counter, []processor.Processor{counter, checker})
	require.NoError(t, err)

	final, err := r.Run(context.Background(), "how many?")
	require.NoError(t, err)

	// the counter's text output is parsed into its declared integer type
	// before it crosses the pool
	assert.Equal(t, 42, received)
	assert.Equal(t, []any{"count confirmed"}, final.Payloads)
}

func TestRunner_RunRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	writer, critic := twoAgentPipeline(t)

	r, err := New(writer, []processor.Processor{writer, critic})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "write about rain")
	require.NoError(t, err)

	names := make([]string, 0)
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}

	assert.Contains(t, names, "runner.run")
	assert.Contains(t, names, "processor.run")
	assert.Contains(t, names, "executor.generate")
}

func TestRunner_RunStream(t *testing.T) {
	writer, critic := twoAgentPipeline(t)

	r, err := New(writer, []processor.Processor{writer, critic})
	require.NoError(t, err)

	eventCh, errCh := r.RunStream(context.Background(), "write about rain")

	var (
		packetOutputs int
		result        *event.RunResultEvent
	)

	for ev := range eventCh {
		switch e := ev.(type) {
		case event.PacketOutputEvent:
			packetOutputs++
		case event.RunResultEvent:
			result = &e
		}
	}

	require.NoError(t, <-errCh)

	// the writer's intermediate packet streams as a plain output event, the
	// critic's terminal packet arrives as the run result
	assert.GreaterOrEqual(t, packetOutputs, 1)
	require.NotNil(t, result)
	assert.Equal(t, "critic", result.Packet.Sender)
	assert.Equal(t, []any{"review of the draft"}, result.Packet.Payloads)
}

func TestRunner_HandlerErrorSurfaces(t *testing.T) {
	failingClient := llm.NewMockLLM("test-model")
	// nothing enqueued: the first generation fails

	failing := agent.New("failing", failingClient, func(o *agent.Options) {
		o.Recipients = []string{pool.EndProcName}
	})

	r, err := New(failing, []processor.Processor{failing})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scripted completion")
}
