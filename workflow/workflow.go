// Package workflow composes processors into pipelines (Sequential) and
// feedback loops (Looped). Payload type compatibility between neighboring
// stages is validated at construction time; a workflow is itself a processor
// and can be nested or routed like any other.
package workflow

import (
	"fmt"
	"reflect"

	"github.com/hupe1980/agentswarm/processor"
)

// ConstructionError reports an invalid workflow configuration, e.g. a payload
// type mismatch between neighboring stages.
type ConstructionError struct {
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("workflow construction error: %s", e.Reason)
}

// base carries the pieces shared by both workflow kinds.
type base struct {
	name       string
	subprocs   []processor.Processor
	startProc  processor.Processor
	endProc    processor.Processor
	recipients []string
}

func newBase(name string, subprocs []processor.Processor, startProc, endProc processor.Processor, recipients []string) (*base, error) {
	if len(subprocs) < 2 {
		return nil, &ConstructionError{Reason: "at least two subprocessors are required"}
	}

	if err := validatePairwise(subprocs); err != nil {
		return nil, err
	}

	return &base{
		name:       name,
		subprocs:   subprocs,
		startProc:  startProc,
		endProc:    endProc,
		recipients: recipients,
	}, nil
}

// validatePairwise checks that each stage's output type matches the next
// stage's input type. Stages without declared types are skipped.
func validatePairwise(subprocs []processor.Processor) error {
	for i := 1; i < len(subprocs); i++ {
		prev, next := subprocs[i-1], subprocs[i]

		if err := checkLink(prev, next); err != nil {
			return err
		}
	}

	return nil
}

func checkLink(prev, next processor.Processor) error {
	outType, inType := prev.OutType(), next.InType()
	if outType == nil || inType == nil {
		return nil
	}

	if !typeCompatible(outType, inType) {
		return &ConstructionError{
			Reason: fmt.Sprintf("output type %s of subprocessor %q does not match input type %s of subprocessor %q",
				outType, prev.Name(), inType, next.Name()),
		}
	}

	return nil
}

func typeCompatible(out, in reflect.Type) bool {
	if in.Kind() == reflect.Interface {
		return out.Implements(in)
	}

	return out == in || out.AssignableTo(in)
}

// Name returns the workflow name used for packet addressing.
func (b *base) Name() string { return b.name }

// InType returns the first stage's input type.
func (b *base) InType() reflect.Type { return b.startProc.InType() }

// OutType returns the exit stage's output type.
func (b *base) OutType() reflect.Type { return b.endProc.OutType() }

// Recipients returns the workflow's static downstream routing.
func (b *base) Recipients() []string { return b.recipients }

// Subprocs returns the composed processors in execution order.
func (b *base) Subprocs() []processor.Processor { return b.subprocs }
