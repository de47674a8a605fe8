package core

import (
	"sync"

	"github.com/hupe1980/agentswarm/logging"
)

// RunContextOptions configures a RunContext instance.
type RunContextOptions struct {
	State   any
	RunArgs map[string]any
	Printer Printer
	Logger  logging.Logger
}

// RunContext carries the mutable, shared state of one top-level run: the
// per-processor completion log, the usage tracker, an optional printer and
// arbitrary user state. One RunContext is created per run and passed by
// reference through every processor and turn loop; it is discarded when the
// run finishes.
//
// Methods are safe for concurrent use by sibling processors.
type RunContext struct {
	runID   string
	state   any
	runArgs map[string]any
	printer Printer
	logger  logging.Logger

	mu          sync.Mutex
	completions map[string][]*Completion
	usage       *UsageTracker
}

// NewRunContext creates a RunContext with a fresh run id.
func NewRunContext(optFns ...func(o *RunContextOptions)) *RunContext {
	opts := RunContextOptions{
		Printer: NoOpPrinter{},
		Logger:  logging.NoOpLogger{},
		RunArgs: map[string]any{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	runID := NewShortID()

	return &RunContext{
		runID:       runID,
		state:       opts.State,
		runArgs:     opts.RunArgs,
		printer:     opts.Printer,
		logger:      opts.Logger,
		completions: make(map[string][]*Completion),
		usage:       NewUsageTracker(runID),
	}
}

// RunID returns the unique identifier of this run.
func (rc *RunContext) RunID() string { return rc.runID }

// State returns the user-provided state object, if any.
func (rc *RunContext) State() any { return rc.state }

// RunArg returns a named run argument.
func (rc *RunContext) RunArg(key string) (any, bool) {
	v, ok := rc.runArgs[key]
	return v, ok
}

// Logger returns the run logger (never nil).
func (rc *RunContext) Logger() logging.Logger { return rc.logger }

// Usage returns the run's usage tracker.
func (rc *RunContext) Usage() *UsageTracker { return rc.usage }

// LogCompletion records a completion produced by procName and folds its
// usage into the tracker.
func (rc *RunContext) LogCompletion(procName string, c *Completion) {
	if c == nil {
		return
	}
	rc.mu.Lock()
	rc.completions[procName] = append(rc.completions[procName], c)
	rc.mu.Unlock()

	rc.usage.Update(procName, c)
}

// Completions returns the completions recorded for procName, in order.
func (rc *RunContext) Completions(procName string) []*Completion {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]*Completion(nil), rc.completions[procName]...)
}

// PrintMessages forwards messages to the configured printer. Printer
// failures are recovered and logged, never propagated: display is strictly
// best-effort.
func (rc *RunContext) PrintMessages(msgs []Message, usages []*Usage, procName, callID string) {
	defer func() {
		if r := recover(); r != nil {
			rc.logger.Warn("printer panicked", "proc_name", procName, "panic", r)
		}
	}()
	rc.printer.PrintMessages(msgs, usages, procName, callID)
}
