package core

// Printer is a passive observer invoked with generated messages after each
// turn. Implementations render to a console, a UI, or nowhere at all.
//
// Printers are best-effort: the run context recovers panics and logs errors
// rather than letting a display failure abort a run.
type Printer interface {
	PrintMessages(msgs []Message, usages []*Usage, procName, callID string)
}

// NoOpPrinter discards all messages.
type NoOpPrinter struct{}

// PrintMessages implements Printer.
func (NoOpPrinter) PrintMessages([]Message, []*Usage, string, string) {}
