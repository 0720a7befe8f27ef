package window

import "fmt"

// SetupError reports that the OS refused a hook registration while a Monitor
// was being constructed
type SetupError struct {
	Range EventRange
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to register hook for %s: %v", e.Range, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ResolutionError reports a failure while handling a notification: a focused
// window or title query failed, or a handler panicked. It is delivered to
// subscribers through OnError and never stops the monitor.
type ResolutionError struct {
	Kind EventKind
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve title after %s: %v", e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// panicError wraps a recovered panic value
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (e *panicError) Unwrap() error {
	if err, ok := e.value.(error); ok {
		return err
	}
	return nil
}
