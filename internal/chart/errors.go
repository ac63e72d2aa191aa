package chart

import "fmt"

// ExecutionError reports chart source that could not be validated or run.
// Line is 1-based, 0 when the failure is not tied to a source line.
type ExecutionError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ExecutionError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Line > 0 {
		return fmt.Sprintf("chart code line %d: %s", e.Line, msg)
	}
	return "chart: " + msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func execErrorf(line int, format string, args ...any) *ExecutionError {
	return &ExecutionError{Line: line, Msg: fmt.Sprintf(format, args...)}
}
