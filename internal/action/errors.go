// File: internal/action/errors.go
package action

import "fmt"

// DecodeError reports a model response that could not be turned into a
// well-formed Action: no payload at all, invalid JSON, an unknown action
// kind, or a missing required field. The decoder never papers over these by
// guessing a default action; callers decide how to react.
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode action: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("decode action: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func decodeErrorf(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}
