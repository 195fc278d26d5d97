// File: internal/executor/errors.go
package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vistral/deskpilot/internal/action"
)

// UnknownAppError is returned when a launch action names an alias the
// configured registry does not contain. It lists the known aliases so the
// failure feedback can steer the model toward a valid one.
type UnknownAppError struct {
	App   string
	Known []string
}

func (e *UnknownAppError) Error() string {
	known := append([]string(nil), e.Known...)
	sort.Strings(known)
	return fmt.Sprintf("unknown application %q (known: %s)", e.App, strings.Join(known, ", "))
}

// ExecutionError wraps a failure from the input surface while carrying out
// an action.
type ExecutionError struct {
	Kind action.Kind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
