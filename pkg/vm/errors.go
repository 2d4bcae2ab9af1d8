// Package vm - error handling with stack traces
package vm

import (
	"fmt"
	"strings"
)

// StackFrame records one level of a runtime error's stack trace: the name
// of the function executing (or "script" for the implicit top level) and
// the source line its instruction pointer had reached.
type StackFrame struct {
	Name string
	Line int
}

// RuntimeError is returned by Interpret when a predicate in the dispatch
// loop fails (wrong operand types, an undefined name, stack overflow, ...).
// Its Error text matches the host-facing format exactly: the message on its
// own line, then one "[line L] in NAME" line per frame, innermost first.
type RuntimeError struct {
	Message string
	Frames  []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.Frames {
		fmt.Fprintf(&b, "\n[line %d] in %s", f.Line, f.Name)
	}
	return b.String()
}

func newRuntimeError(message string, frames []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, Frames: frames}
}

// CompileError is returned when the compiler reports one or more errors and
// produces no function for Interpret to run.
type CompileError struct {
	Errors []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Errors, "\n")
}
