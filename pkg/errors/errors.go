package errors

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// EngineError is the interface implemented by all diagnostics the engine reports.
type EngineError interface {
	error
	Pos() Position
	Kind() string // "Lexical", "Syntax", "TypeError", "Internal", ...
	// Message returns the specific error message without position info.
	Message() string
	Unwrap() error
}

// --- Concrete Error Types ---

// LexicalError is a malformed token: unterminated literal, bad escape,
// invalid numeric literal.
type LexicalError struct {
	Position
	Msg   string
	Cause error
}

func (e *LexicalError) Error() string {
	return fmt.Sprintf("Lexical Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *LexicalError) Pos() Position   { return e.Position }
func (e *LexicalError) Kind() string    { return "Lexical" }
func (e *LexicalError) Message() string { return e.Msg }
func (e *LexicalError) Unwrap() error   { return e.Cause }
func (e *LexicalError) CausedBy(cause error) *LexicalError {
	e.Cause = cause
	return e
}

// SyntaxError is a grammar violation or an early error.
type SyntaxError struct {
	Position
	Msg   string
	Cause error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Syntax Error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
func (e *SyntaxError) Pos() Position   { return e.Position }
func (e *SyntaxError) Kind() string    { return "Syntax" }
func (e *SyntaxError) Message() string { return e.Msg }
func (e *SyntaxError) Unwrap() error   { return e.Cause }
func (e *SyntaxError) CausedBy(cause error) *SyntaxError {
	e.Cause = cause
	return e
}

// RuntimeError is an exception that escaped the outermost frame.
// Name holds the constructor name of the thrown error object
// ("TypeError", "RangeError", ...) and is empty for non-error values.
type RuntimeError struct {
	Position
	Name  string
	Msg   string
	Cause error
}

func (e *RuntimeError) Error() string {
	name := e.Name
	if name == "" {
		name = "Uncaught"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", name, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s: %s", name, e.Msg)
}
func (e *RuntimeError) Pos() Position { return e.Position }
func (e *RuntimeError) Kind() string {
	if e.Name == "" {
		return "Throw"
	}
	return e.Name
}
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }
func (e *RuntimeError) CausedBy(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// InternalError is an engine bug: a broken compiler invariant or a VM
// panic. It is never catchable by script code.
type InternalError struct {
	Position
	Msg   string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("Internal Error: %s", e.Msg)
}
func (e *InternalError) Pos() Position   { return e.Position }
func (e *InternalError) Kind() string    { return "Internal" }
func (e *InternalError) Message() string { return e.Msg }
func (e *InternalError) Unwrap() error   { return e.Cause }
func (e *InternalError) CausedBy(cause error) *InternalError {
	e.Cause = cause
	return e
}

// IsEarly reports whether err aborts a script before execution.
func IsEarly(err EngineError) bool {
	switch err.(type) {
	case *LexicalError, *SyntaxError:
		return true
	}
	return false
}

// --- Error Reporting ---

// DisplayErrors prints errors to stderr with the offending source line
// and a position marker.
func DisplayErrors(errs []EngineError) {
	FprintErrors(os.Stderr, errs)
}

// FprintErrors writes errors in the DisplayErrors format to w.
func FprintErrors(w io.Writer, errs []EngineError) {
	for _, err := range errs {
		pos := err.Pos()
		if pos.Source == nil || !pos.IsValid() {
			fmt.Fprintf(w, "%s\n", err.Error())
			continue
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", pos.Source.DisplayPath(), pos.Line, pos.Column, err.Kind(), err.Message())
		line := pos.Source.Line(pos.Line)
		if line == "" {
			continue
		}
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(line, "\t", " "))
		col := pos.Column - 1
		if col < 0 {
			col = 0
		}
		marker := strings.Repeat(" ", col) + "^"
		if span := pos.EndPos - pos.StartPos; span > 1 && span < 80 {
			marker += strings.Repeat("~", span-1)
		}
		fmt.Fprintf(w, "  %s\n\n", marker)
	}
}
