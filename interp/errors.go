package interp

import (
	"fmt"

	"github.com/forge-lang/forge/token"
)

// ErrorKind enumerates the RuntimeError sub-kinds from the error taxonomy.
type ErrorKind int

const (
	UndefinedVariable ErrorKind = iota
	ImmutableReassignment
	TypeMismatch
	DivisionByZero
	IndexOutOfBounds
	UnknownField
	ArityMismatch
	NotCallable
	PatternNoMatch
	BreakOutsideLoop
	ContinueOutsideLoop
	ReturnOutsideFunction
	QuestionMarkInNonResult
	MustOnErr
	CheckFailed
	Timeout
	NativeError
	ImportNotFound
	ImportCycle
)

var errorKindNames = map[ErrorKind]string{
	UndefinedVariable:       "UndefinedVariable",
	ImmutableReassignment:   "ImmutableReassignment",
	TypeMismatch:            "TypeMismatch",
	DivisionByZero:          "DivisionByZero",
	IndexOutOfBounds:        "IndexOutOfBounds",
	UnknownField:            "UnknownField",
	ArityMismatch:           "ArityMismatch",
	NotCallable:             "NotCallable",
	PatternNoMatch:          "PatternNoMatch",
	BreakOutsideLoop:        "BreakOutsideLoop",
	ContinueOutsideLoop:     "ContinueOutsideLoop",
	ReturnOutsideFunction:   "ReturnOutsideFunction",
	QuestionMarkInNonResult: "QuestionMarkInNonResult",
	MustOnErr:               "MustOnErr",
	CheckFailed:             "CheckFailed",
	Timeout:                 "Timeout",
	NativeError:             "NativeError",
	ImportNotFound:          "ImportNotFound",
	ImportCycle:             "ImportCycle",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return "RuntimeError"
}

// RuntimeError is every fatal failure the interpreter can raise. Hint is
// populated for UndefinedVariable and for an unknown object field
// (UnknownField) when a known name lies within edit distance 2, and for
// ImmutableReassignment with a `let mut` suggestion. NotCallable errors
// carry no hint.
type RuntimeError struct {
	Kind ErrorKind
	Span token.Position
	Msg  string
	Hint string
}

func (e *RuntimeError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s) — did you mean %q?", e.Span, e.Msg, e.Kind, e.Hint)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Span, e.Msg, e.Kind)
}

func newRuntimeError(kind ErrorKind, span token.Position, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: kind, Span: span, Msg: fmt.Sprintf(format, args...)}
}

func (e *RuntimeError) withHint(h string) *RuntimeError {
	e.Hint = h
	return e
}
