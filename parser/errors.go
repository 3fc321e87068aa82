package parser

import (
	"fmt"

	"github.com/forge-lang/forge/token"
)

// ErrorKind classifies a parse failure.
type ErrorKind int

const (
	UnexpectedToken ErrorKind = iota
	MissingDelimiter
	InvalidExprStart
)

func (k ErrorKind) String() string {
	switch k {
	case UnexpectedToken:
		return "unexpected token"
	case MissingDelimiter:
		return "missing delimiter"
	case InvalidExprStart:
		return "invalid expression start"
	default:
		return "parse error"
	}
}

// Error is raised on the first malformed construct; the parser does not
// attempt error recovery.
type Error struct {
	Kind ErrorKind
	Span token.Span
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span, e.Msg)
}

func newError(kind ErrorKind, span token.Span, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Span: span, Msg: fmt.Sprintf(format, args...)}
}
