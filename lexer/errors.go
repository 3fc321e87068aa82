package lexer

import (
	"fmt"

	"github.com/forge-lang/forge/token"
)

// ErrorKind classifies why the lexer refused to continue.
type ErrorKind int

const (
	UnterminatedString ErrorKind = iota
	UnterminatedRawString
	UnknownEscape
	MalformedNumber
	NewlineInString
	UnexpectedChar
)

func (k ErrorKind) String() string {
	switch k {
	case UnterminatedString:
		return "unterminated string"
	case UnterminatedRawString:
		return "unterminated raw string"
	case UnknownEscape:
		return "unknown escape sequence"
	case MalformedNumber:
		return "malformed numeric literal"
	case NewlineInString:
		return "newline in single-quoted string"
	case UnexpectedChar:
		return "unexpected character"
	default:
		return "lex error"
	}
}

// Error is raised for the first lexical defect encountered; the lexer does
// not attempt to recover and report more than one.
type Error struct {
	Kind ErrorKind
	Span token.Span
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span, e.Msg)
}

func newError(kind ErrorKind, span token.Span, msg string) *Error {
	return &Error{Kind: kind, Span: span, Msg: msg}
}
