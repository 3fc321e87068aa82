// Package lexer turns Forge source text into a stream of positioned tokens.
//
// The lexer never backtracks and never mutates its input: it is a single
// forward pass over the rune buffer that classifies the character at the
// current position and emits zero or one tokens before advancing. Errors are
// fatal and positioned — the first lexical defect stops the pass.
package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/forge-lang/forge/token"
)

// Lexer holds the single-pass scanning state: the source buffer and the
// current position, line and column.
type Lexer struct {
	src    string
	pos    int // byte offset of ch
	rdPos  int // byte offset of next rune
	ch     rune
	line   int
	column int
}

// New returns a Lexer ready to scan src.
func New(src string) *Lexer {
	l := &Lexer{src: src, line: 1, column: 0}
	l.advance()
	return l
}

// Lex scans the whole source and returns its tokens terminated by an EOF
// token, or the first lexical Error encountered.
func Lex(src string) ([]token.Token, error) {
	l := New(src)
	var toks []token.Token
	for {
		t, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.Kind == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) advance() {
	if l.rdPos >= len(l.src) {
		l.pos = len(l.src)
		l.ch = 0
		return
	}
	r, w := utf8.DecodeRuneInString(l.src[l.rdPos:])
	l.pos = l.rdPos
	l.rdPos += w
	l.ch = r
	l.column++
}

func (l *Lexer) peek() rune {
	if l.rdPos >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.rdPos:])
	return r
}

func (l *Lexer) peekAt(offset int) rune {
	pos := l.rdPos
	var r rune
	for i := 0; i <= offset; i++ {
		if pos >= len(l.src) {
			return 0
		}
		var w int
		r, w = utf8.DecodeRuneInString(l.src[pos:])
		pos += w
	}
	return r
}

func (l *Lexer) here() token.Position {
	return token.Position{Line: l.line, Column: l.column, Offset: l.pos}
}

func (l *Lexer) spanFrom(start token.Position) token.Position {
	start.Length = l.pos - start.Offset
	return start
}

// Next scans and returns the next token.
func (l *Lexer) Next() (token.Token, error) {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.advance()
			continue
		case l.ch == '\n':
			start := l.here()
			l.advance()
			l.line++
			l.column = 1
			return token.Token{Kind: token.Newline, Text: "\n", Pos: l.spanFrom(start)}, nil
		case l.ch == '/' && l.peek() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.advance()
			}
			continue
		}
		break
	}

	start := l.here()

	if l.ch == 0 {
		return token.Token{Kind: token.EOF, Pos: l.spanFrom(start)}, nil
	}

	switch {
	case isDigit(l.ch):
		return l.lexNumber(start)
	case l.ch == '"':
		return l.lexString(start)
	case isIdentStart(l.ch):
		return l.lexIdent(start)
	default:
		return l.lexOperator(start)
	}
}

func isDigit(r rune) bool      { return r >= '0' && r <= '9' }
func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentCont(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// lexNumber consumes an integer or floating literal. Underscores are
// permitted as digit separators between digits and are stripped from the
// resulting text; a leading or trailing underscore is a malformed literal. A
// '.' begins a fractional part only when immediately followed by a digit, so
// that `x.method()` still lexes as field access on an identifier.
func (l *Lexer) lexNumber(start token.Position) (token.Token, error) {
	var sb strings.Builder
	isFloat := false

	consumeDigits := func() error {
		lastWasDigit := false
		for isDigit(l.ch) || l.ch == '_' {
			if l.ch == '_' {
				if !lastWasDigit {
					return newError(MalformedNumber, l.spanFrom(start), "numeric separator cannot lead or trail digits")
				}
				l.advance()
				lastWasDigit = false
				continue
			}
			sb.WriteRune(l.ch)
			lastWasDigit = true
			l.advance()
		}
		if !lastWasDigit {
			return newError(MalformedNumber, l.spanFrom(start), "numeric separator cannot lead or trail digits")
		}
		return nil
	}

	if err := consumeDigits(); err != nil {
		return token.Token{}, err
	}
	if l.ch == '.' && isDigit(l.peek()) {
		isFloat = true
		sb.WriteRune('.')
		l.advance()
		if err := consumeDigits(); err != nil {
			return token.Token{}, err
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		if isDigit(l.peek()) || ((l.peek() == '+' || l.peek() == '-') && isDigit(l.peekAt(1))) {
			isFloat = true
			sb.WriteRune(l.ch)
			l.advance()
			if l.ch == '+' || l.ch == '-' {
				sb.WriteRune(l.ch)
				l.advance()
			}
			if err := consumeDigits(); err != nil {
				return token.Token{}, err
			}
		}
	}

	kind := token.Int
	if isFloat {
		kind = token.Float
	}
	return token.Token{Kind: kind, Text: sb.String(), Pos: l.spanFrom(start)}, nil
}

// lexString handles both the single-quoted interpolating string and the
// triple-quoted raw string, distinguished by whether two more '"' follow the
// opening quote.
func (l *Lexer) lexString(start token.Position) (token.Token, error) {
	l.advance() // consume opening quote
	if l.ch == '"' && l.peek() == '"' {
		l.advance()
		l.advance()
		return l.lexRawString(start)
	}

	var sb strings.Builder
	for {
		switch l.ch {
		case 0:
			return token.Token{}, newError(UnterminatedString, l.spanFrom(start), "unterminated string literal")
		case '\n':
			return token.Token{}, newError(NewlineInString, l.spanFrom(start), "newline in single-quoted string")
		case '"':
			l.advance()
			return token.Token{Kind: token.String, Text: sb.String(), Pos: l.spanFrom(start)}, nil
		case '\\':
			l.advance()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '{':
				sb.WriteByte('{')
			case '}':
				sb.WriteByte('}')
			default:
				return token.Token{}, newError(UnknownEscape, l.spanFrom(start), "unknown escape sequence \\"+string(l.ch))
			}
			l.advance()
		case '{', '}':
			// preserved literally; the parser/interpreter resolve
			// interpolation fragments later.
			sb.WriteRune(l.ch)
			l.advance()
		default:
			sb.WriteRune(l.ch)
			l.advance()
		}
	}
}

func (l *Lexer) lexRawString(start token.Position) (token.Token, error) {
	var sb strings.Builder
	for {
		if l.ch == 0 {
			return token.Token{}, newError(UnterminatedRawString, l.spanFrom(start), "unterminated raw string literal")
		}
		if l.ch == '"' && l.peek() == '"' && l.peekAt(1) == '"' {
			l.advance()
			l.advance()
			l.advance()
			return token.Token{Kind: token.RawString, Text: sb.String(), Pos: l.spanFrom(start)}, nil
		}
		if l.ch == '\n' {
			l.line++
			l.column = 0
		}
		sb.WriteRune(l.ch)
		l.advance()
	}
}

func (l *Lexer) lexIdent(start token.Position) (token.Token, error) {
	var sb strings.Builder
	for isIdentCont(l.ch) {
		sb.WriteRune(l.ch)
		l.advance()
	}
	text := sb.String()
	if kind, ok := token.Lookup(text); ok {
		if kind == token.True || kind == token.False {
			return token.Token{Kind: token.Bool, Text: text, Pos: l.spanFrom(start)}, nil
		}
		return token.Token{Kind: kind, Text: text, Pos: l.spanFrom(start)}, nil
	}
	return token.Token{Kind: token.Ident, Text: text, Pos: l.spanFrom(start)}, nil
}

// opEntry pairs an operator's text with its Kind; multiCharOps lists the
// multi-character operators in longest-match order, and singleCharOps holds
// the single-character fallbacks.
type opEntry struct {
	text string
	kind token.Kind
}

var multiCharOps = []opEntry{
	{"...", token.Ellipsis},
	{"==", token.Eq},
	{"!=", token.NotEq},
	{"<=", token.LtEq},
	{">=", token.GtEq},
	{"+=", token.PlusEq},
	{"-=", token.MinusEq},
	{"*=", token.StarEq},
	{"/=", token.SlashEq},
	{"&&", token.And},
	{"||", token.Or},
	{"|>", token.Pipe},
	{">>", token.Shr},
	{"->", token.Arrow},
	{"=>", token.FatArrow},
}

var singleCharOps = map[rune]token.Kind{
	'+': token.Plus, '-': token.Minus, '*': token.Star, '/': token.Slash, '%': token.Percent,
	'=': token.Assign, '<': token.Lt, '>': token.Gt, '!': token.Not,
	'?': token.Question, '@': token.At, '.': token.Dot, ',': token.Comma, ':': token.Colon,
	'(': token.LParen, ')': token.RParen, '{': token.LBrace, '}': token.RBrace,
	'[': token.LBracket, ']': token.RBracket,
}

func (l *Lexer) lexOperator(start token.Position) (token.Token, error) {
	rest := l.src[l.pos:]
	for _, op := range multiCharOps {
		if strings.HasPrefix(rest, op.text) {
			for range op.text {
				l.advance()
			}
			return token.Token{Kind: op.kind, Text: op.text, Pos: l.spanFrom(start)}, nil
		}
	}
	if kind, ok := singleCharOps[l.ch]; ok {
		text := string(l.ch)
		l.advance()
		return token.Token{Kind: kind, Text: text, Pos: l.spanFrom(start)}, nil
	}
	ch := l.ch
	l.advance()
	return token.Token{}, newError(UnexpectedChar, l.spanFrom(start), "unexpected character "+string(ch))
}
