// Package parser implements Forge's recursive-descent statement parser and
// precedence-climbing expression parser, producing an ast.Program.
//
// The parser holds a flat token array and a cursor; it never backtracks
// beyond one token of lookahead except in the two places documented below
// (parseParenOrLambda and the decorator/function sequencing in
// parseDecorated).
package parser

import (
	"strconv"
	"strings"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/lexer"
	"github.com/forge-lang/forge/token"
)

// Parser consumes a token array produced by the lexer and builds an AST.
type Parser struct {
	toks []token.Token
	pos  int
}

// New returns a Parser over an already-lexed token stream.
func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

// Parse lexes and parses src in one call, the common entry point.
func Parse(src string) (*ast.Program, error) {
	toks, err := lexer.Lex(src)
	if err != nil {
		return nil, err
	}
	return New(toks).ParseProgram()
}

// ParseExpr lexes and parses src as a single expression; used to resolve
// string-interpolation fragments, whose text is itself Forge source.
func ParseExpr(src string) (ast.Expr, error) {
	toks, err := lexer.Lex(src)
	if err != nil {
		return nil, err
	}
	p := New(toks)
	e, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) cur() token.Token { return p.toks[p.pos] }

func (p *Parser) peekAt(n int) token.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, newError(UnexpectedToken, p.cur().Pos, "expected %s, got %s %q", k, p.cur().Kind, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *Parser) skipNewlines() {
	for p.at(token.Newline) {
		p.advance()
	}
}

// ParseProgram parses the full token stream into a Program.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	p.skipNewlines()
	for !p.at(token.EOF) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, s)
		p.skipNewlines()
	}
	return prog, nil
}

// parseBlock parses a `{` stmt* `}` block, skipping newlines between
// statements and before the closing brace.
func (p *Parser) parseBlock() ([]ast.Stmt, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	p.skipNewlines()
	for !p.at(token.RBrace) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		p.skipNewlines()
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	p.skipNewlines()
	switch p.cur().Kind {
	case token.Let, token.Set:
		return p.parseLet()
	case token.Change:
		return p.parseAssign()
	case token.Fn, token.Define:
		return p.parseFn(nil, false)
	case token.Async:
		return p.parseAsyncFn()
	case token.At:
		return p.parseDecorated()
	case token.Struct:
		return p.parseStruct()
	case token.Enum:
		return p.parseEnum()
	case token.Interface:
		return p.parseInterface()
	case token.If:
		return p.parseIf()
	case token.For:
		return p.parseFor()
	case token.While:
		return p.parseWhile()
	case token.Loop:
		return p.parseLoop()
	case token.Repeat:
		return p.parseRepeat()
	case token.Break:
		t := p.advance()
		return &ast.BreakStmt{Span: t.Pos}, nil
	case token.Continue:
		t := p.advance()
		return &ast.ContinueStmt{Span: t.Pos}, nil
	case token.Return:
		return p.parseReturn()
	case token.Try:
		return p.parseTry()
	case token.Safe:
		return p.parseSafe()
	case token.Must:
		return p.parseMustStmt()
	case token.Check:
		return p.parseCheck()
	case token.Timeout:
		return p.parseTimeout()
	case token.Retry:
		return p.parseRetry()
	case token.Schedule:
		return p.parseSchedule()
	case token.Watch:
		return p.parseWatch()
	case token.Spawn:
		return p.parseSpawn()
	case token.Import:
		return p.parseImport()
	case token.Say:
		return p.parseOutput(ast.Say)
	case token.Yell:
		return p.parseOutput(ast.Yell)
	case token.Whisper:
		return p.parseOutput(ast.Whisper)
	default:
		return p.parseAssignOrExprStmt()
	}
}

// parseAssignOrExprStmt handles both `ident = value` / `ident += value` and
// bare expression statements, since both start with an expression.
func (p *Parser) parseAssignOrExprStmt() (ast.Stmt, error) {
	start := p.cur().Pos
	e, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	switch p.cur().Kind {
	case token.Assign, token.PlusEq, token.MinusEq, token.StarEq, token.SlashEq:
		op := p.advance().Kind
		val, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		return &ast.AssignStmt{Span: start, Target: e, Op: op, Value: val}, nil
	default:
		return &ast.ExprStmt{Span: start, X: e}, nil
	}
}

func (p *Parser) parseLet() (ast.Stmt, error) {
	start := p.advance().Pos // `let` or `set`
	mutable := false
	if p.at(token.Mut) {
		p.advance()
		mutable = true
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	typeAnn := ""
	if p.at(token.Colon) {
		p.advance()
		t, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		typeAnn = t.Text
	}
	// `set x to v` is the natural-language synonym for `let x = v`.
	if p.at(token.To) {
		p.advance()
	} else if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	val, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return &ast.LetStmt{Span: start, Name: name.Text, Mutable: mutable, Type: typeAnn, Value: val}, nil
}

func (p *Parser) parseAssign() (ast.Stmt, error) {
	start := p.advance().Pos // `change`
	target, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.To); err != nil {
		return nil, err
	}
	val, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return &ast.AssignStmt{Span: start, Target: target, Op: token.Assign, Value: val}, nil
}

func (p *Parser) parseParams() ([]ast.Param, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []ast.Param
	p.skipNewlines()
	for !p.at(token.RParen) {
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		param := ast.Param{Name: name.Text}
		if p.at(token.Colon) {
			p.advance()
			t, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			param.Type = t.Text
		}
		if p.at(token.Assign) {
			p.advance()
			def, err := p.parseExpr(1)
			if err != nil {
				return nil, err
			}
			param.Default = def
		}
		params = append(params, param)
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseFn(decorators []ast.Decorator, async bool) (ast.Stmt, error) {
	start := p.advance().Pos // `fn` or `define`
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FnStmt{Span: start, Name: name.Text, Params: params, Body: body, Decorators: decorators, Async: async}, nil
}

func (p *Parser) parseAsyncFn() (ast.Stmt, error) {
	p.advance() // `async`
	if !p.at(token.Fn) && !p.at(token.Define) {
		return nil, newError(UnexpectedToken, p.cur().Pos, "expected fn after async, got %s", p.cur().Kind)
	}
	return p.parseFn(nil, true)
}

// parseDecorated handles `@name(args) @name2 fn foo(...) {...}`. This is the
// second documented one-token-lookahead exception: after consuming all
// leading decorators we must find fn/define/async next, or the sequence is
// malformed.
func (p *Parser) parseDecorated() (ast.Stmt, error) {
	var decorators []ast.Decorator
	for p.at(token.At) {
		d, err := p.parseDecorator()
		if err != nil {
			return nil, err
		}
		decorators = append(decorators, d)
		p.skipNewlines()
	}
	async := false
	if p.at(token.Async) {
		p.advance()
		async = true
	}
	if !p.at(token.Fn) && !p.at(token.Define) {
		return nil, newError(UnexpectedToken, p.cur().Pos, "decorator must precede a function definition, got %s", p.cur().Kind)
	}
	return p.parseFn(decorators, async)
}

func (p *Parser) parseDecorator() (ast.Decorator, error) {
	start, err := p.expect(token.At)
	if err != nil {
		return ast.Decorator{}, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return ast.Decorator{}, err
	}
	d := ast.Decorator{Span: start.Pos, Name: name.Text, Args: map[string]ast.Expr{}}
	if p.at(token.LParen) {
		p.advance()
		p.skipNewlines()
		for !p.at(token.RParen) {
			argName, err := p.expect(token.Ident)
			if err != nil {
				return ast.Decorator{}, err
			}
			if _, err := p.expect(token.Colon); err != nil {
				return ast.Decorator{}, err
			}
			val, err := p.parseExpr(1)
			if err != nil {
				return ast.Decorator{}, err
			}
			d.Args[argName.Text] = val
			p.skipNewlines()
			if p.at(token.Comma) {
				p.advance()
				p.skipNewlines()
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return ast.Decorator{}, err
		}
	}
	return d, nil
}

func (p *Parser) parseStruct() (ast.Stmt, error) {
	start := p.advance().Pos
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var fields []ast.StructField
	p.skipNewlines()
	for !p.at(token.RBrace) {
		fname, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		ftype := ""
		if p.at(token.Colon) {
			p.advance()
			t, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			ftype = t.Text
		}
		fields = append(fields, ast.StructField{Name: fname.Text, Type: ftype})
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.StructStmt{Span: start, Name: name.Text, Fields: fields}, nil
}

func (p *Parser) parseEnum() (ast.Stmt, error) {
	start := p.advance().Pos
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var variants []ast.EnumVariant
	p.skipNewlines()
	for !p.at(token.RBrace) {
		tag, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		v := ast.EnumVariant{Tag: tag.Text}
		if p.at(token.LParen) {
			p.advance()
			p.skipNewlines()
			for !p.at(token.RParen) {
				t, err := p.expect(token.Ident)
				if err != nil {
					return nil, err
				}
				v.Fields = append(v.Fields, t.Text)
				p.skipNewlines()
				if p.at(token.Comma) {
					p.advance()
					p.skipNewlines()
				}
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
		}
		variants = append(variants, v)
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.EnumStmt{Span: start, Name: name.Text, Variants: variants}, nil
}

func (p *Parser) parseInterface() (ast.Stmt, error) {
	start := p.advance().Pos
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var methods []ast.InterfaceMethod
	p.skipNewlines()
	for !p.at(token.RBrace) {
		mname, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		params, err := p.parseParams()
		if err != nil {
			return nil, err
		}
		var pnames []string
		for _, prm := range params {
			pnames = append(pnames, prm.Name)
		}
		methods = append(methods, ast.InterfaceMethod{Name: mname.Text, Params: pnames})
		p.skipNewlines()
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.InterfaceStmt{Span: start, Name: name.Text, Methods: methods}, nil
}

// elseBranchStarts reports whether the current position (after skipping
// newlines, per §4.2's `skip_newlines` call sites) begins an else branch.
func (p *Parser) elseBranchStarts() bool {
	save := p.pos
	p.skipNewlines()
	ok := p.at(token.Else) || p.at(token.Otherwise) || p.at(token.Nah)
	if !ok {
		p.pos = save
	}
	return ok
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	start := p.advance().Pos
	cond, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &ast.IfStmt{Span: start, Cond: cond, Then: then}
	for p.elseBranchStarts() {
		p.advance() // else/otherwise/nah
		if p.at(token.If) {
			p.advance()
			elifCond, err := p.parseExpr(1)
			if err != nil {
				return nil, err
			}
			elifBody, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			stmt.ElseIfs = append(stmt.ElseIfs, ast.ElseIf{Cond: elifCond, Body: elifBody})
			continue
		}
		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = elseBody
		break
	}
	return stmt, nil
}

func (p *Parser) parseFor() (ast.Stmt, error) {
	start := p.advance().Pos
	if p.at(token.Each) {
		p.advance()
	}
	first, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	key, value := "", first.Text
	if p.at(token.Comma) {
		p.advance()
		second, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		key, value = first.Text, second.Text
	}
	if _, err := p.expect(token.In); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{Span: start, Key: key, Value: value, Iterable: iter, Body: body}, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	start := p.advance().Pos
	cond, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Span: start, Cond: cond, Body: body}, nil
}

func (p *Parser) parseLoop() (ast.Stmt, error) {
	start := p.advance().Pos
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.LoopStmt{Span: start, Body: body}, nil
}

func (p *Parser) parseRepeat() (ast.Stmt, error) {
	start := p.advance().Pos
	count, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Times); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.RepeatStmt{Span: start, Count: count, Body: body}, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	start := p.advance().Pos
	if p.at(token.Newline) || p.at(token.RBrace) || p.at(token.EOF) {
		return &ast.ReturnStmt{Span: start}, nil
	}
	val, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return &ast.ReturnStmt{Span: start, Value: val}, nil
}

func (p *Parser) parseTry() (ast.Stmt, error) {
	start := p.advance().Pos
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Catch); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	catch, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.TryStmt{Span: start, Body: body, CatchName: name.Text, Catch: catch}, nil
}

func (p *Parser) parseSafe() (ast.Stmt, error) {
	start := p.advance().Pos
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.SafeStmt{Span: start, Body: body}, nil
}

func (p *Parser) parseMustStmt() (ast.Stmt, error) {
	start := p.advance().Pos
	val, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return &ast.MustStmt{Span: start, Value: val}, nil
}

func (p *Parser) parseCheck() (ast.Stmt, error) {
	start := p.advance().Pos
	text := p.sourceTextFrom()
	cond, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return &ast.CheckStmt{Span: start, Cond: cond, Text: text()}, nil
}

// sourceTextFrom returns a closure that, when called after parsing an
// expression, reconstructs the original token text spanned — used only for
// the `check` failure message. Reconstructing from tokens rather than the
// raw source keeps the parser source-agnostic.
func (p *Parser) sourceTextFrom() func() string {
	startPos := p.pos
	return func() string {
		var sb strings.Builder
		for i := startPos; i < p.pos; i++ {
			if i > startPos {
				sb.WriteByte(' ')
			}
			sb.WriteString(p.toks[i].Text)
		}
		return sb.String()
	}
}

func (p *Parser) parseTimeout() (ast.Stmt, error) {
	start := p.advance().Pos
	dur, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	if p.at(token.Seconds) {
		p.advance()
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.TimeoutStmt{Span: start, Duration: dur, Body: body}, nil
}

func (p *Parser) parseRetry() (ast.Stmt, error) {
	start := p.advance().Pos
	count, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	if p.at(token.Times) {
		p.advance()
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.RetryStmt{Span: start, Count: count, Body: body}, nil
}

func (p *Parser) parseSchedule() (ast.Stmt, error) {
	start := p.advance().Pos
	if _, err := p.expect(token.Every); err != nil {
		return nil, err
	}
	interval, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ScheduleStmt{Span: start, Interval: interval, Body: body}, nil
}

func (p *Parser) parseWatch() (ast.Stmt, error) {
	start := p.advance().Pos
	cond, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.WatchStmt{Span: start, Cond: cond, Body: body}, nil
}

func (p *Parser) parseSpawn() (ast.Stmt, error) {
	start := p.advance().Pos
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.SpawnStmt{Span: start, Body: body}, nil
}

func (p *Parser) parseImport() (ast.Stmt, error) {
	start := p.advance().Pos
	pathTok, err := p.expect(token.String)
	if err != nil {
		return nil, err
	}
	alias := ""
	if p.at(token.Ident) && p.cur().Text == "as" {
		p.advance()
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		alias = name.Text
	}
	return &ast.ImportStmt{Span: start, Path: pathTok.Text, Alias: alias}, nil
}

func (p *Parser) parseOutput(verb ast.OutputVerb) (ast.Stmt, error) {
	start := p.advance().Pos
	val, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return &ast.OutputStmt{Span: start, Verb: verb, Value: val}, nil
}

// parseNumberText converts lexer-stripped digit text (possibly with a
// fractional/exponent part) into an int64 or, when isFloat, a float64.
func parseNumberText(text string) (isFloat bool, i int64, f float64, err error) {
	if strings.ContainsAny(text, ".eE") {
		f, err = strconv.ParseFloat(text, 64)
		return true, 0, f, err
	}
	i, err = strconv.ParseInt(text, 10, 64)
	return false, i, 0, err
}
