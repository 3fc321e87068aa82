package parser

import (
	"strings"

	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/token"
)

// precedence gives the binding power of each binary operator; higher binds
// tighter. Operators absent from this table are not binary infix operators.
var precedence = map[token.Kind]int{
	token.Or:      1,
	token.And:     2,
	token.Eq:      3,
	token.NotEq:   3,
	token.Lt:      4,
	token.Gt:      4,
	token.LtEq:    4,
	token.GtEq:    4,
	token.Plus:    5,
	token.Minus:   5,
	token.Star:    6,
	token.Slash:   6,
	token.Percent: 6,
	token.Pipe:    7, // |> binds tighter than comparisons but parses specially
}

// parseExpr implements precedence-climbing: it parses a unary/primary term,
// then repeatedly folds in infix operators whose precedence is at least
// minPrec.
func (p *Parser) parseExpr(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.cur().Kind
		prec, ok := precedence[op]
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.advance()
		if op == token.Pipe {
			call, err := p.parseExpr(prec + 1)
			if err != nil {
				return nil, err
			}
			left = &ast.PipeExpr{Span: opTok.Pos, Value: left, Call: call}
			continue
		}
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Span: opTok.Pos, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.Minus, token.Not:
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Span: t.Pos, Op: t.Kind, X: x}, nil
	case token.Ellipsis:
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.SpreadExpr{Span: t.Pos, X: x}, nil
	case token.Await, token.Hold:
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.AwaitExpr{Span: t.Pos, X: x}, nil
	case token.Must:
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.MustExpr{Span: t.Pos, X: x}, nil
	case token.Freeze:
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.FreezeExpr{Span: t.Pos, X: x}, nil
	case token.Ask:
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.AskExpr{Span: t.Pos, Prompt: x}, nil
	default:
		return p.parsePostfix()
	}
}

// parsePostfix handles the left-to-right chains that follow a primary term:
// call, field access, method call, indexing, and the `?` propagation
// operator.
func (p *Parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case token.Dot:
			p.advance()
			name, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			if p.at(token.LParen) {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				x = &ast.MethodCallExpr{Span: name.Pos, Recv: x, Method: name.Text, Args: args}
				continue
			}
			x = &ast.FieldExpr{Span: name.Pos, X: x, Field: name.Text}
		case token.LParen:
			start := p.cur().Pos
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &ast.CallExpr{Span: start, Callee: x, Args: args}
		case token.LBracket:
			start := p.advance().Pos
			idx, err := p.parseExpr(1)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBracket); err != nil {
				return nil, err
			}
			x = &ast.IndexExpr{Span: start, X: x, Index: idx}
		case token.Question:
			t := p.advance()
			x = &ast.TryExpr{Span: t.Pos, X: x}
		case token.Where:
			where, err := p.parseWhereClause(x)
			if err != nil {
				return nil, err
			}
			x = where
		case token.LBrace:
			id, ok := x.(*ast.Ident)
			if !ok || !p.looksLikeStructInit() {
				return x, nil
			}
			init, err := p.parseStructInit(id)
			if err != nil {
				return nil, err
			}
			x = init
		default:
			return x, nil
		}
	}
}

// looksLikeStructInit reports whether the `{` at the current position opens
// a struct-literal body (`Ident: value` or `"key": value` pairs) rather than
// an unrelated block that happens to follow a bare identifier (as in
// `if ready { ... }`); an empty `{}` is never treated as a struct literal
// here so that an empty if/while/loop body is never mistaken for one.
func (p *Parser) looksLikeStructInit() bool {
	save := p.pos
	defer func() { p.pos = save }()
	p.advance() // `{`
	p.skipNewlines()
	return (p.at(token.Ident) || p.at(token.String)) && p.peekAt(1).Kind == token.Colon
}

func (p *Parser) parseStructInit(id *ast.Ident) (ast.Expr, error) {
	p.advance() // `{`
	var entries []ast.ObjectEntry
	p.skipNewlines()
	for !p.at(token.RBrace) {
		var key ast.Expr
		switch {
		case p.at(token.Ident):
			kt := p.advance()
			key = &ast.StringLit{Span: kt.Pos, Value: kt.Text}
		case p.at(token.String):
			kt := p.advance()
			key = &ast.StringLit{Span: kt.Pos, Value: kt.Text}
		default:
			return nil, newError(UnexpectedToken, p.cur().Pos, "expected field name, got %s", p.cur().Kind)
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ast.ObjectEntry{Key: key, Value: val})
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.StructInitExpr{Span: id.Span, Type: id.Name, Entries: entries}, nil
}

// parseWhereClause parses the `where x -> pred` tail of `source where x -> pred`,
// given the already-parsed source expression.
func (p *Parser) parseWhereClause(source ast.Expr) (ast.Expr, error) {
	start := p.advance().Pos // `where`
	varName, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if !p.at(token.Arrow) && !p.at(token.FatArrow) {
		return nil, newError(UnexpectedToken, p.cur().Pos, "expected -> after where binding, got %s", p.cur().Kind)
	}
	p.advance()
	pred, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return &ast.WhereExpr{Span: start, Source: source, Var: varName.Text, Pred: pred}, nil
}

func (p *Parser) parseArgs() ([]ast.Expr, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var args []ast.Expr
	p.skipNewlines()
	for !p.at(token.RParen) {
		a, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Int:
		p.advance()
		_, i, _, err := parseNumberText(t.Text)
		if err != nil {
			return nil, newError(InvalidExprStart, t.Pos, "malformed integer literal %q", t.Text)
		}
		return &ast.IntLit{Span: t.Pos, Value: i}, nil
	case token.Float:
		p.advance()
		_, _, f, err := parseNumberText(t.Text)
		if err != nil {
			return nil, newError(InvalidExprStart, t.Pos, "malformed float literal %q", t.Text)
		}
		return &ast.FloatLit{Span: t.Pos, Value: f}, nil
	case token.Bool:
		p.advance()
		return &ast.BoolLit{Span: t.Pos, Value: t.Text == "true"}, nil
	case token.Null:
		p.advance()
		return &ast.NullLit{Span: t.Pos}, nil
	case token.String:
		p.advance()
		return p.parseStringLit(t)
	case token.RawString:
		p.advance()
		return &ast.StringLit{Span: t.Pos, Value: t.Text}, nil
	case token.Ident:
		p.advance()
		return &ast.Ident{Span: t.Pos, Name: t.Text}, nil
	case token.Ok, token.Err, token.Some, token.None:
		p.advance()
		name := t.Kind.String()
		if p.at(token.LParen) {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &ast.CallExpr{Span: t.Pos, Callee: &ast.Ident{Span: t.Pos, Name: name}, Args: args}, nil
		}
		return &ast.Ident{Span: t.Pos, Name: name}, nil
	case token.LBracket:
		return p.parseArrayLit()
	case token.LParen:
		return p.parseParenOrLambda()
	case token.LBrace:
		return p.parseBraceExpr()
	case token.Match:
		return p.parseMatchExpr()
	case token.When:
		return p.parseWhenExpr()
	case token.Fn, token.Define:
		p.advance()
		params, err := p.parseParams()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.LambdaExpr{Span: t.Pos, Params: params, Body: body}, nil
	case token.Async:
		return p.parseAsyncLambda()
	default:
		return nil, newError(InvalidExprStart, t.Pos, "unexpected token %s %q in expression", t.Kind, t.Text)
	}
}

// parseStringLit splits a lexed String token's text into interpolation
// fragments by tracking brace depth. The lexer has already resolved escapes,
// so an InterpString's literal segments never themselves contain the
// delimiter braces; a `{...}` fragment's contents are re-lexed and
// re-parsed as a standalone expression. Braces nested inside a fragment
// (e.g. an object literal argument) are tracked by depth, which is accurate
// for balanced braces but can misparse a fragment containing a string
// literal that itself contains a brace character.
func (p *Parser) parseStringLit(t token.Token) (ast.Expr, error) {
	text := t.Text
	if !strings.ContainsRune(text, '{') {
		return &ast.StringLit{Span: t.Pos, Value: text}, nil
	}

	var literals []string
	var fragments []ast.Expr
	var lit strings.Builder
	i := 0
	for i < len(text) {
		ch := text[i]
		if ch != '{' {
			lit.WriteByte(ch)
			i++
			continue
		}
		depth := 1
		j := i + 1
		for j < len(text) && depth > 0 {
			switch text[j] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth > 0 {
				j++
			}
		}
		if depth != 0 {
			return nil, newError(UnexpectedToken, t.Pos, "unbalanced interpolation braces in string literal")
		}
		fragSrc := text[i+1 : j]
		expr, err := ParseExpr(fragSrc)
		if err != nil {
			return nil, err
		}
		literals = append(literals, lit.String())
		lit.Reset()
		fragments = append(fragments, expr)
		i = j + 1
	}
	literals = append(literals, lit.String())
	return &ast.InterpString{Span: t.Pos, Literals: literals, Fragments: fragments}, nil
}

func (p *Parser) parseArrayLit() (ast.Expr, error) {
	start := p.advance().Pos
	var elems []ast.Expr
	p.skipNewlines()
	for !p.at(token.RBracket) {
		e, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RBracket); err != nil {
		return nil, err
	}
	return &ast.ArrayLit{Span: start, Elements: elems}, nil
}

// parseParenOrLambda resolves the first documented lookahead exception: a
// `(` can open either a parenthesized expression or a lambda's parameter
// list. We try the parameter-list grammar first and backtrack to a plain
// parenthesized expression if it doesn't resolve to `) ->`.
func (p *Parser) parseParenOrLambda() (ast.Expr, error) {
	start := p.pos
	startTok := p.cur()
	if params, ok := p.tryParseLambdaParams(); ok {
		body, err := p.parseLambdaBody()
		if err != nil {
			return nil, err
		}
		return &ast.LambdaExpr{Span: startTok.Pos, Params: params, Body: body}, nil
	}
	p.pos = start

	p.advance() // `(`
	e, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return e, nil
}

// tryParseLambdaParams attempts to parse `(ident (: type)? (= default)?, ...)
// ->` starting at the current `(`. It reports ok=false and leaves p.pos
// unspecified (the caller resets it) if the token sequence cannot be a
// lambda parameter list.
func (p *Parser) tryParseLambdaParams() (params []ast.Param, ok bool) {
	if !p.at(token.LParen) {
		return nil, false
	}
	p.advance()
	p.skipNewlines()
	for !p.at(token.RParen) {
		if !p.at(token.Ident) {
			return nil, false
		}
		name := p.advance()
		param := ast.Param{Name: name.Text}
		if p.at(token.Colon) {
			p.advance()
			if !p.at(token.Ident) {
				return nil, false
			}
			param.Type = p.advance().Text
		}
		if p.at(token.Assign) {
			p.advance()
			def, err := p.parseExpr(1)
			if err != nil {
				return nil, false
			}
			param.Default = def
		}
		params = append(params, param)
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
			continue
		}
		break
	}
	if !p.at(token.RParen) {
		return nil, false
	}
	p.advance()
	if !p.at(token.Arrow) && !p.at(token.FatArrow) {
		return nil, false
	}
	p.advance()
	return params, true
}

func (p *Parser) parseLambdaBody() ([]ast.Stmt, error) {
	if p.at(token.LBrace) {
		return p.parseBlock()
	}
	start := p.cur().Pos
	e, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	return []ast.Stmt{&ast.ReturnStmt{Span: start, Value: e}}, nil
}

// parseAsyncLambda handles `async (x) -> { ... }` in expression position.
func (p *Parser) parseAsyncLambda() (ast.Expr, error) {
	p.advance() // async
	e, err := p.parseParenOrLambda()
	if err != nil {
		return nil, err
	}
	if lam, ok := e.(*ast.LambdaExpr); ok {
		return lam, nil
	}
	return e, nil
}

// parseBraceExpr resolves `{` in expression position: an empty `{}` or a
// `key: value` pair ahead is an object literal, otherwise it is a
// statement block used as an expression.
func (p *Parser) parseBraceExpr() (ast.Expr, error) {
	start := p.cur().Pos
	save := p.pos
	p.advance() // `{`
	p.skipNewlines()
	if p.at(token.RBrace) {
		p.advance()
		return &ast.ObjectLit{Span: start, Entries: nil}, nil
	}
	looksLikeEntry := (p.at(token.Ident) || p.at(token.String)) && p.peekAt(1).Kind == token.Colon
	p.pos = save
	if looksLikeEntry {
		return p.parseObjectLit()
	}
	stmts, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.BlockExpr{Span: start, Stmts: stmts}, nil
}

func (p *Parser) parseObjectLit() (ast.Expr, error) {
	start := p.advance().Pos // `{`
	var entries []ast.ObjectEntry
	p.skipNewlines()
	for !p.at(token.RBrace) {
		var key ast.Expr
		switch {
		case p.at(token.Ident):
			kt := p.advance()
			key = &ast.StringLit{Span: kt.Pos, Value: kt.Text}
		case p.at(token.String):
			kt := p.advance()
			key = &ast.StringLit{Span: kt.Pos, Value: kt.Text}
		case p.at(token.LBracket):
			p.advance()
			k, err := p.parseExpr(1)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBracket); err != nil {
				return nil, err
			}
			key = k
		default:
			return nil, newError(UnexpectedToken, p.cur().Pos, "expected object key, got %s", p.cur().Kind)
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ast.ObjectEntry{Key: key, Value: val})
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.ObjectLit{Span: start, Entries: entries}, nil
}

// parseWhenExpr parses `when subject { op rhs -> body, ..., else -> body }`.
func (p *Parser) parseWhenExpr() (ast.Expr, error) {
	start := p.advance().Pos
	subject, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var arms []ast.WhenArm
	p.skipNewlines()
	for !p.at(token.RBrace) {
		var arm ast.WhenArm
		if p.at(token.Else) || p.at(token.Otherwise) || p.at(token.Nah) {
			p.advance()
			arm.Else = true
		} else {
			op := p.advance().Kind
			rhs, err := p.parseExpr(1)
			if err != nil {
				return nil, err
			}
			arm.Op = op
			arm.Rhs = rhs
		}
		if !p.at(token.Arrow) && !p.at(token.FatArrow) {
			return nil, newError(UnexpectedToken, p.cur().Pos, "expected -> or => in when arm, got %s", p.cur().Kind)
		}
		p.advance()
		body, err := p.parseWhenMatchBody()
		if err != nil {
			return nil, err
		}
		arm.Body = body
		arms = append(arms, arm)
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.WhenExpr{Span: start, Subject: subject, Arms: arms}, nil
}

// parseWhenMatchBody parses the value-producing body of a when/match arm,
// which is either a brace block used as an expression or a bare expression.
func (p *Parser) parseWhenMatchBody() (ast.Expr, error) {
	if p.at(token.LBrace) {
		start := p.cur().Pos
		stmts, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.BlockExpr{Span: start, Stmts: stmts}, nil
	}
	return p.parseExpr(1)
}

func (p *Parser) parseMatchExpr() (ast.Expr, error) {
	start := p.advance().Pos
	subject, err := p.parseExpr(1)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var arms []ast.MatchArm
	p.skipNewlines()
	for !p.at(token.RBrace) {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if !p.at(token.FatArrow) && !p.at(token.Arrow) {
			return nil, newError(UnexpectedToken, p.cur().Pos, "expected => in match arm, got %s", p.cur().Kind)
		}
		p.advance()
		body, err := p.parseWhenMatchBody()
		if err != nil {
			return nil, err
		}
		arms = append(arms, ast.MatchArm{Pattern: pat, Body: body})
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &ast.MatchExpr{Span: start, Subject: subject, Arms: arms}, nil
}

