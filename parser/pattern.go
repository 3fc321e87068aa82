package parser

import (
	"github.com/forge-lang/forge/ast"
	"github.com/forge-lang/forge/token"
)

// parsePattern parses one match-arm pattern: a wildcard `_`, a literal, a
// bare binding name, or a constructor pattern `Tag(pat, pat, ...)` used for
// Result/Option/enum-variant destructuring.
func (p *Parser) parsePattern() (ast.Pattern, error) {
	t := p.cur()
	switch t.Kind {
	case token.Ident:
		if t.Text == "_" {
			p.advance()
			return ast.Pattern{Kind: ast.PatternWildcard, Span: t.Pos}, nil
		}
		p.advance()
		if p.at(token.LParen) {
			nested, err := p.parsePatternArgs()
			if err != nil {
				return ast.Pattern{}, err
			}
			return ast.Pattern{Kind: ast.PatternConstructor, Span: t.Pos, Name: t.Text, Nested: nested}, nil
		}
		return ast.Pattern{Kind: ast.PatternBinding, Span: t.Pos, Name: t.Text}, nil
	case token.Ok, token.Err, token.Some, token.None:
		p.advance()
		name := t.Kind.String()
		if p.at(token.LParen) {
			nested, err := p.parsePatternArgs()
			if err != nil {
				return ast.Pattern{}, err
			}
			return ast.Pattern{Kind: ast.PatternConstructor, Span: t.Pos, Name: name, Nested: nested}, nil
		}
		return ast.Pattern{Kind: ast.PatternConstructor, Span: t.Pos, Name: name}, nil
	case token.Int, token.Float, token.String, token.RawString, token.Bool, token.Null, token.Minus:
		lit, err := p.parseUnary()
		if err != nil {
			return ast.Pattern{}, err
		}
		return ast.Pattern{Kind: ast.PatternLiteral, Span: t.Pos, Literal: lit}, nil
	default:
		return ast.Pattern{}, newError(UnexpectedToken, t.Pos, "expected pattern, got %s %q", t.Kind, t.Text)
	}
}

func (p *Parser) parsePatternArgs() ([]ast.Pattern, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var pats []ast.Pattern
	p.skipNewlines()
	for !p.at(token.RParen) {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		pats = append(pats, pat)
		p.skipNewlines()
		if p.at(token.Comma) {
			p.advance()
			p.skipNewlines()
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return pats, nil
}
