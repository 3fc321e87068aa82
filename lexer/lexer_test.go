package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-lang/forge/lexer"
	"github.com/forge-lang/forge/token"
)

func kinds(t *testing.T, src string) []token.Kind {
	t.Helper()
	toks, err := lexer.Lex(src)
	require.NoError(t, err)
	ks := make([]token.Kind, len(toks))
	for i, tk := range toks {
		ks[i] = tk.Kind
	}
	return ks
}

func TestArithmeticPrecedenceTokens(t *testing.T) {
	ks := kinds(t, "say 2 + 3 * 4")
	assert.Equal(t, []token.Kind{token.Say, token.Int, token.Plus, token.Int, token.Star, token.Int, token.EOF}, ks)
}

func TestNumberUnderscoreSeparators(t *testing.T) {
	toks, err := lexer.Lex("1_000_000")
	require.NoError(t, err)
	assert.Equal(t, "1000000", toks[0].Text)
}

func TestLeadingUnderscoreLexesAsIdentifier(t *testing.T) {
	_, err := lexer.Lex("_100")
	// leading underscore makes this an identifier, not an error; only a
	// digit-adjacent separator is checked.
	require.NoError(t, err)
}

func TestNumberTrailingUnderscoreIsError(t *testing.T) {
	_, err := lexer.Lex("100_")
	require.Error(t, err)
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, lexer.MalformedNumber, lexErr.Kind)
}

func TestDotOnlyStartsFractionWhenFollowedByDigit(t *testing.T) {
	ks := kinds(t, "x.method()")
	assert.Equal(t, []token.Kind{token.Ident, token.Dot, token.Ident, token.LParen, token.RParen, token.EOF}, ks)
}

func TestStringEscapesAndInterpolationBraces(t *testing.T) {
	toks, err := lexer.Lex(`"square is {x}\n"`)
	require.NoError(t, err)
	assert.Equal(t, token.String, toks[0].Kind)
	assert.Equal(t, "square is {x}\n", toks[0].Text)
}

func TestRawStringNoEscapeProcessing(t *testing.T) {
	toks, err := lexer.Lex(`"""line1\nline2"""`)
	require.NoError(t, err)
	require.Equal(t, token.RawString, toks[0].Kind)
	assert.Equal(t, `line1\nline2`, toks[0].Text)
}

func TestUnterminatedStringIsError(t *testing.T) {
	_, err := lexer.Lex(`"unterminated`)
	require.Error(t, err)
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, lexer.UnterminatedString, lexErr.Kind)
}

func TestUnknownEscapeIsError(t *testing.T) {
	_, err := lexer.Lex(`"bad \q escape"`)
	require.Error(t, err)
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, lexer.UnknownEscape, lexErr.Kind)
}

func TestNewlineInStringIsError(t *testing.T) {
	_, err := lexer.Lex("\"line1\nline2\"")
	require.Error(t, err)
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, lexer.NewlineInString, lexErr.Kind)
}

func TestKeywordSynonymsShareAFamilyOfDistinctKinds(t *testing.T) {
	fnKs := kinds(t, "fn")
	defineKs := kinds(t, "define")
	assert.Equal(t, token.Fn, fnKs[0])
	assert.Equal(t, token.Define, defineKs[0])
	assert.NotEqual(t, fnKs[0], defineKs[0])
}

func TestNewlinesAreSignificantTokens(t *testing.T) {
	ks := kinds(t, "let x = 1\nlet y = 2")
	assert.Contains(t, ks, token.Newline)
}

func TestLongestMatchOperators(t *testing.T) {
	ks := kinds(t, "a |> b")
	assert.Equal(t, []token.Kind{token.Ident, token.Pipe, token.Ident, token.EOF}, ks)
}

func TestPositions(t *testing.T) {
	toks, err := lexer.Lex("let x\n= 1")
	require.NoError(t, err)
	require.True(t, len(toks) > 3)
	assert.Equal(t, 1, toks[0].Pos.Line)
	assert.Equal(t, 2, toks[len(toks)-2].Pos.Line)
}
