package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize_IndentDedent(t *testing.T) {
	// GIVEN a two-level block
	src := "def f():\n    if x:\n        pass\n    return 1\n"

	// WHEN tokenized
	toks, err := Tokenize(src)

	// THEN INDENT and DEDENT bracket each suite
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{
		NAME, NAME, OP, OP, OP, NEWLINE,
		INDENT, NAME, NAME, OP, NEWLINE,
		INDENT, NAME, NEWLINE,
		DEDENT, NAME, INT, NEWLINE,
		DEDENT, EOF,
	}, kinds(toks))
}

func TestTokenize_BlankAndCommentLinesIgnored(t *testing.T) {
	toks, err := Tokenize("x = 1\n\n# comment\n   \ny = 2")
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{NAME, OP, INT, NEWLINE, NAME, OP, INT, NEWLINE, EOF}, kinds(toks))
}

func TestTokenize_NewlinesInsideBracketsAreJoined(t *testing.T) {
	toks, err := Tokenize("f(1,\n  2)\n")
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{NAME, OP, INT, OP, INT, OP, NEWLINE, EOF}, kinds(toks))
}

func TestTokenize_Positions(t *testing.T) {
	toks, err := Tokenize("a\n  \n    b")
	require.NoError(t, err)
	assert.Equal(t, Pos{Line: 1, Col: 0}, toks[0].Pos)
	// INDENT then b on line 3
	assert.Equal(t, NAME, toks[3].Kind)
	assert.Equal(t, Pos{Line: 3, Col: 4}, toks[3].Pos)
}

func TestTokenize_Strings(t *testing.T) {
	tests := []struct {
		src  string
		kind TokenKind
		want string
	}{
		{`'hi'`, STRING, "hi"},
		{`"a\nb"`, STRING, "a\nb"},
		{`r"a\nb"`, STRING, `a\nb`},
		{`'''multi
line'''`, STRING, "multi\nline"},
		{`f"x={x}"`, FSTRING, "x={x}"},
		{`"\x41\u00e9"`, STRING, "Aé"},
	}
	for _, tt := range tests {
		toks, err := Tokenize(tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.kind, toks[0].Kind, tt.src)
		assert.Equal(t, tt.want, toks[0].Value, tt.src)
	}
}

func TestTokenize_Numbers(t *testing.T) {
	toks, err := Tokenize("1 2.5 0x1F 1_000 3e2 .5")
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{INT, FLOAT, INT, INT, FLOAT, FLOAT, NEWLINE, EOF}, kinds(toks))
	assert.Equal(t, "1000", toks[3].Value)
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		col  int
		msg  string
	}{
		{"unterminated string", "x = 'abc\n", 1, 5, "unterminated string literal (detected at line 1)"},
		{"bad dedent", "if x:\n    a\n  b\n", 3, 3, "unindent does not match any outer indentation level"},
		{"unclosed paren", "f(1,\n", 1, 2, "'(' was never closed"},
		{"unmatched close", "x)\n", 1, 2, "unmatched ')'"},
		{"invalid character", "x = $\n", 1, 5, "invalid character '$' (U+0024)"},
		{"leading zeros", "x = 007\n", 1, 5, "leading zeros in decimal integer literals are not permitted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.src)
			var se *Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.line, se.Line)
			assert.Equal(t, tt.col, se.Col)
			assert.Equal(t, tt.msg, se.Msg)
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("Ping"))
	assert.True(t, IsIdentifier("_x1"))
	assert.False(t, IsIdentifier("1x"))
	assert.False(t, IsIdentifier("class"))
	assert.False(t, IsIdentifier(""))
	assert.False(t, IsIdentifier("a-b"))
}
