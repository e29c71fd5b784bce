package syntax

import "fmt"

// Pos is a source position. Line is 1-based, Col is the 0-based rune offset
// within the line. Module.ByteCol converts Col to a byte offset.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// TokenKind classifies a lexical token.
type TokenKind int

const (
	EOF TokenKind = iota
	NEWLINE
	INDENT
	DEDENT
	NAME
	INT
	FLOAT
	STRING
	FSTRING
	OP
)

var tokenNames = [...]string{
	EOF:     "EOF",
	NEWLINE: "NEWLINE",
	INDENT:  "INDENT",
	DEDENT:  "DEDENT",
	NAME:    "NAME",
	INT:     "INT",
	FLOAT:   "FLOAT",
	STRING:  "STRING",
	FSTRING: "FSTRING",
	OP:      "OP",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is one lexical token. For STRING and FSTRING Value holds the decoded
// body without quotes; for FSTRING BodyPos is the position of the first body
// rune so embedded expressions can be positioned.
type Token struct {
	Kind    TokenKind
	Value   string
	Pos     Pos
	BodyPos Pos
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%s", t.Kind, t.Value, t.Pos)
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// IsKeyword reports whether name is a reserved word.
func IsKeyword(name string) bool {
	return keywords[name]
}

// IsIdentifier reports whether name is a valid non-keyword identifier.
func IsIdentifier(name string) bool {
	if name == "" || keywords[name] {
		return false
	}
	for i, r := range name {
		if !isIdentStart(r) && (i == 0 || !isIdentPart(r)) {
			return false
		}
	}
	return true
}
