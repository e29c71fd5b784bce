package syntax

import (
	"strconv"
	"strings"
	"unicode"
)

// operators lists every operator, longest first so that matching is greedy.
var operators = []string{
	"**=", "//=", ">>=", "<<=",
	"->", "**", "//", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=",
	"&=", "|=", "^=", "@=", ":=", "<<", ">>",
	"+", "-", "*", "/", "%", "<", ">", "=", "(", ")", "[", "]", "{", "}",
	",", ":", ".", ";", "@", "&", "|", "^", "~",
}

var closers = map[string]string{")": "(", "]": "[", "}": "{"}

const maxParens = 200

type lexer struct {
	src    []rune
	off    int
	line   int
	col    int
	indent []int
	parens []Token
	toks   []Token
	atBOL  bool
	base   int // synthetic open brackets of an embedded expression
}

// Tokenize splits src into tokens, synthesizing NEWLINE, INDENT and DEDENT
// from line structure. The last token is always EOF.
func Tokenize(src string) ([]Token, error) {
	lx := &lexer{
		src:    []rune(strings.ReplaceAll(src, "\r\n", "\n")),
		line:   1,
		indent: []int{0},
		atBOL:  true,
	}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.toks, nil
}

// tokenizeEmbedded lexes an f-string replacement field whose first rune sits
// at start. Newlines inside it are insignificant, as inside brackets.
func tokenizeEmbedded(src string, start Pos) ([]Token, error) {
	lx := &lexer{
		src:    []rune(src),
		line:   start.Line,
		col:    start.Col,
		indent: []int{0},
		base:   1,
	}
	lx.parens = []Token{{Kind: OP, Value: "{", Pos: start}}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.toks, nil
}

func (lx *lexer) pos() Pos { return Pos{Line: lx.line, Col: lx.col} }

func (lx *lexer) peek(n int) rune {
	if lx.off+n < len(lx.src) {
		return lx.src[lx.off+n]
	}
	return 0
}

func (lx *lexer) advance() rune {
	r := lx.src[lx.off]
	lx.off++
	if r == '\n' {
		lx.line++
		lx.col = 0
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) emit(kind TokenKind, value string, p Pos) {
	lx.toks = append(lx.toks, Token{Kind: kind, Value: value, Pos: p})
}

func (lx *lexer) lastKind() TokenKind {
	if len(lx.toks) == 0 {
		return NEWLINE
	}
	return lx.toks[len(lx.toks)-1].Kind
}

func (lx *lexer) run() error {
	for {
		if lx.atBOL && len(lx.parens) == 0 {
			done, err := lx.lineStart()
			if err != nil {
				return err
			}
			if done {
				break
			}
		}
		if lx.off >= len(lx.src) {
			break
		}
		r := lx.peek(0)
		p := lx.pos()
		switch {
		case r == '\n':
			lx.advance()
			if len(lx.parens) == 0 {
				lx.emit(NEWLINE, "", p)
				lx.atBOL = true
			}
		case r == ' ' || r == '\t' || r == '\f':
			lx.advance()
		case r == '#':
			for lx.off < len(lx.src) && lx.peek(0) != '\n' {
				lx.advance()
			}
		case r == '\\':
			if lx.peek(1) != '\n' {
				return errorAt(p, "unexpected character after line continuation character")
			}
			lx.advance()
			lx.advance()
		case isIdentStart(r):
			if err := lx.name(); err != nil {
				return err
			}
		case isDigit(r) || (r == '.' && isDigit(lx.peek(1))):
			if err := lx.number(); err != nil {
				return err
			}
		case r == '"' || r == '\'':
			if err := lx.str(p, false, false); err != nil {
				return err
			}
		default:
			if err := lx.operator(p); err != nil {
				return err
			}
		}
	}
	p := lx.pos()
	if len(lx.parens) > lx.base {
		open := lx.parens[len(lx.parens)-1]
		return errorAt(open.Pos, "'%s' was never closed", open.Value)
	}
	if k := lx.lastKind(); k != NEWLINE && k != DEDENT && k != INDENT {
		lx.emit(NEWLINE, "", p)
	}
	for len(lx.indent) > 1 {
		lx.indent = lx.indent[:len(lx.indent)-1]
		lx.emit(DEDENT, "", p)
	}
	lx.emit(EOF, "", p)
	return nil
}

// lineStart measures indentation at the beginning of a logical line, skipping
// blank and comment-only lines. It returns true at end of input.
func (lx *lexer) lineStart() (bool, error) {
	for {
		width := 0
	measure:
		for lx.off < len(lx.src) {
			switch lx.peek(0) {
			case ' ':
				width++
			case '\t':
				width = (width/8 + 1) * 8
			case '\f':
				width = 0
			default:
				break measure
			}
			lx.advance()
		}
		if lx.off >= len(lx.src) {
			return true, nil
		}
		switch lx.peek(0) {
		case '\n':
			lx.advance()
			continue
		case '#':
			for lx.off < len(lx.src) && lx.peek(0) != '\n' {
				lx.advance()
			}
			continue
		}
		lx.atBOL = false
		p := lx.pos()
		top := lx.indent[len(lx.indent)-1]
		switch {
		case width > top:
			lx.indent = append(lx.indent, width)
			lx.emit(INDENT, "", p)
		case width < top:
			for width < lx.indent[len(lx.indent)-1] {
				lx.indent = lx.indent[:len(lx.indent)-1]
				lx.emit(DEDENT, "", p)
			}
			if width != lx.indent[len(lx.indent)-1] {
				return false, errorAt(p, "unindent does not match any outer indentation level")
			}
		}
		return false, nil
	}
}

func (lx *lexer) name() error {
	p := lx.pos()
	start := lx.off
	for lx.off < len(lx.src) && isIdentPart(lx.peek(0)) {
		lx.advance()
	}
	word := string(lx.src[start:lx.off])
	if q := lx.peek(0); q == '"' || q == '\'' {
		switch strings.ToLower(word) {
		case "f":
			return lx.str(p, true, false)
		case "r", "b", "u", "br", "rb":
			return lx.str(p, false, strings.ContainsAny(strings.ToLower(word), "r"))
		case "rf", "fr":
			return lx.str(p, true, true)
		}
	}
	lx.emit(NAME, word, p)
	return nil
}

func (lx *lexer) number() error {
	p := lx.pos()
	start := lx.off
	isFloat := false
	if lx.peek(0) == '0' && strings.ContainsRune("xXoObB", lx.peek(1)) {
		lx.advance()
		lx.advance()
		for lx.off < len(lx.src) && (isHexDigit(lx.peek(0)) || lx.peek(0) == '_') {
			lx.advance()
		}
	} else {
		for lx.off < len(lx.src) && (isDigit(lx.peek(0)) || lx.peek(0) == '_') {
			lx.advance()
		}
		if lx.peek(0) == '.' {
			isFloat = true
			lx.advance()
			for lx.off < len(lx.src) && (isDigit(lx.peek(0)) || lx.peek(0) == '_') {
				lx.advance()
			}
		}
		if e := lx.peek(0); e == 'e' || e == 'E' {
			next := lx.peek(1)
			if isDigit(next) || ((next == '+' || next == '-') && isDigit(lx.peek(2))) {
				isFloat = true
				lx.advance()
				if next == '+' || next == '-' {
					lx.advance()
				}
				for lx.off < len(lx.src) && isDigit(lx.peek(0)) {
					lx.advance()
				}
			}
		}
	}
	if lx.off < len(lx.src) && isIdentStart(lx.peek(0)) {
		return errorAt(p, "invalid decimal literal")
	}
	text := strings.ReplaceAll(string(lx.src[start:lx.off]), "_", "")
	if isFloat {
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return errorAt(p, "invalid float literal")
		}
		lx.emit(FLOAT, text, p)
		return nil
	}
	base := 10
	if len(text) > 1 && text[0] == '0' && !isDigit(rune(text[1])) {
		base = 0
	} else if len(text) > 1 && text[0] == '0' && strings.Trim(text, "0") != "" {
		return errorAt(p, "leading zeros in decimal integer literals are not permitted")
	}
	if _, err := strconv.ParseInt(text, base, 64); err != nil {
		return errorAt(p, "integer literal too large or malformed")
	}
	lx.emit(INT, text, p)
	return nil
}

// str lexes a string literal starting at the opening quote. p is the position
// of the literal including any prefix.
func (lx *lexer) str(p Pos, fmtString, raw bool) error {
	quote := lx.peek(0)
	triple := lx.peek(1) == quote && lx.peek(2) == quote
	n := 1
	if triple {
		n = 3
	}
	for i := 0; i < n; i++ {
		lx.advance()
	}
	bodyPos := lx.pos()
	var sb strings.Builder
	for {
		if lx.off >= len(lx.src) {
			if triple {
				return errorAt(p, "unterminated triple-quoted string literal (detected at line %d)", lx.line)
			}
			return errorAt(p, "unterminated string literal (detected at line %d)", lx.line)
		}
		r := lx.peek(0)
		if r == quote && (!triple || (lx.peek(1) == quote && lx.peek(2) == quote)) {
			for i := 0; i < n; i++ {
				lx.advance()
			}
			break
		}
		if r == '\n' && !triple {
			return errorAt(p, "unterminated string literal (detected at line %d)", lx.line)
		}
		if r == '\\' && !raw {
			lx.advance()
			if lx.off >= len(lx.src) {
				continue
			}
			if err := lx.escape(&sb); err != nil {
				return err
			}
			continue
		}
		if r == '\\' && raw && lx.off+1 < len(lx.src) {
			sb.WriteRune(lx.advance())
		}
		sb.WriteRune(lx.advance())
	}
	kind := STRING
	if fmtString {
		kind = FSTRING
	}
	lx.toks = append(lx.toks, Token{Kind: kind, Value: sb.String(), Pos: p, BodyPos: bodyPos})
	return nil
}

func (lx *lexer) escape(sb *strings.Builder) error {
	p := lx.pos()
	r := lx.advance()
	switch r {
	case '\n':
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '0':
		sb.WriteByte(0)
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '\\', '\'', '"':
		sb.WriteRune(r)
	case 'x', 'u', 'U':
		width := map[rune]int{'x': 2, 'u': 4, 'U': 8}[r]
		if lx.off+width > len(lx.src) {
			return errorAt(p, "truncated \\%cXX escape", r)
		}
		v, err := strconv.ParseUint(string(lx.src[lx.off:lx.off+width]), 16, 32)
		if err != nil {
			return errorAt(p, "truncated \\%cXX escape", r)
		}
		for i := 0; i < width; i++ {
			lx.advance()
		}
		sb.WriteRune(rune(v))
	default:
		sb.WriteByte('\\')
		sb.WriteRune(r)
	}
	return nil
}

func (lx *lexer) operator(p Pos) error {
	for _, op := range operators {
		if lx.hasPrefix(op) {
			for range op {
				lx.advance()
			}
			switch op {
			case "(", "[", "{":
				if len(lx.parens) >= maxParens {
					return errorAt(p, "too many nested parentheses")
				}
				lx.parens = append(lx.parens, Token{Kind: OP, Value: op, Pos: p})
			case ")", "]", "}":
				if len(lx.parens) <= lx.base {
					return errorAt(p, "unmatched '%s'", op)
				}
				open := lx.parens[len(lx.parens)-1]
				if open.Value != closers[op] {
					return errorAt(p, "closing parenthesis '%s' does not match opening parenthesis '%s'", op, open.Value)
				}
				lx.parens = lx.parens[:len(lx.parens)-1]
			}
			lx.emit(OP, op, p)
			return nil
		}
	}
	r := lx.peek(0)
	return errorAt(p, "invalid character '%c' (U+%04X)", r, r)
}

func (lx *lexer) hasPrefix(op string) bool {
	i := 0
	for _, r := range op {
		if lx.peek(i) != r {
			return false
		}
		i++
	}
	return true
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// intBase returns the strconv base for an integer literal already accepted by
// the lexer.
func intBase(text string) int {
	if len(text) > 1 && text[0] == '0' && !isDigit(rune(text[1])) {
		return 0
	}
	return 10
}
