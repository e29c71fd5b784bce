package syntax

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// bailout carries a parse error up through the recursive descent.
type bailout struct{ err error }

type parser struct {
	toks  []Token
	i     int
	depth int
}

// Parse parses a complete source file.
func Parse(src string) (mod *Module, err error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	defer p.recover(&err)
	mod = &Module{lines: strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")}
	for p.tok().Kind != EOF {
		if p.tok().Kind == NEWLINE {
			p.next()
			continue
		}
		mod.Body = append(mod.Body, p.statement()...)
	}
	return mod, nil
}

// ParseExpr parses a single expression.
func ParseExpr(src string) (e Expr, err error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	defer p.recover(&err)
	e = p.exprList()
	for p.tok().Kind == NEWLINE {
		p.next()
	}
	if p.tok().Kind != EOF {
		p.fail("invalid syntax")
	}
	return e, nil
}

func (p *parser) recover(err *error) {
	if r := recover(); r != nil {
		b, ok := r.(bailout)
		if !ok {
			panic(r)
		}
		*err = b.err
	}
}

func (p *parser) tok() Token { return p.toks[p.i] }

func (p *parser) peekTok(n int) Token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() Token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) isOp(v string) bool {
	t := p.tok()
	return t.Kind == OP && t.Value == v
}

func (p *parser) isKw(v string) bool {
	t := p.tok()
	return t.Kind == NAME && t.Value == v
}

func (p *parser) failAt(pos Pos, format string, args ...any) {
	panic(bailout{errorAt(pos, format, args...)})
}

func (p *parser) fail(format string, args ...any) {
	t := p.tok()
	msg := fmt.Sprintf(format, args...)
	if t.Kind == EOF && msg == "invalid syntax" {
		msg = "unexpected EOF while parsing"
	}
	p.failAt(t.Pos, "%s", msg)
}

func (p *parser) expectOp(v, msg string) Token {
	if !p.isOp(v) {
		p.fail("%s", msg)
	}
	return p.next()
}

func (p *parser) expectKw(v, msg string) Token {
	if !p.isKw(v) {
		p.fail("%s", msg)
	}
	return p.next()
}

func (p *parser) ident() Token {
	t := p.tok()
	if t.Kind != NAME || IsKeyword(t.Value) {
		p.fail("invalid syntax")
	}
	return p.next()
}

func (p *parser) enter() {
	p.depth++
	if p.depth > MaxNesting {
		panic(bailout{ErrTooDeep})
	}
}

func (p *parser) leave() { p.depth-- }

// === Statements ===

func (p *parser) statement() []Stmt {
	p.enter()
	defer p.leave()
	t := p.tok()
	if t.Kind == INDENT {
		p.fail("unexpected indent")
	}
	if t.Kind == OP && t.Value == "@" {
		p.fail("decorators are not supported")
	}
	if t.Kind == NAME {
		switch t.Value {
		case "def":
			return []Stmt{p.funcDef(t.Pos, false)}
		case "async":
			p.next()
			if !p.isKw("def") {
				p.fail("invalid syntax")
			}
			return []Stmt{p.funcDef(t.Pos, true)}
		case "class":
			return []Stmt{p.classDef()}
		case "if":
			return []Stmt{p.ifStmt()}
		case "while":
			return []Stmt{p.whileStmt()}
		case "for":
			return []Stmt{p.forStmt()}
		case "try":
			return []Stmt{p.tryStmt()}
		case "with":
			p.fail("'with' statements are not supported")
		}
	}
	return p.simpleStmts()
}

func (p *parser) simpleStmts() []Stmt {
	var out []Stmt
	for {
		out = append(out, p.smallStmt())
		if !p.isOp(";") {
			break
		}
		p.next()
		if p.tok().Kind == NEWLINE {
			break
		}
	}
	if p.tok().Kind != NEWLINE {
		p.fail("invalid syntax")
	}
	p.next()
	return out
}

// block parses ":" followed by an indented suite or same-line statements.
func (p *parser) block(what string, header Pos) []Stmt {
	p.expectOp(":", "expected ':'")
	if p.tok().Kind != NEWLINE {
		return p.simpleStmts()
	}
	p.next()
	if p.tok().Kind != INDENT {
		p.fail("expected an indented block after %s on line %d", what, header.Line)
	}
	p.next()
	var body []Stmt
	for p.tok().Kind != DEDENT && p.tok().Kind != EOF {
		body = append(body, p.statement()...)
	}
	if p.tok().Kind == DEDENT {
		p.next()
	}
	return body
}

func (p *parser) funcDef(pos Pos, async bool) Stmt {
	defTok := p.expectKw("def", "invalid syntax")
	name := p.ident()
	p.expectOp("(", "expected '('")
	params := p.params(")")
	p.expectOp(")", "expected ')'")
	if p.isOp("->") {
		p.next()
		p.expr()
	}
	body := p.block("function definition", defTok.Pos)
	return &FunctionDef{Pos: pos, Name: name.Value, Params: params, Body: body, Async: async}
}

// params parses a parameter list up to (not including) the closing token.
func (p *parser) params(closer string) []Param {
	var out []Param
	seen := map[string]bool{}
	sawDefault := false
	for !p.isOp(closer) {
		t := p.tok()
		param := Param{Pos: t.Pos}
		switch {
		case p.isOp("**"):
			p.next()
			param.DoubleStar = true
		case p.isOp("*"):
			p.next()
			if p.isOp(",") {
				// keyword-only marker
				p.next()
				continue
			}
			param.Star = true
		case p.isOp("/"):
			p.next()
			if !p.isOp(closer) {
				p.expectOp(",", "invalid syntax")
			}
			continue
		}
		param.Name = p.ident().Value
		if seen[param.Name] {
			p.failAt(param.Pos, "duplicate argument '%s' in function definition", param.Name)
		}
		seen[param.Name] = true
		if closer == ")" && p.isOp(":") {
			p.next()
			p.expr()
		}
		if p.isOp("=") {
			if param.Star || param.DoubleStar {
				p.fail("var-positional argument cannot have default value")
			}
			p.next()
			param.Default = p.expr()
			sawDefault = true
		} else if sawDefault && !param.Star && !param.DoubleStar {
			p.failAt(param.Pos, "parameter without a default follows parameter with a default")
		}
		out = append(out, param)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	return out
}

func (p *parser) classDef() Stmt {
	kw := p.next()
	name := p.ident()
	var bases []Expr
	if p.isOp("(") {
		p.next()
		for !p.isOp(")") {
			bases = append(bases, p.expr())
			if !p.isOp(",") {
				break
			}
			p.next()
		}
		p.expectOp(")", "expected ')'")
	}
	body := p.block("class definition", kw.Pos)
	return &ClassDef{Pos: kw.Pos, Name: name.Value, Bases: bases, Body: body}
}

func (p *parser) ifStmt() Stmt {
	kw := p.next()
	test := p.expr()
	body := p.block(fmt.Sprintf("'%s' statement", kw.Value), kw.Pos)
	n := &If{Pos: kw.Pos, Test: test, Body: body}
	switch {
	case p.isKw("elif"):
		n.OrElse = []Stmt{p.ifStmt()}
	case p.isKw("else"):
		e := p.next()
		n.OrElse = p.block("'else' statement", e.Pos)
	}
	return n
}

func (p *parser) whileStmt() Stmt {
	kw := p.next()
	test := p.expr()
	body := p.block("'while' statement", kw.Pos)
	n := &While{Pos: kw.Pos, Test: test, Body: body}
	if p.isKw("else") {
		e := p.next()
		n.OrElse = p.block("'else' statement", e.Pos)
	}
	return n
}

func (p *parser) forStmt() Stmt {
	kw := p.next()
	target := p.targetList()
	p.expectKw("in", "expected 'in'")
	iter := p.exprList()
	body := p.block("'for' statement", kw.Pos)
	n := &For{Pos: kw.Pos, Target: target, Iter: iter, Body: body}
	if p.isKw("else") {
		e := p.next()
		n.OrElse = p.block("'else' statement", e.Pos)
	}
	return n
}

func (p *parser) tryStmt() Stmt {
	kw := p.next()
	n := &Try{Pos: kw.Pos, Body: p.block("'try' statement", kw.Pos)}
	for p.isKw("except") {
		ek := p.next()
		h := ExceptHandler{Pos: ek.Pos}
		if !p.isOp(":") {
			if len(n.Handlers) > 0 && n.Handlers[len(n.Handlers)-1].Type == nil {
				p.failAt(n.Handlers[len(n.Handlers)-1].Pos, "default 'except:' must be last")
			}
			h.Type = p.expr()
			if p.isKw("as") {
				p.next()
				h.Name = p.ident().Value
			}
		} else if len(n.Handlers) > 0 && n.Handlers[len(n.Handlers)-1].Type == nil {
			p.failAt(n.Handlers[len(n.Handlers)-1].Pos, "default 'except:' must be last")
		}
		h.Body = p.block("'except' statement", ek.Pos)
		n.Handlers = append(n.Handlers, h)
	}
	if p.isKw("else") {
		if len(n.Handlers) == 0 {
			p.fail("expected 'except' or 'finally' block")
		}
		e := p.next()
		n.OrElse = p.block("'else' statement", e.Pos)
	}
	if p.isKw("finally") {
		f := p.next()
		n.FinalBody = p.block("'finally' statement", f.Pos)
	}
	if len(n.Handlers) == 0 && n.FinalBody == nil {
		p.fail("expected 'except' or 'finally' block")
	}
	return n
}

func (p *parser) smallStmt() Stmt {
	t := p.tok()
	if t.Kind == NAME {
		switch t.Value {
		case "pass":
			p.next()
			return &Pass{Pos: t.Pos}
		case "break":
			p.next()
			return &Break{Pos: t.Pos}
		case "continue":
			p.next()
			return &Continue{Pos: t.Pos}
		case "return":
			p.next()
			n := &Return{Pos: t.Pos}
			if p.startsExpr() {
				n.Value = p.exprList()
			}
			return n
		case "raise":
			p.next()
			n := &Raise{Pos: t.Pos}
			if p.startsExpr() {
				n.Exc = p.expr()
				if p.isKw("from") {
					p.next()
					p.expr()
				}
			}
			return n
		case "global", "nonlocal":
			p.next()
			names := []string{p.ident().Value}
			for p.isOp(",") {
				p.next()
				names = append(names, p.ident().Value)
			}
			if t.Value == "global" {
				return &Global{Pos: t.Pos, Names: names}
			}
			return &Nonlocal{Pos: t.Pos, Names: names}
		case "import":
			p.next()
			n := &Import{Pos: t.Pos}
			for {
				a := Alias{Name: p.dottedName()}
				if p.isKw("as") {
					p.next()
					a.AsName = p.ident().Value
				}
				n.Names = append(n.Names, a)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			return n
		case "from":
			p.next()
			n := &ImportFrom{Pos: t.Pos, Module: p.dottedName()}
			p.expectKw("import", "invalid syntax")
			if p.isOp("*") {
				p.next()
				n.Names = []Alias{{Name: "*"}}
				return n
			}
			paren := p.isOp("(")
			if paren {
				p.next()
			}
			for {
				a := Alias{Name: p.ident().Value}
				if p.isKw("as") {
					p.next()
					a.AsName = p.ident().Value
				}
				n.Names = append(n.Names, a)
				if !p.isOp(",") {
					break
				}
				p.next()
				if paren && p.isOp(")") {
					break
				}
			}
			if paren {
				p.expectOp(")", "expected ')'")
			}
			return n
		case "del":
			p.next()
			n := &Delete{Pos: t.Pos}
			for {
				target := p.bitOr()
				p.checkTarget(target, "delete")
				n.Targets = append(n.Targets, target)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			return n
		case "assert":
			p.next()
			n := &Assert{Pos: t.Pos, Test: p.expr()}
			if p.isOp(",") {
				p.next()
				n.Msg = p.expr()
			}
			return n
		}
	}

	e := p.exprList()
	switch {
	case p.isOp("="):
		targets := []Expr{e}
		var value Expr
		for p.isOp("=") {
			p.next()
			value = p.exprList()
			targets = append(targets, value)
		}
		targets = targets[:len(targets)-1]
		for _, target := range targets {
			p.checkTarget(target, "assign to")
		}
		return &Assign{Pos: t.Pos, Targets: targets, Value: value}
	case p.tok().Kind == OP && isAugOp(p.tok().Value):
		op := p.next()
		switch e.(type) {
		case *Name, *Attribute, *Subscript:
		default:
			p.failAt(e.Position(), "'%s' is an illegal expression for augmented assignment", describeExpr(e))
		}
		return &AugAssign{Pos: t.Pos, Target: e, Op: strings.TrimSuffix(op.Value, "="), Value: p.exprList()}
	case p.isOp(":"):
		switch e.(type) {
		case *Name, *Attribute, *Subscript:
		default:
			p.failAt(e.Position(), "illegal target for annotation")
		}
		p.next()
		p.expr()
		if p.isOp("=") {
			p.next()
			return &Assign{Pos: t.Pos, Targets: []Expr{e}, Value: p.exprList()}
		}
		return &Pass{Pos: t.Pos}
	}
	return &ExprStmt{Pos: t.Pos, Value: e}
}

func isAugOp(v string) bool {
	switch v {
	case "+=", "-=", "*=", "/=", "//=", "%=", "**=", "&=", "|=", "^=", ">>=", "<<=", "@=":
		return true
	}
	return false
}

func (p *parser) dottedName() string {
	parts := []string{p.ident().Value}
	for p.isOp(".") {
		p.next()
		parts = append(parts, p.ident().Value)
	}
	return strings.Join(parts, ".")
}

func (p *parser) checkTarget(e Expr, verb string) {
	switch n := e.(type) {
	case *Name, *Attribute, *Subscript:
	case *Tuple:
		for _, elt := range n.Elts {
			p.checkTarget(elt, verb)
		}
	case *List:
		for _, elt := range n.Elts {
			p.checkTarget(elt, verb)
		}
	default:
		p.failAt(e.Position(), "cannot %s %s", verb, describeExpr(e))
	}
}

func describeExpr(e Expr) string {
	switch n := e.(type) {
	case *Constant:
		return "literal"
	case *FString:
		return "f-string expression"
	case *Call:
		return "function call"
	case *Await:
		return "await expression"
	case *Lambda:
		return "lambda"
	case *IfExp:
		return "conditional expression"
	case *Compare:
		return "comparison"
	case *BoolOp, *BinOp, *UnaryOp:
		return "expression"
	case *ListComp:
		return "list comprehension"
	case *Dict:
		return "dict literal"
	case *Tuple:
		return "tuple"
	case *List:
		return "list"
	case *Name:
		return n.ID
	}
	return "expression"
}

// targetList parses for-loop and comprehension targets, which must stop
// before the "in" keyword.
func (p *parser) targetList() Expr {
	first := p.bitOr()
	if !p.isOp(",") {
		p.checkTarget(first, "assign to")
		return first
	}
	elts := []Expr{first}
	for p.isOp(",") {
		p.next()
		if p.isKw("in") {
			break
		}
		elts = append(elts, p.bitOr())
	}
	t := &Tuple{Pos: first.Position(), Elts: elts}
	p.checkTarget(t, "assign to")
	return t
}

// === Expressions ===

func (p *parser) startsExpr() bool {
	t := p.tok()
	switch t.Kind {
	case INT, FLOAT, STRING, FSTRING:
		return true
	case NAME:
		if !IsKeyword(t.Value) {
			return true
		}
		switch t.Value {
		case "None", "True", "False", "not", "lambda", "await":
			return true
		}
	case OP:
		switch t.Value {
		case "(", "[", "{", "-", "+", "~":
			return true
		}
	}
	return false
}

// exprList parses "e1, e2, ..." producing a Tuple when a comma is present.
func (p *parser) exprList() Expr {
	first := p.expr()
	if !p.isOp(",") {
		return first
	}
	elts := []Expr{first}
	for p.isOp(",") {
		p.next()
		if !p.startsExpr() {
			break
		}
		elts = append(elts, p.expr())
	}
	return &Tuple{Pos: first.Position(), Elts: elts}
}

func (p *parser) expr() Expr {
	p.enter()
	defer p.leave()
	if p.isKw("lambda") {
		kw := p.next()
		params := p.params(":")
		p.expectOp(":", "expected ':'")
		return &Lambda{Pos: kw.Pos, Params: params, Body: p.expr()}
	}
	body := p.orTest()
	if !p.isKw("if") {
		return body
	}
	p.next()
	test := p.orTest()
	p.expectKw("else", "expected 'else' after 'if' expression")
	return &IfExp{Pos: body.Position(), Test: test, Body: body, OrElse: p.expr()}
}

func (p *parser) orTest() Expr {
	return p.boolChain("or", p.andTest)
}

func (p *parser) andTest() Expr {
	return p.boolChain("and", p.notTest)
}

func (p *parser) boolChain(op string, operand func() Expr) Expr {
	first := operand()
	if !p.isKw(op) {
		return first
	}
	values := []Expr{first}
	for p.isKw(op) {
		p.next()
		values = append(values, operand())
	}
	return &BoolOp{Pos: first.Position(), Op: op, Values: values}
}

func (p *parser) notTest() Expr {
	if p.isKw("not") {
		kw := p.next()
		p.enter()
		defer p.leave()
		return &UnaryOp{Pos: kw.Pos, Op: "not", Operand: p.notTest()}
	}
	return p.comparison()
}

func (p *parser) compOp() (string, bool) {
	t := p.tok()
	switch {
	case t.Kind == OP:
		switch t.Value {
		case "<", ">", "==", ">=", "<=", "!=":
			p.next()
			return t.Value, true
		}
	case t.Kind == NAME && t.Value == "in":
		p.next()
		return "in", true
	case t.Kind == NAME && t.Value == "not" && p.peekTok(1).Kind == NAME && p.peekTok(1).Value == "in":
		p.next()
		p.next()
		return "not in", true
	case t.Kind == NAME && t.Value == "is":
		p.next()
		if p.isKw("not") {
			p.next()
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *parser) comparison() Expr {
	left := p.bitOr()
	var (
		ops   []string
		comps []Expr
	)
	for {
		op, ok := p.compOp()
		if !ok {
			break
		}
		ops = append(ops, op)
		comps = append(comps, p.bitOr())
	}
	if len(ops) == 0 {
		return left
	}
	return &Compare{Pos: left.Position(), Left: left, Ops: ops, Comparators: comps}
}

// binaryLevels lists left-associative binary operators from loosest to tightest.
var binaryLevels = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "//", "%", "@"},
}

func (p *parser) bitOr() Expr { return p.binary(0) }

func (p *parser) binary(level int) Expr {
	if level == len(binaryLevels) {
		return p.factor()
	}
	left := p.binary(level + 1)
	for {
		t := p.tok()
		if t.Kind != OP || !contains(binaryLevels[level], t.Value) {
			return left
		}
		p.next()
		right := p.binary(level + 1)
		left = &BinOp{Pos: left.Position(), Op: t.Value, Left: left, Right: right}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (p *parser) factor() Expr {
	t := p.tok()
	if t.Kind == OP && (t.Value == "-" || t.Value == "+" || t.Value == "~") {
		p.next()
		p.enter()
		defer p.leave()
		return &UnaryOp{Pos: t.Pos, Op: t.Value, Operand: p.factor()}
	}
	return p.power()
}

func (p *parser) power() Expr {
	base := p.awaitPrimary()
	if p.isOp("**") {
		p.next()
		return &BinOp{Pos: base.Position(), Op: "**", Left: base, Right: p.factor()}
	}
	return base
}

func (p *parser) awaitPrimary() Expr {
	if p.isKw("await") {
		kw := p.next()
		return &Await{Pos: kw.Pos, Value: p.primary()}
	}
	return p.primary()
}

func (p *parser) primary() Expr {
	e := p.atom()
	start := e.Position()
	for {
		switch {
		case p.isOp("("):
			p.next()
			args, kws := p.callArgs()
			p.expectOp(")", "invalid syntax")
			e = &Call{Pos: start, Func: e, Args: args, Keywords: kws}
		case p.isOp("["):
			p.next()
			idx := p.subscript()
			p.expectOp("]", "invalid syntax")
			e = &Subscript{Pos: start, Value: e, Index: idx}
		case p.isOp("."):
			p.next()
			e = &Attribute{Pos: start, Value: e, Attr: p.ident().Value}
		default:
			return e
		}
	}
}

func (p *parser) callArgs() ([]Expr, []Keyword) {
	var (
		args []Expr
		kws  []Keyword
	)
	for !p.isOp(")") {
		t := p.tok()
		if t.Kind == NAME && !IsKeyword(t.Value) && p.peekTok(1).Kind == OP && p.peekTok(1).Value == "=" {
			p.next()
			p.next()
			for _, k := range kws {
				if k.Name == t.Value {
					p.failAt(t.Pos, "keyword argument repeated: %s", t.Value)
				}
			}
			kws = append(kws, Keyword{Pos: t.Pos, Name: t.Value, Value: p.expr()})
		} else {
			if p.isOp("*") || p.isOp("**") {
				p.fail("argument unpacking is not supported")
			}
			arg := p.expr()
			if len(kws) > 0 {
				p.failAt(arg.Position(), "positional argument follows keyword argument")
			}
			if p.isKw("for") {
				arg = p.comprehension(arg, arg.Position())
			}
			args = append(args, arg)
		}
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	return args, kws
}

func (p *parser) subscript() Expr {
	start := p.tok().Pos
	var lower Expr
	if !p.isOp(":") {
		lower = p.exprList()
		if !p.isOp(":") {
			return lower
		}
	}
	s := &Slice{Pos: start, Lower: lower}
	p.next()
	if !p.isOp(":") && !p.isOp("]") {
		s.Upper = p.expr()
	}
	if p.isOp(":") {
		p.next()
		if !p.isOp("]") {
			s.Step = p.expr()
		}
	}
	return s
}

func (p *parser) comprehension(elt Expr, pos Pos) Expr {
	lc := &ListComp{Pos: pos, Elt: elt}
	for p.isKw("for") {
		p.next()
		g := Comprehension{Target: p.targetList()}
		p.expectKw("in", "expected 'in'")
		g.Iter = p.orTest()
		for p.isKw("if") {
			p.next()
			g.Ifs = append(g.Ifs, p.orTest())
		}
		lc.Generators = append(lc.Generators, g)
	}
	return lc
}

func (p *parser) atom() Expr {
	p.enter()
	defer p.leave()
	t := p.tok()
	switch t.Kind {
	case NAME:
		switch t.Value {
		case "None":
			p.next()
			return &Constant{Pos: t.Pos}
		case "True", "False":
			p.next()
			return &Constant{Pos: t.Pos, Value: t.Value == "True"}
		}
		return &Name{Pos: t.Pos, ID: p.ident().Value}
	case INT:
		p.next()
		v, err := strconv.ParseInt(t.Value, intBase(t.Value), 64)
		if err != nil {
			p.failAt(t.Pos, "invalid integer literal")
		}
		return &Constant{Pos: t.Pos, Value: v}
	case FLOAT:
		p.next()
		v, _ := strconv.ParseFloat(t.Value, 64)
		return &Constant{Pos: t.Pos, Value: v}
	case STRING, FSTRING:
		return p.strings()
	case OP:
		switch t.Value {
		case "(":
			p.next()
			if p.isOp(")") {
				p.next()
				return &Tuple{Pos: t.Pos}
			}
			first := p.expr()
			if p.isKw("for") {
				lc := p.comprehension(first, t.Pos)
				p.expectOp(")", "invalid syntax")
				return lc
			}
			if !p.isOp(",") {
				p.expectOp(")", "invalid syntax")
				return first
			}
			elts := []Expr{first}
			for p.isOp(",") {
				p.next()
				if p.isOp(")") {
					break
				}
				elts = append(elts, p.expr())
			}
			p.expectOp(")", "invalid syntax")
			return &Tuple{Pos: t.Pos, Elts: elts}
		case "[":
			p.next()
			if p.isOp("]") {
				p.next()
				return &List{Pos: t.Pos}
			}
			first := p.expr()
			if p.isKw("for") {
				lc := p.comprehension(first, t.Pos)
				p.expectOp("]", "invalid syntax")
				return lc
			}
			elts := []Expr{first}
			for p.isOp(",") {
				p.next()
				if p.isOp("]") {
					break
				}
				elts = append(elts, p.expr())
			}
			p.expectOp("]", "invalid syntax")
			return &List{Pos: t.Pos, Elts: elts}
		case "{":
			p.next()
			d := &Dict{Pos: t.Pos}
			for !p.isOp("}") {
				k := p.expr()
				if !p.isOp(":") {
					p.fail("set literals are not supported")
				}
				p.next()
				d.Keys = append(d.Keys, k)
				d.Values = append(d.Values, p.expr())
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			p.expectOp("}", "invalid syntax")
			return d
		}
	}
	p.fail("invalid syntax")
	return nil
}

// strings concatenates adjacent string literals. Any f-string among them turns
// the whole run into an FString.
func (p *parser) strings() Expr {
	start := p.tok().Pos
	var (
		parts     []FStringPart
		formatted bool
	)
	for p.tok().Kind == STRING || p.tok().Kind == FSTRING {
		t := p.next()
		if t.Kind == STRING {
			parts = append(parts, FStringPart{Lit: t.Value})
			continue
		}
		formatted = true
		parts = append(parts, p.fstringParts(t)...)
	}
	if !formatted {
		var sb strings.Builder
		for _, part := range parts {
			sb.WriteString(part.Lit)
		}
		return &Constant{Pos: start, Value: sb.String()}
	}
	return &FString{Pos: start, Parts: mergeLiterals(parts)}
}

func mergeLiterals(parts []FStringPart) []FStringPart {
	var out []FStringPart
	for _, part := range parts {
		if part.Expr == nil && len(out) > 0 && out[len(out)-1].Expr == nil {
			out[len(out)-1].Lit += part.Lit
			continue
		}
		out = append(out, part)
	}
	return out
}

// fstringParts splits an f-string body into literal text and replacement
// fields, parsing each field's expression at its source position.
func (p *parser) fstringParts(t Token) []FStringPart {
	body := []rune(t.Value)
	var (
		out []FStringPart
		lit strings.Builder
	)
	posAt := func(idx int) Pos {
		pos := t.BodyPos
		for _, r := range body[:idx] {
			if r == '\n' {
				pos.Line++
				pos.Col = 0
			} else {
				pos.Col++
			}
		}
		return pos
	}
	for i := 0; i < len(body); i++ {
		r := body[i]
		if r == '}' {
			if i+1 < len(body) && body[i+1] == '}' {
				lit.WriteRune('}')
				i++
				continue
			}
			p.failAt(posAt(i), "f-string: single '}' is not allowed")
		}
		if r != '{' {
			lit.WriteRune(r)
			continue
		}
		if i+1 < len(body) && body[i+1] == '{' {
			lit.WriteRune('{')
			i++
			continue
		}
		if lit.Len() > 0 {
			out = append(out, FStringPart{Lit: lit.String()})
			lit.Reset()
		}
		end, exprEnd, conv, spec := scanField(body, i+1)
		if end < 0 {
			p.failAt(posAt(i), "f-string: expecting '}'")
		}
		src := string(body[i+1 : exprEnd])
		if strings.TrimSpace(src) == "" {
			p.failAt(posAt(i), "f-string: valid expression required before '}'")
		}
		out = append(out, FStringPart{Expr: p.embedded(src, posAt(i+1)), Conv: conv, Spec: spec})
		i = end
	}
	if lit.Len() > 0 {
		out = append(out, FStringPart{Lit: lit.String()})
	}
	return out
}

// scanField finds the end of a replacement field starting at body[start]. It
// returns the index of the closing brace, the end of the expression text, the
// conversion and the format spec; end is -1 if the field is unterminated.
func scanField(body []rune, start int) (end, exprEnd int, conv byte, spec string) {
	depth := 0
	var quote rune
	exprEnd = -1
	for i := start; i < len(body); i++ {
		r := body[i]
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case r == '\'' || r == '"':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case (r == ')' || r == ']') && depth > 0:
			depth--
		case r == '}' && depth > 0:
			depth--
		case depth == 0 && r == '!' && i+1 < len(body) && body[i+1] != '=' && exprEnd < 0:
			exprEnd = i
			if i+1 < len(body) {
				conv = byte(body[i+1])
			}
			i++
		case depth == 0 && r == ':' && exprEnd < 0:
			exprEnd = i
			j := i + 1
			for j < len(body) && body[j] != '}' {
				j++
			}
			if j >= len(body) {
				return -1, 0, 0, ""
			}
			return j, exprEnd, conv, string(body[i+1 : j])
		case depth == 0 && r == ':':
			j := i + 1
			for j < len(body) && body[j] != '}' {
				j++
			}
			if j >= len(body) {
				return -1, 0, 0, ""
			}
			return j, exprEnd, conv, string(body[i+1 : j])
		case depth == 0 && r == '}':
			if exprEnd < 0 {
				exprEnd = i
			}
			return i, exprEnd, conv, ""
		}
	}
	return -1, 0, 0, ""
}

func (p *parser) embedded(src string, at Pos) Expr {
	toks, err := tokenizeEmbedded(src, at)
	if err != nil {
		panic(bailout{err})
	}
	sub := &parser{toks: toks, depth: p.depth}
	e := sub.exprList()
	for sub.tok().Kind == NEWLINE {
		sub.next()
	}
	if sub.tok().Kind != EOF {
		sub.fail("f-string: invalid syntax")
	}
	return e
}

// IsTooDeep reports whether err is the nesting-depth failure.
func IsTooDeep(err error) bool {
	return errors.Is(err, ErrTooDeep)
}
