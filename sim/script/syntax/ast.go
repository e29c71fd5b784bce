package syntax

// Node is any syntax tree node.
type Node interface {
	Position() Pos
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Module is a parsed source file.
type Module struct {
	Body []Stmt

	lines []string
}

func (m *Module) Position() Pos { return Pos{Line: 1} }

// ByteCol returns the UTF-8 byte offset of p within its source line.
func (m *Module) ByteCol(p Pos) int {
	if p.Line < 1 || p.Line > len(m.lines) {
		return p.Col
	}
	n := 0
	for i := range m.lines[p.Line-1] {
		if n == p.Col {
			return i
		}
		n++
	}
	return len(m.lines[p.Line-1]) + p.Col - n
}

// === Expressions ===

type (
	// Name is a bare identifier.
	Name struct {
		Pos Pos
		ID  string
	}

	// Constant is a literal: nil (None), bool, int64, float64 or string.
	Constant struct {
		Pos   Pos
		Value any
	}

	// FString is an f-string; Parts alternate freely between literal text and
	// embedded expressions.
	FString struct {
		Pos   Pos
		Parts []FStringPart
	}

	List struct {
		Pos  Pos
		Elts []Expr
	}

	Tuple struct {
		Pos  Pos
		Elts []Expr
	}

	Dict struct {
		Pos    Pos
		Keys   []Expr
		Values []Expr
	}

	// ListComp is [Elt for ... in ... if ...].
	ListComp struct {
		Pos        Pos
		Elt        Expr
		Generators []Comprehension
	}

	Attribute struct {
		Pos   Pos
		Value Expr
		Attr  string
	}

	Subscript struct {
		Pos   Pos
		Value Expr
		Index Expr
	}

	// Slice only appears as a Subscript index.
	Slice struct {
		Pos                Pos
		Lower, Upper, Step Expr
	}

	// Call positions itself at the start of its callee.
	Call struct {
		Pos      Pos
		Func     Expr
		Args     []Expr
		Keywords []Keyword
	}

	Await struct {
		Pos   Pos
		Value Expr
	}

	Lambda struct {
		Pos    Pos
		Params []Param
		Body   Expr
	}

	IfExp struct {
		Pos                Pos
		Test, Body, OrElse Expr
	}

	BinOp struct {
		Pos         Pos
		Op          string
		Left, Right Expr
	}

	// UnaryOp covers "-", "+", "~" and "not".
	UnaryOp struct {
		Pos     Pos
		Op      string
		Operand Expr
	}

	// BoolOp is a chain of "and" or of "or".
	BoolOp struct {
		Pos    Pos
		Op     string
		Values []Expr
	}

	// Compare is a comparison chain; Ops include "in", "not in", "is", "is not".
	Compare struct {
		Pos         Pos
		Left        Expr
		Ops         []string
		Comparators []Expr
	}
)

// FStringPart is literal text or an embedded expression with an optional
// conversion ('r', 's' or 0) and format spec.
type FStringPart struct {
	Lit  string
	Expr Expr
	Conv byte
	Spec string
}

// Comprehension is one "for Target in Iter if ..." clause.
type Comprehension struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

// Keyword is a name=value call argument.
type Keyword struct {
	Pos   Pos
	Name  string
	Value Expr
}

// Param is a function parameter. Star marks *args, DoubleStar marks **kwargs.
type Param struct {
	Pos        Pos
	Name       string
	Default    Expr
	Star       bool
	DoubleStar bool
}

func (n *Name) Position() Pos      { return n.Pos }
func (n *Constant) Position() Pos  { return n.Pos }
func (n *FString) Position() Pos   { return n.Pos }
func (n *List) Position() Pos      { return n.Pos }
func (n *Tuple) Position() Pos     { return n.Pos }
func (n *Dict) Position() Pos      { return n.Pos }
func (n *ListComp) Position() Pos  { return n.Pos }
func (n *Attribute) Position() Pos { return n.Pos }
func (n *Subscript) Position() Pos { return n.Pos }
func (n *Slice) Position() Pos     { return n.Pos }
func (n *Call) Position() Pos      { return n.Pos }
func (n *Await) Position() Pos     { return n.Pos }
func (n *Lambda) Position() Pos    { return n.Pos }
func (n *IfExp) Position() Pos     { return n.Pos }
func (n *BinOp) Position() Pos     { return n.Pos }
func (n *UnaryOp) Position() Pos   { return n.Pos }
func (n *BoolOp) Position() Pos    { return n.Pos }
func (n *Compare) Position() Pos   { return n.Pos }

func (*Name) exprNode()      {}
func (*Constant) exprNode()  {}
func (*FString) exprNode()   {}
func (*List) exprNode()      {}
func (*Tuple) exprNode()     {}
func (*Dict) exprNode()      {}
func (*ListComp) exprNode()  {}
func (*Attribute) exprNode() {}
func (*Subscript) exprNode() {}
func (*Slice) exprNode()     {}
func (*Call) exprNode()      {}
func (*Await) exprNode()     {}
func (*Lambda) exprNode()    {}
func (*IfExp) exprNode()     {}
func (*BinOp) exprNode()     {}
func (*UnaryOp) exprNode()   {}
func (*BoolOp) exprNode()    {}
func (*Compare) exprNode()   {}

// === Statements ===

type (
	ExprStmt struct {
		Pos   Pos
		Value Expr
	}

	// Assign is "t1 = t2 = ... = Value".
	Assign struct {
		Pos     Pos
		Targets []Expr
		Value   Expr
	}

	AugAssign struct {
		Pos    Pos
		Target Expr
		Op     string // binary operator without "="
		Value  Expr
	}

	FunctionDef struct {
		Pos    Pos
		Name   string
		Params []Param
		Body   []Stmt
		Async  bool
	}

	ClassDef struct {
		Pos   Pos
		Name  string
		Bases []Expr
		Body  []Stmt
	}

	Return struct {
		Pos   Pos
		Value Expr // may be nil
	}

	Pass struct{ Pos Pos }

	Break struct{ Pos Pos }

	Continue struct{ Pos Pos }

	If struct {
		Pos    Pos
		Test   Expr
		Body   []Stmt
		OrElse []Stmt
	}

	While struct {
		Pos    Pos
		Test   Expr
		Body   []Stmt
		OrElse []Stmt
	}

	For struct {
		Pos    Pos
		Target Expr
		Iter   Expr
		Body   []Stmt
		OrElse []Stmt
	}

	Try struct {
		Pos       Pos
		Body      []Stmt
		Handlers  []ExceptHandler
		OrElse    []Stmt
		FinalBody []Stmt
	}

	Raise struct {
		Pos Pos
		Exc Expr // nil re-raises the active exception
	}

	Global struct {
		Pos   Pos
		Names []string
	}

	Nonlocal struct {
		Pos   Pos
		Names []string
	}

	Import struct {
		Pos   Pos
		Names []Alias
	}

	ImportFrom struct {
		Pos    Pos
		Module string
		Names  []Alias
	}

	Delete struct {
		Pos     Pos
		Targets []Expr
	}

	Assert struct {
		Pos  Pos
		Test Expr
		Msg  Expr
	}
)

// ExceptHandler is one "except [Type [as Name]]:" clause.
type ExceptHandler struct {
	Pos  Pos
	Type Expr
	Name string
	Body []Stmt
}

// Alias is "Name [as AsName]" in an import.
type Alias struct {
	Name   string
	AsName string
}

func (n *ExprStmt) Position() Pos    { return n.Pos }
func (n *Assign) Position() Pos      { return n.Pos }
func (n *AugAssign) Position() Pos   { return n.Pos }
func (n *FunctionDef) Position() Pos { return n.Pos }
func (n *ClassDef) Position() Pos    { return n.Pos }
func (n *Return) Position() Pos      { return n.Pos }
func (n *Pass) Position() Pos        { return n.Pos }
func (n *Break) Position() Pos       { return n.Pos }
func (n *Continue) Position() Pos    { return n.Pos }
func (n *If) Position() Pos          { return n.Pos }
func (n *While) Position() Pos       { return n.Pos }
func (n *For) Position() Pos         { return n.Pos }
func (n *Try) Position() Pos         { return n.Pos }
func (n *Raise) Position() Pos       { return n.Pos }
func (n *Global) Position() Pos      { return n.Pos }
func (n *Nonlocal) Position() Pos    { return n.Pos }
func (n *Import) Position() Pos      { return n.Pos }
func (n *ImportFrom) Position() Pos  { return n.Pos }
func (n *Delete) Position() Pos      { return n.Pos }
func (n *Assert) Position() Pos      { return n.Pos }

func (*ExprStmt) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*If) stmtNode()          {}
func (*While) stmtNode()       {}
func (*For) stmtNode()         {}
func (*Try) stmtNode()         {}
func (*Raise) stmtNode()       {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Delete) stmtNode()      {}
func (*Assert) stmtNode()      {}
