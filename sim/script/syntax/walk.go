package syntax

// Inspect traverses the tree rooted at n in depth-first source order, calling
// f for every node. If f returns false the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Module:
		stmts(n.Body, f)

	// statements
	case *ExprStmt:
		Inspect(n.Value, f)
	case *Assign:
		exprs(n.Targets, f)
		Inspect(n.Value, f)
	case *AugAssign:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *FunctionDef:
		params(n.Params, f)
		stmts(n.Body, f)
	case *ClassDef:
		exprs(n.Bases, f)
		stmts(n.Body, f)
	case *Return:
		inspectOpt(n.Value, f)
	case *If:
		Inspect(n.Test, f)
		stmts(n.Body, f)
		stmts(n.OrElse, f)
	case *While:
		Inspect(n.Test, f)
		stmts(n.Body, f)
		stmts(n.OrElse, f)
	case *For:
		Inspect(n.Target, f)
		Inspect(n.Iter, f)
		stmts(n.Body, f)
		stmts(n.OrElse, f)
	case *Try:
		stmts(n.Body, f)
		for _, h := range n.Handlers {
			inspectOpt(h.Type, f)
			stmts(h.Body, f)
		}
		stmts(n.OrElse, f)
		stmts(n.FinalBody, f)
	case *Raise:
		inspectOpt(n.Exc, f)
	case *Delete:
		exprs(n.Targets, f)
	case *Assert:
		Inspect(n.Test, f)
		inspectOpt(n.Msg, f)

	// expressions
	case *FString:
		for _, p := range n.Parts {
			inspectOpt(p.Expr, f)
		}
	case *List:
		exprs(n.Elts, f)
	case *Tuple:
		exprs(n.Elts, f)
	case *Dict:
		for i := range n.Keys {
			Inspect(n.Keys[i], f)
			Inspect(n.Values[i], f)
		}
	case *ListComp:
		Inspect(n.Elt, f)
		for _, g := range n.Generators {
			Inspect(g.Target, f)
			Inspect(g.Iter, f)
			exprs(g.Ifs, f)
		}
	case *Attribute:
		Inspect(n.Value, f)
	case *Subscript:
		Inspect(n.Value, f)
		Inspect(n.Index, f)
	case *Slice:
		inspectOpt(n.Lower, f)
		inspectOpt(n.Upper, f)
		inspectOpt(n.Step, f)
	case *Call:
		Inspect(n.Func, f)
		exprs(n.Args, f)
		for _, k := range n.Keywords {
			Inspect(k.Value, f)
		}
	case *Await:
		Inspect(n.Value, f)
	case *Lambda:
		params(n.Params, f)
		Inspect(n.Body, f)
	case *IfExp:
		Inspect(n.Test, f)
		Inspect(n.Body, f)
		Inspect(n.OrElse, f)
	case *BinOp:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *UnaryOp:
		Inspect(n.Operand, f)
	case *BoolOp:
		exprs(n.Values, f)
	case *Compare:
		Inspect(n.Left, f)
		exprs(n.Comparators, f)
	}
}

func inspectOpt(e Expr, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}

func exprs(list []Expr, f func(Node) bool) {
	for _, e := range list {
		Inspect(e, f)
	}
}

func stmts(list []Stmt, f func(Node) bool) {
	for _, s := range list {
		Inspect(s, f)
	}
}

func params(list []Param, f func(Node) bool) {
	for _, p := range list {
		inspectOpt(p.Default, f)
	}
}
