package check

import "github.com/netsandbox/netsandbox/sim/script/syntax"

// runMethodRule requires a method named run declared async. When several
// definitions named run exist, the last one in source order decides.
type runMethodRule struct{}

func (runMethodRule) Name() string { return "run-method" }

func (runMethodRule) Check(mod *syntax.Module) []Diagnostic {
	var last *syntax.FunctionDef
	syntax.Inspect(mod, func(n syntax.Node) bool {
		if fn, ok := n.(*syntax.FunctionDef); ok && fn.Name == "run" {
			last = fn
		}
		return true
	})
	switch {
	case last == nil:
		return []Diagnostic{{Severity: SeverityError, Message: "Expecting a method named 'run'"}}
	case !last.Async:
		return []Diagnostic{{Severity: SeverityError, Message: "The method 'run' must be async"}}
	}
	return nil
}

// printRule flags every direct call of the bare print builtin.
type printRule struct{}

func (printRule) Name() string { return "print-usage" }

func (printRule) Check(mod *syntax.Module) []Diagnostic {
	var out []Diagnostic
	syntax.Inspect(mod, func(n syntax.Node) bool {
		call, ok := n.(*syntax.Call)
		if !ok {
			return true
		}
		if name, ok := call.Func.(*syntax.Name); ok && name.ID == "print" {
			out = append(out, Diagnostic{
				Line:     call.Pos.Line,
				Col:      mod.ByteCol(call.Pos),
				Severity: SeverityWarning,
				Message:  "Use 'self.print()' instead of 'print'",
			})
		}
		return true
	})
	return out
}
