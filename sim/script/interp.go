package script

import (
	"strings"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/script/syntax"
)

// maxDepth bounds nested function calls on one thread.
const maxDepth = 200

type ctrl int

const (
	ctrlNext ctrl = iota
	ctrlReturn
	ctrlBreak
	ctrlContinue
)

type frame struct {
	name  string
	line  int
	fn    *Function
	scope *Scope
}

// thread is one line of script execution. Threads bound to a task may
// suspend; threads without a task (class bodies at compile time) may not.
type thread struct {
	rt         *Runtime
	task       *sim.Task
	steps      int64
	lastYields uint64
	frames     []frame
	handling   []*Exception
}

func (rt *Runtime) newThread(t *sim.Task) *thread {
	th := &thread{rt: rt, task: t}
	if t != nil {
		th.lastYields = t.Yields()
	}
	return th
}

func (th *thread) printer() *printer { return &printer{th: th} }

// owner returns the id of the node the thread runs for, or "".
func (th *thread) owner() string {
	if th.task == nil {
		return ""
	}
	return th.task.Owner()
}

// tick charges one step against the budget. The counter resets whenever the
// task has suspended since the previous step.
func (th *thread) tick() error {
	if th.task != nil {
		if th.task.Cancelled() {
			return sim.ErrCancelled
		}
		if y := th.task.Yields(); y != th.lastYields {
			th.lastYields, th.steps = y, 0
		}
	}
	th.steps++
	if limit := th.rt.maxSteps; limit > 0 && th.steps > limit {
		exc := newError(excRuntimeError, "executed %d steps without yielding", limit)
		exc.fatal = true
		return exc
	}
	return nil
}

func (th *thread) snapshot() []Frame {
	out := make([]Frame, len(th.frames))
	for i, f := range th.frames {
		out[i] = Frame{Name: f.name, Line: f.line}
	}
	return out
}

// raise converts err to a script exception and stamps it with the current
// call stack if it has none yet.
func (th *thread) raise(err error) error {
	err = toException(err)
	if exc, ok := err.(*Exception); ok && exc.Frames == nil {
		exc.Frames = th.snapshot()
	}
	return err
}

func (th *thread) push(f frame) error {
	if len(th.frames) >= maxDepth {
		return newError(excRecursionError, "maximum recursion depth exceeded")
	}
	th.frames = append(th.frames, f)
	return nil
}

func (th *thread) pop() { th.frames = th.frames[:len(th.frames)-1] }

// execModule runs a parsed module body in sc.
func (th *thread) execModule(mod *syntax.Module, sc *Scope) error {
	if err := th.push(frame{name: "<module>", scope: sc}); err != nil {
		return err
	}
	defer th.pop()
	_, _, err := th.execBlock(mod.Body, sc)
	return err
}

func (th *thread) execBlock(body []syntax.Stmt, sc *Scope) (ctrl, any, error) {
	for _, st := range body {
		c, v, err := th.exec(st, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		if c != ctrlNext {
			return c, v, nil
		}
	}
	return ctrlNext, nil, nil
}

func (th *thread) exec(st syntax.Stmt, sc *Scope) (ctrl, any, error) {
	if n := len(th.frames); n > 0 {
		th.frames[n-1].line = st.Position().Line
	}
	if err := th.tick(); err != nil {
		return ctrlNext, nil, err
	}
	c, v, err := th.execStmt(st, sc)
	if err != nil {
		return ctrlNext, nil, th.raise(err)
	}
	return c, v, nil
}

func (th *thread) execStmt(st syntax.Stmt, sc *Scope) (ctrl, any, error) {
	switch n := st.(type) {
	case *syntax.ExprStmt:
		_, err := th.eval(n.Value, sc)
		return ctrlNext, nil, err

	case *syntax.Assign:
		v, err := th.eval(n.Value, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		for _, t := range n.Targets {
			if err := th.assign(t, v, sc); err != nil {
				return ctrlNext, nil, err
			}
		}
		return ctrlNext, nil, nil

	case *syntax.AugAssign:
		return ctrlNext, nil, th.augAssign(n, sc)

	case *syntax.FunctionDef:
		fn, err := th.makeFunction(n.Name, n.Params, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		fn.Body, fn.Async = n.Body, n.Async
		sc.Set(n.Name, fn)
		return ctrlNext, nil, nil

	case *syntax.ClassDef:
		cls, err := th.makeClass(n, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		sc.Set(n.Name, cls)
		return ctrlNext, nil, nil

	case *syntax.Return:
		if n.Value == nil {
			return ctrlReturn, nil, nil
		}
		v, err := th.eval(n.Value, sc)
		return ctrlReturn, v, err

	case *syntax.Pass:
		return ctrlNext, nil, nil
	case *syntax.Break:
		return ctrlBreak, nil, nil
	case *syntax.Continue:
		return ctrlContinue, nil, nil

	case *syntax.If:
		test, err := th.eval(n.Test, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		if truthy(test) {
			return th.execBlock(n.Body, sc)
		}
		return th.execBlock(n.OrElse, sc)

	case *syntax.While:
		return th.execWhile(n, sc)

	case *syntax.For:
		return th.execFor(n, sc)

	case *syntax.Try:
		return th.execTry(n, sc)

	case *syntax.Raise:
		return ctrlNext, nil, th.execRaise(n, sc)

	case *syntax.Global:
		for _, name := range n.Names {
			sc.declareGlobal(name)
		}
		return ctrlNext, nil, nil

	case *syntax.Nonlocal:
		for _, name := range n.Names {
			if err := sc.declareNonlocal(name); err != nil {
				return ctrlNext, nil, err
			}
		}
		return ctrlNext, nil, nil

	case *syntax.Import:
		for _, a := range n.Names {
			mod, err := th.rt.importModule(a.Name)
			if err != nil {
				return ctrlNext, nil, err
			}
			name := a.AsName
			if name == "" {
				name = a.Name
			}
			sc.Set(name, mod)
		}
		return ctrlNext, nil, nil

	case *syntax.ImportFrom:
		mod, err := th.rt.importModule(n.Module)
		if err != nil {
			return ctrlNext, nil, err
		}
		for _, a := range n.Names {
			if a.Name == "*" {
				for _, k := range sortedStrings(mod.Attrs) {
					sc.Set(k, mod.Attrs[k])
				}
				continue
			}
			v, ok := mod.Attrs[a.Name]
			if !ok {
				return ctrlNext, nil, newError(excImportError, "cannot import name '%s' from '%s'", a.Name, n.Module)
			}
			name := a.AsName
			if name == "" {
				name = a.Name
			}
			sc.Set(name, v)
		}
		return ctrlNext, nil, nil

	case *syntax.Delete:
		for _, t := range n.Targets {
			if err := th.del(t, sc); err != nil {
				return ctrlNext, nil, err
			}
		}
		return ctrlNext, nil, nil

	case *syntax.Assert:
		test, err := th.eval(n.Test, sc)
		if err != nil || truthy(test) {
			return ctrlNext, nil, err
		}
		var args []any
		if n.Msg != nil {
			msg, err := th.eval(n.Msg, sc)
			if err != nil {
				return ctrlNext, nil, err
			}
			args = []any{msg}
		}
		inst, err := th.instantiate(excAssertionError, args, nil)
		if err != nil {
			return ctrlNext, nil, err
		}
		return ctrlNext, nil, &Exception{Value: inst.(*Instance)}
	}
	return ctrlNext, nil, newError(excRuntimeError, "unsupported statement %T", st)
}

func (th *thread) execWhile(n *syntax.While, sc *Scope) (ctrl, any, error) {
	for {
		if err := th.tick(); err != nil {
			return ctrlNext, nil, err
		}
		test, err := th.eval(n.Test, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		if !truthy(test) {
			break
		}
		c, v, err := th.execBlock(n.Body, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		switch c {
		case ctrlBreak:
			return ctrlNext, nil, nil
		case ctrlReturn:
			return c, v, nil
		}
	}
	return th.execBlock(n.OrElse, sc)
}

func (th *thread) execFor(n *syntax.For, sc *Scope) (ctrl, any, error) {
	it, err := th.eval(n.Iter, sc)
	if err != nil {
		return ctrlNext, nil, err
	}
	next, err := th.iterate(it)
	if err != nil {
		return ctrlNext, nil, err
	}
	for {
		item, ok := next()
		if !ok {
			break
		}
		if err := th.tick(); err != nil {
			return ctrlNext, nil, err
		}
		if err := th.assign(n.Target, item, sc); err != nil {
			return ctrlNext, nil, err
		}
		c, v, err := th.execBlock(n.Body, sc)
		if err != nil {
			return ctrlNext, nil, err
		}
		switch c {
		case ctrlBreak:
			return ctrlNext, nil, nil
		case ctrlReturn:
			return c, v, nil
		}
	}
	return th.execBlock(n.OrElse, sc)
}

func (th *thread) execTry(n *syntax.Try, sc *Scope) (ctrl, any, error) {
	c, v, err := th.execBlock(n.Body, sc)
	if err != nil {
		if exc, ok := err.(*Exception); ok && !exc.fatal {
			for _, h := range n.Handlers {
				match, merr := th.handles(h, exc, sc)
				if merr != nil {
					err = merr
					break
				}
				if !match {
					continue
				}
				if h.Name != "" {
					sc.Set(h.Name, exc.Value)
				}
				th.handling = append(th.handling, exc)
				c, v, err = th.execBlock(h.Body, sc)
				th.handling = th.handling[:len(th.handling)-1]
				if h.Name != "" {
					sc.Delete(h.Name)
				}
				break
			}
		}
	} else if c == ctrlNext {
		c, v, err = th.execBlock(n.OrElse, sc)
	}
	if len(n.FinalBody) > 0 {
		fc, fv, ferr := th.execBlock(n.FinalBody, sc)
		if ferr != nil {
			return ctrlNext, nil, ferr
		}
		if fc != ctrlNext {
			return fc, fv, nil
		}
	}
	return c, v, err
}

func (th *thread) handles(h syntax.ExceptHandler, exc *Exception, sc *Scope) (bool, error) {
	if h.Type == nil {
		return true, nil
	}
	t, err := th.eval(h.Type, sc)
	if err != nil {
		return false, err
	}
	classes := []any{t}
	if tup, ok := t.(Tuple); ok {
		classes = tup
	}
	for _, c := range classes {
		cls, ok := c.(*Class)
		if !ok || !isExceptionClass(cls) {
			return false, newError(excTypeError, "catching classes that do not inherit from BaseException is not allowed")
		}
		if exc.Value.Class.IsSubclass(cls) {
			return true, nil
		}
	}
	return false, nil
}

func (th *thread) execRaise(n *syntax.Raise, sc *Scope) error {
	if n.Exc == nil {
		if len(th.handling) == 0 {
			return newError(excRuntimeError, "No active exception to reraise")
		}
		return th.handling[len(th.handling)-1]
	}
	v, err := th.eval(n.Exc, sc)
	if err != nil {
		return err
	}
	if cls, ok := v.(*Class); ok && isExceptionClass(cls) {
		if v, err = th.instantiate(cls, nil, nil); err != nil {
			return err
		}
	}
	inst, ok := v.(*Instance)
	if !ok || !isExceptionClass(inst.Class) {
		return newError(excTypeError, "exceptions must derive from BaseException")
	}
	return &Exception{Value: inst}
}

func (th *thread) augAssign(n *syntax.AugAssign, sc *Scope) error {
	rhs, err := th.eval(n.Value, sc)
	if err != nil {
		return err
	}
	switch t := n.Target.(type) {
	case *syntax.Name:
		cur, ok := sc.Lookup(t.ID)
		if !ok {
			return newError(excNameError, "name '%s' is not defined", t.ID)
		}
		v, err := th.inplace(n.Op, cur, rhs)
		if err != nil {
			return err
		}
		sc.Set(t.ID, v)
		return nil
	case *syntax.Attribute:
		obj, err := th.eval(t.Value, sc)
		if err != nil {
			return err
		}
		cur, err := th.getattr(obj, t.Attr)
		if err != nil {
			return err
		}
		v, err := th.inplace(n.Op, cur, rhs)
		if err != nil {
			return err
		}
		return th.setattr(obj, t.Attr, v)
	case *syntax.Subscript:
		obj, err := th.eval(t.Value, sc)
		if err != nil {
			return err
		}
		key, err := th.eval(t.Index, sc)
		if err != nil {
			return err
		}
		cur, err := th.getitem(obj, key)
		if err != nil {
			return err
		}
		v, err := th.inplace(n.Op, cur, rhs)
		if err != nil {
			return err
		}
		return th.setitem(obj, key, v)
	}
	return newError(excRuntimeError, "illegal expression for augmented assignment")
}

func (th *thread) assign(target syntax.Expr, v any, sc *Scope) error {
	switch t := target.(type) {
	case *syntax.Name:
		sc.Set(t.ID, v)
		return nil
	case *syntax.Attribute:
		obj, err := th.eval(t.Value, sc)
		if err != nil {
			return err
		}
		return th.setattr(obj, t.Attr, v)
	case *syntax.Subscript:
		obj, err := th.eval(t.Value, sc)
		if err != nil {
			return err
		}
		if s, ok := t.Index.(*syntax.Slice); ok {
			lo, hi, step, err := th.sliceBounds(s, sc)
			if err != nil {
				return err
			}
			return th.setslice(obj, lo, hi, step, v)
		}
		key, err := th.eval(t.Index, sc)
		if err != nil {
			return err
		}
		return th.setitem(obj, key, v)
	case *syntax.Tuple:
		return th.unpack(t.Elts, v, sc)
	case *syntax.List:
		return th.unpack(t.Elts, v, sc)
	}
	return newError(excRuntimeError, "cannot assign to %T", target)
}

func (th *thread) unpack(targets []syntax.Expr, v any, sc *Scope) error {
	items, err := th.collect(v)
	if err != nil {
		if exc, ok := err.(*Exception); ok && exc.Value.Class == excTypeError {
			return newError(excTypeError, "cannot unpack non-iterable %s object", typeName(v))
		}
		return err
	}
	switch {
	case len(items) < len(targets):
		return newError(excValueError, "not enough values to unpack (expected %d, got %d)", len(targets), len(items))
	case len(items) > len(targets):
		return newError(excValueError, "too many values to unpack (expected %d)", len(targets))
	}
	for i, t := range targets {
		if err := th.assign(t, items[i], sc); err != nil {
			return err
		}
	}
	return nil
}

func (th *thread) del(target syntax.Expr, sc *Scope) error {
	switch t := target.(type) {
	case *syntax.Name:
		if !sc.Delete(t.ID) {
			return newError(excNameError, "name '%s' is not defined", t.ID)
		}
		return nil
	case *syntax.Attribute:
		obj, err := th.eval(t.Value, sc)
		if err != nil {
			return err
		}
		inst, ok := obj.(*Instance)
		if !ok {
			return newError(excAttributeError, "'%s' object has no attribute '%s'", typeName(obj), t.Attr)
		}
		if _, ok := inst.Attrs[t.Attr]; !ok {
			return newError(excAttributeError, "'%s' object has no attribute '%s'", inst.Class.Name, t.Attr)
		}
		delete(inst.Attrs, t.Attr)
		return nil
	case *syntax.Subscript:
		obj, err := th.eval(t.Value, sc)
		if err != nil {
			return err
		}
		if s, ok := t.Index.(*syntax.Slice); ok {
			lo, hi, step, err := th.sliceBounds(s, sc)
			if err != nil {
				return err
			}
			return th.delslice(obj, lo, hi, step)
		}
		key, err := th.eval(t.Index, sc)
		if err != nil {
			return err
		}
		return th.delitem(obj, key)
	case *syntax.Tuple:
		for _, e := range t.Elts {
			if err := th.del(e, sc); err != nil {
				return err
			}
		}
		return nil
	}
	return newError(excRuntimeError, "cannot delete %T", target)
}

func (th *thread) makeFunction(name string, params []syntax.Param, sc *Scope) (*Function, error) {
	fn := &Function{Name: name, Params: params, Defaults: make([]any, len(params)), Closure: sc}
	for i, p := range params {
		fn.Defaults[i] = unset
		if p.Default == nil {
			continue
		}
		v, err := th.eval(p.Default, sc)
		if err != nil {
			return nil, err
		}
		fn.Defaults[i] = v
	}
	return fn, nil
}

func (th *thread) makeClass(n *syntax.ClassDef, sc *Scope) (*Class, error) {
	cls := &Class{Name: n.Name}
	for _, b := range n.Bases {
		v, err := th.eval(b, sc)
		if err != nil {
			return nil, err
		}
		base, ok := v.(*Class)
		if !ok {
			return nil, newError(excTypeError, "bases must be types, not %s", typeName(v))
		}
		cls.Bases = append(cls.Bases, base)
	}
	body := newScope(sc)
	body.class = true
	if _, _, err := th.execBlock(n.Body, body); err != nil {
		return nil, err
	}
	cls.Attrs = body.vars
	for _, v := range cls.Attrs {
		if fn, ok := v.(*Function); ok && fn.Owner == nil {
			fn.Owner = cls
		}
	}
	return cls, nil
}

// === expressions ===

func (th *thread) eval(e syntax.Expr, sc *Scope) (any, error) {
	switch n := e.(type) {
	case *syntax.Name:
		v, ok := sc.Lookup(n.ID)
		if !ok {
			return nil, newError(excNameError, "name '%s' is not defined", n.ID)
		}
		return v, nil

	case *syntax.Constant:
		return n.Value, nil

	case *syntax.FString:
		return th.fstring(n, sc)

	case *syntax.List:
		items, err := th.evalAll(n.Elts, sc)
		return &List{Items: items}, err

	case *syntax.Tuple:
		items, err := th.evalAll(n.Elts, sc)
		return Tuple(items), err

	case *syntax.Dict:
		d := NewDict()
		for i := range n.Keys {
			k, err := th.eval(n.Keys[i], sc)
			if err != nil {
				return nil, err
			}
			v, err := th.eval(n.Values[i], sc)
			if err != nil {
				return nil, err
			}
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}
		return d, nil

	case *syntax.ListComp:
		return th.listComp(n, sc)

	case *syntax.Attribute:
		obj, err := th.eval(n.Value, sc)
		if err != nil {
			return nil, err
		}
		return th.getattr(obj, n.Attr)

	case *syntax.Subscript:
		obj, err := th.eval(n.Value, sc)
		if err != nil {
			return nil, err
		}
		if s, ok := n.Index.(*syntax.Slice); ok {
			lo, hi, step, err := th.sliceBounds(s, sc)
			if err != nil {
				return nil, err
			}
			return th.getslice(obj, lo, hi, step)
		}
		key, err := th.eval(n.Index, sc)
		if err != nil {
			return nil, err
		}
		return th.getitem(obj, key)

	case *syntax.Call:
		fn, err := th.eval(n.Func, sc)
		if err != nil {
			return nil, err
		}
		args, err := th.evalAll(n.Args, sc)
		if err != nil {
			return nil, err
		}
		var kw map[string]any
		if len(n.Keywords) > 0 {
			kw = make(map[string]any, len(n.Keywords))
			for _, k := range n.Keywords {
				v, err := th.eval(k.Value, sc)
				if err != nil {
					return nil, err
				}
				kw[k.Name] = v
			}
		}
		return th.call(fn, args, kw)

	case *syntax.Await:
		v, err := th.eval(n.Value, sc)
		if err != nil {
			return nil, err
		}
		return th.await(v)

	case *syntax.Lambda:
		fn, err := th.makeFunction("<lambda>", n.Params, sc)
		if err != nil {
			return nil, err
		}
		fn.Lambda = n.Body
		return fn, nil

	case *syntax.IfExp:
		test, err := th.eval(n.Test, sc)
		if err != nil {
			return nil, err
		}
		if truthy(test) {
			return th.eval(n.Body, sc)
		}
		return th.eval(n.OrElse, sc)

	case *syntax.BinOp:
		l, err := th.eval(n.Left, sc)
		if err != nil {
			return nil, err
		}
		r, err := th.eval(n.Right, sc)
		if err != nil {
			return nil, err
		}
		return th.binop(n.Op, l, r)

	case *syntax.UnaryOp:
		v, err := th.eval(n.Operand, sc)
		if err != nil {
			return nil, err
		}
		return th.unary(n.Op, v)

	case *syntax.BoolOp:
		var v any
		for _, operand := range n.Values {
			var err error
			if v, err = th.eval(operand, sc); err != nil {
				return nil, err
			}
			if (n.Op == "and") != truthy(v) {
				return v, nil
			}
		}
		return v, nil

	case *syntax.Compare:
		left, err := th.eval(n.Left, sc)
		if err != nil {
			return nil, err
		}
		for i, op := range n.Ops {
			right, err := th.eval(n.Comparators[i], sc)
			if err != nil {
				return nil, err
			}
			ok, err := th.compare(op, left, right)
			if err != nil || !ok {
				return false, err
			}
			left = right
		}
		return true, nil

	case *syntax.Slice:
		return nil, newError(excRuntimeError, "slice outside of a subscript")
	}
	return nil, newError(excRuntimeError, "unsupported expression %T", e)
}

func (th *thread) evalAll(list []syntax.Expr, sc *Scope) ([]any, error) {
	out := make([]any, len(list))
	for i, e := range list {
		v, err := th.eval(e, sc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (th *thread) fstring(n *syntax.FString, sc *Scope) (any, error) {
	var sb strings.Builder
	p := th.printer()
	for _, part := range n.Parts {
		if part.Expr == nil {
			sb.WriteString(part.Lit)
			continue
		}
		v, err := th.eval(part.Expr, sc)
		if err != nil {
			return nil, err
		}
		switch part.Conv {
		case 'r':
			v, err = p.repr(v)
		case 's':
			v, err = p.str(v)
		}
		if err != nil {
			return nil, err
		}
		s, err := p.applySpec(v, part.Spec)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func (th *thread) listComp(n *syntax.ListComp, sc *Scope) (any, error) {
	inner := newScope(sc)
	out := &List{}
	var gen func(i int) error
	gen = func(i int) error {
		if i == len(n.Generators) {
			v, err := th.eval(n.Elt, inner)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, v)
			return nil
		}
		g := n.Generators[i]
		src, err := th.eval(g.Iter, inner)
		if err != nil {
			return err
		}
		next, err := th.iterate(src)
		if err != nil {
			return err
		}
	items:
		for {
			item, ok := next()
			if !ok {
				return nil
			}
			if err := th.tick(); err != nil {
				return err
			}
			if err := th.assign(g.Target, item, inner); err != nil {
				return err
			}
			for _, cond := range g.Ifs {
				v, err := th.eval(cond, inner)
				if err != nil {
					return err
				}
				if !truthy(v) {
					continue items
				}
			}
			if err := gen(i + 1); err != nil {
				return err
			}
		}
	}
	if err := gen(0); err != nil {
		return nil, err
	}
	return out, nil
}

func (th *thread) sliceBounds(s *syntax.Slice, sc *Scope) (lo, hi, step any, err error) {
	lo, hi, step = nil, nil, nil
	if s.Lower != nil {
		if lo, err = th.eval(s.Lower, sc); err != nil {
			return
		}
	}
	if s.Upper != nil {
		if hi, err = th.eval(s.Upper, sc); err != nil {
			return
		}
	}
	if s.Step != nil {
		step, err = th.eval(s.Step, sc)
	}
	return
}
