package script

import (
	"fmt"
	"strings"

	"github.com/netsandbox/netsandbox/sim"
)

// Coroutine is the pending result of calling an async function. It runs when
// awaited, on the awaiting task, and can be awaited only once.
type Coroutine struct {
	name    string
	rt      *Runtime
	run     func(th *thread) (any, error)
	awaited bool
}

func (c *Coroutine) String() string { return "<coroutine object " + c.name + ">" }

func (c *Coroutine) drive(th *thread) (any, error) {
	if c.awaited {
		return nil, newError(excRuntimeError, "cannot reuse already awaited coroutine")
	}
	c.awaited = true
	if th.task == nil {
		return nil, newError(excRuntimeError, "coroutine '%s' awaited outside of a running node", c.name)
	}
	return c.run(th)
}

// Await drives the coroutine on t with a fresh thread.
func (c *Coroutine) Await(t *sim.Task) (any, error) {
	return c.drive(c.rt.newThread(t))
}

var _ sim.Awaitable = (*Coroutine)(nil)

// asyncFactory adapts an async callable taking no arguments to
// sim.AsyncFactory.
type asyncFactory struct {
	rt *Runtime
	fn any
}

func (f asyncFactory) String() string { return repr(f.fn) }

func (f asyncFactory) NewAwaitable() (sim.Awaitable, error) {
	th := f.rt.newThread(nil)
	v, err := th.call(f.fn, nil, nil)
	if err != nil {
		return nil, err
	}
	co, ok := v.(*Coroutine)
	if !ok {
		return nil, newError(excTypeError, "%s did not return a coroutine", repr(f.fn))
	}
	return co, nil
}

// isAsyncCallable reports whether calling v yields a coroutine.
func isAsyncCallable(v any) bool {
	switch x := v.(type) {
	case *Function:
		return x.Async
	case *BoundMethod:
		return isAsyncCallable(x.Fn)
	case *Builtin:
		return x.Async
	}
	return false
}

func (th *thread) await(v any) (any, error) {
	co, ok := v.(*Coroutine)
	if !ok {
		return nil, newError(excTypeError, "object %s can't be used in 'await' expression", typeName(v))
	}
	return co.drive(th)
}

// call invokes any script callable.
func (th *thread) call(fn any, args []any, kw map[string]any) (any, error) {
	switch f := fn.(type) {
	case *Function:
		sc, err := th.bind(f, args, kw)
		if err != nil {
			return nil, err
		}
		if f.Async {
			return &Coroutine{name: f.Name, rt: th.rt, run: func(th *thread) (any, error) {
				return th.runFunction(f, sc)
			}}, nil
		}
		return th.runFunction(f, sc)
	case *BoundMethod:
		return th.call(f.Fn, append([]any{f.Self}, args...), kw)
	case *Builtin:
		return f.Fn(th, args, kw)
	case *Class:
		return th.instantiate(f, args, kw)
	case *Instance:
		if m, _, ok := f.Class.lookup("__call__"); ok {
			return th.call(&BoundMethod{Self: f, Fn: m}, args, kw)
		}
	}
	return nil, newError(excTypeError, "'%s' object is not callable", typeName(fn))
}

func (th *thread) runFunction(fn *Function, sc *Scope) (any, error) {
	f := frame{name: fn.Name, fn: fn, scope: sc}
	if fn.Lambda != nil {
		f.line = fn.Lambda.Position().Line
	}
	if err := th.push(f); err != nil {
		return nil, err
	}
	defer th.pop()
	if fn.Lambda != nil {
		v, err := th.eval(fn.Lambda, sc)
		if err != nil {
			return nil, th.raise(err)
		}
		return v, nil
	}
	c, v, err := th.execBlock(fn.Body, sc)
	if err != nil {
		return nil, err
	}
	if c == ctrlReturn {
		return v, nil
	}
	return nil, nil
}

// bind assigns call arguments to the parameters of fn in a fresh scope.
func (th *thread) bind(fn *Function, args []any, kw map[string]any) (*Scope, error) {
	sc := newScope(fn.Closure)
	used := make(map[string]bool, len(kw))
	i := 0
	positional := 0
	hasStar := false
	var missing []string
	for pi, p := range fn.Params {
		switch {
		case p.Star:
			hasStar = true
			rest := Tuple{}
			if i < len(args) {
				rest = append(rest, args[i:]...)
				i = len(args)
			}
			sc.vars[p.Name] = rest
			continue
		case p.DoubleStar:
			extra := NewDict()
			for _, k := range sortedStrings(kw) {
				if !used[k] {
					_ = extra.Set(k, kw[k])
					used[k] = true
				}
			}
			sc.vars[p.Name] = extra
			continue
		}
		if !hasStar {
			positional++
		}
		if !hasStar && i < len(args) {
			if _, dup := kw[p.Name]; dup {
				return nil, newError(excTypeError, "%s() got multiple values for argument '%s'", fn.Name, p.Name)
			}
			sc.vars[p.Name] = args[i]
			i++
			continue
		}
		if v, ok := kw[p.Name]; ok {
			sc.vars[p.Name] = v
			used[p.Name] = true
			continue
		}
		if d := fn.Defaults[pi]; d != unset {
			sc.vars[p.Name] = d
			continue
		}
		missing = append(missing, p.Name)
	}
	if i < len(args) {
		return nil, newError(excTypeError, "%s() takes %d positional argument%s but %d %s given",
			fn.Name, positional, plural(positional), len(args), wasWere(len(args)))
	}
	for _, k := range sortedStrings(kw) {
		if !used[k] {
			return nil, newError(excTypeError, "%s() got an unexpected keyword argument '%s'", fn.Name, k)
		}
	}
	if len(missing) > 0 {
		return nil, newError(excTypeError, "%s() missing %d required positional argument%s: %s",
			fn.Name, len(missing), plural(len(missing)), nameList(missing))
	}
	return sc, nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}

func nameList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	switch len(quoted) {
	case 1:
		return quoted[0]
	case 2:
		return quoted[0] + " and " + quoted[1]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + ", and " + quoted[len(quoted)-1]
}

// instantiate creates an instance of cls and runs its __init__.
func (th *thread) instantiate(cls *Class, args []any, kw map[string]any) (any, error) {
	if ctor, ok := cls.Attrs["__new__"].(*Builtin); ok {
		return ctor.Fn(th, append([]any{cls}, args...), kw)
	}
	inst := newInstance(cls)
	if isExceptionClass(cls) {
		inst.Attrs["args"] = Tuple(append([]any(nil), args...))
	}
	init, _, ok := cls.lookup("__init__")
	if !ok {
		if (len(args) > 0 || len(kw) > 0) && !isExceptionClass(cls) {
			return nil, newError(excTypeError, "%s() takes no arguments", cls.Name)
		}
		return inst, nil
	}
	res, err := th.call(&BoundMethod{Self: inst, Fn: init}, args, kw)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return nil, newError(excTypeError, "__init__() should return None, not '%s'", typeName(res))
	}
	return inst, nil
}

// argParser checks builtin call arguments.
type argParser struct {
	name string
	args []any
	kw   map[string]any
}

func parseArgs(name string, args []any, kw map[string]any) argParser {
	return argParser{name: name, args: args, kw: kw}
}

// count fails unless min <= len(args) <= max and no keywords other than
// allowed were passed. max < 0 means unbounded.
func (a argParser) count(min, max int, allowed ...string) error {
	n := len(a.args)
	if n < min || (max >= 0 && n > max) {
		switch {
		case min == max:
			return newError(excTypeError, "%s() takes exactly %d argument%s (%d given)", a.name, min, plural(min), n)
		case n < min:
			return newError(excTypeError, "%s() takes at least %d argument%s (%d given)", a.name, min, plural(min), n)
		default:
			return newError(excTypeError, "%s() takes at most %d argument%s (%d given)", a.name, max, plural(max), n)
		}
	}
	for k := range a.kw {
		ok := false
		for _, name := range allowed {
			if k == name {
				ok = true
			}
		}
		if !ok {
			return newError(excTypeError, "%s() got an unexpected keyword argument '%s'", a.name, k)
		}
	}
	return nil
}

// get returns positional argument i, or keyword name, or def.
func (a argParser) get(i int, name string, def any) any {
	if i >= 0 && i < len(a.args) {
		return a.args[i]
	}
	if v, ok := a.kw[name]; ok {
		return v
	}
	return def
}

func (a argParser) str(i int, name string, def string) (string, error) {
	v := a.get(i, name, def)
	s, ok := v.(string)
	if !ok {
		return "", newError(excTypeError, "%s() argument '%s' must be str, not %s", a.name, name, typeName(v))
	}
	return s, nil
}

func (a argParser) int(i int, name string, def int64) (int64, error) {
	v := a.get(i, name, def)
	n, err := toInt(v)
	if err != nil {
		return 0, newError(excTypeError, "%s() argument '%s' must be int, not %s", a.name, name, typeName(v))
	}
	return n, nil
}

func (a argParser) float(i int, name string, def float64) (float64, error) {
	v := a.get(i, name, def)
	f, ok := toFloat(v)
	if !ok {
		return 0, newError(excTypeError, "%s() argument '%s' must be a real number, not %s", a.name, name, typeName(v))
	}
	return f, nil
}

func (f *Function) String() string { return fmt.Sprintf("<function %s>", f.Name) }
