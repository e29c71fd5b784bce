// Package script implements the sandbox scripting language: a small,
// indentation-structured language with Python-like syntax in which endpoint
// behaviors, endpoint classes and message classes are written. Runtime
// compiles submitted sources into sim behaviors and registry classes and
// interprets them on the session's cooperative tasks.
package script

import (
	"github.com/sirupsen/logrus"

	"github.com/netsandbox/netsandbox/sim"
	"github.com/netsandbox/netsandbox/sim/check"
	"github.com/netsandbox/netsandbox/sim/script/syntax"
)

// Runtime is the interpreter state of one session: the shared globals that
// message and node sources populate, plus the builtin names and modules.
type Runtime struct {
	session  *sim.Session
	builtins *Scope
	globals  *Scope
	modules  map[string]*Module
	maxSteps int64
}

// NewRuntime creates a runtime for s without attaching it.
func NewRuntime(s *sim.Session) *Runtime {
	builtins := newScope(nil)
	builtins.vars = newBuiltins()
	return &Runtime{
		session:  s,
		builtins: builtins,
		globals:  newModuleScope(builtins),
		modules:  newModules(),
		maxSteps: s.Config().MaxStepsWithoutYield,
	}
}

// Attach creates a runtime for s and installs it as the session compiler.
func Attach(s *sim.Session) *Runtime {
	rt := NewRuntime(s)
	s.SetCompiler(rt)
	return rt
}

// Compile checks source with the profile of kind and then compiles it. Class
// sources register their classes with the session registry and yield a nil
// behavior; run sources yield the behavior calling their run function.
func (rt *Runtime) Compile(kind check.Kind, source string) (sim.Behavior, error) {
	if res := check.Check(kind, source); !res.OK {
		logrus.Debugf("rejected %s source: %s", kind, res.Comment)
		return nil, &sim.CheckError{Kind: string(kind), Comment: res.Comment, Type: string(res.Type)}
	}
	mod, err := syntax.Parse(source)
	if err != nil {
		return nil, err
	}
	switch kind {
	case check.KindMessage:
		if err := rt.newThread(nil).execModule(mod, rt.globals); err != nil {
			return nil, err
		}
		if err := rt.registerMessages(); err != nil {
			return nil, err
		}
		return nil, nil
	case check.KindNode:
		if err := rt.newThread(nil).execModule(mod, rt.globals); err != nil {
			return nil, err
		}
		rt.registerEndpoints()
		return nil, nil
	}
	sc := newModuleScope(rt.globals)
	if err := rt.newThread(nil).execModule(mod, sc); err != nil {
		return nil, err
	}
	run, ok := sc.vars["run"].(*Function)
	if !ok || !run.Async {
		return nil, newError(excTypeError, "run must be an async function")
	}
	return &runBehavior{rt: rt, fn: run}, nil
}

func (rt *Runtime) userClasses(base *Class) []*Class {
	var out []*Class
	for _, name := range sortedStrings(rt.globals.vars) {
		c, ok := rt.globals.vars[name].(*Class)
		if ok && !c.Builtin && c.Name == name && c.IsSubclass(base) {
			out = append(out, c)
		}
	}
	return out
}

// registerMessages registers every message class with the session. Classes
// with a non-str color or a non-numeric speed are dropped from the globals and
// nothing is registered.
func (rt *Runtime) registerMessages() error {
	var classes []sim.MessageClass
	var firstErr error
	for _, c := range rt.userClasses(baseMessageClass) {
		mc, err := simMessageClassOf(c)
		if err != nil {
			delete(rt.globals.vars, c.Name)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		classes = append(classes, mc)
	}
	if firstErr != nil {
		return firstErr
	}
	reg := rt.session.Registry()
	for _, mc := range classes {
		reg.RegisterMessage(mc)
	}
	return nil
}

func simMessageClassOf(c *Class) (sim.MessageClass, error) {
	mc := sim.MessageClass{Name: c.Name}
	if v, _, ok := c.lookup("color"); ok {
		s, isStr := v.(string)
		if !isStr {
			return mc, newError(excTypeError, "%s.color must be str, not %s", c.Name, typeName(v))
		}
		mc.Color = s
	}
	if v, _, ok := c.lookup("speed"); ok {
		f, isNum := toFloat(v)
		if !isNum {
			return mc, newError(excTypeError, "%s.speed must be a number, not %s", c.Name, typeName(v))
		}
		mc.Speed = f
	}
	return mc, nil
}

func (rt *Runtime) registerEndpoints() {
	reg := rt.session.Registry()
	for _, c := range rt.userClasses(endpointClass) {
		ec := sim.EndpointClass{Name: c.Name}
		if _, owner, ok := c.lookup("run"); ok && owner != endpointClass {
			ec.Behavior = &runBehavior{rt: rt}
		}
		reg.RegisterEndpoint(ec)
	}
}

// runBehavior drives an async run function on the endpoint's task. With a
// nil fn it calls the run method of the endpoint object instead.
type runBehavior struct {
	rt *Runtime
	fn *Function
}

func (b *runBehavior) Run(t *sim.Task, e *sim.Endpoint) error {
	th := b.rt.newThread(t)
	self, err := b.rt.endpointInstance(th, e)
	if err != nil {
		return err
	}
	var res any
	if b.fn != nil {
		res, err = th.call(b.fn, []any{self}, nil)
	} else {
		var m any
		if m, err = th.getattr(self, "run"); err == nil {
			res, err = th.call(m, nil, nil)
		}
	}
	if err != nil {
		return err
	}
	if co, ok := res.(*Coroutine); ok {
		_, err = th.await(co)
	}
	return err
}
