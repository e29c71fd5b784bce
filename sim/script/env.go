package script

// Scope is one level of name bindings. Function scopes chain to the scope
// they were defined in; class bodies get their own scope which the functions
// defined inside them skip when resolving free names.
type Scope struct {
	vars      map[string]any
	parent    *Scope
	module    bool // target of "global" declarations
	class     bool
	globals   map[string]bool
	nonlocals map[string]bool
}

func newScope(parent *Scope) *Scope {
	return &Scope{vars: make(map[string]any), parent: parent}
}

func newModuleScope(parent *Scope) *Scope {
	s := newScope(parent)
	s.module = true
	return s
}

func (s *Scope) moduleScope() *Scope {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.module {
			return sc
		}
	}
	return s
}

// Lookup resolves name through the scope chain.
func (s *Scope) Lookup(name string) (any, bool) {
	start := s
	if s.globals[name] {
		start = s.moduleScope()
	}
	for sc := start; sc != nil; sc = sc.parent {
		if sc.class && sc != start {
			continue
		}
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set binds name in the scope that owns it.
func (s *Scope) Set(name string, v any) {
	s.owner(name).vars[name] = v
}

// Delete unbinds name and reports whether it was bound.
func (s *Scope) Delete(name string) bool {
	o := s.owner(name)
	if _, ok := o.vars[name]; !ok {
		return false
	}
	delete(o.vars, name)
	return true
}

func (s *Scope) owner(name string) *Scope {
	switch {
	case s.globals[name]:
		return s.moduleScope()
	case s.nonlocals[name]:
		for sc := s.parent; sc != nil && !sc.module; sc = sc.parent {
			if sc.class {
				continue
			}
			if _, ok := sc.vars[name]; ok {
				return sc
			}
		}
	}
	return s
}

func (s *Scope) declareGlobal(name string) {
	if s.globals == nil {
		s.globals = make(map[string]bool)
	}
	s.globals[name] = true
}

// declareNonlocal fails when no enclosing function binds name.
func (s *Scope) declareNonlocal(name string) error {
	for sc := s.parent; sc != nil && !sc.module; sc = sc.parent {
		if sc.class {
			continue
		}
		if _, ok := sc.vars[name]; ok {
			if s.nonlocals == nil {
				s.nonlocals = make(map[string]bool)
			}
			s.nonlocals[name] = true
			return nil
		}
	}
	return newError(excNameError, "no binding for nonlocal '%s' found", name)
}
