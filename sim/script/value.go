package script

import (
	"fmt"
	"sort"

	"github.com/netsandbox/netsandbox/sim/script/syntax"
)

// Script values are plain Go values: nil (None), bool, int64, float64, string,
// Tuple, and the pointer types declared below.

// Tuple is an immutable sequence.
type Tuple []any

// List is a mutable sequence.
type List struct {
	Items []any
}

// Range is a lazy arithmetic progression.
type Range struct {
	Start, Stop, Step int64
}

func (r *Range) Len() int64 {
	switch {
	case r.Step > 0 && r.Start < r.Stop:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Start > r.Stop:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

func (r *Range) At(i int64) int64 { return r.Start + i*r.Step }

// Dict is an insertion-ordered mapping.
type Dict struct {
	keys   []any
	values []any
	index  map[any]int
}

func NewDict() *Dict {
	return &Dict{index: make(map[any]int)}
}

func (d *Dict) Len() int { return len(d.keys) }

func (d *Dict) Get(k any) (any, bool, error) {
	hk, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[hk]
	if !ok {
		return nil, false, nil
	}
	return d.values[i], true, nil
}

func (d *Dict) Set(k, v any) error {
	hk, err := hashKey(k)
	if err != nil {
		return err
	}
	if i, ok := d.index[hk]; ok {
		d.values[i] = v
		return nil
	}
	d.index[hk] = len(d.keys)
	d.keys = append(d.keys, k)
	d.values = append(d.values, v)
	return nil
}

func (d *Dict) Delete(k any) (any, bool, error) {
	hk, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	i, ok := d.index[hk]
	if !ok {
		return nil, false, nil
	}
	v := d.values[i]
	d.keys = append(d.keys[:i], d.keys[i+1:]...)
	d.values = append(d.values[:i], d.values[i+1:]...)
	delete(d.index, hk)
	for j := i; j < len(d.keys); j++ {
		hj, _ := hashKey(d.keys[j])
		d.index[hj] = j
	}
	return v, true, nil
}

func (d *Dict) Keys() []any { return append([]any(nil), d.keys...) }

func (d *Dict) Values() []any { return append([]any(nil), d.values...) }

func (d *Dict) Clear() {
	d.keys, d.values = nil, nil
	d.index = make(map[any]int)
}

func (d *Dict) Copy() *Dict {
	c := NewDict()
	for i, k := range d.keys {
		_ = c.Set(k, d.values[i])
	}
	return c
}

type tupleKey string

// hashKey maps a hashable value to a comparable Go key. Numerically equal
// ints, floats and bools share a key.
func hashKey(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int64:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if x == float64(int64(x)) {
			return int64(x), nil
		}
		return x, nil
	case Tuple:
		for _, e := range x {
			if _, err := hashKey(e); err != nil {
				return nil, err
			}
		}
		return tupleKey(repr(x)), nil
	case *List, *Dict:
		return nil, newError(excTypeError, "unhashable type: '%s'", typeName(v))
	}
	return v, nil
}

// Function is a user-defined function or lambda.
type Function struct {
	Name     string
	Params   []syntax.Param
	Defaults []any // parallel to Params; unset marks a parameter without default
	Body     []syntax.Stmt
	Lambda   syntax.Expr
	Async    bool
	Closure  *Scope
	Owner    *Class // class whose body defined the function, for super()
}

type unsetType struct{}

// unset marks an absent default or argument. It never escapes into scripts.
var unset any = unsetType{}

// BoundMethod is a callable bound to its receiver.
type BoundMethod struct {
	Self any
	Fn   any
}

// BuiltinFunc is the Go implementation of a builtin.
type BuiltinFunc func(th *thread, args []any, kw map[string]any) (any, error)

// Builtin is a Go-implemented callable. When TypeCheck is set the builtin
// also acts as a type for isinstance.
type Builtin struct {
	Name      string
	Fn        BuiltinFunc
	TypeCheck func(v any) bool
	Async     bool // Fn returns a *Coroutine
}

// Property is a computed attribute stored on a class.
type Property struct {
	Get func(th *thread, self *Instance) (any, error)
	Set func(th *thread, self *Instance, v any) error
}

// Class is a user-defined or builtin class.
type Class struct {
	Name    string
	Bases   []*Class
	Attrs   map[string]any
	Builtin bool // builtin classes are shared between sessions and read-only
}

func newBuiltinClass(name string, bases ...*Class) *Class {
	return &Class{Name: name, Bases: bases, Attrs: make(map[string]any), Builtin: true}
}

// mro returns the class followed by its ancestors, depth first, left to right,
// without repeats.
func (c *Class) mro() []*Class {
	var out []*Class
	seen := map[*Class]bool{}
	var walk func(*Class)
	walk = func(k *Class) {
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
		for _, b := range k.Bases {
			walk(b)
		}
	}
	walk(c)
	return out
}

func (c *Class) lookup(name string) (any, *Class, bool) {
	for _, k := range c.mro() {
		if v, ok := k.Attrs[name]; ok {
			return v, k, true
		}
	}
	return nil, nil, false
}

// IsSubclass reports whether c is base or derives from it.
func (c *Class) IsSubclass(base *Class) bool {
	for _, k := range c.mro() {
		if k == base {
			return true
		}
	}
	return false
}

// Instance is an object of a Class. Native carries Go state for builtin
// classes such as Endpoint.
type Instance struct {
	Class  *Class
	Attrs  map[string]any
	Native any
}

func newInstance(c *Class) *Instance {
	return &Instance{Class: c, Attrs: make(map[string]any)}
}

// Module is an importable namespace.
type Module struct {
	Name  string
	Attrs map[string]any
}

// superProxy resolves attributes past Owner in the receiver's MRO.
type superProxy struct {
	Owner *Class
	Self  *Instance
}

func typeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case Tuple:
		return "tuple"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case *Range:
		return "range"
	case *Function:
		return "function"
	case *BoundMethod:
		return "method"
	case *Builtin:
		return "builtin_function_or_method"
	case *Coroutine:
		return "coroutine"
	case *Class:
		return "type"
	case *Module:
		return "module"
	case *Instance:
		return x.Class.Name
	case *superProxy:
		return "super"
	}
	return fmt.Sprintf("%T", v)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case Tuple:
		return len(x) > 0
	case *List:
		return len(x.Items) > 0
	case *Dict:
		return x.Len() > 0
	case *Range:
		return x.Len() > 0
	}
	return true
}

// sortedStrings returns the keys of m in order.
func sortedStrings[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
