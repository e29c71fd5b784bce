package script

import (
	"math"
	"strings"
	"unicode/utf8"
)

// === attributes ===

func (th *thread) getattr(obj any, name string) (any, error) {
	switch x := obj.(type) {
	case *Instance:
		if name == "__class__" {
			return x.Class, nil
		}
		if v, ok := x.Attrs[name]; ok {
			return v, nil
		}
		if v, _, ok := x.Class.lookup(name); ok {
			return th.bindAttr(x, v)
		}
		if g, _, ok := x.Class.lookup("__getattr__"); ok {
			return th.call(&BoundMethod{Self: x, Fn: g}, []any{name}, nil)
		}
		return nil, newError(excAttributeError, "'%s' object has no attribute '%s'", x.Class.Name, name)
	case *Class:
		switch name {
		case "__name__":
			return x.Name, nil
		case "__bases__":
			bases := make(Tuple, len(x.Bases))
			for i, b := range x.Bases {
				bases[i] = b
			}
			return bases, nil
		}
		if v, _, ok := x.lookup(name); ok {
			return v, nil
		}
		return nil, newError(excAttributeError, "type object '%s' has no attribute '%s'", x.Name, name)
	case *Module:
		if v, ok := x.Attrs[name]; ok {
			return v, nil
		}
		return nil, newError(excAttributeError, "module '%s' has no attribute '%s'", x.Name, name)
	case *superProxy:
		mro := x.Self.Class.mro()
		past := false
		for _, k := range mro {
			if past {
				if v, ok := k.Attrs[name]; ok {
					return th.bindAttr(x.Self, v)
				}
			}
			if k == x.Owner {
				past = true
			}
		}
		return nil, newError(excAttributeError, "'super' object has no attribute '%s'", name)
	case *Function:
		if name == "__name__" {
			return x.Name, nil
		}
	case *Builtin:
		if name == "__name__" {
			return x.Name, nil
		}
	}
	if m, ok := typeMethods(obj)[name]; ok {
		return &BoundMethod{Self: obj, Fn: m}, nil
	}
	return nil, newError(excAttributeError, "'%s' object has no attribute '%s'", typeName(obj), name)
}

func (th *thread) bindAttr(inst *Instance, v any) (any, error) {
	switch f := v.(type) {
	case *Function, *Builtin:
		return &BoundMethod{Self: inst, Fn: f}, nil
	case *Property:
		if f.Get == nil {
			return nil, newError(excAttributeError, "property of '%s' object has no getter", inst.Class.Name)
		}
		return f.Get(th, inst)
	}
	return v, nil
}

func (th *thread) setattr(obj any, name string, v any) error {
	switch x := obj.(type) {
	case *Instance:
		if p, _, ok := x.Class.lookup(name); ok {
			if prop, ok := p.(*Property); ok {
				if prop.Set == nil {
					return newError(excAttributeError, "property '%s' of '%s' object has no setter", name, x.Class.Name)
				}
				return prop.Set(th, x, v)
			}
		}
		x.Attrs[name] = v
		return nil
	case *Class:
		if x.Builtin {
			return newError(excTypeError, "cannot set '%s' attribute of immutable type '%s'", name, x.Name)
		}
		x.Attrs[name] = v
		return nil
	case *Module:
		x.Attrs[name] = v
		return nil
	}
	return newError(excAttributeError, "'%s' object has no attribute '%s'", typeName(obj), name)
}

// === items ===

func seqIndex(kind string, key any, n int) (int, error) {
	i, err := toInt(key)
	if err != nil {
		return 0, newError(excTypeError, "%s indices must be integers or slices, not %s", kind, typeName(key))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, newError(excIndexError, "%s index out of range", kind)
	}
	return int(i), nil
}

func keyError(k any) *Exception {
	inst := newInstance(excKeyError)
	inst.Attrs["args"] = Tuple{k}
	return &Exception{Value: inst}
}

func (th *thread) getitem(obj, key any) (any, error) {
	switch x := obj.(type) {
	case *List:
		i, err := seqIndex("list", key, len(x.Items))
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case Tuple:
		i, err := seqIndex("tuple", key, len(x))
		if err != nil {
			return nil, err
		}
		return x[i], nil
	case string:
		rs := []rune(x)
		i, err := seqIndex("string", key, len(rs))
		if err != nil {
			return nil, err
		}
		return string(rs[i]), nil
	case *Range:
		i, err := seqIndex("range object", key, int(x.Len()))
		if err != nil {
			return nil, err
		}
		return x.At(int64(i)), nil
	case *Dict:
		v, ok, err := x.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, keyError(key)
		}
		return v, nil
	case *Instance:
		if m, _, ok := x.Class.lookup("__getitem__"); ok {
			return th.call(&BoundMethod{Self: x, Fn: m}, []any{key}, nil)
		}
	}
	return nil, newError(excTypeError, "'%s' object is not subscriptable", typeName(obj))
}

func (th *thread) setitem(obj, key, v any) error {
	switch x := obj.(type) {
	case *List:
		i, err := seqIndex("list assignment", key, len(x.Items))
		if err != nil {
			return err
		}
		x.Items[i] = v
		return nil
	case *Dict:
		return x.Set(key, v)
	case *Instance:
		if m, _, ok := x.Class.lookup("__setitem__"); ok {
			_, err := th.call(&BoundMethod{Self: x, Fn: m}, []any{key, v}, nil)
			return err
		}
	}
	return newError(excTypeError, "'%s' object does not support item assignment", typeName(obj))
}

func (th *thread) delitem(obj, key any) error {
	switch x := obj.(type) {
	case *List:
		i, err := seqIndex("list assignment", key, len(x.Items))
		if err != nil {
			return err
		}
		x.Items = append(x.Items[:i], x.Items[i+1:]...)
		return nil
	case *Dict:
		_, ok, err := x.Delete(key)
		if err != nil {
			return err
		}
		if !ok {
			return keyError(key)
		}
		return nil
	}
	return newError(excTypeError, "'%s' object does not support item deletion", typeName(obj))
}

// sliceIndices resolves slice bounds against a sequence of length n and
// returns the selected positions.
func sliceIndices(n int, lo, hi, st any) ([]int, error) {
	step := int64(1)
	if st != nil {
		var err error
		if step, err = toInt(st); err != nil {
			return nil, newError(excTypeError, "slice indices must be integers or None")
		}
		if step == 0 {
			return nil, newError(excValueError, "slice step cannot be zero")
		}
	}
	size := int64(n)
	bound := func(v any, def int64) (int64, error) {
		if v == nil {
			return def, nil
		}
		x, err := toInt(v)
		if err != nil {
			return 0, newError(excTypeError, "slice indices must be integers or None")
		}
		if x < 0 {
			x += size
			if x < 0 {
				if step < 0 {
					return -1, nil
				}
				return 0, nil
			}
		}
		if x >= size {
			if step < 0 {
				return size - 1, nil
			}
			return size, nil
		}
		return x, nil
	}
	var start, stop int64
	var err error
	if step > 0 {
		if start, err = bound(lo, 0); err != nil {
			return nil, err
		}
		if stop, err = bound(hi, size); err != nil {
			return nil, err
		}
	} else {
		if start, err = bound(lo, size-1); err != nil {
			return nil, err
		}
		if stop, err = bound(hi, -1); err != nil {
			return nil, err
		}
	}
	var out []int
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, int(i))
	}
	return out, nil
}

func (th *thread) getslice(obj, lo, hi, step any) (any, error) {
	switch x := obj.(type) {
	case *List:
		idx, err := sliceIndices(len(x.Items), lo, hi, step)
		if err != nil {
			return nil, err
		}
		out := &List{Items: make([]any, 0, len(idx))}
		for _, i := range idx {
			out.Items = append(out.Items, x.Items[i])
		}
		return out, nil
	case Tuple:
		idx, err := sliceIndices(len(x), lo, hi, step)
		if err != nil {
			return nil, err
		}
		out := make(Tuple, 0, len(idx))
		for _, i := range idx {
			out = append(out, x[i])
		}
		return out, nil
	case string:
		rs := []rune(x)
		idx, err := sliceIndices(len(rs), lo, hi, step)
		if err != nil {
			return nil, err
		}
		out := make([]rune, 0, len(idx))
		for _, i := range idx {
			out = append(out, rs[i])
		}
		return string(out), nil
	case *Range:
		idx, err := sliceIndices(int(x.Len()), lo, hi, step)
		if err != nil {
			return nil, err
		}
		out := &List{Items: make([]any, 0, len(idx))}
		for _, i := range idx {
			out.Items = append(out.Items, x.At(int64(i)))
		}
		return out, nil
	}
	return nil, newError(excTypeError, "'%s' object is not subscriptable", typeName(obj))
}

func (th *thread) setslice(obj, lo, hi, step, v any) error {
	l, ok := obj.(*List)
	if !ok {
		return newError(excTypeError, "'%s' object does not support item assignment", typeName(obj))
	}
	items, err := th.collect(v)
	if err != nil {
		return err
	}
	idx, err := sliceIndices(len(l.Items), lo, hi, step)
	if err != nil {
		return err
	}
	if step == nil || step == int64(1) {
		n := len(l.Items)
		start, err := clampIndex(lo, n, 0)
		if err != nil {
			return err
		}
		stop, err := clampIndex(hi, n, n)
		if err != nil {
			return err
		}
		stop = max(stop, start)
		out := append([]any(nil), l.Items[:start]...)
		out = append(out, items...)
		l.Items = append(out, l.Items[stop:]...)
		return nil
	}
	if len(items) != len(idx) {
		return newError(excValueError, "attempt to assign sequence of size %d to extended slice of size %d", len(items), len(idx))
	}
	for i, j := range idx {
		l.Items[j] = items[i]
	}
	return nil
}

// clampIndex resolves a forward slice bound against length n.
func clampIndex(v any, n, def int) (int, error) {
	if v == nil {
		return def, nil
	}
	x, err := toInt(v)
	if err != nil {
		return 0, newError(excTypeError, "slice indices must be integers or None")
	}
	if x < 0 {
		x = max(x+int64(n), 0)
	}
	return int(min(x, int64(n))), nil
}

func (th *thread) delslice(obj, lo, hi, step any) error {
	l, ok := obj.(*List)
	if !ok {
		return newError(excTypeError, "'%s' object does not support item deletion", typeName(obj))
	}
	idx, err := sliceIndices(len(l.Items), lo, hi, step)
	if err != nil {
		return err
	}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	kept := l.Items[:0]
	for i, v := range l.Items {
		if !drop[i] {
			kept = append(kept, v)
		}
	}
	l.Items = kept
	return nil
}

// === iteration ===

// iterate returns a pull iterator over v. Lists are iterated live by index.
func (th *thread) iterate(v any) (func() (any, bool), error) {
	switch x := v.(type) {
	case *List:
		i := 0
		return func() (any, bool) {
			if i >= len(x.Items) {
				return nil, false
			}
			i++
			return x.Items[i-1], true
		}, nil
	case Tuple:
		return sliceIter(x), nil
	case string:
		rs := []rune(x)
		i := 0
		return func() (any, bool) {
			if i >= len(rs) {
				return nil, false
			}
			i++
			return string(rs[i-1]), true
		}, nil
	case *Dict:
		return sliceIter(x.Keys()), nil
	case *Range:
		i, n := int64(0), x.Len()
		return func() (any, bool) {
			if i >= n {
				return nil, false
			}
			i++
			return x.At(i - 1), true
		}, nil
	}
	return nil, newError(excTypeError, "'%s' object is not iterable", typeName(v))
}

func sliceIter(items []any) func() (any, bool) {
	i := 0
	return func() (any, bool) {
		if i >= len(items) {
			return nil, false
		}
		i++
		return items[i-1], true
	}
}

// collect materializes v into a fresh slice.
func (th *thread) collect(v any) ([]any, error) {
	switch x := v.(type) {
	case *List:
		return append([]any(nil), x.Items...), nil
	case Tuple:
		return append([]any(nil), x...), nil
	}
	next, err := th.iterate(v)
	if err != nil {
		return nil, err
	}
	var out []any
	for {
		item, ok := next()
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

// === numbers ===

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, newError(excTypeError, "'%s' object cannot be interpreted as an integer", typeName(v))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64, bool:
		return true
	}
	return false
}

var binopDunders = map[string][2]string{
	"+":  {"__add__", "__radd__"},
	"-":  {"__sub__", "__rsub__"},
	"*":  {"__mul__", "__rmul__"},
	"/":  {"__truediv__", "__rtruediv__"},
	"//": {"__floordiv__", "__rfloordiv__"},
	"%":  {"__mod__", "__rmod__"},
	"**": {"__pow__", "__rpow__"},
	"@":  {"__matmul__", "__rmatmul__"},
	"&":  {"__and__", "__rand__"},
	"|":  {"__or__", "__ror__"},
	"^":  {"__xor__", "__rxor__"},
	"<<": {"__lshift__", "__rlshift__"},
	">>": {"__rshift__", "__rrshift__"},
}

func (th *thread) binop(op string, a, b any) (any, error) {
	if isNumber(a) && isNumber(b) {
		return numericOp(op, a, b)
	}
	switch x := a.(type) {
	case string:
		switch op {
		case "+":
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		case "*":
			if n, err := toInt(b); err == nil {
				return strings.Repeat(x, int(max(n, 0))), nil
			}
		case "%":
			return th.printer().percentFormat(x, b)
		}
	case *List:
		switch op {
		case "+":
			if y, ok := b.(*List); ok {
				return &List{Items: append(append([]any(nil), x.Items...), y.Items...)}, nil
			}
		case "*":
			if n, err := toInt(b); err == nil {
				return &List{Items: repeat(x.Items, n)}, nil
			}
		}
	case Tuple:
		switch op {
		case "+":
			if y, ok := b.(Tuple); ok {
				return append(append(Tuple(nil), x...), y...), nil
			}
		case "*":
			if n, err := toInt(b); err == nil {
				return Tuple(repeat(x, n)), nil
			}
		}
	case *Dict:
		if y, ok := b.(*Dict); ok && op == "|" {
			out := x.Copy()
			for i, k := range y.keys {
				_ = out.Set(k, y.values[i])
			}
			return out, nil
		}
	case int64, bool:
		if op == "*" {
			n, _ := toInt(x)
			switch y := b.(type) {
			case string:
				return strings.Repeat(y, int(max(n, 0))), nil
			case *List:
				return &List{Items: repeat(y.Items, n)}, nil
			case Tuple:
				return Tuple(repeat(y, n)), nil
			}
		}
	}
	if names, ok := binopDunders[op]; ok {
		if inst, ok := a.(*Instance); ok {
			if m, _, ok := inst.Class.lookup(names[0]); ok {
				return th.call(&BoundMethod{Self: inst, Fn: m}, []any{b}, nil)
			}
		}
		if inst, ok := b.(*Instance); ok {
			if m, _, ok := inst.Class.lookup(names[1]); ok {
				return th.call(&BoundMethod{Self: inst, Fn: m}, []any{a}, nil)
			}
		}
	}
	return nil, newError(excTypeError, "unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(a), typeName(b))
}

func repeat(items []any, n int64) []any {
	var out []any
	for i := int64(0); i < n; i++ {
		out = append(out, items...)
	}
	return out
}

func (th *thread) inplace(op string, a, b any) (any, error) {
	if l, ok := a.(*List); ok && op == "+" {
		items, err := th.collect(b)
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, items...)
		return l, nil
	}
	return th.binop(op, a, b)
}

func numericOp(op string, a, b any) (any, error) {
	_, af := a.(float64)
	_, bf := b.(float64)
	if !af && !bf {
		x, _ := toInt(a)
		y, _ := toInt(b)
		return intOp(op, x, y)
	}
	x, _ := toFloat(a)
	y, _ := toFloat(b)
	return floatOp(op, x, y)
}

func intOp(op string, x, y int64) (any, error) {
	switch op {
	case "+":
		if (y > 0 && x > math.MaxInt64-y) || (y < 0 && x < math.MinInt64-y) {
			return nil, errIntOverflow()
		}
		return x + y, nil
	case "-":
		if (y < 0 && x > math.MaxInt64+y) || (y > 0 && x < math.MinInt64+y) {
			return nil, errIntOverflow()
		}
		return x - y, nil
	case "*":
		r, ok := mulInt(x, y)
		if !ok {
			return nil, errIntOverflow()
		}
		return r, nil
	case "/":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "division by zero")
		}
		return float64(x) / float64(y), nil
	case "//":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "integer division or modulo by zero")
		}
		if x == math.MinInt64 && y == -1 {
			return nil, errIntOverflow()
		}
		return floorDiv(x, y), nil
	case "%":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "integer modulo by zero")
		}
		if y == -1 {
			return int64(0), nil
		}
		return x - floorDiv(x, y)*y, nil
	case "**":
		if y < 0 {
			if x == 0 {
				return nil, newError(excZeroDivisionError, "0.0 cannot be raised to a negative power")
			}
			return math.Pow(float64(x), float64(y)), nil
		}
		r := int64(1)
		for base := x; y > 0; y >>= 1 {
			var ok bool
			if y&1 == 1 {
				if r, ok = mulInt(r, base); !ok {
					return nil, errIntOverflow()
				}
			}
			if y > 1 {
				if base, ok = mulInt(base, base); !ok {
					return nil, errIntOverflow()
				}
			}
		}
		return r, nil
	case "&":
		return x & y, nil
	case "|":
		return x | y, nil
	case "^":
		return x ^ y, nil
	case "<<":
		if y < 0 {
			return nil, newError(excValueError, "negative shift count")
		}
		if x == 0 {
			return int64(0), nil
		}
		if y >= 63 || (x<<uint(y))>>uint(y) != x {
			return nil, errIntOverflow()
		}
		return x << uint(y), nil
	case ">>":
		if y < 0 {
			return nil, newError(excValueError, "negative shift count")
		}
		return x >> uint(y), nil
	}
	return nil, newError(excTypeError, "unsupported operand type(s) for %s: 'int' and 'int'", op)
}

// mulInt multiplies two ints, reporting false when the product does not fit in 64 bits.
func mulInt(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	r := x * y
	if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	return r, true
}

func errIntOverflow() error {
	return newError(excOverflowError, "integer result too large for 64-bit int")
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func floatOp(op string, x, y float64) (any, error) {
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "float division by zero")
		}
		return x / y, nil
	case "//":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "float floor division by zero")
		}
		return math.Floor(x / y), nil
	case "%":
		if y == 0 {
			return nil, newError(excZeroDivisionError, "float modulo")
		}
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, nil
	case "**":
		if x == 0 && y < 0 {
			return nil, newError(excZeroDivisionError, "0.0 cannot be raised to a negative power")
		}
		return math.Pow(x, y), nil
	}
	return nil, newError(excTypeError, "unsupported operand type(s) for %s: 'float' and 'float'", op)
}

func (th *thread) unary(op string, v any) (any, error) {
	if op == "not" {
		return !truthy(v), nil
	}
	switch x := v.(type) {
	case bool, int64:
		n, _ := toInt(x)
		switch op {
		case "-":
			if n == math.MinInt64 {
				return nil, errIntOverflow()
			}
			return -n, nil
		case "+":
			return n, nil
		case "~":
			return ^n, nil
		}
	case float64:
		switch op {
		case "-":
			return -x, nil
		case "+":
			return x, nil
		}
	case *Instance:
		names := map[string]string{"-": "__neg__", "+": "__pos__", "~": "__invert__"}
		if m, _, ok := x.Class.lookup(names[op]); ok {
			return th.call(&BoundMethod{Self: x, Fn: m}, nil, nil)
		}
	}
	return nil, newError(excTypeError, "bad operand type for unary %s: '%s'", op, typeName(v))
}

// === comparison ===

func (th *thread) compare(op string, a, b any) (bool, error) {
	switch op {
	case "==":
		return th.equal(a, b)
	case "!=":
		eq, err := th.equal(a, b)
		return !eq, err
	case "<":
		return th.less(a, b, op)
	case ">":
		return th.less(b, a, op)
	case "<=", ">=":
		if op == ">=" {
			a, b = b, a
		}
		lt, err := th.less(a, b, op)
		if err != nil || lt {
			return lt, err
		}
		return th.equal(a, b)
	case "in":
		return th.contains(b, a)
	case "not in":
		in, err := th.contains(b, a)
		return !in, err
	case "is":
		return identical(a, b), nil
	case "is not":
		return !identical(a, b), nil
	}
	return false, newError(excRuntimeError, "unknown comparison %s", op)
}

func identical(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		y, ok := b.(int64)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case Tuple:
		y, ok := b.(Tuple)
		if !ok || len(x) != len(y) {
			return false
		}
		return len(x) == 0 || &x[0] == &y[0]
	}
	switch b.(type) {
	case nil, bool, int64, float64, string, Tuple:
		return false
	}
	return a == b
}

func (th *thread) equal(a, b any) (bool, error) {
	if isNumber(a) && isNumber(b) {
		_, af := a.(float64)
		_, bf := b.(float64)
		if !af && !bf {
			x, _ := toInt(a)
			y, _ := toInt(b)
			return x == y, nil
		}
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		return x == y, nil
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y, nil
	case Tuple:
		y, ok := b.(Tuple)
		if !ok {
			return false, nil
		}
		return th.equalSeq(x, y)
	case *List:
		y, ok := b.(*List)
		if !ok {
			return false, nil
		}
		return th.equalSeq(x.Items, y.Items)
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false, nil
		}
		for i, k := range x.keys {
			v, found, err := y.Get(k)
			if err != nil || !found {
				return false, err
			}
			if eq, err := th.equal(x.values[i], v); err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *Range:
		y, ok := b.(*Range)
		return ok && *x == *y, nil
	case *Instance:
		if m, _, ok := x.Class.lookup("__eq__"); ok {
			if _, user := m.(*Function); user {
				v, err := th.call(&BoundMethod{Self: x, Fn: m}, []any{b}, nil)
				return truthy(v), err
			}
		}
	}
	return identical(a, b), nil
}

func (th *thread) equalSeq(x, y []any) (bool, error) {
	if len(x) != len(y) {
		return false, nil
	}
	for i := range x {
		if eq, err := th.equal(x[i], y[i]); err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// less reports a < b. op names the operator the caller evaluates, for errors.
func (th *thread) less(a, b any, op string) (bool, error) {
	if isNumber(a) && isNumber(b) {
		_, af := a.(float64)
		_, bf := b.(float64)
		if !af && !bf {
			x, _ := toInt(a)
			y, _ := toInt(b)
			return x < y, nil
		}
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		return x < y, nil
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return x < y, nil
		}
	case Tuple:
		if y, ok := b.(Tuple); ok {
			return th.lessSeq(x, y, op)
		}
	case *List:
		if y, ok := b.(*List); ok {
			return th.lessSeq(x.Items, y.Items, op)
		}
	case *Instance:
		if m, _, ok := x.Class.lookup("__lt__"); ok {
			v, err := th.call(&BoundMethod{Self: x, Fn: m}, []any{b}, nil)
			return truthy(v), err
		}
	}
	l, r := a, b
	if op == ">" || op == ">=" {
		l, r = b, a
	}
	return false, newError(excTypeError, "'%s' not supported between instances of '%s' and '%s'", op, typeName(l), typeName(r))
}

func (th *thread) lessSeq(x, y []any, op string) (bool, error) {
	for i := 0; i < len(x) && i < len(y); i++ {
		eq, err := th.equal(x[i], y[i])
		if err != nil {
			return false, err
		}
		if !eq {
			return th.less(x[i], y[i], op)
		}
	}
	return len(x) < len(y), nil
}

func (th *thread) contains(container, item any) (bool, error) {
	switch x := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, newError(excTypeError, "'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(x, s), nil
	case *List:
		return th.containsSeq(x.Items, item)
	case Tuple:
		return th.containsSeq(x, item)
	case *Dict:
		_, ok, err := x.Get(item)
		return ok, err
	case *Range:
		n, err := toInt(item)
		if err != nil {
			return false, nil
		}
		if x.Len() == 0 {
			return false, nil
		}
		last := x.At(x.Len() - 1)
		lo, hi := min(x.Start, last), max(x.Start, last)
		return n >= lo && n <= hi && (n-x.Start)%x.Step == 0, nil
	case *Instance:
		if m, _, ok := x.Class.lookup("__contains__"); ok {
			v, err := th.call(&BoundMethod{Self: x, Fn: m}, []any{item}, nil)
			return truthy(v), err
		}
	}
	return false, newError(excTypeError, "argument of type '%s' is not iterable", typeName(container))
}

func (th *thread) containsSeq(items []any, item any) (bool, error) {
	for _, v := range items {
		eq, err := th.equal(v, item)
		if err != nil {
			return false, err
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

func runeLen(s string) int64 { return int64(utf8.RuneCountInString(s)) }
