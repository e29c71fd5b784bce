package script

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

func builtin(name string, fn BuiltinFunc) *Builtin {
	return &Builtin{Name: name, Fn: fn}
}

func typeBuiltin(name string, check func(v any) bool, fn BuiltinFunc) *Builtin {
	return &Builtin{Name: name, Fn: fn, TypeCheck: check}
}

// asyncBuiltin wraps fn so that calling the builtin returns a coroutine that
// runs fn on the awaiting thread.
func asyncBuiltin(name string, fn BuiltinFunc) *Builtin {
	b := &Builtin{Name: name, Async: true}
	b.Fn = func(th *thread, args []any, kw map[string]any) (any, error) {
		return &Coroutine{name: name, rt: th.rt, run: func(th *thread) (any, error) {
			return fn(th, args, kw)
		}}, nil
	}
	return b
}

var objectClass = newBuiltinClass("object")

// newBuiltins returns the names visible to every script.
func newBuiltins() map[string]any {
	b := map[string]any{
		"None":  nil,
		"True":  true,
		"False": false,

		"object": objectClass,
		"int": typeBuiltin("int", func(v any) bool {
			switch v.(type) {
			case int64, bool:
				return true
			}
			return false
		}, builtinInt),
		"float": typeBuiltin("float", func(v any) bool { _, ok := v.(float64); return ok }, builtinFloat),
		"str":   typeBuiltin("str", func(v any) bool { _, ok := v.(string); return ok }, builtinStr),
		"bool":  typeBuiltin("bool", func(v any) bool { _, ok := v.(bool); return ok }, builtinBool),
		"list":  typeBuiltin("list", func(v any) bool { _, ok := v.(*List); return ok }, builtinList),
		"tuple": typeBuiltin("tuple", func(v any) bool { _, ok := v.(Tuple); return ok }, builtinTuple),
		"dict":  typeBuiltin("dict", func(v any) bool { _, ok := v.(*Dict); return ok }, builtinDict),
		"range": typeBuiltin("range", func(v any) bool { _, ok := v.(*Range); return ok }, builtinRange),

		"print":      builtin("print", builtinPrint),
		"len":        builtin("len", builtinLen),
		"repr":       builtin("repr", builtinRepr),
		"abs":        builtin("abs", builtinAbs),
		"min":        builtin("min", func(th *thread, args []any, kw map[string]any) (any, error) { return extremum(th, "min", args, kw, false) }),
		"max":        builtin("max", func(th *thread, args []any, kw map[string]any) (any, error) { return extremum(th, "max", args, kw, true) }),
		"sum":        builtin("sum", builtinSum),
		"sorted":     builtin("sorted", builtinSorted),
		"reversed":   builtin("reversed", builtinReversed),
		"enumerate":  builtin("enumerate", builtinEnumerate),
		"zip":        builtin("zip", builtinZip),
		"map":        builtin("map", builtinMap),
		"filter":     builtin("filter", builtinFilter),
		"any":        builtin("any", func(th *thread, args []any, kw map[string]any) (any, error) { return anyAll(th, "any", args, kw, true) }),
		"all":        builtin("all", func(th *thread, args []any, kw map[string]any) (any, error) { return anyAll(th, "all", args, kw, false) }),
		"isinstance": builtin("isinstance", builtinIsinstance),
		"issubclass": builtin("issubclass", builtinIssubclass),
		"round":      builtin("round", builtinRound),
		"divmod":     builtin("divmod", builtinDivmod),
		"ord":        builtin("ord", builtinOrd),
		"chr":        builtin("chr", builtinChr),
		"getattr":    builtin("getattr", builtinGetattr),
		"setattr":    builtin("setattr", builtinSetattr),
		"hasattr":    builtin("hasattr", builtinHasattr),
		"callable":   builtin("callable", builtinCallable),
		"super":      builtin("super", builtinSuper),
		"type":       builtin("type", builtinType),

		"sleep":         asyncBuiltin("sleep", builtinSleep),
		"get_time":      builtin("get_time", builtinGetTime),
		"get_node_name": builtin("get_node_name", builtinGetNodeName),

		"BaseMessage": baseMessageClass,
		"Endpoint":    endpointClass,
		"Color":       colorClass,
	}
	for _, c := range exceptionClasses {
		b[c.Name] = c
	}
	return b
}

func builtinInt(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("int", args, kw)
	if err := a.count(0, 2, "base"); err != nil {
		return nil, err
	}
	v := a.get(0, "x", int64(0))
	base, err := a.int(1, "base", 10)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		return toInt(x)
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, newError(excValueError, "cannot convert float %s to integer", formatFloat(x))
		}
		return int64(x), nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), "_", "")
		if base == 0 || base == 16 || base == 8 || base == 2 {
			lower := strings.ToLower(strings.TrimLeft(s, "+-"))
			prefixed := len(lower) > 1 && lower[0] == '0' && strings.ContainsRune("xob", rune(lower[1]))
			if base == 0 && !prefixed {
				base = 10
			}
			if prefixed {
				s = s[:len(s)-len(lower)] + lower[2:]
				if base == 0 {
					base = map[byte]int64{'x': 16, 'o': 8, 'b': 2}[lower[1]]
				}
			}
		}
		n, err := strconv.ParseInt(s, int(base), 64)
		if err != nil {
			return nil, newError(excValueError, "invalid literal for int() with base %d: %s", base, quote(x))
		}
		return n, nil
	}
	return nil, newError(excTypeError, "int() argument must be a string or a real number, not '%s'", typeName(v))
}

func builtinFloat(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("float", args, kw)
	if err := a.count(0, 1); err != nil {
		return nil, err
	}
	v := a.get(0, "x", 0.0)
	if s, ok := v.(string); ok {
		t := strings.ToLower(strings.TrimSpace(s))
		switch strings.TrimLeft(t, "+-") {
		case "inf", "infinity":
			if strings.HasPrefix(t, "-") {
				return math.Inf(-1), nil
			}
			return math.Inf(1), nil
		case "nan":
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(t, "_", ""), 64)
		if err != nil {
			return nil, newError(excValueError, "could not convert string to float: %s", quote(s))
		}
		return f, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, newError(excTypeError, "float() argument must be a string or a real number, not '%s'", typeName(v))
	}
	return f, nil
}

func builtinStr(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("str", args, kw)
	if err := a.count(0, 1); err != nil {
		return nil, err
	}
	return th.printer().str(a.get(0, "object", ""))
}

func builtinBool(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("bool", args, kw)
	if err := a.count(0, 1); err != nil {
		return nil, err
	}
	return truthy(a.get(0, "x", false)), nil
}

func builtinList(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("list", args, kw)
	if err := a.count(0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return &List{}, nil
	}
	items, err := th.collect(args[0])
	return &List{Items: items}, err
}

func builtinTuple(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("tuple", args, kw)
	if err := a.count(0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Tuple{}, nil
	}
	items, err := th.collect(args[0])
	return Tuple(items), err
}

func builtinDict(th *thread, args []any, kw map[string]any) (any, error) {
	if len(args) > 1 {
		return nil, newError(excTypeError, "dict expected at most 1 argument, got %d", len(args))
	}
	d := NewDict()
	if len(args) == 1 {
		if err := dictUpdate(th, d, args[0]); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedStrings(kw) {
		if err := d.Set(k, kw[k]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func dictUpdate(th *thread, d *Dict, src any) error {
	if other, ok := src.(*Dict); ok {
		for i, k := range other.keys {
			if err := d.Set(k, other.values[i]); err != nil {
				return err
			}
		}
		return nil
	}
	items, err := th.collect(src)
	if err != nil {
		return err
	}
	for i, item := range items {
		pair, err := th.collect(item)
		if err != nil || len(pair) != 2 {
			return newError(excValueError, "dictionary update sequence element #%d has wrong length", i)
		}
		if err := d.Set(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func builtinRange(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("range", args, kw)
	if err := a.count(1, 3); err != nil {
		return nil, err
	}
	nums := make([]int64, len(args))
	for i, v := range args {
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	r := &Range{Step: 1}
	switch len(nums) {
	case 1:
		r.Stop = nums[0]
	case 2:
		r.Start, r.Stop = nums[0], nums[1]
	case 3:
		r.Start, r.Stop, r.Step = nums[0], nums[1], nums[2]
		if r.Step == 0 {
			return nil, newError(excValueError, "range() arg 3 must not be zero")
		}
	}
	return r, nil
}

// joinArgs renders print-style arguments.
func joinArgs(th *thread, name string, args []any, kw map[string]any) (string, error) {
	a := parseArgs(name, nil, kw)
	if err := a.count(0, 0, "sep", "end", "file", "flush"); err != nil {
		return "", err
	}
	sep, end := " ", "\n"
	if v, ok := kw["sep"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return "", newError(excTypeError, "sep must be None or a string, not %s", typeName(v))
		}
		sep = s
	}
	if v, ok := kw["end"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return "", newError(excTypeError, "end must be None or a string, not %s", typeName(v))
		}
		end = s
	}
	p := th.printer()
	parts := make([]string, len(args))
	for i, v := range args {
		s, err := p.str(v)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep) + end, nil
}

func builtinPrint(th *thread, args []any, kw map[string]any) (any, error) {
	text, err := joinArgs(th, "print", args, kw)
	if err != nil {
		return nil, err
	}
	logrus.WithField("node", th.owner()).Info(strings.TrimSuffix(text, "\n"))
	return nil, nil
}

func builtinLen(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("len", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case string:
		return runeLen(x), nil
	case *List:
		return int64(len(x.Items)), nil
	case Tuple:
		return int64(len(x)), nil
	case *Dict:
		return int64(x.Len()), nil
	case *Range:
		return x.Len(), nil
	case *Instance:
		if m, _, ok := x.Class.lookup("__len__"); ok {
			return th.call(&BoundMethod{Self: x, Fn: m}, nil, nil)
		}
	}
	return nil, newError(excTypeError, "object of type '%s' has no len()", typeName(args[0]))
}

func builtinRepr(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("repr", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	return th.printer().repr(args[0])
}

func builtinAbs(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("abs", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case bool:
		return toInt(x)
	case float64:
		return math.Abs(x), nil
	}
	return nil, newError(excTypeError, "bad operand type for abs(): '%s'", typeName(args[0]))
}

func extremum(th *thread, name string, args []any, kw map[string]any, wantMax bool) (any, error) {
	a := parseArgs(name, args, kw)
	if err := a.count(1, -1, "key", "default"); err != nil {
		return nil, err
	}
	items := args
	if len(args) == 1 {
		var err error
		if items, err = th.collect(args[0]); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		if def, ok := kw["default"]; ok {
			return def, nil
		}
		return nil, newError(excValueError, "%s() arg is an empty sequence", name)
	}
	key := kw["key"]
	keyOf := func(v any) (any, error) {
		if key == nil {
			return v, nil
		}
		return th.call(key, []any{v}, nil)
	}
	best := items[0]
	bestKey, err := keyOf(best)
	if err != nil {
		return nil, err
	}
	for _, v := range items[1:] {
		k, err := keyOf(v)
		if err != nil {
			return nil, err
		}
		var better bool
		if wantMax {
			better, err = th.less(bestKey, k, ">")
		} else {
			better, err = th.less(k, bestKey, "<")
		}
		if err != nil {
			return nil, err
		}
		if better {
			best, bestKey = v, k
		}
	}
	return best, nil
}

func builtinSum(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("sum", args, kw)
	if err := a.count(1, 2, "start"); err != nil {
		return nil, err
	}
	items, err := th.collect(args[0])
	if err != nil {
		return nil, err
	}
	total := a.get(1, "start", int64(0))
	if _, isStr := total.(string); isStr {
		return nil, newError(excTypeError, "sum() can't sum strings [use ''.join(seq) instead]")
	}
	for _, v := range items {
		if total, err = th.binop("+", total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// sortItems sorts items in place, stable, by key with optional reversal.
func sortItems(th *thread, items []any, key any, reverse bool) error {
	keys := items
	if key != nil {
		keys = make([]any, len(items))
		for i, v := range items {
			k, err := th.call(key, []any{v}, nil)
			if err != nil {
				return err
			}
			keys[i] = k
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var firstErr error
	sort.SliceStable(idx, func(i, j int) bool {
		if firstErr != nil {
			return false
		}
		a, b := keys[idx[i]], keys[idx[j]]
		if reverse {
			a, b = b, a
		}
		lt, err := th.less(a, b, "<")
		if err != nil {
			firstErr = err
		}
		return lt
	})
	if firstErr != nil {
		return firstErr
	}
	sorted := make([]any, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
	return nil
}

func builtinSorted(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("sorted", args, kw).count(1, 1, "key", "reverse"); err != nil {
		return nil, err
	}
	items, err := th.collect(args[0])
	if err != nil {
		return nil, err
	}
	if err := sortItems(th, items, kw["key"], truthy(kw["reverse"])); err != nil {
		return nil, err
	}
	return &List{Items: items}, nil
}

func builtinReversed(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("reversed", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	items, err := th.collect(args[0])
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return &List{Items: items}, nil
}

func builtinEnumerate(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("enumerate", args, kw)
	if err := a.count(1, 2, "start"); err != nil {
		return nil, err
	}
	start, err := a.int(1, "start", 0)
	if err != nil {
		return nil, err
	}
	items, err := th.collect(args[0])
	if err != nil {
		return nil, err
	}
	out := &List{Items: make([]any, len(items))}
	for i, v := range items {
		out.Items[i] = Tuple{start + int64(i), v}
	}
	return out, nil
}

func builtinZip(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("zip", args, kw).count(0, -1); err != nil {
		return nil, err
	}
	cols := make([][]any, len(args))
	n := -1
	for i, v := range args {
		items, err := th.collect(v)
		if err != nil {
			return nil, err
		}
		cols[i] = items
		if n < 0 || len(items) < n {
			n = len(items)
		}
	}
	out := &List{}
	for i := 0; i < n; i++ {
		row := make(Tuple, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		out.Items = append(out.Items, row)
	}
	return out, nil
}

func builtinMap(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("map", args, kw).count(2, 2); err != nil {
		return nil, err
	}
	items, err := th.collect(args[1])
	if err != nil {
		return nil, err
	}
	out := &List{Items: make([]any, len(items))}
	for i, v := range items {
		if out.Items[i], err = th.call(args[0], []any{v}, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func builtinFilter(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("filter", args, kw).count(2, 2); err != nil {
		return nil, err
	}
	items, err := th.collect(args[1])
	if err != nil {
		return nil, err
	}
	out := &List{}
	for _, v := range items {
		keep := v
		if args[0] != nil {
			if keep, err = th.call(args[0], []any{v}, nil); err != nil {
				return nil, err
			}
		}
		if truthy(keep) {
			out.Items = append(out.Items, v)
		}
	}
	return out, nil
}

func anyAll(th *thread, name string, args []any, kw map[string]any, want bool) (any, error) {
	if err := parseArgs(name, args, kw).count(1, 1); err != nil {
		return nil, err
	}
	items, err := th.collect(args[0])
	if err != nil {
		return nil, err
	}
	for _, v := range items {
		if truthy(v) == want {
			return want, nil
		}
	}
	return !want, nil
}

// isInstanceOf reports whether v is an instance of classinfo.
func isInstanceOf(v, classinfo any) (bool, error) {
	switch c := classinfo.(type) {
	case *Class:
		if inst, ok := v.(*Instance); ok {
			return inst.Class.IsSubclass(c), nil
		}
		return c == objectClass, nil
	case *Builtin:
		if c.TypeCheck != nil {
			return c.TypeCheck(v), nil
		}
	case Tuple:
		for _, t := range c {
			ok, err := isInstanceOf(v, t)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, newError(excTypeError, "isinstance() arg 2 must be a type, a tuple of types, or a union")
}

func builtinIsinstance(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("isinstance", args, kw).count(2, 2); err != nil {
		return nil, err
	}
	return isInstanceOf(args[0], args[1])
}

func builtinIssubclass(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("issubclass", args, kw).count(2, 2); err != nil {
		return nil, err
	}
	c, ok := args[0].(*Class)
	if !ok {
		return nil, newError(excTypeError, "issubclass() arg 1 must be a class")
	}
	bases := []any{args[1]}
	if t, ok := args[1].(Tuple); ok {
		bases = t
	}
	for _, b := range bases {
		base, ok := b.(*Class)
		if !ok {
			return nil, newError(excTypeError, "issubclass() arg 2 must be a class, a tuple of classes, or a union")
		}
		if c.IsSubclass(base) {
			return true, nil
		}
	}
	return false, nil
}

func builtinRound(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("round", args, kw)
	if err := a.count(1, 2, "ndigits"); err != nil {
		return nil, err
	}
	nd := a.get(1, "ndigits", nil)
	x := args[0]
	if !isNumber(x) {
		return nil, newError(excTypeError, "type %s doesn't define __round__ method", typeName(x))
	}
	if nd == nil {
		if n, err := toInt(x); err == nil {
			return n, nil
		}
		f := x.(float64)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, newError(excValueError, "cannot convert float %s to integer", formatFloat(f))
		}
		return int64(math.RoundToEven(f)), nil
	}
	digits, err := toInt(nd)
	if err != nil {
		return nil, err
	}
	if n, err := toInt(x); err == nil {
		if digits >= 0 {
			return n, nil
		}
		p := int64(math.Pow(10, float64(-digits)))
		return int64(math.RoundToEven(float64(n)/float64(p))) * p, nil
	}
	f := x.(float64)
	s := strconv.FormatFloat(f, 'f', int(max(digits, 0)), 64)
	if digits < 0 {
		p := math.Pow(10, float64(-digits))
		return math.RoundToEven(f/p) * p, nil
	}
	r, _ := strconv.ParseFloat(s, 64)
	return r, nil
}

func builtinDivmod(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("divmod", args, kw).count(2, 2); err != nil {
		return nil, err
	}
	q, err := th.binop("//", args[0], args[1])
	if err != nil {
		return nil, err
	}
	r, err := th.binop("%", args[0], args[1])
	if err != nil {
		return nil, err
	}
	return Tuple{q, r}, nil
}

func builtinOrd(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("ord", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok || runeLen(s) != 1 {
		return nil, newError(excTypeError, "ord() expected a character")
	}
	return int64([]rune(s)[0]), nil
}

func builtinChr(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("chr", args, kw)
	if err := a.count(1, 1); err != nil {
		return nil, err
	}
	n, err := a.int(0, "i", 0)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > 0x10ffff {
		return nil, newError(excValueError, "chr() arg not in range(0x110000)")
	}
	return string(rune(n)), nil
}

func builtinGetattr(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("getattr", args, kw)
	if err := a.count(2, 3); err != nil {
		return nil, err
	}
	name, err := a.str(1, "name", "")
	if err != nil {
		return nil, err
	}
	v, err := th.getattr(args[0], name)
	if err != nil && len(args) == 3 {
		if exc, ok := err.(*Exception); ok && exc.Value.Class.IsSubclass(excAttributeError) {
			return args[2], nil
		}
	}
	return v, err
}

func builtinSetattr(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("setattr", args, kw)
	if err := a.count(3, 3); err != nil {
		return nil, err
	}
	name, err := a.str(1, "name", "")
	if err != nil {
		return nil, err
	}
	return nil, th.setattr(args[0], name, args[2])
}

func builtinHasattr(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("hasattr", args, kw)
	if err := a.count(2, 2); err != nil {
		return nil, err
	}
	name, err := a.str(1, "name", "")
	if err != nil {
		return nil, err
	}
	if _, err := th.getattr(args[0], name); err != nil {
		if exc, ok := err.(*Exception); ok && exc.Value.Class.IsSubclass(excAttributeError) {
			return false, nil
		}
		return nil, err
	}
	return true, nil
}

func builtinCallable(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("callable", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case *Function, *BoundMethod, *Builtin, *Class:
		return true, nil
	case *Instance:
		_, _, ok := x.Class.lookup("__call__")
		return ok, nil
	}
	return false, nil
}

func builtinSuper(th *thread, args []any, kw map[string]any) (any, error) {
	if len(args) == 2 {
		owner, ok1 := args[0].(*Class)
		self, ok2 := args[1].(*Instance)
		if ok1 && ok2 {
			return &superProxy{Owner: owner, Self: self}, nil
		}
		return nil, newError(excTypeError, "super() argument 1 must be a type")
	}
	if n := len(th.frames); n > 0 {
		f := th.frames[n-1]
		if f.fn != nil && f.fn.Owner != nil && len(f.fn.Params) > 0 {
			if self, ok := f.scope.vars[f.fn.Params[0].Name].(*Instance); ok {
				return &superProxy{Owner: f.fn.Owner, Self: self}, nil
			}
		}
	}
	return nil, newError(excRuntimeError, "super(): no arguments")
}

func builtinType(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("type", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	if inst, ok := args[0].(*Instance); ok {
		return inst.Class, nil
	}
	if b, ok := th.rt.builtins.vars[typeName(args[0])].(*Builtin); ok && b.TypeCheck != nil {
		return b, nil
	}
	return typeName(args[0]), nil
}

func builtinSleep(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("sleep", args, kw)
	if err := a.count(1, 1); err != nil {
		return nil, err
	}
	d, err := a.float(0, "time", 0)
	if err != nil {
		return nil, err
	}
	return nil, th.rt.session.Sleep(th.task, d)
}

func builtinGetTime(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("get_time", args, kw).count(0, 0); err != nil {
		return nil, err
	}
	return th.rt.session.Now(), nil
}

func builtinGetNodeName(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("get_node_name", args, kw).count(1, 1); err != nil {
		return nil, err
	}
	if inst, ok := args[0].(*Instance); ok {
		if e := nativeEndpoint(inst); e != nil {
			return e.DisplayName(), nil
		}
	}
	id, ok := args[0].(string)
	if !ok {
		return nil, keyError(args[0])
	}
	e := th.rt.session.Endpoint(id)
	if e == nil {
		return nil, keyError(id)
	}
	return e.DisplayName(), nil
}
