package script

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/netsandbox/netsandbox/sim"
)

// importModule resolves an importable module by name.
func (rt *Runtime) importModule(name string) (*Module, error) {
	if m, ok := rt.modules[name]; ok {
		return m, nil
	}
	return nil, newError(excModuleNotFound, "No module named '%s'", name)
}

func newModules() map[string]*Module {
	return map[string]*Module{
		"random":  randomModule(),
		"math":    mathModule(),
		"json":    jsonModule(),
		"asyncio": asyncioModule(),
	}
}

// === random ===

// Every node draws from its own deterministic stream, so runs with the same
// seed are reproducible regardless of how other nodes use randomness.
func randomModule() *Module {
	return &Module{Name: "random", Attrs: map[string]any{
		"random": builtin("random", func(th *thread, args []any, kw map[string]any) (any, error) {
			if err := parseArgs("random", args, kw).count(0, 0); err != nil {
				return nil, err
			}
			return th.rng().Float64(), nil
		}),
		"uniform": builtin("uniform", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("uniform", args, kw)
			if err := a.count(2, 2); err != nil {
				return nil, err
			}
			lo, err := a.float(0, "a", 0)
			if err != nil {
				return nil, err
			}
			hi, err := a.float(1, "b", 0)
			if err != nil {
				return nil, err
			}
			return lo + (hi-lo)*th.rng().Float64(), nil
		}),
		"randint": builtin("randint", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("randint", args, kw)
			if err := a.count(2, 2); err != nil {
				return nil, err
			}
			lo, err := a.int(0, "a", 0)
			if err != nil {
				return nil, err
			}
			hi, err := a.int(1, "b", 0)
			if err != nil {
				return nil, err
			}
			if hi < lo {
				return nil, newError(excValueError, "empty range in randrange(%d, %d)", lo, hi+1)
			}
			return lo + th.rng().Int63n(hi-lo+1), nil
		}),
		"randrange": builtin("randrange", randrange),
		"choice": builtin("choice", func(th *thread, args []any, kw map[string]any) (any, error) {
			if err := parseArgs("choice", args, kw).count(1, 1); err != nil {
				return nil, err
			}
			items, err := th.collect(args[0])
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, newError(excIndexError, "Cannot choose from an empty sequence")
			}
			return items[th.rng().Intn(len(items))], nil
		}),
		"shuffle": builtin("shuffle", func(th *thread, args []any, kw map[string]any) (any, error) {
			if err := parseArgs("shuffle", args, kw).count(1, 1); err != nil {
				return nil, err
			}
			l, ok := args[0].(*List)
			if !ok {
				return nil, newError(excTypeError, "shuffle() argument must be a list, not %s", typeName(args[0]))
			}
			th.rng().Shuffle(len(l.Items), func(i, j int) { l.Items[i], l.Items[j] = l.Items[j], l.Items[i] })
			return nil, nil
		}),
		"sample": builtin("sample", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("sample", args, kw)
			if err := a.count(2, 2); err != nil {
				return nil, err
			}
			items, err := th.collect(args[0])
			if err != nil {
				return nil, err
			}
			k, err := a.int(1, "k", 0)
			if err != nil {
				return nil, err
			}
			if k < 0 || k > int64(len(items)) {
				return nil, newError(excValueError, "Sample larger than population or is negative")
			}
			perm := th.rng().Perm(len(items))
			out := &List{Items: make([]any, k)}
			for i := range out.Items {
				out.Items[i] = items[perm[i]]
			}
			return out, nil
		}),
	}}
}

func randrange(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("randrange", args, kw)
	if err := a.count(1, 3); err != nil {
		return nil, err
	}
	r, err := builtinRange(th, args, nil)
	if err != nil {
		return nil, err
	}
	rg := r.(*Range)
	n := rg.Len()
	if n == 0 {
		return nil, newError(excValueError, "empty range for randrange()")
	}
	return rg.At(th.rng().Int63n(n)), nil
}

// === math ===

func mathFunc(name string, fn func(float64) (float64, bool)) *Builtin {
	return builtin(name, func(th *thread, args []any, kw map[string]any) (any, error) {
		a := parseArgs(name, args, kw)
		if err := a.count(1, 1); err != nil {
			return nil, err
		}
		x, err := a.float(0, "x", 0)
		if err != nil {
			return nil, err
		}
		r, ok := fn(x)
		if !ok {
			return nil, newError(excValueError, "math domain error")
		}
		return r, nil
	})
}

func total(fn func(float64) float64) func(float64) (float64, bool) {
	return func(x float64) (float64, bool) { return fn(x), true }
}

func mathModule() *Module {
	rounding := func(name string, fn func(float64) float64) *Builtin {
		return builtin(name, func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs(name, args, kw)
			if err := a.count(1, 1); err != nil {
				return nil, err
			}
			if n, err := toInt(args[0]); err == nil {
				return n, nil
			}
			x, err := a.float(0, "x", 0)
			if err != nil {
				return nil, err
			}
			if math.IsInf(x, 0) || math.IsNaN(x) {
				return nil, newError(excValueError, "cannot convert float %s to integer", formatFloat(x))
			}
			return int64(fn(x)), nil
		})
	}
	return &Module{Name: "math", Attrs: map[string]any{
		"pi":  math.Pi,
		"e":   math.E,
		"tau": 2 * math.Pi,
		"inf": math.Inf(1),
		"nan": math.NaN(),

		"floor": rounding("floor", math.Floor),
		"ceil":  rounding("ceil", math.Ceil),
		"trunc": rounding("trunc", math.Trunc),
		"sqrt": mathFunc("sqrt", func(x float64) (float64, bool) {
			return math.Sqrt(x), x >= 0
		}),
		"exp":   mathFunc("exp", total(math.Exp)),
		"sin":   mathFunc("sin", total(math.Sin)),
		"cos":   mathFunc("cos", total(math.Cos)),
		"tan":   mathFunc("tan", total(math.Tan)),
		"asin":  mathFunc("asin", func(x float64) (float64, bool) { return math.Asin(x), x >= -1 && x <= 1 }),
		"acos":  mathFunc("acos", func(x float64) (float64, bool) { return math.Acos(x), x >= -1 && x <= 1 }),
		"atan":  mathFunc("atan", total(math.Atan)),
		"fabs":  mathFunc("fabs", total(math.Abs)),
		"log2":  mathFunc("log2", func(x float64) (float64, bool) { return math.Log2(x), x > 0 }),
		"log10": mathFunc("log10", func(x float64) (float64, bool) { return math.Log10(x), x > 0 }),
		"isnan": builtin("isnan", func(th *thread, args []any, kw map[string]any) (any, error) {
			x, err := parseArgs("isnan", args, kw).float(0, "x", 0)
			return math.IsNaN(x), err
		}),
		"isinf": builtin("isinf", func(th *thread, args []any, kw map[string]any) (any, error) {
			x, err := parseArgs("isinf", args, kw).float(0, "x", 0)
			return math.IsInf(x, 0), err
		}),
		"log": builtin("log", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("log", args, kw)
			if err := a.count(1, 2); err != nil {
				return nil, err
			}
			x, err := a.float(0, "x", 0)
			if err != nil {
				return nil, err
			}
			if x <= 0 {
				return nil, newError(excValueError, "math domain error")
			}
			if len(args) == 1 {
				return math.Log(x), nil
			}
			base, err := a.float(1, "base", math.E)
			if err != nil {
				return nil, err
			}
			if base <= 0 || base == 1 {
				return nil, newError(excValueError, "math domain error")
			}
			return math.Log(x) / math.Log(base), nil
		}),
		"pow": builtin("pow", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("pow", args, kw)
			if err := a.count(2, 2); err != nil {
				return nil, err
			}
			x, err := a.float(0, "x", 0)
			if err != nil {
				return nil, err
			}
			y, err := a.float(1, "y", 0)
			if err != nil {
				return nil, err
			}
			return math.Pow(x, y), nil
		}),
		"atan2": builtin("atan2", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("atan2", args, kw)
			if err := a.count(2, 2); err != nil {
				return nil, err
			}
			y, err := a.float(0, "y", 0)
			if err != nil {
				return nil, err
			}
			x, err := a.float(1, "x", 0)
			if err != nil {
				return nil, err
			}
			return math.Atan2(y, x), nil
		}),
		"hypot": builtin("hypot", func(th *thread, args []any, kw map[string]any) (any, error) {
			sum := 0.0
			for _, v := range args {
				f, ok := toFloat(v)
				if !ok {
					return nil, newError(excTypeError, "must be real number, not %s", typeName(v))
				}
				sum += f * f
			}
			return math.Sqrt(sum), nil
		}),
	}}
}

// === json ===

func jsonModule() *Module {
	return &Module{Name: "json", Attrs: map[string]any{
		"dumps": builtin("dumps", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("dumps", args, kw)
			if err := a.count(1, 1, "indent", "sort_keys"); err != nil {
				return nil, err
			}
			enc := jsonEncoder{sortKeys: truthy(kw["sort_keys"])}
			if v, ok := kw["indent"]; ok && v != nil {
				n, err := toInt(v)
				if err != nil {
					return nil, newError(excTypeError, "indent must be an int")
				}
				enc.indent = strings.Repeat(" ", int(n))
				enc.pretty = true
			}
			if err := enc.encode(args[0], 0); err != nil {
				return nil, err
			}
			return enc.buf.String(), nil
		}),
		"loads": builtin("loads", func(th *thread, args []any, kw map[string]any) (any, error) {
			a := parseArgs("loads", args, kw)
			if err := a.count(1, 1); err != nil {
				return nil, err
			}
			s, err := a.str(0, "s", "")
			if err != nil {
				return nil, err
			}
			return decodeJSON(s)
		}),
	}}
}

// toPlain converts a script value into a JSON-compatible Go value for the
// wire. Dict key order is preserved through jsonObject.
func toPlain(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, string:
		return x, nil
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, newError(excValueError, "Out of range float values are not JSON compliant")
		}
		return x, nil
	case Tuple:
		return plainSlice(x)
	case *List:
		return plainSlice(x.Items)
	case *Dict:
		obj := jsonObject{}
		for i, k := range x.keys {
			ks, err := jsonKey(k)
			if err != nil {
				return nil, err
			}
			pv, err := toPlain(x.values[i])
			if err != nil {
				return nil, err
			}
			obj.keys = append(obj.keys, ks)
			obj.values = append(obj.values, pv)
		}
		return obj, nil
	}
	return nil, newError(excTypeError, "Object of type %s is not JSON serializable", typeName(v))
}

func plainSlice(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, it := range items {
		p, err := toPlain(it)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func jsonKey(k any) (string, error) {
	switch x := k.(type) {
	case string:
		return x, nil
	case nil:
		return "null", nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return formatFloat(x), nil
	}
	return "", newError(excTypeError, "keys must be str, int, float, bool or None, not %s", typeName(k))
}

// jsonObject is an ordered JSON object.
type jsonObject struct {
	keys   []string
	values []any
}

func (o jsonObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// fromPlain converts a decoded wire value into script values. Object keys
// come back in sorted order.
func fromPlain(v any) any {
	switch x := v.(type) {
	case []any:
		out := &List{Items: make([]any, len(x))}
		for i, it := range x {
			out.Items[i] = fromPlain(it)
		}
		return out
	case map[string]any:
		d := NewDict()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_ = d.Set(k, fromPlain(x[k]))
		}
		return d
	case int:
		return int64(x)
	}
	return v
}

// jsonEncoder writes the text form json.dumps produces, including its
// ", " and ": " separators.
type jsonEncoder struct {
	buf      strings.Builder
	indent   string
	pretty   bool
	sortKeys bool
}

func (e *jsonEncoder) newline(depth int) {
	if e.pretty {
		e.buf.WriteByte('\n')
		e.buf.WriteString(strings.Repeat(e.indent, depth))
	}
}

func (e *jsonEncoder) sep() string {
	if e.pretty {
		return ","
	}
	return ", "
}

func (e *jsonEncoder) encode(v any, depth int) error {
	switch x := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		if x {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case int64:
		e.buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		switch {
		case math.IsNaN(x):
			e.buf.WriteString("NaN")
		case math.IsInf(x, 1):
			e.buf.WriteString("Infinity")
		case math.IsInf(x, -1):
			e.buf.WriteString("-Infinity")
		default:
			e.buf.WriteString(formatFloat(x))
		}
	case string:
		b, _ := json.Marshal(x)
		e.buf.Write(b)
	case Tuple:
		return e.array(x, depth)
	case *List:
		return e.array(x.Items, depth)
	case *Dict:
		if x.Len() == 0 {
			e.buf.WriteString("{}")
			return nil
		}
		type entry struct {
			key string
			val any
		}
		entries := make([]entry, 0, x.Len())
		for i, k := range x.keys {
			ks, err := jsonKey(k)
			if err != nil {
				return err
			}
			entries = append(entries, entry{ks, x.values[i]})
		}
		if e.sortKeys {
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
		}
		e.buf.WriteByte('{')
		for i, en := range entries {
			if i > 0 {
				e.buf.WriteString(e.sep())
			}
			e.newline(depth + 1)
			b, _ := json.Marshal(en.key)
			e.buf.Write(b)
			e.buf.WriteString(": ")
			if err := e.encode(en.val, depth+1); err != nil {
				return err
			}
		}
		e.newline(depth)
		e.buf.WriteByte('}')
	default:
		return newError(excTypeError, "Object of type %s is not JSON serializable", typeName(v))
	}
	return nil
}

func (e *jsonEncoder) array(items []any, depth int) error {
	if len(items) == 0 {
		e.buf.WriteString("[]")
		return nil
	}
	e.buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			e.buf.WriteString(e.sep())
		}
		e.newline(depth + 1)
		if err := e.encode(it, depth+1); err != nil {
			return err
		}
	}
	e.newline(depth)
	e.buf.WriteByte(']')
	return nil
}

// decodeJSON parses s keeping object key order.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, newError(excValueError, "invalid JSON: %s", err.Error())
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, newError(excValueError, "invalid JSON: extra data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			out := &List{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				out.Items = append(out.Items, v)
			}
			_, err := dec.Token()
			return out, err
		case '{':
			d := NewDict()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				_ = d.Set(kt.(string), v)
			}
			_, err := dec.Token()
			return d, err
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	}
	return tok, nil
}

// === asyncio ===

func asyncioModule() *Module {
	return &Module{Name: "asyncio", Attrs: map[string]any{
		"sleep":        asyncBuiltin("sleep", builtinSleep),
		"gather":       asyncBuiltin("gather", gather),
		"TimeoutError": excTimeoutError,
	}}
}

// gather awaits every argument concurrently and returns their results in
// order. The first failure is raised after all of them have finished.
func gather(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("gather", nil, kw).count(0, 0); err != nil {
		return nil, err
	}
	ops := make([]sim.TaskFunc, len(args))
	for i, a := range args {
		op, err := th.rt.operation(a)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	results, err := sim.Gather(th.task, ops...)
	if err != nil {
		return nil, err
	}
	return &List{Items: results}, nil
}

// rng returns the random stream of the thread's node.
func (th *thread) rng() *rand.Rand {
	return th.rt.session.RNG(th.owner())
}
