package script

import (
	"strings"
	"unicode"
)

var (
	strMethods   map[string]*Builtin
	listMethods  map[string]*Builtin
	dictMethods  map[string]*Builtin
	tupleMethods map[string]*Builtin
	floatMethods map[string]*Builtin
)

func typeMethods(v any) map[string]*Builtin {
	switch v.(type) {
	case string:
		return strMethods
	case *List:
		return listMethods
	case *Dict:
		return dictMethods
	case Tuple:
		return tupleMethods
	case float64:
		return floatMethods
	}
	return nil
}

func methods(defs map[string]BuiltinFunc) map[string]*Builtin {
	out := make(map[string]*Builtin, len(defs))
	for name, fn := range defs {
		out[name] = builtin(name, fn)
	}
	return out
}

func init() {
	strMethods = methods(map[string]BuiltinFunc{
		"upper":      strMap(strings.ToUpper),
		"lower":      strMap(strings.ToLower),
		"title":      strMap(titleCase),
		"capitalize": strMap(capitalize),
		"strip":      strTrim(strings.Trim, strings.TrimSpace),
		"lstrip":     strTrim(strings.TrimLeft, func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
		"rstrip":     strTrim(strings.TrimRight, func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
		"split":      strSplit,
		"splitlines": strSplitlines,
		"join":       strJoin,
		"replace":    strReplace,
		"startswith": strAffix("startswith", strings.HasPrefix),
		"endswith":   strAffix("endswith", strings.HasSuffix),
		"find":       strFind("find", false),
		"index":      strFind("index", true),
		"count":      strCount,
		"format":     strFormatMethod,
		"isdigit":    strTest(unicode.IsDigit),
		"isalpha":    strTest(unicode.IsLetter),
		"isalnum":    strTest(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }),
		"isspace":    strTest(unicode.IsSpace),
		"isupper":    strCase(unicode.IsUpper, unicode.IsLower),
		"islower":    strCase(unicode.IsLower, unicode.IsUpper),
		"center":     strPad("center"),
		"ljust":      strPad("ljust"),
		"rjust":      strPad("rjust"),
		"zfill":      strZfill,
		"partition":  strPartition,
	})
	listMethods = methods(map[string]BuiltinFunc{
		"append":  listAppend,
		"extend":  listExtend,
		"insert":  listInsert,
		"pop":     listPop,
		"remove":  listRemove,
		"index":   seqIndexOf,
		"count":   seqCount,
		"clear":   func(th *thread, args []any, kw map[string]any) (any, error) { args[0].(*List).Items = nil; return nil, nil },
		"copy":    func(th *thread, args []any, kw map[string]any) (any, error) { return &List{Items: append([]any(nil), args[0].(*List).Items...)}, nil },
		"reverse": listReverse,
		"sort":    listSort,
	})
	dictMethods = methods(map[string]BuiltinFunc{
		"get":        dictGet,
		"keys":       func(th *thread, args []any, kw map[string]any) (any, error) { return &List{Items: args[0].(*Dict).Keys()}, nil },
		"values":     func(th *thread, args []any, kw map[string]any) (any, error) { return &List{Items: args[0].(*Dict).Values()}, nil },
		"items":      dictItems,
		"pop":        dictPop,
		"popitem":    dictPopitem,
		"setdefault": dictSetdefault,
		"update":     dictUpdateMethod,
		"clear":      func(th *thread, args []any, kw map[string]any) (any, error) { args[0].(*Dict).Clear(); return nil, nil },
		"copy":       func(th *thread, args []any, kw map[string]any) (any, error) { return args[0].(*Dict).Copy(), nil },
	})
	tupleMethods = methods(map[string]BuiltinFunc{
		"index": seqIndexOf,
		"count": seqCount,
	})
	floatMethods = methods(map[string]BuiltinFunc{
		"is_integer": func(th *thread, args []any, kw map[string]any) (any, error) {
			f := args[0].(float64)
			return f == float64(int64(f)), nil
		},
	})
}

// === str ===

func strMap(fn func(string) string) BuiltinFunc {
	return func(th *thread, args []any, kw map[string]any) (any, error) {
		return fn(args[0].(string)), nil
	}
}

func titleCase(s string) string {
	rs := []rune(s)
	prevLetter := false
	for i, r := range rs {
		if prevLetter {
			rs[i] = unicode.ToLower(r)
		} else {
			rs[i] = unicode.ToUpper(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return string(rs)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	rs := []rune(strings.ToLower(s))
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

func strTrim(withChars func(string, string) string, space func(string) string) BuiltinFunc {
	return func(th *thread, args []any, kw map[string]any) (any, error) {
		s := args[0].(string)
		if len(args) < 2 || args[1] == nil {
			return space(s), nil
		}
		chars, ok := args[1].(string)
		if !ok {
			return nil, newError(excTypeError, "strip arg must be None or str")
		}
		return withChars(s, chars), nil
	}
}

func strSplit(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("split", args[1:], kw)
	if err := a.count(0, 2, "sep", "maxsplit"); err != nil {
		return nil, err
	}
	s := args[0].(string)
	sep := a.get(0, "sep", nil)
	limit, err := a.int(1, "maxsplit", -1)
	if err != nil {
		return nil, err
	}
	var parts []string
	if sep == nil {
		fields := strings.Fields(s)
		if limit >= 0 && int64(len(fields)) > limit+1 {
			parts = fields[:limit]
			rest := strings.TrimLeftFunc(s, unicode.IsSpace)
			for i := int64(0); i < limit; i++ {
				rest = strings.TrimLeftFunc(rest[len(fields[i]):], unicode.IsSpace)
			}
			parts = append(parts, rest)
		} else {
			parts = fields
		}
	} else {
		sepStr, ok := sep.(string)
		if !ok {
			return nil, newError(excTypeError, "must be str or None, not %s", typeName(sep))
		}
		if sepStr == "" {
			return nil, newError(excValueError, "empty separator")
		}
		n := -1
		if limit >= 0 {
			n = int(limit) + 1
		}
		parts = strings.SplitN(s, sepStr, n)
	}
	out := &List{Items: make([]any, len(parts))}
	for i, p := range parts {
		out.Items[i] = p
	}
	return out, nil
}

func strSplitlines(th *thread, args []any, kw map[string]any) (any, error) {
	s := strings.ReplaceAll(args[0].(string), "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	out := &List{Items: make([]any, len(lines))}
	for i, l := range lines {
		out.Items[i] = l
	}
	return out, nil
}

func strJoin(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("join", args[1:], kw).count(1, 1); err != nil {
		return nil, err
	}
	items, err := th.collect(args[1])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, v := range items {
		s, ok := v.(string)
		if !ok {
			return nil, newError(excTypeError, "sequence item %d: expected str instance, %s found", i, typeName(v))
		}
		parts[i] = s
	}
	return strings.Join(parts, args[0].(string)), nil
}

func strReplace(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("replace", args[1:], kw)
	if err := a.count(2, 3, "count"); err != nil {
		return nil, err
	}
	old, err := a.str(0, "old", "")
	if err != nil {
		return nil, err
	}
	repl, err := a.str(1, "new", "")
	if err != nil {
		return nil, err
	}
	n, err := a.int(2, "count", -1)
	if err != nil {
		return nil, err
	}
	return strings.Replace(args[0].(string), old, repl, int(n)), nil
}

func strAffix(name string, test func(string, string) bool) BuiltinFunc {
	return func(th *thread, args []any, kw map[string]any) (any, error) {
		if err := parseArgs(name, args[1:], kw).count(1, 1); err != nil {
			return nil, err
		}
		s := args[0].(string)
		candidates := []any{args[1]}
		if t, ok := args[1].(Tuple); ok {
			candidates = t
		}
		for _, c := range candidates {
			affix, ok := c.(string)
			if !ok {
				return nil, newError(excTypeError, "%s first arg must be str or a tuple of str, not %s", name, typeName(c))
			}
			if test(s, affix) {
				return true, nil
			}
		}
		return false, nil
	}
}

func strFind(name string, raise bool) BuiltinFunc {
	return func(th *thread, args []any, kw map[string]any) (any, error) {
		a := parseArgs(name, args[1:], kw)
		if err := a.count(1, 1); err != nil {
			return nil, err
		}
		sub, err := a.str(0, "sub", "")
		if err != nil {
			return nil, err
		}
		s := args[0].(string)
		i := strings.Index(s, sub)
		if i < 0 {
			if raise {
				return nil, newError(excValueError, "substring not found")
			}
			return int64(-1), nil
		}
		return runeLen(s[:i]), nil
	}
}

func strCount(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("count", args[1:], kw)
	if err := a.count(1, 1); err != nil {
		return nil, err
	}
	sub, err := a.str(0, "sub", "")
	if err != nil {
		return nil, err
	}
	return int64(strings.Count(args[0].(string), sub)), nil
}

func strFormatMethod(th *thread, args []any, kw map[string]any) (any, error) {
	return th.printer().strFormat(args[0].(string), args[1:], kw)
}

func strTest(pred func(rune) bool) BuiltinFunc {
	return func(th *thread, args []any, kw map[string]any) (any, error) {
		s := args[0].(string)
		if s == "" {
			return false, nil
		}
		for _, r := range s {
			if !pred(r) {
				return false, nil
			}
		}
		return true, nil
	}
}

func strCase(want, reject func(rune) bool) BuiltinFunc {
	return func(th *thread, args []any, kw map[string]any) (any, error) {
		found := false
		for _, r := range args[0].(string) {
			if reject(r) {
				return false, nil
			}
			if want(r) {
				found = true
			}
		}
		return found, nil
	}
}

func strPad(name string) BuiltinFunc {
	return func(th *thread, args []any, kw map[string]any) (any, error) {
		a := parseArgs(name, args[1:], kw)
		if err := a.count(1, 2); err != nil {
			return nil, err
		}
		width, err := a.int(0, "width", 0)
		if err != nil {
			return nil, err
		}
		fill, err := a.str(1, "fillchar", " ")
		if err != nil {
			return nil, err
		}
		if runeLen(fill) != 1 {
			return nil, newError(excTypeError, "The fill character must be exactly one character long")
		}
		fs := formatSpec{fill: []rune(fill)[0], width: int(width), align: map[string]byte{"center": '^', "ljust": '<', "rjust": '>'}[name]}
		return fs.pad(args[0].(string), false), nil
	}
}

func strZfill(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("zfill", args[1:], kw)
	if err := a.count(1, 1); err != nil {
		return nil, err
	}
	width, err := a.int(0, "width", 0)
	if err != nil {
		return nil, err
	}
	fs := formatSpec{fill: '0', width: int(width), align: '='}
	return fs.pad(args[0].(string), true), nil
}

func strPartition(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("partition", args[1:], kw)
	if err := a.count(1, 1); err != nil {
		return nil, err
	}
	sep, err := a.str(0, "sep", "")
	if err != nil {
		return nil, err
	}
	before, after, found := strings.Cut(args[0].(string), sep)
	if !found {
		return Tuple{before, "", ""}, nil
	}
	return Tuple{before, sep, after}, nil
}

// === list and tuple ===

func listAppend(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("append", args[1:], kw).count(1, 1); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	l.Items = append(l.Items, args[1])
	return nil, nil
}

func listExtend(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("extend", args[1:], kw).count(1, 1); err != nil {
		return nil, err
	}
	items, err := th.collect(args[1])
	if err != nil {
		return nil, err
	}
	l := args[0].(*List)
	l.Items = append(l.Items, items...)
	return nil, nil
}

func listInsert(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("insert", args[1:], kw)
	if err := a.count(2, 2); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	i, err := a.int(0, "index", 0)
	if err != nil {
		return nil, err
	}
	n := int64(len(l.Items))
	if i < 0 {
		i = max(i+n, 0)
	}
	i = min(i, n)
	l.Items = append(l.Items, nil)
	copy(l.Items[i+1:], l.Items[i:])
	l.Items[i] = args[2]
	return nil, nil
}

func listPop(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("pop", args[1:], kw)
	if err := a.count(0, 1); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	if len(l.Items) == 0 {
		return nil, newError(excIndexError, "pop from empty list")
	}
	i, err := seqIndex("pop", a.get(0, "index", int64(-1)), len(l.Items))
	if err != nil {
		return nil, err
	}
	v := l.Items[i]
	l.Items = append(l.Items[:i], l.Items[i+1:]...)
	return v, nil
}

func listRemove(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("remove", args[1:], kw).count(1, 1); err != nil {
		return nil, err
	}
	l := args[0].(*List)
	for i, v := range l.Items {
		eq, err := th.equal(v, args[1])
		if err != nil {
			return nil, err
		}
		if eq {
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return nil, nil
		}
	}
	return nil, newError(excValueError, "list.remove(x): x not in list")
}

func seqItems(v any) []any {
	if l, ok := v.(*List); ok {
		return l.Items
	}
	return v.(Tuple)
}

func seqIndexOf(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("index", args[1:], kw).count(1, 1); err != nil {
		return nil, err
	}
	for i, v := range seqItems(args[0]) {
		eq, err := th.equal(v, args[1])
		if err != nil {
			return nil, err
		}
		if eq {
			return int64(i), nil
		}
	}
	return nil, newError(excValueError, "%s is not in %s", repr(args[1]), typeName(args[0]))
}

func seqCount(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("count", args[1:], kw).count(1, 1); err != nil {
		return nil, err
	}
	n := int64(0)
	for _, v := range seqItems(args[0]) {
		eq, err := th.equal(v, args[1])
		if err != nil {
			return nil, err
		}
		if eq {
			n++
		}
	}
	return n, nil
}

func listReverse(th *thread, args []any, kw map[string]any) (any, error) {
	items := args[0].(*List).Items
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return nil, nil
}

func listSort(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("sort", args[1:], kw).count(0, 0, "key", "reverse"); err != nil {
		return nil, err
	}
	return nil, sortItems(th, args[0].(*List).Items, kw["key"], truthy(kw["reverse"]))
}

// === dict ===

func dictGet(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("get", args[1:], kw)
	if err := a.count(1, 2); err != nil {
		return nil, err
	}
	v, ok, err := args[0].(*Dict).Get(args[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return a.get(1, "default", nil), nil
	}
	return v, nil
}

func dictItems(th *thread, args []any, kw map[string]any) (any, error) {
	d := args[0].(*Dict)
	out := &List{Items: make([]any, d.Len())}
	for i, k := range d.keys {
		out.Items[i] = Tuple{k, d.values[i]}
	}
	return out, nil
}

func dictPop(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("pop", args[1:], kw).count(1, 2); err != nil {
		return nil, err
	}
	v, ok, err := args[0].(*Dict).Delete(args[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		if len(args) == 3 {
			return args[2], nil
		}
		return nil, keyError(args[1])
	}
	return v, nil
}

func dictPopitem(th *thread, args []any, kw map[string]any) (any, error) {
	d := args[0].(*Dict)
	if d.Len() == 0 {
		return nil, newError(excKeyError, "popitem(): dictionary is empty")
	}
	k := d.keys[d.Len()-1]
	v, _, err := d.Delete(k)
	return Tuple{k, v}, err
}

func dictSetdefault(th *thread, args []any, kw map[string]any) (any, error) {
	a := parseArgs("setdefault", args[1:], kw)
	if err := a.count(1, 2); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	v, ok, err := d.Get(args[1])
	if err != nil || ok {
		return v, err
	}
	def := a.get(1, "default", nil)
	return def, d.Set(args[1], def)
}

func dictUpdateMethod(th *thread, args []any, kw map[string]any) (any, error) {
	if err := parseArgs("update", args[1:], nil).count(0, 1); err != nil {
		return nil, err
	}
	d := args[0].(*Dict)
	if len(args) == 2 {
		if err := dictUpdate(th, d, args[1]); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedStrings(kw) {
		if err := d.Set(k, kw[k]); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
