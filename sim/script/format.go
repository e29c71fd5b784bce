package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// printer renders values as str() and repr() do. With a thread attached,
// user-defined __str__ and __repr__ methods are honored.
type printer struct {
	th   *thread
	seen map[any]bool
}

// repr renders v without calling user code.
func repr(v any) string {
	s, _ := (&printer{}).repr(v)
	return s
}

// str renders v without calling user code.
func str(v any) string {
	s, _ := (&printer{}).str(v)
	return s
}

func (p *printer) str(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case *Instance:
		if p.th != nil {
			if s, ok, err := p.dunder(x, "__str__"); ok || err != nil {
				return s, err
			}
		}
		if isExceptionClass(x.Class) {
			return exceptionMessage(x), nil
		}
	}
	return p.repr(v)
}

func (p *printer) dunder(inst *Instance, name string) (string, bool, error) {
	m, _, ok := inst.Class.lookup(name)
	if !ok {
		return "", false, nil
	}
	if _, user := m.(*Function); !user {
		return "", false, nil
	}
	res, err := p.th.call(&BoundMethod{Self: inst, Fn: m}, nil, nil)
	if err != nil {
		return "", true, err
	}
	s, isStr := res.(string)
	if !isStr {
		return "", true, newError(excTypeError, "%s returned non-string (type %s)", name, typeName(res))
	}
	return s, true, nil
}

func (p *printer) enter(v any) bool {
	if p.seen == nil {
		p.seen = make(map[any]bool)
	}
	if p.seen[v] {
		return false
	}
	p.seen[v] = true
	return true
}

func (p *printer) join(items []any, sep string) (string, error) {
	parts := make([]string, len(items))
	for i, it := range items {
		s, err := p.repr(it)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

func (p *printer) repr(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "None", nil
	case bool:
		if x {
			return "True", nil
		}
		return "False", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return formatFloat(x), nil
	case string:
		return quote(x), nil
	case Tuple:
		s, err := p.join(x, ", ")
		if len(x) == 1 {
			s += ","
		}
		return "(" + s + ")", err
	case *List:
		if !p.enter(x) {
			return "[...]", nil
		}
		defer delete(p.seen, x)
		s, err := p.join(x.Items, ", ")
		return "[" + s + "]", err
	case *Dict:
		if !p.enter(x) {
			return "{...}", nil
		}
		defer delete(p.seen, x)
		parts := make([]string, 0, x.Len())
		for i, k := range x.keys {
			ks, err := p.repr(k)
			if err != nil {
				return "", err
			}
			vs, err := p.repr(x.values[i])
			if err != nil {
				return "", err
			}
			parts = append(parts, ks+": "+vs)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	case *Range:
		if x.Step == 1 {
			return fmt.Sprintf("range(%d, %d)", x.Start, x.Stop), nil
		}
		return fmt.Sprintf("range(%d, %d, %d)", x.Start, x.Stop, x.Step), nil
	case *Function:
		return "<function " + x.Name + ">", nil
	case *BoundMethod:
		name := "?"
		switch fn := x.Fn.(type) {
		case *Function:
			name = fn.Name
		case *Builtin:
			name = fn.Name
		}
		return fmt.Sprintf("<bound method %s of %s>", name, repr(x.Self)), nil
	case *Builtin:
		return "<built-in function " + x.Name + ">", nil
	case *Class:
		return "<class '" + x.Name + "'>", nil
	case *Module:
		return "<module '" + x.Name + "'>", nil
	case *Coroutine:
		return "<coroutine object " + x.name + ">", nil
	case *superProxy:
		return "<super: <class '" + x.Owner.Name + "'>>", nil
	case *Instance:
		if p.th != nil {
			if s, ok, err := p.dunder(x, "__repr__"); ok || err != nil {
				return s, err
			}
		}
		if isExceptionClass(x.Class) {
			args, _ := x.Attrs["args"].(Tuple)
			s, err := p.join(args, ", ")
			return x.Class.Name + "(" + s + ")", err
		}
		return "<" + x.Class.Name + " object>", nil
	}
	return fmt.Sprintf("%v", v), nil
}

// formatFloat renders f the way repr does: shortest round-trip digits, fixed
// notation for exponents in [-4, 16) and a trailing ".0" on integral values.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var sb strings.Builder
	sb.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(q)
	return sb.String()
}

// === format specs ===

type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	alt       bool
	width     int
	grouping  byte
	precision int // -1 when absent
	verb      byte
}

func parseFormatSpec(spec string) (formatSpec, error) {
	fs := formatSpec{fill: ' ', precision: -1}
	rs := []rune(spec)
	i := 0
	isAlign := func(r rune) bool { return r == '<' || r == '>' || r == '^' || r == '=' }
	if len(rs) >= 2 && isAlign(rs[1]) {
		fs.fill, fs.align = rs[0], byte(rs[1])
		i = 2
	} else if len(rs) >= 1 && isAlign(rs[0]) {
		fs.align = byte(rs[0])
		i = 1
	}
	if i < len(rs) && (rs[i] == '+' || rs[i] == '-' || rs[i] == ' ') {
		fs.sign = byte(rs[i])
		i++
	}
	if i < len(rs) && rs[i] == '#' {
		fs.alt = true
		i++
	}
	if i < len(rs) && rs[i] == '0' {
		if fs.align == 0 {
			fs.fill, fs.align = '0', '='
		}
		i++
	}
	start := i
	for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
		i++
	}
	if i > start {
		fs.width, _ = strconv.Atoi(string(rs[start:i]))
	}
	if i < len(rs) && (rs[i] == ',' || rs[i] == '_') {
		fs.grouping = byte(rs[i])
		i++
	}
	if i < len(rs) && rs[i] == '.' {
		i++
		start = i
		for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
			i++
		}
		if i == start {
			return fs, newError(excValueError, "Format specifier missing precision")
		}
		fs.precision, _ = strconv.Atoi(string(rs[start:i]))
	}
	if i < len(rs) {
		fs.verb = byte(rs[i])
		i++
	}
	if i != len(rs) {
		return fs, newError(excValueError, "Invalid format specifier '%s'", spec)
	}
	return fs, nil
}

// applySpec formats v according to a format-spec mini-language string.
func (p *printer) applySpec(v any, spec string) (string, error) {
	if spec == "" {
		return p.str(v)
	}
	fs, err := parseFormatSpec(spec)
	if err != nil {
		return "", err
	}
	var body string
	numeric := false
	switch x := v.(type) {
	case bool:
		if fs.verb == 0 || fs.verb == 's' {
			body = repr(x)
			break
		}
		n := int64(0)
		if x {
			n = 1
		}
		body, err = fs.formatInt(n)
		numeric = true
	case int64:
		body, err = fs.formatInt(x)
		numeric = true
	case float64:
		body, err = fs.formatFloat(x)
		numeric = true
	case string:
		if fs.verb != 0 && fs.verb != 's' {
			return "", newError(excValueError, "Unknown format code '%c' for object of type 'str'", fs.verb)
		}
		body = x
		if fs.precision >= 0 && utf8.RuneCountInString(body) > fs.precision {
			body = string([]rune(body)[:fs.precision])
		}
	default:
		if fs.verb != 0 && fs.verb != 's' {
			return "", newError(excTypeError, "unsupported format string passed to %s.__format__", typeName(v))
		}
		if body, err = p.str(v); err != nil {
			return "", err
		}
	}
	if err != nil {
		return "", err
	}
	return fs.pad(body, numeric), nil
}

func (fs formatSpec) signed(neg bool, digits string) string {
	switch {
	case neg:
		return "-" + digits
	case fs.sign == '+':
		return "+" + digits
	case fs.sign == ' ':
		return " " + digits
	}
	return digits
}

func (fs formatSpec) formatInt(n int64) (string, error) {
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	var digits string
	switch fs.verb {
	case 0, 'd', 'n':
		digits = strconv.FormatUint(u, 10)
		if fs.grouping != 0 {
			digits = group(digits, fs.grouping)
		}
	case 'x':
		digits = strconv.FormatUint(u, 16)
		if fs.alt {
			digits = "0x" + digits
		}
	case 'X':
		digits = strings.ToUpper(strconv.FormatUint(u, 16))
		if fs.alt {
			digits = "0X" + digits
		}
	case 'o':
		digits = strconv.FormatUint(u, 8)
		if fs.alt {
			digits = "0o" + digits
		}
	case 'b':
		digits = strconv.FormatUint(u, 2)
		if fs.alt {
			digits = "0b" + digits
		}
	case 'c':
		return string(rune(n)), nil
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		return fs.formatFloat(float64(n))
	default:
		return "", newError(excValueError, "Unknown format code '%c' for object of type 'int'", fs.verb)
	}
	return fs.signed(neg, digits), nil
}

func (fs formatSpec) formatFloat(f float64) (string, error) {
	neg := math.Signbit(f) && !math.IsNaN(f)
	a := math.Abs(f)
	prec := fs.precision
	var digits string
	switch fs.verb {
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		digits = strconv.FormatFloat(a, 'f', prec, 64)
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		digits = strconv.FormatFloat(a, 'e', prec, 64)
	case 'g', 'G':
		if prec < 0 {
			prec = 6
		}
		if prec == 0 {
			prec = 1
		}
		digits = strconv.FormatFloat(a, 'g', prec, 64)
	case '%':
		if prec < 0 {
			prec = 6
		}
		digits = strconv.FormatFloat(a*100, 'f', prec, 64) + "%"
	case 0:
		if prec < 0 {
			digits = formatFloat(a)
		} else {
			digits = strconv.FormatFloat(a, 'g', max(prec, 1), 64)
		}
	default:
		return "", newError(excValueError, "Unknown format code '%c' for object of type 'float'", fs.verb)
	}
	if math.IsInf(a, 0) {
		digits = "inf"
	} else if math.IsNaN(a) {
		digits = "nan"
	}
	if fs.verb == 'E' || fs.verb == 'G' || fs.verb == 'F' {
		digits = strings.ToUpper(digits)
	}
	if fs.grouping != 0 {
		intPart, rest := digits, ""
		if i := strings.IndexAny(digits, ".e%"); i >= 0 {
			intPart, rest = digits[:i], digits[i:]
		}
		digits = group(intPart, fs.grouping) + rest
	}
	return fs.signed(neg, digits), nil
}

func group(digits string, sep byte) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(sep)
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

func (fs formatSpec) pad(body string, numeric bool) string {
	n := utf8.RuneCountInString(body)
	if n >= fs.width {
		return body
	}
	fill := strings.Repeat(string(fs.fill), fs.width-n)
	align := fs.align
	if align == 0 {
		align = '<'
		if numeric {
			align = '>'
		}
	}
	switch align {
	case '>':
		return fill + body
	case '^':
		half := (fs.width - n) / 2
		return strings.Repeat(string(fs.fill), half) + body + strings.Repeat(string(fs.fill), fs.width-n-half)
	case '=':
		if numeric && body != "" && strings.ContainsAny(body[:1], "+- ") {
			return body[:1] + fill + body[1:]
		}
		return fill + body
	}
	return body + fill
}

// percentFormat implements the printf-style "%" operator on strings.
func (p *printer) percentFormat(format string, arg any) (string, error) {
	var args []any
	var mapping *Dict
	switch a := arg.(type) {
	case Tuple:
		args = a
	case *Dict:
		mapping = a
		args = []any{a}
	default:
		args = []any{a}
	}
	next := 0
	var sb strings.Builder
	rs := []rune(format)
	for i := 0; i < len(rs); i++ {
		if rs[i] != '%' {
			sb.WriteRune(rs[i])
			continue
		}
		i++
		if i >= len(rs) {
			return "", newError(excValueError, "incomplete format")
		}
		var val any
		haveVal := false
		if rs[i] == '(' && mapping != nil {
			end := i + 1
			for end < len(rs) && rs[end] != ')' {
				end++
			}
			if end >= len(rs) {
				return "", newError(excValueError, "incomplete format key")
			}
			v, ok, err := mapping.Get(string(rs[i+1 : end]))
			if err != nil {
				return "", err
			}
			if !ok {
				return "", newError(excKeyError, "%s", quote(string(rs[i+1:end])))
			}
			val, haveVal = v, true
			i = end + 1
		}
		start := i
		for i < len(rs) && strings.ContainsRune("-+ #0123456789.", rs[i]) {
			i++
		}
		if i >= len(rs) {
			return "", newError(excValueError, "incomplete format")
		}
		flags := string(rs[start:i])
		verb := rs[i]
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		if !haveVal {
			if next >= len(args) {
				return "", newError(excTypeError, "not enough arguments for format string")
			}
			val = args[next]
			next++
		}
		spec := flags
		if strings.HasPrefix(flags, "-") {
			spec = "<" + flags[1:]
		}
		var s string
		var err error
		switch verb {
		case 's':
			if s, err = p.str(val); err == nil {
				s, err = p.applySpec(s, spec)
			}
		case 'r':
			if s, err = p.repr(val); err == nil {
				s, err = p.applySpec(s, spec)
			}
		case 'd', 'i':
			n, cerr := toInt(val)
			if cerr != nil {
				return "", newError(excTypeError, "%%%c format: a real number is required, not %s", verb, typeName(val))
			}
			s, err = p.applySpec(n, spec+"d")
		case 'f', 'F', 'e', 'E', 'g', 'G':
			f, ok := toFloat(val)
			if !ok {
				return "", newError(excTypeError, "must be real number, not %s", typeName(val))
			}
			s, err = p.applySpec(f, spec+string(verb))
		case 'x', 'X', 'o':
			n, cerr := toInt(val)
			if cerr != nil {
				return "", newError(excTypeError, "%%%c format: an integer is required, not %s", verb, typeName(val))
			}
			s, err = p.applySpec(n, spec+string(verb))
		default:
			return "", newError(excValueError, "unsupported format character '%c'", verb)
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	if mapping == nil && next < len(args) {
		return "", newError(excTypeError, "not all arguments converted during string formatting")
	}
	return sb.String(), nil
}

// strFormat implements str.format with positional, indexed and named fields.
func (p *printer) strFormat(format string, args []any, kw map[string]any) (string, error) {
	var sb strings.Builder
	auto := 0
	rs := []rune(format)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '}' {
			if i+1 < len(rs) && rs[i+1] == '}' {
				i++
			}
			sb.WriteRune('}')
			continue
		}
		if r != '{' {
			sb.WriteRune(r)
			continue
		}
		if i+1 < len(rs) && rs[i+1] == '{' {
			sb.WriteRune('{')
			i++
			continue
		}
		end := i + 1
		for end < len(rs) && rs[end] != '}' {
			end++
		}
		if end >= len(rs) {
			return "", newError(excValueError, "expected '}' before end of string")
		}
		field := string(rs[i+1 : end])
		i = end
		name, spec, _ := strings.Cut(field, ":")
		name, conv, _ := strings.Cut(name, "!")
		var val any
		switch {
		case name == "":
			if auto >= len(args) {
				return "", newError(excIndexError, "Replacement index %d out of range for positional args tuple", auto)
			}
			val = args[auto]
			auto++
		case name[0] >= '0' && name[0] <= '9':
			idx, err := strconv.Atoi(name)
			if err != nil || idx >= len(args) {
				return "", newError(excIndexError, "Replacement index %s out of range for positional args tuple", name)
			}
			val = args[idx]
		default:
			v, ok := kw[name]
			if !ok {
				return "", newError(excKeyError, "%s", quote(name))
			}
			val = v
		}
		var err error
		switch conv {
		case "r":
			val, err = p.repr(val)
		case "s":
			val, err = p.str(val)
		}
		if err != nil {
			return "", err
		}
		s, err := p.applySpec(val, spec)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}
