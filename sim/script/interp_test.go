package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpreter_Expressions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string // repr of x
	}{
		{"floor division rounds down", "x = -7 // 2", "-4"},
		{"modulo takes divisor sign", "x = 7 % -3", "-2"},
		{"true division", "x = 10 / 4", "2.5"},
		{"power", "x = 2 ** 10", "1024"},
		{"float repr", "x = 0.1 + 0.2", "0.30000000000000004"},
		{"int to float", "x = float(3)", "3.0"},
		{"string repeat", "x = 3 * 'ab'", "'ababab'"},
		{"chained comparison", "x = 1 < 2 < 3", "True"},
		{"conditional expression", "x = 'yes' if [] else 'no'", "'no'"},
		{"boolean operators return operands", "x = 0 or 'fallback'", "'fallback'"},
		{"split", "x = 'a,b,,c'.split(',')", "['a', 'b', '', 'c']"},
		{"join", "x = '-'.join(['a', 'b'])", "'a-b'"},
		{"f-string with spec", "n = 7\nx = f'{n:03d}|{n * 2}|{n!r}'", "'007|14|7'"},
		{"percent format", "x = '%s-%d-%.2f' % ('a', 2, 1.5)", "'a-2-1.50'"},
		{"str.format", "x = '{} and {name}'.format(1, name='two')", "'1 and two'"},
		{"list comprehension", "x = [i * i for i in range(6) if i % 2 == 0]", "[0, 4, 16]"},
		{"reverse slice", "x = [1, 2, 3, 4][::-1]", "[4, 3, 2, 1]"},
		{"negative index", "x = 'hello'[-1]", "'o'"},
		{"sorted with key and reverse", "x = sorted(['bb', 'a', 'ccc'], key=len, reverse=True)", "['ccc', 'bb', 'a']"},
		{"dict keeps insertion order", "d = {'b': 1}\nd['a'] = 2\nx = list(d.items())", "[('b', 1), ('a', 2)]"},
		{"dict get default", "x = {}.get('k', 5)", "5"},
		{"nested unpacking", "a, (b, c) = 1, (2, 3)\nx = a + b + c", "6"},
		{"enumerate and zip", "x = [(i, a + b) for i, (a, b) in enumerate(zip('ab', 'cd'))]", "[(0, 'ac'), (1, 'bd')]"},
		{"lambda with map", "x = list(map(lambda v: v + 1, [1, 2]))", "[2, 3]"},
		{"min max sum", "x = (min(3, 1, 2), max([4, 9]), sum(range(5)))", "(1, 9, 10)"},
		{"membership", "x = ('b' in 'abc', 3 not in [1, 2])", "(True, True)"},
		{"identity", "x = None is None", "True"},
		{"round half to even", "x = (round(2.5), round(3.5), round(1.234, 2))", "(2, 4, 1.23)"},
		{"tuple repr of one", "x = (1,)", "(1,)"},
		{"augmented list add extends", "a = [1]\nb = a\na += [2]\nx = b", "[1, 2]"},
		{"isinstance with tuple", "x = isinstance(1, (str, int))", "True"},
		{"Color palette", "x = Color.DarkRed", "'#922D37'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)

			sc := mustRun(t, rt, tc.src)

			assert.Equal(t, tc.want, repr(sc.vars["x"]))
		})
	}
}

func TestInterpreter_Statements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "while with break and continue",
			src: `
x = []
i = 0
while True:
    i += 1
    if i % 2 == 0:
        continue
    if i > 7:
        break
    x.append(i)
`,
			want: "[1, 3, 5, 7]",
		},
		{
			name: "closures and nonlocal",
			src: `
def counter():
    n = 0
    def inc():
        nonlocal n
        n += 1
        return n
    return inc
c = counter()
c()
c()
x = c()
`,
			want: "3",
		},
		{
			name: "global declaration",
			src: `
total = 0
def add(v):
    global total
    total += v
add(2)
add(3)
x = total
`,
			want: "5",
		},
		{
			name: "default and keyword arguments",
			src: `
def f(a, b=2, *rest, **kw):
    return (a, b, rest, sorted(kw.items()))
x = f(1, c=3, d=4)
`,
			want: "(1, 2, (), [('c', 3), ('d', 4)])",
		},
		{
			name: "classes with super and class attributes",
			src: `
class A:
    kind = 'a'
    def __init__(self, v):
        self.v = v
    def describe(self):
        return self.kind + str(self.v)
class B(A):
    kind = 'b'
    def describe(self):
        return 'B:' + super().describe()
x = B(1).describe()
`,
			want: "'B:b1'",
		},
		{
			name: "user __str__ is used by str",
			src: `
class P:
    def __str__(self):
        return 'point'
x = str(P()) + f'/{P()}'
`,
			want: "'point/point'",
		},
		{
			name: "try except else finally",
			src: `
x = []
for d in [1, 0]:
    try:
        10 / d
    except ZeroDivisionError as e:
        x.append('except ' + str(e))
    else:
        x.append('else')
    finally:
        x.append('finally')
`,
			want: "['else', 'finally', 'except division by zero', 'finally']",
		},
		{
			name: "custom exception hierarchy",
			src: `
class AppError(Exception):
    pass
class Boom(AppError):
    pass
try:
    raise Boom('bad', 1)
except AppError as e:
    x = (type(e).__name__, e.args)
`,
			want: "('Boom', ('bad', 1))",
		},
		{
			name: "bare raise re-raises",
			src: `
x = None
try:
    try:
        {}['k']
    except KeyError:
        raise
except LookupError as e:
    x = repr(e)
`,
			want: "\"KeyError('k')\"",
		},
		{
			name: "modules",
			src: `
import math
from json import dumps, loads
x = (math.floor(2.7), dumps({'a': [1, 2.5, None, True]}), loads('{"z": 1, "a": 2}'))
`,
			want: `(2, '{"a": [1, 2.5, null, true]}', {'z': 1, 'a': 2})`,
		},
		{
			name: "delete",
			src: `
d = {'a': 1, 'b': 2}
del d['a']
l = [1, 2, 3]
del l[0]
x = (d, l)
`,
			want: "({'b': 2}, [2, 3])",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)

			sc := mustRun(t, rt, tc.src)

			assert.Equal(t, tc.want, repr(sc.vars["x"]))
		})
	}
}

func TestInterpreter_UncaughtExceptions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"zero division", "x = 1 / 0", "ZeroDivisionError: division by zero"},
		{"undefined name", "x = nope", "NameError: name 'nope' is not defined"},
		{"missing key", "x = {}['k']", "KeyError: 'k'"},
		{"index out of range", "x = [1][3]", "IndexError: list index out of range"},
		{"unsupported operands", "x = 'a' - 1", "TypeError: unsupported operand type(s) for -: 'str' and 'int'"},
		{"missing attribute", "x = (1).foo", "AttributeError: 'int' object has no attribute 'foo'"},
		{"missing argument", "def f(a, b):\n    pass\nf(1)", "TypeError: f() missing 1 required positional argument: 'b'"},
		{"unknown module", "import os", "ModuleNotFoundError: No module named 'os'"},
		{"assert with message", "assert 1 == 2, 'nope'", "AssertionError: nope"},
		{"unbounded recursion", "def f():\n    return f()\nf()", "RecursionError: maximum recursion depth exceeded"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)

			_, err := run(rt, tc.src)

			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
			var exc *Exception
			assert.True(t, errors.As(err, &exc), "%T is not a script exception", err)
		})
	}
}

func TestInterpreter_IntegerOverflowRaises(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"power", "x = 2 ** 64"},
		{"add", "x = 9223372036854775807 + 1"},
		{"subtract", "x = -9223372036854775807 - 2"},
		{"multiply", "x = 9223372036854775807 * 3"},
		{"shift", "x = len([1, 2]) << 70"},
		{"shift into sign bit", "x = 1 << 63"},
		{"augmented add", "x = 9223372036854775807\nx += 1"},
		{"negate min", "x = -(-9223372036854775807 - 1)"},
		{"floor divide min", "x = (-9223372036854775807 - 1) // -1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)

			_, err := run(rt, tc.src)

			require.Error(t, err)
			assert.Equal(t, "OverflowError: integer result too large for 64-bit int", err.Error())
		})
	}
}

func TestInterpreter_IntegerBoundsStayExact(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"max", "x = 9223372036854775806 + 1", "9223372036854775807"},
		{"min", "x = -9223372036854775807 - 1", "-9223372036854775808"},
		{"power", "x = 2 ** 62", "4611686018427387904"},
		{"negative power base", "x = (-2) ** 63", "-9223372036854775808"},
		{"shift", "x = 1 << 62", "4611686018427387904"},
		{"modulo minus one", "x = (-9223372036854775807 - 1) % -1", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)

			sc := mustRun(t, rt, tc.src)

			assert.Equal(t, tc.want, repr(sc.vars["x"]))
		})
	}
}

func TestInterpreter_OverflowErrorIsCatchable(t *testing.T) {
	rt := newTestRuntime(t)

	sc := mustRun(t, rt, "try:\n    x = 2 ** 100\nexcept ArithmeticError as e:\n    x = type(e).__name__\n")

	assert.Equal(t, "'OverflowError'", repr(sc.vars["x"]))
}

func TestException_Traceback(t *testing.T) {
	// GIVEN a function that fails two calls deep
	rt := newTestRuntime(t)
	src := "def inner():\n    return 1 / 0\n\ndef outer():\n    return inner()\n\nouter()\n"

	// WHEN it runs
	_, err := run(rt, src)

	// THEN the trace lists every frame innermost last
	var exc *Exception
	require.True(t, errors.As(err, &exc))
	full, short := exc.Traceback()
	assert.Equal(t, "ZeroDivisionError: division by zero", short)
	assert.Equal(t, "Traceback (most recent call last):\n"+
		"  File \"<exec>\", line 7, in <module>\n"+
		"  File \"<exec>\", line 5, in outer\n"+
		"  File \"<exec>\", line 2, in inner\n"+
		"ZeroDivisionError: division by zero\n", full)
}

func TestInterpreter_StepBudgetIsNotCatchable(t *testing.T) {
	// GIVEN a runtime with a small step budget and a loop that never yields
	rt := newTestRuntime(t)
	rt.maxSteps = 500
	src := "x = 0\ntry:\n    while True:\n        x += 1\nexcept RuntimeError:\n    x = -1\n"

	// WHEN it runs
	sc, err := run(rt, src)

	// THEN the budget error escapes the except clause
	require.Error(t, err)
	assert.Equal(t, "RuntimeError: executed 500 steps without yielding", err.Error())
	assert.NotEqual(t, int64(-1), sc.vars["x"])
}

func TestFormat_Repr(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, "None"},
		{true, "True"},
		{int64(-3), "-3"},
		{1e16, "1e+16"},
		{1.5e-7, "1.5e-07"},
		{2.0, "2.0"},
		{"it's", `"it's"`},
		{"a\nb", `'a\nb'`},
		{Tuple{}, "()"},
		{&List{Items: []any{"x", int64(1)}}, "['x', 1]"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, repr(tc.v))
		})
	}
}
