package script

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

type fixedRandom struct{ v float64 }

func (r *fixedRandom) Float64() float64 { return r.v }

func newTestEnv() (*Env, *strings.Builder) {
	env := NewEnv()
	out := &strings.Builder{}
	env.Output = func(s string) { out.WriteString(s) }
	return env, out
}

func run(t *testing.T, env *Env, src string) error {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	return prog.Exec(context.Background(), env)
}

func evalExpr(src string) (Value, error) {
	prog, err := ParseExpr(src)
	if err != nil {
		return nil, err
	}
	return prog.Eval(context.Background(), NewEnv())
}

func TestExpressions(t *testing.T) {
	testCases := []struct {
		expr string
		want string
	}{
		{"1 + 2", "3"},
		{"7 / 2", "3.5"},
		{"7 // 2", "3"},
		{"-7 // 2", "-4"},
		{"-7 % 3", "2"},
		{"2 ** 10", "1024"},
		{"2 ** -1", "0.5"},
		{"9223372036854775807 + 1", "9.223372036854776e+18"},
		{"'a' & 1", "'a1'"},
		{"1 < 2 < 3", "True"},
		{"3 > 2 > 2", "False"},
		{"1 <> 2", "True"},
		{"1 == 1.0", "True"},
		{"'ab' * 2", "'abab'"},
		{"[1, 2] + [3]", "[1, 2, 3]"},
		{"(1,)", "(1,)"},
		{"{'a': 1}['a']", "1"},
		{"[x * x for x in range(4) if x % 2]", "[1, 9]"},
		{"{k: v for k, v in [('a', 1)]}", "{'a': 1}"},
		{"sum(x for x in range(5))", "10"},
		{"'%s is %d' % ('x', 3)", "'x is 3'"},
		{"'%.2f' % 3.14159", "'3.14'"},
		{"'{} and {name}'.format(1, name='b')", "'1 and b'"},
		{"1 if 0 else 2", "2"},
		{"(lambda x, y=2: x * y)(3)", "6"},
		{"sorted([3, 1, 2], reverse=True)", "[3, 2, 1]"},
		{"max([1, 5, 3])", "5"},
		{"min(3, 1, key=lambda x: -x)", "3"},
		{"round(2.5)", "2"},
		{"round(2.675, 2)", "2.67"},
		{"int('12')", "12"},
		{"float('1.5')", "1.5"},
		{"str(1.0)", "'1.0'"},
		{"len('héllo')", "5"},
		{"'a,b'.split(',')", "['a', 'b']"},
		{"', '.join(['a', 'b'])", "'a, b'"},
		{"list(reversed(range(3)))", "[2, 1, 0]"},
		{"dict(a=1)", "{'a': 1}"},
		{"divmod(7, 2)", "(3, 1)"},
		{"'abc'[::-1]", "'cba'"},
		{"[1, 2, 3, 4][1:3]", "[2, 3]"},
		{"'x' in 'xyz'", "True"},
		{"3 not in [1, 2]", "True"},
		{"isinstance(1, int)", "True"},
		{"isinstance(1.5, (str, int))", "False"},
		{"type(1.5) is float", "True"},
		{"0x10 + 0o7", "23"},
		{"DateTime(2024, 1, 31) + 1", "DateTime(2024, 2, 1, 0, 0, 0)"},
		{"str(DateTime(2024, 1, 31, 13, 5))", "'2024-01-31 13:05:00'"},
		{"\n  1 +\n 1", "2"},
	}
	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			v, err := evalExpr(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, Repr(v))
		})
	}
}

func TestUndefinedAbsorbs(t *testing.T) {
	testCases := []struct {
		expr string
		want string
	}{
		{"undefined + 1 is undefined", "True"},
		{"-undefined is undefined", "True"},
		{"'a' & undefined is undefined", "True"},
		{"undefined < 1", "<undefined>"},
		{"undefined == undefined", "True"},
		{"undefined == None", "False"},
		{"bool(undefined)", "False"},
		{"sum([1, undefined])", "<undefined>"},
		{"max(1, undefined)", "<undefined>"},
		{"iserror(lambda: undefined)", "True"},
		{"iserror(lambda: 1 / 0)", "True"},
		{"iserror(lambda: 1)", "False"},
		{"all_of([1, (2, 3)], 4)", "True"},
		{"any_of(0, [0, ''])", "False"},
	}
	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			v, err := evalExpr(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, Repr(v))
		})
	}
}

func TestExpressionErrors(t *testing.T) {
	testCases := []struct {
		expr string
		want string
	}{
		{"1 / 0", "ZeroDivisionError: division by zero"},
		{"1 // 0", "ZeroDivisionError: integer division or modulo by zero"},
		{"1.0 / 0", "ZeroDivisionError: float division by zero"},
		{"'a' + 1", "TypeError: unsupported operand type(s) for +: 'str' and 'int'"},
		{"'a' < 1", "TypeError: '<' not supported between instances of 'str' and 'int'"},
		{"nope", "NameError: name 'nope' is not defined"},
		{"[1][5]", "IndexError: list index out of range"},
		{"{}['k']", "KeyError: 'k'"},
		{"int('x')", "ValueError: invalid literal for int() with base 10: 'x'"},
		{"(1).foo", "AttributeError: 'int' object has no attribute 'foo'"},
		{"DateTime(2023, 2, 29)", "ValueError: day is out of range for month"},
		{"_raise(FormulaError('#Invalid! cell reference in formula'))", "FormulaError: #Invalid! cell reference in formula"},
	}
	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := evalExpr(tc.expr)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestPrint(t *testing.T) {
	env, out := newTestEnv()
	require.NoError(t, run(t, env, "print \"a\", 1\nprint(\"b\", end=\"\")\nprint\nprint 1,\nprint 2\n"))
	assert.Equal(t, "a 1\nb\n1 2\n", out.String())
}

func TestStatements(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "closures",
			src: `def make(n):
    def add(x):
        return x + n
    return add
print(make(2)(3))
`,
			want: "5\n",
		},
		{
			name: "global declarations",
			src: `count = 0
def bump():
    global count
    count += 1
bump()
bump()
print(count)
`,
			want: "2\n",
		},
		{
			name: "loops with else",
			src: `for i in range(5):
    if i == 3:
        break
else:
    print("no")
print(i)
while i > 0:
    i -= 1
else:
    print("done", i)
`,
			want: "3\ndone 0\n",
		},
		{
			name: "continue",
			src: `out = []
for i in range(6):
    if i % 2: continue
    out.append(i)
print(out)
`,
			want: "[0, 2, 4]\n",
		},
		{
			name: "try except else finally",
			src: `def f(x):
    try:
        r = 10 / x
    except ZeroDivisionError as e:
        print("caught", e)
        return -1
    else:
        return r
    finally:
        print("finally")
print(f(0))
print(f(5))
`,
			want: "caught division by zero\nfinally\n-1\nfinally\n2.0\n",
		},
		{
			name: "legacy raise and except forms",
			src: `try:
    raise ValueError, "bad"
except ValueError, e:
    print(e.args)
`,
			want: "('bad',)\n",
		},
		{
			name: "bare raise keeps the exception",
			src: `try:
    try:
        {}["k"]
    except KeyError:
        raise
except LookupError as e:
    print(type(e).__name__, e)
`,
			want: "KeyError 'k'\n",
		},
		{
			name: "unpacking",
			src: `a, b = 1, 2
a, b = b, a
[c, (d, e)] = [3, (4, 5)]
print(a, b, c, d, e)
`,
			want: "2 1 3 4 5\n",
		},
		{
			name: "varargs and kwargs",
			src: `def f(a, *rest, **kw):
    return a, rest, sorted(kw.items())
print(f(1, 2, 3, x=4))
`,
			want: "(1, (2, 3), [('x', 4)])\n",
		},
		{
			name: "imports",
			src: `import math
from string import digits as d
print(math.floor(2.5), d[:3])
`,
			want: "2 012\n",
		},
		{
			name: "dicts and del",
			src: `d = {"a": 1, "b": 2}
del d["a"]
d.update(c=3)
print(d, d.get("z", 0), len(d))
`,
			want: "{'b': 2, 'c': 3} 0 2\n",
		},
		{
			name: "assert",
			src: `try:
    assert 1 == 2, "nope"
except AssertionError as e:
    print(e)
`,
			want: "nope\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, out := newTestEnv()
			require.NoError(t, run(t, env, tc.src))
			assert.Equal(t, tc.want, out.String())
		})
	}
}

func TestTraceback(t *testing.T) {
	env, _ := newTestEnv()
	err := run(t, env, "def f():\n    return 1/0\nf()\n")
	require.Error(t, err)

	exc, ok := err.(*Exception)
	require.True(t, ok)
	assert.Equal(t, "ZeroDivisionError", exc.TypeName())
	assert.Equal(t, "division by zero", exc.Message())
	assert.Equal(t, 2, exc.InnermostLine())
	assert.Equal(t, "    User code line 3\n    User code line 2, in f", exc.FormatTraceback())
}

func TestRaiseClassWithoutMessage(t *testing.T) {
	env, _ := newTestEnv()
	err := run(t, env, "x = 1\nraise ValueError\n")
	require.Error(t, err)
	assert.Equal(t, "ValueError", err.Error())
	assert.Equal(t, 2, err.(*Exception).InnermostLine())
}

func TestImportDenied(t *testing.T) {
	env, _ := newTestEnv()
	err := run(t, env, "import os\n")
	require.Error(t, err)
	assert.Equal(t, "ImportError: No module named os", err.Error())
}

func TestRecursionLimit(t *testing.T) {
	env, _ := newTestEnv()
	env.MaxDepth = 50
	err := run(t, env, "def f(n):\n    return f(n + 1)\nf(0)\n")
	require.Error(t, err)
	assert.Equal(t, "RecursionError: maximum recursion depth exceeded", err.Error())

	lines := strings.Split(err.(*Exception).FormatTraceback(), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{
		"    User code line 3",
		"    User code line 2, in f",
		"    User code line 2, in f",
		"    User code line 2, in f",
	}, lines[:4])
	assert.Regexp(t, `^    \[Previous line repeated \d+ more times\]$`, lines[4])
}

func TestLongTracebackKeepsEnds(t *testing.T) {
	env, _ := newTestEnv()
	env.MaxDepth = 200
	err := run(t, env, "def f(n):\n    return g(n)\ndef g(n):\n    return f(n)\nf(0)\n")
	require.Error(t, err)

	lines := strings.Split(err.(*Exception).FormatTraceback(), "\n")
	require.Len(t, lines, 41)
	assert.Equal(t, "    User code line 5", lines[0])
	assert.Equal(t, "    User code line 2, in f", lines[1])
	assert.Regexp(t, `^    \[\d+ more lines\]$`, lines[20])
	assert.Contains(t, []string{"    User code line 2, in f", "    User code line 4, in g"}, lines[40])
}

func TestCancelledContextRaisesTimeout(t *testing.T) {
	env, _ := newTestEnv()
	env.TimeoutMessage = "calculation timed out after 1 seconds"
	prog, err := Parse("x = 1\nwhile True:\n    x += 1\n")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = prog.Exec(ctx, env)
	require.Error(t, err)

	exc := err.(*Exception)
	assert.Equal(t, "TimeoutError: calculation timed out after 1 seconds", exc.Error())
	assert.Contains(t, []int{2, 3}, exc.InnermostLine())
}

func TestTimeoutCannotBeSwallowed(t *testing.T) {
	env, out := newTestEnv()
	prog, err := Parse("while True:\n    try:\n        pass\n    except:\n        print('swallowed')\n")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = prog.Exec(ctx, env)
	require.Error(t, err)
	assert.Equal(t, "TimeoutError", err.(*Exception).TypeName())
	assert.Empty(t, out.String())
}

func TestSyntaxErrors(t *testing.T) {
	testCases := []struct {
		src    string
		msg    string
		line   int
		offset int
	}{
		{"x = = 1", "invalid syntax", 1, 5},
		{"x = 1\nif x\n    y = 2", "invalid syntax", 2, 5},
		{"if x:\n  a = 1\n b = 2", "unindent does not match any outer indentation level", 3, 2},
		{"s = 'abc", "EOL while scanning string literal", 1, 5},
		{"def f(a=1, b):\n    pass", "non-default argument follows default argument", 1, 12},
	}
	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			_, err := Parse(tc.src)
			require.Error(t, err)
			exc, ok := err.(*Exception)
			require.True(t, ok)
			assert.Equal(t, SyntaxError, exc.Class)
			assert.Equal(t, tc.msg, exc.Message())
			assert.Equal(t, tc.line, exc.Line)
			assert.Equal(t, tc.offset, exc.Offset)
		})
	}
}

func TestWorksheetHostObjects(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	env, out := newTestEnv()
	env.Globals.Set("worksheet", ws)

	err := run(t, env, `worksheet[(1, 1)].value = 5
worksheet["B1"].value = worksheet.A1.value * 2
worksheet[("C", 1)].formula = "=A1"
r = CellRange(worksheet, "A1", "B1")
print(sum(r), len(r), r.width, r.height)
for loc in r.locations:
    print(loc)
print(worksheet.cell_range("A1:C1").right)
`)
	require.NoError(t, err)
	assert.Equal(t, "15 2 2 1\n(1, 1)\n(2, 1)\n3\n", out.String())
	assert.Equal(t, int64(10), ws.Get(grid.Loc(2, 1)).Value())
	assert.Equal(t, "10", ws.Get(grid.Loc(2, 1)).FormattedValue())
	assert.Equal(t, "=A1", ws.Get(grid.Loc(3, 1)).Formula())

	err = run(t, env, "worksheet[(1, 1)] = 5\n")
	require.Error(t, err)
	assert.Equal(t, "TypeError: Worksheet locations must be Cell objects", err.Error())

	err = run(t, env, "CellRange(worksheet, 'A1', 'B2')[(3, 1)]\n")
	require.Error(t, err)
	assert.Equal(t, "IndexError: Cell range only has 2 columns", err.Error())
}

func TestInjectedClockAndRandom(t *testing.T) {
	env, out := newTestEnv()
	env.Clock = &fixedClock{t: time.Unix(1000, 0)}
	env.Rand = &fixedRandom{v: 0.5}
	require.NoError(t, run(t, env, "import time, random\nprint(time.time(), random.randint(1, 10), random.random())\n"))
	assert.Equal(t, "1000.0 6 0.5\n", out.String())
}

func TestProgramSharedAcrossGoroutines(t *testing.T) {
	prog, err := ParseExpr("sum([x * n for x in range(100)])")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Value, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := NewEnv()
			local.Globals.Set("n", int64(i))
			results[i], errs[i] = prog.Eval(context.Background(), local)
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(4950*i), results[i])
	}
}

func TestEvalConstant(t *testing.T) {
	testCases := []struct {
		text string
		want Value
	}{
		{"12", int64(12)},
		{" 7 ", int64(7)},
		{"1.5", 1.5},
		{"1e3", 1000.0},
		{"abc", "abc"},
		{"0x10", "0x10"},
		{"", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, EvalConstant(tc.text))
		})
	}
}
