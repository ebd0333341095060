package calc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

func nullLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// CalculationTestCase builds a sheet, runs it and checks the outcome
type CalculationTestCase struct {
	t        *testing.T
	calc     *Calculator
	ws       *grid.Worksheet
	usercode string
	opts     Options
	ctx      context.Context
	result   Result
}

func NewCalculationTestCase(t *testing.T) *CalculationTestCase {
	calc := NewCalculator(nil, nullLogger())
	calc.Clock = &fixedClock{now: time.Unix(0, 0)}
	return &CalculationTestCase{
		t:        t,
		calc:     calc,
		ws:       grid.NewWorksheet("Sheet1"),
		usercode: DefaultUsercode,
		ctx:      context.Background(),
	}
}

func (tc *CalculationTestCase) Set(name, formula string) *CalculationTestCase {
	loc, ok := grid.CellNameToCoordinates(name)
	require.True(tc.t, ok, name)
	tc.ws.Get(loc).SetFormula(formula)
	return tc
}

func (tc *CalculationTestCase) Usercode(code string) *CalculationTestCase {
	tc.usercode = code
	return tc
}

func (tc *CalculationTestCase) Sheets(src SheetSource) *CalculationTestCase {
	tc.calc.Sheets = src
	return tc
}

func (tc *CalculationTestCase) Context(ctx context.Context) *CalculationTestCase {
	tc.ctx = ctx
	return tc
}

func (tc *CalculationTestCase) Run() *CalculationTestCase {
	tc.result = tc.calc.Calculate(tc.ctx, tc.ws, tc.usercode, tc.opts)
	return tc
}

func (tc *CalculationTestCase) RunAndAssertNoError() *CalculationTestCase {
	tc.Run()
	require.Nil(tc.t, tc.result.UsercodeError, "console: %v", tc.ws.ConsoleText())
	return tc
}

func (tc *CalculationTestCase) cell(name string) *grid.Cell {
	loc, ok := grid.CellNameToCoordinates(name)
	require.True(tc.t, ok, name)
	cell, ok := tc.ws.Lookup(loc)
	require.True(tc.t, ok, "no cell at %s", name)
	return cell
}

func (tc *CalculationTestCase) AssertCellEq(name string, expected any) *CalculationTestCase {
	cell := tc.cell(name)
	assert.Empty(tc.t, cell.Error(), name)
	assert.Equal(tc.t, expected, cell.Value(), name)
	return tc
}

func (tc *CalculationTestCase) AssertCellFormatted(name, expected string) *CalculationTestCase {
	assert.Equal(tc.t, expected, tc.cell(name).FormattedValue(), name)
	return tc
}

func (tc *CalculationTestCase) AssertCellUndefined(name string) *CalculationTestCase {
	cell := tc.cell(name)
	assert.Empty(tc.t, cell.Error(), name)
	assert.True(tc.t, grid.IsUndefined(cell.Value()), "%s = %v", name, cell.Value())
	return tc
}

func (tc *CalculationTestCase) AssertCellErr(name, expected string) *CalculationTestCase {
	cell := tc.cell(name)
	assert.Equal(tc.t, expected, cell.Error(), name)
	assert.True(tc.t, grid.IsUndefined(cell.Value()), name)
	return tc
}

func (tc *CalculationTestCase) AssertUsercodeError(message string, line int) *CalculationTestCase {
	require.NotNil(tc.t, tc.result.UsercodeError)
	assert.Equal(tc.t, &grid.UsercodeError{Message: message, Line: line}, tc.result.UsercodeError)
	assert.Equal(tc.t, tc.result.UsercodeError, tc.ws.UsercodeError())
	return tc
}

func (tc *CalculationTestCase) AssertConsole(expected ...grid.ConsoleEntry) *CalculationTestCase {
	expected = append(expected, grid.ConsoleEntry{Type: grid.ConsoleSystem, Text: "Took 0.00s"})
	assert.Equal(tc.t, expected, tc.ws.ConsoleText())
	return tc
}

func output(text string) grid.ConsoleEntry {
	return grid.ConsoleEntry{Type: grid.ConsoleOutput, Text: text}
}

func consoleError(text string) grid.ConsoleEntry {
	return grid.ConsoleEntry{Type: grid.ConsoleError, Text: text}
}

func TestConstantsAndFormulae(t *testing.T) {
	NewCalculationTestCase(t).
		Set("A1", "5").
		Set("A2", "=A1 + 1").
		Set("A3", "=A2 * 2").
		Set("B1", "1.5").
		Set("B2", "hello").
		Set("B3", `=B2 & " world"`).
		Set("C1", "=sum(A1:A3)").
		RunAndAssertNoError().
		AssertCellEq("A1", int64(5)).
		AssertCellEq("A2", int64(6)).
		AssertCellEq("A3", int64(12)).
		AssertCellFormatted("A3", "12").
		AssertCellEq("B1", 1.5).
		AssertCellEq("B2", "hello").
		AssertCellEq("B3", "hello world").
		AssertCellEq("C1", int64(23)).
		AssertConsole()
}

func TestSpreadsheetFunctions(t *testing.T) {
	NewCalculationTestCase(t).
		Set("A1", "4").
		Set("A2", `=IF(A1 > 3, "big", "small")`).
		Set("A3", "=AND(A1, 0)").
		Set("A4", "=ISERROR(1/0)").
		Set("A5", "=A1^2").
		Set("A6", "=A1 = 4").
		Set("A7", "=50%").
		RunAndAssertNoError().
		AssertCellEq("A2", "big").
		AssertCellEq("A3", false).
		AssertCellEq("A4", true).
		AssertCellEq("A5", int64(16)).
		AssertCellEq("A6", true).
		AssertCellEq("A7", 0.5)
}

func TestErrorsPropagateAsUndefined(t *testing.T) {
	NewCalculationTestCase(t).
		Set("A1", "=1/0").
		Set("A2", "=A1 + 1").
		Set("A3", "=A2 * 2").
		RunAndAssertNoError().
		AssertCellErr("A1", "ZeroDivisionError: division by zero").
		AssertCellUndefined("A2").
		AssertCellUndefined("A3").
		AssertCellFormatted("A2", "").
		AssertConsole(consoleError("ZeroDivisionError: division by zero\n    Formula '=1/0' in A1\n"))
}

func TestFormulaErrors(t *testing.T) {
	NewCalculationTestCase(t).
		Set("A1", "=)").
		Set("A2", "=#Invalid! + 1").
		Set("A3", "=nope").
		RunAndAssertNoError().
		AssertCellErr("A1", "FormulaError: Error in formula at position 2: unexpected ')'").
		AssertCellErr("A2", "FormulaError: #Invalid! cell reference in formula").
		AssertCellErr("A3", "NameError: name 'nope' is not defined")
}

func TestCycles(t *testing.T) {
	NewCalculationTestCase(t).
		Set("A1", "=B1").
		Set("B1", "=A1").
		Set("C1", "=A1 + 1").
		Set("D1", "=D1").
		RunAndAssertNoError().
		AssertCellErr("A1", "CycleError: A1 -> B1 -> A1").
		AssertCellErr("B1", "CycleError: B1 -> A1 -> B1").
		AssertCellUndefined("C1").
		AssertCellErr("D1", "CycleError: D1 -> D1").
		AssertConsole(
			consoleError("CycleError: A1 -> B1 -> A1\n    Formula '=B1' in A1\n"),
			consoleError("CycleError: B1 -> A1 -> B1\n    Formula '=A1' in B1\n"),
			consoleError("CycleError: D1 -> D1\n    Formula '=D1' in D1\n"),
		)
}

func TestLongCycleMarksEveryMember(t *testing.T) {
	tc := NewCalculationTestCase(t).
		Set("A1", "=A2").
		Set("A2", "=A3").
		Set("A3", "=A4").
		Set("A4", "=A1").
		Set("B1", "=A3").
		RunAndAssertNoError()

	errored := 0
	for _, loc := range tc.ws.Locations() {
		if tc.ws.Get(loc).Error() != "" {
			errored++
		}
	}
	assert.Equal(t, 4, errored)
	tc.AssertCellErr("A3", "CycleError: A3 -> A4 -> A1 -> A2 -> A3").
		AssertCellUndefined("B1")
}

func TestCyclesSharingACell(t *testing.T) {
	tc := NewCalculationTestCase(t).
		Set("A1", "=B1 + C1").
		Set("B1", "=A1").
		Set("C1", "=A1").
		Set("D1", "=C1 + 1").
		Set("E1", "=E2").
		Set("E2", "=E1 + E3 + E2").
		Set("E3", "=E2").
		RunAndAssertNoError()

	tc.AssertCellErr("A1", "CycleError: A1 -> B1 -> A1").
		AssertCellErr("B1", "CycleError: B1 -> A1 -> B1").
		AssertCellErr("C1", "CycleError: C1 -> A1 -> C1").
		AssertCellUndefined("D1").
		AssertCellErr("E1", "CycleError: E1 -> E2 -> E1").
		AssertCellErr("E2", "CycleError: E2 -> E2").
		AssertCellErr("E3", "CycleError: E3 -> E2 -> E3")

	errored := 0
	for _, loc := range tc.ws.Locations() {
		if tc.ws.Get(loc).Error() != "" {
			errored++
		}
	}
	assert.Equal(t, 6, errored)
}

func TestCycleGraphKeepsReaders(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	ws.SetCellFormula(1, 1, "=B1 + C1")
	ws.SetCellFormula(2, 1, "=A1")
	ws.SetCellFormula(3, 1, "=A1")
	ws.SetCellFormula(4, 1, "=C1 + E1")
	ws.SetCellFormula(5, 1, "=1")

	graph := BuildDependencyGraph(ws, CompileCell)
	var cycled []grid.Location
	for _, c := range graph.Cycles {
		cycled = append(cycled, c.Location)
	}
	assert.Equal(t, []grid.Location{grid.Loc(1, 1), grid.Loc(2, 1), grid.Loc(3, 1)}, cycled)
	assert.Equal(t, 2, graph.NodeCount())
	assert.Equal(t, []grid.Location{grid.Loc(5, 1)}, graph.GetDirectPrecedents(grid.Loc(4, 1)))
}

func TestUsercodeFunctionsInFormulae(t *testing.T) {
	NewCalculationTestCase(t).
		Usercode(`def double(x):
    return x * 2
load_constants(worksheet)
evaluate_formulae(worksheet)
print(worksheet.A2.value)
worksheet.B1.value = "done"
`).
		Set("A1", "21").
		Set("A2", "=double(A1)").
		RunAndAssertNoError().
		AssertCellEq("A2", int64(42)).
		AssertCellEq("B1", "done").
		AssertConsole(output("42\n"))
}

func TestUsercodeSyntaxError(t *testing.T) {
	NewCalculationTestCase(t).
		Usercode("x = = 1\n").
		Set("A1", "=1").
		Run().
		AssertUsercodeError("Syntax error at character 5", 1).
		AssertConsole(consoleError("Syntax error at character 5 (line 1)\n"))
}

func TestUsercodeRuntimeError(t *testing.T) {
	NewCalculationTestCase(t).
		Usercode("print 'before'\ndef f():\n    return 1 / 0\nf()\n").
		Run().
		AssertUsercodeError("ZeroDivisionError: division by zero", 3).
		AssertConsole(
			output("before\n"),
			consoleError("ZeroDivisionError: division by zero\n    User code line 4\n    User code line 3, in f\n"),
		)
}

func TestCalculateClearsPreviousRun(t *testing.T) {
	tc := NewCalculationTestCase(t).
		Set("A1", "=1/0").
		Run()
	tc.Set("A1", "=2").
		RunAndAssertNoError().
		AssertCellEq("A1", int64(2)).
		AssertConsole()
}

func TestCancellationKeepsEarlierResults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	tc := NewCalculationTestCase(t).
		Context(ctx).
		Usercode("load_constants(worksheet)\nevaluate_formulae(worksheet)\nwhile True:\n    pass\n").
		Set("A1", "5").
		Set("A2", "=A1 + 1").
		Run().
		AssertCellEq("A2", int64(6))
	require.NotNil(t, tc.result.UsercodeError)
	assert.Equal(t, "TimeoutError: calculation timed out", tc.result.UsercodeError.Message)
	assert.Contains(t, []int{3, 4}, tc.result.UsercodeError.Line)
	assert.True(t, tc.result.TimedOut)
}

func TestTimeoutMessage(t *testing.T) {
	assert.Equal(t, "calculation timed out after 3 seconds", TimeoutMessage(3*time.Second))
	assert.Equal(t, "calculation timed out after 60 seconds", TimeoutMessage(time.Minute))
}

func TestRunWorksheet(t *testing.T) {
	loads := 0
	sheets := SheetSourceFunc(func(ctx context.Context, name string) (*grid.Worksheet, string, error) {
		loads++
		switch name {
		case "Rates":
			ws := grid.NewWorksheet(name)
			ws.SetCellFormula(1, 1, "1")
			ws.SetCellFormula(1, 2, "=A1 * 10")
			return ws, DefaultUsercode, nil
		case "Broken":
			return grid.NewWorksheet(name), "1 / 0\n", nil
		}
		return nil, "", errors.New("no sheet named " + name)
	})

	NewCalculationTestCase(t).
		Sheets(sheets).
		Usercode(`plain = run_worksheet("Rates")
other = run_worksheet("Rates", {"A1": 4})
worksheet.A1.value = plain.A2.value
worksheet.A2.value = other.A2.value
`).
		RunAndAssertNoError().
		AssertCellEq("A1", int64(10)).
		AssertCellEq("A2", int64(40))
	assert.Equal(t, 2, loads)

	NewCalculationTestCase(t).
		Sheets(sheets).
		Usercode(`run_worksheet("Broken")`).
		Run().
		AssertUsercodeError("Exception: run_worksheet: ZeroDivisionError: division by zero", 1)

	NewCalculationTestCase(t).
		Sheets(sheets).
		Usercode(`run_worksheet("Missing")`).
		Run().
		AssertUsercodeError("Exception: run_worksheet: no sheet named Missing", 1)
}

func TestRunWorksheetNestingIsBounded(t *testing.T) {
	sheets := SheetSourceFunc(func(ctx context.Context, name string) (*grid.Worksheet, string, error) {
		return grid.NewWorksheet(name), `run_worksheet("Self")`, nil
	})
	tc := NewCalculationTestCase(t).
		Sheets(sheets).
		Usercode(`run_worksheet("Self")`).
		Run()
	require.NotNil(t, tc.result.UsercodeError)
	assert.Contains(t, tc.result.UsercodeError.Message, "sheets nested too deeply")
}

func TestWideLayerSums(t *testing.T) {
	tc := NewCalculationTestCase(t).Set("A1", "2")
	for row := 1; row <= 200; row++ {
		tc.Set(fmt.Sprintf("B%d", row), fmt.Sprintf("=A1 * %d", row))
	}
	tc.Set("C1", "=sum(B1:B200)")
	tc.RunAndAssertNoError().
		AssertCellEq("B200", int64(400)).
		AssertCellEq("C1", int64(2*200*201/2))
}

func TestWideLayerEvaluatesConcurrently(t *testing.T) {
	const cells = 8
	tc := NewCalculationTestCase(t).Usercode(`import time
def slow(x):
    time.sleep(0.25)
    return x
load_constants(worksheet)
evaluate_formulae(worksheet)
`)
	for row := 1; row <= cells; row++ {
		tc.Set(fmt.Sprintf("A%d", row), fmt.Sprintf("=slow(%d)", row))
	}
	tc.Set("B1", "=sum(A1:A8)")

	start := time.Now()
	tc.RunAndAssertNoError()
	elapsed := time.Since(start)

	tc.AssertCellEq("B1", int64(cells*(cells+1)/2))
	assert.Less(t, elapsed, 4*250*time.Millisecond, "%d cells of 250ms took %s", cells, elapsed)
}

// randomSheet fills ws with an acyclic mix of constants, formulas reading
// earlier cells, and failing formulas
func randomSheet(ws *grid.Worksheet, rng *rand.Rand, n int) {
	name := func(i int) string { return fmt.Sprintf("%c%d", 'A'+i%4, i/4+1) }
	for i := 0; i < n; i++ {
		loc, _ := grid.CellNameToCoordinates(name(i))
		switch {
		case i < 4 || rng.IntN(6) == 0:
			ws.SetCellFormula(loc.Col, loc.Row, fmt.Sprint(rng.IntN(100)))
		case rng.IntN(10) == 0:
			ws.SetCellFormula(loc.Col, loc.Row, fmt.Sprintf("=%s / 0", name(rng.IntN(i))))
		default:
			terms := []string{fmt.Sprint(rng.IntN(10))}
			for range 1 + rng.IntN(3) {
				terms = append(terms, name(rng.IntN(i)))
			}
			ws.SetCellFormula(loc.Col, loc.Row, "="+strings.Join(terms, " + "))
		}
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			serial := NewCalculationTestCase(t)
			serial.calc.Workers = 1
			randomSheet(serial.ws, rand.New(rand.NewPCG(seed, 7)), 120)

			parallel := NewCalculationTestCase(t)
			randomSheet(parallel.ws, rand.New(rand.NewPCG(seed, 7)), 120)

			serial.RunAndAssertNoError()
			parallel.RunAndAssertNoError()

			require.Equal(t, serial.ws.Locations(), parallel.ws.Locations())
			for _, loc := range serial.ws.Locations() {
				want, got := serial.ws.Get(loc), parallel.ws.Get(loc)
				assert.Equal(t, want.Error(), got.Error(), loc.String())
				assert.Equal(t, grid.Repr(want.Value()), grid.Repr(got.Value()), loc.String())
			}
		})
	}
}

func TestProgramsAreShared(t *testing.T) {
	tc := NewCalculationTestCase(t).Set("A1", "3")
	for row := 1; row <= 5; row++ {
		tc.Set(fmt.Sprintf("B%d", row), "=A1 * 2")
	}
	tc.RunAndAssertNoError()
	assert.Equal(t, 1, tc.calc.Programs().Len())
	assert.Equal(t, 5, tc.calc.Programs().Uses("worksheet[(1, 1)].value * 2"))
}

func TestLoadConstants(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	ws.SetCellFormula(1, 1, " 12 ")
	ws.SetCellFormula(1, 2, "1e3")
	ws.SetCellFormula(1, 3, "text")
	ws.SetCellFormula(1, 4, "=1")
	ws.Get(grid.Loc(1, 1)).SetError("stale")

	LoadConstants(ws)

	assert.Equal(t, int64(12), ws.Get(grid.Loc(1, 1)).Value())
	assert.Empty(t, ws.Get(grid.Loc(1, 1)).Error())
	assert.Equal(t, 1000.0, ws.Get(grid.Loc(1, 2)).Value())
	assert.Equal(t, "text", ws.Get(grid.Loc(1, 3)).Value())
	assert.True(t, grid.IsUndefined(ws.Get(grid.Loc(1, 4)).Value()))
}

func TestDependencyGraphLayers(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	ws.SetCellFormula(1, 1, "1")
	ws.SetCellFormula(2, 1, "=A1")
	ws.SetCellFormula(3, 1, "=B1 + D1")
	ws.SetCellFormula(4, 1, "=A1")
	ws.SetCellFormula(5, 1, "=C1")

	graph := BuildDependencyGraph(ws, CompileCell)
	assert.Empty(t, graph.Cycles)
	assert.Equal(t, 4, graph.NodeCount())
	assert.Equal(t, [][]grid.Location{
		{grid.Loc(2, 1), grid.Loc(4, 1)},
		{grid.Loc(3, 1)},
		{grid.Loc(5, 1)},
	}, graph.Layers())
	assert.Equal(t, []grid.Location{grid.Loc(2, 1), grid.Loc(4, 1)}, graph.GetDirectPrecedents(grid.Loc(3, 1)))
	assert.Equal(t, []grid.Location{grid.Loc(5, 1)}, graph.GetDirectDependents(grid.Loc(3, 1)))
}

func TestCycleErrorFrom(t *testing.T) {
	err := &CycleError{Path: []grid.Location{grid.Loc(1, 2), grid.Loc(4, 5), grid.Loc(1, 2)}}
	assert.Equal(t, "A2 -> D5 -> A2", err.Error())
	assert.Equal(t, "D5 -> A2 -> D5", err.From(grid.Loc(4, 5)).Error())
	assert.Equal(t, "A2 -> D5 -> A2", err.From(grid.Loc(9, 9)).Error())
}
