package calc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/script"
)

// DefaultWorkers bounds the cells of one layer evaluated at once
const DefaultWorkers = 10

// MaxNesting bounds how deep run_worksheet calls may nest
const MaxNesting = 8

// DefaultUsercode is the usercode of a new sheet
const DefaultUsercode = `load_constants(worksheet)

# Put code here if it needs to access constants in the spreadsheet
# and to be accessed by the formulae.  Examples: imports,
# user-defined functions and classes you want to use in cells.

evaluate_formulae(worksheet)

# Put code here if it needs to access the results of the formulae.
`

// SheetSource loads other sheets for run_worksheet. it returns the sheet's
// cells and its usercode.
type SheetSource interface {
	LoadSheet(ctx context.Context, name string) (*grid.Worksheet, string, error)
}

// SheetSourceFunc adapts a function to SheetSource
type SheetSourceFunc func(ctx context.Context, name string) (*grid.Worksheet, string, error)

func (f SheetSourceFunc) LoadSheet(ctx context.Context, name string) (*grid.Worksheet, string, error) {
	return f(ctx, name)
}

// Options tune a single calculation
type Options struct {
	// Timeout cancels the run once exceeded. zero means no limit.
	Timeout time.Duration
}

// Result summarises a calculation. the cells, console and usercode error
// live on the worksheet itself.
type Result struct {
	UsercodeError *grid.UsercodeError
	TimedOut      bool
	Elapsed       time.Duration
}

// Calculator runs usercode and formulas against worksheets. one calculator
// serves any number of concurrent calculations.
type Calculator struct {
	// Workers bounds concurrent cell evaluations per layer
	Workers int

	// Sheets serves run_worksheet. nil disables it.
	Sheets SheetSource

	Clock  script.Clock
	Rand   script.RandomGenerator
	Logger logrus.FieldLogger

	programs *ProgramTable
}

// NewCalculator creates a calculator with default workers, wall clock and
// random source
func NewCalculator(sheets SheetSource, logger logrus.FieldLogger) *Calculator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Calculator{
		Workers:  DefaultWorkers,
		Sheets:   sheets,
		Clock:    &script.WallClock{},
		Rand:     &script.DefaultRandomGenerator{},
		Logger:   logger,
		programs: NewProgramTable(),
	}
}

func (c *Calculator) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return DefaultWorkers
}

// Programs is the table of parsed formula programs
func (c *Calculator) Programs() *ProgramTable {
	return c.programs
}

// TimeoutMessage is the TimeoutError message for a run limited to timeout
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("calculation timed out after %d seconds", int(timeout.Round(time.Second)/time.Second))
}

// Calculate clears the values of ws, runs usercode against it and records
// the outcome on ws: cell values and errors, console output, the usercode
// error and the run time.
func (c *Calculator) Calculate(ctx context.Context, ws *grid.Worksheet, usercode string, opts Options) Result {
	timeoutMessage := ""
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		timeoutMessage = TimeoutMessage(opts.Timeout)
	}
	return c.calculate(ctx, ws, usercode, timeoutMessage, 0)
}

func (c *Calculator) calculate(ctx context.Context, ws *grid.Worksheet, usercode, timeoutMessage string, depth int) Result {
	start := c.Clock.Now()
	ws.ClearValues()
	ws.ResetConsole()

	env := c.newEnv(ws, timeoutMessage, depth)

	var result Result
	program, err := script.Parse(usercode)
	if err == nil {
		err = program.Exec(ctx, env)
	}
	if err != nil {
		result.UsercodeError = reportUsercodeError(ws, err)
		var exc *script.Exception
		result.TimedOut = ctx.Err() != nil && errors.As(err, &exc) && exc.Class == script.TimeoutError
	}

	result.Elapsed = c.Clock.Now().Sub(start)
	ws.AddConsoleText(fmt.Sprintf("Took %.2fs", result.Elapsed.Seconds()), grid.ConsoleSystem)

	log := c.Logger.WithFields(logrus.Fields{
		"sheet":   ws.Name,
		"cells":   ws.Len(),
		"elapsed": result.Elapsed,
		"depth":   depth,
	})
	if result.UsercodeError != nil {
		log.WithField("error", result.UsercodeError.Message).Debug("calculation finished with usercode error")
	} else {
		log.Debug("calculation finished")
	}
	return result
}

// newEnv builds the globals usercode sees
func (c *Calculator) newEnv(ws *grid.Worksheet, timeoutMessage string, depth int) *script.Env {
	env := script.NewEnv()
	env.Clock = c.Clock
	env.Rand = c.Rand
	env.TimeoutMessage = timeoutMessage
	env.Output = func(s string) {
		ws.AddConsoleText(s, grid.ConsoleOutput)
	}

	env.Globals.Set("worksheet", ws)
	env.Globals.Set("load_constants", &script.Builtin{Name: "load_constants", Fn: func(t *script.Thread, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		target, err := worksheetArg("load_constants", args, kwargs)
		if err != nil {
			return nil, err
		}
		LoadConstants(target)
		return nil, nil
	}})
	env.Globals.Set("evaluate_formulae", &script.Builtin{Name: "evaluate_formulae", Fn: func(t *script.Thread, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		target, err := worksheetArg("evaluate_formulae", args, kwargs)
		if err != nil {
			return nil, err
		}
		return nil, c.EvaluateFormulae(t.Context(), target, t.Env())
	}})
	env.Globals.Set("run_worksheet", c.runWorksheet(timeoutMessage, depth))
	return env
}

func worksheetArg(name string, args []script.Value, kwargs map[string]script.Value) (*grid.Worksheet, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, script.NewException(script.TypeError, fmt.Sprintf("%s() takes exactly one argument (%d given)", name, len(args)+len(kwargs)))
	}
	ws, ok := args[0].(*grid.Worksheet)
	if !ok {
		return nil, script.NewException(script.TypeError, fmt.Sprintf("%s() argument must be a Worksheet", name))
	}
	return ws, nil
}

// runWorksheet is the run_worksheet(name, overrides=None) builtin. the
// named sheet is calculated in-process with its own globals, after each
// override location gets the override's text as its formula.
func (c *Calculator) runWorksheet(timeoutMessage string, depth int) *script.Builtin {
	return &script.Builtin{Name: "run_worksheet", Fn: func(t *script.Thread, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		var nameArg, overrides script.Value
		switch len(args) {
		case 2:
			overrides = args[1]
			fallthrough
		case 1:
			nameArg = args[0]
		case 0:
		default:
			return nil, script.NewException(script.TypeError, fmt.Sprintf("run_worksheet() takes at most 2 arguments (%d given)", len(args)))
		}
		for k, v := range kwargs {
			switch {
			case k == "name" && nameArg == nil:
				nameArg = v
			case k == "overrides" && overrides == nil:
				overrides = v
			default:
				return nil, script.NewException(script.TypeError, fmt.Sprintf("run_worksheet() got an unexpected keyword argument '%s'", k))
			}
		}
		name, ok := nameArg.(string)
		if !ok {
			return nil, script.NewException(script.TypeError, "run_worksheet() requires a sheet name")
		}

		if c.Sheets == nil {
			return nil, script.NewException(script.RuntimeError, "run_worksheet: no sheets available")
		}
		if depth+1 > MaxNesting {
			return nil, script.NewException(script.RuntimeError, "run_worksheet: sheets nested too deeply")
		}

		sheet, usercode, err := c.Sheets.LoadSheet(t.Context(), name)
		if err != nil {
			if t.Context().Err() != nil {
				return nil, t.Env().TimeoutError()
			}
			return nil, script.NewException(script.BaseException, "run_worksheet: "+err.Error())
		}
		if err := applyOverrides(sheet, overrides); err != nil {
			return nil, err
		}

		result := c.calculate(t.Context(), sheet, usercode, timeoutMessage, depth+1)
		if result.TimedOut {
			return nil, t.Env().TimeoutError()
		}
		if result.UsercodeError != nil {
			return nil, script.NewException(script.BaseException, "run_worksheet: "+result.UsercodeError.Message)
		}
		return sheet, nil
	}}
}

func applyOverrides(ws *grid.Worksheet, overrides script.Value) error {
	if overrides == nil {
		return nil
	}
	d, ok := overrides.(*script.Dict)
	if !ok {
		return script.NewException(script.TypeError, "run_worksheet() overrides must be a dict")
	}
	keys, values := d.Items()
	for i, key := range keys {
		loc, err := script.LocationOf(key)
		if err != nil {
			return err
		}
		ws.Get(loc).SetFormula(script.Str(values[i]))
	}
	return nil
}

// reportUsercodeError records a failed usercode run on the sheet
func reportUsercodeError(ws *grid.Worksheet, err error) *grid.UsercodeError {
	var exc *script.Exception
	if !errors.As(err, &exc) {
		exc = script.NewException(script.RuntimeError, err.Error())
	}

	var ue *grid.UsercodeError
	if exc.Class == script.SyntaxError && len(exc.Traceback) == 0 {
		ue = &grid.UsercodeError{
			Message: fmt.Sprintf("Syntax error at character %d", exc.Offset),
			Line:    exc.Line,
		}
		ws.AddConsoleText(fmt.Sprintf("%s (line %d)\n", ue.Message, ue.Line), grid.ConsoleError)
	} else {
		ue = &grid.UsercodeError{
			Message: exc.TypeName() + ": " + exc.Message(),
			Line:    exc.InnermostLine(),
		}
		ws.AddConsoleText(fmt.Sprintf("%s\n%s\n", ue.Message, exc.FormatTraceback()), grid.ConsoleError)
	}
	ws.SetUsercodeError(ue)
	return ue
}
