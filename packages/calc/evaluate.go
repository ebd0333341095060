package calc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/script"
)

// LoadConstants evaluates every formula not starting with "=" as a
// constant: an int, else a float, else the text itself
func LoadConstants(ws *grid.Worksheet) {
	for _, loc := range ws.Locations() {
		cell, ok := ws.Lookup(loc)
		if !ok {
			continue
		}
		f := cell.Formula()
		if f == "" || strings.HasPrefix(f, "=") {
			continue
		}
		cell.SetValue(script.EvalConstant(f))
		cell.SetError("")
	}
}

// EvaluateFormulae builds the dependency graph of ws and evaluates its
// formula cells layer by layer against env. cells in one layer run
// concurrently. the only error returned is the TimeoutError raised when
// ctx is done; evaluation failures are recorded on the cells.
func (c *Calculator) EvaluateFormulae(ctx context.Context, ws *grid.Worksheet, env *script.Env) error {
	for _, loc := range ws.Locations() {
		if cell, ok := ws.Lookup(loc); ok && strings.HasPrefix(cell.Formula(), "=") {
			cell.SetError("")
		}
	}

	graph := BuildDependencyGraph(ws, CompileCell)
	for _, cycle := range graph.Cycles {
		if cell, ok := ws.Lookup(cycle.Location); ok {
			reportCellError(ws, cycle.Location, cell, cycle.Err)
		}
	}

	for _, layer := range graph.Layers() {
		g := new(errgroup.Group)
		g.SetLimit(c.workers())
		for _, loc := range layer {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				return c.evaluateCell(ctx, ws, env, loc)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return env.TimeoutError()
		}
	}
	return nil
}

// evaluateCell runs one compiled formula. the returned error is non-nil
// only when the run was cut short by ctx.
func (c *Calculator) evaluateCell(ctx context.Context, ws *grid.Worksheet, env *script.Env, loc grid.Location) error {
	cell, ok := ws.Lookup(loc)
	if !ok {
		return nil
	}
	cell.SetError("")

	program, err := c.programs.Intern(cell.PythonFormula())
	var value script.Value
	if err == nil {
		value, err = program.Eval(ctx, env)
	}
	if err != nil {
		if ctx.Err() != nil {
			return env.TimeoutError()
		}
		reportCellError(ws, loc, cell, err)
		return nil
	}
	cell.SetValue(value)
	return nil
}

// cellErrorMessage renders err as "<Type>: <message>"
func cellErrorMessage(err error) string {
	var cycle *CycleError
	if errors.As(err, &cycle) {
		return "CycleError: " + cycle.Error()
	}
	var exc *script.Exception
	if errors.As(err, &exc) {
		return exc.TypeName() + ": " + exc.Message()
	}
	return "Exception: " + err.Error()
}

// reportCellError puts the cell in error and notes it on the console
func reportCellError(ws *grid.Worksheet, loc grid.Location, cell *grid.Cell, err error) {
	msg := cellErrorMessage(err)
	cell.SetError(msg)
	ws.AddConsoleText(fmt.Sprintf("%s\n    Formula '%s' in %s\n", msg, cell.Formula(), loc), grid.ConsoleError)
}
