package script

import (
	"fmt"
	"math"
	"time"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// DateTime is a calendar timestamp without a zone
type DateTime struct {
	time.Time
}

// NewDateTime builds a DateTime, validating each field
func NewDateTime(year, month, day, hour, minute, second int) (*DateTime, error) {
	switch {
	case year < 1 || year > 9999:
		return nil, newException(ValueError, "year %d is out of range", year)
	case month < 1 || month > 12:
		return nil, newException(ValueError, "month must be in 1..12")
	case hour < 0 || hour > 23:
		return nil, newException(ValueError, "hour must be in 0..23")
	case minute < 0 || minute > 59:
		return nil, newException(ValueError, "minute must be in 0..59")
	case second < 0 || second > 59:
		return nil, newException(ValueError, "second must be in 0..59")
	}
	daysInMonth := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day < 1 || day > daysInMonth {
		return nil, newException(ValueError, "day is out of range for month")
	}
	return &DateTime{Time: time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)}, nil
}

func (d *DateTime) String() string {
	return d.Format("2006-01-02 15:04:05")
}

func (d *DateTime) Repr() string {
	return fmt.Sprintf("DateTime(%d, %d, %d, %d, %d, %d)",
		d.Year(), int(d.Month()), d.Day(), d.Hour(), d.Minute(), d.Second())
}

func (d *DateTime) addDays(days float64) *DateTime {
	return &DateTime{Time: d.Add(time.Duration(math.Round(days * float64(24*time.Hour))))}
}

var dateTimeType = &Type{
	Name:  "DateTime",
	Match: func(v Value) bool { _, ok := v.(*DateTime); return ok },
	New: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		names := []string{"year", "month", "day", "hour", "minute", "second"}
		fields := make([]int, len(names))
		set := make([]bool, len(names))
		if len(args) > len(names) {
			return nil, checkArgs("DateTime", args, 3, 6)
		}
		for i, a := range args {
			n, err := intArg("DateTime", a)
			if err != nil {
				return nil, err
			}
			fields[i], set[i] = int(n), true
		}
		for k, v := range kwargs {
			idx := -1
			for i, name := range names {
				if name == k {
					idx = i
				}
			}
			if idx < 0 {
				return nil, newException(TypeError, "DateTime() got an unexpected keyword argument '%s'", k)
			}
			n, err := intArg("DateTime", v)
			if err != nil {
				return nil, err
			}
			fields[idx], set[idx] = int(n), true
		}
		for i := range 3 {
			if !set[i] {
				return nil, newException(TypeError, "DateTime() missing required argument '%s'", names[i])
			}
		}
		return NewDateTime(fields[0], fields[1], fields[2], fields[3], fields[4], fields[5])
	},
}

func dateTimeAttr(d *DateTime, name string) (Value, bool) {
	switch name {
	case "year":
		return int64(d.Year()), true
	case "month":
		return int64(d.Month()), true
	case "day":
		return int64(d.Day()), true
	case "hour":
		return int64(d.Hour()), true
	case "minute":
		return int64(d.Minute()), true
	case "second":
		return int64(d.Second()), true
	case "isoformat":
		return method(d, name, func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return d.Format("2006-01-02T15:04:05"), nil
		}), true
	case "weekday":
		return method(d, name, func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return int64((d.Weekday() + 6) % 7), nil
		}), true
	case "timestamp":
		return method(d, name, func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return float64(d.Unix()), nil
		}), true
	}
	return nil, false
}

func worksheetAttr(ws *grid.Worksheet, name string) (Value, bool) {
	switch name {
	case "name":
		return ws.Name, true
	case "bounds":
		b, ok := ws.Bounds()
		if !ok {
			return nil, true
		}
		return Tuple{int64(b.Left), int64(b.Top), int64(b.Right), int64(b.Bottom)}, true
	case "cell_range":
		return method(ws, name, func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("cell_range", args, 1, 2); err != nil {
				return nil, err
			}
			return cellRangeFromArgs(ws, args)
		}), true
	case "console_text":
		return method(ws, name, func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			out := ""
			for _, entry := range ws.ConsoleText() {
				out += entry.Text
			}
			return out, nil
		}), true
	}
	// worksheet.B3
	if loc, ok := grid.CellNameToCoordinates(name); ok {
		return ws.Get(loc), true
	}
	return nil, false
}

// cellRangeFromArgs accepts "A1:B2", ("A1", "B2") and ((c, r), (c, r))
func cellRangeFromArgs(ws *grid.Worksheet, args []Value) (Value, error) {
	if len(args) == 1 {
		s, ok := args[0].(string)
		if !ok {
			return nil, newException(TypeError, "cell_range() takes a range name or two corners")
		}
		r, err := ws.ParseCellRange(s)
		if err != nil {
			return nil, newException(ValueError, "%s", err.Error())
		}
		return r, nil
	}
	if a, ok := args[0].(string); ok {
		b, ok := args[1].(string)
		if !ok {
			return nil, newException(TypeError, "cell_range() corners must both be names or both be tuples")
		}
		r, err := ws.CellRangeFromNames(a, b)
		if err != nil {
			return nil, newException(ValueError, "%s", err.Error())
		}
		return r, nil
	}
	start, err := worksheetKey(args[0])
	if err != nil {
		return nil, err
	}
	end, err := worksheetKey(args[1])
	if err != nil {
		return nil, err
	}
	return ws.CellRange(start, end), nil
}

var cellRangeType = &Type{
	Name:  "CellRange",
	Match: func(v Value) bool { _, ok := v.(*grid.CellRange); return ok },
	New: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("CellRange", args, 2, 3); err != nil {
			return nil, err
		}
		ws, ok := args[0].(*grid.Worksheet)
		if !ok {
			return nil, newException(TypeError, "CellRange() first argument must be a Worksheet, not %s", typeName(args[0]))
		}
		return cellRangeFromArgs(ws, args[1:])
	},
}

func cellAttr(c *grid.Cell, name string) (Value, bool) {
	switch name {
	case "value":
		return c.Value(), true
	case "formula":
		if f := c.Formula(); f != "" {
			return f, true
		}
		return nil, true
	case "python_formula":
		if f := c.PythonFormula(); f != "" {
			return f, true
		}
		return nil, true
	case "formatted_value":
		return c.FormattedValue(), true
	case "error":
		if e := c.Error(); e != "" {
			return e, true
		}
		return nil, true
	case "dependencies":
		deps := c.Dependencies()
		items := make([]Value, len(deps))
		for i, loc := range deps {
			items[i] = locationTuple(loc)
		}
		return NewList(items...), true
	case "clear":
		return method(c, name, func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			c.Clear()
			return nil, nil
		}), true
	}
	return nil, false
}

func setCellAttr(c *grid.Cell, name string, v Value) error {
	switch name {
	case "value":
		c.SetValue(v)
	case "formula":
		if v == nil {
			c.SetFormula("")
			return nil
		}
		s, ok := v.(string)
		if !ok {
			return newException(TypeError, "cell formulae must be strings, not %s", typeName(v))
		}
		c.SetFormula(s)
	case "formatted_value":
		c.SetFormattedValue(Str(v))
	case "error":
		if v == nil {
			c.SetError("")
			return nil
		}
		c.SetError(Str(v))
	default:
		return newException(AttributeError, "'Cell' object has no attribute '%s'", name)
	}
	return nil
}

func cellRangeAttr(r *grid.CellRange, name string) (Value, bool) {
	switch name {
	case "left":
		return int64(r.Left), true
	case "top":
		return int64(r.Top), true
	case "right":
		return int64(r.Right), true
	case "bottom":
		return int64(r.Bottom), true
	case "width":
		return int64(r.Width()), true
	case "height":
		return int64(r.Height()), true
	case "worksheet":
		return r.Worksheet, true
	case "locations":
		var items []Value
		for loc := range r.Locations() {
			items = append(items, locationTuple(loc))
		}
		return NewList(items...), true
	case "cells":
		var items []Value
		for c := range r.Cells() {
			items = append(items, c)
		}
		return NewList(items...), true
	case "locations_and_cells":
		var items []Value
		for loc, c := range r.LocationsAndCells() {
			items = append(items, Tuple{locationTuple(loc), c})
		}
		return NewList(items...), true
	case "clear":
		return method(r, name, func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			r.Clear()
			return nil, nil
		}), true
	}
	return nil, false
}
