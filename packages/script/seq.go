package script

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// errStopIteration ends a forEach early without being an error
var errStopIteration = errors.New("stop iteration")

// Range is the lazy integer sequence returned by range()
type Range struct {
	Start, Stop, Step int64
}

// Len is the number of elements
func (r *Range) Len() int64 {
	if r.Step > 0 && r.Start < r.Stop {
		return (r.Stop-r.Start-1)/r.Step + 1
	}
	if r.Step < 0 && r.Start > r.Stop {
		return (r.Start-r.Stop-1)/(-r.Step) + 1
	}
	return 0
}

func (r *Range) String() string {
	if r.Step == 1 {
		return fmt.Sprintf("range(%d, %d)", r.Start, r.Stop)
	}
	return fmt.Sprintf("range(%d, %d, %d)", r.Start, r.Stop, r.Step)
}

// forEach calls fn with each element of an iterable value. the thread's
// context is checked between elements.
func forEach(t *Thread, v Value, fn func(Value) error) error {
	each := func(items []Value) error {
		for _, item := range items {
			if t != nil {
				if err := t.check(); err != nil {
					return err
				}
			}
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}

	switch x := v.(type) {
	case *List:
		return each(append([]Value(nil), x.Items...))
	case Tuple:
		return each(x)
	case string:
		chars := make([]Value, 0, utf8.RuneCountInString(x))
		for _, r := range x {
			chars = append(chars, string(r))
		}
		return each(chars)
	case *Dict:
		return each(x.Keys())
	case *Range:
		n := x.Len()
		for i := range n {
			if t != nil {
				if err := t.check(); err != nil {
					return err
				}
			}
			if err := fn(x.Start + i*x.Step); err != nil {
				return err
			}
		}
		return nil
	case *grid.CellRange:
		var values []Value
		for value := range x.Values() {
			values = append(values, value)
		}
		return each(values)
	case *grid.Worksheet:
		locs := x.Locations()
		items := make([]Value, len(locs))
		for i, loc := range locs {
			items[i] = locationTuple(loc)
		}
		return each(items)
	case iterable:
		items, err := x.items()
		if err != nil {
			return err
		}
		return each(items)
	}
	return newException(TypeError, "'%s' object is not iterable", typeName(v))
}

// iterable is implemented by host values that produce a sequence
type iterable interface {
	items() ([]Value, error)
}

// iterate materialises an iterable
func iterate(t *Thread, v Value) ([]Value, error) {
	var out []Value
	err := forEach(t, v, func(item Value) error {
		out = append(out, item)
		return nil
	})
	return out, err
}

func locationTuple(loc grid.Location) Tuple {
	return Tuple{int64(loc.Col), int64(loc.Row)}
}

// length implements len()
func length(v Value) (int64, error) {
	switch x := v.(type) {
	case string:
		return int64(utf8.RuneCountInString(x)), nil
	case *List:
		return int64(len(x.Items)), nil
	case Tuple:
		return int64(len(x)), nil
	case *Dict:
		return int64(x.Len()), nil
	case *Range:
		return x.Len(), nil
	case *grid.CellRange:
		return int64(x.Len()), nil
	case *grid.Worksheet:
		return int64(x.Len()), nil
	}
	return 0, newException(TypeError, "object of type '%s' has no len()", typeName(v))
}

// sliceValue is an evaluated SliceExpr
type sliceValue struct {
	lower, upper, step Value
}

// indices resolves the slice against a sequence length, clamping the way
// the host language does
func (s sliceValue) indices(n int) (start, stop, step int, err error) {
	step = 1
	if s.step != nil {
		st, ok := toInt(s.step)
		if !ok {
			return 0, 0, 0, newException(TypeError, "slice indices must be integers or None")
		}
		if st == 0 {
			return 0, 0, 0, newException(ValueError, "slice step cannot be zero")
		}
		step = int(st)
	}

	bound := func(v Value, def int) (int, error) {
		if v == nil {
			return def, nil
		}
		i, ok := toInt(v)
		if !ok {
			return 0, newException(TypeError, "slice indices must be integers or None")
		}
		idx := int(i)
		if idx < 0 {
			idx += n
			if idx < 0 {
				if step < 0 {
					return -1, nil
				}
				return 0, nil
			}
		}
		if idx >= n {
			if step < 0 {
				return n - 1, nil
			}
			return n, nil
		}
		return idx, nil
	}

	if step > 0 {
		if start, err = bound(s.lower, 0); err != nil {
			return
		}
		stop, err = bound(s.upper, n)
	} else {
		if start, err = bound(s.lower, n-1); err != nil {
			return
		}
		stop, err = bound(s.upper, -1)
	}
	return
}

func (s sliceValue) pick(items []Value) ([]Value, error) {
	start, stop, step, err := s.indices(len(items))
	if err != nil {
		return nil, err
	}
	var out []Value
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, items[i])
		}
	}
	return out, nil
}

// sequenceIndex resolves a possibly negative index
func sequenceIndex(index Value, n int, kind string) (int, error) {
	i, ok := toInt(index)
	if !ok {
		return 0, newException(TypeError, "%s indices must be integers, not %s", kind, typeName(index))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, newException(IndexError, "%s index out of range", kind)
	}
	return int(i), nil
}

// getItem implements container[index]
func getItem(container, index Value) (Value, error) {
	switch x := container.(type) {
	case *List:
		if s, ok := index.(sliceValue); ok {
			items, err := s.pick(x.Items)
			if err != nil {
				return nil, err
			}
			return NewList(items...), nil
		}
		i, err := sequenceIndex(index, len(x.Items), "list")
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case Tuple:
		if s, ok := index.(sliceValue); ok {
			items, err := s.pick(x)
			if err != nil {
				return nil, err
			}
			return Tuple(items), nil
		}
		i, err := sequenceIndex(index, len(x), "tuple")
		if err != nil {
			return nil, err
		}
		return x[i], nil
	case string:
		runes := []rune(x)
		chars := make([]Value, len(runes))
		for i, r := range runes {
			chars[i] = string(r)
		}
		if s, ok := index.(sliceValue); ok {
			items, err := s.pick(chars)
			if err != nil {
				return nil, err
			}
			out := ""
			for _, c := range items {
				out += c.(string)
			}
			return out, nil
		}
		i, err := sequenceIndex(index, len(chars), "string")
		if err != nil {
			return nil, err
		}
		return chars[i], nil
	case *Range:
		i, err := sequenceIndex(index, int(x.Len()), "range object")
		if err != nil {
			return nil, err
		}
		return x.Start + int64(i)*x.Step, nil
	case *Dict:
		v, found, err := x.Get(index)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &Exception{Class: KeyError, Args: []Value{index}}
		}
		return v, nil
	case *grid.Worksheet:
		loc, err := worksheetKey(index)
		if err != nil {
			return nil, err
		}
		return x.Get(loc), nil
	case *grid.CellRange:
		col, row, err := rangeKey(index)
		if err != nil {
			return nil, err
		}
		cell, err := x.At(col, row)
		if err != nil {
			return nil, newException(IndexError, "%s", err.Error())
		}
		return cell, nil
	}
	return nil, newException(TypeError, "'%s' object is not subscriptable", typeName(container))
}

// setItem implements container[index] = value
func setItem(container, index, value Value) error {
	switch x := container.(type) {
	case *List:
		if s, ok := index.(sliceValue); ok {
			return assignSlice(x, s, value)
		}
		i, err := sequenceIndex(index, len(x.Items), "list assignment")
		if err != nil {
			return err
		}
		x.Items[i] = value
		return nil
	case *Dict:
		return x.Set(index, value)
	case *grid.Worksheet:
		loc, err := worksheetKey(index)
		if err != nil {
			return err
		}
		cell, ok := value.(*grid.Cell)
		if !ok {
			return newException(TypeError, "Worksheet locations must be Cell objects")
		}
		x.Set(loc, cell)
		return nil
	case *grid.CellRange:
		col, row, err := rangeKey(index)
		if err != nil {
			return err
		}
		cell, ok := value.(*grid.Cell)
		if !ok {
			return newException(TypeError, "Cell ranges can only contain Cell objects")
		}
		if err := x.SetAt(col, row, cell); err != nil {
			return newException(IndexError, "%s", err.Error())
		}
		return nil
	}
	return newException(TypeError, "'%s' object does not support item assignment", typeName(container))
}

func assignSlice(l *List, s sliceValue, value Value) error {
	if s.step != nil {
		return newException(ValueError, "extended slice assignment is not supported")
	}
	items, err := iterate(nil, value)
	if err != nil {
		return err
	}
	start, stop, _, err := s.indices(len(l.Items))
	if err != nil {
		return err
	}
	if stop < start {
		stop = start
	}
	out := append([]Value(nil), l.Items[:start]...)
	out = append(out, items...)
	l.Items = append(out, l.Items[stop:]...)
	return nil
}

// delItem implements del container[index]
func delItem(container, index Value) error {
	switch x := container.(type) {
	case *List:
		i, err := sequenceIndex(index, len(x.Items), "list assignment")
		if err != nil {
			return err
		}
		x.Items = append(x.Items[:i], x.Items[i+1:]...)
		return nil
	case *Dict:
		found, err := x.Delete(index)
		if err != nil {
			return err
		}
		if !found {
			return &Exception{Class: KeyError, Args: []Value{index}}
		}
		return nil
	case *grid.Worksheet:
		loc, err := worksheetKey(index)
		if err != nil {
			return err
		}
		x.Delete(loc)
		return nil
	}
	return newException(TypeError, "'%s' object does not support item deletion", typeName(container))
}

// LocationOf converts a worksheet index to a location
func LocationOf(index Value) (grid.Location, error) {
	return worksheetKey(index)
}

// worksheetKey accepts (col, row), ("B", 3) and "B3"
func worksheetKey(index Value) (grid.Location, error) {
	switch x := index.(type) {
	case string:
		if loc, ok := grid.CellNameToCoordinates(x); ok {
			return loc, nil
		}
		return grid.Location{}, &Exception{Class: KeyError, Args: []Value{x}}
	case Tuple:
		if len(x) == 2 {
			row, rowOK := toInt(x[1])
			var col int64
			colOK := false
			switch c := x[0].(type) {
			case string:
				var idx int
				idx, colOK = grid.ColumnNameToIndex(c)
				col = int64(idx)
			default:
				col, colOK = toInt(c)
			}
			if colOK && rowOK && col > 0 && row > 0 {
				return grid.Loc(int(col), int(row)), nil
			}
		}
		return grid.Location{}, &Exception{Class: KeyError, Args: []Value{x}}
	}
	return grid.Location{}, newException(TypeError, "Worksheet indices must be (column, row) tuples or cell names, not %s", typeName(index))
}

// rangeKey accepts range-relative (col, row) tuples
func rangeKey(index Value) (int, int, error) {
	if x, ok := index.(Tuple); ok && len(x) == 2 {
		col, colOK := toInt(x[0])
		row, rowOK := toInt(x[1])
		if colOK && rowOK {
			return int(col), int(row), nil
		}
	}
	return 0, 0, newException(TypeError, "CellRange indices must be (column, row) tuples")
}
