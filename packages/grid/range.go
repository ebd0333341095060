package grid

import (
	"fmt"
	"iter"
)

// RangeIndexError is returned for out-of-range CellRange lookups
type RangeIndexError struct {
	Message string
}

func (e *RangeIndexError) Error() string {
	return e.Message
}

// CellRange is a rectangular view onto a worksheet. cells are resolved on
// access, so writes through the worksheet show up in the range.
type CellRange struct {
	Worksheet *Worksheet
	Left      int
	Top       int
	Right     int
	Bottom    int
}

// NewCellRange creates a range from any two opposite corners
func NewCellRange(ws *Worksheet, a, b Location) *CellRange {
	return &CellRange{
		Worksheet: ws,
		Left:      min(a.Col, b.Col),
		Top:       min(a.Row, b.Row),
		Right:     max(a.Col, b.Col),
		Bottom:    max(a.Row, b.Row),
	}
}

func (r *CellRange) Width() int  { return r.Right - r.Left + 1 }
func (r *CellRange) Height() int { return r.Bottom - r.Top + 1 }
func (r *CellRange) Len() int    { return r.Width() * r.Height() }

// Locations iterates over the covered locations row by row
func (r *CellRange) Locations() iter.Seq[Location] {
	return func(yield func(Location) bool) {
		for row := r.Top; row <= r.Bottom; row++ {
			for col := r.Left; col <= r.Right; col++ {
				if !yield(Loc(col, row)) {
					return
				}
			}
		}
	}
}

// LocationsAndCells iterates over locations and their cells, creating
// missing cells on the way
func (r *CellRange) LocationsAndCells() iter.Seq2[Location, *Cell] {
	return func(yield func(Location, *Cell) bool) {
		for loc := range r.Locations() {
			if !yield(loc, r.Worksheet.Get(loc)) {
				return
			}
		}
	}
}

// Cells iterates over the member cells
func (r *CellRange) Cells() iter.Seq[*Cell] {
	return func(yield func(*Cell) bool) {
		for _, c := range r.LocationsAndCells() {
			if !yield(c) {
				return
			}
		}
	}
}

// Values iterates over the member values
func (r *CellRange) Values() iter.Seq[any] {
	return func(yield func(any) bool) {
		for c := range r.Cells() {
			if !yield(c.Value()) {
				return
			}
		}
	}
}

// Contains reports whether loc is inside the range
func (r *CellRange) Contains(loc Location) bool {
	return loc.Col >= r.Left && loc.Col <= r.Right && loc.Row >= r.Top && loc.Row <= r.Bottom
}

// Resolve maps a range-relative index to a worksheet location. indices are
// 1-based; negative indices count back from the far edge.
func (r *CellRange) Resolve(col, row int) (Location, error) {
	if col == 0 || row == 0 {
		return Location{}, &RangeIndexError{Message: "Cell ranges are 1-indexed"}
	}
	if col > r.Width() || -col > r.Width() {
		return Location{}, &RangeIndexError{Message: fmt.Sprintf("Cell range only has %d columns", r.Width())}
	}
	if row > r.Height() || -row > r.Height() {
		return Location{}, &RangeIndexError{Message: fmt.Sprintf("Cell range only has %d rows", r.Height())}
	}
	var loc Location
	if col < 0 {
		loc.Col = r.Right + col + 1
	} else {
		loc.Col = r.Left + col - 1
	}
	if row < 0 {
		loc.Row = r.Bottom + row + 1
	} else {
		loc.Row = r.Top + row - 1
	}
	return loc, nil
}

// At returns the cell at the range-relative index, creating it if needed
func (r *CellRange) At(col, row int) (*Cell, error) {
	loc, err := r.Resolve(col, row)
	if err != nil {
		return nil, err
	}
	return r.Worksheet.Get(loc), nil
}

// SetAt replaces the cell at the range-relative index
func (r *CellRange) SetAt(col, row int, cell *Cell) error {
	loc, err := r.Resolve(col, row)
	if err != nil {
		return err
	}
	r.Worksheet.Set(loc, cell)
	return nil
}

// Clear wipes every member cell in place
func (r *CellRange) Clear() {
	for c := range r.Cells() {
		c.Clear()
	}
}

func (r *CellRange) String() string {
	return fmt.Sprintf("<CellRange %s to %s in %s>", Loc(r.Left, r.Top), Loc(r.Right, r.Bottom), r.Worksheet)
}
