// Package clipboard copies, cuts and pastes blocks of cells, moving the
// references in their formulas the way a spreadsheet user expects.
package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// ErrEmpty is returned when pasting before anything was copied
var ErrEmpty = errors.New("clipboard is empty")

// Clipboard holds one copied or cut block. the block is kept in the
// worksheet storage format with locations relative to its top-left corner,
// so "0,0" is the corner cell.
type Clipboard struct {
	mu       sync.Mutex
	contents []byte
	isCut    bool
	source   grid.Bounds
	// name of the sheet cut from, so that pasting back into it can
	// retarget the formulas left behind
	sourceSheet string
}

// New returns an empty clipboard
func New() *Clipboard {
	return &Clipboard{}
}

// Copy puts the cells between start and end on the clipboard. a cell
// without a formula is copied with its formatted value as its formula.
func (c *Clipboard) Copy(ws *grid.Worksheet, start, end grid.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.copy(ws, start, end)
	return err
}

func (c *Clipboard) copy(ws *grid.Worksheet, start, end grid.Location) (*grid.CellRange, error) {
	rng := grid.NewCellRange(ws, start, end)
	clip := grid.NewWorksheet("clipboard")
	for loc := range rng.Locations() {
		cell, ok := ws.Lookup(loc)
		if !ok || cell.IsEmpty() {
			continue
		}
		cp := cell.Copy()
		if cp.Formula() == "" {
			cp.SetFormula(cp.FormattedValue())
		}
		clip.Set(grid.Loc(loc.Col-rng.Left, loc.Row-rng.Top), cp)
	}

	contents, err := clip.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("copy %s: %w", rng, err)
	}
	c.contents = contents
	c.isCut = false
	c.sourceSheet = ""
	c.source = grid.Bounds{Left: rng.Left, Top: rng.Top, Right: rng.Right, Bottom: rng.Bottom}
	return rng, nil
}

// Cut copies the cells between start and end, then removes them from ws
func (c *Clipboard) Cut(ws *grid.Worksheet, start, end grid.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rng, err := c.copy(ws, start, end)
	if err != nil {
		return err
	}
	for loc := range rng.Locations() {
		ws.Delete(loc)
	}
	c.isCut = true
	c.sourceSheet = ws.Name
	return nil
}

// Contents returns the clipboard block in the worksheet storage format
func (c *Clipboard) Contents() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.contents...)
}

// IsCut reports whether the block came from a cut not yet pasted
func (c *Clipboard) IsCut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCut
}

// Source returns the bounds the block was taken from
func (c *Clipboard) Source() grid.Bounds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

func (c *Clipboard) width() int  { return c.source.Right - c.source.Left + 1 }
func (c *Clipboard) height() int { return c.source.Bottom - c.source.Top + 1 }

// PasteTo writes the block into ws with its top-left corner at start,
// repeating it as often as fits up to end. when end equals start a single
// copy is pasted.
//
// pasting a cut moves it: formulas in the source sheet that pointed into
// the cut block follow it, and the clipboard afterwards holds an ordinary
// copy of the pasted cells.
func (c *Clipboard) PasteTo(ws *grid.Worksheet, start, end grid.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contents == nil {
		return ErrEmpty
	}
	clip, err := grid.Decode("clipboard", c.contents)
	if err != nil {
		return fmt.Errorf("paste: %w", err)
	}

	if end == start {
		end = grid.Loc(start.Col+c.width()-1, start.Row+c.height()-1)
	}
	if c.isCut && ws.Name == c.sourceSheet {
		RewriteSourceSheetFormulaeForCut(ws, c.source, start.Col, start.Row)
	}

	for col := 0; col <= end.Col-start.Col; col++ {
		for row := 0; row <= end.Row-start.Row; row++ {
			dest := grid.Loc(start.Col+col, start.Row+row)
			clipCell, ok := clip.Lookup(grid.Loc(col%c.width(), row%c.height()))
			if !ok {
				ws.Delete(dest)
				continue
			}
			cell := grid.NewCell()
			if f := clipCell.Formula(); f != "" {
				dCol, dRow := c.offset(col, row, start)
				cell.SetFormula(RewriteFormula(f, dCol, dRow, c.isCut, c.source))
			}
			cell.SetFormattedValue(clipCell.FormattedValue())
			ws.Set(dest, cell)
		}
	}

	if c.isCut {
		_, err := c.copy(ws, start, grid.Loc(start.Col+c.width()-1, start.Row+c.height()-1))
		return err
	}
	return nil
}

// offset is how far the tile holding the relative position (col, row)
// sits from the block's source
func (c *Clipboard) offset(col, row int, start grid.Location) (int, int) {
	tileCol := col / c.width() * c.width()
	tileRow := row / c.height() * c.height()
	return start.Col - c.source.Left + tileCol, start.Row - c.source.Top + tileRow
}
