package grid

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// ConsoleKind classifies an entry of the console transcript
type ConsoleKind string

const (
	ConsoleError  ConsoleKind = "error"
	ConsoleOutput ConsoleKind = "output"
	ConsoleSystem ConsoleKind = "system"
)

// ConsoleEntry is one chunk of text written to the console
type ConsoleEntry struct {
	Type ConsoleKind `json:"type"`
	Text string      `json:"text"`
}

// UsercodeError describes the failure of a sheet's usercode run
type UsercodeError struct {
	Message string `json:"message"`
	Line    int    `json:"line"`
}

// Bounds is the smallest rectangle containing every non-empty cell
type Bounds struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Contains reports whether loc is inside the rectangle
func (b Bounds) Contains(loc Location) bool {
	return loc.Col >= b.Left && loc.Col <= b.Right && loc.Row >= b.Top && loc.Row <= b.Bottom
}

// Worksheet is a sparse grid of cells, plus the console transcript and
// usercode error of the last calculation.
//
// the cell map and the console have independent locks so that formula
// evaluations in the same layer can read and write cells while others print.
type Worksheet struct {
	Name string

	mu    sync.RWMutex
	cells map[Location]*Cell

	consoleMu     sync.Mutex
	console       []ConsoleEntry
	usercodeError *UsercodeError

	gen          atomic.Uint64
	boundsMu     sync.Mutex
	boundsGen    uint64
	boundsValid  bool
	cachedBounds Bounds
	cachedHas    bool
}

// NewWorksheet creates an empty worksheet
func NewWorksheet(name string) *Worksheet {
	return &Worksheet{
		Name:  name,
		cells: make(map[Location]*Cell),
	}
}

func (ws *Worksheet) adopt(c *Cell) *Cell {
	c.gen = &ws.gen
	return c
}

// Get returns the cell at loc, creating and storing an empty one when there
// is none yet
func (ws *Worksheet) Get(loc Location) *Cell {
	ws.mu.RLock()
	c, ok := ws.cells[loc]
	ws.mu.RUnlock()
	if ok {
		return c
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if c, ok = ws.cells[loc]; ok {
		return c
	}
	c = ws.adopt(NewCell())
	ws.cells[loc] = c
	ws.gen.Add(1)
	return c
}

// Lookup returns the cell at loc without creating it
func (ws *Worksheet) Lookup(loc Location) (*Cell, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	c, ok := ws.cells[loc]
	return c, ok
}

// Set stores cell at loc, replacing whatever was there
func (ws *Worksheet) Set(loc Location, cell *Cell) {
	ws.mu.Lock()
	ws.cells[loc] = ws.adopt(cell)
	ws.mu.Unlock()
	ws.gen.Add(1)
}

// Delete removes the cell at loc
func (ws *Worksheet) Delete(loc Location) {
	ws.mu.Lock()
	delete(ws.cells, loc)
	ws.mu.Unlock()
	ws.gen.Add(1)
}

// Locations returns every stored location ordered by column, then row
func (ws *Worksheet) Locations() []Location {
	ws.mu.RLock()
	locs := make([]Location, 0, len(ws.cells))
	for loc := range ws.cells {
		locs = append(locs, loc)
	}
	ws.mu.RUnlock()
	slices.SortFunc(locs, compareLocations)
	return locs
}

func compareLocations(a, b Location) int {
	if a.Col != b.Col {
		return a.Col - b.Col
	}
	return a.Row - b.Row
}

// Len counts the non-empty cells
func (ws *Worksheet) Len() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	n := 0
	for _, c := range ws.cells {
		if !c.IsEmpty() {
			n++
		}
	}
	return n
}

// SetCellFormula sets the formula of the cell at (col, row). an empty
// formula removes the cell.
func (ws *Worksheet) SetCellFormula(col, row int, formula string) {
	loc := Loc(col, row)
	if formula == "" {
		ws.Delete(loc)
		return
	}
	ws.Get(loc).SetFormula(formula)
}

// ClearValues prepares the sheet for a recalculation: formula cells lose
// their value and error, everything else is dropped.
func (ws *Worksheet) ClearValues() {
	ws.mu.Lock()
	for loc, c := range ws.cells {
		if c.Formula() == "" {
			delete(ws.cells, loc)
			continue
		}
		c.mu.Lock()
		c.value = Undefined
		c.formattedValue = ""
		c.err = ""
		c.mu.Unlock()
	}
	ws.mu.Unlock()
	ws.gen.Add(1)
}

// CellRange returns the range spanning the two corners
func (ws *Worksheet) CellRange(start, end Location) *CellRange {
	return NewCellRange(ws, start, end)
}

// ParseCellRange builds a range from text like "A1:B2"
func (ws *Worksheet) ParseCellRange(s string) (*CellRange, error) {
	start, end, ok := CellRangeToCoordinates(s)
	if !ok {
		return nil, fmt.Errorf("Invalid cell range '%s'", s)
	}
	return NewCellRange(ws, start, end), nil
}

// CellRangeFromNames builds a range from two cell names
func (ws *Worksheet) CellRangeFromNames(a, b string) (*CellRange, error) {
	start, okA := CellNameToCoordinates(a)
	end, okB := CellNameToCoordinates(b)
	switch {
	case !okA && !okB:
		return nil, fmt.Errorf("Neither %s nor %s are valid cell locations", a, b)
	case !okA:
		return nil, fmt.Errorf("%s is not a valid cell location", a)
	case !okB:
		return nil, fmt.Errorf("%s is not a valid cell location", b)
	}
	return NewCellRange(ws, start, end), nil
}

// Bounds returns the rectangle around all non-empty cells. the second
// result is false for an empty sheet.
func (ws *Worksheet) Bounds() (Bounds, bool) {
	ws.boundsMu.Lock()
	defer ws.boundsMu.Unlock()

	gen := ws.gen.Load()
	if ws.boundsValid && ws.boundsGen == gen {
		return ws.cachedBounds, ws.cachedHas
	}

	var b Bounds
	has := false
	ws.mu.RLock()
	for loc, c := range ws.cells {
		if c.IsEmpty() {
			continue
		}
		if !has {
			b = Bounds{Left: loc.Col, Top: loc.Row, Right: loc.Col, Bottom: loc.Row}
			has = true
			continue
		}
		b.Left = min(b.Left, loc.Col)
		b.Top = min(b.Top, loc.Row)
		b.Right = max(b.Right, loc.Col)
		b.Bottom = max(b.Bottom, loc.Row)
	}
	ws.mu.RUnlock()

	ws.cachedBounds, ws.cachedHas = b, has
	ws.boundsGen, ws.boundsValid = gen, true
	return b, has
}

// AddConsoleText appends to the console transcript
func (ws *Worksheet) AddConsoleText(text string, kind ConsoleKind) {
	ws.consoleMu.Lock()
	ws.console = append(ws.console, ConsoleEntry{Type: kind, Text: text})
	ws.consoleMu.Unlock()
}

// ConsoleText returns a copy of the transcript in write order
func (ws *Worksheet) ConsoleText() []ConsoleEntry {
	ws.consoleMu.Lock()
	defer ws.consoleMu.Unlock()
	return slices.Clone(ws.console)
}

// ResetConsole empties the transcript and clears the usercode error
func (ws *Worksheet) ResetConsole() {
	ws.consoleMu.Lock()
	ws.console = nil
	ws.usercodeError = nil
	ws.consoleMu.Unlock()
}

func (ws *Worksheet) UsercodeError() *UsercodeError {
	ws.consoleMu.Lock()
	defer ws.consoleMu.Unlock()
	if ws.usercodeError == nil {
		return nil
	}
	e := *ws.usercodeError
	return &e
}

func (ws *Worksheet) SetUsercodeError(e *UsercodeError) {
	ws.consoleMu.Lock()
	ws.usercodeError = e
	ws.consoleMu.Unlock()
}

// Clone returns a deep copy, cells included
func (ws *Worksheet) Clone() *Worksheet {
	out := NewWorksheet(ws.Name)
	ws.mu.RLock()
	for loc, c := range ws.cells {
		out.cells[loc] = out.adopt(c.Copy())
	}
	ws.mu.RUnlock()
	out.console = ws.ConsoleText()
	out.usercodeError = ws.UsercodeError()
	return out
}

// ReplaceCells swaps this sheet's cells for a deep copy of other's cells
func (ws *Worksheet) ReplaceCells(other *Worksheet) {
	cells := make(map[Location]*Cell)
	other.mu.RLock()
	for loc, c := range other.cells {
		cells[loc] = ws.adopt(c.Copy())
	}
	other.mu.RUnlock()

	ws.mu.Lock()
	ws.cells = cells
	ws.mu.Unlock()
	ws.gen.Add(1)
}

func (ws *Worksheet) String() string {
	return fmt.Sprintf("<Worksheet %s>", ws.Name)
}
