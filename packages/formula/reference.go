package formula

import (
	"strconv"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

const (
	invalidMarker = "#Invalid!"
	deletedMarker = "#Deleted!"
)

// CellRef is a view over a KindCellReference node
type CellRef struct {
	node *Node
}

// CellRef returns a view of n if it is a cell reference
func (n *Node) CellRef() (CellRef, bool) {
	if n.Kind != KindCellReference {
		return CellRef{}, false
	}
	return CellRef{node: n}, true
}

func (r CellRef) token() *Node {
	return r.node.Children[0]
}

// Coords returns the referenced location
func (r CellRef) Coords() grid.Location {
	loc, _ := grid.CellNameToCoordinates(r.token().Text)
	return loc
}

// ColAbsolute reports a "$" before the column letters
func (r CellRef) ColAbsolute() bool {
	return strings.HasPrefix(r.token().Text, "$")
}

// RowAbsolute reports a "$" before the row number
func (r CellRef) RowAbsolute() bool {
	text := strings.TrimRight(r.token().Text, " \t")
	return strings.Contains(strings.TrimPrefix(text, "$"), "$")
}

// Offset moves the reference. absolute parts only move when moveAbsolute
// is set. a reference pushed off the grid turns into #Invalid!.
func (r CellRef) Offset(dCol, dRow int, moveAbsolute bool) {
	loc := r.Coords()
	colAbs, rowAbs := r.ColAbsolute(), r.RowAbsolute()
	if !colAbs || moveAbsolute {
		loc.Col += dCol
	}
	if !rowAbs || moveAbsolute {
		loc.Row += dRow
	}
	tok := r.token()
	name, ok := grid.CoordinatesToCellName(loc.Col, loc.Row, colAbs, rowAbs)
	if !ok {
		invalidate(r.node)
		return
	}
	tok.Text = name + tokenWhitespace(tok)
}

// invalidate turns a reference node into an #Invalid! marker, keeping its
// trailing whitespace
func invalidate(n *Node) {
	tok := n.Children[0]
	tok.Text = invalidMarker + tokenWhitespace(tok)
	tok.Type = TokenInvalidRef
	n.Kind = KindInvalidReference
}

func tokenWhitespace(tok *Node) string {
	return tok.Text[len(strings.TrimRight(tok.Text, " \t")):]
}

// ColumnRef is a view over a KindColumnReference node like "B_" or "$B_"
type ColumnRef struct {
	node *Node
}

// ColumnRef returns a view of n if it is a column reference
func (n *Node) ColumnRef() (ColumnRef, bool) {
	if n.Kind != KindColumnReference {
		return ColumnRef{}, false
	}
	return ColumnRef{node: n}, true
}

func (r ColumnRef) text() string {
	return strings.TrimRight(r.node.Children[0].Text, " \t")
}

// Coords returns the column index
func (r ColumnRef) Coords() int {
	col, _ := grid.ColumnNameToIndex(strings.TrimSuffix(strings.TrimPrefix(r.text(), "$"), "_"))
	return col
}

// Absolute reports a leading "$"
func (r ColumnRef) Absolute() bool {
	return strings.HasPrefix(r.text(), "$")
}

// Offset moves the column. the row delta is accepted so that every
// reference view has the same shape.
func (r ColumnRef) Offset(dCol, _ int, moveAbsolute bool) {
	col := r.Coords()
	abs := r.Absolute()
	if !abs || moveAbsolute {
		col += dCol
	}
	name, ok := grid.ColumnIndexToName(col)
	if !ok {
		invalidate(r.node)
		return
	}
	if abs {
		name = "$" + name
	}
	tok := r.node.Children[0]
	tok.Text = name + "_" + tokenWhitespace(tok)
}

// RowRef is a view over a KindRowReference node like "_3" or "_$3"
type RowRef struct {
	node *Node
}

// RowRef returns a view of n if it is a row reference
func (n *Node) RowRef() (RowRef, bool) {
	if n.Kind != KindRowReference {
		return RowRef{}, false
	}
	return RowRef{node: n}, true
}

func (r RowRef) text() string {
	return strings.TrimRight(r.node.Children[0].Text, " \t")
}

// Coords returns the row index
func (r RowRef) Coords() int {
	row, _ := strconv.Atoi(strings.TrimPrefix(strings.TrimPrefix(r.text(), "_"), "$"))
	return row
}

// Absolute reports a "$" before the row number
func (r RowRef) Absolute() bool {
	return strings.HasPrefix(r.text(), "_$")
}

// Offset moves the row. rows at or above zero become #Invalid!.
func (r RowRef) Offset(_, dRow int, moveAbsolute bool) {
	row := r.Coords()
	abs := r.Absolute()
	if !abs || moveAbsolute {
		row += dRow
	}
	if row <= 0 {
		invalidate(r.node)
		return
	}
	prefix := "_"
	if abs {
		prefix = "_$"
	}
	tok := r.node.Children[0]
	tok.Text = prefix + strconv.Itoa(row) + tokenWhitespace(tok)
}

// RangeRef is a view over a KindCellRange node. either corner may be an
// invalid or deleted marker.
type RangeRef struct {
	node *Node
}

// Range returns a view of n if it is a cell range
func (n *Node) Range() (RangeRef, bool) {
	if n.Kind != KindCellRange {
		return RangeRef{}, false
	}
	return RangeRef{node: n}, true
}

// First returns the node of the first corner
func (r RangeRef) First() *Node { return r.node.Children[0] }

// Second returns the node of the second corner
func (r RangeRef) Second() *Node { return r.node.Children[2] }

// Coords returns both corners. ok is false when either is not a cell
// reference.
func (r RangeRef) Coords() (first, second grid.Location, ok bool) {
	a, okA := r.First().CellRef()
	b, okB := r.Second().CellRef()
	if !okA || !okB {
		return grid.Location{}, grid.Location{}, false
	}
	return a.Coords(), b.Coords(), true
}

// Offset moves both corners
func (r RangeRef) Offset(dCol, dRow int, moveAbsolute bool) {
	for _, corner := range []*Node{r.First(), r.Second()} {
		if ref, ok := corner.CellRef(); ok {
			ref.Offset(dCol, dRow, moveAbsolute)
		}
	}
}

// Invalid reports whether either corner is an invalid or deleted marker
func (r RangeRef) Invalid() bool {
	_, _, ok := r.Coords()
	return !ok
}
