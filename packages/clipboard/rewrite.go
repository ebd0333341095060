package clipboard

import (
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/formula"
	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// RewriteFormula moves the references of f by dCol columns and dRow rows.
//
// for a copy every reference moves, but "$" parts stay put. for a cut only
// references lying wholly inside source move, and they move absolute parts
// too. constants and formulas that do not parse come back unchanged.
func RewriteFormula(f string, dCol, dRow int, isCut bool, source grid.Bounds) string {
	if !strings.HasPrefix(f, "=") {
		return f
	}
	root, err := formula.Parse(f)
	if err != nil {
		return f
	}

	root.Walk(func(n *formula.Node) bool {
		if rng, ok := n.Range(); ok {
			first, second, ok := rng.Coords()
			if !ok {
				return false
			}
			if isCut && !(source.Contains(first) && source.Contains(second)) {
				return false
			}
			rng.Offset(dCol, dRow, isCut)
			return false
		}
		if ref, ok := n.CellRef(); ok {
			if isCut && !source.Contains(ref.Coords()) {
				return false
			}
			ref.Offset(dCol, dRow, isCut)
			return false
		}
		return true
	})
	return root.Flatten()
}

// RewriteSourceSheetFormulaeForCut retargets every formula of ws that
// refers into source so that it follows the cells to their new top-left
// corner at (destCol, destRow).
func RewriteSourceSheetFormulaeForCut(ws *grid.Worksheet, source grid.Bounds, destCol, destRow int) {
	dCol, dRow := destCol-source.Left, destRow-source.Top
	for _, loc := range ws.Locations() {
		cell, ok := ws.Lookup(loc)
		if !ok || cell.Formula() == "" {
			continue
		}
		rewritten := RewriteFormula(cell.Formula(), dCol, dRow, true, source)
		if rewritten != cell.Formula() {
			cell.SetFormula(rewritten)
		}
	}
}
