package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

func TestRewriteFormula(t *testing.T) {
	a1b2 := grid.Bounds{Left: 1, Top: 1, Right: 2, Bottom: 2}

	testCases := []struct {
		name       string
		formula    string
		dCol, dRow int
		isCut      bool
		want       string
	}{
		{"constant", "A1", 1, 1, false, "A1"},
		{"empty", "", 1, 1, false, ""},
		{"copy moves relative refs", "=A1+B2", 1, 1, false, "=B2+C3"},
		{"copy keeps absolute refs", "=$A$1+A1", 1, 1, false, "=$A$1+B2"},
		{"copy keeps absolute column", "=$A1", 1, 1, false, "=$A2"},
		{"copy keeps whitespace", "=A1 + 1", 1, 0, false, "=B1 + 1"},
		{"copy moves ranges", "=sum(A1:B2)", 2, 0, false, "=sum(C1:D2)"},
		{"copy off the grid", "=A1", 0, -1, false, "=#Invalid!"},
		{"cut moves refs inside source", "=$A$1+C3", 1, 1, true, "=$B$2+C3"},
		{"cut moves ranges inside source", "=sum(A1:B2)", 1, 1, true, "=sum(B2:C3)"},
		{"cut keeps ranges leaving source", "=sum(A1:C3)", 1, 1, true, "=sum(A1:C3)"},
		{"unparsable", "=(A1", 1, 1, false, "=(A1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := RewriteFormula(tc.formula, tc.dCol, tc.dRow, tc.isCut, a1b2)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRewriteSourceSheetFormulaeForCut(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	ws.SetCellFormula(3, 1, "=A1+B1+D1")
	ws.SetCellFormula(3, 2, "7")
	ws.SetCellFormula(3, 3, "=sum(A1:B1)")

	RewriteSourceSheetFormulaeForCut(ws, grid.Bounds{Left: 1, Top: 1, Right: 2, Bottom: 1}, 1, 4)

	assert.Equal(t, "=A4+B4+D1", ws.Get(grid.Loc(3, 1)).Formula())
	assert.Equal(t, "7", ws.Get(grid.Loc(3, 2)).Formula())
	assert.Equal(t, "=sum(A4:B4)", ws.Get(grid.Loc(3, 3)).Formula())
}

func newSheet(formulas map[string]string) *grid.Worksheet {
	ws := grid.NewWorksheet("Sheet1")
	for name, f := range formulas {
		loc, ok := grid.CellNameToCoordinates(name)
		if !ok {
			panic("bad cell name " + name)
		}
		ws.SetCellFormula(loc.Col, loc.Row, f)
	}
	return ws
}

func formulaAt(t *testing.T, ws *grid.Worksheet, name string) string {
	t.Helper()
	loc, ok := grid.CellNameToCoordinates(name)
	require.True(t, ok)
	cell, ok := ws.Lookup(loc)
	if !ok {
		return ""
	}
	return cell.Formula()
}

func TestCopyPaste(t *testing.T) {
	ws := newSheet(map[string]string{"A1": "=B1*2", "B1": "3"})
	clip := New()
	require.NoError(t, clip.Copy(ws, grid.Loc(1, 1), grid.Loc(2, 1)))
	require.NoError(t, clip.PasteTo(ws, grid.Loc(1, 3), grid.Loc(1, 3)))

	assert.Equal(t, "=B3*2", formulaAt(t, ws, "A3"))
	assert.Equal(t, "3", formulaAt(t, ws, "B3"))
	assert.Equal(t, "=B1*2", formulaAt(t, ws, "A1"))
	assert.False(t, clip.IsCut())
}

func TestPasteTiles(t *testing.T) {
	ws := newSheet(map[string]string{"A1": "=B1"})
	clip := New()
	require.NoError(t, clip.Copy(ws, grid.Loc(1, 1), grid.Loc(1, 1)))
	require.NoError(t, clip.PasteTo(ws, grid.Loc(3, 1), grid.Loc(4, 3)))

	testCases := map[string]string{
		"C1": "=D1",
		"C2": "=D2",
		"C3": "=D3",
		"D1": "=E1",
		"D3": "=E3",
	}
	for name, want := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, formulaAt(t, ws, name))
		})
	}
}

func TestPasteTilesMultiCellBlock(t *testing.T) {
	ws := newSheet(map[string]string{"A1": "1", "A2": "=A1+1"})
	clip := New()
	require.NoError(t, clip.Copy(ws, grid.Loc(1, 1), grid.Loc(1, 2)))
	require.NoError(t, clip.PasteTo(ws, grid.Loc(2, 1), grid.Loc(2, 4)))

	assert.Equal(t, "1", formulaAt(t, ws, "B1"))
	assert.Equal(t, "=B1+1", formulaAt(t, ws, "B2"))
	assert.Equal(t, "1", formulaAt(t, ws, "B3"))
	assert.Equal(t, "=B3+1", formulaAt(t, ws, "B4"))
}

func TestCopyUsesFormattedValueWithoutFormula(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	ws.Get(grid.Loc(1, 1)).SetFormattedValue("hello")

	clip := New()
	require.NoError(t, clip.Copy(ws, grid.Loc(1, 1), grid.Loc(1, 1)))
	require.NoError(t, clip.PasteTo(ws, grid.Loc(2, 2), grid.Loc(2, 2)))

	pasted := ws.Get(grid.Loc(2, 2))
	assert.Equal(t, "hello", pasted.Formula())
	assert.Equal(t, "hello", pasted.FormattedValue())
	assert.Equal(t, "", ws.Get(grid.Loc(1, 1)).Formula())
}

func TestPasteOverwritesWithEmptyCells(t *testing.T) {
	ws := newSheet(map[string]string{"A1": "1", "C1": "old", "D1": "old"})
	clip := New()
	require.NoError(t, clip.Copy(ws, grid.Loc(1, 1), grid.Loc(2, 1)))
	require.NoError(t, clip.PasteTo(ws, grid.Loc(3, 1), grid.Loc(3, 1)))

	assert.Equal(t, "1", formulaAt(t, ws, "C1"))
	_, ok := ws.Lookup(grid.Loc(4, 1))
	assert.False(t, ok)
}

func TestCutPasteSameSheet(t *testing.T) {
	ws := newSheet(map[string]string{
		"A1": "5",
		"B1": "=A1+1",
		"C5": "=A1*B1",
		"D5": "=$A$1",
	})
	clip := New()
	require.NoError(t, clip.Cut(ws, grid.Loc(1, 1), grid.Loc(2, 1)))
	assert.True(t, clip.IsCut())
	_, ok := ws.Lookup(grid.Loc(1, 1))
	assert.False(t, ok)

	require.NoError(t, clip.PasteTo(ws, grid.Loc(1, 3), grid.Loc(1, 3)))

	assert.Equal(t, "5", formulaAt(t, ws, "A3"))
	assert.Equal(t, "=A3+1", formulaAt(t, ws, "B3"))
	assert.Equal(t, "=A3*B3", formulaAt(t, ws, "C5"))
	assert.Equal(t, "=$A$3", formulaAt(t, ws, "D5"))

	assert.False(t, clip.IsCut())
	assert.Equal(t, grid.Bounds{Left: 1, Top: 3, Right: 2, Bottom: 3}, clip.Source())

	// a second paste copies from where the cells went
	require.NoError(t, clip.PasteTo(ws, grid.Loc(1, 6), grid.Loc(1, 6)))
	assert.Equal(t, "=A6+1", formulaAt(t, ws, "B6"))
	assert.Equal(t, "=A3+1", formulaAt(t, ws, "B3"))
}

func TestCutPasteOtherSheet(t *testing.T) {
	src := newSheet(map[string]string{"A1": "5", "B1": "=A1", "C1": "=A1"})
	dst := grid.NewWorksheet("Sheet2")

	clip := New()
	require.NoError(t, clip.Cut(src, grid.Loc(1, 1), grid.Loc(2, 1)))
	require.NoError(t, clip.PasteTo(dst, grid.Loc(2, 2), grid.Loc(2, 2)))

	assert.Equal(t, "5", formulaAt(t, dst, "B2"))
	assert.Equal(t, "=B2", formulaAt(t, dst, "C2"))
	assert.Equal(t, "=A1", formulaAt(t, src, "C1"))
}

func TestPasteEmptyClipboard(t *testing.T) {
	err := New().PasteTo(grid.NewWorksheet("Sheet1"), grid.Loc(1, 1), grid.Loc(1, 1))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestContentsAreRelativeToCorner(t *testing.T) {
	ws := newSheet(map[string]string{"B2": "x"})
	clip := New()
	require.NoError(t, clip.Copy(ws, grid.Loc(2, 2), grid.Loc(2, 2)))

	assert.JSONEq(t,
		`{"_console_text":[],"_usercode_error":null,"0,0":{"formula":"x"}}`,
		string(clip.Contents()))
	assert.Equal(t, grid.Bounds{Left: 2, Top: 2, Right: 2, Bottom: 2}, clip.Source())
}
