package importer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/script"
)

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

func TestFromCSV(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	err := FromCSV(ws, strings.NewReader("a,b\n1,=A1+1,\"x, y\"\n\nlast\n"), 2, 3, CSVOptions{})
	require.NoError(t, err)

	testCases := map[string]string{
		"B3": "a",
		"C3": "b",
		"B4": "1",
		"C4": "=A1+1",
		"D4": "x, y",
		"B5": "last",
	}
	for name, want := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, formulaAt(t, ws, name))
		})
	}
}

func TestFromCSVEncodings(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
		opts  CSVOptions
		want  string
	}{
		{"utf-8", []byte("caf\xc3\xa9"), CSVOptions{}, "café"},
		{"excel", []byte("caf\xe9"), CSVOptions{ExcelEncoding: true}, "café"},
		{"invalid utf-8 falls back", []byte("caf\xe9"), CSVOptions{}, "café"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ws := grid.NewWorksheet("Sheet1")
			require.NoError(t, FromCSV(ws, bytes.NewReader(tc.input), 1, 1, tc.opts))
			assert.Equal(t, tc.want, formulaAt(t, ws, "A1"))
		})
	}
}

func TestToCSV(t *testing.T) {
	ws := grid.NewWorksheet("Sheet1")
	ws.Get(grid.Loc(1, 1)).SetValue(int64(1))
	ws.Get(grid.Loc(2, 2)).SetValue("x")
	ws.Get(grid.Loc(3, 2)).SetValue(2.5)

	var buf bytes.Buffer
	require.NoError(t, ToCSV(ws, &buf))
	assert.Equal(t, "1,,\n,x,2.5\n", buf.String())
}

func TestToCSVEmptySheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ToCSV(grid.NewWorksheet("Sheet1"), &buf))
	assert.Empty(t, buf.String())
}

func TestTranslateFormula(t *testing.T) {
	testCases := []struct {
		excel string
		want  string
		ok    bool
	}{
		{"SUM(A1:B2)", "=sum(A1:B2)", true},
		{"=A1+B1*2", "=A1 + B1 * 2", true},
		{`IF(A1>1,"big","small")`, "=IF(A1 > 1, 'big', 'small')", true},
		{"A1<>B1", "=A1 <> B1", true},
		{"TRUE", "=True", true},
		{"Sheet2!A1", "", false},
		{"VLOOKUP(A1,B1:C2,2)", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.excel, func(t *testing.T) {
			got, ok := TranslateFormula(tc.excel)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCellFormulaHelpers(t *testing.T) {
	assert.Equal(t, `=_raise(FormulaError('#DIV/0!'))`, errorFormula("#DIV/0!"))
	assert.Equal(t, "=True", boolFormula("1"))
	assert.Equal(t, "=True", boolFormula("TRUE"))
	assert.Equal(t, "=False", boolFormula("0"))
	assert.Equal(t, "=DateTime(2024, 3, 15, 10, 30, 0)",
		dateFormula(time.Date(2024, 3, 15, 10, 29, 59, 999_000_000, time.UTC)))

	assert.True(t, isDateFormatCode("yyyy-mm-dd"))
	assert.True(t, isDateFormatCode("d mmm"))
	assert.False(t, isDateFormatCode(`0.00 "days"`))
	assert.False(t, isDateFormatCode("[Red]0.00"))
}

func TestFromExcel(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", 2))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", 3))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", 5))
	require.NoError(t, f.SetCellFormula("Sheet1", "A3", "SUM(A1:A2)"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "hello"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 2))
	require.NoError(t, f.SetCellFormula("Sheet1", "B2", "VLOOKUP(A1,A1:A2,1)"))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", 1.5))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	ws, err := FromExcel(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", ws.Name)

	testCases := map[string]string{
		"A1": "2",
		"A2": "3",
		"A3": "=sum(A1:A2)",
		"B1": "hello",
		"B2": "2",
		"C1": "1.5",
	}
	for name, want := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, formulaAt(t, ws, name))
		})
	}
}

func TestFromExcelMissingSheet(t *testing.T) {
	f := excelize.NewFile()
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := FromExcel(&buf, "Nope")
	var importErr *ImportError
	assert.ErrorAs(t, err, &importErr)
}

func TestToExcelRoundTrip(t *testing.T) {
	ws := grid.NewWorksheet("Data")
	ws.Get(grid.Loc(1, 1)).SetValue(int64(3))
	ws.Get(grid.Loc(2, 1)).SetValue("hi")
	ws.Get(grid.Loc(3, 1)).SetValue(&script.DateTime{Time: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)})
	ws.Get(grid.Loc(1, 2)).SetError("ZeroDivisionError: integer division or modulo by zero")

	var buf bytes.Buffer
	require.NoError(t, ToExcel(ws, &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Data", "A1")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	v, err = f.GetCellValue("Data", "A2")
	require.NoError(t, err)
	assert.Equal(t, "ZeroDivisionError: integer division or modulo by zero", v)

	back, err := FromExcel(bytes.NewReader(buf.Bytes()), "Data")
	require.NoError(t, err)
	assert.Equal(t, "3", formulaAt(t, back, "A1"))
	assert.Equal(t, "hi", formulaAt(t, back, "B1"))
	assert.Equal(t, "=DateTime(2024, 3, 15, 10, 30, 0)", formulaAt(t, back, "C1"))
}
