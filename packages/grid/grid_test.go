package grid

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnNames(t *testing.T) {
	tests := []struct {
		name  string
		index int
	}{
		{"A", 1},
		{"Z", 26},
		{"AA", 27},
		{"AZ", 52},
		{"BA", 53},
		{"ZZ", 702},
		{"AAA", 703},
		{"ZZZ", MaxColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, ok := ColumnNameToIndex(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.index, index)

			name, ok := ColumnIndexToName(tt.index)
			require.True(t, ok)
			assert.Equal(t, tt.name, name)
		})
	}

	_, ok := ColumnNameToIndex("AAAA")
	assert.False(t, ok)
	_, ok = ColumnNameToIndex("A1")
	assert.False(t, ok)
	_, ok = ColumnIndexToName(0)
	assert.False(t, ok)
	_, ok = ColumnIndexToName(MaxColumn + 1)
	assert.False(t, ok)
}

func TestCellNameToCoordinates(t *testing.T) {
	tests := []struct {
		input string
		want  Location
		ok    bool
	}{
		{"A1", Loc(1, 1), true},
		{"b3", Loc(2, 3), true},
		{"$B3", Loc(2, 3), true},
		{"B$3", Loc(2, 3), true},
		{"$B$3", Loc(2, 3), true},
		{"AA10 ", Loc(27, 10), true},
		{"A0", Location{}, false},
		{"A", Location{}, false},
		{"1", Location{}, false},
		{"A1B", Location{}, false},
		{"$$A1", Location{}, false},
		{"A1$", Location{}, false},
		{"", Location{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := CellNameToCoordinates(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoordinatesToCellName(t *testing.T) {
	name, ok := CoordinatesToCellName(2, 3, true, false)
	require.True(t, ok)
	assert.Equal(t, "$B3", name)

	name, ok = CoordinatesToCellName(28, 7, false, true)
	require.True(t, ok)
	assert.Equal(t, "AB$7", name)

	_, ok = CoordinatesToCellName(0, 1, false, false)
	assert.False(t, ok)
	_, ok = CoordinatesToCellName(1, 0, false, false)
	assert.False(t, ok)

	assert.Equal(t, "C4", Loc(3, 4).String())
	assert.Equal(t, "(0,4)", Loc(0, 4).String())
}

func TestCellRefToCoordinates(t *testing.T) {
	loc, ok := CellRefToCoordinates("(3,4)")
	require.True(t, ok)
	assert.Equal(t, Loc(3, 4), loc)

	loc, ok = CellRefToCoordinates("C4")
	require.True(t, ok)
	assert.Equal(t, Loc(3, 4), loc)

	_, ok = CellRefToCoordinates("(3,x)")
	assert.False(t, ok)

	start, end, ok := CellRangeToCoordinates("A1:B2")
	require.True(t, ok)
	assert.Equal(t, Loc(1, 1), start)
	assert.Equal(t, Loc(2, 2), end)

	_, _, ok = CellRangeToCoordinates("A1")
	assert.False(t, ok)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, "None"},
		{true, "True"},
		{false, "False"},
		{int64(42), "42"},
		{int64(-7), "-7"},
		{1.0, "1.0"},
		{0.1, "0.1"},
		{1.5, "1.5"},
		{-2.25, "-2.25"},
		{1e16, "1e+16"},
		{1e15, "1000000000000000.0"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
		{"hello", "hello"},
		{Undefined, ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, `'abc'`, QuoteString("abc"))
	assert.Equal(t, `"it's"`, QuoteString("it's"))
	assert.Equal(t, `'a\'b"'`, QuoteString(`a'b"`))
	assert.Equal(t, `'a\nb'`, QuoteString("a\nb"))
	assert.Equal(t, `'hello'`, Repr("hello"))
	assert.Equal(t, `3`, Repr(int64(3)))
	assert.Equal(t, `<undefined>`, Repr(Undefined))
}

func TestCell(t *testing.T) {
	t.Run("new cell is empty", func(t *testing.T) {
		c := NewCell()
		assert.True(t, c.IsEmpty())
		assert.True(t, IsUndefined(c.Value()))
	})

	t.Run("set formula drops compiled form", func(t *testing.T) {
		c := NewCell()
		c.SetFormula("=A1")
		c.SetCompiled("worksheet[(1, 1)].value", []Location{Loc(1, 1)})
		assert.Equal(t, []Location{Loc(1, 1)}, c.Dependencies())

		c.SetFormula("=A2")
		assert.Equal(t, "", c.PythonFormula())
		assert.Empty(t, c.Dependencies())
	})

	t.Run("set value formats", func(t *testing.T) {
		c := NewCell()
		c.SetValue(int64(5))
		assert.Equal(t, "5", c.FormattedValue())
		c.SetValue(nil)
		assert.Equal(t, "None", c.FormattedValue())
		assert.False(t, c.IsEmpty())
	})

	t.Run("error forces undefined", func(t *testing.T) {
		c := NewCell()
		c.SetValue(int64(5))
		c.SetError("ZeroDivisionError: division by zero")
		assert.True(t, IsUndefined(c.Value()))
		assert.Equal(t, "", c.FormattedValue())
	})

	t.Run("clear", func(t *testing.T) {
		c := NewCell()
		c.SetFormula("=1")
		c.SetValue(int64(1))
		c.Clear()
		assert.True(t, c.IsEmpty())
	})

	t.Run("copy is detached", func(t *testing.T) {
		c := NewCell()
		c.SetFormula("abc")
		cp := c.Copy()
		c.SetFormula("def")
		assert.Equal(t, "abc", cp.Formula())
	})
}

func TestUndefinedIsDistinct(t *testing.T) {
	assert.True(t, IsUndefined(Undefined))
	assert.False(t, IsUndefined(nil))
	assert.False(t, IsUndefined(""))
	assert.NotEqual(t, nil, Undefined)
	assert.Equal(t, "<undefined>", Undefined.(fmt.Stringer).String())
}

func TestWorksheetGetCreatesCell(t *testing.T) {
	ws := NewWorksheet("sheet")
	_, ok := ws.Lookup(Loc(1, 1))
	assert.False(t, ok)

	ws.Get(Loc(1, 1)).SetFormula("hello")
	c, ok := ws.Lookup(Loc(1, 1))
	require.True(t, ok)
	assert.Equal(t, "hello", c.Formula())
}

func TestWorksheetSetCellFormula(t *testing.T) {
	ws := NewWorksheet("sheet")
	ws.SetCellFormula(2, 3, "=1+1")
	assert.Equal(t, 1, ws.Len())
	ws.SetCellFormula(2, 3, "")
	assert.Equal(t, 0, ws.Len())
	_, ok := ws.Lookup(Loc(2, 3))
	assert.False(t, ok)
}

func TestWorksheetLocationsSorted(t *testing.T) {
	ws := NewWorksheet("sheet")
	for _, loc := range []Location{Loc(2, 1), Loc(1, 5), Loc(1, 2), Loc(3, 3)} {
		ws.SetCellFormula(loc.Col, loc.Row, "x")
	}
	assert.Equal(t, []Location{Loc(1, 2), Loc(1, 5), Loc(2, 1), Loc(3, 3)}, ws.Locations())
}

func TestWorksheetClearValues(t *testing.T) {
	ws := NewWorksheet("sheet")
	ws.SetCellFormula(1, 1, "=1")
	ws.Get(Loc(1, 1)).SetValue(int64(1))
	ws.Get(Loc(2, 2)).SetValue("orphan")
	ws.Get(Loc(1, 3)).SetFormula("=1/0")
	ws.Get(Loc(1, 3)).SetError("ZeroDivisionError: division by zero")

	ws.ClearValues()

	c, ok := ws.Lookup(Loc(1, 1))
	require.True(t, ok)
	assert.Equal(t, "=1", c.Formula())
	assert.True(t, IsUndefined(c.Value()))

	_, ok = ws.Lookup(Loc(2, 2))
	assert.False(t, ok)

	c, ok = ws.Lookup(Loc(1, 3))
	require.True(t, ok)
	assert.Equal(t, "", c.Error())
}

func TestWorksheetBounds(t *testing.T) {
	ws := NewWorksheet("sheet")
	_, ok := ws.Bounds()
	assert.False(t, ok)

	ws.SetCellFormula(3, 2, "a")
	ws.SetCellFormula(1, 5, "b")
	b, ok := ws.Bounds()
	require.True(t, ok)
	assert.Equal(t, Bounds{Left: 1, Top: 2, Right: 3, Bottom: 5}, b)

	// mutation through a cell invalidates the cache
	ws.Get(Loc(7, 1)).SetValue(int64(1))
	b, ok = ws.Bounds()
	require.True(t, ok)
	assert.Equal(t, Bounds{Left: 1, Top: 1, Right: 7, Bottom: 5}, b)

	ws.Get(Loc(7, 1)).Clear()
	b, _ = ws.Bounds()
	assert.Equal(t, Bounds{Left: 1, Top: 2, Right: 3, Bottom: 5}, b)

	// empty cells created by reads don't count
	ws.Get(Loc(10, 10))
	b, _ = ws.Bounds()
	assert.Equal(t, 3, b.Right)
}

func TestWorksheetCellRangeErrors(t *testing.T) {
	ws := NewWorksheet("sheet")

	r, err := ws.ParseCellRange("A1:B2")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())

	_, err = ws.ParseCellRange("A1B2")
	assert.EqualError(t, err, "Invalid cell range 'A1B2'")

	_, err = ws.CellRangeFromNames("A1", "B0")
	assert.EqualError(t, err, "B0 is not a valid cell location")

	_, err = ws.CellRangeFromNames("A0", "B0")
	assert.EqualError(t, err, "Neither A0 nor B0 are valid cell locations")
}

func TestWorksheetConsole(t *testing.T) {
	ws := NewWorksheet("sheet")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws.AddConsoleText("x", ConsoleOutput)
		}()
	}
	wg.Wait()
	assert.Len(t, ws.ConsoleText(), 50)

	ws.SetUsercodeError(&UsercodeError{Message: "boom", Line: 2})
	ws.ResetConsole()
	assert.Empty(t, ws.ConsoleText())
	assert.Nil(t, ws.UsercodeError())
}

func TestWorksheetClone(t *testing.T) {
	ws := NewWorksheet("sheet")
	ws.SetCellFormula(1, 1, "=1")
	ws.AddConsoleText("hello", ConsoleOutput)

	clone := ws.Clone()
	ws.Get(Loc(1, 1)).SetFormula("=2")
	ws.AddConsoleText("again", ConsoleOutput)

	c, ok := clone.Lookup(Loc(1, 1))
	require.True(t, ok)
	assert.Equal(t, "=1", c.Formula())
	assert.Len(t, clone.ConsoleText(), 1)
}

func TestCellRange(t *testing.T) {
	ws := NewWorksheet("sheet")
	r := ws.CellRange(Loc(3, 4), Loc(2, 2))
	assert.Equal(t, 2, r.Left)
	assert.Equal(t, 2, r.Top)
	assert.Equal(t, 3, r.Right)
	assert.Equal(t, 4, r.Bottom)
	assert.Equal(t, 2, r.Width())
	assert.Equal(t, 3, r.Height())

	locs := slices.Collect(r.Locations())
	assert.Equal(t, []Location{
		Loc(2, 2), Loc(3, 2),
		Loc(2, 3), Loc(3, 3),
		Loc(2, 4), Loc(3, 4),
	}, locs)

	assert.Equal(t, "<CellRange B2 to C4 in <Worksheet sheet>>", r.String())
}

func TestCellRangeIndexing(t *testing.T) {
	ws := NewWorksheet("sheet")
	r := ws.CellRange(Loc(2, 2), Loc(4, 5))

	tests := []struct {
		name     string
		col, row int
		want     Location
		err      string
	}{
		{"origin", 1, 1, Loc(2, 2), ""},
		{"far corner", 3, 4, Loc(4, 5), ""},
		{"negative column", -1, 1, Loc(4, 2), ""},
		{"negative row", 1, -1, Loc(2, 5), ""},
		{"both negative", -3, -4, Loc(2, 2), ""},
		{"zero", 0, 1, Location{}, "Cell ranges are 1-indexed"},
		{"too many columns", 4, 1, Location{}, "Cell range only has 3 columns"},
		{"too many negative columns", -4, 1, Location{}, "Cell range only has 3 columns"},
		{"too many rows", 1, 5, Location{}, "Cell range only has 4 rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := r.Resolve(tt.col, tt.row)
			if tt.err != "" {
				var rangeErr *RangeIndexError
				require.ErrorAs(t, err, &rangeErr)
				assert.Equal(t, tt.err, rangeErr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc)
		})
	}

	c, err := r.At(1, 1)
	require.NoError(t, err)
	c.SetFormula("x")
	got, ok := ws.Lookup(Loc(2, 2))
	require.True(t, ok)
	assert.Same(t, c, got)

	replacement := NewCell()
	replacement.SetFormula("y")
	require.NoError(t, r.SetAt(-1, -1, replacement))
	got, _ = ws.Lookup(Loc(4, 5))
	assert.Equal(t, "y", got.Formula())
}

func TestCellRangeClear(t *testing.T) {
	ws := NewWorksheet("sheet")
	ws.SetCellFormula(1, 1, "a")
	ws.SetCellFormula(2, 1, "b")
	ws.SetCellFormula(3, 1, "c")

	before, _ := ws.Lookup(Loc(1, 1))
	ws.CellRange(Loc(1, 1), Loc(2, 1)).Clear()

	after, _ := ws.Lookup(Loc(1, 1))
	assert.Same(t, before, after)
	assert.True(t, after.IsEmpty())
	c, _ := ws.Lookup(Loc(3, 1))
	assert.Equal(t, "c", c.Formula())
}

func TestCodecRoundTrip(t *testing.T) {
	ws := NewWorksheet("sheet")
	ws.SetCellFormula(1, 1, "=A2")
	a1 := ws.Get(Loc(1, 1))
	a1.SetCompiled("worksheet[(1, 2)].value", []Location{Loc(1, 2)})
	a1.SetValue(int64(5))
	ws.SetCellFormula(1, 2, "5")
	ws.Get(Loc(1, 2)).SetValue(int64(5))
	ws.SetCellFormula(2, 1, "2.0")
	ws.Get(Loc(2, 1)).SetValue(2.0)
	ws.SetCellFormula(2, 2, "=1/0")
	ws.Get(Loc(2, 2)).SetError("ZeroDivisionError: division by zero")
	ws.SetCellFormula(3, 1, "=None")
	ws.Get(Loc(3, 1)).SetValue(nil)
	ws.SetCellFormula(3, 2, "hi")
	ws.Get(Loc(3, 2)).SetValue("hi <there>")
	ws.AddConsoleText("hello\n", ConsoleOutput)
	ws.SetUsercodeError(&UsercodeError{Message: "oops", Line: 3})

	first, err := json.Marshal(ws)
	require.NoError(t, err)

	decoded, err := Decode("sheet", first)
	require.NoError(t, err)
	second, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	c, ok := decoded.Lookup(Loc(2, 1))
	require.True(t, ok)
	assert.Equal(t, 2.0, c.Value())
	c, _ = decoded.Lookup(Loc(1, 1))
	assert.Equal(t, int64(5), c.Value())
	assert.Equal(t, []Location{Loc(1, 2)}, c.Dependencies())
	c, _ = decoded.Lookup(Loc(3, 1))
	assert.Nil(t, c.Value())
	c, _ = decoded.Lookup(Loc(2, 2))
	assert.True(t, IsUndefined(c.Value()))
	assert.Equal(t, &UsercodeError{Message: "oops", Line: 3}, decoded.UsercodeError())
}

func TestCodecLayout(t *testing.T) {
	ws := NewWorksheet("sheet")
	ws.SetCellFormula(2, 1, "x")
	ws.SetCellFormula(1, 10, "y")
	ws.SetCellFormula(1, 2, "z")

	out, err := json.Marshal(ws)
	require.NoError(t, err)
	assert.Equal(t,
		`{"_console_text":[],"_usercode_error":null,"1,2":{"formula":"z"},"1,10":{"formula":"y"},"2,1":{"formula":"x"}}`,
		string(out))
}

func TestCodecSkipsUnrepresentableValues(t *testing.T) {
	ws := NewWorksheet("sheet")
	ws.SetCellFormula(1, 1, "=x")
	ws.Get(Loc(1, 1)).SetValue(math.Inf(1))

	out, err := json.Marshal(ws)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"1,1":{"formula":"=x","formatted_value":"inf"}`)
}

func TestDecodeValue(t *testing.T) {
	v, err := DecodeValue(json.RawMessage("3"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = DecodeValue(json.RawMessage("3.0"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = DecodeValue(json.RawMessage("1e+16"))
	require.NoError(t, err)
	assert.Equal(t, 1e16, v)

	_, err = DecodeValue(json.RawMessage("[1]"))
	assert.Error(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	ws, err := Decode("empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ws.Len())
}
