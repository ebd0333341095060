package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

func TestLexerTokens(t *testing.T) {
	tokens, err := NewLexer("=A1 + 'x'  ").Tokenize()
	require.NoError(t, err)

	var types []TokenType
	var values []string
	for _, tok := range tokens {
		types = append(types, tok.Type)
		values = append(values, tok.Value)
	}
	assert.Equal(t, []TokenType{TokenEquals, TokenCellRefLike, TokenPlus, TokenString, TokenEOF}, types)
	assert.Equal(t, []string{"=", "A1 ", "+ ", "'x'  ", ""}, values)
	assert.Equal(t, 4, tokens[2].Pos)
	assert.Equal(t, "'x'", tokens[3].Text())
	assert.Equal(t, "  ", tokens[3].Whitespace())
}

func TestLexerClassification(t *testing.T) {
	testCases := []struct {
		input string
		want  TokenType
	}{
		{"A1", TokenCellRefLike},
		{"$a$10", TokenCellRefLike},
		{"AAAA1", TokenCellRefLike},
		{"B_", TokenColumnRefLike},
		{"$B_", TokenColumnRefLike},
		{"_3", TokenRowRefLike},
		{"_$3", TokenRowRefLike},
		{"A0", TokenName},
		{"foo", TokenName},
		{"AND", TokenAnd},
		{"Or", TokenOr},
		{"iF", TokenIf},
		{"ISERROR", TokenIsError},
		{"iserr", TokenIsErr},
		{"lambda", TokenLambda},
		{"Lambda", TokenName},
		{"#Invalid!", TokenInvalidRef},
		{"#Deleted!", TokenDeletedRef},
		{"0x1F", TokenNumber},
		{"1.5e3", TokenNumber},
		{"1j", TokenImaginary},
		{"r'raw'", TokenString},
		{`u"text"`, TokenString},
		{`'''triple'''`, TokenString},
		{"->", TokenArrow},
		{":=", TokenColonEquals},
		{"<>", TokenObsoleteUnequal},
		{"%%", TokenModInterp},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			tok, err := NewLexer(tc.input).Next()
			require.NoError(t, err)
			assert.Equal(t, tc.want, tok.Type)
			assert.Equal(t, tc.input, tok.Value)
		})
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		formula string
		want    string
	}{
		{"=", "Possibly incomplete formula"},
		{"=1 +", "Possibly incomplete formula"},
		{"=SUM(", "Possibly incomplete formula"},
		{"=and", "Possibly incomplete formula"},
		{"=or", "Possibly incomplete formula"},
		{"=if", "Possibly incomplete formula"},
		{"=not", "Possibly incomplete formula"},
		{"=lambda", "Possibly incomplete formula"},
		{"=for", "Error in formula at position 2: unexpected 'for'"},
		{"=in", "Error in formula at position 2: unexpected 'in'"},
		{"=)", "Error in formula at position 2: unexpected ')'"},
		{"=5, 1)", "Error in formula at position 3: unexpected ', '"},
		{"=[3:3]", "Error in formula at position 4: unexpected ':'"},
		{"=x := 2", "Error in formula at position 4: unexpected ':= '"},
		{"=1j", "Error in formula at position 2: unexpected '1j'"},
		{" = 1", "Error in formula at position 1: unexpected ' = 1'"},
		{`="hello`, `Error in formula at position 2: unexpected '"hello'`},
		{"=assert", "Error in formula at position 1: 'assert' is a reserved word"},
		{"=$A", "Error in formula at position 1: unexpected '$A'"},
		{"=SUM(A1:AAAA1)", "Error in formula at position 8: unexpected 'AAAA1'"},
		{"=SUM(AAAA1:A1)", "Error in formula at position 5: unexpected 'AAAA1'"},
		{"=lambda x := 1, y -> y", "Error in formula at position 17: unexpected 'y '"},
	}

	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			_, err := Parse(tc.formula)
			require.Error(t, err)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.want, perr.Message)
		})
	}
}

func TestParseErrorBeforeLexError(t *testing.T) {
	// the syntax error comes first, so the bad character later on is never
	// reported
	_, err := Parse("=) ?")
	require.Error(t, err)
	assert.Equal(t, "Error in formula at position 2: unexpected ') '", err.Error())
}

func TestFlattenIsLossless(t *testing.T) {
	formulas := []string{
		"=1",
		"=A1 + B2",
		"= SUM( A1:B3 ) ",
		"=[x for x in A1:A3 if x]",
		"=sum(x * 2 for x in A1:C1)",
		"={1 -> 2, 'a' -> 3, }",
		"=lambda x, y := 2 -> x + y",
		"=lambda *args -> len(args)",
		"=IF(A1 = 1, 'yes', )",
		"=AND(A1, B1 > 2)",
		"=ISERROR(1 / 0)",
		"=f(*args, **kw)",
		"=f(a := 1, b)",
		"=a[1->2->3]",
		"=a[->, 1]",
		"=u'x' 'y'",
		"=not x in y",
		"=x is not None",
		"=x not in [1, 2, ]",
		"=(1, 2)",
		"=()",
		"=-2 ** -1",
		"=10% + 5%%3",
		"=1 << 2 | 3 >> 1 & 'x'",
		"=worksheet.A1.value",
		"=B_ + _3",
		"=#Invalid! + #Deleted!:A1",
	}

	for _, formula := range formulas {
		t.Run(formula, func(t *testing.T) {
			root, err := Parse(formula)
			require.NoError(t, err)
			assert.Equal(t, KindRoot, root.Kind)
			assert.Equal(t, formula, root.Flatten())
		})
	}
}

func TestParseTreeShapes(t *testing.T) {
	root, err := Parse("=A1:B2")
	require.NoError(t, err)
	assert.Equal(t, KindCellRange, root.Children[1].Kind)

	root, err = Parse("=AAAA1")
	require.NoError(t, err)
	assert.Equal(t, KindAtom, root.Children[1].Kind)
	assert.Equal(t, KindName, root.Children[1].Children[0].Kind)

	root, err = Parse("=AAAA_")
	require.NoError(t, err)
	assert.Equal(t, KindAtom, root.Children[1].Kind)

	root, err = Parse("=1")
	require.NoError(t, err)
	assert.Equal(t, `Root("=", Atom(Number("1")))`, root.String())
}

func TestCompile(t *testing.T) {
	testCases := []struct {
		formula string
		source  string
	}{
		{"=1", "1"},
		{"= 1", " 1"},
		{"=A1 + B2", "worksheet[(1, 1)].value + worksheet[(2, 2)].value"},
		{"=SUM(A1:B2)", "SUM(CellRange(worksheet, (1, 1), (2, 2)))"},
		{"=sum(B2:A1 )", "sum(CellRange(worksheet, (2, 2), (1, 1)) )"},
		{`=IF(A1 > 1, "big", "small")`, `(("big") if (worksheet[(1, 1)].value > 1) else ("small"))`},
		{"=IF(A1, 1)", "((1) if (worksheet[(1, 1)].value) else (False))"},
		{"=if(1, 2, )", "((2) if (1) else (False))"},
		{"=AND(1, 0)", "all_of(1, 0)"},
		{"=or(1,0)", "any_of(1,0)"},
		{"=ISERROR(1/0)", "iserror(lambda: (1/0))"},
		{"=IsErr(A1)", "iserror(lambda: (worksheet[(1, 1)].value))"},
		{"=5%", "(5 / 100)"},
		{"=A1% ", "(worksheet[(1, 1)].value / 100) "},
		{"=2^3", "2**3"},
		{"=1<>2", "1!=2"},
		{"=1=2", "1==2"},
		{"=1 = 2", "1 == 2"},
		{"=7%%3", "7%3"},
		{"={1->2}", "{1:2}"},
		{"=lambda x -> x", "lambda x : x"},
		{"=f(a:=1)", "f(a=1)"},
		{"=a[1->2]", "a[1:2]"},
		{"=017", "0o17"},
		{"=0x1F", "0x1F"},
		{"=10L", "10"},
		{"=1.5e3", "1.5e3"},
		{"=0", "0"},
		{"=AAAA1", "AAAA1"},
		{"=B_", "B_"},
		{"=worksheet.B3.value", "worksheet.B3.value"},
		{"=#Invalid! + 1", `_raise(FormulaError("#Invalid! cell reference in formula"))`},
		{"=SUM(A1:#Deleted!)", `_raise(FormulaError("#Deleted! cell reference in formula"))`},
	}

	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			compiled, err := Compile(tc.formula)
			require.NoError(t, err)
			assert.Equal(t, tc.source, compiled.Source)
		})
	}
}

func TestCompileParseFailure(t *testing.T) {
	compiled, err := Compile("=)")
	require.Error(t, err)
	assert.Equal(t, `_raise(FormulaError("Error in formula at position 2: unexpected ')'"))`, compiled.Source)
	assert.Empty(t, compiled.Dependencies)

	compiled, err = Compile(`="a`)
	require.Error(t, err)
	assert.Equal(t, `_raise(FormulaError("Error in formula at position 2: unexpected '\"a'"))`, compiled.Source)
}

func TestDependencies(t *testing.T) {
	testCases := []struct {
		formula string
		want    []grid.Location
	}{
		{"=1", nil},
		{"=A1", []grid.Location{grid.Loc(1, 1)}},
		{"=A1 + A1 + B1", []grid.Location{grid.Loc(1, 1), grid.Loc(2, 1)}},
		{"=A1 + B1:C2", []grid.Location{
			grid.Loc(1, 1), grid.Loc(2, 1), grid.Loc(2, 2), grid.Loc(3, 1), grid.Loc(3, 2),
		}},
		{"=C2:B1 + B2", []grid.Location{
			grid.Loc(2, 1), grid.Loc(2, 2), grid.Loc(3, 1), grid.Loc(3, 2),
		}},
		{"=SUM(#Invalid!:B2) + A1", nil},
		{"=B_ + _3 + AAAA1", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			compiled, err := Compile(tc.formula)
			require.NoError(t, err)
			assert.Equal(t, tc.want, compiled.Dependencies)
		})
	}
}

func TestDependenciesIgnoreInvalidRangeCorners(t *testing.T) {
	root, err := Parse("=SUM(#Invalid!:B2) + A1")
	require.NoError(t, err)
	assert.Equal(t, []grid.Location{grid.Loc(1, 1)}, Dependencies(root))
}

// referencesOf collects reference nodes in source order
func referencesOf(root *Node, kind Kind) []*Node {
	var found []*Node
	root.Walk(func(n *Node) bool {
		if n.Kind == kind {
			found = append(found, n)
			return false
		}
		return true
	})
	return found
}

func TestCellRefView(t *testing.T) {
	root, err := Parse("=A1 + $B$2 + C$3 + $D4")
	require.NoError(t, err)
	refs := referencesOf(root, KindCellReference)
	require.Len(t, refs, 4)

	testCases := []struct {
		loc    grid.Location
		colAbs bool
		rowAbs bool
	}{
		{grid.Loc(1, 1), false, false},
		{grid.Loc(2, 2), true, true},
		{grid.Loc(3, 3), false, true},
		{grid.Loc(4, 4), true, false},
	}
	for i, tc := range testCases {
		ref, ok := refs[i].CellRef()
		require.True(t, ok)
		assert.Equal(t, tc.loc, ref.Coords())
		assert.Equal(t, tc.colAbs, ref.ColAbsolute())
		assert.Equal(t, tc.rowAbs, ref.RowAbsolute())
	}

	_, ok := root.CellRef()
	assert.False(t, ok)
}

func TestCellRefOffset(t *testing.T) {
	testCases := []struct {
		name         string
		dCol, dRow   int
		moveAbsolute bool
		want         string
	}{
		{"relative only", 1, 1, false, "=B2 + $B$2 + D$3 + $D5"},
		{"move absolute", 1, 1, true, "=B2 + $C$3 + D$4 + $E5"},
		{"backwards", -1, 0, false, "=#Invalid! + $B$2 + B$3 + $D4"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root, err := Parse("=A1 + $B$2 + C$3 + $D4")
			require.NoError(t, err)
			for _, n := range referencesOf(root, KindCellReference) {
				ref, _ := n.CellRef()
				ref.Offset(tc.dCol, tc.dRow, tc.moveAbsolute)
			}
			assert.Equal(t, tc.want, root.Flatten())
		})
	}
}

func TestOffsetToInvalidSwitchesKind(t *testing.T) {
	root, err := Parse("=A1  + 1")
	require.NoError(t, err)
	n := referencesOf(root, KindCellReference)[0]
	ref, _ := n.CellRef()
	ref.Offset(0, -1, false)

	assert.Equal(t, KindInvalidReference, n.Kind)
	assert.Equal(t, "=#Invalid!  + 1", root.Flatten())
	assert.Equal(t, `_raise(FormulaError("#Invalid! cell reference in formula"))`, CompileTree(root).Source)
}

func TestRangeOffset(t *testing.T) {
	root, err := Parse("=SUM(A1:$B$2)")
	require.NoError(t, err)
	n := referencesOf(root, KindCellRange)[0]
	r, ok := n.Range()
	require.True(t, ok)
	assert.False(t, r.Invalid())

	r.Offset(2, 3, false)
	assert.Equal(t, "=SUM(C4:$B$2)", root.Flatten())

	first, second, ok := r.Coords()
	require.True(t, ok)
	assert.Equal(t, grid.Loc(3, 4), first)
	assert.Equal(t, grid.Loc(2, 2), second)
}

func TestColumnAndRowRefOffset(t *testing.T) {
	testCases := []struct {
		formula    string
		dCol, dRow int
		move       bool
		want       string
	}{
		{"=B_", 1, 0, false, "=C_"},
		{"=$B_ ", 1, 0, false, "=$B_ "},
		{"=$B_ ", 1, 0, true, "=$C_ "},
		{"=B_", -2, 0, false, "=#Invalid!"},
		{"=_3", 0, 2, false, "=_5"},
		{"=_$3", 0, 2, false, "=_$3"},
		{"=_3 ", 0, -3, false, "=#Invalid! "},
	}

	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			root, err := Parse(tc.formula)
			require.NoError(t, err)
			root.Walk(func(n *Node) bool {
				if col, ok := n.ColumnRef(); ok {
					col.Offset(tc.dCol, tc.dRow, tc.move)
					return false
				}
				if row, ok := n.RowRef(); ok {
					row.Offset(tc.dCol, tc.dRow, tc.move)
					return false
				}
				return true
			})
			assert.Equal(t, tc.want, root.Flatten())
		})
	}
}

func TestColumnAndRowRefCoords(t *testing.T) {
	root, err := Parse("=$AB_ + _$12")
	require.NoError(t, err)

	col, ok := referencesOf(root, KindColumnReference)[0].ColumnRef()
	require.True(t, ok)
	assert.Equal(t, 28, col.Coords())
	assert.True(t, col.Absolute())

	row, ok := referencesOf(root, KindRowReference)[0].RowRef()
	require.True(t, ok)
	assert.Equal(t, 12, row.Coords())
	assert.True(t, row.Absolute())
}
