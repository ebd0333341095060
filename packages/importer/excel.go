package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadsheet/packages/formula"
	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/script"
)

// FromExcel reads one sheet of an xlsx workbook into a new worksheet. an
// empty sheetName picks the first sheet.
//
// constants become formulas holding their text, dates become DateTime
// formulas and error values become formulas raising FormulaError. Excel
// formulas are translated where possible; the rest keep the cached value
// Excel computed for them.
func FromExcel(r io.Reader, sheetName string) (*grid.Worksheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ImportError{Source: "xlsx", Err: err}
	}
	defer f.Close()

	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &ImportError{Source: "xlsx", Err: fmt.Errorf("workbook has no sheets")}
		}
		sheetName = sheets[0]
	}
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ImportError{Source: "xlsx", Err: err}
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	ws := grid.NewWorksheet(sheetName)
	for r, row := range rows {
		for c, raw := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, &ImportError{Source: "xlsx", Err: err}
			}
			text, err := cellText(f, sheetName, name, raw, date1904)
			if err != nil {
				return nil, &ImportError{Source: "xlsx", Err: fmt.Errorf("%s!%s: %w", sheetName, name, err)}
			}
			ws.SetCellFormula(c+1, r+1, text)
		}
	}
	return ws, nil
}

// cellText picks the formula one Excel cell imports as
func cellText(f *excelize.File, sheet, cell, raw string, date1904 bool) (string, error) {
	if xf, err := f.GetCellFormula(sheet, cell); err == nil && xf != "" {
		if translated, ok := TranslateFormula(xf); ok {
			return translated, nil
		}
	}

	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return "", err
	}
	switch typ {
	case excelize.CellTypeError:
		return errorFormula(raw), nil
	case excelize.CellTypeBool:
		return boolFormula(raw), nil
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return dateFormula(t), nil
		}
		return raw, nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return raw, nil
	}

	if raw != "" && isDateStyled(f, sheet, cell) {
		if serial, err := strconv.ParseFloat(raw, 64); err == nil {
			if t, err := excelize.ExcelDateToTime(serial, date1904); err == nil {
				return dateFormula(t), nil
			}
		}
	}
	return raw, nil
}

func errorFormula(code string) string {
	return fmt.Sprintf("=_raise(FormulaError(%s))", grid.QuoteString(code))
}

func boolFormula(raw string) string {
	if raw == "1" || strings.EqualFold(raw, "true") {
		return "=True"
	}
	return "=False"
}

func dateFormula(t time.Time) string {
	t = t.Round(time.Second)
	return fmt.Sprintf("=DateTime(%d, %d, %d, %d, %d, %d)",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// builtin number formats that display dates or times
var dateNumFmts = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

func isDateStyled(f *excelize.File, sheet, cell string) bool {
	idx, err := f.GetCellStyle(sheet, cell)
	if err != nil || idx == 0 {
		return false
	}
	style, err := f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return dateNumFmts[style.NumFmt]
}

// isDateFormatCode looks for date letters outside quoted text and
// brackets
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'y' || r == 'd':
			return true
		}
	}
	return false
}

// excel functions with a direct equivalent
var functionNames = map[string]string{
	"SUM":     "sum",
	"MIN":     "min",
	"MAX":     "max",
	"ABS":     "abs",
	"ROUND":   "round",
	"LEN":     "len",
	"IF":      "IF",
	"AND":     "AND",
	"OR":      "OR",
	"ISERROR": "ISERROR",
	"ISERR":   "ISERR",
}

var infixOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "^": true, "&": true,
	"=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true,
}

// TranslateFormula turns an Excel formula (with or without its leading
// "=") into the formula language of this package's worksheets. ok is false
// when the formula uses something with no equivalent, like other sheets,
// unknown functions or whole-column ranges.
func TranslateFormula(excel string) (string, bool) {
	ps := efp.ExcelParser()
	tokens := ps.Parse(strings.TrimPrefix(excel, "="))
	if len(tokens) == 0 {
		return "", false
	}

	var sb strings.Builder
	sb.WriteByte('=')
	for _, tok := range tokens {
		switch tok.TType {
		case efp.TokenTypeOperand:
			text, ok := translateOperand(tok)
			if !ok {
				return "", false
			}
			sb.WriteString(text)
		case efp.TokenTypeFunction:
			if tok.TSubType == efp.TokenSubTypeStop {
				sb.WriteByte(')')
				continue
			}
			name, ok := functionNames[strings.ToUpper(tok.TValue)]
			if !ok {
				return "", false
			}
			sb.WriteString(name + "(")
		case efp.TokenTypeSubexpression:
			if tok.TSubType == efp.TokenSubTypeStop {
				sb.WriteByte(')')
			} else {
				sb.WriteByte('(')
			}
		case efp.TokenTypeArgument:
			sb.WriteString(", ")
		case efp.TokenTypeOperatorInfix:
			if !infixOperators[tok.TValue] {
				return "", false
			}
			sb.WriteString(" " + tok.TValue + " ")
		case efp.TokenTypeOperatorPrefix:
			sb.WriteString(tok.TValue)
		case efp.TokenTypeOperatorPostfix:
			if tok.TValue != "%" {
				return "", false
			}
			sb.WriteByte('%')
		case efp.TokenTypeWhitespace:
		default:
			return "", false
		}
	}

	translated := sb.String()
	if _, err := formula.Parse(translated); err != nil {
		return "", false
	}
	return translated, true
}

func translateOperand(tok efp.Token) (string, bool) {
	switch tok.TSubType {
	case efp.TokenSubTypeNumber:
		return tok.TValue, true
	case efp.TokenSubTypeText:
		return grid.QuoteString(tok.TValue), true
	case efp.TokenSubTypeLogical:
		if strings.EqualFold(tok.TValue, "TRUE") {
			return "True", true
		}
		return "False", true
	case efp.TokenSubTypeError:
		if tok.TValue == "#REF!" {
			return "#Invalid!", true
		}
		return "", false
	case efp.TokenSubTypeRange:
		ref := tok.TValue
		if strings.Contains(ref, "!") {
			return "", false
		}
		for _, part := range strings.Split(ref, ":") {
			if _, ok := grid.CellNameToCoordinates(part); !ok {
				return "", false
			}
		}
		return ref, true
	}
	return "", false
}

// ToExcel writes the values of ws into a single-sheet workbook
func ToExcel(ws *grid.Worksheet, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := ws.Name
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
	}

	for _, loc := range ws.Locations() {
		cell, ok := ws.Lookup(loc)
		if !ok {
			continue
		}
		name, err := excelize.CoordinatesToCellName(loc.Col, loc.Row)
		if err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
		value, ok := excelValue(cell)
		if !ok {
			continue
		}
		if err := f.SetCellValue(sheet, name, value); err != nil {
			return fmt.Errorf("export xlsx %s: %w", name, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	return nil
}

func excelValue(cell *grid.Cell) (any, bool) {
	if msg := cell.Error(); msg != "" {
		return msg, true
	}
	switch v := cell.Value().(type) {
	case int64, float64, bool, string:
		return v, true
	case *script.DateTime:
		return v.Time, true
	}
	if s := cell.FormattedValue(); s != "" {
		return s, true
	}
	return nil, false
}
