package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxColumn is the largest addressable column, ZZZ. three letter column
// names are allowed, nothing longer.
const MaxColumn = 26*26*26 + 26*26 + 26

// Location is a 1-indexed (column, row) pair
type Location struct {
	Col int
	Row int
}

// Loc is shorthand for Location{Col: col, Row: row}
func Loc(col, row int) Location {
	return Location{Col: col, Row: row}
}

// String renders the location as an A1-style name, or as "(col,row)" when
// the location cannot be named.
func (l Location) String() string {
	if name, ok := CoordinatesToCellName(l.Col, l.Row, false, false); ok {
		return name
	}
	return fmt.Sprintf("(%d,%d)", l.Col, l.Row)
}

// Less orders locations by column, then row
func (l Location) Less(other Location) bool {
	if l.Col != other.Col {
		return l.Col < other.Col
	}
	return l.Row < other.Row
}

// ColumnNameToIndex converts a column name like "A" or "aB" to its
// 1-based index. returns false for non-letters or names past MaxColumn.
func ColumnNameToIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	result := 0
	for _, ch := range strings.ToUpper(name) {
		if ch < 'A' || ch > 'Z' {
			return 0, false
		}
		result = result*26 + int(ch-'A') + 1
		if result > MaxColumn {
			return 0, false
		}
	}
	return result, true
}

// ColumnIndexToName converts a 1-based column index to letters
func ColumnIndexToName(index int) (string, bool) {
	if index < 1 || index > MaxColumn {
		return "", false
	}
	var buf [4]byte
	pos := len(buf)
	for index > 0 {
		pos--
		buf[pos] = byte((index-1)%26) + 'A'
		index = (index - 1) / 26
	}
	return string(buf[pos:]), true
}

// CellNameToCoordinates parses names like "B3", "$B3", "B$3" or "$b$3".
// trailing whitespace is ignored.
func CellNameToCoordinates(name string) (Location, bool) {
	name = strings.TrimRight(name, " \t\r\n")
	name = strings.TrimPrefix(name, "$")
	if name == "" {
		return Location{}, false
	}

	var col, row strings.Builder
	dollarSeen := false
	for _, ch := range name {
		switch {
		case (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
			if row.Len() > 0 {
				return Location{}, false
			}
			col.WriteRune(ch)
		case ch == '$':
			if dollarSeen || col.Len() == 0 || row.Len() > 0 {
				return Location{}, false
			}
			dollarSeen = true
		case ch >= '0' && ch <= '9':
			if col.Len() == 0 {
				return Location{}, false
			}
			row.WriteRune(ch)
		default:
			return Location{}, false
		}
	}
	return namesToLocation(col.String(), row.String())
}

func namesToLocation(col, row string) (Location, bool) {
	if col == "" || row == "" {
		return Location{}, false
	}
	colIndex, ok := ColumnNameToIndex(col)
	if !ok {
		return Location{}, false
	}
	rowIndex, err := strconv.Atoi(row)
	if err != nil || rowIndex < 1 {
		return Location{}, false
	}
	return Location{Col: colIndex, Row: rowIndex}, true
}

// CoordinatesToCellName renders a location, with "$" markers for the
// absolute parts.
func CoordinatesToCellName(col, row int, colAbsolute, rowAbsolute bool) (string, bool) {
	if row < 1 {
		return "", false
	}
	colName, ok := ColumnIndexToName(col)
	if !ok {
		return "", false
	}
	var sb strings.Builder
	if colAbsolute {
		sb.WriteByte('$')
	}
	sb.WriteString(colName)
	if rowAbsolute {
		sb.WriteByte('$')
	}
	sb.WriteString(strconv.Itoa(row))
	return sb.String(), true
}

// CellRefToCoordinates accepts the external address forms "(3,4)", "3,4"
// and "C4".
func CellRefToCoordinates(ref string) (Location, bool) {
	ref = strings.NewReplacer("(", "", ")", "").Replace(ref)
	if strings.Contains(ref, ",") {
		parts := strings.Split(ref, ",")
		if len(parts) != 2 {
			return Location{}, false
		}
		col, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return Location{}, false
		}
		row, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return Location{}, false
		}
		return Location{Col: col, Row: row}, true
	}
	return CellNameToCoordinates(ref)
}

// CellRangeToCoordinates parses "A1:B2" into its two corners
func CellRangeToCoordinates(s string) (Location, Location, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Location{}, Location{}, false
	}
	start, ok := CellNameToCoordinates(parts[0])
	if !ok {
		return Location{}, Location{}, false
	}
	end, ok := CellNameToCoordinates(parts[1])
	if !ok {
		return Location{}, Location{}, false
	}
	return start, end, true
}
