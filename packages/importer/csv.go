// Package importer fills worksheets from CSV and Excel files and writes
// calculated worksheets back out.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// ImportError wraps whatever stopped an import
type ImportError struct {
	Source string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Source, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// CSVOptions control how CSV text is read
type CSVOptions struct {
	// ExcelEncoding reads the input as Windows-1252, the encoding Excel
	// saves CSV files in. otherwise UTF-8 is assumed, falling back to
	// Windows-1252 for input that is not valid UTF-8.
	ExcelEncoding bool
}

// FromCSV writes every field of r into ws as a cell formula, starting at
// (startCol, startRow) and moving one row down per record
func FromCSV(ws *grid.Worksheet, r io.Reader, startCol, startRow int, opts CSVOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &ImportError{Source: "csv", Err: err}
	}
	if opts.ExcelEncoding || !utf8.Valid(data) {
		data, err = charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return &ImportError{Source: "csv", Err: err}
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	row := startRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &ImportError{Source: "csv", Err: err}
		}
		for i, field := range record {
			ws.SetCellFormula(startCol+i, row, field)
		}
		row++
	}
}

// ToCSV writes the values of ws, from A1 to the bottom-right of its
// bounds. undefined values are written as empty fields.
func ToCSV(ws *grid.Worksheet, w io.Writer) error {
	writer := csv.NewWriter(w)
	bounds, ok := ws.Bounds()
	if ok {
		for row := 1; row <= bounds.Bottom; row++ {
			record := make([]string, 0, bounds.Right)
			for col := 1; col <= bounds.Right; col++ {
				cell, ok := ws.Lookup(grid.Loc(col, row))
				if !ok {
					record = append(record, "")
					continue
				}
				record = append(record, grid.FormatValue(cell.Value()))
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("export csv: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}
