package calc

import (
	"sync"

	"github.com/vogtb/go-spreadsheet/packages/formula"
	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/script"
)

// ProgramKey is compiled formula source used as a key for deduplication.
// cells holding the same formula relative to the same cells share one
// parsed program.
type ProgramKey string

type programEntry struct {
	program *script.Program
	err     error
	uses    int
}

// ProgramTable interns parsed host programs by their source text. it is
// safe for concurrent use and may be shared by many calculations.
type ProgramTable struct {
	mu      sync.Mutex
	entries map[ProgramKey]*programEntry
}

// NewProgramTable creates an empty table
func NewProgramTable() *ProgramTable {
	return &ProgramTable{entries: make(map[ProgramKey]*programEntry)}
}

// Intern returns the program for source, parsing it on first use. a
// source that does not parse keeps returning the same syntax error.
func (pt *ProgramTable) Intern(source string) (*script.Program, error) {
	key := ProgramKey(source)

	pt.mu.Lock()
	defer pt.mu.Unlock()
	if e, ok := pt.entries[key]; ok {
		e.uses++
		return e.program, e.err
	}
	program, err := script.ParseExpr(source)
	pt.entries[key] = &programEntry{program: program, err: err, uses: 1}
	return program, err
}

// Uses reports how many times source was interned
func (pt *ProgramTable) Uses(source string) int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if e, ok := pt.entries[ProgramKey(source)]; ok {
		return e.uses
	}
	return 0
}

// Len returns the number of distinct programs
func (pt *ProgramTable) Len() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.entries)
}

// Clear drops every program
func (pt *ProgramTable) Clear() {
	pt.mu.Lock()
	pt.entries = make(map[ProgramKey]*programEntry)
	pt.mu.Unlock()
}

// CompileCell stores the host source and dependencies of the cell's
// formula. formulas that fail to parse compile to an expression raising
// FormulaError, with no dependencies.
func CompileCell(cell *grid.Cell) {
	compiled, _ := formula.Compile(cell.Formula())
	cell.SetCompiled(compiled.Source, compiled.Dependencies)
}
