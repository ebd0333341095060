package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

type undefinedType struct{}

func (undefinedType) String() string { return "<undefined>" }

// Undefined marks a cell value that has not been computed. it is distinct
// from every real value, None included, and is falsy.
var Undefined any = undefinedType{}

// IsUndefined reports whether v is the Undefined sentinel
func IsUndefined(v any) bool {
	_, ok := v.(undefinedType)
	return ok
}

// FormatValue renders a value the way the host language's str() does.
func FormatValue(v any) string {
	switch x := v.(type) {
	case undefinedType:
		return ""
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return FormatFloat(x)
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// FormatFloat produces the shortest round-tripping representation of f,
// switching to exponent notation outside [1e-4, 1e16) and always keeping a
// decimal point on integral values.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	exp := int(math.Floor(math.Log10(math.Abs(f))))
	// Log10 can be off by one around exact powers of ten
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	if i := strings.IndexByte(sci, 'e'); i >= 0 {
		if e, err := strconv.Atoi(sci[i+1:]); err == nil {
			exp = e
		}
	}
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// Cell holds the state of a single grid location. all accessors are safe for
// concurrent use.
type Cell struct {
	mu             sync.RWMutex
	formula        string
	pythonFormula  string
	dependencies   []Location
	value          any
	formattedValue string
	err            string

	// bumped on every mutation so the owning worksheet can invalidate its
	// cached bounds
	gen *atomic.Uint64
}

// NewCell returns an empty cell
func NewCell() *Cell {
	return &Cell{value: Undefined}
}

func (c *Cell) touch() {
	if c.gen != nil {
		c.gen.Add(1)
	}
}

func (c *Cell) Formula() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.formula
}

// SetFormula replaces the formula text, dropping any compiled form
func (c *Cell) SetFormula(formula string) {
	c.mu.Lock()
	c.formula = formula
	c.pythonFormula = ""
	c.dependencies = nil
	c.mu.Unlock()
	c.touch()
}

func (c *Cell) PythonFormula() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pythonFormula
}

// SetCompiled records the host-language source and dependency list produced
// for the current formula.
func (c *Cell) SetCompiled(pythonFormula string, dependencies []Location) {
	c.mu.Lock()
	c.pythonFormula = pythonFormula
	c.dependencies = append([]Location(nil), dependencies...)
	c.mu.Unlock()
}

func (c *Cell) Dependencies() []Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Location(nil), c.dependencies...)
}

func (c *Cell) Value() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// SetValue stores a computed value and its formatted form
func (c *Cell) SetValue(v any) {
	c.mu.Lock()
	c.value = v
	c.formattedValue = FormatValue(v)
	c.mu.Unlock()
	c.touch()
}

// ClearValue resets the value without touching the formatted value
func (c *Cell) ClearValue() {
	c.mu.Lock()
	c.value = Undefined
	c.mu.Unlock()
	c.touch()
}

func (c *Cell) FormattedValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.formattedValue
}

func (c *Cell) SetFormattedValue(s string) {
	c.mu.Lock()
	c.formattedValue = s
	c.mu.Unlock()
	c.touch()
}

func (c *Cell) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// SetError records an error message. a cell in error never carries a value,
// so the value is reset to Undefined whenever msg is non-empty.
func (c *Cell) SetError(msg string) {
	c.mu.Lock()
	c.err = msg
	if msg != "" {
		c.value = Undefined
		c.formattedValue = ""
	}
	c.mu.Unlock()
	c.touch()
}

// Clear wipes formula, value and error but keeps the cell's identity
func (c *Cell) Clear() {
	c.mu.Lock()
	c.formula = ""
	c.pythonFormula = ""
	c.dependencies = nil
	c.value = Undefined
	c.formattedValue = ""
	c.err = ""
	c.mu.Unlock()
	c.touch()
}

// IsEmpty reports whether the cell has nothing worth storing
func (c *Cell) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.formula == "" && c.pythonFormula == "" && IsUndefined(c.value) &&
		c.formattedValue == "" && c.err == ""
}

// Copy returns a detached copy of the cell
func (c *Cell) Copy() *Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Cell{
		formula:        c.formula,
		pythonFormula:  c.pythonFormula,
		dependencies:   append([]Location(nil), c.dependencies...),
		value:          c.value,
		formattedValue: c.formattedValue,
		err:            c.err,
	}
}

func (c *Cell) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	errPart := ""
	if c.err != "" {
		errPart = fmt.Sprintf(" error=%q", c.err)
	}
	return fmt.Sprintf("<Cell formula=%q value=%s formatted_value=%q%s>",
		c.formula, Repr(c.value), c.formattedValue, errPart)
}

// Repr renders a scalar value the way the host language's repr() does.
// non-scalar values fall back to their String form.
func Repr(v any) string {
	if s, ok := v.(string); ok {
		return QuoteString(s)
	}
	return FormatValue(reprAware(v))
}

func reprAware(v any) any {
	if IsUndefined(v) {
		return undefinedType{}.String()
	}
	return v
}

// QuoteString quotes s with single quotes unless it contains a single quote
// and no double quote, mirroring the host language.
func QuoteString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteByte(quote)
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r == rune(quote) {
				sb.WriteByte('\\')
				sb.WriteRune(r)
			} else if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&sb, `\x%02x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}
