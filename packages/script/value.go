package script

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// Value is anything the interpreter can hold: nil (None), bool, int64,
// float64, string, *List, Tuple, *Dict, callables, modules, exceptions, the
// Undefined sentinel and the spreadsheet host objects.
type Value = any

// Undefined is the spreadsheet's "no value computed" marker
var Undefined = grid.Undefined

// List is a mutable sequence
type List struct {
	Items []Value
}

// NewList wraps items in a List
func NewList(items ...Value) *List {
	return &List{Items: items}
}

func (l *List) String() string {
	return "[" + joinRepr(l.Items) + "]"
}

// Tuple is an immutable sequence
type Tuple []Value

func (t Tuple) String() string {
	if len(t) == 1 {
		return "(" + Repr(t[0]) + ",)"
	}
	return "(" + joinRepr(t) + ")"
}

func joinRepr(items []Value) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Repr(item)
	}
	return strings.Join(parts, ", ")
}

// Dict is an insertion-ordered mapping
type Dict struct {
	mu    sync.Mutex
	keys  []Value
	vals  []Value
	index map[any]int
}

// NewDict creates an empty dict
func NewDict() *Dict {
	return &Dict{index: make(map[any]int)}
}

func (d *Dict) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

// Get looks a key up. unhashable keys raise TypeError.
func (d *Dict) Get(key Value) (Value, bool, error) {
	h, err := hashKey(key)
	if err != nil {
		return nil, false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.index[h]
	if !ok {
		return nil, false, nil
	}
	return d.vals[i], true, nil
}

// Set stores a value, keeping the position of an existing key
func (d *Dict) Set(key, value Value) error {
	h, err := hashKey(key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.index[h]; ok {
		d.vals[i] = value
		return nil
	}
	d.index[h] = len(d.keys)
	d.keys = append(d.keys, key)
	d.vals = append(d.vals, value)
	return nil
}

// Delete removes a key, reporting whether it was present
func (d *Dict) Delete(key Value) (bool, error) {
	h, err := hashKey(key)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.index[h]
	if !ok {
		return false, nil
	}
	d.keys = append(d.keys[:i], d.keys[i+1:]...)
	d.vals = append(d.vals[:i], d.vals[i+1:]...)
	delete(d.index, h)
	for k, j := range d.index {
		if j > i {
			d.index[k] = j - 1
		}
	}
	return true, nil
}

// Keys returns a snapshot of the keys in insertion order
func (d *Dict) Keys() []Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Value(nil), d.keys...)
}

// Items returns snapshots of keys and values in insertion order
func (d *Dict) Items() ([]Value, []Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Value(nil), d.keys...), append([]Value(nil), d.vals...)
}

func (d *Dict) String() string {
	keys, vals := d.Items()
	parts := make([]string, len(keys))
	for i := range keys {
		parts[i] = Repr(keys[i]) + ": " + Repr(vals[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type noneKey struct{}

type tupleKey string

// hashKey maps a value to a comparable Go value so that equal values
// (1, 1.0 and True) share a key
func hashKey(v Value) (any, error) {
	switch x := v.(type) {
	case nil:
		return noneKey{}, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
			return int64(x), nil
		}
		return x, nil
	case string:
		return x, nil
	case Tuple:
		parts := make([]string, len(x))
		for i, item := range x {
			k, err := hashKey(item)
			if err != nil {
				return nil, err
			}
			parts[i] = fmt.Sprintf("%T:%v", k, k)
		}
		return tupleKey(strings.Join(parts, "\x00")), nil
	case *List, *Dict:
		return nil, newException(TypeError, "unhashable type: '%s'", typeName(v))
	}
	return v, nil
}

// Function is a user-defined function or lambda
type Function struct {
	Name     string
	Params   []string
	Defaults []Value // defaults for the trailing parameters
	VarArgs  string
	KwArgs   string
	Body     []Stmt
	Expr     Expr // lambda body
	closure  *frame
	globals  *Scope
}

func (f *Function) String() string {
	return fmt.Sprintf("<function %s>", f.Name)
}

// Builtin is a function implemented in Go
type Builtin struct {
	Name string
	Fn   func(t *Thread, args []Value, kwargs map[string]Value) (Value, error)
}

func (b *Builtin) String() string {
	return fmt.Sprintf("<built-in function %s>", b.Name)
}

// Type is a builtin type object. calling it converts its argument.
type Type struct {
	Name  string
	Match func(Value) bool
	New   func(t *Thread, args []Value, kwargs map[string]Value) (Value, error)
}

func (ty *Type) String() string {
	return fmt.Sprintf("<type '%s'>", ty.Name)
}

// Module is an importable namespace
type Module struct {
	Name  string
	Attrs map[string]Value
}

func (m *Module) String() string {
	return fmt.Sprintf("<module '%s'>", m.Name)
}

func isUndefined(v Value) bool {
	return grid.IsUndefined(v)
}

// typeName is the host-language name of a value's type
func typeName(v Value) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64, int:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case Tuple:
		return "tuple"
	case *Dict:
		return "dict"
	case *Function:
		return "function"
	case *Builtin:
		return "builtin_function_or_method"
	case *Type:
		return "type"
	case *Class:
		return "type"
	case *Module:
		return "module"
	case *Range:
		return "range"
	case *Exception:
		return x.Class.Name
	case *grid.Worksheet:
		return "Worksheet"
	case *grid.Cell:
		return "Cell"
	case *grid.CellRange:
		return "CellRange"
	case *DateTime:
		return "DateTime"
	}
	if isUndefined(v) {
		return "Undefined"
	}
	return fmt.Sprintf("%T", v)
}

// Str renders v the way str() does
func Str(v Value) string {
	switch x := v.(type) {
	case *Exception:
		return x.Message()
	}
	if isUndefined(v) {
		return "<undefined>"
	}
	return grid.FormatValue(v)
}

// Repr renders v the way repr() does
func Repr(v Value) string {
	switch x := v.(type) {
	case string:
		return grid.QuoteString(x)
	case *Exception:
		return x.Repr()
	case *DateTime:
		return x.Repr()
	}
	return Str(v)
}

// Truthy reports the truth value of v. Undefined is falsy.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case *List:
		return len(x.Items) > 0
	case Tuple:
		return len(x) > 0
	case *Dict:
		return x.Len() > 0
	case *grid.CellRange:
		return x.Len() > 0
	}
	return !isUndefined(v)
}

// sortValues sorts in place using the language's ordering
func sortValues(items []Value, less func(a, b Value) (bool, error)) error {
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		lt, err := less(items[i], items[j])
		if err != nil {
			sortErr = err
		}
		return lt
	})
	return sortErr
}
