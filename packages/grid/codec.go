package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	consoleKey       = "_console_text"
	usercodeErrorKey = "_usercode_error"
)

type cellJSON struct {
	Formula        string          `json:"formula,omitempty"`
	FormattedValue string          `json:"formatted_value,omitempty"`
	PythonFormula  string          `json:"python_formula,omitempty"`
	Dependencies   [][2]int        `json:"dependencies,omitempty"`
	Error          string          `json:"error,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes the worksheet in its storage format. the output is
// deterministic: console and usercode error first, then cells ordered by
// column and row.
func (ws *Worksheet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	console := ws.ConsoleText()
	if console == nil {
		console = []ConsoleEntry{}
	}
	if err := writeMember(&buf, consoleKey, console); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeMember(&buf, usercodeErrorKey, ws.UsercodeError()); err != nil {
		return nil, err
	}

	for _, loc := range ws.Locations() {
		c, ok := ws.Lookup(loc)
		if !ok || c.IsEmpty() {
			continue
		}
		buf.WriteByte(',')
		if err := writeMember(&buf, fmt.Sprintf("%d,%d", loc.Col, loc.Row), encodeCell(c)); err != nil {
			return nil, fmt.Errorf("cell %s: %w", loc, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, v any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}

func encodeCell(c *Cell) cellJSON {
	out := cellJSON{
		Formula:        c.Formula(),
		FormattedValue: c.FormattedValue(),
		PythonFormula:  c.PythonFormula(),
		Error:          c.Error(),
	}
	for _, dep := range c.Dependencies() {
		out.Dependencies = append(out.Dependencies, [2]int{dep.Col, dep.Row})
	}
	if raw, ok := EncodeValue(c.Value()); ok {
		out.Value = raw
	}
	return out
}

// EncodeValue renders a scalar as JSON. containers, Undefined and
// non-finite floats have no JSON form and report false.
func EncodeValue(v any) (json.RawMessage, bool) {
	switch x := v.(type) {
	case nil:
		return json.RawMessage("null"), true
	case bool:
		return json.RawMessage(strconv.FormatBool(x)), true
	case int64:
		return json.RawMessage(strconv.FormatInt(x, 10)), true
	case int:
		return json.RawMessage(strconv.Itoa(x)), true
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, false
		}
		return json.RawMessage(FormatFloat(x)), true
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}

// DecodeValue is the inverse of EncodeValue. numbers written without a
// fraction or exponent come back as int64.
func DecodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
		}
		return strconv.ParseFloat(s, 64)
	case nil, bool, string:
		return x, nil
	}
	return nil, fmt.Errorf("unsupported value %s", string(raw))
}

// UnmarshalJSON restores a worksheet from its storage format. the name is
// left untouched.
func (ws *Worksheet) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return fmt.Errorf("decode worksheet: %w", err)
	}
	if ws.cells == nil {
		ws.cells = make(map[Location]*Cell)
	}

	var console []ConsoleEntry
	var usercodeErr *UsercodeError
	for key, raw := range members {
		switch key {
		case consoleKey:
			if err := json.Unmarshal(raw, &console); err != nil {
				return fmt.Errorf("decode console: %w", err)
			}
			continue
		case usercodeErrorKey:
			if err := json.Unmarshal(raw, &usercodeErr); err != nil {
				return fmt.Errorf("decode usercode error: %w", err)
			}
			continue
		}

		loc, ok := CellRefToCoordinates(key)
		if !ok {
			return fmt.Errorf("decode worksheet: bad cell key %q", key)
		}
		var cj cellJSON
		if err := json.Unmarshal(raw, &cj); err != nil {
			return fmt.Errorf("decode cell %s: %w", loc, err)
		}
		c, err := decodeCell(cj)
		if err != nil {
			return fmt.Errorf("decode cell %s: %w", loc, err)
		}
		ws.Set(loc, c)
	}

	ws.consoleMu.Lock()
	ws.console = console
	ws.usercodeError = usercodeErr
	ws.consoleMu.Unlock()
	return nil
}

func decodeCell(cj cellJSON) (*Cell, error) {
	c := NewCell()
	c.formula = cj.Formula
	c.pythonFormula = cj.PythonFormula
	c.formattedValue = cj.FormattedValue
	c.err = cj.Error
	for _, dep := range cj.Dependencies {
		c.dependencies = append(c.dependencies, Loc(dep[0], dep[1]))
	}
	if len(cj.Value) > 0 {
		v, err := DecodeValue(cj.Value)
		if err != nil {
			return nil, err
		}
		c.value = v
	}
	return c, nil
}

// Decode parses a serialized worksheet
func Decode(name string, data []byte) (*Worksheet, error) {
	ws := NewWorksheet(name)
	if len(bytes.TrimSpace(data)) == 0 {
		return ws, nil
	}
	if err := json.Unmarshal(data, ws); err != nil {
		return nil, err
	}
	return ws, nil
}
