package script

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// number classifies numeric operands. bools count as ints.
func number(v Value) (i int64, f float64, isFloat, ok bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, 1, false, true
		}
		return 0, 0, false, true
	case int64:
		return x, float64(x), false, true
	case int:
		return int64(x), float64(x), false, true
	case float64:
		return 0, x, true, true
	}
	return 0, 0, false, false
}

func toFloat(v Value) (float64, bool) {
	_, f, _, ok := number(v)
	return f, ok
}

func toInt(v Value) (int64, bool) {
	i, _, isFloat, ok := number(v)
	return i, ok && !isFloat
}

func unsupported(op string, a, b Value) error {
	return newException(TypeError, "unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(a), typeName(b))
}

// binaryOp applies an arithmetic, bitwise or concatenation operator.
// Undefined on either side yields Undefined.
func binaryOp(op string, a, b Value) (Value, error) {
	if isUndefined(a) || isUndefined(b) {
		return Undefined, nil
	}
	if op == "&" {
		return Str(a) + Str(b), nil
	}

	ai, af, aFloat, aNum := number(a)
	bi, bf, bFloat, bNum := number(b)
	if aNum && bNum {
		if aFloat || bFloat {
			return floatOp(op, af, bf, a, b)
		}
		return intOp(op, ai, bi, a, b)
	}

	switch op {
	case "+":
		switch x := a.(type) {
		case string:
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		case *List:
			if y, ok := b.(*List); ok {
				items := append(append([]Value(nil), x.Items...), y.Items...)
				return NewList(items...), nil
			}
		case Tuple:
			if y, ok := b.(Tuple); ok {
				return append(append(Tuple(nil), x...), y...), nil
			}
		case *DateTime:
			if y, ok := toFloat(b); ok {
				return x.addDays(y), nil
			}
		}
	case "-":
		if x, ok := a.(*DateTime); ok {
			switch y := b.(type) {
			case *DateTime:
				return x.Sub(y.Time).Hours() / 24, nil
			default:
				if days, ok := toFloat(y); ok {
					return x.addDays(-days), nil
				}
			}
		}
	case "*":
		if n, ok := toInt(b); ok {
			if v, ok := repeat(a, n); ok {
				return v, nil
			}
		}
		if n, ok := toInt(a); ok {
			if v, ok := repeat(b, n); ok {
				return v, nil
			}
		}
	case "%":
		if format, ok := a.(string); ok {
			return formatPercent(format, b)
		}
	}
	return nil, unsupported(op, a, b)
}

// repeat implements sequence * int
func repeat(seq Value, n int64) (Value, bool) {
	if n < 0 {
		n = 0
	}
	switch x := seq.(type) {
	case string:
		return strings.Repeat(x, int(n)), true
	case *List:
		items := make([]Value, 0, len(x.Items)*int(n))
		for range n {
			items = append(items, x.Items...)
		}
		return NewList(items...), true
	case Tuple:
		items := make(Tuple, 0, len(x)*int(n))
		for range n {
			items = append(items, x...)
		}
		return items, true
	}
	return nil, false
}

func intOp(op string, a, b int64, av, bv Value) (Value, error) {
	switch op {
	case "+":
		s := a + b
		if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
			return float64(a) + float64(b), nil
		}
		return s, nil
	case "-":
		s := a - b
		if (a >= 0 && b < 0 && s < 0) || (a < 0 && b > 0 && s >= 0) {
			return float64(a) - float64(b), nil
		}
		return s, nil
	case "*":
		if a == 0 || b == 0 {
			return int64(0), nil
		}
		p := a * b
		if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return float64(a) * float64(b), nil
		}
		return p, nil
	case "/":
		if b == 0 {
			return nil, newException(ZeroDivisionError, "division by zero")
		}
		return float64(a) / float64(b), nil
	case "//":
		if b == 0 {
			return nil, newException(ZeroDivisionError, "integer division or modulo by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return -float64(a), nil
		}
		q := a / b
		if a%b != 0 && (a < 0) != (b < 0) {
			q--
		}
		return q, nil
	case "%":
		if b == 0 {
			return nil, newException(ZeroDivisionError, "integer division or modulo by zero")
		}
		if b == -1 {
			return int64(0), nil
		}
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	case "**":
		if b < 0 {
			if a == 0 {
				return nil, newException(ZeroDivisionError, "0.0 cannot be raised to a negative power")
			}
			return math.Pow(float64(a), float64(b)), nil
		}
		return intPow(a, b), nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "<<":
		if b < 0 {
			return nil, newException(ValueError, "negative shift count")
		}
		if b >= 63 || (a<<b)>>b != a {
			return float64(a) * math.Pow(2, float64(b)), nil
		}
		return a << b, nil
	case ">>":
		if b < 0 {
			return nil, newException(ValueError, "negative shift count")
		}
		if b >= 63 {
			if a < 0 {
				return int64(-1), nil
			}
			return int64(0), nil
		}
		return a >> b, nil
	}
	return nil, unsupported(op, av, bv)
}

// intPow computes a**b for b >= 0, switching to float on overflow
func intPow(a, b int64) Value {
	result := int64(1)
	base := a
	exp := b
	for exp > 0 {
		if exp&1 == 1 {
			r, ok := mulChecked(result, base)
			if !ok {
				return math.Pow(float64(a), float64(b))
			}
			result = r
		}
		exp >>= 1
		if exp > 0 {
			sq, ok := mulChecked(base, base)
			if !ok {
				return math.Pow(float64(a), float64(b))
			}
			base = sq
		}
	}
	return result
}

func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}

func floatOp(op string, a, b float64, av, bv Value) (Value, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, newException(ZeroDivisionError, "float division by zero")
		}
		return a / b, nil
	case "//":
		if b == 0 {
			return nil, newException(ZeroDivisionError, "float divmod()")
		}
		return math.Floor(a / b), nil
	case "%":
		if b == 0 {
			return nil, newException(ZeroDivisionError, "float modulo")
		}
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	case "**":
		if a == 0 && b < 0 {
			return nil, newException(ZeroDivisionError, "0.0 cannot be raised to a negative power")
		}
		if a < 0 && b != math.Trunc(b) {
			return nil, newException(ValueError, "negative number cannot be raised to a fractional power")
		}
		r := math.Pow(a, b)
		if math.IsInf(r, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
			return nil, newException(OverflowError, "(34, 'Numerical result out of range')")
		}
		return r, nil
	}
	return nil, unsupported(op, av, bv)
}

// unaryOp applies -, + or ~
func unaryOp(op string, v Value) (Value, error) {
	if isUndefined(v) {
		return Undefined, nil
	}
	i, f, isFloat, ok := number(v)
	if ok {
		switch op {
		case "-":
			if isFloat {
				return -f, nil
			}
			if i == math.MinInt64 {
				return -float64(i), nil
			}
			return -i, nil
		case "+":
			if isFloat {
				return f, nil
			}
			return i, nil
		case "~":
			if !isFloat {
				return ^i, nil
			}
		}
	}
	return nil, newException(TypeError, "bad operand type for unary %s: '%s'", op, typeName(v))
}

// identical implements "is"
func identical(a, b Value) bool {
	if isUndefined(a) || isUndefined(b) {
		return isUndefined(a) && isUndefined(b)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		if ta == tb && ta.Kind() == reflect.Slice {
			va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
			return va.Len() == vb.Len() && (va.Len() == 0 || va.Pointer() == vb.Pointer())
		}
		return false
	}
	return a == b
}

// equals implements ==
func equals(a, b Value) bool {
	if isUndefined(a) || isUndefined(b) {
		return isUndefined(a) && isUndefined(b)
	}
	if ai, af, aFloat, ok := number(a); ok {
		bi, bf, bFloat, ok := number(b)
		if !ok {
			return false
		}
		if !aFloat && !bFloat {
			return ai == bi
		}
		return af == bf
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *List:
		y, ok := b.(*List)
		return ok && sequenceEquals(x.Items, y.Items)
	case Tuple:
		y, ok := b.(Tuple)
		return ok && sequenceEquals(x, y)
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false
		}
		keys, vals := x.Items()
		for i, k := range keys {
			v, found, err := y.Get(k)
			if err != nil || !found || !equals(vals[i], v) {
				return false
			}
		}
		return true
	case *DateTime:
		y, ok := b.(*DateTime)
		return ok && x.Equal(y.Time)
	case *Range:
		y, ok := b.(*Range)
		return ok && *x == *y
	}
	return identical(a, b)
}

func sequenceEquals(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equals(a[i], b[i]) {
			return false
		}
	}
	return true
}

// compareOrder returns -1, 0 or 1. op names the operator for the error.
func compareOrder(op string, a, b Value) (int, error) {
	if ai, af, aFloat, ok := number(a); ok {
		if bi, bf, bFloat, ok := number(b); ok {
			if !aFloat && !bFloat {
				return cmpInt(ai, bi), nil
			}
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case *List:
		if y, ok := b.(*List); ok {
			return compareSequences(op, x.Items, y.Items)
		}
	case Tuple:
		if y, ok := b.(Tuple); ok {
			return compareSequences(op, x, y)
		}
	case *DateTime:
		if y, ok := b.(*DateTime); ok {
			return x.Compare(y.Time), nil
		}
	}
	return 0, newException(TypeError, "'%s' not supported between instances of '%s' and '%s'", op, typeName(a), typeName(b))
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareSequences(op string, a, b []Value) (int, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if equals(a[i], b[i]) {
			continue
		}
		return compareOrder(op, a[i], b[i])
	}
	return cmpInt(int64(len(a)), int64(len(b))), nil
}

// compare applies one comparison operator
func compare(t *Thread, op string, a, b Value) (Value, error) {
	switch op {
	case "==":
		return equals(a, b), nil
	case "!=":
		return !equals(a, b), nil
	case "is":
		return identical(a, b), nil
	case "is not":
		return !identical(a, b), nil
	case "in", "not in":
		found, err := contains(t, b, a)
		if err != nil {
			return nil, err
		}
		return found == (op == "in"), nil
	}

	if isUndefined(a) || isUndefined(b) {
		return Undefined, nil
	}
	c, err := compareOrder(op, a, b)
	if err != nil {
		return nil, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return nil, newException(SyntaxError, "unknown comparison %s", op)
}

// contains implements "in"
func contains(t *Thread, container, item Value) (bool, error) {
	switch x := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, newException(TypeError, "'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(x, s), nil
	case *Dict:
		_, found, err := x.Get(item)
		return found, err
	}
	found := false
	err := forEach(t, container, func(v Value) error {
		if equals(v, item) {
			found = true
			return errStopIteration
		}
		return nil
	})
	if err == errStopIteration {
		err = nil
	}
	if exc, ok := err.(*Exception); ok && exc.Class == TypeError {
		return false, newException(TypeError, "argument of type '%s' is not iterable", typeName(container))
	}
	return found, err
}

// formatPercent implements "format" % args
func formatPercent(format string, args Value) (Value, error) {
	var values []Value
	var mapping *Dict
	switch x := args.(type) {
	case Tuple:
		values = x
	case *Dict:
		mapping = x
		values = []Value{x}
	default:
		values = []Value{args}
	}

	var sb strings.Builder
	next := 0
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' {
			sb.WriteRune(runes[i])
			continue
		}
		i++
		if i >= len(runes) {
			return nil, newException(ValueError, "incomplete format")
		}
		if runes[i] == '%' {
			sb.WriteByte('%')
			continue
		}

		var arg Value
		haveArg := false
		if runes[i] == '(' {
			end := i + 1
			for end < len(runes) && runes[end] != ')' {
				end++
			}
			if end >= len(runes) {
				return nil, newException(ValueError, "incomplete format key")
			}
			if mapping == nil {
				return nil, newException(TypeError, "format requires a mapping")
			}
			key := string(runes[i+1 : end])
			v, found, _ := mapping.Get(key)
			if !found {
				return nil, &Exception{Class: KeyError, Args: []Value{key}}
			}
			arg, haveArg = v, true
			i = end + 1
		}

		spec := "%"
		for i < len(runes) && strings.ContainsRune("-+ #0", runes[i]) {
			spec += string(runes[i])
			i++
		}
		for i < len(runes) && (runes[i] >= '0' && runes[i] <= '9' || runes[i] == '.') {
			spec += string(runes[i])
			i++
		}
		if i >= len(runes) {
			return nil, newException(ValueError, "incomplete format")
		}
		verb := runes[i]

		if !haveArg {
			if next >= len(values) {
				return nil, newException(TypeError, "not enough arguments for format string")
			}
			arg = values[next]
			next++
		}

		switch verb {
		case 's':
			sb.WriteString(fmt.Sprintf(spec+"s", Str(arg)))
		case 'r':
			sb.WriteString(fmt.Sprintf(spec+"s", Repr(arg)))
		case 'd', 'i':
			n, ok := toFloat(arg)
			if !ok {
				return nil, newException(TypeError, "%%d format: a number is required, not %s", typeName(arg))
			}
			sb.WriteString(fmt.Sprintf(spec+"d", int64(n)))
		case 'f', 'F', 'e', 'E', 'g', 'G':
			n, ok := toFloat(arg)
			if !ok {
				return nil, newException(TypeError, "float argument required, not %s", typeName(arg))
			}
			sb.WriteString(fmt.Sprintf(spec+string(verb), n))
		case 'x', 'X', 'o':
			n, ok := toInt(arg)
			if !ok {
				return nil, newException(TypeError, "%%%c format: an integer is required, not %s", verb, typeName(arg))
			}
			sb.WriteString(fmt.Sprintf(spec+string(verb), n))
		case 'c':
			switch c := arg.(type) {
			case string:
				sb.WriteString(c)
			default:
				n, _ := toInt(c)
				sb.WriteRune(rune(n))
			}
		default:
			return nil, newException(ValueError, "unsupported format character '%c' (0x%x)", verb, verb)
		}
	}
	if mapping == nil && next < len(values) {
		return nil, newException(TypeError, "not all arguments converted during string formatting")
	}
	return sb.String(), nil
}

// EvalConstant interprets constant cell text: an int, else a float, else
// the text itself
func EvalConstant(text string) Value {
	trimmed := strings.TrimSpace(text)
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !strings.ContainsAny(strings.ToLower(trimmed), "xp_") {
		return f
	}
	return text
}
