package script

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// builtins are visible from every frame. they are filled in by init to
// break the initialisation cycle through Call.
var builtins map[string]Value

var (
	strType   = &Type{Name: "str", Match: func(v Value) bool { _, ok := v.(string); return ok }}
	intType   = &Type{Name: "int", Match: func(v Value) bool { _, ok := toInt(v); return ok }}
	floatType = &Type{Name: "float", Match: func(v Value) bool { _, ok := v.(float64); return ok }}
	boolType  = &Type{Name: "bool", Match: func(v Value) bool { _, ok := v.(bool); return ok }}
	listType  = &Type{Name: "list", Match: func(v Value) bool { _, ok := v.(*List); return ok }}
	tupleType = &Type{Name: "tuple", Match: func(v Value) bool { _, ok := v.(Tuple); return ok }}
	dictType  = &Type{Name: "dict", Match: func(v Value) bool { _, ok := v.(*Dict); return ok }}
	rangeType = &Type{Name: "range", Match: func(v Value) bool { _, ok := v.(*Range); return ok }}
)

func init() {
	strType.New = builtinStr
	intType.New = builtinInt
	floatType.New = builtinFloat
	boolType.New = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("bool", args, 0, 1); err != nil {
			return nil, err
		}
		return len(args) == 1 && Truthy(args[0]), nil
	}
	listType.New = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("list", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return NewList(), nil
		}
		items, err := iterate(t, args[0])
		if err != nil {
			return nil, err
		}
		return NewList(items...), nil
	}
	tupleType.New = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("tuple", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return Tuple{}, nil
		}
		items, err := iterate(t, args[0])
		if err != nil {
			return nil, err
		}
		return Tuple(items), nil
	}
	dictType.New = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("dict", args, 0, 1); err != nil {
			return nil, err
		}
		d := NewDict()
		if len(args) == 1 {
			if err := dictUpdate(t, d, args[0]); err != nil {
				return nil, err
			}
		}
		for k, v := range kwargs {
			if err := d.Set(k, v); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	rangeType.New = builtinRange

	builtins = map[string]Value{
		"None":      nil,
		"True":      true,
		"False":     false,
		"undefined": Undefined,

		"str":       strType,
		"unicode":   strType,
		"int":       intType,
		"float":     floatType,
		"bool":      boolType,
		"list":      listType,
		"tuple":     tupleType,
		"dict":      dictType,
		"range":     rangeType,
		"xrange":    rangeType,
		"DateTime":  dateTimeType,
		"CellRange": cellRangeType,
	}
	for _, c := range exceptionClasses {
		builtins[c.Name] = c
	}
	for _, b := range []*Builtin{
		{Name: "print", Fn: builtinPrint},
		{Name: "len", Fn: builtinLen},
		{Name: "repr", Fn: builtinRepr},
		{Name: "sum", Fn: builtinSum},
		{Name: "min", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return extreme(t, "min", args, kwargs, -1)
		}},
		{Name: "max", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return extreme(t, "max", args, kwargs, 1)
		}},
		{Name: "abs", Fn: builtinAbs},
		{Name: "round", Fn: builtinRound},
		{Name: "sorted", Fn: builtinSorted},
		{Name: "reversed", Fn: builtinReversed},
		{Name: "enumerate", Fn: builtinEnumerate},
		{Name: "zip", Fn: builtinZip},
		{Name: "map", Fn: builtinMap},
		{Name: "filter", Fn: builtinFilter},
		{Name: "any", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return truthTest(t, "any", args, true)
		}},
		{Name: "all", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return truthTest(t, "all", args, false)
		}},
		{Name: "isinstance", Fn: builtinIsInstance},
		{Name: "type", Fn: builtinType},
		{Name: "hasattr", Fn: builtinHasAttr},
		{Name: "getattr", Fn: builtinGetAttr},
		{Name: "setattr", Fn: builtinSetAttr},
		{Name: "divmod", Fn: builtinDivmod},
		{Name: "pow", Fn: builtinPow},
		{Name: "chr", Fn: builtinChr},
		{Name: "ord", Fn: builtinOrd},
		{Name: "all_of", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return flattenedTruth(t, args, false)
		}},
		{Name: "any_of", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return flattenedTruth(t, args, true)
		}},
		{Name: "iserror", Fn: builtinIsError},
		{Name: "_raise", Fn: builtinRaise},
	} {
		builtins[b.Name] = b
	}
}

func builtinPrint(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	sep, end := " ", "\n"
	for k, v := range kwargs {
		switch k {
		case "sep":
			if v != nil {
				sep = Str(v)
			}
		case "end":
			if v != nil {
				end = Str(v)
			}
		default:
			return nil, newException(TypeError, "'%s' is an invalid keyword argument for print()", k)
		}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Str(a)
	}
	t.env.write(strings.Join(parts, sep) + end)
	return nil, nil
}

func builtinLen(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("len", args, 1, 1); err != nil {
		return nil, err
	}
	return length(args[0])
}

func builtinStr(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("str", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return "", nil
	}
	return Str(args[0]), nil
}

func builtinRepr(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("repr", args, 1, 1); err != nil {
		return nil, err
	}
	return Repr(args[0]), nil
}

func builtinInt(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("int", args, 0, 2); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return int64(0), nil
	}
	if len(args) == 2 {
		s, err := strArg("int", args[0])
		if err != nil {
			return nil, newException(TypeError, "int() can't convert non-string with explicit base")
		}
		base, err := intArg("int", args[1])
		if err != nil {
			return nil, err
		}
		n, perr := strconv.ParseInt(strings.TrimSpace(s), int(base), 64)
		if perr != nil {
			return nil, newException(ValueError, "invalid literal for int() with base %d: %s", base, grid.QuoteString(s))
		}
		return n, nil
	}

	switch x := args[0].(type) {
	case bool, int64, int:
		i, _ := toInt(x)
		return i, nil
	case float64:
		return floatToInt(x)
	case string:
		trimmed := strings.ReplaceAll(strings.TrimSpace(x), "_", "")
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				f, _ := strconv.ParseFloat(trimmed, 64)
				return f, nil
			}
			return nil, newException(ValueError, "invalid literal for int() with base 10: %s", grid.QuoteString(x))
		}
		return n, nil
	}
	return nil, newException(TypeError, "int() argument must be a string or a number, not '%s'", typeName(args[0]))
}

func floatToInt(f float64) (Value, error) {
	switch {
	case math.IsNaN(f):
		return nil, newException(ValueError, "cannot convert float NaN to integer")
	case math.IsInf(f, 0):
		return nil, newException(OverflowError, "cannot convert float infinity to integer")
	}
	tr := math.Trunc(f)
	if tr >= -9.223372036854775808e18 && tr < 9.223372036854775808e18 {
		return int64(tr), nil
	}
	return tr, nil
}

func builtinFloat(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return 0.0, nil
	}
	if f, ok := toFloat(args[0]); ok {
		return f, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, newException(TypeError, "float() argument must be a string or a number, not '%s'", typeName(args[0]))
	}
	trimmed := strings.ToLower(strings.TrimSpace(s))
	switch strings.TrimLeft(trimmed, "+-") {
	case "inf", "infinity", "nan":
	default:
		if strings.ContainsAny(trimmed, "xp_") {
			return nil, newException(ValueError, "could not convert string to float: %s", grid.QuoteString(s))
		}
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f, nil
		}
		return nil, newException(ValueError, "could not convert string to float: %s", grid.QuoteString(s))
	}
	return f, nil
}

func builtinRange(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("range", args, 1, 3); err != nil {
		return nil, err
	}
	ints := make([]int64, len(args))
	for i, a := range args {
		n, ok := toInt(a)
		if !ok {
			return nil, newException(TypeError, "'%s' object cannot be interpreted as an integer", typeName(a))
		}
		ints[i] = n
	}
	r := &Range{Step: 1}
	switch len(ints) {
	case 1:
		r.Stop = ints[0]
	case 2:
		r.Start, r.Stop = ints[0], ints[1]
	case 3:
		r.Start, r.Stop, r.Step = ints[0], ints[1], ints[2]
		if r.Step == 0 {
			return nil, newException(ValueError, "range() arg 3 must not be zero")
		}
	}
	return r, nil
}

// containsUndefined reports whether any item is Undefined
func containsUndefined(items []Value) bool {
	for _, item := range items {
		if isUndefined(item) {
			return true
		}
	}
	return false
}

func builtinSum(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("sum", args, 1, 2); err != nil {
		return nil, err
	}
	items, err := iterate(t, args[0])
	if err != nil {
		return nil, err
	}
	var total Value = int64(0)
	if len(args) == 2 {
		if _, ok := args[1].(string); ok {
			return nil, newException(TypeError, "sum() can't sum strings [use ''.join(seq) instead]")
		}
		total = args[1]
	}
	if containsUndefined(items) {
		return Undefined, nil
	}
	for _, item := range items {
		if total, err = binaryOp("+", total, item); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// extreme implements min (sign -1) and max (sign 1)
func extreme(t *Thread, name string, args []Value, kwargs map[string]Value, sign int) (Value, error) {
	var key, def Value
	hasDefault := false
	for k, v := range kwargs {
		switch k {
		case "key":
			key = v
		case "default":
			def, hasDefault = v, true
		default:
			return nil, newException(TypeError, "'%s' is an invalid keyword argument for %s()", k, name)
		}
	}
	if len(args) == 0 {
		return nil, newException(TypeError, "%s expected at least 1 argument, got 0", name)
	}
	items := args
	if len(args) == 1 {
		var err error
		if items, err = iterate(t, args[0]); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		if hasDefault {
			return def, nil
		}
		return nil, newException(ValueError, "%s() arg is an empty sequence", name)
	}
	if containsUndefined(items) {
		return Undefined, nil
	}

	op := "<"
	if sign > 0 {
		op = ">"
	}
	best := items[0]
	bestKey := best
	if key != nil {
		var err error
		if bestKey, err = t.Call(key, []Value{best}, nil); err != nil {
			return nil, err
		}
	}
	for _, item := range items[1:] {
		k := item
		if key != nil {
			var err error
			if k, err = t.Call(key, []Value{item}, nil); err != nil {
				return nil, err
			}
		}
		c, err := compareOrder(op, k, bestKey)
		if err != nil {
			return nil, err
		}
		if c == sign {
			best, bestKey = item, k
		}
	}
	return best, nil
}

func builtinAbs(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("abs", args, 1, 1); err != nil {
		return nil, err
	}
	if isUndefined(args[0]) {
		return Undefined, nil
	}
	i, f, isFloat, ok := number(args[0])
	switch {
	case !ok:
		return nil, newException(TypeError, "bad operand type for abs(): '%s'", typeName(args[0]))
	case isFloat:
		return math.Abs(f), nil
	case i == math.MinInt64:
		return -float64(i), nil
	case i < 0:
		return -i, nil
	}
	return i, nil
}

func builtinRound(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("round", args, 1, 2); err != nil {
		return nil, err
	}
	if isUndefined(args[0]) {
		return Undefined, nil
	}
	i, f, isFloat, ok := number(args[0])
	if !ok {
		return nil, newException(TypeError, "type %s doesn't define __round__ method", typeName(args[0]))
	}
	if len(args) == 1 || args[1] == nil {
		if !isFloat {
			return i, nil
		}
		return floatToInt(math.RoundToEven(f))
	}
	digits, err := intArg("round", args[1])
	if err != nil {
		return nil, err
	}
	if !isFloat {
		if digits >= 0 {
			return i, nil
		}
		scale := math.Pow(10, float64(-digits))
		return int64(math.RoundToEven(float64(i)/scale) * scale), nil
	}
	scale := math.Pow(10, float64(digits))
	rounded := math.RoundToEven(f*scale) / scale
	if math.IsInf(rounded, 0) || math.IsNaN(rounded) {
		return f, nil
	}
	// go through the shortest decimal form to avoid 2.675 -> 2.67999...
	parsed, perr := strconv.ParseFloat(strconv.FormatFloat(rounded, 'f', max(int(digits), 0), 64), 64)
	if perr != nil {
		return rounded, nil
	}
	return parsed, nil
}

func builtinSorted(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("sorted", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(t, args[0])
	if err != nil {
		return nil, err
	}
	sorted, err := sortedValues(t, items, kwargs)
	if err != nil {
		return nil, err
	}
	return NewList(sorted...), nil
}

func builtinReversed(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("reversed", args, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(t, args[0])
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return NewList(out...), nil
}

func builtinEnumerate(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("enumerate", args, 1, 2); err != nil {
		return nil, err
	}
	start := int64(0)
	if len(args) == 2 {
		var err error
		if start, err = intArg("enumerate", args[1]); err != nil {
			return nil, err
		}
	}
	if v, ok := kwargs["start"]; ok {
		var err error
		if start, err = intArg("enumerate", v); err != nil {
			return nil, err
		}
	}
	items, err := iterate(t, args[0])
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = Tuple{start + int64(i), item}
	}
	return NewList(out...), nil
}

func builtinZip(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if len(args) == 0 {
		return NewList(), nil
	}
	seqs := make([][]Value, len(args))
	shortest := -1
	for i, a := range args {
		items, err := iterate(t, a)
		if err != nil {
			return nil, err
		}
		seqs[i] = items
		if shortest < 0 || len(items) < shortest {
			shortest = len(items)
		}
	}
	out := make([]Value, shortest)
	for i := range shortest {
		row := make(Tuple, len(seqs))
		for j := range seqs {
			row[j] = seqs[j][i]
		}
		out[i] = row
	}
	return NewList(out...), nil
}

func builtinMap(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("map", args, 2, -1); err != nil {
		return nil, err
	}
	zipped, err := builtinZip(t, args[1:], nil)
	if err != nil {
		return nil, err
	}
	rows := zipped.(*List).Items
	out := make([]Value, len(rows))
	for i, row := range rows {
		if out[i], err = t.Call(args[0], row.(Tuple), nil); err != nil {
			return nil, err
		}
	}
	return NewList(out...), nil
}

func builtinFilter(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("filter", args, 2, 2); err != nil {
		return nil, err
	}
	items, err := iterate(t, args[1])
	if err != nil {
		return nil, err
	}
	var out []Value
	for _, item := range items {
		keep := item
		if args[0] != nil {
			if keep, err = t.Call(args[0], []Value{item}, nil); err != nil {
				return nil, err
			}
		}
		if Truthy(keep) {
			out = append(out, item)
		}
	}
	return NewList(out...), nil
}

// truthTest implements any (want true) and all (want false)
func truthTest(t *Thread, name string, args []Value, want bool) (Value, error) {
	if err := checkArgs(name, args, 1, 1); err != nil {
		return nil, err
	}
	result := !want
	err := forEach(t, args[0], func(item Value) error {
		if Truthy(item) == want {
			result = want
			return errStopIteration
		}
		return nil
	})
	if err != nil && err != errStopIteration {
		return nil, err
	}
	return result, nil
}

// flatten expands ranges, lists and tuples into their leaf values
func flatten(t *Thread, args []Value) ([]Value, error) {
	var out []Value
	for _, a := range args {
		switch a.(type) {
		case *grid.CellRange, *List, Tuple:
			items, err := iterate(t, a)
			if err != nil {
				return nil, err
			}
			nested, err := flatten(t, items)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		default:
			out = append(out, a)
		}
	}
	return out, nil
}

// flattenedTruth implements all_of (want false) and any_of (want true)
func flattenedTruth(t *Thread, args []Value, want bool) (Value, error) {
	items, err := flatten(t, args)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if Truthy(item) == want {
			return want, nil
		}
	}
	return !want, nil
}

// typeOf returns the type object of a value
func typeOf(v Value) Value {
	switch x := v.(type) {
	case *Exception:
		return x.Class
	case string:
		return strType
	case bool:
		return boolType
	case int64, int:
		return intType
	case float64:
		return floatType
	case *List:
		return listType
	case Tuple:
		return tupleType
	case *Dict:
		return dictType
	case *Range:
		return rangeType
	case *DateTime:
		return dateTimeType
	case *grid.CellRange:
		return cellRangeType
	}
	name := typeName(v)
	return &Type{Name: name, Match: func(o Value) bool { return typeName(o) == name }}
}

func builtinType(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("type", args, 1, 1); err != nil {
		return nil, err
	}
	return typeOf(args[0]), nil
}

func isInstance(v, typ Value) (bool, error) {
	switch x := typ.(type) {
	case *Type:
		return x.Match(v), nil
	case *Class:
		exc, ok := v.(*Exception)
		return ok && exc.Class.IsSubclass(x), nil
	case Tuple:
		for _, item := range x {
			ok, err := isInstance(v, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, newException(TypeError, "isinstance() arg 2 must be a type or tuple of types")
}

func builtinIsInstance(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("isinstance", args, 2, 2); err != nil {
		return nil, err
	}
	return isInstance(args[0], args[1])
}

func builtinHasAttr(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("hasattr", args, 2, 2); err != nil {
		return nil, err
	}
	name, err := strArg("hasattr", args[1])
	if err != nil {
		return nil, err
	}
	return hasAttr(t, args[0], name), nil
}

func builtinGetAttr(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("getattr", args, 2, 3); err != nil {
		return nil, err
	}
	name, err := strArg("getattr", args[1])
	if err != nil {
		return nil, err
	}
	v, err := getAttr(t, args[0], name)
	if err != nil && len(args) == 3 {
		if exc, ok := err.(*Exception); ok && exc.Class.IsSubclass(AttributeError) {
			return args[2], nil
		}
	}
	return v, err
}

func builtinSetAttr(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("setattr", args, 3, 3); err != nil {
		return nil, err
	}
	name, err := strArg("setattr", args[1])
	if err != nil {
		return nil, err
	}
	return nil, setAttr(args[0], name, args[2])
}

func builtinDivmod(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("divmod", args, 2, 2); err != nil {
		return nil, err
	}
	q, err := binaryOp("//", args[0], args[1])
	if err != nil {
		return nil, err
	}
	r, err := binaryOp("%", args[0], args[1])
	if err != nil {
		return nil, err
	}
	return Tuple{q, r}, nil
}

func builtinPow(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("pow", args, 2, 3); err != nil {
		return nil, err
	}
	if len(args) == 2 {
		return binaryOp("**", args[0], args[1])
	}
	base, okA := toInt(args[0])
	exp, okB := toInt(args[1])
	mod, okC := toInt(args[2])
	if !okA || !okB || !okC {
		return nil, newException(TypeError, "pow() 3rd argument not allowed unless all arguments are integers")
	}
	if mod == 0 {
		return nil, newException(ValueError, "pow() 3rd argument cannot be 0")
	}
	if exp < 0 {
		return nil, newException(ValueError, "pow() 2nd argument cannot be negative when 3rd argument specified")
	}
	result := int64(1) % mod
	base %= mod
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, base, mod)
		}
		base = mulMod(base, base, mod)
		exp >>= 1
	}
	if result != 0 && (result < 0) != (mod < 0) {
		result += mod
	}
	return result, nil
}

func mulMod(a, b, m int64) int64 {
	if p, ok := mulChecked(a, b); ok {
		return p % m
	}
	return int64(math.Mod(float64(a)*float64(b), float64(m)))
}

func builtinChr(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("chr", args, 1, 1); err != nil {
		return nil, err
	}
	n, err := intArg("chr", args[0])
	if err != nil {
		return nil, err
	}
	if n < 0 || n > utf8.MaxRune {
		return nil, newException(ValueError, "chr() arg not in range(0x110000)")
	}
	return string(rune(n)), nil
}

func builtinOrd(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("ord", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := strArg("ord", args[0])
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(s) != 1 {
		return nil, newException(TypeError, "ord() expected a character, but string of length %d found", utf8.RuneCountInString(s))
	}
	r, _ := utf8.DecodeRuneInString(s)
	return int64(r), nil
}

// builtinIsError calls its argument and reports whether that raised or
// produced Undefined
func builtinIsError(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("iserror", args, 1, 1); err != nil {
		return nil, err
	}
	v := args[0]
	switch v.(type) {
	case *Function, *Builtin:
		result, err := t.Call(v, nil, nil)
		if err != nil {
			if cerr := t.check(); cerr != nil {
				return nil, cerr
			}
			if _, ok := err.(*Exception); ok {
				return true, nil
			}
			return nil, err
		}
		v = result
	}
	_, isExc := v.(*Exception)
	return isExc || isUndefined(v), nil
}

func builtinRaise(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
	if err := checkArgs("_raise", args, 1, 1); err != nil {
		return nil, err
	}
	exc, err := toException(args[0])
	if err != nil {
		return nil, err
	}
	exc.resetTraceback()
	return nil, exc
}
