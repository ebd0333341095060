package script

import (
	"strings"
	"unicode"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

func noAttribute(v Value, name string) error {
	return newException(AttributeError, "'%s' object has no attribute '%s'", typeName(v), name)
}

// getAttr implements obj.name
func getAttr(t *Thread, v Value, name string) (Value, error) {
	var result Value
	found := false
	switch x := v.(type) {
	case *grid.Worksheet:
		result, found = worksheetAttr(x, name)
	case *grid.Cell:
		result, found = cellAttr(x, name)
	case *grid.CellRange:
		result, found = cellRangeAttr(x, name)
	case *DateTime:
		result, found = dateTimeAttr(x, name)
	case *List:
		result, found = listMethod(x, name)
	case *Dict:
		result, found = dictMethod(x, name)
	case string:
		result, found = stringMethod(x, name)
	case *Module:
		result, found = x.Attrs[name]
		if !found {
			return nil, newException(AttributeError, "module '%s' has no attribute '%s'", x.Name, name)
		}
	case *Exception:
		switch name {
		case "args":
			result, found = Tuple(x.Args), true
		case "message":
			result, found = x.Message(), true
		}
	case *Class:
		if name == "__name__" {
			result, found = x.Name, true
		}
	case *Type:
		if name == "__name__" {
			result, found = x.Name, true
		}
	case *Function:
		if name == "__name__" {
			result, found = x.Name, true
		}
	}
	if !found {
		return nil, noAttribute(v, name)
	}
	return result, nil
}

// setAttr implements obj.name = value
func setAttr(v Value, name string, value Value) error {
	switch x := v.(type) {
	case *grid.Cell:
		return setCellAttr(x, name, value)
	case *grid.Worksheet:
		if name == "name" {
			s, ok := value.(string)
			if !ok {
				return newException(TypeError, "worksheet names must be strings")
			}
			x.Name = s
			return nil
		}
		if loc, ok := grid.CellNameToCoordinates(name); ok {
			return setItem(x, locationTuple(loc), value)
		}
	}
	if _, err := getAttr(nil, v, name); err != nil {
		return err
	}
	return newException(AttributeError, "'%s' object attribute '%s' is read-only", typeName(v), name)
}

// hasAttr implements hasattr()
func hasAttr(t *Thread, v Value, name string) bool {
	_, err := getAttr(t, v, name)
	return err == nil
}

func listMethod(l *List, name string) (Value, bool) {
	var fn func(t *Thread, args []Value, kwargs map[string]Value) (Value, error)
	switch name {
	case "append":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("append", args, 1, 1); err != nil {
				return nil, err
			}
			l.Items = append(l.Items, args[0])
			return nil, nil
		}
	case "extend":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("extend", args, 1, 1); err != nil {
				return nil, err
			}
			items, err := iterate(t, args[0])
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, items...)
			return nil, nil
		}
	case "insert":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("insert", args, 2, 2); err != nil {
				return nil, err
			}
			i, err := intArg("insert", args[0])
			if err != nil {
				return nil, err
			}
			n := int64(len(l.Items))
			if i < 0 {
				i = max(i+n, 0)
			}
			i = min(i, n)
			l.Items = append(l.Items[:i], append([]Value{args[1]}, l.Items[i:]...)...)
			return nil, nil
		}
	case "pop":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("pop", args, 0, 1); err != nil {
				return nil, err
			}
			if len(l.Items) == 0 {
				return nil, newException(IndexError, "pop from empty list")
			}
			var index Value = int64(-1)
			if len(args) == 1 {
				index = args[0]
			}
			i, err := sequenceIndex(index, len(l.Items), "pop")
			if err != nil {
				return nil, err
			}
			v := l.Items[i]
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return v, nil
		}
	case "remove":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("remove", args, 1, 1); err != nil {
				return nil, err
			}
			for i, item := range l.Items {
				if equals(item, args[0]) {
					l.Items = append(l.Items[:i], l.Items[i+1:]...)
					return nil, nil
				}
			}
			return nil, newException(ValueError, "list.remove(x): x not in list")
		}
	case "index":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("index", args, 1, 1); err != nil {
				return nil, err
			}
			for i, item := range l.Items {
				if equals(item, args[0]) {
					return int64(i), nil
				}
			}
			return nil, newException(ValueError, "%s is not in list", Repr(args[0]))
		}
	case "count":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("count", args, 1, 1); err != nil {
				return nil, err
			}
			n := int64(0)
			for _, item := range l.Items {
				if equals(item, args[0]) {
					n++
				}
			}
			return n, nil
		}
	case "reverse":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			for i, j := 0, len(l.Items)-1; i < j; i, j = i+1, j-1 {
				l.Items[i], l.Items[j] = l.Items[j], l.Items[i]
			}
			return nil, nil
		}
	case "sort":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("sort", args, 0, 0); err != nil {
				return nil, err
			}
			sorted, err := sortedValues(t, l.Items, kwargs)
			if err != nil {
				return nil, err
			}
			l.Items = sorted
			return nil, nil
		}
	default:
		return nil, false
	}
	return method(l, name, fn), true
}

// sortedValues sorts a copy of items honouring key= and reverse=
func sortedValues(t *Thread, items []Value, kwargs map[string]Value) ([]Value, error) {
	var key Value
	reverse := false
	for k, v := range kwargs {
		switch k {
		case "key":
			key = v
		case "reverse":
			reverse = Truthy(v)
		default:
			return nil, newException(TypeError, "'%s' is an invalid keyword argument for sort()", k)
		}
	}

	type pair struct{ key, value Value }
	pairs := make([]Value, len(items))
	for i, item := range items {
		k := item
		if key != nil {
			var err error
			if k, err = t.Call(key, []Value{item}, nil); err != nil {
				return nil, err
			}
		}
		pairs[i] = pair{k, item}
	}
	err := sortValues(pairs, func(a, b Value) (bool, error) {
		ka, kb := a.(pair).key, b.(pair).key
		if reverse {
			ka, kb = kb, ka
		}
		c, err := compareOrder("<", ka, kb)
		return c < 0, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(pairs))
	for i, p := range pairs {
		out[i] = p.(pair).value
	}
	return out, nil
}

func dictMethod(d *Dict, name string) (Value, bool) {
	var fn func(t *Thread, args []Value, kwargs map[string]Value) (Value, error)
	switch name {
	case "keys":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return NewList(d.Keys()...), nil
		}
	case "values":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			_, vals := d.Items()
			return NewList(vals...), nil
		}
	case "items":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			keys, vals := d.Items()
			items := make([]Value, len(keys))
			for i := range keys {
				items[i] = Tuple{keys[i], vals[i]}
			}
			return NewList(items...), nil
		}
	case "get":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("get", args, 1, 2); err != nil {
				return nil, err
			}
			v, found, err := d.Get(args[0])
			if err != nil {
				return nil, err
			}
			if !found {
				if len(args) == 2 {
					return args[1], nil
				}
				return nil, nil
			}
			return v, nil
		}
	case "pop":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("pop", args, 1, 2); err != nil {
				return nil, err
			}
			v, found, err := d.Get(args[0])
			if err != nil {
				return nil, err
			}
			if !found {
				if len(args) == 2 {
					return args[1], nil
				}
				return nil, &Exception{Class: KeyError, Args: []Value{args[0]}}
			}
			_, err = d.Delete(args[0])
			return v, err
		}
	case "setdefault":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("setdefault", args, 1, 2); err != nil {
				return nil, err
			}
			v, found, err := d.Get(args[0])
			if err != nil || found {
				return v, err
			}
			var def Value
			if len(args) == 2 {
				def = args[1]
			}
			return def, d.Set(args[0], def)
		}
	case "update":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("update", args, 0, 1); err != nil {
				return nil, err
			}
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
			return nil, nil
		}
	default:
		return nil, false
	}
	return method(d, name, fn), true
}

// dictUpdate merges a mapping or a sequence of pairs into d
func dictUpdate(t *Thread, d *Dict, src Value) error {
	if other, ok := src.(*Dict); ok {
		keys, vals := other.Items()
		for i := range keys {
			if err := d.Set(keys[i], vals[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return forEach(t, src, func(item Value) error {
		pair, err := iterate(t, item)
		if err != nil {
			return err
		}
		if len(pair) != 2 {
			return newException(ValueError, "dictionary update sequence element has length %d; 2 is required", len(pair))
		}
		return d.Set(pair[0], pair[1])
	})
}

func stringMethod(s string, name string) (Value, bool) {
	var fn func(t *Thread, args []Value, kwargs map[string]Value) (Value, error)
	simple := func(f func(string) Value) func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		return func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 0, 0); err != nil {
				return nil, err
			}
			return f(s), nil
		}
	}
	withString := func(f func(string, string) Value) func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		return func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 1, 1); err != nil {
				return nil, err
			}
			arg, err := strArg(name, args[0])
			if err != nil {
				return nil, err
			}
			return f(s, arg), nil
		}
	}
	optionalCutset := func(f func(string, string) string, fallback func(string) string) func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		return func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 0, 1); err != nil {
				return nil, err
			}
			if len(args) == 0 || args[0] == nil {
				return fallback(s), nil
			}
			cutset, err := strArg(name, args[0])
			if err != nil {
				return nil, err
			}
			return f(s, cutset), nil
		}
	}

	switch name {
	case "upper":
		fn = simple(func(s string) Value { return strings.ToUpper(s) })
	case "lower":
		fn = simple(func(s string) Value { return strings.ToLower(s) })
	case "title":
		fn = simple(func(s string) Value { return titleCase(s) })
	case "capitalize":
		fn = simple(func(s string) Value {
			if s == "" {
				return s
			}
			r := []rune(strings.ToLower(s))
			r[0] = unicode.ToUpper(r[0])
			return string(r)
		})
	case "isdigit":
		fn = simple(func(s string) Value {
			if s == "" {
				return false
			}
			for _, r := range s {
				if !unicode.IsDigit(r) {
					return false
				}
			}
			return true
		})
	case "strip":
		fn = optionalCutset(strings.Trim, strings.TrimSpace)
	case "lstrip":
		fn = optionalCutset(strings.TrimLeft, func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) })
	case "rstrip":
		fn = optionalCutset(strings.TrimRight, func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) })
	case "startswith":
		fn = withString(func(s, p string) Value { return strings.HasPrefix(s, p) })
	case "endswith":
		fn = withString(func(s, p string) Value { return strings.HasSuffix(s, p) })
	case "find":
		fn = withString(func(s, p string) Value {
			i := strings.Index(s, p)
			if i < 0 {
				return int64(-1)
			}
			return int64(len([]rune(s[:i])))
		})
	case "count":
		fn = withString(func(s, p string) Value { return int64(strings.Count(s, p)) })
	case "zfill":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 1, 1); err != nil {
				return nil, err
			}
			width, err := intArg(name, args[0])
			if err != nil {
				return nil, err
			}
			body, sign := s, ""
			if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
				body, sign = s[1:], s[:1]
			}
			pad := int(width) - len([]rune(s))
			if pad <= 0 {
				return s, nil
			}
			return sign + strings.Repeat("0", pad) + body, nil
		}
	case "replace":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 2, 3); err != nil {
				return nil, err
			}
			old, err := strArg(name, args[0])
			if err != nil {
				return nil, err
			}
			repl, err := strArg(name, args[1])
			if err != nil {
				return nil, err
			}
			n := int64(-1)
			if len(args) == 3 {
				if n, err = intArg(name, args[2]); err != nil {
					return nil, err
				}
			}
			return strings.Replace(s, old, repl, int(n)), nil
		}
	case "split":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 0, 2); err != nil {
				return nil, err
			}
			var parts []string
			if len(args) == 0 || args[0] == nil {
				parts = strings.Fields(s)
			} else {
				sep, err := strArg(name, args[0])
				if err != nil {
					return nil, err
				}
				if sep == "" {
					return nil, newException(ValueError, "empty separator")
				}
				n := -1
				if len(args) == 2 {
					limit, err := intArg(name, args[1])
					if err != nil {
						return nil, err
					}
					if limit >= 0 {
						n = int(limit) + 1
					}
				}
				parts = strings.SplitN(s, sep, n)
			}
			items := make([]Value, len(parts))
			for i, p := range parts {
				items[i] = p
			}
			return NewList(items...), nil
		}
	case "join":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 1, 1); err != nil {
				return nil, err
			}
			items, err := iterate(t, args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				str, ok := item.(string)
				if !ok {
					return nil, newException(TypeError, "sequence item %d: expected str instance, %s found", i, typeName(item))
				}
				parts[i] = str
			}
			return strings.Join(parts, s), nil
		}
	case "format":
		fn = func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			return formatBraces(s, args, kwargs)
		}
	default:
		return nil, false
	}
	return method(s, name, fn), true
}

func titleCase(s string) string {
	var sb strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// formatBraces implements the positional and named fields of str.format
// without format specs beyond conversion to str
func formatBraces(format string, args []Value, kwargs map[string]Value) (Value, error) {
	var sb strings.Builder
	auto := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch {
		case c == '{' && i+1 < len(format) && format[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(format) && format[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return nil, newException(ValueError, "Single '{' encountered in format string")
			}
			field := format[i+1 : i+end]
			conversion := ""
			if j := strings.IndexByte(field, '!'); j >= 0 {
				field, conversion = field[:j], field[j+1:]
			}
			if j := strings.IndexByte(field, ':'); j >= 0 {
				field = field[:j]
			}
			var v Value
			switch {
			case field == "":
				if auto >= len(args) {
					return nil, newException(IndexError, "Replacement index %d out of range for positional args tuple", auto)
				}
				v = args[auto]
				auto++
			case field[0] >= '0' && field[0] <= '9':
				idx := 0
				for _, d := range field {
					if d < '0' || d > '9' {
						return nil, newException(ValueError, "invalid format field '%s'", field)
					}
					idx = idx*10 + int(d-'0')
				}
				if idx >= len(args) {
					return nil, newException(IndexError, "Replacement index %d out of range for positional args tuple", idx)
				}
				v = args[idx]
			default:
				var ok bool
				if v, ok = kwargs[field]; !ok {
					return nil, &Exception{Class: KeyError, Args: []Value{field}}
				}
			}
			if conversion == "r" {
				sb.WriteString(Repr(v))
			} else {
				sb.WriteString(Str(v))
			}
			i += end
		case c == '}':
			return nil, newException(ValueError, "Single '}' encountered in format string")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}
