package script

import "fmt"

// Call invokes any callable value
func (t *Thread) Call(fn Value, args []Value, kwargs map[string]Value) (Value, error) {
	switch x := fn.(type) {
	case *Builtin:
		return x.Fn(t, args, kwargs)
	case *Type:
		return x.New(t, args, kwargs)
	case *Class:
		if len(kwargs) > 0 {
			return nil, newException(TypeError, "%s does not take keyword arguments", x.Name)
		}
		return &Exception{Class: x, Args: append([]Value(nil), args...)}, nil
	case *Function:
		return t.callFunction(x, args, kwargs)
	}
	return nil, newException(TypeError, "'%s' object is not callable", typeName(fn))
}

func (t *Thread) callFunction(fn *Function, args []Value, kwargs map[string]Value) (Value, error) {
	t.depth++
	defer func() { t.depth-- }()
	if t.depth > t.env.maxDepth() {
		return nil, newException(RecursionError, "maximum recursion depth exceeded")
	}
	if err := t.check(); err != nil {
		return nil, err
	}

	locals := NewScope()
	if err := bindArgs(fn, args, kwargs, locals); err != nil {
		return nil, err
	}
	f := &frame{
		t:        t,
		locals:   locals,
		globals:  fn.globals,
		closure:  fn.closure,
		function: fn.Name,
	}

	if fn.Expr != nil {
		f.line = fn.Expr.GetPosition().Line
		v, err := fn.Expr.Eval(f)
		if err != nil {
			return nil, f.unwind(err)
		}
		return v, nil
	}

	err := execBlock(f, fn.Body)
	switch e := err.(type) {
	case nil:
		return nil, nil
	case *returnSignal:
		return e.value, nil
	case controlSignal:
		return nil, outsideSignal(e, f.line)
	}
	return nil, err
}

func tooManyPositional(fn *Function, given int) error {
	expected := len(fn.Params)
	if len(fn.Defaults) > 0 {
		return newException(TypeError, "%s() takes from %d to %d positional arguments but %d were given",
			fn.Name, expected-len(fn.Defaults), expected, given)
	}
	plural := "s"
	if expected == 1 {
		plural = ""
	}
	verb := "were"
	if given == 1 {
		verb = "was"
	}
	return newException(TypeError, "%s() takes %d positional argument%s but %d %s given", fn.Name, expected, plural, given, verb)
}

// bindArgs maps call arguments onto parameters in a fresh local scope
func bindArgs(fn *Function, args []Value, kwargs map[string]Value, locals *Scope) error {
	n := len(fn.Params)
	bound := make(map[string]bool, n)

	var extra []Value
	for i, a := range args {
		if i < n {
			locals.Set(fn.Params[i], a)
			bound[fn.Params[i]] = true
			continue
		}
		if fn.VarArgs == "" {
			return tooManyPositional(fn, len(args))
		}
		extra = append(extra, a)
	}
	if fn.VarArgs != "" {
		locals.Set(fn.VarArgs, Tuple(extra))
	}

	var extraKw *Dict
	if fn.KwArgs != "" {
		extraKw = NewDict()
		locals.Set(fn.KwArgs, extraKw)
	}
	for name, v := range kwargs {
		isParam := false
		for _, p := range fn.Params {
			if p == name {
				isParam = true
				break
			}
		}
		switch {
		case isParam && bound[name]:
			return newException(TypeError, "%s() got multiple values for argument '%s'", fn.Name, name)
		case isParam:
			locals.Set(name, v)
			bound[name] = true
		case extraKw != nil:
			if err := extraKw.Set(name, v); err != nil {
				return err
			}
		default:
			return newException(TypeError, "%s() got an unexpected keyword argument '%s'", fn.Name, name)
		}
	}

	firstDefault := n - len(fn.Defaults)
	for i, p := range fn.Params {
		if bound[p] {
			continue
		}
		if i >= firstDefault {
			locals.Set(p, fn.Defaults[i-firstDefault])
			continue
		}
		return newException(TypeError, "%s() missing required argument '%s'", fn.Name, p)
	}
	return nil
}

// argument helpers for builtins

func checkArgs(name string, args []Value, lo, hi int) error {
	if len(args) >= lo && (hi < 0 || len(args) <= hi) {
		return nil
	}
	switch {
	case lo == hi:
		return newException(TypeError, "%s() takes exactly %d argument%s (%d given)", name, lo, plural(lo), len(args))
	case len(args) < lo:
		return newException(TypeError, "%s() takes at least %d argument%s (%d given)", name, lo, plural(lo), len(args))
	}
	return newException(TypeError, "%s() takes at most %d argument%s (%d given)", name, hi, plural(hi), len(args))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func noKwargs(name string, kwargs map[string]Value) error {
	for k := range kwargs {
		return newException(TypeError, "%s() got an unexpected keyword argument '%s'", name, k)
	}
	return nil
}

// intArg extracts an integer argument, accepting integral floats
func intArg(name string, v Value) (int64, error) {
	if i, ok := toInt(v); ok {
		return i, nil
	}
	return 0, newException(TypeError, "%s() argument must be an integer, not %s", name, typeName(v))
}

func strArg(name string, v Value) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", newException(TypeError, "%s() argument must be str, not %s", name, typeName(v))
}

// method builds a builtin bound to a receiver
func method(recv Value, name string, fn func(t *Thread, args []Value, kwargs map[string]Value) (Value, error)) *Builtin {
	return &Builtin{Name: fmt.Sprintf("%s.%s", typeName(recv), name), Fn: fn}
}
