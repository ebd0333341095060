package script

import (
	"math"
	"time"
)

// moduleLoaders build the importable modules. anything else raises
// ImportError, so usercode has no route to the filesystem or the OS.
var moduleLoaders = map[string]func(env *Env) *Module{
	"math":   mathModule,
	"time":   timeModule,
	"random": randomModule,
	"string": stringModule,
}

// floatFunc wraps a one-argument float function
func floatFunc(name string, fn func(float64) float64) *Builtin {
	return &Builtin{Name: name, Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		x, ok := toFloat(args[0])
		if !ok {
			return nil, newException(TypeError, "must be real number, not %s", typeName(args[0]))
		}
		r := fn(x)
		if math.IsNaN(r) && !math.IsNaN(x) {
			return nil, newException(ValueError, "math domain error")
		}
		return r, nil
	}}
}

func mathModule(env *Env) *Module {
	attrs := map[string]Value{
		"pi":  math.Pi,
		"e":   math.E,
		"inf": math.Inf(1),
		"nan": math.NaN(),
	}
	for name, fn := range map[string]func(float64) float64{
		"sqrt": func(x float64) float64 {
			if x < 0 {
				return math.NaN()
			}
			return math.Sqrt(x)
		},
		"exp":     math.Exp,
		"sin":     math.Sin,
		"cos":     math.Cos,
		"tan":     math.Tan,
		"asin":    math.Asin,
		"acos":    math.Acos,
		"atan":    math.Atan,
		"sinh":    math.Sinh,
		"cosh":    math.Cosh,
		"tanh":    math.Tanh,
		"fabs":    math.Abs,
		"degrees": func(x float64) float64 { return x * 180 / math.Pi },
		"radians": func(x float64) float64 { return x * math.Pi / 180 },
		"log10":   positiveOnly(math.Log10),
		"log2":    positiveOnly(math.Log2),
	} {
		attrs[name] = floatFunc(name, fn)
	}

	rounding := func(name string, fn func(float64) float64) *Builtin {
		return &Builtin{Name: name, Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 1, 1); err != nil {
				return nil, err
			}
			if i, ok := toInt(args[0]); ok {
				return i, nil
			}
			x, ok := toFloat(args[0])
			if !ok {
				return nil, newException(TypeError, "must be real number, not %s", typeName(args[0]))
			}
			return floatToInt(fn(x))
		}}
	}
	attrs["floor"] = rounding("floor", math.Floor)
	attrs["ceil"] = rounding("ceil", math.Ceil)
	attrs["trunc"] = rounding("trunc", math.Trunc)

	attrs["log"] = &Builtin{Name: "log", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("log", args, 1, 2); err != nil {
			return nil, err
		}
		x, ok := toFloat(args[0])
		if !ok || x <= 0 {
			return nil, newException(ValueError, "math domain error")
		}
		if len(args) == 1 {
			return math.Log(x), nil
		}
		base, ok := toFloat(args[1])
		if !ok || base <= 0 || base == 1 {
			return nil, newException(ValueError, "math domain error")
		}
		return math.Log(x) / math.Log(base), nil
	}}
	twoArgs := func(name string, fn func(a, b float64) float64) *Builtin {
		return &Builtin{Name: name, Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs(name, args, 2, 2); err != nil {
				return nil, err
			}
			a, okA := toFloat(args[0])
			b, okB := toFloat(args[1])
			if !okA || !okB {
				return nil, newException(TypeError, "must be real number")
			}
			r := fn(a, b)
			if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
				return nil, newException(ValueError, "math domain error")
			}
			return r, nil
		}}
	}
	attrs["pow"] = twoArgs("pow", math.Pow)
	attrs["atan2"] = twoArgs("atan2", math.Atan2)
	attrs["hypot"] = twoArgs("hypot", math.Hypot)
	attrs["fmod"] = twoArgs("fmod", math.Mod)
	attrs["isnan"] = &Builtin{Name: "isnan", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("isnan", args, 1, 1); err != nil {
			return nil, err
		}
		x, _ := toFloat(args[0])
		return math.IsNaN(x), nil
	}}
	attrs["isinf"] = &Builtin{Name: "isinf", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("isinf", args, 1, 1); err != nil {
			return nil, err
		}
		x, _ := toFloat(args[0])
		return math.IsInf(x, 0), nil
	}}
	attrs["factorial"] = &Builtin{Name: "factorial", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
		if err := checkArgs("factorial", args, 1, 1); err != nil {
			return nil, err
		}
		n, err := intArg("factorial", args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, newException(ValueError, "factorial() not defined for negative values")
		}
		var result Value = int64(1)
		for i := int64(2); i <= n; i++ {
			if result, err = binaryOp("*", result, i); err != nil {
				return nil, err
			}
		}
		return result, nil
	}}
	return &Module{Name: "math", Attrs: attrs}
}

func positiveOnly(fn func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		if x <= 0 {
			return math.NaN()
		}
		return fn(x)
	}
}

func timeModule(env *Env) *Module {
	return &Module{Name: "time", Attrs: map[string]Value{
		"time": &Builtin{Name: "time", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			now := t.env.Clock.Now()
			return float64(now.UnixNano()) / 1e9, nil
		}},
		"sleep": &Builtin{Name: "sleep", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("sleep", args, 1, 1); err != nil {
				return nil, err
			}
			secs, ok := toFloat(args[0])
			if !ok {
				return nil, newException(TypeError, "an integer is required (got type %s)", typeName(args[0]))
			}
			if secs < 0 {
				return nil, newException(ValueError, "sleep length must be non-negative")
			}
			timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil, nil
			case <-t.ctx.Done():
				return nil, t.check()
			}
		}},
	}}
}

func randomModule(env *Env) *Module {
	float := func(t *Thread) float64 { return t.env.Rand.Float64() }
	return &Module{Name: "random", Attrs: map[string]Value{
		"random": &Builtin{Name: "random", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("random", args, 0, 0); err != nil {
				return nil, err
			}
			return float(t), nil
		}},
		"uniform": &Builtin{Name: "uniform", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("uniform", args, 2, 2); err != nil {
				return nil, err
			}
			a, okA := toFloat(args[0])
			b, okB := toFloat(args[1])
			if !okA || !okB {
				return nil, newException(TypeError, "uniform() arguments must be numbers")
			}
			return a + (b-a)*float(t), nil
		}},
		"randint": &Builtin{Name: "randint", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("randint", args, 2, 2); err != nil {
				return nil, err
			}
			a, err := intArg("randint", args[0])
			if err != nil {
				return nil, err
			}
			b, err := intArg("randint", args[1])
			if err != nil {
				return nil, err
			}
			if b < a {
				return nil, newException(ValueError, "empty range for randrange() (%d, %d)", a, b+1)
			}
			return a + int64(float(t)*float64(b-a+1)), nil
		}},
		"choice": &Builtin{Name: "choice", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("choice", args, 1, 1); err != nil {
				return nil, err
			}
			items, err := iterate(t, args[0])
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, newException(IndexError, "Cannot choose from an empty sequence")
			}
			return items[int(float(t)*float64(len(items)))], nil
		}},
		"shuffle": &Builtin{Name: "shuffle", Fn: func(t *Thread, args []Value, kwargs map[string]Value) (Value, error) {
			if err := checkArgs("shuffle", args, 1, 1); err != nil {
				return nil, err
			}
			l, ok := args[0].(*List)
			if !ok {
				return nil, newException(TypeError, "shuffle() argument must be a list")
			}
			for i := len(l.Items) - 1; i > 0; i-- {
				j := int(float(t) * float64(i+1))
				l.Items[i], l.Items[j] = l.Items[j], l.Items[i]
			}
			return nil, nil
		}},
	}}
}

func stringModule(env *Env) *Module {
	const lower = "abcdefghijklmnopqrstuvwxyz"
	const upper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return &Module{Name: "string", Attrs: map[string]Value{
		"ascii_lowercase": lower,
		"ascii_uppercase": upper,
		"ascii_letters":   lower + upper,
		"digits":          "0123456789",
		"hexdigits":       "0123456789abcdefABCDEF",
		"octdigits":       "01234567",
		"punctuation":     "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~",
		"whitespace":      " \t\n\r\x0b\x0c",
	}}
}
