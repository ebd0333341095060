package script

func (n *ConstExpr) Eval(f *frame) (Value, error) {
	return n.Value, nil
}

func (n *NameExpr) Eval(f *frame) (Value, error) {
	return f.lookup(n.Name)
}

func evalAll(f *frame, exprs []Expr) ([]Value, error) {
	values := make([]Value, len(exprs))
	for i, e := range exprs {
		v, err := e.Eval(f)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (n *TupleExpr) Eval(f *frame) (Value, error) {
	values, err := evalAll(f, n.Elts)
	if err != nil {
		return nil, err
	}
	return Tuple(values), nil
}

func (n *ListExpr) Eval(f *frame) (Value, error) {
	values, err := evalAll(f, n.Elts)
	if err != nil {
		return nil, err
	}
	return NewList(values...), nil
}

func (n *DictExpr) Eval(f *frame) (Value, error) {
	d := NewDict()
	for i := range n.Keys {
		k, err := n.Keys[i].Eval(f)
		if err != nil {
			return nil, err
		}
		v, err := n.Values[i].Eval(f)
		if err != nil {
			return nil, err
		}
		if err := d.Set(k, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (n *BinaryExpr) Eval(f *frame) (Value, error) {
	left, err := n.Left.Eval(f)
	if err != nil {
		return nil, err
	}
	right, err := n.Right.Eval(f)
	if err != nil {
		return nil, err
	}
	return binaryOp(n.Op, left, right)
}

func (n *UnaryExpr) Eval(f *frame) (Value, error) {
	v, err := n.Operand.Eval(f)
	if err != nil {
		return nil, err
	}
	return unaryOp(n.Op, v)
}

func (n *BoolExpr) Eval(f *frame) (Value, error) {
	left, err := n.Left.Eval(f)
	if err != nil {
		return nil, err
	}
	if Truthy(left) != n.And {
		return left, nil
	}
	return n.Right.Eval(f)
}

func (n *NotExpr) Eval(f *frame) (Value, error) {
	v, err := n.Operand.Eval(f)
	if err != nil {
		return nil, err
	}
	return !Truthy(v), nil
}

func (n *CompareExpr) Eval(f *frame) (Value, error) {
	left, err := n.Left.Eval(f)
	if err != nil {
		return nil, err
	}
	var result Value = true
	for i, op := range n.Ops {
		right, err := n.Rights[i].Eval(f)
		if err != nil {
			return nil, err
		}
		result, err = compare(f.t, op, left, right)
		if err != nil {
			return nil, err
		}
		if !Truthy(result) {
			return result, nil
		}
		left = right
	}
	return result, nil
}

func (n *CondExpr) Eval(f *frame) (Value, error) {
	cond, err := n.Cond.Eval(f)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return n.Then.Eval(f)
	}
	return n.Else.Eval(f)
}

// makeFunction evaluates defaults and captures the defining frame
func makeFunction(f *frame, name string, ps params) (*Function, error) {
	defaults, err := evalAll(f, ps.Defaults)
	if err != nil {
		return nil, err
	}
	fn := &Function{
		Name:     name,
		Params:   ps.Names,
		Defaults: defaults,
		VarArgs:  ps.VarArgs,
		KwArgs:   ps.KwArgs,
		globals:  f.globals,
	}
	if !f.isModule() {
		fn.closure = f
	}
	return fn, nil
}

func (n *LambdaExpr) Eval(f *frame) (Value, error) {
	fn, err := makeFunction(f, "<lambda>", n.Params)
	if err != nil {
		return nil, err
	}
	fn.Expr = n.Body
	return fn, nil
}

func (n *CallExpr) Eval(f *frame) (Value, error) {
	callee, err := n.Func.Eval(f)
	if err != nil {
		return nil, err
	}

	var args []Value
	var kwargs map[string]Value
	for _, a := range n.Args {
		v, err := a.Value.Eval(f)
		if err != nil {
			return nil, err
		}
		switch {
		case a.Star:
			items, err := iterate(f.t, v)
			if err != nil {
				return nil, err
			}
			args = append(args, items...)
		case a.DoubleStar:
			d, ok := v.(*Dict)
			if !ok {
				return nil, newException(TypeError, "argument after ** must be a mapping, not %s", typeName(v))
			}
			keys, vals := d.Items()
			for i, k := range keys {
				name, ok := k.(string)
				if !ok {
					return nil, newException(TypeError, "keywords must be strings")
				}
				if kwargs == nil {
					kwargs = make(map[string]Value)
				}
				kwargs[name] = vals[i]
			}
		case a.Name != "":
			if kwargs == nil {
				kwargs = make(map[string]Value)
			}
			if _, dup := kwargs[a.Name]; dup {
				return nil, newException(SyntaxError, "keyword argument repeated")
			}
			kwargs[a.Name] = v
		default:
			args = append(args, v)
		}
	}
	return f.t.Call(callee, args, kwargs)
}

func (n *AttrExpr) Eval(f *frame) (Value, error) {
	v, err := n.Value.Eval(f)
	if err != nil {
		return nil, err
	}
	return getAttr(f.t, v, n.Name)
}

func (n *IndexExpr) Eval(f *frame) (Value, error) {
	container, err := n.Value.Eval(f)
	if err != nil {
		return nil, err
	}
	index, err := n.Index.Eval(f)
	if err != nil {
		return nil, err
	}
	return getItem(container, index)
}

func (n *SliceExpr) Eval(f *frame) (Value, error) {
	var s sliceValue
	var err error
	if n.Lower != nil {
		if s.lower, err = n.Lower.Eval(f); err != nil {
			return nil, err
		}
	}
	if n.Upper != nil {
		if s.upper, err = n.Upper.Eval(f); err != nil {
			return nil, err
		}
	}
	if n.Step != nil {
		if s.step, err = n.Step.Eval(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (n *CompExpr) Eval(f *frame) (Value, error) {
	inner := f.child()
	var items []Value
	var dict *Dict
	if n.Kind == compDict {
		dict = NewDict()
	}

	emit := func() error {
		v, err := n.Elt.Eval(inner)
		if err != nil {
			return err
		}
		if dict != nil {
			k, err := n.Key.Eval(inner)
			if err != nil {
				return err
			}
			return dict.Set(k, v)
		}
		items = append(items, v)
		return nil
	}

	var run func(level int) error
	run = func(level int) error {
		if level == len(n.Clauses) {
			return emit()
		}
		clause := n.Clauses[level]
		// the outermost iterable is evaluated in the enclosing frame
		scope := inner
		if level == 0 {
			scope = f
		}
		iter, err := clause.Iter.Eval(scope)
		if err != nil {
			return err
		}
		return forEach(f.t, iter, func(item Value) error {
			if err := clause.Target.assign(inner, item); err != nil {
				return err
			}
			for _, cond := range clause.Ifs {
				ok, err := cond.Eval(inner)
				if err != nil {
					return err
				}
				if !Truthy(ok) {
					return nil
				}
			}
			return run(level + 1)
		})
	}

	if err := run(0); err != nil {
		return nil, err
	}
	if dict != nil {
		return dict, nil
	}
	return NewList(items...), nil
}

// assignment targets

func (n *NameExpr) assign(f *frame, v Value) error {
	f.setName(n.Name, v)
	return nil
}

func (n *NameExpr) remove(f *frame) error {
	return f.deleteName(n.Name)
}

func (n *AttrExpr) assign(f *frame, v Value) error {
	obj, err := n.Value.Eval(f)
	if err != nil {
		return err
	}
	return setAttr(obj, n.Name, v)
}

func (n *AttrExpr) remove(f *frame) error {
	obj, err := n.Value.Eval(f)
	if err != nil {
		return err
	}
	return newException(AttributeError, "'%s' object attribute '%s' cannot be deleted", typeName(obj), n.Name)
}

func (n *IndexExpr) assign(f *frame, v Value) error {
	container, err := n.Value.Eval(f)
	if err != nil {
		return err
	}
	index, err := n.Index.Eval(f)
	if err != nil {
		return err
	}
	return setItem(container, index, v)
}

func (n *IndexExpr) remove(f *frame) error {
	container, err := n.Value.Eval(f)
	if err != nil {
		return err
	}
	index, err := n.Index.Eval(f)
	if err != nil {
		return err
	}
	return delItem(container, index)
}

// unpack assigns the elements of v to targets
func unpack(f *frame, elts []Expr, v Value) error {
	items, err := iterate(f.t, v)
	if err != nil {
		if exc, ok := err.(*Exception); ok && exc.Class == TypeError {
			return newException(TypeError, "cannot unpack non-iterable %s object", typeName(v))
		}
		return err
	}
	if len(items) > len(elts) {
		return newException(ValueError, "too many values to unpack (expected %d)", len(elts))
	}
	if len(items) < len(elts) {
		return newException(ValueError, "not enough values to unpack (expected %d, got %d)", len(elts), len(items))
	}
	for i, e := range elts {
		if err := e.(target).assign(f, items[i]); err != nil {
			return err
		}
	}
	return nil
}

func removeAll(f *frame, elts []Expr) error {
	for _, e := range elts {
		if err := e.(target).remove(f); err != nil {
			return err
		}
	}
	return nil
}

func (n *TupleExpr) assign(f *frame, v Value) error { return unpack(f, n.Elts, v) }
func (n *TupleExpr) remove(f *frame) error          { return removeAll(f, n.Elts) }
func (n *ListExpr) assign(f *frame, v Value) error  { return unpack(f, n.Elts, v) }
func (n *ListExpr) remove(f *frame) error           { return removeAll(f, n.Elts) }
