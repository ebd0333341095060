package script

import "strings"

func (n *ExprStmt) Exec(f *frame) error {
	_, err := n.X.Eval(f)
	return err
}

func (n *AssignStmt) Exec(f *frame) error {
	v, err := n.Value.Eval(f)
	if err != nil {
		return err
	}
	for _, t := range n.Targets {
		if err := t.assign(f, v); err != nil {
			return err
		}
	}
	return nil
}

func (n *AugAssignStmt) Exec(f *frame) error {
	current, err := n.Target.Eval(f)
	if err != nil {
		return err
	}
	operand, err := n.Value.Eval(f)
	if err != nil {
		return err
	}
	// lists grow in place
	if l, ok := current.(*List); ok && n.Op == "+" {
		items, err := iterate(f.t, operand)
		if err != nil {
			return err
		}
		l.Items = append(l.Items, items...)
		return nil
	}
	result, err := binaryOp(n.Op, current, operand)
	if err != nil {
		return err
	}
	return n.Target.assign(f, result)
}

func (n *IfStmt) Exec(f *frame) error {
	cond, err := n.Cond.Eval(f)
	if err != nil {
		return err
	}
	if Truthy(cond) {
		return execBlock(f, n.Body)
	}
	return execBlock(f, n.Else)
}

// loopBody runs one iteration, reporting whether the loop should stop
func loopBody(f *frame, body []Stmt) (stop bool, err error) {
	err = execBlock(f, body)
	switch err {
	case nil, errContinue:
		return false, nil
	case errBreak:
		return true, nil
	}
	return true, err
}

func (n *WhileStmt) Exec(f *frame) error {
	for {
		f.line = n.Position.Line
		if err := f.t.check(); err != nil {
			return err
		}
		cond, err := n.Cond.Eval(f)
		if err != nil {
			return err
		}
		if !Truthy(cond) {
			return execBlock(f, n.Else)
		}
		stop, err := loopBody(f, n.Body)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (n *ForStmt) Exec(f *frame) error {
	iter, err := n.Iter.Eval(f)
	if err != nil {
		return err
	}
	broke := false
	err = forEach(f.t, iter, func(item Value) error {
		f.line = n.Position.Line
		if err := n.Target.assign(f, item); err != nil {
			return err
		}
		stop, err := loopBody(f, n.Body)
		if err != nil {
			return err
		}
		if stop {
			broke = true
			return errStopIteration
		}
		return nil
	})
	if err == errStopIteration {
		return nil
	}
	if err != nil {
		return err
	}
	if !broke {
		return execBlock(f, n.Else)
	}
	return nil
}

func (n *BreakStmt) Exec(f *frame) error    { return errBreak }
func (n *ContinueStmt) Exec(f *frame) error { return errContinue }
func (n *PassStmt) Exec(f *frame) error     { return nil }

func (n *DefStmt) Exec(f *frame) error {
	fn, err := makeFunction(f, n.Name, n.Params)
	if err != nil {
		return err
	}
	fn.Body = n.Body
	f.setName(n.Name, fn)
	return nil
}

func (n *ReturnStmt) Exec(f *frame) error {
	var v Value
	if n.Value != nil {
		var err error
		if v, err = n.Value.Eval(f); err != nil {
			return err
		}
	}
	return &returnSignal{value: v}
}

func (n *DelStmt) Exec(f *frame) error {
	for _, t := range n.Targets {
		if err := t.remove(f); err != nil {
			return err
		}
	}
	return nil
}

func (n *GlobalStmt) Exec(f *frame) error {
	if f.isModule() {
		return nil
	}
	if f.declaredGlobal == nil {
		f.declaredGlobal = make(map[string]bool)
	}
	for _, name := range n.Names {
		f.declaredGlobal[name] = true
	}
	return nil
}

func (n *RaiseStmt) Exec(f *frame) error {
	if n.Exc == nil {
		if f.handling != nil {
			return f.handling
		}
		return newException(RuntimeError, "No active exception to reraise")
	}
	v, err := n.Exc.Eval(f)
	if err != nil {
		return err
	}
	exc, err := toException(v)
	if err != nil {
		return err
	}
	exc.resetTraceback()
	return exc
}

// toException accepts an exception instance or class
func toException(v Value) (*Exception, error) {
	switch x := v.(type) {
	case *Exception:
		return x, nil
	case *Class:
		return &Exception{Class: x}, nil
	}
	return nil, newException(TypeError, "exceptions must derive from Exception")
}

// matches reports whether exc is caught by an except clause's type value
func matches(exc *Exception, typ Value) (bool, error) {
	switch x := typ.(type) {
	case *Class:
		return exc.Class.IsSubclass(x), nil
	case Tuple:
		for _, item := range x {
			ok, err := matches(exc, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, newException(TypeError, "catching classes that do not inherit from Exception is not allowed")
}

func (n *TryStmt) Exec(f *frame) error {
	err := n.handle(f, execBlock(f, n.Body))
	if len(n.Finally) == 0 {
		return err
	}
	if ferr := execBlock(f, n.Finally); ferr != nil {
		return ferr
	}
	return err
}

func (n *TryStmt) handle(f *frame, err error) error {
	if err == nil {
		return execBlock(f, n.Else)
	}
	exc, ok := err.(*Exception)
	if !ok {
		return err
	}
	// a timeout cannot be swallowed
	if exc.Class == TimeoutError && f.t.check() != nil {
		return err
	}
	for _, h := range n.Handlers {
		if h.Type != nil {
			typ, terr := h.Type.Eval(f)
			if terr != nil {
				return terr
			}
			ok, merr := matches(exc, typ)
			if merr != nil {
				return merr
			}
			if !ok {
				continue
			}
		}
		if h.Name != "" {
			f.setName(h.Name, exc)
		}
		previous := f.handling
		f.handling = exc
		herr := execBlock(f, h.Body)
		f.handling = previous
		return herr
	}
	return err
}

func (n *AssertStmt) Exec(f *frame) error {
	v, err := n.Test.Eval(f)
	if err != nil {
		return err
	}
	if Truthy(v) {
		return nil
	}
	if n.Msg == nil {
		return &Exception{Class: AssertionError}
	}
	msg, err := n.Msg.Eval(f)
	if err != nil {
		return err
	}
	return &Exception{Class: AssertionError, Args: []Value{msg}}
}

func (n *ImportStmt) Exec(f *frame) error {
	for _, imp := range n.Names {
		m, err := f.t.env.importModule(imp.Name)
		if err != nil {
			return err
		}
		name := imp.Alias
		if name == "" {
			name = imp.Name
		}
		f.setName(name, m)
	}
	return nil
}

func (n *FromImportStmt) Exec(f *frame) error {
	m, err := f.t.env.importModule(n.Module)
	if err != nil {
		return err
	}
	if n.All {
		for name, v := range m.Attrs {
			if !strings.HasPrefix(name, "_") {
				f.setName(name, v)
			}
		}
		return nil
	}
	for _, imp := range n.Names {
		v, ok := m.Attrs[imp.Name]
		if !ok {
			return newException(ImportError, "cannot import name %s", imp.Name)
		}
		name := imp.Alias
		if name == "" {
			name = imp.Name
		}
		f.setName(name, v)
	}
	return nil
}

func (n *PrintStmt) Exec(f *frame) error {
	parts := make([]string, len(n.Values))
	for i, e := range n.Values {
		v, err := e.Eval(f)
		if err != nil {
			return err
		}
		parts[i] = Str(v)
	}
	out := strings.Join(parts, " ")
	if n.TrailingComma {
		out += " "
	} else {
		out += "\n"
	}
	f.t.env.write(out)
	return nil
}
