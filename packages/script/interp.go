package script

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// DefaultMaxDepth bounds nested user function calls
const DefaultMaxDepth = 1000

// Scope is a namespace of variables. a sheet's globals are shared by every
// formula of a layer, so access is locked.
type Scope struct {
	mu   sync.RWMutex
	vars map[string]Value
}

// NewScope creates an empty scope
func NewScope() *Scope {
	return &Scope{vars: make(map[string]Value)}
}

func (s *Scope) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

func (s *Scope) Set(name string, v Value) {
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// Delete removes a variable, reporting whether it existed
func (s *Scope) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vars[name]
	delete(s.vars, name)
	return ok
}

// Names returns the variable names in sorted order
func (s *Scope) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Env is the execution environment of one calculation: the globals that
// usercode and formulas see, plus the capabilities builtins may use.
type Env struct {
	Globals *Scope

	// Output receives everything printed
	Output func(string)

	Clock Clock
	Rand  RandomGenerator

	// MaxDepth bounds the call depth. zero means DefaultMaxDepth.
	MaxDepth int

	// TimeoutMessage is the TimeoutError message raised on cancellation
	TimeoutMessage string

	modulesMu sync.Mutex
	modules   map[string]*Module
}

// NewEnv creates an environment with fresh globals and default
// capabilities
func NewEnv() *Env {
	return &Env{
		Globals: NewScope(),
		Clock:   &WallClock{},
		Rand:    &DefaultRandomGenerator{},
	}
}

func (e *Env) maxDepth() int {
	if e.MaxDepth > 0 {
		return e.MaxDepth
	}
	return DefaultMaxDepth
}

func (e *Env) timeoutMessage() string {
	if e.TimeoutMessage != "" {
		return e.TimeoutMessage
	}
	return "calculation timed out"
}

// TimeoutError is the exception raised when a run in this env is cancelled
func (e *Env) TimeoutError() *Exception {
	return newException(TimeoutError, "%s", e.timeoutMessage())
}

func (e *Env) write(s string) {
	if e.Output != nil {
		e.Output(s)
	}
}

// importModule returns the named module, building it once per env
func (e *Env) importModule(name string) (*Module, error) {
	e.modulesMu.Lock()
	defer e.modulesMu.Unlock()
	if m, ok := e.modules[name]; ok {
		return m, nil
	}
	load, ok := moduleLoaders[name]
	if !ok {
		return nil, newException(ImportError, "No module named %s", name)
	}
	if e.modules == nil {
		e.modules = make(map[string]*Module)
	}
	m := load(e)
	e.modules[name] = m
	return m, nil
}

// Thread is a single line of execution. threads share an Env but each
// tracks its own call depth.
type Thread struct {
	ctx   context.Context
	env   *Env
	depth int
}

// NewThread creates a thread running in env until ctx is done
func NewThread(ctx context.Context, env *Env) *Thread {
	return &Thread{ctx: ctx, env: env}
}

func (t *Thread) Context() context.Context { return t.ctx }

func (t *Thread) Env() *Env { return t.env }

// check raises TimeoutError once the context is done
func (t *Thread) check() error {
	select {
	case <-t.ctx.Done():
		return t.env.TimeoutError()
	default:
		return nil
	}
}

// frame is the activation record of the module or of a function call
type frame struct {
	t              *Thread
	locals         *Scope
	globals        *Scope
	declaredGlobal map[string]bool
	closure        *frame
	function       string
	line           int

	// handling is the exception an except clause is running for
	handling *Exception
}

func (f *frame) isModule() bool {
	return f.locals == f.globals
}

// lookup resolves a name through locals, enclosing functions, globals and
// finally builtins
func (f *frame) lookup(name string) (Value, error) {
	if !f.declaredGlobal[name] {
		if v, ok := f.locals.Get(name); ok {
			return v, nil
		}
		for c := f.closure; c != nil; c = c.closure {
			if c.isModule() {
				break
			}
			if v, ok := c.locals.Get(name); ok {
				return v, nil
			}
		}
	}
	if v, ok := f.globals.Get(name); ok {
		return v, nil
	}
	if v, ok := builtins[name]; ok {
		return v, nil
	}
	return nil, newException(NameError, "name '%s' is not defined", name)
}

func (f *frame) setName(name string, v Value) {
	if f.declaredGlobal[name] {
		f.globals.Set(name, v)
		return
	}
	f.locals.Set(name, v)
}

func (f *frame) deleteName(name string) error {
	scope := f.locals
	if f.declaredGlobal[name] {
		scope = f.globals
	}
	if !scope.Delete(name) {
		return newException(NameError, "name '%s' is not defined", name)
	}
	return nil
}

// child creates the frame comprehensions run in
func (f *frame) child() *frame {
	return &frame{
		t:        f.t,
		locals:   NewScope(),
		globals:  f.globals,
		closure:  f,
		function: f.function,
		line:     f.line,
	}
}

// control flow travels up the Go call stack as errors

type controlSignal string

func (c controlSignal) Error() string { return string(c) }

const (
	errBreak    controlSignal = "'break' outside loop"
	errContinue controlSignal = "'continue' not properly in loop"
)

type returnSignal struct {
	value Value
}

func (r *returnSignal) Error() string { return "'return' outside function" }

// execBlock runs statements in order, checking for cancellation before each
func execBlock(f *frame, stmts []Stmt) error {
	for _, s := range stmts {
		f.line = s.GetPosition().Line
		if err := f.t.check(); err != nil {
			return f.unwind(err)
		}
		if err := s.Exec(f); err != nil {
			return f.unwind(err)
		}
	}
	return nil
}

// unwind records the frame in the traceback of a propagating exception
func (f *frame) unwind(err error) error {
	if exc, ok := err.(*Exception); ok {
		exc.record(f)
	}
	return err
}

// outsideSignal turns a control signal that escaped its construct into a
// SyntaxError
func outsideSignal(err error, line int) error {
	switch e := err.(type) {
	case controlSignal:
		return &Exception{Class: SyntaxError, Args: []Value{e.Error()}, Line: line}
	case *returnSignal:
		return &Exception{Class: SyntaxError, Args: []Value{e.Error()}, Line: line}
	}
	return err
}

// Program is parsed source ready to run. a program holds no state of its
// own, so one program may run in many environments at once.
type Program struct {
	Source string
	body   []Stmt
	expr   Expr
}

// Parse parses statements
func Parse(source string) (*Program, error) {
	body, err := parseModule(source)
	if err != nil {
		return nil, err
	}
	return &Program{Source: source, body: body}, nil
}

// ParseExpr parses a single expression. leading whitespace and line breaks
// are allowed.
func ParseExpr(source string) (*Program, error) {
	expr, err := parseExpression(source)
	if err != nil {
		return nil, err
	}
	return &Program{Source: source, expr: expr}, nil
}

func (p *Program) moduleFrame(ctx context.Context, env *Env) *frame {
	return &frame{
		t:       NewThread(ctx, env),
		locals:  env.Globals,
		globals: env.Globals,
		line:    1,
	}
}

// Exec runs the program in env's globals. errors are *Exception values.
func (p *Program) Exec(ctx context.Context, env *Env) error {
	f := p.moduleFrame(ctx, env)
	if p.expr != nil {
		_, err := p.eval(f)
		return err
	}
	if err := execBlock(f, p.body); err != nil {
		return outsideSignal(err, f.line)
	}
	return nil
}

// Eval evaluates an expression program and returns its value
func (p *Program) Eval(ctx context.Context, env *Env) (Value, error) {
	f := p.moduleFrame(ctx, env)
	if p.expr == nil {
		if err := execBlock(f, p.body); err != nil {
			return nil, outsideSignal(err, f.line)
		}
		return nil, nil
	}
	return p.eval(f)
}

func (p *Program) eval(f *frame) (Value, error) {
	f.line = p.expr.GetPosition().Line
	if err := f.t.check(); err != nil {
		return nil, f.unwind(err)
	}
	v, err := p.expr.Eval(f)
	if err != nil {
		return nil, f.unwind(err)
	}
	return v, nil
}
