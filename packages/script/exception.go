package script

import (
	"fmt"
	"slices"
	"strings"
)

// Class is an exception class. classes form a single-inheritance tree
// rooted at Exception.
type Class struct {
	Name string
	Base *Class
}

func (c *Class) String() string {
	return fmt.Sprintf("<class '%s'>", c.Name)
}

// IsSubclass reports whether c is other or derives from it
func (c *Class) IsSubclass(other *Class) bool {
	for k := c; k != nil; k = k.Base {
		if k == other {
			return true
		}
	}
	return false
}

var (
	BaseException       = &Class{Name: "Exception"}
	ArithmeticError     = &Class{Name: "ArithmeticError", Base: BaseException}
	ZeroDivisionError   = &Class{Name: "ZeroDivisionError", Base: ArithmeticError}
	OverflowError       = &Class{Name: "OverflowError", Base: ArithmeticError}
	TypeError           = &Class{Name: "TypeError", Base: BaseException}
	ValueError          = &Class{Name: "ValueError", Base: BaseException}
	NameError           = &Class{Name: "NameError", Base: BaseException}
	LookupError         = &Class{Name: "LookupError", Base: BaseException}
	IndexError          = &Class{Name: "IndexError", Base: LookupError}
	KeyError            = &Class{Name: "KeyError", Base: LookupError}
	AttributeError      = &Class{Name: "AttributeError", Base: BaseException}
	AssertionError      = &Class{Name: "AssertionError", Base: BaseException}
	ImportError         = &Class{Name: "ImportError", Base: BaseException}
	RuntimeError        = &Class{Name: "RuntimeError", Base: BaseException}
	RecursionError      = &Class{Name: "RecursionError", Base: RuntimeError}
	NotImplementedError = &Class{Name: "NotImplementedError", Base: RuntimeError}
	StopIteration       = &Class{Name: "StopIteration", Base: BaseException}
	TimeoutError        = &Class{Name: "TimeoutError", Base: BaseException}
	PermissionError     = &Class{Name: "PermissionError", Base: BaseException}
	FormulaError        = &Class{Name: "FormulaError", Base: BaseException}
	CycleError          = &Class{Name: "CycleError", Base: BaseException}
	SyntaxError         = &Class{Name: "SyntaxError", Base: BaseException}
)

// exceptionClasses are the classes visible as builtins
var exceptionClasses = []*Class{
	BaseException, ArithmeticError, ZeroDivisionError, OverflowError,
	TypeError, ValueError, NameError, LookupError, IndexError, KeyError,
	AttributeError, AssertionError, ImportError, RuntimeError, RecursionError,
	NotImplementedError, StopIteration, TimeoutError, PermissionError,
	FormulaError, CycleError, SyntaxError,
}

// TraceFrame is one user-code frame of a traceback
type TraceFrame struct {
	Line     int
	Function string // empty at module level
}

// Exception is a raised host-language exception. it doubles as the Go
// error returned from Exec and Eval.
type Exception struct {
	Class *Class
	Args  []Value

	// Line and Offset locate syntax errors
	Line   int
	Offset int

	// Traceback runs from the outermost frame to the innermost
	Traceback []TraceFrame
	lastFrame *frame
}

func newException(class *Class, format string, args ...any) *Exception {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Exception{Class: class, Args: []Value{msg}}
}

func newSyntaxError(msg string, line, col int) *Exception {
	return &Exception{Class: SyntaxError, Args: []Value{msg}, Line: line, Offset: col}
}

// NewException builds an exception of the given class with a message
func NewException(class *Class, msg string) *Exception {
	return &Exception{Class: class, Args: []Value{msg}}
}

// TypeName is the name of the exception's class
func (e *Exception) TypeName() string {
	return e.Class.Name
}

// Message is str() of the exception
func (e *Exception) Message() string {
	switch len(e.Args) {
	case 0:
		return ""
	case 1:
		if e.Class == KeyError {
			return Repr(e.Args[0])
		}
		return Str(e.Args[0])
	}
	return Tuple(e.Args).String()
}

func (e *Exception) Error() string {
	msg := e.Message()
	if msg == "" {
		return e.Class.Name
	}
	return e.Class.Name + ": " + msg
}

func (e *Exception) Repr() string {
	return e.Class.Name + Tuple(e.Args).String()
}

// InnermostLine is the line of the innermost user frame, or the syntax
// error line
func (e *Exception) InnermostLine() int {
	if n := len(e.Traceback); n > 0 {
		return e.Traceback[n-1].Line
	}
	return e.Line
}

const (
	// shownRepeats is how many identical frames in a row are printed
	// before the rest are counted
	shownRepeats = 3
	// maxTracebackLines caps a traceback; the middle is elided
	maxTracebackLines = 40
)

// FormatTraceback renders the user frames one per line. runs of the same
// frame, as in deep recursion, are collapsed and very long tracebacks keep
// only their ends.
func (e *Exception) FormatTraceback() string {
	var (
		lines   []string
		last    string
		repeats int
	)
	flush := func() {
		if repeats > shownRepeats {
			lines = append(lines, fmt.Sprintf("    [Previous line repeated %d more times]", repeats-shownRepeats))
		}
	}
	for _, f := range e.Traceback {
		line := fmt.Sprintf("    User code line %d", f.Line)
		if f.Function != "" {
			line += ", in " + f.Function
		}
		if line == last {
			repeats++
			if repeats <= shownRepeats {
				lines = append(lines, line)
			}
			continue
		}
		flush()
		last, repeats = line, 1
		lines = append(lines, line)
	}
	flush()

	if len(lines) > maxTracebackLines {
		half := maxTracebackLines / 2
		omitted := fmt.Sprintf("    [%d more lines]", len(lines)-2*half)
		lines = slices.Concat(lines[:half], []string{omitted}, lines[len(lines)-half:])
	}
	return strings.Join(lines, "\n")
}

// record notes that the exception unwound through f
func (e *Exception) record(f *frame) {
	if e.lastFrame == f {
		return
	}
	e.lastFrame = f
	e.Traceback = append([]TraceFrame{{Line: f.line, Function: f.function}}, e.Traceback...)
}

// resetTraceback is used when an existing exception object is raised again
func (e *Exception) resetTraceback() {
	e.Traceback = nil
	e.lastFrame = nil
}

// asException converts any error into an exception
func asException(err error) *Exception {
	if exc, ok := err.(*Exception); ok {
		return exc
	}
	return newException(RuntimeError, "%s", err.Error())
}
