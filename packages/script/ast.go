package script

// Pos locates a node in the source
type Pos struct {
	Line int
	Col  int
}

// Expr is an expression node
type Expr interface {
	Eval(f *frame) (Value, error)
	GetPosition() Pos
}

// Stmt is a statement node
type Stmt interface {
	Exec(f *frame) error
	GetPosition() Pos
}

// target is an expression that can be assigned to and deleted
type target interface {
	Expr
	assign(f *frame, v Value) error
	remove(f *frame) error
}

// ConstExpr represents a literal
type ConstExpr struct {
	Value    Value
	Position Pos
}

// NameExpr represents a variable reference
type NameExpr struct {
	Name     string
	Position Pos
}

// TupleExpr represents a tuple display or a comma separated target list
type TupleExpr struct {
	Elts     []Expr
	Position Pos
}

// ListExpr represents a list display
type ListExpr struct {
	Elts     []Expr
	Position Pos
}

// DictExpr represents a dict display
type DictExpr struct {
	Keys     []Expr
	Values   []Expr
	Position Pos
}

// BinaryExpr represents arithmetic, bitwise and concatenation operators
type BinaryExpr struct {
	Op       string
	Left     Expr
	Right    Expr
	Position Pos
}

// UnaryExpr represents unary -, + and ~
type UnaryExpr struct {
	Op       string
	Operand  Expr
	Position Pos
}

// BoolExpr represents short-circuit and/or
type BoolExpr struct {
	And      bool
	Left     Expr
	Right    Expr
	Position Pos
}

// NotExpr represents boolean negation
type NotExpr struct {
	Operand  Expr
	Position Pos
}

// CompareExpr represents a chain of comparisons
type CompareExpr struct {
	Left     Expr
	Ops      []string
	Rights   []Expr
	Position Pos
}

// CondExpr represents "a if cond else b"
type CondExpr struct {
	Cond     Expr
	Then     Expr
	Else     Expr
	Position Pos
}

// params describes the parameters of a def or lambda
type params struct {
	Names    []string
	Defaults []Expr
	VarArgs  string
	KwArgs   string
}

// LambdaExpr represents an anonymous function
type LambdaExpr struct {
	Params   params
	Body     Expr
	Position Pos
}

// Argument is one argument of a call
type Argument struct {
	Name       string // keyword arguments
	Star       bool   // *args
	DoubleStar bool   // **kwargs
	Value      Expr
}

// CallExpr represents a call
type CallExpr struct {
	Func     Expr
	Args     []Argument
	Position Pos
}

// AttrExpr represents attribute access
type AttrExpr struct {
	Value    Expr
	Name     string
	Position Pos
}

// IndexExpr represents subscription
type IndexExpr struct {
	Value    Expr
	Index    Expr
	Position Pos
}

// SliceExpr represents lower:upper:step inside a subscript
type SliceExpr struct {
	Lower    Expr
	Upper    Expr
	Step     Expr
	Position Pos
}

type compKind int

const (
	compList compKind = iota
	compGen
	compDict
)

// compClause is one "for targets in iter if cond..." part
type compClause struct {
	Target target
	Iter   Expr
	Ifs    []Expr
}

// CompExpr represents list, dict and generator comprehensions. generators
// are evaluated eagerly into lists.
type CompExpr struct {
	Kind     compKind
	Elt      Expr // value for dicts
	Key      Expr // dicts only
	Clauses  []compClause
	Position Pos
}

func (n *ConstExpr) GetPosition() Pos   { return n.Position }
func (n *NameExpr) GetPosition() Pos    { return n.Position }
func (n *TupleExpr) GetPosition() Pos   { return n.Position }
func (n *ListExpr) GetPosition() Pos    { return n.Position }
func (n *DictExpr) GetPosition() Pos    { return n.Position }
func (n *BinaryExpr) GetPosition() Pos  { return n.Position }
func (n *UnaryExpr) GetPosition() Pos   { return n.Position }
func (n *BoolExpr) GetPosition() Pos    { return n.Position }
func (n *NotExpr) GetPosition() Pos     { return n.Position }
func (n *CompareExpr) GetPosition() Pos { return n.Position }
func (n *CondExpr) GetPosition() Pos    { return n.Position }
func (n *LambdaExpr) GetPosition() Pos  { return n.Position }
func (n *CallExpr) GetPosition() Pos    { return n.Position }
func (n *AttrExpr) GetPosition() Pos    { return n.Position }
func (n *IndexExpr) GetPosition() Pos   { return n.Position }
func (n *SliceExpr) GetPosition() Pos   { return n.Position }
func (n *CompExpr) GetPosition() Pos    { return n.Position }

// ExprStmt represents an expression evaluated for its side effects
type ExprStmt struct {
	X        Expr
	Position Pos
}

// AssignStmt represents "a = b = value"
type AssignStmt struct {
	Targets  []target
	Value    Expr
	Position Pos
}

// AugAssignStmt represents "a += value" and friends
type AugAssignStmt struct {
	Target   target
	Op       string
	Value    Expr
	Position Pos
}

// IfStmt represents if/elif/else. elif chains nest in Else.
type IfStmt struct {
	Cond     Expr
	Body     []Stmt
	Else     []Stmt
	Position Pos
}

// WhileStmt represents a while loop
type WhileStmt struct {
	Cond     Expr
	Body     []Stmt
	Else     []Stmt
	Position Pos
}

// ForStmt represents a for loop
type ForStmt struct {
	Target   target
	Iter     Expr
	Body     []Stmt
	Else     []Stmt
	Position Pos
}

// BreakStmt represents break
type BreakStmt struct{ Position Pos }

// ContinueStmt represents continue
type ContinueStmt struct{ Position Pos }

// PassStmt represents pass
type PassStmt struct{ Position Pos }

// DefStmt represents a function definition
type DefStmt struct {
	Name     string
	Params   params
	Body     []Stmt
	Position Pos
}

// ReturnStmt represents return
type ReturnStmt struct {
	Value    Expr // may be nil
	Position Pos
}

// DelStmt represents del
type DelStmt struct {
	Targets  []target
	Position Pos
}

// GlobalStmt represents a global declaration
type GlobalStmt struct {
	Names    []string
	Position Pos
}

// RaiseStmt represents raise. a nil Exc re-raises the active exception.
type RaiseStmt struct {
	Exc      Expr
	Position Pos
}

// handler is one except clause
type handler struct {
	Type Expr // nil catches everything
	Name string
	Body []Stmt
}

// TryStmt represents try/except/else/finally
type TryStmt struct {
	Body     []Stmt
	Handlers []handler
	Else     []Stmt
	Finally  []Stmt
	Position Pos
}

// AssertStmt represents assert
type AssertStmt struct {
	Test     Expr
	Msg      Expr
	Position Pos
}

// importName is "module [as alias]" or "name [as alias]"
type importName struct {
	Name  string
	Alias string
}

// ImportStmt represents "import a, b as c"
type ImportStmt struct {
	Names    []importName
	Position Pos
}

// FromImportStmt represents "from m import a, b as c" and "from m import *"
type FromImportStmt struct {
	Module   string
	Names    []importName
	All      bool
	Position Pos
}

// PrintStmt represents the statement form of print
type PrintStmt struct {
	Values        []Expr
	TrailingComma bool
	Position      Pos
}

func (n *ExprStmt) GetPosition() Pos       { return n.Position }
func (n *AssignStmt) GetPosition() Pos     { return n.Position }
func (n *AugAssignStmt) GetPosition() Pos  { return n.Position }
func (n *IfStmt) GetPosition() Pos         { return n.Position }
func (n *WhileStmt) GetPosition() Pos      { return n.Position }
func (n *ForStmt) GetPosition() Pos        { return n.Position }
func (n *BreakStmt) GetPosition() Pos      { return n.Position }
func (n *ContinueStmt) GetPosition() Pos   { return n.Position }
func (n *PassStmt) GetPosition() Pos       { return n.Position }
func (n *DefStmt) GetPosition() Pos        { return n.Position }
func (n *ReturnStmt) GetPosition() Pos     { return n.Position }
func (n *DelStmt) GetPosition() Pos        { return n.Position }
func (n *GlobalStmt) GetPosition() Pos     { return n.Position }
func (n *RaiseStmt) GetPosition() Pos      { return n.Position }
func (n *TryStmt) GetPosition() Pos        { return n.Position }
func (n *AssertStmt) GetPosition() Pos     { return n.Position }
func (n *ImportStmt) GetPosition() Pos     { return n.Position }
func (n *FromImportStmt) GetPosition() Pos { return n.Position }
func (n *PrintStmt) GetPosition() Pos      { return n.Position }
