package script

import (
	"math"
	"strconv"
	"strings"
)

// parser builds statements and expressions from tokens
type parser struct {
	tokens []token
	pos    int
}

// parseModule parses a whole program
func parseModule(src string) ([]Stmt, error) {
	tokens, err := newLexer(src, false).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	var body []Stmt
	for !p.at(tokEOF) {
		if p.at(tokNewline) {
			p.advance()
			continue
		}
		stmts, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	return body, nil
}

// parseExpression parses a single expression list, ignoring newlines and
// indentation
func parseExpression(src string) (Expr, error) {
	tokens, err := newLexer(src, true).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseTestList()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, p.unexpected()
	}
	return expr, nil
}

// helper methods for token navigation

func (p *parser) peek() token {
	return p.peekAt(0)
}

func (p *parser) peekAt(offset int) token {
	if i := p.pos + offset; i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *parser) advance() token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) at(kind tokenKind) bool {
	return p.peek().kind == kind
}

func (p *parser) atOp(values ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, v := range values {
		if tok.value == v {
			return true
		}
	}
	return false
}

func (p *parser) atKeyword(value string) bool {
	return p.peek().is(tokKeyword, value)
}

func (p *parser) expectOp(value string) (token, error) {
	if !p.atOp(value) {
		return token{}, p.unexpected()
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(value string) error {
	if !p.atKeyword(value) {
		return p.unexpected()
	}
	p.advance()
	return nil
}

func (p *parser) expectName() (string, error) {
	if !p.at(tokName) {
		return "", p.unexpected()
	}
	return p.advance().value, nil
}

func (p *parser) unexpected() error {
	tok := p.peek()
	if tok.kind == tokEOF {
		return newSyntaxError("unexpected EOF while parsing", tok.line, tok.col)
	}
	return newSyntaxError("invalid syntax", tok.line, tok.col)
}

func posOf(tok token) Pos {
	return Pos{Line: tok.line, Col: tok.col}
}

// canStartExpr reports whether the next token can begin an expression
func (p *parser) canStartExpr() bool {
	tok := p.peek()
	switch tok.kind {
	case tokName, tokInt, tokFloat, tokString:
		return true
	case tokKeyword:
		switch tok.value {
		case "None", "True", "False", "not", "lambda":
			return true
		}
	case tokOp:
		switch tok.value {
		case "(", "[", "{", "-", "+", "~":
			return true
		}
	}
	return false
}

// statements

func (p *parser) parseStatement() ([]Stmt, error) {
	tok := p.peek()
	if tok.kind == tokKeyword {
		var stmt Stmt
		var err error
		switch tok.value {
		case "if":
			stmt, err = p.parseIf()
		case "while":
			stmt, err = p.parseWhile()
		case "for":
			stmt, err = p.parseFor()
		case "try":
			stmt, err = p.parseTry()
		case "def":
			stmt, err = p.parseDef()
		case "class", "with", "yield", "nonlocal":
			return nil, newSyntaxError("invalid syntax", tok.line, tok.col)
		default:
			return p.parseSimpleStatements()
		}
		if err != nil {
			return nil, err
		}
		return []Stmt{stmt}, nil
	}
	if tok.kind == tokIndent {
		return nil, newSyntaxError("unexpected indent", tok.line, tok.col)
	}
	return p.parseSimpleStatements()
}

// parseSimpleStatements parses small statements separated by ";" up to the
// end of the line
func (p *parser) parseSimpleStatements() ([]Stmt, error) {
	var stmts []Stmt
	for {
		stmt, err := p.parseSmallStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		if !p.atOp(";") {
			break
		}
		p.advance()
		if p.at(tokNewline) || p.at(tokEOF) {
			break
		}
	}
	if p.at(tokEOF) {
		return stmts, nil
	}
	if !p.at(tokNewline) {
		return nil, p.unexpected()
	}
	p.advance()
	return stmts, nil
}

func (p *parser) parseSmallStatement() (Stmt, error) {
	tok := p.peek()
	pos := posOf(tok)

	if tok.kind == tokKeyword {
		switch tok.value {
		case "pass":
			p.advance()
			return &PassStmt{Position: pos}, nil
		case "break":
			p.advance()
			return &BreakStmt{Position: pos}, nil
		case "continue":
			p.advance()
			return &ContinueStmt{Position: pos}, nil
		case "return":
			p.advance()
			stmt := &ReturnStmt{Position: pos}
			if p.canStartExpr() {
				value, err := p.parseTestList()
				if err != nil {
					return nil, err
				}
				stmt.Value = value
			}
			return stmt, nil
		case "raise":
			return p.parseRaise()
		case "global":
			p.advance()
			stmt := &GlobalStmt{Position: pos}
			for {
				name, err := p.expectName()
				if err != nil {
					return nil, err
				}
				stmt.Names = append(stmt.Names, name)
				if !p.atOp(",") {
					return stmt, nil
				}
				p.advance()
			}
		case "del":
			p.advance()
			list, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			stmt := &DelStmt{Position: pos}
			elts := []Expr{list}
			if tuple, ok := list.(*TupleExpr); ok {
				elts = tuple.Elts
			}
			for _, e := range elts {
				t, err := toTarget(e)
				if err != nil {
					return nil, err
				}
				stmt.Targets = append(stmt.Targets, t)
			}
			return stmt, nil
		case "assert":
			p.advance()
			test, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			stmt := &AssertStmt{Test: test, Position: pos}
			if p.atOp(",") {
				p.advance()
				if stmt.Msg, err = p.parseTest(); err != nil {
					return nil, err
				}
			}
			return stmt, nil
		case "import":
			return p.parseImport()
		case "from":
			return p.parseFromImport()
		}
	}

	if tok.is(tokName, "print") && p.isPrintStatement() {
		return p.parsePrint()
	}
	return p.parseExprStatement()
}

// isPrintStatement tells the print statement apart from uses of the print
// function or name
func (p *parser) isPrintStatement() bool {
	next := p.peekAt(1)
	switch next.kind {
	case tokNewline, tokEOF:
		return true
	case tokOp:
		switch next.value {
		case "(", "=", ".", "[", ",", ")", "+=":
			return false
		case ";":
			return true
		}
		return next.value == "-" || next.value == "+" || next.value == "~" || next.value == "{"
	}
	return true
}

func (p *parser) parsePrint() (Stmt, error) {
	stmt := &PrintStmt{Position: posOf(p.advance())}
	for p.canStartExpr() {
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, value)
		stmt.TrailingComma = false
		if !p.atOp(",") {
			break
		}
		p.advance()
		stmt.TrailingComma = true
	}
	return stmt, nil
}

func (p *parser) parseRaise() (Stmt, error) {
	stmt := &RaiseStmt{Position: posOf(p.advance())}
	if !p.canStartExpr() {
		return stmt, nil
	}
	exc, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	// raise Class, "message"
	if p.atOp(",") {
		comma := p.advance()
		msg, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		exc = &CallExpr{Func: exc, Args: []Argument{{Value: msg}}, Position: posOf(comma)}
	}
	stmt.Exc = exc
	return stmt, nil
}

func (p *parser) parseDottedName() (string, error) {
	name, err := p.expectName()
	if err != nil {
		return "", err
	}
	for p.atOp(".") {
		p.advance()
		part, err := p.expectName()
		if err != nil {
			return "", err
		}
		name += "." + part
	}
	return name, nil
}

func (p *parser) parseImport() (Stmt, error) {
	stmt := &ImportStmt{Position: posOf(p.advance())}
	for {
		name, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		imp := importName{Name: name}
		if p.atKeyword("as") {
			p.advance()
			if imp.Alias, err = p.expectName(); err != nil {
				return nil, err
			}
		}
		stmt.Names = append(stmt.Names, imp)
		if !p.atOp(",") {
			return stmt, nil
		}
		p.advance()
	}
}

func (p *parser) parseFromImport() (Stmt, error) {
	stmt := &FromImportStmt{Position: posOf(p.advance())}
	module, err := p.parseDottedName()
	if err != nil {
		return nil, err
	}
	stmt.Module = module
	if err := p.expectKeyword("import"); err != nil {
		return nil, err
	}
	if p.atOp("*") {
		p.advance()
		stmt.All = true
		return stmt, nil
	}
	paren := p.atOp("(")
	if paren {
		p.advance()
	}
	for {
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		imp := importName{Name: name}
		if p.atKeyword("as") {
			p.advance()
			if imp.Alias, err = p.expectName(); err != nil {
				return nil, err
			}
		}
		stmt.Names = append(stmt.Names, imp)
		if !p.atOp(",") {
			break
		}
		p.advance()
		if paren && p.atOp(")") {
			break
		}
	}
	if paren {
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

var augmentedOps = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "//=": "//", "%=": "%",
	"**=": "**", "&=": "&", "|=": "|", "^=": "^", "<<=": "<<", ">>=": ">>",
}

func (p *parser) parseExprStatement() (Stmt, error) {
	pos := posOf(p.peek())
	first, err := p.parseTestList()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind == tokOp {
		if op, ok := augmentedOps[tok.value]; ok {
			p.advance()
			t, err := toTarget(first)
			if err != nil {
				return nil, err
			}
			if _, ok := t.(*TupleExpr); ok {
				return nil, newSyntaxError("illegal expression for augmented assignment", pos.Line, pos.Col)
			}
			value, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			return &AugAssignStmt{Target: t, Op: op, Value: value, Position: pos}, nil
		}
	}

	if !p.atOp("=") {
		return &ExprStmt{X: first, Position: pos}, nil
	}
	exprs := []Expr{first}
	for p.atOp("=") {
		p.advance()
		next, err := p.parseTestList()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, next)
	}
	stmt := &AssignStmt{Value: exprs[len(exprs)-1], Position: pos}
	for _, e := range exprs[:len(exprs)-1] {
		t, err := toTarget(e)
		if err != nil {
			return nil, err
		}
		stmt.Targets = append(stmt.Targets, t)
	}
	return stmt, nil
}

// toTarget checks that an expression can be assigned to
func toTarget(e Expr) (target, error) {
	switch x := e.(type) {
	case *NameExpr, *AttrExpr, *IndexExpr:
		return x.(target), nil
	case *TupleExpr:
		for _, elt := range x.Elts {
			if _, err := toTarget(elt); err != nil {
				return nil, err
			}
		}
		return x, nil
	case *ListExpr:
		for _, elt := range x.Elts {
			if _, err := toTarget(elt); err != nil {
				return nil, err
			}
		}
		return x, nil
	}
	pos := e.GetPosition()
	return nil, newSyntaxError("can't assign to expression", pos.Line, pos.Col)
}

// parseBlock parses the suite after a colon: either an indented block or
// simple statements on the same line
func (p *parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if !p.at(tokNewline) {
		return p.parseSimpleStatements()
	}
	p.advance()
	if !p.at(tokIndent) {
		tok := p.peek()
		return nil, newSyntaxError("expected an indented block", tok.line, tok.col)
	}
	p.advance()

	var body []Stmt
	for !p.at(tokDedent) && !p.at(tokEOF) {
		if p.at(tokNewline) {
			p.advance()
			continue
		}
		stmts, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	if p.at(tokDedent) {
		p.advance()
	}
	return body, nil
}

func (p *parser) parseIf() (Stmt, error) {
	stmt := &IfStmt{Position: posOf(p.advance())}
	cond, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	stmt.Cond = cond
	if stmt.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	switch {
	case p.atKeyword("elif"):
		elif, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		stmt.Else = []Stmt{elif}
	case p.atKeyword("else"):
		p.advance()
		if stmt.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	stmt := &WhileStmt{Position: posOf(p.advance())}
	cond, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	stmt.Cond = cond
	if stmt.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	if p.atKeyword("else") {
		p.advance()
		if stmt.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *parser) parseFor() (Stmt, error) {
	stmt := &ForStmt{Position: posOf(p.advance())}
	targets, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if stmt.Target, err = toTarget(targets); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	if stmt.Iter, err = p.parseTestList(); err != nil {
		return nil, err
	}
	if stmt.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	if p.atKeyword("else") {
		p.advance()
		if stmt.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *parser) parseTry() (Stmt, error) {
	stmt := &TryStmt{Position: posOf(p.advance())}
	var err error
	if stmt.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}

	for p.atKeyword("except") {
		p.advance()
		var h handler
		if !p.atOp(":") {
			if h.Type, err = p.parseTest(); err != nil {
				return nil, err
			}
			if p.atKeyword("as") || p.atOp(",") {
				p.advance()
				if h.Name, err = p.expectName(); err != nil {
					return nil, err
				}
			}
		}
		if h.Body, err = p.parseBlock(); err != nil {
			return nil, err
		}
		stmt.Handlers = append(stmt.Handlers, h)
	}
	if p.atKeyword("else") {
		if len(stmt.Handlers) == 0 {
			return nil, p.unexpected()
		}
		p.advance()
		if stmt.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	if p.atKeyword("finally") {
		p.advance()
		if stmt.Finally, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	if len(stmt.Handlers) == 0 && stmt.Finally == nil {
		return nil, p.unexpected()
	}
	return stmt, nil
}

func (p *parser) parseDef() (Stmt, error) {
	stmt := &DefStmt{Position: posOf(p.advance())}
	name, err := p.expectName()
	if err != nil {
		return nil, err
	}
	stmt.Name = name
	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	if stmt.Params, err = p.parseParams(")"); err != nil {
		return nil, err
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	if stmt.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseParams parses a parameter list up to the closing token
func (p *parser) parseParams(closing string) (params, error) {
	var ps params
	for !p.atOp(closing) {
		switch {
		case p.atOp("*"):
			p.advance()
			name, err := p.expectName()
			if err != nil {
				return ps, err
			}
			ps.VarArgs = name
		case p.atOp("**"):
			p.advance()
			name, err := p.expectName()
			if err != nil {
				return ps, err
			}
			ps.KwArgs = name
		default:
			if ps.VarArgs != "" || ps.KwArgs != "" {
				return ps, p.unexpected()
			}
			tok := p.peek()
			name, err := p.expectName()
			if err != nil {
				return ps, err
			}
			ps.Names = append(ps.Names, name)
			if p.atOp("=") {
				p.advance()
				def, err := p.parseTest()
				if err != nil {
					return ps, err
				}
				ps.Defaults = append(ps.Defaults, def)
			} else if len(ps.Defaults) > 0 {
				return ps, newSyntaxError("non-default argument follows default argument", tok.line, tok.col)
			}
		}
		if !p.atOp(",") {
			break
		}
		p.advance()
	}
	return ps, nil
}

// expressions

// parseTestList parses "test, test, ..." into a tuple when a comma is
// present
func (p *parser) parseTestList() (Expr, error) {
	pos := posOf(p.peek())
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if !p.atOp(",") {
		return first, nil
	}
	elts := []Expr{first}
	for p.atOp(",") {
		p.advance()
		if !p.canStartExpr() {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elts = append(elts, next)
	}
	return &TupleExpr{Elts: elts, Position: pos}, nil
}

// parseExprList parses loop and del targets, which stop before "in"
func (p *parser) parseExprList() (Expr, error) {
	pos := posOf(p.peek())
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.atOp(",") {
		return first, nil
	}
	elts := []Expr{first}
	for p.atOp(",") {
		p.advance()
		if !p.canStartExpr() {
			break
		}
		next, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, next)
	}
	return &TupleExpr{Elts: elts, Position: pos}, nil
}

func (p *parser) parseTest() (Expr, error) {
	if p.atKeyword("lambda") {
		return p.parseLambda()
	}
	pos := posOf(p.peek())
	then, err := p.parseOrTest()
	if err != nil {
		return nil, err
	}
	if !p.atKeyword("if") {
		return then, nil
	}
	p.advance()
	cond, err := p.parseOrTest()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("else"); err != nil {
		return nil, err
	}
	otherwise, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return &CondExpr{Cond: cond, Then: then, Else: otherwise, Position: pos}, nil
}

func (p *parser) parseLambda() (Expr, error) {
	pos := posOf(p.advance())
	ps, err := p.parseParams(":")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	body, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return &LambdaExpr{Params: ps, Body: body, Position: pos}, nil
}

func (p *parser) parseOrTest() (Expr, error) {
	left, err := p.parseAndTest()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		pos := posOf(p.advance())
		right, err := p.parseAndTest()
		if err != nil {
			return nil, err
		}
		left = &BoolExpr{Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *parser) parseAndTest() (Expr, error) {
	left, err := p.parseNotTest()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		pos := posOf(p.advance())
		right, err := p.parseNotTest()
		if err != nil {
			return nil, err
		}
		left = &BoolExpr{And: true, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *parser) parseNotTest() (Expr, error) {
	if p.atKeyword("not") {
		pos := posOf(p.advance())
		operand, err := p.parseNotTest()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Operand: operand, Position: pos}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	pos := posOf(p.peek())
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rights []Expr
	for {
		op := p.comparisonOperator()
		if op == "" {
			break
		}
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rights = append(rights, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &CompareExpr{Left: left, Ops: ops, Rights: rights, Position: pos}, nil
}

// comparisonOperator consumes a comparison operator if one is next
func (p *parser) comparisonOperator() string {
	tok := p.peek()
	switch {
	case p.atOp("<", ">", "==", ">=", "<=", "!=", "<>"):
		p.advance()
		if tok.value == "<>" {
			return "!="
		}
		return tok.value
	case p.atKeyword("in"):
		p.advance()
		return "in"
	case p.atKeyword("not") && p.peekAt(1).is(tokKeyword, "in"):
		p.advance()
		p.advance()
		return "not in"
	case p.atKeyword("is"):
		p.advance()
		if p.atKeyword("not") {
			p.advance()
			return "is not"
		}
		return "is"
	}
	return ""
}

// binaryLevel parses a left-associative chain of the given operators
func (p *parser) binaryLevel(next func() (Expr, error), ops ...string) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.atOp(ops...) {
		tok := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: tok.value, Left: left, Right: right, Position: posOf(tok)}
	}
	return left, nil
}

func (p *parser) parseExpr() (Expr, error) {
	return p.binaryLevel(p.parseXor, "|")
}

func (p *parser) parseXor() (Expr, error) {
	return p.binaryLevel(p.parseAnd, "^")
}

func (p *parser) parseAnd() (Expr, error) {
	return p.binaryLevel(p.parseShift, "&")
}

func (p *parser) parseShift() (Expr, error) {
	return p.binaryLevel(p.parseArith, "<<", ">>")
}

func (p *parser) parseArith() (Expr, error) {
	return p.binaryLevel(p.parseTerm, "+", "-")
}

func (p *parser) parseTerm() (Expr, error) {
	return p.binaryLevel(p.parseFactor, "*", "/", "//", "%")
}

func (p *parser) parseFactor() (Expr, error) {
	if p.atOp("-", "+", "~") {
		tok := p.advance()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		// fold negative literals so that -9223372036854775808 stays an int
		if c, ok := operand.(*ConstExpr); ok && tok.value == "-" {
			switch v := c.Value.(type) {
			case int64:
				return &ConstExpr{Value: -v, Position: posOf(tok)}, nil
			case float64:
				return &ConstExpr{Value: -v, Position: posOf(tok)}, nil
			}
		}
		return &UnaryExpr{Op: tok.value, Operand: operand, Position: posOf(tok)}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parseAtomExpr()
	if err != nil {
		return nil, err
	}
	if !p.atOp("**") {
		return base, nil
	}
	tok := p.advance()
	exponent, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: "**", Left: base, Right: exponent, Position: posOf(tok)}, nil
}

func (p *parser) parseAtomExpr() (Expr, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atOp("("):
			tok := p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			expr = &CallExpr{Func: expr, Args: args, Position: posOf(tok)}
		case p.atOp("["):
			tok := p.advance()
			index, err := p.parseSubscripts()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp("]"); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Value: expr, Index: index, Position: posOf(tok)}
		case p.atOp("."):
			tok := p.advance()
			name, err := p.expectName()
			if err != nil {
				return nil, err
			}
			expr = &AttrExpr{Value: expr, Name: name, Position: posOf(tok)}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parseArgs() ([]Argument, error) {
	var args []Argument
	for !p.atOp(")") {
		var arg Argument
		switch {
		case p.atOp("*"):
			p.advance()
			arg.Star = true
		case p.atOp("**"):
			p.advance()
			arg.DoubleStar = true
		case p.at(tokName) && p.peekAt(1).is(tokOp, "="):
			arg.Name = p.advance().value
			p.advance()
		}
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		arg.Value = value

		// a lone generator argument needs no parentheses of its own
		if p.atKeyword("for") && arg.Name == "" && !arg.Star && !arg.DoubleStar {
			gen, err := p.parseComprehension(compGen, value, nil, value.GetPosition())
			if err != nil {
				return nil, err
			}
			arg.Value = gen
		}
		args = append(args, arg)
		if !p.atOp(",") {
			break
		}
		p.advance()
	}
	return args, nil
}

func (p *parser) parseSubscripts() (Expr, error) {
	pos := posOf(p.peek())
	first, err := p.parseSubscript()
	if err != nil {
		return nil, err
	}
	if !p.atOp(",") {
		return first, nil
	}
	elts := []Expr{first}
	for p.atOp(",") {
		p.advance()
		if p.atOp("]") {
			break
		}
		next, err := p.parseSubscript()
		if err != nil {
			return nil, err
		}
		elts = append(elts, next)
	}
	return &TupleExpr{Elts: elts, Position: pos}, nil
}

func (p *parser) parseSubscript() (Expr, error) {
	pos := posOf(p.peek())
	var lower Expr
	if !p.atOp(":") {
		test, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if !p.atOp(":") {
			return test, nil
		}
		lower = test
	}
	p.advance()
	slice := &SliceExpr{Lower: lower, Position: pos}
	if !p.atOp(":", "]", ",") {
		upper, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		slice.Upper = upper
	}
	if p.atOp(":") {
		p.advance()
		if !p.atOp("]", ",") {
			step, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			slice.Step = step
		}
	}
	return slice, nil
}

// parseComprehension parses the for/if clauses following elt
func (p *parser) parseComprehension(kind compKind, elt, key Expr, pos Pos) (Expr, error) {
	comp := &CompExpr{Kind: kind, Elt: elt, Key: key, Position: pos}
	for p.atKeyword("for") {
		p.advance()
		targets, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		t, err := toTarget(targets)
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("in"); err != nil {
			return nil, err
		}
		iter, err := p.parseOrTest()
		if err != nil {
			return nil, err
		}
		clause := compClause{Target: t, Iter: iter}
		for p.atKeyword("if") {
			p.advance()
			cond, err := p.parseOrTest()
			if err != nil {
				return nil, err
			}
			clause.Ifs = append(clause.Ifs, cond)
		}
		comp.Clauses = append(comp.Clauses, clause)
	}
	return comp, nil
}

func (p *parser) parseAtom() (Expr, error) {
	tok := p.peek()
	pos := posOf(tok)

	switch tok.kind {
	case tokName:
		p.advance()
		return &NameExpr{Name: tok.value, Position: pos}, nil

	case tokInt:
		p.advance()
		n, err := strconv.ParseInt(tok.value, 10, 64)
		if err != nil {
			// too large for an int
			f, _ := strconv.ParseFloat(tok.value, 64)
			if math.IsInf(f, 0) {
				return nil, newSyntaxError("integer literal too large", tok.line, tok.col)
			}
			return &ConstExpr{Value: f, Position: pos}, nil
		}
		return &ConstExpr{Value: n, Position: pos}, nil

	case tokFloat:
		p.advance()
		f, err := strconv.ParseFloat(tok.value, 64)
		if err != nil && !math.IsInf(f, 0) {
			return nil, newSyntaxError("invalid syntax", tok.line, tok.col)
		}
		return &ConstExpr{Value: f, Position: pos}, nil

	case tokString:
		var sb strings.Builder
		for p.at(tokString) {
			sb.WriteString(p.advance().str)
		}
		return &ConstExpr{Value: sb.String(), Position: pos}, nil

	case tokKeyword:
		switch tok.value {
		case "None":
			p.advance()
			return &ConstExpr{Value: nil, Position: pos}, nil
		case "True":
			p.advance()
			return &ConstExpr{Value: true, Position: pos}, nil
		case "False":
			p.advance()
			return &ConstExpr{Value: false, Position: pos}, nil
		}

	case tokOp:
		switch tok.value {
		case "(":
			return p.parseParenthesized()
		case "[":
			return p.parseListDisplay()
		case "{":
			return p.parseDictDisplay()
		}
	}
	return nil, p.unexpected()
}

func (p *parser) parseParenthesized() (Expr, error) {
	pos := posOf(p.advance())
	if p.atOp(")") {
		p.advance()
		return &TupleExpr{Position: pos}, nil
	}
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	var result Expr = first
	switch {
	case p.atKeyword("for"):
		if result, err = p.parseComprehension(compGen, first, nil, pos); err != nil {
			return nil, err
		}
	case p.atOp(","):
		elts := []Expr{first}
		for p.atOp(",") {
			p.advance()
			if p.atOp(")") {
				break
			}
			next, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			elts = append(elts, next)
		}
		result = &TupleExpr{Elts: elts, Position: pos}
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *parser) parseListDisplay() (Expr, error) {
	pos := posOf(p.advance())
	list := &ListExpr{Position: pos}
	if p.atOp("]") {
		p.advance()
		return list, nil
	}
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if p.atKeyword("for") {
		comp, err := p.parseComprehension(compList, first, nil, pos)
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return comp, nil
	}
	list.Elts = append(list.Elts, first)
	for p.atOp(",") {
		p.advance()
		if p.atOp("]") {
			break
		}
		next, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		list.Elts = append(list.Elts, next)
	}
	if _, err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *parser) parseDictDisplay() (Expr, error) {
	pos := posOf(p.advance())
	dict := &DictExpr{Position: pos}
	if p.atOp("}") {
		p.advance()
		return dict, nil
	}
	for {
		key, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp(":"); err != nil {
			return nil, err
		}
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if len(dict.Keys) == 0 && p.atKeyword("for") {
			comp, err := p.parseComprehension(compDict, value, key, pos)
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp("}"); err != nil {
				return nil, err
			}
			return comp, nil
		}
		dict.Keys = append(dict.Keys, key)
		dict.Values = append(dict.Values, value)
		if !p.atOp(",") {
			break
		}
		p.advance()
		if p.atOp("}") {
			break
		}
	}
	if _, err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return dict, nil
}
