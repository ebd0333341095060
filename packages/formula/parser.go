package formula

import (
	"fmt"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// tokenLexError stands in for the point where lexing failed. the error is
// only reported if the parser actually reaches it.
const tokenLexError TokenType = -1

// Parser builds a lossless parse tree from formula text
type Parser struct {
	tokens []Token
	pos    int
	lexErr error
}

// Parse parses a formula, which must start with "="
func Parse(formula string) (*Node, error) {
	return NewParser(formula).Parse()
}

// NewParser lexes the input up front. a lexing failure is recorded as a
// sentinel token so that earlier syntax errors still win.
func NewParser(formula string) *Parser {
	p := &Parser{}
	lexer := NewLexer(formula)
	for {
		tok, err := lexer.Next()
		if err != nil {
			p.lexErr = err
			p.tokens = append(p.tokens, Token{Type: tokenLexError, Pos: lexer.pos})
			break
		}
		p.tokens = append(p.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return p
}

// Parse parses the tokens into a tree rooted at a KindRoot node
func (p *Parser) Parse() (*Node, error) {
	eq := p.peek()
	if eq.Type != TokenEquals {
		return nil, p.unexpected(eq)
	}
	p.advance()

	body, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, p.unexpected(tok)
	}
	return branch(KindRoot, leaf(eq), body), nil
}

// helper methods for token navigation

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(offset int) Token {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) at(types ...TokenType) bool {
	t := p.peek().Type
	for _, typ := range types {
		if t == typ {
			return true
		}
	}
	return false
}

func (p *Parser) expect(typ TokenType) (*Node, error) {
	tok := p.peek()
	if tok.Type != typ {
		return nil, p.unexpected(tok)
	}
	p.advance()
	return leaf(tok), nil
}

func (p *Parser) unexpected(tok Token) error {
	switch tok.Type {
	case tokenLexError:
		return p.lexErr
	case TokenEOF:
		return errIncomplete
	}
	return &ParseError{
		Position: tok.Pos + 1,
		Message:  fmt.Sprintf("Error in formula at position %d: unexpected '%s'", tok.Pos+1, tok.Value),
	}
}

// unexpectedAt reports a token using its zero-based offset, the way bad
// range corners are reported
func (p *Parser) unexpectedAt(tok Token) error {
	return &ParseError{
		Position: tok.Pos,
		Message:  fmt.Sprintf("Error in formula at position %d: unexpected '%s'", tok.Pos, tok.Value),
	}
}

// startsTest reports whether a token can begin a test expression
func startsTest(t TokenType) bool {
	switch t {
	case TokenLambda, TokenNot, TokenMinus, TokenPlus, TokenTilde,
		TokenNumber, TokenImaginary, TokenString, TokenName,
		TokenCellRefLike, TokenColumnRefLike, TokenRowRefLike,
		TokenInvalidRef, TokenDeletedRef,
		TokenAnd, TokenOr, TokenIf, TokenIsError, TokenIsErr,
		TokenLeftParen, TokenLeftBracket, TokenLeftBrace:
		return true
	}
	return false
}

// binary parses a left-associative chain of operators
func (p *Parser) binary(kind Kind, next func() (*Node, error), ops ...TokenType) (*Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	if !p.at(ops...) {
		return left, nil
	}
	node := branch(kind, left)
	for p.at(ops...) {
		node.Children = append(node.Children, leaf(p.advance()))
		right, err := next()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, right)
	}
	return node, nil
}

// parseTest handles lambdas and boolean or (lowest precedence)
func (p *Parser) parseTest() (*Node, error) {
	if p.at(TokenLambda) {
		return p.parseLambda()
	}
	return p.binary(KindOr, p.parseAndTest, TokenOr)
}

func (p *Parser) parseAndTest() (*Node, error) {
	return p.binary(KindAnd, p.parseNotTest, TokenAnd)
}

func (p *Parser) parseNotTest() (*Node, error) {
	if p.at(TokenNot) {
		not := leaf(p.advance())
		operand, err := p.parseNotTest()
		if err != nil {
			return nil, err
		}
		return branch(KindNot, not, operand), nil
	}
	return p.parseComparison()
}

// parseComparison handles chained comparison operators
func (p *Parser) parseComparison() (*Node, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	op := p.compOperator()
	if op == nil {
		return left, nil
	}
	node := branch(KindComparison, left)
	for op != nil {
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, op, right)
		op = p.compOperator()
	}
	return node, nil
}

// compOperator consumes a comparison operator if one is next
func (p *Parser) compOperator() *Node {
	switch p.peek().Type {
	case TokenLess, TokenGreater, TokenEquals, TokenEqualTo, TokenGreaterEqual,
		TokenLessEqual, TokenUnequal, TokenObsoleteUnequal, TokenIn:
		return branch(KindCompOperator, leaf(p.advance()))
	case TokenIs:
		op := branch(KindCompOperator, leaf(p.advance()))
		if p.at(TokenNot) {
			op.Children = append(op.Children, leaf(p.advance()))
		}
		return op
	case TokenNot:
		if p.peekAt(1).Type == TokenIn {
			return branch(KindCompOperator, leaf(p.advance()), leaf(p.advance()))
		}
	}
	return nil
}

func (p *Parser) parseExpr() (*Node, error) {
	return p.binary(KindBitOr, p.parseConcat, TokenVerticalBar)
}

func (p *Parser) parseConcat() (*Node, error) {
	return p.binary(KindConcat, p.parseShift, TokenAmpersand)
}

func (p *Parser) parseShift() (*Node, error) {
	return p.binary(KindShift, p.parseArith, TokenLeftShift, TokenRightShift)
}

func (p *Parser) parseArith() (*Node, error) {
	return p.binary(KindArith, p.parseTerm, TokenPlus, TokenMinus)
}

func (p *Parser) parseTerm() (*Node, error) {
	return p.binary(KindTerm, p.parsePercent, TokenStar, TokenSlash, TokenDoubleSlash, TokenModInterp)
}

// parsePercent handles the postfix percent operator
func (p *Parser) parsePercent() (*Node, error) {
	node, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.at(TokenPercent) {
		node = branch(KindPercent, node, leaf(p.advance()))
	}
	return node, nil
}

// parseFactor handles unary operators
func (p *Parser) parseFactor() (*Node, error) {
	if p.at(TokenMinus, TokenPlus, TokenTilde) {
		op := leaf(p.advance())
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return branch(KindFactor, op, operand), nil
	}
	return p.parsePower()
}

// parsePower handles exponentiation, which binds to the factor on its right
func (p *Parser) parsePower() (*Node, error) {
	base, err := p.parseReference()
	if err != nil {
		return nil, err
	}
	if !p.at(TokenDoubleStar, TokenCircumflex) {
		return base, nil
	}
	op := leaf(p.advance())
	exponent, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return branch(KindPower, base, op, exponent), nil
}

// parseReference handles atoms, spreadsheet references and the
// spreadsheet functions, each optionally followed by trailers
func (p *Parser) parseReference() (*Node, error) {
	var base *Node
	var err error
	trailers := true

	tok := p.peek()
	switch tok.Type {
	case TokenCellRefLike, TokenInvalidRef, TokenDeletedRef:
		base, err = p.parseCellReferenceOrRange()
		if err == nil && base.Kind != KindCellRange && base.Kind != KindCellReference && base.Kind != KindAtom {
			trailers = false
		}
	case TokenColumnRefLike:
		p.advance()
		if validColumnRef(tok.Text()) {
			base = branch(KindColumnReference, leaf(tok))
		} else {
			base = branch(KindAtom, branch(KindName, leaf(tok)))
		}
	case TokenRowRefLike:
		p.advance()
		base = branch(KindRowReference, leaf(tok))
	case TokenIf:
		base, err = p.parseIfFunction()
	case TokenAnd:
		base, err = p.parseArgListFunction(KindAndFunction)
		trailers = false
	case TokenOr:
		base, err = p.parseArgListFunction(KindOrFunction)
		trailers = false
	case TokenIsError:
		base, err = p.parseSingleArgFunction(KindIsErrorFunction)
		trailers = false
	case TokenIsErr:
		base, err = p.parseSingleArgFunction(KindIsErrFunction)
		trailers = false
	default:
		base, err = p.parseAtom()
	}
	if err != nil {
		return nil, err
	}
	if !trailers || !p.at(TokenDot, TokenLeftParen, TokenLeftBracket) {
		return base, nil
	}

	node := branch(KindReference, base)
	for p.at(TokenDot, TokenLeftParen, TokenLeftBracket) {
		trailer, err := p.parseTrailer()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, trailer)
	}
	return node, nil
}

// parseCellReferenceOrRange handles cell references, ranges and the
// invalid/deleted markers. cell-like names that are off the grid become
// plain names.
func (p *Parser) parseCellReferenceOrRange() (*Node, error) {
	first := p.advance()
	firstNode := p.referenceCorner(first)

	next := p.peekAt(1)
	if !p.at(TokenColon) || (next.Type != TokenCellRefLike && next.Type != TokenInvalidRef && next.Type != TokenDeletedRef) {
		return firstNode, nil
	}
	if firstNode.Kind == KindAtom {
		return nil, p.unexpectedAt(first)
	}
	colon := leaf(p.advance())
	second := p.advance()
	secondNode := p.referenceCorner(second)
	if secondNode.Kind == KindAtom {
		return nil, p.unexpectedAt(second)
	}
	return branch(KindCellRange, firstNode, colon, secondNode), nil
}

func (p *Parser) referenceCorner(tok Token) *Node {
	switch tok.Type {
	case TokenInvalidRef:
		return branch(KindInvalidReference, leaf(tok))
	case TokenDeletedRef:
		return branch(KindDeletedReference, leaf(tok))
	}
	if _, ok := grid.CellNameToCoordinates(tok.Text()); ok {
		return branch(KindCellReference, leaf(tok))
	}
	return branch(KindAtom, branch(KindName, leaf(tok)))
}

// parseIfFunction handles IF(cond, then[, [else]])
func (p *Parser) parseIfFunction() (*Node, error) {
	node := branch(KindIfFunction, leaf(p.advance()))
	open, err := p.expect(TokenLeftParen)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, open)

	for i := 0; i < 2; i++ {
		if i > 0 {
			comma, err := p.expect(TokenComma)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, comma)
		}
		arg, err := p.parseArgument()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, arg)
	}

	if p.at(TokenComma) {
		node.Children = append(node.Children, leaf(p.advance()))
		if !p.at(TokenRightParen) {
			arg, err := p.parseArgument()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, arg)
		}
	}

	closing, err := p.expect(TokenRightParen)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, closing)
	return node, nil
}

// parseArgListFunction handles AND(...) and OR(...)
func (p *Parser) parseArgListFunction(kind Kind) (*Node, error) {
	node := branch(kind, leaf(p.advance()))
	open, err := p.expect(TokenLeftParen)
	if err != nil {
		return nil, err
	}
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	closing, err := p.expect(TokenRightParen)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, open, args, closing)
	return node, nil
}

// parseSingleArgFunction handles ISERROR(x) and ISERR(x)
func (p *Parser) parseSingleArgFunction(kind Kind) (*Node, error) {
	node := branch(kind, leaf(p.advance()))
	open, err := p.expect(TokenLeftParen)
	if err != nil {
		return nil, err
	}
	arg, err := p.parseArgument()
	if err != nil {
		return nil, err
	}
	closing, err := p.expect(TokenRightParen)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, open, arg, closing)
	return node, nil
}

// parseTrailer handles .name, (args) and [subscripts]
func (p *Parser) parseTrailer() (*Node, error) {
	tok := p.advance()
	switch tok.Type {
	case TokenDot:
		name := p.peek()
		if name.Type != TokenName && name.Type != TokenCellRefLike {
			return nil, p.unexpected(name)
		}
		p.advance()
		return branch(KindTrailer, leaf(tok), branch(KindName, leaf(name))), nil

	case TokenLeftParen:
		node := branch(KindTrailer, leaf(tok))
		if !p.at(TokenRightParen) {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, args)
		}
		closing, err := p.expect(TokenRightParen)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, closing)
		return node, nil

	default:
		subscripts, err := p.parseSubscriptList()
		if err != nil {
			return nil, err
		}
		closing, err := p.expect(TokenRightBracket)
		if err != nil {
			return nil, err
		}
		return branch(KindTrailer, leaf(tok), subscripts, closing), nil
	}
}

// parseArgList handles call arguments: positional, name := value, *args,
// **kwargs, or a single generator expression
func (p *Parser) parseArgList() (*Node, error) {
	node := branch(KindArgList)
	for {
		var arg *Node
		var err error
		switch {
		case p.at(TokenStar, TokenDoubleStar):
			star := leaf(p.advance())
			value, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			arg = branch(KindStarArgument, star, value)
		default:
			arg, err = p.parseTest()
			if err != nil {
				return nil, err
			}
			switch {
			case p.at(TokenColonEquals):
				op := leaf(p.advance())
				value, err := p.parseTest()
				if err != nil {
					return nil, err
				}
				arg = branch(KindKeywordArgument, arg, op, value)
			case p.at(TokenFor) && len(node.Children) == 0:
				gen, err := p.parseGenFor()
				if err != nil {
					return nil, err
				}
				arg = branch(KindGenerator, arg, gen)
				node.Children = append(node.Children, arg)
				return node, nil
			}
		}
		node.Children = append(node.Children, arg)

		if !p.at(TokenComma) {
			return node, nil
		}
		node.Children = append(node.Children, leaf(p.advance()))
		if !startsTest(p.peek().Type) && !p.at(TokenStar, TokenDoubleStar) {
			return node, nil
		}
	}
}

// parseArgument handles a test optionally followed by a generator clause
func (p *Parser) parseArgument() (*Node, error) {
	arg, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if !p.at(TokenFor) {
		return arg, nil
	}
	gen, err := p.parseGenFor()
	if err != nil {
		return nil, err
	}
	return branch(KindGenerator, arg, gen), nil
}

func (p *Parser) parseSubscriptList() (*Node, error) {
	first, err := p.parseSubscript()
	if err != nil {
		return nil, err
	}
	if !p.at(TokenComma) {
		return first, nil
	}
	node := branch(KindSubscriptList, first)
	for p.at(TokenComma) {
		node.Children = append(node.Children, leaf(p.advance()))
		if !startsTest(p.peek().Type) && !p.at(TokenArrow) {
			break
		}
		sub, err := p.parseSubscript()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}

// parseSubscript handles an index or a slice written lower->upper->step
func (p *Parser) parseSubscript() (*Node, error) {
	var lower *Node
	if !p.at(TokenArrow) {
		test, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if !p.at(TokenArrow) {
			return test, nil
		}
		lower = test
	}

	slice := branch(KindSlice)
	if lower != nil {
		slice.Children = append(slice.Children, lower)
	}
	slice.Children = append(slice.Children, leaf(p.advance()))
	for i := 0; i < 2; i++ {
		if startsTest(p.peek().Type) {
			bound, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			slice.Children = append(slice.Children, bound)
		}
		if i == 1 || !p.at(TokenArrow) {
			break
		}
		slice.Children = append(slice.Children, leaf(p.advance()))
	}
	return slice, nil
}

// parseAtom handles literals, names and bracketed displays
func (p *Parser) parseAtom() (*Node, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		return branch(KindAtom, branch(KindNumber, leaf(tok))), nil

	case TokenString:
		str := branch(KindString)
		for p.at(TokenString) {
			str.Children = append(str.Children, leaf(p.advance()))
		}
		return branch(KindAtom, str), nil

	case TokenName:
		p.advance()
		return branch(KindAtom, branch(KindName, leaf(tok))), nil

	case TokenLeftParen:
		open := leaf(p.advance())
		if p.at(TokenRightParen) {
			return branch(KindAtom, open, leaf(p.advance())), nil
		}
		first, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		var inner *Node
		if p.at(TokenFor) {
			gen, err := p.parseGenFor()
			if err != nil {
				return nil, err
			}
			inner = branch(KindGenerator, first, gen)
		} else {
			inner, err = p.continueTestList(first)
			if err != nil {
				return nil, err
			}
		}
		closing, err := p.expect(TokenRightParen)
		if err != nil {
			return nil, err
		}
		return branch(KindAtom, open, inner, closing), nil

	case TokenLeftBracket:
		open := leaf(p.advance())
		if p.at(TokenRightBracket) {
			return branch(KindAtom, open, leaf(p.advance())), nil
		}
		first, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		var inner *Node
		if p.at(TokenFor) {
			listFor, err := p.parseListFor()
			if err != nil {
				return nil, err
			}
			inner = branch(KindListComp, first, listFor)
		} else {
			inner, err = p.continueTestList(first)
			if err != nil {
				return nil, err
			}
		}
		closing, err := p.expect(TokenRightBracket)
		if err != nil {
			return nil, err
		}
		return branch(KindAtom, open, inner, closing), nil

	case TokenLeftBrace:
		open := leaf(p.advance())
		if p.at(TokenRightBrace) {
			return branch(KindAtom, open, leaf(p.advance())), nil
		}
		dict, err := p.parseDictMaker()
		if err != nil {
			return nil, err
		}
		closing, err := p.expect(TokenRightBrace)
		if err != nil {
			return nil, err
		}
		return branch(KindAtom, open, dict, closing), nil
	}
	return nil, p.unexpected(tok)
}

// continueTestList extends an already parsed test into a comma separated
// list, allowing a trailing comma
func (p *Parser) continueTestList(first *Node) (*Node, error) {
	if !p.at(TokenComma) {
		return first, nil
	}
	node := branch(KindTestList, first)
	for p.at(TokenComma) {
		node.Children = append(node.Children, leaf(p.advance()))
		if !startsTest(p.peek().Type) {
			break
		}
		test, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, test)
	}
	return node, nil
}

func (p *Parser) parseTestList() (*Node, error) {
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return p.continueTestList(first)
}

func (p *Parser) parseExprList() (*Node, error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.at(TokenComma) {
		return first, nil
	}
	node := branch(KindExprList, first)
	for p.at(TokenComma) {
		node.Children = append(node.Children, leaf(p.advance()))
		if p.at(TokenIn) {
			break
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, expr)
	}
	return node, nil
}

// parseListFor handles "for targets in values" inside a list display
func (p *Parser) parseListFor() (*Node, error) {
	node, err := p.parseForClause(KindListFor, p.parseTestList)
	if err != nil {
		return nil, err
	}
	return p.parseComprehensionTail(node, KindListFor, KindListIf, p.parseTestList)
}

// parseGenFor handles "for targets in value" in a generator expression
func (p *Parser) parseGenFor() (*Node, error) {
	node, err := p.parseForClause(KindGenFor, p.parseTest)
	if err != nil {
		return nil, err
	}
	return p.parseComprehensionTail(node, KindGenFor, KindGenIf, p.parseTest)
}

func (p *Parser) parseForClause(kind Kind, source func() (*Node, error)) (*Node, error) {
	forTok, err := p.expect(TokenFor)
	if err != nil {
		return nil, err
	}
	targets, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	in, err := p.expect(TokenIn)
	if err != nil {
		return nil, err
	}
	values, err := source()
	if err != nil {
		return nil, err
	}
	return branch(kind, forTok, targets, in, values), nil
}

// parseComprehensionTail appends any further for/if clauses as the last
// child of node
func (p *Parser) parseComprehensionTail(node *Node, forKind, ifKind Kind, source func() (*Node, error)) (*Node, error) {
	switch {
	case p.at(TokenFor):
		next, err := p.parseForClause(forKind, source)
		if err != nil {
			return nil, err
		}
		next, err = p.parseComprehensionTail(next, forKind, ifKind, source)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, next)
	case p.at(TokenIf):
		ifTok := leaf(p.advance())
		cond, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		next := branch(ifKind, ifTok, cond)
		next, err = p.parseComprehensionTail(next, forKind, ifKind, source)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, next)
	}
	return node, nil
}

// parseDictMaker handles key -> value pairs
func (p *Parser) parseDictMaker() (*Node, error) {
	node := branch(KindDictMaker)
	for {
		key, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		arrow, err := p.expect(TokenArrow)
		if err != nil {
			return nil, err
		}
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, key, arrow, value)
		if !p.at(TokenComma) {
			return node, nil
		}
		node.Children = append(node.Children, leaf(p.advance()))
		if !startsTest(p.peek().Type) {
			return node, nil
		}
	}
}

// parseLambda handles lambda params -> body. parameters with defaults use
// := and must come after plain parameters.
func (p *Parser) parseLambda() (*Node, error) {
	node := branch(KindLambda, leaf(p.advance()))
	if !p.at(TokenArrow) {
		params, err := p.parseVarArgsList()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, params)
	}
	arrow, err := p.expect(TokenArrow)
	if err != nil {
		return nil, err
	}
	body, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, arrow, body)
	return node, nil
}

func (p *Parser) parseVarArgsList() (*Node, error) {
	node := branch(KindVarArgsList)
	seenDefault := false
	for {
		switch {
		case p.at(TokenStar):
			node.Children = append(node.Children, leaf(p.advance()))
			name, err := p.expect(TokenName)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, name)
			if p.at(TokenComma) && p.peekAt(1).Type == TokenDoubleStar {
				node.Children = append(node.Children, leaf(p.advance()), leaf(p.advance()))
				name, err := p.expect(TokenName)
				if err != nil {
					return nil, err
				}
				node.Children = append(node.Children, name)
			}
			return node, nil

		case p.at(TokenDoubleStar):
			node.Children = append(node.Children, leaf(p.advance()))
			name, err := p.expect(TokenName)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, name)
			return node, nil
		}

		tok := p.peek()
		name, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, name)
		if p.at(TokenColonEquals) {
			node.Children = append(node.Children, leaf(p.advance()))
			value, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, value)
			seenDefault = true
		} else if seenDefault {
			return nil, p.unexpected(tok)
		}

		if !p.at(TokenComma) {
			return node, nil
		}
		node.Children = append(node.Children, leaf(p.advance()))
		if p.at(TokenArrow) {
			return node, nil
		}
	}
}
