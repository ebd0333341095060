package formula

import (
	"fmt"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenImaginary
	TokenString
	TokenName
	TokenCellRefLike
	TokenColumnRefLike
	TokenRowRefLike
	TokenInvalidRef
	TokenDeletedRef

	// keywords
	TokenAnd
	TokenOr
	TokenNot
	TokenIf
	TokenIsError
	TokenIsErr
	TokenFor
	TokenIn
	TokenIs
	TokenLambda

	// operators and punctuation
	TokenPlus
	TokenMinus
	TokenStar
	TokenDoubleStar
	TokenSlash
	TokenDoubleSlash
	TokenPercent
	TokenModInterp
	TokenCircumflex
	TokenAmpersand
	TokenVerticalBar
	TokenLeftShift
	TokenRightShift
	TokenTilde
	TokenLess
	TokenGreater
	TokenLessEqual
	TokenGreaterEqual
	TokenEqualTo
	TokenUnequal
	TokenObsoleteUnequal
	TokenColonEquals
	TokenArrow
	TokenColon
	TokenComma
	TokenDot
	TokenExclamation
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charSpace      = ' '
	charQuote      = '"'
	charApostrophe = '\''
	charDollar     = '$'
	charHash       = '#'
	charPeriod     = '.'
	charUnderscore = '_'
	charBackslash  = '\\'
	charNewline    = '\n'
)

// operators ordered so that longer spellings win
var operators = []struct {
	text string
	typ  TokenType
}{
	{"**", TokenDoubleStar},
	{"//", TokenDoubleSlash},
	{"%%", TokenModInterp},
	{"<<", TokenLeftShift},
	{">>", TokenRightShift},
	{"==", TokenEqualTo},
	{":=", TokenColonEquals},
	{">=", TokenGreaterEqual},
	{"<=", TokenLessEqual},
	{"!=", TokenUnequal},
	{"<>", TokenObsoleteUnequal},
	{"->", TokenArrow},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{"%", TokenPercent},
	{"^", TokenCircumflex},
	{"&", TokenAmpersand},
	{"|", TokenVerticalBar},
	{"~", TokenTilde},
	{"<", TokenLess},
	{">", TokenGreater},
	{"=", TokenEquals},
	{":", TokenColon},
	{",", TokenComma},
	{".", TokenDot},
	{"!", TokenExclamation},
	{"(", TokenLeftParen},
	{")", TokenRightParen},
	{"[", TokenLeftBracket},
	{"]", TokenRightBracket},
	{"{", TokenLeftBrace},
	{"}", TokenRightBrace},
}

var reservedWords = map[string]TokenType{
	"for":    TokenFor,
	"in":     TokenIn,
	"is":     TokenIs,
	"lambda": TokenLambda,
	"not":    TokenNot,
}

var caseInsensitiveReservedWords = map[string]TokenType{
	"and":     TokenAnd,
	"if":      TokenIf,
	"or":      TokenOr,
	"iserror": TokenIsError,
	"iserr":   TokenIsErr,
}

var unimplementedKeywords = map[string]bool{
	"assert": true, "break": true, "class": true, "continue": true, "def": true,
	"del": true, "elif": true, "else": true, "except": true, "exec": true,
	"finally": true, "from": true, "global": true, "import": true, "pass": true,
	"print": true, "raise": true, "return": true, "try": true, "while": true,
}

// Token represents a lexical token with position information. Value keeps
// any trailing whitespace so that the token stream reproduces the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// Text returns the token value without its trailing whitespace
func (t Token) Text() string {
	return strings.TrimRight(t.Value, " \t")
}

// Whitespace returns the trailing whitespace of the token
func (t Token) Whitespace() string {
	return t.Value[len(t.Text()):]
}

// Lexer tokenizes formula text on demand
type Lexer struct {
	input string
	runes []rune
	pos   int
}

// NewLexer creates a new lexer for the given formula input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		runes: []rune(input),
	}
}

// Tokenize lexes the whole input. the final token is always TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

// Next returns the next token
func (l *Lexer) Next() (Token, error) {
	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	ch := l.current()

	var typ TokenType
	var ok bool
	switch {
	case isDigit(ch) || (ch == charPeriod && isDigit(l.peek(1))):
		typ, ok = l.scanNumber()
	case ch == charQuote || ch == charApostrophe || l.atPrefixedString():
		typ, ok = l.scanString()
	case isAlpha(ch) || ch == charUnderscore || ch == charDollar:
		return l.scanText()
	case ch == charHash:
		typ, ok = l.scanMarker()
	default:
		typ, ok = l.scanOperator()
	}
	if !ok {
		return Token{}, l.unexpectedRemainder(start)
	}
	l.skipWhitespace()
	return Token{Type: typ, Value: l.substring(start, l.pos), Pos: start}, nil
}

func (l *Lexer) unexpectedRemainder(start int) error {
	return &ParseError{
		Position: start + 1,
		Message:  fmt.Sprintf("Error in formula at position %d: unexpected '%s'", start+1, l.substring(start, len(l.runes))),
	}
}

func (l *Lexer) scanNumber() (TokenType, bool) {
	start := l.pos

	// hex
	if l.current() == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') && isHexDigit(l.peek(2)) {
		l.pos += 2
		for isHexDigit(l.current()) {
			l.pos++
		}
		l.skipLongSuffix()
		return TokenNumber, true
	}

	for isDigit(l.current()) {
		l.pos++
	}
	isFloat := false
	if l.current() == charPeriod {
		isFloat = true
		l.pos++
		for isDigit(l.current()) {
			l.pos++
		}
	}
	if ch := l.current(); ch == 'e' || ch == 'E' {
		save := l.pos
		l.pos++
		if l.current() == '+' || l.current() == '-' {
			l.pos++
		}
		if isDigit(l.current()) {
			isFloat = true
			for isDigit(l.current()) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	if ch := l.current(); ch == 'j' || ch == 'J' {
		l.pos++
		return TokenImaginary, true
	}
	if isFloat {
		return TokenNumber, true
	}

	// integers: a leading zero means octal, digits past 7 end the literal
	digits := l.substring(start, l.pos)
	if len(digits) > 1 && digits[0] == '0' {
		end := start + 1
		for end < l.pos && l.runes[end] >= '0' && l.runes[end] <= '7' {
			end++
		}
		l.pos = end
	}
	l.skipLongSuffix()
	return TokenNumber, true
}

func (l *Lexer) skipLongSuffix() {
	if ch := l.current(); ch == 'l' || ch == 'L' {
		if !isAlphaNumeric(l.peek(1)) && l.peek(1) != charUnderscore {
			l.pos++
		}
	}
}

func (l *Lexer) atPrefixedString() bool {
	i := 0
	for i < 2 && strings.ContainsRune("uUrR", l.peek(i)) {
		i++
	}
	if i == 0 {
		return false
	}
	q := l.peek(i)
	return q == charQuote || q == charApostrophe
}

func (l *Lexer) scanString() (TokenType, bool) {
	for strings.ContainsRune("uUrR", l.current()) {
		l.pos++
	}
	quote := l.current()
	triple := l.peek(1) == quote && l.peek(2) == quote
	if triple {
		l.pos += 3
		for l.pos < len(l.runes) {
			if l.current() == charBackslash {
				l.pos += 2
				continue
			}
			if l.current() == quote && l.peek(1) == quote && l.peek(2) == quote {
				l.pos += 3
				return TokenString, true
			}
			l.pos++
		}
		return 0, false
	}

	l.pos++
	for l.pos < len(l.runes) {
		switch l.current() {
		case charBackslash:
			l.pos += 2
			continue
		case charNewline:
			return 0, false
		case quote:
			l.pos++
			return TokenString, true
		}
		l.pos++
	}
	return 0, false
}

// scanText lexes identifiers, keywords and the three reference-like name
// shapes
func (l *Lexer) scanText() (Token, error) {
	start := l.pos
	if l.current() == charDollar {
		l.pos++
		if !isAlpha(l.current()) && l.current() != charUnderscore {
			l.pos = start
			return Token{}, l.unexpectedRemainder(start)
		}
	}
	for isAlphaNumeric(l.current()) || l.current() == charUnderscore || l.current() == charDollar {
		l.pos++
	}
	l.skipWhitespace()
	tok := Token{Value: l.substring(start, l.pos), Pos: start}
	text := tok.Text()
	lower := strings.ToLower(text)

	switch {
	case isCellRefLike(text):
		tok.Type = TokenCellRefLike
	case isColumnRefLike(text):
		tok.Type = TokenColumnRefLike
	case isRowRefLike(text):
		tok.Type = TokenRowRefLike
	case strings.ContainsRune(text, charDollar):
		return Token{}, &ParseError{
			Position: start,
			Message:  fmt.Sprintf("Error in formula at position %d: unexpected '%s'", start, tok.Value),
		}
	case caseInsensitiveReservedWords[lower] != 0:
		tok.Type = caseInsensitiveReservedWords[lower]
	case unimplementedKeywords[lower]:
		return Token{}, &ParseError{
			Position: start,
			Message:  fmt.Sprintf("Error in formula at position %d: '%s' is a reserved word", start, tok.Value),
		}
	default:
		if typ, ok := reservedWords[text]; ok {
			tok.Type = typ
		} else {
			tok.Type = TokenName
		}
	}
	return tok, nil
}

func (l *Lexer) scanMarker() (TokenType, bool) {
	rest := l.substring(l.pos, len(l.runes))
	switch {
	case strings.HasPrefix(rest, "#Invalid!"):
		l.pos += len("#Invalid!")
		return TokenInvalidRef, true
	case strings.HasPrefix(rest, "#Deleted!"):
		l.pos += len("#Deleted!")
		return TokenDeletedRef, true
	}
	return 0, false
}

func (l *Lexer) scanOperator() (TokenType, bool) {
	rest := l.substring(l.pos, min(l.pos+2, len(l.runes)))
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			l.pos += len([]rune(op.text))
			return op.typ, true
		}
	}
	return 0, false
}

// $?[A-Za-z]+$?[1-9][0-9]*
func isCellRefLike(text string) bool {
	i := 0
	if i < len(text) && text[i] == charDollar {
		i++
	}
	letters := i
	for i < len(text) && isAlpha(rune(text[i])) {
		i++
	}
	if i == letters {
		return false
	}
	if i < len(text) && text[i] == charDollar {
		i++
	}
	if i >= len(text) || text[i] < '1' || text[i] > '9' {
		return false
	}
	for i < len(text) && isDigit(rune(text[i])) {
		i++
	}
	return i == len(text)
}

// $?[A-Za-z]+_
func isColumnRefLike(text string) bool {
	if !strings.HasSuffix(text, "_") {
		return false
	}
	body := strings.TrimPrefix(text[:len(text)-1], "$")
	if body == "" {
		return false
	}
	for _, ch := range body {
		if !isAlpha(ch) {
			return false
		}
	}
	return true
}

// _$?[1-9][0-9]*
func isRowRefLike(text string) bool {
	if !strings.HasPrefix(text, "_") {
		return false
	}
	body := strings.TrimPrefix(text[1:], "$")
	if body == "" || body[0] < '1' || body[0] > '9' {
		return false
	}
	for _, ch := range body {
		if !isDigit(ch) {
			return false
		}
	}
	return true
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.current() == charSpace || l.current() == charTab {
		l.pos++
	}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch rune) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isAlphaNumeric(ch rune) bool {
	return isAlpha(ch) || isDigit(ch)
}

// validColumnRef reports whether a column-like token names a real column
func validColumnRef(text string) bool {
	_, ok := grid.ColumnNameToIndex(strings.Trim(strings.TrimSuffix(text, "_"), "$"))
	return ok
}
