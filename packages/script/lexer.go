package script

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// tokenKind represents different types of tokens in source code
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokKeyword
	tokInt
	tokFloat
	tokString
	tokOp
)

var keywords = map[string]bool{
	"and": true, "as": true, "assert": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
	"None": true, "True": true, "False": true,
}

// operators ordered so that longer spellings win
var scriptOperators = []string{
	"**=", "//=", ">>=", "<<=",
	"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "<>",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"+", "-", "*", "/", "%", "&", "|", "^", "~", "<", ">",
	"(", ")", "[", "]", "{", "}", ",", ":", ".", ";", "=", "@",
}

// token is a lexical token with its position. Col is the 1-based character
// offset within the line.
type token struct {
	kind  tokenKind
	value string
	str   string // decoded contents of string literals
	line  int
	col   int
}

func (t token) is(kind tokenKind, value string) bool {
	return t.kind == kind && t.value == value
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "newline"
	case tokIndent:
		return "indent"
	case tokDedent:
		return "dedent"
	}
	return t.value
}

// lexer splits source into tokens, tracking indentation the way the
// language requires. in expression mode indentation and newlines are
// ignored.
type lexer struct {
	src      []rune
	pos      int
	line     int
	lineHead int // position where the current line starts

	exprMode bool
	depth    int // bracket nesting
	indents  []int
	atLine   bool
	flushed  bool
	pending  []token
}

func newLexer(src string, exprMode bool) *lexer {
	return &lexer{
		src:      []rune(src),
		line:     1,
		exprMode: exprMode,
		indents:  []int{0},
		atLine:   !exprMode,
	}
}

// tokenize lexes the whole input
func (l *lexer) tokenize() ([]token, error) {
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) syntaxError(msg string, line, col int) error {
	return newSyntaxError(msg, line, col)
}

func (l *lexer) col() int {
	return l.pos - l.lineHead + 1
}

func (l *lexer) current() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peek(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) newline() {
	l.pos++
	l.line++
	l.lineHead = l.pos
}

func (l *lexer) next() (token, error) {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok, nil
	}

	if l.atLine {
		l.atLine = false
		if err := l.indentation(); err != nil {
			return token{}, err
		}
		if len(l.pending) > 0 {
			return l.next()
		}
	}

	// skip spaces, comments and line continuations
	for {
		ch := l.current()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\f' || ch == '\r':
			l.pos++
			continue
		case ch == '#':
			for l.pos < len(l.src) && l.current() != '\n' {
				l.pos++
			}
			continue
		case ch == '\\' && l.peek(1) == '\n':
			l.pos++
			l.newline()
			continue
		case ch == '\n' && (l.depth > 0 || l.exprMode):
			l.newline()
			continue
		}
		break
	}

	line, col := l.line, l.col()
	if l.pos >= len(l.src) {
		return l.eof(line, col), nil
	}

	ch := l.current()
	switch {
	case ch == '\n':
		l.newline()
		l.atLine = true
		return token{kind: tokNewline, value: "\n", line: line, col: col}, nil
	case isDigit(ch) || (ch == '.' && isDigit(l.peek(1))):
		return l.scanNumber(line, col)
	case l.atString():
		return l.scanString(line, col)
	case isIdentStart(ch):
		start := l.pos
		for isIdentPart(l.current()) {
			l.pos++
		}
		word := string(l.src[start:l.pos])
		if keywords[word] {
			return token{kind: tokKeyword, value: word, line: line, col: col}, nil
		}
		return token{kind: tokName, value: word, line: line, col: col}, nil
	}

	rest := string(l.src[l.pos:min(l.pos+3, len(l.src))])
	for _, op := range scriptOperators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			switch op {
			case "(", "[", "{":
				l.depth++
			case ")", "]", "}":
				if l.depth > 0 {
					l.depth--
				}
			}
			return token{kind: tokOp, value: op, line: line, col: col}, nil
		}
	}
	return token{}, l.syntaxError("invalid syntax", line, col)
}

// eof flushes a final newline and any open indentation
func (l *lexer) eof(line, col int) token {
	if l.exprMode || l.flushed {
		return token{kind: tokEOF, line: line, col: col}
	}
	l.flushed = true
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.pending = append(l.pending, token{kind: tokDedent, line: line, col: col})
	}
	l.pending = append(l.pending, token{kind: tokEOF, line: line, col: col})
	return token{kind: tokNewline, value: "\n", line: line, col: col}
}

// indentation measures the leading whitespace of a logical line, skipping
// blank and comment-only lines, and queues INDENT/DEDENT tokens
func (l *lexer) indentation() error {
	for {
		width := 0
	scan:
		for {
			switch l.current() {
			case ' ':
				width++
			case '\t':
				width = (width/8 + 1) * 8
			case '\f', '\r':
			default:
				break scan
			}
			l.pos++
		}
		switch l.current() {
		case '#':
			for l.pos < len(l.src) && l.current() != '\n' {
				l.pos++
			}
			fallthrough
		case '\n':
			if l.pos < len(l.src) {
				l.newline()
				continue
			}
			return nil
		case 0:
			if l.pos >= len(l.src) {
				return nil
			}
		}

		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			l.pending = append(l.pending, token{kind: tokIndent, line: l.line, col: 1})
		case width < top:
			for width < l.indents[len(l.indents)-1] {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, token{kind: tokDedent, line: l.line, col: l.col()})
			}
			if width != l.indents[len(l.indents)-1] {
				return l.syntaxError("unindent does not match any outer indentation level", l.line, l.col())
			}
		}
		return nil
	}
}

func (l *lexer) scanNumber(line, col int) (token, error) {
	start := l.pos
	ch, next := l.current(), l.peek(1)

	if ch == '0' && strings.ContainsRune("xXoObB", next) {
		base := map[rune]int{'x': 16, 'X': 16, 'o': 8, 'O': 8, 'b': 2, 'B': 2}[next]
		l.pos += 2
		digitsStart := l.pos
		for isAlphaNum(l.current()) {
			l.pos++
		}
		digits := strings.TrimRight(string(l.src[digitsStart:l.pos]), "lL")
		n, err := strconv.ParseInt(digits, base, 64)
		if err != nil {
			return token{}, l.syntaxError("invalid syntax", line, col)
		}
		return token{kind: tokInt, value: strconv.FormatInt(n, 10), line: line, col: col}, nil
	}

	isFloat := false
	for isDigit(l.current()) {
		l.pos++
	}
	if l.current() == '.' {
		isFloat = true
		l.pos++
		for isDigit(l.current()) {
			l.pos++
		}
	}
	if c := l.current(); c == 'e' || c == 'E' {
		save := l.pos
		l.pos++
		if c := l.current(); c == '+' || c == '-' {
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
	text := string(l.src[start:l.pos])
	if c := l.current(); c == 'j' || c == 'J' {
		return token{}, l.syntaxError("complex numbers are not supported", line, col)
	}
	if isFloat {
		return token{kind: tokFloat, value: text, line: line, col: col}, nil
	}
	if c := l.current(); c == 'l' || c == 'L' {
		l.pos++
	}
	if len(text) > 1 && text[0] == '0' {
		// legacy octal
		n, err := strconv.ParseInt(text, 8, 64)
		if err != nil {
			return token{}, l.syntaxError("invalid token", line, col)
		}
		return token{kind: tokInt, value: strconv.FormatInt(n, 10), line: line, col: col}, nil
	}
	return token{kind: tokInt, value: text, line: line, col: col}, nil
}

// atString reports whether a string literal, possibly prefixed, starts here
func (l *lexer) atString() bool {
	i := 0
	for i < 2 && strings.ContainsRune("rRuUbB", l.peek(i)) {
		i++
	}
	q := l.peek(i)
	return q == '"' || q == '\''
}

func (l *lexer) scanString(line, col int) (token, error) {
	start := l.pos
	raw := false
	for strings.ContainsRune("rRuUbB", l.current()) {
		if l.current() == 'r' || l.current() == 'R' {
			raw = true
		}
		l.pos++
	}
	quote := l.current()
	triple := l.peek(1) == quote && l.peek(2) == quote
	if triple {
		l.pos += 3
	} else {
		l.pos++
	}

	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			msg := "EOL while scanning string literal"
			if triple {
				msg = "EOF while scanning triple-quoted string literal"
			}
			return token{}, l.syntaxError(msg, line, col)
		}
		ch := l.current()
		if ch == quote {
			if !triple {
				l.pos++
				break
			}
			if l.peek(1) == quote && l.peek(2) == quote {
				l.pos += 3
				break
			}
		}
		if ch == '\n' {
			if !triple {
				return token{}, l.syntaxError("EOL while scanning string literal", line, col)
			}
			sb.WriteRune(ch)
			l.newline()
			continue
		}
		if ch == '\\' {
			if raw {
				sb.WriteRune(ch)
				l.pos++
				if l.pos < len(l.src) {
					if l.current() == '\n' {
						sb.WriteRune('\n')
						l.newline()
					} else {
						sb.WriteRune(l.current())
						l.pos++
					}
				}
				continue
			}
			if err := l.escape(&sb, line, col); err != nil {
				return token{}, err
			}
			continue
		}
		sb.WriteRune(ch)
		l.pos++
	}
	return token{kind: tokString, value: string(l.src[start:l.pos]), str: sb.String(), line: line, col: col}, nil
}

var simpleEscapes = map[rune]rune{
	'n': '\n', 't': '\t', 'r': '\r', '\\': '\\', '\'': '\'', '"': '"',
	'a': '\a', 'b': '\b', 'f': '\f', 'v': '\v', '0': 0,
}

func (l *lexer) escape(sb *strings.Builder, line, col int) error {
	l.pos++ // backslash
	ch := l.current()
	if ch == '\n' {
		l.newline()
		return nil
	}
	if r, ok := simpleEscapes[ch]; ok && !(ch == '0' && isDigit(l.peek(1))) {
		sb.WriteRune(r)
		l.pos++
		return nil
	}

	width := 0
	switch ch {
	case 'x':
		width = 2
	case 'u':
		width = 4
	case 'U':
		width = 8
	}
	if width == 0 {
		if ch >= '0' && ch <= '7' {
			end := l.pos
			for end < len(l.src) && end < l.pos+3 && l.src[end] >= '0' && l.src[end] <= '7' {
				end++
			}
			n, _ := strconv.ParseInt(string(l.src[l.pos:end]), 8, 32)
			sb.WriteRune(rune(n))
			l.pos = end
			return nil
		}
		// unknown escapes keep the backslash
		sb.WriteRune('\\')
		return nil
	}
	if l.pos+1+width > len(l.src) {
		return l.syntaxError("truncated \\"+string(ch)+" escape", line, col)
	}
	digits := string(l.src[l.pos+1 : l.pos+1+width])
	n, err := strconv.ParseUint(digits, 16, 32)
	if err != nil || !utf8.ValidRune(rune(n)) {
		return l.syntaxError(fmt.Sprintf("truncated \\%c escape", ch), line, col)
	}
	sb.WriteRune(rune(n))
	l.pos += 1 + width
	return nil
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isAlphaNum(ch rune) bool {
	return isIdentPart(ch) && ch != '_'
}
