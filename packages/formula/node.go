package formula

import (
	"fmt"
	"strings"
)

// Kind identifies the production a Node was built from
type Kind int

const (
	KindToken Kind = iota
	KindRoot
	KindLambda
	KindVarArgsList
	KindOr
	KindAnd
	KindNot
	KindComparison
	KindCompOperator
	KindBitOr
	KindConcat
	KindShift
	KindArith
	KindTerm
	KindPercent
	KindFactor
	KindPower
	KindReference
	KindTrailer
	KindAtom
	KindNumber
	KindString
	KindName
	KindTestList
	KindExprList
	KindListComp
	KindListFor
	KindListIf
	KindGenerator
	KindGenFor
	KindGenIf
	KindDictMaker
	KindArgList
	KindKeywordArgument
	KindStarArgument
	KindSubscriptList
	KindSlice
	KindIfFunction
	KindAndFunction
	KindOrFunction
	KindIsErrorFunction
	KindIsErrFunction
	KindCellReference
	KindCellRange
	KindColumnReference
	KindRowReference
	KindInvalidReference
	KindDeletedReference
)

var kindNames = map[Kind]string{
	KindToken:            "Token",
	KindRoot:             "Root",
	KindLambda:           "Lambda",
	KindVarArgsList:      "VarArgsList",
	KindOr:               "Or",
	KindAnd:              "And",
	KindNot:              "Not",
	KindComparison:       "Comparison",
	KindCompOperator:     "CompOperator",
	KindBitOr:            "BitOr",
	KindConcat:           "Concat",
	KindShift:            "Shift",
	KindArith:            "Arith",
	KindTerm:             "Term",
	KindPercent:          "Percent",
	KindFactor:           "Factor",
	KindPower:            "Power",
	KindReference:        "Reference",
	KindTrailer:          "Trailer",
	KindAtom:             "Atom",
	KindNumber:           "Number",
	KindString:           "String",
	KindName:             "Name",
	KindTestList:         "TestList",
	KindExprList:         "ExprList",
	KindListComp:         "ListComp",
	KindListFor:          "ListFor",
	KindListIf:           "ListIf",
	KindGenerator:        "Generator",
	KindGenFor:           "GenFor",
	KindGenIf:            "GenIf",
	KindDictMaker:        "DictMaker",
	KindArgList:          "ArgList",
	KindKeywordArgument:  "KeywordArgument",
	KindStarArgument:     "StarArgument",
	KindSubscriptList:    "SubscriptList",
	KindSlice:            "Slice",
	KindIfFunction:       "IfFunction",
	KindAndFunction:      "AndFunction",
	KindOrFunction:       "OrFunction",
	KindIsErrorFunction:  "IsErrorFunction",
	KindIsErrFunction:    "IsErrFunction",
	KindCellReference:    "CellReference",
	KindCellRange:        "CellRange",
	KindColumnReference:  "ColumnReference",
	KindRowReference:     "RowReference",
	KindInvalidReference: "InvalidReference",
	KindDeletedReference: "DeletedReference",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is one element of the lossless parse tree. leaves are KindToken
// nodes carrying the token text including trailing whitespace.
type Node struct {
	Kind     Kind
	Type     TokenType // leaves only
	Text     string    // leaves only
	Children []*Node
}

func leaf(tok Token) *Node {
	return &Node{Kind: KindToken, Type: tok.Type, Text: tok.Value}
}

func branch(kind Kind, children ...*Node) *Node {
	return &Node{Kind: kind, Children: children}
}

// Flatten reproduces the exact source text covered by the node
func (n *Node) Flatten() string {
	var sb strings.Builder
	n.flattenInto(&sb)
	return sb.String()
}

func (n *Node) flattenInto(sb *strings.Builder) {
	if n.Kind == KindToken {
		sb.WriteString(n.Text)
		return
	}
	for _, child := range n.Children {
		child.flattenInto(sb)
	}
}

// Walk visits n and its descendants depth first, in source order. returning
// false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// String renders the tree structure, mostly for tests and debugging
func (n *Node) String() string {
	if n.Kind == KindToken {
		return fmt.Sprintf("%q", n.Text)
	}
	parts := make([]string, len(n.Children))
	for i, child := range n.Children {
		parts[i] = child.String()
	}
	return fmt.Sprintf("%s(%s)", n.Kind, strings.Join(parts, ", "))
}

// trailingWhitespace returns the whitespace after the last token under n
func (n *Node) trailingWhitespace() string {
	text := n.Flatten()
	return text[len(strings.TrimRight(text, " \t")):]
}

// ParseError reports a formula that could not be parsed. Position is the
// character index reported in Message.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return e.Message
}

// errIncomplete is returned when the formula ends early
var errIncomplete = &ParseError{Position: -1, Message: "Possibly incomplete formula"}
