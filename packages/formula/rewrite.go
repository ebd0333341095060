package formula

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// Compiled is a formula translated to a host-language expression
type Compiled struct {
	Source       string
	Dependencies []grid.Location
}

// errBadReference stops a rewrite that reaches an invalid or deleted marker
type errBadReference struct {
	marker string
}

func (e *errBadReference) Error() string {
	return e.marker + " cell reference in formula"
}

// Compile parses a formula and rewrites it to host source. a formula that
// fails to parse still compiles, to an expression raising FormulaError,
// and the parse error is returned alongside it.
func Compile(formula string) (Compiled, error) {
	root, err := Parse(formula)
	if err != nil {
		return Compiled{Source: raiseFormulaError(err.Error())}, err
	}
	return CompileTree(root), nil
}

// CompileTree rewrites an already parsed formula
func CompileTree(root *Node) Compiled {
	deps := Dependencies(root)

	var sb strings.Builder
	if err := rewriteInto(&sb, root, false); err != nil {
		var bad *errBadReference
		if errors.As(err, &bad) {
			return Compiled{Source: raiseFormulaError(bad.Error())}
		}
		return Compiled{Source: raiseFormulaError(err.Error())}
	}
	source := sb.String()
	// drop the leading "=", keep whatever whitespace followed it
	return Compiled{Source: source[1:], Dependencies: deps}
}

var messageEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func raiseFormulaError(msg string) string {
	return `_raise(FormulaError("` + messageEscaper.Replace(msg) + `"))`
}

// Dependencies lists every location the formula reads: cell references
// and each cell of each range, columns before rows. duplicates are
// dropped, keeping first appearance.
func Dependencies(root *Node) []grid.Location {
	var deps []grid.Location
	seen := make(map[grid.Location]bool)
	add := func(loc grid.Location) {
		if !seen[loc] {
			seen[loc] = true
			deps = append(deps, loc)
		}
	}
	root.Walk(func(n *Node) bool {
		switch n.Kind {
		case KindCellReference:
			ref, _ := n.CellRef()
			add(ref.Coords())
			return false
		case KindCellRange:
			r, _ := n.Range()
			first, second, ok := r.Coords()
			if !ok {
				return false
			}
			left, right := min(first.Col, second.Col), max(first.Col, second.Col)
			top, bottom := min(first.Row, second.Row), max(first.Row, second.Row)
			for c := left; c <= right; c++ {
				for row := top; row <= bottom; row++ {
					add(grid.Loc(c, row))
				}
			}
			return false
		}
		return true
	})
	return deps
}

// rewriteInto writes the host form of n. inComparison marks operators
// directly under a comparison, where "=" means equality.
func rewriteInto(sb *strings.Builder, n *Node, inComparison bool) error {
	switch n.Kind {
	case KindToken:
		sb.WriteString(rewriteToken(n, inComparison))
		return nil

	case KindInvalidReference:
		return &errBadReference{marker: invalidMarker}

	case KindDeletedReference:
		return &errBadReference{marker: deletedMarker}

	case KindCellReference:
		ref, _ := n.CellRef()
		loc := ref.Coords()
		fmt.Fprintf(sb, "worksheet[(%d, %d)].value%s", loc.Col, loc.Row, n.trailingWhitespace())
		return nil

	case KindCellRange:
		r, _ := n.Range()
		for _, corner := range []*Node{r.First(), r.Second()} {
			switch corner.Kind {
			case KindInvalidReference:
				return &errBadReference{marker: invalidMarker}
			case KindDeletedReference:
				return &errBadReference{marker: deletedMarker}
			}
		}
		first, second, _ := r.Coords()
		fmt.Fprintf(sb, "CellRange(worksheet, (%d, %d), (%d, %d))%s",
			first.Col, first.Row, second.Col, second.Row, n.trailingWhitespace())
		return nil

	case KindCompOperator:
		for _, child := range n.Children {
			if err := rewriteInto(sb, child, true); err != nil {
				return err
			}
		}
		return nil

	case KindPercent:
		sb.WriteString("(")
		if err := rewriteInto(sb, n.Children[0], false); err != nil {
			return err
		}
		sb.WriteString(" / 100)")
		sb.WriteString(n.Children[1].trailingWhitespace())
		return nil

	case KindIfFunction:
		return rewriteIf(sb, n)

	case KindAndFunction, KindOrFunction:
		name := "all_of"
		if n.Kind == KindOrFunction {
			name = "any_of"
		}
		sb.WriteString(name + n.Children[0].trailingWhitespace())
		for _, child := range n.Children[1:] {
			if err := rewriteInto(sb, child, false); err != nil {
				return err
			}
		}
		return nil

	case KindIsErrorFunction, KindIsErrFunction:
		// name ( arg )
		sb.WriteString("iserror(lambda: (")
		if err := rewriteInto(sb, n.Children[2], false); err != nil {
			return err
		}
		sb.WriteString("))")
		sb.WriteString(n.Children[3].trailingWhitespace())
		return nil
	}

	for _, child := range n.Children {
		if err := rewriteInto(sb, child, false); err != nil {
			return err
		}
	}
	return nil
}

// rewriteIf turns IF(c, a[, [b]]) into a conditional expression
func rewriteIf(sb *strings.Builder, n *Node) error {
	// IF ( cond , then [, [else]] )
	var args []*Node
	for _, child := range n.Children[2 : len(n.Children)-1] {
		if child.Kind == KindToken && child.Type == TokenComma {
			continue
		}
		args = append(args, child)
	}

	part := func(arg *Node) (string, error) {
		var inner strings.Builder
		if err := rewriteInto(&inner, arg, false); err != nil {
			return "", err
		}
		return inner.String(), nil
	}
	cond, err := part(args[0])
	if err != nil {
		return err
	}
	then, err := part(args[1])
	if err != nil {
		return err
	}
	otherwise := "False"
	if len(args) > 2 {
		if otherwise, err = part(args[2]); err != nil {
			return err
		}
	}
	fmt.Fprintf(sb, "((%s) if (%s) else (%s))%s", then, cond, otherwise, n.Children[len(n.Children)-1].trailingWhitespace())
	return nil
}

func rewriteToken(n *Node, inComparison bool) string {
	ws := n.trailingWhitespace()
	switch n.Type {
	case TokenArrow:
		return ":" + ws
	case TokenColonEquals:
		return "=" + ws
	case TokenCircumflex:
		return "**" + ws
	case TokenModInterp:
		return "%" + ws
	case TokenObsoleteUnequal:
		return "!=" + ws
	case TokenEquals:
		if inComparison {
			return "==" + ws
		}
	case TokenNumber:
		return rewriteNumber(strings.TrimRight(n.Text, " \t")) + ws
	}
	return n.Text
}

// rewriteNumber normalises integer literals: long suffixes are dropped and
// leading-zero octal gets an explicit 0o prefix
func rewriteNumber(text string) string {
	text = strings.TrimRight(text, "lL")
	if len(text) > 1 && text[0] == '0' && !strings.ContainsAny(text, ".eExX") {
		return "0o" + text[1:]
	}
	return text
}
