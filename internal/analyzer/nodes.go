package analyzer

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// httpVerbs are the attribute or method names recognised as route
// registrations.
var httpVerbs = map[string]bool{
	"route":  true,
	"get":    true,
	"post":   true,
	"put":    true,
	"delete": true,
	"patch":  true,
}

// parse runs tree-sitter over src. The caller must Close the tree.
func parse(ctx context.Context, grammar *sitter.Language, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("analyzer: parse: %w", err)
	}
	return tree, nil
}

// walk visits n and its named descendants in pre-order. Returning false from
// fn skips the node's children.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

// fieldText returns the source text of n's child for field, or "".
func fieldText(n *sitter.Node, field string, src []byte) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content(src)
}

// namedChildren returns n's named children, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// parentIs reports whether n's parent has type typ.
func parentIs(n *sitter.Node, typ string) bool {
	p := n.Parent()
	return p != nil && p.Type() == typ
}

// syntaxError describes the first ERROR or MISSING node under root.
func syntaxError(root *sitter.Node) error {
	var bad *sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if bad != nil || n == nil || !n.HasError() && !n.IsMissing() {
			return
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			bad = n
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	if bad == nil {
		return ErrSyntax
	}
	p := bad.StartPoint()
	return fmt.Errorf("%w at line %d column %d", ErrSyntax, p.Row+1, p.Column+1)
}

// trimQuotes strips one matching pair of surrounding quotes.
func trimQuotes(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '"' && q != '\'' && q != '`') || s[len(s)-1] != q {
		return "", false
	}
	return s[1 : len(s)-1], true
}

// pythonStringValue returns the value of a Python string literal node.
// Formatted strings and bytes literals are not plain strings.
func pythonStringValue(n *sitter.Node, src []byte) (string, bool) {
	switch n.Type() {
	case "string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "interpolation" {
				return "", false
			}
		}
		return unquotePython(n.Content(src))
	case "concatenated_string":
		var b strings.Builder
		for _, part := range namedChildren(n) {
			s, ok := pythonStringValue(part, src)
			if !ok {
				return "", false
			}
			b.WriteString(s)
		}
		return b.String(), true
	}
	return "", false
}

func unquotePython(lit string) (string, bool) {
	i := strings.IndexAny(lit, `'"`)
	if i < 0 {
		return "", false
	}
	prefix := strings.ToLower(lit[:i])
	if strings.ContainsAny(prefix, "fb") {
		return "", false
	}
	body := lit[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			return body[len(q) : len(body)-len(q)], true
		}
	}
	return "", false
}
