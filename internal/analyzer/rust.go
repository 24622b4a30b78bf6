package analyzer

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/codescan/internal/store"
)

// RustAnalyzer extracts free functions, struct names and impl methods.
// It tolerates syntax errors and reports whatever the partial tree holds.
type RustAnalyzer struct {
	grammar *sitter.Language
}

func NewRustAnalyzer(grammar *sitter.Language) *RustAnalyzer {
	return &RustAnalyzer{grammar: grammar}
}

func (a *RustAnalyzer) Language() string { return "rust" }

func (a *RustAnalyzer) Extract(ctx context.Context, src []byte) (*store.AnalysisResult, error) {
	tree, err := parse(ctx, a.grammar, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	res := store.NewResult(a.Language())
	walk(tree.RootNode(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_item":
			if !isImplMember(n) {
				res.Functions = append(res.Functions, fieldText(n, "name", src))
			}
		case "struct_item":
			res.Classes.Declare(fieldText(n, "name", src))
		case "impl_item":
			typeName := rustTypeName(n.ChildByFieldName("type"), src)
			if typeName == "" {
				return true
			}
			res.Classes.Declare(typeName)
			for _, item := range namedChildren(n.ChildByFieldName("body")) {
				if item.Type() == "function_item" {
					res.Classes.AddMethod(typeName, fieldText(item, "name", src))
				}
			}
		}
		return true
	})
	return res, nil
}

// isImplMember reports whether fn sits directly in an impl block's body.
func isImplMember(fn *sitter.Node) bool {
	body := fn.Parent()
	if body == nil || body.Type() != "declaration_list" {
		return false
	}
	return parentIs(body, "impl_item")
}

// rustTypeName returns the bare name of an impl target, dropping generic
// arguments and module paths.
func rustTypeName(t *sitter.Node, src []byte) string {
	if t == nil {
		return ""
	}
	switch t.Type() {
	case "generic_type":
		return rustTypeName(t.ChildByFieldName("type"), src)
	case "scoped_type_identifier":
		return fieldText(t, "name", src)
	}
	return t.Content(src)
}
