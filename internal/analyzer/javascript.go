package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/codescan/internal/store"
)

// JavaScriptAnalyzer serves both JavaScript and TypeScript. It records
// declared functions, functions bound to variables, class names, and
// call-style route registrations such as router.get("/path", handler).
type JavaScriptAnalyzer struct {
	language string
	grammar  *sitter.Language
}

func NewJavaScriptAnalyzer(language string, grammar *sitter.Language) *JavaScriptAnalyzer {
	return &JavaScriptAnalyzer{language: language, grammar: grammar}
}

func (a *JavaScriptAnalyzer) Language() string { return a.language }

func (a *JavaScriptAnalyzer) Extract(ctx context.Context, src []byte) (*store.AnalysisResult, error) {
	tree, err := parse(ctx, a.grammar, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	res := store.NewResult(a.language)
	walk(tree.RootNode(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration":
			res.Functions = append(res.Functions, fieldText(n, "name", src))
		case "variable_declarator":
			name := n.ChildByFieldName("name")
			value := n.ChildByFieldName("value")
			if name != nil && name.Type() == "identifier" && value != nil && isFunctionValue(value) {
				res.Functions = append(res.Functions, name.Content(src))
			}
		case "class_declaration", "abstract_class_declaration":
			res.Classes.Declare(fieldText(n, "name", src))
		case "call_expression":
			if rb, ok := jsRoute(n, src); ok {
				res.Routes = append(res.Routes, rb)
			}
		}
		return true
	})
	return res, nil
}

func isFunctionValue(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

// jsRoute matches <object>.<verb>(path, ...). Receivers built by another
// call, as in router.route("/x").get(h), are not recognised.
func jsRoute(call *sitter.Node, src []byte) (store.RouteBinding, bool) {
	callee := call.ChildByFieldName("function")
	if callee == nil || callee.Type() != "member_expression" {
		return store.RouteBinding{}, false
	}
	verb := strings.ToLower(fieldText(callee, "property", src))
	if !httpVerbs[verb] {
		return store.RouteBinding{}, false
	}
	object := callee.ChildByFieldName("object")
	if object == nil || !isPlainReceiver(object) {
		return store.RouteBinding{}, false
	}

	rb := store.RouteBinding{
		Object: object.Content(src),
		Method: strings.ToUpper(verb),
		Path:   store.DefaultRoutePath,
	}
	args := namedChildren(call.ChildByFieldName("arguments"))
	if len(args) > 0 && args[0].Type() == "string" {
		if s, ok := trimQuotes(args[0].Content(src)); ok {
			rb.Path = s
		}
	}
	return rb, true
}

// isPlainReceiver accepts identifiers, this, and property chains of them.
func isPlainReceiver(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "this":
		return true
	case "member_expression":
		object := n.ChildByFieldName("object")
		return object != nil && isPlainReceiver(object)
	}
	return false
}
