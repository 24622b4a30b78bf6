package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/codescan/internal/store"
)

// PythonAnalyzer extracts facts from Python source. Unlike the other
// grammar-based analyzers it is strict: any syntax error fails the file.
type PythonAnalyzer struct {
	grammar *sitter.Language
}

func NewPythonAnalyzer(grammar *sitter.Language) *PythonAnalyzer {
	return &PythonAnalyzer{grammar: grammar}
}

func (a *PythonAnalyzer) Language() string { return "python" }

// Extract records every function definition at any depth (methods and
// nested helpers included), every class with the functions defined directly
// in its body, and a route for each HTTP-verb decorator.
func (a *PythonAnalyzer) Extract(ctx context.Context, src []byte) (*store.AnalysisResult, error) {
	tree, err := parse(ctx, a.grammar, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root)
	}

	res := store.NewResult(a.Language())
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition":
			name := fieldText(n, "name", src)
			res.Functions = append(res.Functions, name)
			for _, dec := range pythonDecorators(n) {
				res.Routes = append(res.Routes, pythonRoutes(dec, name, src)...)
			}
		case "class_definition":
			name := fieldText(n, "name", src)
			res.Classes.Declare(name)
			for _, m := range pythonMethods(n, src) {
				res.Classes.AddMethod(name, m)
			}
		}
		return true
	})
	return res, nil
}

// pythonDecorators returns the decorators applied to a function definition
// in source order.
func pythonDecorators(fn *sitter.Node) []*sitter.Node {
	if !parentIs(fn, "decorated_definition") {
		return nil
	}
	var decs []*sitter.Node
	for _, child := range namedChildren(fn.Parent()) {
		if child.Type() == "decorator" {
			decs = append(decs, child)
		}
	}
	return decs
}

// pythonMethods returns the names of functions defined directly in a class
// body, decorated or not.
func pythonMethods(class *sitter.Node, src []byte) []string {
	var names []string
	for _, stmt := range namedChildren(class.ChildByFieldName("body")) {
		def := stmt
		if stmt.Type() == "decorated_definition" {
			def = stmt.ChildByFieldName("definition")
		}
		if def != nil && def.Type() == "function_definition" {
			names = append(names, fieldText(def, "name", src))
		}
	}
	return names
}

// pythonRoutes turns a decorator of the form @<obj>.<verb>(...) into one
// binding per HTTP method. The path is the first positional argument when
// it is a plain string literal. A literal list passed as methods= replaces
// the default method, which is the verb itself.
func pythonRoutes(dec *sitter.Node, function string, src []byte) []store.RouteBinding {
	exprs := namedChildren(dec)
	if len(exprs) == 0 || exprs[0].Type() != "call" {
		return nil
	}
	call := exprs[0]
	callee := call.ChildByFieldName("function")
	if callee == nil || callee.Type() != "attribute" {
		return nil
	}
	verb := strings.ToLower(fieldText(callee, "attribute", src))
	if !httpVerbs[verb] {
		return nil
	}

	path := store.DefaultRoutePath
	methods := []string{strings.ToUpper(verb)}
	positional := 0
	for _, arg := range namedChildren(call.ChildByFieldName("arguments")) {
		switch arg.Type() {
		case "keyword_argument":
			if fieldText(arg, "name", src) != "methods" {
				continue
			}
			if list := arg.ChildByFieldName("value"); list != nil && list.Type() == "list" {
				methods = methods[:0]
				for _, elt := range namedChildren(list) {
					if s, ok := pythonStringValue(elt, src); ok {
						methods = append(methods, strings.ToUpper(s))
					}
				}
			}
		case "list_splat", "dictionary_splat":
		default:
			if positional == 0 {
				if s, ok := pythonStringValue(arg, src); ok {
					path = s
				}
			}
			positional++
		}
	}

	routes := make([]store.RouteBinding, 0, len(methods))
	for _, m := range methods {
		routes = append(routes, store.RouteBinding{Function: function, Method: m, Path: path})
	}
	return routes
}
