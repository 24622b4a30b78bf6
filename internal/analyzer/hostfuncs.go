package analyzer

import (
	"context"
	"strings"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/risor-io/risor/object"
	"github.com/sirupsen/logrus"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/codescan/internal/store"
)

// sourceStore tracks source bytes and grammar for each tree parsed during
// one script run. node_text and query need to recover them from a Node, but
// smacker/go-tree-sitter doesn't expose Node.Tree(), so entries are keyed by
// root node pointer and found again by walking up Parent().
//
// A sourceStore belongs to a single Extract call and is not shared between
// goroutines.
type sourceStore struct {
	sources map[uintptr][]byte
	langs   map[uintptr]*sitter.Language
	trees   []*sitter.Tree
}

func newSourceStore() *sourceStore {
	return &sourceStore{
		sources: make(map[uintptr][]byte),
		langs:   make(map[uintptr]*sitter.Language),
	}
}

func (s *sourceStore) store(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.sources[key] = src
	s.langs[key] = lang
	s.trees = append(s.trees, tree)
}

// close releases every tree parsed during the run.
func (s *sourceStore) close() {
	for _, t := range s.trees {
		t.Close()
	}
	s.trees = nil
}

// rootOf walks a node up to its root via Parent().
func rootOf(node *sitter.Node) *sitter.Node {
	for node.Parent() != nil {
		node = node.Parent()
	}
	return node
}

func (s *sourceStore) sourceForNode(node *sitter.Node) ([]byte, bool) {
	src, ok := s.sources[uintptr(unsafe.Pointer(rootOf(node)))]
	return src, ok
}

func (s *sourceStore) languageForNode(node *sitter.Node) (*sitter.Language, bool) {
	lang, ok := s.langs[uintptr(unsafe.Pointer(rootOf(node)))]
	return lang, ok
}

// queryKey identifies a compiled query.
type queryKey struct {
	lang    *sitter.Language
	pattern string
}

// queryCache shares compiled tree-sitter queries across script runs.
// Compiled queries are immutable and safe to execute from several cursors
// at once; evicted entries are left to the garbage collector because a
// concurrent run may still hold them.
type queryCache struct {
	lru *lru.Cache[queryKey, *sitter.Query]
}

func newQueryCache(size int) *queryCache {
	c, err := lru.New[queryKey, *sitter.Query](size)
	if err != nil {
		panic(err)
	}
	return &queryCache{lru: c}
}

func (c *queryCache) compile(pattern string, lang *sitter.Language) (*sitter.Query, error) {
	key := queryKey{lang: lang, pattern: pattern}
	if q, ok := c.lru.Get(key); ok {
		return q, nil
	}
	q, err := sitter.NewQuery([]byte(pattern), lang)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, q)
	return q, nil
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, arg object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// stringArgs unwraps string arguments.
func stringArgs(fn string, args []object.Object) ([]string, *object.Error) {
	out := make([]string, len(args))
	for i, arg := range args {
		s, ok := arg.(*object.String)
		if !ok {
			return nil, object.Errorf("%s: argument %d must be a string, got %s", fn, i+1, arg.Type())
		}
		out[i] = s.Value()
	}
	return out, nil
}

// makeParseSrcFn creates "parse_src".
//
// parse_src(source, language) → root Node
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		strs, errObj := stringArgs("parse_src", args)
		if errObj != nil {
			return errObj
		}

		lang, found := GrammarForLanguage(strs[1])
		if !found {
			return object.Errorf("parse_src: unsupported language %q", strs[1])
		}
		src := []byte(strs[0])
		tree, err := parse(ctx, lang, src)
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		ss.store(tree, src, lang)

		proxy, err := object.NewProxy(tree.RootNode())
		if err != nil {
			return object.Errorf("parse_src: proxy error: %v", err)
		}
		return proxy
	})
}

// makeNodeTextFn creates "node_text".
//
// node_text(node) → string
//
// Exists because Risor's proxy system cannot convert strings to []byte
// for node.Content([]byte).
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, found := ss.sourceForNode(node)
		if !found {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(src))
	})
}

// makeNodeChildFn creates "node_child", a wrapper for ChildByFieldName that
// returns Risor nil instead of a proxied Go nil pointer.
//
// node_child(node, fieldName) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("node_child: field must be a string, got %s", args[1].Type())
		}
		child := node.ChildByFieldName(field.Value())
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: proxy error: %v", err)
		}
		return p
	})
}

// makeQueryFn creates "query".
//
// query(pattern, node) → []map[string]Node
//
// Each map has capture names as keys and proxied Nodes as values.
func makeQueryFn(ss *sourceStore, qc *queryCache) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("query: pattern must be a string, got %s", args[0].Type())
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		lang, found := ss.languageForNode(node)
		if !found {
			return object.Errorf("query: no language found for node's tree")
		}
		src, _ := ss.sourceForNode(node)

		q, err := qc.compile(pattern.Value(), lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)

			matchMap := make(map[string]object.Object)
			for _, capture := range match.Captures {
				name := q.CaptureNameForId(capture.Index)
				nodeP, err := object.NewProxy(capture.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				matchMap[name] = nodeP
			}
			results = append(results, object.NewMap(matchMap))
		}
		return object.NewList(results)
	})
}

// collector accumulates the facts a script reports.
type collector struct {
	result *store.AnalysisResult
}

func (c *collector) builtins() map[string]any {
	return map[string]any{
		"add_function": object.NewBuiltin("add_function", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("add_function", 1, len(args))
			}
			strs, errObj := stringArgs("add_function", args)
			if errObj != nil {
				return errObj
			}
			c.result.Functions = append(c.result.Functions, strs[0])
			return object.Nil
		}),
		"add_class": object.NewBuiltin("add_class", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("add_class", 1, len(args))
			}
			strs, errObj := stringArgs("add_class", args)
			if errObj != nil {
				return errObj
			}
			c.result.Classes.Declare(strs[0])
			return object.Nil
		}),
		"add_method": object.NewBuiltin("add_method", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 2 {
				return object.NewArgsError("add_method", 2, len(args))
			}
			strs, errObj := stringArgs("add_method", args)
			if errObj != nil {
				return errObj
			}
			c.result.Classes.AddMethod(strs[0], strs[1])
			return object.Nil
		}),
		"add_route":          c.routeBuiltin("add_route", false),
		"add_function_route": c.routeBuiltin("add_function_route", true),
	}
}

// routeBuiltin records a route. The path argument is optional.
//
// add_route(object, method[, path])
// add_function_route(function, method[, path])
func (c *collector) routeBuiltin(name string, function bool) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 2 || len(args) > 3 {
			return object.NewArgsRangeError(name, 2, 3, len(args))
		}
		strs, errObj := stringArgs(name, args)
		if errObj != nil {
			return errObj
		}
		rb := store.RouteBinding{Method: strings.ToUpper(strs[1]), Path: store.DefaultRoutePath}
		if function {
			rb.Function = strs[0]
		} else {
			rb.Object = strs[0]
		}
		if len(strs) == 3 && strs[2] != "" {
			rb.Path = strs[2]
		}
		c.result.Routes = append(c.result.Routes, rb)
		return object.Nil
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log logrus.FieldLogger
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg)
}

func mustProxy(v any) *object.Proxy {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(err)
	}
	return p
}
