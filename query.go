package codescan

import (
	"fmt"
	"strings"

	"github.com/jward/codescan/internal/store"
)

// QueryBuilder reads facts from the results database of the last scan.
type QueryBuilder struct {
	store *store.Store
}

// Pagination controls offset+limit paging on list results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

func paginate[T any](items []T, p Pagination) PagedResult[T] {
	p = p.normalize()
	res := PagedResult[T]{TotalCount: len(items)}
	if p.Offset >= len(items) {
		return res
	}
	end := min(p.Offset+p.Limit, len(items))
	res.Items = items[p.Offset:end]
	return res
}

// Result returns the stored facts for a root-relative path, or nil if the
// path has no stored result.
func (q *QueryBuilder) Result(path string) (*AnalysisResult, error) {
	res, err := q.store.Result(path)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	return res, nil
}

// Files lists analyzed files, optionally restricted to one language.
func (q *QueryBuilder) Files(language string, page Pagination) (PagedResult[*File], error) {
	files, err := q.store.FilesByLanguage(strings.ToLower(language))
	if err != nil {
		return PagedResult[*File]{}, fmt.Errorf("files: %w", err)
	}
	return paginate(files, page), nil
}

// Routes lists route bindings ordered by file and source position. A
// non-empty method filters case-insensitively.
func (q *QueryBuilder) Routes(method string, page Pagination) (PagedResult[*RouteRow], error) {
	routes, err := q.store.RoutesByMethod(strings.ToUpper(method))
	if err != nil {
		return PagedResult[*RouteRow]{}, fmt.Errorf("routes: %w", err)
	}
	return paginate(routes, page), nil
}

// Functions lists every recorded function, nested functions and methods
// included, optionally only those with the given name.
func (q *QueryBuilder) Functions(name string, page Pagination) (PagedResult[*SymbolRow], error) {
	fns, err := q.store.FunctionsByName(name)
	if err != nil {
		return PagedResult[*SymbolRow]{}, fmt.Errorf("functions: %w", err)
	}
	return paginate(fns, page), nil
}

// Classes lists classes with their methods, optionally only those with the
// given name.
func (q *QueryBuilder) Classes(name string, page Pagination) (PagedResult[*SymbolRow], error) {
	classes, err := q.store.ClassesByName(name)
	if err != nil {
		return PagedResult[*SymbolRow]{}, fmt.Errorf("classes: %w", err)
	}
	return paginate(classes, page), nil
}
