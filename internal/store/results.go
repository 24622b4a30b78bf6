package store

import (
	"database/sql"
	"errors"
	"fmt"
)

type rowScanner interface{ Scan(...any) error }

// --- File operations ---

func scanFile(scanner rowScanner) (*File, error) {
	f := &File{}
	var indexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &indexed); err != nil {
		return nil, err
	}
	f.LastIndexed = indexed.Time
	return f, nil
}

// FileByPath returns the row for path, or nil if the path is not stored.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow(
		"SELECT id, path, language, hash, last_indexed FROM files WHERE path = ?", path,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FilesByLanguage returns files with the given language tag, ordered by path.
// An empty language matches every file.
func (s *Store) FilesByLanguage(language string) ([]*File, error) {
	query := "SELECT id, path, language, hash, last_indexed FROM files"
	var args []any
	if language != "" {
		query += " WHERE language = ?"
		args = append(args, language)
	}
	rows, err := s.db.Query(query+" ORDER BY path", args...)
	if err != nil {
		return nil, fmt.Errorf("files by language: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Paths returns every stored path in sorted order.
func (s *Store) Paths() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("paths: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// --- Result reconstruction ---

// Result rebuilds the AnalysisResult stored for path. It returns nil, nil
// when the path has no stored result.
func (s *Store) Result(path string) (*AnalysisResult, error) {
	f, err := s.FileByPath(path)
	if err != nil || f == nil {
		return nil, err
	}
	res := NewResult(f.Language)

	if res.Functions, err = s.functionNames(f.ID); err != nil {
		return nil, err
	}
	if err := s.loadClasses(f.ID, &res.Classes); err != nil {
		return nil, err
	}
	if res.Routes, err = s.routeBindings(f.ID); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) functionNames(fileID int64) ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM functions WHERE file_id = ? ORDER BY ordinal", fileID)
	if err != nil {
		return nil, fmt.Errorf("functions: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) loadClasses(fileID int64, classes *Classes) error {
	rows, err := s.db.Query(`
		SELECT c.name, m.name
		FROM classes c
		LEFT JOIN methods m ON m.class_id = c.id
		WHERE c.file_id = ?
		ORDER BY c.ordinal, m.ordinal`, fileID)
	if err != nil {
		return fmt.Errorf("classes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var class string
		var method sql.NullString
		if err := rows.Scan(&class, &method); err != nil {
			return fmt.Errorf("scan class: %w", err)
		}
		if method.Valid {
			classes.AddMethod(class, method.String)
		} else {
			classes.Declare(class)
		}
	}
	return rows.Err()
}

func (s *Store) routeBindings(fileID int64) ([]RouteBinding, error) {
	rows, err := s.db.Query(
		"SELECT target_kind, target, method, path FROM routes WHERE file_id = ? ORDER BY ordinal", fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	defer rows.Close()
	var routes []RouteBinding
	for rows.Next() {
		var kind, target string
		var rb RouteBinding
		if err := rows.Scan(&kind, &target, &rb.Method, &rb.Path); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		setTarget(&rb, kind, target)
		routes = append(routes, rb)
	}
	return routes, rows.Err()
}

func setTarget(rb *RouteBinding, kind, target string) {
	if kind == "function" {
		rb.Function = target
	} else {
		rb.Object = target
	}
}

// --- Cross-file lookups ---

// RoutesByMethod returns routes with the given HTTP verb across all files,
// ordered by file and declaration order. An empty method matches every route.
func (s *Store) RoutesByMethod(method string) ([]*RouteRow, error) {
	query := `
		SELECT f.path, r.target_kind, r.target, r.method, r.path
		FROM routes r JOIN files f ON f.id = r.file_id`
	var args []any
	if method != "" {
		query += " WHERE r.method = ?"
		args = append(args, method)
	}
	rows, err := s.db.Query(query+" ORDER BY f.path, r.ordinal", args...)
	if err != nil {
		return nil, fmt.Errorf("routes by method: %w", err)
	}
	defer rows.Close()
	var out []*RouteRow
	for rows.Next() {
		r := &RouteRow{}
		var kind, target string
		if err := rows.Scan(&r.File, &kind, &target, &r.Method, &r.Path); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		setTarget(&r.RouteBinding, kind, target)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FunctionsByName returns every function with the given name. An empty name
// matches every function.
func (s *Store) FunctionsByName(name string) ([]*SymbolRow, error) {
	query := "SELECT f.path, fn.name FROM functions fn JOIN files f ON f.id = fn.file_id"
	var args []any
	if name != "" {
		query += " WHERE fn.name = ?"
		args = append(args, name)
	}
	rows, err := s.db.Query(query+" ORDER BY f.path, fn.ordinal", args...)
	if err != nil {
		return nil, fmt.Errorf("functions by name: %w", err)
	}
	defer rows.Close()
	var out []*SymbolRow
	for rows.Next() {
		r := &SymbolRow{}
		if err := rows.Scan(&r.File, &r.Name); err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClassesByName returns every class or type with the given name together
// with its methods. An empty name matches every class.
func (s *Store) ClassesByName(name string) ([]*SymbolRow, error) {
	query := `
		SELECT c.id, f.path, c.name, m.name
		FROM classes c
		JOIN files f ON f.id = c.file_id
		LEFT JOIN methods m ON m.class_id = c.id`
	var args []any
	if name != "" {
		query += " WHERE c.name = ?"
		args = append(args, name)
	}
	rows, err := s.db.Query(query+" ORDER BY f.path, c.ordinal, m.ordinal", args...)
	if err != nil {
		return nil, fmt.Errorf("classes by name: %w", err)
	}
	defer rows.Close()
	var out []*SymbolRow
	lastID := int64(-1)
	for rows.Next() {
		var id int64
		var file, class string
		var method sql.NullString
		if err := rows.Scan(&id, &file, &class, &method); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		if id != lastID {
			out = append(out, &SymbolRow{File: file, Name: class})
			lastID = id
		}
		if method.Valid {
			cur := out[len(out)-1]
			cur.Methods = append(cur.Methods, method.String)
		}
	}
	return out, rows.Err()
}
