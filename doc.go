// Package codescan incrementally extracts functions, classes and HTTP route
// bindings from Python, Rust, JavaScript and TypeScript source trees, and
// writes them to a single JSON report at the project root.
//
// # Pipeline
//
// Each call to [Engine.Scan] runs the same steps:
//
//  1. Discover: walk the project root, pruning dependency, build, VCS,
//     coverage and bytecode directories plus configured excludes, and keep
//     files whose extension has a registered analyzer.
//  2. Reconcile moves: paths that disappeared since the last run are matched
//     by content fingerprint against paths that appeared. A match carries the
//     cache entry and stored facts over to the new path; the rest are deleted.
//  3. Classify: every discovered file is Unchanged (fingerprint matches the
//     cache), Unreadable (could not be read) or Changed-or-New.
//  4. Extract: Changed-or-New files are parsed by a bounded worker pool.
//     Workers share no mutable state and only return results.
//  5. Aggregate: the coordinating goroutine updates the cache and results
//     database, then writes the report atomically.
//
// A file that fails to parse appears in the report with an "error" field and
// is retried on the next run. Unchanged files are not re-parsed; their facts
// come from the results database.
//
// # Usage
//
//	e, err := codescan.New("path/to/project")
//	if err != nil { ... }
//	defer e.Close()
//
//	sum, err := e.Scan(ctx)
//	fmt.Println(sum.Analyzed, sum.Unchanged, sum.Failed)
//
//	routes, err := e.Query().Routes("POST", codescan.Pagination{})
//
// # Analyzers
//
// Built-in analyzers use tree-sitter grammars. Additional extensions can be
// handled by Risor scripts: every <name>.risor file in the directory given
// to [WithScriptsDir] handles files ending in .<name>. See the
// internal/analyzer package for the globals exposed to scripts.
//
// # State
//
// The fingerprint cache (cache.json) and results database (results.db) live
// in the .codescan directory under the project root. Deleting that directory
// forces a full re-scan.
package codescan
