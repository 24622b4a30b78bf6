package codescan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codescan/internal/analyzer"
	"github.com/jward/codescan/internal/store"
)

// spyAnalyzer counts Extract calls per source text. Each file's only
// function is its trimmed content; sources containing "BROKEN" fail.
type spyAnalyzer struct {
	mu    sync.Mutex
	calls map[string]int
}

func newSpy() *spyAnalyzer {
	return &spyAnalyzer{calls: make(map[string]int)}
}

func (s *spyAnalyzer) Language() string { return "python" }

func (s *spyAnalyzer) Extract(_ context.Context, src []byte) (*store.AnalysisResult, error) {
	text := strings.TrimSpace(string(src))
	s.mu.Lock()
	s.calls[text]++
	s.mu.Unlock()
	if strings.Contains(text, "BROKEN") {
		return nil, fmt.Errorf("%w at line 1 column 0", analyzer.ErrSyntax)
	}
	res := store.NewResult("python")
	res.Functions = []string{text}
	return res, nil
}

func (s *spyAnalyzer) count(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[text]
}

func (s *spyAnalyzer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func newSpyEngine(t *testing.T, root string, opts ...Option) (*Engine, *spyAnalyzer) {
	t.Helper()
	spy := newSpy()
	reg, err := analyzer.NewRegistry(analyzer.WithLanguages("python"))
	require.NoError(t, err)
	reg.Register(".py", spy)
	e, err := New(root, append([]Option{WithRegistry(reg), WithWorkers(4)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, spy
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func scan(t *testing.T, e *Engine) (*Summary, Report) {
	t.Helper()
	sum, err := e.Scan(context.Background())
	require.NoError(t, err)
	r, err := ReadReport(sum.ReportPath)
	require.NoError(t, err)
	return sum, r
}

func reportPaths(r Report) []string {
	paths := make([]string, 0, len(r))
	for p := range r {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// =============================================================================
// New
// =============================================================================

func TestNew_CreatesStateDir(t *testing.T) {
	root := t.TempDir()
	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	assert.DirExists(t, filepath.Join(root, ".codescan"))
	assert.FileExists(t, filepath.Join(root, ".codescan", "results.db"))
	assert.Equal(t, filepath.Join(root, "codescan-report.json"), e.ReportPath())
	assert.Equal(t, filepath.Join(root, ".codescan", "cache.json"), e.CachePath())
}

func TestNew_RootNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.py")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := New(f)
	require.ErrorIs(t, err, ErrRootNotDir)
}

func TestNew_RootMissing(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(t.TempDir(), WithExcludePatterns("[unclosed"))
	require.ErrorIs(t, err, ErrInvalidPattern)
}

// =============================================================================
// Scan with the built-in analyzers
// =============================================================================

const appPy = `from flask import Flask

app = Flask(__name__)

@app.route("/users", methods=["GET", "POST"])
def users():
    pass

class Service:
    def start(self):
        pass
`

const serverRs = `struct Server {}

impl Server {
    fn run(&self) {}
}

fn main() {}
`

const routesJs = `const express = require('express');
const router = express.Router();

function handler(req, res) {}

router.post('/login', handler);
`

func TestScan_BuiltinAnalyzers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", appPy)
	writeFile(t, root, "src/main.rs", serverRs)
	writeFile(t, root, "web/routes.js", routesJs)
	writeFile(t, root, "README.md", "# not source\n")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	sum, r := scan(t, e)
	assert.Equal(t, 3, sum.Discovered)
	assert.Equal(t, 3, sum.Analyzed)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, []string{"app.py", "src/main.rs", "web/routes.js"}, reportPaths(r))

	py := r["app.py"]
	assert.Equal(t, "python", py.Language)
	assert.Equal(t, []string{"users", "start"}, py.Functions)
	assert.Equal(t, []string{"Service"}, py.Classes.Names())
	assert.Equal(t, []string{"start"}, py.Classes.Methods("Service"))
	assert.Equal(t, []RouteBinding{
		{Function: "users", Method: "GET", Path: "/users"},
		{Function: "users", Method: "POST", Path: "/users"},
	}, py.Routes)

	rs := r["src/main.rs"]
	assert.Equal(t, "rust", rs.Language)
	assert.Equal(t, []string{"main"}, rs.Functions)
	assert.Equal(t, []string{"run"}, rs.Classes.Methods("Server"))

	js := r["web/routes.js"]
	assert.Equal(t, "javascript", js.Language)
	assert.Equal(t, []string{"handler"}, js.Functions)
	assert.Equal(t, []RouteBinding{{Object: "router", Method: "POST", Path: "/login"}}, js.Routes)
}

func TestScan_ReportShape(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "")

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()

	sum, err := e.Scan(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(sum.ReportPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lib.rs":{"language":"rust","functions":[],"classes":{},"routes":[]}}`, string(data))
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestScan_EmptyRoot(t *testing.T) {
	e, _ := newSpyEngine(t, t.TempDir())
	sum, r := scan(t, e)
	assert.Equal(t, 0, sum.Discovered)
	assert.Empty(t, r)
}

// =============================================================================
// Incremental behavior
// =============================================================================

func TestScan_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	writeFile(t, root, "pkg/b.py", "beta")
	writeFile(t, root, "pkg/c.py", "BROKEN")
	e, _ := newSpyEngine(t, root)

	_, err := e.Scan(context.Background())
	require.NoError(t, err)
	cache1, err := os.ReadFile(e.CachePath())
	require.NoError(t, err)
	report1, err := os.ReadFile(e.ReportPath())
	require.NoError(t, err)

	_, err = e.Scan(context.Background())
	require.NoError(t, err)
	cache2, err := os.ReadFile(e.CachePath())
	require.NoError(t, err)
	report2, err := os.ReadFile(e.ReportPath())
	require.NoError(t, err)

	assert.Equal(t, string(cache1), string(cache2))
	assert.Equal(t, string(report1), string(report2))
}

func TestScan_Incremental(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	writeFile(t, root, "b.py", "beta")
	writeFile(t, root, "c.py", "gamma")
	e, spy := newSpyEngine(t, root)

	sum, _ := scan(t, e)
	assert.Equal(t, 3, sum.Analyzed)

	writeFile(t, root, "b.py", "beta2")
	sum, r := scan(t, e)

	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, 2, sum.Unchanged)
	assert.Equal(t, 1, spy.count("alpha"))
	assert.Equal(t, 1, spy.count("gamma"))
	assert.Equal(t, 1, spy.count("beta2"))

	require.Len(t, r, 3)
	assert.Equal(t, []string{"alpha"}, r["a.py"].Functions)
	assert.Equal(t, []string{"beta2"}, r["b.py"].Functions)
	assert.Equal(t, []string{"gamma"}, r["c.py"].Functions)
}

func TestScan_UnchangedWithoutStoredResultIsReanalyzed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	e, spy := newSpyEngine(t, root)
	scan(t, e)

	require.NoError(t, e.store.Reset())
	sum, r := scan(t, e)

	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, 2, spy.count("alpha"))
	assert.Equal(t, []string{"alpha"}, r["a.py"].Functions)
}

func TestScan_MoveDetection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/old.py", "moved content")
	writeFile(t, root, "keep.py", "keep")
	e, spy := newSpyEngine(t, root)
	scan(t, e)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.Rename(filepath.Join(root, "a", "old.py"), filepath.Join(root, "b", "new.py")))

	sum, r := scan(t, e)
	assert.Equal(t, 1, sum.Moved)
	assert.Equal(t, 0, sum.Deleted)
	assert.Equal(t, 0, sum.Analyzed)
	assert.Equal(t, 2, sum.Unchanged)
	assert.Equal(t, 1, spy.count("moved content"))

	assert.Equal(t, []string{"b/new.py", "keep.py"}, reportPaths(r))
	assert.Equal(t, []string{"moved content"}, r["b/new.py"].Functions)

	cache, err := store.LoadCache(e.CachePath())
	require.NoError(t, err)
	assert.Equal(t, []string{"b/new.py", "keep.py"}, cache.Paths())

	old, err := e.Query().Result("a/old.py")
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestScan_Deletion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	writeFile(t, root, "b.py", "beta")
	e, _ := newSpyEngine(t, root)
	scan(t, e)

	require.NoError(t, os.Remove(filepath.Join(root, "b.py")))
	sum, r := scan(t, e)

	assert.Equal(t, 1, sum.Deleted)
	assert.Equal(t, []string{"a.py"}, reportPaths(r))

	cache, err := store.LoadCache(e.CachePath())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, cache.Paths())

	res, err := e.Query().Result("b.py")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestScan_DuplicateContentMoves(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.py", "same")
	writeFile(t, root, "y.py", "same")
	e, spy := newSpyEngine(t, root)
	scan(t, e)
	assert.Equal(t, 2, spy.count("same"))

	require.NoError(t, os.Rename(filepath.Join(root, "x.py"), filepath.Join(root, "z.py")))
	require.NoError(t, os.Remove(filepath.Join(root, "y.py")))

	sum, r := scan(t, e)
	assert.Equal(t, 1, sum.Moved)
	assert.Equal(t, 1, sum.Deleted)
	assert.Equal(t, 2, spy.count("same"))
	assert.Equal(t, []string{"z.py"}, reportPaths(r))
}

// =============================================================================
// Failures
// =============================================================================

func TestScan_FailureIsolation(t *testing.T) {
	root := t.TempDir()
	for i := range 9 {
		writeFile(t, root, fmt.Sprintf("ok%d.py", i), fmt.Sprintf("valid %d", i))
	}
	writeFile(t, root, "bad.py", "BROKEN")
	e, spy := newSpyEngine(t, root)

	sum, r := scan(t, e)
	assert.Equal(t, 10, sum.Discovered)
	assert.Equal(t, 9, sum.Analyzed)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, r, 10)
	assert.Equal(t, 1, r.Failed())

	bad := r["bad.py"]
	require.NotNil(t, bad)
	assert.True(t, bad.Failed())
	assert.Equal(t, "python", bad.Language)
	assert.Empty(t, bad.Functions)
	assert.Contains(t, bad.Error, "syntax error")
	for i := range 9 {
		res := r[fmt.Sprintf("ok%d.py", i)]
		require.NotNil(t, res)
		assert.False(t, res.Failed())
		assert.Equal(t, []string{fmt.Sprintf("valid %d", i)}, res.Functions)
	}

	cache, err := store.LoadCache(e.CachePath())
	require.NoError(t, err)
	assert.Equal(t, 9, cache.Len())
	_, tracked := cache.Get("bad.py")
	assert.False(t, tracked)

	// Failed files are retried.
	scan(t, e)
	assert.Equal(t, 2, spy.count("BROKEN"))
	assert.Equal(t, 1, spy.count("valid 0"))
}

func TestScan_FailureKeepsPreviousCacheEntry(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	e, _ := newSpyEngine(t, root)
	scan(t, e)
	before, err := os.ReadFile(e.CachePath())
	require.NoError(t, err)

	writeFile(t, root, "a.py", "BROKEN")
	sum, r := scan(t, e)
	assert.Equal(t, 1, sum.Failed)
	assert.True(t, r["a.py"].Failed())

	after, err := os.ReadFile(e.CachePath())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestScan_UnreadableFileKeepsStoredResult(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	writeFile(t, root, "b.py", "beta")
	e, spy := newSpyEngine(t, root)
	scan(t, e)
	before, err := store.LoadCache(e.CachePath())
	require.NoError(t, err)
	want, ok := before.Get("a.py")
	require.True(t, ok)

	p := filepath.Join(root, "a.py")
	require.NoError(t, os.Chmod(p, 0o000))
	t.Cleanup(func() { os.Chmod(p, 0o644) })
	if f, err := os.Open(p); err == nil {
		f.Close()
		t.Skip("file permissions are not enforced for this user")
	}

	sum, r := scan(t, e)
	assert.Equal(t, 1, sum.Unreadable)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Equal(t, 0, sum.Analyzed)
	assert.Equal(t, 0, sum.Deleted)
	assert.Equal(t, 1, spy.count("alpha"), "unreadable files are not analyzed")
	require.Contains(t, r, "a.py")
	assert.Equal(t, []string{"alpha"}, r["a.py"].Functions)

	after, err := store.LoadCache(e.CachePath())
	require.NoError(t, err)
	got, ok := after.Get("a.py")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestScan_CommitFailureIsRetried(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "v1")
	e, spy := newSpyEngine(t, root)
	scan(t, e)

	db := e.store.DB()
	_, err := db.Exec(`CREATE TRIGGER fail_put BEFORE INSERT ON files
BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	writeFile(t, root, "a.py", "v2")
	sum, r := scan(t, e)
	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, []string{"v2"}, r["a.py"].Functions)
	cache, err := store.LoadCache(e.CachePath())
	require.NoError(t, err)
	_, tracked := cache.Get("a.py")
	assert.False(t, tracked, "uncommitted files leave the cache")

	_, err = db.Exec("DROP TRIGGER fail_put")
	require.NoError(t, err)

	sum, r = scan(t, e)
	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, 0, sum.Unchanged)
	assert.Equal(t, []string{"v2"}, r["a.py"].Functions)
	assert.Equal(t, 2, spy.count("v2"))

	res, err := e.Query().Result("a.py")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"v2"}, res.Functions)
}

type panicAnalyzer struct{}

func (panicAnalyzer) Language() string { return "boom" }

func (panicAnalyzer) Extract(context.Context, []byte) (*store.AnalysisResult, error) {
	panic("parser crashed")
}

func TestScan_AnalyzerPanicIsIsolated(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	writeFile(t, root, "b.boom", "whatever")

	reg, err := analyzer.NewRegistry(analyzer.WithLanguages("python"))
	require.NoError(t, err)
	reg.Register(".py", newSpy())
	reg.Register(".boom", panicAnalyzer{})
	e, err := New(root, WithRegistry(reg))
	require.NoError(t, err)
	defer e.Close()

	sum, r := scan(t, e)
	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, "boom", r["b.boom"].Language)
	assert.Contains(t, r["b.boom"].Error, "parser crashed")
}

func TestScan_UnreadableCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	logger, hook := test.NewNullLogger()
	e, spy := newSpyEngine(t, root, WithLogger(logger))

	require.NoError(t, os.WriteFile(e.CachePath(), []byte("{not json"), 0o644))
	sum, r := scan(t, e)

	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, 1, spy.count("alpha"))
	assert.Len(t, r, 1)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "cache unreadable, starting fresh" {
			warned = true
		}
	}
	assert.True(t, warned)

	cache, err := store.LoadCache(e.CachePath())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestScan_CacheSaveFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	e, _ := newSpyEngine(t, root, WithCacheFile("cache-dir"))
	require.NoError(t, os.MkdirAll(e.CachePath(), 0o755))
	writeFile(t, root, ".codescan/cache-dir/child", "x")

	sum, err := e.Scan(context.Background())
	require.NoError(t, err)
	assert.Error(t, sum.CacheErr)
	assert.FileExists(t, sum.ReportPath)
}

func TestScan_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	e, spy := newSpyEngine(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, spy.total())
	assert.NoFileExists(t, e.ReportPath())
}

// =============================================================================
// Discovery and exclusion
// =============================================================================

func TestScan_Exclusion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.py", "app")
	writeFile(t, root, "node_modules/pkg/index.py", "dep")
	writeFile(t, root, "src/deep/venv/lib/site.py", "venv")
	writeFile(t, root, ".git/hooks/hook.py", "git")
	writeFile(t, root, "build/out.py", "build")
	writeFile(t, root, "src/__pycache__/app.py", "cache")
	writeFile(t, root, "gen/models.py", "generated")
	writeFile(t, root, "custom/skip.py", "custom")
	writeFile(t, root, "src/app_test.py", "test")
	e, spy := newSpyEngine(t, root,
		WithExcludeDirs("custom"),
		WithExcludePatterns("gen/**", "**_test.py"),
	)

	sum, r := scan(t, e)
	assert.Equal(t, 1, sum.Discovered)
	assert.Equal(t, []string{"src/app.py"}, reportPaths(r))
	assert.Equal(t, 1, spy.total())
}

func TestScan_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.py", "x")
	writeFile(t, root, "large.py", strings.Repeat("x", 100))
	e, _ := newSpyEngine(t, root, WithMaxFileSize(10))

	_, r := scan(t, e)
	assert.Equal(t, []string{"small.py"}, reportPaths(r))
}

func TestScan_UnsupportedExtensionsIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	writeFile(t, root, "notes.txt", "text")
	writeFile(t, root, "main.go", "package main")
	e, _ := newSpyEngine(t, root)

	_, r := scan(t, e)
	assert.Equal(t, []string{"a.py"}, reportPaths(r))
}

func TestScan_DisabledLanguageReportedWithoutFacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.ts", "function typed(): void {}\n")

	e, err := New(root, WithLanguages("python"))
	require.NoError(t, err)
	defer e.Close()

	_, r := scan(t, e)
	require.Contains(t, r, "app.ts")
	assert.Equal(t, ".ts", r["app.ts"].Language)
	assert.Empty(t, r["app.ts"].Functions)
}

func TestExcluder(t *testing.T) {
	x, err := newExcluder([]string{"fixtures"}, []string{"docs/**", "*.min.js"})
	require.NoError(t, err)

	tests := []struct {
		name string
		rel  string
		want bool
	}{
		{"node_modules", "a/node_modules", true},
		{"fixtures", "test/fixtures", true},
		{"docs", "docs", false},
		{"api", "docs/api", true},
		{"src", "src", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, x.skipDir(tt.name, tt.rel), tt.rel)
	}
	assert.True(t, x.match("app.min.js"))
	assert.False(t, x.match("lib/app.min.js"))
	assert.False(t, x.match("app.js"))
}

// =============================================================================
// Move reconciliation
// =============================================================================

func TestReconcileMoves(t *testing.T) {
	fpA := store.FingerprintBytes([]byte("a"))
	fpB := store.FingerprintBytes([]byte("b"))

	cache := store.NewCache("")
	cache.Put("old/a.py", fpA)
	cache.Put("old/b.py", fpB)
	cache.Put("same.py", fpA)
	cache.Put("gone.py", store.FingerprintBytes([]byte("gone")))

	ms := reconcileMoves(cache, map[string]store.Fingerprint{
		"same.py":  fpA,
		"new/a.py": fpA,
		"new/b.py": fpB,
	})
	assert.Equal(t, []rename{
		{from: "old/a.py", to: "new/a.py"},
		{from: "old/b.py", to: "new/b.py"},
	}, ms.renames)
	assert.Equal(t, []string{"gone.py"}, ms.deleted)
}

func TestReconcileMoves_NoMissing(t *testing.T) {
	fp := store.FingerprintBytes([]byte("a"))
	cache := store.NewCache("")
	cache.Put("a.py", fp)

	ms := reconcileMoves(cache, map[string]store.Fingerprint{"a.py": fp, "b.py": fp})
	assert.Empty(t, ms.renames)
	assert.Empty(t, ms.deleted)
}

func TestReconcileMoves_InvalidNeverMatches(t *testing.T) {
	cache := store.NewCache("")
	cache.Put("old.py", store.FingerprintBytes([]byte("x")))

	var unreadable store.Fingerprint
	ms := reconcileMoves(cache, map[string]store.Fingerprint{"new.py": unreadable})
	assert.Empty(t, ms.renames)
	assert.Equal(t, []string{"old.py"}, ms.deleted)
}

func TestReconcileMoves_FirstMissingClaimsCandidate(t *testing.T) {
	fp := store.FingerprintBytes([]byte("dup"))
	cache := store.NewCache("")
	cache.Put("a.py", fp)
	cache.Put("b.py", fp)

	ms := reconcileMoves(cache, map[string]store.Fingerprint{"z.py": fp})
	assert.Equal(t, []rename{{from: "a.py", to: "z.py"}}, ms.renames)
	assert.Equal(t, []string{"b.py"}, ms.deleted)
}

// =============================================================================
// Reset and queries
// =============================================================================

func TestReset(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	e, spy := newSpyEngine(t, root)
	scan(t, e)

	require.NoError(t, e.Reset())
	assert.NoFileExists(t, e.CachePath())

	sum, _ := scan(t, e)
	assert.Equal(t, 1, sum.Analyzed)
	assert.Equal(t, 2, spy.count("alpha"))

	// Reset on a fresh state is not an error.
	require.NoError(t, e.Reset())
	require.NoError(t, e.Reset())
}

func TestQuery_AfterScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", appPy)
	writeFile(t, root, "web/routes.js", routesJs)

	e, err := New(root)
	require.NoError(t, err)
	defer e.Close()
	scan(t, e)

	q := e.Query()

	files, err := q.Files("", Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 2, files.TotalCount)

	pyFiles, err := q.Files("Python", Pagination{})
	require.NoError(t, err)
	require.Len(t, pyFiles.Items, 1)
	assert.Equal(t, "app.py", pyFiles.Items[0].Path)

	posts, err := q.Routes("post", Pagination{})
	require.NoError(t, err)
	require.Equal(t, 2, posts.TotalCount)
	assert.Equal(t, "app.py", posts.Items[0].File)
	assert.Equal(t, "users", posts.Items[0].Function)
	assert.Equal(t, "web/routes.js", posts.Items[1].File)
	assert.Equal(t, "router", posts.Items[1].Object)

	fns, err := q.Functions("handler", Pagination{})
	require.NoError(t, err)
	require.Len(t, fns.Items, 1)
	assert.Equal(t, "web/routes.js", fns.Items[0].File)

	classes, err := q.Classes("", Pagination{})
	require.NoError(t, err)
	require.Len(t, classes.Items, 1)
	assert.Equal(t, "Service", classes.Items[0].Name)
	assert.Equal(t, []string{"start"}, classes.Items[0].Methods)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := paginate(items, Pagination{Offset: 1, Limit: 2})
	assert.Equal(t, []int{2, 3}, page.Items)
	assert.Equal(t, 5, page.TotalCount)

	page = paginate(items, Pagination{Offset: 10})
	assert.Empty(t, page.Items)
	assert.Equal(t, 5, page.TotalCount)

	page = paginate(items, Pagination{Offset: -1, Limit: 1000})
	assert.Equal(t, items, page.Items)
}

// =============================================================================
// Watch
// =============================================================================

func TestWatch_RescansOnChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "alpha")
	e, spy := newSpyEngine(t, root, WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sums := make(chan *Summary, 16)
	done := make(chan error, 1)
	go func() {
		done <- e.Watch(ctx, func(s *Summary, err error) {
			if err == nil {
				sums <- s
			}
		})
	}()

	select {
	case s := <-sums:
		assert.Equal(t, 1, s.Analyzed)
	case <-time.After(5 * time.Second):
		t.Fatal("initial scan did not run")
	}

	writeFile(t, root, "sub/b.py", "beta")

	require.Eventually(t, func() bool { return spy.count("beta") == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		r, err := ReadReport(e.ReportPath())
		return err == nil && len(r) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Equal(t, 1, spy.count("alpha"))
}

func fsnotifyEvent(path string) fsnotify.Event {
	return fsnotify.Event{Name: path, Op: fsnotify.Write}
}

func TestWatch_IgnoresOwnOutput(t *testing.T) {
	root := t.TempDir()
	e, _ := newSpyEngine(t, root)

	ev := func(rel string) bool {
		return e.relevant(fsnotifyEvent(filepath.Join(root, filepath.FromSlash(rel))))
	}
	assert.False(t, ev("codescan-report.json"))
	assert.False(t, ev(".codescan/cache.json"))
	assert.False(t, ev("node_modules/x.py"))
	assert.False(t, ev("notes.txt"))
	assert.True(t, ev("a.py"))
}

func TestScan_ErrorsAreWrapped(t *testing.T) {
	root := t.TempDir()
	e, _ := newSpyEngine(t, root, WithReportFile("missing-parent-is-a-file/report.json"))
	writeFile(t, root, "missing-parent-is-a-file", "x")

	_, err := e.Scan(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "codescan: "))
	assert.False(t, errors.Is(err, context.Canceled))
}
