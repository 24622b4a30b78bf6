package main_test

import (
	"database/sql"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBinary compiles the codescan binary and returns the path.
// The binary is placed in t.TempDir() so it's cleaned up automatically.
func buildBinary(t *testing.T) string {
	t.Helper()
	binName := "codescan"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = filepath.Join(projectRoot(t), "cmd", "codescan")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(out))
	return bin
}

// projectRoot returns the root of the module by walking up from the test
// file's directory to find go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, parent, dir, "could not find project root")
		dir = parent
	}
}

// createFixture creates a project with one Flask app, one broken Python
// file and one Express router.
func createFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"app.py": `from flask import Flask

app = Flask(__name__)

@app.get("/health")
def health():
    return "ok"
`,
		"broken.py": "def broken(:\n",
		"web/routes.js": `router.post('/login', function login(req, res) {});
`,
		"node_modules/dep/index.js": "function ignored() {}\n",
	}
	for rel, src := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return dir
}

func runCLI(t *testing.T, bin, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "codescan %v failed: %s", args, string(out))
	return string(out)
}

// openDB opens the SQLite database at the given path for verification.
func openDB(t *testing.T, dbPath string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// fileCount returns the number of rows in the files table.
func fileCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM files").Scan(&count)
	require.NoError(t, err)
	return count
}

func readReport(t *testing.T, path string) map[string]map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestScan_WritesReportAndDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createFixture(t)

	out := runCLI(t, bin, fixture, "scan", "--no-progress", fixture)
	assert.Contains(t, out, "1 files failed to analyze, see report for detail")

	report := readReport(t, filepath.Join(fixture, "codescan-report.json"))
	assert.Len(t, report, 3)
	assert.Contains(t, report, "app.py")
	assert.Contains(t, report, "web/routes.js")
	assert.Contains(t, report["broken.py"], "error")
	assert.NotContains(t, report, "node_modules/dep/index.js")

	db := openDB(t, filepath.Join(fixture, ".codescan", "results.db"))
	assert.Equal(t, 2, fileCount(t, db), "failed files are not stored")
}

func TestScan_SecondRunIsIncremental(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createFixture(t)

	runCLI(t, bin, fixture, "scan", "--no-progress", fixture)
	out := runCLI(t, bin, fixture, "scan", "--no-progress", fixture)
	assert.Contains(t, out, "0 analyzed, 2 unchanged")
	assert.Contains(t, out, "1 files failed to analyze")
}

func TestScan_Force(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createFixture(t)

	runCLI(t, bin, fixture, "scan", "--no-progress", fixture)
	out := runCLI(t, bin, fixture, "scan", "--no-progress", "--force", fixture)
	assert.Contains(t, out, "Cleared scan state")
	assert.Contains(t, out, "2 analyzed, 0 unchanged")
}

func TestScan_LanguagesFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createFixture(t)

	runCLI(t, bin, fixture, "scan", "--no-progress", "--languages", "javascript", fixture)

	report := readReport(t, filepath.Join(fixture, "codescan-report.json"))
	// Disabled languages are still reported, without facts.
	assert.Equal(t, ".py", report["app.py"]["language"])
	assert.NotContains(t, report["broken.py"], "error")
	assert.Equal(t, "javascript", report["web/routes.js"]["language"])
}

func TestQuery_Routes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	fixture := createFixture(t)
	runCLI(t, bin, fixture, "scan", "--no-progress", fixture)

	cmd := exec.Command(bin, "query", "routes")
	cmd.Dir = filepath.Join(fixture, "web")
	out, err := cmd.Output()
	require.NoError(t, err)

	var result struct {
		Command    string `json:"command"`
		TotalCount int    `json:"total_count"`
		Results    []struct {
			File     string `json:"file"`
			Function string `json:"function"`
			Object   string `json:"object"`
			Method   string `json:"method"`
			Path     string `json:"path"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "routes", result.Command)
	require.Equal(t, 2, result.TotalCount)
	assert.Equal(t, "app.py", result.Results[0].File)
	assert.Equal(t, "health", result.Results[0].Function)
	assert.Equal(t, "GET", result.Results[0].Method)
	assert.Equal(t, "router", result.Results[1].Object)
	assert.Equal(t, "/login", result.Results[1].Path)
}

func TestQuery_WithoutScanFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bin := buildBinary(t)
	dir := t.TempDir()

	cmd := exec.Command(bin, "query", "files")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.Error(t, err)
	assert.Contains(t, string(out), "run 'codescan scan' first")
}
