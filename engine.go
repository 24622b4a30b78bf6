package codescan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jward/codescan/internal/analyzer"
	"github.com/jward/codescan/internal/store"
)

// ErrRootNotDir is returned when the project root is not a directory.
var ErrRootNotDir = errors.New("codescan: root is not a directory")

const (
	defaultStateDir     = ".codescan"
	defaultCacheFile    = "cache.json"
	defaultResultsDB    = "results.db"
	defaultReportFile   = "codescan-report.json"
	defaultParseTimeout = 30 * time.Second
	defaultMaxFileSize  = 10 << 20
)

// Engine scans one project root. It owns the results database; the
// fingerprint cache is loaded and saved once per scan.
//
// Scan and Watch must not run concurrently on the same Engine.
type Engine struct {
	root     string
	store    *store.Store
	registry *analyzer.Registry
	log      logrus.FieldLogger

	stateDir     string
	cacheFile    string
	resultsDB    string
	reportFile   string
	workers      int
	parseTimeout time.Duration
	maxFileSize  int64
	debounce     time.Duration

	excludeDirs     []string
	excludePatterns []string
	exclude         *excluder

	languages  []string
	scriptsDir string
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the worker pool size. Zero or less means one worker per
// CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithParseTimeout bounds the time spent extracting a single file. Zero
// disables the limit.
func WithParseTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.parseTimeout = d
	}
}

// WithMaxFileSize skips files larger than n bytes during discovery. Zero
// disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(e *Engine) {
		e.maxFileSize = n
	}
}

// WithExcludeDirs adds directory names to the built-in deny-list.
func WithExcludeDirs(names ...string) Option {
	return func(e *Engine) {
		e.excludeDirs = append(e.excludeDirs, names...)
	}
}

// WithExcludePatterns skips files and directories whose slash-separated
// path relative to the root matches any of the glob patterns.
func WithExcludePatterns(patterns ...string) Option {
	return func(e *Engine) {
		e.excludePatterns = append(e.excludePatterns, patterns...)
	}
}

// WithLanguages restricts which built-in analyzers are enabled. Files of
// disabled languages are still reported, without facts.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = languages
	}
}

// WithScriptsDir registers a Risor analyzer for each <name>.risor file in
// dir.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithRegistry replaces the analyzer registry. WithLanguages and
// WithScriptsDir are ignored when a registry is supplied.
func WithRegistry(r *analyzer.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithStateDir sets the directory, relative to the root unless absolute,
// holding the cache file and results database.
func WithStateDir(dir string) Option {
	return func(e *Engine) {
		e.stateDir = dir
	}
}

// WithCacheFile sets the cache file name inside the state directory.
func WithCacheFile(name string) Option {
	return func(e *Engine) {
		e.cacheFile = name
	}
}

// WithResultsDB sets the results database name inside the state directory.
func WithResultsDB(name string) Option {
	return func(e *Engine) {
		e.resultsDB = name
	}
}

// WithReportFile sets the report path, relative to the root unless absolute.
func WithReportFile(name string) Option {
	return func(e *Engine) {
		e.reportFile = name
	}
}

// WithDebounce sets how long Watch waits for file events to settle before
// re-scanning.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// New creates an Engine for the project at root, opening (and creating if
// needed) the results database in the state directory.
func New(root string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("codescan: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("codescan: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDir, abs)
	}

	e := &Engine{
		root:         abs,
		stateDir:     defaultStateDir,
		cacheFile:    defaultCacheFile,
		resultsDB:    defaultResultsDB,
		reportFile:   defaultReportFile,
		parseTimeout: defaultParseTimeout,
		maxFileSize:  defaultMaxFileSize,
		debounce:     DefaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = l
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}

	e.exclude, err = newExcluder(append([]string{filepath.Base(e.StateDir())}, e.excludeDirs...), e.excludePatterns)
	if err != nil {
		return nil, err
	}

	if e.registry == nil {
		regOpts := []analyzer.RegistryOption{analyzer.WithRegistryLogger(e.log)}
		if len(e.languages) > 0 {
			regOpts = append(regOpts, analyzer.WithLanguages(e.languages...))
		}
		if e.scriptsDir != "" {
			regOpts = append(regOpts, analyzer.WithScriptsDir(e.absPath(e.scriptsDir)))
		}
		e.registry, err = analyzer.NewRegistry(regOpts...)
		if err != nil {
			return nil, fmt.Errorf("codescan: analyzers: %w", err)
		}
	}

	if err := os.MkdirAll(e.StateDir(), 0o755); err != nil {
		return nil, fmt.Errorf("codescan: create state dir: %w", err)
	}
	s, err := store.NewStore(filepath.Join(e.StateDir(), e.resultsDB))
	if err != nil {
		return nil, fmt.Errorf("codescan: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("codescan: migrate: %w", err)
	}
	e.store = s
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Root returns the absolute project root.
func (e *Engine) Root() string {
	return e.root
}

// StateDir returns the absolute state directory.
func (e *Engine) StateDir() string {
	return e.absPath(e.stateDir)
}

// CachePath returns the absolute path of the fingerprint cache.
func (e *Engine) CachePath() string {
	return filepath.Join(e.StateDir(), e.cacheFile)
}

// ReportPath returns the absolute path of the report.
func (e *Engine) ReportPath() string {
	return e.absPath(e.reportFile)
}

// Query returns a new QueryBuilder over the results database.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// Reset forgets all scan state: the cache file is removed and the results
// database emptied, so the next scan re-analyzes every file.
func (e *Engine) Reset() error {
	if err := os.Remove(e.CachePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("codescan: remove cache: %w", err)
	}
	if err := e.store.Reset(); err != nil {
		return fmt.Errorf("codescan: %w", err)
	}
	return nil
}

func (e *Engine) absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.root, p)
}

// relPath returns the slash-separated path of abs relative to the root.
func (e *Engine) relPath(abs string) string {
	rel, err := filepath.Rel(e.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
