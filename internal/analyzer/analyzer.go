// Package analyzer extracts structural facts (functions, classes, routes)
// from source files. Each supported extension maps to one Analyzer; files
// whose backend is unavailable fall back to Unsupported.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jward/codescan/internal/store"
)

// ErrSyntax is returned when a strict analyzer rejects malformed source.
var ErrSyntax = errors.New("analyzer: syntax error")

// Analyzer extracts an AnalysisResult from the bytes of one file.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	Language() string
	Extract(ctx context.Context, src []byte) (*store.AnalysisResult, error)
}

// Unsupported is the fallback for extensions without a usable backend. It
// never fails and reports no facts; its language tag is the raw extension.
type Unsupported struct {
	Ext string
}

func (u Unsupported) Language() string { return u.Ext }

func (u Unsupported) Extract(context.Context, []byte) (*store.AnalysisResult, error) {
	return store.NewResult(u.Ext), nil
}

// Registry selects an Analyzer by file extension.
type Registry struct {
	byExt   map[string]Analyzer
	allowed map[string]bool
	log     logrus.FieldLogger
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	languages  []string
	scriptsDir string
	log        logrus.FieldLogger
}

// WithLanguages restricts the built-in analyzers to the given language tags.
// Extensions of disabled languages are still discovered but dispatch to
// Unsupported.
func WithLanguages(langs ...string) RegistryOption {
	return func(c *registryConfig) {
		c.languages = langs
	}
}

// WithScriptsDir registers a scripted analyzer for every <name>.risor file
// in dir.
func WithScriptsDir(dir string) RegistryOption {
	return func(c *registryConfig) {
		c.scriptsDir = dir
	}
}

// WithRegistryLogger sets the logger used for backend warnings and passed to
// scripted analyzers.
func WithRegistryLogger(l logrus.FieldLogger) RegistryOption {
	return func(c *registryConfig) {
		c.log = l
	}
}

// NewRegistry builds the extension table. Built-in analyzers whose grammar
// is unavailable are left out with a warning. A scripts directory that cannot
// be read is an error.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := registryConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.log = l
	}

	enabled := make(map[string]bool)
	for _, lang := range cfg.languages {
		enabled[strings.ToLower(strings.TrimSpace(lang))] = true
	}

	r := &Registry{
		byExt:   make(map[string]Analyzer),
		allowed: make(map[string]bool),
		log:     cfg.log,
	}
	for _, ext := range BuiltinExtensions() {
		r.allowed[ext] = true
		lang := extToLanguage[ext]
		if len(enabled) > 0 && !enabled[lang] {
			r.log.WithField("language", lang).Debug("language disabled")
			continue
		}
		a, err := newBuiltin(lang)
		if err != nil {
			r.log.WithField("language", lang).WithError(err).Warn("analyzer backend unavailable")
			continue
		}
		r.byExt[ext] = a
	}

	if cfg.scriptsDir != "" {
		scripted, err := LoadScripts(cfg.scriptsDir, cfg.log)
		if err != nil {
			return nil, err
		}
		for ext, a := range scripted {
			r.Register(ext, a)
		}
	}
	return r, nil
}

func newBuiltin(lang string) (Analyzer, error) {
	g, ok := GrammarForLanguage(lang)
	if !ok {
		if err := GrammarError(lang); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no grammar for %s", lang)
	}
	switch lang {
	case "python":
		return NewPythonAnalyzer(g), nil
	case "rust":
		return NewRustAnalyzer(g), nil
	case "javascript", "typescript":
		return NewJavaScriptAnalyzer(lang, g), nil
	}
	return nil, fmt.Errorf("no analyzer for %s", lang)
}

// Register binds ext (including the leading dot) to a, replacing any
// existing analyzer and adding ext to the discovery allow-list.
func (r *Registry) Register(ext string, a Analyzer) {
	ext = strings.ToLower(ext)
	r.allowed[ext] = true
	r.byExt[ext] = a
}

// Lookup returns the analyzer registered for ext, if any.
func (r *Registry) Lookup(ext string) (Analyzer, bool) {
	a, ok := r.byExt[strings.ToLower(ext)]
	return a, ok
}

// ForFile returns the analyzer for path, or Unsupported tagged with the
// path's raw extension.
func (r *Registry) ForFile(path string) Analyzer {
	ext := filepath.Ext(path)
	if a, ok := r.Lookup(ext); ok {
		return a
	}
	return Unsupported{Ext: ext}
}

// Supports reports whether files with path's extension should be discovered.
func (r *Registry) Supports(path string) bool {
	return r.allowed[strings.ToLower(filepath.Ext(path))]
}

// Extensions returns the discovery allow-list, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.allowed))
	for ext := range r.allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
