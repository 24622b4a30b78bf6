package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/sirupsen/logrus"

	"github.com/jward/codescan/internal/store"
)

const scriptExt = ".risor"

// queryCacheSize bounds the compiled queries shared by scripted analyzers.
const queryCacheSize = 256

// ScriptedAnalyzer runs a Risor script against each file. The script sees
// the file as the global `source` and reports facts through add_function,
// add_class, add_method, add_route and add_function_route. Its language tag
// is the script's base name.
type ScriptedAnalyzer struct {
	name    string
	ext     string
	source  string
	queries *queryCache
	log     logrus.FieldLogger
}

// NewScriptedAnalyzer creates an analyzer for files ending in "."+name.
func NewScriptedAnalyzer(name, source string, log logrus.FieldLogger) *ScriptedAnalyzer {
	return newScriptedAnalyzer(name, source, newQueryCache(queryCacheSize), log)
}

func newScriptedAnalyzer(name, source string, qc *queryCache, log logrus.FieldLogger) *ScriptedAnalyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ScriptedAnalyzer{
		name:    name,
		ext:     "." + name,
		source:  source,
		queries: qc,
		log:     log.WithField("script", name+scriptExt),
	}
}

// LoadScripts reads every <name>.risor file in dir and returns the scripted
// analyzers keyed by extension.
func LoadScripts(dir string, log logrus.FieldLogger) (map[string]*ScriptedAnalyzer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("analyzer: read scripts dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != scriptExt {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	qc := newQueryCache(queryCacheSize)
	out := make(map[string]*ScriptedAnalyzer, len(names))
	for _, file := range names {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("analyzer: loading script %s: %w", file, err)
		}
		name := strings.ToLower(strings.TrimSuffix(file, scriptExt))
		a := newScriptedAnalyzer(name, string(data), qc, log)
		out[a.ext] = a
	}
	return out, nil
}

func (a *ScriptedAnalyzer) Language() string { return a.name }

// Extension returns the file extension the script handles.
func (a *ScriptedAnalyzer) Extension() string { return a.ext }

func (a *ScriptedAnalyzer) Extract(ctx context.Context, src []byte) (*store.AnalysisResult, error) {
	ss := newSourceStore()
	defer ss.close()
	c := &collector{result: store.NewResult(a.name)}

	globals := map[string]any{
		"source":     string(src),
		"extension":  a.ext,
		"parse_src":  makeParseSrcFn(ss),
		"node_text":  makeNodeTextFn(ss),
		"node_child": makeNodeChildFn(),
		"query":      makeQueryFn(ss, a.queries),
		"log":        mustProxy(&logObject{log: a.log}),
	}
	for k, v := range c.builtins() {
		globals[k] = v
	}

	opts := make([]risor.Option, 0, len(globals))
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if _, err := risor.Eval(ctx, a.source, opts...); err != nil {
		return nil, fmt.Errorf("analyzer: script %s: %w", a.name+scriptExt, err)
	}
	return c.result, nil
}
