package analyzer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extToLanguage maps the built-in file extensions to language tags.
var extToLanguage = map[string]string{
	".py": "python",
	".rs": "rust",
	".js": "javascript",
	".ts": "typescript",
}

// grammarLoaders returns the tree-sitter grammar for each language tag.
var grammarLoaders = map[string]func() *sitter.Language{
	"python":     python.GetLanguage,
	"rust":       rust.GetLanguage,
	"javascript": javascript.GetLanguage,
	"typescript": ts.GetLanguage,
}

// langToGrammar holds the grammars that loaded successfully.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarErrs   map[string]error
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = make(map[string]*sitter.Language, len(grammarLoaders))
		grammarErrs = make(map[string]error)
		for lang, load := range grammarLoaders {
			g, err := loadGrammar(load)
			if err != nil {
				grammarErrs[lang] = err
				continue
			}
			langToGrammar[lang] = g
		}
	})
}

// loadGrammar turns a panicking or nil grammar into an error so one broken
// grammar only disables its own language.
func loadGrammar(load func() *sitter.Language) (g *sitter.Language, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("grammar init panicked: %v", r)
		}
	}()
	g = load()
	if g == nil {
		return nil, fmt.Errorf("grammar init returned nil")
	}
	return g, nil
}

// LanguageForFile returns the built-in language tag for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// GrammarForLanguage returns the tree-sitter grammar for a language tag.
// Returns (nil, false) if the language is unknown or its grammar failed to
// load.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := langToGrammar[lang]
	return g, ok
}

// GrammarError reports why a known language's grammar is unavailable.
func GrammarError(lang string) error {
	initGrammars()
	return grammarErrs[lang]
}

// BuiltinExtensions returns the extensions handled by built-in analyzers,
// sorted.
func BuiltinExtensions() []string {
	exts := make([]string, 0, len(extToLanguage))
	for ext := range extToLanguage {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// BuiltinLanguages returns the built-in language tags, sorted.
func BuiltinLanguages() []string {
	langs := make([]string, 0, len(grammarLoaders))
	for lang := range grammarLoaders {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
