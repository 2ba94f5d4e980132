package runtime

import (
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// language is one grammar the script front end can extract. Every entry has
// an extraction script at ExtractionScriptPath(name).
type language struct {
	name       string
	extensions []string
	grammar    func() *sitter.Language
}

var languages = []language{
	{name: "go", extensions: []string{".go"}, grammar: golang.GetLanguage},
	{name: "python", extensions: []string{".py"}, grammar: python.GetLanguage},
	{name: "cpp", extensions: []string{".cpp", ".cc", ".cxx", ".h", ".hpp"}, grammar: cpp.GetLanguage},
}

var byExtension = func() map[string]string {
	m := make(map[string]string)
	for _, l := range languages {
		for _, ext := range l.extensions {
			m[ext] = l.name
		}
	}
	return m
}()

// LanguageForFile maps path's extension, case-insensitively, to a language
// name.
func LanguageForFile(path string) (string, bool) {
	lang, ok := byExtension[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// ParserForLanguage returns the grammar for a language name.
func ParserForLanguage(name string) (*sitter.Language, bool) {
	for _, l := range languages {
		if l.name == name {
			return l.grammar(), true
		}
	}
	return nil, false
}

// Extensions returns every extension the script front end handles, sorted.
func Extensions() []string {
	out := make([]string, 0, len(byExtension))
	for ext := range byExtension {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
