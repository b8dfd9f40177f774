package chunker

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// grammarFor returns the tree-sitter grammar for a language, or nil when
// none is bundled. JavaScript is parsed with the TSX grammar, which
// accepts plain JavaScript and JSX.
func grammarFor(language, ext string) *sitter.Language {
	switch strings.ToLower(language) {
	case "rust":
		return sitter.NewLanguage(rust.Language())
	case "python":
		return sitter.NewLanguage(python.Language())
	case "typescript":
		if strings.EqualFold(ext, ".tsx") {
			return sitter.NewLanguage(typescript.LanguageTSX())
		}
		return sitter.NewLanguage(typescript.LanguageTypescript())
	case "javascript":
		return sitter.NewLanguage(typescript.LanguageTSX())
	case "java":
		return sitter.NewLanguage(java.Language())
	case "ruby":
		return sitter.NewLanguage(ruby.Language())
	case "c":
		return sitter.NewLanguage(c.Language())
	case "php":
		return sitter.NewLanguage(php.LanguagePHP())
	default:
		return nil
	}
}

func isMarkdown(language, path string) bool {
	if strings.EqualFold(language, "markdown") {
		return true
	}
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}
