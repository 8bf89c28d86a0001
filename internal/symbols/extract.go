// Package symbols auto-populates MemoryItem.Facets.Symbols for code
// items, grounded on the teacher's internal/chunk/code_chunker.go and
// internal/chunk/extractor.go: the same tree-sitter walk over a node's
// type against a per-language table of symbol-introducing node types,
// trimmed down from full chunking (chunk boundaries, doc comments,
// signatures) to "collect the declared symbol names" since this repo
// ingests whole items rather than splitting source files into chunks.
package symbols

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Extractor walks tree-sitter ASTs to collect declared symbol names.
type Extractor struct {
	parser *sitter.Parser
}

// NewExtractor returns an Extractor. Callers should Close it when done.
func NewExtractor() *Extractor {
	return &Extractor{parser: sitter.NewParser()}
}

// Close releases the underlying tree-sitter parser.
func (e *Extractor) Close() {
	if e.parser != nil {
		e.parser.Close()
	}
}

// Extract returns the distinct symbol names found in source for the
// given language, in tree order. The whole tree is walked, so methods
// and nested declarations are included alongside top-level ones. It
// returns a nil slice and no error for an unsupported language or empty
// source; a parser error is returned wrapped, and Enrich logs and
// ignores it.
func (e *Extractor) Extract(ctx context.Context, language string, source []byte) ([]string, error) {
	cfg, ok := languagesByName[language]
	if !ok {
		return nil, nil
	}
	if len(source) == 0 {
		return nil, nil
	}

	e.parser.SetLanguage(cfg.grammar)
	tree, err := e.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("symbols: parse %s: %w", language, err)
	}
	if tree == nil {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var names []string
	walk(tree.RootNode(), func(n *sitter.Node) {
		name := symbolName(n, cfg, source)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	})
	return names, nil
}

func walk(n *sitter.Node, visit func(*sitter.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), visit)
	}
}

// symbolName returns the identifier for n if n's type introduces a
// symbol under cfg, or "" otherwise.
func symbolName(n *sitter.Node, cfg languageConfig, source []byte) string {
	switch {
	case containsType(cfg.functionTypes, n.Type()), containsType(cfg.methodTypes, n.Type()):
		return firstChildContent(n, source, "identifier", "field_identifier")
	case containsType(cfg.classTypes, n.Type()):
		return firstChildContent(n, source, "identifier", "type_identifier")
	case containsType(cfg.typeDefTypes, n.Type()):
		return typeDeclName(n, source)
	case containsType(cfg.constTypes, n.Type()), containsType(cfg.varTypes, n.Type()):
		return specName(n, source)
	}
	return ""
}

// typeDeclName handles Go's `type_declaration -> type_spec ->
// type_identifier` nesting and TS/JS's flatter interface/type-alias
// declarations where the identifier is a direct child.
func typeDeclName(n *sitter.Node, source []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "type_spec" {
			if name := firstChildContent(child, source, "type_identifier"); name != "" {
				return name
			}
		}
	}
	return firstChildContent(n, source, "type_identifier", "identifier")
}

// specName handles Go's `const_declaration`/`var_declaration` nesting
// (one or more `const_spec`/`var_spec` children, each holding the
// identifier) and falls back to a direct identifier child for
// TS/JS's `lexical_declaration`/`variable_declaration`, whose name sits
// one level deeper inside a `variable_declarator`.
func specName(n *sitter.Node, source []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "const_spec", "var_spec":
			if name := firstChildContent(child, source, "identifier"); name != "" {
				return name
			}
		case "variable_declarator":
			if name := firstChildContent(child, source, "identifier"); name != "" {
				return name
			}
		}
	}
	return ""
}

func firstChildContent(n *sitter.Node, source []byte, wantTypes ...string) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if containsType(wantTypes, child.Type()) {
			return child.Content(source)
		}
	}
	return ""
}

func containsType(types []string, t string) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}
