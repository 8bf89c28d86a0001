package symbols

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageConfig names the node types that introduce a top-level symbol
// for one grammar, and how to find that symbol's identifier.
type languageConfig struct {
	grammar *sitter.Language

	functionTypes []string
	methodTypes   []string
	classTypes    []string
	typeDefTypes  []string
	constTypes    []string
	varTypes      []string
}

// languagesByName mirrors spec.md's supported-language list for symbol
// extraction: go, typescript, tsx, javascript, jsx, python.
var languagesByName = map[string]languageConfig{
	"go": {
		grammar:       golang.GetLanguage(),
		functionTypes: []string{"function_declaration"},
		methodTypes:   []string{"method_declaration"},
		typeDefTypes:  []string{"type_declaration"},
		constTypes:    []string{"const_declaration"},
		varTypes:      []string{"var_declaration"},
	},
	"typescript": {
		grammar:       typescript.GetLanguage(),
		functionTypes: []string{"function_declaration"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
		typeDefTypes:  []string{"interface_declaration", "type_alias_declaration"},
		constTypes:    []string{"lexical_declaration"},
		varTypes:      []string{"variable_declaration"},
	},
	"tsx": {
		grammar:       tsx.GetLanguage(),
		functionTypes: []string{"function_declaration"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
		typeDefTypes:  []string{"interface_declaration", "type_alias_declaration"},
		constTypes:    []string{"lexical_declaration"},
		varTypes:      []string{"variable_declaration"},
	},
	"javascript": {
		grammar:       javascript.GetLanguage(),
		functionTypes: []string{"function_declaration", "function"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
		constTypes:    []string{"lexical_declaration"},
		varTypes:      []string{"variable_declaration"},
	},
	"jsx": {
		grammar:       javascript.GetLanguage(),
		functionTypes: []string{"function_declaration", "function"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
		constTypes:    []string{"lexical_declaration"},
		varTypes:      []string{"variable_declaration"},
	},
	"python": {
		grammar:       python.GetLanguage(),
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"class_definition"},
	},
}

// Supported reports whether language has a registered grammar.
func Supported(language string) bool {
	_, ok := languagesByName[language]
	return ok
}
