package parser

// grammar describes, for one Language, which AST node kinds introduce which
// symbols.Kind, which kinds are decision points for cyclomatic complexity,
// and how doc comments are recognized. Values follow the public node-type
// vocabularies of the tree-sitter-{go,python,javascript,typescript,rust}
// grammars.
type grammar struct {
	// nodeKind -> symbol kind for declaration-introducing nodes.
	declarations map[string]string // value is a symbols.Kind string, converted by buildSymbol

	// methodDeclarations are declaration kinds that are always methods
	// (carry a receiver/owner) rather than free functions.
	methodDeclarations map[string]bool

	// decisionKinds are node kinds that add one to cyclomatic complexity.
	decisionKinds map[string]bool

	// shortCircuitOperators: a binary expression node whose "operator"
	// field text is one of these also counts as a decision point.
	shortCircuitOperators map[string]bool

	// commentKinds are node kinds recognized as comments.
	commentKinds map[string]bool
	// docMarkers are comment text prefixes that mark a doc comment.
	docMarkers []string

	// callKinds / instantiationKinds / importKinds / implementationKinds
	// classify a Reference by the immediate parent node kind of the
	// identifier use.
	callKinds           map[string]bool
	instantiationKinds  map[string]bool
	importKinds         map[string]bool
	implementationKinds map[string]bool

	// identifierKinds are leaf node kinds eligible to be a Reference.
	identifierKinds map[string]bool
}

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

var grammars = map[Language]grammar{
	LangGo: {
		declarations: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_spec":            "type", // refined to struct/interface by inspecting its child
			"const_spec":           "constant",
			"var_spec":             "variable",
		},
		methodDeclarations: set("method_declaration"),
		decisionKinds: set("if_statement", "for_statement", "expression_switch_statement",
			"type_switch_statement", "communication_case", "expression_case", "default_case",
			"select_statement"),
		shortCircuitOperators: set("&&", "||"),
		commentKinds:          set("comment"),
		docMarkers:            []string{"//"},
		callKinds:             set("call_expression"),
		instantiationKinds:    set("composite_literal"),
		importKinds:           set("import_spec", "import_declaration"),
		implementationKinds:   set(),
		identifierKinds:       set("identifier", "type_identifier", "field_identifier"),
	},
	LangPython: {
		declarations: map[string]string{
			"function_definition": "function",
			"class_definition":    "class",
		},
		methodDeclarations: set(), // refined: function_definition nested in class_definition body
		decisionKinds: set("if_statement", "for_statement", "while_statement", "try_statement",
			"except_clause", "case_clause", "match_statement", "conditional_expression"),
		shortCircuitOperators: set("and", "or"),
		commentKinds:          set("comment"),
		docMarkers:            []string{"#"},
		callKinds:             set("call"),
		instantiationKinds:    set("call"), // python has no `new`; classifyReference treats a call whose callee name starts upper-case as an instantiation, any other as a call
		importKinds:           set("import_statement", "import_from_statement"),
		implementationKinds:   set(),
		identifierKinds:       set("identifier"),
	},
	LangJavaScript: {
		declarations: map[string]string{
			"function_declaration": "function",
			"method_definition":    "method",
			"class_declaration":    "class",
		},
		methodDeclarations: set("method_definition"),
		decisionKinds: set("if_statement", "for_statement", "for_in_statement", "while_statement",
			"do_statement", "switch_case", "catch_clause", "ternary_expression"),
		shortCircuitOperators: set("&&", "||"),
		commentKinds:          set("comment"),
		docMarkers:            []string{"/**"},
		callKinds:             set("call_expression"),
		instantiationKinds:    set("new_expression"),
		importKinds:           set("import_statement", "import_clause"),
		implementationKinds:   set(),
		identifierKinds:       set("identifier", "property_identifier", "type_identifier"),
	},
	LangTypeScript: {
		declarations: map[string]string{
			"function_declaration":   "function",
			"method_definition":      "method",
			"class_declaration":      "class",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
			"enum_declaration":       "enum",
		},
		methodDeclarations: set("method_definition"),
		decisionKinds: set("if_statement", "for_statement", "for_in_statement", "while_statement",
			"do_statement", "switch_case", "catch_clause", "ternary_expression"),
		shortCircuitOperators: set("&&", "||"),
		commentKinds:          set("comment"),
		docMarkers:            []string{"/**"},
		callKinds:             set("call_expression"),
		instantiationKinds:    set("new_expression"),
		importKinds:           set("import_statement", "import_clause"),
		implementationKinds:   set("implements_clause"),
		identifierKinds:       set("identifier", "property_identifier", "type_identifier"),
	},
	LangRust: {
		declarations: map[string]string{
			"function_item": "function",
			"struct_item":   "struct",
			"enum_item":     "enum",
			"trait_item":    "trait",
			"type_item":     "type",
			"const_item":    "constant",
		},
		methodDeclarations: set(), // refined: function_item nested in impl_item
		decisionKinds: set("if_expression", "if_let_expression", "for_expression", "while_expression",
			"while_let_expression", "match_arm", "loop_expression"),
		shortCircuitOperators: set("&&", "||"),
		commentKinds:          set("line_comment", "block_comment"),
		docMarkers:            []string{"///", "//!", "/**"},
		callKinds:             set("call_expression"),
		instantiationKinds:    set("struct_expression"),
		importKinds:           set("use_declaration"),
		implementationKinds:   set("impl_item"),
		identifierKinds:       set("identifier", "type_identifier", "field_identifier"),
	},
	LangTSX: {
		declarations: map[string]string{
			"function_declaration":   "function",
			"method_definition":      "method",
			"class_declaration":      "class",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
			"enum_declaration":       "enum",
		},
		methodDeclarations: set("method_definition"),
		decisionKinds: set("if_statement", "for_statement", "for_in_statement", "while_statement",
			"do_statement", "switch_case", "catch_clause", "ternary_expression"),
		shortCircuitOperators: set("&&", "||"),
		commentKinds:          set("comment"),
		docMarkers:            []string{"/**"},
		callKinds:             set("call_expression"),
		instantiationKinds:    set("new_expression"),
		importKinds:           set("import_statement", "import_clause"),
		implementationKinds:   set("implements_clause"),
		identifierKinds:       set("identifier", "property_identifier", "type_identifier"),
	},
}
