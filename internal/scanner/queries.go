package scanner

// Queries holds the tree-sitter query capturing import statements, keyed by
// language. Every match exposes the whole statement as @import.
var Queries = map[string]string{
	"python": `
		[
			(import_statement)
			(import_from_statement)
			(future_import_statement)
		] @import
	`,
}

// Python grammar node kinds walked while decoding a captured statement.
const (
	kindImport         = "import_statement"
	kindImportFrom     = "import_from_statement"
	kindFutureImport   = "future_import_statement"
	kindDottedName     = "dotted_name"
	kindAliasedImport  = "aliased_import"
	kindWildcardImport = "wildcard_import"
	kindRelativeImport = "relative_import"
	kindImportPrefix   = "import_prefix"
	kindIdentifier     = "identifier"
	kindAttribute      = "attribute"
	kindIfStatement    = "if_statement"
	kindElifClause     = "elif_clause"
	kindBlock          = "block"
)

// typeCheckingFlag is the constant guarding imports needed only by type
// checkers.
const typeCheckingFlag = "TYPE_CHECKING"
