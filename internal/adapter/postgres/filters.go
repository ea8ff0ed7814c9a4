package postgres

import (
	"fmt"
	"strings"
)

// schemaFilter builds a WHERE clause restricting a schema column to the
// allowed set, with positional params starting at argOffset. An empty
// allow list falls back to excluding system schemas.
func schemaFilter(column string, allowed []string, argOffset int) (string, []any) {
	if len(allowed) == 0 {
		return fmt.Sprintf(
			"%s NOT IN ('pg_catalog', 'information_schema') AND %s NOT LIKE 'pg_%%'",
			column, column,
		), nil
	}

	placeholders := make([]string, len(allowed))
	args := make([]any, len(allowed))
	for i, s := range allowed {
		placeholders[i] = fmt.Sprintf("$%d", argOffset+i)
		args[i] = s
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), args
}

// quoteIdent double-quotes a Postgres identifier, escaping embedded quotes.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
