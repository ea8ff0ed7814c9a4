package port

import "context"

// QueryValidator gates SQL before it can reach a connection. On success it
// returns the validated (trimmed) query, which is the only string callers
// may execute; on failure the error carries a domain.SecurityError.
type QueryValidator interface {
	Validate(sql string) (string, error)
}

// QueryExecutor runs an already-validated SQL statement and returns the
// result rows keyed by column name.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}
