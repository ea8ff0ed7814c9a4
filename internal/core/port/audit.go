package port

import "context"

// AuditEntry is one auditable query event. Rejected queries are recorded
// too, since a stream of guard rejections is the interesting security signal.
type AuditEntry struct {
	RequestID    string
	Tool         string
	SQL          string
	Rejected     bool
	RowsReturned int
	DurationMS   int64
	Err          error
}

// QueryAuditor records query audit events. Implementations must not fail
// the request on audit I/O errors.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
