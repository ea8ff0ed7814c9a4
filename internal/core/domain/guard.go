package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ErrorKind identifies which validation rule a rejected query violated.
// Callers branch on the kind: a syntax error is worth sending back to the
// agent for correction, a disallowed operation is a hard reject.
type ErrorKind string

const (
	KindEmptyQuery          ErrorKind = "empty_query"
	KindSyntaxError         ErrorKind = "syntax_error"
	KindMultipleStatements  ErrorKind = "multiple_statements"
	KindDisallowedOperation ErrorKind = "disallowed_operation"
	KindInvalidStructure    ErrorKind = "invalid_structure"
)

// SecurityError is the typed rejection returned by Guard.Validate.
// Operation is set when Kind is KindDisallowedOperation and the specific
// SQL operation could be named (e.g. "DROP").
type SecurityError struct {
	Kind      ErrorKind
	Operation string
	Message   string
	cause     error
}

func (e *SecurityError) Error() string { return e.Message }

// Unwrap exposes the underlying parser error for KindSyntaxError.
func (e *SecurityError) Unwrap() error { return e.cause }

// KindOf extracts the validation ErrorKind from err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var se *SecurityError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// Guard is the allow-list gate between LLM-generated SQL and a live
// database connection. It accepts exactly one read-only statement (a
// SELECT, optionally carrying a WITH clause or combined via set
// operations) and rejects everything else with a SecurityError.
//
// Validation is structural: the query is parsed with the real PostgreSQL
// grammar and classified by AST node type, never by substring matching.
// Keywords inside string literals, quoted identifiers, or comments cannot
// trigger a rejection, and no amount of case or whitespace obfuscation
// hides a write statement from the classifier.
//
// Guard is stateless and safe for concurrent use.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Validate checks sql and returns it trimmed of surrounding whitespace.
// The query text is never rewritten or sanitized; the only outcomes are
// the trimmed original or a *SecurityError. The first violated rule wins:
// empty input, then syntax, then statement count, then root statement
// type, then WITH/UNION structure and the deny scan over every node of
// the parse tree.
func (g *Guard) Validate(sql string) (string, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "", &SecurityError{Kind: KindEmptyQuery, Message: "empty query"}
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return "", &SecurityError{
			Kind:    KindSyntaxError,
			Message: fmt.Sprintf("invalid SQL syntax: %v", err),
			cause:   err,
		}
	}

	// Comment-only input parses to zero statements; that is still an
	// empty query, not a multi-statement violation.
	if len(tree.Stmts) == 0 {
		return "", &SecurityError{Kind: KindEmptyQuery, Message: "query contains no SQL statement"}
	}
	if len(tree.Stmts) > 1 {
		return "", &SecurityError{
			Kind:    KindMultipleStatements,
			Message: fmt.Sprintf("query contains multiple statements (%d), only one is allowed", len(tree.Stmts)),
		}
	}

	root := tree.Stmts[0].Stmt
	if root == nil || root.Node == nil {
		return "", &SecurityError{Kind: KindEmptyQuery, Message: "query contains no SQL statement"}
	}

	sel := root.GetSelectStmt()
	if sel == nil {
		if op, ok := operationName(root); ok {
			return "", disallowedOperation(op)
		}
		return "", &SecurityError{
			Kind:    KindDisallowedOperation,
			Message: "only SELECT/WITH/UNION queries are allowed",
		}
	}

	// In the PostgreSQL AST both WITH and set operations are facets of
	// SelectStmt, so a SELECT root covers all three allowed shapes. A
	// bare VALUES list also parses as SelectStmt and must be told apart.
	if isBareValues(sel) {
		if sel.WithClause != nil {
			return "", invalidStructure("WITH must wrap a SELECT or UNION")
		}
		return "", &SecurityError{
			Kind:    KindDisallowedOperation,
			Message: "only SELECT/WITH/UNION queries are allowed",
		}
	}

	// Scan every descendant node for deny-listed operations. This is what
	// catches data-modifying CTEs and writes smuggled into subqueries or
	// set-operation branches.
	if err := denyScan(root); err != nil {
		return "", err
	}

	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		if err := checkSetOpBranches(sel); err != nil {
			return "", err
		}
	}

	return trimmed, nil
}

func disallowedOperation(op string) *SecurityError {
	return &SecurityError{
		Kind:      KindDisallowedOperation,
		Operation: op,
		Message:   fmt.Sprintf("disallowed SQL operation %q", op),
	}
}

func invalidStructure(msg string) *SecurityError {
	return &SecurityError{Kind: KindInvalidStructure, Message: msg}
}

// isBareValues reports whether sel is a VALUES list rather than a real
// SELECT. Set-operation nodes keep their rows in the branches, so only a
// leaf SelectStmt can be a bare VALUES.
func isBareValues(sel *pg_query.SelectStmt) bool {
	return sel.Op == pg_query.SetOperation_SETOP_NONE && len(sel.ValuesLists) > 0
}

// checkSetOpBranches verifies that every branch of a set operation is
// itself SELECT-shaped. The grammar guarantees branches are SelectStmt
// nodes, so the only structural violations left are missing branches and
// bare VALUES lists.
func checkSetOpBranches(sel *pg_query.SelectStmt) error {
	for _, branch := range []*pg_query.SelectStmt{sel.Larg, sel.Rarg} {
		if branch == nil {
			return invalidStructure("UNION must combine SELECT queries only")
		}
		if branch.Op != pg_query.SetOperation_SETOP_NONE {
			if err := checkSetOpBranches(branch); err != nil {
				return err
			}
			continue
		}
		if len(branch.ValuesLists) > 0 {
			return invalidStructure("UNION must combine SELECT queries only")
		}
		// The grammar hangs a branch's INTO target on the leaf SelectStmt,
		// which the node walk does not visit directly.
		if branch.IntoClause != nil {
			return disallowedOperation("CREATE")
		}
	}
	return nil
}

// denyScan walks the full parse tree under root and rejects the first
// deny-listed operation it finds at any nesting depth. SELECT INTO is a
// special case: it creates a table yet parses as a plain SelectStmt
// carrying an IntoClause, so the scan checks every SelectStmt for one,
// the root included.
func denyScan(root *pg_query.Node) error {
	return walkNodes(root, func(n *pg_query.Node) error {
		if sel := n.GetSelectStmt(); sel != nil && sel.IntoClause != nil {
			return disallowedOperation("CREATE")
		}
		if n == root {
			return nil // root is already classified as a SELECT
		}
		if op, ok := operationName(n); ok {
			return disallowedOperation(op)
		}
		return nil
	})
}

// operationName maps a parse-tree node to the deny-listed SQL operation it
// represents. Statement families with many node types (CREATE, DROP,
// ALTER) are matched by their oneof field name prefix; the rest are
// explicit. REPLACE and USE never reach this table; they are not part of
// the PostgreSQL grammar and fail earlier as syntax errors.
func operationName(n *pg_query.Node) (string, bool) {
	switch v := n.Node.(type) {
	case *pg_query.Node_InsertStmt:
		return "INSERT", true
	case *pg_query.Node_UpdateStmt:
		return "UPDATE", true
	case *pg_query.Node_DeleteStmt:
		return "DELETE", true
	case *pg_query.Node_MergeStmt:
		return "MERGE", true
	case *pg_query.Node_TruncateStmt:
		return "TRUNCATE", true
	case *pg_query.Node_GrantStmt:
		if v.GrantStmt.GetIsGrant() {
			return "GRANT", true
		}
		return "REVOKE", true
	case *pg_query.Node_GrantRoleStmt:
		if v.GrantRoleStmt.GetIsGrant() {
			return "GRANT", true
		}
		return "REVOKE", true
	case *pg_query.Node_CallStmt:
		return "CALL", true
	case *pg_query.Node_ExecuteStmt:
		return "EXECUTE", true
	case *pg_query.Node_VariableSetStmt:
		return "SET", true
	case *pg_query.Node_DeclareCursorStmt:
		return "DECLARE", true
	case *pg_query.Node_RenameStmt:
		return "ALTER", true
	case *pg_query.Node_IndexStmt, *pg_query.Node_ViewStmt:
		return "CREATE", true
	}

	switch kind := nodeKind(n); {
	case strings.HasPrefix(kind, "create"):
		return "CREATE", true
	case strings.HasPrefix(kind, "drop"):
		return "DROP", true
	case strings.HasPrefix(kind, "alter"):
		return "ALTER", true
	}
	return "", false
}

// nodeKind returns the snake_case oneof field name of the wrapped node,
// e.g. "create_table_as_stmt".
func nodeKind(n *pg_query.Node) string {
	ref := n.ProtoReflect()
	oneofs := ref.Descriptor().Oneofs()
	if oneofs.Len() == 0 {
		return ""
	}
	fd := ref.WhichOneof(oneofs.Get(0))
	if fd == nil {
		return ""
	}
	return string(fd.Name())
}

// walkNodes performs a depth-first traversal of the parse tree's protobuf
// form, invoking visit on every wrapped Node it encounters. Traversal
// stops at the first non-nil error from visit.
func walkNodes(m proto.Message, visit func(*pg_query.Node) error) error {
	if m == nil {
		return nil
	}
	if n, ok := m.(*pg_query.Node); ok {
		if err := visit(n); err != nil {
			return err
		}
	}

	var walkErr error
	m.ProtoReflect().Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsList():
			if fd.Kind() != protoreflect.MessageKind {
				return true
			}
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				if err := walkNodes(list.Get(i).Message().Interface(), visit); err != nil {
					walkErr = err
					return false
				}
			}
		case fd.IsMap():
			// The postgres parse tree has no message-valued maps.
		case fd.Kind() == protoreflect.MessageKind:
			if err := walkNodes(v.Message().Interface(), visit); err != nil {
				walkErr = err
				return false
			}
		}
		return true
	})
	return walkErr
}
