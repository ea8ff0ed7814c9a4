package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/core/domain"
	"github.com/ledgergate/ledgergate/internal/core/port"
	"github.com/ledgergate/ledgergate/internal/core/service"
)

// --- mock SchemaExplorer ---

type mockExplorer struct {
	schemas []port.SchemaInfo
	tables  []port.TableInfo
	detail  *port.TableDetail
	err     error
}

func (m *mockExplorer) ListSchemas(_ context.Context) ([]port.SchemaInfo, error) {
	return m.schemas, m.err
}

func (m *mockExplorer) ListTables(_ context.Context) ([]port.TableInfo, error) {
	return m.tables, m.err
}

func (m *mockExplorer) DescribeTable(_ context.Context, _, _ string) (*port.TableDetail, error) {
	return m.detail, m.err
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	result  []map[string]any
	err     error
	lastSQL string // captures the SQL passed to Execute
}

func (m *mockExecutor) Execute(_ context.Context, sql string) ([]map[string]any, error) {
	m.lastSQL = sql
	return m.result, m.err
}

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func setupServer(explorer *mockExplorer, executor *mockExecutor) *server.MCPServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var querySvc *service.QueryService
	if executor != nil {
		querySvc = service.NewQueryService(domain.NewGuard(), executor, audit.NoopAuditor{}, logger, nil, nil, nil)
	}

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, service.NewExplorerService(explorer), querySvc)
	return s
}

// --- tests ---

func TestListSchemas_HappyPath(t *testing.T) {
	explorer := &mockExplorer{
		schemas: []port.SchemaInfo{{Name: "public"}, {Name: "analytics"}},
	}
	s := setupServer(explorer, nil)

	result := callTool(t, s, "list_schemas", nil)
	text := toolText(result)

	var schemas []port.SchemaInfo
	require.NoError(t, json.Unmarshal([]byte(text), &schemas))
	require.Len(t, schemas, 2)
	assert.Equal(t, "public", schemas[0].Name)
}

func TestListSchemas_Error(t *testing.T) {
	explorer := &mockExplorer{err: fmt.Errorf("permission denied")}
	s := setupServer(explorer, nil)

	result := callTool(t, s, "list_schemas", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "failed to list schemas")
}

func TestListTables_HappyPath(t *testing.T) {
	explorer := &mockExplorer{
		tables: []port.TableInfo{
			{Schema: "public", Name: "companies", Type: "table", RowEstimate: 3},
			{Schema: "public", Name: "prices", Type: "table", RowEstimate: 300},
		},
	}
	s := setupServer(explorer, nil)

	result := callTool(t, s, "list_tables", nil)
	text := toolText(result)

	var tables []port.TableInfo
	require.NoError(t, json.Unmarshal([]byte(text), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "prices", tables[1].Name)
	assert.Equal(t, int64(300), tables[1].RowEstimate)
}

func TestDescribeTable_HappyPath(t *testing.T) {
	explorer := &mockExplorer{
		detail: &port.TableDetail{
			Schema:      "public",
			Name:        "accounts",
			RowEstimate: 50,
			Columns: []port.ColumnInfo{
				{Name: "id", DataType: "integer", IsPrimaryKey: true},
				{Name: "account_number", DataType: "text", Stats: &port.ColumnStats{
					Cardinality:   domain.CardinalityUnique,
					NullFraction:  0,
					DistinctCount: 50,
				}},
			},
		},
	}
	s := setupServer(explorer, nil)

	result := callTool(t, s, "describe_table", map[string]any{"table_name": "accounts"})
	text := toolText(result)

	var detail port.TableDetail
	require.NoError(t, json.Unmarshal([]byte(text), &detail))
	assert.Equal(t, "accounts", detail.Name)
	assert.Len(t, detail.Columns, 2)
	assert.NotNil(t, detail.Columns[1].Stats)
	assert.Equal(t, domain.CardinalityUnique, detail.Columns[1].Stats.Cardinality)
}

func TestDescribeTable_MissingTableName(t *testing.T) {
	s := setupServer(&mockExplorer{}, nil)

	result := callTool(t, s, "describe_table", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "table_name is required")
}

func TestDescribeTable_Error(t *testing.T) {
	explorer := &mockExplorer{err: fmt.Errorf("table %q not found", "nonexistent")}
	s := setupServer(explorer, nil)

	result := callTool(t, s, "describe_table", map[string]any{"table_name": "nonexistent"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "failed to describe table")
}

func TestQuery_HappyPath(t *testing.T) {
	executor := &mockExecutor{
		result: []map[string]any{{"ticker": "ACME", "close": 123.45}},
	}
	s := setupServer(&mockExplorer{}, executor)

	result := callTool(t, s, "query", map[string]any{
		"sql": "SELECT ticker, close FROM prices JOIN companies ON companies.id = prices.company_id",
	})
	text := toolText(result)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "ACME", rows[0]["ticker"])
}

func TestQuery_MissingSQL(t *testing.T) {
	s := setupServer(&mockExplorer{}, &mockExecutor{})

	result := callTool(t, s, "query", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}

func TestQuery_ExecutorError(t *testing.T) {
	executor := &mockExecutor{err: fmt.Errorf("connection timeout")}
	s := setupServer(&mockExplorer{}, executor)

	result := callTool(t, s, "query", map[string]any{"sql": "SELECT 1"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "query failed")
}

func TestQuery_RejectsWrites(t *testing.T) {
	executor := &mockExecutor{}
	s := setupServer(&mockExplorer{}, executor)

	result := callTool(t, s, "query", map[string]any{"sql": "DROP TABLE trades"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "DROP")
	assert.Empty(t, executor.lastSQL, "rejected query must not reach the executor")
}

func TestQuery_RejectsMultiStatement(t *testing.T) {
	executor := &mockExecutor{}
	s := setupServer(&mockExplorer{}, executor)

	result := callTool(t, s, "query", map[string]any{
		"sql": "SELECT 1; SELECT 2",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "multiple statements")
	assert.Empty(t, executor.lastSQL)
}

func TestExplainQuery_HappyPath(t *testing.T) {
	executor := &mockExecutor{
		result: []map[string]any{{"QUERY PLAN": "Seq Scan on prices"}},
	}
	s := setupServer(&mockExplorer{}, executor)

	result := callTool(t, s, "explain_query", map[string]any{
		"sql": "SELECT close FROM prices",
	})
	assert.False(t, result.IsError)
	assert.Equal(t, "EXPLAIN SELECT close FROM prices", executor.lastSQL)
}

func TestExplainQuery_Analyze(t *testing.T) {
	executor := &mockExecutor{
		result: []map[string]any{{"QUERY PLAN": "Seq Scan on prices (actual time=0.01..0.02 rows=1)"}},
	}
	s := setupServer(&mockExplorer{}, executor)

	result := callTool(t, s, "explain_query", map[string]any{
		"sql":     "SELECT close FROM prices",
		"analyze": true,
	})
	assert.False(t, result.IsError)
	assert.Equal(t, "EXPLAIN ANALYZE SELECT close FROM prices", executor.lastSQL)
}

func TestExplainQuery_RejectsWrites(t *testing.T) {
	executor := &mockExecutor{}
	s := setupServer(&mockExplorer{}, executor)

	result := callTool(t, s, "explain_query", map[string]any{
		"sql": "UPDATE accounts SET status = 'closed'",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "UPDATE")
	assert.Empty(t, executor.lastSQL)
}

func TestExplainQuery_MissingSQL(t *testing.T) {
	s := setupServer(&mockExplorer{}, &mockExecutor{})

	result := callTool(t, s, "explain_query", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}
