package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ledgergate/ledgergate/internal/core/service"
)

// Tool descriptions
const (
	descListSchemas = "List all available database schemas. " +
		"Call this first to discover what schemas exist before listing tables or describing them."

	descListTables = "List all tables and views with schema, type, estimated row count, total size, " +
		"column count, and comments. Use this to understand the dataset landscape: " +
		"a prices or trades table with millions of rows needs aggregation, not SELECT *, " +
		"and row estimates help you choose sensible LIMIT clauses."

	descDescribeTable = "Describe a table's full structure: columns with types, nullability, defaults, and comments; " +
		"column statistics (cardinality classification, null rates, common values for enum-like columns); " +
		"primary keys; foreign keys with referenced tables; indexes; row estimate; table size; and sample rows. " +
		"Use this before writing queries. Foreign keys show JOIN paths (prices.company_id -> companies.id), " +
		"enum-like columns show the values you can filter on, and null rates matter for " +
		"columns like closed_at that are only set on some rows. " +
		"Sensitive columns in sample rows arrive masked."

	descDescribeTableParam = "Name of the table to describe"

	descQuery = "Execute a read-only SQL query and return results as a JSON array of objects. " +
		"Only single SELECT statements (including WITH and UNION) are accepted; " +
		"anything that writes or changes state is rejected before reaching the database. " +
		"A server-side row limit and query timeout are enforced, and sensitive columns are masked. " +
		"Use specific column names instead of SELECT *, and JOIN along foreign keys " +
		"discovered via describe_table."

	descQueryParam = "SQL query to execute (SELECT statements only)"

	descExplainQuery = "Show the PostgreSQL execution plan for a SELECT query. " +
		"Returns the planner's strategy including scan types, join methods, and cost estimates. " +
		"The query is validated by the same rules as the query tool before being explained. " +
		"Supports ANALYZE to include actual execution statistics (the query WILL be executed)."

	descExplainQuerySQL = "The SELECT query to explain (without the EXPLAIN keyword)"
)

func RegisterTools(s *server.MCPServer, explorer *service.ExplorerService, query *service.QueryService) {
	s.AddTool(
		mcp.NewTool("list_schemas",
			mcp.WithDescription(descListSchemas),
		),
		listSchemasHandler(explorer),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
		),
		listTablesHandler(explorer),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descDescribeTableParam),
			),
			mcp.WithString("schema",
				mcp.Description("Schema name (optional, resolves automatically if omitted)"),
			),
		),
		describeTableHandler(explorer),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descQueryParam),
			),
		),
		queryHandler(query),
	)

	s.AddTool(
		mcp.NewTool("explain_query",
			mcp.WithDescription(descExplainQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descExplainQuerySQL),
			),
			mcp.WithBoolean("analyze",
				mcp.Description("Include actual execution statistics (executes the query). Defaults to false."),
			),
		),
		explainQueryHandler(query),
	)
}

func listSchemasHandler(explorer *service.ExplorerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemas, err := explorer.ListSchemas(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list schemas: %v", err)), nil
		}
		return marshalResult(schemas)
	}
}

func listTablesHandler(explorer *service.ExplorerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := explorer.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
		}
		return marshalResult(tables)
	}
}

func describeTableHandler(explorer *service.ExplorerService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)

		detail, err := explorer.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
		}
		return marshalResult(detail)
	}
}

func queryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "query")
		results, err := query.Execute(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(results)
	}
}

func explainQueryHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		analyze, _ := request.GetArguments()["analyze"].(bool)

		ctx = service.WithToolName(ctx, "explain_query")
		results, err := query.Explain(ctx, sql, analyze)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("explain failed: %v", err)), nil
		}
		return marshalResult(results)
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
