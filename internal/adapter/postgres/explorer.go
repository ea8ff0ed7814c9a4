package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgergate/ledgergate/internal/core/domain"
	"github.com/ledgergate/ledgergate/internal/core/port"
)

const sampleRowLimit = 5

// Explorer answers schema discovery questions against the catalog,
// scoped to an allowed schema list.
type Explorer struct {
	pool    *pgxpool.Pool
	schemas []string
}

func NewExplorer(pool *pgxpool.Pool, schemas []string) *Explorer {
	return &Explorer{pool: pool, schemas: schemas}
}

var _ port.SchemaExplorer = (*Explorer)(nil)

func (e *Explorer) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	filter, args := schemaFilter("s.schema_name", e.schemas, 1)
	query := fmt.Sprintf(queryListSchemas, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schemas: %w", err)
	}
	defer rows.Close()

	var schemas []port.SchemaInfo
	for rows.Next() {
		var s port.SchemaInfo
		if err := rows.Scan(&s.Name); err != nil {
			return nil, fmt.Errorf("scanning schema: %w", err)
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

func (e *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	filter, args := schemaFilter("t.table_schema", e.schemas, 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	var tables []port.TableInfo
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.Type, &t.RowEstimate,
			&t.TotalBytes, &t.SizeHuman, &t.ColumnCount, &t.Comment); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// DescribeTable assembles the full shape of one table. When schema is
// empty the table name is resolved against the allowed schema list.
func (e *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail := &port.TableDetail{Name: tableName}

	var err error
	if schema == "" {
		detail.Schema, detail.Comment, err = e.resolveTable(ctx, tableName)
	} else {
		detail.Schema = schema
		detail.Comment, err = e.fetchTableComment(ctx, schema, tableName)
	}
	if err != nil {
		return nil, err
	}

	detail.RowEstimate, detail.TotalBytes, detail.SizeHuman, err = e.fetchTableSize(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}

	detail.Columns, err = e.fetchColumns(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}
	if err := e.markPrimaryKeys(ctx, detail); err != nil {
		return nil, err
	}
	if err := e.attachColumnStats(ctx, detail); err != nil {
		return nil, err
	}

	detail.ForeignKeys, err = e.fetchForeignKeys(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}
	detail.Indexes, err = e.fetchIndexes(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}
	detail.SampleRows, err = e.fetchSampleRows(ctx, detail.Schema, tableName)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// resolveTable finds which allowed schema holds a bare table name.
func (e *Explorer) resolveTable(ctx context.Context, tableName string) (schema, comment string, err error) {
	filter, filterArgs := schemaFilter("t.table_schema", e.schemas, 2) // $1 is tableName
	query := fmt.Sprintf(queryResolveTable, filter)

	args := make([]any, 0, 1+len(filterArgs))
	args = append(args, tableName)
	args = append(args, filterArgs...)

	err = e.pool.QueryRow(ctx, query, args...).Scan(&schema, &comment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if len(e.schemas) > 0 {
				return "", "", fmt.Errorf("table %q %w in schemas %v", tableName, domain.ErrNotFound, e.schemas)
			}
			return "", "", fmt.Errorf("table %q %w", tableName, domain.ErrNotFound)
		}
		return "", "", fmt.Errorf("resolving table %q: %w", tableName, err)
	}
	return schema, comment, nil
}

func (e *Explorer) fetchTableComment(ctx context.Context, schema, tableName string) (string, error) {
	var comment string
	err := e.pool.QueryRow(ctx, queryTableComment, schema, tableName).Scan(&comment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("table %q %w in schema %q", tableName, domain.ErrNotFound, schema)
		}
		return "", fmt.Errorf("querying table comment for %q.%q: %w", schema, tableName, err)
	}
	return comment, nil
}

func (e *Explorer) fetchTableSize(ctx context.Context, schema, tableName string) (rowEstimate, totalBytes int64, sizeHuman string, err error) {
	err = e.pool.QueryRow(ctx, queryTableSize, schema, tableName).
		Scan(&rowEstimate, &totalBytes, &sizeHuman)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, "", fmt.Errorf("table %q %w in schema %q", tableName, domain.ErrNotFound, schema)
		}
		return 0, 0, "", fmt.Errorf("querying table size: %w", err)
	}
	return rowEstimate, totalBytes, sizeHuman, nil
}

func (e *Explorer) fetchColumns(ctx context.Context, schema, tableName string) ([]port.ColumnInfo, error) {
	rows, err := e.pool.Query(ctx, queryColumns, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var cols []port.ColumnInfo
	for rows.Next() {
		var col port.ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.DefaultValue, &col.Comment); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (e *Explorer) markPrimaryKeys(ctx context.Context, detail *port.TableDetail) error {
	rows, err := e.pool.Query(ctx, queryPrimaryKeys, detail.Schema, detail.Name)
	if err != nil {
		return fmt.Errorf("querying primary keys: %w", err)
	}
	defer rows.Close()

	pkCols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning pk: %w", err)
		}
		pkCols[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range detail.Columns {
		if pkCols[detail.Columns[i].Name] {
			detail.Columns[i].IsPrimaryKey = true
		}
	}
	return nil
}

// attachColumnStats enriches columns with pg_stats data. Missing stats
// (fresh tables, never analyzed) leave Stats nil rather than failing.
func (e *Explorer) attachColumnStats(ctx context.Context, detail *port.TableDetail) error {
	rows, err := e.pool.Query(ctx, queryColumnStats, detail.Schema, detail.Name)
	if err != nil {
		return fmt.Errorf("querying column stats: %w", err)
	}
	defer rows.Close()

	statsMap := make(map[string]*port.ColumnStats)
	for rows.Next() {
		var (
			attname   string
			nullFrac  float64
			nDistinct float64
			mcvRaw    *string
		)
		if err := rows.Scan(&attname, &nullFrac, &nDistinct, &mcvRaw); err != nil {
			return fmt.Errorf("scanning column stats: %w", err)
		}

		absDistinct := pgDistinctToAbsolute(nDistinct, detail.RowEstimate)
		stats := &port.ColumnStats{
			NullFraction:  nullFrac,
			DistinctCount: absDistinct,
			Cardinality:   domain.ClassifyCardinality(absDistinct, detail.RowEstimate),
		}
		if stats.Cardinality == domain.CardinalityEnumLike && mcvRaw != nil {
			stats.MostCommonVals = parsePgArray(*mcvRaw)
		}
		statsMap[attname] = stats
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating column stats: %w", err)
	}

	for i := range detail.Columns {
		if s, ok := statsMap[detail.Columns[i].Name]; ok {
			detail.Columns[i].Stats = s
		}
	}
	return nil
}

func (e *Explorer) fetchForeignKeys(ctx context.Context, schema, tableName string) ([]port.ForeignKey, error) {
	rows, err := e.pool.Query(ctx, queryForeignKeys, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []port.ForeignKey
	for rows.Next() {
		var fk port.ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scanning fk: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (e *Explorer) fetchIndexes(ctx context.Context, schema, tableName string) ([]port.IndexInfo, error) {
	rows, err := e.pool.Query(ctx, queryIndexes, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying indexes: %w", err)
	}
	defer rows.Close()

	var idxs []port.IndexInfo
	for rows.Next() {
		var idx port.IndexInfo
		if err := rows.Scan(&idx.Name, &idx.Definition, &idx.IsUnique); err != nil {
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}

func (e *Explorer) fetchSampleRows(ctx context.Context, schema, tableName string) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d",
		quoteIdent(schema), quoteIdent(tableName), sampleRowLimit)

	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sample rows: %w", err)
	}
	defer rows.Close()

	return rowsToMaps(rows)
}

// pgDistinctToAbsolute converts pg_stats n_distinct to an absolute count.
// pg_stats semantics:
//   - -1.0 = all values unique, returns rowEstimate
//   - negative = fraction of rows that are distinct (e.g., -0.5 = 50% unique)
//   - positive = estimated number of distinct values
func pgDistinctToAbsolute(nDistinct float64, rowEstimate int64) int64 {
	if nDistinct == -1 {
		return rowEstimate
	}
	if nDistinct < 0 {
		return int64(math.Round(-nDistinct * float64(rowEstimate)))
	}
	return int64(math.Round(nDistinct))
}

// parsePgArray parses a PostgreSQL text array like {val1,"val 2",val3}.
// Handles basic quoting but not every edge case (enough for display).
func parsePgArray(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return nil
	}
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")

	var result []string
	var current strings.Builder
	inQuote := false
	escaped := false

	for _, ch := range raw {
		if escaped {
			current.WriteRune(ch)
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inQuote = !inQuote
		case ch == ',' && !inQuote:
			val := strings.TrimSpace(current.String())
			if val != "NULL" {
				result = append(result, val)
			}
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		val := strings.TrimSpace(current.String())
		if val != "NULL" {
			result = append(result, val)
		}
	}
	return result
}
