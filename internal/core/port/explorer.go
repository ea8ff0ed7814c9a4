package port

import (
	"context"

	"github.com/ledgergate/ledgergate/internal/core/domain"
)

type SchemaInfo struct {
	Name string `json:"name"`
}

type TableInfo struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	Type        string `json:"type"` // "table" or "view"
	RowEstimate int64  `json:"row_estimate"`
	TotalBytes  int64  `json:"total_bytes,omitempty"`
	SizeHuman   string `json:"size_human,omitempty"`
	ColumnCount int    `json:"column_count"`
	Comment     string `json:"comment,omitempty"`
}

// ColumnStats carries pg_stats-derived profiling data so the agent can
// plan filters and aggregations without probing queries.
type ColumnStats struct {
	NullFraction   float64                 `json:"null_fraction"`
	DistinctCount  int64                   `json:"distinct_count"`
	Cardinality    domain.CardinalityClass `json:"cardinality"`
	MostCommonVals []string                `json:"most_common_vals,omitempty"`
}

type ColumnInfo struct {
	Name         string       `json:"name"`
	DataType     string       `json:"data_type"`
	IsNullable   bool         `json:"is_nullable"`
	DefaultValue string       `json:"default_value,omitempty"`
	IsPrimaryKey bool         `json:"is_primary_key"`
	Comment      string       `json:"comment,omitempty"`
	Stats        *ColumnStats `json:"stats,omitempty"`
}

type ForeignKey struct {
	ConstraintName   string `json:"constraint_name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
}

type TableDetail struct {
	Schema      string           `json:"schema"`
	Name        string           `json:"name"`
	Comment     string           `json:"comment,omitempty"`
	RowEstimate int64            `json:"row_estimate"`
	TotalBytes  int64            `json:"total_bytes,omitempty"`
	SizeHuman   string           `json:"size_human,omitempty"`
	Columns     []ColumnInfo     `json:"columns"`
	ForeignKeys []ForeignKey     `json:"foreign_keys,omitempty"`
	Indexes     []IndexInfo      `json:"indexes,omitempty"`
	SampleRows  []map[string]any `json:"sample_rows,omitempty"`
}

// SchemaExplorer provides the discovery surface the agent works from
// before writing queries: what exists, and what shape it has.
type SchemaExplorer interface {
	ListSchemas(ctx context.Context) ([]SchemaInfo, error)
	ListTables(ctx context.Context) ([]TableInfo, error)
	DescribeTable(ctx context.Context, schema, tableName string) (*TableDetail, error)
}
