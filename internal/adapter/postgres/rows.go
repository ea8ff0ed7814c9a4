package postgres

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsToMaps converts pgx.Rows into result maps keyed by column name. Every
// value passes through normalizeValue so the maps are safe to hand to the
// masking pipeline and the JSON tool responses.
func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	var result []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(vals[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

// normalizeValue maps pgx driver representations onto plain Go values.
// pgtype.Numeric would JSON-encode as its struct fields and a raw uuid as
// a byte array; both are also useless to string-based masks like partial,
// which must see the value's text form.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if s, err := val.Value(); err == nil {
			return s
		}
		return fmt.Sprintf("%v", val)
	default:
		return v
	}
}
