package domain

import "errors"

// ErrNotFound marks schema-object lookups that matched nothing. Adapters
// wrap it with context; callers test with errors.Is.
var ErrNotFound = errors.New("not found")

// CardinalityClass summarises a column's value distribution for the
// querying agent: an enum-like status column is something to GROUP BY, a
// unique identifier is something to JOIN or filter on.
type CardinalityClass string

const (
	CardinalityUnique     CardinalityClass = "unique"
	CardinalityNearUnique CardinalityClass = "near_unique"
	CardinalityHigh       CardinalityClass = "high_cardinality"
	CardinalityLow        CardinalityClass = "low_cardinality"
	CardinalityEnumLike   CardinalityClass = "enum_like"
)

// ClassifyCardinality buckets a column by absolute distinct and total row
// counts. Adapters convert database-specific statistics (e.g. the
// fractional n_distinct from pg_stats) to absolute counts first.
func ClassifyCardinality(distinct, totalRows int64) CardinalityClass {
	if totalRows > 0 {
		if distinct == totalRows {
			return CardinalityUnique
		}
		if float64(distinct)/float64(totalRows) >= 0.9 {
			return CardinalityNearUnique
		}
	}

	switch {
	case distinct <= 20:
		return CardinalityEnumLike
	case distinct <= 200:
		return CardinalityLow
	default:
		return CardinalityHigh
	}
}
