package domain

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// MaskType is a column masking strategy applied to query results before
// they are returned to the calling agent. Financial result sets routinely
// carry account numbers, tax ids, and counterparty names that must not
// end up in LLM context windows.
type MaskType string

const (
	MaskRedact  MaskType = "redact"  // replace with "***"
	MaskHash    MaskType = "hash"    // sha256 hex; stable across rows, joinable
	MaskPartial MaskType = "partial" // reveal only the last four characters
	MaskNull    MaskType = "null"    // replace with SQL NULL
)

// Valid reports whether m is a recognised strategy. The zero value means
// "no mask" and is valid.
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a single value. Masked values may change type
// (numbers become strings under hash/partial). NULL input stays NULL.
func ApplyMask(value any, mask MaskType) any {
	if value == nil {
		return nil
	}

	switch mask {
	case MaskRedact:
		return "***"
	case MaskHash:
		sum := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
		return fmt.Sprintf("%x", sum)
	case MaskPartial:
		return maskPartial(fmt.Sprintf("%v", value))
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial keeps the last four characters visible, like a card-number
// receipt. Values of four characters or fewer are fully starred so short
// identifiers never leak whole.
func maskPartial(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	out := make([]rune, len(runes))
	for i := range out {
		if i < len(runes)-4 {
			out[i] = '*'
		} else {
			out[i] = runes[i]
		}
	}
	return string(out)
}

// MaskRows applies column masks to result rows in place. Matching is by
// column name only, across all tables: a column named account_number is
// masked no matter which relation produced it.
func MaskRows(rows []map[string]any, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for _, row := range rows {
		for col, mask := range masks {
			if val, ok := row[col]; ok {
				row[col] = ApplyMask(val, mask)
			}
		}
	}
}
