package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ledgergate/ledgergate/internal/core/domain"
)

// Policy holds operator-controlled configuration loaded from a YAML file:
// business glossary entries for tables and columns, plus column-level
// masking directives for sensitive financial data.
type Policy struct {
	Context ContextConfig `yaml:"context"`
}

// ContextConfig maps fully-qualified table names (schema.table) to
// business descriptions that are merged into tool responses.
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

// TableContext provides descriptions and masking rules for a table and its columns.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's business description and optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML accepts both the struct format and a plain-string shorthand.
//
//	columns:
//	  trade_date: "Settlement date of the trade"   # shorthand, description only
//	  account_number:                              # struct with mask
//	    description: "Customer account number"
//	    mask: "partial"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	// Alias type avoids recursing back into this method.
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}
