package policy

import (
	"github.com/ledgergate/ledgergate/internal/core/domain"
	"github.com/ledgergate/ledgergate/internal/core/port"
)

// MergeTableDetail enriches a TableDetail with business context from the
// policy. YAML descriptions apply only when the Postgres comment is
// empty, so operator-set COMMENT ON always wins.
func MergeTableDetail(detail *port.TableDetail, ctx ContextConfig) {
	if detail == nil {
		return
	}

	key := detail.Schema + "." + detail.Name
	tc, ok := ctx.Tables[key]
	if !ok {
		return
	}

	if detail.Comment == "" && tc.Description != "" {
		detail.Comment = tc.Description
	}

	for i, col := range detail.Columns {
		if cc, ok := tc.Columns[col.Name]; ok && col.Comment == "" && cc.Description != "" {
			detail.Columns[i].Comment = cc.Description
		}
	}
}

// MergeTableInfoList enriches a table listing with business context.
// Same precedence rule: YAML descriptions only fill empty comments.
func MergeTableInfoList(tables []port.TableInfo, ctx ContextConfig) {
	for i, t := range tables {
		key := t.Schema + "." + t.Name
		if tc, ok := ctx.Tables[key]; ok && t.Comment == "" && tc.Description != "" {
			tables[i].Comment = tc.Description
		}
	}
}

// MaskSpec flattens the policy's mask directives into the column-to-mask
// map the query service applies to result rows.
func MaskSpec(ctx ContextConfig) map[string]domain.MaskType {
	spec := make(map[string]domain.MaskType)
	for _, tc := range ctx.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				spec[col] = cc.Mask
			}
		}
	}
	return spec
}
