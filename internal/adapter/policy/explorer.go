package policy

import (
	"context"

	"github.com/ledgergate/ledgergate/internal/core/domain"
	"github.com/ledgergate/ledgergate/internal/core/port"
)

// Explorer decorates a SchemaExplorer with policy enrichment. It merges
// business descriptions into discovery responses and masks sample rows,
// so sensitive columns never reach the agent even via table inspection.
type Explorer struct {
	inner  port.SchemaExplorer
	policy *Policy
	masks  map[string]domain.MaskType
}

func NewExplorer(inner port.SchemaExplorer, pol *Policy, masks map[string]domain.MaskType) *Explorer {
	return &Explorer{inner: inner, policy: pol, masks: masks}
}

var _ port.SchemaExplorer = (*Explorer)(nil)

func (p *Explorer) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	return p.inner.ListSchemas(ctx)
}

func (p *Explorer) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	tables, err := p.inner.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	MergeTableInfoList(tables, p.policy.Context)
	return tables, nil
}

func (p *Explorer) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	detail, err := p.inner.DescribeTable(ctx, schema, tableName)
	if err != nil {
		return nil, err
	}
	MergeTableDetail(detail, p.policy.Context)
	domain.MaskRows(detail.SampleRows, p.masks)
	return detail, nil
}
