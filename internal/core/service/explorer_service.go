package service

import (
	"context"

	"github.com/ledgergate/ledgergate/internal/core/port"
)

// ExplorerService exposes schema discovery to the tool layer. It exists
// so tools depend on a service, not on an adapter, and so policy
// decoration stays invisible to callers.
type ExplorerService struct {
	explorer port.SchemaExplorer
}

func NewExplorerService(explorer port.SchemaExplorer) *ExplorerService {
	return &ExplorerService{explorer: explorer}
}

func (s *ExplorerService) ListSchemas(ctx context.Context) ([]port.SchemaInfo, error) {
	return s.explorer.ListSchemas(ctx)
}

func (s *ExplorerService) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	return s.explorer.ListTables(ctx)
}

func (s *ExplorerService) DescribeTable(ctx context.Context, schema, tableName string) (*port.TableDetail, error) {
	return s.explorer.DescribeTable(ctx, schema, tableName)
}
