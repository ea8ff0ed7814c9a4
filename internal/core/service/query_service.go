package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ledgergate/ledgergate/internal/core/domain"
	"github.com/ledgergate/ledgergate/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// QueryService is the pipeline between a candidate query and the
// database: validate (domain), execute (infrastructure), audit, mask.
// A query the guard rejects never reaches the executor, and only the
// guard's validated output, never the raw input, is executed.
type QueryService struct {
	validator port.QueryValidator
	executor  port.QueryExecutor
	auditor   port.QueryAuditor
	logger    *slog.Logger
	masks     map[string]domain.MaskType // column name to mask type, nil disables masking
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewQueryService(validator port.QueryValidator, executor port.QueryExecutor, auditor port.QueryAuditor, logger *slog.Logger, masks map[string]domain.MaskType, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		validator: validator,
		executor:  executor,
		auditor:   auditor,
		logger:    logger,
		masks:     masks,
		tracer:    tracer,
		inst:      inst,
	}
}

// Execute validates sql and, if the guard allows it, runs it and returns
// masked rows. Guard rejections come back unchanged so the caller can
// branch on the domain.ErrorKind. The service never retries or rewrites
// a rejected query on the caller's behalf.
func (s *QueryService) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	return s.run(ctx, "QueryService.Execute", sql, func(validated string) string { return validated })
}

// Explain validates the bare query first and only then prefixes EXPLAIN,
// so plan inspection goes through exactly the same gate as execution.
func (s *QueryService) Explain(ctx context.Context, sql string, analyze bool) ([]map[string]any, error) {
	prefix := "EXPLAIN "
	if analyze {
		prefix = "EXPLAIN ANALYZE "
	}
	return s.run(ctx, "QueryService.Explain", sql, func(validated string) string { return prefix + validated })
}

func (s *QueryService) run(ctx context.Context, spanName, sql string, finalize func(validated string) string) ([]map[string]any, error) {
	requestID := uuid.NewString()

	ctx, span := s.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	validated, err := s.validator.Validate(sql)
	if err != nil {
		kind, _ := domain.KindOf(err)
		s.logger.WarnContext(ctx, "query rejected",
			slog.String("request.id", requestID),
			slog.String("db.statement", sql),
			slog.String("rejection.kind", string(kind)),
			slog.String("error.message", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryRejections(ctx)
		s.auditor.Record(ctx, port.AuditEntry{
			RequestID: requestID,
			Tool:      toolNameFromCtx(ctx),
			SQL:       sql,
			Rejected:  true,
			Err:       err,
		})
		return nil, fmt.Errorf("validation: %w", err)
	}

	start := time.Now()
	results, err := s.executor.Execute(ctx, finalize(validated))
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	s.auditor.Record(ctx, port.AuditEntry{
		RequestID:    requestID,
		Tool:         toolNameFromCtx(ctx),
		SQL:          validated,
		RowsReturned: len(results),
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", len(results)))
	domain.MaskRows(results, s.masks)

	return results, nil
}
