package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgergate/ledgergate/internal/core/port"
)

// callTracker correlates the before/after/error hooks fired for the same
// JSON-RPC request id and owns the per-call timer and span.
type callTracker struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	calls  sync.Map // request id -> *inFlightCall
}

type inFlightCall struct {
	start time.Time
	tool  string
	span  trace.Span
}

func (t *callTracker) begin(ctx context.Context, id any, req *mcp.CallToolRequest) {
	call := &inFlightCall{start: time.Now(), tool: req.Params.Name}

	if t.tracer != nil {
		attrs := []attribute.KeyValue{
			attribute.String("mcp.tool", req.Params.Name),
			attribute.String("mcp.request.id", fmt.Sprintf("%v", id)),
		}
		if sess := server.ClientSessionFromContext(ctx); sess != nil {
			attrs = append(attrs, attribute.String("mcp.session.id", sess.SessionID()))
		}
		_, span := t.tracer.Start(ctx, "mcp.tool.call", trace.WithAttributes(attrs...))
		call.span = span
	}

	t.calls.Store(id, call)
}

// finish closes out a tracked call. failed covers both tool-level errors
// (IsError results) and protocol errors; errMsg is empty for the former
// because the result text already reached the client.
func (t *callTracker) finish(ctx context.Context, id any, failed bool, errMsg string) {
	v, ok := t.calls.LoadAndDelete(id)
	if !ok {
		return
	}
	call := v.(*inFlightCall)
	duration := time.Since(call.start)

	level := slog.LevelInfo
	logAttrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", call.tool),
		slog.String("mcp.request.id", fmt.Sprintf("%v", id)),
		slog.Duration("duration", duration),
		slog.Bool("error", failed),
	}
	if failed {
		level = slog.LevelError
		if errMsg != "" {
			logAttrs = append(logAttrs, slog.String("error.message", errMsg))
		}
	}
	t.logger.LogAttrs(ctx, level, "tool call", logAttrs...)

	if t.inst != nil {
		t.inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
	}

	if call.span != nil {
		if failed {
			msg := errMsg
			if msg == "" {
				msg = "tool returned error result"
			}
			call.span.SetStatus(codes.Error, msg)
			call.span.RecordError(fmt.Errorf("tool %s: %s", call.tool, msg))
		}
		call.span.End()
	}
}

// ToolCallHooks logs every tool call with its request and session ids and,
// when a tracer is supplied, records a span per call.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	tracker := &callTracker{logger: logger, tracer: tracer, inst: inst}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(tracker.begin)
	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		res, _ := result.(*mcp.CallToolResult)
		tracker.finish(ctx, id, res != nil && res.IsError, "")
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		if method != mcp.MethodToolsCall {
			return
		}
		tracker.finish(ctx, id, true, err.Error())
	})

	return hooks
}
