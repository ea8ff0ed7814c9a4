package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type countingInstrumentation struct {
	toolDurations int
}

func (c *countingInstrumentation) RecordQueryDuration(context.Context, float64) {}
func (c *countingInstrumentation) IncrementQueryCount(context.Context)          {}
func (c *countingInstrumentation) IncrementQueryErrors(context.Context)         {}
func (c *countingInstrumentation) IncrementQueryRejections(context.Context)     {}
func (c *countingInstrumentation) RecordToolDuration(context.Context, float64) {
	c.toolDurations++
}

func callToolRequest(name string) *mcp.CallToolRequest {
	req := &mcp.CallToolRequest{}
	req.Params.Name = name
	return req
}

func TestCallTracker_SuccessfulCall(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
	inst := &countingInstrumentation{}

	tracker := &callTracker{logger: logger, tracer: tp.Tracer("test"), inst: inst}
	ctx := context.Background()

	tracker.begin(ctx, int64(7), callToolRequest("query"))
	tracker.finish(ctx, int64(7), false, "")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.tool.call", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("mcp.tool", "query"))
	assert.Contains(t, spans[0].Attributes, attribute.String("mcp.request.id", "7"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
	assert.Equal(t, "tool call", entry["msg"])
	assert.Equal(t, "query", entry["mcp.tool"])
	assert.Equal(t, "7", entry["mcp.request.id"])
	assert.Equal(t, false, entry["error"])

	assert.Equal(t, 1, inst.toolDurations)
}

func TestCallTracker_ErrorResult(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	tracker := &callTracker{logger: logger, tracer: tp.Tracer("test")}
	ctx := context.Background()

	tracker.begin(ctx, "req-1", callToolRequest("describe_table"))
	tracker.finish(ctx, "req-1", true, "relation does not exist")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "relation does not exist", spans[0].Status.Description)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, true, entry["error"])
	assert.Equal(t, "relation does not exist", entry["error.message"])
}

// finish for an id that was never tracked must not log or panic; the error
// hook fires for protocol failures that happen before the before hook.
func TestCallTracker_UnknownID(t *testing.T) {
	var logBuf bytes.Buffer
	tracker := &callTracker{logger: slog.New(slog.NewJSONHandler(&logBuf, nil))}

	tracker.finish(context.Background(), "never-started", true, "boom")
	assert.Zero(t, logBuf.Len())
}

func TestCallTracker_NoTracer(t *testing.T) {
	var logBuf bytes.Buffer
	tracker := &callTracker{logger: slog.New(slog.NewJSONHandler(&logBuf, nil))}
	ctx := context.Background()

	tracker.begin(ctx, int64(1), callToolRequest("list_schemas"))
	tracker.finish(ctx, int64(1), false, "")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
	assert.Equal(t, "list_schemas", entry["mcp.tool"])
}
