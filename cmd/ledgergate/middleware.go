package main

import (
	"context"
	"crypto/subtle"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ledgergate/ledgergate/internal/config"
)

// parseFlags parses CLI arguments into config overrides. Unset flags
// stay nil so environment values survive.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("ledgergate", flag.ContinueOnError)

	databaseURL := fs.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	maxRows := fs.Int("max-rows", 0, "maximum rows returned per query (overrides MAX_ROWS)")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query timeout (overrides QUERY_TIMEOUT)")
	schemas := fs.String("schemas", "", "comma-separated allowed schemas (overrides SCHEMAS)")
	policyFile := fs.String("policy-file", "", "path to policy YAML (overrides POLICY_FILE)")
	transport := fs.String("transport", "", "transport: stdio or http (overrides TRANSPORT)")
	httpAddr := fs.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token for HTTP transport (overrides HTTP_BEARER_TOKEN)")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log file (overrides AUDIT_LOG)")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections (overrides POOL_MAX_CONNS)")
	poolMinConns := fs.Int("pool-min-conns", -1, "minimum pool connections (overrides POOL_MIN_CONNS)")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime (overrides POOL_MAX_CONN_LIFETIME)")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	var o config.Overrides
	if *databaseURL != "" {
		o.DatabaseURL = databaseURL
	}
	if *logLevel != "" {
		o.LogLevel = logLevel
	}
	if *maxRows != 0 {
		o.MaxRows = maxRows
	}
	if *queryTimeout != 0 {
		o.QueryTimeout = queryTimeout
	}
	if *schemas != "" {
		o.Schemas = schemas
	}
	if *policyFile != "" {
		o.PolicyFile = policyFile
	}
	if *transport != "" {
		o.Transport = transport
	}
	if *httpAddr != "" {
		o.HTTPAddr = httpAddr
	}
	if *httpBearerToken != "" {
		o.HTTPBearerToken = httpBearerToken
	}
	if *auditLog != "" {
		o.AuditLog = auditLog
	}
	o.OTelEnabled = *otelEnabled
	if *poolMaxConns != 0 {
		v := int32(*poolMaxConns)
		o.PoolMaxConns = &v
	}
	if *poolMinConns >= 0 {
		v := int32(*poolMinConns)
		o.PoolMinConns = &v
	}
	if *poolMaxConnLifetime != 0 {
		o.PoolMaxConnLifetime = poolMaxConnLifetime
	}

	return o, nil
}

// serveHTTP runs the MCP server over streamable HTTP with bearer auth,
// panic recovery, and a health endpoint.
func serveHTTP(ctx context.Context, mcpServer *mcpserver.MCPServer, cfg *config.Config, logger *slog.Logger) error {
	streamable := mcpserver.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/mcp", bearerAuthMiddleware(streamable, cfg.HTTPBearerToken))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// bearerAuthMiddleware rejects requests without the expected bearer token.
func bearerAuthMiddleware(next http.Handler, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, prefix)), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts handler panics into 500 responses.
func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
