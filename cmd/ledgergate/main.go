package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"

	"github.com/ledgergate/ledgergate/internal/adapter/mcp"
	"github.com/ledgergate/ledgergate/internal/adapter/policy"
	"github.com/ledgergate/ledgergate/internal/adapter/postgres"
	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/core/domain"
	"github.com/ledgergate/ledgergate/internal/core/port"
	"github.com/ledgergate/ledgergate/internal/core/service"
	"github.com/ledgergate/ledgergate/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting ledgergate",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.Int("max_rows", cfg.MaxRows),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.String("transport", cfg.Transport),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Telemetry (optional).
	tracer := telemetry.NoopTracer()
	var inst port.Instrumentation = telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "ledgergate", version, cfg.Transport)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
		tracer = otel.Tracer("github.com/ledgergate/ledgergate")
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	// Adapters.
	var explorer port.SchemaExplorer = postgres.NewExplorer(pool, cfg.Schemas)
	executor := postgres.NewExecutor(pool, cfg.MaxRows, cfg.QueryTimeout)

	// Policy decoration (optional): business glossary plus column masks.
	var masks map[string]domain.MaskType
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		masks = policy.MaskSpec(pol.Context)
		explorer = policy.NewExplorer(explorer, pol, masks)
		logger.Info("policy loaded",
			slog.String("file", cfg.PolicyFile),
			slog.Int("masked_columns", len(masks)),
		)
	}

	// Audit trail (optional).
	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() {
			if err := fileAuditor.Close(); err != nil {
				logger.Error("closing audit log", slog.String("error", err.Error()))
			}
		}()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Domain and services.
	guard := domain.NewGuard()
	explorerSvc := service.NewExplorerService(explorer)
	querySvc := service.NewQueryService(guard, executor, auditor, logger, masks, tracer, inst)

	// MCP server with tool handlers.
	mcpServer := mcp.NewServer(version, explorerSvc, querySvc, logger, tracer, inst)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, mcpServer, cfg, logger)
	}

	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// redactDSN hides the password in a connection string for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
