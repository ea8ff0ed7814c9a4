package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testSchema mirrors the shape of the analytics database the gateway
// fronts: reference data, a large fact table, and masked account data.
const testSchema = `
	CREATE TABLE companies (
		id     SERIAL PRIMARY KEY,
		ticker TEXT NOT NULL UNIQUE,
		name   TEXT NOT NULL,
		sector TEXT NOT NULL
	);
	COMMENT ON TABLE companies IS 'Listed companies';
	COMMENT ON COLUMN companies.ticker IS 'Exchange ticker symbol';

	CREATE TABLE prices (
		id         SERIAL PRIMARY KEY,
		company_id INTEGER NOT NULL REFERENCES companies(id),
		trade_date DATE NOT NULL,
		close      NUMERIC(12,4) NOT NULL,
		volume     BIGINT NOT NULL DEFAULT 0,
		adjusted   BOOLEAN NOT NULL DEFAULT false
	);
	CREATE INDEX idx_prices_company_date ON prices(company_id, trade_date);
	COMMENT ON TABLE prices IS 'Daily closing prices';

	CREATE TABLE accounts (
		id             SERIAL PRIMARY KEY,
		account_number TEXT NOT NULL,
		owner_name     TEXT NOT NULL,
		status         TEXT NOT NULL CHECK (status IN ('open', 'closed', 'frozen')),
		opened_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		closed_at      TIMESTAMPTZ
	);

	INSERT INTO companies (ticker, name, sector) VALUES
		('ACME', 'Acme Corp', 'industrials'),
		('GLOB', 'Globex', 'technology'),
		('INIT', 'Initech', 'technology');

	INSERT INTO prices (company_id, trade_date, close, volume)
	SELECT
		(i % 3) + 1,
		DATE '2024-01-01' + (i / 3),
		100 + (random() * 50)::numeric(12,4),
		(random() * 1000000)::bigint
	FROM generate_series(1, 300) AS i;

	INSERT INTO accounts (account_number, owner_name, status, closed_at)
	SELECT
		'ACCT-' || lpad(i::text, 8, '0'),
		'Owner ' || i,
		CASE (i % 10)
			WHEN 0 THEN 'closed'
			WHEN 9 THEN 'frozen'
			ELSE 'open'
		END,
		CASE WHEN i % 10 = 0 THEN now() ELSE NULL END
	FROM generate_series(1, 50) AS i;
`

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	// Populate pg_stats so the explorer's column stats are usable.
	_, err = pool.Exec(ctx, "ANALYZE")
	require.NoError(t, err)

	return pool
}
