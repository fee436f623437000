// Package testhelpers starts a throwaway PostgreSQL for integration tests.
package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ajitpratap0/portfoliobuddy/internal/db"
)

// PostgresImage is the container image used by SetupTestDatabase.
const PostgresImage = "postgres:16-alpine"

// PostgresContainer holds the testcontainer instance and connection details
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
}

// SetupTestDatabase starts PostgreSQL, connects a pool and applies the
// embedded migrations. Everything is torn down with the test.
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithDatabase("portfoliobuddy_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	config.MaxConns = 5
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := db.NewMigrator(pool).Migrate(ctx); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return &PostgresContainer{
		Container:     container,
		ConnectionStr: connStr,
		DB:            db.NewFromPool(pool),
	}
}

// Truncate empties the transcript table between subtests.
func (tc *PostgresContainer) Truncate(t *testing.T) {
	t.Helper()
	if _, err := tc.DB.Pool().Exec(context.Background(), "TRUNCATE transcripts"); err != nil {
		t.Fatalf("Failed to truncate transcripts: %v", err)
	}
}
