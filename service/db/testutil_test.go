package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStore wraps a Store with test cleanup functionality.
type TestStore struct {
	*Store
	pool *pgxpool.Pool
}

// NewTestStore returns a migrated Store for tests. It uses
// TEST_DATABASE_URL when set and otherwise starts a disposable Postgres
// container. The test is skipped when neither is available or
// SKIP_DB_TESTS is set.
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()

	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("Skipping database test (SKIP_DB_TESTS is set)")
	}

	ctx := context.Background()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = startContainer(t)
	}

	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Skipf("Skipping database test: cannot connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	ts := &TestStore{Store: NewStore(pool), pool: pool}
	ts.Cleanup(t)
	return ts
}

func startContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("goldium_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("Skipping database test: no TEST_DATABASE_URL and no container runtime: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return dsn
}

// Cleanup removes all data from test tables.
func (ts *TestStore) Cleanup(t *testing.T) {
	t.Helper()

	_, err := ts.pool.Exec(context.Background(), "TRUNCATE TABLE ledger_kv")
	if err != nil {
		t.Fatalf("failed to cleanup test database: %v", err)
	}
}
