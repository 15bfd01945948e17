package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// postgresDSN returns DB_ADDR when set, otherwise starts a throwaway
// PostgreSQL 16 container. The test is skipped when neither is available.
func postgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("DB_ADDR"); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("postgres: DB_ADDR not set and -short given")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
}

// setupPostgres migrates the database and empties its tables.
func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	dsn := postgresDSN(t)
	require.NoError(t, MigratePostgres(ctx, dsn))

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	truncate(t, s.Pool())
	return s
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	for _, q := range []string{"TRUNCATE actors", "TRUNCATE commit_log"} {
		if _, err := pool.Exec(context.Background(), q); err != nil {
			t.Logf("cleanup warning: %v", err) // non-fatal
		}
	}
}
