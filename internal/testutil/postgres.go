// Package testutil provides test helpers including container management
// and a TCP line-protocol test client.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns a
// connected Pool. Tests are skipped unless PARLOR_PG_TESTS is set, so the
// suite passes on machines without Docker.
//
// Postcondition: Returns a running container with a connected pool,
// or skips/fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	if os.Getenv("PARLOR_PG_TESTS") == "" {
		t.Skip("set PARLOR_PG_TESTS=1 to run PostgreSQL integration tests")
	}

	ctx := context.Background()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolving container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("resolving container port: %v", err)
	}

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to container database: %v", err)
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres container ready [%s]", time.Since(start))
	return &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    cfg,
	}
}

// ApplySchema creates the chat server tables on the container database.
//
// Precondition: The container pool must be connected.
func (c *PostgresContainer) ApplySchema(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			name TEXT PRIMARY KEY,
			capacity INT NOT NULL CHECK (capacity > 0),
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			password TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			room TEXT NOT NULL,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_sent_at ON messages (room, sent_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := c.RawPool.Exec(ctx, stmt); err != nil {
			t.Fatalf("applying schema: %v\n%s", err, stmt)
		}
	}
}

// TruncateAll clears all chat server tables between tests.
func (c *PostgresContainer) TruncateAll(t *testing.T) {
	t.Helper()
	if _, err := c.RawPool.Exec(context.Background(), `TRUNCATE messages, rooms`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}

// DSN returns the container's connection string.
func (c *PostgresContainer) DSN() string {
	return fmt.Sprintf("postgres://test:test@%s:%d/test?sslmode=disable", c.Config.Host, c.Config.Port)
}
