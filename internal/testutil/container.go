// Package testutil provides helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a postgres testcontainer.
type PostgresContainer struct {
	*tcpostgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer creates a new PostgreSQL container for testing.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}

// TestDB is a migrated database backed by a container.
type TestDB struct {
	Container *PostgresContainer
	Pool      *pgxpool.Pool
}

// NewTestDB starts a container, applies migrations and opens a pool.
func NewTestDB(ctx context.Context) (*TestDB, error) {
	container, err := NewPostgresContainer(ctx)
	if err != nil {
		return nil, err
	}

	if err := postgres.Migrate(container.ConnectionString, migrations.FS); err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := postgres.Connect(ctx, postgres.Config{
		URL:             container.ConnectionString,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectAttempts: 3,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &TestDB{Container: container, Pool: pool}, nil
}

// Close releases the pool and terminates the container.
func (db *TestDB) Close(ctx context.Context) error {
	db.Pool.Close()
	return db.Container.Terminate(ctx)
}

// Truncate empties the given tables.
func (db *TestDB) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}
