//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/marcelsud/webhook-gateway/webhook/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

/* Test Helpers for PostgreSQL Integration Tests
 * Starts a disposable postgres container, applies the embedded migrations
 * and hands back a connection string.
 */

const (
	defaultDatabase = "testdb"
	defaultUser     = "testuser"
	defaultPassword = "testpass"
)

// PostgresContainer holds the container and its connection string
type PostgresContainer struct {
	Container testcontainers.Container
	ConnStr   string
}

// SetupPostgresContainer starts a PostgreSQL testcontainer with the schema applied
func SetupPostgresContainer(t *testing.T, ctx context.Context) (*PostgresContainer, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(defaultDatabase),
		tcpostgres.WithUsername(defaultUser),
		tcpostgres.WithPassword(defaultPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get postgres connection string")

	require.NoError(t, postgres.Migrate(connStr), "failed to apply migrations")

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresContainer{Container: pgContainer, ConnStr: connStr}, cleanup
}

// CreateTestRepository opens a repository against the test container
func CreateTestRepository(t *testing.T, connStr string) *postgres.Repository {
	t.Helper()

	repo, err := postgres.NewRepository(connStr)
	require.NoError(t, err, "failed to create postgres repository")

	return repo
}

// GenerateID is a helper to generate test event IDs
func GenerateID(t *testing.T, index int) string {
	t.Helper()
	return fmt.Sprintf("evt_%d_%d", index, time.Now().UnixNano())
}
