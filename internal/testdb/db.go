//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/vendorflow/internal/platform/postgres"
	"github.com/phrazzld/vendorflow/internal/redact"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Timeout bounds container startup and migration.
const Timeout = 2 * time.Minute

// Open returns a migrated database that is closed when the test ends.
// Outside CI the test is skipped when no container can be started.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	url := DatabaseURL()
	if url == "" {
		url = startContainer(ctx, t)
	}

	db, err := postgres.Open(ctx, url)
	require.NoError(t, err, "open test database %s", redact.String(url))
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, postgres.Migrate(ctx, db, "up", slog.New(slog.DiscardHandler)))
	return db
}

// Reset removes every document so each test starts empty.
func Reset(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE documents`)
	require.NoError(t, err)
}

func startContainer(ctx context.Context, t *testing.T) string {
	t.Helper()
	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("vendorflow"),
		postgrescontainer.WithUsername("vendorflow"),
		postgrescontainer.WithPassword("vendorflow"),
		postgrescontainer.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pg)
	if err != nil {
		if !IsCI() {
			t.Skipf("postgres container unavailable: %v", err)
		}
		require.NoError(t, err)
	}

	url, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}
