package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/vendorflow/internal/config"
	"github.com/phrazzld/vendorflow/internal/platform/dynamo"
	"github.com/phrazzld/vendorflow/internal/platform/memory"
	"github.com/phrazzld/vendorflow/internal/platform/postgres"
	"github.com/phrazzld/vendorflow/internal/store"
)

// Store drivers accepted in StoreConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

// OpenStore opens the configured document store and returns a function that
// releases it. Postgres schemas are migrated up and DynamoDB tables created
// when missing.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.DocumentStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case DriverMemory:
		logger.Warn("using in-memory store; state is lost on exit")
		return memory.New(), noop, nil

	case DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db, "up", logger); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("database connection established")
		return postgres.NewDocumentStore(db), db.Close, nil

	case DriverDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := dynamo.EnsureTable(ctx, client, cfg.DynamoTable); err != nil {
			return nil, nil, err
		}
		logger.Info("dynamodb table ready", "table", cfg.DynamoTable)
		return dynamo.New(client, cfg.DynamoTable), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
