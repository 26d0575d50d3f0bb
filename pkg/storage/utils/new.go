// Package storageutils builds a storage.Driver from configuration.
package storageutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/dynamodb"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/postgres"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
)

type NewStorageDriverOpts struct {
	// DriverType is one of "memory", "sqlite", "postgres" or "dynamodb".
	DriverType    string
	SQLitePath    string
	PostgresDSN   string
	DynamoDBTable string
	Logger        *slog.Logger
}

func NewStorageDriver(ctx context.Context, o *NewStorageDriverOpts) (storage.Driver, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch o.DriverType {
	case "", "memory":
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	case "sqlite":
		driver, err := sqlite.NewDriver(ctx, o.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Info("using SQLite storage", "path", o.SQLitePath)
		return driver, nil
	case "postgres":
		driver, err := postgres.NewDriver(ctx, o.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil
	case "dynamodb":
		driver, err := dynamodb.NewDriver(ctx, o.DynamoDBTable)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB storer: %w", err)
		}
		logger.Info("using DynamoDB storage", "table", o.DynamoDBTable)
		return driver, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", o.DriverType)
	}
}
