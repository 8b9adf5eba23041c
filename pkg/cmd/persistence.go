// Package cmd provides shared constructors for the leadline binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leadline/leadline/pkg/persistence"
	"github.com/leadline/leadline/pkg/persistence/memory"
	"github.com/leadline/leadline/pkg/persistence/postgresql"
)

// NewPersistence creates the persistence layer matching the database URL
// scheme: postgres for production, memory for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgres persistence: %w", err))
		}

		return store
	default:
		return memory.NewPersistence()
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
