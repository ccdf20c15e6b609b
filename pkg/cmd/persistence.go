// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/persistence/file"
	"github.com/dukex/gragraf/pkg/persistence/postgresql"
	"github.com/dukex/gragraf/pkg/persistence/redis"
)

// NewSessionStore picks a session store from the scheme of storeURL. URLs without a
// known scheme are treated as file system paths.
func NewSessionStore(ctx context.Context, logger *slog.Logger, storeURL string) (persistence.SessionStore, error) {
	provider := parsePersistenceProvider(storeURL)

	logger.InfoContext(ctx, "Initializing session store", "provider", provider)

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewSessionStore(ctx, logger, storeURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL session store: %w", err)
		}

		return store, nil
	case "redis", "rediss":
		store, err := redis.NewSessionStore(ctx, logger, storeURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis session store: %w", err)
		}

		return store, nil
	default:
		return file.NewSessionStore(storeURL), nil
	}
}

func parsePersistenceProvider(storeURL string) string {
	provider, _, found := strings.Cut(storeURL, "://")
	if !found {
		return "file"
	}

	return provider
}
