package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/dukex/dailyreel/pkg/persistence/file"
	"github.com/dukex/dailyreel/pkg/persistence/postgresql"
	"github.com/dukex/dailyreel/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis"}

// NewPersistence opens the run store named by databaseURL. URLs without a
// known scheme are treated as a directory for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.RunStore, error) {
	provider := parsePersistenceProvider(databaseURL)
	logger = logger.With("module", "persistence", "provider", provider)

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgresql store: %w", err)
		}

		return store, nil
	case "redis":
		store, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}

		return store, nil
	default:
		if databaseURL == "" || databaseURL == "file://" {
			return nil, fmt.Errorf("file store requires a directory: %q", databaseURL)
		}

		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
