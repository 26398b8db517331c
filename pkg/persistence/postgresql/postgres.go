// Package postgresql stores pipeline runs, their event logs and the active-run
// lock in PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/dukex/dailyreel/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// A run has a single writer, so a small pool covers the orchestrator plus
// concurrent API readers.
const (
	maxOpenConns    = 8
	maxIdleConns    = 2
	connMaxLifetime = 30 * time.Minute
)

// Persistence implements persistence.RunStore for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects to databaseURL and migrates the schema.
// Connection failures are reported as persistence.ErrStoreUnavailable.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, persistence.Unavailable("Open", "", err)
	}

	database.SetMaxOpenConns(maxOpenConns)
	database.SetMaxIdleConns(maxIdleConns)
	database.SetConnMaxLifetime(connMaxLifetime)

	err = database.PingContext(ctx)
	if err != nil {
		return nil, errors.Join(persistence.Unavailable("Ping", "", err), database.Close())
	}

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to run migrations: %w", err), database.Close())
	}

	return &Persistence{
		db:     database,
		logger: logger.With("module", "postgresql"),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db == nil {
		return nil
	}

	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return persistence.Unavailable("HealthCheck", "", err)
	}

	return nil
}

// DB exposes the connection pool, mainly for tests.
func (p *Persistence) DB() *sql.DB {
	return p.db
}
