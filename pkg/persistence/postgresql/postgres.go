// Package postgresql provides PostgreSQL persistence implementation for cadences.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	q      querier
	inTx   bool
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewPersistenceFromDB(logger, database), nil
}

// NewPersistenceFromDB wraps an already opened and migrated database handle.
func NewPersistenceFromDB(logger *slog.Logger, db *sql.DB) *Persistence {
	return &Persistence{
		db:     db,
		q:      db,
		logger: logger.With("module", "postgresql"),
	}
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Transaction runs fn inside a database transaction.
func (p *Persistence) Transaction(ctx context.Context, fn func(tx persistence.Persistence) error) error {
	if p.inTx {
		return fn(p)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(&Persistence{db: p.db, q: tx, inTx: true, logger: p.logger})
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (p *Persistence) CadenceRepository() persistence.CadenceRepository {
	return &CadenceRepository{q: p.q, logger: p.logger}
}

func (p *Persistence) NodeRepository() persistence.NodeRepository {
	return &NodeRepository{q: p.q, logger: p.logger}
}

func (p *Persistence) LeadRepository() persistence.LeadRepository {
	return &LeadRepository{q: p.q}
}

func (p *Persistence) LeadCadenceRepository() persistence.LeadCadenceRepository {
	return &LeadCadenceRepository{q: p.q, logger: p.logger}
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return &TaskRepository{q: p.q, logger: p.logger}
}

func (p *Persistence) ActivityRepository() persistence.ActivityRepository {
	return &ActivityRepository{q: p.q, logger: p.logger}
}

func (p *Persistence) SettingsRepository() persistence.SettingsRepository {
	return &SettingsRepository{q: p.q, logger: p.logger}
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return &ScheduleRepository{q: p.q, logger: p.logger}
}

type scanner interface {
	Scan(dest ...any) error
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// collect drains rows through scan, closing them afterwards.
func collect[T any](ctx context.Context, logger *slog.Logger, rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer closeRows(ctx, logger, rows)

	items := make([]T, 0)

	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return items, nil
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}

	return out
}
