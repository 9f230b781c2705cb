package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	schema "dtfcapture/migrations"
)

const defaultPriceTable = "dtf_daily_prices"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunPostgres applies the embedded schema. An up-to-date database is not an error.
func RunPostgres(db *sql.DB) error {
	source, err := iofs.New(schema.Postgres, schema.PostgresDir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// EnsurePriceTable clones the default price table layout when a custom table
// name is configured.
func EnsurePriceTable(ctx context.Context, db *sql.DB, table string) error {
	if table == "" || table == defaultPriceTable {
		return nil
	}
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid price table name %q", table)
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (LIKE %s INCLUDING ALL)`, table, defaultPriceTable)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create price table %s: %w", table, err)
	}
	return nil
}
