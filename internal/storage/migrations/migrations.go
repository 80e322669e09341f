// Package migrations generalizes cmd/server/main.go's inline
// CREATE-TABLE-IF-NOT-EXISTS runMigrations into a real migration toolchain
// using golang-migrate, with the schema embedded via go:embed so the
// binary carries its own migrations the way the registry pattern in
// other_examples's analytics_dashboard_schema migration does.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Run applies every pending migration against the database reachable at
// databaseURL. It is idempotent: running against an up-to-date schema is a
// no-op (migrate.ErrNoChange).
func Run(databaseURL string) error {
	source, err := iofs.New(schemaFS, "sql")
	if err != nil {
		return fmt.Errorf("migrations: load embedded source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("migrations: init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}
