package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const defaultMigrationsPath = "db/migrations"

// RunMigrations applies all pending migrations. It is a no-op when the
// migrations directory does not exist, so binaries can run from any cwd.
func RunMigrations(databaseURL string) error {
	path := os.Getenv("MIGRATIONS_PATH")
	if path == "" {
		path = defaultMigrationsPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	m, err := migrate.New("file://"+path, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
