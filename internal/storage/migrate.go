package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fatali-fataliyev/envelope_budget/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema behind dsn up to date. It uses its own
// connection so the migration driver never holds one of the storage pool.
func RunMigrations(storageType string, dsn string) error {
	migrateDB, err := sql.Open(storageType, dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	var driver database.Driver
	switch storageType {
	case StorageTypeMySQL:
		driver, err = migratemysql.WithInstance(migrateDB, &migratemysql.Config{})
	case StorageTypeSQLite:
		driver, err = migratesqlite.WithInstance(migrateDB, &migratesqlite.Config{})
	default:
		return fmt.Errorf("no migrations for storage type %q", storageType)
	}
	if err != nil {
		return fmt.Errorf("create %s migration driver: %w", storageType, err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+storageType)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, storageType, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logging.Logger.Info("no new migration")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	version, _, _ := m.Version()
	logging.Logger.Infof("all migrations applied successfully, schema version %d", version)
	return nil
}
