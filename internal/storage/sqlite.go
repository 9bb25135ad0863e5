package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatali-fataliyev/envelope_budget/logging"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteStorage struct {
	SQLStorage
}

// NewSQLiteStorage opens (or creates) the database file and migrates it.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every connection the pool opens.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	if err := RunMigrations(StorageTypeSQLite, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers, so a CAS check and its write can
	// never interleave with another transaction.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.Logger.Infof("sqlite storage opened: %s", dbPath)
	return &SQLiteStorage{SQLStorage{
		db: db,
		dialect: dialect{
			name: StorageTypeSQLite,
			upsertAssignment: "INSERT INTO assignment (owner_id, category_id, month, amount) VALUES (?, ?, ?, ?) " +
				"ON CONFLICT (owner_id, category_id, month) DO UPDATE SET amount = excluded.amount;",
			upsertTarget: "INSERT INTO category_target (category_id, owner_id, type, amount, day_of_month, target_month, refill_type, start_month) " +
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (category_id) DO UPDATE SET type = excluded.type, amount = excluded.amount, " +
				"day_of_month = excluded.day_of_month, target_month = excluded.target_month, refill_type = excluded.refill_type, start_month = excluded.start_month;",
			isDuplicate:    isSQLiteDuplicate,
			isLockConflict: isSQLiteBusy,
		},
	}}, nil
}

func isSQLiteDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT:
		return true
	}
	return false
}

func isSQLiteBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
