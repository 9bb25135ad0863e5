package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fatali-fataliyev/envelope_budget/internal/config"
	"github.com/fatali-fataliyev/envelope_budget/logging"
	"github.com/go-sql-driver/mysql"
)

const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// --- INIT START --- //

// mysqlDSN builds the connection config from FULL_DSN or the DB_* parts.
func mysqlDSN(cfg config.Storage) (*mysql.Config, error) {
	var dsn *mysql.Config
	if cfg.FullDSN != "" {
		parsed, err := mysql.ParseDSN(cfg.FullDSN)
		if err != nil {
			return nil, fmt.Errorf("invalid FULL_DSN: %w", err)
		}
		dsn = parsed
	} else {
		if cfg.User == "" || cfg.Password == "" || cfg.Host == "" || cfg.Port == "" {
			return nil, fmt.Errorf("missing required DB environment variables")
		}
		dsn = mysql.NewConfig()
		dsn.User = cfg.User
		dsn.Passwd = cfg.Password
		dsn.Net = "tcp"
		dsn.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		dsn.DBName = cfg.Name
	}
	if dsn.DBName == "" {
		dsn.DBName = cfg.Name
	}
	dsn.ParseTime = true
	dsn.MultiStatements = true
	dsn.ClientFoundRows = true
	dsn.Loc = time.UTC
	return dsn, nil
}

func InitMySQL(cfg config.Storage) (*MySQLStorage, error) {
	dsn, err := mysqlDSN(cfg)
	if err != nil {
		return nil, err
	}
	dbname := dsn.DBName

	admin := dsn.Clone()
	admin.DBName = ""

	logging.Logger.Info("Connecting to MySQL server for initialization...")
	adminDb, err := sql.Open("mysql", admin.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin mysql handle: %w", err)
	}
	defer adminDb.Close()

	if err := pingWithRetry(adminDb, 15, 3*time.Second); err != nil {
		return nil, err
	}

	var dbnameExistence string
	checkDbnameExistQuery := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?"
	err = adminDb.QueryRow(checkDbnameExistQuery, dbname).Scan(&dbnameExistence)
	if errors.Is(err, sql.ErrNoRows) {
		logging.Logger.Infof("Database '%s' does not exist, creating...", dbname)
		createDbSql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci;", dbname)
		if _, err := adminDb.Exec(createDbSql); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	logging.Logger.Info("Running migrations...")
	if err := RunMigrations(StorageTypeMySQL, dsn.FormatDSN()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Logger.Info("Connecting to database...")
	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logging.Logger.Info("Connected to database successfully")

	return NewMySQLStorage(db), nil
}

func pingWithRetry(db *sql.DB, attempts int, wait time.Duration) error {
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/%d)", i+1, attempts)
		time.Sleep(wait)
	}
	return fmt.Errorf("database unreachable after multiple attempts")
}

// --- INIT END --- //

type MySQLStorage struct {
	SQLStorage
}

func NewMySQLStorage(db *sql.DB) *MySQLStorage {
	return &MySQLStorage{SQLStorage{
		db: db,
		dialect: dialect{
			name:      StorageTypeMySQL,
			forUpdate: " FOR UPDATE",
			upsertAssignment: "INSERT INTO assignment (owner_id, category_id, month, amount) VALUES (?, ?, ?, ?) " +
				"ON DUPLICATE KEY UPDATE amount = VALUES(amount);",
			upsertTarget: "INSERT INTO category_target (category_id, owner_id, type, amount, day_of_month, target_month, refill_type, start_month) " +
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE type = VALUES(type), amount = VALUES(amount), " +
				"day_of_month = VALUES(day_of_month), target_month = VALUES(target_month), refill_type = VALUES(refill_type), start_month = VALUES(start_month);",
			isDuplicate:    isMySQLDuplicate,
			isLockConflict: isMySQLLockConflict,
		},
	}}
}

func isMySQLDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// isMySQLLockConflict reports InnoDB deadlocks and lock wait timeouts. Both
// roll back the transaction, so the caller may retry with fresh data.
func isMySQLLockConflict(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == mysqlDeadlockDetected || mysqlErr.Number == mysqlLockWaitTimeout
}
