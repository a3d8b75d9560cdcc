// internal/data/database.go
package data

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"oraclebackend/internal/logger"
)

// Global database instance. One sqlite file per deployment.
var (
	db   *sql.DB
	dbMu sync.RWMutex
)

// Database connection pool configuration
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 30
)

const TimeFormat = time.RFC3339

// InitDB initializes the database with connection pooling and retry logic.
func InitDB(dataSourceName string) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		db.Close()
	}
	return initDBWithRetry(dataSourceName, 3)
}

func initDBWithRetry(dataSourceName string, maxRetries int) error {
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("sqlite", dataSourceName)
		if err != nil {
			logger.LogWarn("Database connection attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
		}

		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)
		db.SetConnMaxIdleTime(connMaxIdleTime)

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = db.PingContext(ctx)
		cancel()

		if err != nil {
			logger.LogWarn("Database ping attempt %d failed: %v", attempt, err)
			db.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		if err := enablePragmas(db); err != nil {
			logger.LogWarn("Failed to enable some database optimizations: %v", err)
			// Pragma failures are not fatal.
		}

		logger.LogInfo("Database connection established successfully (attempt %d)", attempt)
		return nil
	}

	return fmt.Errorf("failed to initialize database after %d attempts", maxRetries)
}

func enablePragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}

	var lastErr error
	for _, pragma := range pragmas {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		_, err := conn.ExecContext(ctx, pragma)
		cancel()

		if err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
			lastErr = err
		}
	}
	return lastErr
}

// GetDB returns the database connection with a health check.
func GetDB() (*sql.DB, error) {
	dbMu.RLock()
	defer dbMu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.LogError("Database health check failed: %v", err)
		return nil, fmt.Errorf("database connection unhealthy: %w", err)
	}

	return db, nil
}

// CloseDB closes the database connection gracefully.
func CloseDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// =============================================================================
// SCHEMA DEFINITIONS
// =============================================================================

const offeringsTableSchema = `
    CREATE TABLE IF NOT EXISTS offerings (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        icon TEXT,
        price REAL NOT NULL DEFAULT 0,
        alt_price REAL
    );`

const rubricsTableSchema = `
    CREATE TABLE IF NOT EXISTS rubrics (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        description TEXT
    );`

const choicesTableSchema = `
    CREATE TABLE IF NOT EXISTS consultation_choices (
        id TEXT PRIMARY KEY,
        rubric_id TEXT NOT NULL,
        title TEXT NOT NULL,
        description TEXT,
        position INTEGER NOT NULL DEFAULT 0,
        legacy_offerings_json TEXT DEFAULT '[]'
    );
    CREATE INDEX IF NOT EXISTS idx_choices_rubric ON consultation_choices(rubric_id);`

const alternativesTableSchema = `
    CREATE TABLE IF NOT EXISTS choice_alternatives (
        choice_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        category TEXT NOT NULL,
        offering_id TEXT NOT NULL,
        quantity INTEGER NOT NULL,
        name TEXT,
        icon TEXT,
        PRIMARY KEY (choice_id, position)
    );
    CREATE INDEX IF NOT EXISTS idx_alternatives_choice ON choice_alternatives(choice_id);`

const walletTableSchema = `
    CREATE TABLE IF NOT EXISTS wallet_entries (
        user_id TEXT NOT NULL,
        offering_id TEXT NOT NULL,
        quantity INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (user_id, offering_id)
    );
    CREATE INDEX IF NOT EXISTS idx_wallet_user ON wallet_entries(user_id);`

const settlementLogSchema = `
    CREATE TABLE IF NOT EXISTS settlement_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        flow_id TEXT NOT NULL,
        consultation_id TEXT NOT NULL,
        offering_id TEXT,
        quantity INTEGER DEFAULT 0,
        status TEXT NOT NULL,
        message TEXT,
        created_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_settlement_flow ON settlement_log(flow_id);
    CREATE INDEX IF NOT EXISTS idx_settlement_created ON settlement_log(created_at);`

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema() error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	schemas := []string{
		offeringsTableSchema,
		rubricsTableSchema,
		choicesTableSchema,
		alternativesTableSchema,
		walletTableSchema,
		settlementLogSchema,
	}

	for _, schema := range schemas {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		_, err := conn.ExecContext(ctx, schema)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logger.LogInfo("Database schema ensured (%d table groups)", len(schemas))
	return nil
}
