package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the SQLite file created inside the data directory
const DBFileName = "farmer_credit.db"

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool applies pool limits to db
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (and if needed creates) the farmer database under dataDir
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS farmers (
			id TEXT PRIMARY KEY,
			farmer_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			mobile TEXT NOT NULL,
			state TEXT,
			district TEXT,
			village TEXT,
			latitude REAL,
			longitude REAL,
			features TEXT NOT NULL DEFAULT '{}', -- JSON raw scoring input
			consent_given BOOLEAN NOT NULL DEFAULT FALSE,
			consent_date DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS scores (
			id TEXT PRIMARY KEY,
			farmer_id TEXT NOT NULL,
			score REAL NOT NULL,
			score_band TEXT NOT NULL,
			drivers TEXT NOT NULL, -- JSON top drivers
			features TEXT NOT NULL, -- JSON input as scored
			model_type TEXT NOT NULL,
			model_version TEXT,
			computed_at DATETIME NOT NULL,
			FOREIGN KEY (farmer_id) REFERENCES farmers(farmer_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			job_type TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			input_data TEXT, -- JSON
			output_data TEXT, -- JSON
			error_message TEXT,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_scores_farmer_computed ON scores(farmer_id, computed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

const (
	stmtInsertFarmer = "insert_farmer"
	stmtGetFarmer    = "get_farmer"
	stmtListFarmers  = "list_farmers"
	stmtInsertScore  = "insert_score"
	stmtListScores   = "list_scores"
	stmtInsertJob    = "insert_job"
	stmtUpdateJob    = "update_job"
	stmtGetJob       = "get_job"
)

// initPreparedStatements prepares the statements used on hot paths
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		stmtInsertFarmer: `INSERT INTO farmers (
			id, farmer_id, name, mobile, state, district, village, latitude, longitude,
			features, consent_given, consent_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		stmtGetFarmer: `SELECT id, farmer_id, name, mobile, state, district, village, latitude, longitude,
			features, consent_given, consent_date, created_at, updated_at
			FROM farmers WHERE farmer_id = ?`,

		stmtListFarmers: `SELECT id, farmer_id, name, mobile, state, district, village, latitude, longitude,
			features, consent_given, consent_date, created_at, updated_at
			FROM farmers ORDER BY created_at, rowid LIMIT ? OFFSET ?`,

		stmtInsertScore: `INSERT INTO scores (
			id, farmer_id, score, score_band, drivers, features, model_type, model_version, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		stmtListScores: `SELECT id, farmer_id, score, score_band, drivers, features, model_type, model_version, computed_at
			FROM scores WHERE farmer_id = ? ORDER BY computed_at DESC, rowid DESC LIMIT ?`,

		stmtInsertJob: `INSERT INTO jobs (
			id, job_type, status, progress, input_data, output_data, error_message, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		stmtUpdateJob: `UPDATE jobs SET status = ?, progress = ?, output_data = ?, error_message = ?,
			started_at = ?, completed_at = ? WHERE id = ?`,

		stmtGetJob: `SELECT id, job_type, status, progress, input_data, output_data, error_message,
			created_at, started_at, completed_at
			FROM jobs WHERE id = ?`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the prepared statements and then the connection
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
