// Package storage persists probe findings to SQLite so severity trends can
// be tracked across runs.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anomalyscope/anomalyscope-go/internal/report"
)

// Storage handles database operations
type Storage struct {
	db *sql.DB
}

// Record is a stored probe finding.
type Record struct {
	ID              int64
	CardID          string
	Severity        string
	Description     string
	CrossSimilarity float64
	Timestamp       time.Time
	Meta            map[string]interface{}
}

// Database configuration constants
const (
	// busyTimeoutMs is how long SQLite waits when database is locked (5 seconds)
	busyTimeoutMs = 5000
	// maxOpenConns limits concurrent connections (SQLite works best with 1)
	maxOpenConns = 1
	// maxIdleConns is the number of idle connections to keep
	maxIdleConns = 1
	// connMaxLifetime is how long a connection can be reused
	connMaxLifetime = 30 * time.Minute
)

// New creates a new storage instance
func New(dbPath string) (*Storage, error) {
	// Create directory if it doesn't exist (0700 for security - owner only)
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with busy timeout to prevent indefinite waits.
	// The _busy_timeout pragma prevents "database is locked" errors by waiting
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection to avoid lock contention
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Schema version constants
const (
	// currentSchemaVersion is the latest schema version
	// Increment this when adding new migrations
	currentSchemaVersion = 1
)

// initSchema creates the database schema if it doesn't exist
func (s *Storage) initSchema() error {
	// Create schema_version table first (tracks migration state)
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Get current schema version
	version := s.getSchemaVersion()

	// Run migrations based on current version
	if err := s.migrateSchema(version); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version (0 if not set)
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0 // No version set, needs full migration
	}
	return version
}

// setSchemaVersion updates the schema version
func (s *Storage) setSchemaVersion(version int) error {
	// Delete existing and insert new (simpler than upsert for single row)
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return nil
}

// migrateSchema runs migrations from currentVersion to latest
func (s *Storage) migrateSchema(currentVersion int) error {
	if currentVersion >= currentSchemaVersion {
		return nil // Already up to date
	}

	log.Printf("storage: migrating schema from version %d to %d", currentVersion, currentSchemaVersion)

	// Migration 0 -> 1: Create base anomalies table
	if currentVersion < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	// Update schema version
	if err := s.setSchemaVersion(currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	log.Printf("storage: schema migration completed successfully (now at version %d)", currentSchemaVersion)
	return nil
}

// migrateV1 creates the base anomalies table
func (s *Storage) migrateV1() error {
	log.Printf("storage: running migration v1 - create base tables")

	schema := `
	CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		card_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		description TEXT NOT NULL,
		cross_similarity REAL DEFAULT 0.0,
		timestamp TEXT NOT NULL,
		meta TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON anomalies(timestamp);
	CREATE INDEX IF NOT EXISTS idx_severity ON anomalies(severity);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveCard persists an anomaly card. The card's RFC 3339 timestamp is stored
// as-is so the value survives a round trip byte for byte.
func (s *Storage) SaveCard(card *report.Card) (int64, error) {
	metaJSON, err := json.Marshal(card.Meta)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal card meta: %w", err)
	}

	crossSim := 0.0
	if v, ok := card.Meta["cross_similarity"].(float64); ok {
		crossSim = v
	}

	query := `
		INSERT INTO anomalies (
			card_id, severity, description, cross_similarity, timestamp, meta
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		card.ID,
		card.Severity,
		card.Description,
		crossSim,
		card.Timestamp,
		string(metaJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert anomaly: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

// GetRecentCards retrieves anomaly records from the last N days, newest first.
func (s *Storage) GetRecentCards(days int) ([]*Record, error) {
	cutoffDate := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	query := `
		SELECT id, card_id, severity, description, cross_similarity, timestamp, meta
		FROM anomalies
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := s.db.Query(query, cutoffDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer func(rows *sql.Rows) {
		err = rows.Close()
		if err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}(rows)

	var records []*Record
	for rows.Next() {
		record, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// CleanupOldCards deletes anomaly records older than N days
func (s *Storage) CleanupOldCards(days int) (int64, error) {
	cutoffDate := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	query := `DELETE FROM anomalies WHERE timestamp < ?`
	result, err := s.db.Exec(query, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old anomalies: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// GetStatistics returns database statistics
func (s *Storage) GetStatistics() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	// Total count
	var total int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM anomalies`).Scan(&total)
	if err != nil {
		return nil, err
	}
	stats["total_anomalies"] = total

	// Severity distribution
	rows, err := s.db.Query(`SELECT severity, COUNT(*) FROM anomalies GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		err = rows.Close()
		if err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}(rows)

	severityDist := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		severityDist[severity] = count
	}
	stats["severity_distribution"] = severityDist

	// Average cross-provider similarity
	var avgCrossSim float64
	err = s.db.QueryRow(`SELECT COALESCE(AVG(cross_similarity), 0) FROM anomalies`).Scan(&avgCrossSim)
	if err != nil {
		return nil, err
	}
	stats["avg_cross_similarity"] = avgCrossSim

	return stats, nil
}

// scanRecord scans a database row into a Record struct
func (s *Storage) scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		id              int64
		cardID          string
		severity        string
		description     string
		crossSimilarity float64
		timestamp       string
		metaJSON        string
	)

	err := rows.Scan(&id, &cardID, &severity, &description, &crossSimilarity, &timestamp, &metaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	// Parse timestamp
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	var meta map[string]interface{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
		}
	}

	return &Record{
		ID:              id,
		CardID:          cardID,
		Severity:        severity,
		Description:     description,
		CrossSimilarity: crossSimilarity,
		Timestamp:       ts,
		Meta:            meta,
	}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
