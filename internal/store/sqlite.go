package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"clariond/internal/logging"
	"clariond/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend persists pattern stats in a local SQLite database, one row
// per (domain, template_id).
type SQLiteBackend struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteBackend creates or opens the pattern database. Creates the schema
// if it doesn't exist.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteBackend")
	defer timer.Stop()

	if dbPath == "" {
		return nil, fmt.Errorf("database path required")
	}

	logging.Store("Opening pattern database at: %s", dbPath)

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	b := &SQLiteBackend{db: db, dbPath: dbPath}
	if err := b.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Pattern database ready")
	return b, nil
}

func (b *SQLiteBackend) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		domain TEXT NOT NULL,
		template_id TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		failure INTEGER NOT NULL DEFAULT 0,
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (domain, template_id)
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_domain ON patterns(domain);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Load reads all persisted stats keyed by domain. Rows that fail to scan are
// skipped rather than failing the whole load.
func (b *SQLiteBackend) Load() (map[string][]types.PatternStat, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SQLiteBackend.Load")
	defer timer.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.db.Query(`
		SELECT domain, template_id, success, failure, last_updated
		FROM patterns
		ORDER BY domain, template_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]types.PatternStat)
	for rows.Next() {
		var stat types.PatternStat
		if err := rows.Scan(&stat.Domain, &stat.TemplateID, &stat.Success, &stat.Failure, &stat.LastUpdated); err != nil {
			logging.Get(logging.CategoryStore).Warn("Skipping unreadable pattern row: %v", err)
			continue
		}
		out[stat.Domain] = append(out[stat.Domain], stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	logging.StoreDebug("Loaded %d domains from pattern database", len(out))
	return out, nil
}

// Upsert writes or replaces the record for (stat.Domain, stat.TemplateID).
func (b *SQLiteBackend) Upsert(stat types.PatternStat) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.Exec(`
		INSERT INTO patterns (domain, template_id, success, failure, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, template_id) DO UPDATE SET
			success = excluded.success,
			failure = excluded.failure,
			last_updated = excluded.last_updated
	`, stat.Domain, stat.TemplateID, stat.Success, stat.Failure, stat.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}
	return nil
}

// Clear wipes all persisted records.
func (b *SQLiteBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	logging.Store("Clearing pattern database")
	if _, err := b.db.Exec(`DELETE FROM patterns`); err != nil {
		return fmt.Errorf("failed to clear patterns: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	return nil
}
