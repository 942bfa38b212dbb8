package permission

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	schemaVersion      = 1
	defaultBusyTimeout = 5000 // milliseconds
)

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rules (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		signature  TEXT NOT NULL,
		decision   TEXT NOT NULL,
		scope      TEXT NOT NULL DEFAULT 'persisted',
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_rules_signature ON rules(signature, id)`,
}

// SQLiteStore is an append-only rule store backed by a SQLite database.
// Rules are never deleted; revoking a grant appends a Deny rule, and
// Lookup returns the newest rule per signature.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the rule database at path.
//
// The database is created with WAL mode, a 5 s busy timeout, and a single
// connection (SQLite serialises writes). The schema is migrated
// automatically.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("permission: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("permission: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("permission: enable WAL: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("permission: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("permission: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("permission: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("permission: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("permission: record schema version: %w", err)
	}

	return nil
}

// Lookup returns the most recently appended rule for the signature.
func (s *SQLiteStore) Lookup(ctx context.Context, signature string) (Rule, bool, error) {
	var (
		rule         Rule
		createdAtStr string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT signature, decision, scope, created_at
		FROM rules
		WHERE signature = ?
		ORDER BY id DESC
		LIMIT 1`,
		signature,
	).Scan(&rule.Signature, (*string)(&rule.Decision), (*string)(&rule.Scope), &createdAtStr)
	if err == sql.ErrNoRows {
		return Rule{}, false, nil
	}
	if err != nil {
		return Rule{}, false, fmt.Errorf("permission: lookup %q: %w", signature, err)
	}

	if createdAtStr != "" {
		t, err := time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return Rule{}, false, fmt.Errorf("permission: parse created_at %q: %w", createdAtStr, err)
		}
		rule.CreatedAt = t
	}

	return rule, true, nil
}

// Append records a rule. Existing rows are never touched.
func (s *SQLiteStore) Append(ctx context.Context, rule Rule) error {
	if !rule.Decision.Valid() || rule.Decision == DecisionNeedsPrompt {
		return fmt.Errorf("permission: cannot persist decision %q", rule.Decision)
	}
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	scope := rule.Scope
	if scope == "" {
		scope = ScopePersisted
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (signature, decision, scope, created_at)
		VALUES (?, ?, ?, ?)`,
		rule.Signature, string(rule.Decision), string(scope),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("permission: append rule for %q: %w", rule.Signature, err)
	}
	return nil
}

// Len returns the total number of appended rules, including superseded
// ones.
func (s *SQLiteStore) Len() (int, error) {
	var count int
	if err := s.db.QueryRowContext(context.TODO(), "SELECT COUNT(*) FROM rules").Scan(&count); err != nil {
		return 0, fmt.Errorf("permission: count rules: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
