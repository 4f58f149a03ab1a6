package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shuakami/napcat-qce-go/pkg/batch"
)

// SQLiteStore provides SQLite-based history storage operations
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite history store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS export_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		target_name TEXT DEFAULT '',
		task_id TEXT DEFAULT '',
		status TEXT NOT NULL,
		message_count INTEGER DEFAULT 0,
		file_path TEXT DEFAULT '',
		error TEXT DEFAULT '',
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_export_records_run_id ON export_records(run_id);
	CREATE INDEX IF NOT EXISTS idx_export_records_finished_at ON export_records(finished_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record persists one finished batch item
func (s *SQLiteStore) Record(ctx context.Context, rec batch.Record) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_records (run_id, target_type, target_id, target_name, task_id, status, message_count, file_path, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Target.Type, rec.Target.ID, rec.Target.Name, rec.TaskID, rec.Status, rec.MessageCount, rec.FilePath, rec.Error, rec.FinishedAt.UTC())

	return err
}

// ListRuns returns the ids of known runs, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM export_records GROUP BY run_id ORDER BY MAX(id) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, err
		}
		result = append(result, runID)
	}
	return result, rows.Err()
}

// ListByRun returns all records of one run in insertion order
func (s *SQLiteStore) ListByRun(ctx context.Context, runID string) ([]batch.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, target_type, target_id, target_name, task_id, status, message_count, file_path, error, finished_at
		FROM export_records WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// Recent returns the newest records across all runs, up to limit
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]batch.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, target_type, target_id, target_name, task_id, status, message_count, file_path, error, finished_at
		FROM export_records ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// scanRecords scans multiple record rows
func (s *SQLiteStore) scanRecords(rows *sql.Rows) ([]batch.Record, error) {
	var result []batch.Record
	for rows.Next() {
		var rec batch.Record
		err := rows.Scan(&rec.RunID, &rec.Target.Type, &rec.Target.ID, &rec.Target.Name, &rec.TaskID, &rec.Status, &rec.MessageCount, &rec.FilePath, &rec.Error, &rec.FinishedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
