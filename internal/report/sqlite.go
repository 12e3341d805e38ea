package report

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// ErrStoreClosed is returned by every operation after Close
var ErrStoreClosed = errors.New("report store is closed")

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	closed  atomic.Bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens or creates the report database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS entries (
		task_id TEXT NOT NULL,
		archive TEXT NOT NULL,
		idx INTEGER NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL,
		key TEXT NOT NULL,
		etag TEXT,
		status TEXT NOT NULL,
		last_error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (task_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
	CREATE INDEX IF NOT EXISTS idx_entries_archive ON entries(archive);
	`

	_, err := s.db.Exec(query)
	return err
}

// SaveEntries upserts records in a single transaction
func (s *SQLiteStore) SaveEntries(records []*EntryRecord) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if len(records) == 0 {
		return nil
	}

	// Serialize writes to avoid SQLITE_BUSY from concurrent workers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveWithTransaction(records)
	})
}

func (s *SQLiteStore) saveWithTransaction(records []*EntryRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO entries
	(task_id, archive, idx, name, size, key, etag, status, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id, idx) DO UPDATE SET
		name = excluded.name,
		size = excluded.size,
		key = excluded.key,
		etag = excluded.etag,
		status = excluded.status,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, record := range records {
		record.UpdatedAt = now
		_, err := stmt.Exec(
			record.TaskID,
			record.Archive,
			record.Index,
			record.Name,
			record.Size,
			record.Key,
			record.ETag,
			string(record.Status),
			record.LastError,
			record.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save entry %d of task %s: %w", record.Index, record.TaskID, err)
		}
	}

	return tx.Commit()
}

// retryOnBusy retries the operation while SQLite reports it is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil || !isSQLiteBusyError(err) {
			return err
		}
		time.Sleep(baseDelay*time.Duration(1<<uint(attempt)) + time.Duration(attempt*10)*time.Millisecond)
	}

	return err
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// ListFailedEntries returns every failed entry, oldest first
func (s *SQLiteStore) ListFailedEntries() ([]*EntryRecord, error) {
	return s.query(`WHERE status = ? ORDER BY updated_at ASC, archive ASC, idx ASC`, string(StatusFailed))
}

// ListTaskEntries returns the entries of one task ordered by position
func (s *SQLiteStore) ListTaskEntries(taskID string) ([]*EntryRecord, error) {
	return s.query(`WHERE task_id = ? ORDER BY idx ASC`, taskID)
}

func (s *SQLiteStore) query(where string, args ...any) ([]*EntryRecord, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
	SELECT task_id, archive, idx, name, size, key, etag, status, last_error, updated_at
	FROM entries `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*EntryRecord
	for rows.Next() {
		var record EntryRecord
		var etag, lastError sql.NullString
		var status string

		err := rows.Scan(
			&record.TaskID,
			&record.Archive,
			&record.Index,
			&record.Name,
			&record.Size,
			&record.Key,
			&etag,
			&status,
			&lastError,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		record.Status = EntryStatus(status)
		record.ETag = etag.String
		record.LastError = lastError.String
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
