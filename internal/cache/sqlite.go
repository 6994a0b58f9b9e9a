package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"wardsync/internal/census"
)

// SQLite persists census snapshots in a local SQLite database under WAL.
type SQLite struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// OpenSQLite opens (creating if needed) the cache database at path.
//
// A corrupt or unreadable database gets one recovery attempt: the file and
// its WAL sidecars are wiped and an empty database is created in its place.
// The corrupted tier's data is lost; the authoritative remote store backfills
// it over time.
func OpenSQLite(path string, logger *log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	conn, err := openAndInit(path)
	if err != nil {
		logger.Printf("cache open failed (%v), wiping %s and recreating", err, path)
		wipeDatabase(path)
		conn, err = openAndInit(path)
		if err != nil {
			return nil, fmt.Errorf("failed to recover cache database: %w", err)
		}
	}

	return &SQLite{conn: conn, path: path, logger: logger}, nil
}

func openAndInit(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS census_records (
		date         TEXT PRIMARY KEY,
		last_updated TEXT NOT NULL,
		payload      BLOB NOT NULL
	)`
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return conn, nil
}

func wipeDatabase(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}

// Close checkpoints the WAL and closes the database.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}
	// Best effort: fold the WAL back into the main file so a copy of the
	// .db alone is a complete backup.
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.conn.Close()
}

// Get returns the cached record for a date, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, date string) (*census.Record, error) {
	var payload []byte
	err := s.conn.QueryRowContext(ctx,
		"SELECT payload FROM census_records WHERE date = ?", date).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", date, err)
	}
	return decodeRecord(date, payload)
}

// Put upserts a whole-record snapshot, overwriting on date collision.
func (s *SQLite) Put(ctx context.Context, rec *census.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot cache invalid record: %w", err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.Date, err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO census_records (date, last_updated, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			last_updated = excluded.last_updated,
			payload      = excluded.payload`,
		rec.Date, rec.LastUpdated.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.Date, err)
	}
	return nil
}

// Delete removes a date's record. Missing dates are not an error.
func (s *SQLite) Delete(ctx context.Context, date string) error {
	if _, err := s.conn.ExecContext(ctx,
		"DELETE FROM census_records WHERE date = ?", date); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", date, err)
	}
	return nil
}

// MostRecentBefore returns the newest record strictly older than date.
// Date keys sort lexicographically in chronological order.
func (s *SQLite) MostRecentBefore(ctx context.Context, date string) (*census.Record, error) {
	var (
		found   string
		payload []byte
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT date, payload FROM census_records
		WHERE date < ?
		ORDER BY date DESC
		LIMIT 1`, date).Scan(&found, &payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record before %s: %w", date, err)
	}
	return decodeRecord(found, payload)
}

// ListDates returns every cached date, newest first.
func (s *SQLite) ListDates(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT date FROM census_records ORDER BY date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list cached dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dates: %w", err)
	}
	return dates, nil
}

func decodeRecord(date string, payload []byte) (*census.Record, error) {
	var rec census.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cached record %s: %w", date, err)
	}
	rec.SetDefaults()
	return &rec, nil
}
