package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TimeLayout matches SQLite's CURRENT_TIMESTAMP, so rows written by the
// column default and by Timestamp compare as strings.
const TimeLayout = "2006-01-02 15:04:05"

// cacheTables carry a created_at column and are pruned by age.
var cacheTables = []string{"cache", "cache_geodata"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cache (
		key        TEXT PRIMARY KEY,
		value      BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS cache_geodata (
		key        TEXT PRIMARY KEY,
		data       BLOB,
		radius_m   INTEGER,
		lat        REAL,
		lon        REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_geodata_latlon ON cache_geodata (lat, lon)`,
}

// DB is the SQLite handle shared by the stores.
type DB struct {
	*sql.DB
}

// Init opens (creating if needed) the database at path and applies the schema.
// WAL and the busy timeout are set through the DSN so every pooled
// connection gets them.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(30000)")
	conn, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; SQLite would answer SQLITE_BUSY otherwise.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &DB{conn}, nil
}

// Timestamp formats t for the created_at columns.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// PruneCache deletes cache rows older than maxAge and returns how many went.
func (d *DB) PruneCache(maxAge time.Duration) (int64, error) {
	cutoff := Timestamp(time.Now().Add(-maxAge))

	var total int64
	for _, table := range cacheTables {
		res, err := d.Exec("DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
