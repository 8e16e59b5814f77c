package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ghkit/ghkit/pkg/ghapi"
)

// SQLiteStore persists cache entries across process restarts. It
// implements the same Store contract as MemoryStore: lazy TTL expiry
// on read and least-recently-used eviction past the capacity bound,
// with recency tracked in an accessed_at column.
type SQLiteStore struct {
	db       *sql.DB
	capacity int
}

// NewSQLiteStore opens (creating if needed) the cache database at
// dbPath.
func NewSQLiteStore(dbPath string, capacity int) (*SQLiteStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS search_cache (
			key TEXT PRIMARY KEY,
			total_count INTEGER NOT NULL,
			incomplete INTEGER NOT NULL,
			items BLOB NOT NULL,
			stored_at INTEGER NOT NULL,
			ttl_ns INTEGER NOT NULL,
			accessed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_search_cache_accessed ON search_cache(accessed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &SQLiteStore{db: db, capacity: capacity}, nil
}

// Get returns the unexpired entry for key, refreshing its recency.
// Expired rows are deleted on the spot.
func (s *SQLiteStore) Get(key string, now time.Time) (*Entry, bool) {
	row := s.db.QueryRow(
		`SELECT total_count, incomplete, items, stored_at, ttl_ns FROM search_cache WHERE key = ?`, key)

	var (
		totalCount int
		incomplete int
		items      []byte
		storedAt   int64
		ttlNS      int64
	)
	if err := row.Scan(&totalCount, &incomplete, &items, &storedAt, &ttlNS); err != nil {
		return nil, false
	}

	entry := &Entry{
		Key:      key,
		StoredAt: time.Unix(0, storedAt),
		TTL:      time.Duration(ttlNS),
	}
	if entry.Expired(now) {
		_, _ = s.db.Exec(`DELETE FROM search_cache WHERE key = ?`, key)
		return nil, false
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(items, &rawItems); err != nil {
		return nil, false
	}
	entry.Result = &ghapi.Result{
		TotalCount:        totalCount,
		IncompleteResults: incomplete != 0,
		Items:             rawItems,
	}

	_, _ = s.db.Exec(`UPDATE search_cache SET accessed_at = ? WHERE key = ?`, now.UnixNano(), key)
	return entry, true
}

// Set stores the entry and trims the least-recently-accessed rows past
// the capacity bound.
func (s *SQLiteStore) Set(entry *Entry) error {
	items, err := json.Marshal(entry.Result.Items)
	if err != nil {
		return fmt.Errorf("encoding cached items: %w", err)
	}

	incomplete := 0
	if entry.Result.IncompleteResults {
		incomplete = 1
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO search_cache
			(key, total_count, incomplete, items, stored_at, ttl_ns, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Key, entry.Result.TotalCount, incomplete, items,
		entry.StoredAt.UnixNano(), int64(entry.TTL), entry.StoredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM search_cache WHERE key IN (
			SELECT key FROM search_cache
			ORDER BY accessed_at DESC
			LIMIT -1 OFFSET ?
		)`, s.capacity)
	if err != nil {
		return fmt.Errorf("trimming cache: %w", err)
	}
	return nil
}

// Len returns the current row count.
func (s *SQLiteStore) Len() int {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM search_cache`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Clear removes all rows.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM search_cache`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
