// Package cache provides the disk-backed TTL key/value store shared by all
// retrieval components. Keys are namespaced strings built by the Key helpers;
// values are JSON-encoded, so callers may cache candidate lists or whole
// structured objects, not only strings.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTTL is applied when Set is called with a non-positive ttl.
const DefaultTTL = 7 * 24 * time.Hour

// Stats is a snapshot of the hit/miss counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// HitRate returns hits/(hits+misses), 0 when nothing was observed.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Store is a sqlite-backed TTL cache. Get and Set never surface storage
// errors to callers: a failure is logged and behaves as a miss, so the cache
// can only cost performance, never correctness.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	statsMu sync.Mutex
	hits    uint64
	misses  uint64
}

func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache pragmas: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at_unix INTEGER NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_expiry ON cache_entries(expires_at_unix);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache index: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Get loads the value stored under key into dest. It returns false on a
// missing key, an expired entry, or any storage/decode failure.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	var (
		raw       string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at_unix FROM cache_entries WHERE key = ?`, key,
	).Scan(&raw, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		s.miss()
		return false
	case err != nil:
		s.logger.Warn("cache read failed", "key", key, "error", err)
		s.miss()
		return false
	}

	if time.Now().Unix() >= expiresAt {
		s.miss()
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.Warn("cache entry undecodable, dropping", "key", key, "error", err)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		s.miss()
		return false
	}
	s.hit()
	return true
}

// Set stores value under key for ttl (DefaultTTL when ttl <= 0). Failures
// are logged and swallowed; the key then simply stays a miss.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache value unencodable", "key", key, "error", err)
		return
	}
	expiresAt := time.Now().Add(ttl).Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at_unix) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at_unix = excluded.expires_at_unix`,
		key, string(raw), expiresAt,
	)
	if err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Delete removes one key. Used when a cached entry turns out to be stale.
func (s *Store) Delete(ctx context.Context, key string) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		s.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

// DeleteExpired reclaims rows whose TTL has elapsed. Expiry correctness does
// not depend on it; Get checks expires_at_unix itself.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at_unix <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired cache entries: %w", err)
	}
	return removed, nil
}

// Size counts the stored entries and how many of them have already expired
// but not yet been swept.
func (s *Store) Size(ctx context.Context) (total, expired int64, err error) {
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(expires_at_unix <= ?), 0) FROM cache_entries`,
		time.Now().Unix(),
	).Scan(&total, &expired); err != nil {
		return 0, 0, fmt.Errorf("count cache entries: %w", err)
	}
	return total, expired, nil
}

func (s *Store) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{Hits: s.hits, Misses: s.misses}
}

// ResetStats zeroes the hit/miss counters.
func (s *Store) ResetStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.hits, s.misses = 0, 0
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) hit() {
	s.statsMu.Lock()
	s.hits++
	s.statsMu.Unlock()
}

func (s *Store) miss() {
	s.statsMu.Lock()
	s.misses++
	s.statsMu.Unlock()
}
