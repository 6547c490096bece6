package kv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"github.com/ashureev/supportd/internal/domain"
	_ "modernc.org/sqlite"
)

const defaultOpTimeout = 5 * time.Second

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	opTimeout time.Duration
	now       func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithOpTimeout sets the per-operation deadline applied when the caller's
// context has none.
func WithOpTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) { s.opTimeout = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// OpenSQLite opens (creating if needed) the key/value database at dbPath.
func OpenSQLite(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, opTimeout: defaultOpTimeout, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv_entries (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		stored_at  INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv_entries(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// opCtx bounds an operation that arrived without a deadline.
func (s *SQLiteStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func unavailable(op string, err error) error {
	return zerr.With(zerr.Wrap(domain.ErrUnavailable, op), "cause", err.Error())
}

// Set writes value under key with the given TTL. A zero or negative TTL
// is rejected; every entry carries an expiry.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return zerr.Wrap(domain.ErrInvalidInput, "empty key")
	}
	if ttl <= 0 {
		return zerr.With(zerr.Wrap(domain.ErrInvalidInput, "non-positive ttl"), "key", key)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := s.now()
	query := `
		INSERT INTO kv_entries (key, value, stored_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at`

	err := withConflictRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, key, value, now.UnixMilli(), now.Add(ttl).UnixMilli())
		return err
	})
	if err != nil {
		return unavailable("set key", err)
	}
	return nil
}

// Get returns the value stored under key. Expired entries are treated as
// absent and lazily removed.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key)

	var value []byte
	var expiresAt int64
	err := row.Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, zerr.With(zerr.Wrap(domain.ErrNotFound, "get key"), "key", key)
	}
	if err != nil {
		return nil, unavailable("get key", err)
	}

	if expiresAt <= s.now().UnixMilli() {
		// Lazy eviction. The sweeper handles the rest.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ? AND expires_at <= ?`,
			key, s.now().UnixMilli())
		return nil, zerr.With(zerr.Wrap(domain.ErrNotFound, "expired key"), "key", key)
	}
	return value, nil
}

// Delete removes the given keys and returns how many rows existed.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	placeholders := strings.Repeat("?,", len(keys)-1) + "?"
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	var affected int64
	err := withConflictRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM kv_entries WHERE key IN (`+placeholders+`)`, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable("delete keys", err)
	}
	return affected, nil
}

// ListKeys returns all non-expired keys starting with prefix, sorted.
func (s *SQLiteStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE key LIKE ? ESCAPE '\' AND expires_at > ? ORDER BY key`,
		escapeLike(prefix)+"%", s.now().UnixMilli())
	if err != nil {
		return nil, unavailable("list keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, unavailable("scan key row", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate keys", err)
	}
	return keys, nil
}

// CountKeys returns the number of non-expired keys starting with prefix.
func (s *SQLiteStore) CountKeys(ctx context.Context, prefix string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv_entries WHERE key LIKE ? ESCAPE '\' AND expires_at > ?`,
		escapeLike(prefix)+"%", s.now().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, unavailable("count keys", err)
	}
	return n, nil
}

// DeleteExpired removes all entries whose expiry has passed. Called by
// the background sweeper.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var affected int64
	err := withConflictRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM kv_entries WHERE expires_at <= ?`, s.now().UnixMilli())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable("delete expired", err)
	}
	return affected, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE wildcards so a prefix matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
