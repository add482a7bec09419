// Package store provides SQLite persistence for cached timeline items.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/timeline/internal/timeline"
)

// Store handles SQLite persistence of cached timeline records. NOT an
// interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// Record is one stored row: a timeline item with its expiry precomputed at
// write time and the account denormalized alongside it.
type Record struct {
	ID                 string
	Content            string
	CreatedAt          time.Time
	ExpiresAt          time.Time
	AccountUsername    string
	AccountDisplayName string
	AccountAvatar      string
}

// FromItem converts a domain item to a storable record, computing the
// absolute expiry from the item's creation time and lifespan.
func FromItem(item timeline.Item) Record {
	return Record{
		ID:                 string(item.ID),
		Content:            item.Content,
		CreatedAt:          item.CreatedAt,
		ExpiresAt:          item.ExpiresAt(),
		AccountUsername:    item.Account.Username,
		AccountDisplayName: item.Account.DisplayName,
		AccountAvatar:      item.Account.Avatar,
	}
}

// Item converts a record back to the domain model. The lifespan is derived
// from the stored creation and expiry times.
func (r Record) Item() timeline.Item {
	return timeline.Item{
		ID:        timeline.PostID(r.ID),
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		Lifespan:  r.ExpiresAt.Sub(r.CreatedAt),
		Account: timeline.Account{
			Username:    r.AccountUsername,
			DisplayName: r.AccountDisplayName,
			Avatar:      r.AccountAvatar,
		},
	}
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{
		db:   db,
		subs: make(map[chan struct{}]struct{}),
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required table and index if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cached_items (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		account_username TEXT NOT NULL,
		account_display_name TEXT,
		account_avatar TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cached_items_created ON cached_items(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_cached_items_expires ON cached_items(expires_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRecords upserts records keyed by id: the latest write for a given id
// wins. Each record is upserted independently - a failure partway through
// does not roll back earlier rows.
// Thread-safe: acquires write lock.
func (s *Store) SaveRecords(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	stmt, err := s.db.Prepare(`
		INSERT INTO cached_items (
			id, content, created_at, expires_at,
			account_username, account_display_name, account_avatar
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			account_username = excluded.account_username,
			account_display_name = excluded.account_display_name,
			account_avatar = excluded.account_avatar
	`)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("prepare upsert: %w", err)
	}

	for _, r := range records {
		_, err = stmt.Exec(
			r.ID,
			r.Content,
			r.CreatedAt.UnixMilli(),
			r.ExpiresAt.UnixMilli(),
			r.AccountUsername,
			r.AccountDisplayName,
			r.AccountAvatar,
		)
		if err != nil {
			stmt.Close()
			s.mu.Unlock()
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}
	stmt.Close()
	s.mu.Unlock()

	s.notify()
	return nil
}

// All returns every stored record ordered by creation time descending.
// Thread-safe: acquires read lock.
func (s *Store) All() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, content, created_at, expires_at,
			account_username, account_display_name, account_avatar
		FROM cached_items
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var createdAt, expiresAt int64
		err := rows.Scan(
			&r.ID,
			&r.Content,
			&createdAt,
			&expiresAt,
			&r.AccountUsername,
			&r.AccountDisplayName,
			&r.AccountAvatar,
		)
		if err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		r.ExpiresAt = time.UnixMilli(expiresAt)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteExpired removes every record whose expiry time is at or before the
// given cutoff. Returns the number of rows removed.
// Thread-safe: acquires write lock.
func (s *Store) DeleteExpired(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	result, err := s.db.Exec("DELETE FROM cached_items WHERE expires_at <= ?", cutoff.UnixMilli())
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.notify()
	}
	return deleted, nil
}

// DeleteByID removes a single record. Deleting an absent id is a no-op.
// Thread-safe: acquires write lock.
func (s *Store) DeleteByID(id string) error {
	s.mu.Lock()
	result, err := s.db.Exec("DELETE FROM cached_items WHERE id = ?", id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		s.notify()
	}
	return nil
}

// DeleteAll removes every record.
// Thread-safe: acquires write lock.
func (s *Store) DeleteAll() error {
	s.mu.Lock()
	_, err := s.db.Exec("DELETE FROM cached_items")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify()
	return nil
}

// Count returns the number of stored records.
// Thread-safe: acquires read lock.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM cached_items").Scan(&count)
	return count, err
}

// Subscribe returns a channel that receives a tick after every mutation.
// Ticks are coalesced: a subscriber that hasn't drained its pending tick
// gets at most one. The channel is unregistered when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}()

	return ch
}

// notify wakes all subscribers without blocking on any of them.
func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
