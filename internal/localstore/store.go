// Package localstore is the client's persistent key-value storage, backed by
// an embedded SQLite database. It holds the content cache blob and version
// tag plus small per-user markers (viewed lectures, bookmarks, seen
// announcement, tour seen).
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// Well-known keys. Per-user keys are built with the *Key helpers.
const (
	KeyContentSnapshot = "content.snapshot"
	KeyContentVersion  = "content.version"
)

// ViewedLecturesKey returns the key of the per-user viewed-lecture set.
func ViewedLecturesKey(userID string) string { return "user." + userID + ".viewedLectures" }

// BookmarksKey returns the key of the per-user bookmarked-question set.
func BookmarksKey(userID string) string { return "user." + userID + ".bookmarks" }

// SeenAnnouncementKey returns the key of the per-user seen-announcement marker.
func SeenAnnouncementKey(userID string) string { return "user." + userID + ".seenAnnouncement" }

// TourSeenKey returns the key of the per-user tour-seen marker.
func TourSeenKey(userID string) string { return "user." + userID + ".tourSeen" }

// Store is a thin KV layer over a single SQLite table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at the given path and enables WAL journal
// mode. Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized and is required for
	// ":memory:", where every pooled connection would otherwise get its own
	// empty database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the value stored under key. The second result reports presence.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// GetString returns the value under key as a string.
func (s *Store) GetString(key string) (string, bool, error) {
	v, ok, err := s.Get(key)
	return string(v), ok, err
}

// PutString stores a string value under key.
func (s *Store) PutString(key, value string) error { return s.Put(key, []byte(value)) }

// GetStringSet reads a JSON-encoded string set.
func (s *Store) GetStringSet(key string) (map[string]bool, error) {
	v, ok, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	if !ok {
		return set, nil
	}
	var items []string
	if err := json.Unmarshal(v, &items); err != nil {
		// A corrupt marker set is not worth failing over; start fresh.
		return set, nil
	}
	for _, it := range items {
		set[it] = true
	}
	return set, nil
}

// PutStringSet stores a string set as a sorted JSON array.
func (s *Store) PutStringSet(key string, set map[string]bool) error {
	items := make([]string, 0, len(set))
	for it, present := range set {
		if present {
			items = append(items, it)
		}
	}
	sort.Strings(items)
	v, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.Put(key, v)
}
