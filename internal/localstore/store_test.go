package localstore

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "studykit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	t.Parallel()
	s := openTemp(t)

	if _, ok, err := s.Get(KeyContentVersion); err != nil || ok {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}
	if err := s.PutString(KeyContentVersion, "2.4.1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := s.GetString(KeyContentVersion)
	if err != nil || !ok || v != "2.4.1" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}

	// Overwrite wins.
	if err := s.PutString(KeyContentVersion, "2.5.0"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, _, _ = s.GetString(KeyContentVersion)
	if v != "2.5.0" {
		t.Fatalf("expected overwrite, got %q", v)
	}

	if err := s.Delete(KeyContentVersion); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(KeyContentVersion); ok {
		t.Fatal("expected key gone after Delete")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "studykit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(KeyContentSnapshot, []byte(`{"version":"v1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	v, ok, err := s2.Get(KeyContentSnapshot)
	if err != nil || !ok || string(v) != `{"version":"v1"}` {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestStore_StringSets(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	key := BookmarksKey("u1")

	set, err := s.GetStringSet(key)
	if err != nil || len(set) != 0 {
		t.Fatalf("expected empty set, got %v err=%v", set, err)
	}

	set["q3"] = true
	set["q1"] = true
	if err := s.PutStringSet(key, set); err != nil {
		t.Fatalf("PutStringSet: %v", err)
	}
	got, err := s.GetStringSet(key)
	if err != nil {
		t.Fatalf("GetStringSet: %v", err)
	}
	if !got["q1"] || !got["q3"] || len(got) != 2 {
		t.Fatalf("unexpected set: %v", got)
	}

	// Corrupt blob resets to empty rather than failing.
	if err := s.Put(key, []byte("{{not json")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err = s.GetStringSet(key)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected reset set, got %v err=%v", got, err)
	}
}
