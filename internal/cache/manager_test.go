package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/localstore"
)

// stubFetcher counts calls so tests can assert the zero-network fast path.
type stubFetcher struct {
	calls int32
	body  string
	err   error
}

func (f *stubFetcher) FetchContent(ctx context.Context) (json.RawMessage, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.body), nil
}

func (f *stubFetcher) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

const testBody = `{
	"questions": [{"id": "q1", "chapter": "c", "question": "?", "answers": [
		{"text": "A", "isCorrect": true}, {"text": "B"}
	]}],
	"chapterNames": ["c"]
}`

func openLocal(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetContent_FreshFetchStoresSnapshotAndTag(t *testing.T) {
	t.Parallel()
	local := openLocal(t)
	f := &stubFetcher{body: testBody}
	m := New(local, f, "1.0", zerolog.Nop())

	snap, outcome, err := m.GetContent(context.Background())
	if err != nil || outcome != OutcomeFresh {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if len(snap.Questions) != 1 {
		t.Fatalf("snapshot not parsed: %+v", snap)
	}
	if f.Calls() != 1 {
		t.Fatalf("expected exactly one fetch, got %d", f.Calls())
	}
	tag, ok, _ := local.GetString(localstore.KeyContentVersion)
	if !ok || tag != "1.0" {
		t.Fatalf("version tag not stored: %q ok=%v", tag, ok)
	}
}

// Cache correctness: matching version tag serves the stored snapshot with
// zero network calls.
func TestGetContent_VersionMatchSkipsNetwork(t *testing.T) {
	t.Parallel()
	local := openLocal(t)
	f := &stubFetcher{body: testBody}
	m := New(local, f, "1.0", zerolog.Nop())

	if _, _, err := m.GetContent(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}

	snap, outcome, err := m.GetContent(context.Background())
	if err != nil || outcome != OutcomeHit {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if len(snap.Questions) != 1 {
		t.Fatalf("cached snapshot wrong: %+v", snap)
	}
	if f.Calls() != 1 {
		t.Fatalf("expected no second fetch, got %d calls", f.Calls())
	}
}

// Cache invalidation: a different application version must refetch exactly
// once and overwrite both blob and tag.
func TestGetContent_VersionMismatchRefetches(t *testing.T) {
	t.Parallel()
	local := openLocal(t)
	f1 := &stubFetcher{body: testBody}
	m1 := New(local, f1, "1.0", zerolog.Nop())
	if _, _, err := m1.GetContent(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}

	f2 := &stubFetcher{body: testBody}
	m2 := New(local, f2, "2.0", zerolog.Nop())
	_, outcome, err := m2.GetContent(context.Background())
	if err != nil || outcome != OutcomeFresh {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if f2.Calls() != 1 {
		t.Fatalf("expected exactly one fetch, got %d", f2.Calls())
	}
	tag, _, _ := local.GetString(localstore.KeyContentVersion)
	if tag != "2.0" {
		t.Fatalf("tag not overwritten: %q", tag)
	}
}

// Fallback on failure: a stored snapshot of any version is served when the
// network is down.
func TestGetContent_FallsBackToStaleOnFetchFailure(t *testing.T) {
	t.Parallel()
	local := openLocal(t)
	m1 := New(local, &stubFetcher{body: testBody}, "1.0", zerolog.Nop())
	if _, _, err := m1.GetContent(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}

	m2 := New(local, &stubFetcher{err: errors.New("network down")}, "2.0", zerolog.Nop())
	snap, outcome, err := m2.GetContent(context.Background())
	if err != nil || outcome != OutcomeStaleFallback {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if len(snap.Questions) != 1 {
		t.Fatalf("stale snapshot wrong: %+v", snap)
	}
}

func TestGetContent_NoCacheNoNetworkIsUnavailable(t *testing.T) {
	t.Parallel()
	m := New(openLocal(t), &stubFetcher{err: errors.New("network down")}, "1.0", zerolog.Nop())
	snap, outcome, err := m.GetContent(context.Background())
	if snap != nil || outcome != OutcomeUnavailable || err == nil {
		t.Fatalf("expected unavailable, got snap=%v outcome=%v err=%v", snap, outcome, err)
	}
}

func TestGetContent_CorruptCacheRefetches(t *testing.T) {
	t.Parallel()
	local := openLocal(t)
	_ = local.Put(localstore.KeyContentSnapshot, []byte("{{corrupt"))
	_ = local.PutString(localstore.KeyContentVersion, "1.0")

	f := &stubFetcher{body: testBody}
	m := New(local, f, "1.0", zerolog.Nop())
	snap, outcome, err := m.GetContent(context.Background())
	if err != nil || outcome != OutcomeFresh {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if len(snap.Questions) != 1 || f.Calls() != 1 {
		t.Fatalf("expected refetch after corruption, calls=%d", f.Calls())
	}
}

func TestGetContent_DiagnosticsExposed(t *testing.T) {
	t.Parallel()
	body := `{"questions": [
		{"id": "bad", "chapter": "c", "question": "?", "answers": [{"text":"A"},{"text":"B"}]}
	]}`
	m := New(openLocal(t), &stubFetcher{body: body}, "1.0", zerolog.Nop())
	if _, _, err := m.GetContent(context.Background()); err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	diags := m.Diagnostics()
	if len(diags) != 1 || diags[0].ID != "bad" {
		t.Fatalf("expected diagnostic for bad row, got %v", diags)
	}
}
