// Package cache decides whether shared content is served from local
// persistent storage or fetched fresh from the remote service. The stored
// snapshot is tagged with the application version that wrote it; a tag match
// is the fast path and makes no network call at all. On network failure an
// old snapshot of any version is served as a degraded fallback, trading
// freshness for availability.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/content"
	"github.com/studykit/studykit/internal/localstore"
)

// Outcome reports how GetContent satisfied the call.
type Outcome int

const (
	// OutcomeHit: served from the version-matched cache, zero network calls.
	OutcomeHit Outcome = iota
	// OutcomeFresh: fetched from the service and stored.
	OutcomeFresh
	// OutcomeStaleFallback: the fetch failed and an old cached snapshot was
	// served instead.
	OutcomeStaleFallback
	// OutcomeUnavailable: the fetch failed and no cached snapshot exists.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeFresh:
		return "fresh"
	case OutcomeStaleFallback:
		return "stale_fallback"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the raw contentData body from the remote service.
type Fetcher interface {
	FetchContent(ctx context.Context) (json.RawMessage, error)
}

// Manager owns the content cache.
type Manager struct {
	local      *localstore.Store
	fetch      Fetcher
	appVersion string
	log        zerolog.Logger
	now        func() time.Time

	mu        sync.Mutex
	lastDiags []content.RowDiagnostic
}

// New constructs a Manager keyed to the given application version.
func New(local *localstore.Store, fetch Fetcher, appVersion string, log zerolog.Logger) *Manager {
	return &Manager{
		local:      local,
		fetch:      fetch,
		appVersion: appVersion,
		log:        log.With().Str("component", "cache").Logger(),
		now:        time.Now,
	}
}

// GetContent returns the content snapshot, preferring the local cache.
// The returned error is non-nil only when nothing can be served at all
// (OutcomeUnavailable); the caller must then display a failure state.
func (m *Manager) GetContent(ctx context.Context) (*content.Snapshot, Outcome, error) {
	blob, haveBlob, err := m.local.Get(localstore.KeyContentSnapshot)
	if err != nil {
		m.log.Warn().Err(err).Msg("cache read failed")
		haveBlob = false
	}
	tag, haveTag, err := m.local.GetString(localstore.KeyContentVersion)
	if err != nil {
		haveTag = false
	}

	if haveBlob && haveTag && tag == m.appVersion {
		if snap := decodeSnapshot(blob); snap != nil {
			outcomeTotal.WithLabelValues(OutcomeHit.String()).Inc()
			return snap, OutcomeHit, nil
		}
		// Corrupt blob: fall through to a fresh fetch.
		m.log.Warn().Msg("cached snapshot corrupt, refetching")
	}

	raw, fetchErr := m.fetch.FetchContent(ctx)
	if fetchErr == nil {
		snap, diags, parseErr := content.ParseSnapshot(raw)
		if parseErr == nil {
			m.setDiagnostics(diags)
			snap.FetchedAt = m.now()
			if snap.Version == "" {
				snap.Version = m.appVersion
			}
			m.store(snap)
			outcomeTotal.WithLabelValues(OutcomeFresh.String()).Inc()
			return snap, OutcomeFresh, nil
		}
		m.log.Error().Err(parseErr).Msg("fresh content unusable")
		fetchErr = parseErr
	}

	// Degraded fallback: any cached snapshot beats nothing.
	if haveBlob {
		if snap := decodeSnapshot(blob); snap != nil {
			m.log.Warn().Err(fetchErr).Msg("serving stale cached content")
			outcomeTotal.WithLabelValues(OutcomeStaleFallback.String()).Inc()
			return snap, OutcomeStaleFallback, nil
		}
	}

	outcomeTotal.WithLabelValues(OutcomeUnavailable.String()).Inc()
	return nil, OutcomeUnavailable, fetchErr
}

// Diagnostics returns the row diagnostics of the most recent fresh load.
func (m *Manager) Diagnostics() []content.RowDiagnostic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]content.RowDiagnostic, len(m.lastDiags))
	copy(out, m.lastDiags)
	return out
}

// Invalidate drops the cached snapshot and version tag.
func (m *Manager) Invalidate() error {
	if err := m.local.Delete(localstore.KeyContentSnapshot); err != nil {
		return err
	}
	return m.local.Delete(localstore.KeyContentVersion)
}

// store persists the snapshot and version tag. Best-effort: storage failures
// (e.g. quota) are logged, never fatal.
func (m *Manager) store(snap *content.Snapshot) {
	blob, err := json.Marshal(snap)
	if err != nil {
		m.log.Warn().Err(err).Msg("snapshot marshal failed")
		return
	}
	if err := m.local.Put(localstore.KeyContentSnapshot, blob); err != nil {
		m.log.Warn().Err(err).Msg("snapshot store failed")
		return
	}
	if err := m.local.PutString(localstore.KeyContentVersion, m.appVersion); err != nil {
		m.log.Warn().Err(err).Msg("version tag store failed")
	}
}

func (m *Manager) setDiagnostics(diags []content.RowDiagnostic) {
	m.mu.Lock()
	m.lastDiags = diags
	m.mu.Unlock()
}

func decodeSnapshot(blob []byte) *content.Snapshot {
	var snap content.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil
	}
	return &snap
}
