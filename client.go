// Package studykit is the client-side core of the study platform: content
// caching, user sessions, activity engines (quiz, learning, theory, OSCE,
// matching), study plans, notes, and the asynchronous write path to the
// remote service.
package studykit

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/annotate"
	"github.com/studykit/studykit/internal/cache"
	"github.com/studykit/studykit/internal/gateway"
	"github.com/studykit/studykit/internal/localstore"
	"github.com/studykit/studykit/internal/outbox"
	"github.com/studykit/studykit/internal/planner"
	"github.com/studykit/studykit/internal/session"
)

// Client is the entry point. Construct one with New, share it freely, and
// Close it when done so pending background writes drain.
type Client struct {
	endpoint   string
	appVersion string

	http  *http.Client
	log   zerolog.Logger
	gw    *gateway.Gateway
	local *localstore.Store
	cache *cache.Manager
	store *session.Store
	box   *outbox.Outbox
	notes *annotate.Reconciler

	planMu sync.Mutex
	plans  *planner.Manager

	rngMu sync.Mutex
	rng   *rand.Rand // seed source for per-session rands, guarded by rngMu

	storePath string
	boxCfg    outbox.Config

	closedOnce uint32
}

// New constructs a Client against the given service endpoint. appVersion
// tags the local content cache: a cached snapshot written by a different
// application version is refetched on first use.
func New(endpoint, appVersion string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, &ValidationError{Field: "endpoint", Reason: "must not be empty"}
	}
	if appVersion == "" {
		return nil, &ValidationError{Field: "appVersion", Reason: "must not be empty"}
	}

	c := &Client{
		endpoint:   endpoint,
		appVersion: appVersion,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        zerolog.Nop(),
		storePath:  defaultStorePath(),
	}

	// Auto-enable debug via env variable without changing code.
	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	local, err := localstore.Open(c.storePath)
	if err != nil {
		return nil, err
	}
	c.local = local

	c.gw = gateway.New(endpoint, c.http, c.log)
	c.cache = cache.New(local, &contentFetcher{gw: c.gw}, appVersion, c.log)
	c.store = session.NewStore(c.log)
	if c.box == nil {
		c.box = outbox.New(c.boxCfg, c.log)
	}
	c.notes = annotate.New(c.store, c.gw, c.box, c.log)
	c.plans = planner.NewManager(c.gw, c.box, c.log)
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c, nil
}

// Close drains pending background writes and releases local storage. Safe
// to call multiple times.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closedOnce, 0, 1) {
		return nil
	}
	c.box.Stop()
	return c.local.Close()
}

// AwaitFlush blocks until every write submitted so far has been attempted,
// successfully or not. Useful before shutdown and in tests.
func (c *Client) AwaitFlush(ctx context.Context) error {
	return c.box.Flush(ctx)
}

// OutboxStatus reports pending and failed background writes.
func (c *Client) OutboxStatus() outbox.Status {
	return c.box.Status()
}

// contentFetcher adapts the gateway to the cache's fetch interface.
type contentFetcher struct {
	gw *gateway.Gateway
}

func (f *contentFetcher) FetchContent(ctx context.Context) (json.RawMessage, error) {
	return f.gw.Request(ctx, gateway.KindContentData, nil)
}

// submit enqueues one fire-and-forget write. Enqueue failures are logged;
// the write id is returned for status lookups.
func (c *Client) submit(key, eventType string, payload map[string]any) string {
	id, err := c.box.Submit(context.Background(), key, eventType,
		outbox.JobFunc(func(ctx context.Context) error {
			_, err := c.gw.Send(ctx, eventType, payload)
			return err
		}))
	if err != nil {
		c.log.Warn().Err(err).Str("event", eventType).Msg("write not enqueued")
		return ""
	}
	return id
}

// LoadContent returns the shared content snapshot, preferring the local
// cache, and installs it in the session. The outcome says whether it was a
// cache hit, a fresh fetch, or a stale fallback.
func (c *Client) LoadContent(ctx context.Context) (*Snapshot, cache.Outcome, error) {
	snap, outcome, err := c.cache.GetContent(ctx)
	if err != nil {
		return nil, outcome, err
	}
	c.store.SetSnapshot(snap)
	return snap, outcome, nil
}

// ContentDiagnostics returns per-row diagnostics of the most recent fresh
// content load (rows dropped by validation).
func (c *Client) ContentDiagnostics() []RowDiagnostic {
	return c.cache.Diagnostics()
}

// InvalidateContent drops the cached snapshot so the next LoadContent
// fetches fresh.
func (c *Client) InvalidateContent() error {
	return c.cache.Invalidate()
}

// snapshot returns the loaded snapshot or a typed error.
func (c *Client) snapshot() (*Snapshot, error) {
	snap, ok := c.store.Snapshot()
	if !ok {
		return nil, ErrContentNotLoaded
	}
	return snap, nil
}

// currentUser returns the signed-in user or a typed error.
func (c *Client) currentUser() (User, error) {
	u, ok := c.store.User()
	if !ok {
		return User{}, ErrNotSignedIn
	}
	return u, nil
}

// newRand derives a fresh rand for one session. *rand.Rand is not safe for
// concurrent use, so sessions never share one; only the seed source is
// shared, under rngMu.
func (c *Client) newRand() *rand.Rand {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return rand.New(rand.NewSource(c.rng.Int63()))
}

func defaultStorePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "studykit", "studykit.db")
}
