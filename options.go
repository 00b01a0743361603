package studykit

// Functional options applied by New. Options run before the internal wiring
// is constructed, so they may adjust the HTTP client, logger, storage path,
// and outbox sizing, but cannot reach the built components.

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/studykit/studykit/internal/outbox"
)

// Option configures a Client during construction in New.
type Option func(*Client) error

// WithHTTPTimeout sets the underlying http.Client timeout. This is a coarse
// safety net bounding one whole HTTP exchange; prefer per-call context
// deadlines for finer control. Must be greater than zero.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.http.Timeout = d
		return nil
	}
}

// WithDebugLogging wraps the HTTP transport so each request and response is
// dumped to the log. Not for production: dumps include full bodies.
func WithDebugLogging(enabled bool) Option {
	return func(c *Client) error {
		if enabled {
			c.http.Transport = &debugTransport{base: c.http.Transport}
		}
		return nil
	}
}

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) error {
		c.log = log
		return nil
	}
}

// WithLocalStorePath overrides where the persistent cache database lives.
// Pass ":memory:" for an ephemeral store.
func WithLocalStorePath(path string) Option {
	return func(c *Client) error {
		if path == "" {
			return fmt.Errorf("local store path must not be empty")
		}
		c.storePath = path
		return nil
	}
}

// WithOutboxConfig overrides the background write queue sizing and retry
// policy. Zero fields keep their defaults.
func WithOutboxConfig(cfg outbox.Config) Option {
	return func(c *Client) error {
		c.boxCfg = cfg
		return nil
	}
}

// WithRand injects the seed source behind question and option shuffling,
// for deterministic tests. Each session draws its own rand from it.
func WithRand(rng *rand.Rand) Option {
	return func(c *Client) error {
		c.rng = rng
		return nil
	}
}
