package outbox

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config groups all tunables. Values are taken from environment variables with
// the prefix "OUTBOX_". Example: OUTBOX_SHARDS=8 OUTBOX_QUEUE_SIZE=256 .
type Config struct {
	Shards         int           `envconfig:"SHARDS"          default:"4"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"128"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"100ms"`

	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"8"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF" default:"100ms"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" default:"20s"`

	// HistoryLimit caps how many settled (succeeded or failed) write records
	// are retained for Status queries. Pending records are always retained.
	HistoryLimit int `envconfig:"HISTORY_LIMIT" default:"256"`

	// ErrorHandler is called synchronously after a write is abandoned with a
	// non-nil error. Leave nil if you do not care.
	ErrorHandler func(error) `ignored:"true"`
}

// LoadConfig populates Config from environment variables (prefix OUTBOX_).
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("OUTBOX", &c)
}

func (c *Config) applyDefaults() {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 20 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 256
	}
}
