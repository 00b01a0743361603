package studykit

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the environment-driven client configuration, prefix STUDYKIT_.
type Config struct {
	Endpoint    string        `envconfig:"ENDPOINT" required:"true"`
	AppVersion  string        `envconfig:"APP_VERSION" default:"dev"`
	StorePath   string        `envconfig:"STORE_PATH"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	Debug       bool          `envconfig:"DEBUG" default:"false"`
}

// LoadConfig reads configuration from STUDYKIT_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("STUDYKIT", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewFromEnv constructs a Client from STUDYKIT_* environment variables.
// Extra options are applied after the environment-derived ones.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	envOpts := []Option{WithHTTPTimeout(cfg.HTTPTimeout)}
	if cfg.StorePath != "" {
		envOpts = append(envOpts, WithLocalStorePath(cfg.StorePath))
	}
	if cfg.Debug {
		envOpts = append(envOpts, WithDebugLogging(true))
	}
	return New(cfg.Endpoint, cfg.AppVersion, append(envOpts, opts...)...)
}
