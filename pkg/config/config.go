// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the server document. Parsing is strict: unknown
// keys fail at startup. Defaults are applied before validation so a
// missing file yields a fully usable development configuration.
package config

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luxfi/aip/pkg/classify"
	"github.com/luxfi/aip/pkg/storage"
	"github.com/luxfi/aip/pkg/transport"
)

// Env overrides for document locations.
const (
	EnvConfigPath  = "AIP_CONFIG_PATH"
	EnvBiddersPath = "AIP_BIDDERS_PATH"
)

// Auction window bounds in milliseconds. Windows outside this band are
// configuration errors.
const (
	MinWindowMs = 30
	MaxWindowMs = 70
)

type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Transport  TransportConfig  `yaml:"transport"`
	Ledger     storage.Config   `yaml:"ledger"`
	Auction    AuctionConfig    `yaml:"auction"`
	Weave      WeaveConfig      `yaml:"weave"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Operator   OperatorConfig   `yaml:"operator"`
	Platforms  []Platform       `yaml:"platforms"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Feed       FeedConfig       `yaml:"feed"`

	platformKeys map[string]ed25519.PublicKey
}

type ListenConfig struct {
	API   string `yaml:"api"`
	Admin string `yaml:"admin"`
}

type TransportConfig struct {
	NonceTTLSeconds int `yaml:"nonce_ttl_seconds"`
	MaxClockSkewMs  int `yaml:"max_clock_skew_ms"`
}

func (t TransportConfig) NonceTTL() time.Duration {
	return time.Duration(t.NonceTTLSeconds) * time.Second
}

func (t TransportConfig) MaxClockSkew() time.Duration {
	return time.Duration(t.MaxClockSkewMs) * time.Millisecond
}

type AuctionConfig struct {
	WindowMs         int                `yaml:"window_ms"`
	PublishTimeoutMs int                `yaml:"publish_timeout_ms"`
	Distribution     DistributionConfig `yaml:"distribution"`
}

func (a AuctionConfig) Window() time.Duration {
	return time.Duration(a.WindowMs) * time.Millisecond
}

func (a AuctionConfig) PublishTimeout() time.Duration {
	return time.Duration(a.PublishTimeoutMs) * time.Millisecond
}

// DistributionConfig selects the fanout backend.
type DistributionConfig struct {
	Backend     string `yaml:"backend"`
	TopicPrefix string `yaml:"topic_prefix"`
	ProjectID   string `yaml:"project_id"`
	RedisAddr   string `yaml:"redis_addr"`
}

type WeaveConfig struct {
	WindowMs  int `yaml:"window_ms"`
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

func (w WeaveConfig) Window() time.Duration {
	return time.Duration(w.WindowMs) * time.Millisecond
}

type ClassifierConfig struct {
	Rules       []classify.Rule `yaml:"rules"`
	DefaultPool string          `yaml:"default_pool"`
}

type OperatorConfig struct {
	ID             string   `yaml:"id"`
	AllowedFormats []string `yaml:"allowed_formats"`
}

// Platform registers a context issuer's verification key.
type Platform struct {
	ID        string `yaml:"id"`
	PublicKey string `yaml:"public_key"`
}

// RateLimitConfig is a token bucket; RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type FeedConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// FeedEnabled defaults to on.
func (c *Config) FeedEnabled() bool {
	return c.Feed.Enabled == nil || *c.Feed.Enabled
}

// Default returns the development configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a config document; an empty path returns defaults. The
// AIP_CONFIG_PATH variable overrides path when set.
func Load(path string) (*Config, error) {
	if env := os.Getenv(EnvConfigPath); env != "" {
		path = env
	}
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BiddersPath resolves the roster location from the env override or the
// provided flag value.
func BiddersPath(flagValue string) string {
	if env := os.Getenv(EnvBiddersPath); env != "" {
		return env
	}
	return flagValue
}

func (c *Config) applyDefaults() {
	if c.Listen.API == "" {
		c.Listen.API = ":8080"
	}
	if c.Listen.Admin == "" {
		c.Listen.Admin = ":9090"
	}
	if c.Transport.NonceTTLSeconds <= 0 {
		c.Transport.NonceTTLSeconds = 60
	}
	if c.Transport.MaxClockSkewMs <= 0 {
		c.Transport.MaxClockSkewMs = 500
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "in_memory"
	}
	if c.Auction.WindowMs == 0 {
		c.Auction.WindowMs = 50
	}
	if c.Auction.PublishTimeoutMs <= 0 {
		c.Auction.PublishTimeoutMs = 10
	}
	if c.Auction.Distribution.Backend == "" {
		c.Auction.Distribution.Backend = "local"
	}
	if c.Auction.Distribution.TopicPrefix == "" {
		c.Auction.Distribution.TopicPrefix = "aip-pool-"
	}
	if c.Weave.WindowMs <= 0 {
		c.Weave.WindowMs = 500
	}
	if c.Weave.Workers <= 0 {
		c.Weave.Workers = 4
	}
	if c.Weave.QueueSize <= 0 {
		c.Weave.QueueSize = 64
	}
	if c.Classifier.DefaultPool == "" {
		c.Classifier.DefaultPool = "default"
	}
	if c.Operator.ID == "" {
		c.Operator.ID = "aip-operator"
	}
	if len(c.Operator.AllowedFormats) == 0 {
		c.Operator.AllowedFormats = []string{"weave"}
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RPS)
		if c.RateLimit.Burst < 1 {
			c.RateLimit.Burst = 1
		}
	}
}

// Validate checks enums, the window band, and parses platform keys.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case "in_memory", "memory", "badger", "redis", "postgres", "firestore":
	default:
		return fmt.Errorf("ledger.backend %q not recognized", c.Ledger.Backend)
	}
	switch c.Auction.Distribution.Backend {
	case "local", "pubsub", "redis":
	default:
		return fmt.Errorf("auction.distribution.backend %q not recognized", c.Auction.Distribution.Backend)
	}
	if c.Auction.WindowMs < MinWindowMs || c.Auction.WindowMs > MaxWindowMs {
		return fmt.Errorf("auction.window_ms %d outside [%d, %d]", c.Auction.WindowMs, MinWindowMs, MaxWindowMs)
	}

	c.platformKeys = make(map[string]ed25519.PublicKey, len(c.Platforms))
	for _, p := range c.Platforms {
		if p.ID == "" {
			return fmt.Errorf("platforms entry missing id")
		}
		if p.PublicKey == "" {
			continue
		}
		key, err := transport.ParsePublicKeyPEM([]byte(p.PublicKey))
		if err != nil {
			return fmt.Errorf("platform %q: %w", p.ID, err)
		}
		c.platformKeys[p.ID] = key
	}
	return nil
}

// PlatformKey resolves a configured platform verification key.
func (c *Config) PlatformKey(id string) (ed25519.PublicKey, bool) {
	key, ok := c.platformKeys[id]
	return key, ok
}
