// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aip/pkg/transport"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":8080", cfg.Listen.API)
	require.Equal(t, ":9090", cfg.Listen.Admin)
	require.Equal(t, 60*time.Second, cfg.Transport.NonceTTL())
	require.Equal(t, 500*time.Millisecond, cfg.Transport.MaxClockSkew())
	require.Equal(t, "in_memory", cfg.Ledger.Backend)
	require.Equal(t, 50*time.Millisecond, cfg.Auction.Window())
	require.Equal(t, 10*time.Millisecond, cfg.Auction.PublishTimeout())
	require.Equal(t, "local", cfg.Auction.Distribution.Backend)
	require.Equal(t, 500*time.Millisecond, cfg.Weave.Window())
	require.Equal(t, 4, cfg.Weave.Workers)
	require.Equal(t, []string{"weave"}, cfg.Operator.AllowedFormats)
	require.True(t, cfg.FeedEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoadDocument(t *testing.T) {
	doc := `
listen:
  api: ":8888"
transport:
  nonce_ttl_seconds: 30
ledger:
  backend: redis
  redis:
    addr: localhost:6379
auction:
  window_ms: 65
  distribution:
    backend: pubsub
    project_id: test-proj
classifier:
  rules:
    - pool: footwear
      keywords: [shoes, boots]
rate_limit:
  rps: 100
feed:
  enabled: false
`
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8888", cfg.Listen.API)
	require.Equal(t, ":9090", cfg.Listen.Admin) // default survives partial docs
	require.Equal(t, 30*time.Second, cfg.Transport.NonceTTL())
	require.Equal(t, "redis", cfg.Ledger.Backend)
	require.Equal(t, 65, cfg.Auction.WindowMs)
	require.Equal(t, "pubsub", cfg.Auction.Distribution.Backend)
	require.Len(t, cfg.Classifier.Rules, 1)
	require.Equal(t, 100, cfg.RateLimit.Burst) // burst defaults to rps
	require.False(t, cfg.FeedEnabled())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	doc := "listen:\n  apii: ':1'\n"
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateBounds(t *testing.T) {
	cfg := Default()
	cfg.Auction.WindowMs = 20
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auction.WindowMs = 80
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Ledger.Backend = "dynamo"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auction.Distribution.Backend = "kafka"
	require.Error(t, cfg.Validate())
}

func TestPlatformKeys(t *testing.T) {
	pub, _, err := transport.GenerateKeyPair()
	require.NoError(t, err)
	pem, err := transport.EncodePublicKeyPEM(pub)
	require.NoError(t, err)

	cfg := Default()
	cfg.Platforms = []Platform{
		{ID: "chatai", PublicKey: string(pem)},
		{ID: "keyless"},
	}
	require.NoError(t, cfg.Validate())

	key, ok := cfg.PlatformKey("chatai")
	require.True(t, ok)
	require.Equal(t, pub, key)

	_, ok = cfg.PlatformKey("keyless")
	require.False(t, ok)

	cfg.Platforms = []Platform{{ID: "bad", PublicKey: "junk"}}
	require.Error(t, cfg.Validate())
}

func TestEnvOverride(t *testing.T) {
	doc := "listen:\n  api: ':7000'\n"
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	t.Setenv(EnvConfigPath, path)
	cfg, err := Load("ignored.yaml")
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Listen.API)

	t.Setenv(EnvBiddersPath, "/etc/aip/bidders.yaml")
	require.Equal(t, "/etc/aip/bidders.yaml", BiddersPath("flag.yaml"))
}
