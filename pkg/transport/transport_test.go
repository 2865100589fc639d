// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aip/pkg/core"
)

func TestKeyPEMRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	pubPEM, err := EncodePublicKeyPEM(pub)
	require.NoError(t, err)
	privPEM, err := EncodePrivateKeyPEM(priv)
	require.NoError(t, err)

	pub2, err := ParsePublicKeyPEM(pubPEM)
	require.NoError(t, err)
	require.Equal(t, pub, pub2)

	priv2, err := ParsePrivateKeyPEM(privPEM)
	require.NoError(t, err)
	require.Equal(t, priv, priv2)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	bid := map[string]any{
		"auction_id":    "auc-1",
		"bidder":        "acme",
		"price":         2.5,
		"pricing_model": "cpc",
		"timestamp":     "2025-06-01T12:00:00Z",
		"nonce":         "n-1",
	}
	sig, err := Sign(bid, priv)
	require.NoError(t, err)

	// The wire form carries the signature inside the payload; key order
	// must not matter once canonicalized.
	bid["signature"] = sig
	sp, err := ExtractSigned(mustJSON(t, bid))
	require.NoError(t, err)
	require.True(t, Verify(sp.Bytes, sp.Signature, pub))
	require.Equal(t, "n-1", sp.Nonce)
	require.Equal(t, "2025-06-01T12:00:00Z", sp.Timestamp)
}

func TestVerifyRejectsMutation(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := map[string]any{"a": 1, "b": "x"}
	sig, err := Sign(payload, priv)
	require.NoError(t, err)

	payload["signature"] = sig
	sp, err := ExtractSigned(mustJSON(t, payload))
	require.NoError(t, err)
	require.True(t, Verify(sp.Bytes, sp.Signature, pub))

	// Flip one payload byte.
	mutated := make([]byte, len(sp.Bytes))
	copy(mutated, sp.Bytes)
	mutated[len(mutated)-2] ^= 0x01
	require.False(t, Verify(mutated, sp.Signature, pub))

	// Flip one signature byte.
	raw, err := base64.StdEncoding.DecodeString(sp.Signature)
	require.NoError(t, err)
	raw[0] ^= 0x01
	require.False(t, Verify(sp.Bytes, base64.StdEncoding.EncodeToString(raw), pub))

	require.False(t, Verify(sp.Bytes, "not base64!!!", pub))
}

func TestExtractSignedAuth(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	req := map[string]any{
		"request_id": "req-1",
		"query_text": "hiking boots",
		"timestamp":  "2025-06-01T12:00:00Z",
		"auth":       map[string]any{"nonce": "n-9"},
	}
	sig, err := SignAuth(req, priv)
	require.NoError(t, err)

	req["auth"].(map[string]any)["signature"] = sig
	sp, err := ExtractSignedAuth(mustJSON(t, req))
	require.NoError(t, err)
	require.Equal(t, "n-9", sp.Nonce)
	require.True(t, Verify(sp.Bytes, sp.Signature, pub))
}

func TestCheckTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := CheckTimestamp("2025-06-01T12:00:00.200Z", now, 500*time.Millisecond)
	require.NoError(t, err)

	// Future drift within bounds is fine too.
	_, err = CheckTimestamp("2025-06-01T12:00:00.400Z", now, 500*time.Millisecond)
	require.NoError(t, err)

	_, err = CheckTimestamp("2025-06-01T11:59:59Z", now, 500*time.Millisecond)
	require.ErrorIs(t, err, core.ErrTimestampOutOfRange)

	_, err = CheckTimestamp("yesterday", now, 500*time.Millisecond)
	require.ErrorIs(t, err, core.ErrTimestampOutOfRange)

	_, err = CheckTimestamp("", now, 500*time.Millisecond)
	require.ErrorIs(t, err, core.ErrTimestampOutOfRange)
}

// newFixedNonceStore builds a store pinned to a fake clock without the
// background sweeper.
func newFixedNonceStore(ttl time.Duration, now func() time.Time) *MemoryNonceStore {
	return &MemoryNonceStore{
		ttl:  ttl,
		now:  now,
		stop: make(chan struct{}),
		seen: make(map[string]time.Time),
	}
}

func TestMemoryNonceStoreDuplicate(t *testing.T) {
	store := NewMemoryNonceStore(time.Minute)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Reserve(ctx, "acme", "n-1", now))
	require.ErrorIs(t, store.Reserve(ctx, "acme", "n-1", now), core.ErrNonceDuplicate)

	// Same nonce is independent per principal.
	require.NoError(t, store.Reserve(ctx, "globex", "n-1", now))
}

func TestMemoryNonceStoreExpiry(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	store := newFixedNonceStore(time.Minute, func() time.Time { return clock })

	ctx := context.Background()
	require.ErrorIs(t, store.Reserve(ctx, "acme", "old", base.Add(-2*time.Minute)), core.ErrNonceExpired)

	require.NoError(t, store.Reserve(ctx, "acme", "n-2", base))
	// Once the TTL passes, the slot is reusable.
	clock = base.Add(90 * time.Second)
	require.NoError(t, store.Reserve(ctx, "acme", "n-2", clock))
}

func TestAuthenticatorCheckOrder(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	_, otherPriv, err := GenerateKeyPair()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFixedNonceStore(time.Minute, func() time.Time { return now })

	auth := NewAuthenticator(500*time.Millisecond, store)
	auth.Now = func() time.Time { return now }

	build := func(key ed25519.PrivateKey, ts, nonce string) SignedPayload {
		payload := map[string]any{"auction_id": "a", "timestamp": ts, "nonce": nonce}
		sig, err := Sign(payload, key)
		require.NoError(t, err)
		payload["signature"] = sig
		sp, err := ExtractSigned(mustJSON(t, payload))
		require.NoError(t, err)
		return sp
	}

	ctx := context.Background()
	good := now.Format(time.RFC3339)

	// Wrong key fails on signature even though the timestamp is stale too.
	sp := build(otherPriv, "2025-06-01T11:00:00Z", "n-1")
	require.ErrorIs(t, auth.Authenticate(ctx, sp, pub, "acme"), core.ErrSignatureInvalid)

	// Valid signature, stale timestamp.
	sp = build(priv, "2025-06-01T11:00:00Z", "n-1")
	require.ErrorIs(t, auth.Authenticate(ctx, sp, pub, "acme"), core.ErrTimestampOutOfRange)

	// Valid signature and timestamp, fresh nonce.
	sp = build(priv, good, "n-1")
	require.NoError(t, auth.Authenticate(ctx, sp, pub, "acme"))

	// Replay of the same nonce.
	sp = build(priv, good, "n-1")
	require.ErrorIs(t, auth.Authenticate(ctx, sp, pub, "acme"), core.ErrNonceDuplicate)

	// Missing nonce is a schema failure.
	sp = build(priv, good, "")
	require.ErrorIs(t, auth.Authenticate(ctx, sp, pub, "acme"), core.ErrSchemaInvalid)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
