// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport implements the security envelope for signed payloads:
// Ed25519 signatures over canonical JSON, a wall-clock skew gate, and a
// TTL nonce store for replay protection. Checks run in a fixed order so
// callers get stable error kinds: signature, then timestamp, then nonce.
package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/luxfi/aip/pkg/core"
)

// Authenticator runs the full check sequence for one signed payload.
type Authenticator struct {
	MaxSkew time.Duration
	Nonces  NonceStore

	// Now is a test hook; defaults to time.Now.
	Now func() time.Time
}

// NewAuthenticator wires the skew gate and nonce store together.
func NewAuthenticator(maxSkew time.Duration, nonces NonceStore) *Authenticator {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxClockSkew
	}
	return &Authenticator{MaxSkew: maxSkew, Nonces: nonces, Now: time.Now}
}

// Authenticate verifies the signature, checks the timestamp and reserves
// the nonce, in that order. A missing nonce is a schema failure; all
// other failures carry their transport error kind.
func (a *Authenticator) Authenticate(ctx context.Context, sp SignedPayload, pub ed25519.PublicKey, principal string) error {
	if sp.Signature == "" {
		return fmt.Errorf("%w: signature missing", core.ErrSignatureInvalid)
	}
	if !Verify(sp.Bytes, sp.Signature, pub) {
		return fmt.Errorf("%w: ed25519 verification failed", core.ErrSignatureInvalid)
	}

	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	ts, err := CheckTimestamp(sp.Timestamp, now, a.MaxSkew)
	if err != nil {
		return err
	}

	if sp.Nonce == "" {
		return fmt.Errorf("%w: nonce missing", core.ErrSchemaInvalid)
	}
	if a.Nonces == nil {
		return nil
	}
	return a.Nonces.Reserve(ctx, principal, sp.Nonce, ts)
}
