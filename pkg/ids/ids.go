// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// ServeTokenPrefix marks server-minted serve tokens.
const ServeTokenPrefix = "stk_"

// NewServeToken mints a serve token: the prefix followed by 128 bits of
// cryptographically random hex. Tokens are unique across restarts.
func NewServeToken() string {
	return ServeTokenPrefix + randomHex(16)
}

// IsServeToken reports whether s has the shape of a minted serve token.
func IsServeToken(s string) bool {
	if !strings.HasPrefix(s, ServeTokenPrefix) {
		return false
	}
	rest := strings.TrimPrefix(s, ServeTokenPrefix)
	if len(rest) != 32 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// NewNonce returns a random nonce suitable for signed payloads.
func NewNonce() string {
	return randomHex(16)
}

// NewRequestID returns a prefixed random request identifier.
func NewRequestID(prefix string) string {
	if prefix == "" {
		prefix = "req"
	}
	return fmt.Sprintf("%s_%s", prefix, randomHex(8))
}

func randomHex(n int) string {
	buf := make([]byte, n)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
