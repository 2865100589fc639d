// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"
	"time"

	"github.com/luxfi/aip/pkg/core"
)

// DefaultMaxClockSkew bounds how far a payload timestamp may drift from
// the server wall clock in either direction.
const DefaultMaxClockSkew = 500 * time.Millisecond

// CheckTimestamp parses an RFC 3339 timestamp and enforces the skew gate
// against now. The parsed time is returned for downstream TTL checks.
func CheckTimestamp(ts string, now time.Time, maxSkew time.Duration) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp missing", core.ErrTimestampOutOfRange)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", core.ErrTimestampOutOfRange, err)
	}
	delta := now.Sub(t)
	if delta < 0 {
		delta = -delta
	}
	if delta > maxSkew {
		return time.Time{}, fmt.Errorf("%w: drift %s exceeds %s", core.ErrTimestampOutOfRange, delta, maxSkew)
	}
	return t, nil
}
