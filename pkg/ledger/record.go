// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"encoding/json"
	"time"

	"github.com/luxfi/aip/pkg/core"
)

// Record is the per-auction ledger document. It is the system of record
// for settlement and the sole input to operator stats.
type Record struct {
	AuctionID       string              `json:"auction_id"`
	ServeToken      string              `json:"serve_token"`
	State           State               `json:"state"`
	Context         json.RawMessage     `json:"context,omitempty"`
	Pools           []string            `json:"pools"`
	EligibleBidders []string            `json:"eligible_bidders"`
	Bids            []core.BidResponse  `json:"bids"`
	Winner          *core.BidResponse   `json:"winner,omitempty"`
	ClearingPrice   core.Price          `json:"clearing_price"`
	NoBid           bool                `json:"no_bid"`
	Events          []EventEntry        `json:"events"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// EventEntry is one element of the record's append-only history: either
// a bid-trace observation or a billing event.
type EventEntry struct {
	EventType     string    `json:"event_type"`
	Issuer        string    `json:"issuer,omitempty"`
	Nonce         string    `json:"nonce,omitempty"`
	Timestamp     string    `json:"timestamp,omitempty"`
	PayloadDigest string    `json:"payload_digest,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// BillingEvents filters the history down to cpx/cpc/cpa entries.
func (r *Record) BillingEvents() []EventEntry {
	var out []EventEntry
	for _, ev := range r.Events {
		switch Event(ev.EventType) {
		case EventCPX, EventCPC, EventCPA:
			out = append(out, ev)
		}
	}
	return out
}

func (r *Record) hasBillingEvent(ev Event, nonce string) bool {
	for _, e := range r.Events {
		if e.EventType == string(ev) && e.Nonce == nonce {
			return true
		}
	}
	return false
}
