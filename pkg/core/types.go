// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package core holds the wire types shared across the auction server: the
// inbound context request, signed bid responses, auction results, and the
// event callback payload. Everything here is plain data; behavior lives in
// the auction, ledger and transport packages.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PricingModel identifies how a bid is priced. Selection prefers deeper
// funnel commitment: CPA outranks CPC, CPC outranks CPX.
type PricingModel string

const (
	ModelCPX PricingModel = "cpx" // per exposure
	ModelCPC PricingModel = "cpc" // per click
	ModelCPA PricingModel = "cpa" // per acquisition
)

// Priority returns the selection rank of the model; higher wins.
func (m PricingModel) Priority() int {
	switch m {
	case ModelCPA:
		return 3
	case ModelCPC:
		return 2
	case ModelCPX:
		return 1
	default:
		return 0
	}
}

func (m PricingModel) Valid() bool {
	return m.Priority() > 0
}

// ParsePricingModel normalizes case and validates.
func ParsePricingModel(s string) (PricingModel, error) {
	m := PricingModel(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: pricing_model %q", ErrSchemaInvalid, s)
	}
	return m, nil
}

// Price is a decimal amount carried as a JSON number. Decimal semantics
// keep 1.50 and 1.5 equal in comparisons while preserving scale for
// display formatting.
type Price struct {
	decimal.Decimal
}

// NewPrice parses a decimal string.
func NewPrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, err
	}
	return Price{d}, nil
}

// PriceFromFloat builds a Price from a float64.
func PriceFromFloat(f float64) Price {
	return Price{decimal.NewFromFloat(f)}
}

// MarshalJSON emits the price as an unquoted JSON number.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

// Cmp compares two prices, returning -1, 0 or +1.
func (p Price) Cmp(other Price) int {
	return p.Decimal.Cmp(other.Decimal)
}

// Fixed4 renders the price with exactly four decimal places, the display
// form used in auction results.
func (p Price) Fixed4() string {
	return p.Decimal.StringFixed(4)
}

// Auth carries the platform's request authentication material.
type Auth struct {
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// Pricing carries platform-side price constraints. CPXFloor is a decimal
// string with two fractional digits, e.g. "0.25".
type Pricing struct {
	CPXFloor string `json:"cpx_floor,omitempty"`
}

// ContextRequest is the inbound platform intent that opens an auction.
// RequestID doubles as the auction id.
type ContextRequest struct {
	RequestID  string         `json:"request_id"`
	SessionID  string         `json:"session_id,omitempty"`
	PlatformID string         `json:"platform_id,omitempty"`
	QueryText  string         `json:"query_text"`
	Locale     string         `json:"locale,omitempty"`
	Geo        string         `json:"geo,omitempty"`
	Surface    string         `json:"surface,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
	Pools      []string       `json:"pools,omitempty"`
	Pricing    *Pricing       `json:"pricing,omitempty"`
	Auth       *Auth          `json:"auth,omitempty"`
	Ext        map[string]any `json:"ext,omitempty"`
}

// Validate checks the fields the server depends on before running an
// auction. Transport-level auth is checked separately.
func (c *ContextRequest) Validate() error {
	if c.RequestID == "" {
		return fmt.Errorf("%w: request_id is required", ErrSchemaInvalid)
	}
	if c.QueryText == "" {
		return fmt.Errorf("%w: query_text is required", ErrSchemaInvalid)
	}
	return nil
}

// BidResponse is a bidder's signed answer to a fanned-out context. The
// signature covers the canonical bytes of every field except Signature.
type BidResponse struct {
	AuctionID    string         `json:"auction_id"`
	Bidder       string         `json:"bidder"`
	Price        Price          `json:"price"`
	PricingModel PricingModel   `json:"pricing_model"`
	Creative     map[string]any `json:"creative,omitempty"`
	TTLMs        int64          `json:"ttl_ms,omitempty"`
	Pass         bool           `json:"pass,omitempty"`
	Timestamp    string         `json:"timestamp"`
	Nonce        string         `json:"nonce"`
	Signature    string         `json:"signature,omitempty"`
}

// Validate performs schema-level checks. Pass bids skip price and model
// validation; they only signal a decline.
func (b *BidResponse) Validate() error {
	if b.AuctionID == "" {
		return fmt.Errorf("%w: auction_id is required", ErrSchemaInvalid)
	}
	if b.Bidder == "" {
		return fmt.Errorf("%w: bidder is required", ErrSchemaInvalid)
	}
	if b.Pass {
		return nil
	}
	if !b.PricingModel.Valid() {
		return fmt.Errorf("%w: pricing_model %q", ErrSchemaInvalid, b.PricingModel)
	}
	if b.Price.IsNegative() {
		return fmt.Errorf("%w: price must be non-negative", ErrSchemaInvalid)
	}
	return nil
}

// EventPayload is a signed CPX/CPC/CPA callback against a served auction.
// EventType may be carried in the body or taken from the URL path.
type EventPayload struct {
	AuctionID  string         `json:"auction_id"`
	ServeToken string         `json:"serve_token,omitempty"`
	EventType  string         `json:"event_type,omitempty"`
	Issuer     string         `json:"issuer"`
	Timestamp  string         `json:"timestamp"`
	Nonce      string         `json:"nonce"`
	Signature  string         `json:"signature,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Winner describes the selected bid inside an AuctionResult. Prices are
// strings with four decimal places.
type Winner struct {
	Bidder        string         `json:"bidder"`
	Price         string         `json:"price"`
	PricingModel  PricingModel   `json:"pricing_model"`
	ClearingPrice string         `json:"clearing_price"`
	Creative      map[string]any `json:"creative,omitempty"`
}

// Render is the platform-facing presentation block derived from the
// winning creative. Absent fields are omitted.
type Render struct {
	Label string `json:"label,omitempty"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	CTA   string `json:"cta,omitempty"`
	URL   string `json:"url,omitempty"`
}

// AuctionResult is the platform's answer: either a winner with render
// hints or no_bid. Persisted is set to false only when the ledger write
// failed after retries; the result is still authoritative for serving.
type AuctionResult struct {
	AuctionID  string  `json:"auction_id"`
	NoBid      bool    `json:"no_bid,omitempty"`
	ServeToken string  `json:"serve_token,omitempty"`
	TTLMs      int64   `json:"ttl_ms,omitempty"`
	Winner     *Winner `json:"winner,omitempty"`
	Render     *Render `json:"render,omitempty"`
	Persisted  *bool   `json:"persisted,omitempty"`
}
