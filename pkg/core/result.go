// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

const (
	// DefaultResultTTLMs is applied when the winning bid carries no ttl_ms.
	DefaultResultTTLMs = 60000
	// MinResultTTLMs is the lower bound on any advertised ttl.
	MinResultTTLMs = 1000

	// RenderLabel prefixes sponsored content so platforms can disclose it.
	RenderLabel = "[Ad]"
)

// FormatResult shapes the platform-facing result for a closed auction.
// winner is nil on the no-bid path. The serve token and ttl are always
// present so callers can cache negative outcomes too.
func FormatResult(auctionID, serveToken string, winner *BidResponse, clearing Price) *AuctionResult {
	res := &AuctionResult{
		AuctionID:  auctionID,
		ServeToken: serveToken,
		TTLMs:      resultTTL(winner),
	}
	if winner == nil {
		res.NoBid = true
		return res
	}
	res.Winner = &Winner{
		Bidder:        winner.Bidder,
		Price:         winner.Price.Fixed4(),
		PricingModel:  winner.PricingModel,
		ClearingPrice: clearing.Fixed4(),
		Creative:      winner.Creative,
	}
	res.Render = buildRender(winner.Creative)
	return res
}

func resultTTL(winner *BidResponse) int64 {
	ttl := int64(DefaultResultTTLMs)
	if winner != nil && winner.TTLMs > 0 {
		ttl = winner.TTLMs
	}
	if ttl < MinResultTTLMs {
		ttl = MinResultTTLMs
	}
	return ttl
}

// buildRender lifts presentation fields out of the creative. The label
// defaults to RenderLabel; deeplink takes precedence over url.
func buildRender(creative map[string]any) *Render {
	r := &Render{
		Label: creativeString(creative, "label"),
		Title: creativeString(creative, "title"),
		Body:  creativeString(creative, "body"),
		CTA:   creativeString(creative, "cta"),
		URL:   creativeString(creative, "deeplink"),
	}
	if r.Label == "" {
		r.Label = RenderLabel
	}
	if r.URL == "" {
		r.URL = creativeString(creative, "url")
	}
	return r
}

func creativeString(creative map[string]any, key string) string {
	if creative == nil {
		return ""
	}
	s, _ := creative[key].(string)
	return s
}
