// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/fanout"
	"github.com/luxfi/aip/pkg/registry"
)

// pushOpenRTB translates the envelope into an OpenRTB 2.x bid request,
// posts it, and maps the best returned bid into the auction inbox.
// Bridged bids are server-mediated, so they skip signature checks and
// bid as CPX unless the bid ext names another model.
func (p *Pusher) pushOpenRTB(ctx context.Context, b *registry.Bidder, env *fanout.Envelope) (bool, error) {
	rtbReq, err := buildBidRequest(env)
	if err != nil {
		return false, err
	}
	body, err := json.Marshal(rtbReq)
	if err != nil {
		return false, err
	}
	resp, err := p.post(ctx, b.Endpoint, body)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("bidder %s returned %d", b.Name, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPushBody))
	if err != nil {
		return false, err
	}
	var rtbResp openrtb2.BidResponse
	if err := json.Unmarshal(raw, &rtbResp); err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}

	best := bestRTBBid(&rtbResp)
	if best == nil {
		return false, nil
	}
	bid := mapRTBBid(best, b.Name, env.AuctionID)
	if err := bid.Validate(); err != nil {
		return false, err
	}
	if err := p.submit(ctx, bid); err != nil {
		return false, err
	}
	return true, nil
}

func buildBidRequest(env *fanout.Envelope) (*openrtb2.BidRequest, error) {
	req := env.ContextRequest

	var floor float64
	if req.Pricing != nil && req.Pricing.CPXFloor != "" {
		if d, err := decimal.NewFromString(req.Pricing.CPXFloor); err == nil {
			floor, _ = d.Float64()
		}
	}
	impExt, err := json.Marshal(map[string]any{"aip": map[string]any{
		"pool":          env.Pool,
		"surface":       req.Surface,
		"pricing_model": string(core.ModelCPX),
	}})
	if err != nil {
		return nil, err
	}
	reqExt, err := json.Marshal(map[string]any{"aip": map[string]any{
		"session_id":  req.SessionID,
		"platform_id": req.PlatformID,
		"locale":      req.Locale,
		"pools":       req.Pools,
	}})
	if err != nil {
		return nil, err
	}

	tmax := time.Until(env.WindowDeadline).Milliseconds()
	if tmax < 1 {
		tmax = 1
	}
	rtbReq := &openrtb2.BidRequest{
		ID: env.AuctionID,
		Imp: []openrtb2.Imp{{
			ID:          "1",
			TagID:       env.Pool,
			BidFloor:    floor,
			BidFloorCur: "USD",
			Ext:         impExt,
		}},
		AT:   2,
		TMax: tmax,
		Cur:  []string{"USD"},
		Ext:  reqExt,
	}
	if req.QueryText != "" || req.Geo != "" {
		rtbReq.Site = &openrtb2.Site{Search: req.QueryText}
		if req.Geo != "" {
			rtbReq.Device = &openrtb2.Device{Geo: &openrtb2.Geo{Country: req.Geo}}
		}
	}
	return rtbReq, nil
}

func bestRTBBid(resp *openrtb2.BidResponse) *openrtb2.Bid {
	var best *openrtb2.Bid
	for i := range resp.SeatBid {
		for j := range resp.SeatBid[i].Bid {
			bid := &resp.SeatBid[i].Bid[j]
			if bid.Price <= 0 {
				continue
			}
			if best == nil || bid.Price > best.Price {
				best = bid
			}
		}
	}
	return best
}

func mapRTBBid(bid *openrtb2.Bid, bidderName, auctionID string) *core.BidResponse {
	creative := map[string]any{}
	if bid.CrID != "" {
		creative["crid"] = bid.CrID
	}
	if bid.AdM != "" {
		creative["body"] = bid.AdM
	}
	if bid.NURL != "" {
		creative["url"] = bid.NURL
	}
	model := core.ModelCPX
	if len(bid.Ext) > 0 {
		var ext map[string]any
		if json.Unmarshal(bid.Ext, &ext) == nil {
			for k, v := range ext {
				if k == "pricing_model" {
					if s, ok := v.(string); ok {
						if m, err := core.ParsePricingModel(s); err == nil {
							model = m
						}
					}
					continue
				}
				creative[k] = v
			}
		}
	}
	return &core.BidResponse{
		AuctionID:    auctionID,
		Bidder:       bidderName,
		Price:        core.PriceFromFloat(bid.Price),
		PricingModel: model,
		Creative:     creative,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
	}
}
