// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"testing"

	"github.com/luxfi/aip/pkg/core"
)

func bid(bidder string, price float64, model core.PricingModel) core.BidResponse {
	return core.BidResponse{
		AuctionID:    "auc-1",
		Bidder:       bidder,
		Price:        core.PriceFromFloat(price),
		PricingModel: model,
	}
}

func TestSelectModelOutranksPrice(t *testing.T) {
	winner, _ := Select([]core.BidResponse{
		bid("alpha", 1.0, core.ModelCPC),
		bid("beta", 0.5, core.ModelCPA),
	})
	if winner == nil || winner.Bidder != "beta" {
		t.Fatalf("expected beta to win, got %+v", winner)
	}

	winner, _ = Select([]core.BidResponse{
		bid("alpha", 9.0, core.ModelCPX),
		bid("beta", 0.1, core.ModelCPC),
	})
	if winner == nil || winner.Bidder != "beta" {
		t.Fatalf("expected cpc to outrank cpx, got %+v", winner)
	}
}

func TestSelectPriceThenNameWithinModel(t *testing.T) {
	winner, _ := Select([]core.BidResponse{
		bid("alpha", 1.0, core.ModelCPC),
		bid("beta", 2.0, core.ModelCPC),
	})
	if winner == nil || winner.Bidder != "beta" {
		t.Fatalf("expected higher price to win, got %+v", winner)
	}

	winner, _ = Select([]core.BidResponse{
		bid("zeta", 2.0, core.ModelCPC),
		bid("alpha", 2.0, core.ModelCPC),
	})
	if winner == nil || winner.Bidder != "alpha" {
		t.Fatalf("expected name tie-break to pick alpha, got %+v", winner)
	}
}

func TestSelectClearingPrice(t *testing.T) {
	_, clearing := Select([]core.BidResponse{
		bid("alpha", 2.0, core.ModelCPC),
		bid("beta", 1.5, core.ModelCPC),
	})
	if clearing.Fixed4() != "1.5000" {
		t.Fatalf("clearing = %s, want 1.5000", clearing.Fixed4())
	}

	// A lone bid clears at its own price.
	_, clearing = Select([]core.BidResponse{bid("alpha", 2.0, core.ModelCPC)})
	if clearing.Fixed4() != "2.0000" {
		t.Fatalf("clearing = %s, want 2.0000", clearing.Fixed4())
	}

	// Second-ranked under selection order, not raw price: the CPA
	// winner clears at the top CPC bid even though that bid is larger.
	winner, clearing := Select([]core.BidResponse{
		bid("alpha", 1.0, core.ModelCPC),
		bid("beta", 0.5, core.ModelCPA),
	})
	if winner.Bidder != "beta" || clearing.Fixed4() != "1.0000" {
		t.Fatalf("winner = %s clearing = %s, want beta / 1.0000", winner.Bidder, clearing.Fixed4())
	}
}

func TestSelectEmpty(t *testing.T) {
	winner, clearing := Select(nil)
	if winner != nil {
		t.Fatalf("expected no winner, got %+v", winner)
	}
	if clearing.Fixed4() != "0.0000" {
		t.Fatalf("clearing = %s, want 0.0000", clearing.Fixed4())
	}
}

func TestRankOrderIndependent(t *testing.T) {
	a := []core.BidResponse{
		bid("alpha", 1.0, core.ModelCPC),
		bid("beta", 0.5, core.ModelCPA),
		bid("gamma", 3.0, core.ModelCPX),
	}
	b := []core.BidResponse{a[2], a[0], a[1]}

	ra, rb := Rank(a), Rank(b)
	if len(ra) != 3 || len(rb) != 3 {
		t.Fatalf("rank lengths = %d, %d", len(ra), len(rb))
	}
	for i := range ra {
		if ra[i].Bidder != rb[i].Bidder {
			t.Fatalf("rank order differs at %d: %s vs %s", i, ra[i].Bidder, rb[i].Bidder)
		}
	}
	if ra[0].Bidder != "beta" || ra[1].Bidder != "alpha" || ra[2].Bidder != "gamma" {
		t.Fatalf("unexpected rank order: %s %s %s", ra[0].Bidder, ra[1].Bidder, ra[2].Bidder)
	}
}

func TestRankSkipsPasses(t *testing.T) {
	pass := core.BidResponse{AuctionID: "auc-1", Bidder: "alpha", Pass: true}
	ranked := Rank([]core.BidResponse{pass, bid("beta", 1.0, core.ModelCPX)})
	if len(ranked) != 1 || ranked[0].Bidder != "beta" {
		t.Fatalf("expected only beta, got %+v", ranked)
	}
}
