// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"sort"

	"github.com/luxfi/aip/pkg/core"
)

// Select picks the winner and the clearing price from a bid snapshot.
// Ranking is by pricing model depth (CPA over CPC over CPX), then price
// descending, then bidder name ascending as the deterministic
// tie-break. The clearing price is the second-ranked bid's price; a
// lone bid clears at its own price. Nil winner means no bid.
func Select(bids []core.BidResponse) (*core.BidResponse, core.Price) {
	ranked := Rank(bids)
	if len(ranked) == 0 {
		return nil, core.Price{}
	}
	winner := ranked[0]
	clearing := winner.Price
	if len(ranked) > 1 {
		clearing = ranked[1].Price
	}
	return &winner, clearing
}

// Rank returns the non-pass bids sorted into selection order. The input
// is not modified; result order is independent of receipt order.
func Rank(bids []core.BidResponse) []core.BidResponse {
	ranked := make([]core.BidResponse, 0, len(bids))
	for _, b := range bids {
		if b.Pass {
			continue
		}
		ranked = append(ranked, b)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return rankLess(&ranked[i], &ranked[j])
	})
	return ranked
}

func rankLess(a, b *core.BidResponse) bool {
	if pa, pb := a.PricingModel.Priority(), b.PricingModel.Priority(); pa != pb {
		return pa > pb
	}
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.Bidder < b.Bidder
}
