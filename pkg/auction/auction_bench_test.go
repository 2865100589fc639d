// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/aip/pkg/core"
)

func benchAuction(id string, bidders []string) Auction {
	now := time.Now()
	return Auction{
		ID:             id,
		ServeToken:     "stk_bench",
		OpenedAt:       now,
		WindowDeadline: now.Add(time.Hour),
		TargetPools:    []string{"default"},
		TargetBidders:  bidders,
	}
}

func BenchmarkInboxSubmit(b *testing.B) {
	in := NewInbox()
	bidders := make([]string, b.N)
	for i := range bidders {
		bidders[i] = fmt.Sprintf("bidder-%d", i)
	}
	if _, err := in.Open(benchAuction("bench", bidders)); err != nil {
		b.Fatal(err)
	}
	now := time.Now()
	price := core.PriceFromFloat(1.25)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bid := &core.BidResponse{
			AuctionID:    "bench",
			Bidder:       bidders[i],
			Price:        price,
			PricingModel: core.ModelCPC,
		}
		if err := in.Submit(bid, now); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSelect(b *testing.B) {
	models := []core.PricingModel{core.ModelCPX, core.ModelCPC, core.ModelCPA}
	bids := make([]core.BidResponse, 100)
	for i := range bids {
		bids[i] = core.BidResponse{
			AuctionID:    "bench",
			Bidder:       fmt.Sprintf("bidder-%03d", i),
			Price:        core.PriceFromFloat(float64(i%37) + 0.25),
			PricingModel: models[i%len(models)],
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		Select(bids)
	}
}

func BenchmarkSlotLifecycle(b *testing.B) {
	in := NewInbox()
	bidders := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"}
	price := core.PriceFromFloat(2.5)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("bench-%d", i)
		done, err := in.Open(benchAuction(id, bidders))
		if err != nil {
			b.Fatal(err)
		}
		now := time.Now()
		for _, name := range bidders {
			bid := &core.BidResponse{
				AuctionID:    id,
				Bidder:       name,
				Price:        price,
				PricingModel: core.ModelCPX,
			}
			if err := in.Submit(bid, now); err != nil {
				b.Fatal(err)
			}
		}
		<-done
		bids, err := in.Close(id)
		if err != nil {
			b.Fatal(err)
		}
		Select(bids)
		in.Settle(id)
	}
}

func BenchmarkParallelSubmit(b *testing.B) {
	in := NewInbox()
	bidders := make([]string, b.N)
	for i := range bidders {
		bidders[i] = fmt.Sprintf("bidder-%d", i)
	}
	if _, err := in.Open(benchAuction("bench", bidders)); err != nil {
		b.Fatal(err)
	}
	now := time.Now()
	price := core.PriceFromFloat(2.5)
	var next atomic.Int64

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := next.Add(1) - 1
			bid := &core.BidResponse{
				AuctionID:    "bench",
				Bidder:       bidders[i],
				Price:        price,
				PricingModel: core.ModelCPX,
			}
			in.Submit(bid, now)
		}
	})
}
