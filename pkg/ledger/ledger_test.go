// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/ids"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/storage"
)

func newTestService() *Service {
	return NewService(storage.NewMemory(), log.NoOp())
}

func testBid(bidder string, price float64, model core.PricingModel) core.BidResponse {
	return core.BidResponse{
		AuctionID:    "auc-1",
		Bidder:       bidder,
		Price:        core.PriceFromFloat(price),
		PricingModel: model,
		Nonce:        "bid-nonce-" + bidder,
		Timestamp:    "2026-01-02T03:04:05.000Z",
	}
}

func TestCreateRecordMintsServeToken(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "auc-1", map[string]any{"request_id": "auc-1"}, []string{"retail"}, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, StateCreated, rec.State)
	require.True(t, ids.IsServeToken(rec.ServeToken))
	require.Equal(t, []string{"retail"}, rec.Pools)
	require.Equal(t, []string{"alpha", "beta"}, rec.EligibleBidders)

	got, err := svc.GetRecord(ctx, "auc-1")
	require.NoError(t, err)
	require.Equal(t, rec.ServeToken, got.ServeToken)

	_, err = svc.CreateRecord(ctx, "auc-1", nil, nil, nil)
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestSettleServed(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, "auc-1", nil, []string{"retail"}, []string{"alpha", "beta"})
	require.NoError(t, err)

	winner := testBid("alpha", 2.5, core.ModelCPC)
	bids := []core.BidResponse{winner, testBid("beta", 1.0, core.ModelCPC)}
	rec, err := svc.SettleServed(ctx, "auc-1", bids, &winner, core.PriceFromFloat(1.0))
	require.NoError(t, err)
	require.Equal(t, StateServed, rec.State)
	require.False(t, rec.NoBid)
	require.Len(t, rec.Bids, 2)
	require.Equal(t, "alpha", rec.Winner.Bidder)
	require.Equal(t, "1.0000", rec.ClearingPrice.Fixed4())

	_, err = svc.SettleServed(ctx, "auc-1", bids, &winner, core.PriceFromFloat(1.0))
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestSettleNoBidIsTerminal(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, "auc-1", nil, nil, nil)
	require.NoError(t, err)

	rec, err := svc.SettleNoBid(ctx, "auc-1")
	require.NoError(t, err)
	require.Equal(t, StateNoBid, rec.State)
	require.True(t, rec.NoBid)
	require.Nil(t, rec.Winner)

	_, _, err = svc.ApplyEvent(ctx, EventInput{
		AuctionID:  "auc-1",
		ServeToken: rec.ServeToken,
		Event:      EventCPX,
		Nonce:      "n1",
	})
	require.ErrorIs(t, err, core.ErrTerminalState)
}

func TestApplyEventLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, "auc-1", nil, nil, []string{"alpha"})
	require.NoError(t, err)
	winner := testBid("alpha", 2.5, core.ModelCPC)
	_, err = svc.SettleServed(ctx, "auc-1", []core.BidResponse{winner}, &winner, winner.Price)
	require.NoError(t, err)

	in := EventInput{
		AuctionID:  "auc-1",
		ServeToken: created.ServeToken,
		Event:      EventCPC,
		Issuer:     "platform-1",
		Nonce:      "evt-nonce-1",
		Timestamp:  "2026-01-02T03:04:06.000Z",
		Payload:    []byte(`{"auction_id":"auc-1","event_type":"cpc","nonce":"evt-nonce-1"}`),
	}
	rec, applied, err := svc.ApplyEvent(ctx, in)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, StateCPCReported, rec.State)
	events := rec.BillingEvents()
	require.Len(t, events, 1)
	require.Equal(t, "cpc", events[0].EventType)
	require.Len(t, events[0].PayloadDigest, 64)

	// Identical retry is a no-op.
	rec, applied, err = svc.ApplyEvent(ctx, in)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, StateCPCReported, rec.State)
	require.Len(t, rec.BillingEvents(), 1)

	// A different event against the terminal record is refused.
	in.Event = EventCPX
	in.Nonce = "evt-nonce-2"
	_, _, err = svc.ApplyEvent(ctx, in)
	require.ErrorIs(t, err, core.ErrTerminalState)
}

func TestApplyEventBeforeServe(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, "auc-1", nil, nil, nil)
	require.NoError(t, err)

	_, _, err = svc.ApplyEvent(ctx, EventInput{
		AuctionID:  "auc-1",
		ServeToken: rec.ServeToken,
		Event:      EventCPX,
		Nonce:      "n1",
	})
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestApplyEventGuards(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _, err := svc.ApplyEvent(ctx, EventInput{AuctionID: "missing", Event: EventCPX, Nonce: "n1"})
	require.ErrorIs(t, err, core.ErrUnknownAuction)

	_, err = svc.CreateRecord(ctx, "auc-1", nil, nil, nil)
	require.NoError(t, err)
	winner := testBid("alpha", 2.5, core.ModelCPX)
	_, err = svc.SettleServed(ctx, "auc-1", []core.BidResponse{winner}, &winner, winner.Price)
	require.NoError(t, err)

	_, _, err = svc.ApplyEvent(ctx, EventInput{
		AuctionID:  "auc-1",
		ServeToken: "stk_wrong",
		Event:      EventCPX,
		Nonce:      "n1",
	})
	require.ErrorIs(t, err, core.ErrUnknownAuction)
}

func TestAppendBidTrace(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, "auc-1", nil, nil, []string{"alpha", "beta"})
	require.NoError(t, err)

	alpha := testBid("alpha", 2.5, core.ModelCPC)
	beta := testBid("beta", 1.0, core.ModelCPX)
	require.NoError(t, svc.AppendBid(ctx, "auc-1", &alpha))
	require.NoError(t, svc.AppendBid(ctx, "auc-1", &beta))
	require.ErrorIs(t, svc.AppendBid(ctx, "missing", &alpha), core.ErrUnknownAuction)

	rec, err := svc.GetRecord(ctx, "auc-1")
	require.NoError(t, err)
	require.Len(t, rec.Events, 2)
	require.Equal(t, EventBidReceived, rec.Events[0].EventType)
	require.Equal(t, "alpha", rec.Events[0].Issuer)
	require.Equal(t, "beta", rec.Events[1].Issuer)
	require.Empty(t, rec.BillingEvents())
}

func TestParseEvent(t *testing.T) {
	cases := map[string]Event{
		"cpx":        EventCPX,
		"exposure":   EventCPX,
		"impression": EventCPX,
		"CPC":        EventCPC,
		"click":      EventCPC,
		"conversion": EventCPA,
		"cpa":        EventCPA,
	}
	for in, want := range cases {
		got, err := ParseEvent(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseEvent("view")
	require.ErrorIs(t, err, core.ErrSchemaInvalid)
}

func TestListRecords(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for _, id := range []string{"auc-1", "auc-2", "auc-3"} {
		_, err := svc.CreateRecord(ctx, id, nil, []string{"retail"}, nil)
		require.NoError(t, err)
	}
	_, err := svc.SettleNoBid(ctx, "auc-2")
	require.NoError(t, err)

	recs, err := svc.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
}
