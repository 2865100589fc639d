// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/aip/pkg/config"
	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/ledger"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/metric"
	"github.com/luxfi/aip/pkg/registry"
	"github.com/luxfi/aip/pkg/storage"
)

func seededHandler(t *testing.T) *Handler {
	t.Helper()
	reg, err := registry.New([]registry.Bidder{
		{Name: "alpha", Pools: []string{"retail"}},
		{Name: "beta", Pools: []string{"retail"}},
	})
	require.NoError(t, err)

	svc := ledger.NewService(storage.NewMemory(), log.NoOp())
	ctx := context.Background()

	// One served auction with two bids, one no-bid auction.
	_, err = svc.CreateRecord(ctx, "a1", map[string]any{"request_id": "a1"}, []string{"retail"}, []string{"alpha", "beta"})
	require.NoError(t, err)
	alphaBid := core.BidResponse{AuctionID: "a1", Bidder: "alpha", Price: core.PriceFromFloat(1.0), PricingModel: core.ModelCPC}
	betaBid := core.BidResponse{AuctionID: "a1", Bidder: "beta", Price: core.PriceFromFloat(0.5), PricingModel: core.ModelCPA}
	_, err = svc.SettleServed(ctx, "a1", []core.BidResponse{alphaBid, betaBid}, &betaBid, alphaBid.Price)
	require.NoError(t, err)

	_, err = svc.CreateRecord(ctx, "a2", map[string]any{"request_id": "a2"}, []string{"retail"}, []string{"alpha", "beta"})
	require.NoError(t, err)
	_, err = svc.SettleNoBid(ctx, "a2")
	require.NoError(t, err)

	met, err := metric.NewMetrics()
	require.NoError(t, err)
	return New(config.Default(), reg, svc, met, log.NoOp())
}

func getJSON(t *testing.T, srv *httptest.Server, path string, into any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	return resp.StatusCode
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(seededHandler(t).Router())
	defer srv.Close()

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/admin/stats", &body))

	require.Equal(t, float64(2), body["total_auctions"])
	require.Equal(t, float64(2), body["total_bids"])
	require.Equal(t, 0.5, body["no_bid_rate"])

	pools, _ := body["pool_distribution"].(map[string]any)
	require.Equal(t, float64(2), pools["retail"])

	success, _ := body["bidder_success_rates"].(map[string]any)
	require.Equal(t, float64(0), success["alpha"])
	require.Equal(t, float64(1), success["beta"])

	timeouts, _ := body["bidder_timeout_rates"].(map[string]any)
	require.Equal(t, 0.5, timeouts["alpha"])
	require.Equal(t, 0.5, timeouts["beta"])
}

func TestConfigAndBidders(t *testing.T) {
	srv := httptest.NewServer(seededHandler(t).Router())
	defer srv.Close()

	var cfgBody map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/admin/config", &cfgBody))
	require.Equal(t, core.Version, cfgBody["version"])
	require.Equal(t, float64(50), cfgBody["auction_window_ms"])
	require.Equal(t, "in_memory", cfgBody["storage_backend"])
	defs, _ := cfgBody["pool_definitions"].([]any)
	require.Len(t, defs, 1)
	retail, _ := defs[0].(map[string]any)
	require.Equal(t, "retail", retail["name"])
	require.Equal(t, true, retail["active"])

	var inventory []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/admin/bidders", &inventory))
	require.Len(t, inventory, 2)
	require.Equal(t, "alpha", inventory[0]["id"])
	require.Equal(t, "active", inventory[0]["status"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(seededHandler(t).Router())
	defer srv.Close()

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/admin/health", &health))
	require.Equal(t, "healthy", health["status"])
	require.Equal(t, core.Version, health["version"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
