// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package admin serves the operational surface on its own listener:
// health, ledger aggregations, the effective configuration, the bidder
// inventory, and the Prometheus scrape endpoint.
package admin

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/aip/pkg/config"
	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/ledger"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/metric"
	"github.com/luxfi/aip/pkg/registry"
)

// Handler answers the admin routes.
type Handler struct {
	cfg    *config.Config
	reg    *registry.Registry
	ledger *ledger.Service
	met    *metric.Metrics
	lg     log.Logger
	start  time.Time
}

func New(cfg *config.Config, reg *registry.Registry, ledgerSvc *ledger.Service, met *metric.Metrics, lg log.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		reg:    reg,
		ledger: ledgerSvc,
		met:    met,
		lg:     lg,
		start:  time.Now(),
	}
}

// Router builds the admin mux.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/admin/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/admin/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/admin/config", h.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/admin/bidders", h.handleBidders).Methods(http.MethodGet)
	if h.met != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.met.GetGatherer(), promhttp.HandlerOpts{}))
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"uptime_seconds":    int(time.Since(h.start).Seconds()),
		"version":           core.Version,
		"auction_window_ms": h.cfg.Auction.WindowMs,
	})
}

// handleStats aggregates the full ledger. The scan is bounded by what
// the backend holds; operators with large retention should prefer the
// Prometheus counters.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.ListRecords(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	totalBids := 0
	noBidCount := 0
	poolDistribution := make(map[string]int)
	invited := make(map[string]int)
	bidsByBidder := make(map[string]int)
	winsByBidder := make(map[string]int)

	for _, rec := range records {
		totalBids += len(rec.Bids)
		if rec.NoBid {
			noBidCount++
		}
		for _, pool := range rec.Pools {
			poolDistribution[pool]++
		}
		for _, name := range rec.EligibleBidders {
			invited[name]++
		}
		for i := range rec.Bids {
			bidsByBidder[rec.Bids[i].Bidder]++
		}
		if rec.Winner != nil {
			winsByBidder[rec.Winner.Bidder]++
		}
	}

	noBidRate := 0.0
	if len(records) > 0 {
		noBidRate = float64(noBidCount) / float64(len(records))
	}
	successRates := make(map[string]float64, len(bidsByBidder))
	for name, bids := range bidsByBidder {
		if bids > 0 {
			successRates[name] = round4(float64(winsByBidder[name]) / float64(bids))
		}
	}
	timeoutRates := make(map[string]float64, h.reg.Len())
	for _, b := range h.reg.All() {
		rate := 0.0
		if n := invited[b.Name]; n > 0 {
			missed := n - bidsByBidder[b.Name]
			if missed < 0 {
				missed = 0
			}
			rate = round4(float64(missed) / float64(n))
		}
		timeoutRates[b.Name] = rate
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_auctions":       len(records),
		"total_bids":           totalBids,
		"no_bid_rate":          round4(noBidRate),
		"bidder_success_rates": successRates,
		"bidder_timeout_rates": timeoutRates,
		"pool_distribution":    poolDistribution,
	})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	poolMap := h.reg.PoolMap()
	names := make([]string, 0, len(poolMap))
	for name := range poolMap {
		names = append(names, name)
	}
	sort.Strings(names)
	pools := make([]map[string]any, 0, len(names))
	for _, name := range names {
		pools = append(pools, map[string]any{
			"name":    name,
			"bidders": poolMap[name],
			"active":  len(poolMap[name]) > 0,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_window_ms": h.cfg.Auction.WindowMs,
		"pool_definitions":  pools,
		"pubsub_provider":   h.cfg.Auction.Distribution.Backend,
		"storage_backend":   h.cfg.Ledger.Backend,
		"version":           core.Version,
	})
}

func (h *Handler) handleBidders(w http.ResponseWriter, r *http.Request) {
	inventory := make([]map[string]any, 0, h.reg.Len())
	for _, b := range h.reg.All() {
		inventory = append(inventory, map[string]any{
			"id":          b.Name,
			"endpoint":    b.Endpoint,
			"pools":       b.Pools,
			"protocol":    b.Protocol,
			"permissions": []string{"submit-bid"},
			"status":      "active",
		})
	}
	writeJSON(w, http.StatusOK, inventory)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := core.AsAPIError(err)
	h.lg.Warn("admin request failed", "kind", apiErr.Kind, "err", err)
	writeJSON(w, apiErr.Kind.HTTPStatus(), map[string]any{"error": apiErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
