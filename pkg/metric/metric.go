// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the AIP server using luxfi/metric
type Metrics struct {
	metricsInstance metrics.Metrics

	// Auction metrics
	AuctionsOpened  metrics.Counter
	AuctionsServed  metrics.Counter
	AuctionsNoBid   metrics.Counter
	BidsAccepted    metrics.Counter
	BidsRejected    metrics.CounterVec
	BidderPushes    metrics.CounterVec
	FanoutPublishes metrics.CounterVec

	// Ledger metrics
	EventsApplied   metrics.CounterVec
	EventsDuplicate metrics.Counter
	PersistFailures metrics.Counter

	// Weave metrics
	WeaveCacheHits   metrics.Counter
	WeaveCacheMisses metrics.Counter
	WeaveFailures    metrics.Counter

	// API metrics
	RequestsProcessed metrics.CounterVec

	// Performance metrics
	WindowDuration metrics.Histogram
	BidLatency     metrics.Histogram
}

// NewMetrics creates a new metrics instance using luxfi/metric
func NewMetrics() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("aip")

	m := &Metrics{
		metricsInstance: metricsInstance,
	}

	m.AuctionsOpened = metricsInstance.NewCounter("auction_opened_total", "Total number of auction windows opened")
	m.AuctionsServed = metricsInstance.NewCounter("auction_served_total", "Total number of auctions settled with a winner")
	m.AuctionsNoBid = metricsInstance.NewCounter("auction_no_bid_total", "Total number of auctions settled without a winner")
	m.BidsAccepted = metricsInstance.NewCounter("auction_bids_accepted_total", "Total number of bids accepted into auction windows")
	m.BidsRejected = metricsInstance.NewCounterVec(
		"auction_bids_rejected_total",
		"Total number of bids rejected by error kind",
		[]string{"kind"},
	)
	m.BidderPushes = metricsInstance.NewCounterVec(
		"bidder_pushes_total",
		"Total number of direct bidder pushes by outcome",
		[]string{"outcome"},
	)
	m.FanoutPublishes = metricsInstance.NewCounterVec(
		"fanout_publishes_total",
		"Total number of pool envelope publishes by outcome",
		[]string{"outcome"},
	)

	m.EventsApplied = metricsInstance.NewCounterVec(
		"ledger_events_applied_total",
		"Total number of billing events applied by type",
		[]string{"type"},
	)
	m.EventsDuplicate = metricsInstance.NewCounter("ledger_events_duplicate_total", "Total number of idempotent duplicate billing events")
	m.PersistFailures = metricsInstance.NewCounter("ledger_persist_failures_total", "Total number of settlements that exhausted persistence retries")

	m.WeaveCacheHits = metricsInstance.NewCounter("weave_cache_hits_total", "Total number of recommendation polls answered from cache")
	m.WeaveCacheMisses = metricsInstance.NewCounter("weave_cache_misses_total", "Total number of recommendation polls that scheduled work")
	m.WeaveFailures = metricsInstance.NewCounter("weave_failures_total", "Total number of background recommendation tasks that failed")

	m.RequestsProcessed = metricsInstance.NewCounterVec(
		"api_requests_processed_total",
		"Total number of API requests processed",
		[]string{"method", "status"},
	)

	m.WindowDuration = metricsInstance.NewHistogram(
		"auction_window_duration_seconds",
		"Time from auction open to settlement",
		prometheus.DefBuckets,
	)
	m.BidLatency = metricsInstance.NewHistogram(
		"auction_bid_latency_seconds",
		"Time to process a bid submission",
		prometheus.DefBuckets,
	)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}
