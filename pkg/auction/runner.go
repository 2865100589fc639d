// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auction owns live auctions: it opens windows, collects bids
// through a rendezvous inbox, closes on deadline or early completion,
// applies selection and settles the ledger.
package auction

import (
	"context"
	"math/rand"
	"time"

	"github.com/luxfi/aip/pkg/classify"
	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/fanout"
	"github.com/luxfi/aip/pkg/ledger"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/metric"
	"github.com/luxfi/aip/pkg/registry"
)

const (
	// DefaultWindow bounds bid collection per auction.
	DefaultWindow = 50 * time.Millisecond
	// DefaultPublishTimeout bounds each pool publish.
	DefaultPublishTimeout = 10 * time.Millisecond
	// defaultPersistAttempts bounds settlement writes.
	defaultPersistAttempts = 3
	// bidTraceTimeout bounds the async bid-trace append.
	bidTraceTimeout = 2 * time.Second
)

// Options tune the runner. Zero values take the defaults above.
type Options struct {
	Window          time.Duration
	PublishTimeout  time.Duration
	PersistAttempts int
}

// PushFunc delivers the envelope to bidder endpoints directly. Wired
// after construction so the push client can submit through the runner.
type PushFunc func(ctx context.Context, targets []*registry.Bidder, env *fanout.Envelope)

// Runner executes auctions end to end.
type Runner struct {
	opts   Options
	inbox  *Inbox
	ledger *ledger.Service
	class  *classify.Classifier
	reg    *registry.Registry
	pub    fanout.Publisher
	push   PushFunc
	met    *metric.Metrics
	lg     log.Logger
	now    func() time.Time
}

func NewRunner(opts Options, ledgerSvc *ledger.Service, classifier *classify.Classifier, reg *registry.Registry, pub fanout.Publisher, met *metric.Metrics, lg log.Logger) *Runner {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.PersistAttempts <= 0 {
		opts.PersistAttempts = defaultPersistAttempts
	}
	return &Runner{
		opts:   opts,
		inbox:  NewInbox(),
		ledger: ledgerSvc,
		class:  classifier,
		reg:    reg,
		pub:    pub,
		met:    met,
		lg:     lg,
		now:    time.Now,
	}
}

// SetPush installs the direct-push hook.
func (r *Runner) SetPush(fn PushFunc) {
	r.push = fn
}

// Inbox exposes the live-slot view for admin surfaces.
func (r *Runner) Inbox() *Inbox {
	return r.inbox
}

// Run executes one auction for a validated context request and returns
// its result. The caller's disconnect does not abort the auction: the
// window always runs to completion and the outcome is persisted.
func (r *Runner) Run(ctx context.Context, req *core.ContextRequest) (*core.AuctionResult, error) {
	return r.RunWithWindow(ctx, req, r.opts.Window)
}

// RunWithWindow runs one auction under a caller-chosen window. The
// recommendation coordinator uses a longer window than the interactive
// path.
func (r *Runner) RunWithWindow(ctx context.Context, req *core.ContextRequest, window time.Duration) (*core.AuctionResult, error) {
	if window <= 0 {
		window = r.opts.Window
	}
	auctionID := req.RequestID
	pools := r.class.Pools(req)
	targets := r.reg.ByPools(pools)
	names := make([]string, len(targets))
	for i, b := range targets {
		names[i] = b.Name
	}

	rec, err := r.ledger.CreateRecord(ctx, auctionID, req, pools, names)
	if err != nil {
		return nil, err
	}

	now := r.now()
	a := Auction{
		ID:             auctionID,
		ServeToken:     rec.ServeToken,
		OpenedAt:       now,
		WindowDeadline: now.Add(window),
		TargetPools:    pools,
		TargetBidders:  names,
	}
	done, err := r.inbox.Open(a)
	if err != nil {
		if _, serr := r.ledger.SettleNoBid(ctx, auctionID); serr != nil {
			r.lg.Warn("could not settle orphaned record", "auction_id", auctionID, "err", serr)
		}
		return nil, err
	}
	if r.met != nil {
		r.met.AuctionsOpened.Inc()
	}
	r.lg.Info("auction opened",
		"auction_id", auctionID,
		"pools", pools,
		"targets", len(names),
		"window_ms", window.Milliseconds(),
	)

	// Fanout and waiting are detached from the caller's cancellation.
	bg := context.WithoutCancel(ctx)
	if len(targets) > 0 {
		base := fanout.Envelope{
			AuctionID:      auctionID,
			ContextRequest: req,
			WindowDeadline: a.WindowDeadline,
		}
		go r.publishAll(bg, pools, base)
		if r.push != nil {
			env := base
			env.Pool = pools[0]
			go r.push(bg, targets, &env)
		}
	}

	timer := time.NewTimer(time.Until(a.WindowDeadline))
	select {
	case <-done:
	case <-timer.C:
	}
	timer.Stop()

	return r.settle(bg, &a)
}

// SubmitBid is the transport-validated entry for bids from any channel:
// the HTTP bid endpoint, inline push replies, the OpenRTB bridge.
func (r *Runner) SubmitBid(ctx context.Context, bid *core.BidResponse) error {
	start := r.now()
	err := r.inbox.Submit(bid, start)
	if r.met != nil {
		if err != nil {
			r.met.BidsRejected.WithLabelValues(string(core.KindOf(err))).Inc()
		} else {
			r.met.BidsAccepted.Inc()
			r.met.BidLatency.Observe(time.Since(start).Seconds())
		}
	}
	if err != nil {
		return err
	}
	if !bid.Pass {
		traceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bidTraceTimeout)
		go func() {
			defer cancel()
			if err := r.ledger.AppendBid(traceCtx, bid.AuctionID, bid); err != nil {
				r.lg.Debug("bid trace append failed", "auction_id", bid.AuctionID, "bidder", bid.Bidder, "err", err)
			}
		}()
	}
	return nil
}

// Decline records an explicit pass from an invited bidder.
func (r *Runner) Decline(_ context.Context, auctionID, bidder string) error {
	return r.inbox.Decline(auctionID, bidder, r.now())
}

func (r *Runner) publishAll(ctx context.Context, pools []string, base fanout.Envelope) {
	for _, pool := range pools {
		env := base
		env.Pool = pool
		pctx, cancel := context.WithTimeout(ctx, r.opts.PublishTimeout)
		err := r.pub.Publish(pctx, pool, &env)
		cancel()
		outcome := "ok"
		if err != nil {
			outcome = "error"
			r.lg.Warn("pool publish failed", "auction_id", base.AuctionID, "pool", pool, "err", err)
		}
		if r.met != nil {
			r.met.FanoutPublishes.WithLabelValues(outcome).Inc()
		}
	}
}

func (r *Runner) settle(ctx context.Context, a *Auction) (*core.AuctionResult, error) {
	bids, err := r.inbox.Close(a.ID)
	if err != nil {
		return nil, err
	}
	winner, clearing := Select(bids)

	var persistErr error
	for attempt := 0; attempt < r.opts.PersistAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(persistBackoff(attempt))
		}
		if winner != nil {
			_, persistErr = r.ledger.SettleServed(ctx, a.ID, bids, winner, clearing)
		} else {
			_, persistErr = r.ledger.SettleNoBid(ctx, a.ID)
		}
		if persistErr == nil || core.KindOf(persistErr) != core.KindStorageUnavailable {
			break
		}
	}

	result := core.FormatResult(a.ID, a.ServeToken, winner, clearing)
	if persistErr != nil {
		persisted := false
		result.Persisted = &persisted
		if r.met != nil {
			r.met.PersistFailures.Inc()
		}
		r.lg.Error("settlement persistence failed", "auction_id", a.ID, "err", persistErr)
	}
	if r.met != nil {
		if winner != nil {
			r.met.AuctionsServed.Inc()
		} else {
			r.met.AuctionsNoBid.Inc()
		}
		r.met.WindowDuration.Observe(r.now().Sub(a.OpenedAt).Seconds())
	}
	r.inbox.Settle(a.ID)
	r.lg.Info("auction settled",
		"auction_id", a.ID,
		"bids", len(bids),
		"no_bid", winner == nil,
		"persisted", persistErr == nil,
	)
	return result, nil
}

// persistBackoff spaces settlement retries with a little jitter so
// concurrent retry storms against a recovering store spread out.
func persistBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 5 * time.Millisecond
	return base + time.Duration(rand.Intn(5))*time.Millisecond
}
