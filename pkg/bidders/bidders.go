// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bidders pushes opened auctions to bidders that registered an
// endpoint. Push is an optimization on top of pub/sub discovery: a
// bidder may answer the push inline with a signed bid, which then takes
// the same validation path as a bid posted to the bid-response endpoint.
// OpenRTB bidders are bridged through a protocol translation.
package bidders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/fanout"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/registry"
	"github.com/luxfi/aip/pkg/transport"
)

// maxPushBody bounds inline bid responses.
const maxPushBody = 64 << 10

// SubmitFunc hands a transport-validated bid to the auction inbox.
type SubmitFunc func(ctx context.Context, bid *core.BidResponse) error

// PushOutcome describes one bidder's push for logging and metrics.
type PushOutcome struct {
	Bidder    string
	Submitted bool
	TimedOut  bool
	Err       error
}

// Pusher posts envelopes to bidder endpoints under each bidder's
// advisory timeout, bounded by the auction window.
type Pusher struct {
	client *http.Client
	auth   *transport.Authenticator
	submit SubmitFunc
	lg     log.Logger
}

func NewPusher(auth *transport.Authenticator, submit SubmitFunc, lg log.Logger) *Pusher {
	return &Pusher{
		client: &http.Client{},
		auth:   auth,
		submit: submit,
		lg:     lg,
	}
}

// Push contacts every target concurrently and waits for all outcomes.
// Callers that must not block run it in their own goroutine.
func (p *Pusher) Push(ctx context.Context, targets []*registry.Bidder, env *fanout.Envelope) []PushOutcome {
	outcomes := make([]PushOutcome, len(targets))
	var wg sync.WaitGroup
	for i, bidder := range targets {
		wg.Add(1)
		go func(i int, b *registry.Bidder) {
			defer wg.Done()
			outcomes[i] = p.pushOne(ctx, b, env)
		}(i, bidder)
	}
	wg.Wait()
	return outcomes
}

func (p *Pusher) pushOne(ctx context.Context, b *registry.Bidder, env *fanout.Envelope) PushOutcome {
	out := PushOutcome{Bidder: b.Name}
	if b.Endpoint == "" {
		return out
	}

	budget := b.Timeout()
	if until := time.Until(env.WindowDeadline); until > 0 && until < budget {
		budget = until
	}
	pushCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var err error
	switch b.Protocol {
	case registry.ProtocolOpenRTB:
		out.Submitted, err = p.pushOpenRTB(pushCtx, b, env)
	default:
		out.Submitted, err = p.pushAIP(pushCtx, b, env)
	}
	if err != nil {
		out.Err = err
		out.TimedOut = isTimeout(err)
		p.lg.Debug("bidder push failed",
			"bidder", b.Name,
			"auction_id", env.AuctionID,
			"timeout", out.TimedOut,
			"err", err,
		)
	}
	return out
}

// pushAIP posts the raw envelope. A 200 with a body is treated as an
// inline signed bid; 204 or an empty body means no synchronous answer.
// A signed pass is submitted as the bidder's decline so the window can
// complete early.
func (p *Pusher) pushAIP(ctx context.Context, b *registry.Bidder, env *fanout.Envelope) (bool, error) {
	body, err := json.Marshal(env)
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
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}

	sp, err := transport.ExtractSigned(raw)
	if err != nil {
		return false, err
	}
	key := b.Key()
	if key == nil {
		return false, fmt.Errorf("%w: no key registered for %s", core.ErrSignatureInvalid, b.Name)
	}
	if err := p.auth.Authenticate(ctx, sp, key, b.Name); err != nil {
		return false, err
	}

	var bid core.BidResponse
	if err := json.Unmarshal(raw, &bid); err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}
	if err := bid.Validate(); err != nil {
		return false, err
	}
	if bid.Bidder != b.Name {
		return false, fmt.Errorf("%w: bid names %q", core.ErrNotInvited, bid.Bidder)
	}
	if bid.AuctionID != env.AuctionID {
		return false, fmt.Errorf("%w: bid for %q", core.ErrUnknownAuction, bid.AuctionID)
	}
	if err := p.submit(ctx, &bid); err != nil {
		return false, err
	}
	return !bid.Pass, nil
}

func (p *Pusher) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.client.Do(req)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
