// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/aip/pkg/core"
)

// SlotState tracks an auction slot through its window. Monotonic:
// OPEN then CLOSED then SETTLED.
type SlotState int

const (
	SlotOpen SlotState = iota
	SlotClosed
	SlotSettled
)

func (s SlotState) String() string {
	switch s {
	case SlotOpen:
		return "open"
	case SlotClosed:
		return "closed"
	case SlotSettled:
		return "settled"
	}
	return "unknown"
}

// Auction is the transient runtime view of one window.
type Auction struct {
	ID             string
	ServeToken     string
	OpenedAt       time.Time
	WindowDeadline time.Time
	TargetPools    []string
	TargetBidders  []string
}

type slot struct {
	mu        sync.Mutex
	auction   Auction
	state     SlotState
	targets   map[string]struct{}
	responded map[string]struct{}
	bids      []core.BidResponse
	done      chan struct{}
	doneOnce  sync.Once
}

func (s *slot) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Inbox is the rendezvous between the runner and the bid endpoint:
// bids arrive keyed by auction id and wait in their slot until the
// window closes. Bids for auctions it does not know are rejected, never
// held.
type Inbox struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

func NewInbox() *Inbox {
	return &Inbox{slots: make(map[string]*slot)}
}

// Open registers an OPEN slot and returns its completion channel. The
// channel closes early when every target bidder has responded; the
// runner still owns the window deadline. With no targets the channel is
// closed immediately.
func (in *Inbox) Open(a Auction) (<-chan struct{}, error) {
	s := &slot{
		auction:   a,
		state:     SlotOpen,
		targets:   make(map[string]struct{}, len(a.TargetBidders)),
		responded: make(map[string]struct{}, len(a.TargetBidders)),
		done:      make(chan struct{}),
	}
	for _, name := range a.TargetBidders {
		s.targets[name] = struct{}{}
	}
	if len(s.targets) == 0 {
		s.signalDone()
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if _, exists := in.slots[a.ID]; exists {
		return nil, fmt.Errorf("%w: auction %s already open", core.ErrConflict, a.ID)
	}
	in.slots[a.ID] = s
	return s.done, nil
}

func (in *Inbox) get(auctionID string) *slot {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.slots[auctionID]
}

// Submit validates one bid against the slot and enqueues it. A pass bid
// counts toward the completion signal without entering the snapshot. A
// bidder gets exactly one response per auction, bid or pass.
func (in *Inbox) Submit(bid *core.BidResponse, now time.Time) error {
	s := in.get(bid.AuctionID)
	if s == nil {
		return fmt.Errorf("%w: %s", core.ErrUnknownAuction, bid.AuctionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SlotOpen || now.After(s.auction.WindowDeadline) {
		return fmt.Errorf("%w: auction %s", core.ErrWindowClosed, bid.AuctionID)
	}
	if _, invited := s.targets[bid.Bidder]; !invited {
		return fmt.Errorf("%w: bidder %s not targeted for auction %s", core.ErrNotInvited, bid.Bidder, bid.AuctionID)
	}
	if _, dup := s.responded[bid.Bidder]; dup {
		return fmt.Errorf("%w: bidder %s already responded to auction %s", core.ErrDuplicateBid, bid.Bidder, bid.AuctionID)
	}
	s.responded[bid.Bidder] = struct{}{}
	if !bid.Pass {
		s.bids = append(s.bids, *bid)
	}
	if len(s.responded) == len(s.targets) {
		s.signalDone()
	}
	return nil
}

// Decline records an explicit pass from an invited bidder.
func (in *Inbox) Decline(auctionID, bidder string, now time.Time) error {
	return in.Submit(&core.BidResponse{AuctionID: auctionID, Bidder: bidder, Pass: true}, now)
}

// Close transitions the slot OPEN to CLOSED and snapshots its bids.
// Later submissions fail with window_closed.
func (in *Inbox) Close(auctionID string) ([]core.BidResponse, error) {
	s := in.get(auctionID)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownAuction, auctionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SlotOpen {
		return nil, fmt.Errorf("%w: auction %s already %s", core.ErrConflict, auctionID, s.state)
	}
	s.state = SlotClosed
	s.signalDone()
	return append([]core.BidResponse(nil), s.bids...), nil
}

// Settle marks the slot SETTLED and drops it from the inbox.
func (in *Inbox) Settle(auctionID string) {
	in.mu.Lock()
	s := in.slots[auctionID]
	delete(in.slots, auctionID)
	in.mu.Unlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	s.state = SlotSettled
	s.mu.Unlock()
	s.signalDone()
}

// Len reports the number of live slots.
func (in *Inbox) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.slots)
}

// Live lists the currently registered auctions, oldest first.
func (in *Inbox) Live() []Auction {
	in.mu.RLock()
	out := make([]Auction, 0, len(in.slots))
	for _, s := range in.slots {
		out = append(out, s.auction)
	}
	in.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
