// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger maintains the append-only auction ledger. One record
// exists per auction. It is created when the auction opens and settled
// when it closes; the first billing event moves it to a terminal state.
// Billing-event application is idempotent on (event_type, nonce) so
// reporters can retry safely.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/aip/pkg/canonical"
	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/ids"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/storage"
)

// Service wraps a storage.Store with the record lifecycle.
type Service struct {
	store storage.Store
	lg    log.Logger
	now   func() time.Time
}

func NewService(store storage.Store, lg log.Logger) *Service {
	return &Service{store: store, lg: lg, now: time.Now}
}

// CreateRecord opens the ledger entry for a new auction and mints its
// serve token. A record that already exists for the auction id means a
// replayed or colliding request id and is refused.
func (s *Service) CreateRecord(ctx context.Context, auctionID string, contextReq any, pools, eligible []string) (*Record, error) {
	ctxRaw, err := json.Marshal(contextReq)
	if err != nil {
		return nil, fmt.Errorf("%w: encode context: %v", core.ErrInternal, err)
	}
	now := s.now().UTC()
	rec := &Record{
		AuctionID:       auctionID,
		ServeToken:      ids.NewServeToken(),
		State:           StateCreated,
		Context:         ctxRaw,
		Pools:           pools,
		EligibleBidders: eligible,
		Bids:            []core.BidResponse{},
		Events:          []EventEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record: %v", core.ErrInternal, err)
	}
	if err := s.store.Create(ctx, storage.LedgerKey(auctionID), raw); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: auction %s already recorded", core.ErrConflict, auctionID)
		}
		return nil, storageFailure(err)
	}
	return rec, nil
}

// SettleServed closes a CREATED record with a winner.
func (s *Service) SettleServed(ctx context.Context, auctionID string, bids []core.BidResponse, winner *core.BidResponse, clearing core.Price) (*Record, error) {
	if winner == nil {
		return nil, fmt.Errorf("%w: settle served without winner", core.ErrInternal)
	}
	return s.update(ctx, auctionID, func(rec *Record) error {
		if rec.State != StateCreated {
			return fmt.Errorf("%w: auction %s already settled as %s", core.ErrConflict, auctionID, rec.State)
		}
		rec.State = StateServed
		rec.Bids = bids
		rec.Winner = winner
		rec.ClearingPrice = clearing
		rec.NoBid = false
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// SettleNoBid closes a CREATED record with no winner. NO_BID is
// terminal, so no billing event can follow.
func (s *Service) SettleNoBid(ctx context.Context, auctionID string) (*Record, error) {
	return s.update(ctx, auctionID, func(rec *Record) error {
		if rec.State != StateCreated {
			return fmt.Errorf("%w: auction %s already settled as %s", core.ErrConflict, auctionID, rec.State)
		}
		rec.State = StateNoBid
		rec.NoBid = true
		rec.Winner = nil
		rec.ClearingPrice = core.Price{}
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// EventInput is a transport-validated billing event.
type EventInput struct {
	AuctionID  string
	ServeToken string
	Event      Event
	Issuer     string
	Nonce      string
	Timestamp  string
	// Payload holds the raw signed body; its canonical digest lands in
	// the history entry.
	Payload []byte
}

// ApplyEvent advances a served auction to its terminal billed state.
// The whole check-and-transition runs inside one atomic storage update.
// The bool result is false when the event was a known duplicate and the
// record was left untouched.
func (s *Service) ApplyEvent(ctx context.Context, in EventInput) (*Record, bool, error) {
	applied := false
	rec, err := s.update(ctx, in.AuctionID, func(rec *Record) error {
		applied = false
		if in.ServeToken != "" && in.ServeToken != rec.ServeToken {
			return fmt.Errorf("%w: serve token does not match auction %s", core.ErrUnknownAuction, in.AuctionID)
		}
		if rec.hasBillingEvent(in.Event, in.Nonce) {
			return nil
		}
		if rec.State.Terminal() {
			return fmt.Errorf("%w: auction %s is %s", core.ErrTerminalState, in.AuctionID, rec.State)
		}
		if rec.State != StateServed {
			return fmt.Errorf("%w: auction %s not served yet", core.ErrConflict, in.AuctionID)
		}
		entry := EventEntry{
			EventType:  string(in.Event),
			Issuer:     in.Issuer,
			Nonce:      in.Nonce,
			Timestamp:  in.Timestamp,
			RecordedAt: s.now().UTC(),
		}
		if len(in.Payload) > 0 {
			digest, err := canonical.HashBytes(in.Payload)
			if err != nil {
				return fmt.Errorf("%w: event payload: %v", core.ErrSchemaInvalid, err)
			}
			entry.PayloadDigest = digest
		}
		rec.State = in.Event.Reported()
		rec.Events = append(rec.Events, entry)
		rec.UpdatedAt = entry.RecordedAt
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, applied, nil
}

// AppendBid attaches an accepted bid to the record history while the
// window is still open. Best-effort: the settled record's Bids list is
// the authoritative snapshot.
func (s *Service) AppendBid(ctx context.Context, auctionID string, bid *core.BidResponse) error {
	digest, err := canonical.Hash(bid)
	if err != nil {
		return fmt.Errorf("%w: encode bid: %v", core.ErrInternal, err)
	}
	entry := EventEntry{
		EventType:     EventBidReceived,
		Issuer:        bid.Bidder,
		Nonce:         bid.Nonce,
		Timestamp:     bid.Timestamp,
		PayloadDigest: digest,
		RecordedAt:    s.now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", core.ErrInternal, err)
	}
	if err := s.store.AppendEvent(ctx, storage.LedgerKey(auctionID), raw); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", core.ErrUnknownAuction, auctionID)
		}
		return storageFailure(err)
	}
	return nil
}

// GetRecord loads one record by auction id.
func (s *Service) GetRecord(ctx context.Context, auctionID string) (*Record, error) {
	raw, err := s.store.Get(ctx, storage.LedgerKey(auctionID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownAuction, auctionID)
		}
		return nil, storageFailure(err)
	}
	return decodeRecord(auctionID, raw)
}

// ListRecords returns every ledger record. Stats aggregation reads the
// whole namespace; corrupt entries are skipped with a warning rather
// than failing the listing.
func (s *Service) ListRecords(ctx context.Context) ([]*Record, error) {
	rows, err := s.store.List(ctx, storage.LedgerPrefix)
	if err != nil {
		return nil, storageFailure(err)
	}
	out := make([]*Record, 0, len(rows))
	for key, raw := range rows {
		rec, err := decodeRecord(key, raw)
		if err != nil {
			s.lg.Warn("skipping unreadable ledger record", "key", key, "err", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) update(ctx context.Context, auctionID string, mutate func(*Record) error) (*Record, error) {
	var out *Record
	_, err := s.store.Update(ctx, storage.LedgerKey(auctionID), func(current []byte) ([]byte, error) {
		rec, err := decodeRecord(auctionID, current)
		if err != nil {
			return nil, err
		}
		if err := mutate(rec); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: encode record: %v", core.ErrInternal, err)
		}
		out = rec
		return raw, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownAuction, auctionID)
		case hasDomainKind(err):
			return nil, err
		default:
			return nil, storageFailure(err)
		}
	}
	return out, nil
}

func decodeRecord(key string, raw []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: ledger record %s: %v", core.ErrInternal, key, err)
	}
	return &rec, nil
}

// hasDomainKind distinguishes mutator-raised refusals from backend
// failures when unwinding a failed update.
func hasDomainKind(err error) bool {
	return core.KindOf(err) != core.KindInternal || errors.Is(err, core.ErrInternal)
}

func storageFailure(err error) error {
	if errors.Is(err, core.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
}
