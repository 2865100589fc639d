// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fanout distributes opened auctions to subscribed bidders. The
// runner publishes one envelope per pool under a small time budget;
// delivery is best effort and the auction stays correct when nothing is
// listening. Backends: a local sink, Google Cloud Pub/Sub, and redis
// channels, plus a websocket feed hub that can mirror any of them.
package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/log"
)

// Envelope is the published view of an opened auction.
type Envelope struct {
	AuctionID      string               `json:"auction_id"`
	Pool           string               `json:"pool"`
	ContextRequest *core.ContextRequest `json:"context_request"`
	WindowDeadline time.Time            `json:"window_deadline"`
}

// Publisher delivers envelopes to one pool's subscribers.
type Publisher interface {
	Publish(ctx context.Context, pool string, env *Envelope) error
	Close() error
}

// Options selects and parameterizes the backend.
type Options struct {
	Backend     string // local, pubsub, redis
	TopicPrefix string
	ProjectID   string // pubsub
	RedisAddr   string // redis
}

// Open builds the configured publisher.
func Open(ctx context.Context, opts Options, lg log.Logger) (Publisher, error) {
	switch opts.Backend {
	case "", "local":
		return NewLocal(lg), nil
	case "pubsub":
		return NewPubSub(ctx, opts.ProjectID, opts.TopicPrefix, lg)
	case "redis":
		return NewRedisFanout(opts.RedisAddr, opts.TopicPrefix, lg)
	default:
		return nil, errors.New("unknown fanout backend " + opts.Backend)
	}
}

// Local logs envelopes and drops them. Development and test default;
// bidders on a local deployment discover auctions via the feed hub or
// direct push instead.
type Local struct {
	lg log.Logger
}

func NewLocal(lg log.Logger) *Local {
	return &Local{lg: lg}
}

func (l *Local) Publish(_ context.Context, pool string, env *Envelope) error {
	l.lg.Debug("fanout drop",
		"pool", pool,
		"auction_id", env.AuctionID,
		"deadline", env.WindowDeadline,
	)
	return nil
}

func (l *Local) Close() error {
	return nil
}

// Multi fans a publish out to several publishers, typically the primary
// backend plus the feed hub. Errors are joined; one failing sink does
// not stop the others.
type Multi struct {
	publishers []Publisher
}

func NewMulti(publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers}
}

func (m *Multi) Publish(ctx context.Context, pool string, env *Envelope) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, pool, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
