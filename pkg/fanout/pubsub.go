// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/luxfi/aip/pkg/log"
)

// PubSub publishes envelopes to Cloud Pub/Sub, one topic per pool named
// prefix+pool. Topic handles are cached; publish waits for the server
// ack only as long as the caller's context allows.
type PubSub struct {
	client *pubsub.Client
	prefix string
	lg     log.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewPubSub(ctx context.Context, projectID, prefix string, lg log.Logger) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &PubSub{
		client: client,
		prefix: prefix,
		lg:     lg,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

func (p *PubSub) topic(pool string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := p.prefix + pool
	if t, ok := p.topics[name]; ok {
		return t
	}
	t := p.client.Topic(name)
	p.topics[name] = t
	return t
}

func (p *PubSub) Publish(ctx context.Context, pool string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	result := p.topic(pool).Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"auction_id": env.AuctionID,
			"pool":       pool,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return err
	}
	return nil
}

func (p *PubSub) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}
