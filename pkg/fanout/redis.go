// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fanout

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/aip/pkg/log"
)

// RedisFanout publishes envelopes on redis channels named prefix+pool.
// Subscribers that are not connected at publish time miss the auction,
// which matches the at-most-once contract.
type RedisFanout struct {
	client *redis.Client
	prefix string
	lg     log.Logger
}

func NewRedisFanout(addr, prefix string, lg log.Logger) (*RedisFanout, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisFanout{client: client, prefix: prefix, lg: lg}, nil
}

func (r *RedisFanout) Publish(ctx context.Context, pool string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.prefix+pool, data).Err()
}

func (r *RedisFanout) Close() error {
	return r.client.Close()
}
