// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redis keys carry a service prefix so the database can be shared.
const redisKeyPrefix = "aip:"

// updateRetries bounds the optimistic WATCH loop under contention.
const updateRetries = 8

// Redis backs the store with a shared cache. Update and AppendEvent use
// WATCH/MULTI so concurrent writers on one key serialize; contended
// transactions retry a bounded number of times.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

func (r *Redis) Create(ctx context.Context, key string, value []byte) error {
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+key, value, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return value, err
}

func (r *Redis) Update(ctx context.Context, key string, mutate Mutator) ([]byte, error) {
	return r.transform(ctx, key, mutate)
}

func (r *Redis) AppendEvent(ctx context.Context, key string, event []byte) error {
	_, err := r.transform(ctx, key, func(current []byte) ([]byte, error) {
		return appendEventJSON(current, event)
	})
	return err
}

// transform runs a watched read-modify-write on one key.
func (r *Redis) transform(ctx context.Context, key string, mutate Mutator) ([]byte, error) {
	full := redisKeyPrefix + key
	var next []byte
	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err = mutate(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := r.client.Watch(ctx, txn, full)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update %s: retries exhausted", key)
}

func (r *Redis) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	pattern := redisKeyPrefix + prefix + "*"
	out := make(map[string][]byte)
	iter := r.client.Scan(ctx, 0, pattern, 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return out, nil
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, raw := range values {
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		out[strings.TrimPrefix(keys[i], redisKeyPrefix)] = []byte(s)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
