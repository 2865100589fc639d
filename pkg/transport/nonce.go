// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/aip/pkg/core"
)

// DefaultNonceTTL is how long a (principal, nonce) reservation is held.
const DefaultNonceTTL = 60 * time.Second

// NonceStore provides atomic test-and-set nonce reservation. A nonce seen
// within the TTL cannot be reserved again for the same principal.
type NonceStore interface {
	Reserve(ctx context.Context, principal, nonce string, ts time.Time) error
	Close() error
}

// MemoryNonceStore keeps reservations in a map with a background sweeper.
// Suitable for single-process deployments and tests.
type MemoryNonceStore struct {
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryNonceStore starts a store whose sweeper prunes expired
// reservations at ttl/2 intervals.
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	s := &MemoryNonceStore{
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
		seen: make(map[string]time.Time),
	}
	go s.sweep()
	return s
}

func (s *MemoryNonceStore) Reserve(_ context.Context, principal, nonce string, ts time.Time) error {
	now := s.now()
	if !ts.IsZero() && now.Sub(ts) > s.ttl {
		return fmt.Errorf("%w: payload older than nonce horizon", core.ErrNonceExpired)
	}
	key := principal + ":" + nonce
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.seen[key]; ok && now.Sub(at) < s.ttl {
		return fmt.Errorf("%w: %s", core.ErrNonceDuplicate, nonce)
	}
	s.seen[key] = now
	return nil
}

func (s *MemoryNonceStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryNonceStore) sweep() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := s.now().Add(-s.ttl)
			s.mu.Lock()
			for key, at := range s.seen {
				if at.Before(cutoff) {
					delete(s.seen, key)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// RedisNonceStore reserves nonces with SET NX EX so multiple server
// instances share one reservation space.
type RedisNonceStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &RedisNonceStore{client: client, ttl: ttl, prefix: "aip:nonce:"}
}

func (s *RedisNonceStore) Reserve(ctx context.Context, principal, nonce string, ts time.Time) error {
	if !ts.IsZero() && time.Since(ts) > s.ttl {
		return fmt.Errorf("%w: payload older than nonce horizon", core.ErrNonceExpired)
	}
	key := s.prefix + principal + ":" + nonce
	ok, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: nonce reserve: %v", core.ErrStorageUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNonceDuplicate, nonce)
	}
	return nil
}

func (s *RedisNonceStore) Close() error {
	return s.client.Close()
}
