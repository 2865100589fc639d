// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage provides the persistence capability behind the ledger
// and the recommendation cache: a small key-value contract with atomic
// per-key read-modify-write, implemented by an in-memory map, an
// embedded badger database, redis, postgres and firestore. Values are
// JSON documents; append-only event lists live under the document's
// "events" field.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"

	"github.com/luxfi/aip/pkg/log"
)

var (
	// ErrNotFound reports an absent key.
	ErrNotFound = errors.New("storage: key not found")
	// ErrAlreadyExists reports a Create against an existing key.
	ErrAlreadyExists = errors.New("storage: key already exists")
)

// Key namespaces. Relational and document backends route these to their
// native tables and collections.
const (
	LedgerPrefix         = "ledger:"
	RecommendationPrefix = "recommendation:"
)

// LedgerKey builds the storage key for an auction's ledger record.
func LedgerKey(auctionID string) string {
	return LedgerPrefix + auctionID
}

// RecommendationKey builds the storage key for a cached recommendation.
func RecommendationKey(sessionID, messageID string) string {
	return RecommendationPrefix + sessionID + ":" + messageID
}

// Mutator transforms the current value of a key into its replacement.
// Backends with optimistic concurrency may invoke it more than once, so
// it must be side-effect free.
type Mutator func(current []byte) ([]byte, error)

// Store is the backend-independent persistence contract. Update and
// AppendEvent are atomic with respect to concurrent writers on the same
// key; Update fails with ErrNotFound when the key is absent.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Create(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, mutate Mutator) ([]byte, error)
	AppendEvent(ctx context.Context, key string, event []byte) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend   string          `yaml:"backend"`
	Badger    BadgerConfig    `yaml:"badger"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Firestore FirestoreConfig `yaml:"firestore"`
}

type BadgerConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type FirestoreConfig struct {
	ProjectID string `yaml:"project_id"`
}

// Open constructs the configured backend. An empty backend name selects
// the in-memory store.
func Open(ctx context.Context, cfg Config, lg log.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory", "in_memory":
		lg.Info("opening in-memory store")
		return NewMemory(), nil
	case "badger":
		store, err := OpenBadger(cfg.Badger.Path)
		if err != nil {
			return nil, fmt.Errorf("badger open: %w", err)
		}
		lg.Info("opened badger store", "path", cfg.Badger.Path)
		return store, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		lg.Info("opened redis store", "addr", cfg.Redis.Addr)
		return NewRedis(client), nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		store, err := NewPostgres(ctx, db)
		if err != nil {
			return nil, err
		}
		lg.Info("opened postgres store")
		return store, nil
	case "firestore":
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		lg.Info("opened firestore store", "project", cfg.Firestore.ProjectID)
		return NewFirestore(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// appendEventJSON splices event onto the document's "events" array while
// leaving every other field byte-identical.
func appendEventJSON(current, event []byte) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(current, &obj); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	var events []json.RawMessage
	if raw, ok := obj["events"]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	}
	events = append(events, json.RawMessage(event))
	merged, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	obj["events"] = merged
	return json.Marshal(obj)
}

// recordRef locates a key inside a table-shaped backend.
type recordRef struct {
	table string
	keys  []string
}

// splitKey routes a namespaced key to its table and primary key columns.
func splitKey(key string) (recordRef, error) {
	switch {
	case strings.HasPrefix(key, LedgerPrefix):
		return recordRef{table: "ledger_records", keys: []string{strings.TrimPrefix(key, LedgerPrefix)}}, nil
	case strings.HasPrefix(key, RecommendationPrefix):
		rest := strings.TrimPrefix(key, RecommendationPrefix)
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return recordRef{}, fmt.Errorf("malformed recommendation key %q", key)
		}
		return recordRef{table: "recommendations", keys: parts}, nil
	default:
		return recordRef{}, fmt.Errorf("unsupported key namespace %q", key)
	}
}
