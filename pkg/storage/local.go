// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
)

// Local persists records in an embedded key-value database, giving
// single-node deployments durability without an external service. One
// mutex serializes read-modify-write cycles; the embedded engines are
// single-process anyway.
type Local struct {
	mu sync.Mutex
	db database.Database
}

// NewLocal wraps an opened database handle.
func NewLocal(db database.Database) *Local {
	return &Local{db: db}
}

// OpenBadger opens a badger-backed store at path. An empty path falls
// back to a non-durable in-process database, which keeps development
// configs working without a data directory.
func OpenBadger(path string) (*Local, error) {
	if path == "" {
		return NewLocal(memdb.New()), nil
	}
	db, err := badgerdb.New(path, nil, "", nil)
	if err != nil {
		return nil, err
	}
	return NewLocal(db), nil
}

func (l *Local) Put(_ context.Context, key string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Put([]byte(key), value)
}

func (l *Local) Create(_ context.Context, key string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	exists, err := l.db.Has([]byte(key))
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	return l.db.Put([]byte(key), value)
}

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(key)
}

func (l *Local) get(key string) ([]byte, error) {
	exists, err := l.db.Has([]byte(key))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return l.db.Get([]byte(key))
}

func (l *Local) Update(_ context.Context, key string, mutate Mutator) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.get(key)
	if err != nil {
		return nil, err
	}
	next, err := mutate(current)
	if err != nil {
		return nil, err
	}
	if err := l.db.Put([]byte(key), next); err != nil {
		return nil, err
	}
	return next, nil
}

func (l *Local) AppendEvent(_ context.Context, key string, event []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.get(key)
	if err != nil {
		return err
	}
	next, err := appendEventJSON(current, event)
	if err != nil {
		return err
	}
	return l.db.Put([]byte(key), next)
}

func (l *Local) List(_ context.Context, prefix string) (map[string][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	iter := l.db.NewIteratorWithPrefix([]byte(prefix))
	defer iter.Release()
	out := make(map[string][]byte)
	for iter.Next() {
		out[string(iter.Key())] = append([]byte(nil), iter.Value()...)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Local) Close() error {
	return l.db.Close()
}
