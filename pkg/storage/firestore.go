// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fsDoc is the document envelope: the JSON value rides as a string so
// the store contract stays byte-oriented across backends.
type fsDoc struct {
	Data      string    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at,serverTimestamp"`
}

// Firestore maps namespaces to collections; ledger documents are keyed
// by auction id, recommendations by "session:message". Update runs the
// mutator inside a transaction, so it may execute more than once.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) doc(key string) (*firestore.DocumentRef, error) {
	ref, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	return f.client.Collection(ref.table).Doc(strings.Join(ref.keys, ":")), nil
}

func (f *Firestore) Put(ctx context.Context, key string, value []byte) error {
	doc, err := f.doc(key)
	if err != nil {
		return err
	}
	_, err = doc.Set(ctx, fsDoc{Data: string(value)})
	return err
}

func (f *Firestore) Create(ctx context.Context, key string, value []byte) error {
	doc, err := f.doc(key)
	if err != nil {
		return err
	}
	_, err = doc.Create(ctx, fsDoc{Data: string(value)})
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	return err
}

func (f *Firestore) Get(ctx context.Context, key string) ([]byte, error) {
	doc, err := f.doc(key)
	if err != nil {
		return nil, err
	}
	snap, err := doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d fsDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return []byte(d.Data), nil
}

func (f *Firestore) Update(ctx context.Context, key string, mutate Mutator) ([]byte, error) {
	doc, err := f.doc(key)
	if err != nil {
		return nil, err
	}
	var next []byte
	err = f.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var d fsDoc
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		next, err = mutate([]byte(d.Data))
		if err != nil {
			return err
		}
		return tx.Set(doc, fsDoc{Data: string(next)})
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (f *Firestore) AppendEvent(ctx context.Context, key string, event []byte) error {
	_, err := f.Update(ctx, key, func(current []byte) ([]byte, error) {
		return appendEventJSON(current, event)
	})
	return err
}

func (f *Firestore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	collect := func(collection string, keyFn func(id string) string) error {
		iter := f.client.Collection(collection).Documents(ctx)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			var d fsDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			key := keyFn(snap.Ref.ID)
			if strings.HasPrefix(key, prefix) {
				out[key] = []byte(d.Data)
			}
		}
	}
	if overlaps(prefix, LedgerPrefix) {
		if err := collect("ledger_records", func(id string) string { return LedgerPrefix + id }); err != nil {
			return nil, err
		}
	}
	if overlaps(prefix, RecommendationPrefix) {
		if err := collect("recommendations", func(id string) string { return RecommendationPrefix + id }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
