// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // postgres driver
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS ledger_records (
    auction_id TEXT PRIMARY KEY,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_records_state
    ON ledger_records ((data->>'state'));

CREATE TABLE IF NOT EXISTS recommendations (
    session_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (session_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_recommendations_status
    ON recommendations ((data->>'status'));
`

// Postgres keeps each namespace in its own table with a JSONB payload
// column. Update takes a row lock so concurrent mutators serialize;
// AppendEvent splices the event in a single statement server-side.
type Postgres struct {
	db *sql.DB
}

// NewPostgres ensures the schema and wraps the pool.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	ref, err := splitKey(key)
	if err != nil {
		return err
	}
	switch ref.table {
	case "ledger_records":
		_, err = p.db.ExecContext(ctx,
			`INSERT INTO ledger_records (auction_id, data) VALUES ($1, $2)
			 ON CONFLICT (auction_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
			ref.keys[0], value)
	default:
		_, err = p.db.ExecContext(ctx,
			`INSERT INTO recommendations (session_id, message_id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, message_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
			ref.keys[0], ref.keys[1], value)
	}
	return err
}

func (p *Postgres) Create(ctx context.Context, key string, value []byte) error {
	ref, err := splitKey(key)
	if err != nil {
		return err
	}
	var res sql.Result
	switch ref.table {
	case "ledger_records":
		res, err = p.db.ExecContext(ctx,
			`INSERT INTO ledger_records (auction_id, data) VALUES ($1, $2)
			 ON CONFLICT (auction_id) DO NOTHING`,
			ref.keys[0], value)
	default:
		res, err = p.db.ExecContext(ctx,
			`INSERT INTO recommendations (session_id, message_id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, message_id) DO NOTHING`,
			ref.keys[0], ref.keys[1], value)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	ref, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	var data []byte
	switch ref.table {
	case "ledger_records":
		err = p.db.QueryRowContext(ctx,
			`SELECT data FROM ledger_records WHERE auction_id = $1`, ref.keys[0]).Scan(&data)
	default:
		err = p.db.QueryRowContext(ctx,
			`SELECT data FROM recommendations WHERE session_id = $1 AND message_id = $2`,
			ref.keys[0], ref.keys[1]).Scan(&data)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

func (p *Postgres) Update(ctx context.Context, key string, mutate Mutator) ([]byte, error) {
	ref, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current []byte
	switch ref.table {
	case "ledger_records":
		err = tx.QueryRowContext(ctx,
			`SELECT data FROM ledger_records WHERE auction_id = $1 FOR UPDATE`, ref.keys[0]).Scan(&current)
	default:
		err = tx.QueryRowContext(ctx,
			`SELECT data FROM recommendations WHERE session_id = $1 AND message_id = $2 FOR UPDATE`,
			ref.keys[0], ref.keys[1]).Scan(&current)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	next, err := mutate(current)
	if err != nil {
		return nil, err
	}

	switch ref.table {
	case "ledger_records":
		_, err = tx.ExecContext(ctx,
			`UPDATE ledger_records SET data = $2, updated_at = NOW() WHERE auction_id = $1`,
			ref.keys[0], next)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE recommendations SET data = $3, updated_at = NOW()
			 WHERE session_id = $1 AND message_id = $2`,
			ref.keys[0], ref.keys[1], next)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

func (p *Postgres) AppendEvent(ctx context.Context, key string, event []byte) error {
	ref, err := splitKey(key)
	if err != nil {
		return err
	}
	var res sql.Result
	switch ref.table {
	case "ledger_records":
		res, err = p.db.ExecContext(ctx,
			`UPDATE ledger_records
			 SET data = jsonb_set(data, '{events}', COALESCE(data->'events', '[]'::jsonb) || $2::jsonb),
			     updated_at = NOW()
			 WHERE auction_id = $1`,
			ref.keys[0], event)
	default:
		res, err = p.db.ExecContext(ctx,
			`UPDATE recommendations
			 SET data = jsonb_set(data, '{events}', COALESCE(data->'events', '[]'::jsonb) || $3::jsonb),
			     updated_at = NOW()
			 WHERE session_id = $1 AND message_id = $2`,
			ref.keys[0], ref.keys[1], event)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if overlaps(prefix, LedgerPrefix) {
		rows, err := p.db.QueryContext(ctx, `SELECT auction_id, data FROM ledger_records ORDER BY auction_id`)
		if err != nil {
			return nil, err
		}
		if err := collectRows(rows, out, func(keys []string) string { return LedgerKey(keys[0]) }, 1); err != nil {
			return nil, err
		}
	}
	if overlaps(prefix, RecommendationPrefix) {
		rows, err := p.db.QueryContext(ctx, `SELECT session_id, message_id, data FROM recommendations ORDER BY session_id, message_id`)
		if err != nil {
			return nil, err
		}
		if err := collectRows(rows, out, func(keys []string) string { return RecommendationKey(keys[0], keys[1]) }, 2); err != nil {
			return nil, err
		}
	}
	for key := range out {
		if !strings.HasPrefix(key, prefix) {
			delete(out, key)
		}
	}
	return out, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// overlaps reports whether a key prefix can select rows from a namespace.
func overlaps(prefix, namespace string) bool {
	return strings.HasPrefix(namespace, prefix) || strings.HasPrefix(prefix, namespace)
}

func collectRows(rows *sql.Rows, out map[string][]byte, keyFn func([]string) string, keyCols int) error {
	defer rows.Close()
	for rows.Next() {
		keys := make([]string, keyCols)
		dest := make([]any, 0, keyCols+1)
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		var data []byte
		dest = append(dest, &data)
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		out[keyFn(keys)] = data
	}
	return rows.Err()
}
