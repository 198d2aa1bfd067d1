// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const lastCheckpointID = "last"

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists checkpoints in Postgres. Writes are idempotent:
// re-emitting a checkpoint after a restart overwrites the same rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wasmrunner_checkpoints (
			id TEXT PRIMARY KEY,
			height BIGINT NOT NULL,
			hash BYTEA NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS wasmrunner_checkpoint_history (
			height BIGINT PRIMARY KEY,
			hash BYTEA NOT NULL,
			emitted_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) FinishedHeight(ctx context.Context, cp Checkpoint) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO wasmrunner_checkpoint_history (height, hash)
		 VALUES ($1, $2)
		 ON CONFLICT (height) DO UPDATE SET hash = EXCLUDED.hash, emitted_at = NOW()`,
		int64(cp.Height), cp.Hash.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("failed to put checkpoint %s into history: %w", cp, err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO wasmrunner_checkpoints (id, height, hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET height = EXCLUDED.height, hash = EXCLUDED.hash, updated_at = NOW()`,
		lastCheckpointID, int64(cp.Height), cp.Hash.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("failed to update last checkpoint to %s: %w", cp, err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) Last(ctx context.Context) (Checkpoint, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT height, hash FROM wasmrunner_checkpoints WHERE id = $1`,
		lastCheckpointID,
	)
	return scanCheckpoint(row)
}

func (p *PostgresStore) Get(ctx context.Context, height uint64) (Checkpoint, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT height, hash FROM wasmrunner_checkpoint_history WHERE height = $1`,
		int64(height),
	)
	return scanCheckpoint(row)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func scanCheckpoint(row pgx.Row) (Checkpoint, error) {
	var (
		height int64
		hash   []byte
	)
	if err := row.Scan(&height, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Checkpoint{}, ErrNotFound
		}
		return Checkpoint{}, err
	}
	return Checkpoint{Height: uint64(height), Hash: common.BytesToHash(hash)}, nil
}
