// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"context"
	"fmt"

	"github.com/ava-labs/avalanchego/database/leveldb"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	LevelDB  = "leveldb"
	MemDB    = "memdb"
	Postgres = "postgres"
)

// StoreConfig selects and locates the checkpoint backend.
type StoreConfig struct {
	Type        string
	Dir         string
	PostgresURL string
}

// Open returns the Store described by [config]. Database metrics are
// registered on [reg].
func Open(ctx context.Context, config StoreConfig, reg prometheus.Registerer) (Store, error) {
	switch config.Type {
	case MemDB:
		return NewDBStore(memdb.New()), nil
	case LevelDB:
		db, err := leveldb.New(config.Dir, nil, logging.NoLog{}, "checkpoint_db", reg)
		if err != nil {
			return nil, fmt.Errorf("failed to open leveldb at %s: %w", config.Dir, err)
		}
		return NewDBStore(db), nil
	case Postgres:
		return NewPostgresStore(ctx, config.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown checkpoint store type %q", config.Type)
	}
}
