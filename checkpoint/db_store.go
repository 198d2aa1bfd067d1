// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

var (
	// Each sub-database gets its own prefix.
	singletonStatePrefix = []byte("singleton")
	heightIndexPrefix    = []byte("height")

	lastCheckpointKey = []byte("lastCheckpoint")

	_ Store = (*DBStore)(nil)
)

// DBStore persists checkpoints in an avalanchego database. The latest
// checkpoint lives under a singleton key and every emitted checkpoint is
// indexed by height. Each emission is committed atomically.
type DBStore struct {
	lock sync.Mutex

	db          database.Database
	baseDB      *versiondb.Database
	singletonDB database.Database
	heightDB    database.Database
}

func NewDBStore(db database.Database) *DBStore {
	// create a new baseDB
	baseDB := versiondb.New(db)

	return &DBStore{
		db:          db,
		baseDB:      baseDB,
		singletonDB: prefixdb.New(singletonStatePrefix, baseDB),
		heightDB:    prefixdb.New(heightIndexPrefix, baseDB),
	}
}

// FinishedHeight records [cp] as the latest checkpoint.
func (s *DBStore) FinishedHeight(_ context.Context, cp Checkpoint) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	bytes, err := marshalCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint %s: %w", cp, err)
	}
	if err := s.heightDB.Put(heightKey(cp.Height), bytes); err != nil {
		s.baseDB.Abort()
		return fmt.Errorf("failed to put checkpoint %s into height index: %w", cp, err)
	}
	if err := s.singletonDB.Put(lastCheckpointKey, bytes); err != nil {
		s.baseDB.Abort()
		return fmt.Errorf("failed to update last checkpoint to %s: %w", cp, err)
	}
	if err := s.baseDB.Commit(); err != nil {
		s.baseDB.Abort()
		return fmt.Errorf("failed to commit checkpoint %s: %w", cp, err)
	}
	return nil
}

func (s *DBStore) Last(context.Context) (Checkpoint, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.get(s.singletonDB, lastCheckpointKey)
}

func (s *DBStore) Get(_ context.Context, height uint64) (Checkpoint, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.get(s.heightDB, heightKey(height))
}

func (s *DBStore) get(db database.KeyValueReader, key []byte) (Checkpoint, error) {
	bytes, err := db.Get(key)
	switch {
	case err == database.ErrNotFound:
		return Checkpoint{}, ErrNotFound
	case err != nil:
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	cp, err := parseCheckpoint(bytes)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return cp, nil
}

// Close closes the version layer and the underlying database.
func (s *DBStore) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	errs := wrappers.Errs{}
	errs.Add(
		s.baseDB.Close(),
		s.db.Close(),
	)
	return errs.Err
}

func heightKey(height uint64) []byte {
	key := make([]byte, wrappers.LongLen)
	binary.BigEndian.PutUint64(key, height)
	return key
}
