// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"context"
	"testing"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestDBStoreEmpty(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := NewDBStore(memdb.New())
	_, err := store.Last(ctx)
	require.ErrorIs(err, ErrNotFound)
	_, err = store.Get(ctx, 0)
	require.ErrorIs(err, ErrNotFound)
}

func TestDBStoreFinishedHeight(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := NewDBStore(memdb.New())
	first := Checkpoint{Height: 10, Hash: common.Hash{1}}
	second := Checkpoint{Height: 12, Hash: common.Hash{2}}

	require.NoError(store.FinishedHeight(ctx, first))
	last, err := store.Last(ctx)
	require.NoError(err)
	require.Equal(first, last)

	require.NoError(store.FinishedHeight(ctx, second))
	last, err = store.Last(ctx)
	require.NoError(err)
	require.Equal(second, last)

	got, err := store.Get(ctx, 10)
	require.NoError(err)
	require.Equal(first, got)
	_, err = store.Get(ctx, 11)
	require.ErrorIs(err, ErrNotFound)
}

func TestDBStoreReorgOverwrites(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := NewDBStore(memdb.New())
	require.NoError(store.FinishedHeight(ctx, Checkpoint{Height: 5, Hash: common.Hash{0xa}}))
	// A reorg onto a shorter branch moves the checkpoint backwards.
	replacement := Checkpoint{Height: 4, Hash: common.Hash{0xb}}
	require.NoError(store.FinishedHeight(ctx, replacement))

	last, err := store.Last(ctx)
	require.NoError(err)
	require.Equal(replacement, last)
}

func TestDBStoreIsDurable(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := memdb.New()
	cp := Checkpoint{Height: 77, Hash: common.Hash{7}}
	require.NoError(NewDBStore(db).FinishedHeight(ctx, cp))

	// A second store over the same database sees the committed checkpoint.
	last, err := NewDBStore(db).Last(ctx)
	require.NoError(err)
	require.Equal(cp, last)
}

func TestOpenLevelDBResumes(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	config := StoreConfig{Type: LevelDB, Dir: t.TempDir()}

	store, err := Open(ctx, config, prometheus.NewRegistry())
	require.NoError(err)
	cp := Checkpoint{Height: 3, Hash: common.Hash{3}}
	require.NoError(store.FinishedHeight(ctx, cp))
	require.NoError(store.Close())

	store, err = Open(ctx, config, prometheus.NewRegistry())
	require.NoError(err)
	defer store.Close()
	last, err := store.Last(ctx)
	require.NoError(err)
	require.Equal(cp, last)
}

func TestOpenUnknownType(t *testing.T) {
	_, err := Open(context.Background(), StoreConfig{Type: "rocks"}, prometheus.NewRegistry())
	require.Error(t, err)
}

func TestChanSink(t *testing.T) {
	require := require.New(t)

	ch := make(chan Checkpoint, 1)
	sink := ChanSink(ch)
	cp := Checkpoint{Height: 1}
	require.NoError(sink.FinishedHeight(context.Background(), cp))
	require.Equal(cp, <-ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(ChanSink(make(chan Checkpoint)).FinishedHeight(ctx, cp), context.Canceled)
}
