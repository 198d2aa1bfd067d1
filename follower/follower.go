// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package follower turns an Ethereum JSON-RPC endpoint into a stream of
// chain notifications.
package follower

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/chain"
	"github.com/ava-labs/wasmrunner/checkpoint"
)

const (
	DefaultWindow       = 128
	DefaultMaxBatch     = 16
	DefaultPollInterval = 2 * time.Second
	DefaultMaxRetries   = 5
)

var (
	errTooManyFailures = errors.New("too many consecutive node failures")
	errReorgTooDeep    = errors.New("no common ancestor with the emitted blocks")

	_ EthClient    = (*ethclient.Client)(nil)
	_ chain.Source = (*Follower)(nil)
)

// EthClient is the subset of the go-ethereum client the follower needs.
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	BlockReceipts(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]*types.Receipt, error)
}

type Config struct {
	// StartHeight is the first height to follow when nothing was resumed.
	StartHeight uint64
	// Window is the number of recent canonical blocks kept to locate fork
	// points.
	Window int
	// MaxBatch caps the number of blocks in one notification.
	MaxBatch int
	// PollInterval is the wait between polls once the node has no new
	// block.
	PollInterval time.Duration
	// MaxRetries is the number of consecutive failed polls tolerated
	// before Next gives up.
	MaxRetries int
}

func (c *Config) setDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// Follower polls a node and emits Committed, Reorged and Reverted
// notifications relative to the blocks it has already emitted.
//
// Next must not be called concurrently.
type Follower struct {
	client EthClient
	config Config
	log    log.Logger

	// window holds the most recently emitted canonical blocks in ascending
	// order, without receipts.
	window []*chain.Block
}

func New(client EthClient, config Config, logger log.Logger) *Follower {
	config.setDefaults()
	return &Follower{
		client: client,
		config: config,
		log:    logger,
	}
}

// Resume continues after [cp] instead of StartHeight. If [cp] is no longer
// canonical the first notification is a reorg away from it.
func (f *Follower) Resume(cp checkpoint.Checkpoint) {
	f.window = []*chain.Block{{
		Number: cp.Height,
		Hash:   cp.Hash,
	}}
	f.log.Info("resuming from checkpoint", "checkpoint", cp)
}

// Next blocks until the node reports a change relative to the emitted
// blocks.
func (f *Follower) Next(ctx context.Context) (*chain.Notification, error) {
	failures := 0
	for {
		n, err := f.poll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, errReorgTooDeep):
			return nil, err
		case err != nil:
			failures++
			if failures >= f.config.MaxRetries {
				return nil, fmt.Errorf("%w: %w", errTooManyFailures, err)
			}
			f.log.Warn("failed to poll node", "attempt", failures, "err", err)
		case n != nil:
			return n, nil
		default:
			failures = 0
		}

		timer := time.NewTimer(f.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// poll returns nil, nil when there is nothing to report yet.
func (f *Follower) poll(ctx context.Context) (*chain.Notification, error) {
	head, err := f.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch head: %w", err)
	}

	tip := f.tip()
	if tip == nil {
		if head < f.config.StartHeight {
			return nil, nil
		}
		return f.commit(ctx, f.config.StartHeight, head, nil)
	}

	if head < tip.Number {
		return f.reorg(ctx, head)
	}
	if head == tip.Number {
		hdr, err := f.header(ctx, tip.Number)
		if err != nil || hdr == nil {
			return nil, err
		}
		if hdr.Hash() != tip.Hash {
			return f.reorg(ctx, head)
		}
		return nil, nil
	}

	hdr, err := f.header(ctx, tip.Number+1)
	if err != nil || hdr == nil {
		return nil, err
	}
	if hdr.ParentHash != tip.Hash {
		return f.reorg(ctx, head)
	}
	return f.commit(ctx, tip.Number+1, head, hdr)
}

// commit emits the canonical blocks from [first] towards [head]. [firstHdr]
// is the already fetched header at [first], if any.
func (f *Follower) commit(ctx context.Context, first, head uint64, firstHdr *types.Header) (*chain.Notification, error) {
	blocks, err := f.fetch(ctx, first, head, firstHdr)
	if err != nil || len(blocks) == 0 {
		return nil, err
	}
	f.extend(blocks)
	return chain.NewCommitted(blocks...), nil
}

// reorg locates the highest emitted block that is still canonical and
// reports everything above it as abandoned.
func (f *Follower) reorg(ctx context.Context, head uint64) (*chain.Notification, error) {
	fork := -1
	for i := len(f.window) - 1; i >= 0; i-- {
		blk := f.window[i]
		if blk.Number > head {
			continue
		}
		hdr, err := f.header(ctx, blk.Number)
		if err != nil {
			return nil, err
		}
		if hdr != nil && hdr.Hash() == blk.Hash {
			fork = i
			break
		}
	}

	var (
		abandoned []*chain.Block
		kept      []*chain.Block
		first     uint64
	)
	if fork < 0 {
		below, forkBlk, err := f.walkBack(ctx, head)
		if err != nil {
			return nil, err
		}
		f.log.Warn("reorg is deeper than the follow window",
			"window", chain.NewChain(f.window...).Range(),
			"fork", forkBlk.Number,
			"head", head,
		)
		abandoned = append(below, f.window...)
		kept = []*chain.Block{forkBlk}
		first = forkBlk.Number + 1
	} else {
		abandoned = f.window[fork+1:]
		kept = f.window[:fork+1]
		first = f.window[fork].Number + 1
	}
	if len(abandoned) == 0 {
		// The node moved while we were looking. Retry on the next poll.
		return nil, nil
	}
	old := chain.NewChain(append([]*chain.Block(nil), abandoned...)...)

	if first > head {
		f.window = kept
		f.log.Info("node reverted blocks", "revertedChain", old.Range(), "head", head)
		return chain.NewReverted(old), nil
	}

	blocks, err := f.fetch(ctx, first, head, nil)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	f.window = kept
	f.extend(blocks)
	return chain.NewReorged(old, chain.NewChain(blocks...)), nil
}

// walkBack follows the parent hashes of the emitted chain below the window
// until it meets a block that is still canonical. It returns the emitted
// blocks between that block and the window, in ascending order, and the
// canonical block itself.
func (f *Follower) walkBack(ctx context.Context, head uint64) ([]*chain.Block, *chain.Block, error) {
	oldest := f.window[0]
	if oldest.ParentHash == (common.Hash{}) {
		// Resumed blocks carry no parent.
		hdr, err := f.headerByHash(ctx, oldest.Hash)
		if err != nil {
			return nil, nil, err
		}
		oldest.ParentHash = hdr.ParentHash
	}

	var (
		below      []*chain.Block
		parentHash = oldest.ParentHash
	)
	for height := oldest.Number; height > 0; {
		height--
		if height <= head {
			hdr, err := f.header(ctx, height)
			if err != nil {
				return nil, nil, err
			}
			if hdr != nil && hdr.Hash() == parentHash {
				slices.Reverse(below)
				return below, &chain.Block{
					Number:     height,
					Hash:       parentHash,
					ParentHash: hdr.ParentHash,
				}, nil
			}
		}

		hdr, err := f.headerByHash(ctx, parentHash)
		if err != nil {
			return nil, nil, err
		}
		below = append(below, chain.NewBlock(hdr, nil))
		parentHash = hdr.ParentHash
	}
	return nil, nil, fmt.Errorf("%w: walked back to genesis", errReorgTooDeep)
}

// headerByHash fails with errReorgTooDeep if the node forgot [hash].
func (f *Follower) headerByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	hdr, err := f.client.HeaderByHash(ctx, hash)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return nil, fmt.Errorf("%w: block %s is unknown to the node", errReorgTooDeep, hash)
	case err != nil:
		return nil, fmt.Errorf("failed to fetch header %s: %w", hash, err)
	}
	return hdr, nil
}

// fetch returns up to MaxBatch parent-linked blocks with receipts starting
// at [first]. It stops early at the first block that does not link to its
// predecessor.
func (f *Follower) fetch(ctx context.Context, first, head uint64, firstHdr *types.Header) ([]*chain.Block, error) {
	last := head
	if limit := first + uint64(f.config.MaxBatch) - 1; limit < last {
		last = limit
	}

	blocks := make([]*chain.Block, 0, last-first+1)
	for height := first; height <= last; height++ {
		hdr := firstHdr
		if height != first || hdr == nil {
			var err error
			hdr, err = f.header(ctx, height)
			if err != nil {
				return nil, err
			}
			if hdr == nil {
				break
			}
		}
		if n := len(blocks); n > 0 && hdr.ParentHash != blocks[n-1].Hash {
			break
		}

		receipts, err := f.client.BlockReceipts(ctx, rpc.BlockNumberOrHashWithHash(hdr.Hash(), false))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch receipts of block %d: %w", height, err)
		}
		blocks = append(blocks, chain.NewBlock(hdr, receipts))
	}
	return blocks, nil
}

// header returns nil, nil if the node does not know [height].
func (f *Follower) header(ctx context.Context, height uint64) (*types.Header, error) {
	hdr, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	switch {
	case errors.Is(err, ethereum.NotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to fetch header %d: %w", height, err)
	}
	return hdr, nil
}

func (f *Follower) tip() *chain.Block {
	if len(f.window) == 0 {
		return nil
	}
	return f.window[len(f.window)-1]
}

func (f *Follower) extend(blocks []*chain.Block) {
	for _, blk := range blocks {
		f.window = append(f.window, &chain.Block{
			Number:     blk.Number,
			Hash:       blk.Hash,
			ParentHash: blk.ParentHash,
		})
	}
	if excess := len(f.window) - f.config.Window; excess > 0 {
		f.window = append([]*chain.Block(nil), f.window[excess:]...)
	}
}
