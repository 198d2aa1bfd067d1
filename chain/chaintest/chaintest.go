// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chaintest builds synthetic chains for tests.
package chaintest

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ava-labs/wasmrunner/chain"
)

// Hash derives a deterministic block hash for [height] on the branch [fork].
func Hash(fork byte, height uint64) common.Hash {
	var buf [9]byte
	buf[0] = fork
	binary.BigEndian.PutUint64(buf[1:], height)
	return crypto.Keccak256Hash(buf[:])
}

// Blocks returns [n] parent-linked blocks on branch [fork] starting at
// height [first]. The first block's parent is the block at first-1 on
// [parentFork].
func Blocks(parentFork, fork byte, first uint64, n int) []*chain.Block {
	blocks := make([]*chain.Block, 0, n)
	parent := Hash(parentFork, first-1)
	for i := 0; i < n; i++ {
		height := first + uint64(i)
		blk := &chain.Block{
			Number:     height,
			Hash:       Hash(fork, height),
			ParentHash: parent,
		}
		blocks = append(blocks, blk)
		parent = blk.Hash
	}
	return blocks
}

// Log returns a log emitted by [addr] carrying [data], stamped with the
// position of [blk].
func Log(blk *chain.Block, addr common.Address, data []byte) *types.Log {
	return &types.Log{
		Address:     addr,
		Data:        data,
		BlockNumber: blk.Number,
		BlockHash:   blk.Hash,
	}
}

// AddReceipt appends a receipt holding [logs] to [blk], filling in the
// transaction and log indices the way a node would.
func AddReceipt(blk *chain.Block, logs ...*types.Log) *types.Receipt {
	var nextIndex uint
	for _, r := range blk.Receipts {
		if r != nil {
			nextIndex += uint(len(r.Logs))
		}
	}
	txIndex := uint(len(blk.Receipts))
	for _, l := range logs {
		l.TxIndex = txIndex
		l.Index = nextIndex
		nextIndex++
	}
	receipt := &types.Receipt{
		Status:           types.ReceiptStatusSuccessful,
		Logs:             logs,
		BlockHash:        blk.Hash,
		BlockNumber:      new(big.Int).SetUint64(blk.Number),
		TransactionIndex: txIndex,
	}
	blk.Receipts = append(blk.Receipts, receipt)
	return receipt
}
