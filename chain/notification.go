// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	errEmptyChain      = errors.New("chain has no blocks")
	errNilBlock        = errors.New("chain contains a nil block")
	errNonContiguous   = errors.New("chain blocks are not contiguous")
	errUnknownKind     = errors.New("unknown notification kind")
	errMissingNew      = errors.New("notification is missing its new chain")
	errMissingOld      = errors.New("notification is missing its old chain")
	errUnexpectedNew   = errors.New("reverted notification must not carry a new chain")
	errUnexpectedOld   = errors.New("committed notification must not carry an old chain")
	errBrokenParentage = errors.New("block parent hash does not match previous block")
)

// Kind tags the variant of a Notification.
type Kind uint8

const (
	Committed Kind = iota + 1
	Reorged
	Reverted
)

func (k Kind) String() string {
	switch k {
	case Committed:
		return "committed"
	case Reorged:
		return "reorged"
	case Reverted:
		return "reverted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Block is a canonical block together with the receipts of its transactions.
// Receipts are ordered by transaction index.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Receipts   types.Receipts
}

// NewBlock builds a Block from a header and its receipts.
func NewBlock(header *types.Header, receipts types.Receipts) *Block {
	return &Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Receipts:   receipts,
	}
}

// Range is an inclusive, contiguous interval of block heights.
type Range struct {
	First uint64 `json:"first"`
	Last  uint64 `json:"last"`
}

func (r Range) String() string {
	return fmt.Sprintf("%d..=%d", r.First, r.Last)
}

// Len returns the number of heights in the range.
func (r Range) Len() uint64 { return r.Last - r.First + 1 }

// Chain is a contiguous run of blocks ordered by ascending height.
type Chain struct {
	Blocks []*Block
}

// NewChain returns a chain over [blocks]. The caller is responsible for
// ordering; Validate reports violations.
func NewChain(blocks ...*Block) *Chain {
	return &Chain{Blocks: blocks}
}

// Range returns the heights covered by the chain.
func (c *Chain) Range() Range {
	return Range{
		First: c.Blocks[0].Number,
		Last:  c.Blocks[len(c.Blocks)-1].Number,
	}
}

// Tip returns the highest block of the chain.
func (c *Chain) Tip() *Block {
	return c.Blocks[len(c.Blocks)-1]
}

// Validate checks that the chain is non-empty, strictly ascending by one
// height at a time and internally linked by parent hash.
func (c *Chain) Validate() error {
	if c == nil || len(c.Blocks) == 0 {
		return errEmptyChain
	}
	for i, blk := range c.Blocks {
		if blk == nil {
			return errNilBlock
		}
		if i == 0 {
			continue
		}
		prev := c.Blocks[i-1]
		if blk.Number != prev.Number+1 {
			return fmt.Errorf("%w: height %d follows %d", errNonContiguous, blk.Number, prev.Number)
		}
		if blk.ParentHash != prev.Hash {
			return fmt.Errorf("%w at height %d", errBrokenParentage, blk.Number)
		}
	}
	return nil
}

// Notification describes one atomic change to the canonical chain view.
//
//   - Committed carries New.
//   - Reorged carries Old (abandoned) and New (replacement).
//   - Reverted carries Old.
type Notification struct {
	Kind Kind
	Old  *Chain
	New  *Chain
}

// NewCommitted returns a Committed notification.
func NewCommitted(blocks ...*Block) *Notification {
	return &Notification{Kind: Committed, New: NewChain(blocks...)}
}

// NewReorged returns a Reorged notification.
func NewReorged(abandoned, replacement *Chain) *Notification {
	return &Notification{Kind: Reorged, Old: abandoned, New: replacement}
}

// NewReverted returns a Reverted notification.
func NewReverted(old *Chain) *Notification {
	return &Notification{Kind: Reverted, Old: old}
}

// CommittedChain returns the chain that became canonical with this
// notification, or nil when nothing was committed.
func (n *Notification) CommittedChain() *Chain {
	switch n.Kind {
	case Committed, Reorged:
		return n.New
	default:
		return nil
	}
}

// Validate checks the shape of the notification.
func (n *Notification) Validate() error {
	switch n.Kind {
	case Committed:
		if n.Old != nil {
			return errUnexpectedOld
		}
		if n.New == nil {
			return errMissingNew
		}
		return n.New.Validate()
	case Reorged:
		if n.Old == nil {
			return errMissingOld
		}
		if n.New == nil {
			return errMissingNew
		}
		if err := n.Old.Validate(); err != nil {
			return fmt.Errorf("old chain: %w", err)
		}
		if err := n.New.Validate(); err != nil {
			return fmt.Errorf("new chain: %w", err)
		}
		return nil
	case Reverted:
		if n.New != nil {
			return errUnexpectedNew
		}
		if n.Old == nil {
			return errMissingOld
		}
		return n.Old.Validate()
	default:
		return fmt.Errorf("%w: %d", errUnknownKind, n.Kind)
	}
}
