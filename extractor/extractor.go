// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package extractor

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ava-labs/wasmrunner/chain"
)

// DefaultRegistryAddress is the bytecode registry contract watched when no
// other address is configured.
var DefaultRegistryAddress = common.HexToAddress("0xd8da6bf26964af9d7eed9e03e53415d37aa96045")

var (
	errRemovedLog   = errors.New("registry log is flagged as removed from the canonical chain")
	errForeignBlock = errors.New("registry log belongs to a different block")
)

// Payload is a WebAssembly module requested for execution by a registry
// log. It is immutable once extracted.
type Payload struct {
	BlockNumber uint64
	BlockHash   common.Hash
	TxIndex     uint
	LogIndex    uint
	Code        []byte
}

func (p *Payload) String() string {
	return fmt.Sprintf("%d/%d/%d", p.BlockNumber, p.TxIndex, p.LogIndex)
}

// DecodeError reports a registry log that could not be turned into a
// payload. It marks an invariant violation of the registry contract.
type DecodeError struct {
	BlockNumber  uint64
	ReceiptIndex int
	LogPosition  int
	Err          error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("block %d receipt %d log %d: %s", e.BlockNumber, e.ReceiptIndex, e.LogPosition, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Extractor pulls execution payloads out of the registry logs of a block.
type Extractor struct {
	registry common.Address
}

func New(registry common.Address) *Extractor {
	return &Extractor{registry: registry}
}

// Registry returns the address whose logs are treated as execution requests.
func (e *Extractor) Registry() common.Address { return e.registry }

// Extract returns the payloads of [blk] in receipt-then-log emission order.
// Logs emitted by any address other than the registry are ignored.
//
// Registry logs that violate the log invariants are skipped and reported as
// *DecodeError values joined into the returned error. The payloads that
// could be decoded are returned regardless.
func (e *Extractor) Extract(blk *chain.Block) ([]*Payload, error) {
	var (
		payloads []*Payload
		errs     []error
	)
	for receiptIdx, receipt := range blk.Receipts {
		if receipt == nil {
			continue
		}
		for logPos, l := range receipt.Logs {
			// A nil log carries no address, so it is not a registry log.
			if l == nil || l.Address != e.registry {
				continue
			}
			payload, err := e.decode(blk, l)
			if err != nil {
				errs = append(errs, &DecodeError{
					BlockNumber:  blk.Number,
					ReceiptIndex: receiptIdx,
					LogPosition:  logPos,
					Err:          err,
				})
				continue
			}
			payloads = append(payloads, payload)
		}
	}
	return payloads, errors.Join(errs...)
}

func (e *Extractor) decode(blk *chain.Block, l *types.Log) (*Payload, error) {
	switch {
	case l.Removed:
		return nil, errRemovedLog
	case l.BlockHash != (common.Hash{}) && l.BlockHash != blk.Hash:
		return nil, fmt.Errorf("%w: log block hash %s, block hash %s", errForeignBlock, l.BlockHash, blk.Hash)
	case l.BlockNumber != 0 && l.BlockNumber != blk.Number:
		return nil, fmt.Errorf("%w: log block number %d, block number %d", errForeignBlock, l.BlockNumber, blk.Number)
	}

	code := make([]byte, len(l.Data))
	copy(code, l.Data)
	return &Payload{
		BlockNumber: blk.Number,
		BlockHash:   blk.Hash,
		TxIndex:     l.TxIndex,
		LogIndex:    l.Index,
		Code:        code,
	}, nil
}
