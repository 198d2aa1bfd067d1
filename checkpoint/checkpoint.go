// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when no checkpoint has been persisted.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is the highest block whose extracted payloads have all reached
// a terminal outcome.
type Checkpoint struct {
	Height uint64      `serialize:"true" json:"height"`
	Hash   common.Hash `serialize:"true" json:"hash"`
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%d (%s)", c.Height, c.Hash.TerminalString())
}

// Sink receives checkpoints from the processor. A returned error is fatal
// to processing: progress that cannot be recorded must not be skipped.
type Sink interface {
	FinishedHeight(ctx context.Context, cp Checkpoint) error
}

// Store is a Sink that persists checkpoints for crash recovery.
type Store interface {
	Sink

	// Last returns the most recently emitted checkpoint, or ErrNotFound.
	Last(ctx context.Context) (Checkpoint, error)
	// Get returns the checkpoint most recently emitted at [height], or
	// ErrNotFound.
	Get(ctx context.Context, height uint64) (Checkpoint, error)

	Close() error
}
