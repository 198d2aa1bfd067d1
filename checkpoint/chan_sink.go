// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import "context"

var _ Sink = ChanSink(nil)

// ChanSink forwards every checkpoint to a channel. FinishedHeight blocks
// until the checkpoint is received or [ctx] is done.
type ChanSink chan<- Checkpoint

func (s ChanSink) FinishedHeight(ctx context.Context, cp Checkpoint) error {
	select {
	case s <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
