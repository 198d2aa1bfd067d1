// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/codec"
	"github.com/ava-labs/avalanchego/codec/linearcodec"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

// codecVersion prefixes every persisted checkpoint. Bump it together with
// a new registration when the layout of Checkpoint changes.
const codecVersion = 0

var (
	errWrongVersion = errors.New("wrong checkpoint codec version")

	checkpointCodec = mustNewCodec()
)

func mustNewCodec() codec.Manager {
	lc := linearcodec.NewDefault()
	manager := codec.NewDefaultManager()

	errs := wrappers.Errs{}
	errs.Add(
		lc.RegisterType(&Checkpoint{}),
		manager.RegisterCodec(codecVersion, lc),
	)
	if errs.Errored() {
		panic(fmt.Errorf("failed to build checkpoint codec: %w", errs.Err))
	}
	return manager
}

func marshalCheckpoint(cp Checkpoint) ([]byte, error) {
	return checkpointCodec.Marshal(codecVersion, &cp)
}

// parseCheckpoint rejects bytes written under any other codec version.
func parseCheckpoint(b []byte) (Checkpoint, error) {
	var cp Checkpoint
	version, err := checkpointCodec.Unmarshal(b, &cp)
	if err != nil {
		return Checkpoint{}, err
	}
	if version != codecVersion {
		return Checkpoint{}, fmt.Errorf("%w: %d", errWrongVersion, version)
	}
	return cp, nil
}
