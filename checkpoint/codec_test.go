// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestParseCheckpointRejectsOtherVersions(t *testing.T) {
	require := require.New(t)

	cp := Checkpoint{Height: 12, Hash: common.Hash{0x12}}
	b, err := marshalCheckpoint(cp)
	require.NoError(err)

	parsed, err := parseCheckpoint(b)
	require.NoError(err)
	require.Equal(cp, parsed)

	// The version is the big-endian uint16 prefix.
	b[1] = codecVersion + 1
	_, err = parseCheckpoint(b)
	require.Error(err)
}
