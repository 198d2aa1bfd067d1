// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sandboxtest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyModuleIsHeaderOnly(t *testing.T) {
	require.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, Empty())
}

func TestLEB128(t *testing.T) {
	require := require.New(t)

	require.Equal([]byte{0x00}, uleb(0))
	require.Equal([]byte{0x7f}, uleb(127))
	require.Equal([]byte{0x80, 0x01}, uleb(128))
	require.Equal([]byte{0xe5, 0x8e, 0x26}, uleb(624485))

	require.Equal([]byte{0x00}, sleb(0))
	require.Equal([]byte{0x3f}, sleb(63))
	require.Equal([]byte{0xc0, 0x00}, sleb(64))
	require.Equal([]byte{0x7f}, sleb(-1))
	require.Equal([]byte{0xc0, 0xbb, 0x78}, sleb(-123456))
}

func TestStartModuleLayout(t *testing.T) {
	require := require.New(t)

	got := Noop()
	want := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		// type section: one nullary signature
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		// function section
		0x03, 0x02, 0x01, 0x00,
		// memory section: one page
		0x05, 0x03, 0x01, 0x00, 0x01,
		// export section: _start
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		// code section: empty body
		0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
	}
	require.Equal(want, got)
}
