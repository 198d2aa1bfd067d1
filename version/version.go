// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import (
	"fmt"

	avaversion "github.com/ava-labs/avalanchego/version"
)

// Name of the binary and of its JSON-RPC service.
const Name = "wasmrunner"

var Current = &avaversion.Semantic{
	Major: 0,
	Minor: 1,
	Patch: 0,
}

// String returns "wasmrunner@v0.1.0".
func String() string {
	return fmt.Sprintf("%s@%s", Name, Current)
}
