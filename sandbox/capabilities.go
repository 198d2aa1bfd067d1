// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sandbox

import (
	"crypto/rand"
	"io"

	"github.com/tetratelabs/wazero"
)

// Mount exposes the host directory HostDir to the guest at GuestPath,
// read-only.
type Mount struct {
	HostDir   string
	GuestPath string
}

// Capabilities enumerates the system interface handed to a module. The zero
// value exposes nothing: output is discarded, stdin is empty, there is no
// filesystem, the clock is fake and random bytes are deterministic.
type Capabilities struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	Args []string
	Env  map[string]string

	// Mounts are read-only directory mounts.
	Mounts []Mount
	// Clock enables the host wall clock, monotonic clock and sleep.
	Clock bool
	// Random replaces the deterministic random source with crypto/rand.
	Random bool
}

// moduleConfig renders the capability set as a wazero module configuration.
// Start functions are disabled; the engine invokes the entry point itself.
func (c Capabilities) moduleConfig() wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithStdout(orDiscard(c.Stdout)).
		WithStderr(orDiscard(c.Stderr))
	if c.Stdin != nil {
		cfg = cfg.WithStdin(c.Stdin)
	}
	if len(c.Args) > 0 {
		cfg = cfg.WithArgs(c.Args...)
	}
	for k, v := range c.Env {
		cfg = cfg.WithEnv(k, v)
	}
	if len(c.Mounts) > 0 {
		fsConfig := wazero.NewFSConfig()
		for _, m := range c.Mounts {
			fsConfig = fsConfig.WithReadOnlyDirMount(m.HostDir, m.GuestPath)
		}
		cfg = cfg.WithFSConfig(fsConfig)
	}
	if c.Clock {
		cfg = cfg.WithSysWalltime().WithSysNanotime().WithSysNanosleep()
	}
	if c.Random {
		cfg = cfg.WithRandSource(rand.Reader)
	}
	return cfg
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
