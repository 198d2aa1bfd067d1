// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/config"
	"github.com/ava-labs/wasmrunner/sandbox"
	"github.com/ava-labs/wasmrunner/sandbox/sandboxtest"
)

const helloKey = "hello"

var errNoModule = errors.New("expected a module file or --hello")

func execCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "exec [module.wasm]",
		Short: "Runs one module in the sandbox and prints its outcome",
		Args:  cobra.MaximumNArgs(1),
		RunE:  execFunc,
	}
	flags := c.Flags()
	flags.Bool(helloKey, false, "Run the built-in hello world module instead of a file")
	flags.AddFlagSet(config.BuildFlagSet())
	return c
}

func execFunc(c *cobra.Command, args []string) error {
	hello, err := c.Flags().GetBool(helloKey)
	if err != nil {
		return err
	}

	var code []byte
	switch {
	case hello:
		code = sandboxtest.Hello()
	case len(args) == 1:
		code, err = os.ReadFile(args[0])
		if err != nil {
			return err
		}
	default:
		return errNoModule
	}

	cfg, err := loadConfig(c, nil)
	if err != nil {
		return err
	}
	engine := sandbox.New(cfg.Sandbox, cfg.Capabilities, log.New("component", "sandbox"))
	outcome := engine.Run(c.Context(), code, cfg.Capabilities)
	fmt.Fprintln(c.OutOrStdout(), outcome)
	if outcome.Status != sandbox.Completed {
		return fmt.Errorf("module did not complete: %s", outcome)
	}
	return nil
}
