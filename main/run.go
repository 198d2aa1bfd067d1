// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/api"
	"github.com/ava-labs/wasmrunner/checkpoint"
	"github.com/ava-labs/wasmrunner/config"
	"github.com/ava-labs/wasmrunner/extractor"
	"github.com/ava-labs/wasmrunner/follower"
	"github.com/ava-labs/wasmrunner/processor"
	"github.com/ava-labs/wasmrunner/sandbox"
	"github.com/ava-labs/wasmrunner/tracing"
	"github.com/ava-labs/wasmrunner/version"
)

var errProcessorStopped = errors.New("processor stopped")

func runCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "run [registry-address]",
		Short: "Follows a node and runs every payload the registry publishes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFunc,
	}
	c.Flags().AddFlagSet(config.BuildFlagSet())
	return c
}

// loadConfig resolves the command's flags. A positional argument overrides
// --registry-address.
func loadConfig(c *cobra.Command, args []string) (*config.Config, error) {
	v, err := config.NewViper(c.Flags())
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		v.Set(config.RegistryAddressKey, args[0])
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log.Root().SetHandler(cfg.LogHandler(os.Stderr))
	return cfg, nil
}

func runFunc(c *cobra.Command, args []string) error {
	cfg, err := loadConfig(c, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New()
	logger.Info("starting",
		"version", version.String(),
		"registry", cfg.RegistryAddress,
		"rpcURL", cfg.RPCURL,
		"store", cfg.Store.Type,
	)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	store, err := checkpoint.Open(ctx, cfg.Store, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close checkpoint store", "err", err)
		}
	}()

	ethClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}
	defer ethClient.Close()

	source := follower.New(ethClient, cfg.Follower, logger.New("component", "follower"))
	switch cp, err := store.Last(ctx); {
	case err == nil:
		source.Resume(cp)
	case errors.Is(err, checkpoint.ErrNotFound):
		logger.Info("no checkpoint found, following from start height", "height", cfg.Follower.StartHeight)
	default:
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	engine := sandbox.New(cfg.Sandbox, cfg.Capabilities, logger.New("component", "sandbox"))
	proc, err := processor.New(
		extractor.New(cfg.RegistryAddress),
		engine,
		store,
		logger.New("component", "processor"),
		reg,
	)
	if err != nil {
		return err
	}
	defer proc.Close()

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return proc.Run(gctx, source)
	})

	if cfg.HTTPAddress != "" {
		var sandboxService *api.SandboxService
		if cfg.SandboxAPI {
			// Ad hoc runs never write to the runner's own output.
			caps := cfg.Capabilities
			caps.Stdout, caps.Stderr = nil, nil
			sandboxService = api.NewSandboxService(engine, caps)
		}
		rpcServer, err := api.NewRPCServer(api.NewService(store, proc, cfg.RegistryAddress), sandboxService)
		if err != nil {
			return err
		}
		health := func(ctx context.Context) error {
			if gctx.Err() != nil {
				return errProcessorStopped
			}
			if _, err := store.Last(ctx); err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
				return err
			}
			return nil
		}
		server := api.NewServer(rpcServer, reg, health, logger.New("component", "api"))

		listener, err := net.Listen("tcp", cfg.HTTPAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.HTTPAddress, err)
		}
		g.Go(func() error {
			return server.Serve(gctx, listener)
		})
	}

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, context.Canceled) && ctx.Err() != nil:
		logger.Info("shut down")
		return nil
	default:
		return err
	}
}
