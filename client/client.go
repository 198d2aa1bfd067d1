// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"

	"github.com/ava-labs/avalanchego/utils/formatting"
	"github.com/ava-labs/avalanchego/utils/json"
	"github.com/ava-labs/avalanchego/utils/rpc"

	"github.com/ava-labs/wasmrunner/api"
	"github.com/ava-labs/wasmrunner/checkpoint"
	"github.com/ava-labs/wasmrunner/processor"
)

// Client defines wasmrunner client operations.
type Client interface {
	// LastCheckpoint fetches the latest emitted checkpoint
	LastCheckpoint(ctx context.Context) (checkpoint.Checkpoint, error)

	// Checkpoint fetches the checkpoint emitted at [height]
	Checkpoint(ctx context.Context, height uint64) (checkpoint.Checkpoint, error)

	// LastReport fetches the report of the last handled notification
	LastReport(ctx context.Context) (processor.Report, error)

	// Info fetches the runner's version and registry address
	Info(ctx context.Context) (*api.InfoReply, error)

	// Execute runs [module] in the runner's sandbox
	Execute(ctx context.Context, module []byte) (*api.ExecuteReply, error)
}

// New creates a new client object. [uri] is the runner's RPC endpoint,
// e.g. http://127.0.0.1:9650/ext/wasmrunner.
func New(uri string) Client {
	req := rpc.NewEndpointRequester(uri)
	return &client{req: req}
}

type client struct {
	req rpc.EndpointRequester
}

func (cli *client) LastCheckpoint(ctx context.Context) (checkpoint.Checkpoint, error) {
	return cli.checkpoint(ctx, &api.GetCheckpointArgs{})
}

func (cli *client) Checkpoint(ctx context.Context, height uint64) (checkpoint.Checkpoint, error) {
	h := json.Uint64(height)
	return cli.checkpoint(ctx, &api.GetCheckpointArgs{Height: &h})
}

func (cli *client) checkpoint(ctx context.Context, args *api.GetCheckpointArgs) (checkpoint.Checkpoint, error) {
	resp := new(api.CheckpointReply)
	err := cli.req.SendRequest(ctx,
		"wasmrunner.getCheckpoint",
		args,
		resp,
	)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	return checkpoint.Checkpoint{Height: uint64(resp.Height), Hash: resp.Hash}, nil
}

func (cli *client) LastReport(ctx context.Context) (processor.Report, error) {
	resp := new(api.GetLastReportReply)
	err := cli.req.SendRequest(ctx,
		"wasmrunner.getLastReport",
		struct{}{},
		resp,
	)
	return resp.Report, err
}

func (cli *client) Info(ctx context.Context) (*api.InfoReply, error) {
	resp := new(api.InfoReply)
	err := cli.req.SendRequest(ctx,
		"wasmrunner.info",
		struct{}{},
		resp,
	)
	return resp, err
}

func (cli *client) Execute(ctx context.Context, module []byte) (*api.ExecuteReply, error) {
	bytes, err := formatting.Encode(formatting.Hex, module)
	if err != nil {
		return nil, err
	}

	resp := new(api.ExecuteReply)
	err = cli.req.SendRequest(ctx,
		"sandbox.execute",
		&api.ExecuteArgs{Module: bytes, Encoding: formatting.Hex},
		resp,
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
