// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ava-labs/avalanchego/utils/json"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/wasmrunner/checkpoint"
	"github.com/ava-labs/wasmrunner/processor"
	"github.com/ava-labs/wasmrunner/version"
)

var errNoReport = errors.New("no notification has been processed yet")

// CheckpointReader exposes the persisted checkpoints.
type CheckpointReader interface {
	Last(ctx context.Context) (checkpoint.Checkpoint, error)
	Get(ctx context.Context, height uint64) (checkpoint.Checkpoint, error)
}

// ReportSource exposes the report of the last handled notification.
type ReportSource interface {
	LastReport() (processor.Report, bool)
}

// Service is the status API of the runner
type Service struct {
	checkpoints CheckpointReader
	reports     ReportSource
	registry    common.Address
}

func NewService(checkpoints CheckpointReader, reports ReportSource, registry common.Address) *Service {
	return &Service{
		checkpoints: checkpoints,
		reports:     reports,
		registry:    registry,
	}
}

// GetCheckpointArgs are the arguments to GetCheckpoint
type GetCheckpointArgs struct {
	// Height of the checkpoint we're getting.
	// If left blank, gets the latest checkpoint
	Height *json.Uint64 `json:"height"`
}

// CheckpointReply is a checkpoint as served by the API
type CheckpointReply struct {
	Height json.Uint64 `json:"height"`
	Hash   common.Hash `json:"hash"`
}

// GetCheckpoint returns the checkpoint at [args.Height], or the latest one
func (s *Service) GetCheckpoint(r *http.Request, args *GetCheckpointArgs, reply *CheckpointReply) error {
	var (
		cp  checkpoint.Checkpoint
		err error
	)
	if args.Height == nil {
		cp, err = s.checkpoints.Last(r.Context())
	} else {
		cp, err = s.checkpoints.Get(r.Context(), uint64(*args.Height))
	}
	if err != nil {
		return err
	}

	reply.Height = json.Uint64(cp.Height)
	reply.Hash = cp.Hash
	return nil
}

// GetLastReportReply is the reply from GetLastReport
type GetLastReportReply struct {
	Report processor.Report `json:"report"`
}

// GetLastReport returns what happened while handling the last notification
func (s *Service) GetLastReport(_ *http.Request, _ *struct{}, reply *GetLastReportReply) error {
	report, ok := s.reports.LastReport()
	if !ok {
		return errNoReport
	}
	reply.Report = report
	return nil
}

// InfoReply is the reply from Info
type InfoReply struct {
	Version  string         `json:"version"`
	Registry common.Address `json:"registry"`
}

// Info describes the running binary
func (s *Service) Info(_ *http.Request, _ *struct{}, reply *InfoReply) error {
	reply.Version = version.Current.String()
	reply.Registry = s.registry
	return nil
}
