// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ava-labs/avalanchego/utils/formatting"

	"github.com/ava-labs/wasmrunner/sandbox"
)

// maxOutputBytes bounds the captured stdout and stderr of one run.
const maxOutputBytes = 64 * 1024

// Runner executes a module under explicit capabilities.
type Runner interface {
	Run(ctx context.Context, code []byte, caps sandbox.Capabilities) sandbox.Outcome
}

// SandboxService runs ad hoc modules under the runner's sandbox so payloads
// can be tried before they are registered on chain.
type SandboxService struct {
	runner Runner
	caps   sandbox.Capabilities
}

// NewSandboxService grants [caps] to every module it runs, except that
// output is captured and returned to the caller.
func NewSandboxService(runner Runner, caps sandbox.Capabilities) *SandboxService {
	return &SandboxService{
		runner: runner,
		caps:   caps,
	}
}

// ExecuteArgs are the arguments to Execute
type ExecuteArgs struct {
	Module   string              `json:"module"`
	Encoding formatting.Encoding `json:"encoding"`
}

// ExecuteReply is the reply from Execute
type ExecuteReply struct {
	Outcome   sandbox.Outcome `json:"outcome"`
	Stdout    string          `json:"stdout"`
	Stderr    string          `json:"stderr"`
	Truncated bool            `json:"truncated"`
}

// Execute runs the encoded module in [args] to a terminal outcome
func (s *SandboxService) Execute(r *http.Request, args *ExecuteArgs, reply *ExecuteReply) error {
	code, err := formatting.Decode(args.Encoding, args.Module)
	if err != nil {
		return fmt.Errorf("couldn't decode module: %w", err)
	}

	var (
		stdout = &cappedBuffer{limit: maxOutputBytes}
		stderr = &cappedBuffer{limit: maxOutputBytes}
		caps   = s.caps
	)
	caps.Stdout = stdout
	caps.Stderr = stderr

	reply.Outcome = s.runner.Run(r.Context(), code, caps)
	reply.Stdout = string(stdout.buf)
	reply.Stderr = string(stderr.buf)
	reply.Truncated = stdout.truncated || stderr.truncated
	return nil
}

// cappedBuffer keeps the first [limit] bytes written to it and silently
// drops the rest.
type cappedBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room < len(p) {
		b.buf = append(b.buf, p[:max(room, 0)]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}
