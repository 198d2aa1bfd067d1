// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package processor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/chain"
	"github.com/ava-labs/wasmrunner/chain/chaintest"
	"github.com/ava-labs/wasmrunner/checkpoint"
	"github.com/ava-labs/wasmrunner/extractor"
	"github.com/ava-labs/wasmrunner/sandbox"
	"github.com/ava-labs/wasmrunner/sandbox/sandboxtest"
)

var errSinkDown = errors.New("sink down")

// recordingExecutor completes every payload and remembers the order in
// which payloads were run.
type recordingExecutor struct {
	lock sync.Mutex
	runs []string
}

func (e *recordingExecutor) Execute(_ context.Context, p *extractor.Payload) sandbox.Outcome {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.runs = append(e.runs, p.String())
	return sandbox.Outcome{Status: sandbox.Completed}
}

func (e *recordingExecutor) Runs() []string {
	e.lock.Lock()
	defer e.lock.Unlock()

	return append([]string(nil), e.runs...)
}

var errExecutorBug = errors.New("executor bug")

// panickingExecutor panics on payloads carrying a single 0xff byte and
// completes every other one.
type panickingExecutor struct {
	recordingExecutor
}

func (e *panickingExecutor) Execute(ctx context.Context, p *extractor.Payload) sandbox.Outcome {
	if bytes.Equal(p.Code, []byte{0xff}) {
		panic(errExecutorBug)
	}
	return e.recordingExecutor.Execute(ctx, p)
}

type failingSink struct{}

func (failingSink) FinishedHeight(context.Context, checkpoint.Checkpoint) error {
	return errSinkDown
}

func testLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func newTestProcessor(t *testing.T, exec Executor, sink checkpoint.Sink) *Processor {
	t.Helper()

	p, err := New(extractor.New(extractor.DefaultRegistryAddress), exec, sink, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func registryLog(blk *chain.Block, code []byte) *types.Log {
	return chaintest.Log(blk, extractor.DefaultRegistryAddress, code)
}

func TestProcessHelloCommit(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	stdout := &bytes.Buffer{}
	engine := sandbox.New(sandbox.Config{Timeout: 5 * time.Second}, sandbox.Capabilities{Stdout: stdout}, testLogger())
	store := checkpoint.NewDBStore(memdb.New())
	p := newTestProcessor(t, engine, store)

	blocks := chaintest.Blocks(0, 0, 1, 2)
	chaintest.AddReceipt(blocks[1], registryLog(blocks[1], sandboxtest.Hello()))

	cp, err := p.Process(ctx, chain.NewCommitted(blocks...))
	require.NoError(err)
	require.Equal(checkpoint.Checkpoint{Height: 2, Hash: blocks[1].Hash}, *cp)
	require.Equal(sandboxtest.HelloMessage, stdout.String())

	last, err := store.Last(ctx)
	require.NoError(err)
	require.Equal(*cp, last)

	report, ok := p.LastReport()
	require.True(ok)
	require.Equal("committed", report.Kind)
	require.Len(report.Executions, 1)
	require.Equal(sandbox.Completed, report.Executions[0].Outcome.Status)
	require.Equal(uint64(2), report.Executions[0].BlockNumber)
	require.Equal(cp, report.Checkpoint)
	require.Equal(float64(2), testutil.ToFloat64(p.metrics.checkpointHeight))
}

func TestProcessFailuresDoNotBlockCheckpoint(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	engine := sandbox.New(sandbox.Config{Timeout: 5 * time.Second}, sandbox.Capabilities{}, testLogger())
	sinkCh := make(chan checkpoint.Checkpoint, 1)
	p := newTestProcessor(t, engine, checkpoint.ChanSink(sinkCh))

	blk := chaintest.Blocks(0, 0, 7, 1)[0]
	chaintest.AddReceipt(blk,
		registryLog(blk, []byte("not wasm")),
		registryLog(blk, sandboxtest.Trap()),
		registryLog(blk, sandboxtest.Empty()),
		registryLog(blk, sandboxtest.Noop()),
	)

	cp, err := p.Process(ctx, chain.NewCommitted(blk))
	require.NoError(err)
	require.Equal(uint64(7), cp.Height)
	require.Equal(*cp, <-sinkCh)

	report, ok := p.LastReport()
	require.True(ok)
	require.Len(report.Executions, 4)
	require.Equal(sandbox.InstantiationFailed, report.Executions[0].Outcome.Status)
	require.Equal(sandbox.Trapped, report.Executions[1].Outcome.Status)
	require.Equal(sandbox.EntryPointAbsent, report.Executions[2].Outcome.Status)
	require.Equal(sandbox.Completed, report.Executions[3].Outcome.Status)
	require.Equal(map[sandbox.Status]int{
		sandbox.Completed:           1,
		sandbox.Trapped:             1,
		sandbox.InstantiationFailed: 1,
		sandbox.EntryPointAbsent:    1,
	}, report.Outcomes())
	require.Equal(float64(1), testutil.ToFloat64(p.metrics.outcomes.WithLabelValues("trapped")))
}

func TestProcessOrdering(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	exec := &recordingExecutor{}
	p := newTestProcessor(t, exec, checkpoint.NewDBStore(memdb.New()))

	blocks := chaintest.Blocks(0, 0, 20, 3)
	chaintest.AddReceipt(blocks[0], registryLog(blocks[0], []byte{1}), registryLog(blocks[0], []byte{2}))
	chaintest.AddReceipt(blocks[0], registryLog(blocks[0], []byte{3}))
	chaintest.AddReceipt(blocks[2], registryLog(blocks[2], []byte{4}))

	_, err := p.Process(ctx, chain.NewCommitted(blocks...))
	require.NoError(err)
	require.Equal([]string{"20/0/0", "20/0/1", "20/1/2", "22/0/0"}, exec.Runs())
}

func TestProcessReorgRunsReplacementOnly(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	exec := &recordingExecutor{}
	store := checkpoint.NewDBStore(memdb.New())
	p := newTestProcessor(t, exec, store)

	abandoned := chaintest.Blocks(0, 1, 5, 2)
	chaintest.AddReceipt(abandoned[0], registryLog(abandoned[0], []byte{0xa}))
	_, err := p.Process(ctx, chain.NewCommitted(abandoned...))
	require.NoError(err)
	require.Equal([]string{"5/0/0"}, exec.Runs())

	replacement := chaintest.Blocks(0, 2, 5, 1)
	chaintest.AddReceipt(replacement[0], registryLog(replacement[0], []byte{0xb}), registryLog(replacement[0], []byte{0xc}))
	cp, err := p.Process(ctx, chain.NewReorged(chain.NewChain(abandoned...), chain.NewChain(replacement...)))
	require.NoError(err)
	require.Equal(checkpoint.Checkpoint{Height: 5, Hash: replacement[0].Hash}, *cp)

	// The abandoned payload is not run again.
	require.Equal([]string{"5/0/0", "5/0/0", "5/0/1"}, exec.Runs())

	last, err := store.Last(ctx)
	require.NoError(err)
	require.Equal(*cp, last)

	report, ok := p.LastReport()
	require.True(ok)
	require.Equal("reorged", report.Kind)
	require.Equal(chain.Range{First: 5, Last: 6}, *report.Old)
	require.Equal(chain.Range{First: 5, Last: 5}, *report.New)
}

func TestProcessRevertEmitsNothing(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	exec := &recordingExecutor{}
	sinkCh := make(chan checkpoint.Checkpoint, 1)
	p := newTestProcessor(t, exec, checkpoint.ChanSink(sinkCh))

	reverted := chaintest.Blocks(0, 0, 3, 2)
	chaintest.AddReceipt(reverted[0], registryLog(reverted[0], []byte{1}))

	cp, err := p.Process(ctx, chain.NewReverted(chain.NewChain(reverted...)))
	require.NoError(err)
	require.Nil(cp)
	require.Empty(exec.Runs())
	require.Empty(sinkCh)

	report, ok := p.LastReport()
	require.True(ok)
	require.Equal("reverted", report.Kind)
	require.Nil(report.Checkpoint)
}

func TestProcessInvalidNotification(t *testing.T) {
	require := require.New(t)

	exec := &recordingExecutor{}
	p := newTestProcessor(t, exec, checkpoint.NewDBStore(memdb.New()))

	blocks := chaintest.Blocks(0, 0, 1, 3)
	_, err := p.Process(context.Background(), chain.NewCommitted(blocks[0], blocks[2]))
	require.Error(err)
	require.Empty(exec.Runs())

	_, ok := p.LastReport()
	require.False(ok)
}

func TestProcessNilNotification(t *testing.T) {
	require := require.New(t)

	p := newTestProcessor(t, &recordingExecutor{}, checkpoint.NewDBStore(memdb.New()))
	_, err := p.Process(context.Background(), nil)
	require.ErrorIs(err, errNilNotification)

	err = p.Run(context.Background(), chain.NewSliceSource(nil))
	require.ErrorIs(err, errNilNotification)
}

func TestProcessRecoversExecutorPanic(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	exec := &panickingExecutor{}
	sinkCh := make(chan checkpoint.Checkpoint, 1)
	p := newTestProcessor(t, exec, checkpoint.ChanSink(sinkCh))

	blocks := chaintest.Blocks(0, 0, 30, 2)
	chaintest.AddReceipt(blocks[0],
		registryLog(blocks[0], []byte{1}),
		registryLog(blocks[0], []byte{0xff}),
	)
	chaintest.AddReceipt(blocks[1], registryLog(blocks[1], []byte{2}))

	cp, err := p.Process(ctx, chain.NewCommitted(blocks...))
	require.NoError(err)
	require.Equal(checkpoint.Checkpoint{Height: 31, Hash: blocks[1].Hash}, *cp)
	require.Equal(*cp, <-sinkCh)
	require.Equal([]string{"30/0/0", "31/0/0"}, exec.Runs())

	report, ok := p.LastReport()
	require.True(ok)
	require.Len(report.Executions, 3)
	require.Equal(sandbox.Outcome{Status: sandbox.Trapped, Reason: "panic: executor bug"}, report.Executions[1].Outcome)
	require.Equal(sandbox.Completed, report.Executions[0].Outcome.Status)
	require.Equal(sandbox.Completed, report.Executions[2].Outcome.Status)
}

func TestProcessSinkFailureIsFatal(t *testing.T) {
	require := require.New(t)

	exec := &recordingExecutor{}
	p := newTestProcessor(t, exec, failingSink{})

	blk := chaintest.Blocks(0, 0, 1, 1)[0]
	chaintest.AddReceipt(blk, registryLog(blk, []byte{1}))

	err := p.Run(context.Background(), chain.NewSliceSource(
		chain.NewCommitted(blk),
		chain.NewCommitted(chaintest.Blocks(0, 0, 2, 1)...),
	))
	require.ErrorIs(err, errSinkDown)
	require.Len(exec.Runs(), 1)
}

func TestProcessExtractionErrorsAreSkipped(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	exec := &recordingExecutor{}
	p := newTestProcessor(t, exec, checkpoint.NewDBStore(memdb.New()))

	blk := chaintest.Blocks(0, 0, 9, 1)[0]
	stale := registryLog(blk, []byte{1})
	chaintest.AddReceipt(blk, stale, registryLog(blk, []byte{2}))
	stale.Removed = true

	cp, err := p.Process(ctx, chain.NewCommitted(blk))
	require.NoError(err)
	require.Equal(uint64(9), cp.Height)
	require.Equal([]string{"9/0/1"}, exec.Runs())

	report, ok := p.LastReport()
	require.True(ok)
	require.Len(report.ExtractionErrors, 1)
	require.Equal(float64(1), testutil.ToFloat64(p.metrics.extractionErrors))
}

func TestProcessShutdownInterruptsRun(t *testing.T) {
	require := require.New(t)

	engine := sandbox.New(sandbox.Config{}, sandbox.Capabilities{}, testLogger())
	sinkCh := make(chan checkpoint.Checkpoint, 1)
	p := newTestProcessor(t, engine, checkpoint.ChanSink(sinkCh))

	blk := chaintest.Blocks(0, 0, 1, 1)[0]
	chaintest.AddReceipt(blk,
		registryLog(blk, sandboxtest.Spinner()),
		registryLog(blk, sandboxtest.Noop()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cp, err := p.Process(ctx, chain.NewCommitted(blk))
	require.ErrorIs(err, context.DeadlineExceeded)
	require.Nil(cp)
	require.Empty(sinkCh)
}

func TestRunStopsAtEndOfStream(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	exec := &recordingExecutor{}
	store := checkpoint.NewDBStore(memdb.New())
	p := newTestProcessor(t, exec, store)

	first := chaintest.Blocks(0, 0, 1, 2)
	second := chaintest.Blocks(0, 0, 3, 1)
	require.NoError(p.Run(ctx, chain.NewSliceSource(
		chain.NewCommitted(first...),
		chain.NewCommitted(second...),
	)))

	last, err := store.Last(ctx)
	require.NoError(err)
	require.Equal(checkpoint.Checkpoint{Height: 3, Hash: second[0].Hash}, last)
}

func TestProcessIdempotentAcrossRestart(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := memdb.New()
	blocks := chaintest.Blocks(0, 0, 1, 1)
	chaintest.AddReceipt(blocks[0], registryLog(blocks[0], []byte{1}))

	var emitted []checkpoint.Checkpoint
	for i := 0; i < 2; i++ {
		exec := &recordingExecutor{}
		p, err := New(extractor.New(extractor.DefaultRegistryAddress), exec, checkpoint.NewDBStore(db), testLogger(), prometheus.NewRegistry())
		require.NoError(err)

		// Replaying an already checkpointed notification runs the same
		// payloads and emits the same checkpoint.
		cp, err := p.Process(ctx, chain.NewCommitted(blocks...))
		require.NoError(err)
		require.Equal([]string{"1/0/0"}, exec.Runs())
		emitted = append(emitted, *cp)
		p.Close()
	}
	require.Equal(emitted[0], emitted[1])
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := New(extractor.New(extractor.DefaultRegistryAddress), &recordingExecutor{}, checkpoint.NewDBStore(memdb.New()), testLogger(), reg)
	require.NoError(t, err)
	defer p.Close()

	_, err = New(extractor.New(extractor.DefaultRegistryAddress), &recordingExecutor{}, checkpoint.NewDBStore(memdb.New()), testLogger(), reg)
	require.Error(t, err)
}
