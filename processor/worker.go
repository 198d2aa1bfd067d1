// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ava-labs/wasmrunner/extractor"
	"github.com/ava-labs/wasmrunner/sandbox"
)

var errWorkerClosed = errors.New("execution worker is closed")

// Executor runs a single payload to a terminal outcome.
type Executor interface {
	Execute(ctx context.Context, p *extractor.Payload) sandbox.Outcome
}

type job struct {
	ctx     context.Context
	payload *extractor.Payload
	result  chan<- execution
}

type execution struct {
	runID    uuid.UUID
	outcome  sandbox.Outcome
	duration time.Duration
}

// worker runs payloads one at a time on its own goroutine so that
// execution is decoupled from notification intake. Results are handed back
// over a per-job channel.
type worker struct {
	exec Executor
	jobs chan job

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func newWorker(exec Executor) *worker {
	w := &worker{
		exec:   exec,
		jobs:   make(chan job),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.closed:
			return
		case j := <-w.jobs:
			j.result <- w.run(j)
		}
	}
}

func (w *worker) run(j job) (res execution) {
	res.runID = uuid.New()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.outcome = sandbox.Outcome{Status: sandbox.Trapped, Reason: fmt.Sprintf("panic: %v", r)}
		}
		res.duration = time.Since(start)
	}()
	res.outcome = w.exec.Execute(j.ctx, j.payload)
	return res
}

// execute hands [p] to the worker and waits for its terminal outcome. If
// [ctx] is done before the worker accepts the job, the payload is not run
// and ctx.Err() is returned. Once accepted, execute always waits for the
// run to finish; the executor observes [ctx] and tears the run down.
func (w *worker) execute(ctx context.Context, p *extractor.Payload) (execution, error) {
	result := make(chan execution, 1)
	select {
	case w.jobs <- job{ctx: ctx, payload: p, result: result}:
	case <-ctx.Done():
		return execution{}, ctx.Err()
	case <-w.closed:
		return execution{}, errWorkerClosed
	}
	return <-result, nil
}

// close stops the worker after any in-flight run finishes.
func (w *worker) close() {
	w.closeOnce.Do(func() {
		close(w.closed)
	})
	<-w.done
}
