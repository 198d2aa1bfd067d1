// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/chain"
	"github.com/ava-labs/wasmrunner/checkpoint"
	"github.com/ava-labs/wasmrunner/extractor"
)

const (
	metricsNamespace = "wasmrunner"
	tracerName       = "github.com/ava-labs/wasmrunner/processor"
)

// Processor consumes chain notifications, runs the payloads of every newly
// canonical block and emits a checkpoint once all of them have finished.
//
// Notifications are handled strictly one at a time. Payloads run in
// (block height, transaction index, log index) order on a dedicated worker;
// an outcome never prevents the following payloads from running.
type Processor struct {
	extractor *extractor.Extractor
	worker    *worker
	sink      checkpoint.Sink
	log       log.Logger
	metrics   *metrics
	tracer    trace.Tracer

	lock       sync.RWMutex
	lastReport *Report
}

// New returns a processor that extracts with [ext], executes with [exec]
// and reports progress to [sink]. Metrics are registered on [reg].
// The processor must be closed to release its worker.
func New(
	ext *extractor.Extractor,
	exec Executor,
	sink checkpoint.Sink,
	logger log.Logger,
	reg prometheus.Registerer,
) (*Processor, error) {
	m, err := newMetrics(metricsNamespace, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register processor metrics: %w", err)
	}
	return &Processor{
		extractor: ext,
		worker:    newWorker(exec),
		sink:      sink,
		log:       logger,
		metrics:   m,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

var errNilNotification = errors.New("nil notification")

// Run processes notifications from [src] until the stream ends, [ctx] is
// cancelled or a fatal error occurs. It returns nil when the stream ends.
func (p *Processor) Run(ctx context.Context, src chain.Source) error {
	for {
		n, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			p.log.Info("notification stream ended")
			return nil
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return fmt.Errorf("failed to receive notification: %w", err)
		}
		if _, err := p.Process(ctx, n); err != nil {
			return err
		}
	}
}

// Process handles one notification. It returns the emitted checkpoint, or
// nil when the notification committed nothing.
//
// An error means the notification was not fully handled and no checkpoint
// was emitted for it: the notification was malformed, [ctx] was cancelled,
// or the sink failed.
func (p *Processor) Process(ctx context.Context, n *chain.Notification) (*checkpoint.Checkpoint, error) {
	if n == nil {
		return nil, errNilNotification
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s notification: %w", n.Kind, err)
	}
	p.metrics.notifications.WithLabelValues(n.Kind.String()).Inc()

	ctx, span := p.tracer.Start(ctx, "processor.Process", trace.WithAttributes(
		attribute.String("kind", n.Kind.String()),
	))
	defer span.End()

	report := newReport(n)
	switch n.Kind {
	case chain.Committed:
		p.log.Info("Received commit", "committedChain", n.New.Range())
	case chain.Reorged:
		// Payloads of the abandoned branch already ran and are not
		// compensated. Processing resumes with the replacement branch.
		p.log.Info("Received reorg", "fromChain", n.Old.Range(), "toChain", n.New.Range())
	case chain.Reverted:
		p.log.Info("Received revert", "revertedChain", n.Old.Range())
		report.ProcessedAt = time.Now()
		p.setLastReport(report)
		return nil, nil
	}

	committed := n.CommittedChain()
	for _, blk := range committed.Blocks {
		if err := p.processBlock(ctx, blk, report); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "block processing interrupted")
			return nil, err
		}
	}

	tip := committed.Tip()
	cp := checkpoint.Checkpoint{Height: tip.Number, Hash: tip.Hash}
	if err := p.sink.FinishedHeight(ctx, cp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint emission failed")
		return nil, fmt.Errorf("failed to emit checkpoint %s: %w", cp, err)
	}
	p.metrics.checkpointHeight.Set(float64(cp.Height))
	span.SetAttributes(attribute.Int64("checkpoint", int64(cp.Height)))
	p.log.Debug("emitted checkpoint", "checkpoint", cp)

	report.Checkpoint = &cp
	report.ProcessedAt = time.Now()
	p.setLastReport(report)
	return &cp, nil
}

// processBlock extracts and executes the payloads of [blk]. It only fails
// when [ctx] is done.
func (p *Processor) processBlock(ctx context.Context, blk *chain.Block, report *Report) error {
	payloads, err := p.extractor.Extract(blk)
	if err != nil {
		decodeErrs := unwrapAll(err)
		p.metrics.extractionErrors.Add(float64(len(decodeErrs)))
		for _, decodeErr := range decodeErrs {
			p.log.Error("failed to decode registry log", "height", blk.Number, "err", decodeErr)
			report.ExtractionErrors = append(report.ExtractionErrors, decodeErr.Error())
		}
	}

	for _, payload := range payloads {
		_, span := p.tracer.Start(ctx, "processor.Execute", trace.WithAttributes(
			attribute.Int64("block", int64(payload.BlockNumber)),
			attribute.Int64("log", int64(payload.LogIndex)),
		))
		res, err := p.worker.execute(ctx, payload)
		if err != nil {
			span.End()
			return err
		}
		span.SetAttributes(attribute.String("outcome", res.outcome.Status.String()))
		span.End()

		report.record(payload, res)
		p.metrics.outcomes.WithLabelValues(res.outcome.Status.String()).Inc()
		p.metrics.executionDuration.Observe(res.duration.Seconds())
		p.log.Info("executed payload",
			"runID", res.runID,
			"payload", payload,
			"codeLen", len(payload.Code),
			"outcome", res.outcome,
			"duration", res.duration,
		)

		// A shutdown tears the in-flight run down; nothing after it runs and
		// no checkpoint is emitted for a partially processed notification.
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// LastReport returns the report of the most recently handled notification.
func (p *Processor) LastReport() (Report, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.lastReport == nil {
		return Report{}, false
	}
	return *p.lastReport, true
}

func (p *Processor) setLastReport(r *Report) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.lastReport = r
}

// Close waits for any in-flight execution and stops the worker.
func (p *Processor) Close() {
	p.worker.close()
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
