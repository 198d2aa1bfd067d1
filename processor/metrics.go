// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package processor

import (
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	notifications     *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	extractionErrors  prometheus.Counter
	executionDuration prometheus.Histogram
	checkpointHeight  prometheus.Gauge
}

func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications",
			Help:      "Number of chain notifications processed",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions",
			Help:      "Number of payload executions by terminal status",
		}, []string{"status"}),
		extractionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_errors",
			Help:      "Number of registry logs that could not be decoded",
		}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall clock duration of payload executions",
			Buckets:   prometheus.DefBuckets,
		}),
		checkpointHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_height",
			Help:      "Height of the last emitted checkpoint",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.notifications),
		reg.Register(m.outcomes),
		reg.Register(m.extractionErrors),
		reg.Register(m.executionDuration),
		reg.Register(m.checkpointHeight),
	)
	return m, errs.Err
}
