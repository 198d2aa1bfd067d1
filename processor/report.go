// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package processor

import (
	"time"

	"github.com/google/uuid"

	"github.com/ava-labs/wasmrunner/chain"
	"github.com/ava-labs/wasmrunner/checkpoint"
	"github.com/ava-labs/wasmrunner/extractor"
	"github.com/ava-labs/wasmrunner/sandbox"
)

// Execution records the outcome of one payload.
type Execution struct {
	RunID       uuid.UUID       `json:"runID"`
	BlockNumber uint64          `json:"blockNumber"`
	TxIndex     uint            `json:"txIndex"`
	LogIndex    uint            `json:"logIndex"`
	Outcome     sandbox.Outcome `json:"outcome"`
	Duration    time.Duration   `json:"duration"`
}

// Report summarizes the handling of one notification.
type Report struct {
	Kind             string                 `json:"kind"`
	Old              *chain.Range           `json:"old,omitempty"`
	New              *chain.Range           `json:"new,omitempty"`
	Executions       []Execution            `json:"executions"`
	ExtractionErrors []string               `json:"extractionErrors,omitempty"`
	Checkpoint       *checkpoint.Checkpoint `json:"checkpoint,omitempty"`
	ProcessedAt      time.Time              `json:"processedAt"`
}

func newReport(n *chain.Notification) *Report {
	r := &Report{Kind: n.Kind.String()}
	if n.Old != nil {
		old := n.Old.Range()
		r.Old = &old
	}
	if n.New != nil {
		replacement := n.New.Range()
		r.New = &replacement
	}
	return r
}

func (r *Report) record(p *extractor.Payload, e execution) {
	r.Executions = append(r.Executions, Execution{
		RunID:       e.runID,
		BlockNumber: p.BlockNumber,
		TxIndex:     p.TxIndex,
		LogIndex:    p.LogIndex,
		Outcome:     e.outcome,
		Duration:    e.duration,
	})
}

// Outcomes counts executions per terminal status.
func (r *Report) Outcomes() map[sandbox.Status]int {
	counts := make(map[sandbox.Status]int, len(sandbox.Statuses))
	for _, e := range r.Executions {
		counts[e.Outcome.Status]++
	}
	return counts
}
