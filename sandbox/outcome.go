// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sandbox

import (
	"errors"
	"fmt"
)

var errUnknownStatus = errors.New("unknown sandbox status")

// Status is the terminal state of one sandbox run.
type Status uint8

const (
	// Completed means the entry point returned, or the module exited with
	// code zero.
	Completed Status = iota + 1
	// Trapped means the module faulted at runtime, exited non-zero or
	// exhausted its budget.
	Trapped
	// InstantiationFailed means the bytes were not a valid module or the
	// module needed imports outside of the capability set.
	InstantiationFailed
	// EntryPointAbsent means the module exports no runnable _start. This
	// is not an error.
	EntryPointAbsent
)

// Statuses lists every terminal status.
var Statuses = []Status{Completed, Trapped, InstantiationFailed, EntryPointAbsent}

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Trapped:
		return "trapped"
	case InstantiationFailed:
		return "instantiation_failed"
	case EntryPointAbsent:
		return "entry_point_absent"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	for _, known := range Statuses {
		if s == known {
			return []byte(s.String()), nil
		}
	}
	return nil, fmt.Errorf("%w: %d", errUnknownStatus, uint8(s))
}

func (s *Status) UnmarshalText(text []byte) error {
	for _, known := range Statuses {
		if string(text) == known.String() {
			*s = known
			return nil
		}
	}
	return fmt.Errorf("%w: %q", errUnknownStatus, text)
}

// Outcome is the result of executing one payload.
type Outcome struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Status.String()
	}
	return fmt.Sprintf("%s(%s)", o.Status, o.Reason)
}

func completed() Outcome        { return Outcome{Status: Completed} }
func entryPointAbsent() Outcome { return Outcome{Status: EntryPointAbsent} }

func trapped(format string, args ...interface{}) Outcome {
	return Outcome{Status: Trapped, Reason: fmt.Sprintf(format, args...)}
}

func instantiationFailed(format string, args ...interface{}) Outcome {
	return Outcome{Status: InstantiationFailed, Reason: fmt.Sprintf(format, args...)}
}
