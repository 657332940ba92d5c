// Package recorder persists an audit trail of epoch lifecycle events.
package recorder

import "time"

// EpochEvent is one recorded lifecycle transition of a pool epoch.
type EpochEvent struct {
	PoolID    uint64
	Epoch     uint32
	Kind      string // closed | submission_opened | solution_submitted | executed
	Detail    string
	Timestamp time.Time
}

const (
	KindClosed            = "closed"
	KindSubmissionOpened  = "submission_opened"
	KindSolutionSubmitted = "solution_submitted"
	KindExecuted          = "executed"
)

// Recorder stores epoch events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ev EpochEvent) error
	Close() error
}
