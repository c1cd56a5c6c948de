// Package simid mints identifiers used to correlate simulator activity
// across ticks and across log lines: coherence-transaction ids and a
// per-process run id.
package simid

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// TxnID tags a coherence message so its request/forward/ack chain can be
// correlated in logs and metrics independent of the line index, which is
// reused across transactions over the life of a run.
type TxnID uuid.UUID

// NewTxnID mints a fresh transaction id.
func NewTxnID() TxnID {
	return TxnID(uuid.New())
}

func (t TxnID) String() string {
	return uuid.UUID(t).String()
}

// Zero reports whether the id was never assigned.
func (t TxnID) Zero() bool {
	return t == TxnID{}
}

// RunID identifies one simulator process invocation; cmd/supraxsim's run
// command attaches it to its start and finish log lines.
type RunID string

// NewRunID mints a fresh, sortable run id.
func NewRunID() RunID {
	return RunID(xid.New().String())
}
