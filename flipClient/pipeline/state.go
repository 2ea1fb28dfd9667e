package pipeline

import (
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
)

// State is the overall progress of a transaction. It is derived from its legs
// and never stored.
type State string

const (
	StateCreated            State = "created"
	StateInPending          State = "in_pending"
	StateInConfirmed        State = "in_confirmed"
	StateConsensusPending   State = "consensus_pending"
	StateConsensusConfirmed State = "consensus_confirmed"
	StateOutPending         State = "out_pending"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Terminal reports whether no further leg can run without a retry
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Outcome is the state of a transaction as reported to callers. Leg,
// Retryable and Err are set only for StateFailed.
type Outcome struct {
	TxID      string
	State     State
	Leg       bridge.LegName
	Retryable bool
	Err       error
}

// OutcomeOf derives the outcome of tx from the furthest-advanced leg. A
// failed leg wins over every other leg.
func OutcomeOf(tx *bridge.Transaction) Outcome {
	o := Outcome{TxID: tx.ID}
	for _, leg := range tx.Legs() {
		if leg.State == bridge.LegFailed {
			o.State = StateFailed
			o.Leg = leg.Name
			o.Retryable = leg.Retryable
			o.Err = leg.Err
			return o
		}
	}

	switch {
	case tx.Out.State == bridge.LegConfirmed:
		o.State = StateCompleted
	case tx.Out.InFlight():
		o.State = StateOutPending
	case tx.Consensus.State == bridge.LegConfirmed:
		o.State = StateConsensusConfirmed
	case tx.Consensus.InFlight():
		o.State = StateConsensusPending
	case tx.In.State == bridge.LegConfirmed:
		o.State = StateInConfirmed
	case tx.In.InFlight():
		o.State = StateInPending
	default:
		o.State = StateCreated
	}
	return o
}

// StateOf is OutcomeOf(tx).State
func StateOf(tx *bridge.Transaction) State {
	return OutcomeOf(tx).State
}
