package bridge

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
)

// LegName tags one of the three ordered legs of a transaction
type LegName string

const (
	LegIn        LegName = "in"
	LegConsensus LegName = "consensus"
	LegOut       LegName = "out"
)

// LegState is the progress of a single leg
type LegState string

const (
	LegPending             LegState = "pending"
	LegSubmitted           LegState = "submitted"
	LegWaitingConfirmation LegState = "waiting_confirmation"
	LegConfirmed           LegState = "confirmed"
	LegFailed              LegState = "failed"
)

// Leg is one sub-transaction of a cross-chain transfer
type Leg struct {
	Name          LegName
	State         LegState
	Handle        common.TxHandle
	Submissions   int
	Confirmations uint64
	Err           error
	Retryable     bool
	UpdatedAt     time.Time
}

// InFlight reports whether the leg has a broadcast transaction that is not yet confirmed
func (l *Leg) InFlight() bool {
	return l.State == LegSubmitted || l.State == LegWaitingConfirmation
}

// Transaction is one concrete movement of funds through a gateway
type Transaction struct {
	ID        string
	Gateway   *Gateway
	Amount    *big.Int
	In        Leg
	Consensus Leg
	Out       Leg

	// Result of the consensus leg, kept so a retry of out never re-bridges
	Result *ConsensusResult

	// Observed is set when the in leg was funded by someone else and found on
	// the source chain. Its in leg is never submitted locally.
	Observed bool

	CreatedAt time.Time
}

func newTransaction(gw *Gateway, amount *big.Int) *Transaction {
	now := time.Now()
	return &Transaction{
		ID:        uuid.NewString(),
		Gateway:   gw,
		Amount:    new(big.Int).Set(amount),
		In:        Leg{Name: LegIn, State: LegPending, UpdatedAt: now},
		Consensus: Leg{Name: LegConsensus, State: LegPending, UpdatedAt: now},
		Out:       Leg{Name: LegOut, State: LegPending, UpdatedAt: now},
		CreatedAt: now,
	}
}

// NewTransaction starts an intent-driven transfer of amount through gw.
// Its in leg is Pending and gets submitted by the pipeline.
func NewTransaction(gw *Gateway, amount *big.Int) *Transaction {
	return newTransaction(gw, amount)
}

// NewObservedTransaction wraps a funding event found on the source chain. Its
// in leg is already Submitted with the observed handle.
func NewObservedTransaction(gw *Gateway, h common.TxHandle) *Transaction {
	amount := h.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	tx := newTransaction(gw, amount)
	tx.In.State = LegSubmitted
	tx.In.Handle = h
	tx.Observed = true
	return tx
}

// Legs returns the legs in execution order
func (t *Transaction) Legs() []*Leg {
	return []*Leg{&t.In, &t.Consensus, &t.Out}
}

// Leg returns the leg named n
func (t *Transaction) Leg(n LegName) *Leg {
	switch n {
	case LegIn:
		return &t.In
	case LegConsensus:
		return &t.Consensus
	default:
		return &t.Out
	}
}
