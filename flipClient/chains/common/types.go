package common

import (
	"context"
	"fmt"
	"math/big"
)

// ChainAdapter is the capability set every participating chain family provides.
type ChainAdapter interface {
	// Chain returns the chain name (see constant.Chain*)
	Chain() string

	// Submit broadcasts a transaction. Node rejections surface as SubmissionError.
	// Re-broadcasting an already known transaction returns its handle without error.
	Submit(ctx context.Context, req SubmitRequest) (TxHandle, error)

	// AwaitConfirmations blocks until the transaction has n confirmations or is
	// dropped, reverted or reorganized out.
	AwaitConfirmations(ctx context.Context, h TxHandle, n uint64) (ConfirmationResult, error)

	// ReadBalance returns the balance of address in the chain's smallest unit.
	ReadBalance(ctx context.Context, address string) (*big.Int, error)

	// ReadAddress resolves an identity (an address, key name or account label) to
	// a canonical chain address.
	ReadAddress(ctx context.Context, identity string) (string, error)
}

// DepositWatcher is implemented by source chains whose deposits can be
// discovered by address.
type DepositWatcher interface {
	// ListDeposits returns every funding transaction received by address, oldest first.
	ListDeposits(ctx context.Context, address string) ([]TxHandle, error)
}

// SubmitKind selects the shape of a SubmitRequest.
type SubmitKind int

const (
	// SubmitTransfer moves native funds to To.
	SubmitTransfer SubmitKind = iota + 1
	// SubmitContractCall calls a contract at To with Data and Value.
	SubmitContractCall
	// SubmitRaw broadcasts an already signed payload.
	SubmitRaw
)

func (k SubmitKind) String() string {
	switch k {
	case SubmitTransfer:
		return "transfer"
	case SubmitContractCall:
		return "contract_call"
	case SubmitRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// SubmitRequest describes a transaction to broadcast.
type SubmitRequest struct {
	Kind     SubmitKind
	To       string
	Amount   *big.Int // SubmitTransfer: amount in smallest units
	Data     []byte   // SubmitContractCall: ABI-encoded call data
	Value    *big.Int // SubmitContractCall: attached native value, may be nil
	GasLimit uint64   // SubmitContractCall: 0 estimates
	Memo     string   // SubmitTransfer on chains that carry a memo
	Raw      []byte   // SubmitRaw: signed transaction bytes
}

// TransferRequest builds a native transfer request.
func TransferRequest(to string, amount *big.Int, memo string) SubmitRequest {
	return SubmitRequest{Kind: SubmitTransfer, To: to, Amount: amount, Memo: memo}
}

// CallRequest builds a contract call request.
func CallRequest(to string, data []byte, value *big.Int, gasLimit uint64) SubmitRequest {
	return SubmitRequest{Kind: SubmitContractCall, To: to, Data: data, Value: value, GasLimit: gasLimit}
}

// RawRequest builds a re-broadcast request for a signed payload.
func RawRequest(raw []byte) SubmitRequest {
	return SubmitRequest{Kind: SubmitRaw, Raw: raw}
}

// Validate checks the request fields required by its kind.
func (r SubmitRequest) Validate() error {
	switch r.Kind {
	case SubmitTransfer:
		if r.To == "" {
			return fmt.Errorf("transfer requires a recipient")
		}
		if r.Amount == nil || r.Amount.Sign() <= 0 {
			return fmt.Errorf("transfer requires a positive amount")
		}
	case SubmitContractCall:
		if r.To == "" {
			return fmt.Errorf("contract call requires a target")
		}
		if len(r.Data) == 0 {
			return fmt.Errorf("contract call requires call data")
		}
		if r.Value != nil && r.Value.Sign() < 0 {
			return fmt.Errorf("contract call value must not be negative")
		}
	case SubmitRaw:
		if len(r.Raw) == 0 {
			return fmt.Errorf("raw submission requires a payload")
		}
	default:
		return fmt.Errorf("unknown submit kind %d", r.Kind)
	}
	return nil
}

// TxHandle identifies a broadcast transaction on a chain.
type TxHandle struct {
	Chain  string   `json:"chain"`
	Hash   string   `json:"hash"`
	Index  uint32   `json:"index,omitempty"`  // output index for UTXO deposits
	Amount *big.Int `json:"amount,omitempty"` // funded amount when known
}

// ID returns a unique identifier of the handle on its chain.
func (h TxHandle) ID() string {
	if h.Index > 0 {
		return fmt.Sprintf("%s:%d", h.Hash, h.Index)
	}
	return h.Hash
}

// IsZero reports whether the handle refers to no transaction.
func (h TxHandle) IsZero() bool {
	return h.Hash == ""
}

// ConfirmationStatus is the terminal outcome of a confirmation wait.
type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFailed    ConfirmationStatus = "failed"
)

// ConfirmationResult is returned by AwaitConfirmations.
type ConfirmationResult struct {
	Status        ConfirmationStatus
	Confirmations uint64
	BlockNumber   uint64
	// Reason explains a failed status ("reverted", "dropped", "reorged").
	Reason string
}

// Confirmed reports whether the wait ended with the required confirmations.
func (r ConfirmationResult) Confirmed() bool {
	return r.Status == StatusConfirmed
}
