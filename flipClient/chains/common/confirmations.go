package common

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TxStatus is one observation of a transaction's inclusion state.
type TxStatus struct {
	Found         bool   // false while the tx is unknown to the node
	Pending       bool   // known to the node but not yet in a block
	Reverted      bool   // included but failed execution
	Confirmations uint64 // blocks including and after the tx block
	BlockNumber   uint64
}

// StatusFunc fetches the current status of a transaction.
type StatusFunc func(ctx context.Context) (TxStatus, error)

const (
	// defaultMaxNotFound is how many polls a never-seen transaction may stay
	// unknown before it is treated as dropped.
	defaultMaxNotFound = 10

	// failure reasons reported in ConfirmationResult.Reason
	ReasonReverted = "reverted"
	ReasonDropped  = "dropped"
	ReasonReorged  = "reorged"
)

// ConfirmationPoller waits for confirmations by polling a StatusFunc on a ticker.
type ConfirmationPoller struct {
	chain        string
	pollInterval time.Duration
	maxNotFound  int
	logger       zerolog.Logger
}

// NewConfirmationPoller creates a poller for one chain.
func NewConfirmationPoller(chain string, pollInterval time.Duration, logger zerolog.Logger) *ConfirmationPoller {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &ConfirmationPoller{
		chain:        chain,
		pollInterval: pollInterval,
		maxNotFound:  defaultMaxNotFound,
		logger:       logger.With().Str("component", "confirmation_poller").Str("chain", chain).Logger(),
	}
}

// Await polls fetch until the transaction has required confirmations, reverts,
// disappears after having been mined (reorg) or stays unknown for too long
// (dropped). A pending transaction is never dropped while the node knows it. Fetch errors are logged and polling continues; only ctx ends the
// wait with an error.
func (p *ConfirmationPoller) Await(ctx context.Context, h TxHandle, required uint64, fetch StatusFunc) (ConfirmationResult, error) {
	log := p.logger.With().Str("tx_hash", h.Hash).Uint64("required", required).Logger()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	seen := false
	notFound := 0
	var last uint64

	for {
		status, err := fetch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ConfirmationResult{}, ctx.Err()
			}
			log.Warn().Err(err).Msg("failed to fetch transaction status")
		case status.Reverted:
			log.Warn().Uint64("block", status.BlockNumber).Msg("transaction reverted")
			return ConfirmationResult{Status: StatusFailed, BlockNumber: status.BlockNumber, Reason: ReasonReverted}, nil
		case !status.Found && seen:
			log.Warn().Uint64("last_confirmations", last).Msg("transaction disappeared, treating as reorged")
			return ConfirmationResult{Status: StatusFailed, Confirmations: last, Reason: ReasonReorged}, nil
		case !status.Found:
			notFound++
			if notFound >= p.maxNotFound {
				log.Warn().Int("polls", notFound).Msg("transaction not found, treating as dropped")
				return ConfirmationResult{Status: StatusFailed, Reason: ReasonDropped}, nil
			}
		case status.Pending:
			notFound = 0
		default:
			seen = true
			if status.Confirmations != last {
				last = status.Confirmations
				log.Debug().Uint64("confirmations", last).Msg("confirmation progress")
			}
			if status.Confirmations >= required {
				log.Info().Uint64("confirmations", status.Confirmations).Msg("transaction confirmed")
				return ConfirmationResult{
					Status:        StatusConfirmed,
					Confirmations: status.Confirmations,
					BlockNumber:   status.BlockNumber,
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			return ConfirmationResult{Confirmations: last}, ctx.Err()
		case <-ticker.C:
		}
	}
}
