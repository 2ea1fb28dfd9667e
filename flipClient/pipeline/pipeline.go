// Package pipeline drives a bridge transaction through its in, consensus and
// out legs. Legs run strictly in order and a confirmed leg is never submitted
// again, so a retry only replays the suffix starting at the failed leg.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

// ErrNotRetryable is returned by Retry for a transaction that is not in a
// retryable Failed state.
var ErrNotRetryable = errors.New("transaction is not in a retryable failed state")

// Bridge is the part of the bridge client the pipeline drives
type Bridge interface {
	SubmitConsensus(ctx context.Context, tx *bridge.Transaction) (common.TxHandle, error)
	AwaitConsensus(ctx context.Context, h common.TxHandle) (*bridge.ConsensusResult, error)
	Track(gw *bridge.Gateway, h common.TxHandle)
}

// MintEncoder builds the ledger call that credits a bridged deposit
type MintEncoder interface {
	EncodeDeposit(a asset.Asset, holder string, amount *big.Int, nHash [32]byte, sig []byte) ([]byte, error)
}

// Config holds pipeline settings
type Config struct {
	// ConfirmationTimeout bounds each confirmation wait. Zero waits until the
	// caller cancels.
	ConfirmationTimeout time.Duration

	// ExplorerLink renders a block explorer URL for a completed out leg.
	ExplorerLink func(chain, hash string) string
}

// Progress is published on every leg transition
type Progress struct {
	TxID          string
	GatewayID     string
	Asset         string
	Direction     bridge.Direction
	Amount        *big.Int
	Leg           bridge.LegName
	LegState      bridge.LegState
	Handle        common.TxHandle
	Submissions   int
	Confirmations uint64
	State         State
	Retryable     bool
	Err           error
	At            time.Time
}

// Observer receives progress updates. It is called on the goroutine running
// the transaction and must not block.
type Observer func(Progress)

// Pipeline runs bridge transactions. One Pipeline serves any number of
// concurrent transactions; a single transaction runs on one goroutine at a time.
type Pipeline struct {
	adapters  map[string]common.ChainAdapter
	bridge    Bridge
	encoder   MintEncoder
	cfg       Config
	observers []Observer
	logger    zerolog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New creates a pipeline over adapters keyed by chain name
func New(
	adapters map[string]common.ChainAdapter,
	b Bridge,
	encoder MintEncoder,
	cfg Config,
	logger zerolog.Logger,
	observers ...Observer,
) *Pipeline {
	return &Pipeline{
		adapters:  adapters,
		bridge:    b,
		encoder:   encoder,
		cfg:       cfg,
		observers: observers,
		logger:    logger.With().Str("component", "transfer_pipeline").Logger(),
		running:   make(map[string]bool),
	}
}

// Run drives tx from its current state to Completed or Failed. Leg failures
// are reported through the outcome, not the error. The error is set when tx
// cannot run at all or when ctx ends; in the latter case the legs keep their
// progress and a later Run resumes from there.
func (p *Pipeline) Run(ctx context.Context, tx *bridge.Transaction) (Outcome, error) {
	if tx == nil || tx.Gateway == nil {
		return Outcome{}, fmt.Errorf("transaction has no gateway")
	}
	gw := tx.Gateway
	if !gw.Asset.Bridged() {
		return OutcomeOf(tx), flipErrors.NewUnsupportedRouteError(gw.Asset.Symbol, gw.InChain(), gw.OutChain())
	}
	for _, chain := range []string{gw.InChain(), gw.OutChain()} {
		if _, ok := p.adapters[chain]; !ok {
			return OutcomeOf(tx), flipErrors.NewUnsupportedRouteError(gw.Asset.Symbol, gw.InChain(), gw.OutChain()).
				WithContext("missing_adapter", chain)
		}
	}

	if !p.acquire(tx.ID) {
		return OutcomeOf(tx), fmt.Errorf("transaction %s is already running", tx.ID)
	}
	defer p.release(tx.ID)

	log := p.logger.With().
		Str("tx_id", tx.ID).
		Str("gateway_id", gw.ID).
		Str("selector", gw.Selector()).
		Logger()

	for _, step := range []func(context.Context, *bridge.Transaction) error{p.runIn, p.runConsensus, p.runOut} {
		if StateOf(tx).Terminal() {
			break
		}
		if err := step(ctx, tx); err != nil {
			log.Info().Err(err).Str("state", string(StateOf(tx))).Msg("transaction run interrupted")
			return OutcomeOf(tx), err
		}
	}

	o := OutcomeOf(tx)
	switch o.State {
	case StateCompleted:
		ev := log.Info().
			Str("out_chain", gw.OutChain()).
			Str("out_tx", tx.Out.Handle.Hash).
			Str("amount", gw.Asset.FormatAmount(tx.Amount))
		if p.cfg.ExplorerLink != nil {
			if link := p.cfg.ExplorerLink(gw.OutChain(), tx.Out.Handle.Hash); link != "" {
				ev = ev.Str("explorer", link)
			}
		}
		ev.Msg("transaction completed")
	case StateFailed:
		log.Warn().Err(o.Err).Str("leg", string(o.Leg)).Bool("retryable", o.Retryable).Msg("transaction failed")
	}
	return o, nil
}

// Retry resets the failed leg of tx and runs the remaining legs. Confirmed legs
// and their cached results are left untouched. A leg that only timed out
// waiting resumes waiting on the same handle instead of being resubmitted, and
// so does the in leg of an observed deposit, which has nothing to resubmit.
func (p *Pipeline) Retry(ctx context.Context, tx *bridge.Transaction) (Outcome, error) {
	if tx == nil {
		return Outcome{}, ErrNotRetryable
	}
	o := OutcomeOf(tx)
	if o.State != StateFailed || !o.Retryable {
		return o, ErrNotRetryable
	}

	leg := tx.Leg(o.Leg)
	switch {
	case leg.Name == bridge.LegIn && tx.Observed:
		if leg.Handle.IsZero() {
			return o, ErrNotRetryable
		}
		leg.State = bridge.LegWaitingConfirmation
		leg.Confirmations = 0
	case flipErrors.IsConfirmationTimeoutError(leg.Err) && !leg.Handle.IsZero():
		leg.State = bridge.LegWaitingConfirmation
	default:
		leg.State = bridge.LegPending
		leg.Handle = common.TxHandle{}
		leg.Confirmations = 0
	}
	leg.Err = nil
	leg.Retryable = false
	leg.UpdatedAt = time.Now()

	p.logger.Info().
		Str("tx_id", tx.ID).
		Str("leg", string(leg.Name)).
		Str("leg_state", string(leg.State)).
		Int("submissions", leg.Submissions).
		Msg("retrying transaction")
	p.publish(tx, leg)

	return p.Run(ctx, tx)
}

func (p *Pipeline) runIn(ctx context.Context, tx *bridge.Transaction) error {
	leg := &tx.In
	if leg.State == bridge.LegConfirmed {
		return nil
	}
	gw := tx.Gateway
	adapter := p.adapters[gw.InChain()]

	if leg.Handle.IsZero() {
		if tx.Observed {
			p.fail(tx, leg, flipErrors.NewValidationError(gw.InChain(), "observed deposit has no handle"))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := adapter.Submit(ctx, gw.InRequest(tx.Amount))
		leg.Submissions++
		if err != nil {
			return p.legError(ctx, tx, leg, err)
		}
		p.bridge.Track(gw, h)
		p.submitted(tx, leg, h)
	}

	required := gw.Asset.RequiredConfirmations
	if gw.Direction == bridge.DirectionBurn {
		required = asset.LedgerConfirmations
	}
	return p.await(ctx, tx, leg, adapter, required)
}

func (p *Pipeline) runConsensus(ctx context.Context, tx *bridge.Transaction) error {
	leg := &tx.Consensus
	if leg.State == bridge.LegConfirmed {
		return nil
	}

	if leg.Handle.IsZero() {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := p.bridge.SubmitConsensus(ctx, tx)
		leg.Submissions++
		if err != nil {
			return p.legError(ctx, tx, leg, err)
		}
		p.submitted(tx, leg, h)
	}

	p.transition(tx, leg, bridge.LegWaitingConfirmation)
	waitCtx, cancel := p.waitContext(ctx)
	defer cancel()

	result, err := p.bridge.AwaitConsensus(waitCtx, leg.Handle)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = flipErrors.NewConfirmationTimeoutError(constant.ChainRenVM, leg.Handle.Hash, 0, 1)
		}
		p.fail(tx, leg, err)
		return nil
	}

	tx.Result = result
	leg.Confirmations = 1
	p.transition(tx, leg, bridge.LegConfirmed)
	return nil
}

func (p *Pipeline) runOut(ctx context.Context, tx *bridge.Transaction) error {
	leg := &tx.Out
	if leg.State == bridge.LegConfirmed {
		return nil
	}
	gw := tx.Gateway
	adapter := p.adapters[gw.OutChain()]

	if leg.Handle.IsZero() {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, released, err := p.outRequest(tx)
		if err != nil {
			p.fail(tx, leg, err)
			return nil
		}
		if req != nil {
			h, err := adapter.Submit(ctx, *req)
			leg.Submissions++
			if err != nil {
				return p.legError(ctx, tx, leg, err)
			}
			released = h
		}
		p.submitted(tx, leg, released)
	}

	required := asset.LedgerConfirmations
	if gw.Direction == bridge.DirectionBurn {
		required = gw.Asset.RequiredConfirmations
	}
	return p.await(ctx, tx, leg, adapter, required)
}

// outRequest builds the out submission. A burn whose release the network
// already broadcast has no request; its handle is returned instead.
func (p *Pipeline) outRequest(tx *bridge.Transaction) (*common.SubmitRequest, common.TxHandle, error) {
	gw := tx.Gateway
	res := tx.Result
	if res == nil {
		return nil, common.TxHandle{}, flipErrors.NewInternalError(gw.OutChain(), "consensus result missing", nil)
	}

	amount := res.Amount
	if amount == nil || amount.Sign() == 0 {
		amount = tx.Amount
	}

	if gw.Direction == bridge.DirectionMint {
		data, err := p.encoder.EncodeDeposit(gw.Asset, gw.Destination.Holder, amount, res.NHash, res.Signature)
		if err != nil {
			return nil, common.TxHandle{}, flipErrors.NewValidationError(gw.OutChain(), "failed to encode deposit call: "+err.Error())
		}
		req := common.CallRequest(gw.Destination.Address, data, nil, 0)
		return &req, common.TxHandle{}, nil
	}

	switch {
	case len(res.ReleaseRaw) > 0:
		req := common.RawRequest(res.ReleaseRaw)
		return &req, common.TxHandle{}, nil
	case res.ReleaseTxID != "":
		return nil, common.TxHandle{Chain: gw.OutChain(), Hash: res.ReleaseTxID, Amount: new(big.Int).Set(amount)}, nil
	default:
		return nil, common.TxHandle{}, flipErrors.NewValidationError(gw.OutChain(), "consensus result carries no release")
	}
}

// await waits for the leg's handle to reach required confirmations
func (p *Pipeline) await(ctx context.Context, tx *bridge.Transaction, leg *bridge.Leg, adapter common.ChainAdapter, required uint64) error {
	p.transition(tx, leg, bridge.LegWaitingConfirmation)

	waitCtx, cancel := p.waitContext(ctx)
	defer cancel()

	res, err := adapter.AwaitConfirmations(waitCtx, leg.Handle, required)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = flipErrors.NewConfirmationTimeoutError(adapter.Chain(), leg.Handle.Hash, res.Confirmations, required)
		}
		p.fail(tx, leg, err)
		return nil
	}

	leg.Confirmations = res.Confirmations
	if !res.Confirmed() {
		p.fail(tx, leg, confirmationFailure(tx, leg, adapter.Chain(), res))
		return nil
	}
	p.transition(tx, leg, bridge.LegConfirmed)
	return nil
}

// confirmationFailure maps a failed wait to an error. A reverted ledger
// contract call is final; a dropped or reorganized transaction can be resent.
func confirmationFailure(tx *bridge.Transaction, leg *bridge.Leg, chain string, res common.ConfirmationResult) error {
	if res.Reason == common.ReasonReverted && chain == asset.LedgerChain {
		method := tx.Gateway.Destination.Method
		if leg.Name == bridge.LegIn {
			method = tx.Gateway.Source.Method
		}
		return flipErrors.NewLedgerCallError(method, "", nil).WithContext("tx_hash", leg.Handle.Hash)
	}
	return flipErrors.NewSubmissionError(chain, fmt.Sprintf("transaction %s %s", leg.Handle.Hash, res.Reason), nil).
		WithContext("reason", res.Reason)
}

func (p *Pipeline) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.ConfirmationTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.ConfirmationTimeout)
	}
	return context.WithCancel(ctx)
}

// legError records a submission failure. Cancellation is passed through and
// leaves the leg untouched.
func (p *Pipeline) legError(ctx context.Context, tx *bridge.Transaction, leg *bridge.Leg, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctx.Err()
	}
	p.fail(tx, leg, err)
	return nil
}

func (p *Pipeline) submitted(tx *bridge.Transaction, leg *bridge.Leg, h common.TxHandle) {
	leg.Handle = h
	p.logger.Info().
		Str("tx_id", tx.ID).
		Str("leg", string(leg.Name)).
		Str("chain", h.Chain).
		Str("tx_hash", h.Hash).
		Int("submissions", leg.Submissions).
		Msg("leg submitted")
	p.transition(tx, leg, bridge.LegSubmitted)
}

func (p *Pipeline) fail(tx *bridge.Transaction, leg *bridge.Leg, err error) {
	leg.Err = err
	leg.Retryable = flipErrors.IsRetryable(err)
	p.transition(tx, leg, bridge.LegFailed)
}

func (p *Pipeline) transition(tx *bridge.Transaction, leg *bridge.Leg, state bridge.LegState) {
	if leg.State == state {
		return
	}
	leg.State = state
	leg.UpdatedAt = time.Now()
	p.logger.Debug().
		Str("tx_id", tx.ID).
		Str("leg", string(leg.Name)).
		Str("leg_state", string(state)).
		Uint64("confirmations", leg.Confirmations).
		Msg("leg transition")
	p.publish(tx, leg)
}

func (p *Pipeline) publish(tx *bridge.Transaction, leg *bridge.Leg) {
	if len(p.observers) == 0 {
		return
	}
	o := OutcomeOf(tx)
	pr := Progress{
		TxID:          tx.ID,
		GatewayID:     tx.Gateway.ID,
		Asset:         tx.Gateway.Asset.Symbol,
		Direction:     tx.Gateway.Direction,
		Amount:        new(big.Int).Set(tx.Amount),
		Leg:           leg.Name,
		LegState:      leg.State,
		Handle:        leg.Handle,
		Submissions:   leg.Submissions,
		Confirmations: leg.Confirmations,
		State:         o.State,
		Retryable:     leg.Retryable,
		Err:           leg.Err,
		At:            leg.UpdatedAt,
	}
	for _, obs := range p.observers {
		obs(pr)
	}
}

func (p *Pipeline) acquire(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[id] {
		return false
	}
	p.running[id] = true
	return true
}

func (p *Pipeline) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, id)
}
