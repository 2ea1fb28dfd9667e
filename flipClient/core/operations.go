package core

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/pipeline"
)

// DepositRequest moves a bridged asset into the user's escrow balance
type DepositRequest struct {
	Asset  asset.Asset
	Amount *big.Int // required unless External

	// From is the funding account of account-style sources. It defaults to
	// the local terra key.
	From string

	// External waits for a deposit paid outside this process instead of
	// submitting the in leg.
	External bool
}

// GatewayFunc is called once the gateway exists, before any funds move
type GatewayFunc func(*bridge.Gateway)

// Deposit creates a mint gateway and drives one transaction through it
func (c *Client) Deposit(ctx context.Context, req DepositRequest, onGateway GatewayFunc) (pipeline.Outcome, error) {
	a := req.Asset
	if !a.Bridged() {
		return pipeline.Outcome{}, flipErrors.NewUnsupportedRouteError(a.Symbol, a.Chain, asset.LedgerChain)
	}
	if !req.External && (req.Amount == nil || req.Amount.Sign() <= 0) {
		return pipeline.Outcome{}, flipErrors.NewValidationError(a.Chain, "deposit amount must be positive")
	}

	var src bridge.Endpoint
	switch a.SourceStyle {
	case asset.SourceAddress:
		src = bridge.DepositAddress(a.Chain)
	default:
		from := req.From
		if from == "" {
			from = c.terraAccount
		}
		src = bridge.Account(a.Chain, from)
	}
	dst := bridge.Contract(asset.LedgerChain, c.ledger.Contract(), a.DepositMethod, c.user)

	gw, err := c.bridge.CreateGateway(ctx, a, src, dst)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	if onGateway != nil {
		onGateway(gw)
	}

	var tx *bridge.Transaction
	if req.External {
		tx, err = c.awaitObserved(ctx, gw)
		if err != nil {
			return pipeline.Outcome{}, err
		}
	} else {
		tx = bridge.NewTransaction(gw, req.Amount)
	}
	return c.run(ctx, tx, "deposit")
}

// awaitObserved returns the first funding event of gw
func (c *Client) awaitObserved(ctx context.Context, gw *bridge.Gateway) (*bridge.Transaction, error) {
	obsCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	txs, err := c.bridge.Observe(obsCtx, gw)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("gateway_id", gw.ID).Str("address", gw.WatchAddress()).Msg("waiting for deposit")
	select {
	case tx, ok := <-txs:
		if !ok {
			return nil, ctx.Err()
		}
		return tx, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Withdraw burns amount of the user's escrow balance and releases it to a
// native-chain recipient
func (c *Client) Withdraw(ctx context.Context, a asset.Asset, to string, amount *big.Int) (pipeline.Outcome, error) {
	if !a.Bridged() {
		return pipeline.Outcome{}, flipErrors.NewUnsupportedRouteError(a.Symbol, asset.LedgerChain, a.Chain)
	}
	if amount == nil || amount.Sign() <= 0 {
		return pipeline.Outcome{}, flipErrors.NewValidationError(asset.LedgerChain, "withdraw amount must be positive")
	}

	data, err := c.ledger.EncodeWithdraw(a, c.user, to, amount)
	if err != nil {
		return pipeline.Outcome{}, flipErrors.NewValidationError(asset.LedgerChain, err.Error())
	}
	src := bridge.Contract(asset.LedgerChain, c.ledger.Contract(), ledger.MethodWithdraw, c.user).
		WithCall(data, constant.WithdrawGasLimit)
	dst := bridge.Address(a.Chain, to)

	gw, err := c.bridge.CreateGateway(ctx, a, src, dst)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	return c.run(ctx, bridge.NewTransaction(gw, amount), "withdraw")
}

// Retry replays the failed suffix of a transaction started by this client
func (c *Client) Retry(ctx context.Context, txID string) (pipeline.Outcome, error) {
	c.mu.Lock()
	tx, ok := c.txs[txID]
	c.mu.Unlock()
	if !ok {
		return pipeline.Outcome{}, fmt.Errorf("unknown transaction %s", txID)
	}

	outcome, err := c.runner.Retry(ctx, tx)
	if err == nil {
		c.refreshAfter(ctx, "retry")
	}
	return outcome, err
}

func (c *Client) run(ctx context.Context, tx *bridge.Transaction, op string) (pipeline.Outcome, error) {
	c.mu.Lock()
	c.txs[tx.ID] = tx
	c.mu.Unlock()

	outcome, err := c.runner.Run(ctx, tx)
	if err != nil {
		return outcome, err
	}
	c.refreshAfter(ctx, op)
	return outcome, nil
}

// OpenGame wagers amount of a in a new game
func (c *Client) OpenGame(ctx context.Context, a asset.Asset, amount *big.Int, opts ...ledger.CallOption) (common.TxHandle, error) {
	h, err := c.ledger.OpenGame(ctx, a, amount, opts...)
	if err != nil {
		return h, err
	}
	c.refreshAfter(ctx, "open_game")
	return h, nil
}

// AcceptGame matches the wager of the open game at index. The settlement is
// logged from the contract's Result event.
func (c *Client) AcceptGame(ctx context.Context, index int, amount *big.Int, opts ...ledger.CallOption) (common.TxHandle, error) {
	c.watchResult(ctx)

	h, err := c.ledger.AcceptGame(ctx, index, amount, opts...)
	if err != nil {
		return h, err
	}
	c.refreshAfter(ctx, "accept_game")
	return h, nil
}

func formatUnits(symbol string, units *big.Int) string {
	if a, err := asset.Lookup(symbol); err == nil {
		return a.FormatAmount(units)
	}
	if units == nil {
		return "0"
	}
	return units.String()
}
