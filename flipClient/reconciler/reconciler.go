// Package reconciler rebuilds the user and contract balance snapshots from
// chain and ledger reads. It keeps no state of its own: every refresh reads
// everything again and publishes a complete pair.
package reconciler

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
)

// NativeReader reads contract-native balances on the ledger chain
type NativeReader interface {
	ReadBalance(ctx context.Context, address string) (*big.Int, error)
}

// LedgerReader reads escrowed balances from the ledger contract
type LedgerReader interface {
	GetBalance(ctx context.Context, holder string) (ledger.Balance, error)
	GetTotalBalance(ctx context.Context) (ledger.Balance, error)
}

// Reconciler refreshes the balance snapshots of one user and one contract
type Reconciler struct {
	native   NativeReader
	ledger   LedgerReader
	user     string
	contract string
	cache    *cache.Cache
	observe  func(time.Duration, error)
	logger   zerolog.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithObserver is called after every refresh with its duration and result
func WithObserver(fn func(time.Duration, error)) Option {
	return func(r *Reconciler) { r.observe = fn }
}

// New creates a reconciler publishing into c
func New(native NativeReader, l LedgerReader, user, contract string, c *cache.Cache, logger zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		native:   native,
		ledger:   l,
		user:     user,
		contract: contract,
		cache:    c,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh reads all balances in parallel and replaces both snapshots. On any
// read error nothing is published and the error is returned unchanged.
func (r *Reconciler) Refresh(ctx context.Context) (user, contract cache.Snapshot, err error) {
	start := time.Now()
	defer func() {
		if r.observe != nil {
			r.observe(time.Since(start), err)
		}
	}()

	var (
		userNative, contractNative *big.Int
		userLedger, totalLedger    ledger.Balance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		userNative, err = r.native.ReadBalance(gctx, r.user)
		return err
	})
	g.Go(func() error {
		var err error
		contractNative, err = r.native.ReadBalance(gctx, r.contract)
		return err
	})
	g.Go(func() error {
		var err error
		userLedger, err = r.ledger.GetBalance(gctx, r.user)
		return err
	})
	g.Go(func() error {
		var err error
		totalLedger, err = r.ledger.GetTotalBalance(gctx)
		return err
	})
	if err = g.Wait(); err != nil {
		r.logger.Warn().Err(err).Msg("balance refresh failed, keeping previous snapshots")
		return cache.Snapshot{}, cache.Snapshot{}, err
	}

	now := time.Now()
	user = snapshot(constant.HolderUser, r.user, userNative, userLedger, now)
	contract = snapshot(constant.HolderContract, r.contract, contractNative, totalLedger, now)
	if r.cache != nil {
		r.cache.ReplaceBalances(user, contract)
	}

	r.logger.Debug().
		Str("user_eth", user.Of(asset.ETH.Symbol).String()).
		Str("user_btc", user.Of(asset.BTC.Symbol).String()).
		Str("user_luna", user.Of(asset.LUNA.Symbol).String()).
		Str("contract_eth", contract.Of(asset.ETH.Symbol).String()).
		Dur("took", time.Since(start)).
		Msg("balances refreshed")
	return user, contract, nil
}

func snapshot(holder, address string, native *big.Int, escrow ledger.Balance, at time.Time) cache.Snapshot {
	balances := make(map[string]*big.Int, len(asset.All()))
	for _, a := range asset.All() {
		if a.Bridged() {
			balances[a.Symbol] = escrow.Of(a)
			continue
		}
		v := new(big.Int)
		if native != nil {
			v.Set(native)
		}
		balances[a.Symbol] = v
	}
	return cache.Snapshot{Holder: holder, Address: address, Balances: balances, TakenAt: at}
}
