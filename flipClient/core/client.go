// Package core wires the chain adapters, the bridge client, the transfer
// pipeline and the ledger client into the flipd client.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/config"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/transferstore"
)

// Client is the flipd client. Every mutating operation ends with a refresh
// of the open games and both balance snapshots.
type Client struct {
	cfg        *config.Config
	log        zerolog.Logger
	bridge     GatewayCreator
	runner     TransferRunner
	ledger     GameLedger
	reconciler BalanceRefresher
	cache      *cache.Cache
	journal    *transferstore.Store

	user         string // ledger holder
	terraAccount string // funding account of the local terra key, "" without one
	closers      []func() error

	mu   sync.Mutex
	txs  map[string]*bridge.Transaction
	subs []*ledger.Subscription
	wg   sync.WaitGroup
}

// components are the dependencies of a Client
type components struct {
	bridge       GatewayCreator
	runner       TransferRunner
	ledger       GameLedger
	reconciler   BalanceRefresher
	cache        *cache.Cache
	journal      *transferstore.Store
	user         string
	terraAccount string
	closers      []func() error
}

func newClient(cfg *config.Config, log zerolog.Logger, c components) *Client {
	return &Client{
		cfg:          cfg,
		log:          log.With().Str("component", "flip_client").Logger(),
		bridge:       c.bridge,
		runner:       c.runner,
		ledger:       c.ledger,
		reconciler:   c.reconciler,
		cache:        c.cache,
		journal:      c.journal,
		user:         c.user,
		terraAccount: c.terraAccount,
		closers:      c.closers,
		txs:          make(map[string]*bridge.Transaction),
	}
}

// User returns the ledger holder whose balances are reconciled
func (c *Client) User() string {
	return c.user
}

// Start arms the Deposit subscription, logs the contract's BTC balance and
// refreshes games and balances every interval until ctx ends.
func (c *Client) Start(ctx context.Context, interval time.Duration) error {
	c.log.Info().
		Str("contract", c.ledger.Contract()).
		Str("user", c.user).
		Msg("starting flip client")

	if btcBalance, err := c.ledger.GetContractBTCBalance(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to read contract btc balance")
	} else {
		c.log.Info().Str("btc", asset.BTC.FormatAmount(btcBalance)).Msg("contract btc balance")
	}

	c.watchDeposits(ctx)

	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("initial refresh failed")
	}

	if interval <= 0 {
		return nil
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("periodic refresh failed")
				}
			}
		}
	}()
	return nil
}

// Stop closes every subscription and connection. The context given to Start
// must be cancelled first.
func (c *Client) Stop() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	c.wg.Wait()

	var firstErr error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.log.Info().Msg("flip client stopped")
	return firstErr
}

// Refresh re-reads the open games and both balance snapshots. A failed read
// keeps the previous value of what it would have replaced.
func (c *Client) Refresh(ctx context.Context) error {
	var firstErr error
	games, err := c.ledger.GetOpenGames(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to read open games, keeping previous list")
		firstErr = err
	} else {
		c.cache.ReplaceGames(games)
	}

	if _, _, err := c.reconciler.Refresh(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *Client) refreshAfter(ctx context.Context, op string) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Str("operation", op).Msg("refresh after operation failed")
	}
}

// watchDeposits logs every Deposit event of the contract
func (c *Client) watchDeposits(ctx context.Context) {
	fired := make(chan ledger.DepositEvent, 1)
	sub, err := c.ledger.OnNextDeposit(ctx, func(ev ledger.DepositEvent) {
		fired <- ev
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to arm deposit subscription")
		return
	}
	c.track(sub)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.untrack(sub)
			sub.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case ev := <-fired:
				c.log.Info().
					Str("holder", ev.Holder).
					Str("symbol", ev.Symbol).
					Str("amount", formatUnits(ev.Symbol, ev.Amount)).
					Str("tx_hash", ev.TxHash).
					Msg("deposit credited")
				if err := sub.Rearm(ctx); err != nil && ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("failed to re-arm deposit subscription")
				}
			}
		}
	}()
}

// watchResult logs the next Result event. The subscription is closed once the
// first event fires or once ctx ends.
func (c *Client) watchResult(ctx context.Context) {
	fired := make(chan ledger.ResultEvent, 1)
	sub, err := c.ledger.OnNextResult(ctx, func(ev ledger.ResultEvent) {
		fired <- ev
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to arm result subscription")
		return
	}
	c.track(sub)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.untrack(sub)
			sub.Close()
		}()
		select {
		case <-ctx.Done():
		case <-sub.Done():
		case ev := <-fired:
			c.log.Info().
				Str("game", ev.GameIndex.String()).
				Str("winner", ev.Winner).
				Str("symbol", ev.Symbol).
				Str("amount", formatUnits(ev.Symbol, ev.Amount)).
				Str("tx_hash", ev.TxHash).
				Msg("game settled")
		}
	}()
}

func (c *Client) track(sub *ledger.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, sub)
}

func (c *Client) untrack(sub *ledger.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}
