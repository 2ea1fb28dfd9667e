package bridge

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

// Config holds bridge client polling settings
type Config struct {
	ConsensusPollInterval time.Duration
	DepositPollIntervals  map[string]time.Duration // by source chain
}

func (c Config) depositInterval(chain string) time.Duration {
	if d, ok := c.DepositPollIntervals[chain]; ok && d > 0 {
		return d
	}
	return 5 * time.Second
}

// Client creates gateways on the bridge network, observes their funding
// events and drives the consensus leg of their transactions.
type Client struct {
	network  Network
	watchers map[string]common.DepositWatcher
	cfg      Config
	logger   zerolog.Logger

	mu       sync.Mutex
	observed map[string]bool            // gateway IDs with a running Observe
	seen     map[string]map[string]bool // gateway ID -> in handle IDs already turned into transactions
}

// NewClient creates a bridge client. watchers maps source chains to adapters
// that can list deposits.
func NewClient(network Network, watchers map[string]common.DepositWatcher, cfg Config, logger zerolog.Logger) *Client {
	if cfg.ConsensusPollInterval <= 0 {
		cfg.ConsensusPollInterval = 10 * time.Second
	}
	return &Client{
		network:  network,
		watchers: watchers,
		cfg:      cfg,
		logger:   logger.With().Str("component", "bridge_client").Logger(),
		observed: make(map[string]bool),
		seen:     make(map[string]map[string]bool),
	}
}

// CreateGateway validates the route and asks the network for the in-leg
// mechanism: a deposit address for UTXO sources, a funding call for account
// sources, the contract call itself for burns. Fees are snapshotted once here.
func (c *Client) CreateGateway(ctx context.Context, a asset.Asset, src, dst Endpoint) (*Gateway, error) {
	r, ok := matchRoute(a, src, dst)
	if !ok {
		return nil, flipErrors.NewUnsupportedRouteError(a.Symbol, src.String(), dst.String())
	}
	if err := validateEndpoints(r, src, dst); err != nil {
		return nil, err
	}

	gw := &Gateway{
		ID:          uuid.NewString(),
		Asset:       a,
		Direction:   r.direction,
		Source:      src,
		Destination: dst,
		CreatedAt:   time.Now(),
	}

	fees, err := c.network.QueryFees(ctx, gw.Selector())
	if err != nil {
		return nil, flipErrors.NewRPCError(constant.ChainRenVM, "failed to query fees", err)
	}
	gw.Fees = fees

	switch src.Style {
	case StyleDepositAddress, StyleAccount:
		addr, err := c.network.QueryGatewayAddress(ctx, GatewayAddressRequest{
			Selector: gw.Selector(),
			Nonce:    gw.ID,
			To:       dst.Address,
			Method:   dst.Method,
			Holder:   dst.Holder,
			Account:  src.Address,
		})
		if err != nil {
			return nil, flipErrors.NewRPCError(constant.ChainRenVM, "failed to query gateway address", err)
		}
		if src.Style == StyleDepositAddress {
			gw.In = InSetup{Style: StyleDepositAddress, DepositAddress: addr}
		} else {
			gw.In = InSetup{Style: StyleAccount, Call: &FundingCall{Chain: src.Chain, To: addr, Method: "transfer"}}
		}
	case StyleContract:
		gw.In = InSetup{Style: StyleContract, Call: &FundingCall{
			Chain:    src.Chain,
			To:       src.Address,
			Method:   src.Method,
			Data:     src.Data,
			GasLimit: src.Gas,
		}}
	}

	c.logger.Info().
		Str("gateway_id", gw.ID).
		Str("selector", gw.Selector()).
		Str("in_style", gw.In.Style.String()).
		Str("gateway_address", gw.WatchAddress()).
		Str("fee_lock", fees.Lock.String()).
		Str("fee_release", fees.Release.String()).
		Uint64("fee_mint_bps", fees.MintBps).
		Uint64("fee_burn_bps", fees.BurnBps).
		Msg("gateway created")

	return gw, nil
}

func validateEndpoints(r route, src, dst Endpoint) error {
	switch r.direction {
	case DirectionMint:
		if !ethcommon.IsHexAddress(dst.Address) || !ethcommon.IsHexAddress(dst.Holder) {
			return flipErrors.NewValidationError(dst.Chain, "mint destination needs a contract and holder address")
		}
		if src.Style == StyleAccount && src.Address == "" {
			return flipErrors.NewValidationError(src.Chain, "account source needs a funding account")
		}
	case DirectionBurn:
		if !ethcommon.IsHexAddress(src.Address) {
			return flipErrors.NewValidationError(src.Chain, "burn source needs a contract address")
		}
		if len(src.Data) == 0 {
			return flipErrors.NewValidationError(src.Chain, "burn source needs encoded call data")
		}
		if dst.Address == "" {
			return flipErrors.NewValidationError(dst.Chain, "burn destination needs a recipient")
		}
	}
	return nil
}

// Observe streams one transaction per new funding event of gw, with the in
// leg already Submitted. The stream starts polling when called, ends with ctx
// and cannot be restarted for the same gateway.
func (c *Client) Observe(ctx context.Context, gw *Gateway) (<-chan *Transaction, error) {
	watcher, ok := c.watchers[gw.InChain()]
	if !ok || gw.WatchAddress() == "" {
		return nil, fmt.Errorf("gateway %s has no observable source on %s", gw.ID, gw.InChain())
	}

	c.mu.Lock()
	if c.observed[gw.ID] {
		c.mu.Unlock()
		return nil, fmt.Errorf("gateway %s is already observed", gw.ID)
	}
	c.observed[gw.ID] = true
	c.mu.Unlock()

	out := make(chan *Transaction)
	log := c.logger.With().Str("gateway_id", gw.ID).Str("address", gw.WatchAddress()).Logger()

	go func() {
		defer close(out)

		ticker := time.NewTicker(c.cfg.depositInterval(gw.InChain()))
		defer ticker.Stop()

		for {
			deposits, err := watcher.ListDeposits(ctx, gw.WatchAddress())
			if err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("failed to list deposits")
			}
			for _, h := range deposits {
				if !c.markSeen(gw.ID, h) {
					continue
				}
				log.Info().Str("in_tx", h.ID()).Str("amount", gw.Asset.FormatAmount(h.Amount)).Msg("new deposit observed")
				select {
				case out <- NewObservedTransaction(gw, h):
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

// Track records an in handle the caller submitted itself so Observe does not
// emit it as a second transaction.
func (c *Client) Track(gw *Gateway, h common.TxHandle) {
	c.markSeen(gw.ID, h)
}

// markSeen returns false when h was already known for the gateway
func (c *Client) markSeen(gatewayID string, h common.TxHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	handles, ok := c.seen[gatewayID]
	if !ok {
		handles = make(map[string]bool)
		c.seen[gatewayID] = handles
	}
	if handles[h.ID()] {
		return false
	}
	handles[h.ID()] = true
	return true
}

// SubmitConsensus hands the confirmed in leg of tx to the network
func (c *Client) SubmitConsensus(ctx context.Context, tx *Transaction) (common.TxHandle, error) {
	if tx.In.State != LegConfirmed {
		return common.TxHandle{}, flipErrors.NewValidationError(constant.ChainRenVM, "in leg is not confirmed")
	}

	gw := tx.Gateway
	req := ConsensusRequest{
		Selector: gw.Selector(),
		Nonce:    gw.ID,
		InChain:  gw.InChain(),
		InTxHash: tx.In.Handle.Hash,
		InIndex:  tx.In.Handle.Index,
		Amount:   (*hexutil.Big)(tx.Amount),
		To:       gw.Destination.Address,
		Method:   gw.Destination.Method,
		Holder:   gw.Destination.Holder,
	}

	hash, err := c.network.SubmitTx(ctx, req)
	if err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(constant.ChainRenVM, "network rejected transaction", err)
	}

	c.logger.Info().Str("tx_id", tx.ID).Str("consensus_hash", hash).Str("in_tx", tx.In.Handle.ID()).Msg("consensus transaction submitted")
	return common.TxHandle{Chain: constant.ChainRenVM, Hash: hash, Amount: new(big.Int).Set(tx.Amount)}, nil
}

// AwaitConsensus polls the network until the consensus transaction is done or
// reverted. Query failures are logged and polling continues.
func (c *Client) AwaitConsensus(ctx context.Context, h common.TxHandle) (*ConsensusResult, error) {
	log := c.logger.With().Str("consensus_hash", h.Hash).Logger()

	ticker := time.NewTicker(c.cfg.ConsensusPollInterval)
	defer ticker.Stop()

	last := ""
	for {
		status, err := c.network.QueryTx(ctx, h.Hash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msg("failed to query consensus status")
		case status.Status == TxStatusDone:
			return consensusResult(h.Hash, status.Out)
		case status.Status == TxStatusReverted:
			reason := "no reason given"
			if status.Out != nil && status.Out.Revert != "" {
				reason = status.Out.Revert
			}
			return nil, flipErrors.NewChainError(flipErrors.ErrCodeValidation, constant.ChainRenVM,
				"network reverted transaction: "+reason, nil)
		default:
			if status.Status != last {
				last = status.Status
				log.Debug().Str("status", last).Msg("consensus progress")
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func consensusResult(hash string, out *ConsensusOut) (*ConsensusResult, error) {
	if out == nil {
		return nil, flipErrors.NewInternalError(constant.ChainRenVM, "done transaction without output", nil)
	}
	res := &ConsensusResult{
		Hash:        hash,
		Signature:   []byte(out.Signature),
		Amount:      bigOrZero(out.Amount),
		ReleaseTxID: out.TxID,
		ReleaseRaw:  []byte(out.Raw),
	}
	if len(out.NHash) > 0 {
		if len(out.NHash) != 32 {
			return nil, flipErrors.NewInternalError(constant.ChainRenVM, fmt.Sprintf("nhash has %d bytes", len(out.NHash)), nil)
		}
		copy(res.NHash[:], out.NHash)
	}
	return res, nil
}
