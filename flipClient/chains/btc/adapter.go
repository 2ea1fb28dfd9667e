package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

const watchLabel = "flip-gateway"

// duplicate broadcast responses from bitcoind
var alreadyKnownPatterns = []string{
	"txn-already-in-mempool",
	"txn-already-known",
	"transaction already in block chain",
}

// NetParams maps a configured network name to bitcoin chain parameters
func NetParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "", "testnet", "testnet3", "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network %q", network)
	}
}

// Adapter implements common.ChainAdapter and common.DepositWatcher for bitcoin.
// Transfers are funded from the bitcoind wallet.
type Adapter struct {
	rpc    *RPCClient
	params *chaincfg.Params
	poller *common.ConfirmationPoller
	retry  *common.RetryManager
	logger zerolog.Logger

	watchedMu sync.Mutex
	watched   map[string]bool
}

// NewAdapter creates a bitcoin adapter
func NewAdapter(
	rpc *RPCClient,
	params *chaincfg.Params,
	pollInterval time.Duration,
	retry *common.RetryManager,
	logger zerolog.Logger,
) (*Adapter, error) {
	if rpc == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if params == nil {
		params = &chaincfg.TestNet3Params
	}
	if retry == nil {
		retry = common.NewRetryManager(nil, logger)
	}
	return &Adapter{
		rpc:     rpc,
		params:  params,
		poller:  common.NewConfirmationPoller(constant.ChainBitcoin, pollInterval, logger),
		retry:   retry,
		logger:  logger.With().Str("component", "btc_adapter").Logger(),
		watched: make(map[string]bool),
	}, nil
}

// Chain implements common.ChainAdapter
func (a *Adapter) Chain() string {
	return constant.ChainBitcoin
}

// Submit implements common.ChainAdapter
func (a *Adapter) Submit(ctx context.Context, req common.SubmitRequest) (common.TxHandle, error) {
	if err := req.Validate(); err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "invalid submit request", err).
			WithSeverity(flipErrors.SeverityLow)
	}

	switch req.Kind {
	case common.SubmitTransfer:
		return a.sendToAddress(ctx, req)
	case common.SubmitRaw:
		return a.sendRaw(ctx, req.Raw)
	default:
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(),
			fmt.Sprintf("%s submissions are not supported on bitcoin", req.Kind), nil)
	}
}

func (a *Adapter) sendToAddress(ctx context.Context, req common.SubmitRequest) (common.TxHandle, error) {
	to, err := a.decodeAddress(req.To)
	if err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "invalid recipient", err)
	}

	amount := json.Number(asset.BTC.FormatAmount(req.Amount))
	var txid string
	if err := a.rpc.call(ctx, &txid, "sendtoaddress", to, amount); err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "sendtoaddress rejected", err).
			WithContext("to", to)
	}

	a.logger.Info().Str("tx_hash", txid).Str("to", to).Str("amount", string(amount)).Msg("transfer broadcast")
	return common.TxHandle{Chain: a.Chain(), Hash: txid, Amount: new(big.Int).Set(req.Amount)}, nil
}

func (a *Adapter) sendRaw(ctx context.Context, raw []byte) (common.TxHandle, error) {
	var msg wire.MsgTx
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "malformed raw transaction", err)
	}
	handle := common.TxHandle{Chain: a.Chain(), Hash: msg.TxHash().String()}

	var txid string
	err := a.rpc.call(ctx, &txid, "sendrawtransaction", hex.EncodeToString(raw))
	if err != nil {
		if isRebroadcast(err) {
			a.logger.Info().Str("tx_hash", handle.Hash).Msg("transaction already known, treating as re-broadcast")
			return handle, nil
		}
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "sendrawtransaction rejected", err).
			WithContext("tx_hash", handle.Hash)
	}

	a.logger.Info().Str("tx_hash", txid).Msg("raw transaction broadcast")
	handle.Hash = txid
	return handle, nil
}

func isRebroadcast(err error) bool {
	if btcErr, ok := asBitcoindError(err); ok && btcErr.Code == rpcVerifyAlreadyInChain {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range alreadyKnownPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// AwaitConfirmations implements common.ChainAdapter
func (a *Adapter) AwaitConfirmations(ctx context.Context, h common.TxHandle, n uint64) (common.ConfirmationResult, error) {
	return a.poller.Await(ctx, h, n, func(ctx context.Context) (common.TxStatus, error) {
		return a.txStatus(ctx, h.Hash)
	})
}

// txStatus prefers the wallet view and falls back to the node's transaction
// index for transactions the wallet does not know.
func (a *Adapter) txStatus(ctx context.Context, txid string) (common.TxStatus, error) {
	var wtx walletTransaction
	err := a.rpc.call(ctx, &wtx, "gettransaction", txid, true)
	if err == nil {
		return statusFromConfirmations(wtx.Confirmations, wtx.BlockHeight), nil
	}
	if !isUnknownTx(err) {
		return common.TxStatus{}, err
	}

	var rtx rawTransaction
	err = a.rpc.call(ctx, &rtx, "getrawtransaction", txid, true)
	if err != nil {
		if isUnknownTx(err) {
			return common.TxStatus{Found: false}, nil
		}
		return common.TxStatus{}, err
	}
	return statusFromConfirmations(rtx.Confirmations, 0), nil
}

// statusFromConfirmations maps bitcoind confirmations. Negative values mean the
// transaction conflicts with the best chain.
func statusFromConfirmations(confs int64, height uint64) common.TxStatus {
	if confs < 0 {
		return common.TxStatus{Found: false}
	}
	return common.TxStatus{Found: true, Pending: confs == 0, Confirmations: uint64(confs), BlockNumber: height}
}

func isUnknownTx(err error) bool {
	btcErr, ok := asBitcoindError(err)
	return ok && btcErr.Code == rpcInvalidAddressOrKey
}

// ListDeposits implements common.DepositWatcher. The address is imported into
// the wallet as watch-only on first use.
func (a *Adapter) ListDeposits(ctx context.Context, address string) ([]common.TxHandle, error) {
	addr, err := a.decodeAddress(address)
	if err != nil {
		return nil, flipErrors.NewValidationError(a.Chain(), err.Error())
	}
	a.watch(ctx, addr)

	utxos, err := a.listUnspent(ctx, addr)
	if err != nil {
		return nil, err
	}

	handles := make([]common.TxHandle, 0, len(utxos))
	for _, u := range utxos {
		handles = append(handles, common.TxHandle{
			Chain:  a.Chain(),
			Hash:   u.TxID,
			Index:  u.Vout,
			Amount: toSatoshis(u.Amount),
		})
	}
	return handles, nil
}

func (a *Adapter) watch(ctx context.Context, addr string) {
	a.watchedMu.Lock()
	defer a.watchedMu.Unlock()

	if a.watched[addr] {
		return
	}
	if err := a.rpc.call(ctx, nil, "importaddress", addr, watchLabel, false); err != nil {
		// descriptor wallets reject importaddress; listunspent still works when
		// the address was imported out of band
		a.logger.Warn().Err(err).Str("address", addr).Msg("failed to import watch-only address")
	}
	a.watched[addr] = true
}

// listUnspent returns outputs paying addr, oldest first
func (a *Adapter) listUnspent(ctx context.Context, addr string) ([]unspentOutput, error) {
	var utxos []unspentOutput
	err := a.retry.Read(ctx, a.Chain(), "listunspent", func() error {
		return a.rpc.call(ctx, &utxos, "listunspent", 0, 9999999, []string{addr}, true)
	})
	if err != nil {
		return nil, err
	}

	// listunspent has no defined order; more confirmations means older
	sort.SliceStable(utxos, func(i, j int) bool {
		return utxos[i].Confirmations > utxos[j].Confirmations
	})
	return utxos, nil
}

// ReadBalance implements common.ChainAdapter as the sum of unspent outputs
// paying address, including unconfirmed ones.
func (a *Adapter) ReadBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := a.decodeAddress(address)
	if err != nil {
		return nil, flipErrors.NewValidationError(a.Chain(), err.Error())
	}

	utxos, err := a.listUnspent(ctx, addr)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, u := range utxos {
		total = total.Add(u.Amount)
	}
	return toSatoshis(total), nil
}

// ReadAddress implements common.ChainAdapter. An empty identity asks the
// wallet for a fresh receiving address.
func (a *Adapter) ReadAddress(ctx context.Context, identity string) (string, error) {
	if identity != "" {
		addr, err := a.decodeAddress(identity)
		if err != nil {
			return "", flipErrors.NewValidationError(a.Chain(), err.Error())
		}
		return addr, nil
	}

	var fresh string
	err := a.retry.Read(ctx, a.Chain(), "getnewaddress", func() error {
		return a.rpc.call(ctx, &fresh, "getnewaddress", watchLabel)
	})
	if err != nil {
		return "", err
	}
	return a.decodeAddress(fresh)
}

// decodeAddress validates addr for the configured network and returns its
// canonical encoding
func (a *Adapter) decodeAddress(addr string) (string, error) {
	decoded, err := btcutil.DecodeAddress(addr, a.params)
	if err != nil {
		return "", fmt.Errorf("invalid bitcoin address %q: %w", addr, err)
	}
	if !decoded.IsForNet(a.params) {
		return "", fmt.Errorf("address %q is not for %s", addr, a.params.Name)
	}
	return decoded.EncodeAddress(), nil
}

func toSatoshis(btc decimal.Decimal) *big.Int {
	return btc.Shift(asset.BTC.Decimals).Round(0).BigInt()
}
