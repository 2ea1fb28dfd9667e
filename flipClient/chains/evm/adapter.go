package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

// alreadyKnownPatterns are node responses to a re-broadcast of a known transaction
var alreadyKnownPatterns = []string{
	"already known",
	"known transaction",
}

// Adapter implements common.ChainAdapter for the ethereum chain hosting the ledger
type Adapter struct {
	rpc     *RPCClient
	signer  *Signer
	chainID *big.Int
	poller  *common.ConfirmationPoller
	retry   *common.RetryManager
	logger  zerolog.Logger

	// sendMu serializes nonce allocation and broadcast for the local key
	sendMu sync.Mutex
}

// NewAdapter creates an ethereum adapter. signer may be nil for a read-only adapter.
func NewAdapter(
	rpc *RPCClient,
	signer *Signer,
	chainID int64,
	pollInterval time.Duration,
	retry *common.RetryManager,
	logger zerolog.Logger,
) (*Adapter, error) {
	if rpc == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if retry == nil {
		retry = common.NewRetryManager(nil, logger)
	}
	return &Adapter{
		rpc:     rpc,
		signer:  signer,
		chainID: big.NewInt(chainID),
		poller:  common.NewConfirmationPoller(constant.ChainEthereum, pollInterval, logger),
		retry:   retry,
		logger:  logger.With().Str("component", "evm_adapter").Logger(),
	}, nil
}

// Chain implements common.ChainAdapter
func (a *Adapter) Chain() string {
	return constant.ChainEthereum
}

// RPC exposes the underlying failover client for contract reads and log queries
func (a *Adapter) RPC() *RPCClient {
	return a.rpc
}

// From returns the signing account, or the zero address for a read-only adapter
func (a *Adapter) From() ethcommon.Address {
	if a.signer == nil {
		return ethcommon.Address{}
	}
	return a.signer.Address()
}

// Submit implements common.ChainAdapter
func (a *Adapter) Submit(ctx context.Context, req common.SubmitRequest) (common.TxHandle, error) {
	if err := req.Validate(); err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "invalid submit request", err).
			WithSeverity(flipErrors.SeverityLow)
	}

	if req.Kind == common.SubmitRaw {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(req.Raw); err != nil {
			return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "malformed raw transaction", err)
		}
		return a.broadcast(ctx, tx)
	}

	if a.signer == nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "no signing key configured", nil)
	}
	if !ethcommon.IsHexAddress(req.To) {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), fmt.Sprintf("invalid target address %q", req.To), nil)
	}

	to := ethcommon.HexToAddress(req.To)
	value := new(big.Int)
	var data []byte
	switch req.Kind {
	case common.SubmitTransfer:
		value.Set(req.Amount)
	case common.SubmitContractCall:
		if req.Value != nil {
			value.Set(req.Value)
		}
		data = req.Data
	}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	from := a.signer.Address()
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		estimated, err := a.rpc.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
		if err != nil {
			return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "gas estimation failed", err)
		}
		gasLimit = estimated
	}

	nonce, err := a.rpc.GetPendingNonce(ctx, from)
	if err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "failed to fetch nonce", err)
	}
	gasPrice, err := a.rpc.GetGasPrice(ctx)
	if err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "failed to fetch gas price", err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := a.signer.SignTx(tx, a.chainID)
	if err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "failed to sign transaction", err)
	}

	a.logger.Debug().
		Str("to", to.Hex()).
		Str("value", value.String()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", gasLimit).
		Msg("broadcasting transaction")

	return a.broadcast(ctx, signed)
}

func (a *Adapter) broadcast(ctx context.Context, tx *types.Transaction) (common.TxHandle, error) {
	handle := common.TxHandle{Chain: a.Chain(), Hash: tx.Hash().Hex(), Amount: tx.Value()}

	if err := a.rpc.SendTransaction(ctx, tx); err != nil {
		if isRebroadcast(err) {
			a.logger.Info().Str("tx_hash", handle.Hash).Msg("transaction already known, treating as re-broadcast")
			return handle, nil
		}
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "broadcast rejected", err).
			WithContext("tx_hash", handle.Hash)
	}

	a.logger.Info().Str("tx_hash", handle.Hash).Msg("transaction broadcast")
	return handle, nil
}

func isRebroadcast(err error) bool {
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
	hash := ethcommon.HexToHash(h.Hash)
	return a.poller.Await(ctx, h, n, func(ctx context.Context) (common.TxStatus, error) {
		receipt, err := a.rpc.GetTransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			// no receipt yet; a tx the node still knows is pending, not dropped
			_, _, txErr := a.rpc.GetTransactionByHash(ctx, hash)
			if errors.Is(txErr, ethereum.NotFound) {
				return common.TxStatus{Found: false}, nil
			}
			if txErr != nil {
				return common.TxStatus{}, txErr
			}
			return common.TxStatus{Found: true, Pending: true}, nil
		}
		if err != nil {
			return common.TxStatus{}, err
		}
		if receipt.Status == types.ReceiptStatusFailed {
			return common.TxStatus{Found: true, Reverted: true, BlockNumber: receipt.BlockNumber.Uint64()}, nil
		}

		latest, err := a.rpc.GetLatestBlock(ctx)
		if err != nil {
			return common.TxStatus{}, err
		}
		block := receipt.BlockNumber.Uint64()
		var confirmations uint64
		if latest >= block {
			confirmations = latest - block + 1
		}
		return common.TxStatus{Found: true, Confirmations: confirmations, BlockNumber: block}, nil
	})
}

// ReadBalance implements common.ChainAdapter
func (a *Adapter) ReadBalance(ctx context.Context, address string) (*big.Int, error) {
	if !ethcommon.IsHexAddress(address) {
		return nil, flipErrors.NewValidationError(a.Chain(), fmt.Sprintf("invalid address %q", address))
	}

	var balance *big.Int
	err := a.retry.Read(ctx, a.Chain(), "eth_getBalance", func() error {
		var innerErr error
		balance, innerErr = a.rpc.GetBalance(ctx, ethcommon.HexToAddress(address))
		return innerErr
	})
	return balance, err
}

// ReadAddress implements common.ChainAdapter. An empty identity or "self"
// resolves to the signing account.
func (a *Adapter) ReadAddress(ctx context.Context, identity string) (string, error) {
	if identity == "" || identity == "self" {
		if a.signer == nil {
			return "", flipErrors.NewValidationError(a.Chain(), "no signing key configured")
		}
		return a.signer.Address().Hex(), nil
	}
	if !ethcommon.IsHexAddress(identity) {
		return "", flipErrors.NewValidationError(a.Chain(), fmt.Sprintf("invalid address %q", identity))
	}
	return ethcommon.HexToAddress(identity).Hex(), nil
}
