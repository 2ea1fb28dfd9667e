package terra

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	cmttypes "github.com/cometbft/cometbft/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

const (
	// Bech32Prefix is the account address prefix on Terra
	Bech32Prefix = "terra"

	// Denom is the smallest unit of LUNA
	Denom = "uluna"
)

// Signer builds and signs bank transfers for one Terra account.
// The adapter never holds key material itself.
type Signer interface {
	// Address returns the bech32 account address of the signer
	Address() string

	// SignTransfer returns the encoded signed tx sending amount to the recipient
	SignTransfer(ctx context.Context, to string, amount sdk.Coins, memo string) ([]byte, error)
}

// Adapter implements common.ChainAdapter and common.DepositWatcher for Terra
type Adapter struct {
	client *Client
	signer Signer
	poller *common.ConfirmationPoller
	retry  *common.RetryManager
	logger zerolog.Logger
}

// NewAdapter creates a Terra adapter. signer may be nil for a read-only adapter.
func NewAdapter(client *Client, signer Signer, pollInterval time.Duration, retry *common.RetryManager, logger zerolog.Logger) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("terra client is required")
	}
	if retry == nil {
		retry = common.NewRetryManager(nil, logger)
	}
	return &Adapter{
		client: client,
		signer: signer,
		poller: common.NewConfirmationPoller(constant.ChainTerra, pollInterval, logger),
		retry:  retry,
		logger: logger.With().Str("component", "terra_adapter").Logger(),
	}, nil
}

// Chain implements common.ChainAdapter
func (a *Adapter) Chain() string {
	return constant.ChainTerra
}

// Submit implements common.ChainAdapter
func (a *Adapter) Submit(ctx context.Context, req common.SubmitRequest) (common.TxHandle, error) {
	if err := req.Validate(); err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "invalid submit request", err).
			WithSeverity(flipErrors.SeverityLow)
	}

	switch req.Kind {
	case common.SubmitTransfer:
		if a.signer == nil {
			return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "no signer configured", nil)
		}
		to, err := NormalizeAddress(req.To)
		if err != nil {
			return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "invalid recipient", err)
		}
		coins := sdk.NewCoins(sdk.NewCoin(Denom, sdkmath.NewIntFromBigInt(req.Amount)))
		txBytes, err := a.signer.SignTransfer(ctx, to, coins, req.Memo)
		if err != nil {
			return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "failed to sign transfer", err)
		}
		h, err := a.broadcast(ctx, txBytes)
		if err != nil {
			return h, err
		}
		h.Amount = new(big.Int).Set(req.Amount)
		return h, nil
	case common.SubmitRaw:
		return a.broadcast(ctx, req.Raw)
	default:
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(),
			fmt.Sprintf("%s submissions are not supported on terra", req.Kind), nil)
	}
}

func (a *Adapter) broadcast(ctx context.Context, txBytes []byte) (common.TxHandle, error) {
	handle := common.TxHandle{Chain: a.Chain(), Hash: fmt.Sprintf("%X", cmttypes.Tx(txBytes).Hash())}

	resp, err := a.client.BroadcastTx(ctx, txBytes)
	if err != nil {
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "broadcast failed", err).
			WithContext("tx_hash", handle.Hash)
	}
	if resp.TxHash != "" {
		handle.Hash = resp.TxHash
	}

	switch {
	case resp.Code == 0:
		a.logger.Info().Str("tx_hash", handle.Hash).Msg("transaction broadcast")
	case isAlreadyKnown(resp):
		a.logger.Info().Str("tx_hash", handle.Hash).Msg("transaction already known, treating as re-broadcast")
	default:
		return common.TxHandle{}, flipErrors.NewSubmissionError(a.Chain(), "broadcast rejected",
			fmt.Errorf("code %d (%s): %s", resp.Code, resp.Codespace, resp.RawLog)).
			WithContext("tx_hash", handle.Hash)
	}
	return handle, nil
}

func isAlreadyKnown(resp *sdk.TxResponse) bool {
	if resp.Codespace == sdkerrors.ErrTxInMempoolCache.Codespace() && resp.Code == sdkerrors.ErrTxInMempoolCache.ABCICode() {
		return true
	}
	return strings.Contains(strings.ToLower(resp.RawLog), "tx already exists in cache")
}

// AwaitConfirmations implements common.ChainAdapter
func (a *Adapter) AwaitConfirmations(ctx context.Context, h common.TxHandle, n uint64) (common.ConfirmationResult, error) {
	return a.poller.Await(ctx, h, n, func(ctx context.Context) (common.TxStatus, error) {
		resp, err := a.client.GetTx(ctx, h.Hash)
		if status.Code(err) == codes.NotFound {
			return common.TxStatus{Found: false}, nil
		}
		if err != nil {
			return common.TxStatus{}, err
		}
		height := uint64(resp.Height)
		if resp.Code != 0 {
			return common.TxStatus{Found: true, Reverted: true, BlockNumber: height}, nil
		}

		latest, err := a.client.GetLatestBlockNum(ctx)
		if err != nil {
			return common.TxStatus{}, err
		}
		var confirmations uint64
		if latest >= height {
			confirmations = latest - height + 1
		}
		return common.TxStatus{Found: true, Confirmations: confirmations, BlockNumber: height}, nil
	})
}

// ListDeposits implements common.DepositWatcher: successful transactions with
// a bank transfer of LUNA to address, oldest first.
func (a *Adapter) ListDeposits(ctx context.Context, address string) ([]common.TxHandle, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, flipErrors.NewValidationError(a.Chain(), err.Error())
	}

	var txs []*sdk.TxResponse
	err = a.retry.Read(ctx, a.Chain(), "GetTxsEvent", func() error {
		var innerErr error
		txs, innerErr = a.client.GetTxsByEvents(ctx, []string{fmt.Sprintf("transfer.recipient='%s'", addr)}, 0)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	handles := make([]common.TxHandle, 0, len(txs))
	for _, txr := range txs {
		if txr == nil || txr.Code != 0 {
			continue
		}
		amount := receivedAmount(txr, addr)
		if amount.Sign() == 0 {
			continue
		}
		handles = append(handles, common.TxHandle{Chain: a.Chain(), Hash: txr.TxHash, Amount: amount})
	}
	return handles, nil
}

// receivedAmount sums the LUNA transferred to recipient in one transaction
func receivedAmount(txr *sdk.TxResponse, recipient string) *big.Int {
	total := new(big.Int)
	for _, ev := range txr.Events {
		if ev.Type != banktypes.EventTypeTransfer {
			continue
		}
		var to, amount string
		for _, attr := range ev.Attributes {
			switch attr.Key {
			case banktypes.AttributeKeyRecipient:
				to = attr.Value
			case sdk.AttributeKeyAmount:
				amount = attr.Value
			}
		}
		if to != recipient || amount == "" {
			continue
		}
		coins, err := sdk.ParseCoinsNormalized(amount)
		if err != nil {
			continue
		}
		total.Add(total, coins.AmountOf(Denom).BigInt())
	}
	return total
}

// ReadBalance implements common.ChainAdapter
func (a *Adapter) ReadBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, flipErrors.NewValidationError(a.Chain(), err.Error())
	}

	var balance *big.Int
	err = a.retry.Read(ctx, a.Chain(), "Balance", func() error {
		var innerErr error
		balance, innerErr = a.client.GetBalance(ctx, addr, Denom)
		return innerErr
	})
	return balance, err
}

// ReadAddress implements common.ChainAdapter. An empty identity resolves to
// the signer's account.
func (a *Adapter) ReadAddress(_ context.Context, identity string) (string, error) {
	if identity == "" {
		if a.signer == nil {
			return "", flipErrors.NewValidationError(a.Chain(), "no signer configured")
		}
		identity = a.signer.Address()
	}
	addr, err := NormalizeAddress(identity)
	if err != nil {
		return "", flipErrors.NewValidationError(a.Chain(), err.Error())
	}
	return addr, nil
}

// NormalizeAddress validates a bech32 account address under the terra prefix
// and returns its canonical (lower case) form.
func NormalizeAddress(addr string) (string, error) {
	bz, err := sdk.GetFromBech32(strings.ToLower(strings.TrimSpace(addr)), Bech32Prefix)
	if err != nil {
		return "", fmt.Errorf("invalid terra address %q: %w", addr, err)
	}
	if err := sdk.VerifyAddressFormat(bz); err != nil {
		return "", fmt.Errorf("invalid terra address %q: %w", addr, err)
	}
	return sdk.Bech32ifyAddressBytes(Bech32Prefix, bz)
}
