// Package ledger is a typed facade over the Flip escrow contract: balance and
// game reads, the openGame and acceptGame writes, the call encoding used by
// bridge transfers, and one-shot event subscriptions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

// Sender submits and confirms transactions from the local account.
// *evm.Adapter implements it.
type Sender interface {
	Submit(ctx context.Context, req common.SubmitRequest) (common.TxHandle, error)
	AwaitConfirmations(ctx context.Context, h common.TxHandle, n uint64) (common.ConfirmationResult, error)
	From() ethcommon.Address
}

// Reader runs contract reads and log queries. *evm.RPCClient implements it.
type Reader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	GetLatestBlock(ctx context.Context) (uint64, error)
}

// Game is an open game as listed by the contract
type Game struct {
	Index     int      `json:"index"`
	Initiator string   `json:"initiator"`
	Amount    *big.Int `json:"amount"`
	Symbol    string   `json:"symbol"`
}

// Balance is a ledger balance of the bridged assets in smallest units
type Balance struct {
	BTC  *big.Int `json:"btc"`
	LUNA *big.Int `json:"luna"`
}

// Of returns the balance of a bridged asset, zero for anything else
func (b Balance) Of(a asset.Asset) *big.Int {
	switch a.Symbol {
	case asset.BTC.Symbol:
		return orZero(b.BTC)
	case asset.LUNA.Symbol:
		return orZero(b.LUNA)
	default:
		return new(big.Int)
	}
}

// abi tuples; field names follow the component names
type balanceTuple struct {
	Btc  *big.Int
	Luna *big.Int
}

type gameTuple struct {
	Initiator ethcommon.Address
	Amount    *big.Int
	Symbol    string
}

type callOptions struct {
	value    *big.Int
	gasLimit uint64
}

// CallOption customizes a ledger write
type CallOption func(*callOptions)

// WithValue sets the native value attached to the call
func WithValue(v *big.Int) CallOption {
	return func(o *callOptions) { o.value = v }
}

// WithGasLimit overrides gas estimation
func WithGasLimit(limit uint64) CallOption {
	return func(o *callOptions) { o.gasLimit = limit }
}

// Client talks to one deployed Flip contract
type Client struct {
	sender       Sender
	reader       Reader
	contract     ethcommon.Address
	abi          abi.ABI
	pollInterval time.Duration
	logger       zerolog.Logger
}

// NewClient creates a ledger client for the contract at address.
// pollInterval drives event subscriptions.
func NewClient(sender Sender, reader Reader, address string, pollInterval time.Duration, logger zerolog.Logger) (*Client, error) {
	if sender == nil || reader == nil {
		return nil, fmt.Errorf("sender and reader are required")
	}
	if !ethcommon.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Client{
		sender:       sender,
		reader:       reader,
		contract:     ethcommon.HexToAddress(address),
		abi:          parsed,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "ledger_client").Str("contract", address).Logger(),
	}, nil
}

// Contract returns the checksummed contract address
func (c *Client) Contract() string {
	return c.contract.Hex()
}

// Account returns the local account that signs ledger writes
func (c *Client) Account() string {
	return c.sender.From().Hex()
}

// GetOpenGames lists open games in contract order. Index is the position in
// the list, which is what acceptGame expects.
func (c *Client) GetOpenGames(ctx context.Context) ([]Game, error) {
	out, err := c.call(ctx, MethodGetGames)
	if err != nil {
		return nil, err
	}
	tuples := *abi.ConvertType(out[0], new([]gameTuple)).(*[]gameTuple)

	games := make([]Game, len(tuples))
	for i, g := range tuples {
		games[i] = Game{
			Index:     i,
			Initiator: g.Initiator.Hex(),
			Amount:    orZero(g.Amount),
			Symbol:    g.Symbol,
		}
	}
	return games, nil
}

// GetBalance returns the escrowed balance of holder
func (c *Client) GetBalance(ctx context.Context, holder string) (Balance, error) {
	if !ethcommon.IsHexAddress(holder) {
		return Balance{}, flipErrors.NewValidationError(asset.LedgerChain, fmt.Sprintf("invalid holder address %q", holder))
	}
	out, err := c.call(ctx, MethodGetBalance, ethcommon.HexToAddress(holder))
	if err != nil {
		return Balance{}, err
	}
	return toBalance(out[0]), nil
}

// GetTotalBalance returns the escrowed balance of all holders
func (c *Client) GetTotalBalance(ctx context.Context) (Balance, error) {
	out, err := c.call(ctx, MethodGetTotalBalance)
	if err != nil {
		return Balance{}, err
	}
	return toBalance(out[0]), nil
}

// GetContractBTCBalance returns the contract's own BTC accounting
func (c *Client) GetContractBTCBalance(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, MethodGetBtcBalance)
	if err != nil {
		return nil, err
	}
	return orZero(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)), nil
}

// OpenGame opens a game wagering amount of a. For the contract-native asset
// the wager travels as the call value, which must equal amount; bridged
// wagers are taken from the caller's escrow and carry no value.
func (c *Client) OpenGame(ctx context.Context, a asset.Asset, amount *big.Int, opts ...CallOption) (common.TxHandle, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.TxHandle{}, flipErrors.NewLedgerCallError(MethodOpenGame, "amount must be positive", nil)
	}
	value, o, err := wagerValue(MethodOpenGame, a, amount, opts)
	if err != nil {
		return common.TxHandle{}, err
	}
	data, err := c.abi.Pack(MethodOpenGame, a.Symbol, amount)
	if err != nil {
		return common.TxHandle{}, fmt.Errorf("failed to pack %s: %w", MethodOpenGame, err)
	}
	return c.send(ctx, MethodOpenGame, data, value, o.gasLimit)
}

// AcceptGame accepts the open game at index. The wager mirrors the game: amount
// must equal the game amount and is attached as value for the contract-native
// asset. The game list is not touched locally; callers re-read it.
func (c *Client) AcceptGame(ctx context.Context, index int, amount *big.Int, opts ...CallOption) (common.TxHandle, error) {
	games, err := c.GetOpenGames(ctx)
	if err != nil {
		return common.TxHandle{}, err
	}
	if index < 0 || index >= len(games) {
		return common.TxHandle{}, flipErrors.NewLedgerCallError(MethodAcceptGame, fmt.Sprintf("no open game at index %d", index), nil)
	}
	game := games[index]

	a, err := asset.Lookup(game.Symbol)
	if err != nil {
		return common.TxHandle{}, flipErrors.NewLedgerCallError(MethodAcceptGame, err.Error(), nil)
	}
	if amount == nil || amount.Cmp(game.Amount) != 0 {
		return common.TxHandle{}, flipErrors.NewLedgerCallError(MethodAcceptGame,
			fmt.Sprintf("amount %s does not match wager %s", bigString(amount), game.Amount), nil)
	}
	value, o, err := wagerValue(MethodAcceptGame, a, amount, opts)
	if err != nil {
		return common.TxHandle{}, err
	}

	data, err := c.abi.Pack(MethodAcceptGame, big.NewInt(int64(index)))
	if err != nil {
		return common.TxHandle{}, fmt.Errorf("failed to pack %s: %w", MethodAcceptGame, err)
	}
	return c.send(ctx, MethodAcceptGame, data, value, o.gasLimit)
}

// wagerValue resolves the call value of a wager and rejects a mismatched one
func wagerValue(method string, a asset.Asset, amount *big.Int, opts []CallOption) (*big.Int, callOptions, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	if a.Bridged() {
		if o.value != nil && o.value.Sign() != 0 {
			return nil, o, flipErrors.NewLedgerCallError(method,
				fmt.Sprintf("%s wagers carry no value, got %s", a.Symbol, o.value), nil)
		}
		return nil, o, nil
	}

	if o.value == nil {
		return new(big.Int).Set(amount), o, nil
	}
	if o.value.Cmp(amount) != 0 {
		return nil, o, flipErrors.NewLedgerCallError(method,
			fmt.Sprintf("attached value %s does not match amount %s", o.value, amount), nil)
	}
	return new(big.Int).Set(o.value), o, nil
}

// EncodeDeposit builds the depositBTC/depositLUNA call that credits a bridged
// deposit to holder
func (c *Client) EncodeDeposit(a asset.Asset, holder string, amount *big.Int, nHash [32]byte, sig []byte) ([]byte, error) {
	if a.DepositMethod == "" {
		return nil, fmt.Errorf("%s has no deposit method", a.Symbol)
	}
	if !ethcommon.IsHexAddress(holder) {
		return nil, fmt.Errorf("invalid holder address %q", holder)
	}
	return c.abi.Pack(a.DepositMethod, ethcommon.HexToAddress(holder), amount, nHash, sig)
}

// EncodeWithdraw builds the withdraw call that burns amount of a from holder's
// escrow. The recipient travels as the bytes of its address string.
func (c *Client) EncodeWithdraw(a asset.Asset, holder, to string, amount *big.Int) ([]byte, error) {
	if !a.Bridged() {
		return nil, fmt.Errorf("%s cannot be withdrawn through the bridge", a.Symbol)
	}
	if !ethcommon.IsHexAddress(holder) {
		return nil, fmt.Errorf("invalid holder address %q", holder)
	}
	if to == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	return c.abi.Pack(MethodWithdraw, a.Symbol, ethcommon.HexToAddress(holder), []byte(to), amount)
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := c.reader.CallContract(ctx, ethereum.CallMsg{From: c.sender.From(), To: &c.contract, Data: data}, nil)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, flipErrors.NewLedgerCallError(method, reason, err)
		}
		return nil, flipErrors.NewReadError(asset.LedgerChain, method+" failed", err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, flipErrors.NewReadError(asset.LedgerChain, "failed to decode "+method, err)
	}
	if len(out) == 0 {
		return nil, flipErrors.NewReadError(asset.LedgerChain, method+" returned nothing", nil)
	}
	return out, nil
}

// send submits a contract write and waits for it to be mined. Reverts, either
// at estimation or on chain, become LedgerCallError; there are no retries.
func (c *Client) send(ctx context.Context, method string, data []byte, value *big.Int, gasLimit uint64) (common.TxHandle, error) {
	h, err := c.sender.Submit(ctx, common.CallRequest(c.contract.Hex(), data, value, gasLimit))
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return common.TxHandle{}, flipErrors.NewLedgerCallError(method, reason, err)
		}
		return common.TxHandle{}, err
	}

	res, err := c.sender.AwaitConfirmations(ctx, h, asset.LedgerConfirmations)
	if err != nil {
		return h, err
	}
	if !res.Confirmed() {
		return h, flipErrors.NewLedgerCallError(method, "", nil).
			WithContext("tx_hash", h.Hash).
			WithContext("status", res.Reason)
	}

	c.logger.Info().
		Str("method", method).
		Str("tx_hash", h.Hash).
		Str("value", bigString(value)).
		Uint64("block", res.BlockNumber).
		Msg("ledger call mined")
	return h, nil
}

// revertReason reports whether err is an execution revert and decodes its
// reason when the node returned one
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
			return "", true
		}
	}

	const marker = "execution reverted"
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	reason := strings.TrimSpace(msg[i+len(marker):])
	reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
	return reason, true
}

func toBalance(v interface{}) Balance {
	t := *abi.ConvertType(v, new(balanceTuple)).(*balanceTuple)
	return Balance{BTC: orZero(t.Btc), LUNA: orZero(t.Luna)}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
