package core

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/pipeline"
)

const (
	testContract = constant.DefaultContractAddress
	testUser     = "0x1111111111111111111111111111111111111111"
	testTerra    = "terra1localkey"
)

var errSubscriptionsOff = errors.New("subscriptions unavailable")

type gatewayCall struct {
	asset asset.Asset
	src   bridge.Endpoint
	dst   bridge.Endpoint
}

type fakeBridge struct {
	calls    []gatewayCall
	err      error
	observed chan *bridge.Transaction
}

func (f *fakeBridge) CreateGateway(_ context.Context, a asset.Asset, src, dst bridge.Endpoint) (*bridge.Gateway, error) {
	f.calls = append(f.calls, gatewayCall{asset: a, src: src, dst: dst})
	if f.err != nil {
		return nil, f.err
	}
	gw := &bridge.Gateway{ID: "gw-1", Asset: a, Source: src, Destination: dst}
	if src.Style == bridge.StyleDepositAddress {
		gw.In = bridge.InSetup{Style: bridge.StyleDepositAddress, DepositAddress: "tb1qgateway"}
	}
	return gw, nil
}

func (f *fakeBridge) Observe(_ context.Context, gw *bridge.Gateway) (<-chan *bridge.Transaction, error) {
	if f.observed == nil {
		return nil, errors.New("nothing to observe")
	}
	return f.observed, nil
}

type fakeRunner struct {
	runs    []*bridge.Transaction
	retries []*bridge.Transaction
	outcome pipeline.Outcome
	err     error
}

func (f *fakeRunner) Run(_ context.Context, tx *bridge.Transaction) (pipeline.Outcome, error) {
	f.runs = append(f.runs, tx)
	o := f.outcome
	o.TxID = tx.ID
	return o, f.err
}

func (f *fakeRunner) Retry(_ context.Context, tx *bridge.Transaction) (pipeline.Outcome, error) {
	f.retries = append(f.retries, tx)
	o := f.outcome
	o.TxID = tx.ID
	return o, f.err
}

type fakeLedger struct {
	mu         sync.Mutex
	games      []ledger.Game
	gamesErr   error
	gameReads  int
	opened     []*big.Int
	accepted   []int
	callErr    error
	withdraws  []string
	resultArms int

	// events serves subscriptions when set
	events *ledger.Client
}

func (f *fakeLedger) Contract() string { return testContract }
func (f *fakeLedger) Account() string  { return testUser }

func (f *fakeLedger) GetOpenGames(context.Context) ([]ledger.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameReads++
	if f.gamesErr != nil {
		return nil, f.gamesErr
	}
	return append([]ledger.Game(nil), f.games...), nil
}

func (f *fakeLedger) GetContractBTCBalance(context.Context) (*big.Int, error) {
	return big.NewInt(150_000_000), nil
}

func (f *fakeLedger) OpenGame(_ context.Context, a asset.Asset, amount *big.Int, _ ...ledger.CallOption) (common.TxHandle, error) {
	if f.callErr != nil {
		return common.TxHandle{}, f.callErr
	}
	f.opened = append(f.opened, amount)
	f.mu.Lock()
	f.games = append(f.games, ledger.Game{Index: len(f.games), Initiator: testUser, Amount: amount, Symbol: a.Symbol})
	f.mu.Unlock()
	return common.TxHandle{Chain: constant.ChainEthereum, Hash: "0xopen"}, nil
}

func (f *fakeLedger) AcceptGame(_ context.Context, index int, _ *big.Int, _ ...ledger.CallOption) (common.TxHandle, error) {
	if f.callErr != nil {
		return common.TxHandle{}, f.callErr
	}
	f.accepted = append(f.accepted, index)
	return common.TxHandle{Chain: constant.ChainEthereum, Hash: "0xaccept"}, nil
}

func (f *fakeLedger) EncodeWithdraw(a asset.Asset, holder, to string, amount *big.Int) ([]byte, error) {
	f.withdraws = append(f.withdraws, to)
	return []byte("withdraw:" + a.Symbol + ":" + to + ":" + amount.String()), nil
}

func (f *fakeLedger) OnNextDeposit(context.Context, func(ledger.DepositEvent)) (*ledger.Subscription, error) {
	return nil, errSubscriptionsOff
}

func (f *fakeLedger) OnNextResult(ctx context.Context, cb func(ledger.ResultEvent)) (*ledger.Subscription, error) {
	f.resultArms++
	if f.events != nil {
		return f.events.OnNextResult(ctx, cb)
	}
	return nil, errSubscriptionsOff
}

// quietChain is a ledger backend on which no event is ever emitted
type quietChain struct{}

func (quietChain) Submit(context.Context, common.SubmitRequest) (common.TxHandle, error) {
	return common.TxHandle{}, errors.New("read only")
}

func (quietChain) AwaitConfirmations(context.Context, common.TxHandle, uint64) (common.ConfirmationResult, error) {
	return common.ConfirmationResult{}, errors.New("read only")
}

func (quietChain) From() ethcommon.Address { return ethcommon.HexToAddress(testUser) }

func (quietChain) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (quietChain) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (quietChain) GetLatestBlock(context.Context) (uint64, error) { return 100, nil }

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) (cache.Snapshot, cache.Snapshot, error) {
	f.calls++
	return cache.Snapshot{}, cache.Snapshot{}, f.err
}
