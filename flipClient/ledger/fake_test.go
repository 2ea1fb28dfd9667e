package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
)

var (
	testAccount = ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")
	otherPlayer = ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeContract executes the Flip contract interface in memory. It serves as
// both Sender and Reader.
type fakeContract struct {
	abi abi.ABI

	mu         sync.Mutex
	games      []gameTuple
	balances   map[ethcommon.Address]balanceTuple
	total      balanceTuple
	btcBalance *big.Int
	native     map[ethcommon.Address]*big.Int

	submits   []common.SubmitRequest
	submitErr error
	callErr   error
	results   []common.ConfirmationResult

	latest  uint64
	logs    []types.Log
	filters int
}

func newFakeContract() *fakeContract {
	parsed, err := ParseABI()
	if err != nil {
		panic(err)
	}
	return &fakeContract{
		abi:        parsed,
		balances:   make(map[ethcommon.Address]balanceTuple),
		total:      balanceTuple{Btc: new(big.Int), Luna: new(big.Int)},
		btcBalance: new(big.Int),
		native:     make(map[ethcommon.Address]*big.Int),
		latest:     10,
	}
}

func (f *fakeContract) From() ethcommon.Address { return testAccount }

func (f *fakeContract) Submit(_ context.Context, req common.SubmitRequest) (common.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if f.submitErr != nil {
		return common.TxHandle{}, f.submitErr
	}

	method, err := f.abi.MethodById(req.Data[:4])
	if err != nil {
		return common.TxHandle{}, err
	}
	args, err := method.Inputs.Unpack(req.Data[4:])
	if err != nil {
		return common.TxHandle{}, err
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	switch method.Name {
	case MethodOpenGame:
		f.games = append(f.games, gameTuple{Initiator: testAccount, Symbol: args[0].(string), Amount: args[1].(*big.Int)})
	case MethodAcceptGame:
		i := int(args[0].(*big.Int).Int64())
		f.games = append(f.games[:i:i], f.games[i+1:]...)
	}
	f.debit(testAccount, value)

	return common.TxHandle{Chain: constant.ChainEthereum, Hash: fmt.Sprintf("0x%064x", len(f.submits)), Amount: value}, nil
}

func (f *fakeContract) debit(who ethcommon.Address, value *big.Int) {
	bal, ok := f.native[who]
	if !ok {
		bal = new(big.Int)
	}
	f.native[who] = new(big.Int).Sub(bal, value)
}

func (f *fakeContract) AwaitConfirmations(_ context.Context, _ common.TxHandle, n uint64) (common.ConfirmationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) > 0 {
		res := f.results[0]
		f.results = f.results[1:]
		return res, nil
	}
	return common.ConfirmationResult{Status: common.StatusConfirmed, Confirmations: n, BlockNumber: f.latest}, nil
}

func (f *fakeContract) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}

	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case MethodGetGames:
		return method.Outputs.Pack(f.games)
	case MethodGetBalance:
		bal, ok := f.balances[args[0].(ethcommon.Address)]
		if !ok {
			bal = balanceTuple{Btc: new(big.Int), Luna: new(big.Int)}
		}
		return method.Outputs.Pack(bal)
	case MethodGetTotalBalance:
		return method.Outputs.Pack(f.total)
	case MethodGetBtcBalance:
		return method.Outputs.Pack(f.btcBalance)
	default:
		return nil, fmt.Errorf("%s is not a read", method.Name)
	}
}

func (f *fakeContract) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters++
	var out []types.Log
	for _, l := range f.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && l.Topics[0] != q.Topics[0][0] {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeContract) GetLatestBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeContract) addGame(initiator ethcommon.Address, symbol string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = append(f.games, gameTuple{Initiator: initiator, Symbol: symbol, Amount: big.NewInt(amount)})
}

func (f *fakeContract) addLog(l types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
}

func (f *fakeContract) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}
