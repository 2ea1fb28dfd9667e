package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
)

const (
	testContract = "0x698D11acAbB319e9FC9b1c9fA0768cED2B08d998"
	testHolder   = "0x1111111111111111111111111111111111111111"
)

// recorder keeps the global order of calls across fakes
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type awaitCall struct {
	handle   common.TxHandle
	required uint64
}

type fakeAdapter struct {
	chain string
	rec   *recorder

	mu          sync.Mutex
	submitErrs  []error // consumed one per Submit
	submits     []common.SubmitRequest
	results     []common.ConfirmationResult // consumed one per wait, confirmed when empty
	blockAwaits int                         // waits that block until ctx ends
	started     chan struct{}
	awaits      []awaitCall
}

func newFakeAdapter(chain string, rec *recorder) *fakeAdapter {
	return &fakeAdapter{chain: chain, rec: rec, started: make(chan struct{}, 8)}
}

func (f *fakeAdapter) Chain() string { return f.chain }

func (f *fakeAdapter) Submit(_ context.Context, req common.SubmitRequest) (common.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add(f.chain + ":submit")
	f.submits = append(f.submits, req)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return common.TxHandle{}, err
		}
	}
	return common.TxHandle{
		Chain:  f.chain,
		Hash:   fmt.Sprintf("%s-tx-%d", f.chain, len(f.submits)),
		Amount: req.Amount,
	}, nil
}

func (f *fakeAdapter) AwaitConfirmations(ctx context.Context, h common.TxHandle, n uint64) (common.ConfirmationResult, error) {
	f.mu.Lock()
	f.rec.add(f.chain + ":await")
	f.awaits = append(f.awaits, awaitCall{handle: h, required: n})
	blocking := f.blockAwaits > 0
	if blocking {
		f.blockAwaits--
	}
	res := common.ConfirmationResult{Status: common.StatusConfirmed, Confirmations: n, BlockNumber: 100}
	if !blocking && len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	}
	f.mu.Unlock()

	if blocking {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return common.ConfirmationResult{Confirmations: 1}, ctx.Err()
	}
	return res, nil
}

func (f *fakeAdapter) ReadBalance(context.Context, string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeAdapter) ReadAddress(_ context.Context, identity string) (string, error) {
	return identity, nil
}

func (f *fakeAdapter) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fakeBridge struct {
	rec *recorder

	mu        sync.Mutex
	submits   int
	submitErr error
	awaitErr  error
	result    *bridge.ConsensusResult
	tracked   []common.TxHandle
}

func (b *fakeBridge) SubmitConsensus(_ context.Context, tx *bridge.Transaction) (common.TxHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec.add("renvm:submit")
	b.submits++
	if b.submitErr != nil {
		return common.TxHandle{}, b.submitErr
	}
	return common.TxHandle{Chain: constant.ChainRenVM, Hash: "renvm-" + tx.In.Handle.Hash, Amount: tx.Amount}, nil
}

func (b *fakeBridge) AwaitConsensus(_ context.Context, _ common.TxHandle) (*bridge.ConsensusResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec.add("renvm:await")
	if b.awaitErr != nil {
		return nil, b.awaitErr
	}
	return b.result, nil
}

func (b *fakeBridge) Track(_ *bridge.Gateway, h common.TxHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracked = append(b.tracked, h)
}

type encodedDeposit struct {
	asset  string
	holder string
	amount *big.Int
	nHash  [32]byte
}

type fakeEncoder struct {
	calls []encodedDeposit
}

func (e *fakeEncoder) EncodeDeposit(a asset.Asset, holder string, amount *big.Int, nHash [32]byte, _ []byte) ([]byte, error) {
	e.calls = append(e.calls, encodedDeposit{asset: a.Symbol, holder: holder, amount: amount, nHash: nHash})
	return []byte(a.DepositMethod + ":" + amount.String()), nil
}

// harness wires a pipeline to fakes for every chain
type harness struct {
	rec      *recorder
	btc      *fakeAdapter
	terra    *fakeAdapter
	eth      *fakeAdapter
	bridge   *fakeBridge
	encoder  *fakeEncoder
	progress []Progress
	pipeline *Pipeline
}

func newHarness(cfg Config) *harness {
	rec := &recorder{}
	h := &harness{
		rec:     rec,
		btc:     newFakeAdapter(constant.ChainBitcoin, rec),
		terra:   newFakeAdapter(constant.ChainTerra, rec),
		eth:     newFakeAdapter(constant.ChainEthereum, rec),
		encoder: &fakeEncoder{},
	}
	h.bridge = &fakeBridge{rec: rec, result: &bridge.ConsensusResult{
		Hash:      "renvm-hash",
		NHash:     [32]byte{0xaa},
		Signature: []byte{0x01, 0x02},
	}}
	adapters := map[string]common.ChainAdapter{
		constant.ChainBitcoin:  h.btc,
		constant.ChainTerra:    h.terra,
		constant.ChainEthereum: h.eth,
	}
	h.pipeline = New(adapters, h.bridge, h.encoder, cfg, zeroLogger(), func(p Progress) {
		h.progress = append(h.progress, p)
	})
	return h
}

func (h *harness) states() []State {
	var out []State
	for _, p := range h.progress {
		if len(out) == 0 || out[len(out)-1] != p.State {
			out = append(out, p.State)
		}
	}
	return out
}

func btcMintGateway() *bridge.Gateway {
	return &bridge.Gateway{
		ID:          "gw-btc",
		Asset:       asset.BTC,
		Direction:   bridge.DirectionMint,
		Source:      bridge.DepositAddress(constant.ChainBitcoin),
		Destination: bridge.Contract(constant.ChainEthereum, testContract, asset.BTC.DepositMethod, testHolder),
		In:          bridge.InSetup{Style: bridge.StyleDepositAddress, DepositAddress: "tb1qgateway"},
	}
}

func lunaMintGateway() *bridge.Gateway {
	return &bridge.Gateway{
		ID:          "gw-luna",
		Asset:       asset.LUNA,
		Direction:   bridge.DirectionMint,
		Source:      bridge.Account(constant.ChainTerra, "terra1user"),
		Destination: bridge.Contract(constant.ChainEthereum, testContract, asset.LUNA.DepositMethod, testHolder),
		In: bridge.InSetup{Style: bridge.StyleAccount, Call: &bridge.FundingCall{
			Chain: constant.ChainTerra, To: "terra1gateway", Method: "transfer",
		}},
	}
}

func btcBurnGateway() *bridge.Gateway {
	withdraw := []byte{0xde, 0xad}
	return &bridge.Gateway{
		ID:        "gw-burn",
		Asset:     asset.BTC,
		Direction: bridge.DirectionBurn,
		Source: bridge.Contract(constant.ChainEthereum, testContract, "withdraw", testHolder).
			WithCall(withdraw, constant.WithdrawGasLimit),
		Destination: bridge.Address(constant.ChainBitcoin, "tb1qrecipient"),
		In: bridge.InSetup{Style: bridge.StyleContract, Call: &bridge.FundingCall{
			Chain: constant.ChainEthereum, To: testContract, Method: "withdraw", Data: withdraw, GasLimit: constant.WithdrawGasLimit,
		}},
	}
}
