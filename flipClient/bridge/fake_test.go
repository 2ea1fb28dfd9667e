package bridge

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
)

type fakeNetwork struct {
	mu            sync.Mutex
	fees          Fees
	feeQueries    int
	addrRequests  []GatewayAddressRequest
	submitted     []ConsensusRequest
	submitErr     error
	statuses      []*TxStatus // returned in order, the last one repeats
	queryErrs     int         // QueryTx failures before statuses are served
	gatewayPrefix string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		fees:          Fees{Lock: big.NewInt(1000), Release: big.NewInt(2000), MintBps: 15, BurnBps: 15},
		gatewayPrefix: "tb1qgateway",
	}
}

func (f *fakeNetwork) QueryFees(_ context.Context, _ string) (Fees, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeQueries++
	return f.fees, nil
}

func (f *fakeNetwork) QueryGatewayAddress(_ context.Context, req GatewayAddressRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrRequests = append(f.addrRequests, req)
	return f.gatewayPrefix + req.Nonce[:8], nil
}

func (f *fakeNetwork) SubmitTx(_ context.Context, req ConsensusRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "renvm-" + req.InTxHash, nil
}

func (f *fakeNetwork) QueryTx(_ context.Context, _ string) (*TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErrs > 0 {
		f.queryErrs--
		return nil, errors.New("lightnode unavailable")
	}
	if len(f.statuses) == 0 {
		return &TxStatus{Status: TxStatusPending}, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

type fakeWatcher struct {
	mu       sync.Mutex
	deposits []common.TxHandle
	calls    int
}

func (w *fakeWatcher) add(h common.TxHandle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deposits = append(w.deposits, h)
}

func (w *fakeWatcher) ListDeposits(_ context.Context, _ string) ([]common.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return append([]common.TxHandle(nil), w.deposits...), nil
}
