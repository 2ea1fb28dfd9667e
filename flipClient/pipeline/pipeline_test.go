package pipeline

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

func zeroLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestRunDrivesLegsInOrder(t *testing.T) {
	h := newHarness(Config{})
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(50_000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)

	assert.Equal(t, []string{
		"bitcoin:submit", "bitcoin:await",
		"renvm:submit", "renvm:await",
		"ethereum:submit", "ethereum:await",
	}, h.rec.list())

	assert.Equal(t, []State{
		StateInPending, StateInConfirmed,
		StateConsensusPending, StateConsensusConfirmed,
		StateOutPending, StateCompleted,
	}, h.states())

	// in leg pays the deposit address and waits for bitcoin finality
	require.Len(t, h.btc.submits, 1)
	assert.Equal(t, common.SubmitTransfer, h.btc.submits[0].Kind)
	assert.Equal(t, "tb1qgateway", h.btc.submits[0].To)
	assert.Equal(t, uint64(6), h.btc.awaits[0].required)
	require.Len(t, h.bridge.tracked, 1)
	assert.Equal(t, tx.In.Handle, h.bridge.tracked[0])

	// out leg calls the ledger with the consensus output
	require.Len(t, h.eth.submits, 1)
	assert.Equal(t, common.SubmitContractCall, h.eth.submits[0].Kind)
	assert.Equal(t, testContract, h.eth.submits[0].To)
	assert.Equal(t, []byte("depositBTC:50000"), h.eth.submits[0].Data)
	assert.Equal(t, asset.LedgerConfirmations, h.eth.awaits[0].required)
	require.Len(t, h.encoder.calls, 1)
	assert.Equal(t, testHolder, h.encoder.calls[0].holder)
	assert.Equal(t, [32]byte{0xaa}, h.encoder.calls[0].nHash)
}

func TestRunUsesMintedAmountForOut(t *testing.T) {
	h := newHarness(Config{})
	h.bridge.result.Amount = big.NewInt(49_000)
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(50_000))

	_, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, h.encoder.calls, 1)
	assert.Equal(t, big.NewInt(49_000), h.encoder.calls[0].amount)
}

func TestRunObservedDepositSkipsInSubmit(t *testing.T) {
	h := newHarness(Config{})
	tx := bridge.NewObservedTransaction(btcMintGateway(),
		common.TxHandle{Chain: constant.ChainBitcoin, Hash: "deposit", Index: 1, Amount: big.NewInt(10_000)})

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, 0, h.btc.submitCount())
	assert.Equal(t, "deposit", h.btc.awaits[0].handle.Hash)
	assert.Empty(t, h.bridge.tracked)
}

// A 5000 unit LUNA deposit whose out leg is rejected once
func TestRetryResubmitsOnlyOut(t *testing.T) {
	h := newHarness(Config{})
	h.eth.submitErrs = []error{flipErrors.NewSubmissionError(constant.ChainEthereum, "node rejected transaction", errors.New("nonce too low"))}
	tx := bridge.NewTransaction(lunaMintGateway(), big.NewInt(5000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegOut, outcome.Leg)
	assert.True(t, outcome.Retryable)
	assert.True(t, flipErrors.IsSubmissionError(outcome.Err))

	inHandle := tx.In.Handle
	consensusHandle := tx.Consensus.Handle
	result := tx.Result

	outcome, err = h.pipeline.Retry(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)

	assert.Equal(t, 1, h.terra.submitCount())
	assert.Equal(t, 1, h.bridge.submits)
	assert.Equal(t, 2, h.eth.submitCount())
	assert.Equal(t, 1, tx.In.Submissions)
	assert.Equal(t, 1, tx.Consensus.Submissions)
	assert.Equal(t, 2, tx.Out.Submissions)
	assert.Equal(t, inHandle, tx.In.Handle)
	assert.Equal(t, consensusHandle, tx.Consensus.Handle)
	assert.Same(t, result, tx.Result)

	// the funding call carries the gateway id as memo
	require.Len(t, h.terra.submits, 1)
	assert.Equal(t, "terra1gateway", h.terra.submits[0].To)
	assert.Equal(t, "gw-luna", h.terra.submits[0].Memo)
	assert.Equal(t, big.NewInt(5000), h.terra.submits[0].Amount)
	assert.Equal(t, uint64(1), h.terra.awaits[0].required)
}

func TestRetryAfterInReorgReusesDepositAddress(t *testing.T) {
	h := newHarness(Config{})
	h.btc.results = []common.ConfirmationResult{{Status: common.StatusFailed, Confirmations: 2, Reason: common.ReasonReorged}}
	gw := btcMintGateway()
	tx := bridge.NewTransaction(gw, big.NewInt(20_000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegIn, outcome.Leg)
	assert.True(t, outcome.Retryable)
	assert.Equal(t, 0, h.bridge.submits)

	outcome, err = h.pipeline.Retry(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)

	require.Len(t, h.btc.submits, 2)
	assert.Equal(t, h.btc.submits[0].To, h.btc.submits[1].To)
	assert.Equal(t, "tb1qgateway", h.btc.submits[1].To)
	assert.Equal(t, "bitcoin-tx-2", tx.In.Handle.Hash)
}

func TestRetryAfterObservedDepositReorgWaitsOnSameHandle(t *testing.T) {
	h := newHarness(Config{})
	h.btc.results = []common.ConfirmationResult{{Status: common.StatusFailed, Confirmations: 2, Reason: common.ReasonReorged}}
	deposit := common.TxHandle{Chain: constant.ChainBitcoin, Hash: "deposit", Index: 0, Amount: big.NewInt(20_000)}
	tx := bridge.NewObservedTransaction(btcMintGateway(), deposit)

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegIn, outcome.Leg)
	assert.True(t, outcome.Retryable)

	outcome, err = h.pipeline.Retry(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)

	// the deposit was funded elsewhere, so the local wallet never pays it
	assert.Equal(t, 0, h.btc.submitCount())
	assert.Equal(t, 0, tx.In.Submissions)
	require.Len(t, h.btc.awaits, 2)
	assert.Equal(t, deposit, h.btc.awaits[1].handle)
	assert.Equal(t, deposit, tx.In.Handle)
}

func TestRunObservedDepositWithoutHandleFails(t *testing.T) {
	h := newHarness(Config{})
	tx := bridge.NewObservedTransaction(btcMintGateway(), common.TxHandle{})

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegIn, outcome.Leg)
	assert.False(t, outcome.Retryable)
	assert.Equal(t, 0, h.btc.submitCount())

	_, err = h.pipeline.Retry(context.Background(), tx)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestRetryRejectsNonRetryableFailure(t *testing.T) {
	h := newHarness(Config{})
	h.bridge.awaitErr = flipErrors.NewChainError(flipErrors.ErrCodeValidation, constant.ChainRenVM, "network reverted transaction: bad nonce", nil)
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegConsensus, outcome.Leg)
	assert.False(t, outcome.Retryable)

	_, err = h.pipeline.Retry(context.Background(), tx)
	assert.ErrorIs(t, err, ErrNotRetryable)
	assert.Equal(t, 1, h.bridge.submits)
	assert.Equal(t, 0, h.eth.submitCount())
}

func TestRetryRejectsCompletedTransaction(t *testing.T) {
	h := newHarness(Config{})
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	_, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)

	outcome, err := h.pipeline.Retry(context.Background(), tx)
	assert.ErrorIs(t, err, ErrNotRetryable)
	assert.Equal(t, StateCompleted, outcome.State)
}

func TestRevertedLedgerCallIsFinal(t *testing.T) {
	h := newHarness(Config{})
	h.eth.results = []common.ConfirmationResult{{Status: common.StatusFailed, Reason: common.ReasonReverted}}
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegOut, outcome.Leg)
	assert.False(t, outcome.Retryable)
	assert.True(t, flipErrors.IsLedgerCallError(outcome.Err))
}

func TestConfirmationTimeoutRetryKeepsHandle(t *testing.T) {
	h := newHarness(Config{ConfirmationTimeout: 20 * time.Millisecond})
	h.btc.blockAwaits = 1
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegIn, outcome.Leg)
	assert.True(t, outcome.Retryable)
	assert.True(t, flipErrors.IsConfirmationTimeoutError(outcome.Err))

	handle := tx.In.Handle
	outcome, err = h.pipeline.Retry(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, 1, h.btc.submitCount())
	assert.Equal(t, handle, tx.In.Handle)
	require.Len(t, h.btc.awaits, 2)
	assert.Equal(t, handle, h.btc.awaits[1].handle)
}

func TestRunCancelledBeforeSubmit(t *testing.T) {
	h := newHarness(Config{})
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := h.pipeline.Run(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCreated, outcome.State)
	assert.Empty(t, h.rec.list())
}

func TestRunCancelledWhileWaitingResumes(t *testing.T) {
	h := newHarness(Config{})
	h.btc.blockAwaits = 1
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-h.btc.started
		cancel()
	}()

	outcome, err := h.pipeline.Run(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateInPending, outcome.State)
	assert.Equal(t, bridge.LegWaitingConfirmation, tx.In.State)

	outcome, err = h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, 1, h.btc.submitCount())
}

func TestRunRejectsContractNativeAsset(t *testing.T) {
	h := newHarness(Config{})
	gw := btcMintGateway()
	gw.Asset = asset.ETH
	tx := bridge.NewTransaction(gw, big.NewInt(1))

	_, err := h.pipeline.Run(context.Background(), tx)
	require.Error(t, err)
	assert.True(t, flipErrors.IsUnsupportedRouteError(err))
	assert.Empty(t, h.rec.list())
}

func TestRunRejectsMissingAdapter(t *testing.T) {
	h := newHarness(Config{})
	delete(h.pipeline.adapters, constant.ChainTerra)
	tx := bridge.NewTransaction(lunaMintGateway(), big.NewInt(1))

	_, err := h.pipeline.Run(context.Background(), tx)
	assert.True(t, flipErrors.IsUnsupportedRouteError(err))
}

func TestBurnWithNetworkBroadcastRelease(t *testing.T) {
	h := newHarness(Config{})
	h.bridge.result.ReleaseTxID = "btc-release"
	h.bridge.result.Amount = big.NewInt(9_000)
	tx := bridge.NewTransaction(btcBurnGateway(), big.NewInt(10_000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)

	// in leg is the withdraw call on the ledger
	require.Len(t, h.eth.submits, 1)
	assert.Equal(t, common.SubmitContractCall, h.eth.submits[0].Kind)
	assert.Equal(t, uint64(constant.WithdrawGasLimit), h.eth.submits[0].GasLimit)
	assert.Equal(t, asset.LedgerConfirmations, h.eth.awaits[0].required)

	// out leg waits on the release without submitting
	assert.Equal(t, 0, h.btc.submitCount())
	require.Len(t, h.btc.awaits, 1)
	assert.Equal(t, "btc-release", h.btc.awaits[0].handle.Hash)
	assert.Equal(t, uint64(6), h.btc.awaits[0].required)
	assert.Equal(t, 0, tx.Out.Submissions)
	assert.Empty(t, h.encoder.calls)
}

func TestBurnRebroadcastsReleasePayload(t *testing.T) {
	h := newHarness(Config{})
	h.bridge.result.ReleaseRaw = []byte{0x02, 0x00}
	tx := bridge.NewTransaction(btcBurnGateway(), big.NewInt(10_000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	require.Len(t, h.btc.submits, 1)
	assert.Equal(t, common.SubmitRaw, h.btc.submits[0].Kind)
	assert.Equal(t, []byte{0x02, 0x00}, h.btc.submits[0].Raw)
}

func TestBurnWithoutReleaseFails(t *testing.T) {
	h := newHarness(Config{})
	tx := bridge.NewTransaction(btcBurnGateway(), big.NewInt(10_000))

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, bridge.LegOut, outcome.Leg)
	assert.False(t, outcome.Retryable)
}

func TestRunOnFailedTransactionDoesNothing(t *testing.T) {
	h := newHarness(Config{})
	h.eth.submitErrs = []error{flipErrors.NewSubmissionError(constant.ChainEthereum, "rejected", nil)}
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	_, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	calls := len(h.rec.list())

	outcome, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Len(t, h.rec.list(), calls)
}

func TestExplorerLinkOnCompletion(t *testing.T) {
	var linked []string
	h := newHarness(Config{ExplorerLink: func(chain, hash string) string {
		linked = append(linked, chain+"/"+hash)
		return "https://explorer/" + hash
	}})
	tx := bridge.NewTransaction(btcMintGateway(), big.NewInt(1000))

	_, err := h.pipeline.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ethereum/ethereum-tx-1"}, linked)
}
