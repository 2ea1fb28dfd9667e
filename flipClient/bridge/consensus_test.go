package bridge

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	flipErrors "github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/errors"
)

func confirmedMint(t *testing.T, client *Client) *Transaction {
	t.Helper()
	gw, err := client.CreateGateway(context.Background(), asset.LUNA,
		Account(constant.ChainTerra, "terra1funder"),
		Contract(constant.ChainEthereum, testContract, "depositLUNA", testHolder))
	require.NoError(t, err)

	tx := NewTransaction(gw, big.NewInt(5000))
	tx.In.State = LegConfirmed
	tx.In.Handle = common.TxHandle{Chain: constant.ChainTerra, Hash: "IN"}
	return tx
}

func TestSubmitConsensus(t *testing.T) {
	network := newFakeNetwork()
	client := NewClient(network, nil, Config{ConsensusPollInterval: time.Millisecond}, zerolog.Nop())
	tx := confirmedMint(t, client)

	h, err := client.SubmitConsensus(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, constant.ChainRenVM, h.Chain)
	assert.Equal(t, "renvm-IN", h.Hash)

	require.Len(t, network.submitted, 1)
	req := network.submitted[0]
	assert.Equal(t, "LUNA/toEthereum", req.Selector)
	assert.Equal(t, tx.Gateway.ID, req.Nonce)
	assert.Equal(t, "IN", req.InTxHash)
	assert.Equal(t, "depositLUNA", req.Method)
	assert.Equal(t, testHolder, req.Holder)
	assert.Equal(t, big.NewInt(5000), req.Amount.ToInt())
}

func TestSubmitConsensusRequiresConfirmedIn(t *testing.T) {
	network := newFakeNetwork()
	client := NewClient(network, nil, Config{}, zerolog.Nop())
	tx := confirmedMint(t, client)
	tx.In.State = LegWaitingConfirmation

	_, err := client.SubmitConsensus(context.Background(), tx)
	require.Error(t, err)
	assert.Empty(t, network.submitted)
}

func TestSubmitConsensusRejected(t *testing.T) {
	network := newFakeNetwork()
	network.submitErr = errors.New("invalid input")
	client := NewClient(network, nil, Config{}, zerolog.Nop())

	_, err := client.SubmitConsensus(context.Background(), confirmedMint(t, client))
	assert.True(t, flipErrors.IsSubmissionError(err))
}

func TestAwaitConsensusDone(t *testing.T) {
	nhash := bytes.Repeat([]byte{0xab}, 32)
	network := newFakeNetwork()
	network.queryErrs = 1
	network.statuses = []*TxStatus{
		{Status: TxStatusConfirming},
		{Status: TxStatusExecuting},
		{Status: TxStatusDone, Out: &ConsensusOut{
			NHash:     nhash,
			Signature: hexutil.Bytes{0x01, 0x02},
			Amount:    (*hexutil.Big)(big.NewInt(4985)),
		}},
	}
	client := NewClient(network, nil, Config{ConsensusPollInterval: time.Millisecond}, zerolog.Nop())

	res, err := client.AwaitConsensus(context.Background(), common.TxHandle{Hash: "renvm-IN"})
	require.NoError(t, err)
	assert.Equal(t, "renvm-IN", res.Hash)
	assert.Equal(t, nhash, res.NHash[:])
	assert.Equal(t, []byte{0x01, 0x02}, res.Signature)
	assert.Equal(t, big.NewInt(4985), res.Amount)
}

func TestAwaitConsensusReverted(t *testing.T) {
	network := newFakeNetwork()
	network.statuses = []*TxStatus{{Status: TxStatusReverted, Out: &ConsensusOut{Revert: "amount below fees"}}}
	client := NewClient(network, nil, Config{ConsensusPollInterval: time.Millisecond}, zerolog.Nop())

	_, err := client.AwaitConsensus(context.Background(), common.TxHandle{Hash: "h"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount below fees")
	assert.False(t, flipErrors.IsRetryable(err))
}

func TestAwaitConsensusCancelled(t *testing.T) {
	client := NewClient(newFakeNetwork(), nil, Config{ConsensusPollInterval: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.AwaitConsensus(ctx, common.TxHandle{Hash: "h"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
