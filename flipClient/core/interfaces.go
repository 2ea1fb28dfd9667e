package core

import (
	"context"
	"math/big"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/asset"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/pipeline"
)

// GatewayCreator defines the bridge operations the client starts transfers with
type GatewayCreator interface {
	CreateGateway(ctx context.Context, a asset.Asset, src, dst bridge.Endpoint) (*bridge.Gateway, error)
	Observe(ctx context.Context, gw *bridge.Gateway) (<-chan *bridge.Transaction, error)
}

// TransferRunner drives bridge transactions to a terminal state
type TransferRunner interface {
	Run(ctx context.Context, tx *bridge.Transaction) (pipeline.Outcome, error)
	Retry(ctx context.Context, tx *bridge.Transaction) (pipeline.Outcome, error)
}

// GameLedger defines the ledger contract operations used by the client
type GameLedger interface {
	Contract() string
	Account() string
	GetOpenGames(ctx context.Context) ([]ledger.Game, error)
	GetContractBTCBalance(ctx context.Context) (*big.Int, error)
	OpenGame(ctx context.Context, a asset.Asset, amount *big.Int, opts ...ledger.CallOption) (common.TxHandle, error)
	AcceptGame(ctx context.Context, index int, amount *big.Int, opts ...ledger.CallOption) (common.TxHandle, error)
	EncodeWithdraw(a asset.Asset, holder, to string, amount *big.Int) ([]byte, error)
	OnNextDeposit(ctx context.Context, cb func(ledger.DepositEvent)) (*ledger.Subscription, error)
	OnNextResult(ctx context.Context, cb func(ledger.ResultEvent)) (*ledger.Subscription, error)
}

// BalanceRefresher rebuilds the balance snapshots
type BalanceRefresher interface {
	Refresh(ctx context.Context) (user, contract cache.Snapshot, err error)
}
