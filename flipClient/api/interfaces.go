package api

import (
	"context"
	"time"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/transferstore"
)

// FlipClientInterface defines the methods needed by the API server
type FlipClientInterface interface {
	GetOpenGames() []ledger.Game
	GetBalances() (user, contract cache.Snapshot, ok bool)
	GetCacheLastUpdate() time.Time
	ListTransfers(ctx context.Context, limit int) ([]transferstore.TransferView, error)
	GetTransfer(ctx context.Context, txID string) (*transferstore.TransferView, error)
}
