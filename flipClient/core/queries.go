package core

import (
	"context"
	"time"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/transferstore"
)

// GetOpenGames returns the open games of the last refresh
func (c *Client) GetOpenGames() []ledger.Game {
	return c.cache.Games()
}

// GetBalances returns the last complete pair of balance snapshots
func (c *Client) GetBalances() (user, contract cache.Snapshot, ok bool) {
	return c.cache.Balances()
}

// GetCacheLastUpdate returns when games or balances were last replaced
func (c *Client) GetCacheLastUpdate() time.Time {
	return c.cache.LastUpdated()
}

// ListTransfers returns the journaled transfers, most recent first
func (c *Client) ListTransfers(ctx context.Context, limit int) ([]transferstore.TransferView, error) {
	return c.journal.List(ctx, limit)
}

// GetTransfer returns one journaled transfer
func (c *Client) GetTransfer(ctx context.Context, txID string) (*transferstore.TransferView, error) {
	return c.journal.Get(ctx, txID)
}
