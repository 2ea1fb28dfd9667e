package cache

import (
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
)

// Snapshot is the balance of one holder per asset symbol, in smallest units.
type Snapshot struct {
	Holder   string              `json:"holder"`
	Address  string              `json:"address"`
	Balances map[string]*big.Int `json:"balances"`
	TakenAt  time.Time           `json:"taken_at"`
}

// Of returns a copy of the balance of symbol, zero when absent.
func (s Snapshot) Of(symbol string) *big.Int {
	if v, ok := s.Balances[symbol]; ok && v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Balances = make(map[string]*big.Int, len(s.Balances))
	for k, v := range s.Balances {
		out.Balances[k] = new(big.Int).Set(v)
	}
	return out
}

// Cache is a thread-safe store for the balance snapshots and the open game list.
// Data can only be changed via ReplaceBalances and ReplaceGames, which swap
// whole values; readers never see a partial update.
type Cache struct {
	mu         sync.RWMutex
	user       Snapshot
	contract   Snapshot
	games      []ledger.Game
	hasBalance bool
	lastUpdate time.Time
	logger     zerolog.Logger
}

// New creates a new Cache instance.
func New(logger zerolog.Logger) *Cache {
	return &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// LastUpdated returns the last time the cache was refreshed.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// ReplaceBalances atomically replaces both snapshots.
func (c *Cache) ReplaceBalances(user, contract Snapshot) {
	user, contract = user.clone(), contract.clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.user = user
	c.contract = contract
	c.hasBalance = true
	c.lastUpdate = time.Now()

	c.logger.Debug().
		Time("updated_at", c.lastUpdate).
		Msg("balances replaced")
}

// Balances returns copies of the last published pair. ok is false until the
// first publish.
func (c *Cache) Balances() (user, contract Snapshot, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user.clone(), c.contract.clone(), c.hasBalance
}

// ReplaceGames atomically replaces the open game list.
func (c *Cache) ReplaceGames(games []ledger.Game) {
	cp := make([]ledger.Game, len(games))
	copy(cp, games)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.games = cp
	c.lastUpdate = time.Now()
}

// Games returns a copy of the open game list.
func (c *Cache) Games() []ledger.Game {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ledger.Game, len(c.games))
	copy(out, c.games)
	return out
}
