package cache

import (
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
)

func TestBalancesAreReplacedWhole(t *testing.T) {
	c := New(zerolog.Nop())

	_, _, ok := c.Balances()
	assert.False(t, ok)
	assert.True(t, c.LastUpdated().IsZero())

	user := Snapshot{Holder: "user", Balances: map[string]*big.Int{"ETH": big.NewInt(10), "BTC": big.NewInt(3)}}
	contract := Snapshot{Holder: "contract", Balances: map[string]*big.Int{"ETH": big.NewInt(100)}}
	c.ReplaceBalances(user, contract)

	// the caller's maps are not shared with the cache
	user.Balances["ETH"].SetInt64(999)
	delete(user.Balances, "BTC")

	gotUser, gotContract, ok := c.Balances()
	require.True(t, ok)
	assert.Equal(t, big.NewInt(10), gotUser.Of("ETH"))
	assert.Equal(t, big.NewInt(3), gotUser.Of("BTC"))
	assert.Equal(t, big.NewInt(100), gotContract.Of("ETH"))
	assert.Equal(t, int64(0), gotContract.Of("LUNA").Int64())

	c.ReplaceBalances(Snapshot{Holder: "user", Balances: map[string]*big.Int{"ETH": big.NewInt(7)}}, Snapshot{Holder: "contract"})
	gotUser, _, _ = c.Balances()
	assert.Equal(t, big.NewInt(7), gotUser.Of("ETH"))
	assert.Equal(t, int64(0), gotUser.Of("BTC").Int64(), "old entries must not survive a replace")
	assert.False(t, c.LastUpdated().IsZero())
}

func TestGamesCopy(t *testing.T) {
	c := New(zerolog.Nop())
	games := []ledger.Game{{Index: 0, Symbol: "ETH", Amount: big.NewInt(1)}}
	c.ReplaceGames(games)
	games[0].Symbol = "BTC"

	got := c.Games()
	require.Len(t, got, 1)
	assert.Equal(t, "ETH", got[0].Symbol)
}
