package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/config"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"init", "start", "version", "deposit", "withdraw", "open-game", "accept-game", "query"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	q, _, err := root.Find([]string{"q", "transfers"})
	require.NoError(t, err)
	assert.Equal(t, "transfers", q.Name())
}

func TestInitWritesConfig(t *testing.T) {
	home := t.TempDir()

	root := NewRootCmd()
	root.SetArgs([]string{"init", "--home", home, "--user", "0x1111111111111111111111111111111111111111"})
	require.NoError(t, root.Execute())

	cfg, err := config.Load(home)
	require.NoError(t, err)
	assert.Equal(t, home, cfg.NodeHome)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", cfg.UserAddress)

	t.Run("refuses to overwrite", func(t *testing.T) {
		root := NewRootCmd()
		root.SetArgs([]string{"init", "--home", home})
		assert.Error(t, root.Execute())
	})

	t.Run("force overwrites", func(t *testing.T) {
		root := NewRootCmd()
		root.SetArgs([]string{"init", "--home", home, "--force"})
		require.NoError(t, root.Execute())

		cfg, err := config.Load(home)
		require.NoError(t, err)
		assert.Empty(t, cfg.UserAddress)
	})
}

func TestDepositRequiresAmount(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"deposit", "BTC", "--home", t.TempDir()})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount is required")
}

func TestQueryAgainstServer(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		if r.URL.Path == "/api/v1/transfer" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "transfer not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data":         []map[string]interface{}{{"tx_id": "tx-1", "state": "completed"}},
			"last_fetched": time.Now(),
		})
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	home := t.TempDir()
	cfg, err := config.LoadDefaultConfig()
	require.NoError(t, err)
	cfg.QueryServerPort = port
	require.NoError(t, config.Save(cfg, home))

	root := NewRootCmd()
	root.SetArgs([]string{"query", "transfers", "--limit", "5", "-o", "json", "--home", home})
	require.NoError(t, root.Execute())
	assert.Equal(t, "/api/v1/transfers", gotPath)
	assert.Equal(t, "5", gotQuery.Get("limit"))

	root = NewRootCmd()
	root.SetArgs([]string{"query", "transfer", "tx-404", "--home", home})
	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfer not found")
	assert.Equal(t, "tx-404", gotQuery.Get("id"))
}

func TestPrintOutputRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, printOutput(QueryOutput{}, "toml"))
}

func TestFindGame(t *testing.T) {
	games := []ledger.Game{{Index: 0, Symbol: "BTC"}, {Index: 3, Symbol: "ETH"}}

	g, ok := findGame(games, 3)
	require.True(t, ok)
	assert.Equal(t, "ETH", g.Symbol)

	_, ok = findGame(games, 1)
	assert.False(t, ok)
}

func TestCallOptions(t *testing.T) {
	assert.Nil(t, callOptions(0))
	assert.Len(t, callOptions(250_000), 1)
}
