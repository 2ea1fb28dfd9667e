package core

import (
	"fmt"
	"os"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/cache"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/btc"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/common"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/evm"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/chains/terra"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/config"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/db"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/ledger"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/metrics"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/pipeline"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/reconciler"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/transferstore"
)

// New dials every configured chain and the bridge network and builds a
// Client. Bitcoin and terra are optional; ethereum is required.
func New(cfg *config.Config, log zerolog.Logger) (client *Client, err error) {
	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	retry := common.NewRetryManager(&common.RetryConfig{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  time.Duration(cfg.RetryBackoffSeconds) * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}, log)

	adapters := make(map[string]common.ChainAdapter)
	watchers := make(map[string]common.DepositWatcher)

	// Ethereum hosts the ledger
	ethCfg := cfg.GetChainConfig(constant.ChainEthereum)
	if ethCfg.ChainID == nil {
		return nil, fmt.Errorf("chain_id is required for %s", constant.ChainEthereum)
	}
	ethRPC, err := evm.NewRPCClient(ethCfg.RPCURLs, *ethCfg.ChainID, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s rpc client: %w", constant.ChainEthereum, err)
	}
	closers = append(closers, func() error { ethRPC.Close(); return nil })

	var evmSigner *evm.Signer
	if key := os.Getenv(constant.EnvEVMPrivateKey); key != "" {
		if evmSigner, err = evm.NewSignerFromHex(key); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Str("env", constant.EnvEVMPrivateKey).Msg("no ethereum key configured, ledger calls are read-only")
	}
	ethPoll := cfg.GetPollingInterval(constant.ChainEthereum)
	evmAdapter, err := evm.NewAdapter(ethRPC, evmSigner, *ethCfg.ChainID, ethPoll, retry, log)
	if err != nil {
		return nil, err
	}
	adapters[constant.ChainEthereum] = evmAdapter

	ledgerClient, err := ledger.NewClient(evmAdapter, ethRPC, cfg.ContractAddress, ethPoll, log)
	if err != nil {
		return nil, err
	}
	user := cfg.UserAddress
	if user == "" && evmSigner != nil {
		user = ledgerClient.Account()
	}
	if !ethcommon.IsHexAddress(user) {
		return nil, fmt.Errorf("no user address: set user_address or %s", constant.EnvEVMPrivateKey)
	}

	// Bitcoin
	btcCfg := cfg.GetChainConfig(constant.ChainBitcoin)
	if len(btcCfg.RPCURLs) > 0 {
		params, err := btc.NetParams(btcCfg.NetworkID)
		if err != nil {
			return nil, err
		}
		btcRPC, err := btc.NewRPCClient(btcCfg.RPCURLs, btcCfg.RPCUser, os.Getenv(constant.EnvBTCRPCPassword), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s rpc client: %w", constant.ChainBitcoin, err)
		}
		closers = append(closers, func() error { btcRPC.Close(); return nil })

		btcAdapter, err := btc.NewAdapter(btcRPC, params, cfg.GetPollingInterval(constant.ChainBitcoin), retry, log)
		if err != nil {
			return nil, err
		}
		adapters[constant.ChainBitcoin] = btcAdapter
		watchers[constant.ChainBitcoin] = btcAdapter
	}

	// Terra
	var terraAccount string
	terraCfg := cfg.GetChainConfig(constant.ChainTerra)
	if len(terraCfg.RPCURLs) > 0 {
		terraClient, err := terra.NewClient(terraCfg.RPCURLs, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", constant.ChainTerra, err)
		}
		closers = append(closers, terraClient.Close)

		var signer terra.Signer
		if key := os.Getenv(constant.EnvTerraPrivateKey); key != "" {
			keySigner, err := terra.NewKeySigner(key, terraCfg.NetworkID, terraClient, log)
			if err != nil {
				return nil, err
			}
			signer = keySigner
			terraAccount = keySigner.Address()
		}
		terraAdapter, err := terra.NewAdapter(terraClient, signer, cfg.GetPollingInterval(constant.ChainTerra), retry, log)
		if err != nil {
			return nil, err
		}
		adapters[constant.ChainTerra] = terraAdapter
		watchers[constant.ChainTerra] = terraAdapter
	}

	// Bridge network
	lightnode, err := bridge.NewLightnodeClient(cfg.BridgeRPCURLs, cfg.BridgeRequestsPerSecond, log)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { lightnode.Close(); return nil })

	bridgeClient := bridge.NewClient(lightnode, watchers, bridge.Config{
		ConsensusPollInterval: time.Duration(cfg.BridgePollingIntervalSeconds) * time.Second,
		DepositPollIntervals: map[string]time.Duration{
			constant.ChainBitcoin: cfg.GetPollingInterval(constant.ChainBitcoin),
			constant.ChainTerra:   cfg.GetPollingInterval(constant.ChainTerra),
		},
	}, log)

	// Process-lifetime journal
	database, err := db.OpenInMemoryDB(true)
	if err != nil {
		return nil, err
	}
	closers = append(closers, database.Close)
	journal := transferstore.New(database.Client(), log)

	snapshots := cache.New(log)
	recon := reconciler.New(evmAdapter, ledgerClient, user, ledgerClient.Contract(), snapshots, log,
		reconciler.WithObserver(metrics.ObserveRefresh))

	recorder := metrics.NewPipelineRecorder()
	runner := pipeline.New(adapters, bridgeClient, ledgerClient, pipeline.Config{
		ConfirmationTimeout: cfg.ConfirmationTimeout(),
		ExplorerLink:        cfg.ExplorerLink,
	}, log, journal.Record, recorder.Observe)

	log.Info().
		Str("network", string(cfg.Network)).
		Int("chains", len(adapters)).
		Str("user", user).
		Msg("flip client initialized")

	return newClient(cfg, log, components{
		bridge:       bridgeClient,
		runner:       runner,
		ledger:       ledgerClient,
		reconciler:   recon,
		cache:        snapshots,
		journal:      journal,
		user:         user,
		terraAccount: terraAccount,
		closers:      closers,
	}), nil
}
