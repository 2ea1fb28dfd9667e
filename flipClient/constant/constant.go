package constant

import "os"

// <NodeDir>/                    (e.g., /home/flip/.flipd)
// └── config/
//	└── flipd_config.json

const (
	NodeDir = ".flipd"

	ConfigSubdir   = "config"
	ConfigFileName = "flipd_config.json"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

// Chain names used as keys in the chain configs and on every asset.
const (
	ChainEthereum = "ethereum"
	ChainBitcoin  = "bitcoin"
	ChainTerra    = "terra"

	// ChainRenVM tags handles of the bridge network's own transactions
	ChainRenVM = "renvm"
)

// Environment variables holding secrets that never go into the config file.
const (
	EnvEVMPrivateKey   = "FLIP_EVM_PRIVATE_KEY"
	EnvBTCRPCPassword  = "FLIP_BTC_RPC_PASSWORD"
	EnvTerraPrivateKey = "FLIP_TERRA_PRIVATE_KEY"
)

// DefaultContractAddress is the Flip ledger deployed on the testnet ethereum chain.
const DefaultContractAddress = "0x698D11acAbB319e9FC9b1c9fA0768cED2B08d998"

// WithdrawGasLimit is the gas limit used for the withdraw call that starts a burn.
const WithdrawGasLimit = 1_000_000

// Holder names used in balance snapshots.
const (
	HolderUser     = "user"
	HolderContract = "contract"
)
