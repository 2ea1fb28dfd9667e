package config

import (
	"fmt"
	"time"
)

// Network selects the bridge network and the chain parameters derived from it
type Network string

const (
	// NetworkTestnet is the bridge testnet (bitcoin testnet3, terra bombay, ethereum goerli)
	NetworkTestnet Network = "testnet"

	// NetworkMainnet is the bridge mainnet
	NetworkMainnet Network = "mainnet"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Node home directory (default: ~/.flipd)

	// Ledger configuration
	Network         Network `json:"network"`          // "testnet" or "mainnet" (default: testnet)
	ContractAddress string  `json:"contract_address"` // Flip ledger contract on the ethereum chain
	UserAddress     string  `json:"user_address"`     // Holder whose balances are reconciled (default: address of the EVM key)

	// Bridge network configuration
	BridgeRPCURLs                []string `json:"bridge_rpc_urls"`                 // Lightnode JSON-RPC endpoints
	BridgeRequestsPerSecond      int      `json:"bridge_requests_per_second"`      // Client-side rate limit for the lightnode (default: 5)
	BridgePollingIntervalSeconds int      `json:"bridge_polling_interval_seconds"` // How often to poll consensus status (default: 10)

	// Read retry configuration
	MaxRetries          int `json:"max_retries"`           // Max retry attempts for chain reads (default: 3)
	RetryBackoffSeconds int `json:"retry_backoff_seconds"` // Initial backoff between read retries (default: 1)

	// ConfirmationTimeoutSeconds bounds every confirmation wait. 0 waits forever.
	ConfirmationTimeoutSeconds int `json:"confirmation_timeout_seconds"`

	// Query Server Config
	QueryServerPort int `json:"query_server_port"` // Port for HTTP query server (default: 8080)

	// Unified per-chain configuration
	ChainConfigs map[string]ChainSpecificConfig `json:"chain_configs"` // Map of chain name to all chain-specific settings
}

// ChainSpecificConfig holds all chain-specific configuration in one place
type ChainSpecificConfig struct {
	// RPC Configuration
	RPCURLs []string `json:"rpc_urls,omitempty"` // RPC endpoints for this chain (gRPC host:port for terra)
	RPCUser string   `json:"rpc_user,omitempty"` // Basic auth user for bitcoind; the password comes from the environment

	// Network identity
	ChainID   *int64 `json:"chain_id,omitempty"`   // EVM chain ID verified on dial
	NetworkID string `json:"network_id,omitempty"` // Cosmos chain-id or bitcoin net name ("testnet3", "mainnet")

	// Confirmation polling
	PollingIntervalSeconds *int `json:"polling_interval_seconds,omitempty"` // How often to poll for confirmations and deposits (default: 5)

	// ExplorerTxURL is a printf template with one %s for the transaction hash
	ExplorerTxURL string `json:"explorer_tx_url,omitempty"`
}

// GetChainConfig returns the complete configuration for a specific chain
func (c *Config) GetChainConfig(chain string) *ChainSpecificConfig {
	if c.ChainConfigs != nil {
		if config, ok := c.ChainConfigs[chain]; ok {
			return &config
		}
	}
	// Return empty config if not found
	return &ChainSpecificConfig{}
}

// GetPollingInterval returns the confirmation polling interval for a chain
func (c *Config) GetPollingInterval(chain string) time.Duration {
	cc := c.GetChainConfig(chain)
	if cc.PollingIntervalSeconds == nil || *cc.PollingIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(*cc.PollingIntervalSeconds) * time.Second
}

// ExplorerLink renders the explorer URL of a transaction, or "" when none is configured
func (c *Config) ExplorerLink(chain, txHash string) string {
	cc := c.GetChainConfig(chain)
	if cc.ExplorerTxURL == "" {
		return ""
	}
	return fmt.Sprintf(cc.ExplorerTxURL, txHash)
}

// ConfirmationTimeout returns the bound on confirmation waits; zero means unbounded
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSeconds) * time.Second
}
