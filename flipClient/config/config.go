package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	if cfg.Network == "" {
		cfg.Network = NetworkTestnet
	}
	if cfg.Network != NetworkTestnet && cfg.Network != NetworkMainnet {
		return fmt.Errorf("network must be 'testnet' or 'mainnet'")
	}

	if cfg.ContractAddress == "" {
		cfg.ContractAddress = constant.DefaultContractAddress
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("contract address %q is not a valid hex address", cfg.ContractAddress)
	}
	if cfg.UserAddress != "" && !common.IsHexAddress(cfg.UserAddress) {
		return fmt.Errorf("user address %q is not a valid hex address", cfg.UserAddress)
	}

	// Set defaults for read retries
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoffSeconds == 0 {
		cfg.RetryBackoffSeconds = 1
	}
	if cfg.ConfirmationTimeoutSeconds < 0 {
		return fmt.Errorf("confirmation timeout must not be negative")
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}

	// Initialize ChainConfigs and bridge endpoints from the embedded defaults
	var defaultCfg Config
	defaultsErr := json.Unmarshal(defaultConfigJSON, &defaultCfg)

	if len(cfg.ChainConfigs) == 0 {
		if defaultsErr == nil {
			cfg.ChainConfigs = defaultCfg.ChainConfigs
		} else {
			cfg.ChainConfigs = make(map[string]ChainSpecificConfig)
		}
	}
	if len(cfg.BridgeRPCURLs) == 0 && defaultsErr == nil {
		cfg.BridgeRPCURLs = defaultCfg.BridgeRPCURLs
	}

	// Set defaults for the bridge client
	if cfg.BridgeRequestsPerSecond == 0 {
		cfg.BridgeRequestsPerSecond = 5
	}
	if cfg.BridgePollingIntervalSeconds == 0 {
		cfg.BridgePollingIntervalSeconds = 10
	}

	return nil
}

// Validate applies defaults and checks the config
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <NodeDir>/config/flipd_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads, validates and returns the config from <BasePath>/config/flipd_config.json.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
