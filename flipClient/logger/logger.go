package logger

import (
	"io"
	"os"
	"time"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/config"
	"github.com/rs/zerolog"
)

// New creates a new zerolog logger with the specified configuration.
// Supports console/json format, level filtering, and optional sampling.
func New(logLevel int, logFormat string, logSampler bool) zerolog.Logger {
	var writer io.Writer = os.Stdout
	if logFormat != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(writer).
		Level(zerolog.Level(logLevel)).
		With().
		Timestamp().
		Logger()

	if logSampler {
		logger = logger.Sample(&zerolog.BasicSampler{N: 5})
	}
	return logger
}

// Init builds the process logger from the log section of the config. Every
// line carries the bridge network so testnet and mainnet logs never mix.
func Init(cfg config.Config) zerolog.Logger {
	network := cfg.Network
	if network == "" {
		network = config.NetworkTestnet
	}
	return New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler).
		With().
		Str("network", string(network)).
		Logger()
}
