// Package walletconfig holds the recognized wallet engine options
// (spec.md §6 Configuration) plus the ambient node-level settings the
// teacher always carries alongside domain config (data directory, log
// level, metrics toggle). Loading follows the teacher's cmd/utils
// convention of decoding a TOML file with github.com/naoina/toml.
package walletconfig

import (
	"os"
	"time"

	"github.com/naoina/toml"
)

// Config is the full set of options the wallet engine understands.
type Config struct {
	// Confirmations is the minimum depth for a mined transaction to be
	// reported as confirmed rather than unconfirmed.
	Confirmations uint64

	// RebroadcastAfter is the number of blocks of head advancement
	// after which a still-pending transaction is re-verified and,
	// if still valid, rebroadcast.
	RebroadcastAfter uint64

	// DecryptBatchSize bounds how many note-decryption payloads are
	// submitted to the worker pool per call.
	DecryptBatchSize int

	// EventLoopInterval is the cadence of the background event loop.
	EventLoopInterval time.Duration

	// DataDir is where the leveldb-backed WalletDB is stored.
	DataDir string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string

	// MetricsEnabled is loaded from config but not read by any package
	// in this module; the go-metrics counters are registered regardless.
	MetricsEnabled bool
}

// Defaults mirrors the constants named in spec.md §6.
func Defaults() *Config {
	return &Config{
		Confirmations:     1,
		RebroadcastAfter:  10,
		DecryptBatchSize:  20,
		EventLoopInterval: time.Second,
		DataDir:           "./walletdata",
		LogLevel:          "info",
		MetricsEnabled:    false,
	}
}

// Load reads a TOML config file over top of Defaults(), the same
// "parse onto a pre-populated struct" idiom the teacher's node
// commands use for their own config files.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
