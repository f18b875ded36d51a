// Package config holds the application's configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds everything one extraction run needs from the environment.
// Flags may override individual fields after Load.
type Config struct {
	// RPCURL is the execution node endpoint.
	RPCURL string
	// Network is the chain name (mainnet, sepolia, ...).
	Network string
	// Contract is the target contract address, 0x-prefixed.
	Contract string
	// AccessorPath points at the accessor bytecode file (hex).
	AccessorPath string
	// LayoutPath points at the compiler's storage-layout types document.
	LayoutPath string
	// RootsPath points at the base-slots document.
	RootsPath string
	// HintsPath points at the performance-hint YAML. Empty disables hints.
	HintsPath string
	// DBPath is the run-store DSN. Empty disables persistence.
	DBPath string
	// MaxSteps caps engine steps.
	MaxSteps int
	// ReadTimeout bounds each batched read.
	ReadTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	cfg := &Config{
		RPCURL:       os.Getenv("INDEXER_RPC_URL"),
		Network:      os.Getenv("INDEXER_NETWORK"),
		Contract:     os.Getenv("INDEXER_CONTRACT"),
		AccessorPath: os.Getenv("INDEXER_ACCESSOR"),
		LayoutPath:   os.Getenv("INDEXER_LAYOUT"),
		RootsPath:    os.Getenv("INDEXER_BASE_SLOTS"),
		HintsPath:    os.Getenv("INDEXER_HINTS"),
		DBPath:       os.Getenv("INDEXER_DB_PATH"),
		MaxSteps:     16,
		ReadTimeout:  8 * time.Second,
	}

	if cfg.RPCURL == "" {
		cfg.RPCURL = "http://127.0.0.1:8545"
	}
	if cfg.Network == "" {
		cfg.Network = "mainnet"
	}

	if stepsStr := os.Getenv("INDEXER_MAX_STEPS"); stepsStr != "" {
		if steps, err := strconv.Atoi(stepsStr); err == nil && steps > 0 {
			cfg.MaxSteps = steps
		}
	}
	if timeoutStr := os.Getenv("INDEXER_READ_TIMEOUT_MS"); timeoutStr != "" {
		if ms, err := strconv.Atoi(timeoutStr); err == nil && ms > 0 {
			cfg.ReadTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.Contract == "" {
		return fmt.Errorf("config: contract address is required")
	}
	if !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("config: %q is not a hex address", c.Contract)
	}
	if c.LayoutPath == "" {
		return fmt.Errorf("config: storage layout path is required")
	}
	if c.RootsPath == "" {
		return fmt.Errorf("config: base slots path is required")
	}
	if c.AccessorPath == "" {
		return fmt.Errorf("config: accessor bytecode path is required")
	}
	return nil
}
