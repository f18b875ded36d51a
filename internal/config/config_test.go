package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"INDEXER_RPC_URL", "INDEXER_NETWORK", "INDEXER_CONTRACT",
		"INDEXER_MAX_STEPS", "INDEXER_READ_TIMEOUT_MS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, 16, cfg.MaxSteps)
	assert.Equal(t, 8*time.Second, cfg.ReadTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("INDEXER_RPC_URL", "https://rpc.example.org")
	t.Setenv("INDEXER_NETWORK", "sepolia")
	t.Setenv("INDEXER_CONTRACT", "0x1234567890123456789012345678901234567890")
	t.Setenv("INDEXER_MAX_STEPS", "32")
	t.Setenv("INDEXER_READ_TIMEOUT_MS", "2500")

	cfg := Load()
	assert.Equal(t, "https://rpc.example.org", cfg.RPCURL)
	assert.Equal(t, "sepolia", cfg.Network)
	assert.Equal(t, 32, cfg.MaxSteps)
	assert.Equal(t, 2500*time.Millisecond, cfg.ReadTimeout)
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("INDEXER_MAX_STEPS", "zero")
	t.Setenv("INDEXER_READ_TIMEOUT_MS", "-5")

	cfg := Load()
	assert.Equal(t, 16, cfg.MaxSteps)
	assert.Equal(t, 8*time.Second, cfg.ReadTimeout)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Contract:     "0x1234567890123456789012345678901234567890",
		LayoutPath:   "layout.json",
		RootsPath:    "roots.json",
		AccessorPath: "accessor.hex",
	}
	require.NoError(t, valid.Validate())

	missing := *valid
	missing.Contract = ""
	assert.Error(t, missing.Validate())

	bad := *valid
	bad.Contract = "not-an-address"
	assert.Error(t, bad.Validate())

	noLayout := *valid
	noLayout.LayoutPath = ""
	assert.Error(t, noLayout.Validate())

	noRoots := *valid
	noRoots.RootsPath = ""
	assert.Error(t, noRoots.Validate())

	noAccessor := *valid
	noAccessor.AccessorPath = ""
	assert.Error(t, noAccessor.Validate())
}
