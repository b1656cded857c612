package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vaultYAML = `
reference_denom: uusdc
share_denom: bvault/shares
owner: owner1
manager: manager1
deposit_cap: "1000000000000000000000000"
max_price_age: 30s
assets:
  - denom: uusdc
    decimals: 6
    min_deposit: "1000"
  - denom: uatom
    feed_id: ATOMUSDC
    decimals: 6
  - denom: amm/pool/1
    feed_id: amm/pool/1
    depositable: false
`

func TestLoadVaultFile(t *testing.T) {
	// ARRANGE
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(vaultYAML), 0o600))

	// ACT
	cfg, err := LoadVaultFile(path)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "uusdc", cfg.ReferenceDenom)
	assert.Equal(t, "1000000000000000000000000", cfg.DepositCap.String())
	assert.True(t, cfg.MinRedemption.IsZero())
	assert.Equal(t, 30*time.Second, cfg.MaxPriceAge)
	assert.Equal(t, DefaultVaultParameters.MaxPriceSkew, cfg.MaxPriceSkew)
	assert.Equal(t, DefaultVaultParameters.SlippageToleranceBps, cfg.SlippageToleranceBps)
	require.Len(t, cfg.Assets, 3)
	assert.Equal(t, "1000", cfg.Assets[0].MinDeposit.String())
	assert.True(t, cfg.Assets[1].Depositable)
	assert.False(t, cfg.Assets[2].Depositable)
	require.NoError(t, cfg.Validate())
}

func TestLoadVaultFileEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(vaultYAML), 0o600))
	t.Setenv("BVAULT_MANAGER", "manager2")

	cfg, err := LoadVaultFile(path)

	require.NoError(t, err)
	assert.Equal(t, "manager2", cfg.Manager)
}

func TestLoadVaultFileRejectsBadInteger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reference_denom: uusdc\ndeposit_cap: lots\n"), 0o600))

	_, err := LoadVaultFile(path)

	assert.ErrorContains(t, err, "deposit_cap")
}

func TestSymbolFor(t *testing.T) {
	assert.Equal(t, "ATOM", SymbolFor("uatom"))
	assert.Equal(t, "ETH", SymbolFor("weth"))
	assert.Equal(t, "JUNO", SymbolFor("ujuno"))
	assert.Equal(t, "ATOMUSDT", FeedFor(OracleBinance, "uatom", "uusdt"))
	assert.Equal(t, "ATOM:USDC", FeedFor(OracleCryptoCompare, "uatom", "uusdc"))
}

func TestLoadConfigRequiresHome(t *testing.T) {
	t.Setenv("BVAULT_HOME", "")
	os.Unsetenv("BVAULT_HOME")

	assert.Error(t, LoadConfig())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BVAULT_HOME", "/tmp/bvault")
	t.Setenv("ORACLE_SOURCE", "")
	t.Setenv("SNAPSHOT_INTERVAL", "90s")
	t.Setenv("DB_NAME", "")
	t.Setenv("STATIC_PRICES", "ATOMUSDC=7.25")
	t.Setenv("VAULT_ACCOUNT", "")
	t.Setenv("API_TOKENS", "")

	require.NoError(t, LoadConfig())
	assert.Empty(t, APITokens)
	assert.Equal(t, "bvault/custody", VaultAccount)
	assert.Equal(t, "7.250000000000000000", StaticPrices["ATOMUSDC"].String())
	assert.False(t, AuditEnabled)
	assert.Equal(t, "goleveldb", DBBackend)
	assert.Equal(t, OracleStatic, OracleSource)
	assert.Equal(t, 90*time.Second, SnapshotInterval)
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("DB_NAME", "bvault")
	t.Setenv("DB_USER", "")
	assert.Error(t, loadDatabaseConfig())

	t.Setenv("DB_USER", "auditor")
	t.Setenv("DB_PORT", "not-a-port")
	assert.Error(t, loadDatabaseConfig())

	t.Setenv("DB_PORT", "6543")
	require.NoError(t, loadDatabaseConfig())
	assert.True(t, AuditEnabled)
	assert.Equal(t, 6543, DBPort)
	assert.Equal(t, "localhost", DBHost)
	assert.Equal(t, "disable", DBSSLMode)
}

func TestParseStaticPrices(t *testing.T) {
	prices, err := parseStaticPrices(" ATOMUSDC=7.25 , OSMOUSDC=0.41,")
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.Equal(t, "0.410000000000000000", prices["OSMOUSDC"].String())

	_, err = parseStaticPrices("ATOMUSDC")
	assert.Error(t, err)
	_, err = parseStaticPrices("ATOMUSDC=-1")
	assert.Error(t, err)

	empty, err := parseStaticPrices("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseAPITokens(t *testing.T) {
	tokens, err := parseAPITokens(" owner-token-0123456789=owner, manager-token-012345=manager ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"owner-token-0123456789": "owner",
		"manager-token-012345":   "manager",
	}, tokens)

	_, err = parseAPITokens("owner-token-0123456789")
	assert.Error(t, err)
	_, err = parseAPITokens("short=owner")
	assert.Error(t, err)
	_, err = parseAPITokens("owner-token-0123456789=")
	assert.Error(t, err)
	_, err = parseAPITokens("owner-token-0123456789=owner,owner-token-0123456789=bob")
	assert.Error(t, err)
}
