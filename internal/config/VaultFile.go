package config

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/viper"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// assetFile is one entry of the "assets" list in the instantiate file. Amounts are strings so
// values beyond 64 bits survive the decoder.
type assetFile struct {
	Denom       string `mapstructure:"denom"`
	FeedID      string `mapstructure:"feed_id"`
	Decimals    uint32 `mapstructure:"decimals"`
	MinDeposit  string `mapstructure:"min_deposit"`
	Depositable *bool  `mapstructure:"depositable"`
}

// LoadVaultFile reads an instantiate file (YAML, JSON or TOML by extension). Top-level keys may be
// overridden by BVAULT_* environment variables, e.g. BVAULT_MANAGER. Unset risk fields take
// DefaultVaultParameters.
func LoadVaultFile(path string) (types.VaultConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return types.VaultConfig{}, fmt.Errorf("failed to read vault file %s: %w", path, err)
	}
	return vaultConfigFrom(v)
}

func vaultConfigFrom(v *viper.Viper) (types.VaultConfig, error) {
	cfg := types.VaultConfig{
		ReferenceDenom:       v.GetString("reference_denom"),
		ShareDenom:           v.GetString("share_denom"),
		Owner:                v.GetString("owner"),
		Manager:              v.GetString("manager"),
		MaxPriceAge:          v.GetDuration("max_price_age"),
		MaxPriceSkew:         v.GetDuration("max_price_skew"),
		MaxConfidenceBps:     v.GetUint32("max_confidence_bps"),
		SlippageToleranceBps: v.GetUint32("slippage_tolerance_bps"),
		MaxManagerInactivity: v.GetDuration("max_manager_inactivity"),
	}

	var err error
	if cfg.DepositCap, err = parseInt(v.GetString("deposit_cap"), "deposit_cap"); err != nil {
		return types.VaultConfig{}, err
	}
	if cfg.MinRedemption, err = parseInt(v.GetString("min_redemption"), "min_redemption"); err != nil {
		return types.VaultConfig{}, err
	}

	var assets []assetFile
	if err := v.UnmarshalKey("assets", &assets); err != nil {
		return types.VaultConfig{}, fmt.Errorf("failed to decode assets: %w", err)
	}
	for _, a := range assets {
		minDeposit, err := parseInt(a.MinDeposit, "min_deposit of "+a.Denom)
		if err != nil {
			return types.VaultConfig{}, err
		}
		depositable := true
		if a.Depositable != nil {
			depositable = *a.Depositable
		}
		cfg.Assets = append(cfg.Assets, types.Asset{
			Denom:       a.Denom,
			FeedID:      a.FeedID,
			Decimals:    a.Decimals,
			MinDeposit:  minDeposit,
			Depositable: depositable,
		})
	}

	DefaultVaultParameters.ApplyTo(&cfg)
	cfg.Normalize()
	return cfg, nil
}

func parseInt(raw, field string) (sdkmath.Int, error) {
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	amount, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%s must be an integer, got: %s", field, raw)
	}
	return amount, nil
}
