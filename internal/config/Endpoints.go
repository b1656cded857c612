package config

import (
	"errors"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/rs/zerolog/log"
)

// Oracle source names accepted in ORACLE_SOURCE.
const (
	OracleStatic        = "static"
	OracleBinance       = "binance"
	OracleCryptoCompare = "cryptocompare"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// OracleSource selects the price source implementation.
	OracleSource string
	// CryptoCompareAPIKey authenticates against CryptoCompare.
	CryptoCompareAPIKey string
	// CryptoCompareBaseURL overrides the CryptoCompare price endpoint.
	CryptoCompareBaseURL string
	// BinanceBaseURL overrides the Binance REST endpoint, e.g. for testnet.
	BinanceBaseURL string
	// PriceCacheTTL memoises remote quotes for this long.
	PriceCacheTTL uint64
	// StaticPrices seeds ORACLE_SOURCE=static, keyed by feed id.
	StaticPrices map[string]sdkmath.LegacyDec
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	OracleSource = getEnvOrDefault("ORACLE_SOURCE", OracleStatic)
	BinanceBaseURL = getEnvOrDefault("BINANCE_BASE_URL", "")
	CryptoCompareBaseURL = getEnvOrDefault("CRYPTOCOMPARE_BASE_URL", "")

	var err error
	switch OracleSource {
	case OracleStatic:
		StaticPrices, err = parseStaticPrices(getEnvOrDefault("STATIC_PRICES", ""))
		if err != nil {
			return err
		}
	case OracleBinance:
	case OracleCryptoCompare:
		CryptoCompareAPIKey, err = getEnv("CRYPTOCOMPARE_API")
		if err != nil {
			return err
		}
	default:
		return errors.New("environment variable ORACLE_SOURCE must be static, binance or cryptocompare, got: " + OracleSource)
	}

	PriceCacheTTL = 5
	if getEnvOrDefault("PRICE_CACHE_TTL_SECONDS", "") != "" {
		PriceCacheTTL, err = getEnvAsUint64("PRICE_CACHE_TTL_SECONDS")
		if err != nil {
			return err
		}
	}

	log.Debug().
		Str("OracleSource", OracleSource).
		Str("BinanceBaseURL", BinanceBaseURL).
		Uint64("PriceCacheTTL", PriceCacheTTL).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// parseStaticPrices parses "FEED=price,FEED=price", e.g. "ATOMUSDC=7.25,OSMOUSDC=0.41".
func parseStaticPrices(raw string) (map[string]sdkmath.LegacyDec, error) {
	prices := make(map[string]sdkmath.LegacyDec)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		feed, value, ok := strings.Cut(entry, "=")
		if !ok || feed == "" {
			return nil, errors.New("environment variable STATIC_PRICES must be FEED=price pairs, got: " + entry)
		}
		price, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(value))
		if err != nil || !price.IsPositive() {
			return nil, errors.New("environment variable STATIC_PRICES has an invalid price for " + feed + ": " + value)
		}
		prices[strings.TrimSpace(feed)] = price
	}
	return prices, nil
}
