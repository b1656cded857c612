/*
Remote price sources quote exchange symbols, not chain denominations.

This file contains the mapping of base denoms to their exchange symbols. A denom without an entry is
upper-cased with its unit prefix stripped ("uatom" becomes "ATOM"). Because odds are it will work.

Keep it up to date for denoms whose symbol differs from the trimmed denom.
*/

package config

import "strings"

var (
	DenomToSymbol = map[string]string{
		"uatom":  "ATOM",
		"uosmo":  "OSMO",
		"utia":   "TIA",
		"untrn":  "NTRN",
		"ustrd":  "STRD",
		"uakt":   "AKT",
		"ukava":  "KAVA",
		"uscrt":  "SCRT",
		"usaga":  "SAGA",
		"ustars": "STARS",
		"uelys":  "ELYS",
		"uusdc":  "USDC",
		"uusdt":  "USDT",
		"wbtc":   "WBTC",
		"weth":   "ETH", // Wrapped ether is quoted as ETH
		"afet":   "FET",
	}
)

// SymbolFor returns the exchange symbol for denom.
func SymbolFor(denom string) string {
	if symbol, ok := DenomToSymbol[denom]; ok {
		return symbol
	}
	trimmed := denom
	if len(trimmed) > 1 && (trimmed[0] == 'u' || trimmed[0] == 'a') {
		trimmed = trimmed[1:]
	}
	return strings.ToUpper(trimmed)
}

// FeedFor builds the feed id a remote source expects for denom quoted in quote, e.g. "ATOMUSDT" for
// Binance and "ATOM:USDT" for CryptoCompare.
func FeedFor(source, denom, quote string) string {
	if source == OracleCryptoCompare {
		return SymbolFor(denom) + ":" + SymbolFor(quote)
	}
	return SymbolFor(denom) + SymbolFor(quote)
}
