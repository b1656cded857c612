package types

import "cosmossdk.io/collections"

const (
	// ModuleName is the store key and error codespace.
	ModuleName = "bvault"
	// StoreKey is the KV store mounted by the node.
	StoreKey = ModuleName
)

// Ledger records.
var (
	ConfigKey       = collections.NewPrefix(0)
	StatusKey       = collections.NewPrefix(1)
	TotalSharesKey  = collections.NewPrefix(2)
	PositionsPrefix = collections.NewPrefix(3)
	HoldingsPrefix  = collections.NewPrefix(4)
	PendingKey      = collections.NewPrefix(5)
	WhitelistPrefix = collections.NewPrefix(6)
)

// Host custody records.
var (
	BalancesPrefix = collections.NewPrefix(16)
)

// Venue records.
var (
	PoolsPrefix = collections.NewPrefix(32)
	PoolSeqKey  = collections.NewPrefix(33)
)
