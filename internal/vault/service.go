package vault

import (
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// Service defines the instruction and query surface offered to transports (HTTP API, CLI).
// Implementations own block production, so callers never handle an sdk.Context.
type Service interface {
	// Instantiate creates the vault. It can succeed once.
	Instantiate(caller string, cfg types.VaultConfig) (types.VaultInfo, error)

	// Deposit adds coin to the vault and mints shares to caller.
	Deposit(caller string, coin sdk.Coin) (types.DepositResult, error)

	// Withdraw burns shares of caller and pays out the pro-rata slice of holdings.
	Withdraw(caller string, shares sdkmath.Int) (types.WithdrawResult, error)

	// ManagerTrade executes a manager trade under the slippage bound.
	ManagerTrade(caller string, route types.Route, amountIn, minAmountOut sdkmath.Int) (types.TradeResult, error)

	SetStatus(caller string, lifecycle types.Lifecycle) (types.VaultStatus, error)
	Halt(caller string) (types.VaultStatus, error)
	Resume(caller string) (types.VaultStatus, error)
	Unlock(caller string) (types.VaultStatus, error)
	UpdateConfig(caller string, update types.ConfigUpdate) (types.VaultConfig, error)
	UpdateManager(caller, manager string) (types.VaultConfig, error)
	UpdateWhitelist(caller string, add, remove []string) ([]string, error)
	ForceExit(caller, account string) (types.WithdrawResult, error)

	VaultInfo() (types.VaultInfo, error)
	NAV() (types.NAVResponse, error)
	AccountShares(addr string) (types.AccountShares, error)
	Whitelist() ([]string, error)
}

// Host runs functions against the vault store. Execute commits what fn leaves behind; Query never does.
type Host interface {
	Execute(fn func(ctx sdk.Context) error) error
	Query(fn func(ctx sdk.Context) error) error
}

// LocalService binds a Controller to a Host.
type LocalService struct {
	host       Host
	controller *Controller
}

var _ Service = (*LocalService)(nil)

// NewLocalService creates a service executing on host.
func NewLocalService(host Host, controller *Controller) *LocalService {
	return &LocalService{host: host, controller: controller}
}

func hostExecute[T any](host Host, fn func(ctx sdk.Context) (T, error)) (T, error) {
	var out T
	err := host.Execute(func(ctx sdk.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func hostQuery[T any](host Host, fn func(ctx sdk.Context) (T, error)) (T, error) {
	var out T
	err := host.Query(func(ctx sdk.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (s *LocalService) Instantiate(caller string, cfg types.VaultConfig) (types.VaultInfo, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.VaultInfo, error) {
		return s.controller.Instantiate(ctx, caller, cfg)
	})
}

func (s *LocalService) Deposit(caller string, coin sdk.Coin) (types.DepositResult, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.DepositResult, error) {
		return s.controller.Deposit(ctx, caller, coin)
	})
}

func (s *LocalService) Withdraw(caller string, shares sdkmath.Int) (types.WithdrawResult, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.WithdrawResult, error) {
		return s.controller.Withdraw(ctx, caller, shares)
	})
}

func (s *LocalService) ManagerTrade(caller string, route types.Route, amountIn, minAmountOut sdkmath.Int) (types.TradeResult, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.TradeResult, error) {
		return s.controller.ManagerTrade(ctx, caller, route, amountIn, minAmountOut)
	})
}

func (s *LocalService) SetStatus(caller string, lifecycle types.Lifecycle) (types.VaultStatus, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.VaultStatus, error) {
		return s.controller.SetStatus(ctx, caller, lifecycle)
	})
}

func (s *LocalService) Halt(caller string) (types.VaultStatus, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.VaultStatus, error) {
		return s.controller.Halt(ctx, caller)
	})
}

func (s *LocalService) Resume(caller string) (types.VaultStatus, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.VaultStatus, error) {
		return s.controller.Resume(ctx, caller)
	})
}

func (s *LocalService) Unlock(caller string) (types.VaultStatus, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.VaultStatus, error) {
		return s.controller.Unlock(ctx, caller)
	})
}

func (s *LocalService) UpdateConfig(caller string, update types.ConfigUpdate) (types.VaultConfig, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.VaultConfig, error) {
		return s.controller.UpdateConfig(ctx, caller, update)
	})
}

func (s *LocalService) UpdateManager(caller, manager string) (types.VaultConfig, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.VaultConfig, error) {
		return s.controller.UpdateManager(ctx, caller, manager)
	})
}

func (s *LocalService) UpdateWhitelist(caller string, add, remove []string) ([]string, error) {
	return hostExecute(s.host, func(ctx sdk.Context) ([]string, error) {
		return s.controller.UpdateWhitelist(ctx, caller, add, remove)
	})
}

func (s *LocalService) ForceExit(caller, account string) (types.WithdrawResult, error) {
	return hostExecute(s.host, func(ctx sdk.Context) (types.WithdrawResult, error) {
		return s.controller.ForceExit(ctx, caller, account)
	})
}

func (s *LocalService) VaultInfo() (types.VaultInfo, error) {
	return hostQuery(s.host, s.controller.VaultInfo)
}

func (s *LocalService) NAV() (types.NAVResponse, error) {
	return hostQuery(s.host, s.controller.NAV)
}

func (s *LocalService) AccountShares(addr string) (types.AccountShares, error) {
	return hostQuery(s.host, func(ctx sdk.Context) (types.AccountShares, error) {
		return s.controller.AccountShares(ctx, addr)
	})
}

func (s *LocalService) Whitelist() ([]string, error) {
	return hostQuery(s.host, s.controller.Whitelist)
}
