/*
The controller is the admission layer of the vault. Every instruction runs on a cached branch of the
store: the pending-operation marker is set on the branch, state is loaded, Authorize decides, the
handler mutates the branch, the marker is cleared, and only then is the branch written back. Any
failure discards the branch, so a failed instruction leaves no trace.
*/

package vault

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/banana-dao/banana-vaults/internal/ledger"
	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
	"github.com/banana-dao/banana-vaults/internal/valuation"
	"github.com/banana-dao/banana-vaults/internal/venue"
)

// Custody moves coins between the vault account and depositors.
type Custody interface {
	SendCoins(ctx context.Context, from, to string, amt sdk.Coins) error
}

// Observer is notified once per instruction, after the branch has been written or discarded.
type Observer interface {
	ObserveInstruction(receipt types.InstructionReceipt)
}

// Controller executes vault instructions.
type Controller struct {
	logger    zerolog.Logger
	ledger    *ledger.Store
	engine    *valuation.Engine
	adapter   *venue.Adapter
	custody   Custody
	account   string
	observers []Observer
}

// Config holds the dependencies of a Controller.
type Config struct {
	Ledger    *ledger.Store
	Engine    *valuation.Engine
	Adapter   *venue.Adapter
	Custody   Custody
	Account   string // Custody account holding vault assets
	Observers []Observer
}

// NewController creates a controller with dependency injection.
func NewController(cfg Config) (*Controller, error) {
	if err := validateControllerConfig(cfg); err != nil {
		return nil, fmt.Errorf("controller configuration validation failed: %w", err)
	}

	c := &Controller{
		logger:    logger.GetForComponent("vault_controller"),
		ledger:    cfg.Ledger,
		engine:    cfg.Engine,
		adapter:   cfg.Adapter,
		custody:   cfg.Custody,
		account:   cfg.Account,
		observers: cfg.Observers,
	}
	c.logger.Info().Str("account", c.account).Int("observers", len(c.observers)).Msg("Vault controller created")
	return c, nil
}

func validateControllerConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Engine == nil {
		return fmt.Errorf("valuation engine cannot be nil")
	}
	if cfg.Adapter == nil {
		return fmt.Errorf("trade adapter cannot be nil")
	}
	if cfg.Custody == nil {
		return fmt.Errorf("custody cannot be nil")
	}
	if cfg.Account == "" {
		return fmt.Errorf("vault account cannot be empty")
	}
	return nil
}

// AddObserver registers o for every following instruction.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Account returns the custody account of the vault.
func (c *Controller) Account() string {
	return c.account
}

// vaultState is the config and status loaded at admission.
type vaultState struct {
	cfg    types.VaultConfig
	status types.VaultStatus
}

func (s vaultState) view(now time.Time) AccessView {
	return AccessView{
		Owner:                s.cfg.Owner,
		Manager:              s.cfg.Manager,
		Lifecycle:            s.status.Lifecycle,
		Halted:               s.status.Halted,
		LastManagerActivity:  s.status.LastManagerActivity,
		MaxManagerInactivity: s.cfg.MaxManagerInactivity,
		Now:                  now,
	}
}

func (c *Controller) loadState(ctx sdk.Context) (vaultState, error) {
	cfg, err := c.ledger.GetConfig(ctx)
	if err != nil {
		return vaultState{}, err
	}
	status, err := c.ledger.GetStatus(ctx)
	if err != nil {
		return vaultState{}, err
	}
	return vaultState{cfg: cfg, status: status}, nil
}

// branch runs fn on a cached branch of ctx under the pending-operation marker and writes the branch back
// only if fn succeeds. The marker is released before the write, on every path.
func branch[T any](c *Controller, ctx sdk.Context, instr Instruction, caller string, fn func(sdk.Context) (T, error)) (T, error) {
	start := time.Now()
	cacheCtx, write := ctx.CacheContext()

	result, err := func() (T, error) {
		var zero T
		release, err := c.ledger.Acquire(cacheCtx, string(instr))
		if err != nil {
			return zero, err
		}
		defer release()
		return fn(cacheCtx)
	}()
	if err == nil {
		write()
	}

	c.finish(ctx, instr, caller, start, result, err)
	return result, err
}

// execute is branch for an instantiated vault: state is loaded and Authorize consulted before fn runs.
func execute[T any](c *Controller, ctx sdk.Context, instr Instruction, caller string, fn func(sdk.Context, vaultState) (T, error)) (T, error) {
	return branch(c, ctx, instr, caller, func(ctx sdk.Context) (T, error) {
		var zero T
		st, err := c.loadState(ctx)
		if err != nil {
			return zero, err
		}
		if d := Authorize(st.view(ctx.BlockTime()), caller, instr); !d.Allowed {
			return zero, d.Reason
		}
		return fn(ctx, st)
	})
}

// reject records an instruction refused on its arguments alone, before any state is read.
func (c *Controller) reject(ctx sdk.Context, instr Instruction, caller string, err error) error {
	c.finish(ctx, instr, caller, time.Now(), nil, err)
	return err
}

func (c *Controller) finish(ctx sdk.Context, instr Instruction, caller string, start time.Time, result any, err error) {
	receipt := types.InstructionReceipt{
		ID:          uuid.New().String(),
		Instruction: string(instr),
		Caller:      caller,
		Success:     err == nil,
		BlockHeight: ctx.BlockHeight(),
		BlockTime:   ctx.BlockTime(),
		Duration:    time.Since(start),
	}

	switch {
	case err == nil:
		receipt.Detail = result
		c.logger.Info().Str("id", receipt.ID).Str("instruction", string(instr)).Str("caller", caller).Dur("duration", receipt.Duration).Msg("Instruction executed")
	case types.IsInvariantBreach(err):
		receipt.ErrorKind, receipt.Message = types.KindOf(err), err.Error()
		c.logger.Error().Err(err).Bool("invariant_breach", true).Str("id", receipt.ID).Str("instruction", string(instr)).Str("caller", caller).Msg("Instruction hit an invariant breach")
	default:
		receipt.ErrorKind, receipt.Message = types.KindOf(err), err.Error()
		c.logger.Warn().Err(err).Str("id", receipt.ID).Str("kind", string(receipt.ErrorKind)).Str("instruction", string(instr)).Str("caller", caller).Msg("Instruction rejected")
	}

	for _, o := range c.observers {
		o.ObserveInstruction(receipt)
	}
}
