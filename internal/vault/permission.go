package vault

import (
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// Instruction names a state-changing vault operation.
type Instruction string

const (
	InstrInstantiate     Instruction = "Instantiate"
	InstrDeposit         Instruction = "Deposit"
	InstrWithdraw        Instruction = "Withdraw"
	InstrManagerTrade    Instruction = "ManagerTrade"
	InstrSetStatus       Instruction = "SetStatus"
	InstrHalt            Instruction = "Halt"
	InstrResume          Instruction = "Resume"
	InstrUnlock          Instruction = "Unlock"
	InstrUpdateConfig    Instruction = "UpdateConfig"
	InstrUpdateManager   Instruction = "UpdateManager"
	InstrUpdateWhitelist Instruction = "UpdateWhitelist"
	InstrForceExit       Instruction = "ForceExit"
)

// AccessView is the slice of vault state a permission decision depends on.
type AccessView struct {
	Owner                string
	Manager              string
	Lifecycle            types.Lifecycle
	Halted               bool
	LastManagerActivity  time.Time
	MaxManagerInactivity time.Duration
	Now                  time.Time
}

// Decision is the outcome of Authorize. Reason is nil when Allowed.
type Decision struct {
	Allowed bool
	Reason  error
}

func allow() Decision { return Decision{Allowed: true} }

func deny(err error, format string, args ...any) Decision {
	return Decision{Reason: errorsmod.Wrapf(err, format, args...)}
}

// Authorize decides whether caller may run instr against view. It has no side effects and reads nothing
// beyond its arguments. Value-dependent checks (cap, minimums, balances) belong to the handlers.
func Authorize(view AccessView, caller string, instr Instruction) Decision {
	if caller == "" {
		return deny(types.ErrUnauthorized, "%s requires a caller", instr)
	}

	switch instr {
	case InstrInstantiate, InstrWithdraw:
		return allow()

	case InstrDeposit:
		if view.Lifecycle != types.StatusOpen {
			return deny(types.ErrVaultClosed, "deposits are not accepted")
		}
		if view.Halted {
			return deny(types.ErrVaultHalted, "deposits are paused")
		}
		return allow()

	case InstrManagerTrade:
		if caller != view.Manager {
			return deny(types.ErrUnauthorized, "%s is not the manager", caller)
		}
		if view.Lifecycle != types.StatusOpen {
			return deny(types.ErrVaultClosed, "trading is disabled")
		}
		if view.Halted {
			return deny(types.ErrVaultHalted, "trading is paused")
		}
		return allow()

	case InstrSetStatus, InstrHalt, InstrResume, InstrUpdateConfig, InstrUpdateManager, InstrUpdateWhitelist:
		if caller != view.Owner {
			return deny(types.ErrUnauthorized, "%s is not the owner", caller)
		}
		return allow()

	case InstrForceExit:
		if caller != view.Owner {
			return deny(types.ErrUnauthorized, "%s is not the owner", caller)
		}
		if view.Lifecycle != types.StatusClosed {
			return deny(types.ErrInvalidTransition, "force exit requires a closed vault")
		}
		return allow()

	case InstrUnlock:
		if view.Lifecycle != types.StatusOpen {
			return deny(types.ErrInvalidTransition, "vault is already closed")
		}
		idle := view.Now.Sub(view.LastManagerActivity)
		if idle < view.MaxManagerInactivity {
			return deny(types.ErrManagerActive, "manager active %s ago, unlock after %s", idle, view.MaxManagerInactivity)
		}
		return allow()
	}

	return deny(types.ErrUnauthorized, "unknown instruction %q", instr)
}
