package ledger

import (
	"context"

	errorsmod "cosmossdk.io/errors"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// Acquire sets the pending-operation marker for op. The returned release clears it and must be deferred by
// the caller so the marker is cleared on every exit path. A marker already present means op was invoked
// from inside another instruction.
func (s *Store) Acquire(ctx context.Context, op string) (release func(), err error) {
	held, err := s.Pending.Has(ctx)
	if err != nil {
		return nil, err
	}
	if held {
		holder, err := s.Pending.Get(ctx)
		if err != nil {
			return nil, err
		}
		return nil, errorsmod.Wrapf(types.ErrReentrancyRejected, "%s attempted while %s is in flight", op, holder)
	}
	if err := s.Pending.Set(ctx, op); err != nil {
		return nil, err
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		_ = s.Pending.Remove(ctx)
	}, nil
}

// PendingOp reports the instruction currently holding the marker, if any.
func (s *Store) PendingOp(ctx context.Context) (string, bool, error) {
	held, err := s.Pending.Has(ctx)
	if err != nil || !held {
		return "", false, err
	}
	op, err := s.Pending.Get(ctx)
	return op, err == nil, err
}
