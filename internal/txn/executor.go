package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

// Executor runs row actions: guard the control, show the optimistic
// change, relay, then reload the view.
type Executor struct {
	guard   *Guard
	relayer *Relayer
}

func NewExecutor(guard *Guard, relayer *Relayer) *Executor {
	return &Executor{guard: guard, relayer: relayer}
}

type outcome struct {
	receipt *types.Receipt
	err     error
}

// Execute submits s against view. optimistic may be nil.
//
// The relay runs detached from ctx. When ctx ends first the caller gets a
// pending error while the control stays claimed and the optimistic change
// stays layered until the receipt arrives or the receipt timeout expires.
func Execute[T any](ctx context.Context, e *Executor, view *refresh.View[T], s Submission, optimistic func(T) T) (*types.Receipt, error) {
	release, err := e.guard.Acquire(s.Control())
	if err != nil {
		return nil, err
	}

	var changeID uint64
	if optimistic != nil && view != nil {
		changeID = view.ApplyOptimistic(optimistic)
	}

	done := make(chan outcome, 1)
	go func() {
		receipt, err := submit(context.WithoutCancel(ctx), e, view, s, changeID)
		release()
		done <- outcome{receipt: receipt, err: err}
	}()

	select {
	case o := <-done:
		return o.receipt, o.err
	case <-ctx.Done():
		return nil, apperrors.Pending(fmt.Errorf("waiting for %s: %w", s.Control(), ctx.Err()))
	}
}

func submit[T any](ctx context.Context, e *Executor, view *refresh.View[T], s Submission, changeID uint64) (*types.Receipt, error) {
	receipt, err := e.relayer.Submit(ctx, s)
	if err != nil {
		if changeID != 0 {
			view.Discard(changeID)
		}
		return nil, err
	}
	if view == nil {
		return receipt, nil
	}
	if _, err := view.Refresh(ctx); err != nil && !errors.Is(err, refresh.ErrClosed) {
		e.relayer.logger.Warn("Reload after confirmed transaction failed", "view", view.Name(), "error", err.Error())
	}
	if changeID != 0 {
		var block uint64
		if receipt.BlockNumber != nil {
			block = receipt.BlockNumber.Uint64()
		}
		view.Confirm(changeID, block)
	}
	return receipt, nil
}
