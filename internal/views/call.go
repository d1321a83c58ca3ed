package views

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/txn"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

// Call is a contract write a row action maps to.
type Call struct {
	Contract contract.Name
	Method   string
	Args     []interface{}
}

// Prepare encodes c for the wallet to sign.
func (rt *Runtime) Prepare(c Call) (txn.Prepared, error) {
	to, data, err := rt.Deployment.Calldata(c.Contract, c.Method, c.Args...)
	if err != nil {
		return txn.Prepared{}, apperrors.BadRequest("cannot encode "+c.Method, err)
	}
	return txn.Prepared{To: to, Data: data}, nil
}

// Action is one signed row action against a mounted view.
type Action struct {
	View     string
	Name     string
	Subject  string
	Call     Call
	From     common.Address
	SignedTx string
}

// Submit relays a signed action. optimistic is shown on view until the
// receipt arrives and may be nil.
func Submit[T any](ctx context.Context, rt *Runtime, view *refresh.View[T], a Action, optimistic func(T) T) (*types.Receipt, error) {
	if rt.Executor == nil {
		return nil, apperrors.Unavailable(errors.New("transaction relay is not configured"))
	}
	prepared, err := rt.Prepare(a.Call)
	if err != nil {
		return nil, err
	}
	return txn.Execute(ctx, rt.Executor, view, txn.Submission{
		View:     a.View,
		Action:   a.Name,
		Subject:  a.Subject,
		Prepared: prepared,
		From:     a.From,
		SignedTx: a.SignedTx,
	}, optimistic)
}
