package role

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
	"github.com/jwalitptl/ehr-chainview/internal/txn"
	"github.com/jwalitptl/ehr-chainview/internal/views"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

const (
	ActionGrant  = "grant"
	ActionRevoke = "revoke"
)

type State = model.ViewState[views.Rows[views.RoleGrant]]

type Servicer interface {
	Roles(ctx context.Context) (State, error)
	Prepare(action string, role model.RoleID, account common.Address) (txn.Prepared, error)
	Submit(ctx context.Context, action string, from common.Address, role model.RoleID, account common.Address, signedTx string) (*types.Receipt, error)
}

// Service backs the access control page: role grants on the doctor
// registry.
type Service struct {
	rt *views.Runtime
}

func NewService(rt *views.Runtime) *Service {
	return &Service{rt: rt}
}

func (s *Service) view(ctx context.Context) (*refresh.View[views.Rows[views.RoleGrant]], error) {
	return views.MountStore(ctx, s.rt, views.RolesView, func() (statestore.Spec[views.RoleGrant], error) {
		return views.Roles(s.rt)
	})
}

func (s *Service) Roles(ctx context.Context) (State, error) {
	v, err := s.view(ctx)
	if err != nil {
		return State{}, err
	}
	return v.State(), nil
}

func checkAction(action string) error {
	if action != ActionGrant && action != ActionRevoke {
		return apperrors.BadRequest("unknown action "+action, nil)
	}
	return nil
}

func call(action string, role model.RoleID, account common.Address) views.Call {
	method := "grantRole"
	if action == ActionRevoke {
		method = "revokeRole"
	}
	return views.Call{Contract: contract.Doctor, Method: method, Args: []interface{}{role, account}}
}

func (s *Service) Prepare(action string, role model.RoleID, account common.Address) (txn.Prepared, error) {
	if err := checkAction(action); err != nil {
		return txn.Prepared{}, err
	}
	return s.rt.Prepare(call(action, role, account))
}

// Submit relays a signed grantRole or revokeRole. A grant shows the row
// immediately; a revoke shows it inactive.
func (s *Service) Submit(ctx context.Context, action string, from common.Address, role model.RoleID, account common.Address, signedTx string) (*types.Receipt, error) {
	if err := checkAction(action); err != nil {
		return nil, err
	}
	v, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	key := model.NewKey(account, role.Hex())
	optimistic := views.SetActive[views.RoleGrant](key, false)
	if action == ActionGrant {
		optimistic = views.AppendRow(key, &views.RoleGrant{Role: role, Label: model.RoleLabel(role), Account: account})
	}
	return views.Submit(ctx, s.rt, v, views.Action{
		View:     views.RolesView,
		Name:     action,
		Subject:  key.String(),
		Call:     call(action, role, account),
		From:     from,
		SignedTx: signedTx,
	}, optimistic)
}
