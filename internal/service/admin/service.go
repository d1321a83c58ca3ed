package admin

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/merger"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
	"github.com/jwalitptl/ehr-chainview/internal/txn"
	"github.com/jwalitptl/ehr-chainview/internal/views"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

type State = model.ViewState[views.Rows[model.AdminProfile]]

// Change describes one admin write. Name, RegistrationNumber and Active
// are ignored by remove; Active is ignored by add.
type Change struct {
	Action             string
	Category           model.AdminCategory
	Wallet             common.Address
	Name               string
	RegistrationNumber string
	Active             bool
}

type Servicer interface {
	Admins(ctx context.Context, category model.AdminCategory) (State, error)
	Prepare(c Change) (txn.Prepared, error)
	Submit(ctx context.Context, from common.Address, c Change, signedTx string) (*types.Receipt, error)
}

// Service backs the users and roles page: EMRSystem admins of every
// category.
type Service struct {
	rt *views.Runtime
}

func NewService(rt *views.Runtime) *Service {
	return &Service{rt: rt}
}

func (s *Service) view(ctx context.Context) (*refresh.View[views.Rows[model.AdminProfile]], error) {
	return views.MountStore(ctx, s.rt, views.AdminsView, func() (statestore.Spec[model.AdminProfile], error) {
		return views.Admins(s.rt)
	})
}

// Admins returns the admins view, narrowed to one category when category
// is set.
func (s *Service) Admins(ctx context.Context, category model.AdminCategory) (State, error) {
	v, err := s.view(ctx)
	if err != nil {
		return State{}, err
	}
	st := v.State()
	if category == "" {
		return st, nil
	}
	rows := make(views.Rows[model.AdminProfile], 0, len(st.Data))
	for _, r := range st.Data {
		if r.Role == string(category) {
			rows = append(rows, r)
		}
	}
	st.Data = rows
	return st, nil
}

func call(c Change) (views.Call, error) {
	prefix := views.AdminEvent(c.Category, "")
	if prefix == "" {
		return views.Call{}, apperrors.BadRequest("unknown admin category", nil)
	}
	switch c.Action {
	case ActionAdd:
		return views.Call{Contract: contract.EMR, Method: "add" + prefix, Args: []interface{}{c.Wallet, c.Name, c.RegistrationNumber}}, nil
	case ActionUpdate:
		return views.Call{Contract: contract.EMR, Method: "update" + prefix, Args: []interface{}{c.Wallet, c.Name, c.RegistrationNumber, c.Active}}, nil
	case ActionRemove:
		return views.Call{Contract: contract.EMR, Method: "remove" + prefix, Args: []interface{}{c.Wallet}}, nil
	}
	return views.Call{}, apperrors.BadRequest("unknown admin action "+c.Action, nil)
}

func (s *Service) Prepare(c Change) (txn.Prepared, error) {
	cl, err := call(c)
	if err != nil {
		return txn.Prepared{}, err
	}
	return s.rt.Prepare(cl)
}

func (s *Service) Submit(ctx context.Context, from common.Address, c Change, signedTx string) (*types.Receipt, error) {
	cl, err := call(c)
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	key := model.NewKey(c.Wallet, string(c.Category))
	return views.Submit(ctx, s.rt, v, views.Action{
		View:     views.AdminsView,
		Name:     c.Action,
		Subject:  key.String(),
		Call:     cl,
		From:     from,
		SignedTx: signedTx,
	}, optimistic(key, c))
}

func optimistic(key model.Key, c Change) func(views.Rows[model.AdminProfile]) views.Rows[model.AdminProfile] {
	profile := model.AdminProfile{
		Address:            c.Wallet,
		Category:           c.Category,
		Name:               c.Name,
		RegistrationNumber: c.RegistrationNumber,
		Active:             true,
	}
	switch c.Action {
	case ActionAdd:
		return views.AppendRow(key, &profile)
	case ActionUpdate:
		profile.Active = c.Active
		return views.UpdateRow(key, func(r merger.Row[model.AdminProfile]) merger.Row[model.AdminProfile] {
			r.Active = c.Active
			r.Profile = &profile
			return r
		})
	default:
		return views.SetActive[model.AdminProfile](key, false)
	}
}
