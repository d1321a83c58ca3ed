package research

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/txn"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

const ActionRespond = "respond"

type State = model.ViewState[[]model.GroupRequest]

type Servicer interface {
	Requests(ctx context.Context, patient common.Address) (State, error)
	Prepare(groupID *big.Int, grant bool) (txn.Prepared, error)
	Respond(ctx context.Context, patient common.Address, groupID *big.Int, grant bool, signedTx string) (*types.Receipt, error)
}

// Service backs the patient research requests page.
type Service struct {
	rt *views.Runtime
}

func NewService(rt *views.Runtime) *Service {
	return &Service{rt: rt}
}

func (s *Service) view(ctx context.Context, patient common.Address) (*refresh.View[[]model.GroupRequest], error) {
	key := views.ScopedKey(views.ResearchRequestsView, patient)
	return views.MountLoader(ctx, s.rt, key, views.ResearchRequests(s.rt, patient))
}

func (s *Service) Requests(ctx context.Context, patient common.Address) (State, error) {
	v, err := s.view(ctx, patient)
	if err != nil {
		return State{}, err
	}
	return v.State(), nil
}

func call(groupID *big.Int, grant bool) views.Call {
	return views.Call{Contract: contract.Research, Method: "respondToGroupRequest", Args: []interface{}{groupID, grant}}
}

func (s *Service) Prepare(groupID *big.Int, grant bool) (txn.Prepared, error) {
	return s.rt.Prepare(call(groupID, grant))
}

// Respond relays the patient's consent answer for one group.
func (s *Service) Respond(ctx context.Context, patient common.Address, groupID *big.Int, grant bool, signedTx string) (*types.Receipt, error) {
	v, err := s.view(ctx, patient)
	if err != nil {
		return nil, err
	}
	status := model.ConsentRejected
	if grant {
		status = model.ConsentGranted
	}
	return views.Submit(ctx, s.rt, v, views.Action{
		View:     views.ResearchRequestsView,
		Name:     ActionRespond,
		Subject:  groupID.String() + ":" + patient.Hex(),
		Call:     call(groupID, grant),
		From:     patient,
		SignedTx: signedTx,
	}, views.SetConsent(groupID, status))
}
