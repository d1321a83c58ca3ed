package hospital

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
)

const ActionDeactivate = "deactivate"

type (
	HospitalsState = model.ViewState[views.Rows[model.HospitalDetails]]
	DoctorsState   = model.ViewState[views.Rows[model.DoctorDetails]]
)

type Servicer interface {
	Hospitals(ctx context.Context) (HospitalsState, error)
	PrepareDeactivate(hospital common.Address) (txn.Prepared, error)
	Deactivate(ctx context.Context, from, hospital common.Address, signedTx string) (*types.Receipt, error)
	Doctors(ctx context.Context, hospital common.Address) (DoctorsState, error)
}

// Service backs the admin entities page and the hospital doctors list.
type Service struct {
	rt *views.Runtime
}

func NewService(rt *views.Runtime) *Service {
	return &Service{rt: rt}
}

func (s *Service) hospitals(ctx context.Context) (*refresh.View[views.Rows[model.HospitalDetails]], error) {
	return views.MountStore(ctx, s.rt, views.HospitalsView, func() (statestore.Spec[model.HospitalDetails], error) {
		return views.Hospitals(s.rt)
	})
}

func (s *Service) Hospitals(ctx context.Context) (HospitalsState, error) {
	v, err := s.hospitals(ctx)
	if err != nil {
		return HospitalsState{}, err
	}
	return v.State(), nil
}

func deactivateCall(hospital common.Address) views.Call {
	return views.Call{Contract: contract.Hospital, Method: "deactivateHospital", Args: []interface{}{hospital}}
}

func (s *Service) PrepareDeactivate(hospital common.Address) (txn.Prepared, error) {
	return s.rt.Prepare(deactivateCall(hospital))
}

// Deactivate relays a signed deactivateHospital call. The row shows as
// inactive while the transaction is pending.
func (s *Service) Deactivate(ctx context.Context, from, hospital common.Address, signedTx string) (*types.Receipt, error) {
	v, err := s.hospitals(ctx)
	if err != nil {
		return nil, err
	}
	return views.Submit(ctx, s.rt, v, views.Action{
		View:     views.HospitalsView,
		Name:     ActionDeactivate,
		Subject:  hospital.Hex(),
		Call:     deactivateCall(hospital),
		From:     from,
		SignedTx: signedTx,
	}, views.SetActive[model.HospitalDetails](model.NewKey(hospital, ""), false))
}

// Doctors lists the doctors registered under hospital.
func (s *Service) Doctors(ctx context.Context, hospital common.Address) (DoctorsState, error) {
	key := views.ScopedKey(views.HospitalDoctorsView, hospital)
	v, err := views.MountStore(ctx, s.rt, key, func() (statestore.Spec[model.DoctorDetails], error) {
		return views.HospitalDoctors(s.rt, hospital)
	})
	if err != nil {
		return DoctorsState{}, err
	}
	return v.State(), nil
}
