package access

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

type State = model.ViewState[views.Rows[model.AccessGrant]]

type Servicer interface {
	Granted(ctx context.Context, patient common.Address) (State, error)
	Patients(ctx context.Context, doctor common.Address) (State, error)
	Prepare(action string, doctor common.Address) (txn.Prepared, error)
	Submit(ctx context.Context, action string, patient, doctor common.Address, signedTx string) (*types.Receipt, error)
}

// Service backs the patient grant access page and the doctor patients
// list. Writes are signed by the patient.
type Service struct {
	rt *views.Runtime
}

func NewService(rt *views.Runtime) *Service {
	return &Service{rt: rt}
}

func (s *Service) granted(ctx context.Context, patient common.Address) (*refresh.View[views.Rows[model.AccessGrant]], error) {
	key := views.ScopedKey(views.PatientAccessView, patient)
	return views.MountStore(ctx, s.rt, key, func() (statestore.Spec[model.AccessGrant], error) {
		return views.PatientAccess(s.rt, patient)
	})
}

// Granted lists the doctors patient has granted access to.
func (s *Service) Granted(ctx context.Context, patient common.Address) (State, error) {
	v, err := s.granted(ctx, patient)
	if err != nil {
		return State{}, err
	}
	return v.State(), nil
}

// Patients lists the patients that granted doctor access.
func (s *Service) Patients(ctx context.Context, doctor common.Address) (State, error) {
	key := views.ScopedKey(views.DoctorPatientsView, doctor)
	v, err := views.MountStore(ctx, s.rt, key, func() (statestore.Spec[model.AccessGrant], error) {
		return views.DoctorPatients(s.rt, doctor)
	})
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

func call(action string, doctor common.Address) views.Call {
	method := "grantAccess"
	if action == ActionRevoke {
		method = "revokeAccess"
	}
	return views.Call{Contract: contract.Patient, Method: method, Args: []interface{}{doctor}}
}

func (s *Service) Prepare(action string, doctor common.Address) (txn.Prepared, error) {
	if err := checkAction(action); err != nil {
		return txn.Prepared{}, err
	}
	return s.rt.Prepare(call(action, doctor))
}

func (s *Service) Submit(ctx context.Context, action string, patient, doctor common.Address, signedTx string) (*types.Receipt, error) {
	if err := checkAction(action); err != nil {
		return nil, err
	}
	v, err := s.granted(ctx, patient)
	if err != nil {
		return nil, err
	}
	key := model.NewKey(doctor, patient.Hex())
	optimistic := views.SetActive[model.AccessGrant](key, false)
	if action == ActionGrant {
		optimistic = views.AppendRow(key, &model.AccessGrant{Patient: patient, Doctor: doctor, Active: true})
	}
	receipt, err := views.Submit(ctx, s.rt, v, views.Action{
		View:     views.PatientAccessView,
		Name:     action,
		Subject:  key.String(),
		Call:     call(action, doctor),
		From:     patient,
		SignedTx: signedTx,
	}, optimistic)
	if err != nil {
		return nil, err
	}
	// the doctor's list changes too
	if err := s.rt.Registry.Refresh(ctx, views.ScopedKey(views.DoctorPatientsView, doctor)); err != nil && err != refresh.ErrClosed {
		s.rt.Log().Debug().Err(err).Msg("Doctor patients refresh failed")
	}
	return receipt, nil
}
