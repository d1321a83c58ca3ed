package hospital

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/handler/handlertest"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/service/hospital"
	"github.com/jwalitptl/ehr-chainview/internal/txn"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

var (
	hospitalWallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	doctor         = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

type mockHospitals struct{ mock.Mock }

func (m *mockHospitals) Hospitals(ctx context.Context) (hospital.HospitalsState, error) {
	args := m.Called(ctx)
	return args.Get(0).(hospital.HospitalsState), args.Error(1)
}

func (m *mockHospitals) PrepareDeactivate(h common.Address) (txn.Prepared, error) {
	args := m.Called(h)
	return args.Get(0).(txn.Prepared), args.Error(1)
}

func (m *mockHospitals) Deactivate(ctx context.Context, from, h common.Address, signedTx string) (*types.Receipt, error) {
	args := m.Called(ctx, from, h, signedTx)
	r, _ := args.Get(0).(*types.Receipt)
	return r, args.Error(1)
}

func (m *mockHospitals) Doctors(ctx context.Context, h common.Address) (hospital.DoctorsState, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(hospital.DoctorsState), args.Error(1)
}

func TestDoctorsScopedToSessionHospital(t *testing.T) {
	svc := &mockHospitals{}
	engine, g := handlertest.Engine(hospitalWallet, model.RoleHospital)
	NewHandler(svc).RegisterRoutes(g)

	st := hospital.DoctorsState{
		View:     views.HospitalDoctorsView,
		Status:   model.StatusConnected,
		Warnings: []string{"1 of 1 rows could not be confirmed on-chain and may be stale"},
		Data: views.Rows[model.DoctorDetails]{{
			MembershipRecord: model.MembershipRecord{Key: doctor, Active: true},
			Profile:          &model.DoctorDetails{Address: doctor, Name: "Dr. A", Hospital: hospitalWallet},
			Stale:            true,
		}},
	}
	svc.On("Doctors", mock.Anything, hospitalWallet).Return(st, nil).Once()

	w, body := handlertest.Do(t, engine, http.MethodGet, "/api/v1/hospital/doctors", nil)
	require.Equal(t, http.StatusOK, w.Code, body.Message)

	var got hospital.DoctorsState
	require.NoError(t, json.Unmarshal(body.Data, &got))
	require.Len(t, got.Data, 1)
	assert.True(t, got.Data[0].Stale)
	assert.Equal(t, "Dr. A", got.Data[0].Profile.Name)
	assert.Len(t, got.Warnings, 1)
	svc.AssertExpectations(t)
}

func TestDoctorsInternalErrorIsGeneric(t *testing.T) {
	svc := &mockHospitals{}
	engine, g := handlertest.Engine(hospitalWallet, model.RoleHospital)
	NewHandler(svc).RegisterRoutes(g)
	svc.On("Doctors", mock.Anything, hospitalWallet).Return(hospital.DoctorsState{}, errors.New("abi: cannot unmarshal"))

	w, body := handlertest.Do(t, engine, http.MethodGet, "/api/v1/hospital/doctors", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", body.Message)
}
