package org

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/handler/handlertest"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	orgsvc "github.com/jwalitptl/ehr-chainview/internal/service/org"
	"github.com/jwalitptl/ehr-chainview/internal/views"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

var (
	insurer = common.HexToAddress("0x0000000000000000000000000000000000000011")
	lab     = common.HexToAddress("0x0000000000000000000000000000000000000022")
)

type mockOrgs struct{ mock.Mock }

func (m *mockOrgs) Profile(ctx context.Context, category model.AdminCategory, wallet common.Address) (orgsvc.ProfileState, error) {
	args := m.Called(ctx, category, wallet)
	return args.Get(0).(orgsvc.ProfileState), args.Error(1)
}

func (m *mockOrgs) Groups(ctx context.Context) (orgsvc.GroupsState, error) {
	args := m.Called(ctx)
	return args.Get(0).(orgsvc.GroupsState), args.Error(1)
}

func setup(category model.AdminCategory, wallet common.Address, role model.Role) (*mockOrgs, http.Handler) {
	m := &mockOrgs{}
	engine, g := handlertest.Engine(wallet, role)
	NewHandler(category, m).RegisterRoutes(g)
	return m, engine
}

func TestInsuranceProfileUsesSessionWallet(t *testing.T) {
	m, engine := setup(model.AdminInsurance, insurer, model.RoleInsurance)
	st := orgsvc.ProfileState{View: views.OrgProfileView, Block: 8, Data: model.AdminProfile{Address: insurer, Category: model.AdminInsurance, Name: "Acme", Active: true}}
	m.On("Profile", mock.Anything, model.AdminInsurance, insurer).Return(st, nil)

	w, body := handlertest.Do(t, engine, http.MethodGet, "/api/v1/insurance/profile", nil)
	require.Equal(t, http.StatusOK, w.Code, body.Message)
	var got orgsvc.ProfileState
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "Acme", got.Data.Name)
	m.AssertExpectations(t)

	// groups belong to research organisations only
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/insurance/groups", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResearchGroups(t *testing.T) {
	m, engine := setup(model.AdminResearch, lab, model.RoleResearch)
	st := orgsvc.GroupsState{View: views.ResearchGroupsView, Block: 21, Data: []model.GroupSummary{{
		Group:    model.ResearchGroup{ID: big.NewInt(3), Name: "Cardio"},
		Counts:   model.ConsentCounts{Total: 2, Granted: 1, Pending: 1},
		Patients: []model.PatientConsent{},
	}}}
	m.On("Groups", mock.Anything).Return(st, nil)

	w, body := handlertest.Do(t, engine, http.MethodGet, "/api/v1/research/groups", nil)
	require.Equal(t, http.StatusOK, w.Code, body.Message)

	var got struct {
		Block uint64 `json:"block"`
		Data  []struct {
			Group  struct{ Name string } `json:"group"`
			Counts model.ConsentCounts   `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, uint64(21), got.Block)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "Cardio", got.Data[0].Group.Name)
	assert.Equal(t, 1, got.Data[0].Counts.Pending)
}

func TestResearchGroupsUnavailable(t *testing.T) {
	m, engine := setup(model.AdminResearch, lab, model.RoleResearch)
	m.On("Groups", mock.Anything).Return(orgsvc.GroupsState{}, apperrors.Unavailable(assertErr("dial tcp: connection refused")))

	w, body := handlertest.Do(t, engine, http.MethodGet, "/api/v1/research/groups", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "chain provider unavailable", body.Message)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
