package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/views"
	"github.com/jwalitptl/ehr-chainview/internal/views/viewstest"
)

var (
	alpha = common.HexToAddress("0xa1")
	beta  = common.HexToAddress("0xb2")
	acme  = common.HexToAddress("0x11")
)

func newService(t *testing.T) (*Service, *viewstest.Chain) {
	t.Helper()
	c := viewstest.NewChain(30)
	c.Emit(t, contract.Hospital, "HospitalRegistered", 10, 0, alpha, "Alpha", "R-1")
	c.Emit(t, contract.Hospital, "HospitalRegistered", 11, 0, beta, "Beta", "R-2")
	c.Emit(t, contract.EMR, "InsuranceAdminAdded", 12, 0, acme, "Acme", "I-1")
	r := viewstest.NewReaders()
	r.Hospitals[alpha] = model.HospitalDetails{EntityProfile: model.EntityProfile{Address: alpha, Name: "Alpha", IsActive: true}}
	r.Hospitals[beta] = model.HospitalDetails{EntityProfile: model.EntityProfile{Address: beta, Name: "Beta", IsActive: true}}
	r.Admins[model.NewKey(acme, "insurance")] = model.AdminProfile{Address: acme, Category: model.AdminInsurance, Name: "Acme", Active: true}
	return NewService(viewstest.NewRuntime(c, r.Bundle()), nil), c
}

func TestAnalyticsMountsOnce(t *testing.T) {
	svc, _ := newService(t)
	svc.now = func() time.Time { return time.Unix(5000, 0) }

	st, err := svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, views.AnalyticsView, st.View)
	assert.Equal(t, uint64(30), st.Block)
	assert.Equal(t, 2, st.Data.Hospitals)
	assert.Equal(t, 1, st.Data.Insurers)
	assert.Equal(t, 3, st.Data.Active)
	assert.Len(t, st.Data.DoctorsPerHospital, 2)
	assert.Contains(t, st.Warnings, "registration series unavailable: no block time source")

	_, err = svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, svc.rt.Registry.Len())
}

func TestSearchFiltersSharedView(t *testing.T) {
	svc, _ := newService(t)

	all, err := svc.Search(context.Background(), model.SearchQuery{})
	require.NoError(t, err)
	assert.Len(t, all.Data, 3)

	st, err := svc.Search(context.Background(), model.SearchQuery{Query: "acme"})
	require.NoError(t, err)
	require.Len(t, st.Data, 1)
	assert.Equal(t, model.AdminInsurance, st.Data[0].Type)

	st, err = svc.Search(context.Background(), model.SearchQuery{Type: "hospital", Query: "beta"})
	require.NoError(t, err)
	require.Len(t, st.Data, 1)
	assert.Equal(t, beta, st.Data[0].Address)
	assert.Equal(t, 1, svc.rt.Registry.Len())
}

func TestSearchHeadFailure(t *testing.T) {
	svc, c := newService(t)
	c.SetHead(0, viewstest.ErrUnreachable)

	st, err := svc.Search(context.Background(), model.SearchQuery{})
	require.NoError(t, err)
	assert.Contains(t, st.Error, "provider unreachable")
	assert.Empty(t, st.Data)
}
