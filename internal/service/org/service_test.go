package org

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/views"
	"github.com/jwalitptl/ehr-chainview/internal/views/viewstest"
)

var (
	acme    = common.HexToAddress("0x11")
	lab     = common.HexToAddress("0x22")
	patient = common.HexToAddress("0xe0")
)

func TestProfileIsScopedPerWalletAndCategory(t *testing.T) {
	r := viewstest.NewReaders()
	r.Admins[model.NewKey(acme, "insurance")] = model.AdminProfile{Address: acme, Category: model.AdminInsurance, Name: "Acme", Active: true}
	r.Admins[model.NewKey(lab, "research")] = model.AdminProfile{Address: lab, Category: model.AdminResearch, Name: "Lab", Active: true}
	svc := NewService(viewstest.NewRuntime(viewstest.NewChain(12), r.Bundle()))

	st, err := svc.Profile(context.Background(), model.AdminInsurance, acme)
	require.NoError(t, err)
	assert.Equal(t, "Acme", st.Data.Name)
	assert.Equal(t, uint64(12), st.Block)

	st, err = svc.Profile(context.Background(), model.AdminResearch, lab)
	require.NoError(t, err)
	assert.Equal(t, "Lab", st.Data.Name)
	assert.Equal(t, 2, svc.rt.Registry.Len())
}

func TestGroups(t *testing.T) {
	r := viewstest.NewReaders()
	gid := r.AddGroup(7, "Diabetes")
	r.Statuses[viewstest.StatusKey(gid, patient)] = model.ConsentGranted
	c := viewstest.NewChain(40)
	c.Emit(t, contract.Research, "ConsentResponded", 30, 0, gid, patient, uint8(model.ConsentGranted))
	svc := NewService(viewstest.NewRuntime(c, r.Bundle()))

	st, err := svc.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, views.ResearchGroupsView, st.View)
	require.Len(t, st.Data, 1)
	assert.Equal(t, 1, st.Data[0].Counts.Granted)
}

func TestGroupsProviderDown(t *testing.T) {
	r := viewstest.NewReaders()
	r.SetDown(true)
	svc := NewService(viewstest.NewRuntime(viewstest.NewChain(40), r.Bundle()))

	st, err := svc.Groups(context.Background())
	require.NoError(t, err)
	assert.Contains(t, st.Error, "provider unreachable")
}
