package dashboard

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/views/viewstest"
)

func TestOverview(t *testing.T) {
	c := viewstest.NewChain(30)
	a := common.HexToAddress("0xa1")
	c.Emit(t, contract.Hospital, "HospitalRegistered", 10, 0, a, "Alpha", "R-1")
	r := viewstest.NewReaders()
	r.Hospitals[a] = model.HospitalDetails{EntityProfile: model.EntityProfile{Address: a, Name: "Alpha", IsActive: true}}
	svc := NewService(viewstest.NewRuntime(c, r.Bundle()))

	st, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Data.Hospitals)
	assert.Equal(t, 1, st.Data.Active)
	require.Len(t, st.Data.Recent, 1)
	assert.Equal(t, "Alpha", st.Data.Recent[0].Name)
	assert.Equal(t, uint64(30), st.Block)
}

func TestOverviewHeadFailure(t *testing.T) {
	c := viewstest.NewChain(30)
	c.SetHead(0, viewstest.ErrUnreachable)
	svc := NewService(viewstest.NewRuntime(c, viewstest.NewReaders().Bundle()))

	st, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Contains(t, st.Error, "provider unreachable")
	assert.False(t, st.Loading)
}
