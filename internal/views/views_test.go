package views_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
	"github.com/jwalitptl/ehr-chainview/internal/views"
	"github.com/jwalitptl/ehr-chainview/internal/views/viewstest"
)

var (
	alpha   = common.HexToAddress("0xa1")
	beta    = common.HexToAddress("0xb2")
	doctor  = common.HexToAddress("0xd0")
	doctor2 = common.HexToAddress("0xd1")
	patient = common.HexToAddress("0xe0")
	other   = common.HexToAddress("0xe1")
)

func TestHospitalsMountAndLiveOverride(t *testing.T) {
	c := viewstest.NewChain(50)
	c.Emit(t, contract.Hospital, "HospitalRegistered", 10, 0, alpha, "Alpha", "R-1")
	c.Emit(t, contract.Hospital, "HospitalRegistered", 11, 0, beta, "Beta", "R-2")
	c.Emit(t, contract.Hospital, "HospitalDeactivated", 12, 3, beta)

	r := viewstest.NewReaders()
	r.Hospitals[alpha] = model.HospitalDetails{EntityProfile: model.EntityProfile{Address: alpha, Name: "Alpha General", IsActive: true}}
	rt := viewstest.NewRuntime(c, r.Bundle())

	view, err := views.MountStore(context.Background(), rt, views.HospitalsView, func() (statestore.Spec[model.HospitalDetails], error) {
		return views.Hospitals(rt)
	})
	require.NoError(t, err)

	st := view.State()
	assert.Equal(t, uint64(50), st.Block)
	require.Len(t, st.Data, 2)

	assert.Equal(t, alpha, st.Data[0].Key)
	assert.True(t, st.Data[0].Active)
	assert.False(t, st.Data[0].Stale)
	assert.Equal(t, "Alpha General", st.Data[0].Profile.Name)

	// beta has no live details, so it falls back to its registration event
	assert.Equal(t, beta, st.Data[1].Key)
	assert.False(t, st.Data[1].Active)
	assert.True(t, st.Data[1].Stale)
	assert.Equal(t, "Beta", st.Data[1].Profile.Name)
	assert.Equal(t, "R-2", st.Data[1].Profile.RegistrationNumber)
	require.Len(t, st.Warnings, 1)
	assert.Contains(t, st.Warnings[0], "1 of 2 rows")
}

func TestHospitalsFailingFiltersYieldWarnings(t *testing.T) {
	c := viewstest.NewChain(50)
	c.Emit(t, contract.Hospital, "HospitalRegistered", 10, 0, alpha, "Alpha", "R-1")
	c.Fail(contract.Hospital, "HospitalRegistered", errors.New("boom"))
	c.Fail(contract.Hospital, "HospitalDeactivated", errors.New("boom"))
	rt := viewstest.NewRuntime(c, viewstest.NewReaders().Bundle())

	spec, err := views.Hospitals(rt)
	require.NoError(t, err)
	snap, err := views.NewStore(rt, spec).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Rows)
	assert.Len(t, snap.Warnings, 2)
}

func TestRolesKeyedByAccountAndRole(t *testing.T) {
	c := viewstest.NewChain(30)
	admin := common.HexToAddress("0xad")
	c.Emit(t, contract.Doctor, "RoleGranted", 5, 0, model.DoctorRole, doctor, admin)
	c.Emit(t, contract.Doctor, "RoleGranted", 5, 1, model.HospitalAdminRole, doctor, admin)
	c.Emit(t, contract.Doctor, "RoleRevoked", 6, 0, model.DoctorRole, doctor, admin)

	r := viewstest.NewReaders()
	r.Roles[model.NewKey(doctor, model.HospitalAdminRole.Hex())] = true
	rt := viewstest.NewRuntime(c, r.Bundle())

	spec, err := views.Roles(rt)
	require.NoError(t, err)
	snap, err := views.NewStore(rt, spec).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)

	byLabel := map[string]bool{}
	for _, row := range snap.Rows {
		require.NotNil(t, row.Profile)
		byLabel[row.Profile.Label] = row.Active
	}
	assert.Equal(t, map[string]bool{"DOCTOR_ROLE": false, "HOSPITAL_ADMIN_ROLE": true}, byLabel)
}

func TestAdminsAcrossCategories(t *testing.T) {
	c := viewstest.NewChain(40)
	ins := common.HexToAddress("0x11")
	res := common.HexToAddress("0x22")
	c.Emit(t, contract.EMR, "InsuranceAdminAdded", 3, 0, ins, "Acme Insurance", "I-1")
	c.Emit(t, contract.EMR, "ResearchAdminAdded", 4, 0, res, "Lab", "L-1")
	c.Emit(t, contract.EMR, "ResearchAdminRemoved", 7, 0, res)

	r := viewstest.NewReaders()
	r.Admins[model.NewKey(ins, "insurance")] = model.AdminProfile{Address: ins, Category: model.AdminInsurance, Name: "Acme", Active: true}
	rt := viewstest.NewRuntime(c, r.Bundle())

	spec, err := views.Admins(rt)
	require.NoError(t, err)
	snap, err := views.NewStore(rt, spec).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)

	got := map[string]bool{}
	for _, row := range snap.Rows {
		got[row.Role] = row.Active
	}
	assert.Equal(t, map[string]bool{"insurance": true, "research": false}, got)
	// removed rows are not read live
	assert.Equal(t, 1, r.CallCount("Admin"))
}

func TestAccessScopedByPatientAndDoctor(t *testing.T) {
	c := viewstest.NewChain(20)
	c.Emit(t, contract.Patient, "AccessGranted", 2, 0, patient, doctor)
	c.Emit(t, contract.Patient, "AccessGranted", 3, 0, patient, doctor2)
	c.Emit(t, contract.Patient, "AccessGranted", 3, 1, other, doctor)
	c.Emit(t, contract.Patient, "AccessRevoked", 4, 0, patient, doctor2)

	r := viewstest.NewReaders()
	r.Access[[2]common.Address{doctor, patient}] = true
	r.Access[[2]common.Address{doctor, other}] = true
	rt := viewstest.NewRuntime(c, r.Bundle())

	spec, err := views.PatientAccess(rt, patient)
	require.NoError(t, err)
	snap, err := views.NewStore(rt, spec).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, doctor, snap.Rows[0].Key)
	assert.True(t, snap.Rows[0].Active)
	assert.Equal(t, patient, snap.Rows[0].Profile.Patient)
	assert.Equal(t, doctor2, snap.Rows[1].Key)
	assert.False(t, snap.Rows[1].Active)

	spec, err = views.DoctorPatients(rt, doctor)
	require.NoError(t, err)
	snap, err = views.NewStore(rt, spec).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	for _, row := range snap.Rows {
		assert.True(t, row.Active)
		assert.Equal(t, doctor, row.Profile.Doctor)
	}
}

func TestHospitalDoctorsScopedByHospital(t *testing.T) {
	c := viewstest.NewChain(20)
	c.Emit(t, contract.Doctor, "DoctorRegistered", 2, 0, doctor, alpha, "Dr. A")
	c.Emit(t, contract.Doctor, "DoctorRegistered", 2, 1, doctor2, beta, "Dr. B")
	rt := viewstest.NewRuntime(c, viewstest.NewReaders().Bundle())

	spec, err := views.HospitalDoctors(rt, alpha)
	require.NoError(t, err)
	snap, err := views.NewStore(rt, spec).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, doctor, snap.Rows[0].Key)
	assert.Equal(t, "Dr. A", snap.Rows[0].Profile.Name)
	assert.True(t, snap.Rows[0].Stale)
}

func TestResearchRequestsSkipsGroupsWithoutStatus(t *testing.T) {
	r := viewstest.NewReaders()
	g1 := r.AddGroup(1, "Cardio")
	g2 := r.AddGroup(2, "Neuro")
	r.AddGroup(3, "Derm")
	r.Statuses[viewstest.StatusKey(g1, patient)] = model.ConsentPending
	r.Statuses[viewstest.StatusKey(g2, patient)] = model.ConsentGranted
	rt := viewstest.NewRuntime(viewstest.NewChain(9), r.Bundle())

	res, err := views.ResearchRequests(rt, patient)(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "Cardio", res.Data[0].Group.Name)
	assert.Equal(t, model.ConsentPending, res.Data[0].Status)
	assert.Equal(t, model.ConsentGranted, res.Data[1].Status)

	updated := views.SetConsent(big.NewInt(1), model.ConsentRejected)(res.Data)
	assert.Equal(t, model.ConsentRejected, updated[0].Status)
	assert.Equal(t, model.ConsentPending, res.Data[0].Status)
}

func TestResearchRequestsFailsWithoutGroupList(t *testing.T) {
	r := viewstest.NewReaders()
	r.SetDown(true)
	rt := viewstest.NewRuntime(viewstest.NewChain(9), r.Bundle())
	_, err := views.ResearchRequests(rt, patient)(context.Background())
	require.Error(t, err)
}

type auditChain struct {
	times map[uint64]uint64
	froms map[common.Hash]common.Address
}

func (a *auditChain) HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error) {
	ts, ok := a.times[n.Uint64()]
	if !ok {
		return nil, errors.New("header not found")
	}
	return &types.Header{Number: n, Time: ts}, nil
}

func (a *auditChain) TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, bool, error) {
	return nil, false, errors.New("not indexed")
}

func (a *auditChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1337), nil
}

func TestAuditLogNewestFirstWithCapAndEnrichment(t *testing.T) {
	c := viewstest.NewChain(100)
	c.Emit(t, contract.Hospital, "HospitalRegistered", 10, 0, alpha, "Alpha", "R-1")
	c.Emit(t, contract.Doctor, "DoctorRegistered", 20, 0, doctor, alpha, "Dr. A")
	c.Emit(t, contract.Doctor, "RoleGranted", 30, 0, model.DoctorRole, doctor, alpha)
	c.Emit(t, contract.EMR, "InsuranceAdminAdded", 40, 0, beta, "Acme", "I-1")
	// hospital admin events are not part of the log
	c.Emit(t, contract.EMR, "HospitalAdminAdded", 50, 0, alpha, "Alpha", "R-1")

	rt := viewstest.NewRuntime(c, viewstest.NewReaders().Bundle())
	rt.AuditLimit = 3
	chain := &auditChain{times: map[uint64]uint64{40: 4000, 30: 3000}}

	res, err := views.AuditLog(rt, chain)(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Data, 3)
	assert.Equal(t, "InsuranceAdminAdded", res.Data[0].Event)
	assert.Equal(t, "insurance", res.Data[0].Entity)
	assert.Equal(t, uint64(4000), res.Data[0].Timestamp)
	assert.Equal(t, "RoleGranted", res.Data[1].Event)
	assert.Contains(t, res.Data[1].Title, "to "+doctor.Hex())
	assert.Equal(t, "DoctorRegistered", res.Data[2].Event)
	assert.Zero(t, res.Data[2].Timestamp)

	assert.Contains(t, res.Warnings, "block times unavailable for 1 events")
	assert.Contains(t, res.Warnings, "transaction senders unavailable for 3 events")
}

func TestFilterAudit(t *testing.T) {
	actor := common.HexToAddress("0xabcdef")
	entries := []model.AuditEntry{
		{Event: "RoleGranted", Entity: "system", Title: "RoleGranted(0x1234) to x", Timestamp: 300, Actor: &actor},
		{Event: "HospitalRegistered", Entity: "hospital", Title: "HospitalRegistered 0xa1", Timestamp: 200},
		{Event: "HospitalDeactivated", Entity: "hospital", Title: "HospitalDeactivated 0xa1", Timestamp: 100},
	}

	assert.Len(t, views.FilterAudit(entries, model.AuditFilter{}), 3)
	assert.Len(t, views.FilterAudit(entries, model.AuditFilter{Event: "all", Entity: "all"}), 3)
	assert.Len(t, views.FilterAudit(entries, model.AuditFilter{Entity: "hospital"}), 2)
	assert.Len(t, views.FilterAudit(entries, model.AuditFilter{Event: "RoleGranted"}), 1)
	assert.Len(t, views.FilterAudit(entries, model.AuditFilter{From: 150, To: 250}), 1)
	got := views.FilterAudit(entries, model.AuditFilter{Search: "ABCDEF"})
	require.Len(t, got, 1)
	assert.Equal(t, "RoleGranted", got[0].Event)
}

func TestDashboardCountsAndRecentActivity(t *testing.T) {
	c := viewstest.NewChain(100)
	c.Emit(t, contract.Hospital, "HospitalRegistered", 10, 0, alpha, "Alpha", "R-1")
	c.Emit(t, contract.Hospital, "HospitalRegistered", 11, 0, beta, "Beta", "R-2")
	c.Emit(t, contract.Hospital, "HospitalDeactivated", 12, 0, beta)
	c.Emit(t, contract.Doctor, "DoctorRegistered", 13, 0, doctor, alpha, "Dr. A")
	c.Emit(t, contract.Doctor, "DoctorRegistered", 14, 0, doctor, alpha, "Dr. A")
	c.Emit(t, contract.Patient, "PatientRegistered", 15, 0, patient, "Pat")
	ins := common.HexToAddress("0x11")
	c.Emit(t, contract.EMR, "InsuranceAdminAdded", 16, 0, ins, "Acme", "I-1")

	r := viewstest.NewReaders()
	r.Hospitals[alpha] = model.HospitalDetails{EntityProfile: model.EntityProfile{Address: alpha, Name: "Alpha", IsActive: true}}
	r.Hospitals[beta] = model.HospitalDetails{EntityProfile: model.EntityProfile{Address: beta, Name: "Beta"}}
	r.Admins[model.NewKey(ins, "insurance")] = model.AdminProfile{Address: ins, Category: model.AdminInsurance, Name: "Acme", Active: true}
	rt := viewstest.NewRuntime(c, r.Bundle())

	load, err := views.DashboardLoader(rt)
	require.NoError(t, err)
	res, err := load(context.Background())
	require.NoError(t, err)

	d := res.Data
	assert.Equal(t, 1, d.Hospitals)
	assert.Equal(t, 1, d.Suspended)
	assert.Equal(t, 1, d.Insurers)
	assert.Equal(t, 0, d.Researchers)
	assert.Equal(t, 2, d.Active)
	assert.Equal(t, 1, d.Doctors)
	assert.Equal(t, 1, d.Patients)

	require.Len(t, d.Recent, 6)
	assert.Equal(t, "Insurance", d.Recent[0].Entity)
	assert.Equal(t, "Acme", d.Recent[0].Name)
	last := d.Recent[len(d.Recent)-1]
	assert.Equal(t, uint64(10), last.Block)
	assert.Equal(t, "Alpha", last.Name)
	for _, a := range d.Recent {
		assert.NotEqual(t, "Patient", a.Entity)
		if a.Address == beta {
			assert.Equal(t, "Suspended", a.Status)
		}
	}
}

func TestDashboardRecentActivityOrdersWithinBlock(t *testing.T) {
	c := viewstest.NewChain(40)
	c.Emit(t, contract.Hospital, "HospitalRegistered", 30, 2, alpha, "Alpha", "R-1")
	c.Emit(t, contract.Doctor, "DoctorRegistered", 30, 5, doctor, alpha, "Dr. A")
	c.Emit(t, contract.Hospital, "HospitalDeactivated", 30, 7, alpha)
	rt := viewstest.NewRuntime(c, viewstest.NewReaders().Bundle())

	load, err := views.DashboardLoader(rt)
	require.NoError(t, err)
	res, err := load(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Data.Recent, 3)
	assert.Equal(t, "HospitalDeactivated", res.Data.Recent[0].Event)
	assert.Equal(t, "DoctorRegistered", res.Data.Recent[1].Event)
	assert.Equal(t, "HospitalRegistered", res.Data.Recent[2].Event)
	assert.Equal(t, uint(5), res.Data.Recent[1].LogIndex)
}

func TestRowHelpersCopy(t *testing.T) {
	c := viewstest.NewChain(50)
	c.Emit(t, contract.Hospital, "HospitalRegistered", 10, 0, alpha, "Alpha", "R-1")
	rt := viewstest.NewRuntime(c, viewstest.NewReaders().Bundle())
	spec, err := views.Hospitals(rt)
	require.NoError(t, err)
	snap, err := views.NewStore(rt, spec).Load(context.Background())
	require.NoError(t, err)
	rows := views.Rows[model.HospitalDetails](snap.Rows)
	require.True(t, rows[0].Active)

	key := model.NewKey(alpha, "")
	flipped := views.SetActive[model.HospitalDetails](key, false)(rows)
	assert.False(t, flipped[0].Active)
	assert.True(t, rows[0].Active)

	added := views.AppendRow(model.NewKey(beta, ""), &model.HospitalDetails{})(rows)
	require.Len(t, added, 2)
	assert.Len(t, rows, 1)
	row, ok := views.Find(added, model.NewKey(beta, ""))
	require.True(t, ok)
	assert.True(t, row.Active)
}
