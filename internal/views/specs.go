package views

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
)

// Names of the store backed views.
const (
	HospitalsView       = "hospitals"
	RolesView           = "roles"
	AdminsView          = "admins"
	PatientAccessView   = "patient-access"
	DoctorPatientsView  = "doctor-patients"
	HospitalDoctorsView = "hospital-doctors"
)

// RoleGrant is the profile of a roles row.
type RoleGrant struct {
	Role    model.RoleID   `json:"role"`
	Label   string         `json:"label"`
	Account common.Address `json:"account"`
}

// ScopedKey names a view instance that belongs to one wallet.
func ScopedKey(view string, scope common.Address) string {
	return view + ":" + strings.ToLower(scope.Hex())
}

// Hospitals lists every registered hospital with its live details.
func Hospitals(rt *Runtime) (statestore.Spec[model.HospitalDetails], error) {
	reg, err := rt.Filter(contract.Hospital, "HospitalRegistered")
	if err != nil {
		return statestore.Spec[model.HospitalDetails]{}, err
	}
	deact, err := rt.Filter(contract.Hospital, "HospitalDeactivated")
	if err != nil {
		return statestore.Spec[model.HospitalDetails]{}, err
	}
	reader := rt.Readers.Hospital
	return statestore.Spec[model.HospitalDetails]{
		Name: HospitalsView,
		Sources: []statestore.Source{
			{Filter: reg, Kind: model.TransitionAdd, Key: statestore.ByAddress("hospitalAddress")},
			{Filter: deact, Kind: model.TransitionRemove, Key: statestore.ByAddress("hospitalAddress")},
		},
		Live: func(ctx context.Context, key model.Key) (model.HospitalDetails, bool, error) {
			d, err := reader.HospitalDetails(ctx, key.Subject)
			return d, d.IsActive, err
		},
		Fallback: func(rec model.MembershipRecord, last model.LogEntry) *model.HospitalDetails {
			return &model.HospitalDetails{EntityProfile: model.EntityProfile{
				Address:            rec.Key,
				Name:               last.String("name"),
				RegistrationNumber: last.String("registrationNumber"),
				IsActive:           rec.Active,
			}}
		},
		// deactivated hospitals stay listed with their live details
		ReadInactive: true,
	}, nil
}

// Roles lists AccessControl grants on the doctor registry, one row per
// (account, role).
func Roles(rt *Runtime) (statestore.Spec[RoleGrant], error) {
	granted, err := rt.Filter(contract.Doctor, "RoleGranted")
	if err != nil {
		return statestore.Spec[RoleGrant]{}, err
	}
	revoked, err := rt.Filter(contract.Doctor, "RoleRevoked")
	if err != nil {
		return statestore.Spec[RoleGrant]{}, err
	}
	reader := rt.Readers.Doctor
	key := statestore.ByAddressAndBytes32("account", "role")
	return statestore.Spec[RoleGrant]{
		Name: RolesView,
		Sources: []statestore.Source{
			{Filter: granted, Kind: model.TransitionAdd, Key: key},
			{Filter: revoked, Kind: model.TransitionRemove, Key: key},
		},
		Live: func(ctx context.Context, key model.Key) (RoleGrant, bool, error) {
			role := common.HexToHash(key.Sub)
			ok, err := reader.HasRole(ctx, role, key.Subject)
			return roleGrant(key.Subject, role), ok, err
		},
		Fallback: func(rec model.MembershipRecord, _ model.LogEntry) *RoleGrant {
			g := roleGrant(rec.Key, common.HexToHash(rec.Role))
			return &g
		},
	}, nil
}

func roleGrant(account common.Address, role model.RoleID) RoleGrant {
	return RoleGrant{Role: role, Label: model.RoleLabel(role), Account: account}
}

var adminEventPrefix = map[model.AdminCategory]string{
	model.AdminHospital:  "HospitalAdmin",
	model.AdminInsurance: "InsuranceAdmin",
	model.AdminResearch:  "ResearchAdmin",
}

// AdminEvent returns the EMRSystem event name for a category and suffix
// (Added, Updated or Removed).
func AdminEvent(category model.AdminCategory, suffix string) string {
	return adminEventPrefix[category] + suffix
}

// Admins lists the EMRSystem admins of every category. Rows are keyed by
// wallet with the category as subkey.
func Admins(rt *Runtime) (statestore.Spec[model.AdminProfile], error) {
	var sources []statestore.Source
	for _, category := range model.AdminCategories {
		key := statestore.ByAddressWithSub("wallet", string(category))
		for _, s := range []struct {
			suffix string
			kind   model.TransitionKind
		}{
			{"Added", model.TransitionAdd},
			{"Updated", model.TransitionAdd},
			{"Removed", model.TransitionRemove},
		} {
			f, err := rt.Filter(contract.EMR, AdminEvent(category, s.suffix))
			if err != nil {
				return statestore.Spec[model.AdminProfile]{}, err
			}
			sources = append(sources, statestore.Source{Filter: f, Kind: s.kind, Key: key})
		}
	}
	reader := rt.Readers.Admin
	return statestore.Spec[model.AdminProfile]{
		Name:    AdminsView,
		Sources: sources,
		Live: func(ctx context.Context, key model.Key) (model.AdminProfile, bool, error) {
			p, err := reader.Admin(ctx, model.AdminCategory(key.Sub), key.Subject)
			return p, p.Active, err
		},
		Fallback: func(rec model.MembershipRecord, last model.LogEntry) *model.AdminProfile {
			active := rec.Active
			if v, ok := last.Args["active"].(bool); ok && active {
				active = v
			}
			return &model.AdminProfile{
				Address:            rec.Key,
				Category:           model.AdminCategory(rec.Role),
				Name:               last.String("name"),
				RegistrationNumber: last.String("registrationNumber"),
				Active:             active,
			}
		},
	}, nil
}

// PatientAccess lists the doctors a patient has granted access to. Rows
// are keyed by doctor.
func PatientAccess(rt *Runtime, patient common.Address) (statestore.Spec[model.AccessGrant], error) {
	return accessSpec(rt, PatientAccessView, [][]interface{}{{patient}}, statestore.ByAddressPair("doctor", "patient"))
}

// DoctorPatients lists the patients that granted a doctor access. Rows are
// keyed by patient.
func DoctorPatients(rt *Runtime, doctor common.Address) (statestore.Spec[model.AccessGrant], error) {
	return accessSpec(rt, DoctorPatientsView, [][]interface{}{nil, {doctor}}, statestore.ByAddressPair("patient", "doctor"))
}

func accessSpec(rt *Runtime, name string, indexed [][]interface{}, key statestore.KeyFunc) (statestore.Spec[model.AccessGrant], error) {
	granted, err := rt.Filter(contract.Patient, "AccessGranted", indexed...)
	if err != nil {
		return statestore.Spec[model.AccessGrant]{}, err
	}
	revoked, err := rt.Filter(contract.Patient, "AccessRevoked", indexed...)
	if err != nil {
		return statestore.Spec[model.AccessGrant]{}, err
	}
	byDoctor := name == PatientAccessView
	pair := func(k model.Key) (patient, doctor common.Address) {
		other := common.HexToAddress(k.Sub)
		if byDoctor {
			return other, k.Subject
		}
		return k.Subject, other
	}
	reader := rt.Readers.Patient
	return statestore.Spec[model.AccessGrant]{
		Name: name,
		Sources: []statestore.Source{
			{Filter: granted, Kind: model.TransitionAdd, Key: key},
			{Filter: revoked, Kind: model.TransitionRemove, Key: key},
		},
		Live: func(ctx context.Context, k model.Key) (model.AccessGrant, bool, error) {
			patient, doctor := pair(k)
			ok, err := reader.HasAccess(ctx, doctor, patient)
			return model.AccessGrant{Patient: patient, Doctor: doctor, Active: ok}, ok, err
		},
		Fallback: func(rec model.MembershipRecord, _ model.LogEntry) *model.AccessGrant {
			patient, doctor := pair(rec.MapKey())
			return &model.AccessGrant{Patient: patient, Doctor: doctor, Active: rec.Active}
		},
	}, nil
}

// HospitalDoctors lists the doctors registered under a hospital.
func HospitalDoctors(rt *Runtime, hospital common.Address) (statestore.Spec[model.DoctorDetails], error) {
	reg, err := rt.Filter(contract.Doctor, "DoctorRegistered", nil, []interface{}{hospital})
	if err != nil {
		return statestore.Spec[model.DoctorDetails]{}, err
	}
	reader := rt.Readers.Doctor
	return statestore.Spec[model.DoctorDetails]{
		Name: HospitalDoctorsView,
		Sources: []statestore.Source{
			{Filter: reg, Kind: model.TransitionAdd, Key: statestore.ByAddress("doctorAddress")},
		},
		Live: func(ctx context.Context, key model.Key) (model.DoctorDetails, bool, error) {
			d, err := reader.DoctorDetails(ctx, key.Subject)
			return d, d.IsActive, err
		},
		Fallback: func(rec model.MembershipRecord, last model.LogEntry) *model.DoctorDetails {
			return &model.DoctorDetails{
				Address:  rec.Key,
				Name:     last.String("name"),
				Hospital: hospital,
				IsActive: rec.Active,
			}
		},
	}, nil
}
