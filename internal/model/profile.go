package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EntityProfile is the common shape of registered entities.
type EntityProfile struct {
	Address            common.Address `json:"address"`
	Name               string         `json:"name"`
	RegistrationNumber string         `json:"registration_number"`
	IsActive           bool           `json:"is_active"`
}

// HospitalDetails is the live read of HospitalManagement.getHospitalDetails.
type HospitalDetails struct {
	EntityProfile
	RegisteredAt uint64 `json:"registered_at"`
	DoctorCount  uint64 `json:"doctor_count"`
	PatientCount uint64 `json:"patient_count"`
}

// DoctorDetails is the live read of DoctorManagement.getDoctorDetails.
type DoctorDetails struct {
	Address        common.Address `json:"address"`
	Name           string         `json:"name"`
	Specialization string         `json:"specialization"`
	Hospital       common.Address `json:"hospital"`
	IsActive       bool           `json:"is_active"`
	RegisteredAt   uint64         `json:"registered_at"`
}

// AdminCategory groups the EMRSystem admin registries.
type AdminCategory string

const (
	AdminHospital  AdminCategory = "hospital"
	AdminInsurance AdminCategory = "insurance"
	AdminResearch  AdminCategory = "research"
)

var AdminCategories = []AdminCategory{AdminHospital, AdminInsurance, AdminResearch}

func ParseAdminCategory(s string) (AdminCategory, error) {
	c := AdminCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AdminCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown admin category %q", s)
}

// AdminProfile is the live read of an EMRSystem admin mapping.
type AdminProfile struct {
	Address            common.Address `json:"address"`
	Category           AdminCategory  `json:"category"`
	Name               string         `json:"name"`
	RegistrationNumber string         `json:"registration_number"`
	Active             bool           `json:"active"`
}

// RoleID is an AccessControl role identifier.
type RoleID = common.Hash

var (
	DefaultAdminRole  RoleID = common.Hash{}
	HospitalAdminRole        = crypto.Keccak256Hash([]byte("HOSPITAL_ADMIN_ROLE"))
	DoctorRole               = crypto.Keccak256Hash([]byte("DOCTOR_ROLE"))
)

// KnownRole describes a role the access-control view lists.
type KnownRole struct {
	ID    RoleID `json:"id"`
	Label string `json:"label"`
}

var KnownRoles = []KnownRole{
	{ID: DefaultAdminRole, Label: "DEFAULT_ADMIN_ROLE"},
	{ID: HospitalAdminRole, Label: "HOSPITAL_ADMIN_ROLE"},
	{ID: DoctorRole, Label: "DOCTOR_ROLE"},
}

func RoleLabel(id RoleID) string {
	for _, r := range KnownRoles {
		if r.ID == id {
			return r.Label
		}
	}
	return id.Hex()
}

// AccessGrant is the patient to doctor record access relation.
type AccessGrant struct {
	Patient common.Address `json:"patient"`
	Doctor  common.Address `json:"doctor"`
	Active  bool           `json:"active"`
}
