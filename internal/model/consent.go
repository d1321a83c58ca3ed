package model

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ConsentStatus mirrors the research contract enum.
type ConsentStatus uint8

const (
	ConsentNone ConsentStatus = iota
	ConsentPending
	ConsentGranted
	ConsentRejected
	ConsentRevoked
)

func (s ConsentStatus) String() string {
	switch s {
	case ConsentNone:
		return "none"
	case ConsentPending:
		return "pending"
	case ConsentGranted:
		return "granted"
	case ConsentRejected:
		return "rejected"
	case ConsentRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s ConsentStatus) Valid() bool {
	return s <= ConsentRevoked
}

func (s ConsentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ResearchGroup is the live read of a research group.
type ResearchGroup struct {
	ID              *big.Int       `json:"id"`
	Name            string         `json:"name"`
	Purpose         string         `json:"purpose"`
	Leader          common.Address `json:"leader"`
	DiseaseCategory string         `json:"disease_category"`
	WorkCompleted   bool           `json:"work_completed"`
	CreatedAt       uint64         `json:"created_at"`
}

// GroupRequest is one row of a patient's research request list.
type GroupRequest struct {
	Group   ResearchGroup  `json:"group"`
	Patient common.Address `json:"patient"`
	Status  ConsentStatus  `json:"status"`
}

// ConsentCounts tallies the consent state of a group's patients.
type ConsentCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Granted  int `json:"granted"`
	Rejected int `json:"rejected"`
	Revoked  int `json:"revoked"`
}

// Add counts one patient with status s.
func (c *ConsentCounts) Add(s ConsentStatus) {
	c.Total++
	switch s {
	case ConsentPending:
		c.Pending++
	case ConsentGranted:
		c.Granted++
	case ConsentRejected:
		c.Rejected++
	case ConsentRevoked:
		c.Revoked++
	}
}

// PatientConsent is one patient's live consent in a group.
type PatientConsent struct {
	Patient common.Address `json:"patient"`
	Status  ConsentStatus  `json:"status"`
}

// GroupSummary is one group on the research organisation's groups page.
type GroupSummary struct {
	Group    ResearchGroup    `json:"group"`
	Counts   ConsentCounts    `json:"counts"`
	Patients []PatientConsent `json:"patients"`
}
