package model

// Signed carries the raw transaction the wallet signed for a prepared call.
type Signed struct {
	SignedTx string `json:"signed_tx" binding:"required,hexdata"`
}

type HospitalRequest struct {
	Hospital string `json:"hospital" binding:"required,eth_addr"`
}

type HospitalSubmit struct {
	HospitalRequest
	Signed
}

type RoleRequest struct {
	Role    string `json:"role" binding:"required,role_id"`
	Account string `json:"account" binding:"required,eth_addr"`
}

type RoleSubmit struct {
	RoleRequest
	Signed
}

type AdminRequest struct {
	Category           string `json:"category" binding:"required,oneof=hospital insurance research"`
	Wallet             string `json:"wallet" binding:"required,eth_addr"`
	Name               string `json:"name" binding:"max=128"`
	RegistrationNumber string `json:"registration_number" binding:"max=64"`
	Active             bool   `json:"active"`
}

type AdminSubmit struct {
	AdminRequest
	Signed
}

type AccessRequest struct {
	Doctor string `json:"doctor" binding:"required,eth_addr"`
}

type AccessSubmit struct {
	AccessRequest
	Signed
}

type ConsentRequest struct {
	GroupID string `json:"group_id" binding:"required,numeric"`
	Grant   *bool  `json:"grant" binding:"required"`
}

type ConsentSubmit struct {
	ConsentRequest
	Signed
}

// AdminQuery selects one admin category on the users page.
type AdminQuery struct {
	Category string `form:"category" binding:"omitempty,oneof=hospital insurance research"`
}

// SearchQuery narrows the admin search. Empty fields match everything.
type SearchQuery struct {
	Query  string `form:"q" binding:"max=128"`
	Status string `form:"status" binding:"omitempty,oneof=all active inactive"`
	Type   string `form:"type" binding:"omitempty,oneof=all hospital insurance research"`
}

// AnalyticsQuery picks the response encoding of the analytics page.
type AnalyticsQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=json csv"`
}
