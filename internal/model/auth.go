package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// Role selects which dashboard a wallet signs in to.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleHospital  Role = "hospital"
	RoleDoctor    Role = "doctor"
	RolePatient   Role = "patient"
	RoleInsurance Role = "insurance"
	RoleResearch  Role = "research"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleHospital, RoleDoctor, RolePatient, RoleInsurance, RoleResearch:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Claims are carried in the session JWT. Subject is the wallet address.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Wallet() common.Address {
	return common.HexToAddress(c.Subject)
}

type NonceRequest struct {
	Address string `json:"address" binding:"required,eth_addr"`
}

type NonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type LoginRequest struct {
	Address   string `json:"address" binding:"required,eth_addr"`
	Signature string `json:"signature" binding:"required"`
	Role      string `json:"role" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        Role   `json:"role"`
	Address     string `json:"address"`
}
