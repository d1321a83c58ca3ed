package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleForm struct {
	Role     string `json:"role" validate:"required,role_id"`
	Account  string `json:"account" validate:"required,eth_addr"`
	SignedTx string `json:"signed_tx" validate:"omitempty,hexdata"`
	Category string `form:"category" validate:"omitempty,oneof=hospital insurance research"`
}

func TestCustomTags(t *testing.T) {
	v := New()

	ok := roleForm{
		Role:     "0x" + strings.Repeat("ab", 32),
		Account:  "0x00000000000000000000000000000000000000a1",
		SignedTx: "0x02f8",
		Category: "research",
	}
	require.NoError(t, v.Struct(ok))

	bad := roleForm{Role: "DOCTOR_ROLE", Account: "0x12", SignedTx: "0x2f8", Category: "clinic"}
	err := v.Struct(bad)
	require.Error(t, err)

	msg := Describe(err)
	assert.Contains(t, msg, "role must be a 0x-prefixed 32 byte role id")
	assert.Contains(t, msg, "account must be a 0x-prefixed 20 byte address")
	assert.Contains(t, msg, "signed_tx must be 0x-prefixed hex bytes")
	assert.Contains(t, msg, "category must be one of [hospital insurance research]")
}

func TestRequiredMessage(t *testing.T) {
	err := New().Struct(roleForm{})
	require.Error(t, err)
	assert.Contains(t, Describe(err), "role is required")
}

func TestRegisterGin(t *testing.T) {
	assert.NoError(t, RegisterGin())
}
