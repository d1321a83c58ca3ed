package contract

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Deployment holds the on-chain addresses of the EHR contracts.
type Deployment struct {
	HospitalManagement             common.Address
	DoctorManagement               common.Address
	PatientManagement              common.Address
	EMRSystem                      common.Address
	ResearchOrganizationManagement common.Address
}

// Address returns the address a contract is deployed at.
func (d Deployment) Address(n Name) (common.Address, error) {
	var addr common.Address
	switch n {
	case Hospital:
		addr = d.HospitalManagement
	case Doctor:
		addr = d.DoctorManagement
	case Patient:
		addr = d.PatientManagement
	case EMR:
		addr = d.EMRSystem
	case Research:
		addr = d.ResearchOrganizationManagement
	default:
		return common.Address{}, fmt.Errorf("unknown contract %q", n)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s address not configured", n)
	}
	return addr, nil
}

// Calldata ABI-encodes a write call for the wallet to sign.
func (d Deployment) Calldata(n Name, method string, args ...interface{}) (common.Address, []byte, error) {
	to, err := d.Address(n)
	if err != nil {
		return common.Address{}, nil, err
	}
	a, err := ABI(n)
	if err != nil {
		return common.Address{}, nil, err
	}
	data, err := a.Pack(method, args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack %s.%s: %w", n, method, err)
	}
	return to, data, nil
}
