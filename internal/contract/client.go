package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/model"
)

// ErrUnexpectedOutput is returned when a call decodes to the wrong shape.
var ErrUnexpectedOutput = errors.New("unexpected call output")

// Client implements every reader on top of go-ethereum bound contracts.
type Client struct {
	bound map[Name]*bind.BoundContract
}

// NewClient binds each configured contract to caller. Contracts without an
// address are skipped; calling them returns an error.
func NewClient(caller bind.ContractCaller, d Deployment) (*Client, error) {
	c := &Client{bound: make(map[Name]*bind.BoundContract, len(Names))}
	for _, n := range Names {
		addr, err := d.Address(n)
		if err != nil {
			continue
		}
		a, err := ABI(n)
		if err != nil {
			return nil, err
		}
		c.bound[n] = bind.NewBoundContract(addr, *a, caller, nil, nil)
	}
	return c, nil
}

// Readers exposes the client through the typed interfaces.
func (c *Client) Readers() Readers {
	return Readers{Hospital: c, Doctor: c, Patient: c, Admin: c, Research: c}
}

func (c *Client) call(ctx context.Context, n Name, method string, want int, args ...interface{}) ([]interface{}, error) {
	bc, ok := c.bound[n]
	if !ok {
		return nil, fmt.Errorf("%s address not configured", n)
	}
	var out []interface{}
	if err := bc.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", n, method, err)
	}
	if len(out) != want {
		return nil, fmt.Errorf("%s.%s: %w: got %d values", n, method, ErrUnexpectedOutput, len(out))
	}
	return out, nil
}

func (c *Client) HospitalDetails(ctx context.Context, hospital common.Address) (model.HospitalDetails, error) {
	out, err := c.call(ctx, Hospital, "getHospitalDetails", 6, hospital)
	if err != nil {
		return model.HospitalDetails{}, err
	}
	name, ok1 := out[0].(string)
	reg, ok2 := out[1].(string)
	active, ok3 := out[2].(bool)
	ts, ok4 := out[3].(*big.Int)
	doctors, ok5 := out[4].(*big.Int)
	patients, ok6 := out[5].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return model.HospitalDetails{}, fmt.Errorf("getHospitalDetails: %w", ErrUnexpectedOutput)
	}
	return model.HospitalDetails{
		EntityProfile: model.EntityProfile{
			Address:            hospital,
			Name:               name,
			RegistrationNumber: reg,
			IsActive:           active,
		},
		RegisteredAt: ts.Uint64(),
		DoctorCount:  doctors.Uint64(),
		PatientCount: patients.Uint64(),
	}, nil
}

func (c *Client) IsRegistered(ctx context.Context, hospital common.Address) (bool, error) {
	out, err := c.call(ctx, Hospital, "registeredHospitals", 1, hospital)
	if err != nil {
		return false, err
	}
	ok, isBool := out[0].(bool)
	if !isBool {
		return false, fmt.Errorf("registeredHospitals: %w", ErrUnexpectedOutput)
	}
	return ok, nil
}

func (c *Client) HasRole(ctx context.Context, role model.RoleID, account common.Address) (bool, error) {
	out, err := c.call(ctx, Doctor, "hasRole", 1, [32]byte(role), account)
	if err != nil {
		return false, err
	}
	has, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasRole: %w", ErrUnexpectedOutput)
	}
	return has, nil
}

func (c *Client) DoctorDetails(ctx context.Context, doctor common.Address) (model.DoctorDetails, error) {
	out, err := c.call(ctx, Doctor, "getDoctorDetails", 5, doctor)
	if err != nil {
		return model.DoctorDetails{}, err
	}
	name, ok1 := out[0].(string)
	spec, ok2 := out[1].(string)
	hospital, ok3 := out[2].(common.Address)
	active, ok4 := out[3].(bool)
	ts, ok5 := out[4].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return model.DoctorDetails{}, fmt.Errorf("getDoctorDetails: %w", ErrUnexpectedOutput)
	}
	return model.DoctorDetails{
		Address:        doctor,
		Name:           name,
		Specialization: spec,
		Hospital:       hospital,
		IsActive:       active,
		RegisteredAt:   ts.Uint64(),
	}, nil
}

func (c *Client) HasAccess(ctx context.Context, doctor, patient common.Address) (bool, error) {
	out, err := c.call(ctx, Patient, "hasAccess", 1, doctor, patient)
	if err != nil {
		return false, err
	}
	has, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasAccess: %w", ErrUnexpectedOutput)
	}
	return has, nil
}

// AdminGetter is the public mapping getter for an admin category.
func AdminGetter(category model.AdminCategory) string {
	return string(category) + "Admins"
}

func (c *Client) Admin(ctx context.Context, category model.AdminCategory, wallet common.Address) (model.AdminProfile, error) {
	out, err := c.call(ctx, EMR, AdminGetter(category), 3, wallet)
	if err != nil {
		return model.AdminProfile{}, err
	}
	name, ok1 := out[0].(string)
	reg, ok2 := out[1].(string)
	active, ok3 := out[2].(bool)
	if !(ok1 && ok2 && ok3) {
		return model.AdminProfile{}, fmt.Errorf("%s: %w", AdminGetter(category), ErrUnexpectedOutput)
	}
	return model.AdminProfile{
		Address:            wallet,
		Category:           category,
		Name:               name,
		RegistrationNumber: reg,
		Active:             active,
	}, nil
}

func (c *Client) GroupIDs(ctx context.Context) ([]*big.Int, error) {
	out, err := c.call(ctx, Research, "getAllGroupIds", 1)
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAllGroupIds: %w", ErrUnexpectedOutput)
	}
	return ids, nil
}

func (c *Client) Group(ctx context.Context, id *big.Int) (model.ResearchGroup, error) {
	out, err := c.call(ctx, Research, "getGroup", 6, id)
	if err != nil {
		return model.ResearchGroup{}, err
	}
	name, ok1 := out[0].(string)
	purpose, ok2 := out[1].(string)
	leader, ok3 := out[2].(common.Address)
	disease, ok4 := out[3].(string)
	done, ok5 := out[4].(bool)
	created, ok6 := out[5].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return model.ResearchGroup{}, fmt.Errorf("getGroup: %w", ErrUnexpectedOutput)
	}
	return model.ResearchGroup{
		ID:              new(big.Int).Set(id),
		Name:            name,
		Purpose:         purpose,
		Leader:          leader,
		DiseaseCategory: disease,
		WorkCompleted:   done,
		CreatedAt:       created.Uint64(),
	}, nil
}

func (c *Client) PatientStatuses(ctx context.Context, id *big.Int, patients []common.Address) ([]model.ConsentStatus, error) {
	out, err := c.call(ctx, Research, "getGroupPatientStatuses", 1, id, patients)
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([]uint8)
	if !ok {
		return nil, fmt.Errorf("getGroupPatientStatuses: %w", ErrUnexpectedOutput)
	}
	statuses := make([]model.ConsentStatus, len(raw))
	for i, s := range raw {
		statuses[i] = model.ConsentStatus(s)
	}
	return statuses, nil
}
