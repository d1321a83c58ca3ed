package contract

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/model"
)

// Typed read surfaces, one per contract. Views depend on these rather than
// on a bound contract so tests can supply fakes.
type (
	HospitalReader interface {
		HospitalDetails(ctx context.Context, hospital common.Address) (model.HospitalDetails, error)
		IsRegistered(ctx context.Context, hospital common.Address) (bool, error)
	}

	DoctorReader interface {
		HasRole(ctx context.Context, role model.RoleID, account common.Address) (bool, error)
		DoctorDetails(ctx context.Context, doctor common.Address) (model.DoctorDetails, error)
	}

	PatientReader interface {
		HasAccess(ctx context.Context, doctor, patient common.Address) (bool, error)
	}

	AdminReader interface {
		Admin(ctx context.Context, category model.AdminCategory, wallet common.Address) (model.AdminProfile, error)
	}

	ResearchReader interface {
		GroupIDs(ctx context.Context) ([]*big.Int, error)
		Group(ctx context.Context, id *big.Int) (model.ResearchGroup, error)
		PatientStatuses(ctx context.Context, id *big.Int, patients []common.Address) ([]model.ConsentStatus, error)
	}
)

// Readers bundles every typed read surface.
type Readers struct {
	Hospital HospitalReader
	Doctor   DoctorReader
	Patient  PatientReader
	Admin    AdminReader
	Research ResearchReader
}
