package contract

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/*.json
var abiFS embed.FS

// Name identifies one of the EHR contracts.
type Name string

const (
	Hospital Name = "HospitalManagement"
	Doctor   Name = "DoctorManagement"
	Patient  Name = "PatientManagement"
	EMR      Name = "EMRSystem"
	Research Name = "ResearchOrganizationManagement"
)

var Names = []Name{Hospital, Doctor, Patient, EMR, Research}

var (
	abiOnce  sync.Once
	abiCache map[Name]*abi.ABI
	abiErr   error
)

func loadAll() {
	abiCache = make(map[Name]*abi.ABI, len(Names))
	for _, n := range Names {
		raw, err := abiFS.ReadFile("abi/" + string(n) + ".json")
		if err != nil {
			abiErr = fmt.Errorf("read abi %s: %w", n, err)
			return
		}
		parsed, err := abi.JSON(strings.NewReader(string(raw)))
		if err != nil {
			abiErr = fmt.Errorf("parse abi %s: %w", n, err)
			return
		}
		abiCache[n] = &parsed
	}
}

// ABI returns the parsed ABI of a contract.
func ABI(n Name) (*abi.ABI, error) {
	abiOnce.Do(loadAll)
	if abiErr != nil {
		return nil, abiErr
	}
	a, ok := abiCache[n]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", n)
	}
	return a, nil
}

// MustABI panics when the embedded ABI is broken; the files ship with the
// binary so this only fires on a bad build.
func MustABI(n Name) *abi.ABI {
	a, err := ABI(n)
	if err != nil {
		panic(err)
	}
	return a
}
