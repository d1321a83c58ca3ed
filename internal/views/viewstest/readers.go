package viewstest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
)

// Readers is a settable fake of every contract read. Calls for unknown
// keys fail, which exercises the event-derived fallback.
type Readers struct {
	mu sync.Mutex

	Hospitals  map[common.Address]model.HospitalDetails
	Registered map[common.Address]bool
	Roles      map[model.Key]bool
	Doctors    map[common.Address]model.DoctorDetails
	Access     map[[2]common.Address]bool
	Admins     map[model.Key]model.AdminProfile
	Groups     map[string]model.ResearchGroup
	Statuses   map[string]model.ConsentStatus

	// Down fails every call.
	Down bool
	// Calls counts reads by method.
	Calls map[string]int
}

func NewReaders() *Readers {
	return &Readers{
		Hospitals:  make(map[common.Address]model.HospitalDetails),
		Registered: make(map[common.Address]bool),
		Roles:      make(map[model.Key]bool),
		Doctors:    make(map[common.Address]model.DoctorDetails),
		Access:     make(map[[2]common.Address]bool),
		Admins:     make(map[model.Key]model.AdminProfile),
		Groups:     make(map[string]model.ResearchGroup),
		Statuses:   make(map[string]model.ConsentStatus),
		Calls:      make(map[string]int),
	}
}

// Bundle exposes r through every reader interface.
func (r *Readers) Bundle() contract.Readers {
	return contract.Readers{Hospital: r, Doctor: r, Patient: r, Admin: r, Research: r}
}

func (r *Readers) enter(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls[method]++
	if r.Down {
		return ErrUnreachable
	}
	return nil
}

func (r *Readers) SetDown(down bool) {
	r.mu.Lock()
	r.Down = down
	r.mu.Unlock()
}

func (r *Readers) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Calls[method]
}

func (r *Readers) HospitalDetails(ctx context.Context, hospital common.Address) (model.HospitalDetails, error) {
	if err := r.enter("HospitalDetails"); err != nil {
		return model.HospitalDetails{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.Hospitals[hospital]
	if !ok {
		return model.HospitalDetails{}, fmt.Errorf("execution reverted: hospital %s not found", hospital.Hex())
	}
	return d, nil
}

func (r *Readers) IsRegistered(ctx context.Context, hospital common.Address) (bool, error) {
	if err := r.enter("IsRegistered"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Registered[hospital], nil
}

func (r *Readers) HasRole(ctx context.Context, role model.RoleID, account common.Address) (bool, error) {
	if err := r.enter("HasRole"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Roles[model.NewKey(account, role.Hex())], nil
}

func (r *Readers) DoctorDetails(ctx context.Context, doctor common.Address) (model.DoctorDetails, error) {
	if err := r.enter("DoctorDetails"); err != nil {
		return model.DoctorDetails{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.Doctors[doctor]
	if !ok {
		return model.DoctorDetails{}, fmt.Errorf("execution reverted: doctor %s not found", doctor.Hex())
	}
	return d, nil
}

func (r *Readers) HasAccess(ctx context.Context, doctor, patient common.Address) (bool, error) {
	if err := r.enter("HasAccess"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Access[[2]common.Address{doctor, patient}], nil
}

func (r *Readers) Admin(ctx context.Context, category model.AdminCategory, wallet common.Address) (model.AdminProfile, error) {
	if err := r.enter("Admin"); err != nil {
		return model.AdminProfile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Admins[model.NewKey(wallet, string(category))]
	if !ok {
		return model.AdminProfile{Address: wallet, Category: category}, nil
	}
	return p, nil
}

func (r *Readers) GroupIDs(ctx context.Context) ([]*big.Int, error) {
	if err := r.enter("GroupIDs"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []*big.Int
	for _, g := range r.Groups {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func (r *Readers) Group(ctx context.Context, id *big.Int) (model.ResearchGroup, error) {
	if err := r.enter("Group"); err != nil {
		return model.ResearchGroup{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.Groups[id.String()]
	if !ok {
		return model.ResearchGroup{}, fmt.Errorf("group %s not found", id)
	}
	return g, nil
}

func (r *Readers) PatientStatuses(ctx context.Context, id *big.Int, patients []common.Address) ([]model.ConsentStatus, error) {
	if err := r.enter("PatientStatuses"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ConsentStatus, len(patients))
	for i, p := range patients {
		out[i] = r.Statuses[StatusKey(id, p)]
	}
	return out, nil
}

// StatusKey indexes Statuses.
func StatusKey(id *big.Int, patient common.Address) string {
	return id.String() + ":" + patient.Hex()
}

// AddGroup registers a research group.
func (r *Readers) AddGroup(id int64, name string) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	gid := big.NewInt(id)
	r.Groups[gid.String()] = model.ResearchGroup{ID: gid, Name: name}
	return gid
}

// Update runs fn under the reader lock, for changes made while views may
// be loading.
func (r *Readers) Update(fn func(r *Readers)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}
