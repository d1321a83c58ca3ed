package views

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
)

const SearchView = "search"

// Where an entity row came from.
const (
	SourceHospitals = "hospitals"
	SourceAdmins    = "admins"
)

// Entity is one organisation in the admin search.
type Entity struct {
	Type               model.AdminCategory `json:"type"`
	Address            common.Address      `json:"address"`
	Name               string              `json:"name"`
	RegistrationNumber string              `json:"registration_number"`
	Active             bool                `json:"active"`
	Stale              bool                `json:"stale"`
	Source             string              `json:"source"`
	RegisteredBlock    uint64              `json:"registered_block"`
	LastActivityBlock  uint64              `json:"last_activity_block"`
}

type entityKey struct {
	category model.AdminCategory
	address  common.Address
}

type searchLoader struct {
	rt        *Runtime
	hospitals *statestore.Store[model.HospitalDetails]
	admins    *statestore.Store[model.AdminProfile]
}

// SearchLoader lists every hospital from the hospital registry plus the
// active admins of each category. Filtering happens at read time with
// FilterEntities.
func SearchLoader(rt *Runtime) (refresh.Loader[[]Entity], error) {
	hs, err := Hospitals(rt)
	if err != nil {
		return nil, err
	}
	as, err := Admins(rt)
	if err != nil {
		return nil, err
	}
	l := &searchLoader{rt: rt, hospitals: NewStore(rt, hs), admins: NewStore(rt, as)}
	return l.load, nil
}

func (l *searchLoader) load(ctx context.Context) (refresh.Result[[]Entity], error) {
	var res refresh.Result[[]Entity]
	head, err := l.rt.Head.BlockNumber(ctx)
	if err != nil {
		return res, fmt.Errorf("read head block: %w", err)
	}
	hospitals := l.hospitals.LoadAt(ctx, head)
	admins := l.admins.LoadAt(ctx, head)
	res.Warnings = append(res.Warnings, hospitals.Warnings...)
	res.Warnings = append(res.Warnings, admins.Warnings...)
	res.Data = Entities(hospitals.Rows, admins.Rows)
	res.Block = head
	return res, nil
}

// Entities merges hospital and admin rows into one list, ordered by name.
// A hospital's name comes from its active hospital admin profile when
// there is one. Only one row is kept per (type, address) and the hospital
// registry row wins.
func Entities(hospitals Rows[model.HospitalDetails], admins Rows[model.AdminProfile]) []Entity {
	adminByKey := make(map[entityKey]model.AdminProfile)
	for _, r := range admins {
		if r.Active && r.Profile != nil {
			adminByKey[entityKey{model.AdminCategory(r.Role), r.Key}] = *r.Profile
		}
	}

	seen := make(map[entityKey]struct{})
	var out []Entity
	for _, r := range hospitals {
		k := entityKey{model.AdminHospital, r.Key}
		seen[k] = struct{}{}
		e := Entity{
			Type:              model.AdminHospital,
			Address:           r.Key,
			Active:            r.Active,
			Stale:             r.Stale,
			Source:            SourceHospitals,
			RegisteredBlock:   r.FirstSeenBlock,
			LastActivityBlock: r.LastSeenBlock,
		}
		if r.Profile != nil {
			e.Name = r.Profile.Name
			e.RegistrationNumber = r.Profile.RegistrationNumber
		}
		if p, ok := adminByKey[k]; ok && p.Name != "" {
			e.Name = p.Name
		}
		out = append(out, e)
	}
	for _, r := range admins {
		k := entityKey{model.AdminCategory(r.Role), r.Key}
		if _, ok := seen[k]; ok || !r.Active {
			continue
		}
		seen[k] = struct{}{}
		e := Entity{
			Type:              k.category,
			Address:           r.Key,
			Active:            true,
			Stale:             r.Stale,
			Source:            SourceAdmins,
			RegisteredBlock:   r.FirstSeenBlock,
			LastActivityBlock: r.LastSeenBlock,
		}
		if r.Profile != nil {
			e.Name = r.Profile.Name
			e.RegistrationNumber = r.Profile.RegistrationNumber
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out
}

// FilterEntities applies a search query. The text matches name, address
// or registration number without regard to case.
func FilterEntities(entities []Entity, q model.SearchQuery) []Entity {
	text := strings.ToLower(strings.TrimSpace(q.Query))
	var out []Entity
	for _, e := range entities {
		if q.Type != "" && q.Type != "all" && string(e.Type) != q.Type {
			continue
		}
		switch q.Status {
		case "active":
			if !e.Active {
				continue
			}
		case "inactive":
			if e.Active {
				continue
			}
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(e.Name), text) &&
			!strings.Contains(strings.ToLower(e.Address.Hex()), text) &&
			!strings.Contains(strings.ToLower(e.RegistrationNumber), text) {
			continue
		}
		out = append(out, e)
	}
	return out
}
