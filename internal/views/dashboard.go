package views

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
)

const (
	DashboardView = "dashboard"

	recentPerSource = 10
	recentLimit     = 15
)

// Totals counts the registered organisations. Suspended counts
// deactivated hospitals.
type Totals struct {
	Hospitals   int `json:"hospitals"`
	Insurers    int `json:"insurers"`
	Researchers int `json:"researchers"`
	Active      int `json:"active"`
	Suspended   int `json:"suspended"`
}

func tally(hospitals Rows[model.HospitalDetails], admins Rows[model.AdminProfile]) Totals {
	var t Totals
	for _, r := range hospitals {
		if r.Active {
			t.Hospitals++
		} else {
			t.Suspended++
		}
	}
	for _, r := range admins {
		if !r.Active {
			continue
		}
		switch model.AdminCategory(r.Role) {
		case model.AdminInsurance:
			t.Insurers++
		case model.AdminResearch:
			t.Researchers++
		}
	}
	t.Active = t.Hospitals + t.Insurers + t.Researchers
	return t
}

// Dashboard is the admin overview.
type Dashboard struct {
	Totals
	Doctors  int        `json:"doctors"`
	Patients int        `json:"patients"`
	Recent   []Activity `json:"recent"`
}

// Activity is one line of the recent activity feed.
type Activity struct {
	Entity   string         `json:"entity"`
	Event    string         `json:"event"`
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	Status   string         `json:"status"`
	Block    uint64         `json:"block"`
	LogIndex uint           `json:"log_index"`
	TxHash   common.Hash    `json:"tx_hash"`
}

type dashboardSource struct {
	contract contract.Name
	event    string
	entity   string
	addrArg  string
}

var dashboardSources = []dashboardSource{
	{contract.Hospital, "HospitalRegistered", "Hospital", "hospitalAddress"},
	{contract.Hospital, "HospitalDeactivated", "Hospital", "hospitalAddress"},
	{contract.Doctor, "DoctorRegistered", "Doctor", "doctorAddress"},
	{contract.Patient, "PatientRegistered", "Patient", "patientAddress"},
	{contract.EMR, "InsuranceAdminAdded", "Insurance", "wallet"},
	{contract.EMR, "InsuranceAdminUpdated", "Insurance", "wallet"},
	{contract.EMR, "InsuranceAdminRemoved", "Insurance", "wallet"},
	{contract.EMR, "ResearchAdminAdded", "Research", "wallet"},
	{contract.EMR, "ResearchAdminUpdated", "Research", "wallet"},
	{contract.EMR, "ResearchAdminRemoved", "Research", "wallet"},
}

type dashboardLoader struct {
	rt        *Runtime
	hospitals *statestore.Store[model.HospitalDetails]
	admins    *statestore.Store[model.AdminProfile]
	filters   []eventlog.Filter
	sources   []dashboardSource
	warnings  []string
}

// DashboardLoader derives the admin overview from the hospitals and admins
// stores plus the registration events.
func DashboardLoader(rt *Runtime) (refresh.Loader[Dashboard], error) {
	hs, err := Hospitals(rt)
	if err != nil {
		return nil, err
	}
	as, err := Admins(rt)
	if err != nil {
		return nil, err
	}
	l := &dashboardLoader{
		rt:        rt,
		hospitals: NewStore(rt, hs),
		admins:    NewStore(rt, as),
	}
	for _, s := range dashboardSources {
		f, err := rt.Filter(s.contract, s.event)
		if err != nil {
			l.warnings = append(l.warnings, fmt.Sprintf("%s events unavailable: %v", s.event, err))
			continue
		}
		l.filters = append(l.filters, f)
		l.sources = append(l.sources, s)
	}
	return l.load, nil
}

func (l *dashboardLoader) load(ctx context.Context) (refresh.Result[Dashboard], error) {
	var res refresh.Result[Dashboard]
	head, err := l.rt.Head.BlockNumber(ctx)
	if err != nil {
		return res, fmt.Errorf("read head block: %w", err)
	}

	hospitals := l.hospitals.LoadAt(ctx, head)
	admins := l.admins.LoadAt(ctx, head)
	batch := l.rt.Fetcher.FetchAll(ctx, l.filters, head)

	res.Warnings = append(res.Warnings, l.warnings...)
	res.Warnings = append(res.Warnings, hospitals.Warnings...)
	res.Warnings = append(res.Warnings, admins.Warnings...)
	res.Warnings = append(res.Warnings, batch.Warnings...)

	d := Dashboard{Totals: tally(hospitals.Rows, admins.Rows)}
	hospitalByAddr := make(map[common.Address]model.HospitalDetails)
	for _, r := range hospitals.Rows {
		if r.Profile != nil {
			hospitalByAddr[r.Key] = *r.Profile
		}
	}
	adminByKey := make(map[model.Key]model.AdminProfile)
	for _, r := range admins.Rows {
		if r.Profile != nil {
			adminByKey[r.MapKey()] = *r.Profile
		}
	}

	for i, logs := range batch.Logs {
		src := l.sources[i]
		switch src.event {
		case "DoctorRegistered":
			d.Doctors = countUnique(logs, src.addrArg)
		case "PatientRegistered":
			d.Patients = countUnique(logs, src.addrArg)
			continue
		}
		if len(logs) > recentPerSource {
			logs = logs[len(logs)-recentPerSource:]
		}
		for _, e := range logs {
			addr, _ := e.Address(src.addrArg)
			a := Activity{Entity: src.entity, Event: e.Event, Address: addr, Status: "Active", Block: e.BlockNumber, LogIndex: e.LogIndex, TxHash: e.TxHash}
			switch src.entity {
			case "Hospital":
				if h, ok := hospitalByAddr[addr]; ok {
					a.Name = h.Name
					a.Status = activeLabel(h.IsActive, "Suspended")
				} else if e.Event == "HospitalDeactivated" {
					a.Status = "Suspended"
				}
			case "Doctor":
				a.Name = e.String("name")
			case "Insurance", "Research":
				cat := model.AdminInsurance
				if src.entity == "Research" {
					cat = model.AdminResearch
				}
				if p, ok := adminByKey[model.NewKey(addr, string(cat))]; ok {
					a.Name = p.Name
					a.Status = activeLabel(p.Active, "Inactive")
				}
			}
			d.Recent = append(d.Recent, a)
		}
	}
	sort.SliceStable(d.Recent, func(i, j int) bool {
		if d.Recent[i].Block != d.Recent[j].Block {
			return d.Recent[i].Block > d.Recent[j].Block
		}
		return d.Recent[i].LogIndex > d.Recent[j].LogIndex
	})
	if len(d.Recent) > recentLimit {
		d.Recent = d.Recent[:recentLimit]
	}

	res.Data = d
	res.Block = head
	return res, nil
}

func activeLabel(active bool, inactive string) string {
	if active {
		return "Active"
	}
	return inactive
}

func countUnique(logs []model.LogEntry, arg string) int {
	seen := make(map[common.Address]struct{})
	for _, e := range logs {
		if addr, ok := e.Address(arg); ok {
			seen[addr] = struct{}{}
		}
	}
	return len(seen)
}
