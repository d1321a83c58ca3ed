package views

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
)

const (
	AnalyticsView = "analytics"

	// registrationSample caps the events per category that get a
	// timestamp lookup.
	registrationSample = 600
)

// Period is one histogram resolution of the registration series.
type Period struct {
	Name    string
	Span    time.Duration
	Buckets int
}

var Periods = []Period{
	{Name: "day", Span: 24 * time.Hour, Buckets: 7},
	{Name: "week", Span: 7 * 24 * time.Hour, Buckets: 8},
	{Name: "month", Span: 30 * 24 * time.Hour, Buckets: 6},
}

// Series counts registrations per category, oldest bucket first. The last
// bucket is the current period.
type Series map[model.AdminCategory][]int

// HospitalLoad is the doctor count of one active hospital.
type HospitalLoad struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Doctors int            `json:"doctors"`
}

// Analytics is the admin analytics page.
type Analytics struct {
	Totals
	// Registrations is keyed by period name.
	Registrations      map[string]Series `json:"registrations"`
	DoctorsPerHospital []HospitalLoad    `json:"doctors_per_hospital"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

type analyticsLoader struct {
	rt         *Runtime
	times      *blockTimes
	now        func() time.Time
	hospitals  *statestore.Store[model.HospitalDetails]
	admins     *statestore.Store[model.AdminProfile]
	filters    []eventlog.Filter
	categories []model.AdminCategory
	doctors    int
	warnings   []string
}

// AnalyticsLoader derives the analytics page from the hospitals and admins
// stores, the admin registration events and DoctorRegistered. chain may be
// nil, which leaves the registration series empty. now defaults to
// time.Now.
func AnalyticsLoader(rt *Runtime, chain ChainReader, now func() time.Time) (refresh.Loader[Analytics], error) {
	hs, err := Hospitals(rt)
	if err != nil {
		return nil, err
	}
	as, err := Admins(rt)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	l := &analyticsLoader{
		rt:        rt,
		now:       now,
		hospitals: NewStore(rt, hs),
		admins:    NewStore(rt, as),
		doctors:   -1,
	}
	if chain != nil {
		l.times = newBlockTimes(chain)
	}
	for _, category := range model.AdminCategories {
		event := AdminEvent(category, "Added")
		f, err := rt.Filter(contract.EMR, event)
		if err != nil {
			l.warnings = append(l.warnings, fmt.Sprintf("%s events unavailable: %v", event, err))
			continue
		}
		l.filters = append(l.filters, f)
		l.categories = append(l.categories, category)
	}
	if f, err := rt.Filter(contract.Doctor, "DoctorRegistered"); err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("DoctorRegistered events unavailable: %v", err))
	} else {
		l.doctors = len(l.filters)
		l.filters = append(l.filters, f)
	}
	return l.load, nil
}

func (l *analyticsLoader) load(ctx context.Context) (refresh.Result[Analytics], error) {
	var res refresh.Result[Analytics]
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

	now := l.now()
	a := Analytics{
		Totals:        tally(hospitals.Rows, admins.Rows),
		Registrations: make(map[string]Series, len(Periods)),
		GeneratedAt:   now.UTC(),
	}
	for _, p := range Periods {
		s := make(Series, len(model.AdminCategories))
		for _, category := range model.AdminCategories {
			s[category] = make([]int, p.Buckets)
		}
		a.Registrations[p.Name] = s
	}

	if l.times == nil {
		res.Warnings = append(res.Warnings, "registration series unavailable: no block time source")
	} else {
		for i, category := range l.categories {
			logs := batch.Logs[i]
			if len(logs) > registrationSample {
				logs = logs[len(logs)-registrationSample:]
			}
			if w := l.bucket(ctx, a.Registrations, category, logs, now); w != "" {
				res.Warnings = append(res.Warnings, w)
			}
		}
	}

	if l.doctors >= 0 {
		a.DoctorsPerHospital = doctorsPerHospital(hospitals.Rows, batch.Logs[l.doctors])
	}

	res.Data = a
	res.Block = head
	return res, nil
}

// bucket adds each registration to the bucket its age falls in. Events
// newer than now or older than the last bucket are not counted.
func (l *analyticsLoader) bucket(ctx context.Context, reg map[string]Series, category model.AdminCategory, logs []model.LogEntry, now time.Time) string {
	var (
		mu     sync.Mutex
		failed int
	)
	workers := l.rt.StoreOptions.LiveConcurrency
	if workers <= 0 {
		workers = 8
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, e := range logs {
		g.Go(func() error {
			ts, err := l.times.At(ctx, e.BlockNumber)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return nil
			}
			age := now.Sub(time.Unix(int64(ts), 0))
			if age < 0 {
				return nil
			}
			for _, p := range Periods {
				n := int(age / p.Span)
				if n < p.Buckets {
					reg[p.Name][category][p.Buckets-1-n]++
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if failed > 0 {
		return fmt.Sprintf("block times unavailable for %d %s registrations", failed, category)
	}
	return ""
}

// doctorsPerHospital counts distinct doctors per active hospital. Every
// active hospital is listed, busiest first.
func doctorsPerHospital(hospitals Rows[model.HospitalDetails], logs []model.LogEntry) []HospitalLoad {
	byAddr := make(map[common.Address]map[common.Address]struct{})
	var out []HospitalLoad
	for _, r := range hospitals {
		if !r.Active {
			continue
		}
		byAddr[r.Key] = make(map[common.Address]struct{})
		load := HospitalLoad{Address: r.Key}
		if r.Profile != nil {
			load.Name = r.Profile.Name
		}
		out = append(out, load)
	}
	for _, e := range logs {
		h, ok := e.Address("hospitalAddress")
		if !ok {
			continue
		}
		doctors, ok := byAddr[h]
		if !ok {
			continue
		}
		if d, ok := e.Address("doctorAddress"); ok {
			doctors[d] = struct{}{}
		}
	}
	for i := range out {
		out[i].Doctors = len(byAddr[out[i].Address])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Doctors != out[j].Doctors {
			return out[i].Doctors > out[j].Doctors
		}
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out
}
