package views

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
)

const ResearchGroupsView = "research-groups"

// ResearchGroups loads every research group with the live consent of the
// patients that have answered it. Patients are discovered from
// ConsentResponded; their current status is read from the contract, so a
// later revoke shows even without its own event. A group whose reads fail
// is left out with a warning.
func ResearchGroups(rt *Runtime) refresh.Loader[[]model.GroupSummary] {
	reader := rt.Readers.Research
	workers := rt.StoreOptions.LiveConcurrency
	if workers <= 0 {
		workers = 8
	}
	return func(ctx context.Context) (refresh.Result[[]model.GroupSummary], error) {
		var res refresh.Result[[]model.GroupSummary]
		head, err := rt.Head.BlockNumber(ctx)
		if err != nil {
			return res, fmt.Errorf("read head block: %w", err)
		}
		ids, err := reader.GroupIDs(ctx)
		if err != nil {
			return res, fmt.Errorf("list research groups: %w", err)
		}

		patients := make(map[string][]common.Address)
		if f, err := rt.Filter(contract.Research, "ConsentResponded"); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("ConsentResponded events unavailable: %v", err))
		} else {
			batch := rt.Fetcher.FetchAll(ctx, []eventlog.Filter{f}, head)
			res.Warnings = append(res.Warnings, batch.Warnings...)
			patients = respondents(batch.Logs[0])
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, id := range ids {
			g.Go(func() error {
				sum, err := groupSummary(gctx, reader, id, patients[id.String()])
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("research group %s unavailable: %v", id, err))
					return nil
				}
				res.Data = append(res.Data, sum)
				return nil
			})
		}
		_ = g.Wait()

		sort.Slice(res.Data, func(i, j int) bool {
			return res.Data[i].Group.ID.Cmp(res.Data[j].Group.ID) < 0
		})
		sort.Strings(res.Warnings)
		res.Block = head
		return res, nil
	}
}

// respondents lists the distinct patients per group id in order of their
// first answer.
func respondents(logs []model.LogEntry) map[string][]common.Address {
	out := make(map[string][]common.Address)
	seen := make(map[string]map[common.Address]struct{})
	for _, e := range logs {
		id, ok := e.Args["groupId"].(*big.Int)
		if !ok {
			continue
		}
		p, ok := e.Address("patient")
		if !ok {
			continue
		}
		key := id.String()
		if seen[key] == nil {
			seen[key] = make(map[common.Address]struct{})
		}
		if _, dup := seen[key][p]; dup {
			continue
		}
		seen[key][p] = struct{}{}
		out[key] = append(out[key], p)
	}
	return out
}

func groupSummary(ctx context.Context, reader contract.ResearchReader, id *big.Int, patients []common.Address) (model.GroupSummary, error) {
	group, err := reader.Group(ctx, id)
	if err != nil {
		return model.GroupSummary{}, err
	}
	sum := model.GroupSummary{Group: group, Patients: []model.PatientConsent{}}
	if len(patients) == 0 {
		return sum, nil
	}
	statuses, err := reader.PatientStatuses(ctx, id, patients)
	if err != nil {
		return model.GroupSummary{}, err
	}
	if len(statuses) != len(patients) {
		return model.GroupSummary{}, fmt.Errorf("got %d statuses for %d patients", len(statuses), len(patients))
	}
	for i, p := range patients {
		sum.Patients = append(sum.Patients, model.PatientConsent{Patient: p, Status: statuses[i]})
		sum.Counts.Add(statuses[i])
	}
	return sum, nil
}
