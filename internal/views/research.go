package views

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
)

const ResearchRequestsView = "research-requests"

// ResearchRequests loads the research groups that asked patient for
// consent. Groups are read directly; there is nothing to reduce. A group
// whose read fails is left out with a warning.
func ResearchRequests(rt *Runtime, patient common.Address) refresh.Loader[[]model.GroupRequest] {
	reader := rt.Readers.Research
	workers := rt.StoreOptions.LiveConcurrency
	if workers <= 0 {
		workers = 8
	}
	return func(ctx context.Context) (refresh.Result[[]model.GroupRequest], error) {
		var res refresh.Result[[]model.GroupRequest]
		head, err := rt.Head.BlockNumber(ctx)
		if err != nil {
			return res, fmt.Errorf("read head block: %w", err)
		}
		ids, err := reader.GroupIDs(ctx)
		if err != nil {
			return res, fmt.Errorf("list research groups: %w", err)
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, id := range ids {
			g.Go(func() error {
				req, ok, err := groupRequest(gctx, rt, id, patient)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("research group %s unavailable: %v", id, err))
					return nil
				}
				if ok {
					res.Data = append(res.Data, req)
				}
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

func groupRequest(ctx context.Context, rt *Runtime, id *big.Int, patient common.Address) (model.GroupRequest, bool, error) {
	reader := rt.Readers.Research
	statuses, err := reader.PatientStatuses(ctx, id, []common.Address{patient})
	if err != nil {
		return model.GroupRequest{}, false, err
	}
	if len(statuses) == 0 || statuses[0] == model.ConsentNone {
		return model.GroupRequest{}, false, nil
	}
	group, err := reader.Group(ctx, id)
	if err != nil {
		return model.GroupRequest{}, false, err
	}
	return model.GroupRequest{Group: group, Patient: patient, Status: statuses[0]}, true, nil
}

// SetConsent is the optimistic change for a consent response.
func SetConsent(groupID *big.Int, status model.ConsentStatus) func([]model.GroupRequest) []model.GroupRequest {
	return func(rows []model.GroupRequest) []model.GroupRequest {
		out := make([]model.GroupRequest, len(rows))
		copy(out, rows)
		for i := range out {
			if out[i].Group.ID != nil && out[i].Group.ID.Cmp(groupID) == 0 {
				out[i].Status = status
			}
		}
		return out
	}
}
