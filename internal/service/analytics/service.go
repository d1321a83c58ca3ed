package analytics

import (
	"context"
	"time"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

type (
	State       = model.ViewState[views.Analytics]
	SearchState = model.ViewState[[]views.Entity]
)

type Servicer interface {
	Analytics(ctx context.Context) (State, error)
	Search(ctx context.Context, q model.SearchQuery) (SearchState, error)
}

// Service backs the admin analytics and search pages.
type Service struct {
	rt    *views.Runtime
	chain views.ChainReader
	now   func() time.Time
}

// NewService builds the service. chain supplies block times for the
// registration series and may be nil.
func NewService(rt *views.Runtime, chain views.ChainReader) *Service {
	return &Service{rt: rt, chain: chain, now: time.Now}
}

func (s *Service) Analytics(ctx context.Context) (State, error) {
	v, err := views.Mount(ctx, s.rt, views.AnalyticsView, func() (refresh.Loader[views.Analytics], error) {
		return views.AnalyticsLoader(s.rt, s.chain, s.now)
	})
	if err != nil {
		return State{}, err
	}
	return v.State(), nil
}

// Search returns the entities matching q. One view backs every query.
func (s *Service) Search(ctx context.Context, q model.SearchQuery) (SearchState, error) {
	v, err := views.Mount(ctx, s.rt, views.SearchView, func() (refresh.Loader[[]views.Entity], error) {
		return views.SearchLoader(s.rt)
	})
	if err != nil {
		return SearchState{}, err
	}
	st := v.State()
	st.Data = views.FilterEntities(st.Data, q)
	return st, nil
}
