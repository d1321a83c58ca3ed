package dashboard

import (
	"context"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

type State = model.ViewState[views.Dashboard]

type Servicer interface {
	Overview(ctx context.Context) (State, error)
}

// Service backs the admin dashboard.
type Service struct {
	rt *views.Runtime
}

func NewService(rt *views.Runtime) *Service {
	return &Service{rt: rt}
}

func (s *Service) Overview(ctx context.Context) (State, error) {
	v, err := views.Mount(ctx, s.rt, views.DashboardView, func() (refresh.Loader[views.Dashboard], error) {
		return views.DashboardLoader(s.rt)
	})
	if err != nil {
		return State{}, err
	}
	return v.State(), nil
}
