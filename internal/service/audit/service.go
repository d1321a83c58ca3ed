package audit

import (
	"context"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

type State = model.ViewState[[]model.AuditEntry]

type Servicer interface {
	Log(ctx context.Context, filter model.AuditFilter) (State, error)
}

// Service backs the admin audit log page.
type Service struct {
	rt    *views.Runtime
	chain views.ChainReader
}

// NewService builds the audit service. chain may be nil, which leaves
// entries without sender and time.
func NewService(rt *views.Runtime, chain views.ChainReader) *Service {
	return &Service{rt: rt, chain: chain}
}

// Log returns the capped log with filter applied.
func (s *Service) Log(ctx context.Context, filter model.AuditFilter) (State, error) {
	v, err := views.MountLoader(ctx, s.rt, views.AuditLogView, views.AuditLog(s.rt, s.chain))
	if err != nil {
		return State{}, err
	}
	st := v.State()
	st.Data = views.FilterAudit(st.Data, filter)
	return st, nil
}
