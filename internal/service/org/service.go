package org

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

type (
	ProfileState = model.ViewState[model.AdminProfile]
	GroupsState  = model.ViewState[[]model.GroupSummary]
)

type Servicer interface {
	Profile(ctx context.Context, category model.AdminCategory, wallet common.Address) (ProfileState, error)
	Groups(ctx context.Context) (GroupsState, error)
}

// Service backs the insurance and research organisation pages.
type Service struct {
	rt *views.Runtime
}

func NewService(rt *views.Runtime) *Service {
	return &Service{rt: rt}
}

// Profile returns the wallet's own EMRSystem admin profile.
func (s *Service) Profile(ctx context.Context, category model.AdminCategory, wallet common.Address) (ProfileState, error) {
	key := views.ScopedKey(views.OrgProfileView+":"+string(category), wallet)
	v, err := views.MountLoader(ctx, s.rt, key, views.OrgProfile(s.rt, category, wallet))
	if err != nil {
		return ProfileState{}, err
	}
	return v.State(), nil
}

// Groups lists every research group with its consent counts.
func (s *Service) Groups(ctx context.Context) (GroupsState, error) {
	v, err := views.MountLoader(ctx, s.rt, views.ResearchGroupsView, views.ResearchGroups(s.rt))
	if err != nil {
		return GroupsState{}, err
	}
	return v.State(), nil
}
