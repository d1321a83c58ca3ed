package views

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
)

const OrgProfileView = "org-profile"

// OrgProfile reads the EMRSystem admin profile of an insurance or research
// wallet.
func OrgProfile(rt *Runtime, category model.AdminCategory, wallet common.Address) refresh.Loader[model.AdminProfile] {
	reader := rt.Readers.Admin
	return func(ctx context.Context) (refresh.Result[model.AdminProfile], error) {
		var res refresh.Result[model.AdminProfile]
		head, err := rt.Head.BlockNumber(ctx)
		if err != nil {
			return res, fmt.Errorf("read head block: %w", err)
		}
		p, err := reader.Admin(ctx, category, wallet)
		if err != nil {
			return res, fmt.Errorf("read %s admin %s: %w", category, wallet.Hex(), err)
		}
		res.Data = p
		res.Block = head
		return res, nil
	}
}
