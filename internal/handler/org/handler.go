package org

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	orgsvc "github.com/jwalitptl/ehr-chainview/internal/service/org"
)

// Handler serves the insurance or research organisation dashboard of the
// session wallet. Routes live under the category name.
type Handler struct {
	category model.AdminCategory
	orgs     orgsvc.Servicer
}

func NewHandler(category model.AdminCategory, orgs orgsvc.Servicer) *Handler {
	return &Handler{category: category, orgs: orgs}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/" + string(h.category))
	{
		g.GET("/profile", h.Profile)
		if h.category == model.AdminResearch {
			g.GET("/groups", h.Groups)
		}
	}
}

func (h *Handler) Profile(c *gin.Context) {
	st, err := h.orgs.Profile(c.Request.Context(), h.category, middleware.Wallet(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) Groups(c *gin.Context) {
	st, err := h.orgs.Groups(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}
